package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/klappy/obt-helper-gpt/internal/models"
	"github.com/klappy/obt-helper-gpt/internal/store"
	"github.com/klappy/obt-helper-gpt/pkg/llm"
)

const (
	defaultInactivityTimeout = 30 * time.Minute
	defaultHistoryLimit      = 20
	defaultContextWindow     = 10
	defaultCleanupAfterDays  = 30

	summaryKeyPrefix = "summary-"
)

// SessionStore maintains the per-phone-number conversational state. Any
// storage failure during retrieval falls back to an ephemeral in-memory
// session so the conversation can still proceed for that turn.
type SessionStore struct {
	sessions  store.Store
	summaries store.Store
	gateway   llm.Client
	logger    *logrus.Logger
	timers    *timerRegistry

	inactivityTimeout time.Duration
	historyLimit      int
	contextWindow     int

	now func() time.Time
}

func NewSessionStore(sessions, summaries store.Store, gateway llm.Client, cfg models.SessionConfig, logger *logrus.Logger) *SessionStore {
	s := &SessionStore{
		sessions:          sessions,
		summaries:         summaries,
		gateway:           gateway,
		logger:            logger,
		timers:            newTimerRegistry(),
		inactivityTimeout: defaultInactivityTimeout,
		historyLimit:      defaultHistoryLimit,
		contextWindow:     defaultContextWindow,
		now:               time.Now,
	}
	if cfg.InactivityTimeoutMin > 0 {
		s.inactivityTimeout = time.Duration(cfg.InactivityTimeoutMin) * time.Minute
	}
	if cfg.HistoryLimit > 0 {
		s.historyLimit = cfg.HistoryLimit
	}
	if cfg.ContextWindow > 0 {
		s.contextWindow = cfg.ContextWindow
	}
	return s
}

// ContextWindow is the number of trailing history messages used as LLM context.
func (s *SessionStore) ContextWindow() int {
	return s.contextWindow
}

// GetOrCreate loads the session for a phone number, creating a fresh one on
// first contact and an ephemeral one when storage is unreachable.
func (s *SessionStore) GetOrCreate(ctx context.Context, phoneNumber string) *models.WhatsAppSession {
	sessionID := models.WhatsAppSessionID(phoneNumber)

	value, found, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Warn("Session load failed, using ephemeral session")
		session := s.newSession(sessionID, phoneNumber)
		session.Ephemeral = true
		return session
	}
	if !found {
		session := s.newSession(sessionID, phoneNumber)
		s.armTimer(session)
		return session
	}

	var session models.WhatsAppSession
	if err := json.Unmarshal([]byte(value), &session); err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Warn("Session decode failed, using ephemeral session")
		session := s.newSession(sessionID, phoneNumber)
		session.Ephemeral = true
		return session
	}

	// Older records may predate the derived id field.
	if session.SessionID == "" {
		session.SessionID = sessionID
	}
	s.armTimer(&session)
	return &session
}

func (s *SessionStore) newSession(sessionID, phoneNumber string) *models.WhatsAppSession {
	now := s.now().UTC()
	return &models.WhatsAppSession{
		SessionID:           sessionID,
		PhoneNumber:         phoneNumber,
		Language:            "en",
		ConversationHistory: []models.HistoryMessage{},
		Metadata: models.SessionMetadata{
			StartTime:    now,
			LastActivity: now,
			MessageCount: 0,
		},
	}
}

// AppendMessage pushes one turn onto the history, capping the stored
// length and refreshing activity metadata.
func (s *SessionStore) AppendMessage(session *models.WhatsAppSession, role, content string) {
	now := s.now().UTC()
	session.ConversationHistory = append(session.ConversationHistory, models.HistoryMessage{
		Role:      role,
		Content:   content,
		Timestamp: now,
	})
	if len(session.ConversationHistory) > s.historyLimit {
		session.ConversationHistory = session.ConversationHistory[len(session.ConversationHistory)-s.historyLimit:]
	}

	session.Metadata.LastActivity = now
	if role == "user" {
		session.Metadata.MessageCount++
	}
	s.armTimer(session)
}

// AddUsage accumulates tokens and cost onto the session.
func (s *SessionStore) AddUsage(session *models.WhatsAppSession, tokens int, cost float64) {
	session.Usage.Tokens += tokens
	session.Usage.Cost += cost
}

// Save overwrites the stored record. Failure is logged, not fatal: the
// reply has already been sent and the next message starts fresh.
func (s *SessionStore) Save(ctx context.Context, session *models.WhatsAppSession) {
	if session.Ephemeral {
		return
	}

	payload, err := json.Marshal(session)
	if err != nil {
		s.logger.WithError(err).WithField("session_id", session.SessionID).Warn("Failed to encode session")
		return
	}
	if err := s.sessions.Set(ctx, session.SessionID, string(payload)); err != nil {
		s.logger.WithError(err).WithField("session_id", session.SessionID).Warn("Failed to save session")
		return
	}
	s.armTimer(session)
}

// Delete removes a session and cancels its timer.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	s.timers.Cancel(sessionID)
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}

// All returns every stored session, most recently active first. Used by
// the admin endpoints.
func (s *SessionStore) All(ctx context.Context) ([]models.WhatsAppSession, error) {
	keys, err := s.sessions.List(ctx, "whatsapp_")
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]models.WhatsAppSession, 0, len(keys))
	for _, key := range keys {
		value, found, getErr := s.sessions.Get(ctx, key)
		if getErr != nil || !found {
			continue
		}
		var session models.WhatsAppSession
		if unmarshalErr := json.Unmarshal([]byte(value), &session); unmarshalErr != nil {
			s.logger.WithField("session_id", key).Debug("Skipping malformed session record")
			continue
		}
		if session.SessionID == "" {
			session.SessionID = key
		}
		sessions = append(sessions, session)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Metadata.LastActivity.After(sessions[j].Metadata.LastActivity)
	})
	return sessions, nil
}

// Get returns one stored session by id.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*models.WhatsAppSession, bool, error) {
	value, found, err := s.sessions.Get(ctx, sessionID)
	if err != nil || !found {
		return nil, false, err
	}
	var session models.WhatsAppSession
	if err := json.Unmarshal([]byte(value), &session); err != nil {
		return nil, false, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	if session.SessionID == "" {
		session.SessionID = sessionID
	}
	return &session, true, nil
}

// CleanupInactive deletes sessions idle beyond the threshold and cancels
// their timers. Returns the number of sessions removed.
func (s *SessionStore) CleanupInactive(ctx context.Context, daysThreshold int) (int, error) {
	if daysThreshold <= 0 {
		daysThreshold = defaultCleanupAfterDays
	}
	cutoff := s.now().AddDate(0, 0, -daysThreshold)

	sessions, err := s.All(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, session := range sessions {
		if session.Metadata.LastActivity.After(cutoff) {
			continue
		}
		if err := s.Delete(ctx, session.SessionID); err != nil {
			s.logger.WithError(err).WithField("session_id", session.SessionID).Warn("Failed to remove inactive session")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.WithFields(logrus.Fields{
			"removed": removed,
			"days":    daysThreshold,
		}).Info("Inactive sessions cleaned up")
	}
	return removed, nil
}

// armTimer schedules the inactivity summarization for a session, replacing
// any previous timer. Ephemeral sessions are not tracked.
func (s *SessionStore) armTimer(session *models.WhatsAppSession) {
	if session.Ephemeral {
		return
	}
	sessionID := session.SessionID
	s.timers.Reset(sessionID, s.inactivityTimeout, func() {
		s.summarize(sessionID)
	})
}

// summarize condenses an idle session's history and stores the result.
// Best effort: failures are logged and the live conversation is unaffected.
func (s *SessionStore) summarize(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	session, found, err := s.Get(ctx, sessionID)
	if err != nil || !found || len(session.ConversationHistory) == 0 {
		return
	}

	var transcript strings.Builder
	for _, msg := range session.ConversationHistory {
		transcript.WriteString(msg.Role)
		transcript.WriteString(": ")
		transcript.WriteString(msg.Content)
		transcript.WriteString("\n")
	}

	summary, err := s.gateway.Summarize(ctx, transcript.String())
	if err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Warn("Session summarization failed")
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"sessionId":    sessionID,
		"summary":      summary,
		"messageCount": len(session.ConversationHistory),
		"timestamp":    s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	if err := s.summaries.Set(ctx, summaryKeyPrefix+sessionID, string(payload)); err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Warn("Failed to store session summary")
		return
	}

	s.logger.WithField("session_id", sessionID).Info("Idle session summarized")
}
