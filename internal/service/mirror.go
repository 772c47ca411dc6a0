package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/klappy/obt-helper-gpt/internal/models"
	"github.com/klappy/obt-helper-gpt/internal/store"
	"github.com/klappy/obt-helper-gpt/pkg/twilio"
)

const (
	whatsappMirrorUserPrefix = "whatsapp-mirror-user-"
	whatsappMirrorAIPrefix   = "whatsapp-mirror-ai-"
	webMirrorPrefix          = "web-mirror-"

	// Exchanges older than this are skipped and deleted by the poller.
	mirrorFreshnessWindow = 10 * time.Minute
)

// MirrorService relays conversation exchanges between a linked WhatsApp
// session and its web counterpart. WhatsApp-to-web relay is a write-then-poll
// handoff through the sync store; web-to-WhatsApp relay is an immediate push
// over Twilio.
type MirrorService struct {
	sync   store.Store
	sender twilio.Sender
	logger *logrus.Logger
	now    func() time.Time
}

func NewMirrorService(sync store.Store, sender twilio.Sender, logger *logrus.Logger) *MirrorService {
	return &MirrorService{
		sync:   sync,
		sender: sender,
		logger: logger,
		now:    time.Now,
	}
}

// MirrorToWeb records one WhatsApp exchange for the web poller. The exchange
// is split into a user record at the base timestamp and an ai record one
// millisecond later so the poller can reassemble ordered pairs. Failures are
// logged and swallowed; mirroring never blocks the WhatsApp reply.
func (m *MirrorService) MirrorToWeb(ctx context.Context, link *models.SessionLink, userMessage, aiResponse, toolID string) {
	ts := m.now().UnixMilli()

	userRecord := models.SyncMessage{
		Direction:    models.SyncWhatsAppToWeb,
		WebSessionID: link.WebSessionID,
		UserMessage:  userMessage,
		Tool:         toolID,
		Timestamp:    ts,
		PhoneNumber:  link.PhoneNumber,
		MessageType:  models.SyncTypeUser,
	}
	aiRecord := models.SyncMessage{
		Direction:    models.SyncWhatsAppToWeb,
		WebSessionID: link.WebSessionID,
		AIResponse:   aiResponse,
		Tool:         toolID,
		Timestamp:    ts + 1,
		PhoneNumber:  link.PhoneNumber,
		MessageType:  models.SyncTypeAI,
	}

	m.put(ctx, fmt.Sprintf("%s%d", whatsappMirrorUserPrefix, ts), userRecord)
	m.put(ctx, fmt.Sprintf("%s%d", whatsappMirrorAIPrefix, ts+1), aiRecord)
}

// MirrorToWhatsApp pushes a web exchange to the linked phone. The user's
// message goes out prefixed so the phone transcript shows both halves, then
// the AI reply follows. A web-mirror audit record is written for diagnostics.
func (m *MirrorService) MirrorToWhatsApp(ctx context.Context, link *models.SessionLink, userMessage, aiResponse, toolID string) {
	if err := m.sender.SendMessage(link.PhoneNumber, "[From Web] "+userMessage); err != nil {
		m.logger.WithError(err).Warn("Failed to mirror user message to WhatsApp")
		return
	}
	if err := m.sender.SendMessage(link.PhoneNumber, aiResponse); err != nil {
		m.logger.WithError(err).Warn("Failed to mirror AI response to WhatsApp")
	}

	ts := m.now().UnixMilli()
	m.put(ctx, fmt.Sprintf("%s%d", webMirrorPrefix, ts), models.SyncMessage{
		Direction:    models.SyncWebToWhatsApp,
		WebSessionID: link.WebSessionID,
		UserMessage:  userMessage,
		AIResponse:   aiResponse,
		Tool:         toolID,
		Timestamp:    ts,
		PhoneNumber:  link.PhoneNumber,
		MessageType:  models.SyncTypeLegacy,
	})
}

// Poll drains fresh, complete WhatsApp exchanges destined for the given web
// session. Records are grouped by base timestamp; a group is returned only
// when both halves are present, otherwise it stays in the store for the next
// poll. A legacy record holding both halves is emitted on its own. Stale and
// consumed records are deleted.
func (m *MirrorService) Poll(ctx context.Context, webSessionID string) ([]models.SyncedExchange, error) {
	userKeys, err := m.sync.List(ctx, whatsappMirrorUserPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list mirror records: %w", err)
	}
	aiKeys, err := m.sync.List(ctx, whatsappMirrorAIPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list mirror records: %w", err)
	}

	type group struct {
		user *models.SyncMessage
		ai   *models.SyncMessage
		keys []string
	}
	groups := make(map[int64]*group)
	cutoff := m.now().Add(-mirrorFreshnessWindow).UnixMilli()

	for _, key := range append(userKeys, aiKeys...) {
		value, found, err := m.sync.Get(ctx, key)
		if err != nil || !found {
			continue
		}
		var msg models.SyncMessage
		if err := json.Unmarshal([]byte(value), &msg); err != nil {
			m.logger.WithField("key", key).Warn("Dropping undecodable mirror record")
			m.del(ctx, key)
			continue
		}
		if msg.WebSessionID != webSessionID {
			continue
		}
		if msg.Timestamp < cutoff {
			m.del(ctx, key)
			continue
		}

		// The ai half sits one millisecond after the exchange base.
		base := msg.Timestamp
		if msg.MessageType == models.SyncTypeAI {
			base--
		}
		g := groups[base]
		if g == nil {
			g = &group{}
			groups[base] = g
		}
		copied := msg
		switch msg.MessageType {
		case models.SyncTypeAI:
			g.ai = &copied
		case models.SyncTypeLegacy:
			// Pre-split records carry the whole exchange in one row and
			// need no pairing.
			g.user = &copied
			g.ai = &copied
		default:
			g.user = &copied
		}
		g.keys = append(g.keys, key)
	}

	var exchanges []models.SyncedExchange
	for base, g := range groups {
		if g.user == nil || g.ai == nil {
			// Incomplete pair, the other half may still be in flight.
			continue
		}
		exchanges = append(exchanges, models.SyncedExchange{
			UserMessage: g.user.UserMessage,
			AIResponse:  g.ai.AIResponse,
			Tool:        g.user.Tool,
			Timestamp:   base,
			Source:      "whatsapp",
		})
		for _, key := range g.keys {
			m.del(ctx, key)
		}
	}

	sort.Slice(exchanges, func(i, j int) bool {
		return exchanges[i].Timestamp < exchanges[j].Timestamp
	})
	return exchanges, nil
}

// SweepStale removes mirror records past the freshness window regardless of
// session. It backs the daily cleanup job so abandoned links do not leak
// records forever.
func (m *MirrorService) SweepStale(ctx context.Context) int {
	removed := 0
	cutoff := m.now().Add(-mirrorFreshnessWindow).UnixMilli()
	for _, prefix := range []string{whatsappMirrorUserPrefix, whatsappMirrorAIPrefix, webMirrorPrefix} {
		keys, err := m.sync.List(ctx, prefix)
		if err != nil {
			m.logger.WithError(err).Warn("Failed to list mirror records for cleanup")
			continue
		}
		for _, key := range keys {
			ts, ok := timestampFromKey(key, prefix)
			if !ok || ts >= cutoff {
				continue
			}
			m.del(ctx, key)
			removed++
		}
	}
	return removed
}

func (m *MirrorService) put(ctx context.Context, key string, msg models.SyncMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		m.logger.WithError(err).Warn("Failed to encode mirror record")
		return
	}
	if err := m.sync.Set(ctx, key, string(payload)); err != nil {
		m.logger.WithError(err).WithField("key", key).Warn("Failed to store mirror record")
	}
}

func (m *MirrorService) del(ctx context.Context, key string) {
	if err := m.sync.Delete(ctx, key); err != nil {
		m.logger.WithError(err).WithField("key", key).Warn("Failed to delete mirror record")
	}
}

func timestampFromKey(key, prefix string) (int64, bool) {
	ts, err := strconv.ParseInt(strings.TrimPrefix(key, prefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}
