package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	apperrors "github.com/klappy/obt-helper-gpt/internal/errors"
	"github.com/klappy/obt-helper-gpt/internal/httputil"
	"github.com/klappy/obt-helper-gpt/internal/metrics"
	"github.com/klappy/obt-helper-gpt/internal/middleware"
	"github.com/klappy/obt-helper-gpt/internal/models"
	"github.com/klappy/obt-helper-gpt/internal/service"
	"github.com/klappy/obt-helper-gpt/internal/tools"
	"github.com/klappy/obt-helper-gpt/internal/tracing"
	"github.com/klappy/obt-helper-gpt/internal/usage"
)

type Server struct {
	router        *mux.Router
	logger        *logrus.Logger
	cfg           *models.Config
	whatsapp      *service.WhatsAppService
	chat          *service.ChatService
	linking       *service.LinkingService
	mirror        *service.MirrorService
	sessions      *service.SessionStore
	catalog       *tools.Catalog
	ledger        *usage.Ledger
	server        *http.Server
	chatLimiter   *RateLimiter
	waLimiter     *RateLimiter
	linkLimiter   *RateLimiter
	adminPassword string
}

func NewServer(
	cfg *models.Config,
	whatsapp *service.WhatsAppService,
	chat *service.ChatService,
	linking *service.LinkingService,
	mirror *service.MirrorService,
	sessions *service.SessionStore,
	catalog *tools.Catalog,
	ledger *usage.Ledger,
	logger *logrus.Logger,
) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		logger:        logger,
		cfg:           cfg,
		whatsapp:      whatsapp,
		chat:          chat,
		linking:       linking,
		mirror:        mirror,
		sessions:      sessions,
		catalog:       catalog,
		ledger:        ledger,
		chatLimiter:   NewRateLimiter(time.Minute, 20),
		waLimiter:     NewRateLimiter(time.Minute, 10),
		linkLimiter:   NewRateLimiter(5*time.Minute, 5),
		adminPassword: cfg.Server.AdminPassword,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Observability(s.logger))
	s.router.Use(middleware.CORS)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)

	// WhatsApp webhook
	webhook := s.router.PathPrefix("/webhook/whatsapp").Subrouter()
	webhook.HandleFunc("", s.handleWhatsAppWebhook()).Methods(http.MethodPost)

	// Public chat and linking API
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/chat", s.handleChat()).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/link/request", s.handleLinkRequest()).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/link/verify", s.handleLinkVerify()).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sync/messages", s.handleSyncPoll()).Methods(http.MethodGet)
	api.HandleFunc("/usage/stats", s.handleUsageStats()).Methods(http.MethodGet)
	api.HandleFunc("/tools", s.handleListTools()).Methods(http.MethodGet)

	// Admin API
	admin := s.router.PathPrefix("/api").Subrouter()
	admin.Use(s.requireAdmin)
	admin.HandleFunc("/tools", s.handleUpsertTool()).Methods(http.MethodPost, http.MethodPut)
	admin.HandleFunc("/tools/reset", s.handleResetTools()).Methods(http.MethodPost)
	admin.HandleFunc("/tools/{id}", s.handleDeleteTool()).Methods(http.MethodDelete)
	admin.HandleFunc("/sessions", s.handleListSessions()).Methods(http.MethodGet)
	admin.HandleFunc("/sessions/{id}", s.handleGetSession()).Methods(http.MethodGet)
	admin.HandleFunc("/sessions/{id}", s.handleDeleteSession()).Methods(http.MethodDelete)
	s.router.Handle("/metrics", s.requireAdmin(s.handleMetrics())).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Infof("Starting server on port %s", s.cfg.Server.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// requireAdmin guards admin-only endpoints with the shared password, accepted
// either as a bearer token or the X-Admin-Password header.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminPassword == "" {
			writeJSONError(w, http.StatusUnauthorized, "admin access is not configured")
			return
		}
		provided := r.Header.Get("X-Admin-Password")
		if provided == "" {
			provided = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if provided != s.adminPassword {
			writeJSONError(w, http.StatusUnauthorized, "invalid admin credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

// handleWhatsAppWebhook accepts the transport's form-encoded delivery. It
// always acknowledges with 200 so the provider never retries; all failures
// surface to the end user as apology text, not as HTTP errors.
func (s *Server) handleWhatsAppWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ack := func() {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		}

		if err := r.ParseForm(); err != nil {
			s.logger.WithError(err).Warn("Unparseable webhook payload")
			ack()
			return
		}

		from := r.FormValue("From")
		body := r.FormValue("Body")
		if from == "" || body == "" {
			s.logger.Warn("Webhook missing From or Body")
			ack()
			return
		}

		if result := s.waLimiter.IsAllowed(from); !result.Allowed {
			s.logger.WithField("from", from).Warn("WhatsApp rate limit exceeded")
			ack()
			return
		}

		metrics.IncrementCounter("whatsapp_messages_total", nil, "Inbound WhatsApp messages")
		s.whatsapp.HandleInbound(r.Context(), from, body)
		ack()
	}
}

func (s *Server) handleChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.Messages) == 0 || req.ToolID == "" {
			writeJSONError(w, http.StatusBadRequest, "missing required fields (messages, tool)")
			return
		}

		clientID := req.SessionID
		if clientID == "" {
			clientID = httputil.GetClientIP(r)
		}
		result := s.chatLimiter.IsAllowed(clientID)
		if !result.Allowed {
			writeRateLimited(w, result)
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

		resp, err := s.chat.Chat(r.Context(), req)
		if err != nil {
			s.writeChatError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case apperrors.HasCode(err, apperrors.ErrCodeCostCeiling):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "This tool is unavailable today. Its daily usage limit has been reached.",
		})
	case apperrors.HasCode(err, apperrors.ErrCodeNotFound):
		writeJSONError(w, http.StatusNotFound, "Tool not found")
	default:
		s.logger.WithError(err).WithField("trace_id", tracing.GetTraceID(r.Context())).Error("Chat request failed")
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) handleLinkRequest() http.HandlerFunc {
	type request struct {
		PhoneNumber string `json:"phoneNumber"`
		SessionID   string `json:"sessionId"`
		ToolID      string `json:"toolId"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.PhoneNumber == "" || req.SessionID == "" {
			writeJSONError(w, http.StatusBadRequest, "missing required fields (phoneNumber, sessionId)")
			return
		}

		if result := s.linkLimiter.IsAllowed(httputil.GetClientIP(r)); !result.Allowed {
			writeRateLimited(w, result)
			return
		}

		if err := s.linking.RequestLink(r.Context(), req.PhoneNumber, req.SessionID, req.ToolID); err != nil {
			if apperrors.HasCode(err, apperrors.ErrCodeValidationFailed) {
				writeJSONError(w, http.StatusBadRequest, apperrors.GetUserMessage(err))
				return
			}
			s.logger.WithError(err).Error("Link request failed")
			writeJSONError(w, http.StatusInternalServerError, "Failed to send verification code")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func (s *Server) handleLinkVerify() http.HandlerFunc {
	type request struct {
		PhoneNumber string `json:"phoneNumber"`
		Code        string `json:"code"`
		SessionID   string `json:"sessionId"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.PhoneNumber == "" || req.Code == "" || req.SessionID == "" {
			writeJSONError(w, http.StatusBadRequest, "missing required fields (phoneNumber, code, sessionId)")
			return
		}

		if result := s.linkLimiter.IsAllowed(httputil.GetClientIP(r)); !result.Allowed {
			writeRateLimited(w, result)
			return
		}

		link, err := s.linking.Verify(r.Context(), req.PhoneNumber, req.Code, req.SessionID)
		if err != nil {
			switch {
			case apperrors.HasCode(err, apperrors.ErrCodeLinkCodeNotFound):
				writeJSONError(w, http.StatusNotFound, apperrors.GetUserMessage(err))
			case apperrors.HasCode(err, apperrors.ErrCodeLinkCodeExpired):
				writeJSONError(w, http.StatusGone, apperrors.GetUserMessage(err))
			case apperrors.HasCode(err, apperrors.ErrCodeLinkCodeMismatch):
				writeJSONError(w, http.StatusBadRequest, apperrors.GetUserMessage(err))
			default:
				s.logger.WithError(err).Error("Link verification failed")
				writeJSONError(w, http.StatusInternalServerError, "Verification failed")
			}
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":         true,
			"linkedSessionId": link.WhatsAppSessionID,
			"phoneNumber":     link.PhoneNumber,
		})
	}
}

func (s *Server) handleSyncPoll() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("sessionId")
		if sessionID == "" {
			writeJSONError(w, http.StatusBadRequest, "sessionId query parameter is required")
			return
		}

		messages, err := s.mirror.Poll(r.Context(), sessionID)
		if err != nil {
			s.logger.WithError(err).Error("Sync poll failed")
			writeJSONError(w, http.StatusInternalServerError, "Failed to fetch messages")
			return
		}
		if messages == nil {
			messages = []models.SyncedExchange{}
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"messages": messages,
			"count":    len(messages),
		})
	}
}

func (s *Server) handleUsageStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		toolID := r.URL.Query().Get("toolId")
		days := 7
		if raw := r.URL.Query().Get("days"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil {
				days = parsed
			}
		}
		if days < 1 {
			days = 1
		}
		if days > 90 {
			days = 90
		}

		stats := s.ledger.Stats(r.Context(), toolID, days)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"stats":     stats,
			"toolId":    toolID,
			"days":      days,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func (s *Server) handleListTools() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := s.catalog.All(r.Context())
		if err != nil {
			s.logger.WithError(err).Error("Failed to load tool catalog")
			writeJSONError(w, http.StatusInternalServerError, "Failed to load tools")
			return
		}
		writeJSON(w, http.StatusOK, all)
	}
}

func (s *Server) handleUpsertTool() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var tool models.Tool
		if err := json.NewDecoder(r.Body).Decode(&tool); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := s.catalog.Upsert(r.Context(), tool); err != nil {
			if apperrors.HasCode(err, apperrors.ErrCodeValidationFailed) {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
			s.logger.WithError(err).Error("Tool upsert failed")
			writeJSONError(w, http.StatusInternalServerError, "Failed to save tool")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func (s *Server) handleResetTools() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.catalog.Reset(r.Context()); err != nil {
			s.logger.WithError(err).Error("Tool reset failed")
			writeJSONError(w, http.StatusInternalServerError, "Failed to reset tools")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func (s *Server) handleDeleteTool() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := s.catalog.Delete(r.Context(), id); err != nil {
			s.logger.WithError(err).Error("Tool delete failed")
			writeJSONError(w, http.StatusInternalServerError, "Failed to delete tool")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// sessionView is the admin-facing session shape with derived fields.
type sessionView struct {
	models.WhatsAppSession
	IsExpired bool   `json:"isExpired"`
	Duration  string `json:"duration"`
}

func toSessionView(session models.WhatsAppSession) sessionView {
	idle := time.Since(session.Metadata.LastActivity)
	duration := session.Metadata.LastActivity.Sub(session.Metadata.StartTime)
	return sessionView{
		WhatsAppSession: session,
		IsExpired:       idle > 24*time.Hour,
		Duration:        formatDuration(duration),
	}
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

func (s *Server) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := s.sessions.All(r.Context())
		if err != nil {
			s.logger.WithError(err).Error("Failed to list sessions")
			writeJSONError(w, http.StatusInternalServerError, "Failed to list sessions")
			return
		}

		views := make([]sessionView, 0, len(sessions))
		active := 0
		for _, session := range sessions {
			view := toSessionView(session)
			if !view.IsExpired {
				active++
			}
			views = append(views, view)
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"sessions": views,
			"stats": map[string]int{
				"total":   len(views),
				"active":  active,
				"expired": len(views) - active,
			},
		})
	}
}

func (s *Server) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		session, found, err := s.sessions.Get(r.Context(), id)
		if err != nil {
			s.logger.WithError(err).Error("Failed to load session")
			writeJSONError(w, http.StatusInternalServerError, "Failed to load session")
			return
		}
		if !found {
			writeJSONError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeJSON(w, http.StatusOK, toSessionView(*session))
	}
}

// handleDeleteSession removes the session and, if present, both views of its
// web link so a dangling link cannot mirror into a dead session.
func (s *Server) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		if link := s.linking.LinkForWhatsAppSession(r.Context(), id); link != nil {
			s.linking.Unlink(r.Context(), link)
		}

		if err := s.sessions.Delete(r.Context(), id); err != nil {
			s.logger.WithError(err).Error("Failed to delete session")
			writeJSONError(w, http.StatusInternalServerError, "Failed to delete session")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(metrics.GetAllMetrics()); err != nil {
			s.logger.WithError(err).Error("Failed to encode metrics response")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeRateLimited(w http.ResponseWriter, result RateLimitResult) {
	retryAfter := int((result.ResetTime - time.Now().UnixMilli()) / 1000)
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("X-RateLimit-Remaining", "0")
	writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
		"error":      "Rate limit exceeded",
		"message":    "Too many requests. Please wait before trying again.",
		"retryAfter": retryAfter,
	})
}
