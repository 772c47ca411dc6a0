package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klappy/obt-helper-gpt/internal/models"
	"github.com/klappy/obt-helper-gpt/internal/service"
	"github.com/klappy/obt-helper-gpt/internal/store"
	"github.com/klappy/obt-helper-gpt/internal/tools"
	"github.com/klappy/obt-helper-gpt/internal/usage"
	"github.com/klappy/obt-helper-gpt/pkg/llm"
	"github.com/klappy/obt-helper-gpt/pkg/twilio"
)

type stubGateway struct {
	content string
	err     error
}

func (g *stubGateway) Chat(_ context.Context, _ []llm.Message, opts llm.Options) (*llm.Response, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &llm.Response{Content: g.content, Model: opts.Model, Usage: llm.Usage{PromptTokens: 5, ResponseTokens: 7}}, nil
}

func (g *stubGateway) Classify(context.Context, string, string) (string, error) {
	return "none", nil
}

func (g *stubGateway) Summarize(context.Context, string) (string, error) {
	return "summary", nil
}

func newTestServer(t *testing.T, gateway llm.Client) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	provider := store.NewMemoryProvider()
	sender := twilio.NewNoopSender(logger)

	catalog := tools.NewCatalog(provider.Namespace(store.NamespaceTools), logger)
	ledger := usage.NewLedger(provider.Namespace(store.NamespaceUsage), logger)
	governor := service.NewCostGovernor(ledger, catalog, logger)
	sessions := service.NewSessionStore(
		provider.Namespace(store.NamespaceSessions),
		provider.Namespace(store.NamespaceSummaries),
		gateway,
		models.SessionConfig{},
		logger,
	)
	linking := service.NewLinkingService(provider.Namespace(store.NamespaceLinkCodes), provider.Namespace(store.NamespaceSessions), sender, logger)
	mirror := service.NewMirrorService(provider.Namespace(store.NamespaceSync), sender, logger)
	inference := service.NewToolInference(catalog, gateway, logger)
	whatsapp := service.NewWhatsAppService(sessions, catalog, inference, governor, ledger, linking, mirror, gateway, sender, logger)
	chat := service.NewChatService(catalog, governor, ledger, linking, mirror, gateway, logger)

	cfg := &models.Config{}
	cfg.Server.Port = "0"
	cfg.Server.AdminPassword = "test-admin"

	return NewServer(cfg, whatsapp, chat, linking, mirror, sessions, catalog, ledger, logger)
}

func postForm(server *Server, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)
	return rec
}

func postJSON(server *Server, path string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for key, values := range header {
		req.Header[key] = values
	}
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)
	return rec
}

func get(server *Server, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for key, values := range header {
		req.Header[key] = values
	}
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, &stubGateway{content: "hi"})

	rec := get(server, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestWebhookAlwaysAcknowledges(t *testing.T) {
	server := newTestServer(t, &stubGateway{content: "hi"})

	// Complete delivery.
	rec := postForm(server, "/webhook/whatsapp", url.Values{
		"From": {"+15551234567"},
		"Body": {"hello"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	// Missing fields still acknowledge so the provider never retries.
	rec = postForm(server, "/webhook/whatsapp", url.Values{"From": {"+15551234567"}})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postForm(server, "/webhook/whatsapp", url.Values{})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookRateLimitStillAcknowledges(t *testing.T) {
	server := newTestServer(t, &stubGateway{content: "hi"})

	for i := 0; i < 15; i++ {
		rec := postForm(server, "/webhook/whatsapp", url.Values{
			"From": {"+15551234567"},
			"Body": {"hello"},
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestChatEndpoint(t *testing.T) {
	server := newTestServer(t, &stubGateway{content: "Once upon a time..."})

	rec := postJSON(server, "/api/chat", service.ChatRequest{
		Messages:  []llm.Message{{Role: "user", Content: "Tell me a story"}},
		ToolID:    tools.DefaultToolID,
		SessionID: "web-1",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp service.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Once upon a time...", resp.Content)
	assert.NotEmpty(t, resp.Model)
}

func TestChatEndpointValidation(t *testing.T) {
	server := newTestServer(t, &stubGateway{content: "hi"})

	rec := postJSON(server, "/api/chat", service.ChatRequest{ToolID: tools.DefaultToolID}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(server, "/api/chat", service.ChatRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatEndpointUnknownTool(t *testing.T) {
	server := newTestServer(t, &stubGateway{content: "hi"})

	rec := postJSON(server, "/api/chat", service.ChatRequest{
		Messages:  []llm.Message{{Role: "user", Content: "hi"}},
		ToolID:    "no-such-tool",
		SessionID: "web-1",
	}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatEndpointRateLimited(t *testing.T) {
	server := newTestServer(t, &stubGateway{content: "hi"})

	var rec *httptest.ResponseRecorder
	for i := 0; i < 21; i++ {
		rec = postJSON(server, "/api/chat", service.ChatRequest{
			Messages:  []llm.Message{{Role: "user", Content: "hi"}},
			ToolID:    tools.DefaultToolID,
			SessionID: "web-1",
		}, nil)
	}
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestListToolsIsPublic(t *testing.T) {
	server := newTestServer(t, &stubGateway{content: "hi"})

	rec := get(server, "/api/tools", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var all []models.Tool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 10)
}

func TestAdminEndpointsRequirePassword(t *testing.T) {
	server := newTestServer(t, &stubGateway{content: "hi"})

	rec := get(server, "/api/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(server, "/api/sessions", http.Header{"X-Admin-Password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(server, "/api/sessions", http.Header{"X-Admin-Password": {"test-admin"}})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Bearer token form is accepted too.
	rec = get(server, "/api/sessions", http.Header{"Authorization": {"Bearer test-admin"}})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminDisabledWithoutPassword(t *testing.T) {
	server := newTestServer(t, &stubGateway{content: "hi"})
	server.adminPassword = ""

	rec := get(server, "/api/sessions", http.Header{"X-Admin-Password": {""}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestToolCRUDViaAdmin(t *testing.T) {
	server := newTestServer(t, &stubGateway{content: "hi"})
	adminHeader := http.Header{"X-Admin-Password": {"test-admin"}}

	rec := postJSON(server, "/api/tools", models.Tool{
		ID:       "test-tool",
		Name:     "Test Tool",
		Model:    "gpt-4o-mini",
		IsActive: true,
	}, adminHeader)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(server, "/api/tools", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test-tool")

	req := httptest.NewRequest(http.MethodDelete, "/api/tools/test-tool", nil)
	req.Header = adminHeader.Clone()
	del := httptest.NewRecorder()
	server.router.ServeHTTP(del, req)
	require.Equal(t, http.StatusOK, del.Code)

	rec = get(server, "/api/tools", nil)
	assert.NotContains(t, rec.Body.String(), "test-tool")
}

func TestUpsertToolValidation(t *testing.T) {
	server := newTestServer(t, &stubGateway{content: "hi"})
	adminHeader := http.Header{"X-Admin-Password": {"test-admin"}}

	rec := postJSON(server, "/api/tools", models.Tool{Name: "missing id"}, adminHeader)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLinkRequestValidation(t *testing.T) {
	server := newTestServer(t, &stubGateway{content: "hi"})

	rec := postJSON(server, "/api/link/request", map[string]string{
		"sessionId": "web-1",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(server, "/api/link/request", map[string]string{
		"phoneNumber": "not-a-number",
		"sessionId":   "web-1",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLinkVerifyUnknownCode(t *testing.T) {
	server := newTestServer(t, &stubGateway{content: "hi"})

	rec := postJSON(server, "/api/link/verify", map[string]string{
		"phoneNumber": "+15551234567",
		"code":        "123456",
		"sessionId":   "web-1",
	}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncPollRequiresSessionID(t *testing.T) {
	server := newTestServer(t, &stubGateway{content: "hi"})

	rec := get(server, "/api/sync/messages", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(server, "/api/sync/messages?sessionId=web-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []models.SyncedExchange `json:"messages"`
		Count    int                     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp.Count)
	assert.NotNil(t, resp.Messages)
}

func TestUsageStatsClampsDays(t *testing.T) {
	server := newTestServer(t, &stubGateway{content: "hi"})

	rec := get(server, "/api/usage/stats?days=500", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Days int `json:"days"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 90, resp.Days)
}

func TestMetricsRequiresAdmin(t *testing.T) {
	server := newTestServer(t, &stubGateway{content: "hi"})

	rec := get(server, "/metrics", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(server, "/metrics", http.Header{"X-Admin-Password": {"test-admin"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestCORSPreflight(t *testing.T) {
	server := newTestServer(t, &stubGateway{content: "hi"})

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
