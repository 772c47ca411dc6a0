package integration_test

import (
	"context"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/klappy/obt-helper-gpt/internal/models"
	"github.com/klappy/obt-helper-gpt/internal/service"
	"github.com/klappy/obt-helper-gpt/internal/store"
	"github.com/klappy/obt-helper-gpt/internal/tools"
	"github.com/klappy/obt-helper-gpt/internal/usage"
	"github.com/klappy/obt-helper-gpt/pkg/llm"
)

// TestEnvironment wires the full service graph over the in-memory backend
// with a scripted LLM and a capturing transport.
type TestEnvironment struct {
	Chat     *service.ChatService
	WhatsApp *service.WhatsAppService
	Linking  *service.LinkingService
	Mirror   *service.MirrorService
	Sessions *service.SessionStore
	Catalog  *tools.Catalog
	Ledger   *usage.Ledger
	Gateway  *ScriptedGateway
	Sender   *CapturingSender
}

func NewTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	provider := store.NewMemoryProvider()
	gateway := &ScriptedGateway{ChatContent: "scripted answer", ClassifyAnswer: "none"}
	sender := &CapturingSender{}

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

	return &TestEnvironment{
		Chat:     service.NewChatService(catalog, governor, ledger, linking, mirror, gateway, logger),
		WhatsApp: service.NewWhatsAppService(sessions, catalog, inference, governor, ledger, linking, mirror, gateway, sender, logger),
		Linking:  linking,
		Mirror:   mirror,
		Sessions: sessions,
		Catalog:  catalog,
		Ledger:   ledger,
		Gateway:  gateway,
		Sender:   sender,
	}
}

// Link establishes a verified web-to-WhatsApp link and returns once both
// directions resolve.
func (env *TestEnvironment) Link(t *testing.T, phoneNumber, webSessionID string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, env.Linking.RequestLink(ctx, phoneNumber, webSessionID, tools.DefaultToolID))

	messages := env.Sender.Sent()
	require.NotEmpty(t, messages)
	code := sixDigitCode(t, messages[len(messages)-1].Body)

	_, err := env.Linking.Verify(ctx, phoneNumber, code, webSessionID)
	require.NoError(t, err)
	env.Sender.Clear()
}

func sixDigitCode(t *testing.T, body string) string {
	t.Helper()
	for i := 0; i+6 <= len(body); i++ {
		digits := true
		for _, c := range body[i : i+6] {
			if c < '0' || c > '9' {
				digits = false
				break
			}
		}
		if digits {
			return body[i : i+6]
		}
	}
	t.Fatalf("no verification code in message: %s", body)
	return ""
}

// ScriptedGateway returns canned LLM responses.
type ScriptedGateway struct {
	ChatContent    string
	ClassifyAnswer string
}

func (g *ScriptedGateway) Chat(_ context.Context, _ []llm.Message, opts llm.Options) (*llm.Response, error) {
	return &llm.Response{
		Content: g.ChatContent,
		Model:   opts.Model,
		Usage:   llm.Usage{PromptTokens: 8, ResponseTokens: 16},
	}, nil
}

func (g *ScriptedGateway) Classify(context.Context, string, string) (string, error) {
	return g.ClassifyAnswer, nil
}

func (g *ScriptedGateway) Summarize(context.Context, string) (string, error) {
	return "scripted summary", nil
}

// CapturingSender records outbound WhatsApp messages.
type CapturingSender struct {
	mu       sync.Mutex
	messages []OutboundMessage
}

type OutboundMessage struct {
	To   string
	Body string
}

func (s *CapturingSender) SendMessage(to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, OutboundMessage{To: to, Body: body})
	return nil
}

func (s *CapturingSender) Sent() []OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OutboundMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *CapturingSender) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}
