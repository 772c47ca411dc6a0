package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klappy/obt-helper-gpt/internal/errors"
	"github.com/klappy/obt-helper-gpt/internal/store"
	"github.com/klappy/obt-helper-gpt/internal/tools"
	"github.com/klappy/obt-helper-gpt/internal/usage"
	"github.com/klappy/obt-helper-gpt/pkg/llm"
)

func newChatFixture(gateway *fakeGateway) (*ChatService, *tools.Catalog) {
	provider := store.NewMemoryProvider()
	logger := testLogger()
	sender := &recordingSender{}

	catalog := tools.NewCatalog(provider.Namespace(store.NamespaceTools), logger)
	ledger := usage.NewLedger(provider.Namespace(store.NamespaceUsage), logger)
	governor := NewCostGovernor(ledger, catalog, logger)
	linking := NewLinkingService(provider.Namespace(store.NamespaceLinkCodes), provider.Namespace(store.NamespaceSessions), sender, logger)
	mirror := NewMirrorService(provider.Namespace(store.NamespaceSync), sender, logger)

	return NewChatService(catalog, governor, ledger, linking, mirror, gateway, logger), catalog
}

func TestChatRejectsInactiveTool(t *testing.T) {
	chat, catalog := newChatFixture(&fakeGateway{chatResponse: "x = 4"})
	ctx := context.Background()

	tool, err := catalog.Get(ctx, "math-tutor")
	require.NoError(t, err)
	tool.IsActive = false
	require.NoError(t, catalog.Upsert(ctx, *tool))

	_, err = chat.Chat(ctx, ChatRequest{
		ToolID:   "math-tutor",
		Messages: []llm.Message{{Role: "user", Content: "solve 2x = 8"}},
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

func TestChatActiveToolStillServed(t *testing.T) {
	chat, _ := newChatFixture(&fakeGateway{chatResponse: "Once upon a time..."})

	resp, err := chat.Chat(context.Background(), ChatRequest{
		ToolID:   "creative-writing",
		Messages: []llm.Message{{Role: "user", Content: "Tell me a story"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Once upon a time...", resp.Content)
}
