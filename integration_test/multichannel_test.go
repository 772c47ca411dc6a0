package integration_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klappy/obt-helper-gpt/internal/service"
	"github.com/klappy/obt-helper-gpt/internal/tools"
	"github.com/klappy/obt-helper-gpt/pkg/llm"
)

const (
	testPhone      = "+15551234567"
	testWebSession = "web-session-1"
)

func TestWebToWhatsAppMirroring(t *testing.T) {
	env := NewTestEnvironment(t)
	ctx := context.Background()
	env.Link(t, testPhone, testWebSession)

	env.Gateway.ChatContent = "Here is a short poem."
	resp, err := env.Chat.Chat(ctx, service.ChatRequest{
		Messages:  []llm.Message{{Role: "user", Content: "Write me a poem"}},
		ToolID:    tools.DefaultToolID,
		SessionID: testWebSession,
	})
	require.NoError(t, err)
	assert.True(t, resp.Mirrored)
	assert.Equal(t, "Here is a short poem.", resp.Content)

	// The phone sees the user's web message as an echo, then the answer.
	sent := env.Sender.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, testPhone, sent[0].To)
	assert.Equal(t, "[From Web] Write me a poem", sent[0].Body)
	assert.Equal(t, "Here is a short poem.", sent[1].Body)
}

func TestWebChatWithoutLinkIsNotMirrored(t *testing.T) {
	env := NewTestEnvironment(t)
	ctx := context.Background()

	resp, err := env.Chat.Chat(ctx, service.ChatRequest{
		Messages:  []llm.Message{{Role: "user", Content: "hello"}},
		ToolID:    tools.DefaultToolID,
		SessionID: testWebSession,
	})
	require.NoError(t, err)
	assert.False(t, resp.Mirrored)
	assert.Empty(t, env.Sender.Sent())
}

func TestWhatsAppToWebMirroring(t *testing.T) {
	env := NewTestEnvironment(t)
	ctx := context.Background()
	env.Link(t, testPhone, testWebSession)

	env.Gateway.ChatContent = "The capital of France is Paris."
	env.WhatsApp.HandleInbound(ctx, testPhone, "What is the capital of France?")

	exchanges, err := env.Mirror.Poll(ctx, testWebSession)
	require.NoError(t, err)
	require.Len(t, exchanges, 1)
	assert.Equal(t, "What is the capital of France?", exchanges[0].UserMessage)
	assert.Equal(t, "The capital of France is Paris.", exchanges[0].AIResponse)
	assert.Equal(t, "whatsapp", exchanges[0].Source)

	// The poll consumed the records.
	again, err := env.Mirror.Poll(ctx, testWebSession)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestRoundTripAcrossChannels(t *testing.T) {
	env := NewTestEnvironment(t)
	ctx := context.Background()
	env.Link(t, testPhone, testWebSession)

	// Turn one starts on the phone.
	env.Gateway.ChatContent = "Chapter one begins at sea."
	env.WhatsApp.HandleInbound(ctx, testPhone, "Start a story")

	exchanges, err := env.Mirror.Poll(ctx, testWebSession)
	require.NoError(t, err)
	require.Len(t, exchanges, 1)

	// Turn two continues from the browser and lands back on the phone.
	env.Sender.Clear()
	env.Gateway.ChatContent = "Chapter two: the storm."
	resp, err := env.Chat.Chat(ctx, service.ChatRequest{
		Messages: []llm.Message{
			{Role: "user", Content: "Start a story"},
			{Role: "assistant", Content: "Chapter one begins at sea."},
			{Role: "user", Content: "Continue it"},
		},
		ToolID:    tools.DefaultToolID,
		SessionID: testWebSession,
	})
	require.NoError(t, err)
	assert.True(t, resp.Mirrored)

	sent := env.Sender.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "[From Web] Continue it", sent[0].Body)
	assert.Equal(t, "Chapter two: the storm.", sent[1].Body)
}

func TestUsageAccountedFromBothChannels(t *testing.T) {
	env := NewTestEnvironment(t)
	ctx := context.Background()
	env.Link(t, testPhone, testWebSession)

	env.WhatsApp.HandleInbound(ctx, testPhone, "Tell me something")
	_, err := env.Chat.Chat(ctx, service.ChatRequest{
		Messages:  []llm.Message{{Role: "user", Content: "Tell me more"}},
		ToolID:    tools.DefaultToolID,
		SessionID: testWebSession,
	})
	require.NoError(t, err)

	stats := env.Ledger.Stats(ctx, "", 1)
	assert.Equal(t, 2, stats.Total.Requests)
	assert.Equal(t, 1, stats.BySource["whatsapp"].Requests)
	assert.Equal(t, 1, stats.BySource["web"].Requests)
}

func TestUnlinkStopsMirroring(t *testing.T) {
	env := NewTestEnvironment(t)
	ctx := context.Background()
	env.Link(t, testPhone, testWebSession)

	link := env.Linking.LinkForWebSession(ctx, testWebSession)
	require.NotNil(t, link)
	env.Linking.Unlink(ctx, link)

	env.WhatsApp.HandleInbound(ctx, testPhone, "Am I still linked?")

	exchanges, err := env.Mirror.Poll(ctx, testWebSession)
	require.NoError(t, err)
	assert.Empty(t, exchanges)
}
