package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klappy/obt-helper-gpt/internal/models"
	"github.com/klappy/obt-helper-gpt/internal/store"
	"github.com/klappy/obt-helper-gpt/internal/tools"
)

func newInferenceFixture(gateway *fakeGateway) (*ToolInference, *models.WhatsAppSession) {
	provider := store.NewMemoryProvider()
	catalog := tools.NewCatalog(provider.Namespace(store.NamespaceTools), testLogger())
	inference := NewToolInference(catalog, gateway, testLogger())
	session := &models.WhatsAppSession{
		SessionID:   "whatsapp_15551234567",
		PhoneNumber: "+15551234567",
		CurrentTool: "math-tutor",
	}
	return inference, session
}

func TestHandleCommandMenu(t *testing.T) {
	inference, session := newInferenceFixture(&fakeGateway{})

	for _, cmd := range []string{"help", "menu", "tools", "hello", "hi", "What can you do?", "show me your CAPABILITIES"} {
		t.Run(cmd, func(t *testing.T) {
			reply, handled := inference.HandleCommand(context.Background(), session, cmd)
			require.True(t, handled)
			assert.Contains(t, reply, "OBT Helper GPT")
			assert.Contains(t, reply, "Creative Writing Assistant")
			assert.Contains(t, reply, "1.")
			// The advertised range matches what digit selection accepts.
			assert.Contains(t, reply, "(1-9)")
		})
	}
}

func TestHandleCommandDigitSelection(t *testing.T) {
	inference, session := newInferenceFixture(&fakeGateway{})

	reply, handled := inference.HandleCommand(context.Background(), session, "1")
	require.True(t, handled)
	assert.Equal(t, "creative-writing", session.CurrentTool)
	assert.Contains(t, reply, "Switched to")
}

func TestHandleCommandNotACommand(t *testing.T) {
	inference, session := newInferenceFixture(&fakeGateway{})

	_, handled := inference.HandleCommand(context.Background(), session, "write me a poem")
	assert.False(t, handled)
	assert.Equal(t, "math-tutor", session.CurrentTool)
}

func TestInactiveToolsExcludedFromInference(t *testing.T) {
	provider := store.NewMemoryProvider()
	catalog := tools.NewCatalog(provider.Namespace(store.NamespaceTools), testLogger())
	ctx := context.Background()

	tool, err := catalog.Get(ctx, "math-tutor")
	require.NoError(t, err)
	tool.IsActive = false
	require.NoError(t, catalog.Upsert(ctx, *tool))

	gateway := &fakeGateway{classifyResponse: "math-tutor"}
	inference := NewToolInference(catalog, gateway, testLogger())
	session := &models.WhatsAppSession{
		SessionID:   "whatsapp_15551234567",
		PhoneNumber: "+15551234567",
		CurrentTool: "creative-writing",
	}

	menu, handled := inference.HandleCommand(ctx, session, "menu")
	require.True(t, handled)
	assert.NotContains(t, menu, "Math Tutor")

	// Digit selection maps over the remaining active tools only.
	reply, handled := inference.HandleCommand(ctx, session, "9")
	require.True(t, handled)
	assert.Contains(t, reply, "Switched to")
	assert.NotEqual(t, "math-tutor", session.CurrentTool)

	// The classifier cannot suggest a deactivated tool.
	session.CurrentTool = "creative-writing"
	_, suggested := inference.Suggest(ctx, session, "solve 2x = 8")
	assert.False(t, suggested)
	assert.Nil(t, session.Switch.Pending)
}

func TestSuggestTransitionsToAwaitingConfirmation(t *testing.T) {
	gateway := &fakeGateway{classifyResponse: "creative-writing"}
	inference, session := newInferenceFixture(gateway)

	prompt, suggested := inference.Suggest(context.Background(), session, "write me a poem about autumn")
	require.True(t, suggested)
	assert.Contains(t, prompt, "Switch tools?")
	require.True(t, session.Switch.AwaitingConfirmation())
	assert.Equal(t, "creative-writing", session.Switch.Pending.To)
	assert.Equal(t, "write me a poem about autumn", session.Switch.Pending.OriginalMessage)
	// The active tool does not change until the user confirms.
	assert.Equal(t, "math-tutor", session.CurrentTool)
}

func TestSuggestNoneKeepsIdle(t *testing.T) {
	for _, response := range []string{"none", "math-tutor", `"none"`, ""} {
		t.Run(fmt.Sprintf("classifier=%q", response), func(t *testing.T) {
			gateway := &fakeGateway{classifyResponse: response}
			inference, session := newInferenceFixture(gateway)

			_, suggested := inference.Suggest(context.Background(), session, "what is 2+2")
			assert.False(t, suggested)
			assert.False(t, session.Switch.AwaitingConfirmation())
		})
	}
}

func TestSuggestUnknownToolIgnored(t *testing.T) {
	gateway := &fakeGateway{classifyResponse: "nonexistent-tool"}
	inference, session := newInferenceFixture(gateway)

	_, suggested := inference.Suggest(context.Background(), session, "hello world")
	assert.False(t, suggested)
	assert.False(t, session.Switch.AwaitingConfirmation())
}

func TestSuggestClassifierFailureKeepsIdle(t *testing.T) {
	gateway := &fakeGateway{classifyErr: fmt.Errorf("api down")}
	inference, session := newInferenceFixture(gateway)

	_, suggested := inference.Suggest(context.Background(), session, "write me a poem")
	assert.False(t, suggested)
	assert.False(t, session.Switch.AwaitingConfirmation())
}

func TestResolveConfirmationYes(t *testing.T) {
	inference, session := newInferenceFixture(&fakeGateway{})
	session.Switch.Pending = &models.PendingSwitch{
		To:              "creative-writing",
		OriginalMessage: "write me a poem",
	}

	for _, answer := range []string{"yes", "YES", "y", "yes please"} {
		t.Run(answer, func(t *testing.T) {
			session.CurrentTool = "math-tutor"
			session.Switch.Pending = &models.PendingSwitch{
				To:              "creative-writing",
				OriginalMessage: "write me a poem",
			}

			resolution := inference.ResolveConfirmation(session, answer)
			assert.Equal(t, SwitchConfirmed, resolution.Verdict)
			assert.Equal(t, "write me a poem", resolution.OriginalMessage)
			assert.Equal(t, "creative-writing", session.CurrentTool)
			assert.False(t, session.Switch.AwaitingConfirmation())
		})
	}
}

func TestResolveConfirmationNo(t *testing.T) {
	inference, session := newInferenceFixture(&fakeGateway{})

	for _, answer := range []string{"no", "NO", "n", "no thanks"} {
		t.Run(answer, func(t *testing.T) {
			session.CurrentTool = "math-tutor"
			session.Switch.Pending = &models.PendingSwitch{
				To:              "creative-writing",
				OriginalMessage: "write me a poem",
			}

			resolution := inference.ResolveConfirmation(session, answer)
			assert.Equal(t, SwitchDeclined, resolution.Verdict)
			assert.Contains(t, resolution.Reply, "Staying with math-tutor")
			assert.Equal(t, "math-tutor", session.CurrentTool)
			assert.False(t, session.Switch.AwaitingConfirmation())
		})
	}
}

func TestResolveConfirmationUnclearStaysPending(t *testing.T) {
	inference, session := newInferenceFixture(&fakeGateway{})
	session.Switch.Pending = &models.PendingSwitch{
		To:              "creative-writing",
		OriginalMessage: "write me a poem",
	}

	resolution := inference.ResolveConfirmation(session, "maybe later")
	assert.Equal(t, SwitchUnclear, resolution.Verdict)
	assert.Contains(t, resolution.Reply, "YES")
	assert.Contains(t, resolution.Reply, "NO")
	assert.True(t, session.Switch.AwaitingConfirmation())
	assert.Equal(t, "math-tutor", session.CurrentTool)
}
