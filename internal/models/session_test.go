package models

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhatsAppSessionID(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"+15551234567", "whatsapp_15551234567"},
		{"whatsapp:+1 (555) 123-4567", "whatsapp_15551234567"},
		{"15551234567", "whatsapp_15551234567"},
		{"+44 20 7123 4567", "whatsapp_442071234567"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WhatsAppSessionID(tt.input), "input %q", tt.input)
	}
}

func TestRecentHistory(t *testing.T) {
	session := &WhatsAppSession{}
	for i := 0; i < 7; i++ {
		session.ConversationHistory = append(session.ConversationHistory, HistoryMessage{
			Content: fmt.Sprintf("m%d", i),
		})
	}

	recent := session.RecentHistory(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "m4", recent[0].Content)
	assert.Equal(t, "m6", recent[2].Content)

	assert.Len(t, session.RecentHistory(7), 7)
	assert.Len(t, session.RecentHistory(50), 7)
}

func TestSwitchStateAwaitingConfirmation(t *testing.T) {
	var state SwitchState
	assert.False(t, state.AwaitingConfirmation())

	state.Pending = &PendingSwitch{To: "math-tutor", OriginalMessage: "solve 2x = 8"}
	assert.True(t, state.AwaitingConfirmation())
}

func TestSessionSwitchStateSurvivesRoundTrip(t *testing.T) {
	session := WhatsAppSession{
		SessionID: "whatsapp_15551234567",
		Switch: SwitchState{Pending: &PendingSwitch{
			To:              "math-tutor",
			OriginalMessage: "solve 2x = 8",
			RequestedAt:     time.Now().UTC().Truncate(time.Second),
		}},
	}

	payload, err := json.Marshal(session)
	require.NoError(t, err)

	var decoded WhatsAppSession
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.NotNil(t, decoded.Switch.Pending)
	assert.Equal(t, "solve 2x = 8", decoded.Switch.Pending.OriginalMessage)
}

func TestIdleSwitchStateOmittedFromJSON(t *testing.T) {
	payload, err := json.Marshal(WhatsAppSession{SessionID: "whatsapp_1"})
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "pendingSwitch")
}
