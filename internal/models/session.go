package models

import (
	"fmt"
	"strings"
	"time"
)

// HistoryMessage is one turn of a WhatsApp conversation.
type HistoryMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionMetadata tracks session lifecycle timestamps.
type SessionMetadata struct {
	StartTime    time.Time `json:"startTime"`
	LastActivity time.Time `json:"lastActivity"`
	MessageCount int       `json:"messageCount"`
}

// SessionUsage accumulates the tokens and cost spent within one session.
type SessionUsage struct {
	Tokens int     `json:"tokens"`
	Cost   float64 `json:"cost"`
}

// PendingSwitch holds a suggested tool change that is awaiting the user's
// yes/no reply. The original message is deferred until the user confirms.
type PendingSwitch struct {
	To              string    `json:"to"`
	OriginalMessage string    `json:"originalMessage"`
	RequestedAt     time.Time `json:"requestedAt"`
}

// SwitchState is the tool-switch confirmation state machine. A nil Pending
// means Idle; a non-nil Pending means AwaitingConfirmation. The two states
// and their transitions live in service.ToolInference.
type SwitchState struct {
	Pending *PendingSwitch `json:"pending,omitempty"`
}

// AwaitingConfirmation reports whether a switch suggestion is outstanding.
func (s SwitchState) AwaitingConfirmation() bool {
	return s.Pending != nil
}

// WhatsAppSession is the persistent per-phone-number conversational state.
type WhatsAppSession struct {
	SessionID           string           `json:"sessionId"`
	PhoneNumber         string           `json:"phoneNumber"`
	CurrentTool         string           `json:"currentTool"`
	Language            string           `json:"language"`
	ConversationHistory []HistoryMessage `json:"conversationHistory"`
	Metadata            SessionMetadata  `json:"metadata"`
	Usage               SessionUsage     `json:"usage"`
	Switch              SwitchState      `json:"pendingSwitch,omitzero"`
	// Ephemeral is set when storage was unreachable and this session only
	// lives for the current turn. Never persisted.
	Ephemeral bool `json:"-"`
}

// WhatsAppSessionID derives the canonical session id from a phone number,
// keeping digits only: "whatsapp:+1 (555) 123-4567" -> "whatsapp_15551234567".
func WhatsAppSessionID(phoneNumber string) string {
	var b strings.Builder
	for _, r := range phoneNumber {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return fmt.Sprintf("whatsapp_%s", b.String())
}

// RecentHistory returns the trailing window of the conversation used as
// LLM context. The stored history may be longer.
func (s *WhatsAppSession) RecentHistory(max int) []HistoryMessage {
	if len(s.ConversationHistory) <= max {
		return s.ConversationHistory
	}
	return s.ConversationHistory[len(s.ConversationHistory)-max:]
}
