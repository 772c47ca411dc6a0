package models

// SyncDirection tells which channel produced a sync record.
type SyncDirection string

const (
	SyncWhatsAppToWeb SyncDirection = "whatsapp-to-web"
	SyncWebToWhatsApp SyncDirection = "web-to-whatsapp"
)

// SyncMessageType distinguishes the two halves of a mirrored exchange.
// Legacy records carry both halves in one record.
type SyncMessageType string

const (
	SyncTypeUser   SyncMessageType = "user"
	SyncTypeAI     SyncMessageType = "ai"
	SyncTypeLegacy SyncMessageType = "legacy"
)

// SyncMessage is a transient relay record written by one channel for the
// other channel's poller. A logical exchange is two records sharing a base
// timestamp: the user half at t and the ai half at t+1, so ordering is
// preserved without a sequence counter.
type SyncMessage struct {
	Direction     SyncDirection   `json:"direction"`
	WebSessionID  string          `json:"webSessionId"`
	UserMessage   string          `json:"userMessage,omitempty"`
	AIResponse    string          `json:"aiResponse,omitempty"`
	Tool          string          `json:"tool"`
	Timestamp     int64           `json:"timestamp"`
	PhoneNumber   string          `json:"phoneNumber"`
	MessageType   SyncMessageType `json:"messageType"`
}

// SyncedExchange is one paired user/ai entry returned by the poll endpoint.
type SyncedExchange struct {
	UserMessage string `json:"userMessage"`
	AIResponse  string `json:"aiResponse"`
	Tool        string `json:"tool"`
	Timestamp   int64  `json:"timestamp"`
	Source      string `json:"source"`
}
