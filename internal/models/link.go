package models

import "time"

// SessionLink pairs a web browser session with a WhatsApp phone number.
// It is stored twice, once per lookup direction, and a link exists only
// when both keys resolve.
type SessionLink struct {
	WebSessionID      string    `json:"webSessionId"`
	WhatsAppSessionID string    `json:"whatsappSessionId"`
	PhoneNumber       string    `json:"phoneNumber"`
	ToolID            string    `json:"toolId"`
	LinkedAt          time.Time `json:"linkedAt"`
	LastSyncAt        time.Time `json:"lastSyncAt"`
}

// WebToWhatsAppKey is the storage key for the web-side link view.
func WebToWhatsAppKey(webSessionID string) string {
	return "web-to-whatsapp-" + webSessionID
}

// WhatsAppToWebKey is the storage key for the WhatsApp-side link view.
func WhatsAppToWebKey(whatsappSessionID string) string {
	return "whatsapp-to-web-" + whatsappSessionID
}

// LinkVerificationCode is the one outstanding 6-digit code per phone number.
// A new request overwrites any previous code.
type LinkVerificationCode struct {
	Code      string `json:"code"`
	SessionID string `json:"sessionId"`
	ToolID    string `json:"toolId"`
	// Expires is epoch milliseconds; codes live for ten minutes.
	Expires int64 `json:"expires"`
}

// Expired reports whether the code is past its TTL.
func (c LinkVerificationCode) Expired(now time.Time) bool {
	return now.UnixMilli() > c.Expires
}
