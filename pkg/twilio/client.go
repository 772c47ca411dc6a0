// Package twilio sends WhatsApp messages through the Twilio REST API.
// Long replies are chunked under the transport length limit and basic
// markdown is converted to WhatsApp formatting before sending.
package twilio

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// WhatsApp caps message bodies at 1600 characters; stay under it so the
// "(i/n)" chunk prefix always fits.
const maxChunkLength = 1500

// Sender is the outbound messaging transport consumed by the services.
type Sender interface {
	SendMessage(to, body string) error
}

// Config holds Twilio credentials.
type Config struct {
	AccountSID  string
	AuthToken   string
	PhoneNumber string
}

type MessagingClient struct {
	client *twilio.RestClient
	from   string
	logger *logrus.Logger
}

func NewClient(cfg Config, logger *logrus.Logger) (*MessagingClient, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.PhoneNumber == "" {
		return nil, fmt.Errorf("missing Twilio credentials")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &MessagingClient{
		client: client,
		from:   cfg.PhoneNumber,
		logger: logger,
	}, nil
}

// SendMessage delivers body to the given phone number over WhatsApp,
// splitting it into numbered chunks when it exceeds the transport limit.
func (c *MessagingClient) SendMessage(to, body string) error {
	formatted := formatForWhatsApp(body)
	chunks := chunkMessage(formatted, maxChunkLength)

	for i, chunk := range chunks {
		text := chunk
		if len(chunks) > 1 {
			text = fmt.Sprintf("(%d/%d) %s", i+1, len(chunks), chunk)
		}

		params := &twilioApi.CreateMessageParams{}
		params.SetFrom("whatsapp:" + c.from)
		params.SetTo("whatsapp:" + to)
		params.SetBody(text)

		resp, err := c.client.Api.CreateMessage(params)
		if err != nil {
			return fmt.Errorf("failed to send chunk %d/%d: %w", i+1, len(chunks), err)
		}

		sid := ""
		if resp.Sid != nil {
			sid = *resp.Sid
		}
		c.logger.WithFields(logrus.Fields{
			"chunk": fmt.Sprintf("%d/%d", i+1, len(chunks)),
			"sid":   sid,
		}).Debug("WhatsApp message chunk sent")
	}
	return nil
}

// chunkMessage splits a message at word boundaries where possible.
func chunkMessage(message string, maxLength int) []string {
	if len(message) <= maxLength {
		return []string{message}
	}

	var chunks []string
	start := 0
	for start < len(message) {
		end := start + maxLength
		if end >= len(message) {
			end = len(message)
		} else {
			lastSpace := strings.LastIndex(message[:end], " ")
			lastNewline := strings.LastIndex(message[:end], "\n")
			breakPoint := lastSpace
			if lastNewline > breakPoint {
				breakPoint = lastNewline
			}
			if breakPoint > start {
				end = breakPoint
			}
		}
		chunks = append(chunks, strings.TrimSpace(message[start:end]))
		start = end
	}
	return chunks
}

var (
	boldRe   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicRe = regexp.MustCompile(`__(.*?)__`)
	codeRe   = regexp.MustCompile("`([^`]*)`")
)

// formatForWhatsApp converts common markdown to WhatsApp's own markup.
func formatForWhatsApp(text string) string {
	text = boldRe.ReplaceAllString(text, "*$1*")
	// $1_ would parse as the group name "1_"; brace the index.
	text = italicRe.ReplaceAllString(text, "_${1}_")
	text = codeRe.ReplaceAllString(text, "```$1```")
	return text
}

// NoopSender drops outbound messages. It stands in for the real transport
// when Twilio credentials are absent so the web channel still works.
type NoopSender struct {
	logger *logrus.Logger
}

func NewNoopSender(logger *logrus.Logger) *NoopSender {
	return &NoopSender{logger: logger}
}

func (s *NoopSender) SendMessage(to, body string) error {
	s.logger.WithField("to", to).Debug("Dropping outbound message, transport not configured")
	return nil
}
