package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/klappy/obt-helper-gpt/internal/errors"
	"github.com/klappy/obt-helper-gpt/internal/models"
	"github.com/klappy/obt-helper-gpt/internal/tools"
	"github.com/klappy/obt-helper-gpt/internal/usage"
	"github.com/klappy/obt-helper-gpt/pkg/llm"
	"github.com/klappy/obt-helper-gpt/pkg/twilio"
)

const (
	llmFailureApology    = "I'm having trouble thinking right now. Could you try again?"
	toolUnavailableReply = "This tool has reached its daily usage limit and is unavailable today. Try again tomorrow, or reply *menu* to pick a different tool."
)

// WhatsAppService orchestrates one inbound WhatsApp message end to end:
// session load, switch confirmation or tool inference, model selection,
// generation, usage accounting, cross-channel mirroring, and the outbound
// reply. Every failure path still produces a reply so the upstream transport
// never retries.
type WhatsAppService struct {
	sessions  *SessionStore
	catalog   *tools.Catalog
	inference *ToolInference
	governor  *CostGovernor
	ledger    *usage.Ledger
	linking   *LinkingService
	mirror    *MirrorService
	gateway   llm.Client
	sender    twilio.Sender
	logger    *logrus.Logger
}

func NewWhatsAppService(
	sessions *SessionStore,
	catalog *tools.Catalog,
	inference *ToolInference,
	governor *CostGovernor,
	ledger *usage.Ledger,
	linking *LinkingService,
	mirror *MirrorService,
	gateway llm.Client,
	sender twilio.Sender,
	logger *logrus.Logger,
) *WhatsAppService {
	return &WhatsAppService{
		sessions:  sessions,
		catalog:   catalog,
		inference: inference,
		governor:  governor,
		ledger:    ledger,
		linking:   linking,
		mirror:    mirror,
		gateway:   gateway,
		sender:    sender,
		logger:    logger,
	}
}

// HandleInbound processes one inbound message and sends the reply. It never
// returns an error; the webhook acknowledges the transport regardless.
func (w *WhatsAppService) HandleInbound(ctx context.Context, from, body string) {
	// Twilio delivers From as "whatsapp:+1555...". The bare number becomes
	// session.PhoneNumber; the outbound client re-adds the channel prefix.
	from = strings.TrimPrefix(from, "whatsapp:")

	log := w.logger.WithFields(logrus.Fields{
		"session": models.WhatsAppSessionID(from),
	})
	log.Info("Processing inbound WhatsApp message")

	session := w.sessions.GetOrCreate(ctx, from)
	reply := w.respond(ctx, session, body)

	w.sessions.Save(ctx, session)

	if err := w.sender.SendMessage(session.PhoneNumber, reply); err != nil {
		log.WithError(err).Error("Failed to send WhatsApp reply")
	}
}

func (w *WhatsAppService) respond(ctx context.Context, session *models.WhatsAppSession, body string) string {
	// First contact has no tool yet; pick one lazily rather than at creation
	// so an explicit command or classifier suggestion can still win.
	if session.CurrentTool == "" {
		session.CurrentTool = tools.DefaultToolID
	}

	if session.Switch.AwaitingConfirmation() {
		return w.resolveSwitch(ctx, session, body)
	}

	if reply, handled := w.inference.HandleCommand(ctx, session, body); handled {
		w.sessions.AppendMessage(session, "user", body)
		w.sessions.AppendMessage(session, "assistant", reply)
		return reply
	}

	if prompt, suggested := w.inference.Suggest(ctx, session, body); suggested {
		// The original message is deferred inside the pending switch; it
		// enters history only once the user decides.
		return prompt
	}

	return w.generate(ctx, session, body, "")
}

func (w *WhatsAppService) resolveSwitch(ctx context.Context, session *models.WhatsAppSession, body string) string {
	resolution := w.inference.ResolveConfirmation(session, body)
	switch resolution.Verdict {
	case SwitchConfirmed:
		banner := w.inference.SwitchBanner(ctx, session.CurrentTool)
		return w.generate(ctx, session, resolution.OriginalMessage, banner)
	default:
		return resolution.Reply
	}
}

// generate runs one message through the LLM with the session's current tool
// and handles all the bookkeeping around it. banner, when set, prefixes the
// answer after a confirmed tool switch.
func (w *WhatsAppService) generate(ctx context.Context, session *models.WhatsAppSession, message, banner string) string {
	tool, err := w.catalog.Get(ctx, session.CurrentTool)
	if err != nil {
		w.logger.WithError(err).WithField("tool", session.CurrentTool).Error("Tool lookup failed")
		return llmFailureApology
	}

	model, err := w.governor.SelectModel(ctx, tool.ID, tool.Model)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeCostCeiling) {
			w.logger.WithField("tool", tool.ID).Warn("Tool suspended for the day, ceiling reached")
			return toolUnavailableReply
		}
		model = tool.Model
	}

	messages := []llm.Message{{Role: "system", Content: tool.SystemPrompt}}
	for _, turn := range session.RecentHistory(w.sessions.ContextWindow()) {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: message})

	resp, err := w.gateway.Chat(ctx, messages, llm.Options{
		Model:       model,
		Temperature: tool.Temperature,
		MaxTokens:   tool.MaxTokens,
	})
	if err != nil {
		w.logger.WithError(err).Error("AI generation failed")
		if banner != "" {
			return banner + "How can I help you?"
		}
		return llmFailureApology
	}

	reply := banner + resp.Content

	w.sessions.AppendMessage(session, "user", message)
	w.sessions.AppendMessage(session, "assistant", resp.Content)

	record := w.ledger.Record(ctx, tool.ID, model, message, resp.Content, session.SessionID, models.UsageSourceWhatsApp)
	w.sessions.AddUsage(session, record.TotalTokens, record.TotalCost)

	if link := w.linking.LinkForWhatsAppSession(ctx, session.SessionID); link != nil {
		w.mirror.MirrorToWeb(ctx, link, message, reply, tool.ID)
	}

	return reply
}
