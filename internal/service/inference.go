package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/klappy/obt-helper-gpt/internal/models"
	"github.com/klappy/obt-helper-gpt/internal/tools"
	"github.com/klappy/obt-helper-gpt/pkg/llm"
)

// SwitchVerdict is the user's answer to an outstanding switch suggestion.
type SwitchVerdict int

const (
	SwitchConfirmed SwitchVerdict = iota
	SwitchDeclined
	SwitchUnclear
)

// SwitchResolution is the outcome of feeding a reply into the confirmation
// state machine. On confirm the deferred original message must be re-run by
// the caller with the new tool, prefixed by Banner. Otherwise Reply is the
// full response to send.
type SwitchResolution struct {
	Verdict         SwitchVerdict
	OriginalMessage string
	Banner          string
	Reply           string
}

// ToolInference suggests a better-fit tool for an inbound message and drives
// the confirm/decline protocol layered on the WhatsApp session.
type ToolInference struct {
	catalog *tools.Catalog
	gateway llm.Client
	logger  *logrus.Logger
	now     func() time.Time
}

func NewToolInference(catalog *tools.Catalog, gateway llm.Client, logger *logrus.Logger) *ToolInference {
	return &ToolInference{
		catalog: catalog,
		gateway: gateway,
		logger:  logger,
		now:     time.Now,
	}
}

var toolMenuEmojis = []string{"✍️", "📱", "📧", "📊", "🧮", "🍳", "💻", "🌍", "🏢", "✈️"}

// HandleCommand answers explicit commands without touching the LLM: greetings
// and capability questions get the tool menu, a bare digit selects a tool by
// menu position. Returns false when the message is not a command.
func (ti *ToolInference) HandleCommand(ctx context.Context, session *models.WhatsAppSession, message string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(message))

	if isMenuRequest(lower) {
		return ti.menuText(ctx), true
	}

	if len(lower) == 1 && lower[0] >= '1' && lower[0] <= '9' {
		active, err := ti.catalog.Active(ctx)
		if err != nil {
			ti.logger.WithError(err).Warn("Tool catalog unavailable for manual selection")
			return "", false
		}
		idx, _ := strconv.Atoi(lower)
		if idx >= 1 && idx <= len(active) {
			selected := active[idx-1]
			session.CurrentTool = selected.ID
			return fmt.Sprintf("✅ *Switched to %s*! %s\n\nHow can I help you?", selected.Name, selected.Description), true
		}
	}

	return "", false
}

func isMenuRequest(lower string) bool {
	switch lower {
	case "help", "menu", "tools", "hello", "hi":
		return true
	}
	for _, phrase := range []string{"what can you do", "what do you do", "capabilities", "features", "options"} {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func (ti *ToolInference) menuText(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("🤖 *OBT Helper GPT* 🤖\n\n")
	b.WriteString("I'm your intelligent AI assistant! I can help you with:\n\n")

	active, err := ti.catalog.Active(ctx)
	if err != nil {
		ti.logger.WithError(err).Warn("Tool catalog unavailable for menu")
	}
	for i, tool := range active {
		emoji := "🔧"
		if i < len(toolMenuEmojis) {
			emoji = toolMenuEmojis[i]
		}
		fmt.Fprintf(&b, "%s *%d. %s*\n   %s\n\n", emoji, i+1, tool.Name, tool.Description)
	}

	b.WriteString("💬 *Just start chatting!* I'll automatically suggest the best tool for your needs.\n\n")
	b.WriteString("🔢 Or reply with a number (1-9) to manually select a tool.")
	return b.String()
}

// Suggest classifies the message against the tool catalog. When the
// classifier names a different valid tool, the session transitions to
// AwaitingConfirmation and the returned prompt asks the user to confirm.
// Classifier failures never interrupt the conversation.
func (ti *ToolInference) Suggest(ctx context.Context, session *models.WhatsAppSession, message string) (string, bool) {
	active, err := ti.catalog.Active(ctx)
	if err != nil {
		ti.logger.WithError(err).Warn("Tool catalog unavailable for classification")
		return "", false
	}

	var descriptions strings.Builder
	for _, tool := range active {
		fmt.Fprintf(&descriptions, "%s: %s - %s\n", tool.ID, tool.Name, tool.Description)
	}

	system := fmt.Sprintf(`You are a tool classifier for an AI assistant platform. Given a user message and available tools, suggest the BEST tool ID or return "none" if the current tool is fine.

Available tools:
%s
Current tool: %s

Rules:
- Only suggest a switch if the new tool is CLEARLY better for this specific message
- Return ONLY the tool ID (e.g. "creative-writing") or "none"
- Be conservative - don't switch unless the message obviously needs a different tool
- Consider the context: if someone is mid-conversation, prefer keeping the current tool unless very obvious switch needed`,
		descriptions.String(), session.CurrentTool)

	suggestion, err := ti.gateway.Classify(ctx, system, fmt.Sprintf("Message: %q", message))
	if err != nil {
		ti.logger.WithError(err).Warn("Tool classification failed")
		return "", false
	}
	suggestion = strings.TrimSpace(strings.Trim(suggestion, `"`))
	if suggestion == "" || suggestion == "none" || suggestion == session.CurrentTool {
		return "", false
	}

	var candidate *models.Tool
	for i := range active {
		if active[i].ID == suggestion {
			candidate = &active[i]
			break
		}
	}
	if candidate == nil {
		ti.logger.WithField("suggestion", suggestion).Debug("Classifier suggested unknown or inactive tool")
		return "", false
	}

	ti.logger.WithFields(logrus.Fields{
		"from": session.CurrentTool,
		"to":   suggestion,
	}).Info("Classifier suggests tool switch")

	session.Switch.Pending = &models.PendingSwitch{
		To:              suggestion,
		OriginalMessage: message,
		RequestedAt:     ti.now().UTC(),
	}

	prompt := fmt.Sprintf("🤔 I think *%s* would be better for this request.\n\n*Switch tools?*\n\n✅ Reply *YES* to switch\n❌ Reply *NO* to continue with %s",
		candidate.Name, session.CurrentTool)
	return prompt, true
}

// ResolveConfirmation feeds the user's reply into the pending-switch state
// machine. "yes" (or bare "y") applies the switch and hands back the deferred
// original message for re-processing; "no" (or bare "n") discards it; anything
// else re-issues the prompt and keeps the switch pending.
func (ti *ToolInference) ResolveConfirmation(session *models.WhatsAppSession, message string) SwitchResolution {
	pending := session.Switch.Pending
	lower := strings.ToLower(strings.TrimSpace(message))

	switch {
	case strings.Contains(lower, "yes") || lower == "y":
		session.CurrentTool = pending.To
		session.Switch.Pending = nil
		return SwitchResolution{
			Verdict:         SwitchConfirmed,
			OriginalMessage: pending.OriginalMessage,
		}
	case strings.Contains(lower, "no") || lower == "n":
		session.Switch.Pending = nil
		return SwitchResolution{
			Verdict: SwitchDeclined,
			Reply:   fmt.Sprintf("👍 Staying with %s. How can I help?", session.CurrentTool),
		}
	default:
		return SwitchResolution{
			Verdict: SwitchUnclear,
			Reply:   "Please reply *YES* to switch tools or *NO* to continue with the current tool.",
		}
	}
}

// SwitchBanner is the prefix applied to the re-run answer after a confirmed
// switch.
func (ti *ToolInference) SwitchBanner(ctx context.Context, toolID string) string {
	tool, err := ti.catalog.Get(ctx, toolID)
	name := toolID
	if err == nil {
		name = tool.Name
	}
	return fmt.Sprintf("✅ *Switched to %s*\n\n", name)
}
