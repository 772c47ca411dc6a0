package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/klappy/obt-helper-gpt/internal/errors"
	"github.com/klappy/obt-helper-gpt/internal/models"
	"github.com/klappy/obt-helper-gpt/internal/tools"
	"github.com/klappy/obt-helper-gpt/internal/usage"
	"github.com/klappy/obt-helper-gpt/pkg/llm"
)

// ChatRequest is one web chat turn. Messages is the browser-held history,
// last entry being the user's new message. SessionID is optional; when the
// session is linked to WhatsApp the exchange is mirrored there.
type ChatRequest struct {
	Messages  []llm.Message `json:"messages"`
	ToolID    string        `json:"tool"`
	SessionID string        `json:"sessionId"`
}

// ChatResponse carries the answer and the model that actually served it,
// which may be the tool's fallback when the daily ceiling was reached.
type ChatResponse struct {
	Content  string    `json:"content"`
	Model    string    `json:"model"`
	Usage    llm.Usage `json:"usage"`
	Mirrored bool      `json:"mirrored"`
}

// ChatService handles web channel conversations.
type ChatService struct {
	catalog  *tools.Catalog
	governor *CostGovernor
	ledger   *usage.Ledger
	linking  *LinkingService
	mirror   *MirrorService
	gateway  llm.Client
	logger   *logrus.Logger
}

func NewChatService(
	catalog *tools.Catalog,
	governor *CostGovernor,
	ledger *usage.Ledger,
	linking *LinkingService,
	mirror *MirrorService,
	gateway llm.Client,
	logger *logrus.Logger,
) *ChatService {
	return &ChatService{
		catalog:  catalog,
		governor: governor,
		ledger:   ledger,
		linking:  linking,
		mirror:   mirror,
		gateway:  gateway,
		logger:   logger,
	}
}

// Chat runs one web turn: governor-selected model, generation, usage
// recording, and mirroring to a linked WhatsApp number. Cost-ceiling errors
// propagate to the caller; they must reach the end user.
func (c *ChatService) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	tool, err := c.catalog.Get(ctx, req.ToolID)
	if err != nil {
		return nil, err
	}
	if !tool.IsActive {
		// Deactivated tools stay in the catalog for the admin but are not
		// selectable by either channel.
		return nil, errors.NewNotFoundError("tool", req.ToolID)
	}

	model, err := c.governor.SelectModel(ctx, tool.ID, tool.Model)
	if err != nil {
		return nil, err
	}

	messages := req.Messages
	if len(messages) == 0 || messages[0].Role != "system" {
		messages = append([]llm.Message{{Role: "system", Content: tool.SystemPrompt}}, messages...)
	}

	resp, err := c.gateway.Chat(ctx, messages, llm.Options{
		Model:       model,
		Temperature: tool.Temperature,
		MaxTokens:   tool.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	userMessage := ""
	if len(req.Messages) > 0 {
		userMessage = req.Messages[len(req.Messages)-1].Content
	}

	c.ledger.Record(ctx, tool.ID, model, userMessage, resp.Content, req.SessionID, models.UsageSourceWeb)

	mirrored := false
	if req.SessionID != "" {
		if link := c.linking.LinkForWebSession(ctx, req.SessionID); link != nil {
			c.logger.WithFields(logrus.Fields{
				"web_session": req.SessionID,
				"phone":       maskPhone(link.PhoneNumber),
			}).Info("Mirroring web exchange to WhatsApp")
			c.mirror.MirrorToWhatsApp(ctx, link, userMessage, resp.Content, tool.ID)
			mirrored = true
		}
	}

	return &ChatResponse{
		Content:  resp.Content,
		Model:    resp.Model,
		Usage:    resp.Usage,
		Mirrored: mirrored,
	}, nil
}
