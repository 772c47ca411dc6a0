// Package llm wraps the OpenAI chat-completions API behind a small
// gateway interface with separate chat, classification, and summary modes.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 60 * time.Second

	classifyMaxTokens   = 50
	classifyTemperature = 0.1
	summaryMaxTokens    = 150
	summaryTemperature  = 0.3
)

// ClientConfig configures the OpenAI gateway.
type ClientConfig struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
	Timeout      time.Duration
}

type OpenAIClient struct {
	baseURL      string
	apiKey       string
	defaultModel string
	client       *http.Client
}

func NewClient(cfg ClientConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &OpenAIClient{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
		client:       &http.Client{Timeout: cfg.Timeout},
	}
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	model := opts.Model
	if model == "" {
		model = c.defaultModel
	}

	payload := chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if result.Error != nil {
			return nil, fmt.Errorf("chat completion failed with status %d: %s", resp.StatusCode, result.Error.Message)
		}
		return nil, fmt.Errorf("chat completion failed with status %d", resp.StatusCode)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	return &Response{
		Content: result.Choices[0].Message.Content,
		Model:   result.Model,
		Usage:   result.Usage,
	}, nil
}

func (c *OpenAIClient) Classify(ctx context.Context, system, user string) (string, error) {
	resp, err := c.Chat(ctx, []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, Options{
		Model:       c.defaultModel,
		Temperature: classifyTemperature,
		MaxTokens:   classifyMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

func (c *OpenAIClient) Summarize(ctx context.Context, transcript string) (string, error) {
	resp, err := c.Chat(ctx, []Message{
		{Role: "system", Content: "Summarize this conversation in 2-3 sentences, focusing on key topics and outcomes."},
		{Role: "user", Content: transcript},
	}, Options{
		Model:       c.defaultModel,
		Temperature: summaryTemperature,
		MaxTokens:   summaryMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
