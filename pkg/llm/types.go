package llm

import "context"

// Message is one turn of a chat-completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tunes a single chat call. The model is chosen per call so the
// cost governor can downgrade it.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Usage is the token accounting reported by the provider.
type Usage struct {
	PromptTokens   int `json:"prompt_tokens"`
	ResponseTokens int `json:"completion_tokens"`
}

// Response is the normalized chat-completion result.
type Response struct {
	Content string
	Model   string
	Usage   Usage
}

// Client is the LLM gateway. Classify and Summarize are distinct modes
// with their own token and temperature budgets.
type Client interface {
	Chat(ctx context.Context, messages []Message, opts Options) (*Response, error)
	// Classify runs a low-temperature, short-output classification call
	// and returns the model's raw (trimmed) answer.
	Classify(ctx context.Context, system, user string) (string, error)
	// Summarize condenses a conversation transcript into a few sentences.
	Summarize(ctx context.Context, transcript string) (string, error)
}
