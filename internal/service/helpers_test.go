package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/klappy/obt-helper-gpt/pkg/llm"
)

// fakeGateway is a scripted llm.Client for tests.
type fakeGateway struct {
	chatResponse     string
	chatErr          error
	classifyResponse string
	classifyErr      error
	summarizeErr     error
	chatCalls        []llm.Options
	chatMessages     [][]llm.Message
}

func (f *fakeGateway) Chat(_ context.Context, messages []llm.Message, opts llm.Options) (*llm.Response, error) {
	f.chatCalls = append(f.chatCalls, opts)
	f.chatMessages = append(f.chatMessages, messages)
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return &llm.Response{
		Content: f.chatResponse,
		Model:   opts.Model,
		Usage:   llm.Usage{PromptTokens: 10, ResponseTokens: 20},
	}, nil
}

func (f *fakeGateway) Classify(_ context.Context, _, _ string) (string, error) {
	if f.classifyErr != nil {
		return "", f.classifyErr
	}
	return f.classifyResponse, nil
}

func (f *fakeGateway) Summarize(_ context.Context, _ string) (string, error) {
	if f.summarizeErr != nil {
		return "", f.summarizeErr
	}
	return "summary", nil
}

// recordingSender captures outbound messages.
type recordingSender struct {
	mu       sync.Mutex
	sendErr  error
	messages []sentMessage
}

type sentMessage struct {
	To   string
	Body string
}

func (s *recordingSender) SendMessage(to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.messages = append(s.messages, sentMessage{To: to, Body: body})
	return nil
}

func (s *recordingSender) sent() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// failingStore returns an error from every operation.
type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, fmt.Errorf("store unavailable")
}
func (failingStore) Set(context.Context, string, string) error { return fmt.Errorf("store unavailable") }
func (failingStore) Delete(context.Context, string) error      { return fmt.Errorf("store unavailable") }
func (failingStore) List(context.Context, string) ([]string, error) {
	return nil, fmt.Errorf("store unavailable")
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}
