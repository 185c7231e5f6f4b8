// Package llm wraps the chat-completion provider behind a narrow client
// with bounded concurrency, circuit breaking, a model cascade, and
// per-call token accounting.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the token accounting for one completed call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is a completed chat call.
type Result struct {
	Text      string `json:"text"`
	Usage     Usage  `json:"usage"`
	ModelUsed string `json:"model_used"`
}

// Request shapes one chat call.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// StreamEvent is one element of a streamed completion: zero or more
// content chunks followed by exactly one terminal event (Done or Err).
type StreamEvent struct {
	Content string
	Done    bool
	Usage   Usage
	Err     error
}

// Client is the chat surface used by the ranker and explanation engine.
type Client interface {
	Chat(ctx context.Context, req Request) (*Result, error)
	// StreamChat emits events on the returned channel and closes it
	// after the terminal event.
	StreamChat(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// modelUnavailableError marks errors that should trigger the model
// cascade rather than fail the request.
type modelUnavailableError struct {
	model string
	cause error
}

func (e *modelUnavailableError) Error() string {
	return fmt.Sprintf("model %s unavailable: %v", e.model, e.cause)
}

func (e *modelUnavailableError) Unwrap() error { return e.cause }

// markModelUnavailable wraps err when the provider reports the model
// itself as missing.
func markModelUnavailable(model string, err error) error {
	return &modelUnavailableError{model: model, cause: err}
}

// IsModelUnavailable reports whether err means the requested model does
// not exist on the provider side.
func IsModelUnavailable(err error) bool {
	var mu *modelUnavailableError
	if errors.As(err, &mu) {
		return true
	}
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "model not found") ||
		strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "model_not_found")
}
