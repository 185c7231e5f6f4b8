package llm

import (
	"context"
	"fmt"

	"github.com/propmatch/propmatch/pkg/apperrors"
	"github.com/propmatch/propmatch/pkg/observability"
)

// Cascade tries a fixed sequence of models, advancing only when the
// provider reports the model itself as unavailable. Any other failure
// propagates. Token usage on a Result comes from the attempt that
// succeeded, never from failed attempts.
type Cascade struct {
	client Client
	models []string
	logger observability.Logger
}

// NewCascade orders the models primary, fallback, tertiary; empty
// entries are skipped.
func NewCascade(client Client, primary, fallback, tertiary string, logger observability.Logger) (*Cascade, error) {
	var models []string
	for _, m := range []string{primary, fallback, tertiary} {
		if m != "" {
			models = append(models, m)
		}
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("llm cascade: at least one model is required")
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Cascade{client: client, models: models, logger: logger.WithPrefix("cascade")}, nil
}

// Chat runs the cascade for a non-streaming call.
func (c *Cascade) Chat(ctx context.Context, messages []Message, temperature float64, maxTokens int) (*Result, error) {
	var lastErr error
	for _, model := range c.models {
		result, err := c.client.Chat(ctx, Request{
			Model:       model,
			Messages:    messages,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
		if err == nil {
			return result, nil
		}
		if !IsModelUnavailable(err) {
			return nil, err
		}
		c.logger.Warn("model unavailable, trying next", map[string]interface{}{
			"model": model,
			"error": err.Error(),
		})
		lastErr = err
	}
	return nil, apperrors.Upstream("no configured llm model available", lastErr)
}

// StreamChat runs the cascade for a streaming call. Only errors raised
// before the stream opens can advance the cascade; once a channel is
// handed out the attempt is committed.
func (c *Cascade) StreamChat(ctx context.Context, messages []Message, temperature float64, maxTokens int) (<-chan StreamEvent, string, error) {
	var lastErr error
	for _, model := range c.models {
		events, err := c.client.StreamChat(ctx, Request{
			Model:       model,
			Messages:    messages,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
		if err == nil {
			return events, model, nil
		}
		if !IsModelUnavailable(err) {
			return nil, "", err
		}
		c.logger.Warn("model unavailable, trying next", map[string]interface{}{
			"model": model,
			"error": err.Error(),
		})
		lastErr = err
	}
	return nil, "", apperrors.Upstream("no configured llm model available", lastErr)
}

// Models exposes the configured cascade order for diagnostics.
func (c *Cascade) Models() []string {
	out := make([]string, len(c.models))
	copy(out, c.models)
	return out
}
