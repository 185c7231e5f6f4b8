package explain

import (
	"context"
	"strings"

	"github.com/propmatch/propmatch/pkg/apperrors"
	"github.com/propmatch/propmatch/pkg/cache"
	"github.com/propmatch/propmatch/pkg/llm"
	"github.com/propmatch/propmatch/pkg/models"
)

// EventType labels one streamed explanation event.
type EventType string

const (
	EventCached   EventType = "cached"
	EventStart    EventType = "start"
	EventChunk    EventType = "chunk"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// StreamEvent is one element of a streamed explanation: a cached marker
// followed by complete, or start, chunks, then exactly one complete or
// error. The channel closes after the terminal event.
type StreamEvent struct {
	Type        EventType           `json:"type"`
	Content     string              `json:"content,omitempty"`
	Model       string              `json:"model,omitempty"`
	Explanation *models.Explanation `json:"explanation,omitempty"`
	Err         error               `json:"-"`
}

// Stream generates an explanation chunk by chunk. A cache hit short-
// circuits to a cached marker and the complete record, so clients that
// only render complete events still receive it. Only a fully assembled,
// parseable explanation is written back to the cache; interrupted
// streams cache nothing.
func (e *Engine) Stream(ctx context.Context, query string, listingKey int64) (<-chan StreamEvent, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperrors.Invalid("search query is required")
	}

	listing, err := e.listings.GetByKey(ctx, listingKey)
	if err != nil {
		return nil, err
	}

	key := cacheKey(query, listingKey)
	var cached models.Explanation
	switch err := e.cache.Get(ctx, key, &cached); {
	case err == nil:
		e.hits.Add(1)
		cached.Cached = true
		out := make(chan StreamEvent, 2)
		out <- StreamEvent{Type: EventCached}
		out <- StreamEvent{Type: EventComplete, Explanation: &cached}
		close(out)
		return out, nil
	case err != cache.ErrNotFound:
		e.logger.Warn("explanation cache read failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	e.misses.Add(1)

	events, model, err := e.cascade.StreamChat(ctx, explanationMessages(query, listing),
		explanationTemperature, explanationMaxTokens)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamEvent)
	go e.pump(ctx, events, out, model, key, query, listingKey, listing.Title)
	return out, nil
}

func (e *Engine) pump(ctx context.Context, events <-chan llm.StreamEvent, out chan<- StreamEvent,
	model, key, query string, listingKey int64, title string) {
	defer close(out)

	if !e.emit(ctx, out, StreamEvent{Type: EventStart, Model: model}) {
		return
	}

	var full strings.Builder
	for ev := range events {
		switch {
		case ev.Err != nil:
			e.emit(ctx, out, StreamEvent{Type: EventError, Err: ev.Err})
			return
		case ev.Done:
			expl, err := parseExplanation(full.String())
			if err != nil {
				e.emit(ctx, out, StreamEvent{Type: EventError,
					Err: apperrors.Upstream("explanation response unusable", err)})
				return
			}
			expl.SearchQuery = query
			expl.ListingKey = listingKey
			expl.PropertyTitle = title
			if err := e.cache.Set(ctx, key, expl, e.ttl); err != nil {
				e.logger.Warn("explanation cache write failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
			e.emit(ctx, out, StreamEvent{Type: EventComplete, Model: model, Explanation: expl})
			return
		default:
			full.WriteString(ev.Content)
			if !e.emit(ctx, out, StreamEvent{Type: EventChunk, Content: ev.Content}) {
				return
			}
		}
	}
	// Provider closed without a terminal event; nothing gets cached.
	e.emit(ctx, out, StreamEvent{Type: EventError,
		Err: apperrors.Upstream("explanation stream ended early", nil)})
}

// emit delivers one event unless the consumer went away.
func (e *Engine) emit(ctx context.Context, out chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
