package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/semaphore"

	"github.com/propmatch/propmatch/pkg/apperrors"
	"github.com/propmatch/propmatch/pkg/observability"
)

// OpenAIClient implements Client against an OpenAI-compatible chat API.
// A weighted semaphore bounds in-flight calls to respect provider
// quotas; a circuit breaker sheds load during provider outages.
type OpenAIClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	sem     *semaphore.Weighted
	breaker *gobreaker.CircuitBreaker
	logger  observability.Logger
}

// OpenAIClientOptions configures the client; zero values take defaults.
type OpenAIClientOptions struct {
	APIKey         string
	BaseURL        string
	MaxConcurrency int64
	HTTPClient     *http.Client
	Logger         observability.Logger
}

// NewOpenAIClient builds a bounded, breaker-protected chat client.
func NewOpenAIClient(opts OpenAIClientOptions) (*OpenAIClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("llm client: api key is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewNoopLogger()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm",
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A missing model is a routing problem, not provider health;
		// it must not open the breaker and starve the fallback models.
		IsSuccessful: func(err error) bool {
			return err == nil || IsModelUnavailable(err)
		},
	})

	return &OpenAIClient{
		apiKey:  opts.APIKey,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  opts.HTTPClient,
		sem:     semaphore.NewWeighted(opts.MaxConcurrency),
		breaker: breaker,
		logger:  opts.Logger.WithPrefix("llm"),
	}, nil
}

type chatCompletionRequest struct {
	Model         string         `json:"model"`
	Messages      []Message      `json:"messages"`
	Temperature   float64        `json:"temperature"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (c *OpenAIClient) Chat(ctx context.Context, req Request) (*Result, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.chatOnce(ctx, req)
	})
	if err != nil {
		if IsModelUnavailable(err) {
			return nil, err
		}
		return nil, apperrors.Upstream("llm provider unavailable", err)
	}
	return out.(*Result), nil
}

func (c *OpenAIClient) chatOnce(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(chatCompletionRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	resp, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, err
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("chat completion: decode status %d: %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		err := fmt.Errorf("chat completion: %s", parsed.Error.Message)
		if resp.StatusCode == http.StatusNotFound || parsed.Error.Code == "model_not_found" ||
			strings.Contains(strings.ToLower(parsed.Error.Message), "does not exist") {
			return nil, markModelUnavailable(req.Model, err)
		}
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat completion: status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: no choices returned")
	}

	result := &Result{
		Text:      parsed.Choices[0].Message.Content,
		ModelUsed: req.Model,
	}
	if parsed.Usage != nil {
		result.Usage = *parsed.Usage
	}
	return result, nil
}

func (c *OpenAIClient) StreamChat(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:         req.Model,
		Messages:      req.Messages,
		Temperature:   req.Temperature,
		MaxTokens:     req.MaxTokens,
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
	})
	if err != nil {
		c.sem.Release(1)
		return nil, err
	}
	resp, err := c.post(ctx, body)
	if err != nil {
		c.sem.Release(1)
		return nil, apperrors.Upstream("llm provider unavailable", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		c.sem.Release(1)
		var parsed chatCompletionResponse
		if json.Unmarshal(data, &parsed) == nil && parsed.Error != nil {
			err := fmt.Errorf("chat stream: %s", parsed.Error.Message)
			if resp.StatusCode == http.StatusNotFound || parsed.Error.Code == "model_not_found" ||
				strings.Contains(strings.ToLower(parsed.Error.Message), "does not exist") {
				return nil, markModelUnavailable(req.Model, err)
			}
			return nil, apperrors.Upstream("llm provider unavailable", err)
		}
		return nil, apperrors.Upstream("llm provider unavailable",
			fmt.Errorf("chat stream: status %d", resp.StatusCode))
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer c.sem.Release(1)
		defer func() { _ = resp.Body.Close() }()
		c.readStream(ctx, req.Model, resp.Body, events)
	}()
	return events, nil
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

func (c *OpenAIClient) readStream(ctx context.Context, model string, body io.Reader, events chan<- StreamEvent) {
	var usage Usage
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			c.emit(ctx, events, StreamEvent{Done: true, Usage: usage})
			return
		}
		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			if !c.emit(ctx, events, StreamEvent{Content: chunk.Choices[0].Delta.Content}) {
				return
			}
		}
	}
	err := scanner.Err()
	if err == nil {
		err = fmt.Errorf("chat stream: ended without terminator")
	}
	c.emit(ctx, events, StreamEvent{Err: apperrors.Upstream("llm stream interrupted", err)})
}

func (c *OpenAIClient) emit(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *OpenAIClient) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}
