package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/propmatch/propmatch/pkg/apperrors"
	"github.com/propmatch/propmatch/pkg/observability"
)

// OpenAIProvider calls the OpenAI embeddings endpoint.
type OpenAIProvider struct {
	apiKey     string
	model      string
	baseURL    string
	dimensions int
	client     *http.Client
	logger     observability.Logger
}

// OpenAIOptions configures the provider; zero values take defaults.
type OpenAIOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int
	HTTPClient *http.Client
	Logger     observability.Logger
}

// NewOpenAIProvider builds a provider for the configured model.
func NewOpenAIProvider(opts OpenAIOptions) (*OpenAIProvider, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("openai embedding provider: api key is required")
	}
	if opts.Model == "" {
		opts.Model = "text-embedding-3-small"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	if opts.Dimensions == 0 {
		opts.Dimensions = 1536
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewNoopLogger()
	}
	return &OpenAIProvider{
		apiKey:     opts.APIKey,
		model:      opts.Model,
		baseURL:    opts.BaseURL,
		dimensions: opts.Dimensions,
		client:     opts.HTTPClient,
		logger:     opts.Logger.WithPrefix("embedding.openai"),
	}, nil
}

type openAIEmbeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, apperrors.Invalid("embedding input is empty")
	}

	var vector []float32
	operation := func() error {
		v, err := p.embedOnce(ctx, text)
		if err != nil {
			return err
		}
		vector = v
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, apperrors.Upstream("embedding provider unavailable", err)
	}
	return vector, nil
}

func (p *OpenAIProvider) embedOnce(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(openAIEmbeddingRequest{Model: p.model, Input: text})
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("openai embeddings: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, backoff.Permanent(fmt.Errorf("openai embeddings: status %d: %s", resp.StatusCode, truncate(string(data), 200)))
	}

	var parsed openAIEmbeddingResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("openai embeddings: decode: %w", err))
	}
	if parsed.Error != nil {
		return nil, backoff.Permanent(fmt.Errorf("openai embeddings: %s", parsed.Error.Message))
	}
	if len(parsed.Data) == 0 {
		return nil, backoff.Permanent(fmt.Errorf("openai embeddings: empty response"))
	}
	vector := parsed.Data[0].Embedding
	if len(vector) != p.dimensions {
		return nil, backoff.Permanent(fmt.Errorf("openai embeddings: got %d dimensions, want %d", len(vector), p.dimensions))
	}
	return vector, nil
}

func (p *OpenAIProvider) Dimensions() int { return p.dimensions }
func (p *OpenAIProvider) Name() string    { return "openai/" + p.model }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
