package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/propmatch/propmatch/pkg/apperrors"
	"github.com/propmatch/propmatch/pkg/observability"
)

const upsertBatchSize = 100

// PineconeIndex implements Index against a Pinecone-compatible HTTP
// endpoint.
type PineconeIndex struct {
	host   string
	apiKey string
	client *http.Client
	logger observability.Logger
}

// NewPineconeIndex points at the index host (https://<index>.svc...).
func NewPineconeIndex(host, apiKey string, httpClient *http.Client, logger observability.Logger) (*PineconeIndex, error) {
	if host == "" {
		return nil, fmt.Errorf("vector index: host is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &PineconeIndex{
		host:   strings.TrimRight(host, "/"),
		apiKey: apiKey,
		client: httpClient,
		logger: logger.WithPrefix("vectorindex"),
	}, nil
}

type pineconeQueryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	Filter          Filter    `json:"filter,omitempty"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

type pineconeQueryResponse struct {
	Matches []Match `json:"matches"`
}

func (p *PineconeIndex) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	if topK <= 0 {
		return nil, apperrors.Invalid("topK must be positive")
	}
	reqBody := pineconeQueryRequest{
		Vector:          vector,
		TopK:            topK,
		Filter:          filter,
		IncludeMetadata: true,
	}

	var matches []Match
	operation := func() error {
		var parsed pineconeQueryResponse
		if err := p.post(ctx, "/query", reqBody, &parsed); err != nil {
			return err
		}
		matches = parsed.Matches
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, apperrors.Upstream("vector index unavailable", err)
	}
	return matches, nil
}

type pineconeUpsertRequest struct {
	Vectors []Item `json:"vectors"`
}

func (p *PineconeIndex) Upsert(ctx context.Context, items ...Item) error {
	for start := 0; start < len(items); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(items) {
			end = len(items)
		}
		var out struct {
			UpsertedCount int `json:"upsertedCount"`
		}
		if err := p.post(ctx, "/vectors/upsert", pineconeUpsertRequest{Vectors: items[start:end]}, &out); err != nil {
			return apperrors.Upstream("vector index unavailable", err)
		}
		p.logger.Debug("upserted vectors", map[string]interface{}{
			"count": out.UpsertedCount,
		})
	}
	return nil
}

func (p *PineconeIndex) Stats(ctx context.Context) (*Stats, error) {
	var parsed struct {
		TotalVectorCount int64 `json:"totalVectorCount"`
		Dimension        int   `json:"dimension"`
	}
	if err := p.post(ctx, "/describe_index_stats", struct{}{}, &parsed); err != nil {
		return nil, apperrors.Upstream("vector index unavailable", err)
	}
	return &Stats{VectorCount: parsed.TotalVectorCount, Dimension: parsed.Dimension}, nil
}

func (p *PineconeIndex) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return backoff.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+path, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Api-Key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return fmt.Errorf("vector index %s: status %d", path, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return backoff.Permanent(fmt.Errorf("vector index %s: status %d: %s", path, resp.StatusCode, firstBytes(data, 200)))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return backoff.Permanent(fmt.Errorf("vector index %s: decode: %w", path, err))
		}
	}
	return nil
}

func firstBytes(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
