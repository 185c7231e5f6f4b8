package embedding

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/propmatch/propmatch/pkg/apperrors"
	"github.com/propmatch/propmatch/pkg/observability"
)

// BedrockRuntimeClient is the slice of the Bedrock API this provider
// needs; the indirection keeps the provider testable without AWS.
type BedrockRuntimeClient interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockProvider embeds text with an Amazon Titan model.
type BedrockProvider struct {
	client     BedrockRuntimeClient
	modelID    string
	dimensions int
	logger     observability.Logger
}

// NewBedrockProvider resolves AWS configuration for the region and
// returns a Titan-backed provider.
func NewBedrockProvider(ctx context.Context, region, modelID string, dimensions int, logger observability.Logger) (*BedrockProvider, error) {
	if region == "" {
		return nil, fmt.Errorf("bedrock embedding provider: region is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock embedding provider: load aws config: %w", err)
	}
	return NewBedrockProviderWithClient(bedrockruntime.NewFromConfig(cfg), modelID, dimensions, logger), nil
}

// NewBedrockProviderWithClient injects a client, used by tests.
func NewBedrockProviderWithClient(client BedrockRuntimeClient, modelID string, dimensions int, logger observability.Logger) *BedrockProvider {
	if modelID == "" {
		modelID = "amazon.titan-embed-text-v1"
	}
	if dimensions == 0 {
		dimensions = 1536
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &BedrockProvider{
		client:     client,
		modelID:    modelID,
		dimensions: dimensions,
		logger:     logger.WithPrefix("embedding.bedrock"),
	}
}

type titanEmbeddingRequest struct {
	InputText string `json:"inputText"`
}

type titanEmbeddingResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

func (p *BedrockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, apperrors.Invalid("embedding input is empty")
	}
	body, err := json.Marshal(titanEmbeddingRequest{InputText: text})
	if err != nil {
		return nil, apperrors.Internal("encode titan request", err)
	}

	contentType := "application/json"
	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &p.modelID,
		ContentType: &contentType,
		Accept:      &contentType,
		Body:        body,
	})
	if err != nil {
		return nil, apperrors.Upstream("embedding provider unavailable", err)
	}

	var parsed titanEmbeddingResponse
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		return nil, apperrors.Upstream("embedding provider unavailable",
			fmt.Errorf("decode titan response: %w", err))
	}
	if len(parsed.Embedding) != p.dimensions {
		return nil, apperrors.Upstream("embedding provider unavailable",
			fmt.Errorf("titan returned %d dimensions, want %d", len(parsed.Embedding), p.dimensions))
	}
	return parsed.Embedding, nil
}

func (p *BedrockProvider) Dimensions() int { return p.dimensions }
func (p *BedrockProvider) Name() string    { return "bedrock/" + p.modelID }
