package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propmatch/propmatch/pkg/apperrors"
)

type fakeBedrock struct {
	lastModel string
	lastBody  []byte
	response  titanEmbeddingResponse
	err       error
}

func (f *fakeBedrock) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastModel = *params.ModelId
	f.lastBody = params.Body
	body, _ := json.Marshal(f.response)
	return &bedrockruntime.InvokeModelOutput{Body: body}, nil
}

func TestBedrockEmbed(t *testing.T) {
	fake := &fakeBedrock{response: titanEmbeddingResponse{
		Embedding:           embeddingOf(8),
		InputTextTokenCount: 6,
	}}
	p := NewBedrockProviderWithClient(fake, "", 8, nil)

	v, err := p.Embed(context.Background(), "cottage with mountain view")
	require.NoError(t, err)
	assert.Len(t, v, 8)
	assert.Equal(t, "amazon.titan-embed-text-v1", fake.lastModel)

	var req titanEmbeddingRequest
	require.NoError(t, json.Unmarshal(fake.lastBody, &req))
	assert.Equal(t, "cottage with mountain view", req.InputText)
}

func TestBedrockEmbedUpstreamError(t *testing.T) {
	p := NewBedrockProviderWithClient(&fakeBedrock{err: errors.New("throttled")}, "", 8, nil)
	_, err := p.Embed(context.Background(), "query")
	assert.Equal(t, apperrors.KindUpstreamUnavailable, apperrors.KindOf(err))
}

func TestBedrockEmbedDimensionMismatch(t *testing.T) {
	p := NewBedrockProviderWithClient(&fakeBedrock{response: titanEmbeddingResponse{
		Embedding: embeddingOf(4),
	}}, "", 8, nil)
	_, err := p.Embed(context.Background(), "query")
	assert.Error(t, err)
}
