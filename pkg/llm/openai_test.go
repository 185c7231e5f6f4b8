package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propmatch/propmatch/pkg/apperrors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewOpenAIClient(OpenAIClientOptions{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestChat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		assert.InDelta(t, 0.1, req.Temperature, 1e-9)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"model": "gpt-4o",
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": `[{"id":1,"score":87}]`}},
			},
			"usage": map[string]int{"prompt_tokens": 120, "completion_tokens": 20, "total_tokens": 140},
		})
	})

	res, err := c.Chat(context.Background(), Request{
		Model:       "gpt-4o",
		Messages:    []Message{{Role: "user", Content: "rank these"}},
		Temperature: 0.1,
	})
	require.NoError(t, err)
	assert.Equal(t, `[{"id":1,"score":87}]`, res.Text)
	assert.Equal(t, 140, res.Usage.TotalTokens)
	assert.Equal(t, "gpt-4o", res.ModelUsed)
}

func TestChatModelNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{
				"message": "The model `gpt-9` does not exist",
				"code":    "model_not_found",
			},
		})
	})

	_, err := c.Chat(context.Background(), Request{Model: "gpt-9"})
	require.Error(t, err)
	assert.True(t, IsModelUnavailable(err))
}

func TestChatUpstreamError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "server overloaded"},
		})
	})

	_, err := c.Chat(context.Background(), Request{Model: "gpt-4o"})
	require.Error(t, err)
	assert.False(t, IsModelUnavailable(err))
	assert.Equal(t, apperrors.KindUpstreamUnavailable, apperrors.KindOf(err))
}

func TestStreamChat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"delta":{"content":"{\"positive"}}]}`,
			`{"choices":[{"delta":{"content":"_points\":[]}"}}]}`,
			`{"choices":[],"usage":{"prompt_tokens":50,"completion_tokens":10,"total_tokens":60}}`,
		}
		for _, chunk := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	events, err := c.StreamChat(context.Background(), Request{Model: "gpt-4o"})
	require.NoError(t, err)

	var text string
	var final StreamEvent
	for ev := range events {
		require.NoError(t, ev.Err)
		if ev.Done {
			final = ev
			continue
		}
		text += ev.Content
	}
	assert.Equal(t, `{"positive_points":[]}`, text)
	assert.True(t, final.Done)
	assert.Equal(t, 60, final.Usage.TotalTokens)
}

func TestStreamChatTruncatedStream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n")
		// Connection ends without [DONE].
	})

	events, err := c.StreamChat(context.Background(), Request{Model: "gpt-4o"})
	require.NoError(t, err)

	var sawErr bool
	for ev := range events {
		if ev.Err != nil {
			sawErr = true
		}
	}
	assert.True(t, sawErr, "truncated stream must surface an error event")
}

func TestStreamChatModelNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "model not found", "code": "model_not_found"},
		})
	})

	_, err := c.StreamChat(context.Background(), Request{Model: "gpt-9"})
	require.Error(t, err)
	assert.True(t, IsModelUnavailable(err))
}
