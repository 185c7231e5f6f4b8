package explain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propmatch/propmatch/pkg/apperrors"
)

func collect(t *testing.T, events <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var out []StreamEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestStreamComplete(t *testing.T) {
	client := &fakeClient{streamChunks: []string{
		`{"positive_points":[{"point":"Great location",`,
		`"details":"A short walk from UCT."}],"negative_points":[],`,
		`"overall_summary":"A strong match for this search."}`,
	}}
	e := testEngine(t, client)

	events, err := e.Stream(context.Background(), "house near UCT", 1)
	require.NoError(t, err)
	got := collect(t, events)

	require.Len(t, got, 5)
	assert.Equal(t, EventStart, got[0].Type)
	assert.Equal(t, "primary", got[0].Model)
	assert.Equal(t, EventChunk, got[1].Type)
	assert.Equal(t, EventChunk, got[2].Type)
	assert.Equal(t, EventChunk, got[3].Type)

	final := got[4]
	assert.Equal(t, EventComplete, final.Type)
	require.NotNil(t, final.Explanation)
	assert.Equal(t, "A strong match for this search.", final.Explanation.OverallSummary)
	assert.Equal(t, "Oak Villa", final.Explanation.PropertyTitle)

	// The assembled explanation was cached for the non-streaming path.
	cached, err := e.Generate(context.Background(), "house near UCT", 1)
	require.NoError(t, err)
	assert.True(t, cached.Cached)
}

func TestStreamCachedShortCircuit(t *testing.T) {
	client := &fakeClient{chatText: validResponse}
	e := testEngine(t, client)

	_, err := e.Generate(context.Background(), "house near UCT", 1)
	require.NoError(t, err)

	events, err := e.Stream(context.Background(), "house near UCT", 1)
	require.NoError(t, err)
	got := collect(t, events)

	// A hit still ends with complete so clients that only render the
	// terminal event receive the record.
	require.Len(t, got, 2)
	assert.Equal(t, EventCached, got[0].Type)
	assert.Equal(t, EventComplete, got[1].Type)
	require.NotNil(t, got[1].Explanation)
	assert.True(t, got[1].Explanation.Cached)
	assert.Equal(t, "A strong match for this search.", got[1].Explanation.OverallSummary)
}

func TestStreamProviderErrorCachesNothing(t *testing.T) {
	client := &fakeClient{
		streamChunks: []string{`{"positive_points":[{"point":"Great`},
		streamErr:    errors.New("connection reset"),
	}
	e := testEngine(t, client)

	events, err := e.Stream(context.Background(), "house near UCT", 1)
	require.NoError(t, err)
	got := collect(t, events)

	final := got[len(got)-1]
	assert.Equal(t, EventError, final.Type)
	assert.Error(t, final.Err)

	stats, err := e.CacheStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.CachedEntries, "a broken stream must not cache a partial explanation")
}

func TestStreamUnparseableResponse(t *testing.T) {
	client := &fakeClient{streamChunks: []string{"sorry, I cannot help with that"}}
	e := testEngine(t, client)

	events, err := e.Stream(context.Background(), "house near UCT", 1)
	require.NoError(t, err)
	got := collect(t, events)

	final := got[len(got)-1]
	assert.Equal(t, EventError, final.Type)
	assert.Equal(t, apperrors.KindUpstreamUnavailable, apperrors.KindOf(final.Err))
}

func TestStreamUnknownListing(t *testing.T) {
	e := testEngine(t, &fakeClient{})
	_, err := e.Stream(context.Background(), "house", 404)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestStreamEmptyQuery(t *testing.T) {
	e := testEngine(t, &fakeClient{})
	_, err := e.Stream(context.Background(), "", 1)
	assert.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err))
}
