package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingCache errors on every call, simulating an unreachable redis.
type failingCache struct{}

var errDown = errors.New("connection refused")

func (f *failingCache) Get(context.Context, string, interface{}) error  { return errDown }
func (f *failingCache) Set(context.Context, string, interface{}, time.Duration) error {
	return errDown
}
func (f *failingCache) Delete(context.Context, string) error { return errDown }
func (f *failingCache) KeysMatching(context.Context, string) ([]string, error) {
	return nil, errDown
}
func (f *failingCache) SetAdd(context.Context, string, ...string) error    { return errDown }
func (f *failingCache) SetRemove(context.Context, string, ...string) error { return errDown }
func (f *failingCache) SetContains(context.Context, string, string) (bool, error) {
	return false, errDown
}
func (f *failingCache) SetMembers(context.Context, string) ([]string, error) { return nil, errDown }
func (f *failingCache) ListPushCapped(context.Context, string, interface{}, int64) error {
	return errDown
}
func (f *failingCache) ListRange(context.Context, string, int64, int64) ([]string, error) {
	return nil, errDown
}
func (f *failingCache) IncrWithTTL(context.Context, string, time.Duration) (int64, error) {
	return 0, errDown
}
func (f *failingCache) HashIncrWithTTL(context.Context, string, string, time.Duration) (int64, error) {
	return 0, errDown
}
func (f *failingCache) HashGetAll(context.Context, string) (map[string]string, error) {
	return nil, errDown
}
func (f *failingCache) Close() error { return nil }

func TestFallbackServesWhenPrimaryDown(t *testing.T) {
	c := NewFallbackCache(&failingCache{}, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	var s string
	require.NoError(t, c.Get(ctx, "k", &s))
	assert.Equal(t, "v", s)

	require.NoError(t, c.SetAdd(ctx, "blocked", "10.0.0.1"))
	ok, err := c.SetContains(ctx, "blocked", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := c.IncrWithTTL(ctx, "hits", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestFallbackMissIsNotFailure(t *testing.T) {
	c := NewFallbackCache(NewMemoryCache(), nil)
	var s string
	err := c.Get(context.Background(), "absent", &s)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFallbackPassesThroughHealthyPrimary(t *testing.T) {
	primary := NewMemoryCache()
	c := NewFallbackCache(primary, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 42, 0))
	var n int
	require.NoError(t, primary.Get(ctx, "k", &n))
	assert.Equal(t, 42, n)
}
