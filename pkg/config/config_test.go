package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, 5, cfg.Security.SearchRatePerMin)
	assert.Equal(t, 5, cfg.Security.ExplanationRatePerMin)
	assert.Equal(t, 100, cfg.Security.GeneralRatePerMin)
	assert.Equal(t, 3, cfg.Security.StrictRatePerMin)
	assert.Equal(t, 50, cfg.Security.DDoSBurstThreshold)
	assert.Equal(t, int64(500), cfg.Security.IPHourCap)
	assert.Equal(t, int64(2000), cfg.Security.IPDayCap)
	assert.Equal(t, int64(1048576), cfg.Security.PayloadMaxBytes)
	assert.Equal(t, 500, cfg.Security.QueryMaxChars)

	assert.Equal(t, 6, cfg.VectorIndex.TopKMultiplier)
	assert.Equal(t, 60, cfg.VectorIndex.TopKCap)
	assert.Equal(t, 12, cfg.LLM.BatchSize)
	assert.InDelta(t, 0.1, cfg.LLM.Temperature, 1e-9)
	assert.InDelta(t, 1.5, cfg.Search.BM25K1, 1e-9)
	assert.InDelta(t, 0.75, cfg.Search.BM25B, 1e-9)
	assert.Equal(t, 1000, cfg.Search.BM25SampleSize)
	assert.Equal(t, 7*24*time.Hour, cfg.Explanation.TTL)
	assert.Equal(t, 1536, cfg.Embedding.Dimension)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://local/test")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("PINECONE_API_KEY", "pk-test")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "postgres://local/test", cfg.Store.DatabaseURL)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "pk-test", cfg.VectorIndex.APIKey)
}

func TestValidate(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err, "missing database url must fail validation")

	cfg.Store.DatabaseURL = "postgres://local/test"
	cfg.VectorIndex.Host = "https://index.example.net"
	require.NoError(t, cfg.Validate())

	cfg.LLM.Temperature = 0.5
	assert.Error(t, cfg.Validate())
	cfg.LLM.Temperature = 0.1

	cfg.LLM.BatchSize = 20
	assert.Error(t, cfg.Validate())
}
