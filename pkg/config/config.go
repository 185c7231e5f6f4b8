// Package config loads service configuration from an optional YAML file
// plus environment overrides, with defaults matching production tuning.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	LogLevel        string        `mapstructure:"log_level"`
}

// StoreConfig holds the listing store connection settings.
type StoreConfig struct {
	DatabaseURL  string `mapstructure:"database_url"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// RedisConfig holds cache connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider     string `mapstructure:"provider"` // openai | bedrock
	OpenAIAPIKey string `mapstructure:"openai_api_key"`
	OpenAIModel  string `mapstructure:"openai_model"`
	OpenAIBase   string `mapstructure:"openai_base_url"`
	AWSRegion    string `mapstructure:"aws_region"`
	BedrockModel string `mapstructure:"bedrock_model"`
	Dimension    int    `mapstructure:"dimension"`
}

// VectorIndexConfig holds the vector index connection settings.
type VectorIndexConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Host           string `mapstructure:"host"`
	TopKMultiplier int    `mapstructure:"top_k_multiplier"`
	TopKCap        int    `mapstructure:"top_k_cap"`
}

// LLMConfig tunes the chat model cascade and request shaping.
type LLMConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	BaseURL        string  `mapstructure:"base_url"`
	PrimaryModel   string  `mapstructure:"primary_model"`
	FallbackModel  string  `mapstructure:"fallback_model"`
	TertiaryModel  string  `mapstructure:"tertiary_model"`
	Temperature    float64 `mapstructure:"temperature"`
	BatchSize      int     `mapstructure:"batch_size"`
	MaxConcurrency int64   `mapstructure:"max_concurrency"`
}

// SearchConfig tunes the ranking pipeline.
type SearchConfig struct {
	BM25K1         float64 `mapstructure:"bm25_k1"`
	BM25B          float64 `mapstructure:"bm25_b"`
	BM25SampleSize int     `mapstructure:"bm25_sample_size"`
}

// ExplanationConfig tunes the explanation engine.
type ExplanationConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// SecurityConfig holds the abuse-control thresholds.
type SecurityConfig struct {
	SearchRatePerMin      int   `mapstructure:"search_rate_per_min"`
	ExplanationRatePerMin int   `mapstructure:"explanation_rate_per_min"`
	GeneralRatePerMin     int   `mapstructure:"general_rate_per_min"`
	StrictRatePerMin      int   `mapstructure:"strict_rate_per_min"`
	DDoSBurstThreshold    int   `mapstructure:"ddos_burst_threshold"`
	IPHourCap             int64 `mapstructure:"ip_hour_cap"`
	IPDayCap              int64 `mapstructure:"ip_day_cap"`
	PayloadMaxBytes       int64 `mapstructure:"payload_max_bytes"`
	QueryMaxChars         int   `mapstructure:"query_max_chars"`
}

// Config is the root configuration tree.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Store       StoreConfig       `mapstructure:"store"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding"`
	VectorIndex VectorIndexConfig `mapstructure:"vector_index"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Search      SearchConfig      `mapstructure:"search"`
	Explanation ExplanationConfig `mapstructure:"explanation"`
	Security    SecurityConfig    `mapstructure:"security"`
}

// Load reads config.yaml from the given path (or the working directory
// when empty), applies environment overrides, and returns the resolved
// configuration. A missing file is fine; env and defaults still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("store.max_open_conns", 10)
	v.SetDefault("store.max_idle_conns", 5)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.openai_model", "text-embedding-3-small")
	v.SetDefault("embedding.openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.bedrock_model", "amazon.titan-embed-text-v1")
	v.SetDefault("embedding.dimension", 1536)

	v.SetDefault("vector_index.top_k_multiplier", 6)
	v.SetDefault("vector_index.top_k_cap", 60)

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.primary_model", "gpt-4o")
	v.SetDefault("llm.fallback_model", "gpt-4o-mini")
	v.SetDefault("llm.tertiary_model", "gpt-3.5-turbo")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.batch_size", 12)
	v.SetDefault("llm.max_concurrency", 4)

	v.SetDefault("search.bm25_k1", 1.5)
	v.SetDefault("search.bm25_b", 0.75)
	v.SetDefault("search.bm25_sample_size", 1000)

	v.SetDefault("explanation.ttl", 7*24*time.Hour)

	v.SetDefault("security.search_rate_per_min", 5)
	v.SetDefault("security.explanation_rate_per_min", 5)
	v.SetDefault("security.general_rate_per_min", 100)
	v.SetDefault("security.strict_rate_per_min", 3)
	v.SetDefault("security.ddos_burst_threshold", 50)
	v.SetDefault("security.ip_hour_cap", 500)
	v.SetDefault("security.ip_day_cap", 2000)
	v.SetDefault("security.payload_max_bytes", 1<<20)
	v.SetDefault("security.query_max_chars", 500)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for the conventional variable names.
	_ = v.BindEnv("store.database_url", "DATABASE_URL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("embedding.openai_api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("embedding.aws_region", "AWS_REGION")
	_ = v.BindEnv("vector_index.api_key", "PINECONE_API_KEY")
	_ = v.BindEnv("vector_index.host", "PINECONE_HOST")
	_ = v.BindEnv("llm.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("server.listen_addr", "LISTEN_ADDR")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
}

// Validate checks the settings a running service cannot do without.
func (c *Config) Validate() error {
	if c.Store.DatabaseURL == "" {
		return fmt.Errorf("store.database_url is required")
	}
	if c.VectorIndex.Host == "" {
		return fmt.Errorf("vector_index.host is required")
	}
	if c.LLM.Temperature > 0.1 {
		return fmt.Errorf("llm.temperature must be at most 0.1, got %v", c.LLM.Temperature)
	}
	if c.LLM.BatchSize < 1 || c.LLM.BatchSize > 12 {
		return fmt.Errorf("llm.batch_size must be in [1,12], got %d", c.LLM.BatchSize)
	}
	return nil
}
