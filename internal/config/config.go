package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	LogConfig LogConfig       `json:"log_config"`
	AI        AIConfig        `json:"ai"`
	Chunker   ChunkerConfig   `json:"chunker"`
	Index     IndexConfig     `json:"index"`
	Source    SourceConfig    `json:"source"`
	Retrieval RetrievalConfig `json:"retrieval"`
	Server    ServerConfig    `json:"server"`
	Schedule  ScheduleConfig  `json:"schedule"`
}

type LogConfig = logger.LogConfig

type AIConfig struct {
	Provider       string      `json:"provider"`
	Model          string      `json:"model"`
	Dimension      int         `json:"dimension"`
	BatchSize      int         `json:"batch_size"`
	RatePerMinute  int         `json:"rate_per_minute"`
	MaxAttempts    int         `json:"max_attempts"`
	BackoffMillis  int         `json:"backoff_millis"`
	TimeoutSeconds int         `json:"timeout_seconds"`
	CacheSize      int         `json:"cache_size"`
	CacheTTLHours  int         `json:"cache_ttl_hours"`
	Data           interface{} `json:"data"`
}

func (c AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c AIConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffMillis) * time.Millisecond
}

type ChunkerConfig struct {
	MinTokens     int `json:"min_tokens"`
	MaxTokens     int `json:"max_tokens"`
	OverlapTokens int `json:"overlap_tokens"`
}

type IndexConfig struct {
	Type       string      `json:"type"`
	Collection string      `json:"collection"`
	Data       interface{} `json:"data"`
}

type SourceConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type RetrievalConfig struct {
	TopK     int     `json:"top_k"`
	MinScore float64 `json:"min_score"`
}

type ServerConfig struct {
	Port              int      `json:"port"`
	CORSAllowlist     []string `json:"cors_allowlist"`
	RateLimitWindowMS int      `json:"rate_limit_window_ms"`
}

type ScheduleConfig struct {
	ReingestSpec string `json:"reingest_spec"`
	Workers      int    `json:"workers"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) error {
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.AI.Provider == "" {
		return fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.Model == "" {
		return fmt.Errorf("ai.model is required")
	}
	if cfg.AI.Dimension <= 0 {
		return fmt.Errorf("ai.dimension is required")
	}
	if cfg.AI.BatchSize <= 0 {
		cfg.AI.BatchSize = 32
	}
	if cfg.AI.RatePerMinute <= 0 {
		cfg.AI.RatePerMinute = 120
	}
	if cfg.AI.MaxAttempts <= 0 {
		cfg.AI.MaxAttempts = 4
	}
	if cfg.AI.BackoffMillis <= 0 {
		cfg.AI.BackoffMillis = 200
	}
	if cfg.AI.TimeoutSeconds <= 0 {
		cfg.AI.TimeoutSeconds = 30
	}
	if cfg.Chunker.MinTokens <= 0 {
		cfg.Chunker.MinTokens = 200
	}
	if cfg.Chunker.MaxTokens <= 0 {
		cfg.Chunker.MaxTokens = 600
	}
	if cfg.Chunker.MaxTokens < cfg.Chunker.MinTokens {
		return fmt.Errorf("chunker.max_tokens must be >= chunker.min_tokens")
	}
	if cfg.Chunker.OverlapTokens < 0 {
		return fmt.Errorf("chunker.overlap_tokens must be >= 0")
	}
	if cfg.Chunker.OverlapTokens == 0 {
		cfg.Chunker.OverlapTokens = 50
	}
	if cfg.Index.Type == "" {
		cfg.Index.Type = "qdrant"
	}
	if cfg.Index.Collection == "" {
		cfg.Index.Collection = "textbook_chunks"
	}
	if cfg.Source.Type == "" {
		cfg.Source.Type = "local"
	}
	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.MinScore < 0 {
		return fmt.Errorf("retrieval.min_score must be >= 0")
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Schedule.Workers <= 0 {
		cfg.Schedule.Workers = 4
	}
	return nil
}
