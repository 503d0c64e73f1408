// Package config loads and validates substrate configuration from
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all substrate configuration.
type Config struct {
	// Determinism.
	Seed string // Replay seed; preserved in snapshots.

	// Event bus settings.
	BusCapacity int // Bounded ring size; oldest events drop when full.

	// Admission budget settings.
	BudgetWindow time.Duration
	BudgetLimit  int

	// Heartbeat intervals.
	LocalTickInterval       time.Duration
	GlobalTickInterval      time.Duration
	MarketplaceTickInterval time.Duration

	// Ollama settings (LLM shaping + embeddings).
	OllamaURL           string
	OllamaModel         string // Generative model for autogen shaping.
	EmbeddingModel      string
	EmbeddingDimensions int // Must match the embedding model's output.

	// Snapshot persistence.
	SnapshotPath     string // SQLite file; empty disables durable snapshots.
	SnapshotInterval time.Duration

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Seed:                    envStr("LOAF_SEED", "loaf"),
		BusCapacity:             envInt("LOAF_BUS_CAPACITY", 100_000),
		BudgetWindow:            envDuration("LOAF_BUDGET_WINDOW", 60*time.Second),
		BudgetLimit:             envInt("LOAF_BUDGET_LIMIT", 1000),
		LocalTickInterval:       envDuration("LOAF_LOCAL_TICK_INTERVAL", 15*time.Second),
		GlobalTickInterval:      envDuration("LOAF_GLOBAL_TICK_INTERVAL", 30*time.Second),
		MarketplaceTickInterval: envDuration("LOAF_MARKETPLACE_TICK_INTERVAL", 60*time.Second),
		OllamaURL:               envStr("OLLAMA_URL", ""),
		OllamaModel:             envStr("OLLAMA_MODEL", "llama3.1"),
		EmbeddingModel:          envStr("LOAF_EMBEDDING_MODEL", "mxbai-embed-large"),
		EmbeddingDimensions:     envInt("LOAF_EMBEDDING_DIMENSIONS", 1024),
		SnapshotPath:            envStr("LOAF_SNAPSHOT_PATH", ""),
		SnapshotInterval:        envDuration("LOAF_SNAPSHOT_INTERVAL", 5*time.Minute),
		OTELEndpoint:            envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:             envStr("OTEL_SERVICE_NAME", "loaf"),
		LogLevel:                envStr("LOAF_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.Seed == "" {
		return fmt.Errorf("config: LOAF_SEED must not be empty")
	}
	if c.BusCapacity <= 0 {
		return fmt.Errorf("config: LOAF_BUS_CAPACITY must be positive")
	}
	if c.BudgetWindow <= 0 || c.BudgetLimit <= 0 {
		return fmt.Errorf("config: budget window and limit must be positive")
	}
	if c.LocalTickInterval <= 0 || c.GlobalTickInterval <= 0 || c.MarketplaceTickInterval <= 0 {
		return fmt.Errorf("config: heartbeat intervals must be positive")
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("config: LOAF_EMBEDDING_DIMENSIONS must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
