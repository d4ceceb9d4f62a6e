package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Canonical store. Empty disables persistence (enrichment still works;
	// ingestion requires it).
	DatabaseURL string

	// Jurisdiction catalog and ingestion layer files. Empty paths use the
	// embedded defaults.
	CatalogPath string
	LayersPath  string

	// External spatial query policy.
	QueryTimeout  time.Duration
	RetryAttempts int
	RetryDelays   []time.Duration

	// Observability sink: Kafka when enabled, structured logs otherwise.
	KafkaBrokers   []string
	CallLogTopic   string
	CallLogEnabled bool

	// Enrichment result cache.
	RedisAddr    string
	CacheEnabled bool
	CacheTTL     time.Duration

	// Secondary (crowd-sourced) data source.
	OverpassEnabled bool
	OverpassURL     string
	OverpassTimeout time.Duration

	// Ingestion run bounds.
	SeedTimeBudget time.Duration
	SeedPageSize   int
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	queryTimeout, err := parseDuration("QUERY_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	overpassTimeout, err := parseDuration("OVERPASS_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDuration("CACHE_TTL", "15m")
	if err != nil {
		return nil, err
	}
	seedBudget, err := parseDuration("SEED_TIME_BUDGET", "50s")
	if err != nil {
		return nil, err
	}

	retryAttempts, err := parseInt("RETRY_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	seedPageSize, err := parseInt("SEED_PAGE_SIZE", 100)
	if err != nil {
		return nil, err
	}

	retryDelays, err := parseDelays(envOrDefault("RETRY_DELAYS", "500ms,1s,2s"))
	if err != nil {
		return nil, err
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	cacheEnabled := redisAddr != ""
	if v := os.Getenv("CACHE_ENABLED"); v != "" {
		cacheEnabled = v == "true"
	}

	brokers := parseBrokers(envOrDefault("KAFKA_BROKERS", ""))
	callLogEnabled := len(brokers) > 0
	if v := os.Getenv("CALLLOG_ENABLED"); v != "" {
		callLogEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DatabaseURL: os.Getenv("DATABASE_URL"),
		CatalogPath: os.Getenv("CATALOG_PATH"),
		LayersPath:  os.Getenv("LAYERS_PATH"),

		QueryTimeout:  queryTimeout,
		RetryAttempts: retryAttempts,
		RetryDelays:   retryDelays,

		KafkaBrokers:   brokers,
		CallLogTopic:   envOrDefault("KAFKA_CALLLOG_TOPIC", "gis-external-calls"),
		CallLogEnabled: callLogEnabled,

		RedisAddr:    redisAddr,
		CacheEnabled: cacheEnabled,
		CacheTTL:     cacheTTL,

		OverpassEnabled: envOrDefault("OVERPASS_ENABLED", "true") == "true",
		OverpassURL:     envOrDefault("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
		OverpassTimeout: overpassTimeout,

		SeedTimeBudget: seedBudget,
		SeedPageSize:   seedPageSize,
	}

	if cfg.RetryAttempts < 1 {
		return nil, errors.New("RETRY_ATTEMPTS must be at least 1")
	}
	if cfg.SeedPageSize < 1 {
		return nil, errors.New("SEED_PAGE_SIZE must be at least 1")
	}
	if cfg.CallLogEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("CALLLOG_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.CacheEnabled && cfg.RedisAddr == "" {
		return nil, errors.New("CACHE_ENABLED is true but REDIS_ADDR is not set")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	v := envOrDefault(key, def)
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDelays(s string) ([]time.Duration, error) {
	parts := strings.Split(s, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		d, err := time.ParseDuration(strings.TrimSpace(p))
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid RETRY_DELAYS entry: %q", p)
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, errors.New("RETRY_DELAYS must not be empty")
	}
	return out, nil
}
