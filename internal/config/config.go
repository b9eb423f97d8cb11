// Package config loads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/markmybytes/HKETA-Server/internal/eta"
)

// Config holds all configuration for the server and sampler binaries.
type Config struct {
	// HTTP server
	Port        string
	CORSOrigins []string

	// Dataset
	DatabaseURL string
	SQLitePath  string

	// ETA cache
	CacheTTLDefault time.Duration
	CacheTTL        map[eta.Provider]time.Duration
	ServeStale      bool

	// Accuracy pipeline
	TargetsFile         string
	SampleInterval      time.Duration
	ObserveGrace        time.Duration
	ScoreInterval       time.Duration
	RetentionDays       int
	CleanupInterval     time.Duration
	ConfidenceProviders []eta.Provider
}

// Load reads configuration from environment variables with sensible
// defaults. Durations accept Go duration strings ("25s", "10m") or bare
// integers, read as seconds.
func Load() *Config {
	cfg := &Config{
		// HTTP server
		Port:        getEnv("PORT", "8080"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),

		// Dataset
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SQLitePath:  getEnv("SQLITE_PATH", "data/hketa.db"),

		// ETA cache
		CacheTTLDefault: getEnvDuration("CACHE_TTL_DEFAULT", 25*time.Second),
		ServeStale:      getEnvBool("SERVE_STALE", false),

		// Accuracy pipeline
		TargetsFile:     getEnv("TARGETS_FILE", "targets.yaml"),
		SampleInterval:  getEnvDuration("SAMPLE_INTERVAL", time.Minute),
		ObserveGrace:    getEnvDuration("OBSERVE_GRACE", 10*time.Minute),
		ScoreInterval:   getEnvDuration("SCORE_INTERVAL", 30*time.Minute),
		RetentionDays:   getEnvInt("RETENTION_DAYS", 90),
		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour),
	}

	// Per-provider TTL overrides, e.g. CACHE_TTL_KMB=10s.
	cfg.CacheTTL = make(map[eta.Provider]time.Duration)
	for _, p := range eta.Providers() {
		key := "CACHE_TTL_" + strings.ToUpper(string(p))
		if value := os.Getenv(key); value != "" {
			cfg.CacheTTL[p] = getEnvDuration(key, cfg.CacheTTLDefault)
		}
	}

	for _, raw := range splitList(getEnv("CONFIDENCE_PROVIDERS", "kmb,mtr_bus")) {
		if p, err := eta.ParseProvider(raw); err == nil {
			cfg.ConfidenceProviders = append(cfg.ConfidenceProviders, p)
		}
	}

	return cfg
}

// TTLFor returns the cache TTL for a provider, falling back to the default.
func (c *Config) TTLFor(p eta.Provider) time.Duration {
	if ttl, ok := c.CacheTTL[p]; ok {
		return ttl
	}
	return c.CacheTTLDefault
}

// Retention returns the rolling sample retention window as a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
