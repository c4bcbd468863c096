package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                string
	DatabaseURL         string
	DefaultStore        string
	RulesFile           string
	DefaultCurrency     string
	SupportedCurrencies []string
	DefaultLocale       string
	RenderCacheSize     int
	SettingsCacheTTL    time.Duration
	SlowRequest         time.Duration
}

// Load reads .env (if present) and then the process environment
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:            firstNonEmpty(strings.TrimSpace(getenv("PORT")), "8080"),
		DatabaseURL:     strings.TrimSpace(getenv("DATABASE_URL")),
		DefaultStore:    firstNonEmpty(strings.TrimSpace(getenv("DEFAULT_STORE")), "default"),
		RulesFile:       firstNonEmpty(strings.TrimSpace(getenv("RULES_FILE")), "rules.yaml"),
		DefaultCurrency: strings.ToUpper(firstNonEmpty(strings.TrimSpace(getenv("DEFAULT_CURRENCY")), "USD")),
		DefaultLocale:   firstNonEmpty(strings.TrimSpace(getenv("DEFAULT_LOCALE")), "en-US"),
	}
	cfg.Port = strings.TrimPrefix(cfg.Port, ":")

	if raw := strings.TrimSpace(getenv("SUPPORTED_CURRENCIES")); raw != "" {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				cfg.SupportedCurrencies = append(cfg.SupportedCurrencies, strings.ToUpper(c))
			}
		}
	}

	size, err := intOr(getenv("RENDER_CACHE_SIZE"), 4096)
	if err != nil {
		return nil, fmt.Errorf("RENDER_CACHE_SIZE: %w", err)
	}
	if size <= 0 {
		return nil, fmt.Errorf("RENDER_CACHE_SIZE must be positive, got %d", size)
	}
	cfg.RenderCacheSize = size

	if cfg.SettingsCacheTTL, err = durationOr(getenv("SETTINGS_CACHE_TTL"), 0); err != nil {
		return nil, fmt.Errorf("SETTINGS_CACHE_TTL: %w", err)
	}
	if cfg.SlowRequest, err = durationOr(getenv("SLOW_REQUEST_THRESHOLD"), 500*time.Millisecond); err != nil {
		return nil, fmt.Errorf("SLOW_REQUEST_THRESHOLD: %w", err)
	}

	return cfg, nil
}

// UsesDatabase reports whether stores are backed by Postgres rather than RulesFile
func (c *Config) UsesDatabase() bool {
	return c.DatabaseURL != ""
}

func intOr(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func durationOr(raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	return time.ParseDuration(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
