// Package config loads application configuration from environment
// variables (and an optional .env file) into a typed Config.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration for the candidate-generation
// agent: provider credentials, gateway policy knobs, tier/diversification
// defaults, and server settings.
type Config struct {
	DataDir  string
	Port     int
	LogLevel string
	Pretty   bool

	QuotesAPIKey    string
	OptionsAPIKey   string
	NewsAPIKey      string
	MacroAPIKey     string
	VectorAPIKey    string
	ReasoningAPIKey string

	QuotesBaseURL  string
	OptionsBaseURL string
	NewsBaseURL    string
	MacroBaseURL   string
	VectorBaseURL  string
	ReasoningURL   string

	ProviderConcurrency int
	ProviderRatePerSec  float64
	ProviderCallBudget  int
	ProviderTimeout     time.Duration
	ReasoningTimeout    time.Duration

	VectorStoreK int

	HighWeightThreshold float64

	TierEliteMin       float64
	TierQualityMin     float64
	TierSpeculativeMin float64

	EliteSelectCap       int
	QualitySelectCap     int
	SpeculativeSelectCap int
	CapPerSector         int
	CapPerSymbol         int
	CapPerStrategy       int

	S3ArchiveBucket string
	S3ArchiveRegion string

	CronSchedule   string
	BatchWatchlist []string
}

// Load reads configuration from the environment, applying the documented
// defaults for anything unset.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DataDir:  getEnv("AGENT_DATA_DIR", "./data"),
		Port:     getEnvAsInt("AGENT_PORT", 8090),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Pretty:   getEnvAsBool("LOG_PRETTY", false),

		QuotesAPIKey:    getEnv("QUOTES_API_KEY", ""),
		OptionsAPIKey:   getEnv("OPTIONS_API_KEY", ""),
		NewsAPIKey:      getEnv("NEWS_API_KEY", ""),
		MacroAPIKey:     getEnv("MACRO_API_KEY", ""),
		VectorAPIKey:    getEnv("VECTOR_API_KEY", ""),
		ReasoningAPIKey: getEnv("REASONING_API_KEY", ""),

		QuotesBaseURL:  getEnv("QUOTES_BASE_URL", ""),
		OptionsBaseURL: getEnv("OPTIONS_BASE_URL", ""),
		NewsBaseURL:    getEnv("NEWS_BASE_URL", ""),
		MacroBaseURL:   getEnv("MACRO_BASE_URL", ""),
		VectorBaseURL:  getEnv("VECTOR_BASE_URL", ""),
		ReasoningURL:   getEnv("REASONING_URL", ""),

		ProviderConcurrency: getEnvAsInt("PROVIDER_CONCURRENCY", 2),
		ProviderRatePerSec:  getEnvAsFloat("PROVIDER_RATE_PER_SEC", 2),
		ProviderCallBudget:  getEnvAsInt("PROVIDER_CALL_BUDGET", 500),
		ProviderTimeout:     time.Duration(getEnvAsInt("PROVIDER_TIMEOUT_SECONDS", 30)) * time.Second,
		ReasoningTimeout:    time.Duration(getEnvAsInt("REASONING_TIMEOUT_SECONDS", 120)) * time.Second,

		VectorStoreK: getEnvAsInt("VECTOR_STORE_K", 10),

		HighWeightThreshold: getEnvAsFloat("HIGH_WEIGHT_THRESHOLD", 0.055),

		TierEliteMin:       getEnvAsFloat("TIER_ELITE_MIN", 90),
		TierQualityMin:     getEnvAsFloat("TIER_QUALITY_MIN", 75),
		TierSpeculativeMin: getEnvAsFloat("TIER_SPECULATIVE_MIN", 60),

		EliteSelectCap:       getEnvAsInt("ELITE_SELECT_CAP", 5),
		QualitySelectCap:     getEnvAsInt("QUALITY_SELECT_CAP", 10),
		SpeculativeSelectCap: getEnvAsInt("SPECULATIVE_SELECT_CAP", 5),
		CapPerSector:         getEnvAsInt("CAP_PER_SECTOR", 3),
		CapPerSymbol:         getEnvAsInt("CAP_PER_SYMBOL", 2),
		CapPerStrategy:       getEnvAsInt("CAP_PER_STRATEGY", 10),

		S3ArchiveBucket: getEnv("S3_ARCHIVE_BUCKET", ""),
		S3ArchiveRegion: getEnv("S3_ARCHIVE_REGION", "us-east-1"),

		CronSchedule:   getEnv("BATCH_CRON_SCHEDULE", ""),
		BatchWatchlist: getEnvAsStringSlice("BATCH_WATCHLIST", nil),
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configuration that would make the agent unable to run
// at all. It intentionally does not require provider API keys: a dev
// deployment may run entirely against the gateway's Fake.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.ProviderConcurrency <= 0 {
		return fmt.Errorf("config: provider concurrency must be positive, got %d", c.ProviderConcurrency)
	}
	if c.ProviderRatePerSec <= 0 {
		return fmt.Errorf("config: provider rate per second must be positive, got %f", c.ProviderRatePerSec)
	}
	if c.HighWeightThreshold <= 0 || c.HighWeightThreshold >= 1 {
		return fmt.Errorf("config: high weight threshold must be in (0,1), got %f", c.HighWeightThreshold)
	}
	if !(c.TierEliteMin > c.TierQualityMin && c.TierQualityMin > c.TierSpeculativeMin && c.TierSpeculativeMin > 0) {
		return fmt.Errorf("config: tier thresholds must satisfy elite > quality > speculative > 0, got %f/%f/%f", c.TierEliteMin, c.TierQualityMin, c.TierSpeculativeMin)
	}
	if c.EliteSelectCap <= 0 || c.QualitySelectCap <= 0 || c.SpeculativeSelectCap <= 0 {
		return fmt.Errorf("config: tier select caps must be positive, got elite=%d quality=%d speculative=%d", c.EliteSelectCap, c.QualitySelectCap, c.SpeculativeSelectCap)
	}
	if c.CapPerSector <= 0 || c.CapPerSymbol <= 0 || c.CapPerStrategy <= 0 {
		return fmt.Errorf("config: diversification caps must be positive, got sector=%d symbol=%d strategy=%d", c.CapPerSector, c.CapPerSymbol, c.CapPerStrategy)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if iv, err := strconv.Atoi(v); err == nil {
			return iv
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if fv, err := strconv.ParseFloat(v, 64); err == nil {
			return fv
		}
	}
	return defaultValue
}

// getEnvAsStringSlice splits a comma-separated env var into a trimmed,
// non-empty-entry slice, falling back to defaultValue when unset.
func getEnvAsStringSlice(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if bv, err := strconv.ParseBool(v); err == nil {
			return bv
		}
	}
	return defaultValue
}
