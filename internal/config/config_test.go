package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Port:                8090,
		ProviderConcurrency: 2,
		ProviderRatePerSec:  2,
		HighWeightThreshold: 0.055,
		TierEliteMin:        90,
		TierQualityMin:      75,
		TierSpeculativeMin:  60,

		EliteSelectCap:       5,
		QualitySelectCap:     10,
		SpeculativeSelectCap: 5,
		CapPerSector:         3,
		CapPerSymbol:         2,
		CapPerStrategy:       10,
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := validConfig()
	cfg.Port = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveConcurrency(t *testing.T) {
	cfg := validConfig()
	cfg.ProviderConcurrency = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangeHighWeightThreshold(t *testing.T) {
	cfg := validConfig()
	cfg.HighWeightThreshold = 1.5
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsOutOfOrderTierThresholds(t *testing.T) {
	cfg := validConfig()
	cfg.TierQualityMin = cfg.TierEliteMin
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveDiversificationCap(t *testing.T) {
	cfg := validConfig()
	cfg.CapPerSymbol = 0
	assert.Error(t, cfg.Validate())
}

func TestGetEnvAsStringSliceSplitsAndTrims(t *testing.T) {
	t.Setenv("TEST_WATCHLIST", "AAPL, MSFT ,, GOOG")
	assert.Equal(t, []string{"AAPL", "MSFT", "GOOG"}, getEnvAsStringSlice("TEST_WATCHLIST", nil))
}

func TestGetEnvAsStringSliceFallsBackWhenUnset(t *testing.T) {
	assert.Nil(t, getEnvAsStringSlice("TEST_WATCHLIST_UNSET", nil))
}
