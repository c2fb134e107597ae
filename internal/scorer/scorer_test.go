package scorer

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionagent/agent/internal/domain"
	"github.com/optionagent/agent/internal/gateway"
)

func TestYieldScoreCapsAt100(t *testing.T) {
	c := domain.Candidate{MaxProfit: 500, MaxLoss: 1}
	assert.Equal(t, 100.0, YieldScore(c))
}

func TestIPSScoreAllPass(t *testing.T) {
	results := []domain.FactorResult{{Weight: 0.5, Passed: true}, {Weight: 0.5, Passed: true}}
	assert.Equal(t, 100.0, IPSScore(results))
}

func TestTierBoundaries(t *testing.T) {
	s := New(gateway.NewFake(), DefaultConfig(), zerolog.Nop())
	assert.Equal(t, domain.TierElite, s.TierFor(90))
	assert.Equal(t, domain.TierQuality, s.TierFor(75))
	assert.Equal(t, domain.TierSpeculative, s.TierFor(60))
	assert.Equal(t, domain.TierNone, s.TierFor(59.9))
}

func TestCompositeWithoutHistoricalData(t *testing.T) {
	c := Composite(80, 90, domain.HistoricalAnalysis{HasData: false})
	assert.InDelta(t, 0.6*80+0.4*90, c, 0.0001)
}

func TestNoHistoricalDataYieldsZeroWinRateLowConfidence(t *testing.T) {
	fake := gateway.NewFake()
	s := New(fake, DefaultConfig(), zerolog.Nop())
	result := s.historicalAnalysis(context.Background(), domain.Candidate{Symbol: "XYZ", Strategy: "put_credit_spread"}, "ips-1", "user-1")
	assert.False(t, result.HasData)
	assert.Equal(t, 0.0, result.WinRate)
	assert.Equal(t, 0.0, result.AvgROI)
	assert.Equal(t, "low", result.Confidence)
}

func TestSelectAppliesSectorAndSymbolCaps(t *testing.T) {
	var candidates []domain.Candidate
	for i := 0; i < 5; i++ {
		candidates = append(candidates, domain.Candidate{
			Symbol: "AAA", Sector: "tech", Strategy: "put_credit_spread",
			Tier: domain.TierElite, Composite: float64(100 - i),
		})
	}
	s := New(gateway.NewFake(), DefaultConfig(), zerolog.Nop())
	selected := s.Select(candidates)
	assert.LessOrEqual(t, len(selected), DefaultConfig().CapPerSymbol)
}

func TestSelectOrdersByTierThenComposite(t *testing.T) {
	candidates := []domain.Candidate{
		{Symbol: "A", Sector: "tech", Strategy: "s", Tier: domain.TierQuality, Composite: 99},
		{Symbol: "B", Sector: "health", Strategy: "s", Tier: domain.TierElite, Composite: 50},
	}
	s := New(gateway.NewFake(), DefaultConfig(), zerolog.Nop())
	selected := s.Select(candidates)
	require.Len(t, selected, 2)
	assert.Equal(t, "B", selected[0].Symbol, "elite tier must sort ahead of quality regardless of composite")
}

func TestSelectTieBreaksBySymbolThenStrike(t *testing.T) {
	candidates := []domain.Candidate{
		{
			Symbol: "B", Sector: "tech", Strategy: "s", Tier: domain.TierElite, Composite: 80,
			Legs: []domain.Leg{{Contract: domain.OptionContract{Strike: 90}, Side: "short"}},
		},
		{
			Symbol: "A", Sector: "health", Strategy: "s", Tier: domain.TierElite, Composite: 80,
			Legs: []domain.Leg{{Contract: domain.OptionContract{Strike: 95}, Side: "short"}},
		},
	}
	s := New(gateway.NewFake(), DefaultConfig(), zerolog.Nop())
	selected := s.Select(candidates)
	require.Len(t, selected, 2)
	assert.Equal(t, "A", selected[0].Symbol)
}
