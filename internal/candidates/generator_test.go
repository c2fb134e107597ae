package candidates

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionagent/agent/internal/domain"
)

func expiry(days int) time.Time {
	return time.Now().AddDate(0, 0, days)
}

func TestGenerateSingleCandidate(t *testing.T) {
	g := New(zerolog.Nop())
	exp := expiry(30)
	contracts := []domain.OptionContract{
		{Symbol: "XYZ", Expiry: exp, Strike: 95, Type: domain.OptionPut, Bid: 1.05, Ask: 1.07, Delta: -0.18, OpenInterest: 250},
		{Symbol: "XYZ", Expiry: exp, Strike: 90, Type: domain.OptionPut, Bid: 0.35, Ask: 0.37, Delta: -0.08, OpenInterest: 200},
	}

	out := g.Generate("XYZ", 100, contracts)
	require.Len(t, out, 1)

	c := out[0]
	assert.InDelta(t, 0.70, c.MaxProfit, 0.01)
	assert.InDelta(t, 4.30, c.MaxLoss, 0.01)
	assert.Equal(t, "put_credit_spread", c.Strategy)
	assert.NotNil(t, c.ShortLeg())
	assert.NotNil(t, c.LongLeg())
}

func TestGenerateRejectsLowRiskReward(t *testing.T) {
	g := New(zerolog.Nop())
	exp := expiry(30)
	// width 20, entry_mid tiny -> risk/reward below 0.15
	contracts := []domain.OptionContract{
		{Symbol: "XYZ", Expiry: exp, Strike: 95, Type: domain.OptionPut, Bid: 0.10, Ask: 0.12, Delta: -0.05},
		{Symbol: "XYZ", Expiry: exp, Strike: 75, Type: domain.OptionPut, Bid: 0.01, Ask: 0.02, Delta: -0.01},
	}
	out := g.Generate("XYZ", 100, contracts)
	assert.Empty(t, out)
}

func TestGenerateSkipsITMPuts(t *testing.T) {
	g := New(zerolog.Nop())
	exp := expiry(30)
	contracts := []domain.OptionContract{
		{Symbol: "XYZ", Expiry: exp, Strike: 120, Type: domain.OptionPut, Bid: 20, Ask: 20.5, Delta: -0.9},
	}
	out := g.Generate("XYZ", 100, contracts)
	assert.Empty(t, out, "strike above price must be excluded")
}

func TestGenerateFallsBackToLowestStrikeWhenFewRemain(t *testing.T) {
	g := New(zerolog.Nop())
	exp := expiry(30)
	contracts := []domain.OptionContract{
		{Symbol: "XYZ", Expiry: exp, Strike: 95, Type: domain.OptionPut, Bid: 1.0, Ask: 1.1, Delta: -0.2},
		{Symbol: "XYZ", Expiry: exp, Strike: 90, Type: domain.OptionPut, Bid: 0.3, Ask: 0.35, Delta: -0.1},
	}
	out := g.Generate("XYZ", 100, contracts)
	require.Len(t, out, 1)
	assert.Equal(t, 90.0, out[0].LongLeg().Contract.Strike)
}

func TestGenerateLimitsToFirstThreeExpiries(t *testing.T) {
	g := New(zerolog.Nop())
	var contracts []domain.OptionContract
	for i := 1; i <= 5; i++ {
		exp := expiry(i * 10)
		contracts = append(contracts,
			domain.OptionContract{Symbol: "XYZ", Expiry: exp, Strike: 95, Type: domain.OptionPut, Bid: 1.0, Ask: 1.1, Delta: -0.2},
			domain.OptionContract{Symbol: "XYZ", Expiry: exp, Strike: 90, Type: domain.OptionPut, Bid: 0.3, Ask: 0.35, Delta: -0.1},
		)
	}
	out := g.Generate("XYZ", 100, contracts)

	seen := map[string]bool{}
	for _, c := range out {
		seen[c.ShortLeg().Contract.Expiry.Format("2006-01-02")] = true
	}
	assert.LessOrEqual(t, len(seen), 3)
}
