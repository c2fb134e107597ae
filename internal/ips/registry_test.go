package ips

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionagent/agent/internal/domain"
)

func testRegistry() *Registry {
	return NewRegistry(DefaultHighWeightThreshold, zerolog.Nop())
}

func TestRegistryAliasResolvesToSameEntry(t *testing.T) {
	r := testRegistry()
	canonical, ok := r.Lookup("opt-delta")
	require.True(t, ok)
	alias, ok := r.Lookup("Delta")
	require.True(t, ok)
	assert.Equal(t, canonical.key, alias.key)
}

func TestRegistryUnknownKey(t *testing.T) {
	r := testRegistry()
	assert.False(t, r.Known("not-a-real-factor"))
}

func TestDeltaToleranceBoundary(t *testing.T) {
	r := testRegistry()
	f := domain.Factor{Key: "opt-delta", Weight: 1, Direction: domain.DirLTE, Threshold: 0.20}

	ctx := &EvalContext{Leg: &domain.OptionContract{Delta: -0.21}} // |delta| = 0.21 = threshold+0.01
	res, err := r.Evaluate(f, ctx)
	require.NoError(t, err)
	assert.True(t, res.Passed, "threshold+0.01 must pass")

	ctx2 := &EvalContext{Leg: &domain.OptionContract{Delta: -0.211}}
	res2, err := r.Evaluate(f, ctx2)
	require.NoError(t, err)
	assert.False(t, res2.Passed, "threshold+0.011 must fail")
}

func TestBidAskSpreadToleranceBoundary(t *testing.T) {
	r := testRegistry()
	f := domain.Factor{Key: "opt-bid-ask-spread", Weight: 1, Direction: domain.DirLTE, Threshold: 0.10}

	ctx := &EvalContext{Leg: &domain.OptionContract{Bid: 1.00, Ask: 1.12}} // spread 0.12 = threshold+0.02
	res, err := r.Evaluate(f, ctx)
	require.NoError(t, err)
	assert.True(t, res.Passed)

	ctx2 := &EvalContext{Leg: &domain.OptionContract{Bid: 1.00, Ask: 1.121}}
	res2, err := r.Evaluate(f, ctx2)
	require.NoError(t, err)
	assert.False(t, res2.Passed)
}

func TestIVRankNonBlockingBelow20Samples(t *testing.T) {
	r := testRegistry()
	f := domain.Factor{Key: "iv-rank", Weight: 1, Direction: domain.DirGTE, Threshold: 50}
	ctx := &EvalContext{IVHistorySufficient: false}
	res, err := r.Evaluate(f, ctx)
	require.NoError(t, err)
	assert.True(t, res.Passed, "insufficient IV history must pass, not fail")
}

func TestMissingValueFailsByDefault(t *testing.T) {
	r := testRegistry()
	f := domain.Factor{Key: "fund-pe", Weight: 1, Direction: domain.DirLT, Threshold: 20}
	ctx := &EvalContext{Overview: map[string]any{}}
	res, err := r.Evaluate(f, ctx)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Nil(t, res.Value)
}

func TestBetweenIsTwoSided(t *testing.T) {
	f := domain.Factor{Direction: domain.DirBetween, Threshold: 10, ThresholdMax: 20}
	assert.True(t, compare(10, f.Direction, f.Threshold, f.ThresholdMax, 0))
	assert.True(t, compare(15, f.Direction, f.Threshold, f.ThresholdMax, 0))
	assert.True(t, compare(20, f.Direction, f.Threshold, f.ThresholdMax, 0))
	assert.False(t, compare(9.9, f.Direction, f.Threshold, f.ThresholdMax, 0))
	assert.False(t, compare(20.1, f.Direction, f.Threshold, f.ThresholdMax, 0))
}

func TestEvaluateIsDeterministic(t *testing.T) {
	r := testRegistry()
	f := domain.Factor{Key: "opt-delta", Weight: 1, Direction: domain.DirLTE, Threshold: 0.30}
	ctx := &EvalContext{Leg: &domain.OptionContract{Delta: -0.15}}

	first, err := r.Evaluate(f, ctx)
	require.NoError(t, err)
	second, err := r.Evaluate(f, ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Passed, second.Passed)
	assert.Equal(t, *first.Value, *second.Value)
}
