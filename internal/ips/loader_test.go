package ips

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionagent/agent/internal/domain"
)

type fakeStore struct {
	cfg domain.IPSConfig
	err error
}

func (f fakeStore) GetIPS(_ context.Context, _ string) (domain.IPSConfig, error) {
	return f.cfg, f.err
}

func TestLoaderNormalizesWeightsToOne(t *testing.T) {
	store := fakeStore{cfg: domain.IPSConfig{
		ID: "ips-1",
		Factors: []domain.Factor{
			{Key: "opt-delta", RawWeight: 30, Enabled: true, Direction: domain.DirLTE, Threshold: 0.2},
			{Key: "opt-open-interest", RawWeight: 60, Enabled: true, Direction: domain.DirGTE, Threshold: 100},
			{Key: "fund-pe", RawWeight: 10, Enabled: false, Direction: domain.DirLT, Threshold: 20},
		},
	}}
	l := NewLoader(store, testRegistry())
	cfg, err := l.Load(context.Background(), "ips-1")
	require.NoError(t, err)

	var sum float64
	for _, f := range cfg.Factors {
		sum += f.Weight
	}
	assert.True(t, math.Abs(sum-1.0) < 1e-6)
	assert.Equal(t, 0.0, cfg.Factors[2].Weight)
}

func TestLoaderRejectsUnknownFactorKey(t *testing.T) {
	store := fakeStore{cfg: domain.IPSConfig{
		ID: "ips-bad",
		Factors: []domain.Factor{
			{Key: "not-a-real-factor", RawWeight: 10, Enabled: true},
		},
	}}
	l := NewLoader(store, testRegistry())
	_, err := l.Load(context.Background(), "ips-bad")
	require.Error(t, err)

	var agentErr *domain.AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, domain.KindIPSSchemaError, agentErr.Kind)
}

func TestLoaderRejectsInvertedBetweenThresholds(t *testing.T) {
	store := fakeStore{cfg: domain.IPSConfig{
		ID: "ips-inverted",
		Factors: []domain.Factor{
			{Key: "opt-delta", RawWeight: 10, Enabled: true, Direction: domain.DirBetween, Threshold: 0.5, ThresholdMax: 0.1},
		},
	}}
	l := NewLoader(store, testRegistry())
	_, err := l.Load(context.Background(), "ips-inverted")
	require.Error(t, err)
}

func TestIsHighWeightCutoff(t *testing.T) {
	r := testRegistry()
	assert.True(t, r.IsHighWeight(0.055))
	assert.False(t, r.IsHighWeight(0.0549))
}
