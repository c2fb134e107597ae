package ips

import (
	"context"
	"fmt"

	"github.com/optionagent/agent/internal/domain"
)

// Store is the narrow persistence dependency the loader needs: fetch an
// IPS by ID in its raw, pre-normalization form.
type Store interface {
	GetIPS(ctx context.Context, id string) (domain.IPSConfig, error)
}

// Loader loads an IPSConfig and normalizes its factor weights.
type Loader struct {
	store    Store
	registry *Registry
}

// NewLoader builds a Loader backed by store and validating against registry.
func NewLoader(store Store, registry *Registry) *Loader {
	return &Loader{store: store, registry: registry}
}

// Load fetches the IPS by id, normalizes enabled factor weights so they
// sum to 1 (disabled factors contribute 0 and keep weight 0), and
// validates every factor key against the registry. An unknown key or a
// zero enabled-weight sum is reported as domain.KindIPSSchemaError.
func (l *Loader) Load(ctx context.Context, id string) (domain.IPSConfig, error) {
	cfg, err := l.store.GetIPS(ctx, id)
	if err != nil {
		return domain.IPSConfig{}, domain.NewAgentError(domain.KindIPSSchemaError, "", err)
	}

	var rawSum float64
	for _, f := range cfg.Factors {
		if !f.Enabled {
			continue
		}
		if !l.registry.Known(f.Key) {
			return domain.IPSConfig{}, domain.NewAgentError(
				domain.KindIPSSchemaError, "",
				fmt.Errorf("unknown factor key %q in ips %q", f.Key, id),
			)
		}
		if f.Direction == domain.DirBetween && f.Threshold > f.ThresholdMax {
			return domain.IPSConfig{}, domain.NewAgentError(
				domain.KindIPSSchemaError, "",
				fmt.Errorf("factor %q: threshold %.4g exceeds threshold_max %.4g", f.Key, f.Threshold, f.ThresholdMax),
			)
		}
		rawSum += f.RawWeight
	}
	if rawSum <= 0 {
		return domain.IPSConfig{}, domain.NewAgentError(
			domain.KindIPSSchemaError, "",
			fmt.Errorf("ips %q has no enabled factors with positive weight", id),
		)
	}

	normalized := make([]domain.Factor, len(cfg.Factors))
	for i, f := range cfg.Factors {
		if !f.Enabled {
			f.Weight = 0
			normalized[i] = f
			continue
		}
		f.Weight = f.RawWeight / rawSum
		normalized[i] = f
	}
	cfg.Factors = normalized
	return cfg, nil
}
