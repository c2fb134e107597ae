package ips

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/optionagent/agent/internal/domain"
)

// entry is one registered factor: its canonical key, the extractor that
// pulls a value out of an EvalContext, and the comparison tolerance
// (zero for all but two documented factors).
type entry struct {
	key         string
	displayName string
	aliases     []string
	scope       domain.Scope
	extract     func(*EvalContext) extractResult
	tolerance   float64
	nonBlocking bool // missing() due to insufficient history still passes
}

// Registry is the lookup table mapping both canonical factor keys and
// user-entered display-name aliases to their extractor/comparator pair.
// It also carries the configured high-weight cutoff used to split a
// factor list across the cascade's S3/S4 stages.
type Registry struct {
	mu                  sync.RWMutex
	byKey               map[string]*entry
	highWeightThreshold float64
	log                 zerolog.Logger
}

// DefaultHighWeightThreshold is the normalized-weight cutoff used when a
// caller doesn't have a configured one (tests, and NewRegistry callers
// that pass 0).
const DefaultHighWeightThreshold = 0.055

// NewRegistry builds a Registry pre-populated with every supported
// factor. highWeightThreshold of 0 falls back to DefaultHighWeightThreshold.
func NewRegistry(highWeightThreshold float64, log zerolog.Logger) *Registry {
	if highWeightThreshold == 0 {
		highWeightThreshold = DefaultHighWeightThreshold
	}
	r := &Registry{
		byKey:               map[string]*entry{},
		highWeightThreshold: highWeightThreshold,
		log:                 log.With().Str("component", "factor_registry").Logger(),
	}
	for _, e := range builtinFactors() {
		r.register(e)
	}
	return r
}

// IsHighWeight reports whether a normalized factor weight clears the
// registry's configured high-weight cutoff.
func (r *Registry) IsHighWeight(weight float64) bool {
	return weight >= r.highWeightThreshold
}

func (r *Registry) register(e entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[e.key] = &e
	for _, alias := range e.aliases {
		r.byKey[normalizeKey(alias)] = &e
	}
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// Lookup resolves a factor key or display-name alias to its registry
// entry. Unknown keys are reported by the caller as IPSSchemaError.
func (r *Registry) Lookup(key string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byKey[normalizeKey(key)]
	return e, ok
}

// Known reports whether key resolves to a registered factor.
func (r *Registry) Known(key string) bool {
	_, ok := r.Lookup(key)
	return ok
}

// Evaluate runs one Factor against a context bundle, producing a
// value/target/passed triple. A missing extraction is a fail unless the
// factor is a non-blocking one and the reason for the miss was
// insufficient history.
func (r *Registry) Evaluate(f domain.Factor, ectx *EvalContext) (domain.FactorResult, error) {
	e, ok := r.Lookup(f.Key)
	if !ok {
		return domain.FactorResult{}, fmt.Errorf("unknown factor key %q", f.Key)
	}

	res := e.extract(ectx)
	result := domain.FactorResult{
		Key:         e.key,
		DisplayName: e.displayName,
		Weight:      f.Weight,
		Target:      targetString(f.Direction, f.Threshold, f.ThresholdMax),
	}

	if res.insufficientHistory {
		if e.nonBlocking {
			result.Passed = true
			result.Target += " (insufficient history, non-blocking)"
			return result, nil
		}
		result.Passed = false
		return result, nil
	}

	if res.value == nil {
		result.Passed = false
		return result, nil
	}

	result.Value = res.value
	result.Passed = compare(*res.value, f.Direction, f.Threshold, f.ThresholdMax, e.tolerance)
	return result, nil
}

func targetString(dir domain.Direction, threshold, thresholdMax float64) string {
	switch dir {
	case domain.DirBetween:
		return fmt.Sprintf("between %.4g and %.4g", threshold, thresholdMax)
	case domain.DirLT:
		return fmt.Sprintf("< %.4g", threshold)
	case domain.DirLTE:
		return fmt.Sprintf("<= %.4g", threshold)
	case domain.DirGT:
		return fmt.Sprintf("> %.4g", threshold)
	case domain.DirGTE:
		return fmt.Sprintf(">= %.4g", threshold)
	case domain.DirEQ:
		return fmt.Sprintf("== %.4g", threshold)
	case domain.DirNEQ:
		return fmt.Sprintf("!= %.4g", threshold)
	default:
		return fmt.Sprintf("%v %.4g", dir, threshold)
	}
}
