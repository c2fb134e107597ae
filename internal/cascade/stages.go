package cascade

import (
	"context"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/optionagent/agent/internal/candidates"
	"github.com/optionagent/agent/internal/domain"
	"github.com/optionagent/agent/internal/gateway"
	"github.com/optionagent/agent/internal/ips"
	"github.com/optionagent/agent/internal/scorer"
)

// ChainPersister is the narrow slice of the run repository the cascade
// needs to persist raw chain pulls as it fetches them.
type ChainPersister interface {
	PersistRawOptions(ctx context.Context, snapshot domain.RawOptionSnapshot) error
}

// Result is everything the cascade produced for one run, handed off to
// the scorer.
type Result struct {
	Candidates []domain.Candidate
	NearMiss   []domain.Candidate
	Decisions  []domain.ReasoningDecision
	Errors     []domain.RunError
	Empty      bool // true if C1/C2/C3 terminated the run with no candidates
}

// Runner drives stages S1-S4 and checkpoints C1-C3 for one run.
type Runner struct {
	gw        gateway.Gateway
	registry  *ips.Registry
	generator *candidates.Generator
	persister ChainPersister
	scorerSvc *scorer.Scorer
	log       zerolog.Logger
}

// New builds a Runner. scorerSvc supplies the tier thresholds used to
// label near-miss finalizations; it is otherwise unused by the cascade.
func New(gw gateway.Gateway, registry *ips.Registry, generator *candidates.Generator, persister ChainPersister, scorerSvc *scorer.Scorer, log zerolog.Logger) *Runner {
	return &Runner{gw: gw, registry: registry, generator: generator, persister: persister, scorerSvc: scorerSvc, log: log.With().Str("component", "cascade").Logger()}
}

// Run executes the full cascade for the given watchlist against cfg.
func (r *Runner) Run(ctx context.Context, runID string, symbols []string, cfg domain.IPSConfig, macro map[string]float64) Result {
	var res Result
	generalFactors, chainFactors := splitByScope(cfg.Factors)
	highGeneral, _ := r.splitByWeight(generalFactors)
	highChain, lowChain := r.splitByWeight(chainFactors)

	// S1
	survivors, prices, failedReasons, s1Errs := r.stageS1(ctx, runID, symbols, highGeneral, macro)
	res.Errors = append(res.Errors, s1Errs...)

	if len(survivors) == 0 {
		decision := r.checkpointC1(ctx, symbols, failedReasons)
		res.Decisions = append(res.Decisions, decision)
		if decision.Decision == domain.DecisionReject {
			res.Empty = true
			return res
		}
		survivors = decision.SymbolsToAdd
		if len(survivors) == 0 {
			res.Empty = true
			return res
		}
	}

	// S2
	chainsBySymbol, s2Errs := r.stageS2(ctx, runID, survivors)
	res.Errors = append(res.Errors, s2Errs...)

	// S3
	passed, nearMiss, s3Errs := r.stageS3(ctx, survivors, chainsBySymbol, prices, highChain, macro)
	res.Errors = append(res.Errors, s3Errs...)

	if len(passed) == 0 {
		decision := r.checkpointC2(ctx, nearMiss)
		res.Decisions = append(res.Decisions, decision)
		if decision.Decision == domain.DecisionReject {
			res.Empty = true
			return res
		}
		// PROCEED / PROCEED_WITH_CAUTION without relaxed-threshold rerun:
		// fall through to S4 over whatever near-misses exist is out of
		// scope (optional per decision); treat as proceeding with zero
		// candidates, handled by C3 below.
	}

	// S4
	final, s4Errs := r.stageS4(passed, lowChain)
	res.Errors = append(res.Errors, s4Errs...)

	if len(final) == 0 {
		if len(nearMiss) > 0 {
			return r.finalizeFromNearMiss(res, nearMiss, cfg)
		}
		decision := r.checkpointC3(ctx)
		res.Decisions = append(res.Decisions, decision)
		res.Empty = decision.Decision == domain.DecisionReject
		return res
	}

	res.Candidates = final
	return res
}

func splitByScope(factors []domain.Factor) (general, chain []domain.Factor) {
	for _, f := range factors {
		if !f.Enabled {
			continue
		}
		if f.Scope == domain.ScopeGeneral {
			general = append(general, f)
		} else {
			chain = append(chain, f)
		}
	}
	return general, chain
}

func (r *Runner) splitByWeight(factors []domain.Factor) (high, low []domain.Factor) {
	for _, f := range factors {
		if r.registry.IsHighWeight(f.Weight) {
			high = append(high, f)
		} else {
			low = append(low, f)
		}
	}
	return high, low
}

func (r *Runner) stageS1(ctx context.Context, runID string, symbols []string, factors []domain.Factor, macro map[string]float64) ([]string, map[string]float64, map[string]string, []domain.RunError) {
	var survivors []string
	prices := map[string]float64{}
	failedReasons := map[string]string{}
	var allErrs []domain.RunError

	for _, symbol := range symbols {
		ectx, errs := buildGeneralContext(ctx, r.gw, runID, symbol, macro)
		prices[symbol] = ectx.Price
		allErrs = append(allErrs, errs...)
		if len(errs) > 0 {
			// fail-open: a symbol with fetch errors still survives
			survivors = append(survivors, symbol)
			continue
		}

		allPass := true
		var failedFactor string
		for _, f := range factors {
			result, err := r.registry.Evaluate(f, ectx)
			if err != nil {
				allErrs = append(allErrs, domain.RunError{Kind: domain.KindIPSSchemaError, Symbol: symbol, Stage: "s1_eval", Message: err.Error()})
				continue
			}
			if !result.Passed {
				allPass = false
				failedFactor = result.DisplayName
				break
			}
		}
		if allPass {
			survivors = append(survivors, symbol)
		} else {
			failedReasons[symbol] = failedFactor
		}
	}
	return survivors, prices, failedReasons, allErrs
}

func (r *Runner) checkpointC1(ctx context.Context, symbols []string, failedReasons map[string]string) domain.ReasoningDecision {
	raw, err := r.gw.Reason(ctx, c1Prompt(symbols, failedReasons))
	if err != nil {
		return degradedReject("C1", err)
	}
	return parseCheckpoint("C1", raw)
}

func (r *Runner) stageS2(ctx context.Context, runID string, symbols []string) (map[string][]domain.OptionContract, []domain.RunError) {
	out := map[string][]domain.OptionContract{}
	var errs []domain.RunError
	for _, symbol := range symbols {
		chain, err := r.gw.OptionsChain(ctx, symbol)
		if err != nil {
			errs = append(errs, domain.RunError{Kind: classify(err), Symbol: symbol, Stage: "s2_chain", Message: err.Error()})
			continue
		}
		contracts := make([]domain.OptionContract, 0, len(chain.Contracts))
		for _, dto := range chain.Contracts {
			contracts = append(contracts, dto.ToDomain(0))
		}
		out[symbol] = contracts

		if r.persister != nil {
			snap := domain.RawOptionSnapshot{RunID: runID, Symbol: symbol, AsOf: chain.AsOf, Contracts: contracts}
			if err := r.persister.PersistRawOptions(ctx, snap); err != nil {
				errs = append(errs, domain.RunError{Kind: domain.KindInternalInvariantViolation, Symbol: symbol, Stage: "s2_persist", Message: err.Error()})
			}
		}
	}
	return out, errs
}

func (r *Runner) stageS3(ctx context.Context, symbols []string, chains map[string][]domain.OptionContract, prices map[string]float64, highChainFactors []domain.Factor, macro map[string]float64) ([]domain.Candidate, []domain.Candidate, []domain.RunError) {
	var passed, nearMiss []domain.Candidate
	var errs []domain.RunError

	for _, symbol := range symbols {
		contracts, ok := chains[symbol]
		if !ok || len(contracts) == 0 {
			continue // empty chain: skip S3/S4 without erroring the run
		}
		gen := r.generator.Generate(symbol, prices[symbol], contracts)

		for _, c := range gen {
			violations := 0
			allPass := true
			var results []domain.FactorResult
			for _, f := range highChainFactors {
				ectx := &ips.EvalContext{Symbol: symbol, Macro: macro, Leg: &c.ShortLeg().Contract}
				result, err := r.registry.Evaluate(f, ectx)
				if err != nil {
					errs = append(errs, domain.RunError{Kind: domain.KindIPSSchemaError, Symbol: symbol, Stage: "s3_eval", Message: err.Error()})
					continue
				}
				results = append(results, result)
				if !result.Passed {
					allPass = false
					violations++
				}
			}
			c.FactorResults = results
			c.ViolationCount = violations
			if allPass {
				passed = append(passed, c)
			} else {
				nearMiss = append(nearMiss, c)
			}
		}
	}
	return passed, nearMiss, errs
}

func (r *Runner) checkpointC2(ctx context.Context, nearMiss []domain.Candidate) domain.ReasoningDecision {
	raw, err := r.gw.Reason(ctx, c2Prompt(nearMiss))
	if err != nil {
		return degradedReject("C2", err)
	}
	return parseCheckpoint("C2", raw)
}

func (r *Runner) stageS4(candidatesIn []domain.Candidate, lowChainFactors []domain.Factor) ([]domain.Candidate, []domain.RunError) {
	var out []domain.Candidate
	var errs []domain.RunError
	nLow := len(lowChainFactors)
	cutoff := int(math.Ceil(0.5 * float64(nLow)))

	for _, c := range candidatesIn {
		failed := 0
		results := append([]domain.FactorResult{}, c.FactorResults...)
		for _, f := range lowChainFactors {
			ectx := &ips.EvalContext{Symbol: c.Symbol, Leg: &c.ShortLeg().Contract}
			result, err := r.registry.Evaluate(f, ectx)
			if err != nil {
				errs = append(errs, domain.RunError{Kind: domain.KindIPSSchemaError, Symbol: c.Symbol, Stage: "s4_eval", Message: err.Error()})
				continue
			}
			results = append(results, result)
			if !result.Passed {
				failed++
			}
		}
		c.FactorResults = results
		if nLow == 0 || failed < cutoff {
			out = append(out, c)
		}
	}
	return out, errs
}

func (r *Runner) checkpointC3(ctx context.Context) domain.ReasoningDecision {
	raw, err := r.gw.Reason(ctx, c3Prompt())
	if err != nil {
		return degradedReject("C3", err)
	}
	return parseCheckpoint("C3", raw)
}

// finalizeFromNearMiss implements the C3 near-miss fallback: up to 20
// near-misses sorted by (violation_count asc, entry_mid desc) become the
// selected set with a REJECT decision, skipping scoring/rationale.
func (r *Runner) finalizeFromNearMiss(res Result, nearMiss []domain.Candidate, cfg domain.IPSConfig) Result {
	sorted := append([]domain.Candidate{}, nearMiss...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ViolationCount != sorted[j].ViolationCount {
			return sorted[i].ViolationCount < sorted[j].ViolationCount
		}
		return sorted[i].EntryMid > sorted[j].EntryMid
	})
	if len(sorted) > 20 {
		sorted = sorted[:20]
	}
	for i := range sorted {
		sorted[i].IPSScore = scorer.IPSScore(sorted[i].FactorResults)
		sorted[i].Tier = r.scorerSvc.TierFor(sorted[i].IPSScore)
	}
	res.Candidates = sorted
	res.NearMiss = nearMiss
	res.Decisions = append(res.Decisions, domain.ReasoningDecision{
		CheckpointID: "C3", Decision: domain.DecisionReject,
		Reasoning: "no candidate passed the low-weight filter; surfacing near-misses",
	})
	return res
}

func degradedReject(checkpointID string, err error) domain.ReasoningDecision {
	return domain.ReasoningDecision{
		CheckpointID: checkpointID,
		Decision:     domain.DecisionReject,
		Reasoning:    "reasoning call failed: " + err.Error(),
	}
}
