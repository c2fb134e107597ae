// Package scorer implements the Scorer & Selector: composite scoring,
// tiering, diversification-constrained selection, and rationale
// generation for candidates that survived the filter cascade.
package scorer

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/optionagent/agent/internal/domain"
	"github.com/optionagent/agent/internal/gateway"
)

const (
	highConfidenceMin = 20
	medConfidenceMin  = 8
)

// Config holds the tunable tier thresholds, diversification caps, and
// historical-lookup width the Scorer applies. Zero-valued fields fall
// back to DefaultConfig's values, so a caller can override a handful of
// fields without repeating every default.
type Config struct {
	VectorStoreK int

	EliteMin       float64
	QualityMin     float64
	SpeculativeMin float64

	EliteSelectCap       int
	QualitySelectCap     int
	SpeculativeSelectCap int
	CapPerSector         int
	CapPerSymbol         int
	CapPerStrategy       int
}

// DefaultConfig returns the scorer's built-in defaults.
func DefaultConfig() Config {
	return Config{
		VectorStoreK:         10,
		EliteMin:             90,
		QualityMin:           75,
		SpeculativeMin:       60,
		EliteSelectCap:       5,
		QualitySelectCap:     10,
		SpeculativeSelectCap: 5,
		CapPerSector:         3,
		CapPerSymbol:         2,
		CapPerStrategy:       10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.VectorStoreK == 0 {
		c.VectorStoreK = d.VectorStoreK
	}
	if c.EliteMin == 0 {
		c.EliteMin = d.EliteMin
	}
	if c.QualityMin == 0 {
		c.QualityMin = d.QualityMin
	}
	if c.SpeculativeMin == 0 {
		c.SpeculativeMin = d.SpeculativeMin
	}
	if c.EliteSelectCap == 0 {
		c.EliteSelectCap = d.EliteSelectCap
	}
	if c.QualitySelectCap == 0 {
		c.QualitySelectCap = d.QualitySelectCap
	}
	if c.SpeculativeSelectCap == 0 {
		c.SpeculativeSelectCap = d.SpeculativeSelectCap
	}
	if c.CapPerSector == 0 {
		c.CapPerSector = d.CapPerSector
	}
	if c.CapPerSymbol == 0 {
		c.CapPerSymbol = d.CapPerSymbol
	}
	if c.CapPerStrategy == 0 {
		c.CapPerStrategy = d.CapPerStrategy
	}
	return c
}

// Scorer computes yield/IPS/historical/composite scores, assigns tiers,
// runs diversification-constrained selection, and generates rationale.
type Scorer struct {
	gw  gateway.Gateway
	cfg Config
	log zerolog.Logger
}

// New builds a Scorer. cfg's zero fields fall back to DefaultConfig.
func New(gw gateway.Gateway, cfg Config, log zerolog.Logger) *Scorer {
	return &Scorer{gw: gw, cfg: cfg.withDefaults(), log: log.With().Str("component", "scorer").Logger()}
}

// YieldScore computes min(100, (max_profit / max(max_loss, 1)) * 100).
func YieldScore(c domain.Candidate) float64 {
	denom := c.MaxLoss
	if denom < 1 {
		denom = 1
	}
	score := (c.MaxProfit / denom) * 100
	if score > 100 {
		return 100
	}
	return score
}

// IPSScore computes the weighted pass-rate: Σ(weight*(passed?100:50))/Σweight.
func IPSScore(results []domain.FactorResult) float64 {
	var weightedSum, weightSum float64
	for _, r := range results {
		score := 50.0
		if r.Passed {
			score = 100.0
		}
		weightedSum += r.Weight * score
		weightSum += r.Weight
	}
	if weightSum == 0 {
		return 0
	}
	return weightedSum / weightSum
}

// TierFor buckets an IPS score into a Tier using the scorer's configured
// thresholds.
func (s *Scorer) TierFor(score float64) domain.Tier {
	switch {
	case score >= s.cfg.EliteMin:
		return domain.TierElite
	case score >= s.cfg.QualityMin:
		return domain.TierQuality
	case score >= s.cfg.SpeculativeMin:
		return domain.TierSpeculative
	default:
		return domain.TierNone
	}
}

// Composite blends yield, IPS, and historical win rate.
func Composite(yield, ipsScore float64, historical domain.HistoricalAnalysis) float64 {
	if historical.HasData {
		return 0.4*yield + 0.3*ipsScore + 0.3*(historical.WinRate*100)
	}
	return 0.6*yield + 0.4*ipsScore
}

// ScoreAll computes yield/IPS/historical/composite/tier for every
// candidate, querying the vector store for historical correlation.
func (s *Scorer) ScoreAll(ctx context.Context, candidates []domain.Candidate, ipsID, userID string) []domain.Candidate {
	out := make([]domain.Candidate, len(candidates))
	for i, c := range candidates {
		c.YieldScore = YieldScore(c)
		if c.IPSScore == 0 {
			c.IPSScore = IPSScore(c.FactorResults)
		}
		c.Tier = s.TierFor(c.IPSScore)
		c.Historical = s.historicalAnalysis(ctx, c, ipsID, userID)
		c.Composite = Composite(c.YieldScore, c.IPSScore, c.Historical)
		out[i] = c
	}
	return out
}

func (s *Scorer) historicalAnalysis(ctx context.Context, c domain.Candidate, ipsID, userID string) domain.HistoricalAnalysis {
	text := describeCandidate(c)
	embedding, err := s.gw.Embed(ctx, text)
	if err != nil {
		return domain.HistoricalAnalysis{Confidence: "low"}
	}
	matches, err := s.gw.VectorSearch(ctx, embedding, s.cfg.VectorStoreK, map[string]any{"ips_id": ipsID, "user_id": userID})
	if err != nil || len(matches) < s.cfg.VectorStoreK {
		return domain.HistoricalAnalysis{Confidence: "low"}
	}

	var wins int
	rois := make([]float64, 0, len(matches))
	for _, m := range matches {
		roi, _ := m.Payload["realized_roi"].(float64)
		rois = append(rois, roi)
		if roi > 0 {
			wins++
		}
	}
	confidence := "low"
	switch {
	case len(matches) >= highConfidenceMin:
		confidence = "high"
	case len(matches) >= medConfidenceMin:
		confidence = "med"
	}
	return domain.HistoricalAnalysis{
		HasData:    true,
		TradeCount: len(matches),
		WinRate:    float64(wins) / float64(len(matches)),
		AvgROI:     stat.Mean(rois, nil),
		Confidence: confidence,
	}
}

func describeCandidate(c domain.Candidate) string {
	short := c.ShortLeg()
	long := c.LongLeg()
	if short == nil || long == nil {
		return fmt.Sprintf("%s %s", c.Symbol, c.Strategy)
	}
	dte := int(short.Contract.Expiry.Sub(short.Contract.AsOf).Hours() / 24)
	return fmt.Sprintf(
		"%s %s short_strike=%.2f long_strike=%.2f width=%.2f dte=%d short_delta=%.3f",
		c.Symbol, c.Strategy, short.Contract.Strike, long.Contract.Strike, short.Contract.Strike-long.Contract.Strike, dte, short.Contract.Delta,
	)
}

// Select orders candidates by (tier desc, composite desc), ties broken
// by (symbol asc, short strike asc), caps per tier, then applies
// diversification caps (sector/symbol/strategy) dropping any candidate
// that would violate one. A per-candidate diversity score is attached
// relative to the accumulated selection.
func (s *Scorer) Select(candidates []domain.Candidate) []domain.Candidate {
	sorted := append([]domain.Candidate{}, candidates...)
	sort.Slice(sorted, func(i, j int) bool {
		ti, tj := tierRank(sorted[i].Tier), tierRank(sorted[j].Tier)
		if ti != tj {
			return ti > tj
		}
		if sorted[i].Composite != sorted[j].Composite {
			return sorted[i].Composite > sorted[j].Composite
		}
		if sorted[i].Symbol != sorted[j].Symbol {
			return sorted[i].Symbol < sorted[j].Symbol
		}
		return shortStrike(sorted[i]) < shortStrike(sorted[j])
	})

	tierCaps := map[domain.Tier]int{domain.TierElite: s.cfg.EliteSelectCap, domain.TierQuality: s.cfg.QualitySelectCap, domain.TierSpeculative: s.cfg.SpeculativeSelectCap}
	tierCount := map[domain.Tier]int{}
	sectorCount := map[string]int{}
	symbolCount := map[string]int{}
	strategyCount := map[string]int{}

	var selected []domain.Candidate
	for _, c := range sorted {
		cap, tracked := tierCaps[c.Tier]
		if tracked && tierCount[c.Tier] >= cap {
			continue
		}
		if sectorCount[c.Sector] >= s.cfg.CapPerSector {
			continue
		}
		if symbolCount[c.Symbol] >= s.cfg.CapPerSymbol {
			continue
		}
		if strategyCount[c.Strategy] >= s.cfg.CapPerStrategy {
			continue
		}

		c.DiversityScore = diversityScore(c, sectorCount, symbolCount, strategyCount)
		selected = append(selected, c)
		tierCount[c.Tier]++
		sectorCount[c.Sector]++
		symbolCount[c.Symbol]++
		strategyCount[c.Strategy]++
	}
	return selected
}

func tierRank(t domain.Tier) int {
	switch t {
	case domain.TierElite:
		return 3
	case domain.TierQuality:
		return 2
	case domain.TierSpeculative:
		return 1
	default:
		return 0
	}
}

func shortStrike(c domain.Candidate) float64 {
	if leg := c.ShortLeg(); leg != nil {
		return leg.Contract.Strike
	}
	return 0
}

// diversityScore rewards candidates whose sector/symbol/strategy are
// under-represented in the selection accumulated so far.
func diversityScore(c domain.Candidate, sectorCount, symbolCount, strategyCount map[string]int) float64 {
	score := 100.0
	score -= float64(sectorCount[c.Sector]) * 15
	score -= float64(symbolCount[c.Symbol]) * 20
	score -= float64(strategyCount[c.Strategy]) * 5
	if score < 0 {
		return 0
	}
	return score
}
