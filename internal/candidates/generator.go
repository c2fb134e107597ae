// Package candidates implements the put-credit-spread enumeration that
// turns a normalized options chain into a list of Candidate spreads.
package candidates

import (
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/optionagent/agent/internal/domain"
)

const (
	maxExpiries     = 3
	strikeScanLimit = 50
	deltaCeiling    = 0.5
	strikeGapIdx    = 2
	minRiskReward   = 0.15
	fallbackPOP     = 0.7
)

// Generator enumerates put credit spread candidates for a symbol.
type Generator struct {
	log zerolog.Logger
}

// New builds a Generator.
func New(log zerolog.Logger) *Generator {
	return &Generator{log: log.With().Str("component", "candidate_generator").Logger()}
}

// Generate enumerates put credit spreads for symbol given its current
// underlying price and a normalized chain snapshot (puts and calls alike;
// non-put contracts are filtered out internally).
func (g *Generator) Generate(symbol string, price float64, contracts []domain.OptionContract) []domain.Candidate {
	byExpiry := groupPutsByExpiry(price, contracts)
	expiries := sortedExpiries(byExpiry)
	if len(expiries) > maxExpiries {
		expiries = expiries[:maxExpiries]
	}

	var out []domain.Candidate
	for _, expiry := range expiries {
		contracts := byExpiry[expiry]
		sort.Slice(contracts, func(i, j int) bool { return contracts[i].Strike > contracts[j].Strike })
		if len(contracts) > strikeScanLimit {
			contracts = contracts[:strikeScanLimit]
		}

		for i, short := range contracts {
			if absFloat(short.Delta) > deltaCeiling {
				continue
			}
			long, ok := pairLongLeg(contracts, i)
			if !ok {
				continue
			}
			cand, ok := buildCandidate(symbol, short, long)
			if !ok {
				continue
			}
			out = append(out, cand)
		}
	}
	return out
}

func groupPutsByExpiry(price float64, contracts []domain.OptionContract) map[string][]domain.OptionContract {
	grouped := map[string][]domain.OptionContract{}
	for _, c := range contracts {
		if c.Type != domain.OptionPut {
			continue
		}
		if c.Strike >= price {
			continue
		}
		if c.Bid <= 0 || c.Ask <= 0 {
			continue
		}
		key := c.Expiry.Format("2006-01-02")
		grouped[key] = append(grouped[key], c)
	}
	return grouped
}

func sortedExpiries(byExpiry map[string][]domain.OptionContract) []string {
	out := make([]string, 0, len(byExpiry))
	for k := range byExpiry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// pairLongLeg finds the long leg two strikes below the short leg at
// index i (strikes sorted descending), falling back to the lowest
// available strike if fewer than two remain.
func pairLongLeg(contracts []domain.OptionContract, i int) (domain.OptionContract, bool) {
	if len(contracts) == 0 {
		return domain.OptionContract{}, false
	}
	j := i + strikeGapIdx
	if j < len(contracts) {
		return contracts[j], true
	}
	if i+1 < len(contracts) {
		return contracts[len(contracts)-1], true
	}
	return domain.OptionContract{}, false
}

func buildCandidate(symbol string, short, long domain.OptionContract) (domain.Candidate, bool) {
	width := short.Strike - long.Strike
	entryMid := short.Mid() - long.Mid()
	if entryMid <= 0 || width <= 0 {
		return domain.Candidate{}, false
	}

	maxProfit := entryMid
	maxLoss := width - entryMid
	if maxLoss <= 0 {
		return domain.Candidate{}, false
	}
	if maxProfit/maxLoss < minRiskReward {
		return domain.Candidate{}, false
	}

	pop := fallbackPOP
	if short.Delta != 0 {
		pop = 1 - absFloat(short.Delta)
	}

	return domain.Candidate{
		ID:       uuid.NewString(),
		Symbol:   symbol,
		Strategy: "put_credit_spread",
		Legs: []domain.Leg{
			{Contract: short, Side: "short"},
			{Contract: long, Side: "long"},
		},
		EntryMid:  entryMid,
		MaxProfit: maxProfit,
		MaxLoss:   maxLoss,
		Breakeven: short.Strike - entryMid,
		EstPOP:    pop,
	}, true
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
