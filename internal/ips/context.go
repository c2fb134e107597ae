// Package ips implements the IPS Model & Factor Registry: loading a user's
// Investment Policy Statement and evaluating its factors against a
// context bundle drawn from the Provider Gateway.
package ips

import (
	"time"

	"github.com/optionagent/agent/internal/domain"
	"github.com/optionagent/agent/internal/gateway"
)

// EvalContext bundles everything a factor extractor might need: company
// fundamentals, chain-aggregate metrics, a specific leg (for chain-scoped
// factors), technicals, macro readings, and news/sentiment. One
// EvalContext is built per symbol in S1 and refreshed per candidate in
// S3/S4 (with Leg populated).
type EvalContext struct {
	Symbol string
	Now    time.Time

	Overview map[string]any
	Price    float64

	SMA50  *float64
	SMA200 *float64
	MOM10  *float64

	RSI14       *float64
	MACD        *float64
	GoldenCross *bool

	IVHistory           []gateway.IVPoint
	IVHistorySufficient bool // true iff len(IVHistory) >= 20
	IVRank              *float64
	IVPercentile        *float64

	PutCallVolumeRatio *float64
	PutCallOIRatio     *float64

	Macro map[string]float64 // series id -> latest value

	NewsSentimentAvg  *float64
	NewsVolume        *float64
	SocialSentiment   *float64
	NewsHeadlineCount *float64

	EarningsWithinDays *int

	// Leg is populated for scope=chain factor evaluation; nil for
	// scope=general evaluation in S1.
	Leg        *domain.OptionContract
	ShortDelta *float64 // |delta| of the short leg, convenience for leg-relative factors
}

// extractResult is the internal shape returned by each registry entry's
// extractor: a possibly-missing numeric value, plus a flag marking
// "missing because the historical series was too short to compute",
// the one non-blocking case.
type extractResult struct {
	value               *float64
	insufficientHistory bool
}

func missing() extractResult { return extractResult{} }

func ok(v float64) extractResult { return extractResult{value: &v} }

func insufficientHistory() extractResult { return extractResult{insufficientHistory: true} }
