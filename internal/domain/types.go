// Package domain holds the core types shared across the candidate-generation
// pipeline: runs, IPS configuration, option contracts, candidates, and the
// bookkeeping rows each stage appends to.
package domain

import "time"

// RunMode selects how a Run's provider responses are sourced and how its
// output is intended to be consumed.
type RunMode string

const (
	ModeBacktest RunMode = "backtest"
	ModePaper    RunMode = "paper"
	ModeLive     RunMode = "live"
)

// RunStatus tracks the lifecycle of a Run. Transitions are monotonic:
// pending -> running -> {completed, failed}.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Run is one invocation of the candidate-generation pipeline.
type Run struct {
	ID             string
	Mode           RunMode
	InitialSymbols []string
	IPSID          string
	UserID         string
	Status         RunStatus
	StartedAt      time.Time
	FinishedAt     *time.Time
	ErrorKind      ErrorKind
	ErrorMessage   string
	Errors         []RunError
}

// RunError is one error recorded against a run during any stage.
type RunError struct {
	Kind    ErrorKind
	Symbol  string // optional, empty when not symbol-scoped
	Stage   string
	Message string
	At      time.Time
}

// Scope distinguishes factors that can be evaluated without an options
// chain (general) from those that require a specific contract leg (chain).
type Scope string

const (
	ScopeGeneral Scope = "general"
	ScopeChain   Scope = "chain"
)

// Direction is the comparison operator a Factor applies between the
// extracted value and its threshold(s).
type Direction string

const (
	DirLT      Direction = "lt"
	DirLTE     Direction = "lte"
	DirGT      Direction = "gt"
	DirGTE     Direction = "gte"
	DirEQ      Direction = "eq"
	DirNEQ     Direction = "neq"
	DirBetween Direction = "between"
)

// Factor is one rule in an IPS.
type Factor struct {
	Key          string
	DisplayName  string
	Scope        Scope
	Weight       float64 // normalized post-load so that Σ(weight) == 1 across enabled factors
	RawWeight    float64 // as entered by the user, pre-normalization
	Direction    Direction
	Threshold    float64
	ThresholdMax float64 // only meaningful when Direction == DirBetween
	Enabled      bool
}

// IPSConfig is a policy the user has defined: a weighted set of factors
// plus optional strategy metadata.
type IPSConfig struct {
	ID         string
	Name       string
	UserID     string
	Factors    []Factor
	Strategies []string
}

// OptionType distinguishes puts from calls.
type OptionType string

const (
	OptionPut  OptionType = "P"
	OptionCall OptionType = "C"
)

// OptionContract is one option leg as normalized by the Provider Gateway.
type OptionContract struct {
	Symbol string
	Expiry time.Time
	Strike float64
	Type   OptionType

	Bid  float64
	Ask  float64
	Last float64

	IV    float64
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64

	OpenInterest int64
	Volume       int64

	AsOf            time.Time
	LastTradeAgeMin float64 // minutes since the last reported trade
}

// Mid returns the midpoint of bid/ask, or Last if either side is missing.
func (c OptionContract) Mid() float64 {
	if c.Bid > 0 && c.Ask > 0 {
		return (c.Bid + c.Ask) / 2
	}
	return c.Last
}

// Leg is a contract plus the role it plays within a candidate spread.
type Leg struct {
	Contract OptionContract
	Side     string // "short" or "long"
}

// FactorResult is the {value, target_string, passed} triple produced by
// evaluating one Factor against a context bundle.
type FactorResult struct {
	Key         string
	DisplayName string
	Value       *float64 // nil when extraction produced a missing value
	Target      string
	Passed      bool
	Weight      float64
}

// Tier is the IPS-score-derived classification of a Candidate.
type Tier string

const (
	TierElite       Tier = "elite"
	TierQuality     Tier = "quality"
	TierSpeculative Tier = "speculative"
	TierNone        Tier = ""
)

// HistoricalAnalysis is the RAG result attached to a Candidate from the
// vector-store lookup over past trades.
type HistoricalAnalysis struct {
	HasData    bool
	TradeCount int
	WinRate    float64
	AvgROI     float64
	Confidence string // "low", "med", "high"
}

// Rationale is the LLM-generated narrative attached to a selected
// Candidate.
type Rationale struct {
	Text                  string
	NewsSummary           *string
	MacroContext          *string
	OutOfIPSJustification *string
}

// Candidate is a proposed option spread awaiting/having undergone scoring.
type Candidate struct {
	ID       string
	Symbol   string
	Strategy string
	Legs     []Leg

	EntryMid  float64
	MaxProfit float64
	MaxLoss   float64
	Breakeven float64
	EstPOP    float64

	// Attached by downstream stages.
	FactorResults  []FactorResult
	ViolationCount int // count of failed high-weight chain factors (near-miss bookkeeping)

	YieldScore     float64
	IPSScore       float64
	Composite      float64
	Tier           Tier
	Historical     HistoricalAnalysis
	DiversityScore float64
	Rationale      *Rationale

	Sector string // used for diversification caps
}

// ShortLeg returns the short leg of a two-leg spread, or nil if absent.
func (c *Candidate) ShortLeg() *Leg {
	for i := range c.Legs {
		if c.Legs[i].Side == "short" {
			return &c.Legs[i]
		}
	}
	return nil
}

// LongLeg returns the long leg of a two-leg spread, or nil if absent.
func (c *Candidate) LongLeg() *Leg {
	for i := range c.Legs {
		if c.Legs[i].Side == "long" {
			return &c.Legs[i]
		}
	}
	return nil
}

// CheckpointDecisionKind is the verdict an LLM returns at a reasoning
// checkpoint.
type CheckpointDecisionKind string

const (
	DecisionProceed            CheckpointDecisionKind = "PROCEED"
	DecisionProceedWithCaution CheckpointDecisionKind = "PROCEED_WITH_CAUTION"
	DecisionReject             CheckpointDecisionKind = "REJECT"
)

// ThresholdAdjustment is one factor-threshold relaxation proposed by the
// checkpoint-2 reasoning call.
type ThresholdAdjustment struct {
	Factor       string
	OldThreshold float64
	NewThreshold float64
}

// ReasoningDecision is one checkpoint outcome, appended monotonically to
// a Run's decision log and never mutated afterward.
type ReasoningDecision struct {
	CheckpointID         string // "C1", "C2", "C3"
	Decision             CheckpointDecisionKind
	Reasoning            string
	Timestamp            time.Time
	SymbolsToAdd         []string
	ThresholdAdjustments []ThresholdAdjustment
	Recommendation       string
}

// JobProgress is a telemetry row describing how far a Run has advanced.
type JobProgress struct {
	CurrentStep      string
	CompletedSteps   int
	TotalSteps       int
	SymbolsProcessed int
	TotalSymbols     int
	CandidatesFound  int
	Message          string
}

// RawOptionSnapshot is the persisted raw chain pull for one symbol within
// one Run, owned exclusively by that Run.
type RawOptionSnapshot struct {
	RunID     string
	Symbol    string
	AsOf      time.Time
	Contracts []OptionContract
}
