// Package gateway implements the Provider Gateway: a single, rate-limited,
// retrying funnel for every external data call the pipeline makes
// (quotes, options chains, fundamentals, technicals, news, macro series,
// vector search, and the reasoning LLM).
package gateway

import (
	"context"
	"time"

	"github.com/optionagent/agent/internal/domain"
)

// Quote is a normalized last-trade snapshot.
type Quote struct {
	Price     float64
	Volume    int64
	Timestamp time.Time
}

// ChainResponse is a normalized options-chain pull.
type ChainResponse struct {
	AsOf      time.Time
	Contracts []ContractDTO
}

// ContractDTO mirrors domain.OptionContract without importing the domain
// package, so the gateway stays independently testable; callers in
// internal/cascade adapt it to domain.OptionContract.
type ContractDTO struct {
	Symbol       string
	Expiry       time.Time
	Strike       float64
	Type         string // "P" or "C"
	Bid          float64
	Ask          float64
	Last         float64
	IV           float64
	Delta        float64
	Gamma        float64
	Theta        float64
	Vega         float64
	OpenInterest int64
	Volume       int64
	AsOf         time.Time
}

// ToDomain converts a wire-shaped ContractDTO into the domain type the
// rest of the pipeline operates on. lastTradeAgeMin is computed by the
// caller, since it depends on the moment of observation, not the quote
// itself.
func (c ContractDTO) ToDomain(lastTradeAgeMin float64) domain.OptionContract {
	optType := domain.OptionPut
	if c.Type == "C" {
		optType = domain.OptionCall
	}
	return domain.OptionContract{
		Symbol: c.Symbol, Expiry: c.Expiry, Strike: c.Strike, Type: optType,
		Bid: c.Bid, Ask: c.Ask, Last: c.Last, IV: c.IV,
		Delta: c.Delta, Gamma: c.Gamma, Theta: c.Theta, Vega: c.Vega,
		OpenInterest: c.OpenInterest, Volume: c.Volume, AsOf: c.AsOf,
		LastTradeAgeMin: lastTradeAgeMin,
	}
}

// SMAResult is one simple-moving-average reading.
type SMAResult struct {
	Value float64
	Date  time.Time
}

// SentimentResult summarizes a batch of scored news articles for a symbol.
type SentimentResult struct {
	AverageScore float64 // in [-1, 1]
	Count        int
	Positive     int
	Negative     int
	Neutral      int
}

// NewsItem is one article returned by a free-text news search.
type NewsItem struct {
	Title       string
	Snippet     string
	URL         string
	PublishedAt time.Time
}

// MacroPoint is one macro series reading (CPI, unemployment, etc).
type MacroPoint struct {
	Value float64
	AsOf  time.Time
}

// IVPoint is one historical at-the-money implied-volatility sample.
type IVPoint struct {
	Date     time.Time
	IVAtm30D float64
}

// PriceBar is one daily OHLCV bar, used to drive go-talib momentum
// indicators (RSI, MACD) that need a full price series
// rather than a single SMA/MOM reading. The technical factor category
// otherwise has no data source to compute these from.
type PriceBar struct {
	Date  time.Time
	Close float64
}

// VectorMatch is one historical-trade vector-search hit.
type VectorMatch struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Gateway is the uniform interface every stage calls through. All
// operations take a context for cancellation/deadline propagation and
// are expected to be safe for concurrent use by many callers — the
// token bucket, call budget, and tool log it wraps are process-wide and
// shared across concurrent runs.
type Gateway interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
	OptionsChain(ctx context.Context, symbol string) (ChainResponse, error)
	CompanyOverview(ctx context.Context, symbol string) (map[string]any, error)
	SMA(ctx context.Context, symbol string, window int, interval, series string) (SMAResult, error)
	MOM(ctx context.Context, symbol string, interval string, period int, series string) (float64, error)
	NewsSentiment(ctx context.Context, symbol string, limit int) (SentimentResult, error)
	News(ctx context.Context, query, topic string, days, maxResults int) ([]NewsItem, error)
	MacroSeries(ctx context.Context, seriesID string) (MacroPoint, error)
	HistoricalIVSeries(ctx context.Context, symbol string, lookbackDays int) ([]IVPoint, error)
	HistoricalPriceSeries(ctx context.Context, symbol string, lookbackDays int) ([]PriceBar, error)
	VectorSearch(ctx context.Context, embedding []float64, k int, filter map[string]any) ([]VectorMatch, error)
	Embed(ctx context.Context, text string) ([]float64, error)
	Reason(ctx context.Context, prompt string) (string, error)
}

// ToolCallLog records one gateway call for the audit trail. Every call
// records latency and is appended to the tool log. HTTPGateway passes no
// run id to its limiters, so RunID is empty on the rows it writes and the
// log is not grouped by run.
type ToolCallLog struct {
	RunID     string
	Provider  string
	Operation string
	Symbol    string
	LatencyMS int64
	Attempt   int
	Outcome   string // "ok", "error", "throttled"
	Err       string
	At        time.Time
}

// ToolLogger persists ToolCallLog rows. The Run Controller's repository
// implements this; gateway calls it after every attempt.
type ToolLogger interface {
	LogTool(ctx context.Context, entry ToolCallLog) error
}

// NopToolLogger discards every entry. Used when a caller has not wired a
// persistence layer (e.g. scratch scripts, some unit tests).
type NopToolLogger struct{}

func (NopToolLogger) LogTool(context.Context, ToolCallLog) error { return nil }
