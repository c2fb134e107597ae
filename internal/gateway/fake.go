package gateway

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Gateway used by cascade/scorer tests and by
// end-to-end run scenarios. Every method reads from a map keyed by symbol
// (or a fixed slot for symbol-agnostic calls) populated by the test, and
// records call counts so tests can assert on fan-out behavior.
type Fake struct {
	mu sync.Mutex

	Quotes      map[string]Quote
	Chains      map[string]ChainResponse
	Overviews   map[string]map[string]any
	SMAs        map[string]SMAResult // keyed "symbol:window"
	MOMs        map[string]float64
	Sentiments  map[string]SentimentResult
	NewsItems   map[string][]NewsItem // keyed by query
	Macro       map[string]MacroPoint
	IVSeries    map[string][]IVPoint
	PriceSeries map[string][]PriceBar
	VectorHits  []VectorMatch
	Embeddings  map[string][]float64
	ReasonQueue []string         // consumed FIFO by Reason calls; last value repeats once exhausted
	Errors      map[string]error // operation -> error to return instead (keyed "Op:symbol" or "Op")

	Calls map[string]int
}

// NewFake returns an empty Fake with all maps initialized.
func NewFake() *Fake {
	return &Fake{
		Quotes:      map[string]Quote{},
		Chains:      map[string]ChainResponse{},
		Overviews:   map[string]map[string]any{},
		SMAs:        map[string]SMAResult{},
		MOMs:        map[string]float64{},
		Sentiments:  map[string]SentimentResult{},
		NewsItems:   map[string][]NewsItem{},
		Macro:       map[string]MacroPoint{},
		IVSeries:    map[string][]IVPoint{},
		PriceSeries: map[string][]PriceBar{},
		Embeddings:  map[string][]float64{},
		Errors:      map[string]error{},
		Calls:       map[string]int{},
	}
}

func (f *Fake) record(op, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls[op]++
	if err, ok := f.Errors[op+":"+symbol]; ok {
		return err
	}
	if err, ok := f.Errors[op]; ok {
		return err
	}
	return nil
}

func (f *Fake) Quote(_ context.Context, symbol string) (Quote, error) {
	if err := f.record("Quote", symbol); err != nil {
		return Quote{}, err
	}
	return f.Quotes[symbol], nil
}

func (f *Fake) OptionsChain(_ context.Context, symbol string) (ChainResponse, error) {
	if err := f.record("OptionsChain", symbol); err != nil {
		return ChainResponse{}, err
	}
	return f.Chains[symbol], nil
}

func (f *Fake) CompanyOverview(_ context.Context, symbol string) (map[string]any, error) {
	if err := f.record("CompanyOverview", symbol); err != nil {
		return nil, err
	}
	return f.Overviews[symbol], nil
}

func (f *Fake) SMA(_ context.Context, symbol string, window int, _, _ string) (SMAResult, error) {
	key := fmt.Sprintf("%s:%d", symbol, window)
	if err := f.record("SMA", symbol); err != nil {
		return SMAResult{}, err
	}
	return f.SMAs[key], nil
}

func (f *Fake) MOM(_ context.Context, symbol string, _ string, _ int, _ string) (float64, error) {
	if err := f.record("MOM", symbol); err != nil {
		return 0, err
	}
	return f.MOMs[symbol], nil
}

func (f *Fake) NewsSentiment(_ context.Context, symbol string, _ int) (SentimentResult, error) {
	if err := f.record("NewsSentiment", symbol); err != nil {
		return SentimentResult{}, err
	}
	return f.Sentiments[symbol], nil
}

func (f *Fake) News(_ context.Context, query, _ string, _, _ int) ([]NewsItem, error) {
	if err := f.record("News", query); err != nil {
		return nil, err
	}
	return f.NewsItems[query], nil
}

func (f *Fake) MacroSeries(_ context.Context, seriesID string) (MacroPoint, error) {
	if err := f.record("MacroSeries", seriesID); err != nil {
		return MacroPoint{}, err
	}
	return f.Macro[seriesID], nil
}

func (f *Fake) HistoricalIVSeries(_ context.Context, symbol string, _ int) ([]IVPoint, error) {
	if err := f.record("HistoricalIVSeries", symbol); err != nil {
		return nil, err
	}
	return f.IVSeries[symbol], nil
}

func (f *Fake) HistoricalPriceSeries(_ context.Context, symbol string, _ int) ([]PriceBar, error) {
	if err := f.record("HistoricalPriceSeries", symbol); err != nil {
		return nil, err
	}
	return f.PriceSeries[symbol], nil
}

func (f *Fake) VectorSearch(_ context.Context, _ []float64, k int, _ map[string]any) ([]VectorMatch, error) {
	if err := f.record("VectorSearch", ""); err != nil {
		return nil, err
	}
	if k < len(f.VectorHits) {
		return f.VectorHits[:k], nil
	}
	return f.VectorHits, nil
}

func (f *Fake) Embed(_ context.Context, text string) ([]float64, error) {
	if err := f.record("Embed", ""); err != nil {
		return nil, err
	}
	return f.Embeddings[text], nil
}

func (f *Fake) Reason(_ context.Context, _ string) (string, error) {
	if err := f.record("Reason", ""); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ReasonQueue) == 0 {
		return "", nil
	}
	next := f.ReasonQueue[0]
	if len(f.ReasonQueue) > 1 {
		f.ReasonQueue = f.ReasonQueue[1:]
	}
	return next, nil
}

var _ Gateway = (*Fake)(nil)
