package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/optionagent/agent/internal/domain"
)

// HTTPConfig configures the production HTTPGateway.
type HTTPConfig struct {
	QuotesBaseURL    string // fundamentals/quotes/technicals provider (Alpha-Vantage-shaped)
	OptionsBaseURL   string // options-chain provider
	NewsBaseURL      string // news/sentiment provider
	MacroBaseURL     string // macro series provider
	VectorBaseURL    string // vector-store provider
	ReasoningURL     string // LLM reasoning endpoint
	APIKey           string
	Timeout          time.Duration
	ReasoningTimeout time.Duration
}

// HTTPGateway is the production Gateway implementation: a thin, normalizing
// HTTP client per upstream provider, wrapped by per-provider Limiters.
// Concrete upstream wire formats are intentionally out of scope here —
// this client normalizes whatever shape the configured provider returns
// into the DTOs in gateway.go.
type HTTPGateway struct {
	cfg    HTTPConfig
	client *http.Client
	log    zerolog.Logger

	quotes  *Limiter
	options *Limiter
	news    *Limiter
	macro   *Limiter
	vector  *Limiter
	reason  *Limiter
}

// NewHTTPGateway builds a production gateway with one Limiter per
// provider family, so every provider gets its own token bucket and call
// budget. The data providers use DefaultPolicy; the reasoning limiter uses
// its own policy (1 request/sec, no retries).
func NewHTTPGateway(cfg HTTPConfig, tool ToolLogger, log zerolog.Logger) *HTTPGateway {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ReasoningTimeout == 0 {
		cfg.ReasoningTimeout = 120 * time.Second
	}
	return &HTTPGateway{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		log:     log.With().Str("component", "http_gateway").Logger(),
		quotes:  NewLimiter(DefaultPolicy("quotes"), tool),
		options: NewLimiter(DefaultPolicy("options"), tool),
		news:    NewLimiter(DefaultPolicy("news"), tool),
		macro:   NewLimiter(DefaultPolicy("macro"), tool),
		vector:  NewLimiter(DefaultPolicy("vector"), tool),
		reason:  NewLimiter(Policy{Provider: "reasoning", Concurrency: 2, RatePerSec: 1, MaxAttempts: 1, CallBudget: 500, CooldownWait: 60 * time.Second}, tool),
	}
}

func (g *HTTPGateway) get(ctx context.Context, baseURL, path string, params url.Values, out any) error {
	if baseURL == "" {
		return domain.NewAgentError(domain.KindProviderUnavailable, "", fmt.Errorf("no base URL configured for %s", path))
	}
	reqURL := baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return domain.NewAgentError(domain.KindProviderUnavailable, "", fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		body, _ := io.ReadAll(resp.Body)
		return domain.NewAgentError(domain.KindProviderUnavailable, "", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}
	if resp.StatusCode == http.StatusNotFound {
		return domain.NewAgentError(domain.KindSymbolUnknown, "", fmt.Errorf("not found"))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func (g *HTTPGateway) Quote(ctx context.Context, symbol string) (Quote, error) {
	var out Quote
	var raw struct {
		Price     float64 `json:"price"`
		Volume    int64   `json:"volume"`
		Timestamp int64   `json:"timestamp"`
	}
	err := g.quotes.Call(ctx, "", "Quote", symbol, func(ctx context.Context) error {
		return g.get(ctx, g.cfg.QuotesBaseURL, "/quote", url.Values{"symbol": {symbol}, "apikey": {g.cfg.APIKey}}, &raw)
	})
	if err != nil {
		return out, err
	}
	out = Quote{Price: raw.Price, Volume: raw.Volume, Timestamp: time.Unix(raw.Timestamp, 0)}
	return out, nil
}

func (g *HTTPGateway) OptionsChain(ctx context.Context, symbol string) (ChainResponse, error) {
	var out ChainResponse
	err := g.options.Call(ctx, "", "OptionsChain", symbol, func(ctx context.Context) error {
		return g.get(ctx, g.cfg.OptionsBaseURL, "/options", url.Values{"symbol": {symbol}, "apikey": {g.cfg.APIKey}}, &out)
	})
	return out, err
}

func (g *HTTPGateway) CompanyOverview(ctx context.Context, symbol string) (map[string]any, error) {
	out := map[string]any{}
	err := g.quotes.Call(ctx, "", "CompanyOverview", symbol, func(ctx context.Context) error {
		return g.get(ctx, g.cfg.QuotesBaseURL, "/overview", url.Values{"symbol": {symbol}, "apikey": {g.cfg.APIKey}}, &out)
	})
	return out, err
}

func (g *HTTPGateway) SMA(ctx context.Context, symbol string, window int, interval, series string) (SMAResult, error) {
	var out SMAResult
	err := g.quotes.Call(ctx, "", "SMA", symbol, func(ctx context.Context) error {
		params := url.Values{
			"symbol":      {symbol},
			"time_period": {strconv.Itoa(window)},
			"interval":    {interval},
			"series_type": {series},
			"apikey":      {g.cfg.APIKey},
		}
		return g.get(ctx, g.cfg.QuotesBaseURL, "/sma", params, &out)
	})
	return out, err
}

func (g *HTTPGateway) MOM(ctx context.Context, symbol string, interval string, period int, series string) (float64, error) {
	var out struct {
		Value float64 `json:"value"`
	}
	err := g.quotes.Call(ctx, "", "MOM", symbol, func(ctx context.Context) error {
		params := url.Values{
			"symbol":      {symbol},
			"interval":    {interval},
			"time_period": {strconv.Itoa(period)},
			"series_type": {series},
			"apikey":      {g.cfg.APIKey},
		}
		return g.get(ctx, g.cfg.QuotesBaseURL, "/mom", params, &out)
	})
	return out.Value, err
}

func (g *HTTPGateway) NewsSentiment(ctx context.Context, symbol string, limit int) (SentimentResult, error) {
	var out SentimentResult
	err := g.news.Call(ctx, "", "NewsSentiment", symbol, func(ctx context.Context) error {
		params := url.Values{"symbol": {symbol}, "limit": {strconv.Itoa(limit)}, "apikey": {g.cfg.APIKey}}
		return g.get(ctx, g.cfg.NewsBaseURL, "/sentiment", params, &out)
	})
	return out, err
}

func (g *HTTPGateway) News(ctx context.Context, query, topic string, days, maxResults int) ([]NewsItem, error) {
	var out []NewsItem
	err := g.news.Call(ctx, "", "News", query, func(ctx context.Context) error {
		params := url.Values{
			"query":  {query},
			"topic":  {topic},
			"days":   {strconv.Itoa(days)},
			"limit":  {strconv.Itoa(maxResults)},
			"apikey": {g.cfg.APIKey},
		}
		return g.get(ctx, g.cfg.NewsBaseURL, "/search", params, &out)
	})
	return out, err
}

func (g *HTTPGateway) MacroSeries(ctx context.Context, seriesID string) (MacroPoint, error) {
	var out MacroPoint
	err := g.macro.Call(ctx, "", "MacroSeries", seriesID, func(ctx context.Context) error {
		return g.get(ctx, g.cfg.MacroBaseURL, "/series/"+url.PathEscape(seriesID), nil, &out)
	})
	return out, err
}

func (g *HTTPGateway) HistoricalIVSeries(ctx context.Context, symbol string, lookbackDays int) ([]IVPoint, error) {
	var out []IVPoint
	err := g.options.Call(ctx, "", "HistoricalIVSeries", symbol, func(ctx context.Context) error {
		params := url.Values{"symbol": {symbol}, "lookback_days": {strconv.Itoa(lookbackDays)}, "apikey": {g.cfg.APIKey}}
		return g.get(ctx, g.cfg.OptionsBaseURL, "/iv_history", params, &out)
	})
	return out, err
}

func (g *HTTPGateway) HistoricalPriceSeries(ctx context.Context, symbol string, lookbackDays int) ([]PriceBar, error) {
	var out []PriceBar
	err := g.quotes.Call(ctx, "", "HistoricalPriceSeries", symbol, func(ctx context.Context) error {
		params := url.Values{"symbol": {symbol}, "lookback_days": {strconv.Itoa(lookbackDays)}, "apikey": {g.cfg.APIKey}}
		return g.get(ctx, g.cfg.QuotesBaseURL, "/history", params, &out)
	})
	return out, err
}

func (g *HTTPGateway) VectorSearch(ctx context.Context, embedding []float64, k int, filter map[string]any) ([]VectorMatch, error) {
	var out []VectorMatch
	err := g.vector.Call(ctx, "", "VectorSearch", "", func(ctx context.Context) error {
		payload := map[string]any{"embedding": embedding, "k": k, "filter": filter}
		body, _ := json.Marshal(payload)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.VectorBaseURL+"/search", httpBody(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := g.client.Do(req)
		if err != nil {
			return domain.NewAgentError(domain.KindProviderUnavailable, "", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return domain.NewAgentError(domain.KindProviderUnavailable, "", fmt.Errorf("status %d", resp.StatusCode))
		}
		return json.NewDecoder(resp.Body).Decode(&out)
	})
	return out, err
}

func (g *HTTPGateway) Embed(ctx context.Context, text string) ([]float64, error) {
	var out struct {
		Vector []float64 `json:"vector"`
	}
	err := g.vector.Call(ctx, "", "Embed", "", func(ctx context.Context) error {
		payload := map[string]any{"text": text}
		body, _ := json.Marshal(payload)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.VectorBaseURL+"/embed", httpBody(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := g.client.Do(req)
		if err != nil {
			return domain.NewAgentError(domain.KindProviderUnavailable, "", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return domain.NewAgentError(domain.KindProviderUnavailable, "", fmt.Errorf("status %d", resp.StatusCode))
		}
		return json.NewDecoder(resp.Body).Decode(&out)
	})
	return out.Vector, err
}

func (g *HTTPGateway) Reason(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.ReasoningTimeout)
	defer cancel()

	var text string
	err := g.reason.Call(ctx, "", "Reason", "", func(ctx context.Context) error {
		payload := map[string]any{"prompt": prompt}
		body, _ := json.Marshal(payload)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.ReasoningURL, httpBody(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		// The shared client's Timeout is the data-call timeout; reasoning
		// calls get their own, longer one.
		resp, err := (&http.Client{Timeout: g.cfg.ReasoningTimeout}).Do(req)
		if err != nil {
			return domain.NewAgentError(domain.KindProviderUnavailable, "", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return domain.NewAgentError(domain.KindProviderUnavailable, "", fmt.Errorf("status %d", resp.StatusCode))
		}
		var out struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode reasoning response: %w", err)
		}
		text = out.Text
		return nil
	})
	return text, err
}
