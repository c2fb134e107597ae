package cascade

import (
	"context"

	"github.com/markcheno/go-talib"

	"github.com/optionagent/agent/internal/domain"
	"github.com/optionagent/agent/internal/gateway"
	"github.com/optionagent/agent/internal/ips"
)

const ivHistoryLookbackDays = 365
const ivHistoryMinSamples = 20
const priceHistoryLookbackDays = 250
const rsiPeriod = 14
const macdFast, macdSlow, macdSignal = 12, 26, 9
const minPriceSamplesForTechnicals = macdSlow + macdSignal
const newsSearchLookbackDays = 7
const newsSearchMaxResults = 20

// buildGeneralContext fans out the gateway calls S1 needs for one symbol
// and assembles the EvalContext scope=general factors read from. A
// per-call error is recorded but does not abort the build: missing
// fields simply make their dependent factors evaluate to a fail, except
// where the factor itself is documented non-blocking.
func buildGeneralContext(ctx context.Context, gw gateway.Gateway, runID, symbol string, macro map[string]float64) (*ips.EvalContext, []domain.RunError) {
	var errs []domain.RunError
	record := func(stage string, err error) {
		errs = append(errs, domain.RunError{Kind: classify(err), Symbol: symbol, Stage: stage, Message: err.Error()})
	}

	ectx := &ips.EvalContext{Symbol: symbol, Macro: macro}

	if quote, err := gw.Quote(ctx, symbol); err != nil {
		record("s1_quote", err)
	} else {
		ectx.Price = quote.Price
	}

	if overview, err := gw.CompanyOverview(ctx, symbol); err != nil {
		record("s1_overview", err)
	} else {
		ectx.Overview = overview
	}

	if sma, err := gw.SMA(ctx, symbol, 50, "daily", "close"); err != nil {
		record("s1_sma50", err)
	} else {
		v := sma.Value
		ectx.SMA50 = &v
	}

	if sma, err := gw.SMA(ctx, symbol, 200, "daily", "close"); err != nil {
		record("s1_sma200", err)
	} else {
		v := sma.Value
		ectx.SMA200 = &v
	}

	if mom, err := gw.MOM(ctx, symbol, "daily", 10, "close"); err != nil {
		record("s1_mom", err)
	} else {
		v := mom
		ectx.MOM10 = &v
	}

	if sentiment, err := gw.NewsSentiment(ctx, symbol, 50); err != nil {
		record("s1_sentiment", err)
	} else {
		avg := sentiment.AverageScore
		vol := float64(sentiment.Count)
		ectx.NewsSentimentAvg = &avg
		ectx.NewsVolume = &vol
	}

	if articles, err := gw.News(ctx, symbol, "", newsSearchLookbackDays, newsSearchMaxResults); err != nil {
		record("s1_news", err)
	} else {
		count := float64(len(articles))
		ectx.NewsHeadlineCount = &count
	}

	if ivHistory, err := gw.HistoricalIVSeries(ctx, symbol, ivHistoryLookbackDays); err != nil {
		record("s1_iv_history", err)
	} else {
		ectx.IVHistory = ivHistory
		ectx.IVHistorySufficient = len(ivHistory) >= ivHistoryMinSamples
		if ectx.IVHistorySufficient {
			rank, pct := ivRankAndPercentile(ivHistory)
			ectx.IVRank = &rank
			ectx.IVPercentile = &pct
		}
	}

	if priceHistory, err := gw.HistoricalPriceSeries(ctx, symbol, priceHistoryLookbackDays); err != nil {
		record("s1_price_history", err)
	} else {
		rsi, macd := technicals(priceHistory)
		ectx.RSI14 = rsi
		ectx.MACD = macd
	}

	return ectx, errs
}

// technicals computes RSI(14) and MACD (12,26,9) histogram from a daily
// close series via go-talib, returning nil for either when the series is
// too short for that indicator to have warmed up.
func technicals(bars []gateway.PriceBar) (rsi14, macd *float64) {
	if len(bars) < rsiPeriod+1 {
		return nil, nil
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	rsiSeries := talib.Rsi(closes, rsiPeriod)
	if v := rsiSeries[len(rsiSeries)-1]; v != 0 {
		rsi14 = &v
	}

	if len(bars) >= minPriceSamplesForTechnicals {
		_, _, hist := talib.Macd(closes, macdFast, macdSlow, macdSignal)
		v := hist[len(hist)-1]
		macd = &v
	}
	return rsi14, macd
}

// ivRankAndPercentile computes the rank (0-100, current position within
// the historical min/max range) and percentile (0-100, fraction of
// historical samples below current) of the most recent IV reading.
func ivRankAndPercentile(history []gateway.IVPoint) (rank, percentile float64) {
	if len(history) == 0 {
		return 0, 0
	}
	current := history[len(history)-1].IVAtm30D
	min, max := current, current
	below := 0
	for _, p := range history {
		if p.IVAtm30D < min {
			min = p.IVAtm30D
		}
		if p.IVAtm30D > max {
			max = p.IVAtm30D
		}
		if p.IVAtm30D < current {
			below++
		}
	}
	if max > min {
		rank = (current - min) / (max - min) * 100
	}
	percentile = float64(below) / float64(len(history)) * 100
	return rank, percentile
}

// classify maps a gateway error to its ErrorKind, defaulting to
// ProviderUnavailable for anything not already tagged.
func classify(err error) domain.ErrorKind {
	var agentErr *domain.AgentError
	if e, ok := asAgentError(err); ok {
		return e.Kind
	}
	_ = agentErr
	return domain.KindProviderUnavailable
}

func asAgentError(err error) (*domain.AgentError, bool) {
	for err != nil {
		if e, ok := err.(*domain.AgentError); ok {
			return e, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
