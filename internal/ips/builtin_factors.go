package ips

import "github.com/optionagent/agent/internal/domain"

// builtinFactors returns every factor the registry supports, grouped by
// category: contract greeks, contract microstructure, chain-aggregate,
// fundamentals, price position, momentum/technicals, macro, news/sentiment,
// and event. scope=chain entries read ectx.Leg; scope=general entries do
// not and must tolerate Leg being nil.
func builtinFactors() []entry {
	var all []entry
	all = append(all, greekFactors()...)
	all = append(all, microstructureFactors()...)
	all = append(all, chainAggregateFactors()...)
	all = append(all, fundamentalFactors()...)
	all = append(all, pricePositionFactors()...)
	all = append(all, momentumFactors()...)
	all = append(all, macroFactors()...)
	all = append(all, newsFactors()...)
	all = append(all, eventFactors()...)
	return all
}

func greekFactors() []entry {
	return []entry{
		{
			key: "opt-delta", displayName: "Delta", aliases: []string{"delta", "contract delta"},
			scope: domain.ScopeChain, tolerance: 0.01,
			extract: func(c *EvalContext) extractResult {
				if c.Leg == nil {
					return missing()
				}
				return ok(absFloat(c.Leg.Delta))
			},
		},
		{
			key: "opt-gamma", displayName: "Gamma", aliases: []string{"gamma"},
			scope: domain.ScopeChain,
			extract: func(c *EvalContext) extractResult {
				if c.Leg == nil {
					return missing()
				}
				return ok(c.Leg.Gamma)
			},
		},
		{
			key: "opt-theta", displayName: "Theta", aliases: []string{"theta"},
			scope: domain.ScopeChain,
			extract: func(c *EvalContext) extractResult {
				if c.Leg == nil {
					return missing()
				}
				return ok(c.Leg.Theta)
			},
		},
		{
			key: "opt-vega", displayName: "Vega", aliases: []string{"vega"},
			scope: domain.ScopeChain,
			extract: func(c *EvalContext) extractResult {
				if c.Leg == nil {
					return missing()
				}
				return ok(c.Leg.Vega)
			},
		},
		{
			key: "opt-iv", displayName: "Implied Volatility", aliases: []string{"iv", "implied volatility"},
			scope: domain.ScopeChain,
			extract: func(c *EvalContext) extractResult {
				if c.Leg == nil {
					return missing()
				}
				return ok(c.Leg.IV)
			},
		},
	}
}

func microstructureFactors() []entry {
	return []entry{
		{
			key: "opt-open-interest", displayName: "Open Interest", aliases: []string{"open interest", "oi"},
			scope: domain.ScopeChain,
			extract: func(c *EvalContext) extractResult {
				if c.Leg == nil {
					return missing()
				}
				return ok(float64(c.Leg.OpenInterest))
			},
		},
		{
			key: "opt-bid-ask-spread", displayName: "Bid-Ask Spread", aliases: []string{"bid-ask spread", "spread"},
			scope: domain.ScopeChain, tolerance: 0.02,
			extract: func(c *EvalContext) extractResult {
				if c.Leg == nil {
					return missing()
				}
				return ok(absFloat(c.Leg.Ask - c.Leg.Bid))
			},
		},
		{
			key: "opt-last-trade-age", displayName: "Last Trade Age (minutes)", aliases: []string{"last trade age"},
			scope: domain.ScopeChain,
			extract: func(c *EvalContext) extractResult {
				if c.Leg == nil {
					return missing()
				}
				return ok(c.Leg.LastTradeAgeMin)
			},
		},
	}
}

func chainAggregateFactors() []entry {
	return []entry{
		{
			key: "iv-rank", displayName: "IV Rank", aliases: []string{"iv rank"},
			scope: domain.ScopeGeneral, nonBlocking: true,
			extract: func(c *EvalContext) extractResult {
				if !c.IVHistorySufficient {
					return insufficientHistory()
				}
				if c.IVRank == nil {
					return missing()
				}
				return ok(*c.IVRank)
			},
		},
		{
			key: "iv-percentile", displayName: "IV Percentile", aliases: []string{"iv percentile"},
			scope: domain.ScopeGeneral, nonBlocking: true,
			extract: func(c *EvalContext) extractResult {
				if !c.IVHistorySufficient {
					return insufficientHistory()
				}
				if c.IVPercentile == nil {
					return missing()
				}
				return ok(*c.IVPercentile)
			},
		},
		{
			key: "put-call-volume-ratio", displayName: "Put/Call Volume Ratio", aliases: []string{"put call volume ratio", "pc volume ratio"},
			scope:   domain.ScopeGeneral,
			extract: func(c *EvalContext) extractResult { return ptr(c.PutCallVolumeRatio) },
		},
		{
			key: "put-call-oi-ratio", displayName: "Put/Call OI Ratio", aliases: []string{"put call oi ratio", "pc oi ratio"},
			scope:   domain.ScopeGeneral,
			extract: func(c *EvalContext) extractResult { return ptr(c.PutCallOIRatio) },
		},
	}
}

func fundamentalFactors() []entry {
	mk := func(key, display string, aliases []string) entry {
		return entry{
			key: key, displayName: display, aliases: aliases, scope: domain.ScopeGeneral,
			extract: func(c *EvalContext) extractResult { return overviewFloat(c, key) },
		}
	}
	return []entry{
		mk("fund-market-cap", "Market Cap", []string{"market cap"}),
		mk("fund-pe", "P/E Ratio", []string{"pe ratio", "p/e"}),
		mk("fund-pb", "P/B Ratio", []string{"pb ratio", "p/b"}),
		mk("fund-ev-ebitda", "EV/EBITDA", []string{"ev/ebitda", "ev ebitda"}),
		mk("fund-roe", "Return on Equity", []string{"roe"}),
		mk("fund-roa", "Return on Assets", []string{"roa"}),
		mk("fund-profit-margin", "Profit Margin", []string{"profit margin"}),
		mk("fund-revenue-growth-yoy", "Revenue Growth YoY", []string{"revenue growth", "revenue growth yoy"}),
		mk("fund-eps-growth-yoy", "EPS Growth YoY", []string{"eps growth", "eps growth yoy"}),
		mk("fund-dividend-yield", "Dividend Yield", []string{"dividend yield"}),
	}
}

func pricePositionFactors() []entry {
	return []entry{
		{
			key: "price-dist-52w-high", displayName: "Distance from 52W High", aliases: []string{"distance from 52 week high", "52w high distance"},
			scope: domain.ScopeGeneral,
			extract: func(c *EvalContext) extractResult {
				high := overviewFloat(c, "fifty_two_week_high")
				if high.value == nil || c.Price == 0 {
					return missing()
				}
				return ok((*high.value - c.Price) / *high.value)
			},
		},
		{
			key: "price-dist-52w-low", displayName: "Distance from 52W Low", aliases: []string{"distance from 52 week low", "52w low distance"},
			scope: domain.ScopeGeneral,
			extract: func(c *EvalContext) extractResult {
				low := overviewFloat(c, "fifty_two_week_low")
				if low.value == nil || *low.value == 0 {
					return missing()
				}
				return ok((c.Price - *low.value) / *low.value)
			},
		},
		{
			key: "price-analyst-target-distance", displayName: "Analyst Target Distance", aliases: []string{"analyst target distance"},
			scope: domain.ScopeGeneral,
			extract: func(c *EvalContext) extractResult {
				target := overviewFloat(c, "analyst_target_price")
				if target.value == nil || *target.value == 0 {
					return missing()
				}
				return ok((*target.value - c.Price) / *target.value)
			},
		},
		{
			key: "price-sma50-ratio", displayName: "Price/SMA50", aliases: []string{"price sma50", "price/sma50"},
			scope: domain.ScopeGeneral,
			extract: func(c *EvalContext) extractResult {
				if c.SMA50 == nil || *c.SMA50 == 0 {
					return missing()
				}
				return ok(c.Price / *c.SMA50)
			},
		},
		{
			key: "price-sma200-ratio", displayName: "Price/SMA200", aliases: []string{"price sma200", "price/sma200"},
			scope: domain.ScopeGeneral,
			extract: func(c *EvalContext) extractResult {
				if c.SMA200 == nil || *c.SMA200 == 0 {
					return missing()
				}
				return ok(c.Price / *c.SMA200)
			},
		},
	}
}

func momentumFactors() []entry {
	return []entry{
		{
			key: "mom-10", displayName: "Momentum(10)", aliases: []string{"mom10", "momentum 10"},
			scope:   domain.ScopeGeneral,
			extract: func(c *EvalContext) extractResult { return ptr(c.MOM10) },
		},
		{
			key: "rsi-14", displayName: "RSI(14)", aliases: []string{"rsi14", "rsi 14"},
			scope:   domain.ScopeGeneral,
			extract: func(c *EvalContext) extractResult { return ptr(c.RSI14) },
		},
		{
			key: "macd", displayName: "MACD", aliases: []string{"macd"},
			scope:   domain.ScopeGeneral,
			extract: func(c *EvalContext) extractResult { return ptr(c.MACD) },
		},
		{
			key: "golden-cross", displayName: "Golden Cross", aliases: []string{"golden cross"},
			scope: domain.ScopeGeneral,
			extract: func(c *EvalContext) extractResult {
				if c.GoldenCross == nil {
					return missing()
				}
				if *c.GoldenCross {
					return ok(1)
				}
				return ok(0)
			},
		},
	}
}

func macroFactors() []entry {
	mk := func(key, display, seriesID string, aliases []string) entry {
		return entry{
			key: key, displayName: display, aliases: aliases, scope: domain.ScopeGeneral,
			extract: func(c *EvalContext) extractResult {
				v, found := c.Macro[seriesID]
				if !found {
					return missing()
				}
				return ok(v)
			},
		}
	}
	return []entry{
		mk("macro-cpi", "CPI", "CPI", []string{"cpi"}),
		mk("macro-unemployment", "Unemployment Rate", "UNEMPLOYMENT", []string{"unemployment rate", "unemployment"}),
		mk("macro-fed-funds", "Fed Funds Rate", "FED_FUNDS", []string{"fed funds rate", "fed funds"}),
		mk("macro-10y-treasury", "10Y Treasury Yield", "TREASURY_10Y", []string{"10y treasury yield", "10 year treasury"}),
	}
}

func newsFactors() []entry {
	return []entry{
		{
			key: "news-sentiment-avg", displayName: "News Sentiment Average", aliases: []string{"news sentiment", "news sentiment average"},
			scope:   domain.ScopeGeneral,
			extract: func(c *EvalContext) extractResult { return ptr(c.NewsSentimentAvg) },
		},
		{
			key: "news-volume", displayName: "News Volume", aliases: []string{"news volume"},
			scope:   domain.ScopeGeneral,
			extract: func(c *EvalContext) extractResult { return ptr(c.NewsVolume) },
		},
		{
			key: "news-headline-count", displayName: "News Headline Count", aliases: []string{"news headline count", "news headlines"},
			scope:   domain.ScopeGeneral,
			extract: func(c *EvalContext) extractResult { return ptr(c.NewsHeadlineCount) },
		},
		{
			key: "social-sentiment-avg", displayName: "Social Sentiment Average", aliases: []string{"social sentiment", "social sentiment average"},
			scope:   domain.ScopeGeneral,
			extract: func(c *EvalContext) extractResult { return ptr(c.SocialSentiment) },
		},
	}
}

func eventFactors() []entry {
	return []entry{
		{
			key: "earnings-within-n-days", displayName: "Earnings Within N Days", aliases: []string{"earnings within n days", "earnings soon"},
			scope: domain.ScopeGeneral,
			extract: func(c *EvalContext) extractResult {
				if c.EarningsWithinDays == nil {
					return missing()
				}
				return ok(float64(*c.EarningsWithinDays))
			},
		},
	}
}

// ptr converts a possibly-nil *float64 into an extractResult.
func ptr(v *float64) extractResult {
	if v == nil {
		return missing()
	}
	return ok(*v)
}

// overviewFloat pulls a numeric field out of the loosely-typed company
// overview map, tolerating both float64 and int representations since the
// source provider's JSON encoding is not guaranteed.
func overviewFloat(c *EvalContext, field string) extractResult {
	if c.Overview == nil {
		return missing()
	}
	raw, found := c.Overview[field]
	if !found || raw == nil {
		return missing()
	}
	switch v := raw.(type) {
	case float64:
		return ok(v)
	case float32:
		return ok(float64(v))
	case int:
		return ok(float64(v))
	case int64:
		return ok(float64(v))
	default:
		return missing()
	}
}
