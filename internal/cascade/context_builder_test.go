package cascade

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionagent/agent/internal/gateway"
)

func makeBars(n int, start float64, step float64) []gateway.PriceBar {
	bars := make([]gateway.PriceBar, n)
	day := time.Now().AddDate(0, 0, -n)
	price := start
	for i := 0; i < n; i++ {
		bars[i] = gateway.PriceBar{Date: day.AddDate(0, 0, i), Close: price}
		price += step
	}
	return bars
}

func TestTechnicalsReturnsNilForShortSeries(t *testing.T) {
	rsi, macd := technicals(makeBars(5, 100, 1))
	assert.Nil(t, rsi)
	assert.Nil(t, macd)
}

func TestTechnicalsComputesRSIOnceWarmedUp(t *testing.T) {
	rsi, _ := technicals(makeBars(rsiPeriod+5, 100, 1))
	assert.NotNil(t, rsi)
	assert.Greater(t, *rsi, 0.0)
}

func TestTechnicalsComputesMACDOnceWarmedUp(t *testing.T) {
	_, macd := technicals(makeBars(minPriceSamplesForTechnicals+5, 100, 0.5))
	assert.NotNil(t, macd)
}

func TestBuildGeneralContextPullsBothNewsAndSentiment(t *testing.T) {
	fake := gateway.NewFake()
	fake.NewsItems["XYZ"] = []gateway.NewsItem{{Title: "a"}, {Title: "b"}, {Title: "c"}}
	fake.Sentiments["XYZ"] = gateway.SentimentResult{AverageScore: 0.4, Count: 12}

	ectx, errs := buildGeneralContext(context.Background(), fake, "run-1", "XYZ", nil)

	require.Empty(t, errs)
	require.NotNil(t, ectx.NewsHeadlineCount)
	assert.Equal(t, 3.0, *ectx.NewsHeadlineCount)
	require.NotNil(t, ectx.NewsSentimentAvg)
	assert.Equal(t, 0.4, *ectx.NewsSentimentAvg)
	assert.Equal(t, 1, fake.Calls["News"])
	assert.Equal(t, 1, fake.Calls["NewsSentiment"])
}
