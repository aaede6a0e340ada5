package pattern

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockwatch/internal/market"
)

func history(closes []float64, spread func(i int) float64) market.History {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		s := spread(i)
		bars[i] = market.Bar{Time: start.AddDate(0, 0, i), Open: c, High: c + s, Low: c - s, Close: c, Volume: 1000}
	}
	return market.History{Bars: bars}
}

func flatSpread(int) float64 { return 0.1 }

func TestAnalyzeEmpty(t *testing.T) {
	res := Analyze(market.History{})
	assert.Equal(t, Balanced, res.Bias)
	assert.Empty(t, res.Matches)
	assert.Equal(t, "未发现显著形态", res.Summary())
}

func TestAnalyzeTrendBias(t *testing.T) {
	up := make([]float64, 30)
	down := make([]float64, 30)
	for i := range up {
		up[i] = 10 + 0.2*float64(i)
		down[i] = 20 - 0.2*float64(i)
	}
	res := Analyze(history(up, flatSpread))
	assert.Equal(t, Bullish, res.Bias)
	assert.Greater(t, res.Slope, 0.0)
	assert.Contains(t, res.Trend, "回归斜率")

	res = Analyze(history(down, flatSpread))
	assert.Equal(t, Bearish, res.Bias)

	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 10
	}
	res = Analyze(history(flat, flatSpread))
	assert.Equal(t, Balanced, res.Bias)
	assert.Empty(t, res.Matches)
}

func TestDoubleBottom(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 12
	}
	// 后半段两个相同低点，间隔 8 根
	closes[24] = 10
	closes[32] = 10.02
	res := Analyze(history(closes, func(int) float64 { return 0 }))
	require.NotEmpty(t, res.Matches)
	assert.Equal(t, DoubleBottom, res.Matches[0].Kind)
	assert.InDelta(t, 10.01, res.Matches[0].Level, 1e-9)
	assert.Contains(t, res.Summary(), "双底")
}

func TestCompression(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 10
	}
	res := Analyze(history(closes, func(i int) float64 {
		if i < 20 {
			return 1
		}
		return 0.1
	}))
	kinds := make([]Kind, 0, len(res.Matches))
	for _, m := range res.Matches {
		kinds = append(kinds, m.Kind)
	}
	assert.Contains(t, kinds, Compression)
	assert.Contains(t, kinds, Triangle)
}

func TestShortHistoryHasNoMatches(t *testing.T) {
	closes := []float64{10, 9, 10, 9, 10}
	res := Analyze(history(closes, flatSpread))
	assert.Empty(t, res.Matches)
}
