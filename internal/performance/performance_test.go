package performance

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"stockwatch/internal/backtest"
	"stockwatch/internal/config"
	"stockwatch/internal/signal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func curveOf(equity ...float64) []backtest.EquityPoint {
	out := make([]backtest.EquityPoint, len(equity))
	for i, e := range equity {
		out[i] = backtest.EquityPoint{Index: i, Close: 10 + float64(i), Equity: e}
	}
	return out
}

func resultOf(curve []backtest.EquityPoint, trades ...backtest.Trade) backtest.Result {
	return backtest.Result{
		InitialCapital: curve[0].Equity,
		EquityCurve:    curve,
		Trades:         trades,
		FinalEquity:    curve[len(curve)-1].Equity,
	}
}

func TestFlatCurveLeavesRatiosUndefined(t *testing.T) {
	m, err := Analyze(resultOf(curveOf(100000, 100000, 100000, 100000)), DefaultOptions())
	require.NoError(t, err)
	assert.Zero(t, m.TotalReturn)
	require.NotNil(t, m.AnnualizedReturn)
	assert.Zero(t, *m.AnnualizedReturn)
	assert.Zero(t, m.MaxDrawdown)
	assert.Nil(t, m.Sharpe)
	assert.Nil(t, m.Sortino)
	assert.Nil(t, m.WinRate)
	assert.Nil(t, m.AvgWin)
	assert.Nil(t, m.AvgLoss)
	assert.Nil(t, m.ProfitFactor)
	assert.Zero(t, m.TradeCount)

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"sharpe":null`)
	assert.Contains(t, string(raw), `"win_rate":null`)
}

func TestConstantGrowthLeavesSortinoUndefined(t *testing.T) {
	// 每根 bar 收益相同，方差为零；即便低于无风险收益也不给出下行比率
	opts := DefaultOptions()
	opts.RiskFreeRate = 0.5
	m, err := Analyze(resultOf(curveOf(100, 101, 102.01, 103.0301)), opts)
	require.NoError(t, err)
	assert.Nil(t, m.Sharpe)
	assert.Nil(t, m.Sortino)
}

func TestReturnsAndDrawdown(t *testing.T) {
	m, err := Analyze(resultOf(curveOf(100, 120, 90, 110)), Options{PeriodsPerYear: 3})
	require.NoError(t, err)
	assert.InDelta(t, 0.10, m.TotalReturn, 1e-12)
	// 3 个区间恰好一年
	require.NotNil(t, m.AnnualizedReturn)
	assert.InDelta(t, 0.10, *m.AnnualizedReturn, 1e-12)
	assert.InDelta(t, 0.25, m.MaxDrawdown, 1e-12)
	assert.Equal(t, 3, m.Periods)
}

func TestAnnualizationScalesWithPeriods(t *testing.T) {
	m, err := Analyze(resultOf(curveOf(100, 105, 110, 121)), Options{PeriodsPerYear: 6})
	require.NoError(t, err)
	require.NotNil(t, m.AnnualizedReturn)
	assert.InDelta(t, math.Pow(1.21, 2)-1, *m.AnnualizedReturn, 1e-12)
}

func TestSharpeMatchesHandComputation(t *testing.T) {
	curve := curveOf(100, 101, 100, 102, 103)
	m, err := Analyze(resultOf(curve), Options{PeriodsPerYear: 252})
	require.NoError(t, err)

	rets := []float64{101.0/100 - 1, 100.0/101 - 1, 102.0/100 - 1, 103.0/102 - 1}
	var mean float64
	for _, r := range rets {
		mean += r
	}
	mean /= 4
	var sq float64
	for _, r := range rets {
		sq += (r - mean) * (r - mean)
	}
	std := math.Sqrt(sq / 3)
	require.NotNil(t, m.Sharpe)
	assert.InDelta(t, mean/std*math.Sqrt(252), *m.Sharpe, 1e-9)
	require.NotNil(t, m.Sortino)
	assert.Greater(t, *m.Sortino, *m.Sharpe)
}

func TestTradeStatistics(t *testing.T) {
	trades := []backtest.Trade{{PnL: 300}, {PnL: -100}, {PnL: 100}, {PnL: 0}}
	m, err := Analyze(resultOf(curveOf(1000, 1300), trades...), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 4, m.TradeCount)
	require.NotNil(t, m.WinRate)
	assert.InDelta(t, 0.5, *m.WinRate, 1e-12)
	assert.InDelta(t, 200.0, *m.AvgWin, 1e-12)
	assert.InDelta(t, -100.0, *m.AvgLoss, 1e-12)
	assert.InDelta(t, 4.0, *m.ProfitFactor, 1e-12)
}

func TestNoLossesLeavesProfitFactorUndefined(t *testing.T) {
	m, err := Analyze(resultOf(curveOf(1000, 1100), backtest.Trade{PnL: 100}), DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, m.AvgLoss)
	assert.Nil(t, m.ProfitFactor)
	assert.InDelta(t, 1.0, *m.WinRate, 1e-12)
}

func TestExposureAndBenchmark(t *testing.T) {
	curve := curveOf(100, 100, 110, 120)
	curve[2].Shares = 10
	curve[3].Shares = 10
	m, err := Analyze(resultOf(curve), DefaultOptions())
	require.NoError(t, err)
	require.NotNil(t, m.Exposure)
	assert.InDelta(t, 0.5, *m.Exposure, 1e-12)
	require.NotNil(t, m.BenchmarkReturn)
	assert.InDelta(t, 13.0/10-1, *m.BenchmarkReturn, 1e-12)
}

func TestSingleBarHasNoAnnualization(t *testing.T) {
	m, err := Analyze(resultOf(curveOf(100)), DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, m.AnnualizedReturn)
	assert.Nil(t, m.Sharpe)
}

func TestOptionsValidation(t *testing.T) {
	var cerr *config.Error
	_, err := Analyze(resultOf(curveOf(100, 101)), Options{PeriodsPerYear: 0})
	assert.True(t, errors.As(err, &cerr))
	_, err = Analyze(resultOf(curveOf(100, 101)), Options{PeriodsPerYear: 252, RiskFreeRate: -2})
	assert.True(t, errors.As(err, &cerr))
}

func TestHitRates(t *testing.T) {
	closes := []float64{10, 11, 12, 11, 10}
	sigs := []signal.Signal{
		{Index: 0, Kind: signal.KindGoldenCross, Direction: signal.Buy},
		{Index: 2, Kind: signal.KindGoldenCross, Direction: signal.Buy},
		{Index: 2, Kind: signal.KindDeathCross, Direction: signal.Sell},
	}
	stats := HitRates(closes, sigs, []int{1, 3})
	require.Len(t, stats, 4)

	assert.Equal(t, signal.KindDeathCross, stats[0].Kind)
	assert.Equal(t, 1, stats[0].Horizon)
	assert.Equal(t, 1, stats[0].Hits)
	assert.InDelta(t, 1.0, *stats[0].HitRate, 1e-12)

	// 3 日前瞻超出末尾
	assert.Equal(t, signal.KindDeathCross, stats[1].Kind)
	assert.Equal(t, 0, stats[1].Count)
	assert.Nil(t, stats[1].HitRate)

	golden1 := stats[2]
	assert.Equal(t, 1, golden1.Horizon)
	assert.Equal(t, 2, golden1.Count)
	assert.Equal(t, 1, golden1.Hits)
	assert.InDelta(t, 0.5, *golden1.HitRate, 1e-12)

	golden3 := stats[3]
	assert.Equal(t, 1, golden3.Count)
	assert.InDelta(t, 0.1, *golden3.MeanReturn, 1e-12)
}
