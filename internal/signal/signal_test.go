package signal

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"stockwatch/internal/analysis/indicator"
	"stockwatch/internal/config"
	"stockwatch/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func historyOf(closes []float64) market.History {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{Time: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 100}
	}
	return market.History{Timeframe: market.Daily, Bars: bars}
}

func series(vals ...float64) indicator.Series {
	out := make(indicator.Series, len(vals))
	for i, v := range vals {
		out[i] = indicator.Some(v)
	}
	return out
}

func TestGoldenCrossIffStrictCrossing(t *testing.T) {
	r := rand.New(rand.NewSource(9))
	n := 300
	short := make([]float64, n)
	long := make([]float64, n)
	for i := 0; i < n; i++ {
		long[i] = 10
		short[i] = 10 + float64(r.Intn(5)-2)*0.1
	}
	h := historyOf(long)
	set := indicator.Set{
		Dates: h.Dates(),
		MA:    map[int]indicator.Series{5: series(short...), 10: series(long...)},
	}
	rules := DefaultRules()
	rules.CrossPairs = []CrossPair{{5, 10}}
	rules.TrendWindows = nil

	sigs, err := Detect(h, set, rules)
	require.NoError(t, err)
	fired := map[int]Kind{}
	for _, s := range sigs {
		fired[s.Index] = s.Kind
	}
	for i := 1; i < n; i++ {
		golden := short[i-1] <= long[i-1] && short[i] > long[i]
		death := short[i-1] >= long[i-1] && short[i] < long[i]
		kind, ok := fired[i]
		switch {
		case golden:
			assert.Equal(t, KindGoldenCross, kind, "bar %d", i)
		case death:
			assert.Equal(t, KindDeathCross, kind, "bar %d", i)
		default:
			assert.False(t, ok, "bar %d fired %s without a strict crossing", i, kind)
		}
	}
}

func TestCrossNeedsDefinedValues(t *testing.T) {
	h := historyOf([]float64{1, 1, 1})
	set := indicator.Set{
		Dates: h.Dates(),
		MA: map[int]indicator.Series{
			5:  {indicator.Value{}, indicator.Some(11), indicator.Some(12)},
			10: {indicator.Some(10), indicator.Some(10), indicator.Some(10)},
		},
	}
	rules := DefaultRules()
	rules.CrossPairs = []CrossPair{{5, 10}}
	rules.TrendWindows = nil
	sigs, err := Detect(h, set, rules)
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestCrossUsesExactComparison(t *testing.T) {
	rules := DefaultRules()
	rules.CrossPairs = []CrossPair{{5, 10}}
	rules.TrendWindows = nil
	detect := func(short, long []float64) []Signal {
		h := historyOf(long)
		set := indicator.Set{
			Dates: h.Dates(),
			MA:    map[int]indicator.Series{5: series(short...), 10: series(long...)},
		}
		sigs, err := Detect(h, set, rules)
		require.NoError(t, err)
		return sigs
	}

	// 前一根已经在上方，哪怕只高出极小的量也不算交叉
	assert.Empty(t, detect([]float64{100.00000005, 101}, []float64{100, 100}))

	// 前一根相等，当前根极小幅度上穿也算交叉
	sigs := detect([]float64{100, 100.0000001}, []float64{100, 100})
	require.Len(t, sigs, 1)
	assert.Equal(t, KindGoldenCross, sigs[0].Kind)
	assert.Equal(t, 1, sigs[0].Index)

	sigs = detect([]float64{100, 99.9999999}, []float64{100, 100})
	require.Len(t, sigs, 1)
	assert.Equal(t, KindDeathCross, sigs[0].Kind)
}

func TestConstantSeriesProducesNoSignals(t *testing.T) {
	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 10.37
	}
	h := historyOf(closes)
	set, err := indicator.Compute(h, indicator.DefaultParams())
	require.NoError(t, err)
	res, err := Generate(h, set, DefaultRules(), BuiltinProfiles()[ProfileAggressive])
	require.NoError(t, err)
	assert.Empty(t, res.Signals)
	require.Len(t, res.Decisions, len(closes))
	for _, d := range res.Decisions {
		assert.Equal(t, ActionHold, d.Action)
		assert.Zero(t, d.Confidence)
	}
	rsi, _ := set.RSI.Last()
	assert.Equal(t, 50.0, rsi)
}

func TestScoreAddsConfirmationBonusAndClamps(t *testing.T) {
	raws := []rawSignal{
		{Signal: Signal{Index: 3, Kind: KindMACDGolden, Direction: Buy, Magnitude: 1}, base: 7},
		{Signal: Signal{Index: 3, Kind: KindRSIOversold, Direction: Buy, Magnitude: 0.2}, base: 6},
		{Signal: Signal{Index: 3, Kind: KindTrendBull, Direction: Buy, Magnitude: 1}, base: 8},
		{Signal: Signal{Index: 3, Kind: KindBollUpper, Direction: Sell, Magnitude: 0}, base: 5},
	}
	out := score(raws)
	byKind := map[Kind]int{}
	for _, s := range out {
		byKind[s.Kind] = s.Strength
	}
	assert.Equal(t, 10, byKind[KindMACDGolden])  // 7+2+2 -> 10
	assert.Equal(t, 8, byKind[KindRSIOversold])  // 6+0+2
	assert.Equal(t, 10, byKind[KindTrendBull])   // 8+2+2 -> 10
	assert.Equal(t, 5, byKind[KindBollUpper])    // 同日无同向确认
	for _, s := range out {
		assert.GreaterOrEqual(t, s.Strength, MinStrength)
		assert.LessOrEqual(t, s.Strength, MaxStrength)
	}
}

func TestAggregateAppliesProfileThresholds(t *testing.T) {
	dates := []string{"d0", "d1", "d2", "d3"}
	sigs := []Signal{
		// d1: 单条 8 强度买入
		{Index: 1, Direction: Buy, Strength: 8},
		// d2: 买卖相等
		{Index: 2, Direction: Buy, Strength: 7},
		{Index: 2, Direction: Sell, Strength: 7},
		// d3: 两条卖出
		{Index: 3, Direction: Sell, Strength: 7},
		{Index: 3, Direction: Sell, Strength: 8},
		{Index: 3, Direction: Buy, Strength: 3},
	}
	profiles := BuiltinProfiles()

	agg := Aggregate(dates, sigs, profiles[ProfileAggressive])
	require.Len(t, agg, 4)
	assert.Equal(t, ActionHold, agg[0].Action)
	assert.Equal(t, ActionBuy, agg[1].Action)
	assert.Equal(t, 1.0, agg[1].Confidence)
	assert.Equal(t, ActionHold, agg[2].Action, "ties resolve to hold")
	assert.Equal(t, ActionSell, agg[3].Action)
	assert.InDelta(t, 12.0/18.0, agg[3].Confidence, 1e-4)

	cons := Aggregate(dates, sigs, profiles[ProfileConservative])
	assert.Equal(t, ActionHold, cons[1].Action, "one confirmation is not enough")
	assert.Equal(t, ActionSell, cons[3].Action)
	assert.Equal(t, 0, cons[3].BuyStrength, "weak buy filtered by min_signal_strength")
	assert.Equal(t, ProfileConservative, cons[3].Profile)
}

func TestConservativeIsStricterThanAggressive(t *testing.T) {
	p := BuiltinProfiles()
	cons, aggr := p[ProfileConservative], p[ProfileAggressive]
	assert.Greater(t, cons.MinNetStrength, aggr.MinNetStrength)
	assert.Greater(t, cons.MinConfirmations, aggr.MinConfirmations)
	assert.GreaterOrEqual(t, cons.MinSignalStrength, aggr.MinSignalStrength)
}

func TestProfileValidation(t *testing.T) {
	var cerr *config.Error
	for _, p := range []Profile{
		{Name: "x", MinSignalStrength: 0, MinNetStrength: 1, MinConfirmations: 1},
		{Name: "x", MinSignalStrength: 11, MinNetStrength: 1, MinConfirmations: 1},
		{Name: "x", MinSignalStrength: 5, MinNetStrength: 0, MinConfirmations: 1},
		{Name: "x", MinSignalStrength: 5, MinNetStrength: 3, MinConfirmations: 0},
	} {
		assert.True(t, errors.As(p.Validate(), &cerr), fmt.Sprintf("%+v", p))
	}

	_, err := ResolveProfile("turbo", nil)
	assert.True(t, errors.As(err, &cerr))

	p, err := ResolveProfile(" Conservative ", nil)
	require.NoError(t, err)
	assert.Equal(t, 14, p.MinNetStrength)

	custom := map[string]Profile{"moderate": {MinSignalStrength: 3, MinNetStrength: 6, MinConfirmations: 1}}
	p, err = ResolveProfile("", custom)
	require.NoError(t, err)
	assert.Equal(t, "moderate", p.Name)
	assert.Equal(t, 6, p.MinNetStrength)
}

func TestRulesValidation(t *testing.T) {
	var cerr *config.Error
	r := DefaultRules()
	r.CrossPairs = []CrossPair{{10, 5}}
	assert.True(t, errors.As(r.Validate(), &cerr))
	r = DefaultRules()
	r.RSIOversold = 80
	assert.True(t, errors.As(r.Validate(), &cerr))
}

func TestGenerateDetectsTrendReversal(t *testing.T) {
	closes := make([]float64, 0, 80)
	for i := 0; i < 40; i++ {
		closes = append(closes, 20-float64(i)*0.2)
	}
	for i := 0; i < 40; i++ {
		closes = append(closes, 12+float64(i)*0.3)
	}
	h := historyOf(closes)
	set, err := indicator.Compute(h, indicator.DefaultParams())
	require.NoError(t, err)
	res, err := Generate(h, set, DefaultRules(), BuiltinProfiles()[ProfileModerate])
	require.NoError(t, err)

	kinds := map[Kind]bool{}
	for _, s := range res.Signals {
		kinds[s.Kind] = true
		assert.Equal(t, set.Dates[s.Index], s.Date)
	}
	assert.True(t, kinds[KindGoldenCross])
	assert.True(t, kinds[KindMACDGolden])
	assert.True(t, kinds[KindTrendBull])
	// 空头排列在 MA20 首次有值时已存在，不算新出现
	assert.False(t, kinds[KindTrendBear])
	assert.Len(t, res.Decisions, len(closes))
}
