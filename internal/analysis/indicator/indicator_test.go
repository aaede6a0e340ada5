package indicator

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"stockwatch/internal/config"
	"stockwatch/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomWalk(n int, seed int64) []float64 {
	r := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	price := 100.0
	for i := range out {
		price *= 1 + (r.Float64()-0.5)*0.06
		out[i] = price
	}
	return out
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func historyFrom(closes []float64) market.History {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{
			Time:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1000 + float64(i),
		}
	}
	return market.History{Symbol: "TEST", Timeframe: market.Daily, Bars: bars}
}

func TestMAMatchesArithmeticMean(t *testing.T) {
	closes := randomWalk(120, 1)
	for _, n := range []int{1, 5, 20, 60} {
		ma, err := MA(closes, n)
		require.NoError(t, err)
		require.Len(t, ma, len(closes))
		for i := range closes {
			v, ok := ma.At(i)
			if i < n-1 {
				assert.False(t, ok, "n=%d i=%d should be undefined", n, i)
				continue
			}
			require.True(t, ok)
			sum := 0.0
			for _, c := range closes[i-n+1 : i+1] {
				sum += c
			}
			assert.InDelta(t, sum/float64(n), v, 1e-9)
		}
	}
	short, err := MA([]float64{1, 2}, 5)
	require.NoError(t, err)
	assert.Equal(t, Series{{}, {}}, short)
}

func TestRSIBoundsAndConventions(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		rsi, err := RSI(randomWalk(200, seed), 14)
		require.NoError(t, err)
		for i, v := range rsi {
			if i < 14 {
				assert.False(t, v.Valid)
				continue
			}
			assert.True(t, v.Valid)
			assert.GreaterOrEqual(t, v.Float64, 0.0)
			assert.LessOrEqual(t, v.Float64, 100.0)
		}
	}

	up := make([]float64, 30)
	for i := range up {
		up[i] = float64(10 + i)
	}
	rsi, err := RSI(up, 14)
	require.NoError(t, err)
	last, ok := rsi.Last()
	require.True(t, ok)
	assert.Equal(t, 100.0, last)

	flat, err := RSI(constant(30, 10), 14)
	require.NoError(t, err)
	for _, v := range flat[14:] {
		assert.Equal(t, 50.0, v.Float64)
	}
}

func TestRSIWilderSmoothing(t *testing.T) {
	closes := []float64{10, 11, 10, 12, 11}
	rsi, err := RSI(closes, 2)
	require.NoError(t, err)
	// 首值：gain=(1+0)/2=0.5 loss=(0+1)/2=0.5
	v, _ := rsi.At(2)
	assert.InDelta(t, 50.0, v, 1e-12)
	// gain=(0.5*1+2)/2=1.25 loss=(0.5*1+0)/2=0.25
	v, _ = rsi.At(3)
	assert.InDelta(t, 100*1.25/1.5, v, 1e-12)
}

func TestMACDHistIsExactDifference(t *testing.T) {
	closes := randomWalk(150, 7)
	res, err := MACD(closes, 12, 26, 9)
	require.NoError(t, err)
	defined := 0
	for i := range closes {
		h, ok := res.Hist.At(i)
		if !ok {
			continue
		}
		defined++
		l, _ := res.Line.At(i)
		s, _ := res.Signal.At(i)
		assert.Equal(t, l-s, h)
	}
	assert.Equal(t, len(closes)-(26-1)-(9-1), defined)
	_, ok := res.Line.At(24)
	assert.False(t, ok)
	_, ok = res.Line.At(25)
	assert.True(t, ok)
}

func TestConstantSeriesHasZeroHistogram(t *testing.T) {
	res, err := MACD(constant(80, 12.5), 12, 26, 9)
	require.NoError(t, err)
	for i := range res.Hist {
		if h, ok := res.Hist.At(i); ok {
			assert.Zero(t, h)
		}
	}
	boll, err := Bollinger(constant(40, 12.5), 20, 2)
	require.NoError(t, err)
	u, _ := boll.Upper.At(39)
	l, _ := boll.Lower.At(39)
	assert.InDelta(t, 12.5, u, 1e-9)
	assert.InDelta(t, 12.5, l, 1e-9)
}

func TestConstantWindowIsExact(t *testing.T) {
	vals := constant(60, 10.37)
	vals[0] = 9
	ma, err := MA(vals, 5)
	require.NoError(t, err)
	for i := 5; i < len(vals); i++ {
		v, ok := ma.At(i)
		require.True(t, ok)
		assert.Equal(t, 10.37, v, "bar %d", i)
	}
	boll, err := Bollinger(vals, 20, 2)
	require.NoError(t, err)
	for i := 20; i < len(vals); i++ {
		u, _ := boll.Upper.At(i)
		m, _ := boll.Middle.At(i)
		l, _ := boll.Lower.At(i)
		assert.Equal(t, 10.37, u, "bar %d", i)
		assert.Equal(t, 10.37, m, "bar %d", i)
		assert.Equal(t, 10.37, l, "bar %d", i)
	}
}

func TestBollingerUsesPopulationStd(t *testing.T) {
	closes := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	res, err := Bollinger(closes, 8, 2)
	require.NoError(t, err)
	mid, _ := res.Middle.At(7)
	up, _ := res.Upper.At(7)
	assert.InDelta(t, 5.0, mid, 1e-9)
	assert.InDelta(t, 9.0, up, 1e-9)
}

func TestKDJ(t *testing.T) {
	closes := randomWalk(60, 3)
	highs := make([]float64, len(closes))
	lows := make([]float64, len(closes))
	for i, c := range closes {
		highs[i] = c * 1.02
		lows[i] = c * 0.98
	}
	res, err := KDJ(highs, lows, closes, 9, 3, 3)
	require.NoError(t, err)
	_, ok := res.K.At(7)
	assert.False(t, ok)
	for i := 8; i < len(closes); i++ {
		k, _ := res.K.At(i)
		d, _ := res.D.At(i)
		j, _ := res.J.At(i)
		assert.GreaterOrEqual(t, k, 0.0)
		assert.LessOrEqual(t, k, 100.0)
		assert.InDelta(t, 3*k-2*d, j, 1e-9)
	}

	flat, err := KDJ(constant(12, 5), constant(12, 5), constant(12, 5), 9, 3, 3)
	require.NoError(t, err)
	k, _ := flat.K.At(11)
	assert.Equal(t, 50.0, k)
}

func TestOBVRunningTotal(t *testing.T) {
	obv := OBV([]float64{100, 102, 101, 103, 103, 105}, []float64{1000, 1200, 800, 1500, 700, 2000})
	want := []float64{1000, 2200, 1400, 2900, 2900, 4900}
	for i, w := range want {
		v, ok := obv.At(i)
		require.True(t, ok)
		assert.Equal(t, w, v)
	}
}

func TestInvalidParamsReturnConfigError(t *testing.T) {
	var cerr *config.Error
	_, err := MA([]float64{1}, 0)
	assert.True(t, errors.As(err, &cerr))
	_, err = MACD([]float64{1}, 26, 12, 9)
	assert.True(t, errors.As(err, &cerr))
	_, err = Bollinger([]float64{1}, 20, -1)
	assert.True(t, errors.As(err, &cerr))

	p := DefaultParams()
	p.MAWindows = []int{5, -10}
	_, err = Compute(historyFrom(randomWalk(30, 1)), p)
	assert.True(t, errors.As(err, &cerr))
}

func TestComputeRestartsLookbackAfterBreak(t *testing.T) {
	h := historyFrom(randomWalk(40, 11))
	h.Breaks = []int{20}
	p := DefaultParams()
	p.MAWindows = []int{5}
	set, err := Compute(h, p)
	require.NoError(t, err)

	_, ok := set.MA[5].At(19)
	assert.True(t, ok)
	for i := 20; i < 24; i++ {
		_, ok := set.MA[5].At(i)
		assert.False(t, ok, "bar %d right after break must be undefined", i)
	}
	v, ok := set.MA[5].At(24)
	require.True(t, ok)
	closes := h.Closes()
	assert.InDelta(t, (closes[20]+closes[21]+closes[22]+closes[23]+closes[24])/5, v, 1e-9)

	// OBV 不分段
	_, ok = set.OBV.At(20)
	assert.True(t, ok)
}

func TestRowsSerializeUndefinedAsNull(t *testing.T) {
	set, err := Compute(historyFrom(randomWalk(30, 2)), DefaultParams())
	require.NoError(t, err)
	rows := set.Rows()
	require.Len(t, rows, 30)
	raw, err := json.Marshal(rows[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"ma5":null`)
	assert.Contains(t, string(raw), `"obv":1000`)

	var back Value
	require.NoError(t, json.Unmarshal([]byte("null"), &back))
	assert.False(t, back.Valid)
	assert.False(t, Some(math.NaN()).Valid)
}
