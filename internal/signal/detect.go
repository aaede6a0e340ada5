package signal

import (
	"fmt"
	"math"
	"sort"

	"stockwatch/internal/analysis/indicator"
	"stockwatch/internal/config"
	"stockwatch/internal/market"
)

// CrossPair 一组短/长均线窗口。
type CrossPair struct {
	Short int `json:"short"`
	Long  int `json:"long"`
}

// Rules 信号识别参数。
type Rules struct {
	CrossPairs    []CrossPair `json:"cross_pairs"`
	TrendWindows  []int       `json:"trend_windows"`
	RSIOversold   float64     `json:"rsi_oversold"`
	RSIOverbought float64     `json:"rsi_overbought"`
	KDJLow        float64     `json:"kdj_low"`
	KDJHigh       float64     `json:"kdj_high"`
}

// DefaultRules MA5/10、MA5/20 交叉，MA5>10>20 多头排列，RSI 30/70，KDJ 20/80。
func DefaultRules() Rules {
	return Rules{
		CrossPairs:    []CrossPair{{5, 10}, {5, 20}},
		TrendWindows:  []int{5, 10, 20},
		RSIOversold:   30,
		RSIOverbought: 70,
		KDJLow:        20,
		KDJHigh:       80,
	}
}

func (r Rules) Validate() error {
	for _, p := range r.CrossPairs {
		if p.Short <= 0 || p.Long <= 0 || p.Short >= p.Long {
			return config.Errorf("indicators.cross_pairs", "invalid pair %d/%d", p.Short, p.Long)
		}
	}
	for i := 1; i < len(r.TrendWindows); i++ {
		if r.TrendWindows[i] <= r.TrendWindows[i-1] || r.TrendWindows[i-1] <= 0 {
			return config.Errorf("indicators.trend_windows", "windows must be positive and strictly increasing")
		}
	}
	if !(0 < r.RSIOversold && r.RSIOversold < r.RSIOverbought && r.RSIOverbought < 100) {
		return config.Errorf("signal.rsi", "thresholds %g/%g out of order", r.RSIOversold, r.RSIOverbought)
	}
	if !(0 < r.KDJLow && r.KDJLow < r.KDJHigh && r.KDJHigh < 100) {
		return config.Errorf("signal.kdj", "thresholds %g/%g out of order", r.KDJLow, r.KDJHigh)
	}
	return nil
}

// baseStrength 各类信号的基础强度，短周期均线交叉较弱。
func baseStrength(kind Kind, pair CrossPair) int {
	switch kind {
	case KindGoldenCross, KindDeathCross:
		if pair.Short == 5 && pair.Long == 10 {
			return 6
		}
		return 7
	case KindMACDGolden, KindMACDDeath, KindKDJGolden, KindKDJDeath:
		return 7
	case KindRSIOversold, KindRSIOverbought:
		return 6
	case KindBollLower, KindBollUpper:
		return 5
	case KindTrendBull, KindTrendBear:
		return 8
	default:
		return MinStrength
	}
}

type rawSignal struct {
	Signal
	base int
}

// Detect 逐 bar 识别全部信号，只使用 i-1 与 i 两根 bar 的已定义值。
// 结果按 (Index, Kind, Source) 排序，强度已包含同向确认加成。
func Detect(h market.History, set indicator.Set, rules Rules) ([]Signal, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	var raws []rawSignal
	emit := func(i int, source string, kind Kind, dir Direction, mag float64, pair CrossPair) {
		raws = append(raws, rawSignal{
			Signal: Signal{
				Index:     i,
				Date:      set.Dates[i],
				Source:    source,
				Kind:      kind,
				Direction: dir,
				Magnitude: clamp01(mag),
			},
			base: baseStrength(kind, pair),
		})
	}
	closes := h.Closes()

	for _, pair := range rules.CrossPairs {
		short, ok1 := set.MA[pair.Short]
		long, ok2 := set.MA[pair.Long]
		if !ok1 || !ok2 {
			return nil, config.Errorf("indicators.cross_pairs", "ma%d/ma%d not computed", pair.Short, pair.Long)
		}
		source := fmt.Sprintf("ma%d/ma%d", pair.Short, pair.Long)
		forEachPair(len(closes), func(i int) {
			s0, l0, s1, l1, ok := pairAt(short, long, i)
			if !ok {
				return
			}
			mag := relGap(s1, l1) / 0.02
			switch {
			case !above(s0, l0) && above(s1, l1):
				emit(i, source, KindGoldenCross, Buy, mag, pair)
			case !below(s0, l0) && below(s1, l1):
				emit(i, source, KindDeathCross, Sell, mag, pair)
			}
		})
	}

	forEachPair(len(closes), func(i int) {
		h0, ok0 := set.MACD.Hist.At(i - 1)
		h1, ok1 := set.MACD.Hist.At(i)
		line, okL := set.MACD.Line.At(i)
		if !ok0 || !ok1 || !okL {
			return
		}
		mag := math.Abs(line) / closes[i] / 0.02
		prev, cur := signOf(h0, closes[i-1]), signOf(h1, closes[i])
		switch {
		case prev <= 0 && cur > 0:
			emit(i, "macd", KindMACDGolden, Buy, mag, CrossPair{})
		case prev >= 0 && cur < 0:
			emit(i, "macd", KindMACDDeath, Sell, mag, CrossPair{})
		}
	})

	forEachPair(len(closes), func(i int) {
		k0, d0, k1, d1, ok := pairAt(set.KDJ.K, set.KDJ.D, i)
		if !ok {
			return
		}
		mag := math.Abs(k1-50) / 50
		switch {
		case !above(k0, d0) && above(k1, d1) && k1 < rules.KDJLow && d1 < rules.KDJLow:
			emit(i, "kdj", KindKDJGolden, Buy, mag, CrossPair{})
		case !below(k0, d0) && below(k1, d1) && k1 > rules.KDJHigh && d1 > rules.KDJHigh:
			emit(i, "kdj", KindKDJDeath, Sell, mag, CrossPair{})
		}
	})

	forEachPair(len(closes), func(i int) {
		r0, ok0 := set.RSI.At(i - 1)
		r1, ok1 := set.RSI.At(i)
		if !ok0 || !ok1 {
			return
		}
		mag := math.Abs(r1-50) / 50
		switch {
		case r0 > rules.RSIOversold && r1 <= rules.RSIOversold:
			emit(i, "rsi", KindRSIOversold, Buy, mag, CrossPair{})
		case r0 < rules.RSIOverbought && r1 >= rules.RSIOverbought:
			emit(i, "rsi", KindRSIOverbought, Sell, mag, CrossPair{})
		}
	})

	forEachPair(len(closes), func(i int) {
		u0, ok0 := set.Boll.Upper.At(i - 1)
		lo0, ok1 := set.Boll.Lower.At(i - 1)
		u1, ok2 := set.Boll.Upper.At(i)
		lo1, ok3 := set.Boll.Lower.At(i)
		mid, ok4 := set.Boll.Middle.At(i)
		if !ok0 || !ok1 || !ok2 || !ok3 || !ok4 {
			return
		}
		c0, c1 := closes[i-1], closes[i]
		half := u1 - mid
		switch {
		case !below(c0, lo0) && below(c1, lo1):
			emit(i, "boll", KindBollLower, Buy, bandExcess(c1, mid, half), CrossPair{})
		case !above(c0, u0) && above(c1, u1):
			emit(i, "boll", KindBollUpper, Sell, bandExcess(c1, mid, half), CrossPair{})
		}
	})

	if len(rules.TrendWindows) >= 2 {
		series := make([]indicator.Series, len(rules.TrendWindows))
		for j, w := range rules.TrendWindows {
			s, ok := set.MA[w]
			if !ok {
				return nil, config.Errorf("indicators.trend_windows", "ma%d not computed", w)
			}
			series[j] = s
		}
		source := "ma_trend"
		forEachPair(len(closes), func(i int) {
			prev, okPrev := alignment(series, i-1)
			cur, okCur := alignment(series, i)
			if !okPrev || !okCur || cur == prev || cur == 0 {
				return
			}
			first, _ := series[0].At(i)
			last, _ := series[len(series)-1].At(i)
			mag := relGap(first, last) / 0.05
			if cur > 0 {
				emit(i, source, KindTrendBull, Buy, mag, CrossPair{})
			} else {
				emit(i, source, KindTrendBear, Sell, mag, CrossPair{})
			}
		})
	}

	return score(raws), nil
}

// score 计算最终强度：基础分 + round(2·幅度) + 同日同向其他信号数，截断到 [1,10]。
func score(raws []rawSignal) []Signal {
	type key struct {
		idx int
		dir Direction
	}
	agree := make(map[key]int)
	for _, r := range raws {
		agree[key{r.Index, r.Direction}]++
	}
	out := make([]Signal, len(raws))
	for i, r := range raws {
		s := r.Signal
		bonus := agree[key{r.Index, r.Direction}] - 1
		s.Strength = clampStrength(r.base + int(math.Round(2*s.Magnitude)) + bonus)
		out[i] = s
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Index != out[b].Index {
			return out[a].Index < out[b].Index
		}
		if out[a].Kind != out[b].Kind {
			return out[a].Kind < out[b].Kind
		}
		return out[a].Source < out[b].Source
	})
	return out
}

func forEachPair(n int, fn func(i int)) {
	for i := 1; i < n; i++ {
		fn(i)
	}
}

func pairAt(a, b indicator.Series, i int) (a0, b0, a1, b1 float64, ok bool) {
	var oks [4]bool
	a0, oks[0] = a.At(i - 1)
	b0, oks[1] = b.At(i - 1)
	a1, oks[2] = a.At(i)
	b1, oks[3] = b.At(i)
	return a0, b0, a1, b1, oks[0] && oks[1] && oks[2] && oks[3]
}

// alignment 返回 1（短均线依次高于长均线）、-1（依次低于）或 0（无严格排列）。
func alignment(series []indicator.Series, i int) (int, bool) {
	vals := make([]float64, len(series))
	for j, s := range series {
		v, ok := s.At(i)
		if !ok {
			return 0, false
		}
		vals[j] = v
	}
	up, down := true, true
	for j := 1; j < len(vals); j++ {
		up = up && above(vals[j-1], vals[j])
		down = down && below(vals[j-1], vals[j])
	}
	switch {
	case up:
		return 1, true
	case down:
		return -1, true
	default:
		return 0, true
	}
}

// above/below 为严格比较：交叉要求前一根 ≤（≥）且当前根 >（<）。
func above(a, b float64) bool { return a > b }

func below(a, b float64) bool { return a < b }

// MACD 柱来自两条 EMA 之差，量级远小于价格时视为零
const relTol = 1e-9

// signOf 以 scale（通常为价格）为量级判断 v 的符号。
func signOf(v, scale float64) int {
	tol := relTol * math.Abs(scale)
	switch {
	case v > tol:
		return 1
	case v < -tol:
		return -1
	}
	return 0
}

func relGap(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return math.Abs(a-b) / math.Abs(b)
}

func bandExcess(close, mid, half float64) float64 {
	if half <= 0 {
		return 0
	}
	return (math.Abs(close-mid) - half) / half
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func clampStrength(v int) int {
	return max(MinStrength, min(MaxStrength, v))
}
