// Package pattern 对一段行情做形态与趋势的粗略描述，只用于报表展示，不参与决策。
package pattern

import (
	"fmt"
	"math"
	"strings"

	"stockwatch/internal/market"
)

type Bias string

const (
	Bullish  Bias = "bullish"
	Bearish  Bias = "bearish"
	Balanced Bias = "balanced"
)

type Kind string

const (
	DoubleBottom Kind = "double_bottom"
	DoubleTop    Kind = "double_top"
	Triangle     Kind = "triangle"
	Compression  Kind = "compression"
)

// Match 一个识别出的形态；Level 为相关价位，无意义时为 0。
type Match struct {
	Kind  Kind    `json:"kind"`
	Level float64 `json:"level,omitempty"`
	Note  string  `json:"note"`
}

type Result struct {
	Bias    Bias    `json:"bias"`
	Slope   float64 `json:"slope"`
	Trend   string  `json:"trend"`
	Matches []Match `json:"matches"`
}

// Summary 单行文本，形态之间以分号分隔。
func (r Result) Summary() string {
	if len(r.Matches) == 0 {
		return "未发现显著形态"
	}
	notes := make([]string, len(r.Matches))
	for i, m := range r.Matches {
		notes[i] = m.Note
	}
	return strings.Join(notes, "；")
}

// Analyze 对 History 的收盘价做线性回归，并在后半段查找双底、双顶、收敛与波动压缩。
// 斜率按收盘价均值归一化，不同价位的标的可比。
func Analyze(h market.History) Result {
	if h.Len() == 0 {
		return Result{Bias: Balanced, Trend: "无可用数据", Matches: []Match{}}
	}
	closes, highs, lows := h.Closes(), h.Highs(), h.Lows()
	slope, intercept := fitLine(closes)
	mean := 0.0
	for _, c := range closes {
		mean += c
	}
	mean /= float64(len(closes))
	norm := 0.0
	if mean > 0 {
		norm = slope / mean
	}

	res := Result{
		Bias:    classify(norm),
		Slope:   norm,
		Trend:   describeTrend(slope, intercept, closes),
		Matches: []Match{},
	}
	for _, detect := range []func(highs, lows []float64) (Match, bool){
		doubleBottom,
		doubleTop,
		triangle,
		compression,
	} {
		if m, ok := detect(highs, lows); ok {
			res.Matches = append(res.Matches, m)
		}
	}
	return res
}

func fitLine(series []float64) (slope, intercept float64) {
	n := float64(len(series))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range series {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, series[len(series)-1]
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return
}

// 归一化斜率阈值：每根 bar 0.05%
const biasThreshold = 0.0005

func classify(norm float64) Bias {
	switch {
	case norm > biasThreshold:
		return Bullish
	case norm < -biasThreshold:
		return Bearish
	default:
		return Balanced
	}
}

func describeTrend(slope, intercept float64, closes []float64) string {
	last := closes[len(closes)-1]
	ref := intercept + slope*float64(len(closes)-1)
	if ref == 0 {
		return fmt.Sprintf("回归斜率 %.4f", slope)
	}
	return fmt.Sprintf("回归斜率 %.4f，收盘价较回归线偏离 %.2f%%", slope, (last-ref)/ref*100)
}

// 两个极值的相对差异不超过该值视为同一价位
const levelTolerance = 0.004

func doubleBottom(_, lows []float64) (Match, bool) {
	if len(lows) < 20 {
		return Match{}, false
	}
	window := lows[len(lows)/2:]
	i, j, ok := twoExtremes(window, func(x, y float64) bool { return x < y })
	if !ok || !sameLevel(window[i], window[j]) {
		return Match{}, false
	}
	level := (window[i] + window[j]) / 2
	// 两个低点之间需要有像样的反弹
	if peak(window[min(i, j)+1:max(i, j)]) < level*(1+minSwing) {
		return Match{}, false
	}
	return Match{Kind: DoubleBottom, Level: level, Note: fmt.Sprintf("双底，支撑约 %.2f", level)}, true
}

func doubleTop(highs, _ []float64) (Match, bool) {
	if len(highs) < 20 {
		return Match{}, false
	}
	window := highs[len(highs)/2:]
	i, j, ok := twoExtremes(window, func(x, y float64) bool { return x > y })
	if !ok || !sameLevel(window[i], window[j]) {
		return Match{}, false
	}
	level := (window[i] + window[j]) / 2
	if trough(window[min(i, j)+1:max(i, j)]) > level*(1-minSwing) {
		return Match{}, false
	}
	return Match{Kind: DoubleTop, Level: level, Note: fmt.Sprintf("双顶，压力约 %.2f", level)}, true
}

const minSwing = 0.01

func sameLevel(a, b float64) bool {
	return math.Abs(a-b)/math.Max(math.Abs(a), 1) <= levelTolerance
}

// twoExtremes 返回窗口内最极端值的下标，以及与其相隔至少 3 根 bar 的次极端值下标。
func twoExtremes(window []float64, better func(x, y float64) bool) (int, int, bool) {
	first := 0
	for i, v := range window {
		if better(v, window[first]) {
			first = i
		}
	}
	second := -1
	for i, v := range window {
		if abs(i-first) < 3 {
			continue
		}
		if second < 0 || better(v, window[second]) {
			second = i
		}
	}
	if second < 0 {
		return 0, 0, false
	}
	return first, second, true
}

func triangle(highs, lows []float64) (Match, bool) {
	if len(highs) < 30 {
		return Match{}, false
	}
	mid := len(highs) / 2
	firstHigh, lastHigh := peak(highs[:mid]), peak(highs[mid:])
	firstLow, lastLow := trough(lows[:mid]), trough(lows[mid:])
	if lastHigh >= firstHigh || lastLow <= firstLow {
		return Match{}, false
	}
	if ((firstHigh-firstLow)-(lastHigh-lastLow))/firstHigh <= 0.05 {
		return Match{}, false
	}
	return Match{Kind: Triangle, Note: "高点下移、低点上移，区间收敛"}, true
}

func compression(highs, lows []float64) (Match, bool) {
	if len(highs) < 40 {
		return Match{}, false
	}
	mid := len(highs) / 2
	width := func(h, l []float64) float64 { return (peak(h) - trough(l)) / peak(h) }
	if width(highs[mid:], lows[mid:]) >= width(highs[:mid], lows[:mid])*0.65 {
		return Match{}, false
	}
	return Match{Kind: Compression, Note: "波动快速收缩，关注突破方向"}, true
}

func peak(values []float64) float64 {
	m := math.Inf(-1)
	for _, v := range values {
		m = math.Max(m, v)
	}
	return m
}

func trough(values []float64) float64 {
	m := math.Inf(1)
	for _, v := range values {
		m = math.Min(m, v)
	}
	return m
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
