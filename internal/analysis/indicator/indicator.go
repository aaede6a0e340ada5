package indicator

import (
	"github.com/markcheno/go-talib"

	"stockwatch/internal/config"
)

// MA 简单移动平均，前 n-1 个位置未定义。
func MA(values []float64, n int) (Series, error) {
	if n <= 0 {
		return nil, config.Errorf("ma.window", "must be positive, got %d", n)
	}
	if len(values) < n {
		return undefinedSeries(len(values)), nil
	}
	out := fromTalib(talib.Sma(values, n), n-1)
	pinConstantWindows(values, n, func(i int, v float64) { out[i] = Some(v) })
	return out, nil
}

// pinConstantWindows 对窗口内全部相等的位置回调该常数。
// talib 的滚动求和会在最后一位上漂移，常数窗口需要精确等于输入值，交叉判定才不会被噪声触发。
func pinConstantWindows(values []float64, n int, pin func(i int, v float64)) {
	run := 0
	for i, v := range values {
		if i > 0 && v == values[i-1] {
			run++
		} else {
			run = 1
		}
		if run >= n {
			pin(i, v)
		}
	}
}

// EMA 以前 n 个值的 SMA 作为种子，α = 2/(n+1)。
func EMA(values []float64, n int) (Series, error) {
	if n <= 0 {
		return nil, config.Errorf("ema.window", "must be positive, got %d", n)
	}
	if len(values) < n {
		return undefinedSeries(len(values)), nil
	}
	return fromTalib(talib.Ema(values, n), n-1), nil
}

// emaDefined 对一条可能带前导未定义值的序列计算 EMA，结果与输入对齐。
func emaDefined(s Series, n int) (Series, error) {
	start := 0
	for start < len(s) && !s[start].Valid {
		start++
	}
	out := undefinedSeries(len(s))
	if start == len(s) {
		return out, nil
	}
	vals := make([]float64, 0, len(s)-start)
	for _, v := range s[start:] {
		vals = append(vals, v.Float64)
	}
	sub, err := EMA(vals, n)
	if err != nil {
		return nil, err
	}
	place(out, start, sub)
	return out, nil
}

// MACDResult 包含 MACD 线、信号线与柱。
type MACDResult struct {
	Line   Series `json:"line"`
	Signal Series `json:"signal"`
	Hist   Series `json:"hist"`
}

// MACD line = EMA(fast) - EMA(slow)；signal = EMA(signal) of line；hist = line - signal。
func MACD(closes []float64, fast, slow, signal int) (MACDResult, error) {
	switch {
	case fast <= 0 || slow <= 0 || signal <= 0:
		return MACDResult{}, config.Errorf("macd", "periods must be positive (%d/%d/%d)", fast, slow, signal)
	case fast >= slow:
		return MACDResult{}, config.Errorf("macd", "fast %d must be less than slow %d", fast, slow)
	}
	emaFast, err := EMA(closes, fast)
	if err != nil {
		return MACDResult{}, err
	}
	emaSlow, err := EMA(closes, slow)
	if err != nil {
		return MACDResult{}, err
	}
	line := undefinedSeries(len(closes))
	for i := range closes {
		f, okF := emaFast.At(i)
		s, okS := emaSlow.At(i)
		if okF && okS {
			line[i] = Some(f - s)
		}
	}
	sig, err := emaDefined(line, signal)
	if err != nil {
		return MACDResult{}, err
	}
	hist := undefinedSeries(len(closes))
	for i := range closes {
		l, okL := line.At(i)
		s, okS := sig.At(i)
		if okL && okS {
			hist[i] = Some(l - s)
		}
	}
	return MACDResult{Line: line, Signal: sig, Hist: hist}, nil
}

// RSI 使用 Wilder 平滑：首个均值为前 n 个涨跌幅的简单平均，之后按 (prev*(n-1)+x)/n 递推。
// RSI = 100*avgGain/(avgGain+avgLoss)；平均跌幅为 0 时为 100，涨跌均为 0 时取 50。
func RSI(closes []float64, n int) (Series, error) {
	if n <= 0 {
		return nil, config.Errorf("rsi.period", "must be positive, got %d", n)
	}
	out := undefinedSeries(len(closes))
	if len(closes) <= n {
		return out, nil
	}
	var avgGain, avgLoss float64
	for i := 1; i <= n; i++ {
		g, l := gainLoss(closes[i-1], closes[i])
		avgGain += g
		avgLoss += l
	}
	period := float64(n)
	avgGain /= period
	avgLoss /= period
	out[n] = Some(rsiValue(avgGain, avgLoss))
	for i := n + 1; i < len(closes); i++ {
		g, l := gainLoss(closes[i-1], closes[i])
		avgGain = (avgGain*(period-1) + g) / period
		avgLoss = (avgLoss*(period-1) + l) / period
		out[i] = Some(rsiValue(avgGain, avgLoss))
	}
	return out, nil
}

func gainLoss(prev, cur float64) (float64, float64) {
	d := cur - prev
	if d > 0 {
		return d, 0
	}
	return 0, -d
}

func rsiValue(gain, loss float64) float64 {
	total := gain + loss
	if total == 0 {
		return 50
	}
	v := 100 * gain / total
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// BollingerResult 布林带三轨。
type BollingerResult struct {
	Upper  Series `json:"upper"`
	Middle Series `json:"middle"`
	Lower  Series `json:"lower"`
}

// Bollinger middle = MA(n)，上下轨 = middle ± k·总体标准差(n)。
func Bollinger(closes []float64, n int, k float64) (BollingerResult, error) {
	if n <= 0 {
		return BollingerResult{}, config.Errorf("bollinger.period", "must be positive, got %d", n)
	}
	if k <= 0 {
		return BollingerResult{}, config.Errorf("bollinger.k", "must be positive, got %g", k)
	}
	if len(closes) < n {
		return BollingerResult{
			Upper:  undefinedSeries(len(closes)),
			Middle: undefinedSeries(len(closes)),
			Lower:  undefinedSeries(len(closes)),
		}, nil
	}
	upper, middle, lower := talib.BBands(closes, n, k, k, talib.SMA)
	res := BollingerResult{
		Upper:  fromTalib(upper, n-1),
		Middle: fromTalib(middle, n-1),
		Lower:  fromTalib(lower, n-1),
	}
	// 常数窗口标准差为零，三轨重合
	pinConstantWindows(closes, n, func(i int, v float64) {
		res.Upper[i], res.Middle[i], res.Lower[i] = Some(v), Some(v), Some(v)
	})
	return res, nil
}

// KDJResult 随机指标三线。
type KDJResult struct {
	K Series `json:"k"`
	D Series `json:"d"`
	J Series `json:"j"`
}

// KDJ RSV 取 n 周期高低区间；K、D 分别以 1/m1、1/m2 权重平滑，初值 50；J = 3K - 2D。
// 区间为零时 RSV 记 50。
func KDJ(highs, lows, closes []float64, n, m1, m2 int) (KDJResult, error) {
	if n <= 0 || m1 <= 0 || m2 <= 0 {
		return KDJResult{}, config.Errorf("kdj", "periods must be positive (%d/%d/%d)", n, m1, m2)
	}
	size := len(closes)
	res := KDJResult{K: undefinedSeries(size), D: undefinedSeries(size), J: undefinedSeries(size)}
	if len(highs) != size || len(lows) != size || size < n {
		return res, nil
	}
	k, d := 50.0, 50.0
	for i := n - 1; i < size; i++ {
		hh, ll := highs[i], lows[i]
		for j := i - n + 1; j < i; j++ {
			hh = max(hh, highs[j])
			ll = min(ll, lows[j])
		}
		rsv := 50.0
		if hh > ll {
			rsv = (closes[i] - ll) / (hh - ll) * 100
		}
		k = (k*float64(m1-1) + rsv) / float64(m1)
		d = (d*float64(m2-1) + k) / float64(m2)
		res.K[i] = Some(k)
		res.D[i] = Some(d)
		res.J[i] = Some(3*k - 2*d)
	}
	return res, nil
}

// OBV 自序列起点累计的有符号成交量，首值为首根 bar 的成交量。
func OBV(closes, volumes []float64) Series {
	if len(closes) == 0 || len(volumes) != len(closes) {
		return undefinedSeries(len(closes))
	}
	return fromTalib(talib.Obv(closes, volumes), 0)
}

// VolumeMA 成交量移动平均。
func VolumeMA(volumes []float64, n int) (Series, error) {
	s, err := MA(volumes, n)
	if err != nil {
		return nil, config.Errorf("volume_ma.window", "must be positive, got %d", n)
	}
	return s, nil
}
