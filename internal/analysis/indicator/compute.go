package indicator

import (
	"fmt"
	"sort"

	"stockwatch/internal/config"
	"stockwatch/internal/market"
)

// Params 指标回看窗口。
type Params struct {
	MAWindows  []int   `json:"ma_windows"`
	MACDFast   int     `json:"macd_fast"`
	MACDSlow   int     `json:"macd_slow"`
	MACDSignal int     `json:"macd_signal"`
	RSIPeriod  int     `json:"rsi_period"`
	BollPeriod int     `json:"boll_period"`
	BollK      float64 `json:"boll_k"`
	KDJPeriod  int     `json:"kdj_period"`
	KDJM1      int     `json:"kdj_m1"`
	KDJM2      int     `json:"kdj_m2"`
	VolumeMA   int     `json:"volume_ma"`
}

// DefaultParams 常用 A 股参数：MA5/10/20/60、MACD(12,26,9)、RSI14、BOLL(20,2)、KDJ(9,3,3)。
func DefaultParams() Params {
	return Params{
		MAWindows:  []int{5, 10, 20, 60},
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		RSIPeriod:  14,
		BollPeriod: 20,
		BollK:      2,
		KDJPeriod:  9,
		KDJM1:      3,
		KDJM2:      3,
		VolumeMA:   20,
	}
}

// Validate 在计算前检查全部参数，任何非法值返回 *config.Error。
func (p Params) Validate() error {
	for _, w := range p.MAWindows {
		if w <= 0 {
			return config.Errorf("indicators.ma_windows", "window must be positive, got %d", w)
		}
	}
	checks := []struct {
		field string
		value int
	}{
		{"indicators.macd.fast", p.MACDFast},
		{"indicators.macd.slow", p.MACDSlow},
		{"indicators.macd.signal", p.MACDSignal},
		{"indicators.rsi_period", p.RSIPeriod},
		{"indicators.bollinger.period", p.BollPeriod},
		{"indicators.kdj.period", p.KDJPeriod},
		{"indicators.kdj.m1", p.KDJM1},
		{"indicators.kdj.m2", p.KDJM2},
		{"indicators.volume_ma", p.VolumeMA},
	}
	for _, c := range checks {
		if c.value <= 0 {
			return config.Errorf(c.field, "must be positive, got %d", c.value)
		}
	}
	if p.MACDFast >= p.MACDSlow {
		return config.Errorf("indicators.macd", "fast %d must be less than slow %d", p.MACDFast, p.MACDSlow)
	}
	if p.BollK <= 0 {
		return config.Errorf("indicators.bollinger.k", "must be positive, got %g", p.BollK)
	}
	return nil
}

// MaxLookback 返回所有指标中最长的回看长度。
func (p Params) MaxLookback() int {
	out := max(p.MACDSlow+p.MACDSignal-1, p.RSIPeriod+1, p.BollPeriod, p.KDJPeriod, p.VolumeMA)
	for _, w := range p.MAWindows {
		out = max(out, w)
	}
	return out
}

// Set 是单个 History 的全部指标，所有序列与 Dates 对齐。
type Set struct {
	Dates    []string        `json:"dates"`
	MA       map[int]Series  `json:"ma"`
	MACD     MACDResult      `json:"macd"`
	RSI      Series          `json:"rsi"`
	Boll     BollingerResult `json:"boll"`
	KDJ      KDJResult       `json:"kdj"`
	OBV      Series          `json:"obv"`
	VolumeMA Series          `json:"volume_ma"`
	Params   Params          `json:"params"`
}

// Compute 计算全部指标。除 OBV 外，各指标在每个连续段内独立计算，
// 断点后的回看窗口重新开始，不跨缺口插值。
func Compute(h market.History, p Params) (Set, error) {
	if err := p.Validate(); err != nil {
		return Set{}, err
	}
	n := h.Len()
	set := Set{
		Dates:    h.Dates(),
		MA:       make(map[int]Series, len(p.MAWindows)),
		MACD:     MACDResult{Line: undefinedSeries(n), Signal: undefinedSeries(n), Hist: undefinedSeries(n)},
		RSI:      undefinedSeries(n),
		Boll:     BollingerResult{Upper: undefinedSeries(n), Middle: undefinedSeries(n), Lower: undefinedSeries(n)},
		KDJ:      KDJResult{K: undefinedSeries(n), D: undefinedSeries(n), J: undefinedSeries(n)},
		VolumeMA: undefinedSeries(n),
		Params:   p,
	}
	for _, w := range p.MAWindows {
		set.MA[w] = undefinedSeries(n)
	}
	closes, highs, lows, volumes := h.Closes(), h.Highs(), h.Lows(), h.Volumes()
	for _, seg := range h.Segments() {
		c := closes[seg.Start:seg.End]
		if err := set.computeSegment(seg.Start, c, highs[seg.Start:seg.End], lows[seg.Start:seg.End], volumes[seg.Start:seg.End]); err != nil {
			return Set{}, fmt.Errorf("segment %d-%d: %w", seg.Start, seg.End, err)
		}
	}
	set.OBV = OBV(closes, volumes)
	return set, nil
}

func (s *Set) computeSegment(off int, closes, highs, lows, volumes []float64) error {
	p := s.Params
	for _, w := range p.MAWindows {
		ma, err := MA(closes, w)
		if err != nil {
			return err
		}
		place(s.MA[w], off, ma)
	}
	macd, err := MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	if err != nil {
		return err
	}
	place(s.MACD.Line, off, macd.Line)
	place(s.MACD.Signal, off, macd.Signal)
	place(s.MACD.Hist, off, macd.Hist)

	rsi, err := RSI(closes, p.RSIPeriod)
	if err != nil {
		return err
	}
	place(s.RSI, off, rsi)

	boll, err := Bollinger(closes, p.BollPeriod, p.BollK)
	if err != nil {
		return err
	}
	place(s.Boll.Upper, off, boll.Upper)
	place(s.Boll.Middle, off, boll.Middle)
	place(s.Boll.Lower, off, boll.Lower)

	kdj, err := KDJ(highs, lows, closes, p.KDJPeriod, p.KDJM1, p.KDJM2)
	if err != nil {
		return err
	}
	place(s.KDJ.K, off, kdj.K)
	place(s.KDJ.D, off, kdj.D)
	place(s.KDJ.J, off, kdj.J)

	vma, err := VolumeMA(volumes, p.VolumeMA)
	if err != nil {
		return err
	}
	place(s.VolumeMA, off, vma)
	return nil
}

// Windows 返回升序排列的均线窗口。
func (s Set) Windows() []int {
	out := make([]int, 0, len(s.MA))
	for w := range s.MA {
		out = append(out, w)
	}
	sort.Ints(out)
	return out
}

// Row 是单个日期的全部指标取值。
type Row struct {
	Date   string           `json:"date"`
	Values map[string]Value `json:"values"`
}

// Rows 按日期展开指标，未定义值保留为 null。
func (s Set) Rows() []Row {
	cols := s.columns()
	out := make([]Row, len(s.Dates))
	for i, date := range s.Dates {
		values := make(map[string]Value, len(cols))
		for _, col := range cols {
			values[col.name] = col.series[i]
		}
		out[i] = Row{Date: date, Values: values}
	}
	return out
}

type column struct {
	name   string
	series Series
}

func (s Set) columns() []column {
	cols := make([]column, 0, len(s.MA)+12)
	for _, w := range s.Windows() {
		cols = append(cols, column{fmt.Sprintf("ma%d", w), s.MA[w]})
	}
	return append(cols,
		column{"macd", s.MACD.Line},
		column{"macd_signal", s.MACD.Signal},
		column{"macd_hist", s.MACD.Hist},
		column{"rsi", s.RSI},
		column{"boll_upper", s.Boll.Upper},
		column{"boll_middle", s.Boll.Middle},
		column{"boll_lower", s.Boll.Lower},
		column{"kdj_k", s.KDJ.K},
		column{"kdj_d", s.KDJ.D},
		column{"kdj_j", s.KDJ.J},
		column{"obv", s.OBV},
		column{"volume_ma", s.VolumeMA},
	)
}
