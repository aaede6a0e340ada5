package market

import "time"

// Bar 是单个交易周期的 OHLCV 记录。
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	// Filled 表示该 bar 由缺口前向填充生成，并非原始数据。
	Filled bool `json:"filled,omitempty"`
}

// Date 返回 bar 时间的标准文本形式；日线及以上只保留日期。
func (b Bar) Date(tf Timeframe) string {
	if tf.Intraday() {
		return b.Time.Format("2006-01-02 15:04")
	}
	return b.Time.Format("2006-01-02")
}

// History 是单一标的按时间升序排列的 bar 序列。
// 校验之后视为只读，下游各阶段共享同一底层切片，不得修改。
type History struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	Bars      []Bar     `json:"bars"`
	// Breaks 记录新连续段的起始下标（均 > 0，升序）。
	// 缺口超过一个周期时出现断点，指标回看窗口在断点处重新开始。
	Breaks []int `json:"breaks,omitempty"`
}

func (h History) Len() int { return len(h.Bars) }

// Segment 是 [Start, End) 的连续 bar 区间。
type Segment struct {
	Start int
	End   int
}

func (s Segment) Len() int { return s.End - s.Start }

// Segments 按断点切分整段历史。
func (h History) Segments() []Segment {
	n := len(h.Bars)
	if n == 0 {
		return nil
	}
	out := make([]Segment, 0, len(h.Breaks)+1)
	start := 0
	for _, b := range h.Breaks {
		if b <= start || b >= n {
			continue
		}
		out = append(out, Segment{Start: start, End: b})
		start = b
	}
	return append(out, Segment{Start: start, End: n})
}

func (h History) Closes() []float64 {
	return h.column(func(b Bar) float64 { return b.Close })
}

func (h History) Highs() []float64 {
	return h.column(func(b Bar) float64 { return b.High })
}

func (h History) Lows() []float64 {
	return h.column(func(b Bar) float64 { return b.Low })
}

func (h History) Volumes() []float64 {
	return h.column(func(b Bar) float64 { return b.Volume })
}

func (h History) column(pick func(Bar) float64) []float64 {
	out := make([]float64, len(h.Bars))
	for i, b := range h.Bars {
		out[i] = pick(b)
	}
	return out
}

// Dates 返回与 Bars 对齐的日期文本。
func (h History) Dates() []string {
	out := make([]string, len(h.Bars))
	for i, b := range h.Bars {
		out[i] = b.Date(h.Timeframe)
	}
	return out
}
