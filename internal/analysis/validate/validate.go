// Package validate 负责行情输入的清洗与校验：拒绝非法序列、标记异常涨跌、
// 填补单周期缺口，并支持按更长周期重采样。
package validate

import (
	"fmt"
	"math"
	"time"

	"stockwatch/internal/market"
)

// DefaultOutlierThreshold 单根 bar 收盘价涨跌幅超过该比例即视为异常。
const DefaultOutlierThreshold = 0.20

// ValidationError 表示输入历史格式错误或长度不足，不可在本地恢复。
type ValidationError struct {
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed at bar %d: %s", e.Index, e.Reason)
}

func invalid(idx int, format string, args ...any) *ValidationError {
	return &ValidationError{Index: idx, Reason: fmt.Sprintf(format, args...)}
}

// WarningKind 区分告警类型。
type WarningKind string

const (
	WarnOutlier WarningKind = "outlier"
	WarnFilled  WarningKind = "filled"
	WarnGap     WarningKind = "gap"
	WarnRange   WarningKind = "range"
)

// Warning 描述不致命的数据问题，由调用方决定是否处理。
type Warning struct {
	Index   int         `json:"index"`
	Date    string      `json:"date"`
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
	Change  float64     `json:"change,omitempty"`
}

// Options 控制校验行为。
type Options struct {
	Symbol           string
	Timeframe        market.Timeframe
	Calendar         market.Calendar
	OutlierThreshold float64
	FillGaps         bool
}

// DefaultOptions 返回日线、20% 异常阈值、开启缺口填充的默认配置。
func DefaultOptions() Options {
	return Options{
		Timeframe:        market.Daily,
		OutlierThreshold: DefaultOutlierThreshold,
		FillGaps:         true,
	}
}

// Validate 校验原始 bar 并返回只读的 History 与告警列表。
// 返回的 History 中，下标均指输出序列（包含填充 bar）。
func Validate(bars []market.Bar, opts Options) (market.History, []Warning, error) {
	if opts.Timeframe.IsZero() {
		opts.Timeframe = market.Daily
	}
	if opts.OutlierThreshold <= 0 {
		opts.OutlierThreshold = DefaultOutlierThreshold
	}
	if len(bars) < 2 {
		return market.History{}, nil, invalid(-1, "need at least 2 bars, got %d", len(bars))
	}
	for i, b := range bars {
		if err := checkBar(i, b); err != nil {
			return market.History{}, nil, err
		}
		if i == 0 {
			continue
		}
		prev := bars[i-1]
		if !b.Time.After(prev.Time) {
			if b.Time.Equal(prev.Time) {
				return market.History{}, nil, invalid(i, "duplicate date %s", b.Date(opts.Timeframe))
			}
			return market.History{}, nil, invalid(i, "date %s is not after %s", b.Date(opts.Timeframe), prev.Date(opts.Timeframe))
		}
		// 日线及以上同一周期桶内只能有一根 bar，否则日期键重复
		if !opts.Timeframe.Intraday() && opts.Timeframe.BucketStart(b.Time).Equal(opts.Timeframe.BucketStart(prev.Time)) {
			return market.History{}, nil, invalid(i, "duplicate %s bucket for %s", opts.Timeframe, b.Date(opts.Timeframe))
		}
	}

	out := make([]market.Bar, 0, len(bars))
	var (
		breaks   []int
		warnings []Warning
	)
	for i, b := range bars {
		b.Filled = false
		if i > 0 {
			prev := bars[i-1]
			missing := opts.Calendar.Missing(opts.Timeframe, prev.Time, b.Time)
			switch {
			case missing == 1 && opts.FillGaps:
				fill := fillBar(prev, opts.Calendar.Next(opts.Timeframe, prev.Time))
				out = append(out, fill)
				warnings = append(warnings, Warning{
					Index:   len(out) - 1,
					Date:    fill.Date(opts.Timeframe),
					Kind:    WarnFilled,
					Message: "missing bar forward-filled with previous close",
				})
			case missing >= 1:
				breaks = append(breaks, len(out))
				warnings = append(warnings, Warning{
					Index:   len(out),
					Date:    b.Date(opts.Timeframe),
					Kind:    WarnGap,
					Message: fmt.Sprintf("%d missing periods before this bar, lookback restarts", missing),
				})
			}
			if change, ok := pctChange(prev.Close, b.Close); ok && math.Abs(change) > opts.OutlierThreshold {
				warnings = append(warnings, Warning{
					Index:   len(out),
					Date:    b.Date(opts.Timeframe),
					Kind:    WarnOutlier,
					Message: fmt.Sprintf("close changed %.2f%% from previous bar", change*100),
					Change:  change,
				})
			}
		}
		if b.Open > b.High || b.Open < b.Low || b.Close > b.High || b.Close < b.Low {
			warnings = append(warnings, Warning{
				Index:   len(out),
				Date:    b.Date(opts.Timeframe),
				Kind:    WarnRange,
				Message: "open/close outside high-low range",
			})
		}
		out = append(out, b)
	}
	return market.History{
		Symbol:    opts.Symbol,
		Timeframe: opts.Timeframe,
		Bars:      out,
		Breaks:    breaks,
	}, warnings, nil
}

func checkBar(i int, b market.Bar) error {
	if b.Time.IsZero() {
		return invalid(i, "missing date")
	}
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalid(i, "non-finite value")
		}
		if v < 0 {
			return invalid(i, "negative price or volume")
		}
	}
	if b.High < b.Low {
		return invalid(i, "high %.4f below low %.4f", b.High, b.Low)
	}
	return nil
}

func fillBar(prev market.Bar, at time.Time) market.Bar {
	return market.Bar{
		Time:   at,
		Open:   prev.Close,
		High:   prev.Close,
		Low:    prev.Close,
		Close:  prev.Close,
		Filled: true,
	}
}

func pctChange(prev, cur float64) (float64, bool) {
	if prev == 0 {
		return 0, false
	}
	return cur/prev - 1, true
}
