package validate

import (
	"math"

	"stockwatch/internal/config"
	"stockwatch/internal/market"
)

// Resample 将 History 聚合为更长周期：open 取首、high 取最大、low 取最小、
// close 取末、volume 求和。聚合后的 bar 时间取桶内最后一根原始 bar 的时间。
func Resample(h market.History, target market.Timeframe) (market.History, error) {
	return ResampleWith(h, target, market.Calendar{})
}

// ResampleWith 同 Resample，按给定交易日历判定聚合后的缺口。
func ResampleWith(h market.History, target market.Timeframe, cal market.Calendar) (market.History, error) {
	if target.IsZero() {
		return market.History{}, config.Errorf("data.resample", "target timeframe is empty")
	}
	if !h.Timeframe.Coarser(target) {
		return market.History{}, config.Errorf("data.resample", "target %s is not coarser than %s", target.Key, h.Timeframe.Key)
	}
	if len(h.Bars) == 0 {
		return market.History{Symbol: h.Symbol, Timeframe: target}, nil
	}

	out := make([]market.Bar, 0, len(h.Bars)/2+1)
	var (
		cur    market.Bar
		bucket = target.BucketStart(h.Bars[0].Time)
		filled = true
	)
	flush := func() {
		cur.Filled = filled
		out = append(out, cur)
	}
	for i, b := range h.Bars {
		start := target.BucketStart(b.Time)
		if i == 0 || !start.Equal(bucket) {
			if i > 0 {
				flush()
			}
			bucket = start
			filled = true
			cur = market.Bar{Time: b.Time, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
		} else {
			cur.Time = b.Time
			cur.High = math.Max(cur.High, b.High)
			cur.Low = math.Min(cur.Low, b.Low)
			cur.Close = b.Close
			cur.Volume += b.Volume
		}
		filled = filled && b.Filled
	}
	flush()

	var breaks []int
	for i := 1; i < len(out); i++ {
		if cal.Missing(target, out[i-1].Time, out[i].Time) > 0 {
			breaks = append(breaks, i)
		}
	}
	return market.History{
		Symbol:    h.Symbol,
		Timeframe: target,
		Bars:      out,
		Breaks:    breaks,
	}, nil
}
