package performance

import (
	"sort"

	"stockwatch/internal/signal"
)

// DefaultHorizons 信号事后统计的前瞻 bar 数。
var DefaultHorizons = []int{1, 3, 5, 10, 20}

// HitStat 某类信号在固定前瞻期上的命中情况。
// 买入信号前瞻收益 > 0 记命中，卖出信号 < 0 记命中。
type HitStat struct {
	Kind       signal.Kind      `json:"kind"`
	Direction  signal.Direction `json:"direction"`
	Horizon    int              `json:"horizon"`
	Count      int              `json:"count"`
	Hits       int              `json:"hits"`
	HitRate    *float64         `json:"hit_rate"`
	MeanReturn *float64         `json:"mean_return"`
}

type hitKey struct {
	kind    signal.Kind
	horizon int
}

// HitRates 统计每类信号的前瞻命中率；超出数据末尾的样本不计入。
func HitRates(closes []float64, signals []signal.Signal, horizons []int) []HitStat {
	if len(horizons) == 0 {
		horizons = DefaultHorizons
	}
	type acc struct {
		dir        signal.Direction
		count      int
		hits       int
		sumReturns float64
	}
	buckets := make(map[hitKey]*acc)
	for _, sig := range signals {
		for _, h := range horizons {
			if h <= 0 {
				continue
			}
			k := hitKey{kind: sig.Kind, horizon: h}
			a, ok := buckets[k]
			if !ok {
				a = &acc{dir: sig.Direction}
				buckets[k] = a
			}
			j := sig.Index + h
			if sig.Index < 0 || j >= len(closes) || closes[sig.Index] <= 0 {
				continue
			}
			ret := closes[j]/closes[sig.Index] - 1
			a.count++
			a.sumReturns += ret
			if (sig.Direction == signal.Buy && ret > 0) || (sig.Direction == signal.Sell && ret < 0) {
				a.hits++
			}
		}
	}
	out := make([]HitStat, 0, len(buckets))
	for k, a := range buckets {
		st := HitStat{Kind: k.kind, Direction: a.dir, Horizon: k.horizon, Count: a.count, Hits: a.hits}
		if a.count > 0 {
			st.HitRate = ptr(float64(a.hits) / float64(a.count))
			st.MeanReturn = ptr(a.sumReturns / float64(a.count))
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Horizon < out[j].Horizon
	})
	return out
}
