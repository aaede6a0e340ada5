// Package signal 从指标序列中识别离散交易事件，并按策略档位聚合为逐日决策。
package signal

import (
	"fmt"

	"stockwatch/internal/analysis/indicator"
	"stockwatch/internal/market"
)

type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

type Kind string

const (
	KindGoldenCross   Kind = "golden_cross"
	KindDeathCross    Kind = "death_cross"
	KindMACDGolden    Kind = "macd_golden"
	KindMACDDeath     Kind = "macd_death"
	KindKDJGolden     Kind = "kdj_golden"
	KindKDJDeath      Kind = "kdj_death"
	KindRSIOversold   Kind = "rsi_oversold"
	KindRSIOverbought Kind = "rsi_overbought"
	KindBollLower     Kind = "boll_lower"
	KindBollUpper     Kind = "boll_upper"
	KindTrendBull     Kind = "trend_bull"
	KindTrendBear     Kind = "trend_bear"
)

const (
	MinStrength = 1
	MaxStrength = 10
)

// Signal 是单根 bar 上触发的一次事件，同一日期可以有多条。
type Signal struct {
	Index     int       `json:"index"`
	Date      string    `json:"date"`
	Source    string    `json:"source"`
	Kind      Kind      `json:"kind"`
	Direction Direction `json:"direction"`
	Strength  int       `json:"strength"`
	// Magnitude 为指标偏离中性值的归一化幅度，取值 [0,1]。
	Magnitude float64 `json:"magnitude"`
}

type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Decision 是单个日期的聚合结论，每根 bar 恰有一条。
type Decision struct {
	Index        int     `json:"index"`
	Date         string  `json:"date"`
	Action       Action  `json:"action"`
	Confidence   float64 `json:"confidence"`
	BuyStrength  int     `json:"buy_strength"`
	SellStrength int     `json:"sell_strength"`
	BuyCount     int     `json:"buy_count"`
	SellCount    int     `json:"sell_count"`
	Profile      string  `json:"profile"`
}

// Result 汇总信号与逐日决策。
type Result struct {
	Signals   []Signal   `json:"signals"`
	Decisions []Decision `json:"decisions"`
}

// Generate 识别信号并聚合决策，两步都是纯函数。
func Generate(h market.History, set indicator.Set, rules Rules, profile Profile) (Result, error) {
	if err := profile.Validate(); err != nil {
		return Result{}, err
	}
	if len(set.Dates) != h.Len() {
		return Result{}, fmt.Errorf("indicator set has %d dates, history has %d bars", len(set.Dates), h.Len())
	}
	signals, err := Detect(h, set, rules)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Signals:   signals,
		Decisions: Aggregate(set.Dates, signals, profile),
	}, nil
}
