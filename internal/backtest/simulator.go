package backtest

import (
	"fmt"

	"stockwatch/internal/market"
	"stockwatch/internal/signal"
)

// EquityPoint 单根 bar 收盘后的组合估值。
type EquityPoint struct {
	Index  int     `json:"index"`
	Date   string  `json:"date"`
	Close  float64 `json:"close"`
	Cash   float64 `json:"cash"`
	Shares int64   `json:"shares"`
	Equity float64 `json:"equity"`
}

// Result 回测输出：逐 bar 资金曲线、成交记录、非成交事件与期末状态。
type Result struct {
	Config         Config        `json:"config"`
	InitialCapital float64       `json:"initial_capital"`
	EquityCurve    []EquityPoint `json:"equity_curve"`
	Trades         []Trade       `json:"trades"`
	Events         []Event       `json:"events"`
	FinalPhase     Phase         `json:"final_phase"`
	FinalCash      float64       `json:"final_cash"`
	FinalPosition  Position      `json:"final_position"`
	FinalEquity    float64       `json:"final_equity"`
	Commission     float64       `json:"commission"`
}

// Simulate 按时间顺序单遍回放决策。decisions 必须与 History 的 bar 一一对应。
// 期末持仓按最后收盘价估值，仅在 LiquidateAtEnd 时强制平仓。
func Simulate(h market.History, decisions []signal.Decision, cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if len(decisions) != h.Len() {
		return Result{}, fmt.Errorf("decisions (%d) not aligned with bars (%d)", len(decisions), h.Len())
	}
	exec := cfg.execution()
	state := NewState(cfg)
	res := Result{
		Config:         cfg,
		InitialCapital: cfg.InitialCapital,
		EquityCurve:    make([]EquityPoint, 0, h.Len()),
		Trades:         []Trade{},
		Events:         []Event{},
	}
	apply := func(action signal.Action, bar market.Bar, at Fill) {
		if action == signal.ActionHold {
			return
		}
		if bar.Filled && isTransition(state, action, cfg) {
			res.Events = append(res.Events, Event{
				Index:  at.Index,
				Date:   at.Date,
				Kind:   EventSkipped,
				Action: action,
				Price:  at.Price,
				Reason: "no trading on forward-filled bar",
			})
			return
		}
		var (
			trade *Trade
			ev    *Event
		)
		state, trade, ev = Transition(state, action, at, cfg)
		if trade != nil {
			res.Trades = append(res.Trades, *trade)
		}
		if ev != nil {
			res.Events = append(res.Events, *ev)
		}
	}

	pending := signal.ActionHold
	for i, bar := range h.Bars {
		date := bar.Date(h.Timeframe)
		switch exec {
		case ExecNextOpen:
			apply(pending, bar, Fill{Index: i, Date: date, Price: bar.Open})
			pending = decisions[i].Action
		default:
			apply(decisions[i].Action, bar, Fill{Index: i, Date: date, Price: bar.Close})
		}
		res.EquityCurve = append(res.EquityCurve, snapshot(state, i, date, bar.Close))
	}

	last := h.Len() - 1
	if exec == ExecNextOpen && last >= 0 && isTransition(state, pending, cfg) {
		bar := h.Bars[last]
		res.Events = append(res.Events, Event{
			Index:  last,
			Date:   bar.Date(h.Timeframe),
			Kind:   EventExpired,
			Action: pending,
			Price:  bar.Close,
			Reason: "no next bar to fill",
		})
	}
	if cfg.LiquidateAtEnd && state.Phase == Long && last >= 0 {
		bar := h.Bars[last]
		at := Fill{Index: last, Date: bar.Date(h.Timeframe), Price: bar.Close}
		next, trade := closeLong(state, at, cfg)
		state = next
		res.Trades = append(res.Trades, trade)
		res.Events = append(res.Events, Event{
			Index:  last,
			Date:   at.Date,
			Kind:   EventLiquidated,
			Action: signal.ActionSell,
			Price:  at.Price,
			Reason: "liquidate at end",
		})
		res.EquityCurve[last] = snapshot(state, last, at.Date, bar.Close)
	}

	res.FinalPhase = state.Phase
	res.FinalCash = decToFloat(state.Cash)
	res.FinalPosition = state.Position
	res.Commission = decToFloat(state.Commission)
	if last >= 0 {
		res.FinalEquity = res.EquityCurve[last].Equity
	} else {
		res.FinalEquity = res.FinalCash
	}
	return res, nil
}

func snapshot(s State, idx int, date string, close float64) EquityPoint {
	return EquityPoint{
		Index:  idx,
		Date:   date,
		Close:  close,
		Cash:   decToFloat(s.Cash),
		Shares: s.Position.Shares,
		Equity: decToFloat(s.Equity(close)),
	}
}

// isTransition 判断决策在当前状态下是否会触发状态变化。
func isTransition(s State, action signal.Action, cfg Config) bool {
	switch action {
	case signal.ActionBuy:
		return s.Phase == Flat || cfg.ScaleIn
	case signal.ActionSell:
		return s.Phase == Long
	}
	return false
}
