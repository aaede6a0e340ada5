package backtest

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"stockwatch/internal/signal"
)

// Phase 是状态机的标签：空仓或持多，不支持做空。
type Phase string

const (
	Flat Phase = "flat"
	Long Phase = "long"
)

// Position 当前持仓；空仓时 Shares 为 0。
type Position struct {
	Shares int64 `json:"shares"`
	// AvgPrice 加权成交均价（不含佣金）。
	AvgPrice   float64 `json:"avg_price"`
	EntryDate  string  `json:"entry_date,omitempty"`
	EntryIndex int     `json:"entry_index"`

	// cost 为含佣金的总买入成本，平仓时用于计算已实现盈亏。
	cost       decimal.Decimal
	commission decimal.Decimal
}

// Cost 含佣金的持仓成本。
func (p Position) Cost() float64 { return decToFloat(p.cost) }

func (p Position) MarshalJSON() ([]byte, error) {
	type alias Position
	return json.Marshal(struct {
		alias
		Cost float64 `json:"cost"`
	}{alias(p), p.Cost()})
}

// State 是某一时刻的完整组合状态，按值传递，Transition 不修改入参。
type State struct {
	Phase      Phase
	Cash       decimal.Decimal
	Position   Position
	Commission decimal.Decimal
}

// NewState 初始状态：空仓，现金为初始资金。
func NewState(cfg Config) State {
	return State{Phase: Flat, Cash: decFromFloat(cfg.InitialCapital)}
}

// Equity = 现金 + 持股 × 价格。
func (s State) Equity(price float64) decimal.Decimal {
	return s.Cash.Add(decimal.NewFromInt(s.Position.Shares).Mul(decFromFloat(price)))
}

// Fill 描述一次可能的成交：所在 bar 与成交价。
type Fill struct {
	Index int
	Date  string
	Price float64
}

// Trade 一次完整的开平仓往返。
type Trade struct {
	EntryDate  string  `json:"entry_date"`
	EntryIndex int     `json:"entry_index"`
	EntryPrice float64 `json:"entry_price"`
	ExitDate   string  `json:"exit_date"`
	ExitIndex  int     `json:"exit_index"`
	ExitPrice  float64 `json:"exit_price"`
	Shares     int64   `json:"shares"`
	Commission float64 `json:"commission"`
	EntryCost  float64 `json:"entry_cost"`
	Proceeds   float64 `json:"proceeds"`
	PnL        float64 `json:"pnl"`
	ReturnPct  float64 `json:"return_pct"`
	HoldBars   int     `json:"hold_bars"`
}

type EventKind string

const (
	// EventSkipped 买入决策因现金不足或其他原因未成交。
	EventSkipped EventKind = "skipped"
	// EventScaleIn 持仓状态下加仓。
	EventScaleIn EventKind = "scale_in"
	// EventExpired 次日开盘成交模式下最后一根 bar 的决策。
	EventExpired EventKind = "expired"
	// EventLiquidated 回测结束时强制平仓。
	EventLiquidated EventKind = "liquidated"
)

// Event 非成交记录，不是错误。
type Event struct {
	Index  int           `json:"index"`
	Date   string        `json:"date"`
	Kind   EventKind     `json:"kind"`
	Action signal.Action `json:"action"`
	Price  float64       `json:"price"`
	Reason string        `json:"reason,omitempty"`
}

// Transition 是纯状态转移函数：(状态, 决策, 成交点) → (新状态, 可选成交, 可选事件)。
// 与当前状态不匹配的决策（持仓时买入、空仓时卖出、hold）原样返回。
func Transition(s State, action signal.Action, at Fill, cfg Config) (State, *Trade, *Event) {
	switch {
	case action == signal.ActionBuy && s.Phase == Flat:
		return openLong(s, at, cfg)
	case action == signal.ActionBuy && s.Phase == Long && cfg.ScaleIn:
		return scaleIn(s, at, cfg)
	case action == signal.ActionSell && s.Phase == Long:
		next, trade := closeLong(s, at, cfg)
		return next, &trade, nil
	default:
		return s, nil, nil
	}
}

func openLong(s State, at Fill, cfg Config) (State, *Trade, *Event) {
	shares, cost, commission, ev := buy(s, at, cfg)
	if ev != nil {
		return s, nil, ev
	}
	s.Phase = Long
	s.Cash = s.Cash.Sub(cost)
	s.Commission = s.Commission.Add(commission)
	s.Position = Position{
		Shares:     shares,
		AvgPrice:   at.Price,
		EntryDate:  at.Date,
		EntryIndex: at.Index,
		cost:       cost,
		commission: commission,
	}
	return s, nil, nil
}

func scaleIn(s State, at Fill, cfg Config) (State, *Trade, *Event) {
	shares, cost, commission, ev := buy(s, at, cfg)
	if ev != nil {
		return s, nil, ev
	}
	pos := s.Position
	total := pos.Shares + shares
	avg := decFromFloat(pos.AvgPrice).Mul(decimal.NewFromInt(pos.Shares)).
		Add(decFromFloat(at.Price).Mul(decimal.NewFromInt(shares))).
		Div(decimal.NewFromInt(total))
	pos.Shares = total
	pos.AvgPrice = decToFloat(avg.Round(6))
	pos.cost = pos.cost.Add(cost)
	pos.commission = pos.commission.Add(commission)
	s.Position = pos
	s.Cash = s.Cash.Sub(cost)
	s.Commission = s.Commission.Add(commission)
	return s, nil, &Event{
		Index:  at.Index,
		Date:   at.Date,
		Kind:   EventScaleIn,
		Action: signal.ActionBuy,
		Price:  at.Price,
		Reason: "added to open position",
	}
}

// buy 计算可买股数；资金不足一手时返回 skipped 事件。
func buy(s State, at Fill, cfg Config) (int64, decimal.Decimal, decimal.Decimal, *Event) {
	price := decFromFloat(at.Price)
	rate := decFromFloat(cfg.CommissionRate)
	budget := s.Cash.Mul(decFromFloat(cfg.PositionFraction))
	shares := affordableShares(budget, price, rate, cfg.MinLot)
	if shares <= 0 {
		return 0, decimal.Zero, decimal.Zero, &Event{
			Index:  at.Index,
			Date:   at.Date,
			Kind:   EventSkipped,
			Action: signal.ActionBuy,
			Price:  at.Price,
			Reason: "insufficient cash for one lot",
		}
	}
	cost := buyCost(shares, price, rate)
	commission := decimal.NewFromInt(shares).Mul(price).Mul(rate)
	return shares, cost, commission, nil
}

func closeLong(s State, at Fill, cfg Config) (State, Trade) {
	pos := s.Position
	price := decFromFloat(at.Price)
	rate := decFromFloat(cfg.CommissionRate)
	proceeds := sellProceeds(pos.Shares, price, rate)
	exitCommission := decimal.NewFromInt(pos.Shares).Mul(price).Mul(rate)
	pnl := proceeds.Sub(pos.cost)
	ret := decimal.Zero
	if pos.cost.IsPositive() {
		ret = pnl.Div(pos.cost)
	}
	trade := Trade{
		EntryDate:  pos.EntryDate,
		EntryIndex: pos.EntryIndex,
		EntryPrice: pos.AvgPrice,
		ExitDate:   at.Date,
		ExitIndex:  at.Index,
		ExitPrice:  at.Price,
		Shares:     pos.Shares,
		Commission: decToFloat(pos.commission.Add(exitCommission)),
		EntryCost:  decToFloat(pos.cost),
		Proceeds:   decToFloat(proceeds),
		PnL:        decToFloat(pnl),
		ReturnPct:  decToFloat(ret.Round(8)),
		HoldBars:   at.Index - pos.EntryIndex,
	}
	s.Phase = Flat
	s.Cash = s.Cash.Add(proceeds)
	s.Commission = s.Commission.Add(exitCommission)
	s.Position = Position{}
	return s, trade
}
