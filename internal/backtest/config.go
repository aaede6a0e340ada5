package backtest

import (
	"strings"

	"stockwatch/internal/config"
)

// Execution 成交时点策略。
type Execution string

const (
	// ExecSameClose 以产生决策的 bar 收盘价成交，无滑点。
	ExecSameClose Execution = "same_close"
	// ExecNextOpen 以下一根 bar 开盘价成交；最后一根 bar 的决策无法成交。
	ExecNextOpen Execution = "next_open"
)

// Config 回测资金与成交参数。
type Config struct {
	InitialCapital float64 `json:"initial_capital"`
	CommissionRate float64 `json:"commission_rate"`
	// MinLot 最小交易单位（股），A 股通常为 100。
	MinLot int64 `json:"min_lot"`
	// PositionFraction 每次开仓动用现金的比例，1 表示全仓。
	PositionFraction float64   `json:"position_fraction"`
	ScaleIn          bool      `json:"scale_in"`
	Execution        Execution `json:"execution"`
	LiquidateAtEnd   bool      `json:"liquidate_at_end"`
}

func DefaultConfig() Config {
	return Config{
		InitialCapital:   100000,
		CommissionRate:   0.001,
		MinLot:           1,
		PositionFraction: 1,
		Execution:        ExecSameClose,
	}
}

func (c Config) Validate() error {
	switch {
	case c.InitialCapital <= 0:
		return config.Errorf("backtest.initial_capital", "must be positive, got %g", c.InitialCapital)
	case c.CommissionRate < 0 || c.CommissionRate >= 1:
		return config.Errorf("backtest.commission_rate", "must be within [0,1), got %g", c.CommissionRate)
	case c.MinLot <= 0:
		return config.Errorf("backtest.min_lot", "must be positive, got %d", c.MinLot)
	case c.PositionFraction <= 0 || c.PositionFraction > 1:
		return config.Errorf("backtest.position_fraction", "must be within (0,1], got %g", c.PositionFraction)
	}
	switch c.execution() {
	case ExecSameClose, ExecNextOpen:
	default:
		return config.Errorf("backtest.execution", "unknown policy %q", c.Execution)
	}
	return nil
}

func (c Config) execution() Execution {
	e := Execution(strings.ToLower(strings.TrimSpace(string(c.Execution))))
	if e == "" {
		return ExecSameClose
	}
	return e
}
