// Package performance 将资金曲线与成交记录归约为汇总指标。
// 分母为零的比率一律输出 null，不报错也不记 0。
package performance

import (
	"math"

	"stockwatch/internal/backtest"
	"stockwatch/internal/config"
)

const (
	DefaultRiskFreeRate   = 0.02
	DefaultPeriodsPerYear = 252
)

// Options 年化与无风险利率参数。
type Options struct {
	RiskFreeRate   float64 `json:"risk_free_rate"`
	PeriodsPerYear float64 `json:"periods_per_year"`
}

func DefaultOptions() Options {
	return Options{RiskFreeRate: DefaultRiskFreeRate, PeriodsPerYear: DefaultPeriodsPerYear}
}

func (o Options) Validate() error {
	if o.PeriodsPerYear <= 0 {
		return config.Errorf("performance.periods_per_year", "must be positive, got %g", o.PeriodsPerYear)
	}
	if o.RiskFreeRate <= -1 {
		return config.Errorf("performance.risk_free_rate", "must be greater than -1, got %g", o.RiskFreeRate)
	}
	return nil
}

// Metrics 回测绩效。指针字段为 nil 表示无定义。
type Metrics struct {
	TotalReturn      float64  `json:"total_return"`
	AnnualizedReturn *float64 `json:"annualized_return"`
	MaxDrawdown      float64  `json:"max_drawdown"`
	Sharpe           *float64 `json:"sharpe"`
	Sortino          *float64 `json:"sortino"`
	WinRate          *float64 `json:"win_rate"`
	AvgWin           *float64 `json:"avg_win"`
	AvgLoss          *float64 `json:"avg_loss"`
	ProfitFactor     *float64 `json:"profit_factor"`
	TradeCount       int      `json:"trade_count"`
	Exposure         *float64 `json:"exposure"`
	BenchmarkReturn  *float64 `json:"benchmark_return"`
	Commission       float64  `json:"commission"`
	Periods          int      `json:"periods"`
	PeriodsPerYear   float64  `json:"periods_per_year"`
}

// Analyze 计算全部绩效指标。
func Analyze(res backtest.Result, opts Options) (Metrics, error) {
	if err := opts.Validate(); err != nil {
		return Metrics{}, err
	}
	m := Metrics{
		TradeCount:     len(res.Trades),
		Commission:     res.Commission,
		PeriodsPerYear: opts.PeriodsPerYear,
	}
	curve := res.EquityCurve
	if res.InitialCapital > 0 {
		m.TotalReturn = res.FinalEquity/res.InitialCapital - 1
	}
	if len(curve) > 0 {
		m.Periods = len(curve) - 1
	}
	if m.Periods > 0 && 1+m.TotalReturn >= 0 {
		m.AnnualizedReturn = ptr(math.Pow(1+m.TotalReturn, opts.PeriodsPerYear/float64(m.Periods)) - 1)
	}
	m.MaxDrawdown = maxDrawdown(curve)

	returns := barReturns(curve)
	rfPerBar := opts.RiskFreeRate / opts.PeriodsPerYear
	m.Sharpe = sharpe(returns, rfPerBar, opts.PeriodsPerYear)
	m.Sortino = sortino(returns, rfPerBar, opts.PeriodsPerYear)

	tradeStats(res.Trades, &m)

	if len(curve) > 0 {
		long := 0
		for _, p := range curve {
			if p.Shares > 0 {
				long++
			}
		}
		m.Exposure = ptr(float64(long) / float64(len(curve)))
		if first := curve[0].Close; first > 0 {
			m.BenchmarkReturn = ptr(curve[len(curve)-1].Close/first - 1)
		}
	}
	return m, nil
}

// maxDrawdown 资金曲线最大回撤（相对前高的比例）。
func maxDrawdown(curve []backtest.EquityPoint) float64 {
	peak, worst := 0.0, 0.0
	for _, p := range curve {
		peak = math.Max(peak, p.Equity)
		if peak > 0 {
			worst = math.Max(worst, (peak-p.Equity)/peak)
		}
	}
	return worst
}

func barReturns(curve []backtest.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		out = append(out, curve[i].Equity/prev-1)
	}
	return out
}

// sharpe = (mean(r) - rf) / std(r) · √ppy，std 为样本标准差。
func sharpe(returns []float64, rf, ppy float64) *float64 {
	if len(returns) < 2 {
		return nil
	}
	mean, std := meanStd(returns)
	if std == 0 || math.IsNaN(std) {
		return nil
	}
	return ptr((mean - rf) / std * math.Sqrt(ppy))
}

// sortino 分母为低于无风险收益部分的下行偏差；收益零方差时无定义。
func sortino(returns []float64, rf, ppy float64) *float64 {
	if len(returns) < 2 {
		return nil
	}
	mean, std := meanStd(returns)
	if std == 0 || math.IsNaN(std) {
		return nil
	}
	var sq float64
	for _, r := range returns {
		if d := r - rf; d < 0 {
			sq += d * d
		}
	}
	downside := math.Sqrt(sq / float64(len(returns)))
	if downside == 0 {
		return nil
	}
	return ptr((mean - rf) / downside * math.Sqrt(ppy))
}

func meanStd(vals []float64) (float64, float64) {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(vals)-1))
	// 累加误差导致的极小方差按零处理
	if std < 1e-15 {
		std = 0
	}
	return mean, std
}

func tradeStats(trades []backtest.Trade, m *Metrics) {
	if len(trades) == 0 {
		return
	}
	var (
		wins, losses        int
		grossWin, grossLoss float64
	)
	for _, t := range trades {
		switch {
		case t.PnL > 0:
			wins++
			grossWin += t.PnL
		case t.PnL < 0:
			losses++
			grossLoss += t.PnL
		}
	}
	m.WinRate = ptr(float64(wins) / float64(len(trades)))
	if wins > 0 {
		m.AvgWin = ptr(grossWin / float64(wins))
	}
	if losses > 0 {
		m.AvgLoss = ptr(grossLoss / float64(losses))
		m.ProfitFactor = ptr(grossWin / math.Abs(grossLoss))
	}
}

func ptr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
