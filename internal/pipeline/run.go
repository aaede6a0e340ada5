package pipeline

import (
	"context"
	"errors"
	"time"

	"stockwatch/internal/analysis/indicator"
	"stockwatch/internal/analysis/validate"
	"stockwatch/internal/backtest"
	"stockwatch/internal/logger"
	"stockwatch/internal/market"
	"stockwatch/internal/metrics"
	"stockwatch/internal/performance"
	"stockwatch/internal/signal"
)

// Report 是一次完整运行的输出，相同输入与参数得到字节级一致的 JSON。
type Report struct {
	Symbol       string                `json:"symbol"`
	Timeframe    market.Timeframe      `json:"timeframe"`
	Bars         int                   `json:"bars"`
	FirstDate    string                `json:"first_date"`
	LastDate     string                `json:"last_date"`
	Profile      signal.Profile        `json:"profile"`
	DataWarnings []validate.Warning    `json:"data_warnings"`
	Warnings     []string              `json:"warnings,omitempty"`
	Indicators   []indicator.Row       `json:"indicators,omitempty"`
	Signals      []signal.Signal       `json:"signals"`
	Decisions    []signal.Decision     `json:"decisions"`
	Backtest     *backtest.Result      `json:"backtest,omitempty"`
	Metrics      *performance.Metrics  `json:"metrics,omitempty"`
	HitRates     []performance.HitStat `json:"hit_rates"`

	// 供报表渲染使用，不参与序列化。
	History      market.History `json:"-"`
	IndicatorSet indicator.Set  `json:"-"`
}

// Runner 串联 validate → indicators → signals → backtest → performance。
// 各步骤均为纯函数，Runner 只负责调度、日志与指标。
type Runner struct {
	metrics *metrics.Metrics
}

func NewRunner(m *metrics.Metrics) *Runner {
	return &Runner{metrics: m}
}

// Run 使用不带指标的 Runner 执行一次。
func Run(ctx context.Context, symbol string, bars []market.Bar, opts Options) (Report, error) {
	return NewRunner(nil).Run(ctx, symbol, bars, opts)
}

// Run 执行完整流程。任一关键步骤失败即返回，错误可用 errors.As 还原为
// *validate.ValidationError 或 *config.Error。
func (r *Runner) Run(ctx context.Context, symbol string, bars []market.Bar, opts Options) (Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	started := time.Now()
	mode := "backtest"
	if opts.SkipBacktest {
		mode = "analyze"
	}
	report, err := r.run(ctx, symbol, bars, opts)
	r.observe(mode, started, report, err)
	log := logger.With("symbol", report.Symbol, "mode", mode)
	if err != nil {
		log.Warn("pipeline failed", "error", err)
		return Report{}, err
	}
	log.Debug("pipeline done", "bars", report.Bars, "signals", len(report.Signals), "elapsed", time.Since(started))
	return report, nil
}

func (r *Runner) run(ctx context.Context, symbol string, bars []market.Bar, opts Options) (Report, error) {
	if err := opts.Validate(); err != nil {
		return Report{Symbol: symbol}, err
	}
	ac := NewContext(symbol, bars, opts)
	p := New("analysis", stages(opts)...).WithMetrics(r.metrics)
	if err := p.Run(ctx, ac); err != nil {
		return Report{Symbol: ac.Symbol}, unwrapStage(err)
	}
	h := ac.History
	report := Report{
		Symbol:       ac.Symbol,
		Timeframe:    h.Timeframe,
		Bars:         h.Len(),
		Profile:      opts.Profile,
		DataWarnings: ac.DataWarnings,
		Warnings:     ac.Warnings(),
		Signals:      ac.Signals.Signals,
		Decisions:    ac.Signals.Decisions,
		Backtest:     ac.Backtest,
		Metrics:      ac.Metrics,
		HitRates:     ac.HitRates,
		History:      h,
		IndicatorSet: ac.Indicators,
	}
	if h.Len() > 0 {
		report.FirstDate = h.Bars[0].Date(h.Timeframe)
		report.LastDate = h.Bars[h.Len()-1].Date(h.Timeframe)
	}
	if opts.IncludeIndicators {
		report.Indicators = ac.Indicators.Rows()
	}
	if report.HitRates == nil {
		report.HitRates = []performance.HitStat{}
	}
	return report, nil
}

// unwrapStage 去掉调度层的包装，调用方直接拿到步骤返回的错误。
func unwrapStage(err error) error {
	var mwErr *MiddlewareError
	if errors.As(err, &mwErr) && mwErr.Err != nil {
		return mwErr.Err
	}
	return err
}

func (r *Runner) observe(mode string, started time.Time, report Report, err error) {
	if r == nil || r.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.metrics.RunsTotal.WithLabelValues(mode, status).Inc()
	r.metrics.RunDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		return
	}
	r.metrics.BarsTotal.Add(float64(report.Bars))
	for _, s := range report.Signals {
		r.metrics.SignalsTotal.WithLabelValues(string(s.Kind)).Inc()
	}
	if report.Backtest != nil {
		r.metrics.TradesTotal.Add(float64(len(report.Backtest.Trades)))
	}
}
