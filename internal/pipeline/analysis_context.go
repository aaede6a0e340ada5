package pipeline

import (
	"strings"
	"sync"

	"stockwatch/internal/analysis/indicator"
	"stockwatch/internal/analysis/validate"
	"stockwatch/internal/backtest"
	"stockwatch/internal/market"
	"stockwatch/internal/performance"
	"stockwatch/internal/signal"
)

// AnalysisContext 表示某个 symbol 在一次 Pipeline 执行过程中的上下文。
// 每个 stage 只写自己的输出字段，读上游 stage 已写好的字段；
// 同一 stage 内并发的中间件不得写同一字段。
type AnalysisContext struct {
	Symbol  string
	Options Options
	Bars    []market.Bar

	History      market.History
	DataWarnings []validate.Warning
	Indicators   indicator.Set
	Signals      signal.Result
	Backtest     *backtest.Result
	Metrics      *performance.Metrics
	HitRates     []performance.HitStat

	mu       sync.RWMutex
	warnings []string
}

// NewContext 初始化上下文。bars 在 validate stage 之前不会被读取。
func NewContext(symbol string, bars []market.Bar, opts Options) *AnalysisContext {
	return &AnalysisContext{
		Symbol:  strings.ToUpper(strings.TrimSpace(symbol)),
		Options: opts,
		Bars:    bars,
	}
}

// AddWarning 记录非关键中间件的失败信息。
func (ac *AnalysisContext) AddWarning(msg string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return
	}
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.warnings = append(ac.warnings, msg)
}

// Warnings 获取告警列表。
func (ac *AnalysisContext) Warnings() []string {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	out := make([]string, len(ac.warnings))
	copy(out, ac.warnings)
	return out
}
