package app

import (
	"fmt"
	"io"
	"strings"

	"stockwatch/internal/config"
	"stockwatch/internal/pipeline"
	"stockwatch/internal/signal"
	backtesthttp "stockwatch/internal/transport/http/backtest"
)

// StartupSummary 启动时打印的配置摘要。
type StartupSummary struct {
	Data       DataSummary
	Indicators IndicatorSummary
	Strategy   StrategySummary
	Backtest   BacktestSummary
	Storage    StorageSummary
	HTTPAddr   string
}

type DataSummary struct {
	Timeframe string
	Resample  string
	FillGaps  bool
	Holidays  int
}

type IndicatorSummary struct {
	MAWindows  []int
	CrossPairs []string
	MACD       string
	RSI        string
	Bollinger  string
	KDJ        string
}

type StrategySummary struct {
	Profile      signal.Profile
	Available    []string
	ProfilesPath string
}

type BacktestSummary struct {
	InitialCapital float64
	CommissionRate float64
	MinLot         int64
	Execution      string
	RiskFreeRate   float64
}

type StorageSummary struct {
	BarsPath  string
	RunsPath  string
	ReportDir string
}

func newStartupSummary(cfg *config.Config, base pipeline.Options, profiles backtesthttp.ProfileSource) *StartupSummary {
	ind := base.Indicators
	pairs := make([]string, 0, len(base.Rules.CrossPairs))
	for _, p := range base.Rules.CrossPairs {
		pairs = append(pairs, fmt.Sprintf("MA%d/MA%d", p.Short, p.Long))
	}
	resample := "-"
	if !base.Resample.IsZero() {
		resample = base.Resample.Key
	}
	exec := string(base.Backtest.Execution)
	if exec == "" {
		exec = "same_close"
	}
	return &StartupSummary{
		Data: DataSummary{
			Timeframe: base.Data.Timeframe.Key,
			Resample:  resample,
			FillGaps:  base.Data.FillGaps,
			Holidays:  len(cfg.Data.Holidays),
		},
		Indicators: IndicatorSummary{
			MAWindows:  ind.MAWindows,
			CrossPairs: pairs,
			MACD:       fmt.Sprintf("%d/%d/%d", ind.MACDFast, ind.MACDSlow, ind.MACDSignal),
			RSI:        fmt.Sprintf("%d (%.0f/%.0f)", ind.RSIPeriod, base.Rules.RSIOversold, base.Rules.RSIOverbought),
			Bollinger:  fmt.Sprintf("%d x %.1f", ind.BollPeriod, ind.BollK),
			KDJ:        fmt.Sprintf("%d/%d/%d", ind.KDJPeriod, ind.KDJM1, ind.KDJM2),
		},
		Strategy: StrategySummary{
			Profile:      base.Profile,
			Available:    signal.ProfileNames(profiles.Profiles()),
			ProfilesPath: cfg.Strategy.ProfilesPath,
		},
		Backtest: BacktestSummary{
			InitialCapital: base.Backtest.InitialCapital,
			CommissionRate: base.Backtest.CommissionRate,
			MinLot:         base.Backtest.MinLot,
			Execution:      exec,
			RiskFreeRate:   base.Performance.RiskFreeRate,
		},
		Storage: StorageSummary{
			BarsPath:  cfg.Store.BarsPath,
			RunsPath:  cfg.Store.RunsPath,
			ReportDir: cfg.Report.Dir,
		},
		HTTPAddr: cfg.App.HTTPAddr,
	}
}

func (s *StartupSummary) Print(w io.Writer) {
	title := "启动配置摘要 (STARTUP SUMMARY)"
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "[行情数据 (DATA)]")
	fmt.Fprintf(w, "  周期: %s  重采样: %s\n", s.Data.Timeframe, s.Data.Resample)
	fmt.Fprintf(w, "  缺口填充: %v  节假日: %d\n", s.Data.FillGaps, s.Data.Holidays)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[技术指标 (INDICATORS)]")
	fmt.Fprintf(w, "  均线: %s\n", formatInts(s.Indicators.MAWindows))
	fmt.Fprintf(w, "  交叉: %s\n", formatList(s.Indicators.CrossPairs))
	fmt.Fprintf(w, "  MACD %s | RSI %s | BOLL %s | KDJ %s\n", s.Indicators.MACD, s.Indicators.RSI, s.Indicators.Bollinger, s.Indicators.KDJ)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[策略档位 (PROFILE)]")
	p := s.Strategy.Profile
	fmt.Fprintf(w, "  当前: %s (强度≥%d, 净强度≥%d, 确认≥%d)\n", p.Name, p.MinSignalStrength, p.MinNetStrength, p.MinConfirmations)
	fmt.Fprintf(w, "  可用: %s\n", formatList(s.Strategy.Available))
	if s.Strategy.ProfilesPath != "" {
		fmt.Fprintf(w, "  热加载: %s\n", s.Strategy.ProfilesPath)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[回测 (BACKTEST)]")
	fmt.Fprintf(w, "  初始资金: %.2f  佣金: %.4f  最小单位: %d\n", s.Backtest.InitialCapital, s.Backtest.CommissionRate, s.Backtest.MinLot)
	fmt.Fprintf(w, "  成交: %s  无风险利率: %.4f\n", s.Backtest.Execution, s.Backtest.RiskFreeRate)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[存储 (STORAGE)]")
	fmt.Fprintf(w, "  行情库: %s\n", s.Storage.BarsPath)
	fmt.Fprintf(w, "  回测库: %s\n", s.Storage.RunsPath)
	fmt.Fprintf(w, "  报告目录: %s\n", s.Storage.ReportDir)
	fmt.Fprintf(w, "  HTTP: %s\n", s.HTTPAddr)
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func formatInts(items []int) string {
	out := make([]string, len(items))
	for i, v := range items {
		out[i] = fmt.Sprint(v)
	}
	return formatList(out)
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
