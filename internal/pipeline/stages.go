package pipeline

import (
	"context"
	"fmt"

	"stockwatch/internal/analysis/indicator"
	"stockwatch/internal/analysis/validate"
	"stockwatch/internal/backtest"
	"stockwatch/internal/performance"
	"stockwatch/internal/signal"
)

const (
	stageValidate = iota
	stageIndicators
	stageSignals
	stageBacktest
	stageAnalyze
)

// stages 按数据流向返回全部步骤；analyze 模式不含回测与绩效。
func stages(opts Options) []Middleware {
	out := []Middleware{
		stageFunc{meta: MiddlewareMeta{Name: "validate", Stage: stageValidate, Critical: true}, fn: runValidate},
		stageFunc{meta: MiddlewareMeta{Name: "indicators", Stage: stageIndicators, Critical: true}, fn: runIndicators},
		stageFunc{meta: MiddlewareMeta{Name: "signals", Stage: stageSignals, Critical: true}, fn: runSignals},
		stageFunc{meta: MiddlewareMeta{Name: "hit_rates", Stage: stageAnalyze}, fn: runHitRates},
	}
	if !opts.SkipBacktest {
		out = append(out,
			stageFunc{meta: MiddlewareMeta{Name: "backtest", Stage: stageBacktest, Critical: true}, fn: runBacktest},
			stageFunc{meta: MiddlewareMeta{Name: "performance", Stage: stageAnalyze, Critical: true}, fn: runPerformance},
		)
	}
	return out
}

func runValidate(_ context.Context, ac *AnalysisContext) error {
	vopts := ac.Options.Data
	vopts.Symbol = ac.Symbol
	h, warnings, err := validate.Validate(ac.Bars, vopts)
	if err != nil {
		return err
	}
	if target := ac.Options.Resample; !target.IsZero() && target != h.Timeframe {
		h, err = validate.ResampleWith(h, target, vopts.Calendar)
		if err != nil {
			return err
		}
		if h.Len() < 2 {
			return &validate.ValidationError{Index: -1, Reason: fmt.Sprintf("resampled to %s leaves %d bars", target.Key, h.Len())}
		}
	}
	if warnings == nil {
		warnings = []validate.Warning{}
	}
	ac.History = h
	ac.DataWarnings = warnings
	return nil
}

func runIndicators(_ context.Context, ac *AnalysisContext) error {
	set, err := indicator.Compute(ac.History, ac.Options.Indicators)
	if err != nil {
		return err
	}
	ac.Indicators = set
	return nil
}

func runSignals(_ context.Context, ac *AnalysisContext) error {
	res, err := signal.Generate(ac.History, ac.Indicators, ac.Options.Rules, ac.Options.Profile)
	if err != nil {
		return err
	}
	if res.Signals == nil {
		res.Signals = []signal.Signal{}
	}
	ac.Signals = res
	return nil
}

func runBacktest(_ context.Context, ac *AnalysisContext) error {
	res, err := backtest.Simulate(ac.History, ac.Signals.Decisions, ac.Options.Backtest)
	if err != nil {
		return err
	}
	ac.Backtest = &res
	return nil
}

func runPerformance(_ context.Context, ac *AnalysisContext) error {
	popts := ac.Options.Performance
	if popts.PeriodsPerYear <= 0 {
		popts.PeriodsPerYear = ac.History.Timeframe.PeriodsPerYear
	}
	m, err := performance.Analyze(*ac.Backtest, popts)
	if err != nil {
		return err
	}
	ac.Metrics = &m
	return nil
}

func runHitRates(_ context.Context, ac *AnalysisContext) error {
	ac.HitRates = performance.HitRates(ac.History.Closes(), ac.Signals.Signals, ac.Options.Horizons)
	return nil
}
