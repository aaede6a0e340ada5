package backtesthttp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"stockwatch/internal/backtest"
	"stockwatch/internal/market"
	"stockwatch/internal/pipeline"
	"stockwatch/internal/signal"
)

// Params 单次请求可覆盖的运行参数，未给出的字段沿用服务端配置。
type Params struct {
	Timeframe string            `json:"timeframe"`
	Resample  string            `json:"resample"`
	Profile   string            `json:"profile"`
	Backtest  BacktestOverrides `json:"backtest"`
}

// BacktestOverrides 回测资金参数的局部覆盖。
type BacktestOverrides struct {
	InitialCapital   *float64 `json:"initial_capital"`
	CommissionRate   *float64 `json:"commission_rate"`
	MinLot           *int64   `json:"min_lot"`
	PositionFraction *float64 `json:"position_fraction"`
	ScaleIn          *bool    `json:"scale_in"`
	Execution        string   `json:"execution"`
	LiquidateAtEnd   *bool    `json:"liquidate_at_end"`
}

// RunRequest 是 /api/analyze 与 /api/backtest 的请求体。
// Bars 为空时从行情库读取 [Start, End] 区间。
type RunRequest struct {
	Params
	Symbol            string          `json:"symbol" binding:"required"`
	Bars              json.RawMessage `json:"bars"`
	Start             string          `json:"start"`
	End               string          `json:"end"`
	IncludeIndicators bool            `json:"include_indicators"`
	Save              bool            `json:"save"`
}

// BatchJob 批量请求中的单个标的。
type BatchJob struct {
	Symbol string          `json:"symbol" binding:"required"`
	Bars   json.RawMessage `json:"bars" binding:"required"`
}

type BatchRequest struct {
	Params
	Jobs        []BatchJob `json:"jobs" binding:"required,min=1,dive"`
	Limit       int        `json:"limit"`
	AnalyzeOnly bool       `json:"analyze_only"`
}

// badRequest 标记请求内容本身的问题（行情 JSON 格式、日期格式等）。
type badRequest struct{ err error }

func (e *badRequest) Error() string { return e.err.Error() }
func (e *badRequest) Unwrap() error { return e.err }

func badRequestf(format string, args ...any) error {
	return &badRequest{err: fmt.Errorf(format, args...)}
}

// options 以服务端基线参数为底，叠加请求覆盖项。
func (s *Server) options(p Params) (pipeline.Options, error) {
	opts := s.base
	if tf := strings.TrimSpace(p.Timeframe); tf != "" {
		parsed, err := market.ParseTimeframe(tf)
		if err != nil {
			return pipeline.Options{}, badRequestf("timeframe: %v", err)
		}
		opts.Data.Timeframe = parsed
	}
	if rs := strings.TrimSpace(p.Resample); rs != "" {
		parsed, err := market.ParseTimeframe(rs)
		if err != nil {
			return pipeline.Options{}, badRequestf("resample: %v", err)
		}
		opts.Resample = parsed
	}
	// 每次请求重新解析档位，热加载的阈值立即生效
	name := strings.TrimSpace(p.Profile)
	if name == "" {
		name = opts.Profile.Name
	}
	profile, err := signal.ResolveProfile(name, s.customProfiles())
	if err != nil {
		return pipeline.Options{}, err
	}
	opts.Profile = profile
	opts.Backtest = p.Backtest.apply(opts.Backtest)
	return opts, nil
}

func (o BacktestOverrides) apply(cfg backtest.Config) backtest.Config {
	if o.InitialCapital != nil {
		cfg.InitialCapital = *o.InitialCapital
	}
	if o.CommissionRate != nil {
		cfg.CommissionRate = *o.CommissionRate
	}
	if o.MinLot != nil {
		cfg.MinLot = *o.MinLot
	}
	if o.PositionFraction != nil {
		cfg.PositionFraction = *o.PositionFraction
	}
	if o.ScaleIn != nil {
		cfg.ScaleIn = *o.ScaleIn
	}
	if e := strings.TrimSpace(o.Execution); e != "" {
		cfg.Execution = backtest.Execution(e)
	}
	if o.LiquidateAtEnd != nil {
		cfg.LiquidateAtEnd = *o.LiquidateAtEnd
	}
	return cfg
}

func (s *Server) loadBars(ctx context.Context, req RunRequest, opts pipeline.Options) ([]market.Bar, error) {
	if raw := strings.TrimSpace(string(req.Bars)); raw != "" && raw != "null" {
		bars, err := market.DecodeJSON(req.Bars)
		if err != nil {
			return nil, &badRequest{err: err}
		}
		return bars, nil
	}
	if s.bars == nil {
		return nil, badRequestf("bars 为空且行情存储未启用")
	}
	start, err := parseBound(req.Start)
	if err != nil {
		return nil, badRequestf("start: %v", err)
	}
	end, err := parseBound(req.End)
	if err != nil {
		return nil, badRequestf("end: %v", err)
	}
	tf := opts.Data.Timeframe
	if tf.IsZero() {
		tf = market.Daily
	}
	return s.bars.LoadBars(ctx, req.Symbol, tf.Key, start, end)
}

func parseBound(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	return market.ParseTime(raw)
}
