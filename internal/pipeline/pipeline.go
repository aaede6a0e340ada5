package pipeline

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"stockwatch/internal/logger"
	"stockwatch/internal/metrics"

	"golang.org/x/sync/errgroup"
)

// Pipeline 按 stage 顺序调度中间件：stage 之间串行，同一 stage 内并发。
type Pipeline struct {
	name    string
	stages  [][]Middleware
	metrics *metrics.Metrics
}

func New(name string, middlewares ...Middleware) *Pipeline {
	byStage := make(map[int][]Middleware)
	for _, mw := range middlewares {
		if mw != nil {
			st := mw.Meta().Stage
			byStage[st] = append(byStage[st], mw)
		}
	}
	p := &Pipeline{name: name}
	for _, st := range slices.Sorted(maps.Keys(byStage)) {
		p.stages = append(p.stages, byStage[st])
	}
	return p
}

// WithMetrics 为 stage 失败计数挂上 Prometheus 指标，m 可为 nil。
func (p *Pipeline) WithMetrics(m *metrics.Metrics) *Pipeline {
	p.metrics = m
	return p
}

// Run 依次执行各 stage。关键中间件失败立即返回，非关键失败记为 warning。
func (p *Pipeline) Run(ctx context.Context, ac *AnalysisContext) error {
	if ac == nil {
		return fmt.Errorf("nil analysis context")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.runStage(ctx, ac, stage); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) runStage(ctx context.Context, ac *AnalysisContext, stage []Middleware) error {
	group, stageCtx := errgroup.WithContext(ctx)
	var (
		mu    sync.Mutex
		warns []*MiddlewareError
	)
	for _, mw := range stage {
		group.Go(func() error {
			mErr := p.invoke(stageCtx, ac, mw)
			if mErr == nil {
				return nil
			}
			if mErr.Critical {
				return mErr
			}
			mu.Lock()
			warns = append(warns, mErr)
			mu.Unlock()
			return nil
		})
	}
	err := group.Wait()
	for _, w := range warns {
		ac.AddWarning(w.Error())
		logger.Warnf("[pipeline] %s %s %s", p.name, ac.Symbol, w.Error())
	}
	return err
}

// invoke 执行单个中间件，超时只作用于它自己。
func (p *Pipeline) invoke(ctx context.Context, ac *AnalysisContext, mw Middleware) *MiddlewareError {
	meta := mw.Meta()
	if meta.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, meta.Timeout)
		defer cancel()
	}
	err := mw.Handle(ctx, ac)
	if err == nil {
		return nil
	}
	if p.metrics != nil {
		p.metrics.StageErrors.WithLabelValues(meta.Name).Inc()
	}
	return &MiddlewareError{Middleware: meta.Name, Stage: meta.Stage, Critical: meta.Critical, Err: err}
}
