package pipeline

import (
	"context"

	"stockwatch/internal/market"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchLimit 批量模式默认并发数。
const DefaultBatchLimit = 4

// Job 批量模式中的单个标的。
type Job struct {
	Symbol string
	Bars   []market.Bar
}

// BatchResult 单个标的的运行结果，失败时 Report 为 nil。
type BatchResult struct {
	Symbol string  `json:"symbol"`
	Report *Report `json:"report,omitempty"`
	Error  string  `json:"error,omitempty"`

	Err error `json:"-"`
}

// RunBatch 并发评估互相独立的标的。单个标的失败不影响其他标的，
// 结果顺序与 jobs 一致；ctx 取消时尚未开始的标的记为 ctx 错误。
func (r *Runner) RunBatch(ctx context.Context, jobs []Job, opts Options, limit int) []BatchResult {
	if limit <= 0 {
		limit = DefaultBatchLimit
	}
	results := make([]BatchResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			results[i].Symbol = job.Symbol
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				results[i].Error = err.Error()
				return nil
			}
			if r.metrics != nil {
				r.metrics.BatchInFlight.Inc()
				defer r.metrics.BatchInFlight.Dec()
			}
			rep, err := r.Run(gctx, job.Symbol, job.Bars, opts)
			if err != nil {
				results[i].Err = err
				results[i].Error = err.Error()
				return nil
			}
			results[i].Symbol = rep.Symbol
			results[i].Report = &rep
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// RunBatch 使用不带指标的 Runner 执行批量评估。
func RunBatch(ctx context.Context, jobs []Job, opts Options, limit int) []BatchResult {
	return NewRunner(nil).RunBatch(ctx, jobs, opts, limit)
}
