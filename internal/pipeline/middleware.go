package pipeline

import (
	"context"
	"time"
)

// Middleware 描述一个分析步骤。
type Middleware interface {
	Meta() MiddlewareMeta
	Handle(ctx context.Context, ac *AnalysisContext) error
}

// MiddlewareMeta 提供调度所需元信息。Stage 小的先执行，同一 Stage 并发执行。
type MiddlewareMeta struct {
	Name     string
	Stage    int
	Critical bool
	Timeout  time.Duration
}

// MiddlewareError 封装中间件的失败信息，Unwrap 保留原始错误类型。
type MiddlewareError struct {
	Middleware string
	Stage      int
	Critical   bool
	Err        error
}

func (e *MiddlewareError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Middleware
	}
	return e.Middleware + ": " + e.Err.Error()
}

func (e *MiddlewareError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// stageFunc 把一个纯函数步骤包装成 Middleware。
type stageFunc struct {
	meta MiddlewareMeta
	fn   func(ctx context.Context, ac *AnalysisContext) error
}

func (s stageFunc) Meta() MiddlewareMeta { return s.meta }

func (s stageFunc) Handle(ctx context.Context, ac *AnalysisContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.fn(ctx, ac)
}
