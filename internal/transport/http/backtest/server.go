package backtesthttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stockwatch/internal/analysis/validate"
	"stockwatch/internal/config"
	"stockwatch/internal/logger"
	"stockwatch/internal/market"
	"stockwatch/internal/metrics"
	"stockwatch/internal/pipeline"
	"stockwatch/internal/report"
	"stockwatch/internal/signal"
	"stockwatch/internal/store/barstore"
	"stockwatch/internal/store/runstore"
)

// RunRepository 回测记录的持久化。
type RunRepository interface {
	Save(ctx context.Context, rep pipeline.Report, opts pipeline.Options) (runstore.Summary, error)
	Get(ctx context.Context, id string) (runstore.Run, error)
	List(ctx context.Context, f runstore.Filter) ([]runstore.Summary, error)
	Delete(ctx context.Context, id string) error
}

// BarRepository 已入库的行情。
type BarRepository interface {
	LoadBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]market.Bar, error)
	ListManifests(ctx context.Context) ([]barstore.Manifest, error)
}

// ProfileSource 提供当前生效的自定义档位，热加载器实现该接口。
type ProfileSource interface {
	Profiles() map[string]signal.Profile
}

// Server 提供分析与回测相关的 HTTP API。
type Server struct {
	addr     string
	base     pipeline.Options
	runner   *pipeline.Runner
	runs     RunRepository
	bars     BarRepository
	profiles ProfileSource
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	router   *gin.Engine
}

// Config 描述 HTTP Server 的依赖。Runs、Bars、Profiles 可为空，对应接口返回 503 或退化为内置档位。
type Config struct {
	Addr     string
	Base     pipeline.Options
	Runner   *pipeline.Runner
	Runs     RunRepository
	Bars     BarRepository
	Profiles ProfileSource
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// NewServer 构建 HTTP Server。
func NewServer(cfg Config) (*Server, error) {
	if cfg.Runner == nil {
		return nil, errors.New("runner 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9992"
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:     cfg.Addr,
		base:     cfg.Base,
		runner:   cfg.Runner,
		runs:     cfg.Runs,
		bars:     cfg.Bars,
		profiles: cfg.Profiles,
		metrics:  cfg.Metrics,
		gatherer: cfg.Gatherer,
		router:   router,
	}
	router.Use(s.observe)
	s.registerRoutes()
	return s, nil
}

// Handler 暴露底层路由，便于 httptest 直接驱动。
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := s.router.Group("/api")
	api.GET("/profiles", s.handleProfiles)
	api.GET("/data", s.handleManifests)
	api.POST("/analyze", s.handleAnalyze)
	api.POST("/backtest", s.handleBacktest)
	api.POST("/batch", s.handleBatch)
	api.GET("/runs", s.handleRunList)
	api.GET("/runs/:id", s.handleRunDetail)
	api.DELETE("/runs/:id", s.handleRunDelete)
	api.GET("/runs/:id/report", s.handleRunReport)
}

// observe 按路由模板统计请求数与耗时。
func (s *Server) observe(c *gin.Context) {
	started := time.Now()
	c.Next()
	if s.metrics == nil {
		return
	}
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	s.metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(started).Seconds())
}

func (s *Server) handleProfiles(c *gin.Context) {
	overrides := s.customProfiles()
	names := signal.ProfileNames(overrides)
	out := make([]signal.Profile, 0, len(names))
	for _, name := range names {
		p, err := signal.ResolveProfile(name, overrides)
		if err != nil {
			writeError(c, err)
			return
		}
		out = append(out, p)
	}
	c.JSON(http.StatusOK, gin.H{"profiles": out})
}

func (s *Server) handleManifests(c *gin.Context) {
	if s.bars == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "行情存储未启用"})
		return
	}
	list, err := s.bars.ListManifests(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"manifests": list})
}

func (s *Server) handleAnalyze(c *gin.Context) {
	s.handleRun(c, true)
}

func (s *Server) handleBacktest(c *gin.Context) {
	s.handleRun(c, false)
}

func (s *Server) handleRun(c *gin.Context, analyzeOnly bool) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	opts, err := s.options(req.Params)
	if err != nil {
		writeError(c, err)
		return
	}
	opts.SkipBacktest = analyzeOnly
	opts.IncludeIndicators = req.IncludeIndicators

	bars, err := s.loadBars(ctx, req, opts)
	if err != nil {
		writeError(c, err)
		return
	}
	rep, err := s.runner.Run(ctx, req.Symbol, bars, opts)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{"report": rep}
	if req.Save && !analyzeOnly {
		if s.runs == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
			return
		}
		summary, err := s.runs.Save(ctx, rep, opts)
		if err != nil {
			writeError(c, err)
			return
		}
		logger.With("symbol", rep.Symbol, "run_id", summary.ID).Info("backtest saved")
		resp["run"] = summary
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	opts, err := s.options(req.Params)
	if err != nil {
		writeError(c, err)
		return
	}
	opts.SkipBacktest = req.AnalyzeOnly
	jobs := make([]pipeline.Job, 0, len(req.Jobs))
	for i, j := range req.Jobs {
		bars, err := market.DecodeJSON(j.Bars)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("jobs[%d] %s: %v", i, j.Symbol, err)})
			return
		}
		jobs = append(jobs, pipeline.Job{Symbol: j.Symbol, Bars: bars})
	}
	results := s.runner.RunBatch(c.Request.Context(), jobs, opts, req.Limit)
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleRunList(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.runs.List(c.Request.Context(), runstore.Filter{
		Symbol:     c.Query("symbol"),
		ConfigHash: c.Query("config_hash"),
		Limit:      limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleRunDetail(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	run, err := s.runs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *Server) handleRunDelete(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	if err := s.runs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleRunReport(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	run, err := s.runs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	rep := run.Report
	if err := report.Hydrate(&rep, run.Options.Indicators); err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := report.Render(c.Writer, rep); err != nil {
		logger.Warnf("渲染报告 %s 失败: %v", run.ID, err)
	}
}

func (s *Server) customProfiles() map[string]signal.Profile {
	if s.profiles == nil {
		return nil
	}
	return s.profiles.Profiles()
}

// writeError 把领域错误映射为状态码：数据校验 422，参数 400，不存在 404。
func writeError(c *gin.Context, err error) {
	var (
		verr *validate.ValidationError
		cerr *config.Error
		berr *badRequest
	)
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &verr):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &cerr), errors.As(err, &berr):
		status = http.StatusBadRequest
	case errors.Is(err, runstore.ErrNotFound), errors.Is(err, barstore.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("HTTP 服务监听 %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
