package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stockwatch/internal/app"
	"stockwatch/internal/config"
	cfgloader "stockwatch/internal/config/loader"
	"stockwatch/internal/logger"
	"stockwatch/internal/market"
	"stockwatch/internal/pipeline"
	"stockwatch/internal/report"
	"stockwatch/internal/signal"
	"stockwatch/internal/store/barstore"
	"stockwatch/internal/store/runstore"
)

// runFlags 是 analyze/backtest/batch 共用的参数，非空时覆盖配置文件。
type runFlags struct {
	input     string
	symbol    string
	start     string
	end       string
	timeframe string
	resample  string
	profile   string
	format    string
}

func (f *runFlags) register(fs *flag.FlagSet, withInput bool) {
	if withInput {
		fs.StringVar(&f.input, "csv", "", "行情文件（.csv 或 .json）；为空时从行情库读取")
		fs.StringVar(&f.symbol, "symbol", "", "标的代码，默认取文件名")
		fs.StringVar(&f.start, "start", "", "行情库读取起点（含）")
		fs.StringVar(&f.end, "end", "", "行情库读取终点（含）")
	}
	fs.StringVar(&f.timeframe, "timeframe", "", "数据周期，如 1d、60m")
	fs.StringVar(&f.resample, "resample", "", "重采样目标周期，如 1w")
	fs.StringVar(&f.profile, "profile", "", "策略档位")
	fs.StringVar(&f.format, "format", "json", "输出格式 json|yaml")
}

func (f *runFlags) apply(cfg *config.Config) {
	if f.timeframe != "" {
		cfg.Data.Timeframe = f.timeframe
	}
	if f.resample != "" {
		cfg.Data.Resample = f.resample
	}
	if f.profile != "" {
		cfg.Strategy.Profile = f.profile
	}
}

// buildOptions 以配置为底构建运行参数；CLI 只读取一次档位文件，不做热加载。
func buildOptions(cfg *config.Config) (pipeline.Options, error) {
	var custom map[string]signal.Profile
	if path := strings.TrimSpace(cfg.Strategy.ProfilesPath); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return pipeline.Options{}, err
		}
		custom, err = cfgloader.ParseProfiles(raw)
		if err != nil {
			return pipeline.Options{}, err
		}
	}
	return pipeline.OptionsFromConfig(cfg, custom)
}

func symbolFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func readBarsFile(path string) ([]market.Bar, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return market.DecodeJSON(raw)
	}
	return market.ReadCSVFile(path)
}

// loadBars 读取文件或行情库，返回标的代码与 bar。
func (f *runFlags) loadBars(ctx context.Context, cfg *config.Config, tf market.Timeframe) (string, []market.Bar, error) {
	symbol := f.symbol
	if f.input != "" {
		if symbol == "" {
			symbol = symbolFromPath(f.input)
		}
		bars, err := readBarsFile(f.input)
		return symbol, bars, err
	}
	if symbol == "" {
		return "", nil, fmt.Errorf("需要 -csv 或 -symbol")
	}
	var start, end time.Time
	var err error
	if f.start != "" {
		if start, err = market.ParseTime(f.start); err != nil {
			return "", nil, err
		}
	}
	if f.end != "" {
		if end, err = market.ParseTime(f.end); err != nil {
			return "", nil, err
		}
	}
	st, err := barstore.Open(cfg.Store.BarsPath)
	if err != nil {
		return "", nil, err
	}
	defer st.Close()
	bars, err := st.LoadBars(ctx, symbol, tf.Key, start, end)
	return symbol, bars, err
}

func cmdAnalyze(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	var rf runFlags
	rf.register(fs, true)
	withIndicators := fs.Bool("indicators", false, "输出逐日指标表")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rf.apply(cfg)
	opts, err := buildOptions(cfg)
	if err != nil {
		return err
	}
	opts.SkipBacktest = true
	opts.IncludeIndicators = *withIndicators

	symbol, bars, err := rf.loadBars(ctx, cfg, opts.Data.Timeframe)
	if err != nil {
		return err
	}
	rep, err := pipeline.Run(ctx, symbol, bars, opts)
	if err != nil {
		return err
	}
	return writeOutput(stdout, rf.format, rep)
}

func cmdBacktest(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("backtest", flag.ContinueOnError)
	var rf runFlags
	rf.register(fs, true)
	capital := fs.Float64("capital", cfg.Backtest.InitialCapital, "初始资金")
	commission := fs.Float64("commission", cfg.Backtest.CommissionRate, "佣金费率")
	execution := fs.String("execution", cfg.Backtest.Execution, "成交时点 same_close|next_open")
	liquidate := fs.Bool("liquidate", cfg.Backtest.LiquidateAtEnd, "期末强制平仓")
	save := fs.Bool("save", false, "保存到回测记录库")
	htmlReport := fs.Bool("report", false, "生成 HTML 报告到 report.dir")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rf.apply(cfg)
	cfg.Backtest.InitialCapital = *capital
	cfg.Backtest.CommissionRate = *commission
	cfg.Backtest.Execution = *execution
	cfg.Backtest.LiquidateAtEnd = *liquidate
	opts, err := buildOptions(cfg)
	if err != nil {
		return err
	}

	symbol, bars, err := rf.loadBars(ctx, cfg, opts.Data.Timeframe)
	if err != nil {
		return err
	}
	rep, err := pipeline.Run(ctx, symbol, bars, opts)
	if err != nil {
		return err
	}
	log := logger.With("symbol", rep.Symbol)
	if *save {
		st, err := runstore.Open(cfg.Store.RunsPath)
		if err != nil {
			return err
		}
		defer st.Close()
		summary, err := st.Save(ctx, rep, opts)
		if err != nil {
			return err
		}
		log.Info("backtest saved", "run_id", summary.ID, "config_hash", summary.ConfigHash)
	}
	if *htmlReport {
		path, err := report.WriteFile(cfg.Report.Dir, rep)
		if err != nil {
			return err
		}
		log.Info("report written", "path", path)
	}
	return writeOutput(stdout, rf.format, rep)
}

func cmdBatch(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	var rf runFlags
	rf.register(fs, false)
	limit := fs.Int("limit", pipeline.DefaultBatchLimit, "并发数")
	analyzeOnly := fs.Bool("analyze", false, "只生成决策，不回测")
	if err := fs.Parse(args); err != nil {
		return err
	}
	files := fs.Args()
	if len(files) == 0 {
		return fmt.Errorf("batch 需要至少一个行情文件")
	}
	rf.apply(cfg)
	opts, err := buildOptions(cfg)
	if err != nil {
		return err
	}
	opts.SkipBacktest = *analyzeOnly

	jobs := make([]pipeline.Job, 0, len(files))
	for _, path := range files {
		bars, err := readBarsFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		jobs = append(jobs, pipeline.Job{Symbol: symbolFromPath(path), Bars: bars})
	}
	results := pipeline.RunBatch(ctx, jobs, opts, *limit)
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			logger.With("symbol", r.Symbol).Warn("batch item failed", "error", r.Err)
		}
	}
	logger.Infof("batch done: %d ok, %d failed", len(results)-failed, failed)
	return writeOutput(stdout, rf.format, results)
}

func cmdImport(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	path := fs.String("csv", "", "行情文件（.csv 或 .json）")
	symbol := fs.String("symbol", "", "标的代码，默认取文件名")
	timeframe := fs.String("timeframe", cfg.Data.Timeframe, "数据周期")
	format := fs.String("format", "json", "输出格式 json|yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("import 需要 -csv")
	}
	tf, err := market.ParseTimeframe(*timeframe)
	if err != nil {
		return err
	}
	sym := *symbol
	if sym == "" {
		sym = symbolFromPath(*path)
	}
	bars, err := readBarsFile(*path)
	if err != nil {
		return err
	}
	st, err := barstore.Open(cfg.Store.BarsPath)
	if err != nil {
		return err
	}
	defer st.Close()
	n, err := st.InsertBars(ctx, sym, tf.Key, bars)
	if err != nil {
		return err
	}
	manifest, err := st.Manifest(ctx, sym, tf.Key)
	if err != nil {
		return err
	}
	logger.With("symbol", manifest.Symbol).Info("bars imported", "rows", n, "timeframe", tf.Key)
	return writeOutput(stdout, *format, manifest)
}

func cmdServe(ctx context.Context, cfg *config.Config, args []string, _ io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", cfg.App.HTTPAddr, "监听地址")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.App.HTTPAddr = *addr
	a, err := app.NewApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Run(ctx)
}
