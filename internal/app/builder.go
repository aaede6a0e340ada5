package app

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"stockwatch/internal/config"
	cfgloader "stockwatch/internal/config/loader"
	"stockwatch/internal/logger"
	"stockwatch/internal/metrics"
	"stockwatch/internal/pipeline"
	"stockwatch/internal/signal"
	"stockwatch/internal/store/barstore"
	"stockwatch/internal/store/runstore"
	backtesthttp "stockwatch/internal/transport/http/backtest"
)

// staticProfiles 未配置档位文件时只使用内置档位。
type staticProfiles map[string]signal.Profile

func (p staticProfiles) Profiles() map[string]signal.Profile { return p }

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func provideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.NewMetrics(reg)
}

// provideProfiles 配置了 profiles_path 时启用热加载，否则退化为内置档位。
func provideProfiles(cfg *config.Config) (backtesthttp.ProfileSource, error) {
	path := strings.TrimSpace(cfg.Strategy.ProfilesPath)
	if path == "" {
		return staticProfiles{}, nil
	}
	loader, err := cfgloader.NewProfileLoader(path)
	if err != nil {
		return nil, fmt.Errorf("加载策略档位失败: %w", err)
	}
	loader.Subscribe(func(snap cfgloader.ProfileSnapshot) {
		logger.Infof("✓ 策略档位 v%d: %v", snap.Version, signal.ProfileNames(snap.Profiles))
	})
	return loader, nil
}

func provideBaseOptions(cfg *config.Config, profiles backtesthttp.ProfileSource) (pipeline.Options, error) {
	return pipeline.OptionsFromConfig(cfg, profiles.Profiles())
}

func provideRunner(m *metrics.Metrics) *pipeline.Runner {
	return pipeline.NewRunner(m)
}

func provideBarStore(cfg *config.Config) (*barstore.Store, func(), error) {
	st, err := barstore.Open(cfg.Store.BarsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("打开行情库失败: %w", err)
	}
	return st, func() { _ = st.Close() }, nil
}

func provideRunStore(cfg *config.Config) (*runstore.Store, func(), error) {
	st, err := runstore.Open(cfg.Store.RunsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("打开回测记录库失败: %w", err)
	}
	return st, func() { _ = st.Close() }, nil
}

func provideServer(
	cfg *config.Config,
	base pipeline.Options,
	runner *pipeline.Runner,
	runs *runstore.Store,
	bars *barstore.Store,
	profiles backtesthttp.ProfileSource,
	m *metrics.Metrics,
	reg *prometheus.Registry,
) (*backtesthttp.Server, error) {
	return backtesthttp.NewServer(backtesthttp.Config{
		Addr:     cfg.App.HTTPAddr,
		Base:     base,
		Runner:   runner,
		Runs:     runs,
		Bars:     bars,
		Profiles: profiles,
		Metrics:  m,
		Gatherer: reg,
	})
}

func provideApp(cfg *config.Config, server *backtesthttp.Server, base pipeline.Options, profiles backtesthttp.ProfileSource) *App {
	return &App{
		cfg:     cfg,
		server:  server,
		Summary: newStartupSummary(cfg, base, profiles),
	}
}
