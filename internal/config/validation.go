package config

import (
	"strings"
	"time"
)

// validate 对配置进行基础校验；指标与回测参数的细节校验在各自包内完成。
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Data.validate(); err != nil {
		return err
	}
	if err := c.Indicators.validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	if err := c.Performance.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(a.LogFormat)) {
	case "text", "json":
	default:
		return Errorf("app.log_format", "must be text or json, got %q", a.LogFormat)
	}
	return nil
}

func (d *DataConfig) validate() error {
	if d.OutlierThreshold <= 0 {
		return Errorf("data.outlier_threshold", "must be positive, got %g", d.OutlierThreshold)
	}
	for _, h := range d.Holidays {
		if _, err := time.Parse("2006-01-02", strings.TrimSpace(h)); err != nil {
			return Errorf("data.holidays", "invalid date %q", h)
		}
	}
	return nil
}

func (i *IndicatorConfig) validate() error {
	for _, pair := range i.CrossPairs {
		if len(pair) != 2 {
			return Errorf("indicators.cross_pairs", "each pair needs exactly two windows, got %v", pair)
		}
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if b.InitialCapital <= 0 {
		return Errorf("backtest.initial_capital", "must be positive, got %g", b.InitialCapital)
	}
	if b.CommissionRate < 0 || b.CommissionRate >= 1 {
		return Errorf("backtest.commission_rate", "must be within [0,1), got %g", b.CommissionRate)
	}
	switch b.Execution {
	case "same_close", "next_open":
	default:
		return Errorf("backtest.execution", "unknown policy %q", b.Execution)
	}
	return nil
}

func (p *PerformanceConfig) validate() error {
	if p.PeriodsPerYear < 0 {
		return Errorf("performance.periods_per_year", "must be >= 0, got %g", p.PeriodsPerYear)
	}
	for _, h := range p.Horizons {
		if h <= 0 {
			return Errorf("performance.horizons", "horizon must be positive, got %d", h)
		}
	}
	return nil
}
