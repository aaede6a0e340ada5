package config

import "strings"

// 默认值常量
const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAppLogFormat     = "text"
	defaultAppHTTPAddr      = ":9992"
	defaultDataTimeframe    = "1d"
	defaultOutlierThreshold = 0.20
	defaultMACDFast         = 12
	defaultMACDSlow         = 26
	defaultMACDSignal       = 9
	defaultRSIPeriod        = 14
	defaultRSIOversold      = 30
	defaultRSIOverbought    = 70
	defaultBollPeriod       = 20
	defaultBollK            = 2.0
	defaultKDJPeriod        = 9
	defaultKDJSmooth        = 3
	defaultKDJLow           = 20
	defaultKDJHigh          = 80
	defaultVolumeMA         = 20
	defaultStrategyProfile  = "moderate"
	defaultInitialCapital   = 100000
	defaultCommissionRate   = 0.001
	defaultMinLot           = 1
	defaultPositionFraction = 1.0
	defaultExecution        = "same_close"
	defaultRiskFreeRate     = 0.02
	defaultBarsPath         = "data/bars.db"
	defaultRunsPath         = "data/runs.db"
	defaultReportDir        = "data/reports"
)

var (
	defaultMAWindows    = []int{5, 10, 20, 60}
	defaultCrossPairs   = [][]int{{5, 10}, {5, 20}}
	defaultTrendWindows = []int{5, 10, 20}
	defaultHorizons     = []int{1, 3, 5, 10, 20}
)

// Default 返回全部默认值，等价于加载一个空配置文件。
func Default() *Config {
	var cfg Config
	cfg.applyDefaults(make(keySet))
	return &cfg
}

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Data.applyDefaults(keys)
	c.Indicators.applyDefaults(keys)
	c.Strategy.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
	c.Performance.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Report.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (d *DataConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("data.timeframe", &d.Timeframe, defaultDataTimeframe),
		floatFieldDefault("data.outlier_threshold", &d.OutlierThreshold, defaultOutlierThreshold),
		boolFieldDefault("data.fill_gaps", &d.FillGaps, true),
	)
	d.Resample = strings.TrimSpace(d.Resample)
}

func (i *IndicatorConfig) applyDefaults(keys keySet) {
	if i == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "indicators.ma_windows",
			need:  func() bool { return len(i.MAWindows) == 0 },
			apply: func() { i.MAWindows = append([]int(nil), defaultMAWindows...) },
		},
		fieldDefault{
			key:  "indicators.cross_pairs",
			need: func() bool { return len(i.CrossPairs) == 0 },
			apply: func() {
				i.CrossPairs = make([][]int, len(defaultCrossPairs))
				for idx, p := range defaultCrossPairs {
					i.CrossPairs[idx] = append([]int(nil), p...)
				}
			},
		},
		fieldDefault{
			key:   "indicators.trend_windows",
			need:  func() bool { return len(i.TrendWindows) == 0 },
			apply: func() { i.TrendWindows = append([]int(nil), defaultTrendWindows...) },
		},
		intFieldDefault("indicators.macd.fast", &i.MACD.Fast, defaultMACDFast),
		intFieldDefault("indicators.macd.slow", &i.MACD.Slow, defaultMACDSlow),
		intFieldDefault("indicators.macd.signal", &i.MACD.Signal, defaultMACDSignal),
		intFieldDefault("indicators.rsi.period", &i.RSI.Period, defaultRSIPeriod),
		floatFieldDefault("indicators.rsi.oversold", &i.RSI.Oversold, defaultRSIOversold),
		floatFieldDefault("indicators.rsi.overbought", &i.RSI.Overbought, defaultRSIOverbought),
		intFieldDefault("indicators.bollinger.period", &i.Bollinger.Period, defaultBollPeriod),
		floatFieldDefault("indicators.bollinger.k", &i.Bollinger.K, defaultBollK),
		intFieldDefault("indicators.kdj.period", &i.KDJ.Period, defaultKDJPeriod),
		intFieldDefault("indicators.kdj.m1", &i.KDJ.M1, defaultKDJSmooth),
		intFieldDefault("indicators.kdj.m2", &i.KDJ.M2, defaultKDJSmooth),
		floatFieldDefault("indicators.kdj.low", &i.KDJ.Low, defaultKDJLow),
		floatFieldDefault("indicators.kdj.high", &i.KDJ.High, defaultKDJHigh),
		intFieldDefault("indicators.volume_ma", &i.VolumeMA, defaultVolumeMA),
	)
}

func (s *StrategyConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("strategy.profile", &s.Profile, defaultStrategyProfile),
	)
	s.Profile = strings.ToLower(strings.TrimSpace(s.Profile))
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("backtest.initial_capital", &b.InitialCapital, defaultInitialCapital),
		fieldDefault{
			key:   "backtest.commission_rate",
			need:  func() bool { return b.CommissionRate == 0 },
			apply: func() { b.CommissionRate = defaultCommissionRate },
		},
		fieldDefault{
			key:   "backtest.min_lot",
			need:  func() bool { return b.MinLot <= 0 },
			apply: func() { b.MinLot = defaultMinLot },
		},
		floatFieldDefault("backtest.position_fraction", &b.PositionFraction, defaultPositionFraction),
		stringFieldDefault("backtest.execution", &b.Execution, defaultExecution),
	)
	b.Execution = strings.ToLower(strings.TrimSpace(b.Execution))
}

func (p *PerformanceConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "performance.risk_free_rate",
			need:  func() bool { return p.RiskFreeRate == 0 },
			apply: func() { p.RiskFreeRate = defaultRiskFreeRate },
		},
		fieldDefault{
			key:   "performance.horizons",
			need:  func() bool { return len(p.Horizons) == 0 },
			apply: func() { p.Horizons = append([]int(nil), defaultHorizons...) },
		},
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.bars_path", &s.BarsPath, defaultBarsPath),
		stringFieldDefault("store.runs_path", &s.RunsPath, defaultRunsPath),
	)
}

func (r *ReportConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("report.dir", &r.Dir, defaultReportDir),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
