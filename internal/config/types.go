package config

import "strings"

// Config 是 stockwatch 的主配置载体。
type Config struct {
	App         AppConfig         `toml:"app"`
	Data        DataConfig        `toml:"data"`
	Indicators  IndicatorConfig   `toml:"indicators"`
	Strategy    StrategyConfig    `toml:"strategy"`
	Backtest    BacktestConfig    `toml:"backtest"`
	Performance PerformanceConfig `toml:"performance"`
	Store       StoreConfig       `toml:"store"`
	Report      ReportConfig      `toml:"report"`
}

type AppConfig struct {
	Env       string `toml:"env"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	HTTPAddr  string `toml:"http_addr"`
}

// DataConfig 控制行情校验与重采样。
type DataConfig struct {
	Timeframe        string   `toml:"timeframe"`
	OutlierThreshold float64  `toml:"outlier_threshold"`
	FillGaps         bool     `toml:"fill_gaps"`
	Resample         string   `toml:"resample"` // 为空表示不重采样
	Holidays         []string `toml:"holidays"` // YYYY-MM-DD
}

type IndicatorConfig struct {
	MAWindows    []int           `toml:"ma_windows"`
	CrossPairs   [][]int         `toml:"cross_pairs"`
	TrendWindows []int           `toml:"trend_windows"`
	MACD         MACDConfig      `toml:"macd"`
	RSI          RSIConfig       `toml:"rsi"`
	Bollinger    BollingerConfig `toml:"bollinger"`
	KDJ          KDJConfig       `toml:"kdj"`
	VolumeMA     int             `toml:"volume_ma"`
}

type MACDConfig struct {
	Fast   int `toml:"fast"`
	Slow   int `toml:"slow"`
	Signal int `toml:"signal"`
}

type RSIConfig struct {
	Period     int     `toml:"period"`
	Oversold   float64 `toml:"oversold"`
	Overbought float64 `toml:"overbought"`
}

type BollingerConfig struct {
	Period int     `toml:"period"`
	K      float64 `toml:"k"`
}

type KDJConfig struct {
	Period int     `toml:"period"`
	M1     int     `toml:"m1"`
	M2     int     `toml:"m2"`
	Low    float64 `toml:"low"`
	High   float64 `toml:"high"`
}

// StrategyConfig 选择聚合档位；ProfilesPath 指向可热加载的档位 YAML。
type StrategyConfig struct {
	Profile      string `toml:"profile"`
	ProfilesPath string `toml:"profiles_path"`
}

type BacktestConfig struct {
	InitialCapital   float64 `toml:"initial_capital"`
	CommissionRate   float64 `toml:"commission_rate"`
	MinLot           int64   `toml:"min_lot"`
	PositionFraction float64 `toml:"position_fraction"`
	ScaleIn          bool    `toml:"scale_in"`
	Execution        string  `toml:"execution"` // same_close | next_open
	LiquidateAtEnd   bool    `toml:"liquidate_at_end"`
}

type PerformanceConfig struct {
	RiskFreeRate float64 `toml:"risk_free_rate"`
	// PeriodsPerYear 为 0 时按周期推导。
	PeriodsPerYear float64 `toml:"periods_per_year"`
	Horizons       []int   `toml:"horizons"`
}

type StoreConfig struct {
	BarsPath string `toml:"bars_path"`
	RunsPath string `toml:"runs_path"`
}

type ReportConfig struct {
	Dir string `toml:"dir"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
