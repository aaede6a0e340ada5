package pipeline

import (
	"sort"
	"strings"

	"stockwatch/internal/analysis/indicator"
	"stockwatch/internal/analysis/validate"
	"stockwatch/internal/backtest"
	"stockwatch/internal/config"
	"stockwatch/internal/market"
	"stockwatch/internal/performance"
	"stockwatch/internal/signal"
)

// Options 一次运行的全部参数，按值传递，运行期间不会被修改。
type Options struct {
	Data        validate.Options    `json:"-"`
	Resample    market.Timeframe    `json:"resample"`
	Indicators  indicator.Params    `json:"indicators"`
	Rules       signal.Rules        `json:"rules"`
	Profile     signal.Profile      `json:"profile"`
	Backtest    backtest.Config     `json:"backtest"`
	Performance performance.Options `json:"performance"`
	Horizons    []int               `json:"horizons"`

	// SkipBacktest 只跑到决策为止（analyze 模式）。
	SkipBacktest bool `json:"-"`
	// IncludeIndicators 在 Report 中输出逐日指标表。
	IncludeIndicators bool `json:"-"`
}

// DefaultOptions 日线、默认指标参数、moderate 档位、默认回测资金。
// Performance.PeriodsPerYear 为 0，运行时按周期推导。
func DefaultOptions() Options {
	profile, _ := signal.ResolveProfile(signal.ProfileModerate, nil)
	return Options{
		Data:        validate.DefaultOptions(),
		Indicators:  indicator.DefaultParams(),
		Rules:       signal.DefaultRules(),
		Profile:     profile,
		Backtest:    backtest.DefaultConfig(),
		Performance: performance.Options{RiskFreeRate: performance.DefaultRiskFreeRate},
		Horizons:    append([]int(nil), performance.DefaultHorizons...),
	}
}

// OptionsFromConfig 将配置文件映射为运行参数。profiles 为热加载的自定义档位，可为 nil。
func OptionsFromConfig(cfg *config.Config, profiles map[string]signal.Profile) (Options, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	opts := DefaultOptions()

	tf, err := market.ParseTimeframe(cfg.Data.Timeframe)
	if err != nil {
		return Options{}, config.Errorf("data.timeframe", "%v", err)
	}
	cal, err := market.NewCalendar(cfg.Data.Holidays)
	if err != nil {
		return Options{}, config.Errorf("data.holidays", "%v", err)
	}
	opts.Data = validate.Options{
		Timeframe:        tf,
		Calendar:         cal,
		OutlierThreshold: cfg.Data.OutlierThreshold,
		FillGaps:         cfg.Data.FillGaps,
	}
	if strings.TrimSpace(cfg.Data.Resample) != "" {
		target, err := market.ParseTimeframe(cfg.Data.Resample)
		if err != nil {
			return Options{}, config.Errorf("data.resample", "%v", err)
		}
		opts.Resample = target
	}

	ic := cfg.Indicators
	opts.Rules = signal.Rules{
		TrendWindows:  append([]int(nil), ic.TrendWindows...),
		RSIOversold:   ic.RSI.Oversold,
		RSIOverbought: ic.RSI.Overbought,
		KDJLow:        ic.KDJ.Low,
		KDJHigh:       ic.KDJ.High,
	}
	for _, pair := range ic.CrossPairs {
		if len(pair) != 2 {
			return Options{}, config.Errorf("indicators.cross_pairs", "each pair needs exactly two windows, got %v", pair)
		}
		opts.Rules.CrossPairs = append(opts.Rules.CrossPairs, signal.CrossPair{Short: pair[0], Long: pair[1]})
	}
	opts.Indicators = indicator.Params{
		MAWindows:  maWindows(ic.MAWindows, opts.Rules),
		MACDFast:   ic.MACD.Fast,
		MACDSlow:   ic.MACD.Slow,
		MACDSignal: ic.MACD.Signal,
		RSIPeriod:  ic.RSI.Period,
		BollPeriod: ic.Bollinger.Period,
		BollK:      ic.Bollinger.K,
		KDJPeriod:  ic.KDJ.Period,
		KDJM1:      ic.KDJ.M1,
		KDJM2:      ic.KDJ.M2,
		VolumeMA:   ic.VolumeMA,
	}

	profile, err := signal.ResolveProfile(cfg.Strategy.Profile, profiles)
	if err != nil {
		return Options{}, err
	}
	opts.Profile = profile

	bc := cfg.Backtest
	opts.Backtest = backtest.Config{
		InitialCapital:   bc.InitialCapital,
		CommissionRate:   bc.CommissionRate,
		MinLot:           bc.MinLot,
		PositionFraction: bc.PositionFraction,
		ScaleIn:          bc.ScaleIn,
		Execution:        backtest.Execution(bc.Execution),
		LiquidateAtEnd:   bc.LiquidateAtEnd,
	}
	opts.Performance = performance.Options{
		RiskFreeRate:   cfg.Performance.RiskFreeRate,
		PeriodsPerYear: cfg.Performance.PeriodsPerYear,
	}
	if len(cfg.Performance.Horizons) > 0 {
		opts.Horizons = append([]int(nil), cfg.Performance.Horizons...)
	}
	return opts, opts.Validate()
}

// Validate 在运行前一次性校验全部参数，避免在中途 stage 才失败。
func (o Options) Validate() error {
	if o.Data.OutlierThreshold <= 0 {
		return config.Errorf("data.outlier_threshold", "must be positive, got %g", o.Data.OutlierThreshold)
	}
	if err := o.Indicators.Validate(); err != nil {
		return err
	}
	if err := o.Rules.Validate(); err != nil {
		return err
	}
	if err := o.Profile.Validate(); err != nil {
		return err
	}
	if !o.SkipBacktest {
		if err := o.Backtest.Validate(); err != nil {
			return err
		}
	}
	if o.Performance.PeriodsPerYear < 0 {
		return config.Errorf("performance.periods_per_year", "must be >= 0, got %g", o.Performance.PeriodsPerYear)
	}
	return nil
}

// maWindows 合并配置的均线窗口与交叉、排列规则引用的窗口。
func maWindows(configured []int, rules signal.Rules) []int {
	seen := make(map[int]struct{})
	add := func(w int) { seen[w] = struct{}{} }
	for _, w := range configured {
		add(w)
	}
	for _, p := range rules.CrossPairs {
		add(p.Short)
		add(p.Long)
	}
	for _, w := range rules.TrendWindows {
		add(w)
	}
	out := make([]int, 0, len(seen))
	for w := range seen {
		out = append(out, w)
	}
	sort.Ints(out)
	return out
}
