package market

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// 交易日内分钟数，A 股 4 小时。
const tradingMinutesPerDay = 240

// Timeframe 描述 bar 周期及其年化所需的每年周期数。
type Timeframe struct {
	Key            string
	Duration       time.Duration
	PeriodsPerYear float64
	unit           periodUnit
}

type periodUnit int

const (
	unitIntraday periodUnit = iota
	unitDay
	unitWeek
	unitMonth
)

func intraday(key string, minutes int) Timeframe {
	return Timeframe{
		Key:            key,
		Duration:       time.Duration(minutes) * time.Minute,
		PeriodsPerYear: 252 * float64(tradingMinutesPerDay) / float64(minutes),
		unit:           unitIntraday,
	}
}

var (
	Daily   = Timeframe{Key: "1d", Duration: 24 * time.Hour, PeriodsPerYear: 252, unit: unitDay}
	Weekly  = Timeframe{Key: "1w", Duration: 7 * 24 * time.Hour, PeriodsPerYear: 52, unit: unitWeek}
	Monthly = Timeframe{Key: "1M", Duration: 30 * 24 * time.Hour, PeriodsPerYear: 12, unit: unitMonth}
)

var supportedTimeframes = map[string]Timeframe{
	"1m":  intraday("1m", 1),
	"5m":  intraday("5m", 5),
	"15m": intraday("15m", 15),
	"30m": intraday("30m", 30),
	"60m": intraday("60m", 60),
	"1d":  Daily,
	"1w":  Weekly,
	"1M":  Monthly,
}

// 大小写敏感：1m 是分钟，1M 是月。
var timeframeAliases = map[string]string{
	"1h":      "60m",
	"d":       "1d",
	"day":     "1d",
	"daily":   "1d",
	"w":       "1w",
	"week":    "1w",
	"weekly":  "1w",
	"1mo":     "1M",
	"month":   "1M",
	"monthly": "1M",
}

// ParseTimeframe 返回标准化周期定义，空字符串视为日线。
func ParseTimeframe(input string) (Timeframe, error) {
	key := strings.TrimSpace(input)
	if key == "" {
		return Daily, nil
	}
	if tf, ok := supportedTimeframes[key]; ok {
		return tf, nil
	}
	if alias, ok := timeframeAliases[strings.ToLower(key)]; ok {
		return supportedTimeframes[alias], nil
	}
	return Timeframe{}, fmt.Errorf("不支持的周期: %s", input)
}

// SupportedTimeframes 返回所有支持的 key（排序后）。
func SupportedTimeframes() []string {
	keys := make([]string, 0, len(supportedTimeframes))
	for k := range supportedTimeframes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (tf Timeframe) Intraday() bool { return tf.unit == unitIntraday }

func (tf Timeframe) IsZero() bool { return tf.Key == "" }

// Coarser 判断 other 是否比 tf 周期更长。
func (tf Timeframe) Coarser(other Timeframe) bool {
	if other.unit != tf.unit {
		return other.unit > tf.unit
	}
	return other.Duration > tf.Duration
}

// BucketStart 返回 t 所在 tf 周期桶的起点：周线按 ISO 周一，月线按自然月。
func (tf Timeframe) BucketStart(t time.Time) time.Time {
	switch tf.unit {
	case unitDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	case unitWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case unitMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	default:
		step := tf.Duration
		if step <= 0 {
			return t
		}
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		return day.Add(t.Sub(day).Truncate(step))
	}
}

func (tf Timeframe) String() string { return tf.Key }

func (tf Timeframe) MarshalJSON() ([]byte, error) {
	return json.Marshal(tf.Key)
}

func (tf *Timeframe) UnmarshalJSON(data []byte) error {
	var key string
	if err := json.Unmarshal(data, &key); err != nil {
		return err
	}
	if key == "" {
		*tf = Timeframe{}
		return nil
	}
	parsed, err := ParseTimeframe(key)
	if err != nil {
		return err
	}
	*tf = parsed
	return nil
}
