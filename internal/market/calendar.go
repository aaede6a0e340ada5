package market

import (
	"fmt"
	"strings"
	"time"
)

// Calendar 判定交易日：周末与配置的节假日休市。
type Calendar struct {
	holidays map[string]struct{}
}

// NewCalendar 解析 YYYY-MM-DD 格式的节假日列表。
func NewCalendar(holidays []string) (Calendar, error) {
	set := make(map[string]struct{}, len(holidays))
	for _, raw := range holidays {
		day := strings.TrimSpace(raw)
		if day == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", day); err != nil {
			return Calendar{}, fmt.Errorf("节假日格式错误 %q: %w", raw, err)
		}
		set[day] = struct{}{}
	}
	return Calendar{holidays: set}, nil
}

func (c Calendar) IsTradingDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, closed := c.holidays[t.Format("2006-01-02")]
	return !closed
}

// NextTradingDay 返回 t 之后的第一个交易日（保留时分秒）。
func (c Calendar) NextTradingDay(t time.Time) time.Time {
	next := t.AddDate(0, 0, 1)
	for !c.IsTradingDay(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Next 返回 prev 之后按周期应出现的下一根 bar 时间。
func (c Calendar) Next(tf Timeframe, prev time.Time) time.Time {
	switch tf.unit {
	case unitDay:
		return c.NextTradingDay(prev)
	case unitWeek:
		return prev.AddDate(0, 0, 7)
	case unitMonth:
		first := time.Date(prev.Year(), prev.Month()+1, 1, prev.Hour(), prev.Minute(), prev.Second(), 0, prev.Location())
		last := first.AddDate(0, 1, -1).Day()
		return first.AddDate(0, 0, min(prev.Day(), last)-1)
	default:
		return prev.Add(tf.Duration)
	}
}

// Missing 统计 prev 与 cur 之间缺失的周期数。
// 日内周期只在同一交易日内计算，跨日的隔夜间隔不算缺口。
func (c Calendar) Missing(tf Timeframe, prev, cur time.Time) int {
	if !cur.After(prev) {
		return 0
	}
	switch tf.unit {
	case unitDay:
		missing := 0
		end := dayOf(cur)
		for d := c.NextTradingDay(dayOf(prev)); d.Before(end); d = c.NextTradingDay(d) {
			missing++
		}
		return missing
	case unitWeek:
		return periodDiff(weekIndex(prev), weekIndex(cur))
	case unitMonth:
		return periodDiff(monthIndex(prev), monthIndex(cur))
	default:
		if !sameDay(prev, cur) || tf.Duration <= 0 {
			return 0
		}
		return periodDiff(0, int(cur.Sub(prev)/tf.Duration))
	}
}

func periodDiff(a, b int) int {
	if b-a <= 1 {
		return 0
	}
	return b - a - 1
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// weekIndex 以 1970-01-05（周一）为基准的周序号。
func weekIndex(t time.Time) int {
	base := time.Date(1970, 1, 5, 0, 0, 0, 0, time.UTC)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	days := int(day.Sub(base).Hours() / 24)
	if days < 0 {
		return (days - 6) / 7
	}
	return days / 7
}

func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}
