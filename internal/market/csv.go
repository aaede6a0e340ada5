package market

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

var csvHeaderAliases = map[string]string{
	"date":       "date",
	"time":       "date",
	"datetime":   "date",
	"timestamp":  "date",
	"trade_date": "date",
	"日期":         "date",
	"open":       "open",
	"开盘":         "open",
	"high":       "high",
	"最高":         "high",
	"low":        "low",
	"最低":         "low",
	"close":      "close",
	"收盘":         "close",
	"volume":     "volume",
	"vol":        "volume",
	"成交量":        "volume",
}

var requiredColumns = []string{"date", "open", "high", "low", "close", "volume"}

// ReadCSVFile 读取本地 CSV 行情文件。
func ReadCSVFile(path string) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	bars, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars, nil
}

// ReadCSV 解析带表头的 OHLCV CSV；列顺序不限，表头支持常见别名。
// 这里只做格式解析，数值合法性由 validate 包负责。
func ReadCSV(r io.Reader) ([]Bar, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("csv 内容为空")
		}
		return nil, err
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if canon, ok := csvHeaderAliases[key]; ok {
			if _, dup := cols[canon]; !dup {
				cols[canon] = i
			}
		}
	}
	for _, col := range requiredColumns {
		if _, ok := cols[col]; !ok {
			return nil, fmt.Errorf("csv 缺少列: %s", col)
		}
	}
	var bars []Bar
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, err
		}
		bar, err := parseCSVRecord(record, cols)
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", line, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseCSVRecord(record []string, cols map[string]int) (Bar, error) {
	field := func(name string) string {
		idx := cols[name]
		if idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}
	ts, err := ParseTime(field("date"))
	if err != nil {
		return Bar{}, err
	}
	var nums [5]float64
	for i, name := range requiredColumns[1:] {
		raw := field(name)
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Bar{}, fmt.Errorf("%s 非数值: %q", name, raw)
		}
		nums[i] = v
	}
	return Bar{Time: ts, Open: nums[0], High: nums[1], Low: nums[2], Close: nums[3], Volume: nums[4]}, nil
}

var timeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02",
	"20060102",
	time.RFC3339,
}

// ParseTime 支持日期文本、RFC3339 与秒/毫秒级 Unix 时间戳。
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("时间为空")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return unixTime(n), nil
	}
	return time.Time{}, fmt.Errorf("无法识别的时间格式: %q", raw)
}

func unixTime(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
