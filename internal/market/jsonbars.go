package market

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// 行情 JSON 可以是裸数组，也可以包在 data/bars/klines/items 字段里。
var barArrayPaths = []string{"data", "bars", "klines", "items", "data.bars", "data.klines"}

var barFieldAliases = map[string][]string{
	"date":   {"date", "time", "timestamp", "trade_date", "day", "t"},
	"open":   {"open", "o"},
	"high":   {"high", "h"},
	"low":    {"low", "l"},
	"close":  {"close", "c"},
	"volume": {"volume", "vol", "v"},
}

// 数组行按 [time, open, high, low, close, volume] 解析。
var barRowIndex = map[string]int{"date": 0, "open": 1, "high": 2, "low": 3, "close": 4, "volume": 5}

func numericOrString() map[string]any {
	return map[string]any{"type": []any{"number", "string"}}
}

func barSchemaDoc() map[string]any {
	dateVariants := make([]any, 0, len(barFieldAliases["date"]))
	for _, name := range barFieldAliases["date"] {
		dateVariants = append(dateVariants, map[string]any{"required": []any{name}})
	}
	return map[string]any{
		"type":     "array",
		"minItems": 1,
		"items": map[string]any{
			"oneOf": []any{
				map[string]any{
					"type":  "object",
					"anyOf": dateVariants,
				},
				map[string]any{
					"type":     "array",
					"minItems": 6,
					"items":    numericOrString(),
				},
			},
		},
	}
}

var (
	barSchemaOnce sync.Once
	barSchema     *jsonschema.Schema
	barSchemaErr  error
)

func compiledBarSchema() (*jsonschema.Schema, error) {
	barSchemaOnce.Do(func() {
		raw, err := json.Marshal(barSchemaDoc())
		if err != nil {
			barSchemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("bars.json", strings.NewReader(string(raw))); err != nil {
			barSchemaErr = err
			return
		}
		barSchema, barSchemaErr = compiler.Compile("bars.json")
	})
	return barSchema, barSchemaErr
}

// DecodeJSON 解析数据提供方返回的行情 JSON。
// 先做结构校验，再用 gjson 按字段别名提取数值。
func DecodeJSON(raw []byte) ([]Bar, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, fmt.Errorf("json 内容为空")
	}
	if !gjson.Valid(text) {
		return nil, fmt.Errorf("json 格式无效")
	}
	arr := locateBarArray(gjson.Parse(text))
	if !arr.Exists() {
		return nil, fmt.Errorf("未找到行情数组")
	}
	schema, err := compiledBarSchema()
	if err != nil {
		return nil, fmt.Errorf("compile bar schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal([]byte(arr.Raw), &doc); err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("行情 JSON 结构不符: %w", err)
	}
	var (
		bars   []Bar
		barErr error
	)
	arr.ForEach(func(key, node gjson.Result) bool {
		bar, err := decodeBarNode(node)
		if err != nil {
			barErr = fmt.Errorf("第 %d 条: %w", key.Int()+1, err)
			return false
		}
		bars = append(bars, bar)
		return true
	})
	if barErr != nil {
		return nil, barErr
	}
	return bars, nil
}

func locateBarArray(root gjson.Result) gjson.Result {
	if root.IsArray() {
		return root
	}
	for _, path := range barArrayPaths {
		if node := root.Get(path); node.IsArray() {
			return node
		}
	}
	return gjson.Result{}
}

func decodeBarNode(node gjson.Result) (Bar, error) {
	lookup := func(field string) gjson.Result {
		if node.IsArray() {
			return node.Get(strconv.Itoa(barRowIndex[field]))
		}
		for _, alias := range barFieldAliases[field] {
			if v := node.Get(alias); v.Exists() {
				return v
			}
		}
		return gjson.Result{}
	}
	dateNode := lookup("date")
	ts, err := ParseTime(dateNode.String())
	if err != nil {
		return Bar{}, err
	}
	var nums [5]float64
	for i, field := range requiredColumns[1:] {
		v := lookup(field)
		if !v.Exists() {
			if field == "volume" {
				continue
			}
			return Bar{}, fmt.Errorf("缺少字段: %s", field)
		}
		f, ok := jsonFloat(v)
		if !ok {
			return Bar{}, fmt.Errorf("%s 非数值: %s", field, v.Raw)
		}
		nums[i] = f
	}
	return Bar{Time: ts, Open: nums[0], High: nums[1], Low: nums[2], Close: nums[3], Volume: nums[4]}, nil
}

func jsonFloat(v gjson.Result) (float64, bool) {
	switch v.Type {
	case gjson.Number:
		return v.Float(), true
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
