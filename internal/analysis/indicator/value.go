package indicator

import (
	"encoding/json"
	"math"
)

// Value 是单个指标取值；Valid=false 表示回看不足，序列化为 null。
type Value struct {
	Float64 float64
	Valid   bool
}

func Some(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Value{}
	}
	return Value{Float64: v, Valid: true}
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Float64)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Some(f)
	return nil
}

// Series 与 History 逐 bar 对齐。
type Series []Value

func undefinedSeries(n int) Series {
	return make(Series, n)
}

// At 返回下标 i 的值；越界等同未定义。
func (s Series) At(i int) (float64, bool) {
	if i < 0 || i >= len(s) || !s[i].Valid {
		return 0, false
	}
	return s[i].Float64, true
}

// Last 返回最后一个已定义的值。
func (s Series) Last() (float64, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].Valid {
			return s[i].Float64, true
		}
	}
	return 0, false
}

// Floats 导出原始数值，未定义位置为 NaN，供图表使用。
func (s Series) Floats() []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		if v.Valid {
			out[i] = v.Float64
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// fromTalib 将 talib 输出转换为 Series：lookback 之前的位置标为未定义。
func fromTalib(vals []float64, lookback int) Series {
	out := undefinedSeries(len(vals))
	for i := lookback; i < len(vals); i++ {
		out[i] = Some(vals[i])
	}
	return out
}

// place 把分段计算结果写回整段序列。
func place(dst Series, offset int, src Series) {
	copy(dst[offset:], src)
}
