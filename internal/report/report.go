// Package report 把一次运行结果渲染成单页 HTML（go-echarts）。
package report

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"stockwatch/internal/analysis/indicator"
	"stockwatch/internal/analysis/pattern"
	"stockwatch/internal/pipeline"
	"stockwatch/internal/signal"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#ef4444"
	colorBear          = "#22c55e"
	colorVolume        = "#a78bfa"
	colorDIF           = "#22d3ee"
	colorDEA           = "#fb7185"
	colorEquity        = "#fbbf24"
	colorBenchmark     = "#9ca3af"

	chartWidthPx   = 1400
	klineHeightPx  = 560
	volumeHeightPx = 220
	macdHeightPx   = 220
	equityHeightPx = 300
)

// A 股习惯红涨绿跌，均线颜色按窗口顺序循环。
var maColors = []string{"#3b82f6", "#fbbf24", "#f472b6", "#34d399", "#c084fc"}

// Hydrate 在报告缺少指标集时（例如从存储读回）按给定参数重新计算。
func Hydrate(rep *pipeline.Report, params indicator.Params) error {
	if rep == nil || len(rep.IndicatorSet.Dates) == rep.History.Len() && rep.History.Len() > 0 {
		return nil
	}
	set, err := indicator.Compute(rep.History, params)
	if err != nil {
		return err
	}
	rep.IndicatorSet = set
	return nil
}

// Render 输出完整 HTML 页面：K 线 + 均线 + 买卖点、成交量、MACD 与资金曲线。
func Render(w io.Writer, rep pipeline.Report) error {
	if rep.History.Len() == 0 {
		return fmt.Errorf("report %s has no bars to render", rep.Symbol)
	}
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("%s %s", rep.Symbol, rep.Timeframe)
	page.SetLayout(components.PageFlexLayout)

	xAxis := rep.History.Dates()
	page.AddCharts(
		buildKline(rep, xAxis),
		buildVolumeChart(rep, xAxis),
		buildMACDChart(rep.IndicatorSet, xAxis),
	)
	if rep.Backtest != nil && len(rep.Backtest.EquityCurve) > 0 {
		page.AddCharts(buildEquityChart(rep, xAxis))
	}
	return page.Render(w)
}

// WriteFile 渲染到 dir/<symbol>_<timeframe>.html 并返回文件路径。
func WriteFile(dir string, rep pipeline.Report) (string, error) {
	var buf bytes.Buffer
	if err := Render(&buf, rep); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s.html", strings.ToLower(rep.Symbol), rep.Timeframe)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func initOpts(height int) opts.Initialization {
	return opts.Initialization{
		Theme:           types.ThemeWesteros,
		Width:           fmt.Sprintf("%dpx", chartWidthPx),
		Height:          fmt.Sprintf("%dpx", height),
		BackgroundColor: colorBackground,
	}
}

func subtitle(rep pipeline.Report) string {
	parts := []string{fmt.Sprintf("%s ~ %s", rep.FirstDate, rep.LastDate), "profile=" + rep.Profile.Name}
	if m := rep.Metrics; m != nil {
		parts = append(parts,
			fmt.Sprintf("return %.2f%%", m.TotalReturn*100),
			fmt.Sprintf("max dd %.2f%%", m.MaxDrawdown*100),
		)
		if m.Sharpe != nil {
			parts = append(parts, fmt.Sprintf("sharpe %.2f", *m.Sharpe))
		}
	}
	shape := pattern.Analyze(rep.History)
	parts = append(parts, fmt.Sprintf("%s: %s", shape.Bias, shape.Summary()))
	return strings.Join(parts, " | ")
}

func buildKline(rep pipeline.Report, xAxis []string) *charts.Kline {
	bars := rep.History.Bars
	minPrice, maxPrice := bars[0].Low, bars[0].High
	for _, b := range bars {
		minPrice = math.Min(minPrice, b.Low)
		maxPrice = math.Max(maxPrice, b.High)
	}
	padding := (maxPrice - minPrice) * 0.05
	if padding <= 0 {
		padding = math.Max(0.01, math.Abs(maxPrice)*0.01)
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(klineHeightPx)),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTitleOpts(opts.Title{
			Title:         fmt.Sprintf("%s %s", rep.Symbol, rep.Timeframe),
			Subtitle:      subtitle(rep),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			Min:       round(minPrice-padding, 4),
			Max:       round(maxPrice+padding, 4),
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)
	data := make([]opts.KlineData, len(bars))
	for i, b := range bars {
		data[i] = opts.KlineData{Value: [4]float64{b.Open, b.Close, b.Low, b.High}}
	}
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", data)

	if len(rep.IndicatorSet.MA) > 0 {
		line := charts.NewLine()
		line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
		line.SetXAxis(xAxis)
		for i, w := range rep.IndicatorSet.Windows() {
			color := maColors[i%len(maColors)]
			line.AddSeries(fmt.Sprintf("MA%d", w), toLineData(rep.IndicatorSet.MA[w], len(xAxis)),
				charts.WithLineStyleOpts(opts.LineStyle{Color: color, Width: 1}))
		}
		kline.Overlap(line)
	}
	kline.Overlap(buildDecisionMarks(rep, xAxis))
	return kline
}

// buildDecisionMarks 在买入日的最低价、卖出日的最高价处打点。
func buildDecisionMarks(rep pipeline.Report, xAxis []string) *charts.Scatter {
	buys := make([]opts.ScatterData, len(xAxis))
	sells := make([]opts.ScatterData, len(xAxis))
	for i := range xAxis {
		buys[i] = opts.ScatterData{Value: nil}
		sells[i] = opts.ScatterData{Value: nil}
	}
	bars := rep.History.Bars
	for _, d := range rep.Decisions {
		if d.Index < 0 || d.Index >= len(bars) {
			continue
		}
		switch d.Action {
		case signal.ActionBuy:
			buys[d.Index] = opts.ScatterData{Value: round(bars[d.Index].Low, 4)}
		case signal.ActionSell:
			sells[d.Index] = opts.ScatterData{Value: round(bars[d.Index].High, 4)}
		}
	}
	scatter := charts.NewScatter()
	scatter.SetXAxis(xAxis)
	scatter.AddSeries("Buy", buys, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBull}))
	scatter.AddSeries("Sell", sells, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBear}))
	return scatter
}

func buildVolumeChart(rep pipeline.Report, xAxis []string) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(volumeHeightPx)),
		charts.WithTitleOpts(opts.Title{Title: "Volume", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Show: opts.Bool(false)}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	vols := make([]opts.BarData, len(rep.History.Bars))
	for i, b := range rep.History.Bars {
		color := colorBear
		if b.Close >= b.Open {
			color = colorBull
		}
		vols[i] = opts.BarData{
			Value:     b.Volume,
			ItemStyle: &opts.ItemStyle{Color: color, Opacity: opts.Float(0.6)},
		}
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("Volume", vols)

	if len(rep.IndicatorSet.VolumeMA) == len(xAxis) {
		line := charts.NewLine()
		line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
		line.SetXAxis(xAxis)
		line.AddSeries("Volume MA", toLineData(rep.IndicatorSet.VolumeMA, len(xAxis)),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorVolume, Width: 1}))
		bar.Overlap(line)
	}
	return bar
}

func buildMACDChart(set indicator.Set, xAxis []string) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(macdHeightPx)),
		charts.WithTitleOpts(opts.Title{Title: "MACD", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextSecondary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Show: opts.Bool(false)}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	hist := make([]opts.BarData, len(xAxis))
	for i := range hist {
		v, ok := set.MACD.Hist.At(i)
		if !ok {
			hist[i] = opts.BarData{Value: nil}
			continue
		}
		color := colorBear
		if v >= 0 {
			color = colorBull
		}
		hist[i] = opts.BarData{Value: round(v, 4), ItemStyle: &opts.ItemStyle{Color: color}}
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("MACD Hist", hist)

	line := charts.NewLine()
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	line.SetXAxis(xAxis)
	line.AddSeries("DIF", toLineData(set.MACD.Line, len(xAxis)), charts.WithLineStyleOpts(opts.LineStyle{Color: colorDIF, Width: 2}))
	line.AddSeries("DEA", toLineData(set.MACD.Signal, len(xAxis)), charts.WithLineStyleOpts(opts.LineStyle{Color: colorDEA, Width: 2}))
	bar.Overlap(line)
	return bar
}

// buildEquityChart 资金曲线与同期买入持有基准（按初始资金折算）。
func buildEquityChart(rep pipeline.Report, xAxis []string) *charts.Line {
	curve := rep.Backtest.EquityCurve
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(equityHeightPx)),
		charts.WithTitleOpts(opts.Title{Title: "Equity", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextSecondary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Color: colorTextSecondary}}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	equity := make([]opts.LineData, len(xAxis))
	bench := make([]opts.LineData, len(xAxis))
	first := curve[0].Close
	for i := range xAxis {
		if i >= len(curve) {
			equity[i] = opts.LineData{Value: nil}
			bench[i] = opts.LineData{Value: nil}
			continue
		}
		equity[i] = opts.LineData{Value: round(curve[i].Equity, 2)}
		if first > 0 {
			bench[i] = opts.LineData{Value: round(rep.Backtest.InitialCapital*curve[i].Close/first, 2)}
		} else {
			bench[i] = opts.LineData{Value: nil}
		}
	}
	line.SetXAxis(xAxis)
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	line.AddSeries("Strategy", equity, charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}))
	line.AddSeries("Buy & Hold", bench, charts.WithLineStyleOpts(opts.LineStyle{Color: colorBenchmark, Width: 1}))
	return line
}

func toLineData(series indicator.Series, length int) []opts.LineData {
	out := make([]opts.LineData, length)
	for i := range out {
		if v, ok := series.At(i); ok {
			out[i] = opts.LineData{Value: round(v, 4)}
		} else {
			out[i] = opts.LineData{Value: nil}
		}
	}
	return out
}

func round(val float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}
