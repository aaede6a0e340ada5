package backtesthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stockwatch/internal/analysis/indicator"
	"stockwatch/internal/market"
	"stockwatch/internal/metrics"
	"stockwatch/internal/pipeline"
	"stockwatch/internal/signal"
	"stockwatch/internal/store/barstore"
	"stockwatch/internal/store/runstore"
)

type mockRuns struct{ mock.Mock }

func (m *mockRuns) Save(ctx context.Context, rep pipeline.Report, opts pipeline.Options) (runstore.Summary, error) {
	args := m.Called(ctx, rep, opts)
	return args.Get(0).(runstore.Summary), args.Error(1)
}

func (m *mockRuns) Get(ctx context.Context, id string) (runstore.Run, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(runstore.Run), args.Error(1)
}

func (m *mockRuns) List(ctx context.Context, f runstore.Filter) ([]runstore.Summary, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]runstore.Summary), args.Error(1)
}

func (m *mockRuns) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockBars struct{ mock.Mock }

func (m *mockBars) LoadBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]market.Bar, error) {
	args := m.Called(ctx, symbol, timeframe, start, end)
	return args.Get(0).([]market.Bar), args.Error(1)
}

func (m *mockBars) ListManifests(ctx context.Context) ([]barstore.Manifest, error) {
	args := m.Called(ctx)
	return args.Get(0).([]barstore.Manifest), args.Error(1)
}

type staticProfiles map[string]signal.Profile

func (p staticProfiles) Profiles() map[string]signal.Profile { return p }

type fixture struct {
	srv     *Server
	runs    *mockRuns
	bars    *mockBars
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	runs, bars := &mockRuns{}, &mockBars{}
	srv, err := NewServer(Config{
		Base:     pipeline.DefaultOptions(),
		Runner:   pipeline.NewRunner(m),
		Runs:     runs,
		Bars:     bars,
		Profiles: staticProfiles{"swing": {MinSignalStrength: 3, MinNetStrength: 4, MinConfirmations: 1}},
		Metrics:  m,
		Gatherer: reg,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		runs.AssertExpectations(t)
		bars.AssertExpectations(t)
	})
	return fixture{srv: srv, runs: runs, bars: bars, metrics: m}
}

func (f fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func sampleBars(n int) []market.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, n)
	for i := range bars {
		c := 15 + 2*math.Sin(float64(i)/4)
		bars[i] = market.Bar{
			Time:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c + 0.3,
			Low:    c - 0.3,
			Close:  c,
			Volume: 5000,
		}
	}
	return bars
}

// barsJSON 生成数据提供方风格的行情数组。
func barsJSON(bars []market.Bar) json.RawMessage {
	rows := make([]string, len(bars))
	for i, b := range bars {
		rows[i] = fmt.Sprintf(`{"date":"%s","open":%g,"high":%g,"low":%g,"close":%g,"volume":%g}`,
			b.Time.Format("2006-01-02"), b.Open, b.High, b.Low, b.Close, b.Volume)
	}
	return json.RawMessage("[" + strings.Join(rows, ",") + "]")
}

func TestHealthAndProfiles(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", nil).Code)

	w := f.do(t, http.MethodGet, "/api/profiles", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Profiles []signal.Profile `json:"profiles"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	names := make([]string, len(resp.Profiles))
	for i, p := range resp.Profiles {
		names[i] = p.Name
	}
	assert.Equal(t, []string{"aggressive", "conservative", "moderate", "swing"}, names)
}

func TestBacktestWithInlineBarsAndSave(t *testing.T) {
	f := newFixture(t)
	f.runs.On("Save", mock.Anything, mock.MatchedBy(func(rep pipeline.Report) bool {
		return rep.Symbol == "600000" && rep.Backtest != nil
	}), mock.MatchedBy(func(opts pipeline.Options) bool {
		return opts.Profile.Name == "swing" && opts.Backtest.InitialCapital == 50000
	})).Return(runstore.Summary{ID: "run-1", Symbol: "600000"}, nil).Once()

	capital := 50000.0
	w := f.do(t, http.MethodPost, "/api/backtest", RunRequest{
		Params: Params{Profile: "swing", Backtest: BacktestOverrides{InitialCapital: &capital}},
		Symbol: "600000",
		Bars:   barsJSON(sampleBars(60)),
		Save:   true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Report pipeline.Report  `json:"report"`
		Run    runstore.Summary `json:"run"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.Run.ID)
	assert.Equal(t, 60, resp.Report.Bars)
	require.NotNil(t, resp.Report.Backtest)
	assert.Equal(t, 50000.0, resp.Report.Backtest.InitialCapital)
	assert.Len(t, resp.Report.Decisions, 60)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.HTTPRequests.WithLabelValues("/api/backtest", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RunsTotal.WithLabelValues("backtest", "ok")))
}

func TestAnalyzeLoadsStoredBars(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.bars.On("LoadBars", mock.Anything, "000001", "1d", start, time.Time{}).Return(sampleBars(40), nil).Once()

	w := f.do(t, http.MethodPost, "/api/analyze", RunRequest{Symbol: "000001", Start: "2024-01-01", IncludeIndicators: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Report map[string]json.RawMessage `json:"report"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotContains(t, resp.Report, "backtest")
	assert.Contains(t, resp.Report, "indicators")
}

func TestRunErrorMapping(t *testing.T) {
	f := newFixture(t)
	f.bars.On("LoadBars", mock.Anything, "NOPE", "1d", time.Time{}, time.Time{}).Return([]market.Bar(nil), barstore.ErrNotFound).Once()

	bad := sampleBars(10)
	bad[3].High = bad[3].Low - 1

	cases := []struct {
		name string
		body RunRequest
		code int
	}{
		{"missing symbol", RunRequest{Bars: barsJSON(sampleBars(10))}, http.StatusBadRequest},
		{"invalid ohlc", RunRequest{Symbol: "X", Bars: barsJSON(bad)}, http.StatusUnprocessableEntity},
		{"unknown profile", RunRequest{Symbol: "X", Params: Params{Profile: "yolo"}, Bars: barsJSON(sampleBars(10))}, http.StatusBadRequest},
		{"bad timeframe", RunRequest{Symbol: "X", Params: Params{Timeframe: "7y"}, Bars: barsJSON(sampleBars(10))}, http.StatusBadRequest},
		{"bad bars json", RunRequest{Symbol: "X", Bars: json.RawMessage(`{"foo":1}`)}, http.StatusBadRequest},
		{"no stored bars", RunRequest{Symbol: "NOPE"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/backtest", tc.body)
			assert.Equal(t, tc.code, w.Code, w.Body.String())
		})
	}
}

func TestBatchReportsPerSymbolErrors(t *testing.T) {
	f := newFixture(t)
	bad := sampleBars(10)
	bad[0].Close = -1
	w := f.do(t, http.MethodPost, "/api/batch", BatchRequest{
		Jobs: []BatchJob{
			{Symbol: "AAA", Bars: barsJSON(sampleBars(30))},
			{Symbol: "BBB", Bars: barsJSON(bad)},
		},
		Limit: 2,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Results []pipeline.BatchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.NotNil(t, resp.Results[0].Report)
	assert.Empty(t, resp.Results[0].Error)
	assert.Nil(t, resp.Results[1].Report)
	assert.NotEmpty(t, resp.Results[1].Error)
}

func TestRunsEndpoints(t *testing.T) {
	f := newFixture(t)
	f.runs.On("List", mock.Anything, runstore.Filter{Symbol: "600000", Limit: 5}).
		Return([]runstore.Summary{{ID: "a"}, {ID: "b"}}, nil).Once()
	f.runs.On("Get", mock.Anything, "missing").Return(runstore.Run{}, runstore.ErrNotFound).Twice()
	f.runs.On("Delete", mock.Anything, "a").Return(nil).Once()

	w := f.do(t, http.MethodGet, "/api/runs?symbol=600000&limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"b"`)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/runs/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/runs/missing/report", nil).Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/runs/a", nil).Code)
}

func TestRunReportRendersStoredRun(t *testing.T) {
	f := newFixture(t)
	opts := pipeline.DefaultOptions()
	rep, err := pipeline.Run(context.Background(), "600519", sampleBars(50), opts)
	require.NoError(t, err)
	rep.IndicatorSet = indicator.Set{}
	f.runs.On("Get", mock.Anything, "r1").Return(runstore.Run{
		Summary: runstore.Summary{ID: "r1"},
		Options: opts,
		Report:  rep,
	}, nil).Once()

	w := f.do(t, http.MethodGet, "/api/runs/r1/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "600519")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/healthz", nil)
	w := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "stockwatch_http_requests_total")
}
