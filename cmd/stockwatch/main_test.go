package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"stockwatch/internal/pipeline"
	"stockwatch/internal/store/barstore"
)

type env struct {
	dir    string
	config string
}

func newEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf("app:\n  log_level: warn\nstore:\n  bars_path: %s\n  runs_path: %s\nreport:\n  dir: %s\n",
		filepath.Join(dir, "bars.db"), filepath.Join(dir, "runs.db"), filepath.Join(dir, "reports"))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return env{dir: dir, config: path}
}

func (e env) writeCSV(t *testing.T, name string, n int, phase float64) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("date,open,high,low,close,volume\n")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		c := 10 + 1.5*math.Sin(float64(i)/4+phase)
		fmt.Fprintf(&b, "%s,%.4f,%.4f,%.4f,%.4f,%d\n", start.AddDate(0, 0, i).Format("2006-01-02"), c, c+0.2, c-0.2, c, 1000+i)
	}
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func (e env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{args[0], "-config", e.config}, args[1:]...)
	err := run(context.Background(), full, &stdout, &stderr)
	return stdout.String(), err
}

func TestAnalyzeCSV(t *testing.T) {
	e := newEnv(t)
	csv := e.writeCSV(t, "600519.csv", 50, 0)
	out, err := e.run(t, "analyze", "-csv", csv, "-indicators")
	require.NoError(t, err)

	var rep map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.JSONEq(t, `"600519"`, string(rep["symbol"]))
	assert.Contains(t, rep, "indicators")
	assert.NotContains(t, rep, "backtest")
}

func TestBacktestSavesAndWritesReport(t *testing.T) {
	e := newEnv(t)
	csv := e.writeCSV(t, "000001.csv", 60, 1)
	out, err := e.run(t, "backtest", "-csv", csv, "-save", "-report", "-liquidate", "-profile", "aggressive")
	require.NoError(t, err)

	var rep pipeline.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	require.NotNil(t, rep.Backtest)
	require.NotNil(t, rep.Metrics)
	assert.Equal(t, "aggressive", rep.Profile.Name)
	assert.Equal(t, 60, rep.Bars)

	_, err = os.Stat(filepath.Join(e.dir, "reports", "000001_1d.html"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(e.dir, "runs.db"))
	assert.NoError(t, err)
}

func TestImportThenBacktestFromStore(t *testing.T) {
	e := newEnv(t)
	csv := e.writeCSV(t, "bars.csv", 40, 0)
	out, err := e.run(t, "import", "-csv", csv, "-symbol", "sz000002")
	require.NoError(t, err)
	var manifest barstore.Manifest
	require.NoError(t, json.Unmarshal([]byte(out), &manifest))
	assert.EqualValues(t, 40, manifest.Rows)

	out, err = e.run(t, "backtest", "-symbol", "sz000002", "-start", "2024-01-11", "-format", "yaml")
	require.NoError(t, err)
	var rep map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 30, rep["bars"])
	assert.Equal(t, "2024-01-11", rep["first_date"])
}

func TestBatchKeepsPerFileErrors(t *testing.T) {
	e := newEnv(t)
	good := e.writeCSV(t, "AAA.csv", 30, 0)
	bad := filepath.Join(e.dir, "BBB.csv")
	require.NoError(t, os.WriteFile(bad, []byte("date,open,high,low,close,volume\n2024-01-01,10,9,11,10,100\n2024-01-02,10,11,9,10,100\n"), 0o644))

	out, err := e.run(t, "batch", "-limit", "2", good, bad)
	require.NoError(t, err)
	var results []pipeline.BatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "AAA", results[0].Symbol)
	assert.NotNil(t, results[0].Report)
	assert.NotEmpty(t, results[1].Error)
}

func TestUsageErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Error(t, run(context.Background(), nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "commands:")
	assert.Error(t, run(context.Background(), []string{"frobnicate"}, &stdout, &stderr))

	e := newEnv(t)
	_, err := e.run(t, "analyze")
	assert.Error(t, err)
	_, err = e.run(t, "batch")
	assert.Error(t, err)
	_, err = e.run(t, "analyze", "-csv", e.writeCSV(t, "x.csv", 10, 0), "-format", "xml")
	assert.Error(t, err)
}

func TestSplitConfigFlag(t *testing.T) {
	t.Setenv("STOCKWATCH_CONFIG", "env.yaml")
	path, rest := splitConfigFlag([]string{"-csv", "a.csv"})
	assert.Equal(t, "env.yaml", path)
	assert.Equal(t, []string{"-csv", "a.csv"}, rest)

	path, rest = splitConfigFlag([]string{"--config=x.yaml", "-save"})
	assert.Equal(t, "x.yaml", path)
	assert.Equal(t, []string{"-save"}, rest)
}
