// Package barstore 以 SQLite 持久化原始行情 bar，按 symbol@timeframe 分区。
package barstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"stockwatch/internal/market"

	_ "modernc.org/sqlite"
)

// ErrNotFound 指定 symbol@timeframe 没有任何数据。
var ErrNotFound = errors.New("bars not found")

// Manifest 记录某个 symbol@timeframe 的统计信息。
type Manifest struct {
	Symbol     string `json:"symbol"`
	Timeframe  string `json:"timeframe"`
	MinTime    int64  `json:"min_time"`
	MaxTime    int64  `json:"max_time"`
	Rows       int64  `json:"rows"`
	LastSyncAt int64  `json:"last_sync_at"`
}

type Store struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

// Open 打开（必要时创建）bar 数据库。
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("bars path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{path: path, db: db}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func key(symbol, timeframe string) (string, string, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	tf := strings.TrimSpace(timeframe)
	if sym == "" || tf == "" {
		return "", "", fmt.Errorf("symbol/timeframe 不能为空")
	}
	return sym, tf, nil
}

// InsertBars 批量写入 bar（同一时间戳覆盖）。填充 bar 不入库。
func (s *Store) InsertBars(ctx context.Context, symbol, timeframe string, bars []market.Bar) (int, error) {
	sym, tf, err := key(symbol, timeframe)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (symbol, timeframe, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, timeframe, ts) DO UPDATE SET
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close,
		    volume=excluded.volume`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	count := 0
	for _, b := range bars {
		if b.Filled {
			continue
		}
		if _, err := stmt.ExecContext(ctx, sym, tf, b.Time.UnixMilli(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		count++
	}
	if err := refreshManifest(ctx, tx, sym, tf); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// LoadBars 读取 [start, end] 内的 bar，零值表示不限，按时间升序返回。
func (s *Store) LoadBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]market.Bar, error) {
	sym, tf, err := key(symbol, timeframe)
	if err != nil {
		return nil, err
	}
	lo, hi := int64(0), int64(1<<62)
	if !start.IsZero() {
		lo = start.UnixMilli()
	}
	if !end.IsZero() {
		hi = end.UnixMilli()
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND timeframe = ? AND ts BETWEEN ? AND ?
		ORDER BY ts ASC`, sym, tf, lo, hi)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []market.Bar
	for rows.Next() {
		var (
			b  market.Bar
			ts int64
		)
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		b.Time = time.UnixMilli(ts).UTC()
		list = append(list, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%s@%s: %w", sym, tf, ErrNotFound)
	}
	return list, nil
}

func (s *Store) Manifest(ctx context.Context, symbol, timeframe string) (Manifest, error) {
	sym, tf, err := key(symbol, timeframe)
	if err != nil {
		return Manifest{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT symbol, timeframe, min_time, max_time, rows, last_sync_at
		FROM manifest WHERE symbol = ? AND timeframe = ?`, sym, tf)
	var m Manifest
	if err := row.Scan(&m.Symbol, &m.Timeframe, &m.MinTime, &m.MaxTime, &m.Rows, &m.LastSyncAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Manifest{}, fmt.Errorf("%s@%s: %w", sym, tf, ErrNotFound)
		}
		return Manifest{}, err
	}
	return m, nil
}

// ListManifests 列出全部已入库的 symbol@timeframe。
func (s *Store) ListManifests(ctx context.Context) ([]Manifest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, timeframe, min_time, max_time, rows, last_sync_at
		FROM manifest ORDER BY symbol, timeframe`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Manifest
	for rows.Next() {
		var m Manifest
		if err := rows.Scan(&m.Symbol, &m.Timeframe, &m.MinTime, &m.MaxTime, &m.Rows, &m.LastSyncAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func refreshManifest(ctx context.Context, tx *sql.Tx, symbol, timeframe string) error {
	now := time.Now().UnixMilli()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO manifest (symbol, timeframe, min_time, max_time, rows, last_sync_at)
		SELECT ?, ?, COALESCE(MIN(ts), 0), COALESCE(MAX(ts), 0), COUNT(1), ?
		FROM bars WHERE symbol = ? AND timeframe = ?
		ON CONFLICT(symbol, timeframe) DO UPDATE SET
		    min_time=excluded.min_time,
		    max_time=excluded.max_time,
		    rows=excluded.rows,
		    last_sync_at=excluded.last_sync_at`, symbol, timeframe, now, symbol, timeframe)
	return err
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bars (
			symbol    TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			ts        INTEGER NOT NULL,
			open      REAL NOT NULL,
			high      REAL NOT NULL,
			low       REAL NOT NULL,
			close     REAL NOT NULL,
			volume    REAL NOT NULL,
			inserted_at INTEGER NOT NULL DEFAULT (strftime('%s','now') * 1000),
			PRIMARY KEY (symbol, timeframe, ts)
		);`,
		`CREATE TABLE IF NOT EXISTS manifest (
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			min_time INTEGER NOT NULL DEFAULT 0,
			max_time INTEGER NOT NULL DEFAULT 0,
			rows INTEGER NOT NULL DEFAULT 0,
			last_sync_at INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, timeframe)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
