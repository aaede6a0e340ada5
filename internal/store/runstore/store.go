// Package runstore 持久化回测运行：摘要列用于列表查询，完整报告、
// 行情与参数以 JSON 列保存，便于重新渲染报表。
package runstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stockwatch/internal/market"
	"stockwatch/internal/pipeline"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound 指定 ID 的运行不存在。
var ErrNotFound = errors.New("run not found")

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type runModel struct {
	ID            string         `gorm:"column:id;primaryKey"`
	Symbol        string         `gorm:"column:symbol;index"`
	Timeframe     string         `gorm:"column:timeframe"`
	Profile       string         `gorm:"column:profile"`
	ConfigHash    string         `gorm:"column:config_hash;index"`
	Bars          int            `gorm:"column:bars"`
	FirstDate     string         `gorm:"column:first_date"`
	LastDate      string         `gorm:"column:last_date"`
	TradeCount    int            `gorm:"column:trade_count"`
	TotalReturn   float64        `gorm:"column:total_return"`
	FinalEquity   float64        `gorm:"column:final_equity"`
	OptionsJSON   datatypes.JSON `gorm:"column:options_json;type:TEXT"`
	ReportJSON    datatypes.JSON `gorm:"column:report_json;type:TEXT"`
	HistoryJSON   datatypes.JSON `gorm:"column:history_json;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at;index"`
}

func (runModel) TableName() string { return "backtest_runs" }

// Summary 列表视图。
type Summary struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Timeframe   string    `json:"timeframe"`
	Profile     string    `json:"profile"`
	ConfigHash  string    `json:"config_hash"`
	Bars        int       `json:"bars"`
	FirstDate   string    `json:"first_date"`
	LastDate    string    `json:"last_date"`
	TradeCount  int       `json:"trade_count"`
	TotalReturn float64   `json:"total_return"`
	FinalEquity float64   `json:"final_equity"`
	CreatedAt   time.Time `json:"created_at"`
}

// Run 完整记录。Report.History 已从存储恢复，IndicatorSet 需调用方按 Options 重算。
type Run struct {
	Summary
	Options pipeline.Options `json:"options"`
	Report  pipeline.Report  `json:"report"`
}

// Filter 列表条件，零值表示全部。
type Filter struct {
	Symbol     string
	ConfigHash string
	Limit      int
}

// Store 基于 Gorm + SQLite 的运行记录存储。
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open 初始化存储并迁移表结构。
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("runstore: 存储路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&runModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ConfigHash 参数的稳定摘要，相同参数的运行可据此归组比较。
func ConfigHash(opts pipeline.Options) (string, error) {
	raw, err := json.Marshal(opts)
	if err != nil {
		return "", err
	}
	return hashOf(raw), nil
}

func hashOf(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:8])
}

// Save 保存一次回测运行并返回摘要。只保存包含回测结果的报告。
func (s *Store) Save(ctx context.Context, rep pipeline.Report, opts pipeline.Options) (Summary, error) {
	if rep.Backtest == nil || rep.Metrics == nil {
		return Summary{}, fmt.Errorf("runstore: report has no backtest result")
	}
	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return Summary{}, fmt.Errorf("encode options: %w", err)
	}
	reportJSON, err := json.Marshal(rep)
	if err != nil {
		return Summary{}, fmt.Errorf("encode report: %w", err)
	}
	historyJSON, err := json.Marshal(rep.History)
	if err != nil {
		return Summary{}, fmt.Errorf("encode history: %w", err)
	}
	model := runModel{
		ID:            uuid.NewString(),
		Symbol:        rep.Symbol,
		Timeframe:     rep.Timeframe.Key,
		Profile:       rep.Profile.Name,
		ConfigHash:    hashOf(optsJSON),
		Bars:          rep.Bars,
		FirstDate:     rep.FirstDate,
		LastDate:      rep.LastDate,
		TradeCount:    rep.Metrics.TradeCount,
		TotalReturn:   rep.Metrics.TotalReturn,
		FinalEquity:   rep.Backtest.FinalEquity,
		OptionsJSON:   datatypes.JSON(optsJSON),
		ReportJSON:    datatypes.JSON(reportJSON),
		HistoryJSON:   datatypes.JSON(historyJSON),
		CreatedAtUnix: s.now().UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return Summary{}, err
	}
	return toSummary(model), nil
}

// Get 读取完整运行记录。
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	var model runModel
	err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Run{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, err
	}
	run := Run{Summary: toSummary(model)}
	if err := json.Unmarshal(model.OptionsJSON, &run.Options); err != nil {
		return Run{}, fmt.Errorf("decode options: %w", err)
	}
	if err := json.Unmarshal(model.ReportJSON, &run.Report); err != nil {
		return Run{}, fmt.Errorf("decode report: %w", err)
	}
	var h market.History
	if err := json.Unmarshal(model.HistoryJSON, &h); err != nil {
		return Run{}, fmt.Errorf("decode history: %w", err)
	}
	run.Report.History = h
	return run, nil
}

// List 按创建时间倒序列出摘要。
func (s *Store) List(ctx context.Context, f Filter) ([]Summary, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	q := s.db.WithContext(ctx).Model(&runModel{}).
		Select("id", "symbol", "timeframe", "profile", "config_hash", "bars", "first_date", "last_date",
			"trade_count", "total_return", "final_equity", "created_at")
	if sym := strings.ToUpper(strings.TrimSpace(f.Symbol)); sym != "" {
		q = q.Where("symbol = ?", sym)
	}
	if h := strings.TrimSpace(f.ConfigHash); h != "" {
		q = q.Where("config_hash = ?", h)
	}
	var models []runModel
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(models))
	for _, m := range models {
		out = append(out, toSummary(m))
	}
	return out, nil
}

// Delete 删除运行记录，不存在时返回 ErrNotFound。
func (s *Store) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).Delete(&runModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

func toSummary(m runModel) Summary {
	return Summary{
		ID:          m.ID,
		Symbol:      m.Symbol,
		Timeframe:   m.Timeframe,
		Profile:     m.Profile,
		ConfigHash:  m.ConfigHash,
		Bars:        m.Bars,
		FirstDate:   m.FirstDate,
		LastDate:    m.LastDate,
		TradeCount:  m.TradeCount,
		TotalReturn: m.TotalReturn,
		FinalEquity: m.FinalEquity,
		CreatedAt:   time.UnixMilli(m.CreatedAtUnix).UTC(),
	}
}
