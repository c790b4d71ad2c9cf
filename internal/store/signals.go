package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/patrick1923/crypto-scanner/internal/signal"
)

// 信号状态。新信号写入即为 active，复盘后置为 closed。
const (
	StatusActive = "active"
	StatusClosed = "closed"
)

// SignalRecord 为一条已持久化的信号。
type SignalRecord struct {
	ID          int64
	ScanTime    time.Time
	Symbol      string
	SignalType  string
	SignalPrice float64
	Grade       string
	Analysis    string
	Confidence  float64
	PriceChange float64
	VolumeRatio float64
	Volume24h   float64
	Contraction bool
	Pressure    string
	WhaleScore  int
	Origin      string
	Outcome     string
	Notes       string
	Status      string
}

// SignalRepository 负责信号的持久化与查询。
type SignalRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSignalRepository 初始化信号仓库并创建表结构。
func NewSignalRepository(store *Store, logger *zap.Logger) (*SignalRepository, error) {
	if store == nil {
		return nil, fmt.Errorf("store: 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &SignalRepository{
		db:     store.DB(),
		logger: logger,
	}

	if err := r.initSchema(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *SignalRepository) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS signals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	scan_time TEXT NOT NULL,
	symbol TEXT NOT NULL,
	signal_type TEXT NOT NULL,
	signal_price REAL,
	grade TEXT,
	analysis TEXT,
	confidence_score REAL,
	price_change_2h REAL,
	volume_ratio_2h REAL,
	volume_24h REAL,
	volatility_contraction INTEGER,
	dominant_pressure TEXT,
	whale_score INTEGER,
	origin TEXT NOT NULL,
	outcome TEXT,
	notes TEXT,
	status TEXT NOT NULL DEFAULT 'active'
);
CREATE INDEX IF NOT EXISTS idx_signals_scan_time ON signals(scan_time);
CREATE INDEX IF NOT EXISTS idx_signals_status ON signals(status);
`
	if _, err := r.db.Exec(stmt); err != nil {
		return fmt.Errorf("初始化 signals 表失败: %w", err)
	}
	return nil
}

// Append 以同一扫描时间批量写入一轮产出的信号。
func (r *SignalRepository) Append(ctx context.Context, events []signal.Event, cycleTime time.Time) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO signals (
	scan_time, symbol, signal_type, signal_price, grade, analysis,
	confidence_score, price_change_2h, volume_ratio_2h, volume_24h,
	volatility_contraction, dominant_pressure, whale_score, origin, status
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("预编译插入语句失败: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	scanTime := cycleTime.UTC().Format(time.RFC3339)
	for _, event := range events {
		m := event.Metrics
		whaleScore := 0
		if event.Whale != nil {
			whaleScore = event.Whale.Score
		}
		contraction := 0
		if m.Contraction {
			contraction = 1
		}

		if _, err := stmt.ExecContext(ctx,
			scanTime, m.Symbol, event.Type(), m.Price, string(m.Grade), m.Analysis,
			m.Confidence, m.PriceChangePct, m.VolumeRatio, m.QuoteVolume24h,
			contraction, string(m.Pressure), whaleScore, string(event.Origin), StatusActive,
		); err != nil {
			return fmt.Errorf("写入信号失败 (%s): %w", m.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交信号事务失败: %w", err)
	}

	return nil
}

// QueryActive 按扫描时间倒序返回未关闭的信号。
func (r *SignalRepository) QueryActive(ctx context.Context, limit int) ([]SignalRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, scan_time, symbol, signal_type, signal_price, grade, analysis,
	confidence_score, price_change_2h, volume_ratio_2h, volume_24h,
	volatility_contraction, dominant_pressure, whale_score, origin,
	COALESCE(outcome, ''), COALESCE(notes, ''), status
FROM signals
WHERE status = ?
ORDER BY scan_time DESC, id DESC
LIMIT ?`, StatusActive, limit)
	if err != nil {
		return nil, fmt.Errorf("查询活跃信号失败: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	return scanRecords(rows)
}

// Latest 返回最近一次扫描批次的全部信号。
func (r *SignalRepository) Latest(ctx context.Context) ([]SignalRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, scan_time, symbol, signal_type, signal_price, grade, analysis,
	confidence_score, price_change_2h, volume_ratio_2h, volume_24h,
	volatility_contraction, dominant_pressure, whale_score, origin,
	COALESCE(outcome, ''), COALESCE(notes, ''), status
FROM signals
WHERE scan_time = (SELECT MAX(scan_time) FROM signals)
ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("查询最新批次信号失败: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	return scanRecords(rows)
}

// UpdateOutcome 更新信号复盘结论并关闭该信号。
func (r *SignalRepository) UpdateOutcome(ctx context.Context, id int64, outcome, notes string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE signals SET outcome = ?, notes = ?, status = ? WHERE id = ?`,
		outcome, notes, StatusClosed, id)
	if err != nil {
		return fmt.Errorf("更新信号结论失败: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("读取更新行数失败: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("信号不存在: id=%d", id)
	}

	return nil
}

func scanRecords(rows *sql.Rows) ([]SignalRecord, error) {
	var records []SignalRecord
	for rows.Next() {
		var (
			rec         SignalRecord
			scanTime    string
			contraction int
		)
		if err := rows.Scan(
			&rec.ID, &scanTime, &rec.Symbol, &rec.SignalType, &rec.SignalPrice,
			&rec.Grade, &rec.Analysis, &rec.Confidence, &rec.PriceChange,
			&rec.VolumeRatio, &rec.Volume24h, &contraction, &rec.Pressure,
			&rec.WhaleScore, &rec.Origin, &rec.Outcome, &rec.Notes, &rec.Status,
		); err != nil {
			return nil, fmt.Errorf("解析信号记录失败: %w", err)
		}

		if ts, err := time.Parse(time.RFC3339, scanTime); err == nil {
			rec.ScanTime = ts
		}
		rec.Contraction = contraction != 0
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历信号记录失败: %w", err)
	}

	return records, nil
}
