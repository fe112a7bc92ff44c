package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"wingo-bot/internal/config"
	"wingo-bot/internal/logger"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLDB MySQL数据库客户端，仅用于审计记录，不从中恢复预测状态
type MySQLDB struct {
	db *sql.DB
}

// PredictionStats 数据库中已结算预测的汇总
type PredictionStats struct {
	TotalPredictions int        `json:"total_predictions"`
	Wins             int        `json:"wins"`
	WinRate          float64    `json:"win_rate"`
	FirstPrediction  *time.Time `json:"first_prediction"`
	LastPrediction   *time.Time `json:"last_prediction"`
}

// NewMySQLDB 创建新的MySQL数据库连接
func NewMySQLDB(cfg *config.Database) (*MySQLDB, error) {
	db, err := sql.Open("mysql", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	// 设置连接池参数
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 测试连接
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}

	mysqlDB := &MySQLDB{db: db}

	// 自动创建表结构
	if err := mysqlDB.createTablesIfNotExists(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %v", err)
	}

	return mysqlDB, nil
}

// Close 关闭数据库连接
func (m *MySQLDB) Close() error {
	return m.db.Close()
}

// Ping 检查连接
func (m *MySQLDB) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// SaveDrawResults 批量保存开奖数据，已存在的期号直接覆盖
func (m *MySQLDB) SaveDrawResults(ctx context.Context, results []DrawResult) error {
	if len(results) == 0 {
		return nil
	}

	query, args := buildDrawUpsert(results)
	if _, err := m.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save draw results: %v", err)
	}

	logger.Debugf("Saved %d draw results", len(results))
	return nil
}

// buildDrawUpsert 构造多行 upsert 语句
func buildDrawUpsert(results []DrawResult) (string, []interface{}) {
	placeholders := make([]string, 0, len(results))
	args := make([]interface{}, 0, len(results)*6)

	for _, r := range results {
		placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?)")
		args = append(args, r.Period, r.Number, string(r.Category), string(r.Parity), string(r.Color), r.ObservedAt)
	}

	query := `INSERT INTO draw_results (period, number, category, parity, color, observed_at)
			  VALUES ` + strings.Join(placeholders, ", ") + `
			  ON DUPLICATE KEY UPDATE
			  number = VALUES(number),
			  category = VALUES(category),
			  parity = VALUES(parity),
			  color = VALUES(color)`

	return query, args
}

// SavePrediction 保存预测记录，同一目标期号只保留最新的一条
func (m *MySQLDB) SavePrediction(ctx context.Context, rec *PredictionRecord) error {
	query := `INSERT INTO predictions (target_period, predicted_category, confidence, agreement_ratio, algorithm_version, predicted_at)
			  VALUES (?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE
			  predicted_category = VALUES(predicted_category),
			  confidence = VALUES(confidence),
			  agreement_ratio = VALUES(agreement_ratio),
			  algorithm_version = VALUES(algorithm_version),
			  predicted_at = VALUES(predicted_at)`

	_, err := m.db.ExecContext(ctx, query, rec.TargetPeriod, string(rec.PredictedCategory),
		rec.Confidence, rec.AgreementRatio, rec.AlgorithmVersion, rec.PredictedAt)
	if err != nil {
		return fmt.Errorf("failed to save prediction: %v", err)
	}

	logger.Debugf("Saved prediction for period: %s", rec.TargetPeriod)
	return nil
}

// ResolvePrediction 写入预测的开奖结果
func (m *MySQLDB) ResolvePrediction(ctx context.Context, period string, actual DrawResult, status OutcomeStatus) error {
	query := `UPDATE predictions
			  SET actual_number = ?, actual_category = ?, status = ?, verified_at = NOW()
			  WHERE target_period = ?`

	_, err := m.db.ExecContext(ctx, query, actual.Number, string(actual.Category), string(status), period)
	if err != nil {
		return fmt.Errorf("failed to update prediction result: %v", err)
	}

	logger.Debugf("Updated prediction result for period: %s, status: %s", period, status)
	return nil
}

// GetPredictionStats 获取已结算预测的统计信息
func (m *MySQLDB) GetPredictionStats(ctx context.Context) (*PredictionStats, error) {
	query := `SELECT
		COUNT(*) as total_predictions,
		COALESCE(SUM(CASE WHEN status = 'WIN' THEN 1 ELSE 0 END), 0) as wins,
		COALESCE(ROUND(SUM(CASE WHEN status = 'WIN' THEN 1 ELSE 0 END) * 100.0 / COUNT(*), 2), 0) as win_rate,
		MIN(predicted_at) as first_prediction,
		MAX(predicted_at) as last_prediction
	FROM predictions
	WHERE status IS NOT NULL`

	var stats PredictionStats
	var first, last sql.NullTime
	err := m.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalPredictions, &stats.Wins, &stats.WinRate, &first, &last,
	)
	if err == sql.ErrNoRows {
		return &PredictionStats{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction stats: %v", err)
	}

	if first.Valid {
		stats.FirstPrediction = &first.Time
	}
	if last.Valid {
		stats.LastPrediction = &last.Time
	}

	return &stats, nil
}

// tableSchemas 表结构
var tableSchemas = []struct {
	name   string
	schema string
}{
	{
		name: "draw_results",
		schema: `CREATE TABLE IF NOT EXISTS draw_results (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			period VARCHAR(32) UNIQUE NOT NULL COMMENT '期号',
			number TINYINT NOT NULL COMMENT '开奖号码',
			category VARCHAR(8) NOT NULL COMMENT '大小',
			parity VARCHAR(8) NOT NULL COMMENT '单双',
			color VARCHAR(16) NOT NULL COMMENT '颜色',
			observed_at DATETIME NOT NULL COMMENT '抓取时间',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP COMMENT '记录创建时间',
			INDEX idx_created_at (created_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci COMMENT='开奖数据表'`,
	},
	{
		name: "predictions",
		schema: `CREATE TABLE IF NOT EXISTS predictions (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			target_period VARCHAR(32) UNIQUE NOT NULL COMMENT '目标期号',
			predicted_category VARCHAR(8) NOT NULL COMMENT '预测大小',
			confidence DECIMAL(5,2) NOT NULL COMMENT '置信度',
			agreement_ratio INT NOT NULL COMMENT '算法一致率',
			actual_number TINYINT DEFAULT NULL COMMENT '实际开奖号码',
			actual_category VARCHAR(8) DEFAULT NULL COMMENT '实际大小',
			status VARCHAR(8) DEFAULT NULL COMMENT 'WIN/LOSS',
			algorithm_version VARCHAR(50) NOT NULL COMMENT '算法版本',
			predicted_at DATETIME NOT NULL COMMENT '预测时间',
			verified_at TIMESTAMP NULL COMMENT '验证时间',
			INDEX idx_predicted_at (predicted_at),
			INDEX idx_status (status)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci COMMENT='预测记录表'`,
	},
}

// createTablesIfNotExists 自动创建表结构
func (m *MySQLDB) createTablesIfNotExists(ctx context.Context) error {
	for _, t := range tableSchemas {
		if _, err := m.db.ExecContext(ctx, t.schema); err != nil {
			return fmt.Errorf("failed to create %s table: %v", t.name, err)
		}
	}
	return nil
}

// CleanOldData 清理超过保留时长的数据
func (m *MySQLDB) CleanOldData(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)

	res, err := m.db.ExecContext(ctx, "DELETE FROM draw_results WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean draw results: %v", err)
	}
	draws, _ := res.RowsAffected()

	res, err = m.db.ExecContext(ctx, "DELETE FROM predictions WHERE predicted_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean predictions: %v", err)
	}
	predictions, _ := res.RowsAffected()

	return draws + predictions, nil
}
