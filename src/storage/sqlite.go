package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// RunRecord 一次运行的统计
type RunRecord struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Months   []string
	Loaded   int
	Cleaned  int
	Filtered int
	Routes   int
	Sampled  int
	Groups   int
}

// AggregateRecord 对应 agg_route_daily 的一行, SDDelay 为 NaN 时存为 NULL
type AggregateRecord struct {
	RouteID   string
	Date      string
	MeanDelay float64
	SDDelay   float64
	NTrains   int
	Weekday   int
	IsWeekend bool
	City      string // 为空时存为 NULL
}

// AggregateStore 把聚合结果写入 sqlite
type AggregateStore struct {
	conn    *sql.DB
	writeMu sync.Mutex
}

// OpenAggregateStore 打开(必要时创建)数据库并建表
func OpenAggregateStore(ctx context.Context, dbPath string) (*AggregateStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite 同一时间只允许一个写连接
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &AggregateStore{conn: conn}
	if err := s.ensureSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *AggregateStore) ensureSchema(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close 关闭数据库
func (s *AggregateStore) Close() error {
	return s.conn.Close()
}

// SaveRun 在一个事务中写入运行记录与全部聚合结果, RunID 为空时生成新的
func (s *AggregateStore) SaveRun(ctx context.Context, run RunRecord, rows []AggregateRecord) (string, error) {
	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pipeline_runs
			(run_id, started_at, finished_at, months, loaded, cleaned, filtered, routes, sampled, groups_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		run.Started.UTC().Format(time.RFC3339Nano),
		run.Finished.UTC().Format(time.RFC3339Nano),
		strings.Join(run.Months, ","),
		run.Loaded, run.Cleaned, run.Filtered, run.Routes, run.Sampled, run.Groups,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO agg_route_daily
			(run_id, route_id, date, mean_delay, sd_delay, n_trains, weekday, is_weekend, city)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare aggregate insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		sd := sql.NullFloat64{Float64: r.SDDelay, Valid: !math.IsNaN(r.SDDelay)}
		city := sql.NullString{String: r.City, Valid: r.City != ""}
		if _, err := stmt.ExecContext(ctx, run.RunID, r.RouteID, r.Date, r.MeanDelay, sd,
			r.NTrains, r.Weekday, r.IsWeekend, city); err != nil {
			return "", fmt.Errorf("insert aggregate %s %s: %w", r.RouteID, r.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return run.RunID, nil
}

// Run 查询运行记录
func (s *AggregateStore) Run(ctx context.Context, runID string) (RunRecord, error) {
	var (
		run               RunRecord
		started, finished string
		months            string
	)
	err := s.conn.QueryRowContext(ctx, `
		SELECT run_id, started_at, finished_at, months, loaded, cleaned, filtered, routes, sampled, groups_count
		FROM pipeline_runs WHERE run_id = ?`, runID).
		Scan(&run.RunID, &started, &finished, &months,
			&run.Loaded, &run.Cleaned, &run.Filtered, &run.Routes, &run.Sampled, &run.Groups)
	if err != nil {
		return RunRecord{}, fmt.Errorf("query run %s: %w", runID, err)
	}
	run.Started, _ = time.Parse(time.RFC3339Nano, started)
	run.Finished, _ = time.Parse(time.RFC3339Nano, finished)
	if months != "" {
		run.Months = strings.Split(months, ",")
	}
	return run, nil
}

// Aggregates 按线路、日期顺序返回某次运行的聚合结果
func (s *AggregateStore) Aggregates(ctx context.Context, runID string) ([]AggregateRecord, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT route_id, date, mean_delay, sd_delay, n_trains, weekday, is_weekend, city
		FROM agg_route_daily WHERE run_id = ?
		ORDER BY route_id, date`, runID)
	if err != nil {
		return nil, fmt.Errorf("query aggregates: %w", err)
	}
	defer rows.Close()

	var out []AggregateRecord
	for rows.Next() {
		var (
			r    AggregateRecord
			sd   sql.NullFloat64
			city sql.NullString
		)
		if err := rows.Scan(&r.RouteID, &r.Date, &r.MeanDelay, &sd, &r.NTrains, &r.Weekday, &r.IsWeekend, &city); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		r.SDDelay = math.NaN()
		if sd.Valid {
			r.SDDelay = sd.Float64
		}
		r.City = city.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestRunID 返回最近一次运行的标识
func (s *AggregateStore) LatestRunID(ctx context.Context) (string, error) {
	var id string
	err := s.conn.QueryRowContext(ctx,
		`SELECT run_id FROM pipeline_runs ORDER BY finished_at DESC LIMIT 1`).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("query latest run: %w", err)
	}
	return id, nil
}
