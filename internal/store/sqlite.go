package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stellarlinkco/batch-eval/internal/result"
)

const defaultListLimit = 50

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	insertRunStmt *sql.Stmt
	getRunStmt    *sql.Stmt
	listRunsStmt  *sql.Stmt
}

var (
	sqliteOpen              = sql.Open
	sqlitePrepareStatements = (*SQLiteStore).prepareStatements
)

// NewSQLiteStore opens or creates a SQLite store at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store: empty sqlite path")
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: create sqlite dir: %w", err)
			}
		}
	}

	db, err := sqliteOpen("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}

	if err := initSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	st := &SQLiteStore{db: db}
	if err := sqlitePrepareStatements(st); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func initSQLiteSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON`,
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			dataset TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			row_count INTEGER NOT NULL,
			column_count INTEGER NOT NULL,
			failure_count INTEGER NOT NULL,
			input_tokens INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			metrics_json BLOB NOT NULL,
			report_json BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) prepareStatements() error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}

	ctx := context.Background()
	type stmtSpec struct {
		dst    **sql.Stmt
		query  string
		errFmt string
	}

	specs := []stmtSpec{
		{
			dst: &s.insertRunStmt,
			query: `
				INSERT INTO runs (
					id, dataset, created_at, row_count, column_count, failure_count,
					input_tokens, output_tokens, metrics_json, report_json
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
			errFmt: "store: prepare insert run: %w",
		},
		{
			dst: &s.getRunStmt,
			query: `
				SELECT id, dataset, created_at, report_json
				FROM runs WHERE id = ?
			`,
			errFmt: "store: prepare get run: %w",
		},
		{
			dst: &s.listRunsStmt,
			query: `
				SELECT id, dataset, created_at, row_count, column_count, failure_count, metrics_json
				FROM runs
				ORDER BY created_at DESC, id DESC
				LIMIT ?
			`,
			errFmt: "store: prepare list runs: %w",
		},
	}

	for _, spec := range specs {
		stmt, err := s.db.PrepareContext(ctx, spec.query)
		if err != nil {
			return fmt.Errorf(spec.errFmt, err)
		}
		*spec.dst = stmt
	}
	return nil
}

// SaveReport persists one evaluation run.
func (s *SQLiteStore) SaveReport(ctx context.Context, rec *RunRecord) error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	if rec == nil || rec.Report == nil {
		return errors.New("store: nil run record")
	}
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("store: empty run id")
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	failures := 0
	for _, row := range rec.Report.Rows {
		failures += len(row.Errors)
	}

	metricsJSON, err := json.Marshal(rec.Report.Metrics)
	if err != nil {
		return fmt.Errorf("store: encode metrics: %w", err)
	}
	reportJSON, err := json.Marshal(rec.Report)
	if err != nil {
		return fmt.Errorf("store: encode report: %w", err)
	}

	_, err = s.insertRunStmt.ExecContext(ctx,
		rec.ID,
		rec.Dataset,
		createdAt.Unix(),
		len(rec.Report.Rows),
		len(rec.Report.Columns),
		failures,
		rec.Report.Usage.InputTokens,
		rec.Report.Usage.OutputTokens,
		metricsJSON,
		reportJSON,
	)
	if err != nil {
		return fmt.Errorf("store: insert run %q: %w", rec.ID, err)
	}
	return nil
}

// GetReport loads one stored run with its full report.
func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*RunRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("store: empty run id")
	}

	var (
		rec        RunRecord
		createdAt  int64
		reportJSON []byte
	)
	err := s.getRunStmt.QueryRowContext(ctx, id).Scan(&rec.ID, &rec.Dataset, &createdAt, &reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: run %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get run %q: %w", id, err)
	}

	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	var rep result.Report
	if err := json.Unmarshal(reportJSON, &rep); err != nil {
		return nil, fmt.Errorf("store: decode report %q: %w", id, err)
	}
	rec.Report = &rep
	return &rec, nil
}

// ListRuns returns the newest runs, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*RunSummary, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.listRunsStmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var out []*RunSummary
	for rows.Next() {
		var (
			sum         RunSummary
			createdAt   int64
			metricsJSON []byte
		)
		if err := rows.Scan(&sum.ID, &sum.Dataset, &createdAt, &sum.RowCount, &sum.ColumnCount, &sum.FailureCount, &metricsJSON); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		sum.CreatedAt = time.Unix(createdAt, 0).UTC()
		if len(metricsJSON) > 0 {
			if err := json.Unmarshal(metricsJSON, &sum.Metrics); err != nil {
				return nil, fmt.Errorf("store: decode metrics for %q: %w", sum.ID, err)
			}
		}
		out = append(out, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	return out, nil
}

// Close releases prepared statements and the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil {
		return nil
	}

	var firstErr error
	for _, stmt := range []*sql.Stmt{s.insertRunStmt, s.getRunStmt, s.listRunsStmt} {
		if stmt == nil {
			continue
		}
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
