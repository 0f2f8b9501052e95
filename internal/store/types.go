package store

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/stellarlinkco/batch-eval/internal/result"
)

// ReportWriter defines persistence for evaluation reports.
type ReportWriter interface {
	SaveReport(ctx context.Context, rec *RunRecord) error
}

// ReportReader defines read access to stored reports.
type ReportReader interface {
	GetReport(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*RunSummary, error)
}

// Store defines persistence for evaluation runs.
type Store interface {
	ReportWriter
	ReportReader
	Close() error
}

// RunRecord stores one evaluation run with its full report.
type RunRecord struct {
	ID        string
	Dataset   string // dataset label or source path
	CreatedAt time.Time
	Report    *result.Report
}

// RunSummary is the list view of a stored run.
type RunSummary struct {
	ID           string
	Dataset      string
	CreatedAt    time.Time
	RowCount     int
	ColumnCount  int
	FailureCount int
	Metrics      map[string]float64
}

// NewRunID mints a unique, sortable run identifier.
func NewRunID() (string, error) {
	var buf [8]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("run_%s_%x", time.Now().UTC().Format("20060102T150405Z"), buf), nil
}
