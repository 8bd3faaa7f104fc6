// Package store records gather runs and keeps a queryable copy of the
// reconciled series in SQLite.
package store

import (
	"context"
	"time"

	"github.com/oscarsierraproject/covid19pl/internal/history"
)

// RunStatus is the lifecycle state of a gather run.
type RunStatus string

// Run states.
const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one execution of the gather pipeline.
type Run struct {
	ID           string     `json:"id"`
	Status       RunStatus  `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	SnapshotDate *time.Time `json:"snapshot_date,omitempty"`
	Records      int        `json:"records"`
	Error        string     `json:"error,omitempty"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status RunStatus `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// Store defines the persistence interface for runs and series.
type Store interface {
	// Runs
	StartRun(ctx context.Context) (*Run, error)
	CompleteRun(ctx context.Context, runID string, snapshotDate time.Time, records int) error
	FailRun(ctx context.Context, runID string, cause error) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	// Series
	ReplaceSeries(ctx context.Context, series map[string][]history.Row) error
	LoadSeries(ctx context.Context) (map[string][]history.Row, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
