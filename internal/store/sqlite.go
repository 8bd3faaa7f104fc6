package store

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/oscarsierraproject/covid19pl/internal/history"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = eris.New("run not found")

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS gather_runs (
	id            TEXT PRIMARY KEY,
	status        TEXT NOT NULL DEFAULT 'running',
	started_at    DATETIME NOT NULL,
	finished_at   DATETIME,
	snapshot_date DATETIME,
	records       INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS province_series (
	province        TEXT NOT NULL,
	day             TEXT NOT NULL,
	total           INTEGER NOT NULL,
	total_per_10k   REAL NOT NULL,
	dead            INTEGER NOT NULL,
	dead_by_covid   INTEGER NOT NULL,
	dead_with_covid INTEGER NOT NULL,
	total_sum       INTEGER NOT NULL,
	PRIMARY KEY (province, day)
);

CREATE INDEX IF NOT EXISTS idx_gather_runs_status ON gather_runs(status);
CREATE INDEX IF NOT EXISTS idx_gather_runs_started_at ON gather_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) StartRun(ctx context.Context) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gather_runs (id, status, started_at) VALUES (?, ?, ?)`,
		id, string(RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &Run{ID: id, Status: RunStatusRunning, StartedAt: now}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, snapshotDate time.Time, records int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE gather_runs SET status = ?, finished_at = ?, snapshot_date = ?, records = ? WHERE id = ?`,
		string(RunStatusComplete), time.Now().UTC(), snapshotDate.UTC(), records, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE gather_runs SET status = ?, finished_at = ?, error = ? WHERE id = ?`,
		string(RunStatusFailed), time.Now().UTC(), msg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, started_at, finished_at, snapshot_date, records, error FROM gather_runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, status, started_at, finished_at, snapshot_date, records, error FROM gather_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// ReplaceSeries swaps the stored series for the given ones in a single
// transaction, so writing the same history twice leaves the same table.
func (s *SQLiteStore) ReplaceSeries(ctx context.Context, series map[string][]history.Row) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin series tx")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM province_series`); err != nil {
		return eris.Wrap(err, "sqlite: clear series")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO province_series
		 (province, day, total, total_per_10k, dead, dead_by_covid, dead_with_covid, total_sum)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare series insert")
	}
	defer stmt.Close()

	for province, rows := range series {
		for _, r := range rows {
			_, err = stmt.ExecContext(ctx,
				province, r.Date.UTC().Format(time.RFC3339Nano),
				r.Total, r.TotalPer10k, r.Dead, r.DeadByCovid, r.DeadWithCovid, r.TotalSum,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: insert %s %s", province, r.Date.Format(time.DateOnly))
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit series")
	}
	return nil
}

func (s *SQLiteStore) LoadSeries(ctx context.Context) (map[string][]history.Row, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT province, day, total, total_per_10k, dead, dead_by_covid, dead_with_covid, total_sum
		 FROM province_series ORDER BY province, day`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load series")
	}
	defer rows.Close()

	out := make(map[string][]history.Row)
	for rows.Next() {
		var (
			province, day string
			r             history.Row
		)
		if err := rows.Scan(&province, &day, &r.Total, &r.TotalPer10k, &r.Dead, &r.DeadByCovid, &r.DeadWithCovid, &r.TotalSum); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan series row")
		}
		r.Date, err = time.Parse(time.RFC3339Nano, day)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse day %q", day)
		}
		out[province] = append(out[province], r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: load series iterate")
	}

	// RFC 3339 strings of mixed precision do not sort lexically.
	for _, series := range out {
		sort.SliceStable(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	}
	return out, nil
}

// helpers

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrRunNotFound, "run %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var (
		r                  Run
		status             string
		finished, snapshot sql.NullTime
	)
	err := row.Scan(&r.ID, &status, &r.StartedAt, &finished, &snapshot, &r.Records, &r.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	r.Status = RunStatus(status)
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	if snapshot.Valid {
		t := snapshot.Time
		r.SnapshotDate = &t
	}
	return &r, nil
}
