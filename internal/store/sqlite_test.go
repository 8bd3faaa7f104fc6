package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oscarsierraproject/covid19pl/internal/history"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func day(d int) time.Time {
	return time.Date(2020, 11, d, 10, 30, 0, 0, time.UTC)
}

// --- Runs ---

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_StartAndCompleteRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.StartRun(ctx)
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)
	assert.Equal(t, RunStatusRunning, run.Status)

	require.NoError(t, st.CompleteRun(ctx, run.ID, day(24), 17))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusComplete, got.Status)
	assert.Equal(t, 17, got.Records)
	assert.Empty(t, got.Error)
	require.NotNil(t, got.FinishedAt)
	require.NotNil(t, got.SnapshotDate)
	assert.True(t, got.SnapshotDate.Equal(day(24)))
	assert.WithinDuration(t, run.StartedAt, got.StartedAt, time.Second)
}

func TestSQLite_FailRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.StartRun(ctx)
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, run.ID, errors.New("unexpected status 503")))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "unexpected status 503", got.Error)
	assert.NotNil(t, got.FinishedAt)
	assert.Nil(t, got.SnapshotDate)
}

func TestSQLite_UnknownRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, st.CompleteRun(ctx, "missing", day(24), 1), ErrRunNotFound)
	assert.ErrorIs(t, st.FailRun(ctx, "missing", nil), ErrRunNotFound)
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := st.StartRun(ctx)
		require.NoError(t, err)
		ids = append(ids, run.ID)
		time.Sleep(5 * time.Millisecond)
	}
	require.NoError(t, st.FailRun(ctx, ids[1], errors.New("boom")))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID, "newest run first")

	failed, err := st.ListRuns(ctx, RunFilter{Status: RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, ids[1], failed[0].ID)

	page, err := st.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)
}

// --- Series ---

func testSeries() map[string][]history.Row {
	return map[string][]history.Row{
		"CAŁA POLSKA": {
			{Date: day(22), Total: 10, Dead: 1, TotalSum: 10},
			{Date: day(23), Total: 5, Dead: 2, TotalSum: 15},
			{Date: day(24), Total: 5, TotalPer10k: 0.5, Dead: 2, DeadByCovid: 1, DeadWithCovid: 1, TotalSum: 20},
		},
		"OPOLSKIE": {
			{Date: day(24), Total: 1, TotalPer10k: 0.25, TotalSum: 1},
		},
	}
}

func TestSQLite_ReplaceAndLoadSeries(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.ReplaceSeries(ctx, testSeries()))

	got, err := st.LoadSeries(ctx)
	require.NoError(t, err)
	assert.Equal(t, testSeries(), got)
}

func TestSQLite_ReplaceSeries_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.ReplaceSeries(ctx, testSeries()))
	require.NoError(t, st.ReplaceSeries(ctx, testSeries()))

	got, err := st.LoadSeries(ctx)
	require.NoError(t, err)
	assert.Len(t, got["CAŁA POLSKA"], 3)
	assert.Equal(t, testSeries(), got)
}

func TestSQLite_ReplaceSeries_DropsOldProvinces(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.ReplaceSeries(ctx, testSeries()))
	require.NoError(t, st.ReplaceSeries(ctx, map[string][]history.Row{
		"LUBUSKIE": {{Date: day(24), Total: 3, TotalSum: 3}},
	}))

	got, err := st.LoadSeries(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got, "LUBUSKIE")
}

func TestSQLite_ReplaceSeries_DuplicateDayRollsBack(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.ReplaceSeries(ctx, testSeries()))
	err := st.ReplaceSeries(ctx, map[string][]history.Row{
		"OPOLSKIE": {{Date: day(24)}, {Date: day(24)}},
	})
	require.Error(t, err)

	got, err := st.LoadSeries(ctx)
	require.NoError(t, err)
	assert.Equal(t, testSeries(), got)
}

func TestSQLite_LoadSeries_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)
	got, err := st.LoadSeries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}
