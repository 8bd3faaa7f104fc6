package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oscarsierraproject/covid19pl/internal/config"
	"github.com/oscarsierraproject/covid19pl/internal/model"
	"github.com/oscarsierraproject/covid19pl/internal/snapshot"
)

func testConfig(dir string) *config.Config {
	return &config.Config{
		Workspace: dir,
		Reconcile: config.ReconcileConfig{CutoverDate: "2020-11-24"},
	}
}

func seedWorkspace(t *testing.T, libs ...*model.Library) string {
	t.Helper()
	dir := t.TempDir()
	files := snapshot.NewFileStore(dir)
	for _, lib := range libs {
		_, err := files.Save(lib, false)
		require.NoError(t, err)
	}
	return dir
}

func TestLoadWorkspace(t *testing.T) {
	dir := seedWorkspace(t,
		testLibrary(time.Date(2020, 11, 25, 10, 30, 0, 0, time.UTC), 300),
		testLibrary(time.Date(2020, 11, 24, 10, 30, 0, 0, time.UTC), 100),
	)

	ws, err := loadWorkspace(testConfig(dir))
	require.NoError(t, err)
	assert.Equal(t, []string{"CAŁA POLSKA", "OPOLSKIE"}, ws.Rec.Provinces())
	assert.True(t, ws.Latest().Date.Equal(time.Date(2020, 11, 25, 10, 30, 0, 0, time.UTC)))

	rows, err := ws.Rec.SeriesFor("Cała Polska")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 400, rows[1].TotalSum)
}

func TestLoadWorkspace_Empty(t *testing.T) {
	_, err := loadWorkspace(testConfig(t.TempDir()))
	assert.ErrorContains(t, err, "no snapshots")
}

func TestLoadWorkspace_BadCutover(t *testing.T) {
	c := testConfig(t.TempDir())
	c.Reconcile.CutoverDate = "24.11.2020"
	_, err := loadWorkspace(c)
	assert.Error(t, err)
}

func TestSendDigest_NoRecipients(t *testing.T) {
	dir := seedWorkspace(t,
		testLibrary(time.Date(2020, 11, 24, 10, 30, 0, 0, time.UTC), 100),
		testLibrary(time.Date(2020, 11, 25, 10, 30, 0, 0, time.UTC), 300),
	)
	ws, err := loadWorkspace(testConfig(dir))
	require.NoError(t, err)

	err = sendDigest(context.Background(), config.EmailConfig{}, ws, nil)
	assert.ErrorContains(t, err, "no recipients")
}
