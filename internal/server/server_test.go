package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oscarsierraproject/covid19pl/internal/history"
	"github.com/oscarsierraproject/covid19pl/internal/model"
)

func day(d int) time.Time {
	return time.Date(2020, 11, d, 10, 30, 0, 0, time.UTC)
}

func library(date time.Time, records ...model.Record) *model.Library {
	lib := model.NewLibrary(date)
	for _, r := range records {
		r.Date = date
		lib.Records = append(lib.Records, r)
	}
	return lib
}

func loaderFor(t *testing.T, libs ...*model.Library) Loader {
	t.Helper()
	return func(context.Context) (*history.Reconciliation, error) {
		e := history.NewEngine()
		if err := e.AddAll(libs); err != nil {
			return nil, err
		}
		return e.Reconcile()
	}
}

func twoDays() []*model.Library {
	return []*model.Library{
		library(day(24),
			model.Record{Province: "Cały kraj", Version: model.SchemaV2, Total: 5, Dead: 2},
			model.Record{Province: "opolskie", Version: model.SchemaV2, Total: 1, Dead: 0},
		),
		library(day(25),
			model.Record{Province: "Cały kraj", Version: model.SchemaV2, Total: 8, Dead: 1},
			model.Record{Province: "opolskie", Version: model.SchemaV2, Total: 3, Dead: 1},
		),
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	h := New(loaderFor(t), nil).Handler()
	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestProvinces(t *testing.T) {
	h := New(loaderFor(t, twoDays()...), nil).Handler()
	rec := get(t, h, "/provinces")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"CAŁA POLSKA", "OPOLSKIE"}, decode[map[string][]string](t, rec)["provinces"])
}

func TestSeries(t *testing.T) {
	h := New(loaderFor(t, twoDays()...), nil).Handler()

	rec := get(t, h, "/series/opolskie")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[seriesResponse](t, rec)
	assert.Equal(t, "OPOLSKIE", body.Province)
	require.Len(t, body.Rows, 2)
	assert.Equal(t, 3, body.Rows[1].Total)
	assert.Equal(t, 4, body.Rows[1].TotalSum)
}

func TestSeries_EscapedName(t *testing.T) {
	h := New(loaderFor(t, twoDays()...), nil).Handler()
	rec := get(t, h, "/series/CA%C5%81A%20POLSKA")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CAŁA POLSKA", decode[seriesResponse](t, rec).Province)
}

func TestSeries_NotFound(t *testing.T) {
	h := New(loaderFor(t, twoDays()...), nil).Handler()
	rec := get(t, h, "/series/atlantis")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "not found")
}

func TestAllSeries(t *testing.T) {
	h := New(loaderFor(t, twoDays()...), nil).Handler()
	rec := get(t, h, "/series")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[map[string][]history.Row](t, rec)
	assert.Len(t, all, 2)
	assert.Len(t, all["CAŁA POLSKA"], 2)
}

func TestLatest(t *testing.T) {
	h := New(loaderFor(t, twoDays()...), nil).Handler()
	rec := get(t, h, "/latest")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[latestResponse](t, rec)
	assert.True(t, body.Date.Equal(day(25)))
	require.Len(t, body.Changes, 2)
	assert.Equal(t, "CAŁA POLSKA", body.Changes[0].Province)
	assert.Equal(t, 3, body.Changes[0].Delta.Total)
	assert.Equal(t, -1, body.Changes[0].Delta.Dead)
}

func TestLatest_InsufficientHistory(t *testing.T) {
	h := New(loaderFor(t, twoDays()[:1]...), nil).Handler()
	rec := get(t, h, "/latest")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoaderFailure(t *testing.T) {
	load := func(context.Context) (*history.Reconciliation, error) {
		return nil, eris.New("workspace unreadable")
	}
	h := New(load, nil).Handler()
	rec := get(t, h, "/provinces")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decode[map[string]string](t, rec)["error"])
}

func TestCORS(t *testing.T) {
	h := New(loaderFor(t), nil).Handler()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(eris.Wrap(model.ErrNotFound, "x")))
	assert.Equal(t, http.StatusConflict, statusFor(eris.Wrap(model.ErrInsufficientHistory, "x")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(eris.New("x")))
}
