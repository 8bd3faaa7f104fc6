// Package server exposes the reconciled series over a read-only JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/oscarsierraproject/covid19pl/internal/history"
	"github.com/oscarsierraproject/covid19pl/internal/model"
)

// Loader produces the reconciliation served by a request. It is called per
// request so newly gathered snapshots show up without a restart.
type Loader func(ctx context.Context) (*history.Reconciliation, error)

// Server serves the history API.
type Server struct {
	load Loader
	log  *zap.Logger
}

// New returns a Server reading its data through load.
func New(load Loader, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{load: load, log: log}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Get("/provinces", s.provinces)
	r.Get("/series", s.allSeries)
	r.Get("/series/{province}", s.series)
	r.Get("/latest", s.latest)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("starting server", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

type seriesResponse struct {
	Province string        `json:"province"`
	Rows     []history.Row `json:"rows"`
}

type latestResponse struct {
	Date    time.Time        `json:"date"`
	Changes []history.Change `json:"changes"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) provinces(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.reconcile(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"provinces": rec.Provinces()})
}

func (s *Server) allSeries(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.reconcile(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec.SeriesForAll())
}

func (s *Server) series(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "province"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid province")
		return
	}

	rec, ok := s.reconcile(w, r)
	if !ok {
		return
	}
	rows, err := rec.SeriesFor(name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, seriesResponse{Province: history.NormalizeProvince(name), Rows: rows})
}

func (s *Server) latest(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.reconcile(w, r)
	if !ok {
		return
	}
	changes, err := rec.LatestChanges()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	at, _ := rec.Latest()
	writeJSON(w, http.StatusOK, latestResponse{Date: at, Changes: changes})
}

func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) (*history.Reconciliation, bool) {
	rec, err := s.load(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return rec, true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInsufficientHistory):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
