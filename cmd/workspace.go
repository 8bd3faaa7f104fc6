package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/oscarsierraproject/covid19pl/internal/config"
	"github.com/oscarsierraproject/covid19pl/internal/crawler"
	"github.com/oscarsierraproject/covid19pl/internal/fetcher"
	"github.com/oscarsierraproject/covid19pl/internal/history"
	"github.com/oscarsierraproject/covid19pl/internal/model"
	"github.com/oscarsierraproject/covid19pl/internal/snapshot"
	"github.com/oscarsierraproject/covid19pl/internal/store"
)

// workspace is the reconciled view of every snapshot in the workspace.
type workspace struct {
	Files  *snapshot.FileStore
	Engine *history.Engine
	Rec    *history.Reconciliation
}

// Latest returns the newest snapshot, or nil for an empty workspace.
func (ws *workspace) Latest() *model.Library {
	lib, _ := ws.Engine.Latest()
	return lib
}

// loadWorkspace reads every snapshot under c.Workspace and reconciles them.
func loadWorkspace(c *config.Config) (*workspace, error) {
	cutover, err := c.Reconcile.Cutover()
	if err != nil {
		return nil, err
	}

	files := snapshot.NewFileStore(c.Workspace)
	libs, err := files.LoadAll()
	if err != nil {
		return nil, err
	}
	if len(libs) == 0 {
		return nil, eris.Errorf("no snapshots in %s, run 'covid19pl gather' first", c.Workspace)
	}

	engine := history.NewEngine(
		history.WithCutover(cutover),
		history.WithLogger(zap.L().With(zap.String("component", "history"))),
	)
	if err := engine.AddAll(libs); err != nil {
		return nil, err
	}

	rec, err := engine.Reconcile()
	if err != nil {
		return nil, eris.Wrap(err, "reconcile history")
	}

	zap.L().Debug("workspace loaded",
		zap.String("dir", c.Workspace),
		zap.Int("snapshots", engine.Len()),
		zap.Int("provinces", len(rec.Provinces())),
	)
	return &workspace{Files: files, Engine: engine, Rec: rec}, nil
}

// newCrawler builds the gov.pl crawler from the crawler settings.
func newCrawler(c config.CrawlerConfig) *crawler.Crawler {
	log := zap.L().With(zap.String("component", "crawler"))
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  c.UserAgent,
		Timeout:    time.Duration(c.TimeoutSecs) * time.Second,
		MaxRetries: c.MaxRetries,
		RatePerSec: c.RatePerSec,
		Logger:     log,
	})
	return crawler.New(f, crawler.WithURL(c.URL), crawler.WithLogger(log))
}

// openStore opens and migrates the SQLite run log. It returns nil when
// store.path is empty.
func openStore(ctx context.Context, c config.StoreConfig) (store.Store, error) {
	if c.Path == "" {
		return nil, nil
	}
	st, err := store.NewSQLite(c.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
