package main

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oscarsierraproject/covid19pl/internal/model"
	"github.com/oscarsierraproject/covid19pl/internal/snapshot"
	"github.com/oscarsierraproject/covid19pl/internal/store"
)

var gatherForce bool

var gatherCmd = &cobra.Command{
	Use:   "gather",
	Short: "Download today's statistics and save a snapshot",
	Long:  "Downloads the gov.pl infection list, parses it and writes COVID19_PL_<date>.json into the workspace. An existing file for the day is kept unless --force is set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("gather"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		g := gatherer{
			source: newCrawler(cfg.Crawler),
			files:  snapshot.NewFileStore(cfg.Workspace),
			runs:   st,
			log:    zap.L().With(zap.String("component", "gather")),
		}
		_, err = g.run(ctx, gatherForce)
		return err
	},
}

func init() {
	gatherCmd.Flags().BoolVar(&gatherForce, "force", false, "overwrite today's snapshot if it exists")
	rootCmd.AddCommand(gatherCmd)
}

// source yields one freshly gathered library.
type source interface {
	Gather(ctx context.Context) (*model.Library, error)
}

// gatherer runs one gather: crawl, save, and record the run when a store
// is configured.
type gatherer struct {
	source source
	files  *snapshot.FileStore
	runs   store.Store
	log    *zap.Logger
}

// run returns the gathered library. A snapshot that already exists is not
// an error; the run is recorded as complete with the existing day.
func (g gatherer) run(ctx context.Context, force bool) (*model.Library, error) {
	var run *store.Run
	if g.runs != nil {
		r, err := g.runs.StartRun(ctx)
		if err != nil {
			return nil, err
		}
		run = r
		g.log.Debug("gather run started", zap.String("run_id", run.ID))
	}

	lib, err := g.gather(ctx, force)
	if err != nil {
		if run != nil {
			if ferr := g.runs.FailRun(ctx, run.ID, err); ferr != nil {
				g.log.Warn("failed to record run failure", zap.Error(ferr))
			}
		}
		return nil, err
	}

	if run != nil {
		if err := g.runs.CompleteRun(ctx, run.ID, lib.Date, len(lib.Records)); err != nil {
			return lib, err
		}
	}
	return lib, nil
}

func (g gatherer) gather(ctx context.Context, force bool) (*model.Library, error) {
	lib, err := g.source.Gather(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "gather")
	}

	path, err := g.files.Save(lib, force)
	switch {
	case errors.Is(err, snapshot.ErrSnapshotExists):
		g.log.Info("snapshot for today already exists, use --force to overwrite",
			zap.String("file", snapshot.FileName(lib.Date)),
		)
		return lib, nil
	case err != nil:
		return nil, err
	}

	g.log.Info("gathered snapshot",
		zap.String("file", path),
		zap.Int("records", len(lib.Records)),
		zap.String("version", string(lib.Version)),
	)
	return lib, nil
}
