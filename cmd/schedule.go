package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oscarsierraproject/covid19pl/internal/config"
	"github.com/oscarsierraproject/covid19pl/internal/snapshot"
	"github.com/oscarsierraproject/covid19pl/internal/store"
)

var scheduleNow bool

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Gather on a cron schedule until interrupted",
	Long:  "Runs gather, reconcile and, when schedule.email is set, the email digest on schedule.cron.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("schedule"); err != nil {
			return err
		}
		if cfg.Schedule.Email {
			if err := cfg.Validate("email"); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		log := zap.L().With(zap.String("component", "schedule"))
		job := dailyJob{cfg: cfg, runs: st, log: log}

		c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
		if _, err := c.AddFunc(cfg.Schedule.Cron, func() { job.Run(ctx) }); err != nil {
			return eris.Wrapf(err, "schedule: cron %q", cfg.Schedule.Cron)
		}
		c.Start()
		log.Info("scheduler started", zap.String("cron", cfg.Schedule.Cron), zap.Bool("email", cfg.Schedule.Email))

		if scheduleNow {
			job.Run(ctx)
		}

		<-ctx.Done()
		log.Info("stopping scheduler")
		<-c.Stop().Done()
		return nil
	},
}

func init() {
	scheduleCmd.Flags().BoolVar(&scheduleNow, "now", false, "also run the job once at startup")
	rootCmd.AddCommand(scheduleCmd)
}

// dailyJob is one scheduled pass: gather, reconcile, optionally mail.
type dailyJob struct {
	cfg  *config.Config
	runs store.Store
	log  *zap.Logger
}

// Run logs failures instead of returning them so the schedule keeps going.
func (j dailyJob) Run(ctx context.Context) {
	if err := j.run(ctx); err != nil {
		j.log.Error("scheduled run failed", zap.Error(err))
	}
}

func (j dailyJob) run(ctx context.Context) error {
	g := gatherer{
		source: newCrawler(j.cfg.Crawler),
		files:  snapshot.NewFileStore(j.cfg.Workspace),
		runs:   j.runs,
		log:    j.log,
	}
	if _, err := g.run(ctx, false); err != nil {
		return err
	}

	ws, err := loadWorkspace(j.cfg)
	if err != nil {
		return err
	}
	if j.runs != nil {
		if err := j.runs.ReplaceSeries(ctx, ws.Rec.SeriesForAll()); err != nil {
			return err
		}
	}

	if !j.cfg.Schedule.Email {
		return nil
	}
	return sendDigest(ctx, j.cfg.Email, ws, j.cfg.Email.Recipients)
}
