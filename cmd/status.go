package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oscarsierraproject/covid19pl/internal/store"
)

var (
	statusLimit int
	statusRun   string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the gather run log",
	Long: "Displays recent gather runs recorded in the SQLite store, newest first.\n" +
		"With --run the full record of one run is shown; gather logs the run_id.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		if st == nil {
			return eris.New("status: store.path is empty")
		}
		defer st.Close() //nolint:errcheck

		if statusRun != "" {
			return showRun(ctx, st, statusRun, os.Stdout)
		}

		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: statusLimit})
		if err != nil {
			return eris.Wrap(err, "status")
		}

		if len(runs) == 0 {
			zap.L().Info("no gather runs found, run 'covid19pl gather' first")
			return nil
		}

		formatRuns(os.Stdout, runs)
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "number of runs to show")
	statusCmd.Flags().StringVar(&statusRun, "run", "", "show one run by its full ID")
	rootCmd.AddCommand(statusCmd)
}

// formatRuns writes a tabular representation of gather runs to w.
func formatRuns(out io.Writer, runs []store.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tDURATION\tSNAPSHOT\tRECORDS\tERROR")
	_, _ = fmt.Fprintln(w, "--\t------\t-------\t--------\t--------\t-------\t-----")

	for _, r := range runs {
		dur := "-"
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}

		snap := "-"
		if r.SnapshotDate != nil {
			snap = r.SnapshotDate.Format(time.DateOnly)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			shortID(r.ID),
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			snap,
			r.Records,
			truncate(r.Error, 60),
		)
	}
	_ = w.Flush()
}

// showRun looks up one run by ID and writes it to w.
func showRun(ctx context.Context, st store.Store, id string, w io.Writer) error {
	run, err := st.GetRun(ctx, id)
	if err != nil {
		return eris.Wrap(err, "status")
	}
	formatRun(w, run)
	return nil
}

// formatRun writes every field of one run, untruncated.
func formatRun(out io.Writer, r *store.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	field := func(k, v string) { _, _ = fmt.Fprintf(w, "%s:\t%s\n", k, v) }

	field("ID", r.ID)
	field("Status", string(r.Status))
	field("Started", r.StartedAt.Format(time.DateTime))
	if r.FinishedAt != nil {
		field("Finished", r.FinishedAt.Format(time.DateTime))
		field("Duration", r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String())
	}
	if r.SnapshotDate != nil {
		field("Snapshot", r.SnapshotDate.Format(time.DateTime))
	}
	field("Records", fmt.Sprint(r.Records))
	if r.Error != "" {
		field("Error", r.Error)
	}
	_ = w.Flush()
}

// shortID returns the first block of a UUID.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
