package main

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oscarsierraproject/covid19pl/internal/report"
)

var (
	exportOut  string
	exportXLSX string
	exportDB   bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the reconciled series as CSV, XLSX or into SQLite",
	Long:  "Writes one covid19pl_<province>.csv per province into --out. --xlsx also writes a workbook with a sheet per province, and --db replaces the series table of the configured SQLite store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("report"); err != nil {
			return err
		}
		ws, err := loadWorkspace(cfg)
		if err != nil {
			return err
		}
		series := ws.Rec.SeriesForAll()

		out := exportOut
		if out == "" {
			out = filepath.Join(cfg.Workspace, "export")
		}
		paths, err := report.ExportCSV(out, series)
		if err != nil {
			return err
		}
		zap.L().Info("exported csv", zap.String("dir", out), zap.Int("files", len(paths)))

		if exportXLSX != "" {
			if err := report.ExportXLSX(exportXLSX, series); err != nil {
				return err
			}
			zap.L().Info("exported xlsx", zap.String("file", exportXLSX))
		}

		if exportDB {
			st, err := openStore(cmd.Context(), cfg.Store)
			if err != nil {
				return err
			}
			if st == nil {
				zap.L().Warn("store.path is empty, skipping database export")
				return nil
			}
			defer st.Close() //nolint:errcheck
			if err := st.ReplaceSeries(cmd.Context(), series); err != nil {
				return err
			}
			zap.L().Info("exported series to database", zap.String("db", cfg.Store.Path))
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "CSV output directory (default <workspace>/export)")
	exportCmd.Flags().StringVar(&exportXLSX, "xlsx", "", "also write an XLSX workbook to this path")
	exportCmd.Flags().BoolVar(&exportDB, "db", false, "also replace the series stored in SQLite")
	rootCmd.AddCommand(exportCmd)
}
