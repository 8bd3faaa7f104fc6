package main

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oscarsierraproject/covid19pl/internal/history"
	"github.com/oscarsierraproject/covid19pl/internal/plot"
)

var (
	plotProvince string
	plotOut      string
)

var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Render PNG charts of daily and all-time cases",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("report"); err != nil {
			return err
		}
		ws, err := loadWorkspace(cfg)
		if err != nil {
			return err
		}

		out := plotOut
		if out == "" {
			out = filepath.Join(cfg.Workspace, "charts")
		}

		series := ws.Rec.SeriesForAll()
		if plotProvince != "" {
			rows, err := ws.Rec.SeriesFor(plotProvince)
			if err != nil {
				return err
			}
			series = map[string][]history.Row{history.NormalizeProvince(plotProvince): rows}
		}

		log := zap.L().With(zap.String("component", "plot"))
		paths, err := plot.RenderAll(cmd.Context(), out, series, log)
		if err != nil {
			return err
		}
		log.Info("charts rendered", zap.String("dir", out), zap.Int("files", len(paths)))
		return nil
	},
}

func init() {
	plotCmd.Flags().StringVar(&plotProvince, "province", "", "only chart this province")
	plotCmd.Flags().StringVar(&plotOut, "out", "", "output directory (default <workspace>/charts)")
	rootCmd.AddCommand(plotCmd)
}
