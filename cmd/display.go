package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/oscarsierraproject/covid19pl/internal/report"
)

var displayRaw bool

var displayCmd = &cobra.Command{
	Use:   "display",
	Short: "Print the latest figures with their one day change",
	Long: "Prints the reconciled one day change table. With --raw the two newest snapshots are compared\n" +
		"as published, row by row, which fails when the province labels differ between them.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("report"); err != nil {
			return err
		}
		ws, err := loadWorkspace(cfg)
		if err != nil {
			return err
		}
		if displayRaw {
			return report.WriteRawChanges(os.Stdout, ws.Engine.Libraries())
		}
		return report.WriteSummary(os.Stdout, ws.Rec, ws.Latest())
	},
}

func init() {
	displayCmd.Flags().BoolVar(&displayRaw, "raw", false, "compare the two newest snapshots as published")
	rootCmd.AddCommand(displayCmd)
}
