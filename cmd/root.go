package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oscarsierraproject/covid19pl/internal/config"
)

var (
	cfg *config.Config

	workspaceFlag string
	envFileFlag   string
	debugFlag     bool
)

var rootCmd = &cobra.Command{
	Use:   "covid19pl",
	Short: "Daily SARS-CoV-2 statistics for Polish provinces",
	Long:  "Gathers the gov.pl infection list once a day, keeps every snapshot, and reconciles them into per-province daily series for tables, email digests, exports and charts.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(envFileFlag)
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if workspaceFlag != "" {
			c.Workspace = workspaceFlag
		}
		if debugFlag {
			c.Log.Level = "debug"
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&workspaceFlag, "workspace", "", "snapshot directory (default from config)")
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env", "", "dotenv file loaded before configuration")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
