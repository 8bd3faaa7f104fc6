package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oscarsierraproject/covid19pl/internal/history"
	"github.com/oscarsierraproject/covid19pl/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the reconciled series over HTTP",
	Long:  "Starts a read-only JSON API. Every request reconciles the workspace afresh, so new snapshots are visible immediately.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		load := func(context.Context) (*history.Reconciliation, error) {
			ws, err := loadWorkspace(cfg)
			if err != nil {
				return nil, err
			}
			return ws.Rec, nil
		}

		srv := server.New(load, zap.L().With(zap.String("component", "server")))
		return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
