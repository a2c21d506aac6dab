package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/musicdaemon/internal/daemon"
	"github.com/example/musicdaemon/internal/onnxsession"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var token string
	var version string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON-RPC daemon on stdin/stdout",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if _, err := onnxsession.Bootstrap(cfg.Runtime); err != nil {
				return fmt.Errorf("detect onnx runtime: %w", err)
			}

			d, err := daemon.New(daemon.Options{
				Config:     cfg,
				AssetToken: token,
				Version:    version,
			})
			if err != nil {
				return fmt.Errorf("build daemon: %w", err)
			}

			// Stdin EOF (handled inside Server.Serve) is the primary shutdown
			// trigger per spec §6; SIGINT/SIGTERM give an operator an escape
			// hatch when the front-end process disappears without closing
			// stdin cleanly.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return d.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&token, "asset-token", os.Getenv("MUSICDAEMON_ASSET_TOKEN"), "Bearer token for gated model asset downloads")
	cmd.Flags().StringVar(&version, "report-version", "", "Version string reported by ping (defaults to build info)")

	return cmd
}
