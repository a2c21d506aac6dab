package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/example/musicdaemon/internal/config"
	"github.com/example/musicdaemon/internal/daemon"
	"github.com/example/musicdaemon/internal/model"
	"github.com/spf13/cobra"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage per-backend model assets",
	}

	cmd.AddCommand(newModelDownloadCmd())
	cmd.AddCommand(newModelVerifyCmd())
	cmd.AddCommand(newModelListCmd())

	return cmd
}

func newModelListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show install status for both back-ends",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			reg, err := daemon.NewRegistry(cfg, os.Getenv("MUSICDAEMON_ASSET_TOKEN"), nil)
			if err != nil {
				return fmt.Errorf("build backend registry: %w", err)
			}

			for _, b := range reg.List() {
				fmt.Fprintf(os.Stdout, "%-10s %-10s model_version=%s sample_rate=%d duration=%d-%ds\n",
					b.Type, b.Status, b.ModelVersion, b.SampleRate, b.MinDurationSec, b.MaxDurationSec)
			}

			return nil
		},
	}

	return cmd
}

func newModelDownloadCmd() *cobra.Command {
	var backend string
	var token string

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Fetch a backend's pinned ONNX assets",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			backend, err = config.NormalizeBackend(backend)
			if err != nil {
				return err
			}

			outDir := cfg.AR.ModelDir
			if backend == config.BackendDiffusion {
				outDir = cfg.Diffusion.ModelDir
			}

			if token == "" {
				token = os.Getenv("MUSICDAEMON_ASSET_TOKEN")
			}

			return model.Download(model.DownloadOptions{
				Backend: backend,
				OutDir:  outDir,
				Token:   token,
				Stdout:  os.Stdout,
				Stderr:  os.Stderr,
			})
		},
	}

	cmd.Flags().StringVar(&backend, "backend", config.BackendAR, "Backend to download (ar|diffusion)")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token for gated asset downloads (falls back to MUSICDAEMON_ASSET_TOKEN)")

	return cmd
}

func newModelVerifyCmd() *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Load each ONNX session and run one smoke inference",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			backend, err = config.NormalizeBackend(backend)
			if err != nil {
				return err
			}

			modelDir := cfg.AR.ModelDir
			if backend == config.BackendDiffusion {
				modelDir = cfg.Diffusion.ModelDir
			}

			manifestPath := filepath.Join(modelDir, "onnx", "manifest.json")

			if _, err := os.Stat(manifestPath); os.IsNotExist(err) {
				return fmt.Errorf("no manifest at %s; run `musicdaemon model download --backend %s` first", manifestPath, backend)
			}

			return model.VerifyONNX(model.VerifyOptions{
				ManifestPath: manifestPath,
				ORTLibrary:   cfg.Runtime.ORTLibraryPath,
				Stdout:       os.Stdout,
				Stderr:       os.Stderr,
			})
		},
	}

	cmd.Flags().StringVar(&backend, "backend", config.BackendAR, "Backend to verify (ar|diffusion)")

	return cmd
}
