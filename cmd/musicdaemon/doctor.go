package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/example/musicdaemon/internal/config"
	"github.com/example/musicdaemon/internal/doctor"
	"github.com/example/musicdaemon/internal/model"
	"github.com/example/musicdaemon/internal/onnxsession"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local runtime and model asset checks",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			dcfg := doctor.Config{
				Runtime: func() (string, string, error) {
					info, err := onnxsession.DetectRuntime(cfg.Runtime)
					if err != nil {
						return "", "", err
					}

					return info.LibraryPath, info.Version, nil
				},
				CacheDir: cfg.Cache.Dir,
				Backends: []doctor.BackendAssets{
					backendAssets(config.BackendAR, cfg.AR.ModelDir),
					backendAssets(config.BackendDiffusion, cfg.Diffusion.ModelDir),
				},
			}

			result := doctor.Run(dcfg, os.Stdout)

			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(os.Stderr, "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			fmt.Fprintln(os.Stdout, "doctor checks passed")

			return nil
		},
	}

	return cmd
}

// backendAssets lists the relative file names doctor expects under a
// backend's model directory, taken straight from its pinned manifest.
func backendAssets(backend, dir string) doctor.BackendAssets {
	required := []string{}

	if manifest, err := model.PinnedManifest(backend); err == nil {
		for _, f := range manifest.Files {
			required = append(required, f.Filename)
		}
	}

	return doctor.BackendAssets{
		Backend:  backend,
		Dir:      dir,
		Required: required,
	}
}
