package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/example/musicdaemon/internal/ar"
	"github.com/example/musicdaemon/internal/audio"
	"github.com/example/musicdaemon/internal/cache"
	"github.com/example/musicdaemon/internal/config"
	"github.com/example/musicdaemon/internal/diffusion"
	"github.com/example/musicdaemon/internal/model"
	"github.com/example/musicdaemon/internal/onnxsession"
	"github.com/spf13/cobra"
)

// newGenerateCmd builds a one-shot CLI driver around the same cache/engine
// pipeline the RPC "generate" method uses, for scripting and smoke-testing
// a model install without an editor front-end attached to stdio.
func newGenerateCmd() *cobra.Command {
	var backend string
	var durationSec int
	var seed uint64
	var steps int
	var scheduler string
	var guidanceScale float64

	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Generate one track from the command line and print its cache path",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			backend, err = config.NormalizeBackend(backend)
			if err != nil {
				return err
			}

			if _, err := onnxsession.Bootstrap(cfg.Runtime); err != nil {
				return fmt.Errorf("detect onnx runtime: %w", err)
			}

			trackCache, err := cache.Open(cfg.Cache.Dir, cfg.Cache.MaxMB, cfg.Cache.MaxTracks)
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}

			if seed == 0 {
				seed = uint64(time.Now().UnixNano())
			}

			prompt := args[0]
			ctx := context.Background()

			var samples []float32
			var sampleRate int
			var modelVersion string

			switch backend {
			case config.BackendAR:
				modelVersion, err = model.ModelVersion(config.BackendAR)
				if err != nil {
					return err
				}

				modelCfg := ar.DefaultModelConfig(modelVersion)
				engine := ar.NewEngine(
					filepath.Join(cfg.AR.ModelDir, "onnx", "manifest.json"),
					filepath.Join(cfg.AR.ModelDir, "tokenizer", "vocab.json"),
					onnxsession.RunnerConfig{LibraryPath: cfg.Runtime.ORTLibraryPath},
					modelCfg,
				)

				samples, err = engine.Generate(ctx, ar.Request{Prompt: prompt, DurationSec: durationSec, Seed: seed}, &cliProgress{})
				sampleRate = modelCfg.SampleRate
			case config.BackendDiffusion:
				modelVersion, err = model.ModelVersion(config.BackendDiffusion)
				if err != nil {
					return err
				}

				modelCfg := diffusion.DefaultModelConfig(modelVersion)
				engine := diffusion.NewEngine(
					filepath.Join(cfg.Diffusion.ModelDir, "onnx", "manifest.json"),
					filepath.Join(cfg.Diffusion.ModelDir, "tokenizer", "vocab.json"),
					onnxsession.RunnerConfig{LibraryPath: cfg.Runtime.ORTLibraryPath},
					modelCfg,
				)

				if steps == 0 {
					steps = cfg.Diffusion.DefaultSteps
				}

				if scheduler == "" {
					scheduler = cfg.Diffusion.DefaultSchedule
				}

				if guidanceScale == 0 {
					guidanceScale = cfg.Diffusion.DefaultGuidance
				}

				samples, err = engine.Generate(ctx, diffusion.Request{
					Prompt:        prompt,
					DurationSec:   durationSec,
					Seed:          seed,
					Steps:         steps,
					Scheduler:     scheduler,
					GuidanceScale: guidanceScale,
				}, &cliProgress{})
				sampleRate = modelCfg.OutputSampleRate
			default:
				return fmt.Errorf("unknown backend %q", backend)
			}

			if err != nil {
				return fmt.Errorf("generate: %w", err)
			}

			wav, err := audio.EncodeWAV(samples, sampleRate)
			if err != nil {
				return fmt.Errorf("encode wav: %w", err)
			}

			trackID := cache.TrackID(cache.ContentKey{
				Prompt:       prompt,
				Seed:         seed,
				DurationSec:  durationSec,
				ModelVersion: modelVersion,
				Backend:      backend,
			})

			track, err := trackCache.Put(cache.Track{
				TrackID:      trackID,
				Prompt:       prompt,
				DurationSec:  float64(len(samples)) / float64(sampleRate),
				SampleRate:   sampleRate,
				Seed:         seed,
				Backend:      backend,
				ModelVersion: modelVersion,
			}, wav)
			if err != nil {
				return fmt.Errorf("cache put: %w", err)
			}

			fmt.Fprintln(os.Stdout, track.Path)

			return nil
		},
	}

	cmd.Flags().StringVar(&backend, "backend", config.BackendAR, "Backend to use (ar|diffusion)")
	cmd.Flags().IntVar(&durationSec, "duration", 10, "Track duration in seconds")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Seed (0 picks a fresh one from the clock)")
	cmd.Flags().IntVar(&steps, "steps", 0, "Diffusion inference steps (0 = backend default)")
	cmd.Flags().StringVar(&scheduler, "scheduler", "", "Diffusion scheduler: euler|heun|pingpong (empty = backend default)")
	cmd.Flags().Float64Var(&guidanceScale, "guidance-scale", 0, "Diffusion CFG scale (0 = backend default)")

	return cmd
}

// cliProgress prints generation progress to stderr; the CLI driver never
// cancels a job it started itself.
type cliProgress struct {
	total int
}

func (p *cliProgress) SetTotalSteps(total int) { p.total = total }

func (p *cliProgress) Advance(current int) {
	fmt.Fprintf(os.Stderr, "\rstep %d/%d", current, p.total)

	if current == p.total {
		fmt.Fprintln(os.Stderr)
	}
}

func (p *cliProgress) Cancelled() bool { return false }
