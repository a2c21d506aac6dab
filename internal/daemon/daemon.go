package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/example/musicdaemon/internal/ar"
	"github.com/example/musicdaemon/internal/cache"
	"github.com/example/musicdaemon/internal/config"
	"github.com/example/musicdaemon/internal/diffusion"
	"github.com/example/musicdaemon/internal/model"
	"github.com/example/musicdaemon/internal/onnxsession"
	"github.com/example/musicdaemon/internal/queue"
	"github.com/example/musicdaemon/internal/rpc"
)

// Options configures a single daemon run, beyond the parsed Config.
type Options struct {
	Config     config.Config
	AssetToken string // optional bearer token for gated asset downloads
	Version    string
	Stdin      io.Reader
	Stdout     io.Writer
	Logger     *slog.Logger
}

// Daemon bundles the wired dependency graph for one process lifetime:
// cache, queue, both inference engines, the back-end registry, and the RPC
// server, plus the single worker goroutine that drains the queue.
type Daemon struct {
	server   *rpc.Server
	queue    *queue.Queue
	worker   *queue.Worker
	registry *Registry
	log      *slog.Logger
}

// New builds every component in dependency order (spec §2's table, leaves
// first: cache and engines before the queue, the queue before the server)
// but loads no ONNX session eagerly — sessions load lazily on first use per
// spec §3.
func New(opts Options) (*Daemon, error) {
	cfg := opts.Config

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	trackCache, err := cache.Open(cfg.Cache.Dir, cfg.Cache.MaxMB, cfg.Cache.MaxTracks)
	if err != nil {
		return nil, fmt.Errorf("daemon: open cache: %w", err)
	}

	runnerCfg := onnxsession.RunnerConfig{
		LibraryPath: cfg.Runtime.ORTLibraryPath,
	}

	arModelVersion, err := model.ModelVersion(config.BackendAR)
	if err != nil {
		return nil, fmt.Errorf("daemon: ar model version: %w", err)
	}

	diffModelVersion, err := model.ModelVersion(config.BackendDiffusion)
	if err != nil {
		return nil, fmt.Errorf("daemon: diffusion model version: %w", err)
	}

	arModelCfg := ar.DefaultModelConfig(arModelVersion)
	diffModelCfg := diffusion.DefaultModelConfig(diffModelVersion)

	arEngine := ar.NewEngine(
		filepath.Join(cfg.AR.ModelDir, "onnx", "manifest.json"),
		filepath.Join(cfg.AR.ModelDir, "tokenizer", "vocab.json"),
		runnerCfg,
		arModelCfg,
	)

	diffEngine := diffusion.NewEngine(
		filepath.Join(cfg.Diffusion.ModelDir, "onnx", "manifest.json"),
		filepath.Join(cfg.Diffusion.ModelDir, "tokenizer", "vocab.json"),
		runnerCfg,
		diffModelCfg,
	)

	jobQueue := queue.NewQueue(cfg.Queue.AdmissionBound)

	var srv *rpc.Server

	registry, err := NewRegistry(cfg, opts.AssetToken, func(backend, component string, componentPct, overallPct int, written, total int64) {
		if srv != nil {
			srv.NotifyDownloadProgress(backend, component, componentPct, overallPct, written, total)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("daemon: build backend registry: %w", err)
	}

	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	srv = rpc.NewServer(stdin, stdout, rpc.Deps{
		Cache:                trackCache,
		Queue:                jobQueue,
		AR:                   arEngine,
		Diffusion:            diffEngine,
		Registry:             registry,
		Config:               cfg,
		ARModelConfig:        arModelCfg,
		DiffusionModelConfig: diffModelCfg,
		Version:              opts.Version,
	}, rpc.WithLogger(log))

	worker := queue.NewWorker(jobQueue, srv.Handler(), srv.Notifier())

	return &Daemon{
		server:   srv,
		queue:    jobQueue,
		worker:   worker,
		registry: registry,
		log:      log,
	}, nil
}

// Run starts the worker goroutine and blocks serving RPC requests until
// ctx is cancelled, a shutdown RPC arrives, or stdin reaches EOF — spec §6's
// exit contract. Drains the queue and waits for any active job to finish
// before returning, so a clean shutdown never abandons a job mid-write.
func (d *Daemon) Run(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		defer close(done)
		d.worker.Run()
	}()

	err := d.server.Serve(ctx)

	d.queue.Close()
	<-done

	return err
}
