// Package daemon wires the model sessions, track cache, job queue, and RPC
// server into one running process, and implements startup back-end
// detection plus the asset download lifecycle spec §4.6 describes.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/example/musicdaemon/internal/apierr"
	"github.com/example/musicdaemon/internal/config"
	"github.com/example/musicdaemon/internal/model"
	"github.com/example/musicdaemon/internal/rpc"
)

// Back-end status strings, spec §3's "Back-end descriptor" status enum.
const (
	StatusNotInstalled = "not_installed"
	StatusDownloading  = "downloading"
	StatusLoading      = "loading"
	StatusReady        = "ready"
	StatusError        = "error"
)

// durationRange mirrors the per-backend duration bounds rpc.validateGenerate
// enforces, duplicated here only for the get_backends descriptor (no
// exported constant exists in internal/rpc to avoid a daemon->rpc->daemon
// dependency cycle on validation internals).
type durationRange struct{ min, max int }

var backendDurationRanges = map[string]durationRange{
	config.BackendAR:        {min: 5, max: 120},
	config.BackendDiffusion: {min: 5, max: 240},
}

var backendNames = map[string]string{
	config.BackendAR:        "Autoregressive (4-codebook transformer)",
	config.BackendDiffusion: "Latent diffusion (ACE-Step style)",
}

// ProgressFunc reports download progress for a single asset file, used to
// drive rpc.Server.NotifyDownloadProgress. component and componentPct track
// the file currently transferring; overallPct is computed across every file
// in the backend's manifest.
type ProgressFunc func(backend, component string, componentPct, overallPct int, written, total int64)

// Registry tracks install/load status for both back-ends and serializes
// download attempts per back-end. Implements rpc.BackendRegistry.
type Registry struct {
	cfg      config.Config
	arMV     string
	diffMV   string
	onProg   ProgressFunc
	token    string

	mu          sync.Mutex
	status      map[string]string
	downloading map[string]bool
}

var _ rpc.BackendRegistry = (*Registry)(nil)

// NewRegistry constructs a Registry and immediately probes both back-ends'
// asset directories, matching the teacher's eager-startup-detection shape.
func NewRegistry(cfg config.Config, assetToken string, onProgress ProgressFunc) (*Registry, error) {
	arMV, err := model.ModelVersion(config.BackendAR)
	if err != nil {
		return nil, err
	}

	diffMV, err := model.ModelVersion(config.BackendDiffusion)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		cfg:         cfg,
		arMV:        arMV,
		diffMV:      diffMV,
		onProg:      onProgress,
		token:       assetToken,
		status:      make(map[string]string),
		downloading: make(map[string]bool),
	}

	r.detect(config.BackendAR)
	r.detect(config.BackendDiffusion)

	return r, nil
}

func (r *Registry) modelDir(backend string) string {
	if backend == config.BackendDiffusion {
		return r.cfg.Diffusion.ModelDir
	}

	return r.cfg.AR.ModelDir
}

// detect sets backend's status to ready or not_installed depending on
// whether every file named in its pinned manifest exists on disk. Called
// once at construction and again after every completed download.
func (r *Registry) detect(backend string) {
	manifest, err := model.PinnedManifest(backend)
	if err != nil {
		r.setStatus(backend, StatusError)
		return
	}

	dir := r.modelDir(backend)

	for _, f := range manifest.Files {
		path := filepath.Join(dir, filepath.FromSlash(f.Filename))
		if _, err := os.Stat(path); err != nil {
			r.setStatus(backend, StatusNotInstalled)
			return
		}
	}

	r.setStatus(backend, StatusReady)
}

func (r *Registry) setStatus(backend, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status[backend] = status
}

func (r *Registry) getStatus(backend string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.status[backend]; ok {
		return s
	}

	return StatusNotInstalled
}

// List reports a descriptor for every known back-end, satisfying
// rpc.BackendRegistry.
func (r *Registry) List() []rpc.BackendDescriptor {
	backends := []string{config.BackendAR, config.BackendDiffusion}
	out := make([]rpc.BackendDescriptor, 0, len(backends))

	for _, b := range backends {
		dur := backendDurationRanges[b]

		sampleRate := 32000
		modelVersion := r.arMV

		if b == config.BackendDiffusion {
			sampleRate = 48000
			modelVersion = r.diffMV
		}

		out = append(out, rpc.BackendDescriptor{
			Type:           b,
			Name:           backendNames[b],
			Status:         r.getStatus(b),
			MinDurationSec: dur.min,
			MaxDurationSec: dur.max,
			SampleRate:     sampleRate,
			ModelVersion:   modelVersion,
		})
	}

	return out
}

// StartDownload transitions backend to downloading and fetches its manifest
// in the background, satisfying rpc.BackendRegistry. Returns immediately;
// completion (ready) or failure (error) is reflected in the next List call
// and reported live via onProg/download_progress notifications.
func (r *Registry) StartDownload(backend string) (started, alreadyInstalled bool, err error) {
	if _, err := config.NormalizeBackend(backend); err != nil {
		return false, false, apierr.New(apierr.InvalidBackend, err.Error())
	}

	r.mu.Lock()

	if r.status[backend] == StatusReady {
		r.mu.Unlock()
		return false, true, nil
	}

	if r.downloading[backend] {
		r.mu.Unlock()
		return false, false, apierr.New(apierr.DownloadInProgress, fmt.Sprintf("backend %q is already downloading", backend))
	}

	r.downloading[backend] = true
	r.mu.Unlock()

	r.setStatus(backend, StatusDownloading)

	go r.runDownload(backend)

	return true, false, nil
}

func (r *Registry) runDownload(backend string) {
	defer func() {
		r.mu.Lock()
		r.downloading[backend] = false
		r.mu.Unlock()
	}()

	manifest, err := model.PinnedManifest(backend)
	if err != nil {
		r.setStatus(backend, StatusError)
		return
	}

	totalFiles := len(manifest.Files)

	var completed int

	err = model.Download(model.DownloadOptions{
		Backend: backend,
		OutDir:  r.modelDir(backend),
		Token:   r.token,
		Stdout:  os.Stderr, // human-readable log, never stdout (spec §6 reserves stdout for RPC frames)
		Progress: func(file string, written, total int64) {
			if r.onProg == nil {
				return
			}

			componentPct := 0
			if total > 0 {
				componentPct = int(written * 100 / total)
			}

			overallPct := (completed*100 + componentPct) / max(totalFiles, 1)
			if componentPct == 100 {
				completed++
			}

			r.onProg(backend, file, componentPct, overallPct, written, total)
		},
	})
	if err != nil {
		r.setStatus(backend, StatusError)
		return
	}

	r.detect(backend)
}
