package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/example/musicdaemon/internal/apierr"
	"github.com/example/musicdaemon/internal/ar"
	"github.com/example/musicdaemon/internal/cache"
	"github.com/example/musicdaemon/internal/config"
	"github.com/example/musicdaemon/internal/diffusion"
	"github.com/example/musicdaemon/internal/model"
	"github.com/example/musicdaemon/internal/queue"
)

type pingResult struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) handlePing(req request) response {
	return newResult(req.ID, pingResult{Status: "ok", Version: buildVersion(s.deps.Version)})
}

func buildVersion(configured string) string {
	if configured != "" {
		return configured
	}

	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}

	return "dev"
}

type getBackendsResult struct {
	Backends       []BackendDescriptor `json:"backends"`
	DefaultBackend string               `json:"default_backend"`
}

func (s *Server) handleGetBackends(req request) response {
	return newResult(req.ID, getBackendsResult{
		Backends:       s.deps.Registry.List(),
		DefaultBackend: s.deps.Config.DefaultBackend,
	})
}

type downloadBackendParams struct {
	Backend string `json:"backend"`
}

type downloadBackendResult struct {
	Started          bool `json:"started"`
	AlreadyInstalled bool `json:"already_installed"`
}

func (s *Server) handleDownloadBackend(req request) response {
	var p downloadBackendParams
	if err := decodeParams(req.Params, &p); err != nil {
		return newError(req.ID, codeInvalidParams, err.Error(), nil)
	}

	backend, err := config.NormalizeBackend(p.Backend)
	if err != nil {
		return s.applicationError(req.ID, apierr.New(apierr.InvalidBackend, err.Error()))
	}

	started, alreadyInstalled, err := s.deps.Registry.StartDownload(backend)
	if err != nil {
		return s.applicationError(req.ID, apierr.As(err))
	}

	return newResult(req.ID, downloadBackendResult{Started: started, AlreadyInstalled: alreadyInstalled})
}

type generateResult struct {
	TrackID  string `json:"track_id"`
	Status   string `json:"status"`
	Position int    `json:"position"`
	Seed     uint64 `json:"seed"`
	Backend  string `json:"backend"`
}

func (s *Server) handleGenerate(_ context.Context, req request) response {
	var p generateParams
	if err := decodeParams(req.Params, &p); err != nil {
		return newError(req.ID, codeInvalidParams, err.Error(), nil)
	}

	qreq, err := validateGenerate(p, s.deps.Config)
	if err != nil {
		return s.applicationError(req.ID, apierr.As(err))
	}

	modelVersion, err := model.ModelVersion(qreq.Backend)
	if err != nil {
		return s.applicationError(req.ID, apierr.New(apierr.InvalidBackend, err.Error()))
	}

	trackID := cache.TrackID(cache.ContentKey{
		Prompt:       qreq.Prompt,
		Seed:         qreq.Seed,
		DurationSec:  qreq.DurationSec,
		ModelVersion: modelVersion,
		Backend:      qreq.Backend,
	})

	if track, ok := s.deps.Cache.Get(trackID); ok {
		return newResult(req.ID, generateResult{
			TrackID: track.TrackID,
			Status:  "Cached",
			Seed:    track.Seed,
			Backend: track.Backend,
		})
	}

	job, err := s.deps.Queue.Enqueue(qreq, trackID)
	if err != nil {
		return s.applicationError(req.ID, apierr.New(apierr.QueueFull, err.Error()))
	}

	status := "Queued"
	if _, active := s.deps.Queue.ActiveJob(); active && job.QueuePosition() == 0 {
		status = "Generating"
	}

	return newResult(req.ID, generateResult{
		TrackID:  trackID,
		Status:   status,
		Position: job.QueuePosition(),
		Seed:     qreq.Seed,
		Backend:  qreq.Backend,
	})
}

type cancelParams struct {
	TrackID string `json:"track_id"`
}

type cancelResult struct {
	Cancelled     bool `json:"cancelled"`
	WasGenerating bool `json:"was_generating"`
}

func (s *Server) handleCancel(req request) response {
	var p cancelParams
	if err := decodeParams(req.Params, &p); err != nil {
		return newError(req.ID, codeInvalidParams, err.Error(), nil)
	}

	job, ok := s.deps.Queue.LookupByTrack(p.TrackID)
	if !ok {
		return s.applicationError(req.ID, apierr.New(apierr.TrackNotFound, fmt.Sprintf("no job for track %q", p.TrackID)))
	}

	switch job.Status() {
	case queue.StatusComplete, queue.StatusFailed, queue.StatusCancelled:
		return s.applicationError(req.ID, apierr.New(apierr.AlreadyComplete, "job has already reached a terminal state"))
	}

	cancelled, wasGenerating := s.deps.Queue.CancelByTrack(p.TrackID)
	if cancelled && !wasGenerating {
		s.notifyCancelled(job, 0)
	}

	return newResult(req.ID, cancelResult{Cancelled: cancelled, WasGenerating: wasGenerating})
}

type shutdownResult struct {
	Status string `json:"status"`
}

func (s *Server) handleShutdown(req request) response {
	// dispatch sends this response and then calls requestShutdown once the
	// write has gone out, so the client sees the reply before the daemon
	// stops reading further lines.
	return newResult(req.ID, shutdownResult{Status: "shutting_down"})
}

// runJob is the queue.Handler that performs one job's inference and cache
// write. Invoked by the single worker goroutine; never called concurrently
// with itself.
func (s *Server) runJob(job *queue.Job) error {
	ctx := context.Background()
	progress := &jobProgress{job: job, server: s}

	start := time.Now()

	samples, sampleRate, modelVersion, err := s.generateSamples(ctx, job, progress)
	if err != nil {
		return err
	}

	if job.Cancelled() {
		return nil
	}

	wav, err := encodeWaveform(samples, sampleRate)
	if err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}

	durationSec := float64(len(samples)) / float64(sampleRate)

	track := cache.Track{
		TrackID:        job.TrackID,
		Prompt:         job.Request.Prompt,
		DurationSec:    durationSec,
		SampleRate:     sampleRate,
		Seed:           job.Request.Seed,
		Backend:        job.Request.Backend,
		ModelVersion:   modelVersion,
		GenerationTime: time.Since(start).Seconds(),
	}

	if _, err := s.deps.Cache.Put(track, wav); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}

	return nil
}

func (s *Server) generateSamples(ctx context.Context, job *queue.Job, progress *jobProgress) (samples []float32, sampleRate int, modelVersion string, err error) {
	switch job.Request.Backend {
	case config.BackendAR:
		samples, err = s.deps.AR.Generate(ctx, ar.Request{
			Prompt:      job.Request.Prompt,
			DurationSec: job.Request.DurationSec,
			Seed:        job.Request.Seed,
		}, progress)

		return samples, s.deps.ARModelConfig.SampleRate, s.deps.ARModelConfig.ModelVersion, err
	case config.BackendDiffusion:
		samples, err = s.deps.Diffusion.Generate(ctx, diffusion.Request{
			Prompt:        job.Request.Prompt,
			DurationSec:   job.Request.DurationSec,
			Seed:          job.Request.Seed,
			Steps:         job.Request.InferenceSteps,
			Scheduler:     job.Request.Scheduler,
			GuidanceScale: job.Request.GuidanceScale,
		}, progress)

		return samples, s.deps.DiffusionModelConfig.OutputSampleRate, s.deps.DiffusionModelConfig.ModelVersion, err
	default:
		return nil, 0, "", apierr.New(apierr.InvalidBackend, fmt.Sprintf("unknown backend %q", job.Request.Backend))
	}
}

// applicationError wraps apiErr into a JSON-RPC error response carrying the
// stable kind string in the error object's data field.
func (s *Server) applicationError(id json.RawMessage, apiErr *apierr.Error) response {
	return newError(id, codeApplicationError, apiErr.Message, map[string]string{"code": string(apiErr.Kind)})
}
