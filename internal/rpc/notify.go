package rpc

import (
	"github.com/example/musicdaemon/internal/apierr"
	"github.com/example/musicdaemon/internal/cache"
	"github.com/example/musicdaemon/internal/queue"
)

type progressParams struct {
	TrackID     string `json:"track_id"`
	Percent     int    `json:"percent"`
	CurrentStep int    `json:"current_step"`
	TotalSteps  int    `json:"total_steps"`
	ETASec      float64 `json:"eta_sec"`
}

type completeParams struct {
	TrackID        string  `json:"track_id"`
	Path           string  `json:"path"`
	DurationSec    float64 `json:"duration_sec"`
	SampleRate     int     `json:"sample_rate"`
	GenerationTime float64 `json:"generation_time_sec"`
	Backend        string  `json:"backend"`
	ModelVersion   string  `json:"model_version"`
}

type errorParams struct {
	TrackID string `json:"track_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type cancelledParams struct {
	TrackID    string `json:"track_id"`
	AtStep     int    `json:"at_step"`
	TotalSteps int    `json:"total_steps"`
}

type downloadProgressParams struct {
	Backend          string `json:"backend"`
	Component        string `json:"component"`
	ComponentPercent int    `json:"component_percent"`
	OverallPercent   int    `json:"overall_percent"`
	BytesDownloaded  int64  `json:"bytes_downloaded"`
	BytesTotal       int64  `json:"bytes_total"`
}

func (s *Server) notifyProgress(job *queue.Job, current, total, percent int) {
	s.send(newNotify("generation_progress", progressParams{
		TrackID:     job.TrackID,
		Percent:     percent,
		CurrentStep: current,
		TotalSteps:  total,
	}))
}

func (s *Server) notifyComplete(job *queue.Job, track cache.Track) {
	s.send(newNotify("generation_complete", completeParams{
		TrackID:        track.TrackID,
		Path:           track.Path,
		DurationSec:    track.DurationSec,
		SampleRate:     track.SampleRate,
		GenerationTime: track.GenerationTime,
		Backend:        track.Backend,
		ModelVersion:   track.ModelVersion,
	}))
}

func (s *Server) notifyError(job *queue.Job, apiErr *apierr.Error) {
	s.send(newNotify("generation_error", errorParams{
		TrackID: job.TrackID,
		Code:    string(apiErr.Kind),
		Message: apiErr.Message,
	}))
}

func (s *Server) notifyCancelled(job *queue.Job, atStep int) {
	_, total, _ := job.Progress()

	s.send(newNotify("generation_cancelled", cancelledParams{
		TrackID:    job.TrackID,
		AtStep:     atStep,
		TotalSteps: total,
	}))
}

func (s *Server) notifyDownloadProgress(backend, component string, componentPct, overallPct int, written, total int64) {
	s.send(newNotify("download_progress", downloadProgressParams{
		Backend:          backend,
		Component:        component,
		ComponentPercent: componentPct,
		OverallPercent:   overallPct,
		BytesDownloaded:  written,
		BytesTotal:       total,
	}))
}

// NotifyDownloadProgress emits a download_progress notification. Exported
// so internal/daemon's Registry, which owns the asset fetch goroutine, can
// drive it without this package taking a dependency on internal/model's
// HTTP client.
func (s *Server) NotifyDownloadProgress(backend, component string, componentPct, overallPct int, written, total int64) {
	s.notifyDownloadProgress(backend, component, componentPct, overallPct, written, total)
}

// jobProgress adapts a *queue.Job to the ar.Progress/diffusion.Progress
// shape, additionally throttling generation_progress notifications to
// roughly one per 5% increment, per spec §6.
type jobProgress struct {
	job          *queue.Job
	server       *Server
	lastNotified int
}

func (p *jobProgress) SetTotalSteps(total int) {
	p.job.SetTotalSteps(total)
}

func (p *jobProgress) Advance(current int) {
	p.job.Advance(current)

	cur, total, percent := p.job.Progress()
	if percent-p.lastNotified < 5 && cur != total {
		return
	}

	p.lastNotified = percent
	p.server.notifyProgress(p.job, cur, total, percent)
}

func (p *jobProgress) Cancelled() bool {
	return p.job.Cancelled()
}
