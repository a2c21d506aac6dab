package rpc

import (
	"fmt"
	"unicode/utf8"

	"github.com/example/musicdaemon/internal/apierr"
	"github.com/example/musicdaemon/internal/config"
	"github.com/example/musicdaemon/internal/diffusion"
	"github.com/example/musicdaemon/internal/queue"
)

// durationRange values and the arPromptMax/diffusionPromptMax limits hold
// the per-backend validation table from spec §6.
type durationRange struct{ min, max int }

var (
	arDuration        = durationRange{min: 5, max: 120}
	diffusionDuration = durationRange{min: 5, max: 240}

	arPromptMax        = 1000
	diffusionPromptMax = 512

	diffusionStepsRange = struct{ min, max int }{min: 1, max: 200}
	diffusionGuidance   = struct{ min, max float64 }{min: 1.0, max: 30.0}
)

// generateParams is the decoded "generate" request payload. Optional fields
// are pointers so omission can be distinguished from an explicit zero value.
type generateParams struct {
	Prompt         string   `json:"prompt"`
	DurationSec    int      `json:"duration_sec"`
	Backend        string   `json:"backend"`
	Seed           *uint64  `json:"seed"`
	Priority       string   `json:"priority"`
	InferenceSteps *int     `json:"inference_steps"`
	Scheduler      string   `json:"scheduler"`
	GuidanceScale  *float64 `json:"guidance_scale"`
}

// validateGenerate normalizes and validates p against cfg's backend
// defaults, returning a ready-to-enqueue queue.Request. Validation failures
// are *apierr.Error with a stable Kind, per spec §7's propagation policy:
// these are synchronous RPC errors, no job is ever created for them.
func validateGenerate(p generateParams, cfg config.Config) (queue.Request, error) {
	backend, err := config.NormalizeBackend(orDefault(p.Backend, cfg.DefaultBackend))
	if err != nil {
		return queue.Request{}, apierr.New(apierr.InvalidBackend, err.Error())
	}

	if !utf8.ValidString(p.Prompt) {
		return queue.Request{}, apierr.New(apierr.InvalidPrompt, "prompt must be valid UTF-8")
	}

	promptLen := len([]rune(p.Prompt))
	maxPromptLen := arPromptMax
	if backend == config.BackendDiffusion {
		maxPromptLen = diffusionPromptMax
	}

	if promptLen < 1 || promptLen > maxPromptLen {
		return queue.Request{}, apierr.New(apierr.InvalidPrompt,
			fmt.Sprintf("prompt length %d outside 1..%d for backend %q", promptLen, maxPromptLen, backend))
	}

	durRange := arDuration
	if backend == config.BackendDiffusion {
		durRange = diffusionDuration
	}

	if p.DurationSec < durRange.min || p.DurationSec > durRange.max {
		return queue.Request{}, apierr.New(apierr.InvalidDuration,
			fmt.Sprintf("duration_sec %d outside %d..%d for backend %q", p.DurationSec, durRange.min, durRange.max, backend))
	}

	priority := queue.PriorityNormal
	switch p.Priority {
	case "", string(queue.PriorityNormal):
		priority = queue.PriorityNormal
	case string(queue.PriorityHigh):
		priority = queue.PriorityHigh
	default:
		return queue.Request{}, apierr.New(apierr.InvalidBackend, fmt.Sprintf("invalid priority %q", p.Priority))
	}

	req := queue.Request{
		Prompt:      p.Prompt,
		DurationSec: p.DurationSec,
		Backend:     backend,
		Priority:    priority,
	}

	if p.Seed != nil {
		req.Seed = *p.Seed
	} else {
		req.Seed, err = randomSeed()
		if err != nil {
			return queue.Request{}, fmt.Errorf("rpc: generate random seed: %w", err)
		}
	}

	if backend != config.BackendDiffusion {
		return req, nil
	}

	steps := cfg.Diffusion.DefaultSteps
	if p.InferenceSteps != nil {
		steps = *p.InferenceSteps
	}

	if steps < diffusionStepsRange.min || steps > diffusionStepsRange.max {
		return queue.Request{}, apierr.New(apierr.InvalidInferenceSteps,
			fmt.Sprintf("inference_steps %d outside %d..%d", steps, diffusionStepsRange.min, diffusionStepsRange.max))
	}

	scheduler := orDefault(p.Scheduler, cfg.Diffusion.DefaultSchedule)

	switch scheduler {
	case diffusion.SchedulerEuler, diffusion.SchedulerHeun, diffusion.SchedulerPingPong:
	default:
		return queue.Request{}, apierr.New(apierr.InvalidScheduler, fmt.Sprintf("invalid scheduler %q", p.Scheduler))
	}

	guidance := cfg.Diffusion.DefaultGuidance
	if p.GuidanceScale != nil {
		guidance = *p.GuidanceScale
	}

	if guidance < diffusionGuidance.min || guidance > diffusionGuidance.max {
		return queue.Request{}, apierr.New(apierr.InvalidGuidanceScale,
			fmt.Sprintf("guidance_scale %g outside %g..%g", guidance, diffusionGuidance.min, diffusionGuidance.max))
	}

	req.InferenceSteps = steps
	req.Scheduler = scheduler
	req.GuidanceScale = guidance

	return req, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}

	return v
}
