package diffusion

import (
	"context"
	"fmt"

	"github.com/example/musicdaemon/internal/audio"
	"github.com/example/musicdaemon/internal/onnxsession"
	"github.com/example/musicdaemon/internal/tensor"
)

// Progress receives per-step updates and is polled for cooperative
// cancellation between scheduler steps, identical in shape to the one
// internal/ar defines; *queue.Job satisfies both structurally.
type Progress interface {
	SetTotalSteps(total int)
	Advance(current int)
	Cancelled() bool
}

// errCancelled is returned internally when the cooperative cancellation
// flag fires between steps.
var errCancelled = fmt.Errorf("diffusion: generation cancelled")

// Generate runs the full latent-diffusion pipeline described in spec §4.5
// and returns a mono float32 PCM waveform resampled to Config.OutputSampleRate
// (48 kHz).
func (e *Engine) Generate(ctx context.Context, req Request, progress Progress) ([]float32, error) {
	set, err := e.ensureLoaded()
	if err != nil {
		return nil, fmt.Errorf("diffusion: %w", err)
	}

	ids, mask, err := set.Tokenizer.Encode(req.Prompt)
	if err != nil {
		return nil, fmt.Errorf("diffusion: tokenize prompt: %w", err)
	}

	textEmb, err := runTextEncoder(ctx, set, ids, mask)
	if err != nil {
		return nil, fmt.Errorf("diffusion: text encoder: %w", err)
	}

	uncondEmb, err := runTextEncoder(ctx, set, []int64{0}, []int64{1})
	if err != nil {
		return nil, fmt.Errorf("diffusion: unconditional text encoder: %w", err)
	}

	cfg := set.Config
	frames := cfg.FramesFor(req.DurationSec)
	if frames < 1 {
		frames = 1
	}

	rng := tensor.NewRng(req.Seed)

	latentLen := cfg.LatentChannels * cfg.LatentHeight * frames
	latent := make([]float32, latentLen)
	for i := range latent {
		latent[i] = rng.NormFloat32()
	}

	sched, err := NewScheduler(req.Scheduler)
	if err != nil {
		return nil, fmt.Errorf("diffusion: %w", err)
	}

	steps := req.Steps
	if steps < 1 {
		steps = 1
	}

	sigmas := sched.Sigmas(steps)

	guidance := req.GuidanceScale
	if guidance <= 0 {
		guidance = 1
	}

	latentShape := []int64{1, int64(cfg.LatentChannels), int64(cfg.LatentHeight), int64(frames)}

	progress.SetTotalSteps(steps)

	for i := 0; i < steps; i++ {
		if progress.Cancelled() {
			return nil, errCancelled
		}

		denoise := func(l []float32, sigma float64) ([]float32, error) {
			return denoiseGuided(ctx, set, latentShape, l, sigma, textEmb, uncondEmb, guidance)
		}

		next, err := sched.Step(denoise, latent, sigmas, i, rng)
		if err != nil {
			return nil, fmt.Errorf("diffusion: scheduler step %d: %w", i, err)
		}

		latent = next
		progress.Advance(i + 1)
	}

	mel, err := runLatentDecoder(ctx, set, latentShape, latent)
	if err != nil {
		return nil, fmt.Errorf("diffusion: latent decode: %w", err)
	}

	waveform, err := runVocoder(ctx, set, mel)
	if err != nil {
		return nil, fmt.Errorf("diffusion: vocode: %w", err)
	}

	resampled, err := audio.Resample(waveform, audio.DiffusionUpsample)
	if err != nil {
		return nil, fmt.Errorf("diffusion: resample to output rate: %w", err)
	}

	return resampled, nil
}

func runTextEncoder(ctx context.Context, set *SessionSet, ids, mask []int64) (*onnxsession.Tensor, error) {
	idsTensor, err := onnxsession.NewTensor(ids, []int64{1, int64(len(ids))})
	if err != nil {
		return nil, fmt.Errorf("build input_ids tensor: %w", err)
	}

	maskTensor, err := onnxsession.NewTensor(mask, []int64{1, int64(len(mask))})
	if err != nil {
		return nil, fmt.Errorf("build attention_mask tensor: %w", err)
	}

	outputs, err := set.textEncoder.Run(ctx, map[string]*onnxsession.Tensor{
		"input_ids":      idsTensor,
		"attention_mask": maskTensor,
	})
	if err != nil {
		return nil, err
	}

	hidden, ok := outputs["last_hidden_state"]
	if !ok {
		return nil, fmt.Errorf("text encoder output missing last_hidden_state")
	}

	return hidden, nil
}

// denoiseGuided runs the denoiser twice (conditional and unconditional) at
// noise level sigma and combines them with classifier-free guidance, per
// spec §4.5 step 3.
func denoiseGuided(ctx context.Context, set *SessionSet, latentShape []int64, latent []float32, sigma float64, cond, uncond *onnxsession.Tensor, guidance float64) ([]float32, error) {
	condOut, err := runDenoiser(ctx, set, latentShape, latent, sigma, cond)
	if err != nil {
		return nil, fmt.Errorf("conditional denoiser: %w", err)
	}

	uncondOut, err := runDenoiser(ctx, set, latentShape, latent, sigma, uncond)
	if err != nil {
		return nil, fmt.Errorf("unconditional denoiser: %w", err)
	}

	out := make([]float32, len(condOut))
	g := float32(guidance)

	for i := range out {
		out[i] = uncondOut[i] + g*(condOut[i]-uncondOut[i])
	}

	return out, nil
}

func runDenoiser(ctx context.Context, set *SessionSet, latentShape []int64, latent []float32, sigma float64, textEmb *onnxsession.Tensor) ([]float32, error) {
	latentTensor, err := onnxsession.NewTensor(latent, latentShape)
	if err != nil {
		return nil, fmt.Errorf("build latent tensor: %w", err)
	}

	sigmaTensor, err := onnxsession.NewTensor([]float32{float32(sigma)}, []int64{1})
	if err != nil {
		return nil, fmt.Errorf("build sigma tensor: %w", err)
	}

	outputs, err := set.denoiser.Run(ctx, map[string]*onnxsession.Tensor{
		"latent":                latentTensor,
		"sigma":                 sigmaTensor,
		"encoder_hidden_states": textEmb,
	})
	if err != nil {
		return nil, err
	}

	denoised, ok := outputs["denoised"]
	if !ok {
		return nil, fmt.Errorf("denoiser output missing denoised")
	}

	return onnxsession.ExtractFloat32(denoised)
}

func runLatentDecoder(ctx context.Context, set *SessionSet, latentShape []int64, latent []float32) (*onnxsession.Tensor, error) {
	latentTensor, err := onnxsession.NewTensor(latent, latentShape)
	if err != nil {
		return nil, fmt.Errorf("build latent tensor: %w", err)
	}

	outputs, err := set.latentDecoder.Run(ctx, map[string]*onnxsession.Tensor{
		"latent": latentTensor,
	})
	if err != nil {
		return nil, err
	}

	mel, ok := outputs["mel"]
	if !ok {
		return nil, fmt.Errorf("latent decoder output missing mel")
	}

	return mel, nil
}

func runVocoder(ctx context.Context, set *SessionSet, mel *onnxsession.Tensor) ([]float32, error) {
	outputs, err := set.vocoder.Run(ctx, map[string]*onnxsession.Tensor{
		"mel": mel,
	})
	if err != nil {
		return nil, err
	}

	waveform, ok := outputs["audio_values"]
	if !ok {
		return nil, fmt.Errorf("vocoder output missing audio_values")
	}

	return onnxsession.ExtractFloat32(waveform)
}
