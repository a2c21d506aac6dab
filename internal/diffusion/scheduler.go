package diffusion

import (
	"fmt"
	"math"

	"github.com/example/musicdaemon/internal/tensor"
)

// DenoiseFunc runs one classifier-free-guided denoiser call at the given
// noise level sigma over the current latent, returning the model's
// denoised estimate. Supplied by the generation loop so schedulers stay
// free of any ONNX Runtime dependency.
type DenoiseFunc func(latent []float32, sigma float64) ([]float32, error)

// Scheduler advances a latent across the noise schedule spec §4.5 names:
// Euler (one denoiser call per step), Heun (two, predictor+corrector), and
// PingPong (one call plus seeded stochastic noise re-injection).
type Scheduler interface {
	// Sigmas returns steps+1 noise levels, strictly decreasing from sigma_max
	// to 0.
	Sigmas(steps int) []float64
	// Step advances latent from sigmas[i] to sigmas[i+1].
	Step(denoise DenoiseFunc, latent []float32, sigmas []float64, i int, rng *tensor.Rng) ([]float32, error)
}

// NewScheduler constructs the scheduler named by variant.
func NewScheduler(variant string) (Scheduler, error) {
	switch variant {
	case SchedulerEuler:
		return eulerScheduler{}, nil
	case SchedulerHeun:
		return heunScheduler{}, nil
	case SchedulerPingPong:
		return pingPongScheduler{}, nil
	default:
		return nil, fmt.Errorf("diffusion: unknown scheduler %q (want euler|heun|pingpong)", variant)
	}
}

// karrasSigmas builds the standard Karras noise schedule shared by all
// three variants here (they differ in how they step between levels, not in
// the levels themselves). sigmaMax/sigmaMin/rho match common diffusion
// transformer defaults.
func karrasSigmas(steps int) []float64 {
	const (
		sigmaMin = 0.03
		sigmaMax = 80.0
		rho      = 7.0
	)

	if steps < 1 {
		steps = 1
	}

	out := make([]float64, steps+1)

	minInvRho := math.Pow(sigmaMin, 1/rho)
	maxInvRho := math.Pow(sigmaMax, 1/rho)

	for i := 0; i < steps; i++ {
		frac := float64(i) / float64(steps-1)
		if steps == 1 {
			frac = 0
		}

		out[i] = math.Pow(maxInvRho+frac*(minInvRho-maxInvRho), rho)
	}

	out[steps] = 0

	return out
}

type eulerScheduler struct{}

func (eulerScheduler) Sigmas(steps int) []float64 { return karrasSigmas(steps) }

func (eulerScheduler) Step(denoise DenoiseFunc, latent []float32, sigmas []float64, i int, _ *tensor.Rng) ([]float32, error) {
	sigma, next := sigmas[i], sigmas[i+1]

	denoised, err := denoise(latent, sigma)
	if err != nil {
		return nil, err
	}

	d := scoreDirection(latent, denoised, sigma)

	return axpy(latent, d, next-sigma), nil
}

type heunScheduler struct{}

func (heunScheduler) Sigmas(steps int) []float64 { return karrasSigmas(steps) }

func (heunScheduler) Step(denoise DenoiseFunc, latent []float32, sigmas []float64, i int, _ *tensor.Rng) ([]float32, error) {
	sigma, next := sigmas[i], sigmas[i+1]

	denoised, err := denoise(latent, sigma)
	if err != nil {
		return nil, err
	}

	d := scoreDirection(latent, denoised, sigma)

	if next == 0 {
		return axpy(latent, d, next-sigma), nil
	}

	eulerLatent := axpy(latent, d, next-sigma)

	denoised2, err := denoise(eulerLatent, next)
	if err != nil {
		return nil, err
	}

	d2 := scoreDirection(eulerLatent, denoised2, next)

	avg := make([]float32, len(d))
	for k := range avg {
		avg[k] = (d[k] + d2[k]) / 2
	}

	return axpy(latent, avg, next-sigma), nil
}

type pingPongScheduler struct{}

func (pingPongScheduler) Sigmas(steps int) []float64 { return karrasSigmas(steps) }

func (pingPongScheduler) Step(denoise DenoiseFunc, latent []float32, sigmas []float64, i int, rng *tensor.Rng) ([]float32, error) {
	sigma, next := sigmas[i], sigmas[i+1]

	denoised, err := denoise(latent, sigma)
	if err != nil {
		return nil, err
	}

	if next == 0 {
		return denoised, nil
	}

	out := make([]float32, len(denoised))
	for k := range out {
		out[k] = denoised[k] + float32(next)*rng.NormFloat32()
	}

	return out, nil
}

// scoreDirection computes the ODE velocity (latent-denoised)/sigma shared
// by the Euler and Heun steppers.
func scoreDirection(latent, denoised []float32, sigma float64) []float32 {
	out := make([]float32, len(latent))

	invSigma := float32(1)
	if sigma != 0 {
		invSigma = float32(1 / sigma)
	}

	for k := range out {
		out[k] = (latent[k] - denoised[k]) * invSigma
	}

	return out
}

// axpy returns latent + direction*scale.
func axpy(latent, direction []float32, scale float64) []float32 {
	out := make([]float32, len(latent))

	s := float32(scale)
	for k := range out {
		out[k] = latent[k] + direction[k]*s
	}

	return out
}
