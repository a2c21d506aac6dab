package audio

import (
	"fmt"
	"math"
)

// ResampleRatio holds a fixed input/output sample rate pair for a
// windowed-sinc polyphase resampler.
type ResampleRatio struct {
	InRate  int
	OutRate int
}

// DiffusionUpsample is the diffusion back-end's fixed native-to-output
// conversion: the vocoder emits 44.1 kHz, the RPC surface reports 48 kHz.
var DiffusionUpsample = ResampleRatio{InRate: 44100, OutRate: 48000}

// resampleHalfWidth is the number of input samples considered on each side
// of a given output position; higher values trade CPU for stopband
// rejection. 16 is enough to keep aliasing well below audible levels for a
// ratio this close to 1:1.
const resampleHalfWidth = 16

// Resample converts samples from ratio.InRate to ratio.OutRate using a
// windowed-sinc polyphase filter (Blackman-windowed sinc kernel evaluated
// per output sample). Deterministic and allocation-light: no filter state
// is retained between calls, matching the "decode once, write once" flow of
// both inference engines.
func Resample(samples []float32, ratio ResampleRatio) ([]float32, error) {
	if ratio.InRate <= 0 || ratio.OutRate <= 0 {
		return nil, fmt.Errorf("audio: invalid resample rate pair %d->%d", ratio.InRate, ratio.OutRate)
	}

	if ratio.InRate == ratio.OutRate {
		return append([]float32(nil), samples...), nil
	}

	if len(samples) == 0 {
		return nil, nil
	}

	step := float64(ratio.InRate) / float64(ratio.OutRate)
	// Cutoff below the Nyquist of whichever rate is lower, to avoid
	// aliasing on downsampling while doing nothing extra on upsampling.
	cutoff := 1.0
	if step > 1.0 {
		cutoff = 1.0 / step
	}

	outLen := int(float64(len(samples)) / step)
	out := make([]float32, outLen)

	for n := range out {
		center := float64(n) * step
		lo := int(math.Floor(center)) - resampleHalfWidth
		hi := int(math.Floor(center)) + resampleHalfWidth

		var acc float64

		for k := lo; k <= hi; k++ {
			if k < 0 || k >= len(samples) {
				continue
			}

			x := center - float64(k)
			acc += float64(samples[k]) * sincKernel(x, cutoff)
		}

		out[n] = float32(acc)
	}

	return out, nil
}

// sincKernel evaluates a Blackman-windowed sinc filter tap at distance x
// (in input samples) from the output position, scaled by cutoff (1.0 = no
// attenuation, <1.0 = low-pass for downsampling).
func sincKernel(x, cutoff float64) float64 {
	x *= cutoff
	if x == 0 {
		return cutoff
	}

	if math.Abs(x) >= resampleHalfWidth {
		return 0
	}

	sinc := math.Sin(math.Pi*x) / (math.Pi * x)

	// Blackman window over [-halfWidth, halfWidth].
	w := 0.42 + 0.5*math.Cos(math.Pi*x/resampleHalfWidth) + 0.08*math.Cos(2*math.Pi*x/resampleHalfWidth)

	return cutoff * sinc * w
}

