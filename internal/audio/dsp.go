package audio

import "math"

// dcBlockCutoffHz is the high-pass corner used by DCBlock. Well below any
// musically relevant content, so it only removes true DC offset.
const dcBlockCutoffHz = 20.0

// PeakNormalize scales samples in place so the peak absolute amplitude
// reaches 1.0. Silent input is returned unchanged.
func PeakNormalize(samples []float32) []float32 {
	var peak float32
	for _, v := range samples {
		if a := float32(math.Abs(float64(v))); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return samples
	}

	scale := 1.0 / peak
	for i, v := range samples {
		samples[i] = v * scale
	}
	return samples
}

// DCBlock removes DC offset from samples using a one-pole high-pass filter:
// y[n] = x[n] - x[n-1] + R*y[n-1].
func DCBlock(samples []float32, sampleRate int) []float32 {
	if len(samples) == 0 || sampleRate <= 0 {
		return samples
	}

	r := float32(1 - 2*math.Pi*dcBlockCutoffHz/float64(sampleRate))

	var prevIn, prevOut float32
	for i, x := range samples {
		y := x - prevIn + r*prevOut
		samples[i] = y
		prevIn = x
		prevOut = y
	}
	return samples
}

// FadeIn applies a linear fade-in ramp over the given duration in
// milliseconds, starting at zero gain and reaching unity gain.
func FadeIn(samples []float32, sampleRate int, ms float64) []float32 {
	fadeSamples := fadeSampleCount(sampleRate, ms, len(samples))
	if fadeSamples <= 0 {
		return samples
	}

	for i := 0; i < fadeSamples; i++ {
		gain := float32(i) / float32(fadeSamples)
		samples[i] *= gain
	}
	return samples
}

// FadeOut applies a linear fade-out ramp over the given duration in
// milliseconds, ending at zero gain on the last sample.
func FadeOut(samples []float32, sampleRate int, ms float64) []float32 {
	fadeSamples := fadeSampleCount(sampleRate, ms, len(samples))
	if fadeSamples <= 0 {
		return samples
	}

	start := len(samples) - fadeSamples
	for i := start; i < len(samples); i++ {
		pos := i - start
		gain := 1 - float32(pos+1)/float32(fadeSamples)
		samples[i] *= gain
	}
	return samples
}

func fadeSampleCount(sampleRate int, ms float64, total int) int {
	if sampleRate <= 0 || ms <= 0 {
		return 0
	}
	n := int(ms / 1000.0 * float64(sampleRate))
	if n > total {
		n = total
	}
	return n
}
