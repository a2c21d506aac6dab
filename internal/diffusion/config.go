// Package diffusion implements the latent diffusion back-end: a UMT5 text
// encoder feeding a scheduler-stepped denoising transformer with
// classifier-free guidance, followed by a latent decoder, vocoder, and
// resample to the reported output rate.
package diffusion

// ModelConfig mirrors spec §3's "Diffusion set" config record.
type ModelConfig struct {
	LatentChannels   int     // 8
	LatentHeight     int     // 16
	FramesPerSecond  float64 // ~10.77
	NativeSampleRate int     // 44100
	OutputSampleRate int     // 48000
	ModelVersion     string
}

// DefaultModelConfig returns the diffusion back-end's published
// configuration.
func DefaultModelConfig(modelVersion string) ModelConfig {
	return ModelConfig{
		LatentChannels:   8,
		LatentHeight:     16,
		FramesPerSecond:  44100.0 / (512 * 8),
		NativeSampleRate: 44100,
		OutputSampleRate: 48000,
		ModelVersion:     modelVersion,
	}
}

// FramesFor returns F = floor(durationSec * 44100 / (512*8)), the number of
// latent frames spec §4.5 generates.
func (c ModelConfig) FramesFor(durationSec int) int {
	return int(float64(durationSec) * c.FramesPerSecond)
}

// Scheduler variant names accepted by the generate request (spec §6).
const (
	SchedulerEuler    = "euler"
	SchedulerHeun     = "heun"
	SchedulerPingPong = "pingpong"
)

// Request is the diffusion-specific subset of a validated generate request,
// with defaults already resolved by the RPC validation layer.
type Request struct {
	Prompt        string
	DurationSec   int
	Seed          uint64
	Steps         int
	Scheduler     string
	GuidanceScale float64
}
