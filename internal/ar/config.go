// Package ar implements the autoregressive 4-codebook back-end: KV-cached
// transformer decoding with classifier-free guidance, top-k sampling, and a
// delay-pattern codebook mask, followed by neural codec decoding to a mono
// waveform.
package ar

// ModelConfig mirrors the fields spec §3 lists for the AR model session
// set's config record. Loaded once per backend alongside the ONNX manifest.
type ModelConfig struct {
	HiddenSize      int
	NumLayers       int
	NumHeads        int
	Codebooks       int // fixed at 4 by spec §1/§4.4
	PadTokenID      int64
	SampleRate      int     // 32000
	TokensPerSecond float64 // 50
	ModelVersion    string
}

// DefaultModelConfig returns the AR back-end's published configuration.
func DefaultModelConfig(modelVersion string) ModelConfig {
	return ModelConfig{
		HiddenSize:      1024,
		NumLayers:       24,
		NumHeads:        16,
		Codebooks:       4,
		PadTokenID:      2048,
		SampleRate:      32000,
		TokensPerSecond: 50,
		ModelVersion:    modelVersion,
	}
}

// guidanceScale is fixed internally per spec §4.4 step 4 / §6's validation
// table ("fixed 3.0 internally") — never exposed as a request parameter.
const guidanceScale = 3.0

// topK is the sampling pool size used by every codebook's categorical draw
// (spec §4.4 step 5: "k ≈ 250").
const topK = 250

// samplingTemperature is the softmax temperature applied inside top-k
// sampling. 1.0 leaves the model's own logit scale untouched.
const samplingTemperature = 1.0

// FramesFor returns N = ceil(durationSec * tokensPerSecond), the number of
// real per-codebook frames spec §4.4 generates.
func (c ModelConfig) FramesFor(durationSec int) int {
	frames := float64(durationSec) * c.TokensPerSecond

	n := int(frames)
	if float64(n) < frames {
		n++
	}

	return n
}
