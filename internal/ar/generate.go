package ar

import (
	"context"
	"fmt"

	"github.com/example/musicdaemon/internal/onnxsession"
	"github.com/example/musicdaemon/internal/tensor"
)

// Progress receives per-step updates and is polled for cooperative
// cancellation between decode steps. *queue.Job satisfies this interface
// structurally, so this package never imports internal/queue.
type Progress interface {
	SetTotalSteps(total int)
	Advance(current int)
	Cancelled() bool
}

// Request is the AR-specific subset of a validated generate request.
type Request struct {
	Prompt      string
	DurationSec int
	Seed        uint64
}

// Generate runs the full AR pipeline described in spec §4.4 and returns a
// mono float32 PCM waveform at Config.SampleRate (32 kHz).
func (e *Engine) Generate(ctx context.Context, req Request, progress Progress) ([]float32, error) {
	set, err := e.ensureLoaded()
	if err != nil {
		return nil, fmt.Errorf("ar: %w", err)
	}

	ids, mask, err := set.Tokenizer.Encode(req.Prompt)
	if err != nil {
		return nil, fmt.Errorf("ar: tokenize prompt: %w", err)
	}

	textEmb, err := runTextEncoder(ctx, set, ids, mask)
	if err != nil {
		return nil, fmt.Errorf("ar: text encoder: %w", err)
	}

	uncondEmb, err := runTextEncoder(ctx, set, []int64{set.Config.PadTokenID}, []int64{1})
	if err != nil {
		return nil, fmt.Errorf("ar: unconditional text encoder: %w", err)
	}

	cfg := set.Config
	frames := cfg.FramesFor(req.DurationSec)
	grid := newDelayGrid(cfg.Codebooks, frames, cfg.PadTokenID)

	rng := tensor.NewRng(req.Seed)
	cache := newKVCache()
	uncondCache := newKVCache()

	progress.SetTotalSteps(frames)

	for t := range grid.totalSteps() {
		if progress.Cancelled() {
			return nil, errCancelled
		}

		inputFrame := grid.inputFrame(t)

		condLogits, err := decodeStep(ctx, set, cache, textEmb, inputFrame, t == 0)
		if err != nil {
			return nil, fmt.Errorf("ar: decode step %d (conditional): %w", t, err)
		}

		uncondLogits, err := decodeStep(ctx, set, uncondCache, uncondEmb, inputFrame, t == 0)
		if err != nil {
			return nil, fmt.Errorf("ar: decode step %d (unconditional): %w", t, err)
		}

		for k := range cfg.Codebooks {
			if !grid.active(k, t) {
				continue
			}

			combined := combineGuidance(condLogits[k], uncondLogits[k])

			token, err := rng.SampleTopK(combined, topK, samplingTemperature)
			if err != nil {
				return nil, fmt.Errorf("ar: sample codebook %d at step %d: %w", k, t, err)
			}

			grid.set(k, t, int64(token))
		}

		reportStep := t + 1
		if reportStep > frames {
			reportStep = frames
		}

		progress.Advance(reportStep)
	}

	tokenGrid := grid.extract()

	samples, err := runCodecDecoder(ctx, set, tokenGrid)
	if err != nil {
		return nil, fmt.Errorf("ar: codec decode: %w", err)
	}

	return samples, nil
}

// errCancelled is returned internally when the cooperative cancellation
// flag is observed between steps; the queue worker treats any error on a
// cancelled job as a cancellation, not a failure, so the message is never
// surfaced.
var errCancelled = fmt.Errorf("ar: generation cancelled")

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

// decodeStep runs one raw decode step (decoder_first_step if first, else
// decoder_with_past threading cache) and returns per-codebook logits
// ([codebooks][vocab]).
func decodeStep(ctx context.Context, set *SessionSet, cache *kvCache, encoderHidden *onnxsession.Tensor, inputFrame []int64, first bool) ([][]float32, error) {
	frameTensor, err := onnxsession.NewTensor(inputFrame, []int64{1, 1, int64(len(inputFrame))})
	if err != nil {
		return nil, fmt.Errorf("build decoder input frame: %w", err)
	}

	inputs := map[string]*onnxsession.Tensor{
		"input_ids":            frameTensor,
		"encoder_hidden_states": encoderHidden,
	}

	var (
		outputs map[string]*onnxsession.Tensor
		runErr  error
	)

	if first {
		outputs, runErr = set.decoderFirst.Run(ctx, inputs)
	} else {
		for name, t := range cache.pastInputs(set.Config.NumLayers) {
			inputs[name] = t
		}

		outputs, runErr = set.decoderWithPast.Run(ctx, inputs)
	}

	if runErr != nil {
		return nil, runErr
	}

	cache.absorbPresent(outputs, set.Config.NumLayers)

	logitsTensor, ok := outputs["logits"]
	if !ok {
		return nil, fmt.Errorf("decoder output missing logits")
	}

	return splitCodebookLogits(logitsTensor, set.Config.Codebooks)
}

// splitCodebookLogits reshapes a [1, 1, codebooks*vocab] logits tensor into
// codebooks separate per-vocab slices.
func splitCodebookLogits(t *onnxsession.Tensor, codebooks int) ([][]float32, error) {
	flat, err := onnxsession.ExtractFloat32(t)
	if err != nil {
		return nil, fmt.Errorf("extract logits: %w", err)
	}

	if len(flat)%codebooks != 0 {
		return nil, fmt.Errorf("logits length %d not divisible by %d codebooks", len(flat), codebooks)
	}

	vocab := len(flat) / codebooks
	out := make([][]float32, codebooks)

	for k := range out {
		out[k] = flat[k*vocab : (k+1)*vocab]
	}

	return out, nil
}

// combineGuidance applies classifier-free guidance: logits = uncond +
// scale*(cond-uncond), per spec §4.4 step 4.
func combineGuidance(cond, uncond []float32) []float32 {
	out := make([]float32, len(cond))
	for i := range out {
		out[i] = uncond[i] + guidanceScale*(cond[i]-uncond[i])
	}

	return out
}

func runCodecDecoder(ctx context.Context, set *SessionSet, tokenGrid [][]int64) ([]float32, error) {
	codebooks := len(tokenGrid)
	if codebooks == 0 {
		return nil, fmt.Errorf("empty token grid")
	}

	frames := len(tokenGrid[0])

	flat := make([]int64, 0, codebooks*frames)
	for k := range tokenGrid {
		flat = append(flat, tokenGrid[k]...)
	}

	codesTensor, err := onnxsession.NewTensor(flat, []int64{1, int64(codebooks), int64(frames)})
	if err != nil {
		return nil, fmt.Errorf("build codec input tensor: %w", err)
	}

	outputs, err := set.codecDecoder.Run(ctx, map[string]*onnxsession.Tensor{
		"audio_codes": codesTensor,
	})
	if err != nil {
		return nil, err
	}

	waveform, ok := outputs["audio_values"]
	if !ok {
		return nil, fmt.Errorf("codec decoder output missing audio_values")
	}

	return onnxsession.ExtractFloat32(waveform)
}
