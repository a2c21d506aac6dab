package ar

import (
	"fmt"
	"sync"

	"github.com/example/musicdaemon/internal/onnxsession"
	"github.com/example/musicdaemon/internal/tokenizer"
)

// Session graph names as published in the AR manifest (onnx/manifest.json
// under the backend's model directory); see internal/model.PinnedManifest.
const (
	sessionTextEncoder     = "text_encoder"
	sessionDecoderFirst    = "decoder_first_step"
	sessionDecoderWithPast = "decoder_with_past"
	sessionCodecDecoder    = "codec_decoder"
)

// SessionSet bundles the four ONNX graphs and tokenizer that make up one
// loaded AR model, per spec §3's "AR set".
type SessionSet struct {
	Tokenizer tokenizer.Tokenizer
	Config    ModelConfig

	textEncoder     *onnxsession.Runner
	decoderFirst    *onnxsession.Runner
	decoderWithPast *onnxsession.Runner
	codecDecoder    *onnxsession.Runner
}

func (s *SessionSet) Close() {
	for _, r := range []*onnxsession.Runner{s.textEncoder, s.decoderFirst, s.decoderWithPast, s.codecDecoder} {
		if r != nil {
			r.Close()
		}
	}
}

// Engine lazily loads and retains one AR SessionSet for the process
// lifetime. Loading is serialized behind a sync.Once; concurrent callers
// during load block on the same in-flight attempt, per spec §3.
type Engine struct {
	manifestPath  string
	tokenizerPath string
	runnerCfg     onnxsession.RunnerConfig
	modelCfg      ModelConfig

	loadOnce sync.Once
	sessions *SessionSet
	loadErr  error
}

// NewEngine constructs an Engine that will load its session set from
// manifestPath/tokenizerPath on first use.
func NewEngine(manifestPath, tokenizerPath string, runnerCfg onnxsession.RunnerConfig, modelCfg ModelConfig) *Engine {
	return &Engine{
		manifestPath:  manifestPath,
		tokenizerPath: tokenizerPath,
		runnerCfg:     runnerCfg,
		modelCfg:      modelCfg,
	}
}

// ensureLoaded loads the session set on first call and caches the result
// (success or failure) for every subsequent caller.
func (e *Engine) ensureLoaded() (*SessionSet, error) {
	e.loadOnce.Do(func() {
		e.sessions, e.loadErr = loadSessionSet(e.manifestPath, e.tokenizerPath, e.runnerCfg, e.modelCfg)
	})

	return e.sessions, e.loadErr
}

// Loaded reports whether the session set has finished loading successfully,
// used by get_backends status reporting without forcing a load.
func (e *Engine) Loaded() bool {
	return e.sessions != nil && e.loadErr == nil
}

func loadSessionSet(manifestPath, tokenizerPath string, runnerCfg onnxsession.RunnerConfig, modelCfg ModelConfig) (*SessionSet, error) {
	sm, err := onnxsession.LoadSessionsOnce("ar", manifestPath)
	if err != nil {
		return nil, fmt.Errorf("ar: load manifest: %w", err)
	}

	tok, err := tokenizer.NewBPETokenizer(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("ar: load tokenizer: %w", err)
	}

	set := &SessionSet{Tokenizer: tok, Config: modelCfg}

	for name, dst := range map[string]**onnxsession.Runner{
		sessionTextEncoder:     &set.textEncoder,
		sessionDecoderFirst:    &set.decoderFirst,
		sessionDecoderWithPast: &set.decoderWithPast,
		sessionCodecDecoder:    &set.codecDecoder,
	} {
		meta, ok := sm.Session(name)
		if !ok {
			set.Close()
			return nil, fmt.Errorf("ar: manifest missing session %q", name)
		}

		runner, err := onnxsession.NewRunner(meta, runnerCfg)
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("ar: load session %q: %w", name, err)
		}

		*dst = runner
	}

	return set, nil
}
