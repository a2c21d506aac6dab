package diffusion

import (
	"fmt"
	"sync"

	"github.com/example/musicdaemon/internal/onnxsession"
	"github.com/example/musicdaemon/internal/tokenizer"
)

// Session graph names published in the diffusion manifest (see
// internal/model.PinnedManifest).
const (
	sessionTextEncoder   = "text_encoder"
	sessionDenoiser      = "denoiser"
	sessionLatentDecoder = "latent_decoder"
	sessionVocoder       = "vocoder"
)

// SessionSet bundles the four ONNX graphs and tokenizer that make up one
// loaded diffusion model, per spec §3's "Diffusion set".
type SessionSet struct {
	Tokenizer tokenizer.Tokenizer
	Config    ModelConfig

	textEncoder   *onnxsession.Runner
	denoiser      *onnxsession.Runner
	latentDecoder *onnxsession.Runner
	vocoder       *onnxsession.Runner
}

func (s *SessionSet) Close() {
	for _, r := range []*onnxsession.Runner{s.textEncoder, s.denoiser, s.latentDecoder, s.vocoder} {
		if r != nil {
			r.Close()
		}
	}
}

// Engine lazily loads and retains one diffusion SessionSet for the process
// lifetime, serialized behind a sync.Once exactly like internal/ar.Engine.
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

func (e *Engine) ensureLoaded() (*SessionSet, error) {
	e.loadOnce.Do(func() {
		e.sessions, e.loadErr = loadSessionSet(e.manifestPath, e.tokenizerPath, e.runnerCfg, e.modelCfg)
	})

	return e.sessions, e.loadErr
}

// Loaded reports whether the session set has finished loading successfully.
func (e *Engine) Loaded() bool {
	return e.sessions != nil && e.loadErr == nil
}

func loadSessionSet(manifestPath, tokenizerPath string, runnerCfg onnxsession.RunnerConfig, modelCfg ModelConfig) (*SessionSet, error) {
	sm, err := onnxsession.LoadSessionsOnce("diffusion", manifestPath)
	if err != nil {
		return nil, fmt.Errorf("diffusion: load manifest: %w", err)
	}

	tok, err := tokenizer.NewBPETokenizer(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("diffusion: load tokenizer: %w", err)
	}

	set := &SessionSet{Tokenizer: tok, Config: modelCfg}

	for name, dst := range map[string]**onnxsession.Runner{
		sessionTextEncoder:   &set.textEncoder,
		sessionDenoiser:      &set.denoiser,
		sessionLatentDecoder: &set.latentDecoder,
		sessionVocoder:       &set.vocoder,
	} {
		meta, ok := sm.Session(name)
		if !ok {
			set.Close()
			return nil, fmt.Errorf("diffusion: manifest missing session %q", name)
		}

		runner, err := onnxsession.NewRunner(meta, runnerCfg)
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("diffusion: load session %q: %w", name, err)
		}

		*dst = runner
	}

	return set, nil
}
