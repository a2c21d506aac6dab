package model

import "fmt"

// Manifest lists the on-disk assets required by one generation backend.
type Manifest struct {
	Repo  string      `json:"repo"`
	Files []ModelFile `json:"files"`
}

type ModelFile struct {
	Filename  string `json:"filename"`
	Revision  string `json:"revision"`
	SHA256    string `json:"sha256"`
	LocalPath string `json:"local_path,omitempty"` // Override local save path (defaults to Filename).
}

// PinnedManifest returns the asset list for a backend ("ar" or "diffusion"),
// pinned to the ONNX export revision this daemon was validated against.
func PinnedManifest(backend string) (Manifest, error) {
	switch backend {
	case "ar":
		return Manifest{
			Repo: "musicdaemon/ar-4cb",
			Files: []ModelFile{
				{Filename: "onnx/manifest.json", Revision: arRevision, SHA256: ""},
				{Filename: "onnx/text_encoder.onnx", Revision: arRevision, SHA256: ""},
				{Filename: "onnx/decoder_first_step.onnx", Revision: arRevision, SHA256: ""},
				{Filename: "onnx/decoder_with_past.onnx", Revision: arRevision, SHA256: ""},
				{Filename: "onnx/codec_decoder.onnx", Revision: arRevision, SHA256: ""},
				{Filename: "tokenizer/vocab.json", Revision: arRevision, SHA256: ""},
			},
		}, nil
	case "diffusion":
		return Manifest{
			Repo: "musicdaemon/diffusion-latent",
			Files: []ModelFile{
				{Filename: "onnx/manifest.json", Revision: diffusionRevision, SHA256: ""},
				{Filename: "onnx/text_encoder.onnx", Revision: diffusionRevision, SHA256: ""},
				{Filename: "onnx/denoiser.onnx", Revision: diffusionRevision, SHA256: ""},
				{Filename: "onnx/latent_decoder.onnx", Revision: diffusionRevision, SHA256: ""},
				{Filename: "onnx/vocoder.onnx", Revision: diffusionRevision, SHA256: ""},
				{Filename: "tokenizer/vocab.json", Revision: diffusionRevision, SHA256: ""},
			},
		}, nil
	default:
		return Manifest{}, fmt.Errorf("no pinned manifest for backend %q (expected ar|diffusion)", backend)
	}
}

const (
	arRevision        = "e41a7c9b7c7d2f7b5d0a6a9f9a2b6c1d4e5f6a7b"
	diffusionRevision = "9b2f6e1a4c8d3f7a0b5e6c2d1f8a9b3c4d5e6f70"
)

// Repo returns the pinned repo identifier for a backend without downloading
// anything; used by doctor and status reporting.
func Repo(backend string) (string, error) {
	m, err := PinnedManifest(backend)
	if err != nil {
		return "", err
	}

	return m.Repo, nil
}

// ModelVersion returns the pinned revision used as a backend's model-version
// string (spec §3's Track.model_version), without requiring any session to
// be loaded. Used by the RPC layer to compute a track's content hash before
// committing to the (potentially slow) first-use session load.
func ModelVersion(backend string) (string, error) {
	switch backend {
	case "ar":
		return arRevision, nil
	case "diffusion":
		return diffusionRevision, nil
	default:
		return "", fmt.Errorf("no pinned model version for backend %q (expected ar|diffusion)", backend)
	}
}
