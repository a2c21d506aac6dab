package config

import (
	"fmt"
	"strings"
)

// Generation back-ends. BackendAR is the default when a request or the
// daemon's default_backend setting omits one.
const (
	BackendAR        = "ar"
	BackendDiffusion = "diffusion"
)

// NormalizeBackend lowercases and trims raw, defaulting empty input to
// BackendAR, and rejects anything that isn't a recognized back-end name.
func NormalizeBackend(raw string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(raw))
	if backend == "" {
		backend = BackendAR
	}

	switch backend {
	case BackendAR, BackendDiffusion:
		return backend, nil
	default:
		return "", fmt.Errorf("invalid backend %q (expected %s|%s)", raw, BackendAR, BackendDiffusion)
	}
}
