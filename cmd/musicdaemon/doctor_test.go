package main

import (
	"testing"

	"github.com/example/musicdaemon/internal/config"
)

func TestBackendAssetsListsPinnedManifestFiles(t *testing.T) {
	assets := backendAssets(config.BackendAR, "models/ar")

	if assets.Backend != config.BackendAR {
		t.Errorf("Backend = %q, want %q", assets.Backend, config.BackendAR)
	}

	if assets.Dir != "models/ar" {
		t.Errorf("Dir = %q, want %q", assets.Dir, "models/ar")
	}

	if len(assets.Required) == 0 {
		t.Error("expected at least one required file from the pinned manifest")
	}
}

func TestBackendAssetsUnknownBackendHasNoRequiredFiles(t *testing.T) {
	assets := backendAssets("not-a-backend", "models/x")

	if len(assets.Required) != 0 {
		t.Errorf("expected no required files for an unknown backend, got %v", assets.Required)
	}
}
