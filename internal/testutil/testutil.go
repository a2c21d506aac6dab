// Package testutil provides shared skip helpers for integration tests.
//
// Each helper calls t.Skip with a clear human-readable reason when the named
// prerequisite is absent, so integration tests remain runnable in partial
// environments without failing noisily.
//
// Typical usage:
//
//	func TestMyIntegration(t *testing.T) {
//	    testutil.RequireONNXRuntime(t)
//	    ...
//	}
package testutil

import (
	"os"
	"testing"
)

// RequireONNXRuntime skips the test if no ONNX Runtime shared library can be
// located. It checks (in order): the ORT_LIBRARY_PATH env var, then the
// MUSICDAEMON_ORT_LIB env var, then common system library paths.
func RequireONNXRuntime(t testing.TB) {
	t.Helper()
	for _, env := range []string{"ORT_LIBRARY_PATH", "MUSICDAEMON_ORT_LIB"} {
		if p := os.Getenv(env); p != "" {
			if _, err := os.Stat(p); err == nil {
				return // found
			}
			t.Skipf("ONNX Runtime library not found at %s=%q", env, p)
		}
	}
	// Fall back to common system locations.
	candidates := []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return // found
		}
	}
	t.Skip("ONNX Runtime shared library not found; set ORT_LIBRARY_PATH or MUSICDAEMON_ORT_LIB")
}

// RequireBackendAssets skips the test if modelDir does not exist or is
// empty, a cheap stand-in for "backend assets are installed" used by
// integration tests that need a real AR or diffusion asset directory.
func RequireBackendAssets(t testing.TB, modelDir string) {
	t.Helper()

	entries, err := os.ReadDir(modelDir)
	if err != nil || len(entries) == 0 {
		t.Skipf("backend assets not available under %q", modelDir)
	}
}
