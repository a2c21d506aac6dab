package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/musicdaemon/internal/config"
)

func newTestDaemonConfig(t *testing.T) config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Cache.Dir = t.TempDir()
	cfg.AR.ModelDir = filepath.Join(t.TempDir(), "ar")
	cfg.Diffusion.ModelDir = filepath.Join(t.TempDir(), "diffusion")
	cfg.Queue.AdmissionBound = 4

	return cfg
}

func TestNewBuildsWithoutLoadingAnySession(t *testing.T) {
	// Construction must not touch ONNX Runtime: sessions load lazily on
	// first generate, per spec §3, so New should succeed even with no
	// model assets on disk at all.
	if _, err := New(Options{Config: newTestDaemonConfig(t)}); err != nil {
		t.Fatalf("New: %v", err)
	}
}

func TestRunExitsCleanlyOnStdinEOF(t *testing.T) {
	var out bytes.Buffer

	d, err := New(Options{
		Config: newTestDaemonConfig(t),
		Stdin:  strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n"),
		Stdout: &out,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var resp struct {
		Result struct {
			Status string `json:"status"`
		} `json:"result"`
	}

	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp); err != nil {
		t.Fatalf("unmarshal ping response: %v (out=%s)", err, out.String())
	}

	if resp.Result.Status != "ok" {
		t.Errorf("ping status = %q, want ok", resp.Result.Status)
	}
}

func TestRunExitsOnContextCancel(t *testing.T) {
	d, err := New(Options{
		Config: newTestDaemonConfig(t),
		Stdin:  blockingReader{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)

	go func() { done <- d.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

// blockingReader never returns, simulating a front-end that holds stdin
// open without sending anything.
type blockingReader struct{}

func (blockingReader) Read(_ []byte) (int, error) {
	select {}
}
