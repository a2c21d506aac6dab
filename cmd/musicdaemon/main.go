// Command musicdaemon runs the local, offline music-generation daemon
// described in this repository's specification: it exposes the AR and
// diffusion back-ends over a line-delimited JSON-RPC 2.0 stream on
// stdin/stdout, serving one editor front-end process at a time.
package main

import (
	"fmt"
	"os"

	"github.com/example/musicdaemon/internal/onnxsession"
)

func main() {
	defer func() {
		_ = onnxsession.Shutdown()
	}()

	if err := NewRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
