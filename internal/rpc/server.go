package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/example/musicdaemon/internal/apierr"
	"github.com/example/musicdaemon/internal/ar"
	"github.com/example/musicdaemon/internal/audio"
	"github.com/example/musicdaemon/internal/cache"
	"github.com/example/musicdaemon/internal/config"
	"github.com/example/musicdaemon/internal/diffusion"
	"github.com/example/musicdaemon/internal/queue"
)

// scannerBufferSize bounds one inbound JSON-RPC line; generous for prompts
// up to diffusion's 512-char / AR's 1000-char limits plus envelope overhead.
const scannerBufferSize = 1 << 20

// Deps bundles everything a Server dispatches requests against. Mirrors the
// dependency-injection shape of a typical handler constructor: the server
// uses every field but does not own the lifecycle of any of them.
type Deps struct {
	Cache     *cache.Cache
	Queue     *queue.Queue
	AR        *ar.Engine
	Diffusion *diffusion.Engine
	Registry  BackendRegistry
	Config    config.Config

	ARModelConfig        ar.ModelConfig
	DiffusionModelConfig diffusion.ModelConfig

	Version string
}

// Option configures a Server beyond its required Deps.
type Option func(*Server)

// WithLogger overrides the server's slog.Logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// Server reads line-delimited JSON-RPC 2.0 requests from in, dispatches
// them, and writes responses and notifications to out. All outbound writes
// go through send, which holds outMu for the lifetime of the call so no two
// JSON documents ever interleave on the wire.
type Server struct {
	in  io.Reader
	out io.Writer

	outMu sync.Mutex

	deps Deps
	log  *slog.Logger

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// NewServer constructs a Server bound to in/out and deps.
func NewServer(in io.Reader, out io.Writer, deps Deps, optFns ...Option) *Server {
	s := &Server{
		in:         in,
		out:        out,
		deps:       deps,
		log:        slog.Default(),
		shutdownCh: make(chan struct{}),
	}

	for _, fn := range optFns {
		fn(s)
	}

	return s
}

// Handler returns the queue.Handler that runs one job's inference and cache
// write, suitable for queue.NewWorker.
func (s *Server) Handler() queue.Handler {
	return s.runJob
}

// Notifier returns the queue.Notifier that emits this job's terminal
// notification, suitable for queue.NewWorker.
func (s *Server) Notifier() queue.Notifier {
	return queue.Notifier{
		OnComplete: func(job *queue.Job) {
			track, ok := s.deps.Cache.Get(job.TrackID)
			if !ok {
				s.log.Error("completed job missing cache entry", slog.String("track_id", job.TrackID))
				return
			}

			s.notifyComplete(job, track)
		},
		OnError: func(job *queue.Job, apiErr *apierr.Error) {
			s.notifyError(job, apiErr)
		},
		OnCancelled: func(job *queue.Job, atStep int) {
			s.notifyCancelled(job, atStep)
		},
	}
}

// ShutdownRequested reports whether a shutdown RPC has been received.
func (s *Server) ShutdownRequested() <-chan struct{} {
	return s.shutdownCh
}

func (s *Server) requestShutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

// Serve reads requests from in until EOF, ctx cancellation, or a shutdown
// RPC, dispatching each line as it arrives. Returns nil on a clean EOF or
// shutdown, matching spec §6's exit-code contract.
func (s *Server) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerBufferSize)

	lines := make(chan []byte)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)

		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)

			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}

		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.shutdownCh:
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}

			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}

			s.dispatch(ctx, line)
		}
	}
}

func (s *Server) dispatch(ctx context.Context, line []byte) {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		s.send(newError(nil, codeParseError, "parse error: "+err.Error(), nil))
		return
	}

	if req.JSONRPC != jsonrpcVersion || req.Method == "" {
		if !req.isNotification() {
			s.send(newError(req.ID, codeInvalidRequest, "invalid request", nil))
		}

		return
	}

	resp, handled := s.call(ctx, req)
	if req.isNotification() {
		return // unknown or known notifications never get a response
	}

	if !handled {
		s.send(newError(req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil))
		return
	}

	s.send(resp)

	if req.Method == "shutdown" {
		s.requestShutdown()
	}
}

// call dispatches one request to its handler. handled is false only for an
// unrecognized method name; everything else (including a validation
// failure) produces a resp worth sending.
func (s *Server) call(ctx context.Context, req request) (response, bool) {
	switch req.Method {
	case "ping":
		return s.handlePing(req), true
	case "get_backends":
		return s.handleGetBackends(req), true
	case "download_backend":
		return s.handleDownloadBackend(req), true
	case "generate":
		return s.handleGenerate(ctx, req), true
	case "cancel":
		return s.handleCancel(req), true
	case "shutdown":
		return s.handleShutdown(req), true
	default:
		return response{}, false
	}
}

// send writes one JSON document followed by a newline, holding outMu for
// the duration so responses and notifications never interleave.
func (s *Server) send(v any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()

	enc := json.NewEncoder(s.out)
	if err := enc.Encode(v); err != nil {
		s.log.Error("rpc: write failed", slog.String("error", err.Error()))
	}
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New("missing params")
	}

	return json.Unmarshal(raw, v)
}

func encodeWaveform(samples []float32, sampleRate int) ([]byte, error) {
	return audio.EncodeWAV(samples, sampleRate)
}
