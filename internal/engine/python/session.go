// Package python runs the extraction engine in a long-lived python3 child
// process speaking JSON lines over stdin/stdout.
package python

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"nerapi/internal/engine"
	"nerapi/internal/logger"
)

const (
	defaultPython = "python3"
	closeTimeout  = 3 * time.Second
	stderrTail    = 4 * 1024
)

type Config struct {
	// Python is the interpreter to run. Defaults to python3.
	Python string
	// NativeONNX requires the onnxruntime check of exported model
	// directories; it fails on builds without native support.
	NativeONNX bool
	ORTLibrary string
}

func (c Config) interpreter() string {
	if c.Python == "" {
		return defaultPython
	}
	return c.Python
}

type Loader struct {
	cfg Config
}

func NewLoader(cfg Config) *Loader {
	return &Loader{cfg: cfg}
}

func (l *Loader) Load(ctx context.Context, identifier string) (engine.Engine, error) {
	if err := probeModel(l.cfg, identifier); err != nil {
		return nil, err
	}
	return Start(ctx, l.cfg, identifier)
}

type request struct {
	Op                string         `json:"op"`
	Model             string         `json:"model,omitempty"`
	Convention        string         `json:"convention,omitempty"`
	Text              string         `json:"text"`
	Schema            *engine.Schema `json:"schema,omitempty"`
	EntityTypes       []string       `json:"entity_types,omitempty"`
	Threshold         float64        `json:"threshold"`
	IncludeConfidence bool           `json:"include_confidence"`
	IncludeSpans      bool           `json:"include_spans"`
}

type response struct {
	OK        bool            `json:"ok"`
	Result    json.RawMessage `json:"result"`
	Error     string          `json:"error"`
	ErrorKind string          `json:"error_kind"`
}

// Session is one bridge process with one loaded model. Calls are serialized.
type Session struct {
	identifier string
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	enc        *json.Encoder
	dec        *json.Decoder
	stderr     *tailBuffer
	waitCh     chan error

	mu     sync.Mutex
	closed bool
	// pending holds the reply of a call whose caller gave up waiting.
	pending chan decoded
}

type decoded struct {
	resp response
	err  error
}

// Start launches the bridge and loads identifier. The process outlives ctx;
// ctx only bounds the load itself.
func Start(ctx context.Context, cfg Config, identifier string) (*Session, error) {
	log := logger.FromContext(ctx).With("model", identifier)
	cmd := exec.Command(cfg.interpreter(), "-u", "-c", bridgeScript, "serve")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	s := &Session{
		identifier: identifier,
		cmd:        cmd,
		stdin:      stdin,
		enc:        json.NewEncoder(stdin),
		dec:        json.NewDecoder(stdout),
		stderr:     newTailBuffer(stderrTail),
		waitCh:     make(chan error, 1),
	}
	cmd.Stderr = s.stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", engine.ErrUnavailable, cfg.interpreter(), err)
	}
	go func() { s.waitCh <- cmd.Wait() }()

	start := time.Now()
	if _, err := s.roundTrip(ctx, request{Op: "load", Model: identifier}); err != nil {
		_ = s.Close()
		return nil, err
	}
	log.Info("Model loaded", "pid", cmd.Process.Pid, "elapsed", time.Since(start).Round(time.Millisecond))
	return s, nil
}

func (s *Session) Extract(ctx context.Context, call engine.Call) (engine.RawResult, error) {
	req := request{
		Op:                "extract",
		Convention:        call.Convention.String(),
		Text:              call.Text,
		Threshold:         call.Threshold,
		IncludeConfidence: call.IncludeConfidence,
		IncludeSpans:      call.IncludeSpans,
	}
	switch call.Convention {
	case engine.ConventionSchema:
		schema := call.Schema
		req.Schema = &schema
	default:
		req.EntityTypes = call.EntityTypes
		if req.EntityTypes == nil {
			req.EntityTypes = []string{}
		}
	}
	resp, err := s.roundTrip(ctx, req)
	if err != nil {
		return engine.RawResult{}, err
	}
	return engine.ParseRawResult(resp.Result)
}

// roundTrip sends req and waits for its reply. A canceled ctx returns
// ctx.Err() without stopping the bridge; the late reply is discarded by the
// next call so requests and replies stay paired.
func (s *Session) roundTrip(ctx context.Context, req request) (response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return response{}, fmt.Errorf("%w: session closed", engine.ErrUnavailable)
	}
	if err := s.drainPending(ctx); err != nil {
		return response{}, err
	}
	if err := ctx.Err(); err != nil {
		return response{}, err
	}
	if err := s.enc.Encode(req); err != nil {
		return response{}, s.exited(err)
	}

	done := make(chan decoded, 1)
	go func() {
		var r response
		err := s.dec.Decode(&r)
		done <- decoded{r, err}
	}()

	var d decoded
	select {
	case <-ctx.Done():
		s.pending = done
		logger.FromContext(ctx).Debug("Caller gave up on bridge reply", "op", req.Op, "error", ctx.Err())
		return response{}, ctx.Err()
	case d = <-done:
	}
	if d.err != nil {
		return response{}, s.exited(d.err)
	}
	if d.resp.Error != "" {
		return response{}, s.responseError(req, d.resp)
	}
	return d.resp, nil
}

func (s *Session) drainPending(ctx context.Context) error {
	if s.pending == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case d := <-s.pending:
		s.pending = nil
		if d.err != nil {
			return s.exited(d.err)
		}
		return nil
	}
}

func (s *Session) responseError(req request, resp response) error {
	switch resp.ErrorKind {
	case "call_shape":
		return fmt.Errorf("%w: %s", engine.ErrCallShape, resp.Error)
	case "load":
		return fmt.Errorf("load model %q: %s", s.identifier, resp.Error)
	default:
		return fmt.Errorf("python engine %s: %s", req.Op, resp.Error)
	}
}

func (s *Session) exited(err error) error {
	// Wait for the process so the stderr copy is complete.
	select {
	case werr := <-s.waitCh:
		s.waitCh <- werr
	case <-time.After(closeTimeout):
	}
	if tail := s.stderr.String(); tail != "" {
		return fmt.Errorf("%w: bridge exited: %v: %s", engine.ErrUnavailable, err, tail)
	}
	return fmt.Errorf("%w: bridge exited: %v", engine.ErrUnavailable, err)
}

// Close stops the bridge, killing it if it does not exit in time.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.stdin.Close()
	select {
	case <-s.waitCh:
	case <-time.After(closeTimeout):
		_ = s.cmd.Process.Kill()
		<-s.waitCh
	}
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
