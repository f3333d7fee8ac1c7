// Package model holds the process-wide extraction engine behind a lazily
// loading handle.
package model

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"nerapi/internal/engine"
	"nerapi/internal/logger"
)

type State int32

const (
	Unloaded State = iota
	Loading
	Loaded
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// Handle loads its engine on first Acquire. Concurrent first callers share
// a single load; a failed load leaves the handle Unloaded.
type Handle struct {
	identifier string
	loader     engine.Loader

	mu     sync.Mutex
	state  atomic.Int32
	engine atomic.Pointer[loadedEngine]
}

type loadedEngine struct {
	engine.Engine
}

func NewHandle(identifier string, loader engine.Loader) *Handle {
	return &Handle{identifier: identifier, loader: loader}
}

func (h *Handle) Identifier() string {
	return h.identifier
}

func (h *Handle) State() State {
	return State(h.state.Load())
}

// Acquire returns the loaded engine, loading it if needed. Load errors are
// returned exactly as the loader produced them.
func (h *Handle) Acquire(ctx context.Context) (engine.Engine, error) {
	if le := h.engine.Load(); le != nil {
		return le.Engine, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if le := h.engine.Load(); le != nil {
		return le.Engine, nil
	}

	log := logger.FromContext(ctx).With("model", h.identifier)
	h.state.Store(int32(Loading))
	log.Info("Loading model")
	start := time.Now()
	eng, err := h.loader.Load(ctx, h.identifier)
	if err != nil {
		h.state.Store(int32(Unloaded))
		log.Error("Model load failed", "error", err)
		return nil, err
	}
	h.engine.Store(&loadedEngine{eng})
	h.state.Store(int32(Loaded))
	log.Debug("Model ready", "elapsed", time.Since(start).Round(time.Millisecond))
	return eng, nil
}

// Close releases a loaded engine. The handle may be acquired again later.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	le := h.engine.Swap(nil)
	h.state.Store(int32(Unloaded))
	if le == nil {
		return nil
	}
	if c, ok := le.Engine.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Invalidate drops eng if it is still the loaded engine, so the next Acquire
// loads a fresh one. Stale engines from an earlier load are ignored.
func (h *Handle) Invalidate(ctx context.Context, eng engine.Engine) {
	h.mu.Lock()
	le := h.engine.Load()
	if le == nil || le.Engine != eng {
		h.mu.Unlock()
		return
	}
	h.engine.Store(nil)
	h.state.Store(int32(Unloaded))
	h.mu.Unlock()

	logger.FromContext(ctx).Warn("Model engine unavailable, will reload on next call", "model", h.identifier)
	if c, ok := eng.(io.Closer); ok {
		_ = c.Close()
	}
}
