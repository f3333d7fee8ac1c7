// Package enginetest provides in-memory engines for tests.
package enginetest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"nerapi/internal/engine"
)

// Engine records calls and answers with a fixed result or a callback.
type Engine struct {
	Result engine.RawResult
	Err    error
	// Respond overrides Result and Err when set.
	Respond func(call engine.Call) (engine.RawResult, error)
	// TypesOnly makes schema-convention calls fail with engine.ErrCallShape.
	TypesOnly bool

	mu    sync.Mutex
	calls []engine.Call
}

func (e *Engine) Extract(_ context.Context, call engine.Call) (engine.RawResult, error) {
	e.mu.Lock()
	e.calls = append(e.calls, call)
	e.mu.Unlock()
	if e.TypesOnly && call.Convention == engine.ConventionSchema {
		return engine.RawResult{}, engine.ErrCallShape
	}
	if e.Respond != nil {
		return e.Respond(call)
	}
	return e.Result, e.Err
}

func (e *Engine) Calls() []engine.Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]engine.Call, len(e.calls))
	copy(out, e.calls)
	return out
}

// Loader counts Load invocations and returns Engine or Err after Delay.
type Loader struct {
	Engine engine.Engine
	Err    error
	Delay  time.Duration

	loads atomic.Int32
}

func (l *Loader) Load(ctx context.Context, _ string) (engine.Engine, error) {
	l.loads.Add(1)
	if l.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.Delay):
		}
	}
	if l.Err != nil {
		return nil, l.Err
	}
	return l.Engine, nil
}

func (l *Loader) Loads() int {
	return int(l.loads.Load())
}

// Group builds a label group from plain strings (Bare) and Structured values.
func Group(label string, values ...any) engine.LabelGroup {
	g := engine.LabelGroup{Label: label}
	for _, v := range values {
		switch o := v.(type) {
		case string:
			g.Occurrences = append(g.Occurrences, engine.Bare{Text: o})
		case engine.Occurrence:
			g.Occurrences = append(g.Occurrences, o)
		}
	}
	return g
}

func Result(groups ...engine.LabelGroup) engine.RawResult {
	return engine.RawResult{Labels: groups}
}

// Record builds a Structured occurrence with every field set.
func Record(text string, confidence float64, start, end int) engine.Structured {
	return engine.Structured{Text: &text, Confidence: &confidence, Start: &start, End: &end}
}

// Echo answers every call with the texts of each requested label, taken
// from answers. It mimics an engine that only reports requested labels.
func Echo(answers map[string][]string) func(engine.Call) (engine.RawResult, error) {
	return func(call engine.Call) (engine.RawResult, error) {
		labels := call.EntityTypes
		if call.Convention == engine.ConventionSchema {
			labels = call.Schema.Names()
		}
		var res engine.RawResult
		for _, l := range labels {
			values := make([]any, 0, len(answers[l]))
			for _, t := range answers[l] {
				values = append(values, t)
			}
			res.Labels = append(res.Labels, Group(l, values...))
		}
		return res, nil
	}
}
