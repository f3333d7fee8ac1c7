package engine

import (
	"context"
	"errors"
)

var (
	// ErrCallShape reports that an engine does not accept the calling
	// convention it was invoked with. It is never a data error.
	ErrCallShape = errors.New("engine: incompatible call shape")
	// ErrUnavailable reports that the engine could not be started or reached.
	ErrUnavailable = errors.New("engine unavailable")
)

// Convention selects how entity types are handed to the engine.
type Convention int

const (
	// ConventionSchema passes label -> definition pairs.
	ConventionSchema Convention = iota
	// ConventionTypes passes only the ordered label names.
	ConventionTypes
)

func (c Convention) String() string {
	switch c {
	case ConventionSchema:
		return "schema"
	case ConventionTypes:
		return "entity_types"
	default:
		return "unknown"
	}
}

type Call struct {
	Convention        Convention
	Text              string
	Schema            Schema
	EntityTypes       []string
	Threshold         float64
	IncludeConfidence bool
	IncludeSpans      bool
}

// Engine runs one synchronous extraction.
type Engine interface {
	Extract(ctx context.Context, call Call) (RawResult, error)
}

// Loader constructs an engine from a registry name or a local path.
type Loader interface {
	Load(ctx context.Context, identifier string) (Engine, error)
}

type LoaderFunc func(ctx context.Context, identifier string) (Engine, error)

func (f LoaderFunc) Load(ctx context.Context, identifier string) (Engine, error) {
	return f(ctx, identifier)
}
