// Package extract turns caller entity definitions into engine calls and
// engine results into a flat list of entities.
package extract

import (
	"errors"

	"nerapi/internal/engine"
)

// ErrInvalidSchema marks a rejected extraction request.
var ErrInvalidSchema = errors.New("invalid extraction request")

// EntityType is a caller-chosen label with a natural-language definition.
type EntityType struct {
	Name       string `json:"name" validate:"required"`
	Definition string `json:"definition" validate:"required"`
}

// Entity is one normalized occurrence. Score, Start and End are nil when the
// engine did not report them.
type Entity struct {
	Text  string   `json:"text"`
	Label string   `json:"label"`
	Score *float64 `json:"score"`
	Start *int     `json:"start"`
	End   *int     `json:"end"`
}

type Options struct {
	Threshold         float64
	IncludeConfidence bool
	IncludeSpans      bool
}

const DefaultThreshold = 0.5

// BuildSchema maps names to definitions. A repeated name keeps its first
// position and takes the last definition.
func BuildSchema(types []EntityType) engine.Schema {
	var s engine.Schema
	for _, t := range types {
		s.Set(t.Name, t.Definition)
	}
	return s
}
