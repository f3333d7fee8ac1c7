package extract

import (
	"context"
	"errors"

	"nerapi/internal/engine"
	"nerapi/internal/logger"
)

// ExtractRaw calls eng with the label -> definition schema. An engine that
// rejects that convention with engine.ErrCallShape is called once more with
// the label names only. Other errors are returned as is.
func ExtractRaw(ctx context.Context, eng engine.Engine, text string, schema engine.Schema, opts Options) (engine.RawResult, error) {
	raw, _, err := extractRaw(ctx, eng, text, schema, opts)
	return raw, err
}

func extractRaw(ctx context.Context, eng engine.Engine, text string, schema engine.Schema, opts Options) (engine.RawResult, engine.Convention, error) {
	call := engine.Call{
		Convention:        engine.ConventionSchema,
		Text:              text,
		Schema:            schema,
		Threshold:         opts.Threshold,
		IncludeConfidence: opts.IncludeConfidence,
		IncludeSpans:      opts.IncludeSpans,
	}
	raw, err := eng.Extract(ctx, call)
	if err == nil || !errors.Is(err, engine.ErrCallShape) {
		return raw, engine.ConventionSchema, err
	}

	logger.FromContext(ctx).Debug("Engine rejected schema call, retrying with entity types", "error", err)
	call.Convention = engine.ConventionTypes
	call.Schema = engine.Schema{}
	call.EntityTypes = schema.Names()
	raw, err = eng.Extract(ctx, call)
	return raw, engine.ConventionTypes, err
}
