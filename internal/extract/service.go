package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"nerapi/internal/engine"
	"nerapi/internal/logger"
	"nerapi/internal/metrics"
)

// Source hands out the engine to call, loading it on first use.
type Source interface {
	Acquire(ctx context.Context) (engine.Engine, error)
}

// Invalidator is implemented by sources that can drop an engine which stopped
// answering, so a later Acquire loads a new one.
type Invalidator interface {
	Invalidate(ctx context.Context, eng engine.Engine)
}

type Service struct {
	source  Source
	cache   *lru.Cache[string, []Entity]
	metrics *metrics.Metrics
}

type Option func(*Service) error

// WithCache keeps up to size normalized results keyed by text, schema and
// options. Zero disables caching.
func WithCache(size int) Option {
	return func(s *Service) error {
		if size <= 0 {
			return nil
		}
		cache, err := lru.New[string, []Entity](size)
		if err != nil {
			return fmt.Errorf("init result cache: %w", err)
		}
		s.cache = cache
		return nil
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) error {
		s.metrics = m
		return nil
	}
}

func NewService(source Source, opts ...Option) (*Service, error) {
	s := &Service{source: source}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Extract validates req and runs it against the engine.
func (s *Service) Extract(ctx context.Context, req Request) ([]Entity, error) {
	if err := req.Validate(); err != nil {
		s.metrics.ObserveExtract(metrics.OutcomeInvalid, 0, 0)
		return nil, err
	}
	return s.ExtractSchema(ctx, req.Text, BuildSchema(req.Entities), req.Options())
}

// ExtractSchema runs an already built schema through the adapter and
// normalizer.
func (s *Service) ExtractSchema(ctx context.Context, text string, schema engine.Schema, opts Options) ([]Entity, error) {
	key := ""
	if s.cache != nil {
		key = cacheKey(text, schema, opts)
		if hit, ok := s.cache.Get(key); ok {
			s.metrics.CacheLookup(true)
			return cloneEntities(hit), nil
		}
		s.metrics.CacheLookup(false)
	}

	eng, err := s.source.Acquire(ctx)
	if err != nil {
		s.metrics.ObserveExtract(metrics.OutcomeError, 0, 0)
		return nil, err
	}
	start := time.Now()
	raw, conv, err := extractRaw(ctx, eng, text, schema, opts)
	if conv == engine.ConventionTypes {
		s.metrics.Fallback()
	}
	if err != nil {
		s.metrics.ObserveExtract(metrics.OutcomeError, time.Since(start), 0)
		if inv, ok := s.source.(Invalidator); ok && errors.Is(err, engine.ErrUnavailable) {
			inv.Invalidate(ctx, eng)
		}
		return nil, err
	}
	entities := Normalize(raw)
	elapsed := time.Since(start)
	s.metrics.ObserveExtract(metrics.OutcomeOK, elapsed, len(entities))
	logger.FromContext(ctx).Debug("Extraction finished",
		"labels", schema.Len(), "entities", len(entities), "convention", conv.String(), "elapsed", elapsed)

	if s.cache != nil {
		s.cache.Add(key, cloneEntities(entities))
	}
	return entities, nil
}

func cacheKey(text string, schema engine.Schema, opts Options) string {
	h := sha256.New()
	schemaJSON, _ := json.Marshal(schema)
	_, _ = fmt.Fprintf(h, "%q|%s|%g|%t|%t", text, schemaJSON, opts.Threshold, opts.IncludeConfidence, opts.IncludeSpans)
	return hex.EncodeToString(h.Sum(nil))
}

func cloneEntities(in []Entity) []Entity {
	out := make([]Entity, len(in))
	copy(out, in)
	return out
}

// IsClientError reports whether err was caused by the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidSchema)
}
