package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nerapi/internal/engine"
	"nerapi/internal/engine/enginetest"
	"nerapi/internal/metrics"
)

type staticSource struct {
	eng engine.Engine
	err error
}

func (s staticSource) Acquire(_ context.Context) (engine.Engine, error) {
	return s.eng, s.err
}

func ptr[T any](v T) *T { return &v }

type invalidatingSource struct {
	staticSource
	invalidated []engine.Engine
}

func (s *invalidatingSource) Invalidate(_ context.Context, eng engine.Engine) {
	s.invalidated = append(s.invalidated, eng)
}

func validRequest() Request {
	return Request{
		Text: "Ada Lovelace trabajó con Charles Babbage en Londres",
		Entities: []EntityType{
			{Name: "persona", Definition: "Nombre de una persona"},
			{Name: "ubicacion", Definition: "Ciudad o pais"},
		},
	}
}

func TestRequest_Validate(t *testing.T) {
	t.Run("Should accept a complete request", func(t *testing.T) {
		assert.NoError(t, validRequest().Validate())
	})

	t.Run("Should reject an empty entity list", func(t *testing.T) {
		req := validRequest()
		req.Entities = nil
		err := req.Validate()
		assert.ErrorIs(t, err, ErrInvalidSchema)
		assert.Contains(t, err.Error(), "entities")
	})

	t.Run("Should reject blank names and definitions", func(t *testing.T) {
		req := validRequest()
		req.Entities = []EntityType{{Name: "", Definition: "x"}, {Name: "y"}}
		err := req.Validate()
		require.ErrorIs(t, err, ErrInvalidSchema)
		assert.Contains(t, err.Error(), "entities[0].name is required")
		assert.Contains(t, err.Error(), "entities[1].definition is required")
	})

	t.Run("Should reject thresholds outside the unit interval", func(t *testing.T) {
		req := validRequest()
		req.Threshold = ptr(1.5)
		assert.ErrorContains(t, req.Validate(), "threshold must be between 0 and 1")
		req.Threshold = ptr(0.0)
		assert.NoError(t, req.Validate())
	})

	t.Run("Should reject empty text", func(t *testing.T) {
		req := validRequest()
		req.Text = ""
		assert.ErrorIs(t, req.Validate(), ErrInvalidSchema)
	})
}

func TestRequest_Options(t *testing.T) {
	assert.Equal(t, Options{Threshold: 0.5, IncludeConfidence: true, IncludeSpans: true}, Request{}.Options())

	req := Request{Threshold: ptr(0.2), IncludeConfidence: ptr(false), IncludeSpans: ptr(false)}
	assert.Equal(t, Options{Threshold: 0.2}, req.Options())
}

func TestRequest_DecodeDefaults(t *testing.T) {
	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{"text":"x","entities":[{"name":"a","definition":"b"}],"include_spans":false}`), &req))
	opts := req.Options()
	assert.True(t, opts.IncludeConfidence)
	assert.False(t, opts.IncludeSpans)
}

func TestService_Extract(t *testing.T) {
	t.Run("Should run schema, adapter and normalizer end to end", func(t *testing.T) {
		eng := &enginetest.Engine{Respond: enginetest.Echo(map[string][]string{
			"persona":   {"Ada Lovelace", "Charles Babbage"},
			"ubicacion": {"Londres"},
		})}
		svc, err := NewService(staticSource{eng: eng})
		require.NoError(t, err)

		got, err := svc.Extract(t.Context(), validRequest())
		require.NoError(t, err)
		assert.Equal(t, []Entity{
			{Text: "Ada Lovelace", Label: "persona"},
			{Text: "Charles Babbage", Label: "persona"},
			{Text: "Londres", Label: "ubicacion"},
		}, got)

		call := eng.Calls()[0]
		assert.Equal(t, 0.5, call.Threshold)
		assert.True(t, call.IncludeConfidence)
		assert.True(t, call.IncludeSpans)
	})

	t.Run("Should not call the engine for invalid requests", func(t *testing.T) {
		eng := &enginetest.Engine{}
		svc, err := NewService(staticSource{eng: eng})
		require.NoError(t, err)

		_, err = svc.Extract(t.Context(), Request{Text: "x"})
		assert.True(t, IsClientError(err))
		assert.Empty(t, eng.Calls())
	})

	t.Run("Should propagate load failures", func(t *testing.T) {
		loadErr := errors.New("no such model")
		svc, err := NewService(staticSource{err: loadErr})
		require.NoError(t, err)

		_, err = svc.Extract(t.Context(), validRequest())
		assert.Same(t, loadErr, err)
		assert.False(t, IsClientError(err))
	})

	t.Run("Should serve repeated requests from the cache", func(t *testing.T) {
		eng := &enginetest.Engine{Result: enginetest.Result(enginetest.Group("persona", "Ada"))}
		reg := prometheus.NewRegistry()
		svc, err := NewService(staticSource{eng: eng}, WithCache(8), WithMetrics(metrics.New(reg)))
		require.NoError(t, err)

		first, err := svc.Extract(t.Context(), validRequest())
		require.NoError(t, err)
		first[0].Text = "mutated"

		second, err := svc.Extract(t.Context(), validRequest())
		require.NoError(t, err)
		assert.Equal(t, "Ada", second[0].Text)
		assert.Len(t, eng.Calls(), 1)

		other := validRequest()
		other.Threshold = ptr(0.9)
		_, err = svc.Extract(t.Context(), other)
		require.NoError(t, err)
		assert.Len(t, eng.Calls(), 2)
	})

	t.Run("Should hand an unavailable engine back to its source", func(t *testing.T) {
		eng := &enginetest.Engine{Err: fmt.Errorf("%w: bridge exited", engine.ErrUnavailable)}
		src := &invalidatingSource{staticSource: staticSource{eng: eng}}
		svc, err := NewService(src)
		require.NoError(t, err)

		_, err = svc.Extract(t.Context(), validRequest())
		require.ErrorIs(t, err, engine.ErrUnavailable)
		require.Len(t, src.invalidated, 1)
		assert.Same(t, eng, src.invalidated[0])
	})

	t.Run("Should keep the engine after a canceled call or an engine error", func(t *testing.T) {
		eng := &enginetest.Engine{Err: context.Canceled}
		src := &invalidatingSource{staticSource: staticSource{eng: eng}}
		svc, err := NewService(src)
		require.NoError(t, err)

		_, err = svc.Extract(t.Context(), validRequest())
		require.ErrorIs(t, err, context.Canceled)
		eng.Err = errors.New("index out of range")
		_, err = svc.Extract(t.Context(), validRequest())
		require.Error(t, err)
		assert.Empty(t, src.invalidated)
	})

	t.Run("Should fall back for engines without definitions", func(t *testing.T) {
		eng := &enginetest.Engine{TypesOnly: true, Respond: enginetest.Echo(map[string][]string{"persona": {"Ada"}})}
		svc, err := NewService(staticSource{eng: eng}, WithMetrics(metrics.New(prometheus.NewRegistry())))
		require.NoError(t, err)

		got, err := svc.Extract(t.Context(), validRequest())
		require.NoError(t, err)
		assert.Equal(t, []Entity{{Text: "Ada", Label: "persona"}}, got)
	})
}

func TestEntity_JSON(t *testing.T) {
	b, err := json.Marshal(Entity{Text: "Ada", Label: "persona"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"Ada","label":"persona","score":null,"start":null,"end":null}`, string(b))
}
