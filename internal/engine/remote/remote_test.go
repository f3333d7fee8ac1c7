package remote

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nerapi/internal/engine"
)

type recorder struct {
	mu     sync.Mutex
	bodies []map[string]any
}

func (r *recorder) last() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodies[len(r.bodies)-1]
}

func newEngineServer(t *testing.T) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body := map[string]any{}
		_ = json.Unmarshal(raw, &body)
		rec.mu.Lock()
		rec.bodies = append(rec.bodies, body)
		rec.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/v1/models/load" && body["model"] == "missing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"not_found","message":"model not found"}}`))
		case r.URL.Path == "/v1/models/load":
			_, _ = w.Write([]byte(`{"model":"ok"}`))
		case body["schema"] != nil:
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":{"code":"call_shape","message":"schema not supported"}}`))
		case body["text"] == "boom":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"code":"internal","message":"cuda failure"}}`))
		default:
			_, _ = w.Write([]byte(`{"entities":{"empresa":[{"text":"Acme","confidence":0.8}],"persona":["Ada"]}}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestRemoteEngine(t *testing.T) {
	srv, rec := newEngineServer(t)
	loader := NewLoader(Config{BaseURL: srv.URL})

	eng, err := loader.Load(t.Context(), "fastino/gliner2-multi-v1")
	require.NoError(t, err)

	t.Run("Should decode the engine result in label order", func(t *testing.T) {
		res, err := eng.Extract(t.Context(), engine.Call{
			Convention:  engine.ConventionTypes,
			Text:        "Ada trabaja en Acme",
			EntityTypes: []string{"empresa", "persona"},
			Threshold:   0.4,
		})
		require.NoError(t, err)
		require.Len(t, res.Labels, 2)
		assert.Equal(t, "empresa", res.Labels[0].Label)
		assert.Equal(t, engine.Bare{Text: "Ada"}, res.Labels[1].Occurrences[0])

		last := rec.last()
		assert.Equal(t, "fastino/gliner2-multi-v1", last["model"])
		assert.InDelta(t, 0.4, last["threshold"], 1e-9)
		assert.Nil(t, last["schema"])
	})

	t.Run("Should map call shape rejections", func(t *testing.T) {
		var schema engine.Schema
		schema.Set("empresa", "Nombre de una empresa")
		_, err := eng.Extract(t.Context(), engine.Call{Convention: engine.ConventionSchema, Text: "Acme", Schema: schema})
		assert.ErrorIs(t, err, engine.ErrCallShape)
	})

	t.Run("Should pass other engine errors through", func(t *testing.T) {
		_, err := eng.Extract(t.Context(), engine.Call{Convention: engine.ConventionTypes, Text: "boom", EntityTypes: []string{"x"}})
		require.Error(t, err)
		assert.False(t, errors.Is(err, engine.ErrCallShape))
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "internal", apiErr.Detail.Code)
	})
}

func TestRemoteLoader_Failures(t *testing.T) {
	t.Run("Should fail for unknown models", func(t *testing.T) {
		srv, _ := newEngineServer(t)
		_, err := NewLoader(Config{BaseURL: srv.URL}).Load(t.Context(), "missing")
		assert.ErrorContains(t, err, "model not found")
	})

	t.Run("Should report unreachable engines as unavailable", func(t *testing.T) {
		srv, _ := newEngineServer(t)
		url := srv.URL
		srv.Close()
		_, err := NewLoader(Config{BaseURL: url}).Load(t.Context(), "m")
		assert.ErrorIs(t, err, engine.ErrUnavailable)
	})
}
