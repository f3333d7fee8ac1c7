package python

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nerapi/internal/engine"
	"nerapi/internal/model"
)

const fakeServe = `while IFS= read -r line; do
  case "$line" in
    *'"op":"load"'*'"model":"missing"'*) echo '{"error":"repository not found","error_kind":"load"}' ;;
    *'"op":"load"'*) echo '{"ok":true}' ;;
    *'"convention":"schema"'*) echo '{"error":"unexpected keyword argument schema","error_kind":"call_shape"}' ;;
    *'"text":"slow"'*) sleep 1; echo '{"result":{"entities":{"persona":["late"]}}}' ;;
    *'"text":"boom"'*) echo '{"error":"index out of range","error_kind":"engine"}' ;;
    *) echo '{"result":{"entities":{"persona":[{"text":"Ada","confidence":0.9,"start":0,"end":3}],"ubicacion":["Londres"]}}}' ;;
  esac
done
`

func fakeInterpreter(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "fake-python")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func typesCall(text string) engine.Call {
	return engine.Call{Convention: engine.ConventionTypes, Text: text, EntityTypes: []string{"persona", "ubicacion"}, Threshold: 0.5}
}

func TestSession(t *testing.T) {
	cfg := Config{Python: fakeInterpreter(t, fakeServe)}

	t.Run("Should load and extract with entity types", func(t *testing.T) {
		s, err := Start(t.Context(), cfg, "fastino/gliner2-multi-v1")
		require.NoError(t, err)
		defer s.Close()

		res, err := s.Extract(t.Context(), typesCall("Ada vive en Londres"))
		require.NoError(t, err)
		require.Len(t, res.Labels, 2)
		assert.Equal(t, "persona", res.Labels[0].Label)
		assert.Equal(t, engine.Bare{Text: "Londres"}, res.Labels[1].Occurrences[0])
	})

	t.Run("Should report schema rejection as a call shape error", func(t *testing.T) {
		s, err := Start(t.Context(), cfg, "fastino/gliner2-multi-v1")
		require.NoError(t, err)
		defer s.Close()

		var schema engine.Schema
		schema.Set("persona", "Nombre de una persona")
		_, err = s.Extract(t.Context(), engine.Call{Convention: engine.ConventionSchema, Text: "Ada", Schema: schema})
		assert.ErrorIs(t, err, engine.ErrCallShape)
	})

	t.Run("Should keep engine failures distinct from call shape errors", func(t *testing.T) {
		s, err := Start(t.Context(), cfg, "fastino/gliner2-multi-v1")
		require.NoError(t, err)
		defer s.Close()

		_, err = s.Extract(t.Context(), typesCall("boom"))
		require.Error(t, err)
		assert.False(t, errors.Is(err, engine.ErrCallShape))
		assert.Contains(t, err.Error(), "index out of range")
	})

	t.Run("Should fail load for unknown identifiers", func(t *testing.T) {
		_, err := Start(t.Context(), cfg, "missing")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "repository not found")
	})

	t.Run("Should refuse calls after close", func(t *testing.T) {
		s, err := Start(t.Context(), cfg, "fastino/gliner2-multi-v1")
		require.NoError(t, err)
		require.NoError(t, s.Close())
		require.NoError(t, s.Close())

		_, err = s.Extract(t.Context(), typesCall("Ada"))
		assert.ErrorIs(t, err, engine.ErrUnavailable)
	})

	t.Run("Should honor a canceled context", func(t *testing.T) {
		s, err := Start(t.Context(), cfg, "fastino/gliner2-multi-v1")
		require.NoError(t, err)
		defer s.Close()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		_, err = s.Extract(ctx, typesCall("Ada"))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSession_CanceledCall(t *testing.T) {
	cfg := Config{Python: fakeInterpreter(t, fakeServe)}

	t.Run("Should keep serving after a caller gives up", func(t *testing.T) {
		h := model.NewHandle("fastino/gliner2-multi-v1", NewLoader(cfg))
		defer h.Close()

		eng, err := h.Acquire(t.Context())
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
		defer cancel()
		_, err = eng.Extract(ctx, typesCall("slow"))
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, model.Loaded, h.State())

		for range 3 {
			eng, err := h.Acquire(t.Context())
			require.NoError(t, err)
			res, err := eng.Extract(t.Context(), typesCall("Ada vive en Londres"))
			require.NoError(t, err)
			require.Len(t, res.Labels, 2)
			assert.Equal(t, engine.Bare{Text: "Londres"}, res.Labels[1].Occurrences[0])
		}
	})

	t.Run("Should stay canceled while the late reply is still pending", func(t *testing.T) {
		s, err := Start(t.Context(), cfg, "fastino/gliner2-multi-v1")
		require.NoError(t, err)
		defer s.Close()

		first, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
		defer cancel()
		_, err = s.Extract(first, typesCall("slow"))
		require.ErrorIs(t, err, context.DeadlineExceeded)

		second, cancel2 := context.WithTimeout(t.Context(), 50*time.Millisecond)
		defer cancel2()
		_, err = s.Extract(second, typesCall("Ada"))
		require.ErrorIs(t, err, context.DeadlineExceeded)

		res, err := s.Extract(t.Context(), typesCall("Ada"))
		require.NoError(t, err)
		assert.Equal(t, "persona", res.Labels[0].Label)
		assert.Equal(t, "Ada", *res.Labels[0].Occurrences[0].(engine.Structured).Text)
	})
}

func TestStart_Unavailable(t *testing.T) {
	t.Run("Should report a missing interpreter", func(t *testing.T) {
		_, err := Start(t.Context(), Config{Python: filepath.Join(t.TempDir(), "nope")}, "m")
		assert.ErrorIs(t, err, engine.ErrUnavailable)
	})

	t.Run("Should report a bridge that exits early", func(t *testing.T) {
		py := fakeInterpreter(t, "echo 'No module named gliner2' >&2\nexit 3\n")
		_, err := Start(t.Context(), Config{Python: py}, "m")
		require.ErrorIs(t, err, engine.ErrUnavailable)
		assert.Contains(t, err.Error(), "No module named gliner2")
	})
}

func TestLoader(t *testing.T) {
	l := NewLoader(Config{Python: fakeInterpreter(t, fakeServe)})
	eng, err := l.Load(t.Context(), "fastino/gliner2-multi-v1")
	require.NoError(t, err)
	s, ok := eng.(*Session)
	require.True(t, ok)
	assert.NoError(t, s.Close())
}

func TestTrain(t *testing.T) {
	trainFile := filepath.Join(t.TempDir(), "train.jsonl")
	require.NoError(t, os.WriteFile(trainFile, []byte(`{"input":"Ada","output":{"entities":{"persona":["Ada"]}}}`+"\n"), 0o644))

	t.Run("Should run the trainer", func(t *testing.T) {
		py := fakeInterpreter(t, "cat >/dev/null\necho '{\"ok\":true}'\n")
		tc := DefaultTrainConfig()
		tc.TrainFile = trainFile
		tc.OutputDir = t.TempDir()
		assert.NoError(t, Train(t.Context(), Config{Python: py}, tc, nil))
	})

	t.Run("Should surface trainer errors", func(t *testing.T) {
		py := fakeInterpreter(t, "cat >/dev/null\necho '{\"error\":\"CUDA out of memory\"}'\n")
		tc := DefaultTrainConfig()
		tc.TrainFile = trainFile
		err := Train(t.Context(), Config{Python: py}, tc, nil)
		assert.ErrorContains(t, err, "CUDA out of memory")
	})

	t.Run("Should reject missing dataset files", func(t *testing.T) {
		tc := DefaultTrainConfig()
		tc.TrainFile = trainFile
		tc.ValFile = filepath.Join(t.TempDir(), "val.jsonl")
		err := Train(t.Context(), Config{}, tc, nil)
		assert.ErrorContains(t, err, "validation file")
	})
}
