//go:build !onnxruntime

package python

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"nerapi/internal/engine"
)

func TestProbeModel(t *testing.T) {
	t.Run("Should refuse native checks without native support", func(t *testing.T) {
		err := probeModel(Config{NativeONNX: true}, "/tmp/model")
		assert.ErrorIs(t, err, engine.ErrUnavailable)
	})

	t.Run("Should pass by default", func(t *testing.T) {
		assert.NoError(t, probeModel(Config{}, "fastino/gliner2-multi-v1"))
	})

	t.Run("Should fail the load through the loader", func(t *testing.T) {
		_, err := NewLoader(Config{NativeONNX: true}).Load(t.Context(), "fastino/gliner2-multi-v1")
		assert.ErrorIs(t, err, engine.ErrUnavailable)
	})
}
