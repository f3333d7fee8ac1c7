//go:build !onnxruntime

package python

import (
	"fmt"

	"nerapi/internal/engine"
)

func probeModel(cfg Config, _ string) error {
	if cfg.NativeONNX {
		return fmt.Errorf("%w: native ONNX check requires build tag 'onnxruntime'", engine.ErrUnavailable)
	}
	return nil
}
