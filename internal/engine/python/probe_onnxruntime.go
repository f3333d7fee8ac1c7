//go:build onnxruntime

package python

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ort "github.com/yalue/onnxruntime_go"

	"nerapi/internal/engine"
)

// probeModel inspects an exported ONNX graph before the bridge loads its
// directory. Hub identifiers and directories without model.onnx pass.
func probeModel(cfg Config, identifier string) error {
	modelPath := filepath.Join(identifier, "model.onnx")
	if _, err := os.Stat(modelPath); err != nil {
		return nil
	}
	if cfg.ORTLibrary != "" {
		ort.SetSharedLibraryPath(cfg.ORTLibrary)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("%w: onnxruntime init: %v", engine.ErrUnavailable, err)
		}
	}
	inputs, _, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return fmt.Errorf("%w: inspect %s: %v", engine.ErrUnavailable, modelPath, err)
	}
	for _, in := range inputs {
		if strings.Contains(in.Name, "input_ids") {
			return nil
		}
	}
	return fmt.Errorf("%w: %s has no input_ids input", engine.ErrUnavailable, modelPath)
}
