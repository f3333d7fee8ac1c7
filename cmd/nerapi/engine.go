package main

import (
	"nerapi/internal/config"
	"nerapi/internal/engine"
	"nerapi/internal/engine/python"
	"nerapi/internal/engine/remote"
	"nerapi/internal/logger"
	"nerapi/internal/model"
	"nerapi/internal/models"
)

func newLoader(cfg config.Config) engine.Loader {
	if cfg.Engine.Backend == config.BackendRemote {
		return remote.NewLoader(remote.Config{
			BaseURL: cfg.Engine.RemoteURL,
			Timeout: cfg.Engine.Timeout,
			APIKey:  cfg.Engine.APIKey,
		})
	}
	return python.NewLoader(python.Config{
		Python:     cfg.Engine.Python,
		NativeONNX: cfg.Engine.ONNXBackend == config.ONNXNative,
		ORTLibrary: cfg.Engine.ORTLibrary,
	})
}

// resolveModel turns a configured model name into the identifier the engine
// loads. The remote backend resolves names on its side.
func resolveModel(cfg config.Config, name string, log logger.Logger) string {
	if cfg.Engine.Backend == config.BackendRemote {
		return name
	}
	reg, err := models.LoadEmbeddedRegistry()
	if err != nil {
		log.Warn("Model registry unavailable", "error", err)
		return name
	}
	id, src := reg.Resolve(cfg.ModelsDir, name)
	log.Debug("Resolved model", "name", name, "identifier", id, "source", string(src))
	return id
}

func newHandle(cfg config.Config, name string, log logger.Logger) *model.Handle {
	return model.NewHandle(resolveModel(cfg, name, log), newLoader(cfg))
}
