package models

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

//go:embed registry.json
var embeddedRegistry []byte

type Registry struct {
	Version string      `json:"version"`
	Models  []ModelSpec `json:"models"`
}

// ModelSpec describes a known model. Identifier is what the engine loads
// when no local copy is installed. URL and Checksum are only set for
// models distributed as archives.
type ModelSpec struct {
	Name         string `json:"name"`
	DisplayName  string `json:"display_name"`
	Identifier   string `json:"identifier"`
	Version      string `json:"version"`
	Language     string `json:"language"`
	URL          string `json:"url,omitempty"`
	Checksum     string `json:"checksum,omitempty"`
	SizeBytes    int64  `json:"size_bytes,omitempty"`
	Description  string `json:"description"`
	Architecture string `json:"architecture"`
	License      string `json:"license"`
	Recommended  bool   `json:"recommended"`
}

// Archived reports whether the model can be installed from an archive.
func (m ModelSpec) Archived() bool {
	return m.URL != "" && m.Checksum != ""
}

func LoadEmbeddedRegistry() (Registry, error) {
	return parseRegistry(embeddedRegistry)
}

func parseRegistry(data []byte) (Registry, error) {
	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return Registry{}, fmt.Errorf("parse model registry: %w", err)
	}
	sort.Slice(reg.Models, func(i, j int) bool { return reg.Models[i].Name < reg.Models[j].Name })
	return reg, nil
}

// Find looks a model up by registry name or by engine identifier.
func (r Registry) Find(name string) (ModelSpec, bool) {
	for _, m := range r.Models {
		if m.Name == name || m.Identifier == name {
			return m, true
		}
	}
	return ModelSpec{}, false
}

type Source string

const (
	SourceLocal     Source = "local"
	SourceInstalled Source = "installed"
	SourceHub       Source = "hub"
)

// Resolve maps a configured model name to the identifier handed to the
// engine. A directory holding a saved model wins, then an installed
// model under root, then the registry identifier. Other names pass
// through unchanged so any hub identifier can be used.
func (r Registry) Resolve(root, name string) (string, Source) {
	if ValidateModelDir(name) == nil {
		return name, SourceLocal
	}
	m, ok := r.Find(name)
	if !ok {
		if root != "" && ValidateModelDir(ModelInstallPath(root, name)) == nil {
			return ModelInstallPath(root, name), SourceInstalled
		}
		return name, SourceHub
	}
	if root != "" && IsInstalled(root, m) {
		return ModelInstallPath(root, m.Name), SourceInstalled
	}
	if m.Identifier != "" {
		return m.Identifier, SourceHub
	}
	return name, SourceHub
}

func DefaultModelsRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".nerapi", "models"), nil
}

func ModelInstallPath(root string, name string) string {
	return filepath.Join(root, name)
}

func IsInstalled(root string, model ModelSpec) bool {
	return ValidateModelDir(ModelInstallPath(root, model.Name)) == nil
}
