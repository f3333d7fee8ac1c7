package engine

import (
	"bytes"
	"encoding/json"
)

type SchemaEntry struct {
	Name       string
	Definition string
}

// Schema maps entity-type names to definitions. Keys keep the position they
// were first set at; setting an existing key replaces its definition.
type Schema struct {
	entries []SchemaEntry
	index   map[string]int
}

func (s *Schema) Set(name, definition string) {
	if s.index == nil {
		s.index = map[string]int{}
	}
	if i, ok := s.index[name]; ok {
		s.entries[i].Definition = definition
		return
	}
	s.index[name] = len(s.entries)
	s.entries = append(s.entries, SchemaEntry{Name: name, Definition: definition})
}

func (s Schema) Definition(name string) (string, bool) {
	i, ok := s.index[name]
	if !ok {
		return "", false
	}
	return s.entries[i].Definition, true
}

func (s Schema) Len() int {
	return len(s.entries)
}

func (s Schema) Names() []string {
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.Name
	}
	return names
}

func (s Schema) Entries() []SchemaEntry {
	out := make([]SchemaEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// MarshalJSON writes the schema as an object in display order.
func (s Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Definition)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
