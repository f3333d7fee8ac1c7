package eval

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"nerapi/internal/engine"
)

// ErrDatasetFormat marks a dataset line that cannot be read.
var ErrDatasetFormat = errors.New("malformed dataset record")

// DefaultDefinitionTemplate describes a label when a record carries no
// entity_descriptions.
const DefaultDefinitionTemplate = "Entidad de tipo %s"

// Sample is one dataset record ready for evaluation.
type Sample struct {
	Text     string
	Expected Set
	Schema   engine.Schema
}

// ParseSample reads one JSON record. ok is false when the record has no text
// or nothing to ask the engine for.
func ParseSample(line []byte, template string) (s Sample, ok bool, err error) {
	if !gjson.ValidBytes(line) {
		return Sample{}, false, fmt.Errorf("%w: invalid json", ErrDatasetFormat)
	}
	rec := gjson.ParseBytes(line)
	if !rec.IsObject() {
		return Sample{}, false, fmt.Errorf("%w: record is not an object", ErrDatasetFormat)
	}

	s.Text = parseText(rec.Get("input"))
	if s.Text == "" {
		return Sample{}, false, nil
	}
	expected, labels, err := parseExpected(rec.Get("output.entities"))
	if err != nil {
		return Sample{}, false, err
	}
	s.Expected = expected
	s.Schema = parseSchema(rec.Get("entity_descriptions"), labels, template)
	if s.Schema.Len() == 0 {
		return Sample{}, false, nil
	}
	return s, true, nil
}

func parseText(input gjson.Result) string {
	switch {
	case input.Type == gjson.String:
		return input.Str
	case input.IsObject():
		t := input.Get("text")
		if t.Type == gjson.Null {
			return ""
		}
		return t.String()
	default:
		return ""
	}
}

// parseExpected accepts a label -> values object or a list of
// {label, text} objects. labels lists the distinct raw labels in order.
func parseExpected(entities gjson.Result) (Set, []string, error) {
	set := Set{}
	var labels []string
	seen := map[string]bool{}
	addLabel := func(l string) {
		if strings.TrimSpace(l) == "" || seen[l] {
			return
		}
		seen[l] = true
		labels = append(labels, l)
	}

	switch {
	case entities.IsObject():
		raw, err := engine.ParseEntityMap(entities)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrDatasetFormat, err)
		}
		for _, g := range raw.Labels {
			addLabel(g.Label)
			for _, occ := range g.Occurrences {
				set.Add(g.Label, occurrenceText(occ))
			}
		}
	case entities.IsArray():
		for _, item := range entities.Array() {
			if !item.IsObject() {
				continue
			}
			label := item.Get("label").String()
			set.Add(label, item.Get("text").String())
			addLabel(label)
		}
	}
	return set, labels, nil
}

func occurrenceText(occ engine.Occurrence) string {
	switch o := occ.(type) {
	case engine.Structured:
		if o.Text != nil {
			return *o.Text
		}
	case engine.Bare:
		return o.Text
	}
	return ""
}

func parseSchema(descriptions gjson.Result, labels []string, template string) engine.Schema {
	var s engine.Schema
	if descriptions.IsObject() {
		descriptions.ForEach(func(k, v gjson.Result) bool {
			s.Set(k.String(), v.String())
			return true
		})
		if s.Len() > 0 {
			return s
		}
	}
	if template == "" {
		template = DefaultDefinitionTemplate
	}
	for _, l := range labels {
		s.Set(l, fmt.Sprintf(template, l))
	}
	return s
}
