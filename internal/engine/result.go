package engine

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Occurrence is one value under a label in an engine result: either a
// Structured record or a Bare scalar.
type Occurrence interface {
	occurrence()
}

// Structured is a record value. Absent fields are nil.
type Structured struct {
	Text       *string
	Confidence *float64
	Start      *int
	End        *int
}

// Bare is a scalar value taken as the entity text.
type Bare struct {
	Text string
}

func (Structured) occurrence() {}
func (Bare) occurrence()       {}

type LabelGroup struct {
	Label       string
	Occurrences []Occurrence
}

// RawResult is the engine-native `{"entities": {label: [...]}}` shape with
// label order preserved.
type RawResult struct {
	Labels []LabelGroup
}

// Len counts occurrences across all labels.
func (r RawResult) Len() int {
	n := 0
	for _, g := range r.Labels {
		n += len(g.Occurrences)
	}
	return n
}

func (r *RawResult) UnmarshalJSON(data []byte) error {
	parsed, err := ParseRawResult(data)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRawResult decodes an engine response. A missing or non-object
// "entities" key yields an empty result.
func ParseRawResult(data []byte) (RawResult, error) {
	if !gjson.ValidBytes(data) {
		return RawResult{}, fmt.Errorf("parse engine result: invalid json")
	}
	return ParseEntityMap(gjson.GetBytes(data, "entities"))
}

// ParseEntityMap reads a label -> values object. Every value array element
// becomes exactly one occurrence.
func ParseEntityMap(entities gjson.Result) (RawResult, error) {
	var out RawResult
	if !entities.IsObject() {
		return out, nil
	}
	var err error
	entities.ForEach(func(key, values gjson.Result) bool {
		if !values.IsArray() {
			err = fmt.Errorf("parse engine result: values for label %q are not a list", key.String())
			return false
		}
		group := LabelGroup{Label: key.String()}
		for _, v := range values.Array() {
			group.Occurrences = append(group.Occurrences, parseOccurrence(v))
		}
		out.Labels = append(out.Labels, group)
		return true
	})
	if err != nil {
		return RawResult{}, err
	}
	return out, nil
}

func parseOccurrence(v gjson.Result) Occurrence {
	if !v.IsObject() {
		return Bare{Text: scalarText(v)}
	}
	var s Structured
	if t := v.Get("text"); t.Exists() && t.Type != gjson.Null {
		text := scalarText(t)
		s.Text = &text
	}
	if c := v.Get("confidence"); c.Type == gjson.Number {
		f := c.Float()
		s.Confidence = &f
	}
	if st := v.Get("start"); st.Type == gjson.Number {
		i := int(st.Int())
		s.Start = &i
	}
	if en := v.Get("end"); en.Type == gjson.Number {
		i := int(en.Int())
		s.End = &i
	}
	return s
}

// scalarText renders strings unquoted and other scalars as their JSON
// literal. null renders as the empty string.
func scalarText(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Null:
		return ""
	default:
		return v.Raw
	}
}
