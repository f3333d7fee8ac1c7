package extract

import "nerapi/internal/engine"

// Normalize flattens a raw result: labels in engine order, then values in
// engine order within each label.
func Normalize(raw engine.RawResult) []Entity {
	out := make([]Entity, 0, raw.Len())
	for _, g := range raw.Labels {
		for _, occ := range g.Occurrences {
			out = append(out, normalizeOccurrence(g.Label, occ))
		}
	}
	return out
}

func normalizeOccurrence(label string, occ engine.Occurrence) Entity {
	switch o := occ.(type) {
	case engine.Structured:
		e := Entity{
			Label: label,
			Score: o.Confidence,
			Start: o.Start,
			End:   o.End,
		}
		if o.Text != nil {
			e.Text = *o.Text
		}
		return e
	case engine.Bare:
		return Entity{Text: o.Text, Label: label}
	default:
		panic("extract: unknown occurrence type")
	}
}
