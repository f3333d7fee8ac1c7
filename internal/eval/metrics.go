package eval

import "strings"

// Key is a canonical (label, text) pair: both lower-cased and trimmed.
type Key struct {
	Label string
	Text  string
}

// NewKey canonicalizes label and text. ok is false when either is empty
// after canonicalization.
func NewKey(label, text string) (Key, bool) {
	k := Key{Label: canonical(label), Text: canonical(text)}
	return k, k.Label != "" && k.Text != ""
}

func canonical(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Set holds entity occurrences; repeated occurrences collapse.
type Set map[Key]struct{}

func (s Set) Add(label, text string) {
	if k, ok := NewKey(label, text); ok {
		s[k] = struct{}{}
	}
}

// Counts are confusion counts summed over samples.
type Counts struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	FN int `json:"fn"`
}

// Compare counts predicted ∩ expected as true positives, predicted − expected
// as false positives and expected − predicted as false negatives.
func Compare(expected, predicted Set) Counts {
	var c Counts
	for k := range predicted {
		if _, ok := expected[k]; ok {
			c.TP++
		} else {
			c.FP++
		}
	}
	for k := range expected {
		if _, ok := predicted[k]; !ok {
			c.FN++
		}
	}
	return c
}

func (c *Counts) Add(o Counts) {
	c.TP += o.TP
	c.FP += o.FP
	c.FN += o.FN
}

type Scores struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Scores computes micro-averaged precision, recall and F1. Each ratio is 0
// when its denominator is 0.
func (c Counts) Scores() Scores {
	var s Scores
	if d := c.TP + c.FP; d > 0 {
		s.Precision = float64(c.TP) / float64(d)
	}
	if d := c.TP + c.FN; d > 0 {
		s.Recall = float64(c.TP) / float64(d)
	}
	if d := s.Precision + s.Recall; d > 0 {
		s.F1 = 2 * s.Precision * s.Recall / d
	}
	return s
}
