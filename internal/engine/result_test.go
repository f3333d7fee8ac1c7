package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRawResult(t *testing.T) {
	t.Run("Should keep engine label order and both value shapes", func(t *testing.T) {
		raw := []byte(`{"entities": {
			"ubicacion": ["Londres"],
			"persona": [{"text": "Ada Lovelace", "confidence": 0.93, "start": 0, "end": 12}, "Charles Babbage"]
		}}`)

		res, err := ParseRawResult(raw)
		require.NoError(t, err)
		require.Len(t, res.Labels, 2)
		assert.Equal(t, "ubicacion", res.Labels[0].Label)
		assert.Equal(t, "persona", res.Labels[1].Label)
		assert.Equal(t, 3, res.Len())

		assert.Equal(t, Bare{Text: "Londres"}, res.Labels[0].Occurrences[0])
		s, ok := res.Labels[1].Occurrences[0].(Structured)
		require.True(t, ok)
		assert.Equal(t, "Ada Lovelace", *s.Text)
		assert.InDelta(t, 0.93, *s.Confidence, 1e-9)
		assert.Equal(t, 0, *s.Start)
		assert.Equal(t, 12, *s.End)
		assert.Equal(t, Bare{Text: "Charles Babbage"}, res.Labels[1].Occurrences[1])
	})

	t.Run("Should leave absent record fields nil", func(t *testing.T) {
		res, err := ParseRawResult([]byte(`{"entities": {"persona": [{"text": "Ada"}, {}]}}`))
		require.NoError(t, err)
		first := res.Labels[0].Occurrences[0].(Structured)
		assert.Nil(t, first.Confidence)
		assert.Nil(t, first.Start)
		assert.Nil(t, first.End)
		second := res.Labels[0].Occurrences[1].(Structured)
		assert.Nil(t, second.Text)
	})

	t.Run("Should render non-string scalars as literals", func(t *testing.T) {
		res, err := ParseRawResult([]byte(`{"entities": {"numero": [42, 1.5, true, null]}}`))
		require.NoError(t, err)
		assert.Equal(t, []Occurrence{Bare{"42"}, Bare{"1.5"}, Bare{"true"}, Bare{""}}, res.Labels[0].Occurrences)
	})

	t.Run("Should treat a missing entities key as empty", func(t *testing.T) {
		res, err := ParseRawResult([]byte(`{"other": 1}`))
		require.NoError(t, err)
		assert.Empty(t, res.Labels)
	})

	t.Run("Should reject non-list label values", func(t *testing.T) {
		_, err := ParseRawResult([]byte(`{"entities": {"persona": "Ada"}}`))
		assert.ErrorContains(t, err, `label "persona"`)
	})

	t.Run("Should reject invalid json", func(t *testing.T) {
		_, err := ParseRawResult([]byte(`{"entities":`))
		assert.Error(t, err)
	})
}

func TestRawResult_UnmarshalJSON(t *testing.T) {
	var res RawResult
	require.NoError(t, res.UnmarshalJSON([]byte(`{"entities": {"empresa": ["Acme"]}}`)))
	assert.Equal(t, 1, res.Len())
}
