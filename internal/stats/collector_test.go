package stats

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nerapi/internal/audit"
)

func TestCollectFromEntries(t *testing.T) {
	t.Run("Should report zeros without entries", func(t *testing.T) {
		st := CollectFromEntries(nil, Options{Now: time.Now(), Port: 8000})
		assert.Equal(t, "stopped", st.Status)
		assert.Zero(t, st.Requests.Total)
		assert.Zero(t, st.Entities.Total)
		assert.Empty(t, st.TopLabels)
		assert.Equal(t, []int{0, 0, 0, 0, 0}, st.Requests.Last5Minute)
	})

	t.Run("Should summarize labels, outcomes and latency", func(t *testing.T) {
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		entries := []audit.Entry{
			{
				Timestamp: now.Add(-30 * time.Second).Format(time.RFC3339Nano),
				RequestID: "r1", Status: 200, Outcome: "ok",
				Labels:    []string{"persona", "ubicacion"},
				Extracted: map[string]int{"persona": 2, "ubicacion": 1},
				LatencyMs: 40,
			},
			{
				Timestamp: now.Add(-3 * time.Minute).Format(time.RFC3339Nano),
				RequestID: "r2", Status: 200, Outcome: "ok",
				Labels:    []string{"persona", "empresa"},
				Extracted: map[string]int{"persona": 1},
				LatencyMs: 80,
			},
			{
				Timestamp: now.Add(-10 * time.Minute).Format(time.RFC3339Nano),
				RequestID: "r3", Status: 422, Outcome: "invalid",
			},
		}
		st := CollectFromEntries(entries, Options{Now: now, Status: "running", Model: "m", Port: 8000})

		assert.Equal(t, 3, st.Requests.Total)
		assert.Equal(t, map[string]int{"ok": 2, "invalid": 1}, st.Requests.ByOutcome)
		assert.Equal(t, []int{0, 1, 0, 0, 1}, st.Requests.Last5Minute)
		assert.InDelta(t, 0.4, st.Requests.PerMinute, 1e-9)
		assert.Equal(t, 4, st.Entities.Total)
		assert.Equal(t, 3, st.Entities.ByLabel["persona"])
		assert.InDelta(t, 60.0, st.Latency.AvgMs, 1e-9)
		assert.InDelta(t, 80.0, st.Latency.MaxMs, 1e-9)

		require.Len(t, st.TopLabels, 3)
		assert.Equal(t, LabelStats{Label: "persona", Requested: 2, Extracted: 3}, st.TopLabels[0])
		assert.Equal(t, LabelStats{Label: "ubicacion", Requested: 1, Extracted: 1}, st.TopLabels[1])
		assert.Equal(t, LabelStats{Label: "empresa", Requested: 1}, st.TopLabels[2])

		require.Len(t, st.Recent, 3)
		assert.Equal(t, "r3", st.Recent[0].RequestID)
		assert.Equal(t, 3, st.Recent[2].Extracted)
	})

	t.Run("Should cap top labels and recent requests", func(t *testing.T) {
		now := time.Now().UTC()
		entries := make([]audit.Entry, 0, 1200)
		for i := range 1200 {
			l := fmt.Sprintf("label-%d", i%7)
			entries = append(entries, audit.Entry{
				Timestamp: now.Add(-time.Duration(i%8) * time.Minute).Format(time.RFC3339Nano),
				Status:    200,
				Outcome:   "ok",
				Labels:    []string{l},
				Extracted: map[string]int{l: 1},
				LatencyMs: 100,
			})
		}
		st := CollectFromEntries(entries, Options{Now: now, Status: "running"})
		assert.Equal(t, 1200, st.Requests.Total)
		assert.Equal(t, 1200, st.Entities.Total)
		assert.Len(t, st.TopLabels, 5)
		assert.Len(t, st.Recent, 20)
	})
}
