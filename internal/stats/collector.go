package stats

import (
	"sort"
	"strings"
	"time"

	"nerapi/internal/audit"
)

type Stats struct {
	Status        string          `json:"status"`
	Model         string          `json:"model"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Port          int             `json:"port"`
	Requests      RequestStats    `json:"requests"`
	Entities      EntityStats     `json:"entities"`
	Latency       LatencyStats    `json:"latency"`
	TopLabels     []LabelStats    `json:"top_labels"`
	Recent        []RecentRequest `json:"recent,omitempty"`
}

type RequestStats struct {
	Total       int            `json:"total"`
	PerMinute   float64        `json:"per_minute"`
	Last5Minute []int          `json:"last_5_minute"`
	ByOutcome   map[string]int `json:"by_outcome"`
}

type EntityStats struct {
	Total   int            `json:"total"`
	ByLabel map[string]int `json:"by_label"`
}

type LatencyStats struct {
	AvgMs float64 `json:"avg_ms"`
	MaxMs float64 `json:"max_ms"`
}

// LabelStats counts how often a label was asked for and how many entities
// it produced.
type LabelStats struct {
	Label     string `json:"label"`
	Requested int    `json:"requested"`
	Extracted int    `json:"extracted"`
}

type RecentRequest struct {
	Timestamp string  `json:"timestamp"`
	RequestID string  `json:"request_id"`
	Status    int     `json:"status"`
	Outcome   string  `json:"outcome"`
	Labels    int     `json:"labels"`
	Extracted int     `json:"extracted"`
	LatencyMs float64 `json:"latency_ms"`
}

type Options struct {
	Now     time.Time
	Status  string
	Model   string
	Uptime  time.Duration
	Port    int
	TopN    int
	RecentN int
}

func CollectFromEntries(entries []audit.Entry, opts Options) Stats {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	topN := opts.TopN
	if topN <= 0 {
		topN = 5
	}
	recentN := opts.RecentN
	if recentN <= 0 {
		recentN = 20
	}

	out := Stats{
		Status:        opts.Status,
		Model:         opts.Model,
		UptimeSeconds: int64(opts.Uptime.Seconds()),
		Port:          opts.Port,
		Requests:      RequestStats{Last5Minute: make([]int, 5), ByOutcome: map[string]int{}},
		Entities:      EntityStats{ByLabel: map[string]int{}},
		TopLabels:     []LabelStats{},
	}
	if out.Status == "" {
		out.Status = "stopped"
	}

	labels := map[string]*LabelStats{}
	label := func(name string) *LabelStats {
		ls, ok := labels[name]
		if !ok {
			ls = &LabelStats{Label: name}
			labels[name] = ls
		}
		return ls
	}
	var latencySum float64
	var latencyCount int
	recent := make([]RecentRequest, 0, len(entries))

	for _, e := range entries {
		out.Requests.Total++
		if e.Outcome != "" {
			out.Requests.ByOutcome[e.Outcome]++
		}

		for _, l := range e.Labels {
			if l = strings.TrimSpace(l); l != "" {
				label(l).Requested++
			}
		}
		for l, n := range e.Extracted {
			l = strings.TrimSpace(l)
			if l == "" || n <= 0 {
				continue
			}
			label(l).Extracted += n
			out.Entities.ByLabel[l] += n
			out.Entities.Total += n
		}

		if e.Timestamp != "" {
			if ts, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil {
				delta := now.Sub(ts)
				if delta >= 0 && delta < 5*time.Minute {
					idx := int(delta / time.Minute)
					out.Requests.Last5Minute[4-idx]++
				}
			}
		}

		if e.LatencyMs > 0 {
			latencySum += e.LatencyMs
			latencyCount++
			out.Latency.MaxMs = max(out.Latency.MaxMs, e.LatencyMs)
		}

		recent = append(recent, RecentRequest{
			Timestamp: e.Timestamp,
			RequestID: e.RequestID,
			Status:    e.Status,
			Outcome:   e.Outcome,
			Labels:    len(e.Labels),
			Extracted: e.ExtractedTotal(),
			LatencyMs: e.LatencyMs,
		})
	}

	sum5 := 0
	for _, n := range out.Requests.Last5Minute {
		sum5 += n
	}
	out.Requests.PerMinute = float64(sum5) / 5

	if latencyCount > 0 {
		out.Latency.AvgMs = latencySum / float64(latencyCount)
	}

	for _, ls := range labels {
		out.TopLabels = append(out.TopLabels, *ls)
	}
	sort.Slice(out.TopLabels, func(i, j int) bool {
		a, b := out.TopLabels[i], out.TopLabels[j]
		if a.Extracted != b.Extracted {
			return a.Extracted > b.Extracted
		}
		if a.Requested != b.Requested {
			return a.Requested > b.Requested
		}
		return a.Label < b.Label
	})
	if len(out.TopLabels) > topN {
		out.TopLabels = out.TopLabels[:topN]
	}

	for i := len(recent) - 1; i >= 0 && len(out.Recent) < recentN; i-- {
		out.Recent = append(out.Recent, recent[i])
	}
	return out
}
