package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"nerapi/internal/audit"
	"nerapi/internal/config"
	"nerapi/internal/stats"
)

type statsOptions struct {
	url    string
	recent bool
	export string
}

func statsCmd(a *app) *cobra.Command {
	opts := statsOptions{}
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show extraction request statistics",
		Long:  "Read /api/stats from a running server, or summarize the audit log when none answers.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.url == "" {
				opts.url = fmt.Sprintf("http://127.0.0.1:%d/api/stats", a.cfg.Port)
			}
			st, err := getStats(a.cfg, opts.url)
			if err != nil {
				return err
			}
			return renderStatsTo(cmd.OutOrStdout(), st, opts.recent, opts.export)
		},
	}
	cmd.Flags().StringVar(&opts.url, "url", "", "stats endpoint (default from the configured port)")
	cmd.Flags().BoolVar(&opts.recent, "recent", false, "show recent requests")
	cmd.Flags().StringVar(&opts.export, "export", "", "export format: json|csv")
	return cmd
}

func getStats(cfg config.Config, url string) (stats.Stats, error) {
	if st, err := fetchServerStats(url); err == nil {
		return st, nil
	}
	if cfg.AuditLog == "" {
		return stats.Stats{}, fmt.Errorf("no server answered at %s and no audit_log is configured", url)
	}
	entries, err := audit.ParseFile(cfg.AuditLog)
	if err != nil {
		return stats.Stats{}, err
	}
	return stats.CollectFromEntries(entries, stats.Options{
		Now:    time.Now().UTC(),
		Status: "stopped",
		Model:  cfg.ModelName,
		Port:   cfg.Port,
	}), nil
}

func fetchServerStats(url string) (stats.Stats, error) {
	var st stats.Stats
	resp, err := resty.New().SetTimeout(700 * time.Millisecond).R().SetResult(&st).Get(url)
	if err != nil {
		return stats.Stats{}, err
	}
	if resp.StatusCode() != http.StatusOK {
		return stats.Stats{}, fmt.Errorf("stats API status %d", resp.StatusCode())
	}
	return st, nil
}

func renderStatsTo(w io.Writer, st stats.Stats, recent bool, export string) error {
	switch strings.ToLower(export) {
	case "":
		if recent {
			printRecent(w, st)
			return nil
		}
		printSummary(w, st)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	case "csv":
		if !recent {
			return fmt.Errorf("csv export requires --recent")
		}
		return exportRecentCSV(w, st.Recent)
	default:
		return fmt.Errorf("unsupported export format %q", export)
	}
}

func printSummary(w io.Writer, st stats.Stats) {
	fmt.Fprintln(w, titleStyle.Render("nerapi Statistics"))
	fmt.Fprintln(w, strings.Repeat("-", 40))
	fmt.Fprintf(w, "Status:      %s\n", st.Status)
	fmt.Fprintf(w, "Model:       %s\n", st.Model)
	fmt.Fprintf(w, "Uptime:      %s\n", time.Duration(st.UptimeSeconds)*time.Second)
	fmt.Fprintf(w, "Port:        %d\n", st.Port)
	fmt.Fprintf(w, "Requests:    %d (%.1f/min last 5m)\n", st.Requests.Total, st.Requests.PerMinute)
	outcomes := sortedKeys(st.Requests.ByOutcome)
	for _, o := range outcomes {
		fmt.Fprintf(w, "  %-10s %d\n", o+":", st.Requests.ByOutcome[o])
	}
	fmt.Fprintf(w, "Latency:     avg %.1fms | max %.1fms\n", st.Latency.AvgMs, st.Latency.MaxMs)
	fmt.Fprintln(w)

	fmt.Fprintln(w, headerStyle.Render("Entities by label"))
	for _, l := range sortedKeys(st.Entities.ByLabel) {
		v := st.Entities.ByLabel[l]
		fmt.Fprintf(w, "%-16s %5d %s\n", l+":", v, bar(v, st.Entities.Total))
	}
	fmt.Fprintf(w, "Total:           %d\n\n", st.Entities.Total)

	fmt.Fprintln(w, headerStyle.Render("Top labels"))
	for _, l := range st.TopLabels {
		fmt.Fprintf(w, "%-24s requested %-5d extracted %d\n", l.Label, l.Requested, l.Extracted)
	}
}

func printRecent(w io.Writer, st stats.Stats) {
	fmt.Fprintf(w, "Recent Requests (last %d)\n", len(st.Recent))
	fmt.Fprintln(w, strings.Repeat("-", 90))
	fmt.Fprintf(w, "%-10s %-38s %-6s %-8s %-7s %-9s %-8s\n", "TIME", "REQUEST", "STATUS", "OUTCOME", "LABELS", "ENTITIES", "LATENCY")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, r := range st.Recent {
		tm := r.Timestamp
		if ts, err := time.Parse(time.RFC3339Nano, r.Timestamp); err == nil {
			tm = ts.Format("15:04:05")
		}
		fmt.Fprintf(w, "%-10s %-38s %-6d %-8s %-7d %-9d %.1fms\n", tm, r.RequestID, r.Status, r.Outcome, r.Labels, r.Extracted, r.LatencyMs)
	}
	fmt.Fprintln(w, strings.Repeat("-", 90))
	fmt.Fprintf(w, "Showing %d of %d total requests\n", len(st.Recent), st.Requests.Total)
}

func bar(v, total int) string {
	if total <= 0 {
		return ""
	}
	p := min(int(float64(v)/float64(total)*20), 20)
	return strings.Repeat("█", p) + strings.Repeat("░", 20-p)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func exportRecentCSV(w io.Writer, rows []stats.RecentRequest) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write([]string{"timestamp", "request_id", "status", "outcome", "labels", "extracted", "latency_ms"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			r.Timestamp,
			r.RequestID,
			fmt.Sprintf("%d", r.Status),
			r.Outcome,
			fmt.Sprintf("%d", r.Labels),
			fmt.Sprintf("%d", r.Extracted),
			fmt.Sprintf("%.3f", r.LatencyMs),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
