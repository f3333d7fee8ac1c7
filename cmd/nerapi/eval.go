package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"nerapi/internal/eval"
	"nerapi/internal/extract"
)

type evalOptions struct {
	model     string
	testFile  string
	threshold float64
	limit     int
	jsonOut   bool
	verbose   bool
}

func evalCmd(a *app) *cobra.Command {
	opts := evalOptions{}
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Score the model against a labeled JSONL dataset",
		Long:  "Compute micro-averaged precision, recall and F1 over (label, text) pairs.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.model == "" {
				opts.model = a.cfg.ModelName
			}
			if opts.limit < 0 {
				return fmt.Errorf("limit must not be negative")
			}
			if opts.threshold < 0 || opts.threshold > 1 {
				return fmt.Errorf("threshold must be between 0 and 1")
			}
			ctx := cmd.Context()
			handle := newHandle(a.cfg, opts.model, a.log)
			defer handle.Close()
			svc, err := extract.NewService(handle)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			eo := eval.Options{Threshold: opts.threshold, Limit: opts.limit}
			if opts.verbose {
				eo.OnSample = func(r eval.SampleResult) {
					fmt.Fprintf(out, "line %d: tp=%d fp=%d fn=%d\n", r.Line, r.Counts.TP, r.Counts.FP, r.Counts.FN)
				}
			}
			rep, err := eval.Evaluate(ctx, svc, opts.testFile, eo)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return writeReportJSON(out, rep)
			}
			printReport(out, rep)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.model, "model", "", "model name, hub identifier or local directory (default from configuration)")
	cmd.Flags().StringVar(&opts.testFile, "test-file", "", "JSONL test dataset")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", extract.DefaultThreshold, "confidence threshold [0,1]")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "maximum non-blank lines to read (0 = all)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "print the report as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "print counts for every sample")
	_ = cmd.MarkFlagRequired("test-file")
	return cmd
}

func printReport(w io.Writer, rep eval.Report) {
	fmt.Fprintln(w, titleStyle.Render("=== Test results ==="))
	fmt.Fprintf(w, "Samples processed: %d (skipped %d)\n", rep.Processed, rep.Skipped)
	fmt.Fprintf(w, "TP: %d | FP: %d | FN: %d\n", rep.TP, rep.FP, rep.FN)
	fmt.Fprintf(w, "Precision: %.4f\n", rep.Precision)
	fmt.Fprintf(w, "Recall: %.4f\n", rep.Recall)
	fmt.Fprintf(w, "F1: %.4f\n", rep.F1)
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("Elapsed: %s", rep.Elapsed.Round(time.Millisecond))))
}

func writeReportJSON(w io.Writer, rep eval.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
