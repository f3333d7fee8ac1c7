package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"nerapi/internal/engine"
	"nerapi/internal/extract"
)

const defaultSchemaFile = "data/entity_descriptions.json"

// Alternative names that datasets in the wild ship the schema under.
var schemaFallbacks = []string{
	"entity_Descripttion.json",
	"entity_descriptions.json",
	"data/entity_Descripttion.json",
}

var quitWords = map[string]bool{"salir": true, "exit": true, "quit": true}

type inferOptions struct {
	model        string
	schemaFile   string
	threshold    float64
	noConfidence bool
	noSpans      bool
}

func inferCmd(a *app) *cobra.Command {
	opts := inferOptions{}
	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Interactive extraction prompt",
		Long:  "Load the model and extract entities from each line typed. Type salir, exit or quit to leave.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.model == "" {
				opts.model = a.cfg.ModelName
			}
			if opts.threshold < 0 || opts.threshold > 1 {
				return fmt.Errorf("threshold must be between 0 and 1")
			}
			schema, path, err := loadSchemaFile(opts.schemaFile)
			if err != nil {
				return err
			}
			a.log.Debug("Loaded schema", "path", path, "labels", schema.Len())
			return runInfer(cmd.Context(), a, opts, schema, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.model, "model", "", "model name, hub identifier or local directory (default from configuration)")
	cmd.Flags().StringVar(&opts.schemaFile, "schema-file", defaultSchemaFile, "JSON object mapping entity names to definitions")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", extract.DefaultThreshold, "confidence threshold [0,1]")
	cmd.Flags().BoolVar(&opts.noConfidence, "no-confidence", false, "do not request scores")
	cmd.Flags().BoolVar(&opts.noSpans, "no-spans", false, "do not request start/end offsets")
	return cmd
}

// loadSchemaFile reads a name -> definition object, trying the known
// alternative file names when path does not exist. Keys and values are
// trimmed and blank pairs dropped; the result must not be empty.
func loadSchemaFile(path string) (engine.Schema, string, error) {
	found := path
	if _, err := os.Stat(found); err != nil {
		found = ""
		for _, c := range schemaFallbacks {
			if _, err := os.Stat(c); err == nil {
				found = c
				break
			}
		}
	}
	if found == "" {
		return engine.Schema{}, "", fmt.Errorf("entity schema file not found: %s (try --schema-file %s)", path, defaultSchemaFile)
	}

	data, err := os.ReadFile(found)
	if err != nil {
		return engine.Schema{}, "", err
	}
	doc := gjson.ParseBytes(data)
	if !gjson.ValidBytes(data) || !doc.IsObject() {
		return engine.Schema{}, "", fmt.Errorf("%w: %s must be a JSON object of {\"entity\": \"definition\"}", extract.ErrInvalidSchema, found)
	}
	var schema engine.Schema
	doc.ForEach(func(k, v gjson.Result) bool {
		name := strings.TrimSpace(k.String())
		def := strings.TrimSpace(v.String())
		if name != "" && def != "" {
			schema.Set(name, def)
		}
		return true
	})
	if schema.Len() == 0 {
		return engine.Schema{}, "", fmt.Errorf("%w: %s has no valid entities", extract.ErrInvalidSchema, found)
	}
	return schema, found, nil
}

func runInfer(ctx context.Context, a *app, opts inferOptions, schema engine.Schema, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, mutedStyle.Render("Loading model..."))
	handle := newHandle(a.cfg, opts.model, a.log)
	defer handle.Close()
	svc, err := extract.NewService(handle)
	if err != nil {
		return err
	}
	if _, err := handle.Acquire(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s\n", titleStyle.Render("Model:"), opts.model)
	fmt.Fprintf(out, "%s %s\n", titleStyle.Render("Entities:"), strings.Join(schema.Names(), ", "))
	fmt.Fprintln(out, "Type a text and press Enter. Type 'salir' to finish.")
	fmt.Fprintln(out)

	eo := extract.Options{
		Threshold:         opts.threshold,
		IncludeConfidence: !opts.noConfidence,
		IncludeSpans:      !opts.noSpans,
	}
	return replLoop(ctx, in, out, func(text string) ([]extract.Entity, error) {
		return svc.ExtractSchema(ctx, text, schema, eo)
	})
}

func replLoop(ctx context.Context, in io.Reader, out io.Writer, run func(string) ([]extract.Entity, error)) error {
	s := bufio.NewScanner(in)
	s.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for {
		fmt.Fprint(out, "Text> ")
		if !s.Scan() {
			fmt.Fprintln(out, "\nBye.")
			return s.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		text := strings.TrimSpace(s.Text())
		if text == "" {
			continue
		}
		if quitWords[strings.ToLower(text)] {
			fmt.Fprintln(out, "Bye.")
			return nil
		}

		start := time.Now()
		entities, err := run(text)
		elapsed := time.Since(start)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintln(out, renderError(err))
			continue
		}
		printEntities(out, entities)
		fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("Inference time: %.3fs", elapsed.Seconds())))
		fmt.Fprintln(out)
	}
}

func printEntities(w io.Writer, entities []extract.Entity) {
	if len(entities) == 0 {
		fmt.Fprintln(w, "- (no entities found)")
		return
	}
	for _, e := range entities {
		fmt.Fprintln(w, formatEntity(e))
	}
}

func formatEntity(e extract.Entity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- %s: '%s'", labelStyle.Render(e.Label), e.Text)
	if e.Score != nil {
		fmt.Fprintf(&b, " | score=%.4f", *e.Score)
	}
	if e.Start != nil && e.End != nil {
		fmt.Fprintf(&b, " | span=(%d,%d)", *e.Start, *e.End)
	}
	return b.String()
}
