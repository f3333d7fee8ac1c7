// Package eval scores extraction against a labeled JSONL dataset with
// set-based, micro-averaged precision, recall and F1.
package eval

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"nerapi/internal/engine"
	"nerapi/internal/extract"
	"nerapi/internal/logger"
)

const maxLineBytes = 16 * 1024 * 1024

// Extractor runs one schema against one text.
type Extractor interface {
	ExtractSchema(ctx context.Context, text string, schema engine.Schema, opts extract.Options) ([]extract.Entity, error)
}

type engineExtractor struct {
	eng engine.Engine
}

// FromEngine evaluates an engine directly through the adapter and normalizer.
func FromEngine(eng engine.Engine) Extractor {
	return engineExtractor{eng: eng}
}

func (e engineExtractor) ExtractSchema(ctx context.Context, text string, schema engine.Schema, opts extract.Options) ([]extract.Entity, error) {
	raw, err := extract.ExtractRaw(ctx, e.eng, text, schema, opts)
	if err != nil {
		return nil, err
	}
	return extract.Normalize(raw), nil
}

type Options struct {
	Threshold float64
	// Limit caps the number of non-blank lines read. Zero means no cap.
	Limit int
	// Template overrides DefaultDefinitionTemplate.
	Template string
	// OnSample, when set, is called after each processed record.
	OnSample func(SampleResult)
}

type SampleResult struct {
	Line   int    `json:"line"`
	Counts Counts `json:"counts"`
}

type Report struct {
	Scores
	Counts
	Processed int           `json:"processed"`
	Skipped   int           `json:"skipped"`
	Elapsed   time.Duration `json:"elapsed"`
}

func Evaluate(ctx context.Context, ex Extractor, path string, opts Options) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return EvaluateReader(ctx, ex, f, opts)
}

// EvaluateReader reads newline-delimited records from r. A malformed line
// or an extraction error stops the run.
func EvaluateReader(ctx context.Context, ex Extractor, r io.Reader, opts Options) (Report, error) {
	log := logger.FromContext(ctx)
	start := time.Now()
	var (
		rep      Report
		total    Counts
		lineNo   int
		nonBlank int
	)

	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for s.Scan() {
		lineNo++
		line := bytes.TrimSpace(s.Bytes())
		if len(line) == 0 {
			continue
		}
		nonBlank++
		if opts.Limit > 0 && nonBlank > opts.Limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}

		sample, ok, err := ParseSample(line, opts.Template)
		if err != nil {
			return Report{}, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if !ok {
			rep.Skipped++
			log.Debug("Skipping record", "line", lineNo)
			continue
		}

		entities, err := ex.ExtractSchema(ctx, sample.Text, sample.Schema, extract.Options{Threshold: opts.Threshold})
		if err != nil {
			return Report{}, err
		}
		predicted := Set{}
		for _, e := range entities {
			predicted.Add(e.Label, e.Text)
		}

		c := Compare(sample.Expected, predicted)
		total.Add(c)
		rep.Processed++
		if opts.OnSample != nil {
			opts.OnSample(SampleResult{Line: lineNo, Counts: c})
		}
	}
	if err := s.Err(); err != nil {
		return Report{}, fmt.Errorf("%w: scan dataset: %v", ErrDatasetFormat, err)
	}

	rep.Counts = total
	rep.Scores = total.Scores()
	rep.Elapsed = time.Since(start)
	log.Info("Evaluation finished", "processed", rep.Processed, "skipped", rep.Skipped,
		"precision", rep.Precision, "recall", rep.Recall, "f1", rep.F1)
	return rep, nil
}
