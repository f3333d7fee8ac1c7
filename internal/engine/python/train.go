package python

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// TrainConfig mirrors the engine trainer's options.
type TrainConfig struct {
	TrainFile                 string  `json:"train_file"`
	ValFile                   string  `json:"val_file,omitempty"`
	BaseModel                 string  `json:"base_model"`
	OutputDir                 string  `json:"output_dir"`
	NumEpochs                 int     `json:"num_epochs"`
	BatchSize                 int     `json:"batch_size"`
	LearningRate              float64 `json:"learning_rate"`
	WarmupRatio               float64 `json:"warmup_ratio"`
	MaxLength                 int     `json:"max_length"`
	GradientAccumulationSteps int     `json:"gradient_accumulation_steps"`
	EvalSteps                 int     `json:"eval_steps"`
	SaveSteps                 int     `json:"save_steps"`
	Seed                      int     `json:"seed"`
}

func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		BaseModel:                 "fastino/gliner2-multi-v1",
		OutputDir:                 "./models/gliner2-finetuned",
		NumEpochs:                 3,
		BatchSize:                 8,
		LearningRate:              2e-5,
		WarmupRatio:               0.1,
		MaxLength:                 384,
		GradientAccumulationSteps: 1,
		EvalSteps:                 50,
		SaveSteps:                 50,
		Seed:                      42,
	}
}

// Validate checks that the dataset files exist.
func (c TrainConfig) Validate() error {
	if err := ensureFile(c.TrainFile, "train"); err != nil {
		return err
	}
	if c.ValFile != "" {
		if err := ensureFile(c.ValFile, "validation"); err != nil {
			return err
		}
	}
	if c.BaseModel == "" || c.OutputDir == "" {
		return fmt.Errorf("base model and output dir are required")
	}
	return nil
}

func ensureFile(path, kind string) error {
	if path == "" {
		return fmt.Errorf("%s file is required", kind)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s file: %w", kind, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s file %s is not a regular file", kind, path)
	}
	return nil
}

// Train runs one training job in a fresh bridge process. Trainer progress
// is copied to progress when non-nil.
func Train(ctx context.Context, cfg Config, tc TrainConfig, progress io.Writer) error {
	if err := tc.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(tc)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, cfg.interpreter(), "-u", "-c", bridgeScript, "train")
	cmd.Stdin = bytes.NewReader(payload)
	var stdout bytes.Buffer
	stderr := newTailBuffer(stderrTail)
	cmd.Stdout = &stdout
	if progress != nil {
		cmd.Stderr = io.MultiWriter(progress, stderr)
	} else {
		cmd.Stderr = stderr
	}
	if err := cmd.Run(); err != nil {
		if tail := stderr.String(); tail != "" {
			return fmt.Errorf("python training failed: %v: %s", err, tail)
		}
		return fmt.Errorf("python training failed: %w", err)
	}

	var resp response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return fmt.Errorf("parse python training output: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("python training error: %s", resp.Error)
	}
	return nil
}
