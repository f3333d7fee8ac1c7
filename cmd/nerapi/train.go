package main

import (
	"github.com/spf13/cobra"

	"nerapi/internal/config"
	"nerapi/internal/engine/python"
)

func trainCmd(a *app) *cobra.Command {
	tc := python.DefaultTrainConfig()
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fine-tune a model on JSONL data",
		Long:  "Run the engine trainer in a Python bridge process. The resulting directory can be served with --model or APP_MODEL_NAME.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := tc.Validate(); err != nil {
				return err
			}
			if a.cfg.Engine.Backend == config.BackendRemote {
				a.log.Warn("Training always runs locally through the Python bridge")
			}
			a.log.Info("Starting training", "base_model", tc.BaseModel, "output_dir", tc.OutputDir, "epochs", tc.NumEpochs)
			if err := python.Train(cmd.Context(), python.Config{Python: a.cfg.Engine.Python}, tc, cmd.ErrOrStderr()); err != nil {
				return err
			}
			a.log.Info("Training finished", "output_dir", tc.OutputDir)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&tc.TrainFile, "train-file", "", "training dataset (JSONL)")
	f.StringVar(&tc.ValFile, "val-file", "", "validation dataset (JSONL)")
	f.StringVar(&tc.BaseModel, "base-model", tc.BaseModel, "base model to fine-tune")
	f.StringVar(&tc.OutputDir, "output-dir", tc.OutputDir, "output directory")
	f.IntVar(&tc.NumEpochs, "num-epochs", tc.NumEpochs, "training epochs")
	f.IntVar(&tc.BatchSize, "batch-size", tc.BatchSize, "batch size")
	f.Float64Var(&tc.LearningRate, "learning-rate", tc.LearningRate, "learning rate")
	f.Float64Var(&tc.WarmupRatio, "warmup-ratio", tc.WarmupRatio, "warmup ratio")
	f.IntVar(&tc.MaxLength, "max-length", tc.MaxLength, "maximum sequence length")
	f.IntVar(&tc.GradientAccumulationSteps, "gradient-accumulation-steps", tc.GradientAccumulationSteps, "gradient accumulation steps")
	f.IntVar(&tc.EvalSteps, "eval-steps", tc.EvalSteps, "evaluate every N steps")
	f.IntVar(&tc.SaveSteps, "save-steps", tc.SaveSteps, "save every N steps")
	f.IntVar(&tc.Seed, "seed", tc.Seed, "random seed")
	_ = cmd.MarkFlagRequired("train-file")
	return cmd
}
