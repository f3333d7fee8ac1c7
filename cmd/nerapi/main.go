package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"nerapi/internal/config"
	"nerapi/internal/logger"
)

var version = "dev"

// app carries what every subcommand needs after the root pre-run.
type app struct {
	configFile string
	envFile    string
	logLevel   string
	logJSON    bool

	cfg config.Config
	log logger.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, renderError(err))
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "nerapi",
		Short:         "Schema-driven named entity extraction",
		Long:          "Serve, query, evaluate and fine-tune a GLiNER2-style entity extraction model.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "JSON config file (default $APP_CONFIG_FILE or "+config.DefaultConfigFile+")")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before configuration")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error, disabled")
	pf.BoolVar(&a.logJSON, "log-json", false, "emit logs as JSON")

	cmd.AddCommand(
		serveCmd(a),
		inferCmd(a),
		evalCmd(a),
		trainCmd(a),
		modelCmd(a),
		statsCmd(a),
	)
	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if cmd.Flags().Changed("log-json") {
		cfg.LogJSON = a.logJSON
	}
	a.cfg = cfg

	lc := logger.DefaultConfig()
	lc.Level = logger.ParseLevel(cfg.LogLevel)
	lc.JSON = cfg.LogJSON
	lc.File = cfg.LogFile
	a.log = logger.NewLogger(lc)
	logger.SetDefault(a.log)
	cmd.SetContext(logger.ContextWithLogger(cmd.Context(), a.log))
	return nil
}
