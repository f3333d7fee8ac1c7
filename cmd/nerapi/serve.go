package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nerapi/internal/audit"
	"nerapi/internal/extract"
	"nerapi/internal/metrics"
	"nerapi/internal/model"
	"nerapi/internal/server"
)

type serveOptions struct {
	host    string
	port    int
	preload bool
}

func serveCmd(a *app) *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP extraction API",
		Long:  "Serve /extract, /health, /metrics and /api/stats. The model loads on the first request unless --preload is set.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Port = opts.port
			}
			return runServe(cmd.Context(), a, opts)
		},
	}
	cmd.Flags().StringVar(&opts.host, "host", "0.0.0.0", "listen address")
	cmd.Flags().IntVar(&opts.port, "port", 0, "listen port (overrides configuration)")
	cmd.Flags().BoolVar(&opts.preload, "preload", false, "load the model at startup")
	return cmd
}

func runServe(ctx context.Context, a *app, opts serveOptions) error {
	if a.cfg.Port < 1 || a.cfg.Port > 65535 {
		return fmt.Errorf("port %d out of range", a.cfg.Port)
	}
	handle := newHandle(a.cfg, a.cfg.ModelName, a.log)
	defer func() {
		if err := handle.Close(); err != nil {
			a.log.Warn("Failed to release model", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.WatchModelState(reg, a.cfg.ModelName, func() float64 { return float64(handle.State()) })

	svc, err := extract.NewService(handle,
		extract.WithCache(a.cfg.CacheSize),
		extract.WithMetrics(metrics.New(reg)),
	)
	if err != nil {
		return err
	}

	srvOpts := []server.Option{
		server.WithMetrics(reg),
		server.WithModelState(func() string { return handle.State().String() }),
		server.WithLogger(a.log),
	}
	if a.cfg.AuditLog != "" {
		al, err := audit.NewJSONLLogger(a.cfg.AuditLog)
		if err != nil {
			return err
		}
		srvOpts = append(srvOpts, server.WithAudit(al, al.Path()))
	}
	srv := server.New(server.Config{Host: opts.host, Port: a.cfg.Port, Model: a.cfg.ModelName}, svc, srvOpts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	if opts.preload {
		g.Go(func() error { return preload(gctx, a, handle) })
	}
	return g.Wait()
}

// preload warms the handle. A failure is logged and left for the first
// request to retry.
func preload(ctx context.Context, a *app, handle *model.Handle) error {
	if _, err := handle.Acquire(ctx); err != nil && ctx.Err() == nil {
		a.log.Warn("Model preload failed; it will be retried on the first request", "error", err)
	}
	return nil
}
