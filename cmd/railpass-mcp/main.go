// Command railpass-mcp is an MCP (Model Context Protocol) server that lets
// AI assistants fill, preview and export souvenir train ticket mock-ups.
//
// # Installation
//
//	go install github.com/lvillar/railpass/cmd/railpass-mcp@latest
//
// # Configuration for Claude Desktop
//
// Add to ~/.config/claude/claude_desktop_config.json:
//
//	{
//	  "mcpServers": {
//	    "railpass": {
//	      "command": "railpass-mcp",
//	      "args": ["--config", "/path/to/railpass.yaml"]
//	    }
//	  }
//	}
//
// # Available Tools
//
//   - list_templates: List the ticket templates
//   - json_template: Get a record skeleton to fill in
//   - validate_record: Check a record's fields
//   - redact_id: Mask an identity number
//   - render_ticket: Fill a template and return HTML
//   - preview_ticket: Rasterize a ticket to a PNG preview
//   - queue_add, queue_remove, queue_list, queue_clear: Manage the export queue
//   - export_queue: Export the queue as PNG, ZIP or PDF
//
// # Available Resources
//
//   - template://registry : Template registry
//   - template://markup?id=... : Unfilled template HTML
//   - queue://entries : Queued tickets
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/lvillar/railpass/config"
	"github.com/lvillar/railpass/export"
	"github.com/lvillar/railpass/mcp"
	"github.com/lvillar/railpass/queue"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "railpass-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("railpass-mcp", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", config.DefaultPath(), "path to the YAML config file")
	metricsAddr := flags.String("metrics-addr", "", "serve Prometheus metrics on this address (overrides config)")
	showVersion := flags.Bool("version", false, "print the version and exit")
	showEnv := flags.Bool("env", false, "list the environment variables read and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Println("railpass-mcp", version)
		return nil
	}
	if *showEnv {
		config.Usage(os.Stdout)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	// stdout carries the protocol, so logs go to stderr.
	logger, err := cfg.Log.Logger(os.Stderr)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var metrics *export.Metrics
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = export.NewMetrics(reg)
		stop := serveMetrics(cfg.Metrics.Addr, reg, logger)
		defer stop()
	}

	store, err := cfg.OpenStore(ctx, logger)
	if err != nil {
		return err
	}
	painter, err := cfg.NewPainter(store, logger)
	if err != nil {
		return err
	}
	pipeline, err := cfg.NewPipeline(store, painter, logger, metrics)
	if err != nil {
		return err
	}

	svc := &mcp.Service{
		Store:        store,
		Painter:      painter,
		Pipeline:     pipeline,
		Session:      queue.NewSession(queue.WithLogger(logger)),
		PreviewScale: cfg.Render.PreviewScale,
		Logger:       logger,
	}
	server := mcp.NewServer(mcp.WithServerLogger(logger), mcp.WithVersion(version))
	svc.Register(server)

	logger.WithField("templates", len(store.List())).Info("railpass-mcp ready")
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *logrus.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.WithField("addr", addr).Info("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server stopped")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
