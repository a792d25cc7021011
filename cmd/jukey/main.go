// Package main runs one media pipeline from a definition file. The pipeline's
// elements and links come from the definition; metrics are served over HTTP and
// notifications are forwarded to NATS when configured.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ivgotcrazy/jukey-sub001/component"
	"github.com/ivgotcrazy/jukey-sub001/componentregistry"
	"github.com/ivgotcrazy/jukey-sub001/config"
	"github.com/ivgotcrazy/jukey-sub001/health"
	"github.com/ivgotcrazy/jukey-sub001/metric"
	"github.com/ivgotcrazy/jukey-sub001/natsbridge"
	"github.com/ivgotcrazy/jukey-sub001/pipeline"
	"github.com/ivgotcrazy/jukey-sub001/pkg/retry"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "jukey"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid", "elements", len(cfg.Elements), "links", len(cfg.Links))
		return nil
	}

	var metricOpts []metric.Option
	if cfg.Metrics.Runtime {
		metricOpts = append(metricOpts, metric.WithRuntimeMetrics())
	}
	metricsRegistry := metric.NewMetricsRegistry(metricOpts...)

	registry := component.NewRegistry()
	if err := componentregistry.Register(registry); err != nil {
		return fmt.Errorf("register components: %w", err)
	}
	slog.Info("Component factories registered", "factories", registry.ListComponentTypes())

	deps := component.Dependencies{
		MetricsRegistry: metricsRegistry,
		Logger:          slog.Default(),
	}
	p, err := buildPipeline(cfg, registry, deps)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			slog.Error("Pipeline close failed", "error", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if cliCfg.RunFor > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, cliCfg.RunFor)
		defer stop()
	}

	return serve(ctx, cfg, p, metricsRegistry, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, bool, error) {
	cliCfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		return nil, false, fmt.Errorf("parse flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp(flag.CommandLine)
		return nil, true, nil
	}

	slog.SetDefault(setupLogger(os.Stdout, cliCfg.LogLevel, cliCfg.LogFormat))
	slog.Info("Starting jukey",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, false, nil
}

// loadConfig loads and validates the pipeline definition
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// buildPipeline creates the pipeline with its elements and links. Auto links run
// after plain links so that assembled chains see the explicit topology.
func buildPipeline(cfg *config.Config, registry *component.Registry, deps component.Dependencies) (*pipeline.Pipeline, error) {
	var opts []pipeline.Option
	if cfg.Pipeline.SendTimeout > 0 {
		opts = append(opts, pipeline.WithSendTimeout(cfg.Pipeline.SendTimeout))
	}
	if cfg.Pipeline.QueueSize > 0 {
		opts = append(opts, pipeline.WithQueueSize(cfg.Pipeline.QueueSize))
	}

	p, err := pipeline.New(cfg.Pipeline.Name, registry, deps, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	fail := func(err error) (*pipeline.Pipeline, error) {
		if cerr := p.Close(); cerr != nil {
			slog.Debug("Pipeline close failed", "error", cerr)
		}
		return nil, err
	}

	for _, e := range cfg.Elements {
		if _, err := p.AddElement(e.Component, e.ElementProperties()); err != nil {
			return fail(fmt.Errorf("add element %s: %w", e.Name, err))
		}
	}

	for _, l := range cfg.Links {
		if l.Auto {
			continue
		}
		if err := p.LinkElement(l.Source, l.Sink); err != nil {
			return fail(fmt.Errorf("link %s to %s: %w", l.Source, l.Sink, err))
		}
	}
	for _, l := range cfg.Links {
		if !l.Auto {
			continue
		}
		links, err := p.AutoLink(l.Source, l.Sink)
		if err != nil {
			return fail(fmt.Errorf("auto link %s to %s: %w", l.Source, l.Sink, err))
		}
		slog.Info("Chain assembled", "source", l.Source, "sink", l.Sink, "links", len(links))
	}

	return p, nil
}

// serve runs the pipeline, the metrics endpoint and the NATS bridge until ctx is
// done, then stops the pipeline within shutdownTimeout.
func serve(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline,
	metricsRegistry *metric.MetricsRegistry, shutdownTimeout time.Duration,
) error {
	monitor, err := health.NewMonitor(p, slog.Default())
	if err != nil {
		return fmt.Errorf("create health monitor: %w", err)
	}
	defer monitor.Close()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		server := metric.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, metricsRegistry)
		server.SetHealthHandler(monitor)
		g.Go(func() error {
			slog.Info("Serving metrics", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
			return server.Run(gctx)
		})
	}

	if cfg.NATS.Enabled() {
		conn, err := connectNATS(ctx, cfg, p.Name(), metricsRegistry)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer conn.Close()

		bridge := natsbridge.New(conn,
			natsbridge.WithSubjectPrefix(cfg.NATS.SubjectPrefix),
			natsbridge.WithLogger(slog.Default()),
			natsbridge.WithMetrics(metricsRegistry))
		if err := bridge.Attach(p); err != nil {
			return fmt.Errorf("attach NATS bridge: %w", err)
		}
		defer bridge.Detach(p)
	}

	startCtx, cancel := context.WithTimeout(ctx, cfg.Pipeline.SendTimeout+time.Second)
	err = p.Start(startCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}
	slog.Info("Pipeline running", "pipeline", p.Name(), "elements", len(p.Elements()))

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Stopping pipeline")

		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := p.Stop(stopCtx); err != nil {
			return fmt.Errorf("stop pipeline: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Shutdown complete", "health", monitor.Report().Level)
	return nil
}

// connectNATS dials the broker with backoff. Each attempt gets its own timeout;
// configuration errors are not retried.
func connectNATS(ctx context.Context, cfg *config.Config, pipelineName string,
	metricsRegistry *metric.MetricsRegistry,
) (*natsbridge.Conn, error) {
	policy := retry.Quick()
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		slog.Warn("NATS connect failed, retrying", "attempt", attempt, "delay", delay, "error", err)
	}

	return retry.DoWithResult(ctx, policy, func() (*natsbridge.Conn, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return natsbridge.Connect(attemptCtx, cfg.NATS, appName+"-"+pipelineName, slog.Default(), metricsRegistry)
	})
}
