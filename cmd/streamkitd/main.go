// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command streamkitd is a reference host for the pipeline execution
// core: it loads a pipeline description, compiles it, and runs it to
// completion (oneshot mode) or until signaled (dynamic mode), wiring
// in the plugin host, the observability bus and its sinks, and a
// Prometheus metrics endpoint. It is a demonstration harness, not a
// production control surface (spec.md §1 Non-goals: no multi-session
// HTTP API is specified here).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/streamkit-oss/streamkit/internal/controlplane"
	"github.com/streamkit-oss/streamkit/internal/engine"
	xglog "github.com/streamkit-oss/streamkit/internal/log"
	"github.com/streamkit-oss/streamkit/internal/node"
	"github.com/streamkit-oss/streamkit/internal/node/builtins"
	"github.com/streamkit-oss/streamkit/internal/observability"
	"github.com/streamkit-oss/streamkit/internal/observability/archive"
	"github.com/streamkit-oss/streamkit/internal/observability/redisout"
	"github.com/streamkit-oss/streamkit/internal/pipelinecore"
	"github.com/streamkit-oss/streamkit/internal/pluginhost"
	"github.com/streamkit-oss/streamkit/internal/pluginhost/wasm"
	"github.com/streamkit-oss/streamkit/internal/runtimecfg"
)

var (
	version = "v0.1.0"
	commit  = "none"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to runtime config file (YAML)")
	pipelinePath := flag.String("pipeline", "", "path to a pipeline document (YAML, required)")
	metricsAddr := flag.String("metrics-addr", ":9090", "listen address for the Prometheus /metrics endpoint")
	flag.Parse()

	if *showVersion {
		fmt.Printf("streamkitd %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	xglog.Configure(xglog.Config{Level: "info", Service: "streamkitd", Version: version})
	logger := xglog.WithComponent("streamkitd")

	if strings.TrimSpace(*pipelinePath) == "" {
		logger.Fatal().Str("event", "config.invalid").Msg("-pipeline is required")
	}

	cfg, err := runtimecfg.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "config.load_failed").Msg("failed to load runtime config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := node.NewRegistry()
	if err := builtins.RegisterAll(reg); err != nil {
		logger.Fatal().Err(err).Str("event", "registry.init_failed").Msg("failed to register builtin kinds")
	}

	host := pluginhost.New(reg, pluginFetchLimits(cfg.PluginFetch))
	if cfg.PluginDir != "" {
		if err := host.WatchDirectory(ctx, cfg.PluginDir); err != nil {
			logger.Warn().Err(err).Str("event", "pluginhost.watch_failed").Str("dir", cfg.PluginDir).Msg("plugin directory watch disabled")
		} else {
			logger.Info().Str("event", "pluginhost.watching").Str("dir", cfg.PluginDir).Msg("watching plugin directory")
		}
	}

	data, err := os.ReadFile(*pipelinePath)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "pipeline.read_failed").Str("path", *pipelinePath).Msg("failed to read pipeline document")
	}
	doc, err := pipelinecore.ParseDocument(data)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "pipeline.parse_failed").Msg("failed to parse pipeline document")
	}
	plan, err := pipelinecore.Compile(doc, reg)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "pipeline.compile_failed").Msg("failed to compile pipeline")
	}
	logger.Info().Str("event", "pipeline.compiled").Str("mode", string(doc.Mode)).Int("nodes", len(plan.Nodes)).Int("connections", len(plan.Connections)).Msg("pipeline compiled")

	sessionID := uuid.NewString()
	bus := observability.NewBus()
	publisher := observability.NewSessionPublisher(sessionID, bus)

	stopSinks := wireObservabilitySinks(ctx, logger, cfg, bus, sessionID)
	defer stopSinks()

	go serveMetrics(logger, *metricsAddr)

	eng := engine.New(reg, publisher, cfg.DefaultChannelCapacity, cfg.ShutdownDeadline)
	if err := eng.Start(ctx, plan); err != nil {
		logger.Fatal().Err(err).Str("event", "engine.start_failed").Msg("failed to start pipeline")
	}
	logger.Info().Str("event", "engine.started").Str("session_id", sessionID).Msg("pipeline running")

	switch doc.Mode {
	case pipelinecore.ModeOneshot:
		runOneshot(ctx, logger, eng, plan)
	case pipelinecore.ModeDynamic:
		runDynamic(ctx, logger, eng, reg, plan, publisher, sessionID)
	}

	logger.Info().Str("event", "shutdown.complete").Msg("streamkitd exiting")
}

// runOneshot waits for natural completion (or an interrupt) and logs
// each node's final stats, then stops the engine (spec.md §4.5 "Start").
func runOneshot(ctx context.Context, logger zerolog.Logger, eng *engine.Engine, plan *pipelinecore.Plan) {
	done := make(chan struct{})
	go func() {
		eng.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	for _, n := range plan.Nodes {
		if stats, ok := eng.NodeStats(n.ID); ok {
			logger.Info().
				Str("event", "node.final_stats").
				Str("node_id", n.ID).
				Uint64("received", stats.Received).
				Uint64("sent", stats.Sent).
				Uint64("discarded", stats.Discarded).
				Uint64("errored", stats.Errored).
				Msg("node completed")
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := eng.Stop(stopCtx); err != nil {
		logger.Warn().Err(err).Str("event", "engine.stop_incomplete").Msg("engine did not drain cleanly")
	}
}

// runDynamic hands the running engine to a control plane and blocks
// until signaled, then tears both down (spec.md §4.6).
func runDynamic(ctx context.Context, logger zerolog.Logger, eng *engine.Engine, reg *node.Registry, plan *pipelinecore.Plan, publisher *observability.SessionPublisher, sessionID string) {
	cp := controlplane.New(sessionID, eng, reg, publisher, rate.NewLimiter(50, 10))
	if err := cp.LoadPlan(plan); err != nil {
		logger.Warn().Err(err).Str("event", "controlplane.load_plan_failed").Msg("control plane bookkeeping did not seed from the started plan")
	}

	cpCtx, cancel := context.WithCancel(context.Background())
	go cp.Run(cpCtx)

	logger.Info().Str("event", "controlplane.ready").Msg("dynamic session accepting live mutations")
	<-ctx.Done()

	cp.Close()
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := eng.Stop(stopCtx); err != nil {
		logger.Warn().Err(err).Str("event", "engine.stop_incomplete").Msg("engine did not drain cleanly")
	}
}

// wireObservabilitySinks fans the default session's events out to the
// badger-backed archive (if ArchiveDir is set) and a Redis stream (if
// Redis.Addr is set), each on its own subscriber goroutine, mirroring
// the bus's "every sink is a plain subscriber" design (spec.md §4.8).
// It returns a cleanup func to close whatever it opened.
func wireObservabilitySinks(ctx context.Context, logger zerolog.Logger, cfg runtimecfg.Config, bus *observability.Bus, sessionID string) func() {
	var closers []func()

	if cfg.ArchiveDir != "" {
		a, err := archive.Open(cfg.ArchiveDir)
		if err != nil {
			logger.Warn().Err(err).Str("event", "archive.open_failed").Str("dir", cfg.ArchiveDir).Msg("observability archive disabled")
		} else {
			ch, unsub := bus.Subscribe(sessionID)
			sub := archive.NewSubscriber(a)
			go sub.Run(ch)
			closers = append(closers, unsub, func() { _ = a.Close() })
			logger.Info().Str("event", "archive.open").Str("dir", cfg.ArchiveDir).Msg("observability archive enabled")
		}
	}

	if cfg.Redis.Addr != "" {
		sink, err := redisout.New(redisout.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			logger.Warn().Err(err).Str("event", "redisout.connect_failed").Str("addr", cfg.Redis.Addr).Msg("redis event sink disabled")
		} else {
			ch, unsub := bus.Subscribe(sessionID)
			go sink.Run(ch)
			closers = append(closers, unsub, func() { _ = sink.Close() })
			logger.Info().Str("event", "redisout.connected").Str("addr", cfg.Redis.Addr).Msg("redis event sink enabled")
		}
	}

	_ = ctx
	return func() {
		for _, c := range closers {
			c()
		}
	}
}

// pluginFetchLimits builds a wasm.HostLimits from the loaded config,
// shared across every sandboxed plugin instance this host loads
// (spec.md §5).
func pluginFetchLimits(cfg runtimecfg.PluginFetchConfig) wasm.HostLimits {
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return wasm.HostLimits{
		AllowedHosts:   cfg.AllowedHosts,
		FetchRateLimit: rate.NewLimiter(rate.Limit(rps), burst),
		FetchInFlight:  semaphore.NewWeighted(maxConcurrent),
		FetchTimeout:   timeout,
	}
}

// serveMetrics runs the Prometheus scrape endpoint until addr fails to
// bind; a failure here is logged, not fatal, since metrics are
// diagnostic rather than load-bearing.
func serveMetrics(logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn().Err(err).Str("event", "metrics.serve_failed").Str("addr", addr).Msg("metrics endpoint stopped")
	}
}
