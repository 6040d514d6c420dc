package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/sandwichfarm/herdwatch/internal/attribution"
	"github.com/sandwichfarm/herdwatch/internal/config"
	"github.com/sandwichfarm/herdwatch/internal/delivery"
	"github.com/sandwichfarm/herdwatch/internal/identity"
	"github.com/sandwichfarm/herdwatch/internal/lightning"
	internalnostr "github.com/sandwichfarm/herdwatch/internal/nostr"
	"github.com/sandwichfarm/herdwatch/internal/ops"
	"github.com/sandwichfarm/herdwatch/internal/profile"
	"github.com/sandwichfarm/herdwatch/internal/watch"
)

const shutdownTimeout = 10 * time.Second

var errNoConfig = errors.New("no configuration file specified; use --config <path> (see `herdwatch init`)")

func runWatch(ctx context.Context, configPath string) (err error) {
	if configPath == "" {
		return errNoConfig
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := ops.NewLogger(&cfg.Logging)
	ops.SetDefault(logger)
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	author, err := cfg.Identity.AuthorPubkey()
	if err != nil {
		return fmt.Errorf("invalid identity.author: %w", err)
	}
	self, err := cfg.Identity.SelfPubkey()
	if err != nil {
		return fmt.Errorf("invalid identity.self: %w", err)
	}

	logger.LogStartup(version, commit, map[string]interface{}{
		"author":         author,
		"tags":           cfg.Watch.Tags,
		"relays":         len(cfg.Relays.Seeds),
		"webhook":        cfg.Webhook.URL,
		"decoder":        cfg.Decoder.Mode,
		"validate_lud16": cfg.Enrichment.ValidateLUD16,
		"verify_nip05":   cfg.Enrichment.VerifyNIP05,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracing, err := ops.InitTracing(ctx, &cfg.Tracing, version, logger)
	if err != nil {
		return err
	}

	metrics := ops.NewMetrics()
	client := internalnostr.New(ctx, &cfg.Relays, logger)
	webhook := delivery.New(&cfg.Webhook, logger)

	classifier := attribution.NewClassifier(lightning.NewDecoder(&cfg.Decoder), cfg.Enrichment.MinZapSats, logger)
	resolver := profile.NewResolver(client, cfg.Enrichment.LookupTimeout(), logger)

	pipelineOpts := []attribution.Option{
		attribution.WithLogger(logger),
		attribution.WithMetrics(metrics),
	}
	if cfg.Enrichment.ValidateLUD16 {
		pipelineOpts = append(pipelineOpts, attribution.WithAddressValidator(lightning.NewAddressValidator(cfg.Enrichment.LookupTimeout())))
	}
	if cfg.Enrichment.VerifyNIP05 {
		pipelineOpts = append(pipelineOpts, attribution.WithIdentityVerifier(identity.NewVerifier(cfg.Enrichment.LookupTimeout())))
	}
	pipeline := attribution.NewPipeline(self, resolver, webhook, pipelineOpts...)

	supervisor := watch.NewSupervisor(client, classifier, pipeline,
		watch.NewFilterBuilder(author, cfg.Watch.Tags, cfg.Watch.Location()),
		watch.WithBackoff(cfg.Watch.ReconnectBackoff()),
		watch.WithMetrics(metrics),
		watch.WithLogger(logger),
	)

	diagnostics := ops.NewDiagnosticsCollector(version, commit, client.GetSeedRelays(), supervisor, pipeline)

	var server *ops.Server
	if cfg.Ops.Listen != "" {
		server = ops.NewServer(cfg.Ops.Listen, metrics, pipeline, logger)
		server.SetDiagnostics(diagnostics)
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start ops server: %w", err)
		}
	}

	var stats *ops.StatsReporter
	if cfg.Ops.StatsSchedule != "" {
		stats = ops.NewStatsReporter(cfg.Ops.StatsSchedule, func() []any {
			return diagnostics.CollectAll().LogFields()
		}, logger)
		if err := stats.Start(); err != nil {
			return err
		}
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- supervisor.Run(ctx)
	}()

	reason := "signal"
	select {
	case <-ctx.Done():
	case err := <-runErr:
		reason = "supervisor exited"
		if err != nil {
			logger.Error("supervisor failed", "error", err)
		}
	}

	logger.LogShutdown(reason)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	supervisor.Stop()
	if stats != nil {
		stats.Stop()
	}
	if server != nil {
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Warn("ops server shutdown failed", "error", err)
		}
	}
	client.Close()
	webhook.Close()
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown failed", "error", err)
	}

	logger.Info("shutdown complete", "records", len(pipeline.Batch()))
	return nil
}
