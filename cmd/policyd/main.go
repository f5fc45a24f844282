// Command policyd runs the Policy Service: the single-threaded daemon
// that mediates every application's access to the system's sensitive
// capabilities (camera, network, filesystem, process control) behind
// user consent and a bounded, auditable grant store.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozo-systems/policyd/internal/adminapi"
	"github.com/kozo-systems/policyd/internal/auditarchive"
	"github.com/kozo-systems/policyd/internal/auditsink"
	"github.com/kozo-systems/policyd/internal/compositor"
	"github.com/kozo-systems/policyd/internal/config"
	"github.com/kozo-systems/policyd/internal/consent"
	"github.com/kozo-systems/policyd/internal/kernel"
	"github.com/kozo-systems/policyd/internal/metrics"
	"github.com/kozo-systems/policyd/internal/obslog"
	"github.com/kozo-systems/policyd/internal/policy"
	"github.com/kozo-systems/policyd/internal/requestloop"
	"github.com/kozo-systems/policyd/internal/risk"
	"github.com/kozo-systems/policyd/internal/sweeper"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		os.Exit(exitWithError("config", err))
	}

	logger := obslog.New("policyd", cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var kernelPubKeyPEM []byte
	if cfg.KernelJWTPublicKeyPath != "" {
		data, err := os.ReadFile(cfg.KernelJWTPublicKeyPath)
		if err != nil {
			logger.WithContext(ctx).WithError(err).Warn("failed to read kernel JWT public key, badge assertions disabled")
		} else {
			kernelPubKeyPEM = data
		}
	}

	kernelClient := kernel.NewRemoteClient(cfg.PolicyEndpointSocket)
	compositorClient := compositor.NewRemoteClient(cfg.CompositorEndpointSocket)

	endpoint, err := kernelClient.EndpointCreate(ctx)
	if err != nil {
		os.Exit(exitWithError("kernel endpoint_create", err))
	}
	if err := kernelClient.NamespaceRegister(ctx, endpoint, "system.policy"); err != nil {
		os.Exit(exitWithError("kernel namespace_register", err))
	}

	store := policy.NewGrantStore(cfg.MaxApps, cfg.MaxGrantsPerApp, cfg.AuditRingSize, policy.SystemClock{})

	reg := prometheus.NewRegistry()
	metricsRegistry := metrics.NewRegistry(reg)

	if cfg.RedisEnabled {
		sink := auditsink.NewRedisSink(cfg.RedisAddr, cfg.RedisChannel, logger)
		go sink.Run(ctx)
		store.OnAudit(sink.Publish)
		defer sink.Close()
	}

	if cfg.AuditArchiveEnabled {
		archive, err := auditarchive.Open(cfg.AuditArchiveDSN, "file://internal/auditarchive/migrations", logger)
		if err != nil {
			logger.WithContext(ctx).WithError(err).Error("audit archive unavailable, continuing without durable mirror")
		} else {
			go archive.Run(ctx)
			store.OnAudit(archive.Publish)
			defer archive.Close()
		}
	}

	tick := sweeper.NewTicker(logger)
	go tick.Run(ctx, cfg.SweepInterval)
	if err := tick.StartSummaryJob(func() int { return store.ActiveGrantCount() }); err != nil {
		logger.WithContext(ctx).WithError(err).Warn("failed to start summary job")
	}
	defer tick.StopSummaryJob()

	loop := requestloop.New(requestloop.Config{
		KernelClient:     kernelClient,
		CompositorClient: compositorClient,
		Endpoint:         endpoint,
		Store:            store,
		Logger:           logger,
		KernelPubKeyPEM:  kernelPubKeyPEM,
		ConsentTimeoutOf: func(level risk.Level) time.Duration { return cfg.ConsentTimeout(int(level)) },
		RateLimitBurst:   cfg.RateLimitBurst,
		RateLimitPerSec:  cfg.RateLimitPerSecond,
		SweepTick:        tick.Channel(),
	})

	adminSrv := &http.Server{Addr: cfg.AdminListenAddr, Handler: adminapi.NewServer(store, logger)}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: cfg.MetricsListenAddr, Handler: metricsMux}

	go metricsRegistry.RunProcessSampler(ctx, 15*time.Second)
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metricsRegistry.SampleActiveGrants(store.ActiveGrantCount)
			}
		}
	}()

	go func() {
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithContext(ctx).WithError(err).Error("admin API server stopped")
		}
	}()
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithContext(ctx).WithError(err).Error("metrics server stopped")
		}
	}()

	logger.WithContext(ctx).WithField("env", string(cfg.Env)).Info("policyd starting")

	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		logger.WithContext(ctx).WithError(err).Error("request loop exited unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = adminSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	logger.WithContext(ctx).Info("policyd stopped")
}

func exitWithError(stage string, err error) int {
	os.Stderr.WriteString(stage + ": " + err.Error() + "\n")
	return 1
}
