package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"wgmesh/internal/config"
	"wgmesh/internal/exchange"
	"wgmesh/internal/kernel"
	"wgmesh/internal/logging"
	"wgmesh/internal/mesh"
	"wgmesh/internal/monitoring"
	"wgmesh/internal/reconcile"
	"wgmesh/internal/server"
	"wgmesh/internal/sweep"
	"wgmesh/internal/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("wgmesh-worker")

	// Load environment variables
	config.LoadEnv(logger)

	// Validate required config
	domains := config.GetEnvList("WG_DOMAINS", nil)
	if len(domains) == 0 {
		logger.Fatal("WG_DOMAINS is required")
	}
	seen := make(map[string]bool, len(domains))
	for _, domain := range domains {
		if err := mesh.ValidateDomain(domain); err != nil {
			logger.WithError(err).Fatal("Invalid domain in WG_DOMAINS")
		}
		if seen[domain] {
			logger.WithField("domain", domain).Fatal("Duplicate domain in WG_DOMAINS")
		}
		seen[domain] = true
	}

	brokers := config.GetEnvList("KAFKA_BROKERS", []string{"localhost:9092"})
	topic := config.GetEnv("KAFKA_TOPIC", "wireguard-key-exchange")
	groupID := config.GetEnv("KAFKA_GROUP_ID", "wgmesh-worker")
	staleWindow := config.GetEnvDuration("PEER_STALE_WINDOW", kernel.DefaultStaleWindow)
	sweepInterval := config.GetEnvDuration("SWEEP_INTERVAL", sweep.DefaultInterval)

	clientID, err := os.Hostname()
	if err != nil || clientID == "" {
		clientID = "wgmesh-worker"
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("wgmesh-worker", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("wgmesh-worker", version.Version, version.GitCommit)

	subsystemOps, peerEvents, peersTracked := metricsCollector.CreateMeshMetrics()
	sweepMetrics := &sweep.Metrics{
		Sweeps:       metricsCollector.NewCounter("sweeps_total", "Stale peer sweeps", []string{"domain", "status"}),
		PeersRemoved: metricsCollector.NewCounter("stale_peers_removed_total", "Stale peers removed", []string{"domain"}),
		PeersTracked: peersTracked,
	}

	reconciler := reconcile.New(reconcile.Config{
		Logger:  logger,
		Metrics: &reconcile.Metrics{SubsystemOps: subsystemOps},
		Steps:   reconcile.DefaultSteps(),
	})

	detector := kernel.NewStaleDetector(staleWindow)
	sweeper := sweep.New(sweep.Config{
		Domains:    domains,
		Interval:   sweepInterval,
		Detector:   detector,
		Reconciler: reconciler,
		Logger:     logger,
		Metrics:    sweepMetrics,
	})

	consumer, err := exchange.NewConsumer(exchange.Config{
		Brokers:    brokers,
		Topic:      topic,
		GroupID:    groupID,
		ClientID:   clientID,
		Domains:    domains,
		Reconciler: reconciler,
		Logger:     logger,
		Metrics:    &exchange.Metrics{Events: peerEvents},
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create exchange consumer")
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Fatal("Exchange consumer failed")
		}
	}()
	go func() {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("Stale peer sweeper stopped")
		}
	}()

	// Health checks
	healthChecker.AddCheck("kafka", monitoring.KafkaHealthCheck(consumer.Client()))
	healthChecker.AddCheck("configuration", monitoring.ConfigurationHealthCheck(map[string]string{
		"WG_DOMAINS":    config.GetEnv("WG_DOMAINS", ""),
		"KAFKA_BROKERS": brokers[0],
	}))
	for _, domain := range domains {
		healthChecker.AddCheck("wireguard-"+domain, monitoring.WireGuardDeviceHealthCheck(mesh.WireguardInterfaceName(domain)))
	}

	logger.WithFields(logging.Fields{
		"domains":        domains,
		"stale_window":   staleWindow,
		"sweep_interval": sweepInterval,
		"topic":          topic,
	}).Info("Starting worker")

	// Start HTTP server for health/metrics (standard pattern)
	router := server.SetupServiceRouter(logger, "wgmesh-worker", healthChecker, metricsCollector)
	serverConfig := server.DefaultConfig("wgmesh-worker", config.GetEnv("WGMESH_WORKER_PORT", "18040"))
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
