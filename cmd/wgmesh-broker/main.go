package main

import (
	"os"

	"wgmesh/internal/broker"
	"wgmesh/internal/config"
	"wgmesh/internal/logging"
	"wgmesh/internal/mesh"
	"wgmesh/internal/monitoring"
	"wgmesh/internal/server"
	"wgmesh/internal/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("wgmesh-broker")

	// Load environment variables
	config.LoadEnv(logger)

	// Validate required config
	domains := config.GetEnvList("WG_DOMAINS", nil)
	if len(domains) == 0 {
		logger.Fatal("WG_DOMAINS is required")
	}
	for _, domain := range domains {
		if err := mesh.ValidateDomain(domain); err != nil {
			logger.WithError(err).Fatal("Invalid domain in WG_DOMAINS")
		}
	}

	brokers := config.GetEnvList("KAFKA_BROKERS", []string{"localhost:9092"})
	topic := config.GetEnv("KAFKA_TOPIC", "wireguard-key-exchange")

	clientID, err := os.Hostname()
	if err != nil || clientID == "" {
		clientID = "wgmesh-broker"
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("wgmesh-broker", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("wgmesh-broker", version.Version, version.GitCommit)

	apiMetrics := &broker.Metrics{
		Exchanges: metricsCollector.NewCounter("key_exchanges_total", "Key exchange requests", []string{"domain", "status"}),
	}

	publisher, err := broker.NewKafkaPublisher(brokers, topic, clientID, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create exchange publisher")
	}
	defer publisher.Close()

	// Health checks
	healthChecker.AddCheck("kafka", monitoring.KafkaHealthCheck(publisher.Client()))
	healthChecker.AddCheck("configuration", monitoring.ConfigurationHealthCheck(map[string]string{
		"WG_DOMAINS":    config.GetEnv("WG_DOMAINS", ""),
		"KAFKA_BROKERS": brokers[0],
	}))

	logger.WithFields(logging.Fields{
		"domains": domains,
		"topic":   topic,
	}).Info("Starting broker")

	// Start HTTP server for the API plus health/metrics (standard pattern)
	router := server.SetupServiceRouter(logger, "wgmesh-broker", healthChecker, metricsCollector)
	api := broker.NewAPI(publisher, domains, logger, apiMetrics)
	api.RegisterRoutes(router)

	serverConfig := server.DefaultConfig("wgmesh-broker", config.GetEnv("WGMESH_BROKER_PORT", "18041"))
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
