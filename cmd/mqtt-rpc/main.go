package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mqtt-rpc/config"
	"mqtt-rpc/internal/broker"
	"mqtt-rpc/internal/codec"
	"mqtt-rpc/internal/concurrency"
	"mqtt-rpc/internal/dispatch"
	"mqtt-rpc/internal/guard"
	"mqtt-rpc/internal/logger"
	"mqtt-rpc/internal/metrics"
	"mqtt-rpc/internal/model"
	"mqtt-rpc/internal/stats"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	guardsPath := flag.String("guards", "", "path to guard rules directory (empty = no guards)")

	// Optional override flags
	maxWorkersOverride := flag.Int("max-workers", 0, "override pool worker ceiling (0 = use config)")
	queueSizeOverride := flag.Int("queue-size", 0, "override pool queue size (0 = use config)")
	windowSizeOverride := flag.Int("window-size", 0, "override latency window size (0 = use config)")
	thresholdOverride := flag.Duration("latency-threshold", 0, "override latency threshold (0 = use config)")
	metricsAddrOverride := flag.String("metrics-addr", "", "override metrics server address (empty = use config)")
	metricsPathOverride := flag.String("metrics-path", "", "override metrics endpoint path (empty = use config)")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	cfg.ApplyOverrides(
		*maxWorkersOverride,
		*queueSizeOverride,
		*windowSizeOverride,
		*thresholdOverride,
		*metricsAddrOverride,
		*metricsPathOverride,
	)

	logger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Service.BaseTopic == "" || len(cfg.Service.Operations) == 0 {
		logger.Fatal("service base topic and operations are required")
	}

	var metricsService *metrics.Metrics
	var metricsServer *http.Server

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metricsService, err = metrics.NewMetrics(reg)
		if err != nil {
			logger.Fatal("failed to create metrics service", "error", err)
		}

		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			Registry:          reg,
			EnableOpenMetrics: true,
		}))

		metricsServer = &http.Server{
			Addr:    cfg.Metrics.Address,
			Handler: mux,
		}

		go func() {
			logger.Info("starting metrics server",
				"address", cfg.Metrics.Address,
				"path", cfg.Metrics.Path)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	statsCollector := stats.NewStatsCollector()

	pool := concurrency.NewPool(concurrency.PoolConfig{
		MinWorkers:  cfg.Concurrency.MinWorkers,
		MaxWorkers:  cfg.Concurrency.MaxWorkers,
		QueueSize:   cfg.Concurrency.QueueSize,
		IdleTimeout: cfg.Concurrency.IdleTimeout,
	}, logger, metricsService)

	manager := concurrency.NewManager(pool, concurrency.ManagerConfig{
		WindowSize:       cfg.Concurrency.WindowSize,
		LatencyThreshold: cfg.Concurrency.LatencyThreshold,
		MaxWorkers:       cfg.Concurrency.MaxWorkers,
	}, logger, metricsService)

	metricsCollector := metrics.NewMetricsCollector(metricsService, pool, cfg.Metrics.UpdateInterval)
	metricsCollector.Start()
	defer metricsCollector.Stop()

	qos, err := model.ParseQoS(cfg.MQTT.QoS)
	if err != nil {
		logger.Fatal("invalid qos", "error", err)
	}

	registry := broker.NewRegistry(logger, metricsService)
	mainOpts := broker.ConnectOptionsFromConfig(cfg.MQTT)
	facade := broker.NewFacade(registry, broker.FacadeConfig{
		Main:         mainOpts,
		SubscribeQoS: qos,
		Breaker:      cfg.Breaker,
	}, logger, metricsService)

	responses := codec.NewResponses(facade, cfg.Service.Name, logger)

	var filters []dispatch.Filter
	if *guardsPath != "" {
		rules, err := guard.NewRulesLoader(logger).LoadFromDirectory(*guardsPath)
		if err != nil {
			logger.Fatal("failed to load guard rules", "error", err)
		}
		guardFilter, err := guard.NewFilter(guard.DefaultOrder, rules, logger)
		if err != nil {
			logger.Fatal("failed to build guard filter", "error", err)
		}
		filters = append(filters, guardFilter)
	}

	dispatcher := dispatch.New(dispatch.Options{
		Pool:      pool,
		Latency:   manager,
		Responses: responses,
		Filters:   filters,
		Logger:    logger,
		Metrics:   metricsService,
		Stats:     statsCollector,
	})

	if _, err := dispatcher.Register(newEchoHandler(cfg.Service.BaseTopic, responses)); err != nil {
		logger.Fatal("failed to register handler", "error", err)
	}

	listener := dispatch.NewListener(registry, dispatcher, mainOpts, qos, logger)
	service := model.ServiceModel{
		Name:       cfg.Service.Name,
		Protocol:   model.ProtocolMQTT,
		BaseTopic:  cfg.Service.BaseTopic,
		Operations: cfg.Service.Operations,
	}
	if err := listener.Listen(service); err != nil {
		logger.Fatal("failed to listen", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reportStats(ctx, logger, statsCollector, manager, cfg.Metrics.UpdateInterval)

	logger.Info("mqtt-rpc started",
		"service", cfg.Service.Name,
		"baseTopic", cfg.Service.BaseTopic,
		"operations", cfg.Service.Operations,
		"maxWorkers", cfg.Concurrency.MaxWorkers,
		"latencyThreshold", cfg.Concurrency.LatencyThreshold,
		"guardFilters", len(filters),
		"metricsEnabled", cfg.Metrics.Enabled)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		switch sig {
		case syscall.SIGHUP:
			logger.Info("received SIGHUP, reopening logs")
			logger.Sync()
		case syscall.SIGINT, syscall.SIGTERM:
			logger.Info("shutting down...")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()

			if metricsServer != nil {
				if err := metricsServer.Shutdown(shutdownCtx); err != nil {
					logger.Error("failed to shutdown metrics server", "error", err)
				}
			}

			cancel()
			if err := listener.Disconnect(); err != nil {
				logger.Error("failed to disconnect listener", "error", err)
			}
			dispatcher.Close()
			pool.Close()
			facade.Close()
			registry.Close()
			return
		}
	}
}

func reportStats(ctx context.Context, log *logger.Logger, st *stats.StatsCollector, manager *concurrency.Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Info("processing stats",
				"received", st.Received(),
				"processed", st.Processed(),
				"failed", st.Failed(),
				"rejected", st.Rejected(),
				"rate", st.CalculateRate(),
				"mode", manager.Mode().String())
		}
	}
}
