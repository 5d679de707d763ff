package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/sensorhub-io/hub/api"
	"github.com/sensorhub-io/hub/bridge"
	"github.com/sensorhub-io/hub/bus"
	"github.com/sensorhub-io/hub/config"
	"github.com/sensorhub-io/hub/core"
	"github.com/sensorhub-io/hub/db"
	"github.com/sensorhub-io/hub/metrics"
)

// createLogger creates a slog.Logger based on the provided configuration.
func createLogger(cfg config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("invalid log level: %s", cfg.Level)
	}

	var output io.Writer
	var closer io.Closer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	case "file":
		if cfg.File == "" {
			return nil, nil, fmt.Errorf("log output is 'file' but no file path is specified")
		}
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
		}
		output = file
		closer = file // The file handle is the closer.
	case "none":
		output = io.Discard
	default:
		return nil, nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	logger := slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level}))
	return logger, closer, nil
}

// initTracerProvider creates and configures an OpenTelemetry TracerProvider.
// It sets up an exporter based on the configuration to send traces to a collector.
func initTracerProvider(cfg config.TracingConfig, logger *slog.Logger) (*sdktrace.TracerProvider, func(), error) {
	if !cfg.Enabled {
		logger.Info("Distributed tracing is disabled.")
		// Return a no-op provider and an empty cleanup function.
		return sdktrace.NewTracerProvider(), func() {}, nil
	}

	logger.Info("Initializing distributed tracing...", "protocol", cfg.Protocol, "endpoint", cfg.Endpoint)

	ctx := context.Background()
	var exporter sdktrace.SpanExporter
	var err error

	// Create an OTLP exporter (gRPC or HTTP)
	switch strings.ToLower(cfg.Protocol) {
	case "http":
		exporter, err = otlptrace.New(ctx, otlptracehttp.NewClient(otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure()))
	case "grpc":
		exporter, err = otlptrace.New(ctx, otlptracegrpc.NewClient(otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure()))
	default:
		return nil, nil, fmt.Errorf("unsupported tracing protocol: %q", cfg.Protocol)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	// Define the service resource
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String("sensorhub")))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	// Create the TracerProvider
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	// Set the global TracerProvider
	otel.SetTracerProvider(tp)

	cleanup := func() {
		logger.Info("Shutting down tracer provider...")
		// Create a context with a timeout to prevent shutdown from hanging.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down tracer provider", "error", err)
		}
	}

	return tp, cleanup, nil
}

func main() {
	// Define a command-line flag for the config file path
	configPath := flag.String("config", "config.yaml", "Path to the configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		// Use a temporary logger for pre-config errors
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	// Create the logger based on the loaded configuration
	logger, logCloser, err := createLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to create logger", "error", err)
		os.Exit(1)
	}
	// Defer closing the log file if one was opened.
	if logCloser != nil {
		defer logCloser.Close()
	}

	if cfg.Store.DataDir == "" && !cfg.Store.InMemory {
		logger.Error("store.data_dir must be specified in the configuration file.")
		os.Exit(1)
	}
	logger.Info("Using data directory", "path", cfg.Store.DataDir)

	// Initialize the TracerProvider
	_, tracerCleanup, err := initTracerProvider(cfg.Tracing, logger)
	if err != nil {
		logger.Error("Failed to initialize tracer provider", "error", err)
		os.Exit(1)
	}

	autoCommitInterval := config.ParseDuration(cfg.Store.AutoCommitInterval, 30*time.Second, logger)

	metricsRegistry := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(metricsRegistry)

	facade, err := db.Open(db.Options{
		DataDir:              cfg.Store.DataDir,
		InMemory:             cfg.Store.InMemory,
		Logger:               logger,
		Tracer:               otel.Tracer("sensorhub/db"),
		AutoCommitInterval:   autoCommitInterval,
		AutoCommitDirtyBytes: cfg.Store.AutoCommitDirtyBytes,
		MetricsRegistry:      metricsRegistry,
	})
	if err != nil {
		logger.Error("Failed to open database facade", "error", err)
		os.Exit(1)
	}

	ids, err := core.NewIDScrambler()
	if err != nil {
		logger.Error("Failed to initialize id scrambler", "error", err)
		facade.Close()
		os.Exit(1)
	}

	eventBus := bus.New()
	metricsRegistry.MustRegister(eventBus.Collector())

	systemCollector := metrics.NewSystemCollector(cfg.Store.DataDir, 15*time.Second, logger)
	metricsRegistry.MustRegister(systemCollector)
	systemCollector.Start()

	var debugServer *metrics.DebugServer
	if cfg.Debug.Enabled {
		debugServer = metrics.NewDebugServer(cfg.Debug.ListenAddress, metricsRegistry, cfg.Debug.PProfEnabled, cfg.Debug.MonitorUIEnabled, logger)
		debugServer.Start()
	}

	breakerInterval := config.ParseDuration(cfg.Bridge.BreakerInterval, time.Minute, logger)
	breakerTimeout := config.ParseDuration(cfg.Bridge.BreakerTimeout, 30*time.Second, logger)
	persistBridge := bridge.New(facade, eventBus, bridge.Options{
		Logger:                  logger,
		MaxConcurrentEvents:     cfg.Bridge.MaxConcurrentEvents,
		BreakerMaxRequests:      cfg.Bridge.BreakerMaxRequests,
		BreakerInterval:         breakerInterval,
		BreakerTimeout:          breakerTimeout,
		BreakerFailureThreshold: cfg.Bridge.BreakerFailureThreshold,
	})
	persistBridge.Start()

	var mqttSource *bus.MQTTSource
	if cfg.MQTT.Enabled {
		mqttSource, err = bus.NewMQTTSource(bus.MQTTSourceOptions{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicFilter: cfg.MQTT.TopicFilter,
			Logger:      logger,
		}, eventBus)
		if err != nil {
			logger.Error("Failed to connect MQTT ingress", "error", err)
			persistBridge.Stop()
			facade.Close()
			os.Exit(1)
		}
	}

	router := api.NewRouter(facade, eventBus, ids, logger, httpMetrics)
	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddress,
		Handler: router,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Info("REST API listening", "address", cfg.Server.ListenAddress)
		if cfg.Server.TLS.Enabled {
			serverErrChan <- httpServer.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
			return
		}
		serverErrChan <- httpServer.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("Server exited with an error", "error", err)
		}
	case <-quit:
		logger.Info("Shutdown signal received. Stopping server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
	}

	if mqttSource != nil {
		mqttSource.Close()
	}
	if debugServer != nil {
		debugServer.Stop()
	}
	systemCollector.Stop()
	persistBridge.Stop()
	if err := facade.Close(); err != nil {
		logger.Error("Failed to close database facade", "error", err)
	}
	tracerCleanup()

	logger.Info("Application exited gracefully.")
}
