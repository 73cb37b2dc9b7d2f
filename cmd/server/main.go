package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yegors/metarboard/internal/api"
	"github.com/yegors/metarboard/internal/config"
	"github.com/yegors/metarboard/internal/mqtt"
	"github.com/yegors/metarboard/internal/weather"
	"github.com/yegors/metarboard/internal/websocket"
	"github.com/yegors/metarboard/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	configSource := cfg.Path
	if configSource == "" {
		configSource = "built-in defaults"
	}
	log.Info("Starting METAR board server",
		logger.String("version", Version),
		logger.String("config", configSource),
		logger.Strings("stations", cfg.AllStations()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Weather service
	weatherConfig := weather.Config{
		Stations:            cfg.AllStations(),
		METARBaseURL:        cfg.METAR.BaseURL,
		METARRequestTimeout: time.Duration(cfg.METAR.RequestTimeoutSeconds) * time.Second,
		ATISURL:             cfg.ATIS.URL,
		ATISInterval:        time.Duration(cfg.ATIS.RefreshIntervalSeconds) * time.Second,
		ATISRequestTimeout:  time.Duration(cfg.ATIS.RequestTimeoutSeconds) * time.Second,
	}
	store := weather.NewStore(weatherConfig.Stations, log)
	client := weather.NewClient(weatherConfig, log)
	weatherService := weather.NewService(weatherConfig, client, store, log)

	// API handler, also the source of websocket snapshots
	var handler *api.Handler
	wsServer := websocket.NewServer(func() map[string]any {
		board := handler.Board()
		return map[string]any{
			"data_error": board.DataError,
			"groups":     board.Groups,
		}
	}, log)
	handler = api.NewHandler(weatherService, wsServer, cfg, log)

	go wsServer.Run(ctx)
	weatherService.AddNotifier(wsServer)

	// Optional MQTT mirror
	var publisher *mqtt.Publisher
	if cfg.MQTT.Enabled {
		publisher = mqtt.NewPublisher(cfg.MQTT, store, log)
		connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := publisher.Connect(connectCtx); err != nil {
			// Auto-reconnect keeps trying in the background
			log.Warn("MQTT broker not reachable yet", logger.Error(err))
		}
		connectCancel()
		publisher.Start()
		weatherService.AddNotifier(publisher)
	} else {
		log.Info("MQTT publishing disabled in configuration")
	}

	// Start weather service
	if err := weatherService.Start(); err != nil {
		log.Error("Failed to start weather service", logger.Error(err))
		os.Exit(1)
	}

	// Create API router
	router := api.NewRouter(handler, wsServer.HandleConnection, cfg.Server.CORSAllowedOrigins, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", logger.String("addr", server.Addr), logger.Error(err))
			cancel()
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")

	// Stop background services first
	log.Info("Stopping weather service...")
	weatherService.Stop()
	log.Info("Weather service stopped.")

	if publisher != nil {
		publisher.Disconnect()
	}

	// Cancel the main context, closing websocket clients
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	}

	log.Info("Server fully stopped")
}
