package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"flight-dashboard/internal/cache"
	"flight-dashboard/internal/config"
	"flight-dashboard/internal/handlers"
	"flight-dashboard/internal/middleware"
	"flight-dashboard/internal/mirror"
	"flight-dashboard/internal/schiphol"
	"flight-dashboard/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Configure logger
	logger, err := setupLogger(&cfg.Logger)
	if err != nil {
		fmt.Printf("Failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting Flight Dashboard Server",
		zap.String("version", "1.0.0"),
		zap.String("address", cfg.Server.GetAddress()),
		zap.String("airline", cfg.Pipeline.Airline),
	)

	// Upstream client
	client, err := schiphol.NewClient(cfg.Upstream, logger.Named("schiphol"))
	if err != nil {
		logger.Fatal("Failed to initialize upstream client", zap.Error(err))
	}

	// Optional Redis mirror
	opts := service.Options{
		Config: &cfg.Pipeline,
		Cache:  &cfg.Cache,
	}
	var health handlers.Pinger
	if cfg.Mirror.Enabled {
		m, err := mirror.NewRedisMirror(&cfg.Mirror, logger.Named("mirror"))
		if err != nil {
			logger.Fatal("Failed to initialize Redis mirror", zap.Error(err))
		}
		defer func() { _ = m.Close() }()

		opts.Sink = m
		opts.Snapshot = m
		health = m
		logger.Info("Redis mirror connection established successfully")
	}

	svc := service.NewFlightService(client, opts, logger.Named("service"))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if err := svc.Start(ctx); err != nil && !errors.Is(err, cache.ErrAlreadyStarted) {
		logger.Fatal("Failed to start background refresh", zap.Error(err))
	}

	// Configure Gin
	if cfg.Logger.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middlewares
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger.Named("http")))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS())
	router.Use(middleware.RateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst))

	flightHandler := handlers.NewFlightHandler(svc, health, logger.Named("handlers"))

	// Health and metrics routes
	router.GET("/health", flightHandler.Health)
	router.GET("/ping", flightHandler.Ping)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	flightHandler.Register(router.Group("/api/v1"))

	// Configure HTTP server
	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	stop()
	svc.Stop()

	logger.Info("Server exited")
}

// setupLogger configures the logger according to the configuration
func setupLogger(cfg *config.LoggerConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding: cfg.Format,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{cfg.OutputPath},
		ErrorOutputPaths: []string{cfg.OutputPath},
	}

	return config.Build()
}
