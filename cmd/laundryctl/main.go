package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"laundry-control-backend/config"
	"laundry-control-backend/internal/api"
	"laundry-control-backend/internal/cloud"
	"laundry-control-backend/internal/controller"
	"laundry-control-backend/internal/db"
	"laundry-control-backend/internal/discovery"
	"laundry-control-backend/internal/local"
	"laundry-control-backend/internal/machine"
	"laundry-control-backend/internal/notification"
	"laundry-control-backend/internal/store"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
	} else if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load configuration")
	}

	setupLogging(cfg.Log)
	log.Info().Str("path", configPath).Msg("Configuration loaded")

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	appStore := store.NewGormStore(gormDB)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Push notifications are optional
	var webpushOptions *webpush.Options
	var hub *api.Hub
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions)
		pool.Start(ctx)
		hub = api.NewHub(cfg.Server.EventCacheTTL, pool)
		log.Info().Int("workers", cfg.WorkerPool.Size).Msg("Push notifications enabled")
	} else {
		hub = api.NewHub(cfg.Server.EventCacheTTL, nil)
		log.Warn().Msg("VAPID keys are not configured; push notifications disabled")
	}

	cloudClient := cloud.NewClient(cloud.Options{
		AuthURL:     cfg.Cloud.AuthURL,
		APIURL:      cfg.Cloud.APIURL,
		Timeout:     cfg.Cloud.Timeout,
		AuthTimeout: cfg.Cloud.AuthTimeout,
	})

	finder := &discovery.Service{
		BroadcastAddr: cfg.Discovery.BroadcastAddr,
		Probe:         cfg.Discovery.Probe,
		Magic:         cfg.Discovery.Magic,
		Window:        cfg.Discovery.Window,
		BufferSize:    cfg.Discovery.BufferSize,
	}

	ctrl := controller.New(controller.Config{
		PollInterval:         cfg.Controller.PollInterval,
		QuickRefreshDelay:    cfg.Controller.QuickRefreshDelay,
		LocalRefreshInterval: cfg.Controller.LocalRefreshInterval,
		CloudRefreshInterval: cfg.Controller.CloudRefreshInterval,
		CommandBuffer:        cfg.Controller.CommandBuffer,
	}, controller.Deps{
		Emitter:     hub,
		Preferences: appStore,
		Cloud:       cloudClient,
		Discovery:   finder,
		DialLocal: func(ctx context.Context, address string) machine.Connection {
			return local.Dial(ctx, address, local.Options{Timeout: cfg.Local.Timeout})
		},
		DialCloud: func(ctx context.Context, token, deviceID string) machine.Connection {
			return cloud.Dial(ctx, cloudClient, token, deviceID, cloud.ConnectionOptions{
				IngestionWindow: cfg.Cloud.IngestionWindow,
			})
		},
	})

	go hub.Run(ctx)
	go func() {
		if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Controller stopped")
		}
	}()

	handler := api.NewHandler(appStore, webpushOptions, hub, ctrl)
	router := api.NewRouter(handler, api.RouterOptions{
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		sqlDB.Close()
	}

	log.Info().Msg("Server gracefully stopped")
}

func setupLogging(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Level).Msg("Unknown log level; using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
