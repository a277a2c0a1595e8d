package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	geminiadapter "github.com/kisansahayak/agrimonitor/internal/adapters/gemini"
	"github.com/kisansahayak/agrimonitor/internal/adapters/http"
	minioadapter "github.com/kisansahayak/agrimonitor/internal/adapters/minio"
	natsadapter "github.com/kisansahayak/agrimonitor/internal/adapters/nats"
	"github.com/kisansahayak/agrimonitor/internal/adapters/openweather"
	"github.com/kisansahayak/agrimonitor/internal/adapters/postgres"
	"github.com/kisansahayak/agrimonitor/internal/adapters/valkey"
	"github.com/kisansahayak/agrimonitor/internal/core/ports"
	"github.com/kisansahayak/agrimonitor/internal/core/usecases"
	"github.com/kisansahayak/agrimonitor/internal/pkg/config"
	"github.com/kisansahayak/agrimonitor/internal/pkg/geospatial"
	"github.com/kisansahayak/agrimonitor/internal/pkg/logging"
	"github.com/kisansahayak/agrimonitor/internal/pkg/telemetry"
	"github.com/kisansahayak/agrimonitor/internal/pkg/ttlcache"
)

func main() {
	cfg, err := config.Load("agrimonitor-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, "agrimonitor-api")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	go db.ReportPoolStats(ctx, 15*time.Second)

	// Pending image stash
	var pending ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable, failed images will not be kept for retry", "error", err)
	} else {
		defer cache.Close()
		pending = cache
	}

	// Events
	var events ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		events = pub
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	} else {
		defer natsConn.Close()
	}

	// Image storage
	var blobs ports.BlobStore
	store, err := minioadapter.New(ctx, minioadapter.Config{
		Endpoint:  cfg.Minio.Endpoint,
		AccessKey: cfg.Minio.AccessKey,
		SecretKey: cfg.Minio.SecretKey,
		Bucket:    cfg.Minio.Bucket,
		UseSSL:    cfg.Minio.UseSSL,
		PublicURL: cfg.Minio.PublicURL,
	})
	if err != nil {
		slog.Warn("blob store unavailable, images will be marked attach_failed", "error", err)
	} else {
		blobs = store
	}

	// Crop classifier
	var classifier ports.Classifier
	if cfg.Gemini.APIKey == "" {
		slog.Warn("gemini api key not set, images will get the unknown diagnosis")
	} else {
		gc, err := geminiadapter.New(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, time.Duration(cfg.Gemini.TimeoutSeconds)*time.Second)
		if err != nil {
			slog.Warn("gemini client unavailable", "error", err)
		} else {
			classifier = gc
		}
	}

	// Weather
	var weatherClient ports.WeatherClient
	if cfg.Weather.APIKey == "" {
		slog.Warn("weather api key not set, field details will carry weather errors")
	} else {
		weatherClient = openweather.New(openweather.Options{
			APIKey:  cfg.Weather.APIKey,
			BaseURL: cfg.Weather.BaseURL,
			Timeout: time.Duration(cfg.Weather.TimeoutSeconds) * time.Second,
			RPS:     cfg.Weather.RPS,
			Burst:   cfg.Weather.Burst,
		})
	}
	weatherCache := ttlcache.New[json.RawMessage](time.Duration(cfg.Weather.TTLSeconds) * time.Second)

	// Repos
	fieldRepo := postgres.NewFieldRepo(db)
	readingRepo := postgres.NewReadingRepo(db)

	// Use cases
	assetSvc := usecases.NewAssetService(readingRepo, blobs, pending, cfg.Minio.Folder,
		time.Duration(cfg.Assets.PendingTTLHours)*time.Hour)
	weatherSvc := usecases.NewWeatherService(weatherClient, weatherCache)
	tiles := geospatial.NewTileURLBuilder(cfg.Tiles.URLTemplate, cfg.Tiles.Zoom)
	fieldSvc := usecases.NewFieldService(fieldRepo, readingRepo, assetSvc, weatherSvc, tiles)
	readingSvc := usecases.NewReadingService(readingRepo, fieldRepo, classifier, assetSvc, events)

	bodyLimit := cfg.Server.BodyLimitMB * 1024 * 1024
	deps := &http.Dependencies{
		Fields:        fieldSvc,
		Readings:      readingSvc,
		NATS:          natsConn,
		DB:            db,
		Cache:         cache,
		MaxImageBytes: bodyLimit,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    bodyLimit,
		AppName:      "Agrimonitor API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
