// Package main is the entry point for the Sidewalk Timeline tile server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/sidewalk-timeline/server/internal/api"
	"github.com/sidewalk-timeline/server/internal/cache"
	"github.com/sidewalk-timeline/server/internal/config"
	"github.com/sidewalk-timeline/server/internal/data/tiles"
	"github.com/sidewalk-timeline/server/internal/render"
	"github.com/sidewalk-timeline/server/internal/service"
)

func main() {
	configPath := flag.String("config", "config/server.yaml", "Path to configuration file")
	flag.Parse()

	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("config", ".env"))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	config.ApplyEnv(cfg)

	if err := config.InitLogger(cfg.Log); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zap.L().Sync() }()

	if err := run(cfg); err != nil {
		zap.L().Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config) error {
	zap.L().Info("starting sidewalk timeline server",
		zap.Int("port", cfg.Server.Port), zap.String("data_root", cfg.Data.Root))

	reader, err := tiles.NewReader(cfg.Data.Root, cfg.Data.ImageryExt)
	if err != nil {
		return err
	}
	defer reader.Close()
	zap.L().Info("tile catalog loaded",
		zap.Int("tiles", len(reader.Tiles())), zap.Int("positioned", reader.Index().Len()))

	cacheManager, err := cache.NewManager(cache.Config{
		ImageCacheSizeMB: cfg.Cache.ImageSizeMB,
		ImageTTL:         time.Duration(cfg.Cache.ImageTTLMinutes) * time.Minute,
		NetworkTiles:     cfg.Cache.NetworkTiles,
		QueryEntries:     cfg.Cache.QueryEntries,
		RedisAddr:        cfg.Cache.RedisAddr,
		RedisPassword:    cfg.Cache.RedisPassword,
		RedisDB:          cfg.Cache.RedisDB,
	})
	if err != nil {
		return err
	}
	defer cacheManager.Close()

	renderCfg := render.Config{
		TileSize:    cfg.Render.TileSize,
		Format:      cfg.Render.Format,
		WebPQuality: cfg.Render.WebPQuality,
		LineWidth:   cfg.Render.LineWidth,
		Concurrency: cfg.Render.Concurrency,
	}
	svc := service.NewTimelineService(service.TimelineServiceConfig{
		Reader:      reader,
		Cache:       cacheManager,
		Stitcher:    render.NewStitcher(renderCfg, reader),
		Overlay:     render.NewOverlayRenderer(renderCfg),
		Concurrency: cfg.Render.Concurrency,
	})

	jobManager, err := api.NewJobManager(api.JobManagerConfig{
		MaxConcurrent: cfg.Jobs.MaxConcurrent,
		SQLitePath:    cfg.Jobs.SQLitePath,
		RetentionDays: cfg.Jobs.RetentionDays,
		CleanupPeriod: 1 * time.Hour,
	})
	if err != nil {
		return err
	}
	jobManager.Executor = api.PrefetchExecutor(svc)
	jobManager.Start()
	defer jobManager.Stop()
	zap.L().Info("prefetch job manager started",
		zap.Int("max_concurrent", cfg.Jobs.MaxConcurrent), zap.String("sqlite", cfg.Jobs.SQLitePath))

	router := api.NewRouter(api.RouterConfig{
		Service:     svc,
		CORSOrigins: cfg.Server.CORSOrigins,
		JobManager:  jobManager,
		Title:       cfg.Server.Title,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("server forced to shutdown", zap.Error(err))
	}

	zap.L().Info("server stopped")
	return nil
}
