package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/pozuelo/bioscan/internal/api"
	"github.com/pozuelo/bioscan/internal/assistant"
	"github.com/pozuelo/bioscan/internal/cache"
	"github.com/pozuelo/bioscan/internal/config"
	"github.com/pozuelo/bioscan/internal/enrich"
	"github.com/pozuelo/bioscan/internal/plantnet"
	pgstore "github.com/pozuelo/bioscan/internal/store"
	"github.com/pozuelo/bioscan/internal/wiki"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting BIOSCAN...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/bioscan.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Lookup cache: Redis when configured, in-process otherwise.
	var (
		lookupCache cache.Cache
		redisCache  *cache.Redis
	)
	if cfg.Database.Redis.URL != "" {
		rc, rErr := cache.NewRedis(cfg.Database.Redis.URL, cfg.Cache.TTL(), logger)
		if rErr != nil {
			logger.Warn("Redis unavailable, falling back to in-memory cache", zap.Error(rErr))
		} else {
			redisCache = rc
			lookupCache = rc
			logger.Info("Redis cache connected")
		}
	}
	if lookupCache == nil {
		lookupCache = cache.NewMemory(cfg.Cache.TTL())
	}

	// Persistence for accounts, albums and saved plants.
	var store *pgstore.Store
	if cfg.Database.Postgres.DSN != "" {
		st, pgErr := pgstore.New(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without collections", zap.Error(pgErr))
		} else {
			if mErr := st.Migrate(context.Background(), "migrations"); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			store = st
		}
	}

	// Upstream adapters.
	classifier := plantnet.NewClient(cfg.PlantNet.Endpoint, cfg.PlantNet.APIKey, logger)
	wikipedia := wiki.NewWikipedia(cfg.Wikipedia.Lang, lookupCache, logger)
	wikidata := wiki.NewWikidata(cfg.Wikidata.Endpoint, cfg.Wikidata.UserAgent, lookupCache, logger)
	enricher := enrich.NewService(wikipedia, wikidata, lookupCache, logger)
	botanist := assistant.NewService(assistant.Config{
		Endpoint: cfg.Assistant.Endpoint,
		APIKey:   cfg.Assistant.APIKey,
		Model:    cfg.Assistant.Model,
		Referer:  cfg.Assistant.Referer,
		Title:    cfg.Assistant.Title,
	}, lookupCache, logger)

	// Build HTTP handler
	handler := api.NewHandler(classifier, enricher, botanist, store, logger)

	port := fmt.Sprintf("%d", cfg.Server.Port)
	if port == "0" {
		port = "3013"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("BIOSCAN listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down BIOSCAN...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	if store != nil {
		store.Close()
	}
	if redisCache != nil {
		redisCache.Close()
	}
}
