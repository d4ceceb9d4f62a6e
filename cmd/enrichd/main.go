package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/parcelworks/gis-enrichment-service/internal/adapter/arcgis"
	"github.com/parcelworks/gis-enrichment-service/internal/adapter/httpapi"
	"github.com/parcelworks/gis-enrichment-service/internal/adapter/kafkalog"
	"github.com/parcelworks/gis-enrichment-service/internal/adapter/overpass"
	"github.com/parcelworks/gis-enrichment-service/internal/adapter/postgres"
	"github.com/parcelworks/gis-enrichment-service/internal/adapter/rediscache"
	"github.com/parcelworks/gis-enrichment-service/internal/config"
	"github.com/parcelworks/gis-enrichment-service/internal/domain"
	"github.com/parcelworks/gis-enrichment-service/internal/enrich"
	"github.com/parcelworks/gis-enrichment-service/internal/observability"
	"github.com/parcelworks/gis-enrichment-service/internal/seeder"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	// External call sink: Kafka when brokers are configured, structured
	// logs otherwise.
	var sink domain.CallSink
	var kafkaSink *kafkalog.Sink
	if cfg.CallLogEnabled {
		kafkaSink = kafkalog.NewSink(cfg.KafkaBrokers, cfg.CallLogTopic, logger, metrics)
		sink = kafkaSink
		logger.Info("kafka call log enabled", "topic", cfg.CallLogTopic, "brokers", cfg.KafkaBrokers)
	} else {
		sink = observability.NewLogSink(logger, metrics)
		logger.Info("kafka call log disabled, recording calls to logs")
	}

	catalog, err := enrich.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		logger.Error("failed to load jurisdiction catalog", "error", err)
		os.Exit(1)
	}
	layers, err := seeder.LoadLayers(cfg.LayersPath, cfg.SeedPageSize)
	if err != nil {
		logger.Error("failed to load ingestion layers", "error", err)
		os.Exit(1)
	}

	arcgisClient := arcgis.NewClient(cfg.QueryTimeout, cfg.RetryAttempts, cfg.RetryDelays, sink, logger)

	var secondary enrich.SecondarySource
	if cfg.OverpassEnabled {
		secondary = overpass.NewClient(cfg.OverpassURL, cfg.OverpassTimeout, sink, logger)
		logger.Info("overpass fallback enabled", "url", cfg.OverpassURL)
	} else {
		logger.Info("overpass fallback disabled")
	}

	var enricher enrich.Enricher = enrich.NewOrchestrator(catalog, arcgisClient, secondary, logger, metrics)

	var redisClient *redis.Client
	if cfg.CacheEnabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		enricher = rediscache.NewCachedEnricher(enricher, redisClient, cfg.CacheTTL, logger, metrics)
		logger.Info("redis result cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
	}

	// Canonical store and ingestion are optional; without DATABASE_URL the
	// service serves enrichment only.
	var ingestor httpapi.Ingestor
	var ready httpapi.ReadinessChecker
	if cfg.DatabaseURL != "" {
		store, err := postgres.Connect(cfg.DatabaseURL, logger)
		if err != nil {
			logger.Error("failed to connect to canonical store", "error", err)
			os.Exit(1)
		}
		ready = store
		ingestor = seeder.New(arcgisClient, store, cfg.SeedTimeBudget, clockwork.NewRealClock(), sink, logger, metrics)
		logger.Info("canonical store connected, ingestion enabled")
	} else {
		logger.Info("DATABASE_URL not set, ingestion disabled")
	}

	srv := httpapi.NewServer(cfg.HTTPAddr, enricher, ingestor, layers, ready, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			logger.Error("kafka sink close error", "error", err)
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
