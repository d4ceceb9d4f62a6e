// Command seed runs one ingestion pass over the configured source layers
// and prints the run summary as JSON. Successive invocations resume where
// the previous run stopped.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"

	"github.com/parcelworks/gis-enrichment-service/internal/adapter/arcgis"
	"github.com/parcelworks/gis-enrichment-service/internal/adapter/kafkalog"
	"github.com/parcelworks/gis-enrichment-service/internal/adapter/postgres"
	"github.com/parcelworks/gis-enrichment-service/internal/config"
	"github.com/parcelworks/gis-enrichment-service/internal/domain"
	"github.com/parcelworks/gis-enrichment-service/internal/observability"
	"github.com/parcelworks/gis-enrichment-service/internal/seeder"
)

func main() {
	layerKey := flag.String("layer", "", "ingest only the layer with this key")
	jurisdiction := flag.String("jurisdiction", "", "ingest only layers for this jurisdiction")
	category := flag.String("category", "", "ingest only layers feeding this category")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required for ingestion")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	var sink domain.CallSink
	var kafkaSink *kafkalog.Sink
	if cfg.CallLogEnabled {
		kafkaSink = kafkalog.NewSink(cfg.KafkaBrokers, cfg.CallLogTopic, logger, metrics)
		sink = kafkaSink
	} else {
		sink = observability.NewLogSink(logger, metrics)
	}

	layers, err := seeder.LoadLayers(cfg.LayersPath, cfg.SeedPageSize)
	if err != nil {
		logger.Error("failed to load ingestion layers", "error", err)
		os.Exit(1)
	}
	layers = seeder.Filter(layers, *layerKey, *jurisdiction, *category)
	if len(layers) == 0 {
		logger.Error("no layers match the requested filter",
			"layer", *layerKey, "jurisdiction", *jurisdiction, "category", *category)
		os.Exit(1)
	}

	store, err := postgres.Connect(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect to canonical store", "error", err)
		os.Exit(1)
	}

	source := arcgis.NewClient(cfg.QueryTimeout, cfg.RetryAttempts, cfg.RetryDelays, sink, logger)
	s := seeder.New(source, store, cfg.SeedTimeBudget, clockwork.NewRealClock(), sink, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary := s.Run(ctx, layers)

	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			logger.Error("kafka sink close error", "error", err)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		logger.Error("failed to encode summary", "error", err)
		os.Exit(1)
	}

	if summary.RecordsFailed > 0 && summary.RecordsInserted == 0 {
		os.Exit(1)
	}
}
