// Package seeder implements the incremental bulk ingestion pipeline: it
// walks an external dataset page by page, maps each feature into the
// canonical schema, and inserts records until the run budget is spent.
//
// Resume is count-based: the starting page offset is the number of
// canonical records already attributed to the layer. No cursor table
// exists; a partial run simply leaves a higher count behind, and the next
// invocation continues from there. This is idempotent by construction as
// long as the source returns features in stable order for fixed paging
// parameters, which is why every page request carries an explicit order
// field. Semantics are at-least-once, not exactly-once.
package seeder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/parcelworks/gis-enrichment-service/internal/domain"
	"github.com/parcelworks/gis-enrichment-service/internal/observability"
)

// FeatureSource fetches one page of raw features for a layer. Implemented
// by the arcgis adapter.
type FeatureSource interface {
	FetchPage(ctx context.Context, layer domain.LayerConfig, offset, pageSize int) ([]domain.SourceFeature, error)
}

// CanonicalStore persists canonical records and reports per-layer counts.
// Implemented by the postgres adapter.
type CanonicalStore interface {
	// CountByLayer returns how many canonical records exist for a layer
	// key in its canonical table, across all dataset versions. This count
	// is the resume offset.
	CountByLayer(ctx context.Context, layerKey, table string) (int64, error)

	// Insert persists one canonical record.
	Insert(ctx context.Context, rec domain.CanonicalRecord) error
}

// LayerResult summarizes one layer's portion of an ingestion invocation.
type LayerResult struct {
	LayerKey        string        `json:"layer_key"`
	DatasetVersion  string        `json:"dataset_version"`
	StartOffset     int64         `json:"start_offset"`
	RecordsFetched  int           `json:"records_fetched"`
	RecordsInserted int           `json:"records_inserted"`
	RecordsFailed   int           `json:"records_failed"`
	ReducedWrites   int           `json:"reduced_writes"`
	Duration        time.Duration `json:"-"`
	DurationMS      int64         `json:"duration_ms"`

	// Success means the run moved the layer forward (records_inserted > 0).
	// A run that finds nothing left to ingest is not an error, just not a
	// success.
	Success bool     `json:"success"`
	Stopped string   `json:"stopped,omitempty"` // budget | cap | exhausted | error
	Flags   []string `json:"flags,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Summary aggregates an ingestion invocation across layers.
type Summary struct {
	LayersProcessed int           `json:"layers_processed"`
	RecordsInserted int           `json:"records_inserted"`
	RecordsFailed   int           `json:"records_failed"`
	Duration        time.Duration `json:"-"`
	DurationMS      int64         `json:"duration_ms"`
	PerLayer        []LayerResult `json:"per_layer_results"`
}

// Seeder runs bounded ingestion passes over configured layers.
type Seeder struct {
	source  FeatureSource
	store   CanonicalStore
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
	sink    domain.CallSink

	// timeBudget bounds one invocation's wall clock; the run stops cleanly
	// at the next page boundary after it is spent.
	timeBudget time.Duration
}

// New creates a Seeder. A nil clock uses real time.
func New(source FeatureSource, store CanonicalStore, timeBudget time.Duration, clk clockwork.Clock, sink domain.CallSink, logger *slog.Logger, metrics *observability.Metrics) *Seeder {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Seeder{
		source:     source,
		store:      store,
		clock:      clk,
		logger:     logger,
		metrics:    metrics,
		sink:       sink,
		timeBudget: timeBudget,
	}
}

// Run ingests each layer in turn within a shared wall-clock budget. A fatal
// error in one layer stops that layer only; remaining layers still run.
func (s *Seeder) Run(ctx context.Context, layers []domain.LayerConfig) Summary {
	start := s.clock.Now()
	deadline := start.Add(s.timeBudget)

	s.metrics.IngestionRunning.Set(1)
	defer s.metrics.IngestionRunning.Set(0)

	summary := Summary{}
	for _, layer := range layers {
		if !s.clock.Now().Before(deadline) {
			s.logger.Info("ingestion budget exhausted before layer", "layer", layer.Key)
			break
		}
		result := s.runLayer(ctx, layer, deadline)
		summary.PerLayer = append(summary.PerLayer, result)
		summary.LayersProcessed++
		summary.RecordsInserted += result.RecordsInserted
		summary.RecordsFailed += result.RecordsFailed
	}

	summary.Duration = s.clock.Now().Sub(start)
	summary.DurationMS = summary.Duration.Milliseconds()
	s.metrics.SeederRunDuration.Observe(summary.Duration.Seconds())

	s.logger.Info("ingestion run complete",
		"layers", summary.LayersProcessed,
		"inserted", summary.RecordsInserted,
		"failed", summary.RecordsFailed,
		"duration_ms", summary.DurationMS,
	)
	return summary
}

// runLayer ingests one layer until the page is short (source exhausted),
// the record cap is hit, the budget expires, or a fetch error stops it.
func (s *Seeder) runLayer(ctx context.Context, layer domain.LayerConfig, deadline time.Time) LayerResult {
	layerStart := s.clock.Now()
	version := domain.DatasetVersion(layer.Key)

	result := LayerResult{
		LayerKey:       layer.Key,
		DatasetVersion: version,
	}

	count, err := s.store.CountByLayer(ctx, layer.Key, layer.Table)
	if err != nil {
		result.Stopped = "error"
		result.Error = fmt.Sprintf("count existing records: %v", err)
		return s.finishLayer(ctx, layerStart, result)
	}
	result.StartOffset = count
	offset := int(count)

	s.logger.Info("layer ingestion starting",
		"layer", layer.Key, "offset", offset, "dataset_version", version)

	for {
		if !s.clock.Now().Before(deadline) {
			result.Stopped = "budget"
			break
		}
		processed := result.RecordsInserted + result.RecordsFailed
		if processed >= layer.MaxRecordsPerRun {
			result.Stopped = "cap"
			break
		}
		// The last page shrinks to whatever the cap still allows, so a run
		// never processes more records than configured.
		pageSize := layer.PageSize
		if remaining := layer.MaxRecordsPerRun - processed; remaining < pageSize {
			pageSize = remaining
		}

		features, err := s.source.FetchPage(ctx, layer, offset, pageSize)
		if err != nil {
			// A persistent source failure stops this layer's run early but
			// must not abort the invocation.
			result.Stopped = "error"
			result.Error = err.Error()
			s.logger.Error("layer fetch failed", "layer", layer.Key, "offset", offset, "error", err)
			break
		}
		if len(features) == 0 {
			result.Stopped = "exhausted"
			break
		}

		for _, feat := range features {
			result.RecordsFetched++
			tier, err := s.insertFeature(ctx, layer, version, feat)
			if err != nil {
				// Per-feature isolation: count and continue.
				result.RecordsFailed++
				s.metrics.SeederRecordsFailed.WithLabelValues(layer.Key).Inc()
				s.logger.Warn("feature insert failed", "layer", layer.Key, "error", err)
				continue
			}
			result.RecordsInserted++
			s.metrics.SeederRecordsInserted.WithLabelValues(layer.Key).Inc()
			if tier == "reduced" {
				result.ReducedWrites++
			}
		}

		offset += len(features)
		if len(features) < pageSize {
			result.Stopped = "exhausted"
			break
		}
	}

	result.Success = result.RecordsInserted > 0
	if result.ReducedWrites > 0 {
		result.Flags = append(result.Flags, domain.FlagReducedRecordWrite)
	}
	return s.finishLayer(ctx, layerStart, result)
}

// insertFeature maps one source feature and persists it using the tiered
// write strategy: full record first, reduced core-field record on failure.
// Returns the tier that succeeded ("full" or "reduced").
func (s *Seeder) insertFeature(ctx context.Context, layer domain.LayerConfig, version string, feat domain.SourceFeature) (string, error) {
	geom, _, err := domain.NormalizeGeometry(feat.Geometry, layer.BoundingBox)
	if err != nil {
		return "", fmt.Errorf("normalize geometry: %w", err)
	}

	rec := domain.CanonicalRecord{
		LayerKey:       layer.Key,
		Table:          layer.Table,
		Category:       layer.Category,
		Jurisdiction:   layer.Jurisdiction,
		DatasetVersion: version,
		GeometryWKT:    domain.GeometryWKT(geom),
		Fields:         domain.MapFields(feat.Attributes, layer.Mappings, layer.Constants),
		WriteTier:      "full",
	}

	fullErr := s.store.Insert(ctx, rec)
	if fullErr == nil {
		return "full", nil
	}

	if len(layer.CoreFields) == 0 {
		return "", fullErr
	}

	// Tiered retry: keep the higher-priority subset rather than losing the
	// record entirely, and report which tier landed.
	reduced := rec
	reduced.Fields = rec.ReducedFields(layer.CoreFields)
	reduced.WriteTier = "reduced"
	if err := s.store.Insert(ctx, reduced); err != nil {
		return "", errors.Join(fullErr, err)
	}
	s.logger.Warn("full write failed, reduced record persisted",
		"layer", layer.Key, "error", fullErr)
	return "reduced", nil
}

// finishLayer stamps duration, reports the structured operation record to
// the observability sink, and logs the layer outcome.
func (s *Seeder) finishLayer(ctx context.Context, start time.Time, result LayerResult) LayerResult {
	result.Duration = s.clock.Now().Sub(start)
	result.DurationMS = result.Duration.Milliseconds()

	if s.sink != nil {
		s.sink.Record(ctx, domain.NewCallRecord(
			"seeder",
			result.LayerKey,
			result.Duration,
			result.Error == "",
			result.Error,
		))
	}

	s.logger.Info("layer ingestion finished",
		"layer", result.LayerKey,
		"dataset_version", result.DatasetVersion,
		"start_offset", result.StartOffset,
		"fetched", result.RecordsFetched,
		"inserted", result.RecordsInserted,
		"failed", result.RecordsFailed,
		"reduced_writes", result.ReducedWrites,
		"stopped", result.Stopped,
		"success", result.Success,
	)
	return result
}
