// Package enrich sequences external spatial queries for a single site and
// folds the per-category outcomes into one enrichment result.
package enrich

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/parcelworks/gis-enrichment-service/internal/domain"
	"github.com/parcelworks/gis-enrichment-service/internal/observability"
)

// Querier issues one category query for one site. Implemented by the arcgis
// adapter.
type Querier interface {
	QuerySite(ctx context.Context, svc domain.CategoryService, site domain.Geo, region domain.Envelope) ([]domain.UtilityFeature, []string, error)
}

// SecondarySource provides lower-precision crowd-sourced features, used only
// when every primary category comes back empty. Implemented by the overpass
// adapter.
type SecondarySource interface {
	Fetch(ctx context.Context, svc domain.CategoryService, site domain.Geo) ([]domain.UtilityFeature, error)
}

// Enricher is the inbound contract: one request, one result, never an
// in-band panic or raw error for category failures.
type Enricher interface {
	Enrich(ctx context.Context, req Request) (domain.EnrichmentResult, error)
}

// Request is one enrichment request.
type Request struct {
	RequestID        string     `json:"request_id,omitempty"`
	Coordinate       domain.Geo `json:"coordinate"`
	JurisdictionHint string     `json:"jurisdiction_hint,omitempty"`
}

// FlagJurisdictionNotConfigured marks a request whose coordinate falls
// outside every configured jurisdiction.
const FlagJurisdictionNotConfigured = "jurisdiction_not_configured"

// maxConcurrentCategories bounds the category fan-out per request.
// Categories are independent; each goroutine owns its result slot, so no
// shared mutable state crosses goroutines.
const maxConcurrentCategories = 4

// Orchestrator queries every configured category for a site and aggregates
// the outcomes.
type Orchestrator struct {
	catalog   *Catalog
	querier   Querier
	secondary SecondarySource // nil disables the fallback
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewOrchestrator creates the per-site enrichment orchestrator. Pass a nil
// secondary source to disable the crowd-sourced fallback.
func NewOrchestrator(catalog *Catalog, querier Querier, secondary SecondarySource, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{
		catalog:   catalog,
		querier:   querier,
		secondary: secondary,
		logger:    logger,
		metrics:   metrics,
	}
}

// Enrich runs the full enrichment for one site. It always returns a result
// object; category failures surface as classified flags, never as an error.
// The error return is reserved for invalid requests (unresolvable
// jurisdiction).
func (o *Orchestrator) Enrich(ctx context.Context, req Request) (domain.EnrichmentResult, error) {
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	site := domain.SiteCoordinate{Geo: req.Coordinate}

	jur, err := o.catalog.Resolve(req.JurisdictionHint, req.Coordinate)
	if err != nil {
		o.metrics.EnrichmentRequests.WithLabelValues(string(domain.StatusFailed)).Inc()
		return domain.EnrichmentResult{
			RequestID:  requestID,
			Site:       site,
			Status:     domain.StatusFailed,
			Flags:      []string{FlagJurisdictionNotConfigured},
			Categories: map[string]domain.CategoryQueryResult{},
		}, err
	}

	if !jur.Envelope.Contains(req.Coordinate) {
		site.Suspect = true
	}

	results := o.queryCategories(ctx, jur, req.Coordinate)

	outcomes := make([]domain.CategoryOutcome, len(results))
	for i, r := range results {
		outcomes[i] = r.Outcome()
	}
	status := domain.DeriveStatus(outcomes)

	// Secondary-source fallback: all categories succeeded yet nothing was
	// found. Merge any crowd-sourced hits without upgrading the already
	// computed classification.
	if o.secondary != nil && domain.AllEmptySuccesses(outcomes) {
		o.mergeSecondary(ctx, jur, req.Coordinate, results)
	}

	categories := make(map[string]domain.CategoryQueryResult, len(results))
	flagSet := make(map[string]struct{})
	if site.Suspect {
		flagSet[domain.FlagSuspectCoordinates] = struct{}{}
	}
	for _, r := range results {
		categories[r.Category] = r
		for _, f := range r.Flags {
			flagSet[f] = struct{}{}
		}
	}
	if domain.AllEmptySuccesses(outcomes) {
		flagSet[domain.FlagNoFeaturesFound] = struct{}{}
	}

	flags := make([]string, 0, len(flagSet))
	for f := range flagSet {
		flags = append(flags, f)
	}
	sort.Strings(flags)

	o.metrics.EnrichmentRequests.WithLabelValues(string(status)).Inc()
	o.logger.Info("enrichment complete",
		"request_id", requestID,
		"jurisdiction", jur.Key,
		"status", status,
		"categories", len(results),
	)

	return domain.EnrichmentResult{
		RequestID:    requestID,
		Site:         site,
		Jurisdiction: jur.Key,
		Status:       status,
		Flags:        flags,
		Categories:   categories,
	}, nil
}

// queryCategories fans out over the jurisdiction's categories. Each
// goroutine owns one slot of the results slice; retry and fallback state
// stays inside the querier call.
func (o *Orchestrator) queryCategories(ctx context.Context, jur *Jurisdiction, site domain.Geo) []domain.CategoryQueryResult {
	results := make([]domain.CategoryQueryResult, len(jur.Categories))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentCategories)
	for i, svc := range jur.Categories {
		g.Go(func() error {
			results[i] = o.queryCategory(gctx, svc, site, jur.Envelope)
			return nil
		})
	}
	_ = g.Wait() // goroutines never return errors

	return results
}

// queryCategory wraps one querier call into a category result with status
// and flags.
func (o *Orchestrator) queryCategory(ctx context.Context, svc domain.CategoryService, site domain.Geo, region domain.Envelope) domain.CategoryQueryResult {
	features, flags, err := o.querier.QuerySite(ctx, svc, site, region)
	if err != nil {
		class := failureClassOf(err)

		o.metrics.CategoryOutcomes.WithLabelValues(svc.Key, string(domain.CategoryFailed)).Inc()
		o.logger.Warn("category query failed",
			"category", svc.Key, "class", class, "error", err)

		return domain.CategoryQueryResult{
			Category: svc.Key,
			Status:   domain.CategoryFailed,
			Failure:  class,
			Features: []domain.UtilityFeature{},
			Flags:    []string{svc.UnavailableFlag},
		}
	}

	status := domain.CategorySuccess
	for _, f := range flags {
		if f == domain.FlagFoundViaFallbackCRS || f == domain.FlagSuspectCoordinates {
			status = domain.CategoryDegraded
			break
		}
	}

	if len(features) > 0 {
		flags = append(flags, svc.FoundFlag)
	} else if svc.NoFeaturesFlag != "" {
		flags = append(flags, svc.NoFeaturesFlag)
	}

	o.metrics.CategoryOutcomes.WithLabelValues(svc.Key, string(status)).Inc()

	return domain.CategoryQueryResult{
		Category: svc.Key,
		Status:   status,
		Features: features,
		Flags:    flags,
	}
}

// classified is implemented by adapter errors that carry a failure class
// (see arcgis.QueryError).
type classified interface {
	FailureClass() domain.FailureClass
}

// failureClassOf extracts the failure classification from an adapter error,
// defaulting to request_rejected for anything unclassified.
func failureClassOf(err error) domain.FailureClass {
	var ce classified
	if errors.As(err, &ce) {
		if c := ce.FailureClass(); c != domain.FailureNone {
			return c
		}
	}
	return domain.FailureRequestRejected
}

// mergeSecondary fetches crowd-sourced features for categories that have a
// fallback selector and merges hits in place. Best effort only.
func (o *Orchestrator) mergeSecondary(ctx context.Context, jur *Jurisdiction, site domain.Geo, results []domain.CategoryQueryResult) {
	for i, svc := range jur.Categories {
		if svc.OverpassFilter == "" {
			continue
		}
		features, err := o.secondary.Fetch(ctx, svc, site)
		if err != nil {
			o.logger.Warn("secondary source fetch failed", "category", svc.Key, "error", err)
			continue
		}
		if len(features) == 0 {
			continue
		}
		results[i].Features = append(results[i].Features, features...)
		results[i].Flags = append(results[i].Flags, domain.FlagSecondarySource)
	}
}
