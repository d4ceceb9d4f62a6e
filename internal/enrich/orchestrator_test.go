package enrich

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelworks/gis-enrichment-service/internal/domain"
	"github.com/parcelworks/gis-enrichment-service/internal/observability"
)

// --- mocks ---

// classedError mimics the adapter's classified query error.
type classedError struct {
	class domain.FailureClass
}

func (e *classedError) Error() string { return "query failed: " + string(e.class) }

func (e *classedError) FailureClass() domain.FailureClass { return e.class }

type categoryReply struct {
	features []domain.UtilityFeature
	flags    []string
	err      error
}

// mockQuerier answers per category key and counts calls.
type mockQuerier struct {
	mu      sync.Mutex
	replies map[string]categoryReply
	calls   map[string]int
}

func newMockQuerier() *mockQuerier {
	return &mockQuerier{replies: map[string]categoryReply{}, calls: map[string]int{}}
}

func (m *mockQuerier) QuerySite(_ context.Context, svc domain.CategoryService, _ domain.Geo, _ domain.Envelope) ([]domain.UtilityFeature, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[svc.Key]++
	r := m.replies[svc.Key]
	return r.features, r.flags, r.err
}

type mockSecondary struct {
	mu       sync.Mutex
	features []domain.UtilityFeature
	err      error
	calls    int
}

func (m *mockSecondary) Fetch(_ context.Context, _ domain.CategoryService, _ domain.Geo) ([]domain.UtilityFeature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.features, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testCatalog builds a two-category jurisdiction covering the Houston area.
func testCatalog() *Catalog {
	j := &Jurisdiction{
		Key:     "houston",
		Aliases: []string{"harris county"},
		Envelope: domain.Envelope{
			MinLat: 28.8, MaxLat: 30.8,
			MinLng: -96.2, MaxLng: -94.3,
		},
		Categories: []domain.CategoryService{
			{
				Key:             "water",
				Endpoint:        "https://example.com/water",
				PrimaryWKID:     domain.WKIDTexasSouthFt,
				FallbackWKID:    domain.WKIDGeographic,
				RadiusFeet:      500,
				FoundFlag:       "water_service_lines_found",
				UnavailableFlag: "utilities_water_unavailable",
				NoFeaturesFlag:  "utilities_water_none_found",
				OverpassFilter:  `way["man_made"="pipeline"]`,
			},
			{
				Key:             "sewer_gravity",
				Endpoint:        "https://example.com/sewer",
				PrimaryWKID:     domain.WKIDTexasSouthFt,
				FallbackWKID:    domain.WKIDGeographic,
				RadiusFeet:      500,
				FoundFlag:       "sewer_service_lines_found",
				UnavailableFlag: "utilities_sewer_gravity_unavailable",
				NoFeaturesFlag:  "utilities_sewer_gravity_none_found",
			},
		},
	}
	return &Catalog{
		jurisdictions: map[string]*Jurisdiction{"houston": j, "harris_county": j},
		ordered:       []*Jurisdiction{j},
	}
}

func waterFeature(distanceFeet float64) domain.UtilityFeature {
	return domain.UtilityFeature{
		Category:     "water",
		Geometry:     domain.Geometry{Kind: domain.GeometryPolyline},
		DistanceFeet: &distanceFeet,
	}
}

var houstonSite = domain.Geo{Lat: 29.7604, Lng: -95.3698}

// --- tests ---

func TestEnrich_PartialWhenOneCategoryFails(t *testing.T) {
	querier := newMockQuerier()
	querier.replies["water"] = categoryReply{
		features: []domain.UtilityFeature{waterFeature(40), waterFeature(90)},
	}
	querier.replies["sewer_gravity"] = categoryReply{
		err: &classedError{class: domain.FailureRequestRejected},
	}

	o := NewOrchestrator(testCatalog(), querier, nil, discardLogger(), observability.NewMetricsForTesting())
	result, err := o.Enrich(context.Background(), Request{Coordinate: houstonSite})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartial, result.Status)
	assert.Equal(t, "houston", result.Jurisdiction)
	assert.NotEmpty(t, result.RequestID)

	water := result.Categories["water"]
	assert.Equal(t, domain.CategorySuccess, water.Status)
	require.Len(t, water.Features, 2)

	sewer := result.Categories["sewer_gravity"]
	assert.Equal(t, domain.CategoryFailed, sewer.Status)
	assert.Equal(t, domain.FailureRequestRejected, sewer.Failure)

	assert.Contains(t, result.Flags, "water_service_lines_found")
	assert.Contains(t, result.Flags, "utilities_sewer_gravity_unavailable")
	assert.NotContains(t, result.Flags, "utilities_water_unavailable")
	assert.NotContains(t, result.Flags, domain.FlagNoFeaturesFound)
}

func TestEnrich_CompleteWhenAllFound(t *testing.T) {
	querier := newMockQuerier()
	querier.replies["water"] = categoryReply{features: []domain.UtilityFeature{waterFeature(40)}}
	querier.replies["sewer_gravity"] = categoryReply{features: []domain.UtilityFeature{waterFeature(120)}}

	o := NewOrchestrator(testCatalog(), querier, nil, discardLogger(), observability.NewMetricsForTesting())
	result, err := o.Enrich(context.Background(), Request{Coordinate: houstonSite})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusComplete, result.Status)
	assert.Contains(t, result.Flags, "water_service_lines_found")
	assert.Contains(t, result.Flags, "sewer_service_lines_found")
}

// TestEnrich_SewerTimeoutIsPartial pins the downtown Houston scenario: water
// answers with segments at 40ft and 90ft, the sewer endpoint times out. The
// result must stay partial with the water data intact.
func TestEnrich_SewerTimeoutIsPartial(t *testing.T) {
	querier := newMockQuerier()
	querier.replies["water"] = categoryReply{
		features: []domain.UtilityFeature{waterFeature(40), waterFeature(90)},
	}
	querier.replies["sewer_gravity"] = categoryReply{
		err: &classedError{class: domain.FailureUnreachable},
	}

	o := NewOrchestrator(testCatalog(), querier, nil, discardLogger(), observability.NewMetricsForTesting())
	result, err := o.Enrich(context.Background(), Request{Coordinate: houstonSite})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartial, result.Status)

	water := result.Categories["water"]
	assert.Equal(t, domain.CategorySuccess, water.Status)
	require.Len(t, water.Features, 2)
	require.NotNil(t, water.Features[0].DistanceFeet)
	assert.Equal(t, 40.0, *water.Features[0].DistanceFeet)

	sewer := result.Categories["sewer_gravity"]
	assert.Equal(t, domain.CategoryFailed, sewer.Status)
	assert.Equal(t, domain.FailureUnreachable, sewer.Failure)

	assert.Contains(t, result.Flags, "utilities_sewer_gravity_unavailable")
	assert.NotContains(t, result.Flags, "utilities_water_unavailable")
	assert.NotContains(t, result.Flags, "utilities_water_none_found")
}

// TestEnrich_AllUnreachableFails keeps the environment-wide outage case
// failed: no category answered, partial data would be misleading.
func TestEnrich_AllUnreachableFails(t *testing.T) {
	querier := newMockQuerier()
	querier.replies["water"] = categoryReply{
		err: &classedError{class: domain.FailureUnreachable},
	}
	querier.replies["sewer_gravity"] = categoryReply{
		err: &classedError{class: domain.FailureUnreachable},
	}

	o := NewOrchestrator(testCatalog(), querier, nil, discardLogger(), observability.NewMetricsForTesting())
	result, err := o.Enrich(context.Background(), Request{Coordinate: houstonSite})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, result.Status)
	assert.Contains(t, result.Flags, "utilities_water_unavailable")
	assert.Contains(t, result.Flags, "utilities_sewer_gravity_unavailable")
}

func TestEnrich_AllEmptyIsPartialWithFlag(t *testing.T) {
	querier := newMockQuerier()
	querier.replies["water"] = categoryReply{}
	querier.replies["sewer_gravity"] = categoryReply{}

	o := NewOrchestrator(testCatalog(), querier, nil, discardLogger(), observability.NewMetricsForTesting())
	result, err := o.Enrich(context.Background(), Request{Coordinate: houstonSite})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartial, result.Status)
	assert.Contains(t, result.Flags, domain.FlagNoFeaturesFound)
	assert.Contains(t, result.Flags, "utilities_water_none_found")
	assert.Contains(t, result.Flags, "utilities_sewer_gravity_none_found")
}

func TestEnrich_SecondarySourceMergesWithoutUpgrade(t *testing.T) {
	querier := newMockQuerier()
	querier.replies["water"] = categoryReply{}
	querier.replies["sewer_gravity"] = categoryReply{}

	secondary := &mockSecondary{
		features: []domain.UtilityFeature{{
			Category: "water",
			Geometry: domain.Geometry{Kind: domain.GeometryPoint},
			Flags:    []string{domain.FlagSecondarySource},
		}},
	}

	o := NewOrchestrator(testCatalog(), querier, secondary, discardLogger(), observability.NewMetricsForTesting())
	result, err := o.Enrich(context.Background(), Request{Coordinate: houstonSite})

	require.NoError(t, err)
	// Crowd-sourced hits never lift the aggregate status.
	assert.Equal(t, domain.StatusPartial, result.Status)
	assert.Contains(t, result.Flags, domain.FlagSecondarySource)
	assert.NotEmpty(t, result.Categories["water"].Features)
	// Only the category with a fallback selector is fetched.
	assert.Equal(t, 1, secondary.calls)
}

func TestEnrich_SecondarySourceSkippedWhenFeaturesExist(t *testing.T) {
	querier := newMockQuerier()
	querier.replies["water"] = categoryReply{features: []domain.UtilityFeature{waterFeature(40)}}
	querier.replies["sewer_gravity"] = categoryReply{}

	secondary := &mockSecondary{}

	o := NewOrchestrator(testCatalog(), querier, secondary, discardLogger(), observability.NewMetricsForTesting())
	_, err := o.Enrich(context.Background(), Request{Coordinate: houstonSite})

	require.NoError(t, err)
	assert.Zero(t, secondary.calls)
}

func TestEnrich_SecondarySourceErrorIsBestEffort(t *testing.T) {
	querier := newMockQuerier()
	querier.replies["water"] = categoryReply{}
	querier.replies["sewer_gravity"] = categoryReply{}

	secondary := &mockSecondary{err: errors.New("overpass timeout")}

	o := NewOrchestrator(testCatalog(), querier, secondary, discardLogger(), observability.NewMetricsForTesting())
	result, err := o.Enrich(context.Background(), Request{Coordinate: houstonSite})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartial, result.Status)
	assert.Contains(t, result.Flags, domain.FlagNoFeaturesFound)
}

func TestEnrich_UnknownJurisdiction(t *testing.T) {
	o := NewOrchestrator(testCatalog(), newMockQuerier(), nil, discardLogger(), observability.NewMetricsForTesting())

	result, err := o.Enrich(context.Background(), Request{
		Coordinate:       houstonSite,
		JurisdictionHint: "atlantis",
	})

	require.Error(t, err)
	assert.Equal(t, domain.StatusFailed, result.Status)
	assert.Contains(t, result.Flags, FlagJurisdictionNotConfigured)
	assert.NotEmpty(t, result.RequestID)
}

func TestEnrich_DegradedOnFallbackCRS(t *testing.T) {
	querier := newMockQuerier()
	querier.replies["water"] = categoryReply{
		features: []domain.UtilityFeature{waterFeature(40)},
		flags:    []string{domain.FlagFoundViaFallbackCRS},
	}
	querier.replies["sewer_gravity"] = categoryReply{features: []domain.UtilityFeature{waterFeature(75)}}

	o := NewOrchestrator(testCatalog(), querier, nil, discardLogger(), observability.NewMetricsForTesting())
	result, err := o.Enrich(context.Background(), Request{Coordinate: houstonSite})

	require.NoError(t, err)
	assert.Equal(t, domain.CategoryDegraded, result.Categories["water"].Status)
	assert.Equal(t, domain.CategorySuccess, result.Categories["sewer_gravity"].Status)
	assert.Contains(t, result.Flags, domain.FlagFoundViaFallbackCRS)
}

func TestEnrich_SuspectSiteOutsideEnvelope(t *testing.T) {
	querier := newMockQuerier()
	querier.replies["water"] = categoryReply{features: []domain.UtilityFeature{waterFeature(40)}}
	querier.replies["sewer_gravity"] = categoryReply{features: []domain.UtilityFeature{waterFeature(80)}}

	o := NewOrchestrator(testCatalog(), querier, nil, discardLogger(), observability.NewMetricsForTesting())
	// Dallas coordinate with an explicit Houston hint.
	result, err := o.Enrich(context.Background(), Request{
		Coordinate:       domain.Geo{Lat: 32.7767, Lng: -96.7970},
		JurisdictionHint: "houston",
	})

	require.NoError(t, err)
	assert.True(t, result.Site.Suspect)
	assert.Contains(t, result.Flags, domain.FlagSuspectCoordinates)
}

func TestEnrich_PreservesRequestID(t *testing.T) {
	querier := newMockQuerier()
	querier.replies["water"] = categoryReply{features: []domain.UtilityFeature{waterFeature(40)}}
	querier.replies["sewer_gravity"] = categoryReply{features: []domain.UtilityFeature{waterFeature(80)}}

	o := NewOrchestrator(testCatalog(), querier, nil, discardLogger(), observability.NewMetricsForTesting())
	result, err := o.Enrich(context.Background(), Request{
		RequestID:  "req-123",
		Coordinate: houstonSite,
	})

	require.NoError(t, err)
	assert.Equal(t, "req-123", result.RequestID)
}
