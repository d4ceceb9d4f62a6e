package domain

// FailureClass classifies why an external spatial query failed.
type FailureClass string

const (
	// FailureNone marks a successful query (possibly with zero features).
	FailureNone FailureClass = ""

	// FailureUnreachable covers DNS, connection, and timeout errors.
	// Retrying with a different coordinate system is pointless, so this
	// class short-circuits all remaining query strategies.
	FailureUnreachable FailureClass = "unreachable"

	// FailureRequestRejected covers structurally invalid queries, most
	// commonly a coordinate system the service does not accept. Eligible
	// for strategy fallback before being considered terminal.
	FailureRequestRejected FailureClass = "request_rejected"
)

// CategoryStatus is the outcome of querying one utility/parcel category.
type CategoryStatus string

const (
	CategorySuccess  CategoryStatus = "success"
	CategoryFailed   CategoryStatus = "failed"
	CategoryDegraded CategoryStatus = "degraded" // succeeded via fallback or with suspect data
)

// UtilityFeature is one spatial feature returned for a site: a pipe segment,
// manhole, parcel boundary, or flood polygon. Geometry is always geographic
// after normalization. Constructed transiently per enrichment request; only
// the ingestion seeder persists features.
type UtilityFeature struct {
	Category   string         `json:"category"`
	Geometry   Geometry       `json:"geometry"`
	Attributes map[string]any `json:"attributes,omitempty"`

	// DistanceFeet is set for point and polyline features (distance from
	// the query site). AreaSquareFeet/Acreage are set for polygons.
	DistanceFeet   *float64 `json:"distance_ft,omitempty"`
	AreaSquareFeet *float64 `json:"area_sqft,omitempty"`
	Acreage        *float64 `json:"acreage,omitempty"`

	Flags []string `json:"flags,omitempty"`
}

// CategoryQueryResult is the outcome of querying one category for one site.
type CategoryQueryResult struct {
	Category string           `json:"category"`
	Status   CategoryStatus   `json:"status"`
	Failure  FailureClass     `json:"failure,omitempty"`
	Features []UtilityFeature `json:"features"`
	Flags    []string         `json:"flags,omitempty"`
}

// Outcome reduces the result to the value the status aggregation folds over.
func (r CategoryQueryResult) Outcome() CategoryOutcome {
	return CategoryOutcome{Failure: r.Failure, FeatureCount: len(r.Features)}
}

// OverallStatus is the aggregate enrichment status for one site.
type OverallStatus string

const (
	StatusComplete OverallStatus = "complete"
	StatusPartial  OverallStatus = "partial"
	StatusFailed   OverallStatus = "failed"
)

// EnrichmentResult is the externally visible contract of the orchestrator:
// per-category feature lists, an aggregate status, and plain-language flags
// for display. Written once per request; the caller retries wholesale.
type EnrichmentResult struct {
	RequestID    string                         `json:"request_id"`
	Site         SiteCoordinate                 `json:"site"`
	Jurisdiction string                         `json:"jurisdiction"`
	Status       OverallStatus                  `json:"status"`
	Flags        []string                       `json:"flags"`
	Categories   map[string]CategoryQueryResult `json:"categories"`
}

// Well-known flags shared across components. Per-category found/unavailable
// flags come from the jurisdiction catalog.
const (
	// FlagFoundViaFallbackCRS marks features obtained only after switching
	// to the fallback coordinate system.
	FlagFoundViaFallbackCRS = "found_via_fallback_crs"

	// FlagNoFeaturesFound marks a request where every category succeeded
	// but returned nothing: possibly a rural site, not a system fault.
	FlagNoFeaturesFound = "no_features_found"

	// FlagSecondarySource marks features merged in from the lower-precision
	// crowd-sourced fallback dataset.
	FlagSecondarySource = "osm_fallback_data"

	// FlagReducedRecordWrite marks a canonical record persisted via the
	// reduced-field retry tier after the full write failed.
	FlagReducedRecordWrite = "reduced_record_write"
)
