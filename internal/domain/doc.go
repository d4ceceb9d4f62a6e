// Package domain models the geospatial data handled by the enrichment and
// ingestion engine: site coordinates, utility features returned by external
// feature services, and the canonical records written to the local store.
//
// # Coordinate Reference Systems
//
// Two coordinate spaces appear throughout:
//
//	WGS84 geographic (WKID 4326):
//	  longitude/latitude in decimal degrees. All geometry is stored and
//	  displayed in this space.
//	NAD83 / Texas South Central, US survey feet (WKID 2278):
//	  a Lambert Conformal Conic projection covering the Houston metro area.
//	  Many municipal feature services only accept (or only return) this
//	  space, and planar area math requires it.
//
// Returned geometry does not always declare its spatial reference. The
// detection heuristic: a first ordinate with magnitude above 360 cannot be a
// degree value, so the geometry is treated as projected and inverted through
// the Lambert math. See [DetectCRS].
//
// Converted points are sanity-checked against the jurisdiction's bounding
// envelope. A point that lands outside is not rejected (the feature is still
// usable for reporting) but it carries the "suspect_coordinates" flag so
// downstream consumers can discount it.
//
// # Distance and Area Conventions
//
//	Point-to-polyline distance: haversine (R = 6,371,000 m) from the site to
//	  each polyline vertex, minimum across all vertices, reported in feet
//	  (×3.28084). Endpoint sampling is an intentional approximation: utility
//	  lines are queried within small search radii where vertex spacing bounds
//	  the error.
//	Polygon area: shoelace formula over a projected (feet-based) ring,
//	  square feet, acres = sq ft / 43,560. Geographic-degree rings must be
//	  projected first; the functions do not reproject implicitly.
//
// # Failure Taxonomy
//
// External-call failures are classified, never surfaced as raw errors past
// the orchestrator:
//
//	unreachable      : DNS/connection/timeout; pointless to retry or fall back.
//	request_rejected : structurally invalid query, commonly a wrong
//	                   coordinate system; eligible for strategy fallback.
//	empty result     : success with zero features; a valid outcome that must
//	                   not be conflated with "couldn't check".
//
// The aggregate enrichment status (complete | partial | failed) is derived
// from per-category outcomes by the pure function [DeriveStatus].
package domain
