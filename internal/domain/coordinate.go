package domain

// Well-known IDs for the coordinate systems the engine understands.
const (
	WKIDGeographic   = 4326 // WGS84 longitude/latitude degrees
	WKIDTexasSouthFt = 2278 // NAD83 / Texas South Central, US survey feet
)

// Geo is a WGS84 longitude/latitude coordinate pair in decimal degrees.
type Geo struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ProjectedPoint is a coordinate in a planar projected system, in the linear
// unit of that system (US survey feet for WKID 2278).
type ProjectedPoint struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	WKID int     `json:"wkid"`
}

// SiteCoordinate is the subject of one enrichment request: a geographic
// coordinate, optionally tagged with the projected representation it was
// derived from. Distance math always uses the geographic form.
type SiteCoordinate struct {
	Geo       Geo             `json:"geo"`
	Projected *ProjectedPoint `json:"projected,omitempty"`

	// Suspect marks a coordinate that fell outside the jurisdiction's
	// bounding envelope after normalization. The coordinate is still used;
	// reporting discounts it via the suspect_coordinates flag.
	Suspect bool `json:"suspect,omitempty"`
}

// Envelope is a geographic bounding box (degrees, min/max inclusive).
type Envelope struct {
	MinLat float64 `json:"min_lat" yaml:"min_lat"`
	MinLng float64 `json:"min_lng" yaml:"min_lng"`
	MaxLat float64 `json:"max_lat" yaml:"max_lat"`
	MaxLng float64 `json:"max_lng" yaml:"max_lng"`
}

// Contains reports whether the point lies within the envelope.
func (e Envelope) Contains(g Geo) bool {
	return g.Lat >= e.MinLat && g.Lat <= e.MaxLat &&
		g.Lng >= e.MinLng && g.Lng <= e.MaxLng
}

// IsZero reports whether the envelope is unset.
func (e Envelope) IsZero() bool {
	return e.MinLat == 0 && e.MinLng == 0 && e.MaxLat == 0 && e.MaxLng == 0
}

// GeometryKind identifies the shape of a feature's geometry.
type GeometryKind string

const (
	GeometryPoint    GeometryKind = "point"
	GeometryPolyline GeometryKind = "polyline"
	GeometryPolygon  GeometryKind = "polygon"
)

// Geometry is a normalized feature geometry in geographic coordinates.
// Exactly one of Point, Paths, or Rings is populated, matching Kind.
type Geometry struct {
	Kind  GeometryKind `json:"kind"`
	Point *Geo         `json:"point,omitempty"`
	Paths [][]Geo      `json:"paths,omitempty"`
	Rings [][]Geo      `json:"rings,omitempty"`
}

// IsEmpty reports whether the geometry carries no coordinates.
func (g Geometry) IsEmpty() bool {
	switch g.Kind {
	case GeometryPoint:
		return g.Point == nil
	case GeometryPolyline:
		return len(g.Paths) == 0
	case GeometryPolygon:
		return len(g.Rings) == 0
	default:
		return true
	}
}
