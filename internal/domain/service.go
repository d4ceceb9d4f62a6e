package domain

// CategoryService describes one queryable utility/parcel category within a
// jurisdiction: where to query, in which coordinate systems, and which flags
// its outcomes raise. Loaded from the jurisdiction catalog at startup;
// immutable afterwards.
type CategoryService struct {
	// Key identifies the category: water, sewer_gravity, sewer_force_main,
	// storm, parcel, floodplain.
	Key string `yaml:"key" json:"key"`

	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// PrimaryWKID is tried first; FallbackWKID (0 = none) is tried when the
	// primary strategy is structurally rejected. The common configuration
	// is projected feet first, geographic degrees second.
	PrimaryWKID  int `yaml:"primary_wkid" json:"primary_wkid"`
	FallbackWKID int `yaml:"fallback_wkid" json:"fallback_wkid"`

	// RadiusFeet is the point-query search radius. Zero means an
	// intersects-at-point relationship (parcels, flood zones).
	RadiusFeet float64 `yaml:"radius_feet" json:"radius_feet"`

	OutFields []string `yaml:"out_fields" json:"out_fields"`

	// FoundFlag / UnavailableFlag are the plain-language flags raised when
	// the category yields features or fails, e.g.
	// "sewer_service_lines_found" / "utilities_sewer_gravity_unavailable".
	FoundFlag       string `yaml:"found_flag" json:"found_flag"`
	UnavailableFlag string `yaml:"unavailable_flag" json:"unavailable_flag"`
	NoFeaturesFlag  string `yaml:"no_features_flag" json:"no_features_flag"`

	// OverpassFilter is the crowd-sourced fallback selector for this
	// category, e.g. `node["man_made"="manhole"]`. Empty disables the
	// secondary source for the category.
	OverpassFilter string `yaml:"overpass_filter" json:"overpass_filter"`
}
