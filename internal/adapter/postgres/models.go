package postgres

import "time"

// One table per major category. Every row carries the layer key (the resume
// counter groups on it), a WKT geometry column, a dataset version tag, and
// jurisdiction constants. Rows are only ever inserted; re-ingestion writes
// new rows under a new dataset version.

type baseRecord struct {
	ID             uint   `gorm:"primaryKey"`
	LayerKey       string `gorm:"index;not null"`
	Category       string
	Jurisdiction   string
	DatasetVersion string
	Geometry       string `gorm:"type:text"`
	WriteTier      string
	Attributes     string `gorm:"type:jsonb"`
	CreatedAt      time.Time
}

// ParcelRecord is one canonical parcel boundary.
type ParcelRecord struct {
	baseRecord
	ParcelNumber string `gorm:"index"`
	Acreage      *float64
	OwnerName    *string
	SiteAddress  *string
	LandUseCode  *string
	County       *string
	State        *string
}

func (ParcelRecord) TableName() string { return "parcels" }

// UtilityRecord is one canonical utility line or node (water, sewer, storm).
type UtilityRecord struct {
	baseRecord
	UtilityType string `gorm:"index"`
	DiameterIn  *float64
	Material    *string
	InstallYear *int64
	Owner       *string
	Status      *string
	Provider    *string
}

func (UtilityRecord) TableName() string { return "utilities" }

// FloodZoneRecord is one canonical FEMA flood zone polygon.
type FloodZoneRecord struct {
	baseRecord
	ZoneCode      *string
	ZoneClass     *string
	ZoneSubtype   *string
	SpecialHazard *string
	SourceAgency  *string
}

func (FloodZoneRecord) TableName() string { return "flood_zones" }

// WetlandRecord is one canonical NWI wetland polygon.
type WetlandRecord struct {
	baseRecord
	NWICode       *string
	WetlandSystem *string
	WetlandLabel  *string
	Acreage       *float64
	SourceAgency  *string
}

func (WetlandRecord) TableName() string { return "wetlands" }

// TransportationRecord is one canonical traffic count station or segment.
type TransportationRecord struct {
	baseRecord
	AADTCurrent  *int64
	AADTYear     *int64
	RouteName    *string
	District     *string
	SourceAgency *string
}

func (TransportationRecord) TableName() string { return "transportation" }
