// Package postgres implements the canonical store on PostgreSQL via GORM.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/parcelworks/gis-enrichment-service/internal/domain"
)

// Store persists canonical records, one table per major category, and
// serves the per-layer counts the seeder resumes from.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Connect opens the database, tunes the pool, and migrates the canonical
// tables.
func Connect(dsn string, logger *slog.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := db.AutoMigrate(
		&ParcelRecord{},
		&UtilityRecord{},
		&FloodZoneRecord{},
		&WetlandRecord{},
		&TransportationRecord{},
	); err != nil {
		return nil, fmt.Errorf("migrate canonical tables: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// CheckReadiness verifies the database connection is alive.
func (s *Store) CheckReadiness(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("acquiring sql connection: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// CountByLayer returns the number of canonical records carrying the layer
// key in its category table, across all dataset versions. Queried fresh on
// every ingestion invocation; there is no separate cursor table.
func (s *Store) CountByLayer(ctx context.Context, layerKey, table string) (int64, error) {
	model, err := modelForTable(table)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(model).Where("layer_key = ?", layerKey).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count layer %s: %w", layerKey, err)
	}
	return count, nil
}

// Insert persists one canonical record into its category table. Single-row
// insert, no multi-record transaction: partial batch failure is expected
// and tolerated upstream.
func (s *Store) Insert(ctx context.Context, rec domain.CanonicalRecord) error {
	row, err := rowFor(rec)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("insert into %s: %w", rec.Table, err)
	}
	return nil
}

func modelForTable(table string) (any, error) {
	switch table {
	case "parcels":
		return &ParcelRecord{}, nil
	case "utilities":
		return &UtilityRecord{}, nil
	case "flood_zones":
		return &FloodZoneRecord{}, nil
	case "wetlands":
		return &WetlandRecord{}, nil
	case "transportation":
		return &TransportationRecord{}, nil
	default:
		return nil, fmt.Errorf("unknown canonical table %q", table)
	}
}

// rowFor builds the typed row for a canonical record. Mapped fields land in
// typed columns; everything else is preserved in the attributes JSON so no
// source data is lost.
func rowFor(rec domain.CanonicalRecord) (any, error) {
	base, err := baseFor(rec)
	if err != nil {
		return nil, err
	}
	f := fieldReader{fields: rec.Fields}

	switch rec.Table {
	case "parcels":
		return &ParcelRecord{
			baseRecord:   base,
			ParcelNumber: f.str("parcel_number"),
			Acreage:      f.floatPtr("acreage"),
			OwnerName:    f.strPtr("owner_name"),
			SiteAddress:  f.strPtr("site_address"),
			LandUseCode:  f.strPtr("land_use_code"),
			County:       f.strPtr("county"),
			State:        f.strPtr("state"),
		}, nil
	case "utilities":
		return &UtilityRecord{
			baseRecord:  base,
			UtilityType: f.str("utility_type"),
			DiameterIn:  f.floatPtr("diameter_in"),
			Material:    f.strPtr("material"),
			InstallYear: f.intPtr("install_year"),
			Owner:       f.strPtr("owner"),
			Status:      f.strPtr("status"),
			Provider:    f.strPtr("provider"),
		}, nil
	case "flood_zones":
		return &FloodZoneRecord{
			baseRecord:    base,
			ZoneCode:      f.strPtr("zone_code"),
			ZoneClass:     f.strPtr("zone_class"),
			ZoneSubtype:   f.strPtr("zone_subtype"),
			SpecialHazard: f.strPtr("special_hazard"),
			SourceAgency:  f.strPtr("source_agency"),
		}, nil
	case "wetlands":
		return &WetlandRecord{
			baseRecord:    base,
			NWICode:       f.strPtr("nwi_code"),
			WetlandSystem: f.strPtr("wetland_system"),
			WetlandLabel:  f.strPtr("wetland_label"),
			Acreage:       f.floatPtr("acreage"),
			SourceAgency:  f.strPtr("source_agency"),
		}, nil
	case "transportation":
		return &TransportationRecord{
			baseRecord:   base,
			AADTCurrent:  f.intPtr("aadt_current"),
			AADTYear:     f.intPtr("aadt_year"),
			RouteName:    f.strPtr("route_name"),
			District:     f.strPtr("district"),
			SourceAgency: f.strPtr("source_agency"),
		}, nil
	default:
		return nil, fmt.Errorf("unknown canonical table %q", rec.Table)
	}
}

func baseFor(rec domain.CanonicalRecord) (baseRecord, error) {
	attrs, err := json.Marshal(rec.Fields)
	if err != nil {
		return baseRecord{}, fmt.Errorf("marshal attributes: %w", err)
	}
	return baseRecord{
		LayerKey:       rec.LayerKey,
		Category:       rec.Category,
		Jurisdiction:   rec.Jurisdiction,
		DatasetVersion: rec.DatasetVersion,
		Geometry:       rec.GeometryWKT,
		WriteTier:      rec.WriteTier,
		Attributes:     string(attrs),
	}, nil
}

// fieldReader pulls typed values out of a mapped field bag. Mapper output
// is already normalized (nil for unparseable), so readers stay lenient.
type fieldReader struct {
	fields map[string]any
}

func (f fieldReader) str(key string) string {
	if p := f.strPtr(key); p != nil {
		return *p
	}
	return ""
}

func (f fieldReader) strPtr(key string) *string {
	v, ok := f.fields[key]
	if !ok || v == nil {
		return nil
	}
	s := fmt.Sprintf("%v", v)
	return &s
}

func (f fieldReader) floatPtr(key string) *float64 {
	switch v := f.fields[key].(type) {
	case float64:
		return &v
	case int64:
		x := float64(v)
		return &x
	default:
		return nil
	}
}

func (f fieldReader) intPtr(key string) *int64 {
	switch v := f.fields[key].(type) {
	case int64:
		return &v
	case float64:
		x := int64(v)
		return &x
	default:
		return nil
	}
}
