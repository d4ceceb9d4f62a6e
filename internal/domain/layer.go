package domain

import "fmt"

// LayerConfig describes one ingestible external dataset: where it lives,
// which canonical table it feeds, and how its attributes map onto the
// canonical schema. Loaded at startup; immutable.
type LayerConfig struct {
	// Key uniquely identifies the layer and is the unit of resume:
	// ingestion progress is the count of canonical records carrying it.
	Key string `yaml:"key" json:"key"`

	Endpoint     string `yaml:"endpoint" json:"endpoint"`
	Table        string `yaml:"table" json:"table"`
	Category     string `yaml:"category" json:"category"`
	Jurisdiction string `yaml:"jurisdiction" json:"jurisdiction"`

	// BoundingBox scopes the bulk query to the service region.
	BoundingBox Envelope `yaml:"bounding_box" json:"bounding_box"`

	// OrderField is passed to the source as an explicit sort so repeated
	// paginated queries return features in stable order, the precondition
	// for count-based resume.
	OrderField string `yaml:"order_field" json:"order_field"`

	Mappings  []FieldMapping `yaml:"mappings" json:"mappings"`
	Constants map[string]any `yaml:"constants" json:"constants"`

	// CoreFields is the reduced, higher-priority subset retried when the
	// full canonical write fails (tiered write strategy).
	CoreFields []string `yaml:"core_fields" json:"core_fields"`

	PageSize         int `yaml:"page_size" json:"page_size"`
	MaxRecordsPerRun int `yaml:"max_records_per_run" json:"max_records_per_run"`
}

// SourceFeature is one raw feature fetched during ingestion, before field
// mapping.
type SourceFeature struct {
	Attributes map[string]any
	Geometry   RawGeometry
}

// CanonicalRecord is the persisted, schema-normalized output of ingestion.
// Mutated only by re-ingestion under a new dataset version, never in place;
// never deleted by this subsystem.
type CanonicalRecord struct {
	LayerKey       string
	Table          string
	Category       string
	Jurisdiction   string
	DatasetVersion string
	GeometryWKT    string
	Fields         map[string]any

	// WriteTier records which write tier persisted the record: "full" or
	// "reduced" (see FlagReducedRecordWrite).
	WriteTier string
}

// DatasetVersion derives the version tag stamped on every record of an
// ingestion run: layer key plus ingestion date.
func DatasetVersion(layerKey string) string {
	return fmt.Sprintf("%s-%s", layerKey, clock.Now().UTC().Format("2006-01-02"))
}

// ReducedFields returns the record's fields filtered to the layer's core
// subset. Geometry, version, and jurisdiction constants always survive the
// reduction; they live outside Fields.
func (r CanonicalRecord) ReducedFields(core []string) map[string]any {
	out := make(map[string]any, len(core))
	for _, k := range core {
		if v, ok := r.Fields[k]; ok {
			out[k] = v
		}
	}
	return out
}
