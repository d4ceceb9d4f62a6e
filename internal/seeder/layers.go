package seeder

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/parcelworks/gis-enrichment-service/internal/domain"
)

//go:embed layers_defaults.yaml
var defaultLayersYAML []byte

type layersFile struct {
	Layers []domain.LayerConfig `yaml:"layers"`
}

// LoadLayers reads the ingestion layer configurations from path, or the
// embedded defaults when path is empty. Layers without an explicit page
// size inherit defaultPageSize.
func LoadLayers(path string, defaultPageSize int) ([]domain.LayerConfig, error) {
	data := defaultLayersYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read layers: %w", err)
		}
		data = b
	}

	var file layersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse layers: %w", err)
	}
	if len(file.Layers) == 0 {
		return nil, fmt.Errorf("no layers configured")
	}

	for i := range file.Layers {
		l := &file.Layers[i]
		if l.Key == "" || l.Endpoint == "" || l.Table == "" {
			return nil, fmt.Errorf("layer %d: key, endpoint, and table are required", i)
		}
		if l.PageSize <= 0 {
			l.PageSize = defaultPageSize
		}
		if l.PageSize <= 0 {
			l.PageSize = 100
		}
		if l.MaxRecordsPerRun <= 0 {
			l.MaxRecordsPerRun = 2000
		}
		if l.OrderField == "" {
			l.OrderField = "OBJECTID"
		}
	}
	return file.Layers, nil
}

// Filter selects layers by optional key, jurisdiction, and category. Empty
// filters mean "all configured layers".
func Filter(layers []domain.LayerConfig, key, jurisdiction, category string) []domain.LayerConfig {
	out := make([]domain.LayerConfig, 0, len(layers))
	for _, l := range layers {
		if key != "" && l.Key != key {
			continue
		}
		if jurisdiction != "" && l.Jurisdiction != jurisdiction {
			continue
		}
		if category != "" && l.Category != category {
			continue
		}
		out = append(out, l)
	}
	return out
}
