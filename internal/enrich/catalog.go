package enrich

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/parcelworks/gis-enrichment-service/internal/domain"
)

//go:embed catalog_defaults.yaml
var defaultCatalogYAML []byte

// Jurisdiction is one governing region's service catalog: the categories
// that can be queried for a site inside it and the bounding envelope used
// for coordinate sanity checks.
type Jurisdiction struct {
	Key        string                   `yaml:"key"`
	Aliases    []string                 `yaml:"aliases"`
	Envelope   domain.Envelope          `yaml:"envelope"`
	Categories []domain.CategoryService `yaml:"categories"`
}

// Catalog is the explicit jurisdiction lookup structure, keyed by normalized
// jurisdiction identifier. Resolved once per request and passed through the
// call chain; no stringly-typed branching downstream.
type Catalog struct {
	jurisdictions map[string]*Jurisdiction
	ordered       []*Jurisdiction // envelope-containment resolution order
}

type catalogFile struct {
	Jurisdictions []Jurisdiction `yaml:"jurisdictions"`
}

// LoadCatalog reads the jurisdiction catalog from path, or the embedded
// default catalog when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalogYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		data = b
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(file.Jurisdictions) == 0 {
		return nil, fmt.Errorf("catalog has no jurisdictions")
	}

	c := &Catalog{jurisdictions: make(map[string]*Jurisdiction)}
	for i := range file.Jurisdictions {
		j := &file.Jurisdictions[i]
		if j.Key == "" || len(j.Categories) == 0 {
			return nil, fmt.Errorf("jurisdiction %d: key and categories are required", i)
		}
		c.jurisdictions[NormalizeJurisdiction(j.Key)] = j
		for _, alias := range j.Aliases {
			c.jurisdictions[NormalizeJurisdiction(alias)] = j
		}
		c.ordered = append(c.ordered, j)
	}
	return c, nil
}

// NormalizeJurisdiction lowercases and collapses a free-form jurisdiction
// hint ("Harris County", "harris-county") into a stable lookup key.
func NormalizeJurisdiction(hint string) string {
	s := strings.ToLower(strings.TrimSpace(hint))
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), "_")
}

// Resolve finds the jurisdiction for a request: by hint when one is given,
// otherwise by envelope containment of the site coordinate.
func (c *Catalog) Resolve(hint string, site domain.Geo) (*Jurisdiction, error) {
	if hint != "" {
		if j, ok := c.jurisdictions[NormalizeJurisdiction(hint)]; ok {
			return j, nil
		}
		return nil, fmt.Errorf("jurisdiction %q is not configured", hint)
	}
	for _, j := range c.ordered {
		if j.Envelope.Contains(site) {
			return j, nil
		}
	}
	return nil, fmt.Errorf("no configured jurisdiction covers (%.4f, %.4f)", site.Lat, site.Lng)
}

// Jurisdictions returns the configured jurisdictions in catalog order.
func (c *Catalog) Jurisdictions() []*Jurisdiction {
	return c.ordered
}
