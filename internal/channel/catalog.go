package channel

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var builtinCatalog []byte

// Integration is how a channel is reached.
type Integration string

// Integration kinds.
const (
	IntegrationAPI       Integration = "api"
	IntegrationFeed      Integration = "feed"
	IntegrationSimulated Integration = "simulated"
)

// Info describes one channel of the catalog.
type Info struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Integration Integration `yaml:"integration"`
	DefaultCPA  float64     `yaml:"default_cpa"`
	MinCPA      float64     `yaml:"min_cpa"`
	MaxCPA      float64     `yaml:"max_cpa"`
	Requires    []string    `yaml:"requires"`
}

// Catalog is the set of channels known to the system, in declaration order.
type Catalog struct {
	order []string
	byID  map[string]Info
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(builtinCatalog)
	if err != nil {
		panic(fmt.Sprintf("builtin channel catalog: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog from path, or returns the built-in one when
// path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read channel catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Channels []Info `yaml:"channels"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse channel catalog: %w", err)
	}

	c := &Catalog{byID: make(map[string]Info, len(doc.Channels))}
	for _, info := range doc.Channels {
		info.ID = strings.ToLower(strings.TrimSpace(info.ID))
		if info.ID == "" {
			return nil, fmt.Errorf("parse channel catalog: channel without id")
		}
		if _, dup := c.byID[info.ID]; dup {
			return nil, fmt.Errorf("parse channel catalog: duplicate channel %q", info.ID)
		}
		if info.DefaultCPA <= 0 {
			return nil, fmt.Errorf("parse channel catalog: channel %q needs a positive default_cpa", info.ID)
		}
		if info.Integration == "" {
			info.Integration = IntegrationSimulated
		}
		if info.Name == "" {
			info.Name = info.ID
		}
		c.byID[info.ID] = info
		c.order = append(c.order, info.ID)
	}
	return c, nil
}

// Get returns the channel with the given id.
func (c *Catalog) Get(id string) (Info, bool) {
	info, ok := c.byID[strings.ToLower(id)]
	return info, ok
}

// IDs returns the channel ids in catalog order.
func (c *Catalog) IDs() []string {
	return append([]string(nil), c.order...)
}

// DefaultCPA returns the default CPA of a channel, or 0 for unknown ids.
func (c *Catalog) DefaultCPA(id string) float64 {
	return c.byID[strings.ToLower(id)].DefaultCPA
}
