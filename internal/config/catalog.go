package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// GearConfig is a single catalog entry in gears.yaml.
type GearConfig struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Category    string   `yaml:"category"`
	PricePerDay float64  `yaml:"price_per_day"`
	Thumbnail   string   `yaml:"thumbnail"`
	Images      []string `yaml:"images"`
}

// CatalogConfig is the root of gears.yaml.
type CatalogConfig struct {
	Gears []GearConfig `yaml:"gears"`
}

// DefaultCatalog is used when no catalog file exists.
func DefaultCatalog() *CatalogConfig {
	return &CatalogConfig{Gears: []GearConfig{
		{ID: "1", Name: "GoPro Hero 11 Black", Category: "Camera", PricePerDay: 45, Thumbnail: "/placeholder-camera.jpg"},
		{ID: "2", Name: "Insta360 X3", Category: "Camera", PricePerDay: 50, Thumbnail: "/placeholder-camera2.jpg"},
		{ID: "3", Name: "Rode Wireless GO II", Category: "Audio", PricePerDay: 25, Thumbnail: "/placeholder-audio.jpg"},
		{ID: "4", Name: "DJI Mic", Category: "Audio", PricePerDay: 30, Thumbnail: "/placeholder-audio2.jpg"},
		{ID: "5", Name: "Helmet Chin Mount", Category: "Mounts", PricePerDay: 10, Thumbnail: "/placeholder-mount.jpg"},
	}}
}

// LoadCatalog loads and validates the gear catalog from a YAML file.
func LoadCatalog(path string) (*CatalogConfig, error) {
	if path == "" {
		path = "configs/gears.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var cfg CatalogConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}
	return &cfg, nil
}

// Validate checks the catalog for errors.
func (c *CatalogConfig) Validate() error {
	seen := make(map[string]struct{}, len(c.Gears))
	for i := range c.Gears {
		g := &c.Gears[i]
		g.ID = strings.TrimSpace(g.ID)
		if g.ID == "" {
			return fmt.Errorf("gear #%d: id is required", i+1)
		}
		if strings.Contains(g.ID, ",") {
			return fmt.Errorf("gear %s: id must not contain commas", g.ID)
		}
		if _, dup := seen[g.ID]; dup {
			return fmt.Errorf("gear %s: duplicate id", g.ID)
		}
		seen[g.ID] = struct{}{}
		if g.Name == "" {
			return fmt.Errorf("gear %s: name is required", g.ID)
		}
		if g.Category == "" {
			return fmt.Errorf("gear %s: category is required", g.ID)
		}
		if g.PricePerDay < 0 {
			return fmt.Errorf("gear %s: price_per_day must not be negative", g.ID)
		}
	}
	return nil
}
