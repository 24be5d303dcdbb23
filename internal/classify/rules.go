// Package classify maps free-text food names onto categories, storage
// locations, shelf-life estimates and display units using ordered keyword
// tables. The tables are data: a default set is embedded and a YAML file
// can replace it at runtime.
package classify

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"mcp-pantry/internal/models"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

type Rules struct {
	Categories        []CategoryRule                             `yaml:"categories"`
	Storage           StorageLists                               `yaml:"storage"`
	CategoryStorage   map[models.Category]models.StorageLocation `yaml:"category_storage"`
	ShelfLife         []ShelfLifeRule                            `yaml:"shelf_life"`
	CategoryShelfLife map[models.Category]ShelfLife              `yaml:"category_shelf_life"`
	DefaultShelfLife  ShelfLife                                  `yaml:"default_shelf_life"`
	DisplayUnits      DisplayUnits                               `yaml:"display_units"`
}

type CategoryRule struct {
	Category models.Category `yaml:"category"`
	Keywords []string        `yaml:"keywords"`
}

// StorageLists are scanned freezer first, then refrigerator, then pantry.
type StorageLists struct {
	Freezer      []string `yaml:"freezer"`
	Refrigerator []string `yaml:"refrigerator"`
	Pantry       []string `yaml:"pantry"`
}

type ShelfLife struct {
	Freezer      int `yaml:"freezer"`
	Refrigerator int `yaml:"refrigerator"`
	Pantry       int `yaml:"pantry"`
}

func (s ShelfLife) Days(loc models.StorageLocation) int {
	switch loc {
	case models.LocationFreezer:
		return s.Freezer
	case models.LocationRefrigerator:
		return s.Refrigerator
	default:
		return s.Pantry
	}
}

type ShelfLifeRule struct {
	Keyword   string `yaml:"keyword"`
	ShelfLife `yaml:",inline"`
}

type DisplayUnits struct {
	Keywords   []UnitRule                 `yaml:"keywords"`
	Categories map[models.Category]string `yaml:"categories"`
}

type UnitRule struct {
	Keyword string `yaml:"keyword"`
	Unit    string `yaml:"unit"`
}

// DefaultRules parses the embedded rule tables.
func DefaultRules() (*Rules, error) {
	return ParseRules(defaultRulesYAML)
}

// LoadRules reads a rules file from disk.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}

func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if err := r.normalize(); err != nil {
		return nil, err
	}
	return &r, nil
}

// normalize lower-cases keywords and rejects unknown enum values.
func (r *Rules) normalize() error {
	if len(r.Categories) == 0 {
		return fmt.Errorf("rules: no category keywords")
	}
	for i := range r.Categories {
		c, err := models.ParseCategory(string(r.Categories[i].Category))
		if err != nil {
			return fmt.Errorf("rules: %w", err)
		}
		r.Categories[i].Category = c
		r.Categories[i].Keywords = lowerAll(r.Categories[i].Keywords)
	}

	r.Storage.Freezer = lowerAll(r.Storage.Freezer)
	r.Storage.Refrigerator = lowerAll(r.Storage.Refrigerator)
	r.Storage.Pantry = lowerAll(r.Storage.Pantry)

	for cat, loc := range r.CategoryStorage {
		if _, err := models.ParseCategory(string(cat)); err != nil {
			return fmt.Errorf("rules: category_storage: %w", err)
		}
		if _, err := models.ParseStorageLocation(string(loc)); err != nil {
			return fmt.Errorf("rules: category_storage: %w", err)
		}
	}

	for i := range r.ShelfLife {
		r.ShelfLife[i].Keyword = strings.ToLower(strings.TrimSpace(r.ShelfLife[i].Keyword))
		if r.ShelfLife[i].Keyword == "" {
			return fmt.Errorf("rules: shelf_life entry %d has no keyword", i)
		}
		if err := r.ShelfLife[i].check(); err != nil {
			return fmt.Errorf("rules: shelf_life %q: %w", r.ShelfLife[i].Keyword, err)
		}
	}
	for cat, sl := range r.CategoryShelfLife {
		if err := sl.check(); err != nil {
			return fmt.Errorf("rules: category_shelf_life %s: %w", cat, err)
		}
	}
	if err := r.DefaultShelfLife.check(); err != nil {
		return fmt.Errorf("rules: default_shelf_life: %w", err)
	}

	for i := range r.DisplayUnits.Keywords {
		r.DisplayUnits.Keywords[i].Keyword = strings.ToLower(strings.TrimSpace(r.DisplayUnits.Keywords[i].Keyword))
	}
	return nil
}

func (s ShelfLife) check() error {
	if s.Freezer < 0 || s.Refrigerator < 0 || s.Pantry < 0 {
		return fmt.Errorf("negative day count")
	}
	return nil
}

func lowerAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
