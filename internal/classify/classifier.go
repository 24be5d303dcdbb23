package classify

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"mcp-pantry/internal/models"
)

// Classifier answers classification queries against the current rule set.
// Rules can be swapped while queries are running.
type Classifier struct {
	rules atomic.Pointer[Rules]
}

func New(r *Rules) *Classifier {
	c := &Classifier{}
	c.rules.Store(r)
	return c
}

// NewDefault builds a classifier over the embedded rule tables.
func NewDefault() (*Classifier, error) {
	r, err := DefaultRules()
	if err != nil {
		return nil, fmt.Errorf("failed to load default rules: %w", err)
	}
	return New(r), nil
}

func (c *Classifier) Rules() *Rules {
	return c.rules.Load()
}

func (c *Classifier) SetRules(r *Rules) {
	c.rules.Store(r)
}

// Categorize scans the category keyword lists in order; the first list with
// a keyword contained in name decides. Unmatched names are CategoryOther.
func (c *Classifier) Categorize(name string) models.Category {
	n := normalizeName(name)
	if n == "" {
		return models.CategoryOther
	}
	for _, rule := range c.Rules().Categories {
		if firstMatch(n, rule.Keywords) != "" {
			return rule.Category
		}
	}
	return models.CategoryOther
}

// RecommendStorageLocation checks the freezer list, then the refrigerator
// list, then the pantry list. When no keyword matches it falls back to the
// category table, and finally to the pantry.
func (c *Classifier) RecommendStorageLocation(name string, category models.Category) models.StorageLocation {
	r := c.Rules()
	n := normalizeName(name)
	if n != "" {
		switch {
		case firstMatch(n, r.Storage.Freezer) != "":
			return models.LocationFreezer
		case firstMatch(n, r.Storage.Refrigerator) != "":
			return models.LocationRefrigerator
		case firstMatch(n, r.Storage.Pantry) != "":
			return models.LocationPantry
		}
	}
	if loc, ok := r.CategoryStorage[category]; ok {
		return loc
	}
	return models.LocationPantry
}

// ShelfLifeDays estimates how many days name keeps in location.
func (c *Classifier) ShelfLifeDays(name string, category models.Category, location models.StorageLocation) int {
	r := c.Rules()
	n := normalizeName(name)
	if n != "" {
		for _, rule := range r.ShelfLife {
			if strings.Contains(n, rule.Keyword) {
				return rule.Days(location)
			}
		}
	}
	if sl, ok := r.CategoryShelfLife[category]; ok {
		return sl.Days(location)
	}
	return r.DefaultShelfLife.Days(location)
}

// EstimateExpiration adds the shelf life to the purchase date.
func (c *Classifier) EstimateExpiration(name string, category models.Category, location models.StorageLocation, purchased time.Time) time.Time {
	return purchased.AddDate(0, 0, c.ShelfLifeDays(name, category, location))
}

// DefaultUnit suggests the display unit for a new item.
func (c *Classifier) DefaultUnit(name string, category models.Category) string {
	r := c.Rules()
	n := normalizeName(name)
	if n != "" {
		for _, rule := range r.DisplayUnits.Keywords {
			if strings.Contains(n, rule.Keyword) {
				return rule.Unit
			}
		}
	}
	if u, ok := r.DisplayUnits.Categories[category]; ok {
		return u
	}
	return "pcs"
}

// Classification bundles every answer for one name.
type Classification struct {
	Name            string                 `json:"name"`
	Category        models.Category        `json:"category"`
	StorageLocation models.StorageLocation `json:"storage_location"`
	ShelfLifeDays   int                    `json:"shelf_life_days"`
	DefaultUnit     string                 `json:"default_unit"`
}

// Classify runs the full chain. A non-empty category skips categorization.
func (c *Classifier) Classify(name string, category models.Category) Classification {
	if category == "" {
		category = c.Categorize(name)
	}
	loc := c.RecommendStorageLocation(name, category)
	return Classification{
		Name:            name,
		Category:        category,
		StorageLocation: loc,
		ShelfLifeDays:   c.ShelfLifeDays(name, category, loc),
		DefaultUnit:     c.DefaultUnit(name, category),
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func firstMatch(name string, keywords []string) string {
	for _, kw := range keywords {
		if strings.Contains(name, kw) {
			return kw
		}
	}
	return ""
}
