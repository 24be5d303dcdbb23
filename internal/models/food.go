// internal/models/food.go
package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"mcp-pantry/internal/units"
)

type Category string

const (
	CategoryVegetables Category = "vegetables"
	CategoryFruits     Category = "fruits"
	CategoryMeat       Category = "meat"
	CategorySeafood    Category = "seafood"
	CategoryDairy      Category = "dairy"
	CategoryEggs       Category = "eggs"
	CategoryGrains     Category = "grains"
	CategoryBakery     Category = "bakery"
	CategoryBeverages  Category = "beverages"
	CategorySnacks     Category = "snacks"
	CategoryCondiments Category = "condiments"
	CategoryFrozen     Category = "frozen"
	CategoryOther      Category = "other"
)

var AllCategories = []Category{
	CategoryVegetables, CategoryFruits, CategoryMeat, CategorySeafood,
	CategoryDairy, CategoryEggs, CategoryGrains, CategoryBakery,
	CategoryBeverages, CategorySnacks, CategoryCondiments, CategoryFrozen,
	CategoryOther,
}

// ParseCategory accepts any case. An empty string yields CategoryOther.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return CategoryOther, nil
	}
	for _, c := range AllCategories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

type StorageLocation string

const (
	LocationFreezer      StorageLocation = "freezer"
	LocationRefrigerator StorageLocation = "refrigerator"
	LocationPantry       StorageLocation = "pantry"
)

func ParseStorageLocation(s string) (StorageLocation, error) {
	switch StorageLocation(strings.ToLower(strings.TrimSpace(s))) {
	case LocationFreezer:
		return LocationFreezer, nil
	case LocationRefrigerator, "fridge":
		return LocationRefrigerator, nil
	case LocationPantry:
		return LocationPantry, nil
	}
	return "", fmt.Errorf("unknown storage location %q", s)
}

type ExpirationStatus string

const (
	StatusFresh        ExpirationStatus = "fresh"
	StatusExpiringSoon ExpirationStatus = "expiring_soon"
	StatusExpired      ExpirationStatus = "expired"
	StatusUnknown      ExpirationStatus = "unknown"
)

// ExpiringSoonDays is the window in which an item counts as expiring soon.
const ExpiringSoonDays = 3

type FoodItem struct {
	ID              string          `json:"id"`
	GroupID         string          `json:"group_id"`
	Name            string          `json:"name"`
	Quantity        float64         `json:"quantity"`
	Unit            string          `json:"unit"`
	Category        Category        `json:"category"`
	PurchaseDate    time.Time       `json:"purchase_date"`
	ExpirationDate  *time.Time      `json:"expiration_date,omitempty"`
	StorageLocation StorageLocation `json:"storage_location"`
	ImagePath       string          `json:"image_path,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// DaysUntilExpiration counts calendar days from now to the expiration date.
// The second return is false when the item has no expiration date.
func (f *FoodItem) DaysUntilExpiration(now time.Time) (int, bool) {
	if f.ExpirationDate == nil {
		return 0, false
	}
	return calendarDays(now, *f.ExpirationDate), true
}

func (f *FoodItem) IsExpired(now time.Time) bool {
	days, ok := f.DaysUntilExpiration(now)
	return ok && days < 0
}

func (f *FoodItem) Status(now time.Time) ExpirationStatus {
	days, ok := f.DaysUntilExpiration(now)
	switch {
	case !ok:
		return StatusUnknown
	case days < 0:
		return StatusExpired
	case days <= ExpiringSoonDays:
		return StatusExpiringSoon
	default:
		return StatusFresh
	}
}

// FormattedQuantity renders the item's quantity for display.
func (f *FoodItem) FormattedQuantity() string {
	return units.FormatQuantityWithUnit(f.Quantity, f.Unit)
}

func calendarDays(from, to time.Time) int {
	y1, m1, d1 := from.Date()
	y2, m2, d2 := to.In(from.Location()).Date()
	a := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	b := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(math.Round(b.Sub(a).Hours() / 24))
}

// FoodGroup clusters inventory entries sharing a normalized base name.
// It owns its items: deleting the group deletes them.
type FoodGroup struct {
	ID            string      `json:"id"`
	BaseName      string      `json:"base_name"`
	Category      Category    `json:"category"`
	Items         []*FoodItem `json:"items"`
	PrimaryUnit   string      `json:"primary_unit"`
	TotalQuantity float64     `json:"total_quantity"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Recompute refreshes PrimaryUnit and TotalQuantity from Items.
//
// The dominant unit is the most frequent one (ties go to the first seen).
// When every item shares it the total is a plain sum. Otherwise each item
// is converted to the dominant unit's base and PrimaryUnit becomes that
// base; items that cannot be converted to it are left out of the total.
func (g *FoodGroup) Recompute() {
	if len(g.Items) == 0 {
		g.PrimaryUnit = ""
		g.TotalQuantity = 0
		return
	}

	counts := make(map[string]int)
	var order []string
	for _, item := range g.Items {
		key := units.Canonical(item.Unit)
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}

	dominant := order[0]
	for _, u := range order[1:] {
		if counts[u] > counts[dominant] {
			dominant = u
		}
	}

	if len(order) == 1 {
		var sum float64
		for _, item := range g.Items {
			sum += item.Quantity
		}
		g.PrimaryUnit = dominant
		g.TotalQuantity = sum
		return
	}

	_, base, ok := units.ToBase(1, dominant)
	if !ok || base == units.BaseCount {
		// No common base to convert through; count only the dominant unit.
		var sum float64
		for _, item := range g.Items {
			if units.Canonical(item.Unit) == dominant {
				sum += item.Quantity
			}
		}
		g.PrimaryUnit = dominant
		g.TotalQuantity = sum
		return
	}

	var sum float64
	for _, item := range g.Items {
		v, b, ok := units.ToBase(item.Quantity, item.Unit)
		if ok && b == base {
			sum += v
		}
	}
	g.PrimaryUnit = base.Symbol()
	g.TotalQuantity = sum
}

// EarliestExpiration returns the soonest expiration date among the items.
func (g *FoodGroup) EarliestExpiration() *time.Time {
	var earliest *time.Time
	for _, item := range g.Items {
		if item.ExpirationDate == nil {
			continue
		}
		if earliest == nil || item.ExpirationDate.Before(*earliest) {
			t := *item.ExpirationDate
			earliest = &t
		}
	}
	return earliest
}

func (g *FoodGroup) FormattedTotal() string {
	return units.FormatQuantityWithUnit(g.TotalQuantity, g.PrimaryUnit)
}
