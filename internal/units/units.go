// Package units normalizes household quantity units into three bases
// (grams, milliliters, item count) and formats quantities for display.
package units

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

type Base int

const (
	BaseGrams Base = iota
	BaseMilliliters
	BaseCount
)

func (b Base) Symbol() string {
	switch b {
	case BaseGrams:
		return "g"
	case BaseMilliliters:
		return "ml"
	default:
		return "pcs"
	}
}

func (b Base) String() string {
	switch b {
	case BaseGrams:
		return "grams"
	case BaseMilliliters:
		return "milliliters"
	default:
		return "count"
	}
}

// LargeUnitThreshold is the base amount at which g and ml switch to kg and L.
const LargeUnitThreshold = 1000

type unitDef struct {
	symbol string
	base   Base
	factor float64
}

var table = map[string]unitDef{
	"g":         {"g", BaseGrams, 1},
	"gram":      {"g", BaseGrams, 1},
	"grams":     {"g", BaseGrams, 1},
	"克":         {"g", BaseGrams, 1},
	"kg":        {"kg", BaseGrams, 1000},
	"kilogram":  {"kg", BaseGrams, 1000},
	"kilograms": {"kg", BaseGrams, 1000},
	"千克":        {"kg", BaseGrams, 1000},
	"公斤":        {"kg", BaseGrams, 1000},
	"mg":        {"mg", BaseGrams, 0.001},
	"lb":        {"lb", BaseGrams, 453.592},
	"lbs":       {"lb", BaseGrams, 453.592},
	"pound":     {"lb", BaseGrams, 453.592},
	"pounds":    {"lb", BaseGrams, 453.592},
	"oz":        {"oz", BaseGrams, 28.3495},
	"ounce":     {"oz", BaseGrams, 28.3495},
	"ounces":    {"oz", BaseGrams, 28.3495},
	"斤":         {"斤", BaseGrams, 500},
	"两":         {"两", BaseGrams, 50},

	"ml":          {"ml", BaseMilliliters, 1},
	"milliliter":  {"ml", BaseMilliliters, 1},
	"milliliters": {"ml", BaseMilliliters, 1},
	"毫升":          {"ml", BaseMilliliters, 1},
	"l":           {"L", BaseMilliliters, 1000},
	"liter":       {"L", BaseMilliliters, 1000},
	"liters":      {"L", BaseMilliliters, 1000},
	"litre":       {"L", BaseMilliliters, 1000},
	"litres":      {"L", BaseMilliliters, 1000},
	"升":           {"L", BaseMilliliters, 1000},
	"cup":         {"cup", BaseMilliliters, 240},
	"cups":        {"cup", BaseMilliliters, 240},
	"杯":           {"cup", BaseMilliliters, 240},
	"tbsp":        {"tbsp", BaseMilliliters, 15},
	"tablespoon":  {"tbsp", BaseMilliliters, 15},
	"tablespoons": {"tbsp", BaseMilliliters, 15},
	"勺":           {"tbsp", BaseMilliliters, 15},
	"tsp":         {"tsp", BaseMilliliters, 5},
	"teaspoon":    {"tsp", BaseMilliliters, 5},
	"teaspoons":   {"tsp", BaseMilliliters, 5},
	"fl oz":       {"fl oz", BaseMilliliters, 29.5735},
	"floz":        {"fl oz", BaseMilliliters, 29.5735},

	"pcs":    {"pcs", BaseCount, 1},
	"pc":     {"pcs", BaseCount, 1},
	"piece":  {"pcs", BaseCount, 1},
	"pieces": {"pcs", BaseCount, 1},
	"item":   {"pcs", BaseCount, 1},
	"items":  {"pcs", BaseCount, 1},
	"ea":     {"pcs", BaseCount, 1},
	"each":   {"pcs", BaseCount, 1},
	"dozen":  {"pcs", BaseCount, 12},
	"个":      {"个", BaseCount, 1},
	"只":      {"只", BaseCount, 1},
	"颗":      {"颗", BaseCount, 1},
	"根":      {"根", BaseCount, 1},
	"袋":      {"袋", BaseCount, 1},
	"包":      {"包", BaseCount, 1},
	"盒":      {"盒", BaseCount, 1},
	"瓶":      {"瓶", BaseCount, 1},
	"罐":      {"罐", BaseCount, 1},
}

func lookup(unit string) (unitDef, bool) {
	key := strings.ToLower(strings.Join(strings.Fields(unit), " "))
	def, ok := table[key]
	return def, ok
}

// Known reports whether unit is one of the supported unit strings.
func Known(unit string) bool {
	_, ok := lookup(unit)
	return ok
}

// Canonical maps aliases onto a single symbol ("lbs" -> "lb", "公斤" -> "kg").
// Unknown units are lower-cased with inner whitespace collapsed, so "Bunch"
// and "bunch" compare equal.
func Canonical(unit string) string {
	if def, ok := lookup(unit); ok {
		return def.symbol
	}
	return strings.ToLower(strings.Join(strings.Fields(unit), " "))
}

// ToBase converts q in unit to its base amount.
func ToBase(q float64, unit string) (float64, Base, bool) {
	def, ok := lookup(unit)
	if !ok {
		return 0, 0, false
	}
	return q * def.factor, def.base, true
}

// Convert converts q between two units sharing a base.
func Convert(q float64, from, to string) (float64, bool) {
	f, fok := lookup(from)
	t, tok := lookup(to)
	if !fok || !tok || f.base != t.base {
		return 0, false
	}
	return q * f.factor / t.factor, true
}

// FormatQuantityWithUnit renders q in a human-readable unit. Weights and
// volumes are shown in g/ml below LargeUnitThreshold and kg/L at or above
// it; counts keep their own token. Unknown units pass through with one
// decimal place.
func FormatQuantityWithUnit(q float64, unit string) string {
	def, ok := lookup(unit)
	if !ok {
		u := strings.TrimSpace(unit)
		s := strconv.FormatFloat(round1(q), 'f', 1, 64)
		if u == "" {
			return s
		}
		return s + " " + u
	}

	v := round1(q * def.factor)
	switch def.base {
	case BaseGrams:
		if math.Abs(v) >= LargeUnitThreshold {
			return trimNumber(round1(v/1000)) + " kg"
		}
		return trimNumber(v) + " g"
	case BaseMilliliters:
		if math.Abs(v) >= LargeUnitThreshold {
			return trimNumber(round1(v/1000)) + " L"
		}
		return trimNumber(v) + " ml"
	default:
		return trimNumber(v) + " " + def.symbol
	}
}

// ParseQuantity splits text such as "1.5 kg" or "500g" into its number and
// unit. It is the inverse of FormatQuantityWithUnit.
func ParseQuantity(text string) (float64, string, bool) {
	text = strings.TrimSpace(text)
	end := 0
	for i, r := range text {
		if unicode.IsDigit(r) || r == '.' || ((r == '-' || r == '+') && i == 0) {
			end = i + len(string(r))
			continue
		}
		break
	}
	if end == 0 {
		return 0, "", false
	}
	q, err := strconv.ParseFloat(text[:end], 64)
	if err != nil {
		return 0, "", false
	}
	return q, strings.TrimSpace(text[end:]), true
}

func round1(v float64) float64 {
	r := math.Round(v*10) / 10
	if r == 0 {
		return 0
	}
	return r
}

func trimNumber(v float64) string {
	return strings.TrimSuffix(strconv.FormatFloat(v, 'f', 1, 64), ".0")
}
