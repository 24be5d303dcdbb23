package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatQuantityWithUnit(t *testing.T) {
	tests := []struct {
		name string
		q    float64
		unit string
		want string
	}{
		{"grams below threshold", 500, "g", "500 g"},
		{"grams at threshold", 1000, "g", "1 kg"},
		{"kilograms", 1.5, "kg", "1.5 kg"},
		{"pounds", 2, "lbs", "907.2 g"},
		{"three pounds rolls over", 3, "lb", "1.4 kg"},
		{"ounces", 8, "oz", "226.8 g"},
		{"jin", 2, "斤", "1 kg"},
		{"liang", 3, "两", "150 g"},
		{"milliliters", 250, "ml", "250 ml"},
		{"liters", 2, "L", "2 L"},
		{"cups", 2, "cups", "480 ml"},
		{"five cups", 5, "cup", "1.2 L"},
		{"tablespoons", 3, "tbsp", "45 ml"},
		{"fluid ounces", 12, "fl oz", "354.9 ml"},
		{"count", 3, "个", "3 个"},
		{"pieces", 4, "pieces", "4 pcs"},
		{"dozen", 2, "dozen", "24 pcs"},
		{"unknown unit", 2, "box", "2.0 box"},
		{"no unit", 3.25, "", "3.3"},
		{"rounding crosses threshold", 999.96, "g", "1 kg"},
		{"zero", 0, "kg", "0 g"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatQuantityWithUnit(tt.q, tt.unit))
		})
	}
}

func TestFormatQuantityWithUnitIsIdempotent(t *testing.T) {
	quantities := []float64{0, 0.3, 1, 2.5, 7, 12.34, 99.95, 333.3, 999.96, 1000, 1234.5, 45678}
	for unit := range table {
		for _, q := range quantities {
			first := FormatQuantityWithUnit(q, unit)
			pq, pu, ok := ParseQuantity(first)
			require.True(t, ok, "parse %q", first)
			second := FormatQuantityWithUnit(pq, pu)
			assert.Equal(t, first, second, "unit %q quantity %v", unit, q)
		}
	}

	for _, q := range quantities {
		first := FormatQuantityWithUnit(q, "bunch")
		pq, pu, ok := ParseQuantity(first)
		require.True(t, ok)
		assert.Equal(t, first, FormatQuantityWithUnit(pq, pu))
	}
}

func TestParseQuantity(t *testing.T) {
	q, u, ok := ParseQuantity("1.5 kg")
	require.True(t, ok)
	assert.Equal(t, 1.5, q)
	assert.Equal(t, "kg", u)

	q, u, ok = ParseQuantity("500g")
	require.True(t, ok)
	assert.Equal(t, 500.0, q)
	assert.Equal(t, "g", u)

	q, u, ok = ParseQuantity("12 fl oz")
	require.True(t, ok)
	assert.Equal(t, 12.0, q)
	assert.Equal(t, "fl oz", u)

	_, _, ok = ParseQuantity("some apples")
	assert.False(t, ok)
}

func TestToBaseAndConvert(t *testing.T) {
	v, base, ok := ToBase(2, "公斤")
	require.True(t, ok)
	assert.Equal(t, BaseGrams, base)
	assert.Equal(t, 2000.0, v)

	_, _, ok = ToBase(1, "handful")
	assert.False(t, ok)

	got, ok := Convert(1, "lb", "oz")
	require.True(t, ok)
	assert.InDelta(t, 16.0, got, 0.01)

	_, ok = Convert(1, "kg", "ml")
	assert.False(t, ok)
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "lb", Canonical("LBS"))
	assert.Equal(t, "kg", Canonical("公斤"))
	assert.Equal(t, "L", Canonical("litre"))
	assert.Equal(t, "bunch", Canonical(" bunch "))
	assert.Equal(t, "bunch", Canonical("Bunch"))
	assert.Equal(t, "small jar", Canonical("Small  Jar"))
}
