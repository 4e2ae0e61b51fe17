package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToKilograms(t *testing.T) {
	testCases := []struct {
		name     string
		amount   float64
		unit     string
		expected float64
	}{
		{"grams", 480, "g", 0.48},
		{"grams long form", 55, "grams", 0.055},
		{"milligrams", 1200, "mg", 0.0012},
		{"kilograms identity", 0.7, "kg", 0.7},
		{"tonnes", 2, "t", 2000},
		{"uppercase normalized", 480, "G", 0.48},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ToKilograms(tc.amount, tc.unit)
			require.NoError(t, err)
			assert.InDelta(t, tc.expected, result, 1e-9)
		})
	}
}

func TestToKilograms_UnknownUnit(t *testing.T) {
	_, err := ToKilograms(1, "l")
	assert.Error(t, err)
}

func TestToLiters(t *testing.T) {
	testCases := []struct {
		name     string
		amount   float64
		unit     string
		expected float64
	}{
		{"milliliters", 750, "ml", 0.75},
		{"centiliters", 33, "cl", 0.33},
		{"liters identity", 0.45, "l", 0.45},
		{"cubic meters", 1.5, "m3", 1500},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ToLiters(tc.amount, tc.unit)
			require.NoError(t, err)
			assert.InDelta(t, tc.expected, result, 1e-9)
		})
	}
}

func TestToKWh(t *testing.T) {
	result, err := ToKWh(3.6, "mj")
	require.NoError(t, err)
	// 3.6 MJ = 1 kWh
	assert.InDelta(t, 1.0, result, 1e-9)

	result, err = ToKWh(2, "mwh")
	require.NoError(t, err)
	assert.InDelta(t, 2000.0, result, 1e-9)
}

func TestConvert_ReportsCanonicalUnit(t *testing.T) {
	amount, canonical, err := Convert(480, "g")
	require.NoError(t, err)
	assert.Equal(t, Kilograms, canonical)
	assert.InDelta(t, 0.48, amount, 1e-9)

	amount, canonical, err = Convert(750, "ml")
	require.NoError(t, err)
	assert.Equal(t, Liters, canonical)
	assert.InDelta(t, 0.75, amount, 1e-9)

	_, _, err = Convert(1, "parsec")
	assert.Error(t, err)
}

func TestKgToTonnes(t *testing.T) {
	assert.InDelta(t, 4.63, KgToTonnes(4630), 1e-9)
	assert.Equal(t, 0.0, KgToTonnes(0))
}
