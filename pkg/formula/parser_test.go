package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_Evaluate_SimpleAddition(t *testing.T) {
	parser := NewParser()

	result, err := parser.Evaluate("a + b", map[string]interface{}{
		"a": 10.0,
		"b": 5.0,
	})

	require.NoError(t, err)
	assert.Equal(t, 15.0, result)
}

func TestParser_Evaluate_IntensityFormula(t *testing.T) {
	parser := NewParser()

	// Emissions per 1000 units produced
	expression := "total_co2e / production_volume * 1000"
	params := map[string]interface{}{
		"total_co2e":        4.63,
		"production_volume": 10000.0,
	}

	result, err := parser.Evaluate(expression, params)

	require.NoError(t, err)
	// 4.63 / 10000 * 1000 = 0.463
	assert.InDelta(t, 0.463, result, 0.001)
}

func TestParser_Evaluate_Conditionals(t *testing.T) {
	parser := NewParser()

	// Guard against a division by zero with a ternary
	expression := "production_volume > 0 ? total_co2e / production_volume * 1000 : 0.0"
	params := map[string]interface{}{
		"total_co2e":        4.63,
		"production_volume": 0.0,
	}

	result, err := parser.Evaluate(expression, params)

	require.NoError(t, err)
	assert.Equal(t, 0.0, result)
}

func TestParser_Evaluate_MissingParam(t *testing.T) {
	parser := NewParser()

	_, err := parser.Evaluate("a + b", map[string]interface{}{
		"a": 10.0,
		// "b" is missing
	})

	assert.Error(t, err)
}

func TestParser_Evaluate_InvalidExpression(t *testing.T) {
	parser := NewParser()

	_, err := parser.Evaluate("((a + b", map[string]interface{}{
		"a": 10.0,
		"b": 5.0,
	})

	assert.Error(t, err)
}

func TestParser_ValidateExpression(t *testing.T) {
	parser := NewParser()
	sample := map[string]interface{}{
		"total_co2e":      1.0,
		"electricity_kwh": 1.0,
	}

	assert.NoError(t, parser.ValidateExpression("total_co2e * 2", sample))
	assert.Error(t, parser.ValidateExpression("total_co2e +", sample))
	assert.Error(t, parser.ValidateExpression("unknown_binding * 2", sample))
}

func TestParser_Evaluate_KpiFormulas(t *testing.T) {
	parser := NewParser()

	testCases := []struct {
		name       string
		expression string
		params     map[string]interface{}
		expected   float64
	}{
		{
			name:       "Operational Emissions",
			expression: "scope1_direct + scope2_purchased_energy",
			params: map[string]interface{}{
				"scope1_direct":           12.4,
				"scope2_purchased_energy": 38.1,
			},
			expected: 50.5,
		},
		{
			name:       "Electricity Intensity",
			expression: "electricity_kwh / production_volume",
			params: map[string]interface{}{
				"electricity_kwh":   250000.0,
				"production_volume": 500000.0,
			},
			expected: 0.5, // 250000 / 500000
		},
		{
			name:       "Monthly Average Electricity",
			expression: "month_count > 0 ? electricity_kwh / month_count : 0.0",
			params: map[string]interface{}{
				"electricity_kwh": 120000.0,
				"month_count":     12.0,
			},
			expected: 10000.0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := parser.Evaluate(tc.expression, tc.params)
			require.NoError(t, err)
			assert.InDelta(t, tc.expected, result, 0.001)
		})
	}
}

func BenchmarkParser_Evaluate(b *testing.B) {
	parser := NewParser()
	expression := "total_co2e / production_volume * 1000"
	params := map[string]interface{}{
		"total_co2e":        4.63,
		"production_volume": 10000.0,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		parser.Evaluate(expression, params)
	}
}
