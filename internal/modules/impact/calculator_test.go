package impact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greensight/sustain-engine/internal/domain/entity"
	"github.com/greensight/sustain-engine/pkg/factors"
)

func testTable(t *testing.T) *factors.Table {
	t.Helper()
	table, err := factors.NewTable("test", []factors.Factor{
		{Key: "agave", Unit: "kg", KgCO2ePerUnit: 0.375, WaterLPerUnit: 5.6},
		{Key: "spring_water", Unit: "l", KgCO2ePerUnit: 0.0003, WaterLPerUnit: 1.0},
		{Key: "glass", Pathway: factors.PathwayVirgin, Unit: "kg", KgCO2ePerUnit: 0.487, WaterLPerUnit: 2.2},
		{Key: "glass", Pathway: factors.PathwayRecycled, Unit: "kg", KgCO2ePerUnit: 0.314, WaterLPerUnit: 1.1},
		{Key: "paper_label", Unit: "kg", KgCO2ePerUnit: 1.1, WaterLPerUnit: 10.0},
	})
	require.NoError(t, err)
	return table
}

func TestComputeUnitImpact_BlendedPackaging(t *testing.T) {
	calc := NewCalculator(testTable(t))

	product := &entity.Product{
		Name: "Agave Spirit 750ml",
		Ingredients: []entity.Ingredient{
			{Name: "agave", Amount: 0.7, Unit: "kg"},
		},
		Packaging: []entity.PackagingComponent{
			{Kind: entity.PackagingBottle, MaterialKey: "glass", WeightGrams: 480, RecycledContentPercent: 40},
		},
	}

	result, diags, err := calc.ComputeUnitImpact(product)
	require.NoError(t, err)
	assert.Empty(t, diags)

	// Agave:  0.7 * 0.375                      = 0.2625
	// Bottle: 0.48 * (0.6*0.487 + 0.4*0.314)   = 0.200544
	assert.InDelta(t, 0.463044, result.CarbonKg, 1e-9)
	assert.InDelta(t, 0.463, result.CarbonKg, 0.0005)

	// Water: 0.7*5.6 + 0.48*(0.6*2.2 + 0.4*1.1) = 3.92 + 0.8448
	assert.InDelta(t, 4.7648, result.WaterL, 1e-9)

	// Waste is the packaging mass.
	assert.InDelta(t, 0.48, result.WasteKg, 1e-9)
}

func TestComputeUnitImpact_UnitConversion(t *testing.T) {
	calc := NewCalculator(testTable(t))

	// 450 ml of water against a per-liter factor.
	product := &entity.Product{
		Ingredients: []entity.Ingredient{
			{Name: "spring_water", Amount: 450, Unit: "ml"},
		},
	}

	result, diags, err := calc.ComputeUnitImpact(product)
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.InDelta(t, 0.45*0.0003, result.CarbonKg, 1e-12)
	assert.InDelta(t, 0.45, result.WaterL, 1e-9)
}

func TestComputeUnitImpact_MissingFactorContributesZero(t *testing.T) {
	calc := NewCalculator(testTable(t))

	product := &entity.Product{
		Ingredients: []entity.Ingredient{
			{Name: "agave", Amount: 0.7, Unit: "kg"},
			{Name: "unobtainium", Amount: 1, Unit: "kg"},
		},
	}

	result, diags, err := calc.ComputeUnitImpact(product)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, entity.DiagMissingFactor, diags[0].Code)
	assert.Equal(t, "unobtainium", diags[0].Subject)
	// Only agave contributes.
	assert.InDelta(t, 0.2625, result.CarbonKg, 1e-9)
}

func TestComputeUnitImpact_UnknownUnit(t *testing.T) {
	calc := NewCalculator(testTable(t))

	product := &entity.Product{
		Ingredients: []entity.Ingredient{
			{Name: "agave", Amount: 2, Unit: "bushels"},
		},
	}

	result, diags, err := calc.ComputeUnitImpact(product)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, entity.DiagUnknownUnit, diags[0].Code)
	assert.Zero(t, result.CarbonKg)
}

func TestComputeUnitImpact_DimensionMismatch(t *testing.T) {
	calc := NewCalculator(testTable(t))

	// Liters against a per-kg factor cannot be converted.
	product := &entity.Product{
		Ingredients: []entity.Ingredient{
			{Name: "agave", Amount: 1, Unit: "l"},
		},
	}

	result, diags, err := calc.ComputeUnitImpact(product)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, entity.DiagUnknownUnit, diags[0].Code)
	assert.Zero(t, result.CarbonKg)
}

func TestComputeUnitImpact_InvalidInput(t *testing.T) {
	calc := NewCalculator(testTable(t))

	testCases := []struct {
		name    string
		product *entity.Product
	}{
		{
			name: "negative ingredient amount",
			product: &entity.Product{
				Ingredients: []entity.Ingredient{{Name: "agave", Amount: -1, Unit: "kg"}},
			},
		},
		{
			name: "negative packaging weight",
			product: &entity.Product{
				Packaging: []entity.PackagingComponent{{MaterialKey: "glass", WeightGrams: -10}},
			},
		},
		{
			name: "recycled content above 100",
			product: &entity.Product{
				Packaging: []entity.PackagingComponent{{MaterialKey: "glass", WeightGrams: 480, RecycledContentPercent: 120}},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := calc.ComputeUnitImpact(tc.product)
			assert.ErrorIs(t, err, entity.ErrInvalidInput)
		})
	}
}

func TestComputeUnitImpact_RecycledFallsBackToVirgin(t *testing.T) {
	// paper_label has no recycled-pathway entry, so the full weight uses the
	// plain factor even at 50% recycled content.
	calc := NewCalculator(testTable(t))

	product := &entity.Product{
		Packaging: []entity.PackagingComponent{
			{Kind: entity.PackagingLabel, MaterialKey: "paper_label", WeightGrams: 4, RecycledContentPercent: 50},
		},
	}

	result, diags, err := calc.ComputeUnitImpact(product)
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.InDelta(t, 0.004*1.1, result.CarbonKg, 1e-12)
}

func TestComputeUnitImpact_DuplicateIngredientsSum(t *testing.T) {
	calc := NewCalculator(testTable(t))

	product := &entity.Product{
		Ingredients: []entity.Ingredient{
			{Name: "agave", Amount: 0.3, Unit: "kg"},
			{Name: "agave", Amount: 0.4, Unit: "kg"},
		},
	}

	result, _, err := calc.ComputeUnitImpact(product)
	require.NoError(t, err)
	// Duplicates are summed, never deduplicated: (0.3+0.4) * 0.375
	assert.InDelta(t, 0.2625, result.CarbonKg, 1e-9)
}

func TestComputeUnitImpact_EmptyProduct(t *testing.T) {
	calc := NewCalculator(testTable(t))

	result, diags, err := calc.ComputeUnitImpact(&entity.Product{})
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, entity.UnitImpact{}, result)
}

func TestGrossUnitWeightKg(t *testing.T) {
	product := &entity.Product{
		Ingredients: []entity.Ingredient{
			{Name: "agave", Amount: 0.7, Unit: "kg"},
			{Name: "spring_water", Amount: 450, Unit: "ml"}, // taken at water density
		},
		Packaging: []entity.PackagingComponent{
			{MaterialKey: "glass", WeightGrams: 480},
			{MaterialKey: "paper_label", WeightGrams: 3},
		},
	}

	// 0.7 + 0.45 + 0.483 = 1.633
	assert.InDelta(t, 1.633, GrossUnitWeightKg(product), 1e-9)
}
