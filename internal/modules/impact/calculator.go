// Package impact computes the per-unit footprint of a product from its bill
// of materials. It deliberately excludes facility-level energy: Scope 1/2
// consumption is accounted once, at the facility level, never here.
package impact

import (
	"fmt"

	"github.com/greensight/sustain-engine/internal/domain/entity"
	"github.com/greensight/sustain-engine/pkg/factors"
	"github.com/greensight/sustain-engine/pkg/units"
)

// Calculator computes per-unit product impacts against an injected factor
// table. It is stateless and safe for concurrent use.
type Calculator struct {
	table *factors.Table
}

// NewCalculator creates a new impact calculator
func NewCalculator(table *factors.Table) *Calculator {
	return &Calculator{table: table}
}

// ComputeUnitImpact returns the footprint of a single product unit plus any
// diagnostics gathered along the way. Unmatched ingredients and materials
// contribute zero and are flagged, never silently dropped. The result is a
// pure function of the bill of materials; scaling to annual totals is the
// caller's job. Structurally invalid input (negative amounts or weights)
// returns ErrInvalidInput.
func (c *Calculator) ComputeUnitImpact(product *entity.Product) (entity.UnitImpact, []entity.Diagnostic, error) {
	var result entity.UnitImpact
	var diags []entity.Diagnostic

	for _, ing := range product.Ingredients {
		if ing.Amount < 0 {
			return entity.UnitImpact{}, nil, fmt.Errorf("ingredient %q: negative amount %.4f: %w", ing.Name, ing.Amount, entity.ErrInvalidInput)
		}

		factor, ok := c.table.Lookup(ing.Name)
		if !ok {
			diags = append(diags, entity.Diagnostic{
				Code:    entity.DiagMissingFactor,
				Subject: ing.Name,
				Detail:  "ingredient has no factor entry, contributes zero",
			})
			continue
		}

		amount, err := convertToFactorUnit(ing.Amount, ing.Unit, factor.Unit)
		if err != nil {
			diags = append(diags, entity.Diagnostic{
				Code:    entity.DiagUnknownUnit,
				Subject: ing.Name,
				Detail:  err.Error(),
			})
			continue
		}

		result.CarbonKg += amount * factor.KgCO2ePerUnit
		result.WaterL += amount * factor.WaterLPerUnit
	}

	for _, comp := range product.Packaging {
		if comp.WeightGrams < 0 {
			return entity.UnitImpact{}, nil, fmt.Errorf("packaging %s/%s: negative weight %.2fg: %w", comp.Kind, comp.MaterialKey, comp.WeightGrams, entity.ErrInvalidInput)
		}
		if comp.RecycledContentPercent < 0 || comp.RecycledContentPercent > 100 {
			return entity.UnitImpact{}, nil, fmt.Errorf("packaging %s/%s: recycled content %.1f%% outside [0,100]: %w", comp.Kind, comp.MaterialKey, comp.RecycledContentPercent, entity.ErrInvalidInput)
		}

		weightKg := comp.WeightGrams / 1000
		result.WasteKg += weightKg

		carbon, water, ok := c.blendedMaterialImpact(comp, weightKg, &diags)
		if !ok {
			continue
		}
		result.CarbonKg += carbon
		result.WaterL += water
	}

	return result, diags, nil
}

// blendedMaterialImpact blends virgin and recycled factors by the
// component's recycled content:
//
//	weightKg * (virginFraction*virginFactor + recycledFraction*recycledFactor)
//
// A material with no recycled-pathway factor falls back to the virgin factor
// for the full weight.
func (c *Calculator) blendedMaterialImpact(comp entity.PackagingComponent, weightKg float64, diags *[]entity.Diagnostic) (carbon, water float64, ok bool) {
	virgin, haveVirgin := c.table.LookupPathway(comp.MaterialKey, factors.PathwayVirgin)
	if !haveVirgin {
		virgin, haveVirgin = c.table.Lookup(comp.MaterialKey)
	}
	if !haveVirgin {
		*diags = append(*diags, entity.Diagnostic{
			Code:    entity.DiagMissingFactor,
			Subject: comp.MaterialKey,
			Detail:  fmt.Sprintf("%s material has no factor entry, contributes zero", comp.Kind),
		})
		return 0, 0, false
	}

	recycledFraction := comp.RecycledContentPercent / 100
	virginFraction := 1 - recycledFraction

	recycled, haveRecycled := c.table.LookupPathway(comp.MaterialKey, factors.PathwayRecycled)
	if !haveRecycled {
		recycled = virgin
	}

	carbon = weightKg * (virginFraction*virgin.KgCO2ePerUnit + recycledFraction*recycled.KgCO2ePerUnit)
	water = weightKg * (virginFraction*virgin.WaterLPerUnit + recycledFraction*recycled.WaterLPerUnit)
	return carbon, water, true
}

// GrossUnitWeightKg estimates the shipped mass of one product unit:
// packaging plus every mass-denominated ingredient. Volume-denominated
// ingredients are taken at water density, which is how beverage transport
// weight is conventionally approximated.
func GrossUnitWeightKg(p *entity.Product) float64 {
	kg := p.PackagingWeightKg()
	for _, ing := range p.Ingredients {
		if m, err := units.ToKilograms(ing.Amount, ing.Unit); err == nil {
			kg += m
			continue
		}
		if l, err := units.ToLiters(ing.Amount, ing.Unit); err == nil {
			kg += l
		}
	}
	return kg
}

// convertToFactorUnit converts an ingredient quantity into the unit its
// factor is expressed in. Mass and volume dimensions are both supported;
// mixing dimensions is an error.
func convertToFactorUnit(amount float64, fromUnit, factorUnit string) (float64, error) {
	from, fromCanonical, err := units.Convert(amount, fromUnit)
	if err != nil {
		return 0, err
	}
	one, toCanonical, err := units.Convert(1, factorUnit)
	if err != nil {
		return 0, err
	}
	if fromCanonical != toCanonical {
		return 0, fmt.Errorf("cannot convert %s to %s", fromUnit, factorUnit)
	}
	return from / one, nil
}
