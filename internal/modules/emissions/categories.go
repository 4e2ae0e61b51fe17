package emissions

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/greensight/sustain-engine/internal/domain/entity"
	"github.com/greensight/sustain-engine/internal/modules/impact"
	"github.com/greensight/sustain-engine/pkg/factors"
)

// companyInputs is the shared point-in-time input set every category
// calculator reads from.
type companyInputs struct {
	products   []*entity.Product
	unitImpact map[uuid.UUID]entity.UnitImpact
	skipped    map[uuid.UUID]bool
	agg        *entity.FacilityAggregate
	table      *factors.Table
}

// categoryCalculator computes one category's contribution in kg CO2e.
// populated is false when the category's inputs are absent entirely, in
// which case the category is omitted from the breakdown rather than reported
// as zero.
type categoryCalculator interface {
	Category() entity.EmissionCategory
	ComputeKg(in *companyInputs) (kg float64, populated bool, diags []entity.Diagnostic)
}

// scope1Direct applies the direct-combustion factor to on-site natural gas.
type scope1Direct struct{}

func (scope1Direct) Category() entity.EmissionCategory { return entity.CategoryScope1Direct }

func (scope1Direct) ComputeKg(in *companyInputs) (float64, bool, []entity.Diagnostic) {
	return energyCategoryKg(in.agg.TotalNaturalGasM3, factors.KeyNaturalGas, in.table)
}

// scope2Energy applies the grid factor to purchased electricity.
type scope2Energy struct{}

func (scope2Energy) Category() entity.EmissionCategory { return entity.CategoryScope2Energy }

func (scope2Energy) ComputeKg(in *companyInputs) (float64, bool, []entity.Diagnostic) {
	return energyCategoryKg(in.agg.TotalElectricityKwh, factors.KeyGridElectricity, in.table)
}

// purchasedGoods scales each product's per-unit carbon by its annual volume.
// Facility energy never enters this category; the unit impact calculator
// covers ingredients and packaging only, which is what keeps Scope 1/2 and
// Category 1 disjoint.
type purchasedGoods struct{}

func (purchasedGoods) Category() entity.EmissionCategory { return entity.CategoryPurchasedGoods }

func (purchasedGoods) ComputeKg(in *companyInputs) (float64, bool, []entity.Diagnostic) {
	var kg float64
	populated := false
	for _, p := range in.products {
		if in.skipped[p.ID] {
			continue
		}
		populated = true
		vol, ok := annualVolume(p)
		if !ok {
			continue
		}
		kg += in.unitImpact[p.ID].CarbonKg * vol
	}
	return kg, populated, nil
}

// fuelEnergyUpstream applies well-to-tank factors to the same facility
// energy quantities Scope 1/2 already covered. This is a second accounting
// lens on the same physical consumption, not additional consumption, so it
// uses the separate (smaller) WTT factors.
type fuelEnergyUpstream struct{}

func (fuelEnergyUpstream) Category() entity.EmissionCategory { return entity.CategoryFuelEnergy }

func (fuelEnergyUpstream) ComputeKg(in *companyInputs) (float64, bool, []entity.Diagnostic) {
	gasKg, gasPopulated, gasDiags := energyCategoryKg(in.agg.TotalNaturalGasM3, factors.KeyNaturalGasWTT, in.table)
	elecKg, elecPopulated, elecDiags := energyCategoryKg(in.agg.TotalElectricityKwh, factors.KeyGridElectricityWTT, in.table)
	return gasKg + elecKg, gasPopulated || elecPopulated, append(gasDiags, elecDiags...)
}

// transportation computes distribution emissions per product as
// unit weight (t) x distance (km) x annual volume x road-freight factor.
// Products without a distance or volume are simply not part of the category.
type transportation struct{}

func (transportation) Category() entity.EmissionCategory { return entity.CategoryTransport }

func (transportation) ComputeKg(in *companyInputs) (float64, bool, []entity.Diagnostic) {
	var kg float64
	var diags []entity.Diagnostic
	populated := false

	for _, p := range in.products {
		if in.skipped[p.ID] || p.AvgTransportDistanceKm == nil {
			continue
		}
		vol, ok := annualVolume(p)
		if !ok {
			continue
		}

		factor, found := in.table.Lookup(factors.KeyRoadFreight)
		if !found {
			diags = append(diags, entity.Diagnostic{
				Code:    entity.DiagMissingFactor,
				Subject: factors.KeyRoadFreight,
				Detail:  "transport factor missing, category omitted",
			})
			return 0, false, diags
		}

		populated = true
		unitWeightTonnes := impact.GrossUnitWeightKg(p) / 1000
		kg += unitWeightTonnes * *p.AvgTransportDistanceKm * vol * factor.KgCO2ePerUnit
	}
	return kg, populated, diags
}

// endOfLife splits each product's packaging mass into recycled and landfill
// fractions by its recycling rate and applies the per-material disposal
// factors.
type endOfLife struct{}

func (endOfLife) Category() entity.EmissionCategory { return entity.CategoryEndOfLife }

func (endOfLife) ComputeKg(in *companyInputs) (float64, bool, []entity.Diagnostic) {
	var kg float64
	var diags []entity.Diagnostic
	populated := false

	for _, p := range in.products {
		if in.skipped[p.ID] || p.RecyclingRatePercent == nil {
			continue
		}
		vol, ok := annualVolume(p)
		if !ok {
			continue
		}

		recycledFraction := *p.RecyclingRatePercent / 100
		for _, comp := range p.Packaging {
			weightKg := comp.WeightGrams / 1000

			recycling, haveRecycling := in.table.LookupPathway(comp.MaterialKey, factors.PathwayRecycling)
			landfill, haveLandfill := in.table.LookupPathway(comp.MaterialKey, factors.PathwayLandfill)
			if !haveRecycling && !haveLandfill {
				diags = append(diags, entity.Diagnostic{
					Code:    entity.DiagMissingFactor,
					Subject: comp.MaterialKey,
					Detail:  fmt.Sprintf("no disposal factors for %s packaging, contributes zero", comp.Kind),
				})
				continue
			}

			populated = true
			kg += weightKg * recycledFraction * recycling.KgCO2ePerUnit * vol
			kg += weightKg * (1 - recycledFraction) * landfill.KgCO2ePerUnit * vol
		}
	}
	return kg, populated, diags
}

// energyCategoryKg multiplies a facility energy total by its carrier factor.
// A zero total means the quantity was never reported in the window; the
// category is then omitted rather than reported as zero.
func energyCategoryKg(total float64, key string, table *factors.Table) (float64, bool, []entity.Diagnostic) {
	if total == 0 {
		return 0, false, nil
	}
	factor, ok := table.Lookup(key)
	if !ok {
		return 0, false, []entity.Diagnostic{{
			Code:    entity.DiagMissingFactor,
			Subject: key,
			Detail:  "energy factor missing, category omitted",
		}}
	}
	return total * factor.KgCO2ePerUnit, true, nil
}
