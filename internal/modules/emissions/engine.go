// Package emissions combines product impacts and facility aggregates into a
// categorized greenhouse-gas result: Scope 1, Scope 2, and the Scope 3
// categories the engine covers. Each physical quantity is counted in exactly
// one category; the breakdown always sums to the reported total.
package emissions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/greensight/sustain-engine/internal/domain/entity"
	"github.com/greensight/sustain-engine/internal/domain/repository"
	"github.com/greensight/sustain-engine/internal/modules/facility"
	"github.com/greensight/sustain-engine/internal/modules/impact"
	"github.com/greensight/sustain-engine/pkg/factors"
	"github.com/greensight/sustain-engine/pkg/units"
)

// Engine computes a company's categorized emissions for a period.
type Engine struct {
	products    repository.ProductRepository
	facility    *facility.Aggregator
	impact      *impact.Calculator
	table       *factors.Table
	timeout     time.Duration
	calculators []categoryCalculator
}

// NewEngine creates a new emissions engine
func NewEngine(
	products repository.ProductRepository,
	facilityAgg *facility.Aggregator,
	impactCalc *impact.Calculator,
	table *factors.Table,
	timeout time.Duration,
) *Engine {
	return &Engine{
		products: products,
		facility: facilityAgg,
		impact:   impactCalc,
		table:    table,
		timeout:  timeout,
		calculators: []categoryCalculator{
			scope1Direct{},
			scope2Energy{},
			purchasedGoods{},
			fuelEnergyUpstream{},
			transportation{},
			endOfLife{},
		},
	}
}

// ComputeEmissions computes the categorized result for a company as of the
// given period. The computation is a pure function of the stored inputs:
// identical input state yields identical results. A company with no products
// and no facility data yields a well-formed all-zero result.
func (e *Engine) ComputeEmissions(ctx context.Context, companyID uuid.UUID, period time.Time) (*entity.EmissionsResult, error) {
	products, err := e.fetchProducts(ctx, companyID)
	if err != nil {
		return nil, err
	}

	agg, err := e.facility.Aggregate(ctx, companyID, period)
	if err != nil {
		return nil, err
	}

	in := &companyInputs{
		products:   products,
		unitImpact: make(map[uuid.UUID]entity.UnitImpact, len(products)),
		skipped:    make(map[uuid.UUID]bool),
		agg:        agg,
		table:      e.table,
	}

	result := &entity.EmissionsResult{
		CompanyID:     companyID,
		Period:        period,
		Breakdown:     make(map[entity.EmissionCategory]float64),
		FactorVersion: e.table.Version(),
		ComputedAt:    time.Now().UTC(),
	}

	// Per-unit impacts are computed once and shared by every category
	// calculator. A product with structurally broken data is skipped with a
	// diagnostic; it never aborts the company-level computation.
	for _, p := range products {
		unit, diags, err := e.impact.ComputeUnitImpact(p)
		result.Diagnostics = append(result.Diagnostics, diags...)
		if err != nil {
			in.skipped[p.ID] = true
			result.Diagnostics = append(result.Diagnostics, entity.Diagnostic{
				Code:    entity.DiagSkippedItem,
				Subject: p.Name,
				Detail:  err.Error(),
			})
			continue
		}
		in.unitImpact[p.ID] = unit
	}

	var totalKg float64
	for _, calc := range e.calculators {
		kg, populated, diags := calc.ComputeKg(in)
		result.Diagnostics = append(result.Diagnostics, diags...)
		if !populated {
			continue
		}
		// kg -> tonnes happens only here, at the result boundary.
		result.Breakdown[calc.Category()] = units.KgToTonnes(kg)
		totalKg += kg
	}
	result.TotalTonnesCO2e = units.KgToTonnes(totalKg)

	for _, p := range products {
		if in.skipped[p.ID] {
			continue
		}
		unit := in.unitImpact[p.ID]
		line := entity.ProductEmission{
			ProductID:  p.ID,
			Name:       p.Name,
			UnitImpact: unit,
		}
		if vol, ok := annualVolume(p); ok {
			line.TonnesCO2e = units.KgToTonnes(unit.CarbonKg * vol)
		} else {
			line.Unscaled = true
			result.Diagnostics = append(result.Diagnostics, entity.Diagnostic{
				Code:    entity.DiagUnscaled,
				Subject: p.Name,
				Detail:  "no annual production volume, per-unit figure not scaled",
			})
		}
		result.PerProduct = append(result.PerProduct, line)
	}

	return result, nil
}

func (e *Engine) fetchProducts(ctx context.Context, companyID uuid.UUID) ([]*entity.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	products, err := e.products.ListByCompany(ctx, companyID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("products for %s: %w", companyID, entity.ErrDependencyTimeout)
		}
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

func annualVolume(p *entity.Product) (float64, bool) {
	if p.AnnualProductionVolume == nil || *p.AnnualProductionVolume <= 0 {
		return 0, false
	}
	return *p.AnnualProductionVolume, true
}
