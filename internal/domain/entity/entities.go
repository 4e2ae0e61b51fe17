package entity

import (
	"time"

	"github.com/google/uuid"
)

// Company represents a reporting company
type Company struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Country   string    `json:"country,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ingredient is one line of a product's bill of materials. The list is
// ordered; duplicate names are summed during calculation, never deduplicated.
type Ingredient struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
	Unit   string  `json:"unit"`
}

// PackagingKind identifies a packaging component role. A bottle with a
// built-in closure is modeled as a bottle component only; there is no empty
// closure component.
type PackagingKind string

const (
	PackagingBottle       PackagingKind = "bottle"
	PackagingLabel        PackagingKind = "label"
	PackagingClosure      PackagingKind = "closure"
	PackagingSecondaryBox PackagingKind = "secondary_box"
	PackagingFiller       PackagingKind = "filler"
)

// PackagingComponent is one physical packaging part of a product unit.
type PackagingComponent struct {
	Kind                   PackagingKind `json:"kind"`
	MaterialKey            string        `json:"material_key"`
	WeightGrams            float64       `json:"weight_grams"`
	RecycledContentPercent float64       `json:"recycled_content_percent"`
}

// Product represents a sellable product with its bill of materials. Optional
// numeric fields are pointers so an unreported value is never conflated with
// zero. Per-unit impact is computed fresh on demand, not cached here, because
// factor tables can change between computations.
type Product struct {
	ID                     uuid.UUID            `json:"id"`
	CompanyID              uuid.UUID            `json:"company_id"`
	Name                   string               `json:"name"`
	Ingredients            []Ingredient         `json:"ingredients"`
	Packaging              []PackagingComponent `json:"packaging"`
	AnnualProductionVolume *float64             `json:"annual_production_volume,omitempty"`
	ProductionUnit         string               `json:"production_unit,omitempty"`
	AvgTransportDistanceKm *float64             `json:"avg_transport_distance_km,omitempty"`
	RecyclingRatePercent   *float64             `json:"recycling_rate_percent,omitempty"`
	CreatedAt              time.Time            `json:"created_at"`
	UpdatedAt              time.Time            `json:"updated_at"`
}

// PackagingWeightKg returns the total packaging mass of one product unit.
func (p *Product) PackagingWeightKg() float64 {
	var grams float64
	for _, c := range p.Packaging {
		grams += c.WeightGrams
	}
	return grams / 1000
}

// MonthlyFacilityRecord is one month of utility readings for a company.
// Keyed by (company_id, month); a later save for the same month overwrites.
// Nil fields mean "not yet reported", which is distinct from a reported zero.
type MonthlyFacilityRecord struct {
	ID               uuid.UUID `json:"id"`
	CompanyID        uuid.UUID `json:"company_id"`
	Month            time.Time `json:"month"` // first of month, UTC
	ElectricityKwh   *float64  `json:"electricity_kwh,omitempty"`
	NaturalGasM3     *float64  `json:"natural_gas_m3,omitempty"`
	WaterM3          *float64  `json:"water_m3,omitempty"`
	ProductionVolume *float64  `json:"production_volume,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HasAnyReading reports whether at least one utility field was reported.
func (r *MonthlyFacilityRecord) HasAnyReading() bool {
	return r.ElectricityKwh != nil || r.NaturalGasM3 != nil || r.WaterM3 != nil || r.ProductionVolume != nil
}

// DataQuality grades the completeness of a trailing-12-month window.
type DataQuality string

const (
	DataQualityHigh   DataQuality = "high"   // >= 10 of 12 months
	DataQualityMedium DataQuality = "medium" // 6..9 of 12 months
	DataQualityLow    DataQuality = "low"
)

// FacilityAggregate is the derived rollup of a company's trailing-12-month
// facility readings. It is computed, never stored.
type FacilityAggregate struct {
	CompanyID             uuid.UUID   `json:"company_id"`
	From                  time.Time   `json:"from"`
	To                    time.Time   `json:"to"` // exclusive
	TotalElectricityKwh   float64     `json:"total_electricity_kwh"`
	TotalNaturalGasM3     float64     `json:"total_natural_gas_m3"`
	TotalWaterM3          float64     `json:"total_water_m3"`
	TotalProductionVolume float64     `json:"total_production_volume"`
	MonthCount            int         `json:"month_count"`
	DataQuality           DataQuality `json:"data_quality"`
	MissingMonths         []string    `json:"missing_months"` // "2025-06", ascending
}

// MonthlyAverage divides a window total by the number of reported months,
// returning 0 for an empty window.
func (a *FacilityAggregate) MonthlyAverage(total float64) float64 {
	if a.MonthCount == 0 {
		return 0
	}
	return total / float64(a.MonthCount)
}

// AnnualProjection extrapolates a window total to a full year.
func (a *FacilityAggregate) AnnualProjection(total float64) float64 {
	return a.MonthlyAverage(total) * 12
}

// EmissionCategory identifies one slice of the emissions breakdown.
type EmissionCategory string

const (
	CategoryScope1Direct   EmissionCategory = "scope1_direct"
	CategoryScope2Energy   EmissionCategory = "scope2_purchased_energy"
	CategoryPurchasedGoods EmissionCategory = "cat1_purchased_goods"
	CategoryFuelEnergy     EmissionCategory = "cat3_fuel_energy"
	CategoryTransport      EmissionCategory = "cat4_transport"
	CategoryEndOfLife      EmissionCategory = "cat12_end_of_life"
)

// UnitImpact is the per-unit footprint of one product unit.
type UnitImpact struct {
	CarbonKg float64 `json:"carbon_kg"`
	WaterL   float64 `json:"water_l"`
	WasteKg  float64 `json:"waste_kg"`
}

// ProductEmission is one product's line in an emissions result. Unscaled
// marks a product with no reported annual volume: its per-unit figure is
// kept for the audit trail but contributes nothing to the totals.
type ProductEmission struct {
	ProductID  uuid.UUID  `json:"product_id"`
	Name       string     `json:"name"`
	UnitImpact UnitImpact `json:"unit_impact"`
	TonnesCO2e float64    `json:"tonnes_co2e"`
	Unscaled   bool       `json:"unscaled,omitempty"`
}

// EmissionsResult is the categorized outcome of one computation. The
// breakdown values always sum to TotalTonnesCO2e within 1e-6 relative
// tolerance.
type EmissionsResult struct {
	CompanyID       uuid.UUID                    `json:"company_id"`
	Period          time.Time                    `json:"period"`
	TotalTonnesCO2e float64                      `json:"total_tonnes_co2e"`
	Breakdown       map[EmissionCategory]float64 `json:"breakdown"` // tonnes
	PerProduct      []ProductEmission            `json:"per_product"`
	Diagnostics     []Diagnostic                 `json:"diagnostics,omitempty"`
	FactorVersion   string                       `json:"factor_version"`
	ComputedAt      time.Time                    `json:"computed_at"`
}

// StoredFactor is the persisted form of one emission-factor row. Rows are
// written once per pack version and never mutated.
type StoredFactor struct {
	ID            uuid.UUID `json:"id"`
	Version       string    `json:"version"`
	Key           string    `json:"key"`
	Pathway       string    `json:"pathway,omitempty"`
	Unit          string    `json:"unit"`
	KgCO2ePerUnit float64   `json:"kg_co2e_per_unit"`
	WaterLPerUnit float64   `json:"water_l_per_unit,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// KpiDefinition describes a tracked indicator. Expression, when set, is an
// expr formula over the period aggregates (total_co2e, electricity_kwh,
// production_volume, ...) used to derive intensity-style values; an empty
// expression snapshots total_co2e directly.
type KpiDefinition struct {
	ID         uuid.UUID `json:"id"`
	CompanyID  uuid.UUID `json:"company_id"`
	Key        string    `json:"key"`
	Name       string    `json:"name"`
	Unit       string    `json:"unit,omitempty"`
	Expression string    `json:"expression,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// KpiSnapshot is an immutable point-in-time KPI value. Snapshots are
// append-only; the engine never mutates one after creation.
type KpiSnapshot struct {
	ID              uuid.UUID         `json:"id"`
	CompanyID       uuid.UUID         `json:"company_id"`
	KpiDefinitionID uuid.UUID         `json:"kpi_definition_id"`
	SnapshotDate    time.Time         `json:"snapshot_date"`
	Value           float64           `json:"value"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// TrendDirection classifies a KPI series movement.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// TrendResult summarizes a KPI series over a look-back window.
type TrendResult struct {
	Trend         TrendDirection `json:"trend"`
	ChangePercent float64        `json:"change_percent"`
	Min           float64        `json:"min"`
	Max           float64        `json:"max"`
	Mean          float64        `json:"mean"`
	Count         int            `json:"count"`
	ZeroBaseline  bool           `json:"zero_baseline,omitempty"` // first value was 0, change undefined
}

// Goal is a reduction target for one KPI. At most one goal is active per
// (company, KPI); setting a new target supersedes the old goal.
type Goal struct {
	ID                     uuid.UUID `json:"id"`
	CompanyID              uuid.UUID `json:"company_id"`
	KpiDefinitionID        uuid.UUID `json:"kpi_definition_id"`
	BaselineValue          float64   `json:"baseline_value"`
	TargetReductionPercent float64   `json:"target_reduction_percent"` // (0,100]
	TargetDate             time.Time `json:"target_date"`
	CreatedAt              time.Time `json:"created_at"`
}

// TargetValue returns the absolute value the goal aims for.
func (g *Goal) TargetValue() float64 {
	return g.BaselineValue * (1 - g.TargetReductionPercent/100)
}

// GoalStatus classifies goal progress.
type GoalStatus string

const (
	GoalAchieved GoalStatus = "achieved"
	GoalBehind   GoalStatus = "behind"
	GoalAtRisk   GoalStatus = "at_risk"
	GoalOnTrack  GoalStatus = "on_track"
)

// GoalProgress is the classification outcome for a goal. ProgressPercent is
// clamped to [0,100] for display; RawProgress keeps the unclamped value so
// early achievement (> 100) stays detectable.
type GoalProgress struct {
	ProgressPercent float64    `json:"progress_percent"`
	RawProgress     float64    `json:"raw_progress"`
	TargetValue     float64    `json:"target_value"`
	Status          GoalStatus `json:"status"`
}

// JobStatus represents the status of a batch job
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// JobType represents the type of batch job
type JobType string

const (
	JobTypeSnapshotHistory  JobType = "SNAPSHOT_HISTORY"
	JobTypeRecomputeAll     JobType = "RECOMPUTE_ALL"
	JobTypeRecomputeCompany JobType = "RECOMPUTE_COMPANY"
)

// BatchJob represents a background job for large operations
type BatchJob struct {
	ID               uuid.UUID              `json:"id"`
	JobType          JobType                `json:"job_type"`
	Status           JobStatus              `json:"status"`
	TotalRecords     int64                  `json:"total_records"`
	ProcessedRecords int64                  `json:"processed_records"`
	FailedRecords    int64                  `json:"failed_records"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	ErrorMessage     string                 `json:"error_message,omitempty"`
	StartedAt        *time.Time             `json:"started_at,omitempty"`
	FinishedAt       *time.Time             `json:"finished_at,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
}

// Progress returns the progress percentage
func (b *BatchJob) Progress() float64 {
	if b.TotalRecords == 0 {
		return 0
	}
	return float64(b.ProcessedRecords) / float64(b.TotalRecords) * 100
}
