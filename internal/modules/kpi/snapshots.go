package kpi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/greensight/sustain-engine/internal/domain/entity"
	"github.com/greensight/sustain-engine/internal/domain/repository"
	"github.com/greensight/sustain-engine/internal/modules/emissions"
	"github.com/greensight/sustain-engine/internal/modules/facility"
	"github.com/greensight/sustain-engine/pkg/formula"
)

// SnapshotService records point-in-time KPI values and serves trend and goal
// queries over them. Appending snapshots is the only mutating operation in
// the engine; everything else is a pure read.
type SnapshotService struct {
	snapshots repository.KpiSnapshotRepository
	defs      repository.KpiDefinitionRepository
	goals     repository.GoalRepository
	jobs      repository.BatchJobRepository
	engine    *emissions.Engine
	facility  *facility.Aggregator
	parser    *formula.Parser
	trend     *TrendAnalyzer
	tracker   *GoalTracker
	timeout   time.Duration
}

// NewSnapshotService creates a new snapshot service
func NewSnapshotService(
	snapshots repository.KpiSnapshotRepository,
	defs repository.KpiDefinitionRepository,
	goals repository.GoalRepository,
	jobs repository.BatchJobRepository,
	engine *emissions.Engine,
	facilityAgg *facility.Aggregator,
	trend *TrendAnalyzer,
	tracker *GoalTracker,
	timeout time.Duration,
) *SnapshotService {
	return &SnapshotService{
		snapshots: snapshots,
		defs:      defs,
		goals:     goals,
		jobs:      jobs,
		engine:    engine,
		facility:  facilityAgg,
		parser:    formula.NewParser(),
		trend:     trend,
		tracker:   tracker,
		timeout:   timeout,
	}
}

// RecordSnapshots computes the period's emissions and facility aggregates,
// evaluates every KPI definition of the company against them, and appends
// one snapshot per definition dated at the period. A definition whose
// expression fails to evaluate is skipped with a diagnostic; it does not
// abort the rest.
func (s *SnapshotService) RecordSnapshots(ctx context.Context, companyID uuid.UUID, asOf time.Time) ([]*entity.KpiSnapshot, []entity.Diagnostic, error) {
	result, err := s.engine.ComputeEmissions(ctx, companyID, asOf)
	if err != nil {
		return nil, nil, err
	}
	agg, err := s.facility.Aggregate(ctx, companyID, asOf)
	if err != nil {
		return nil, nil, err
	}

	defs, err := s.listDefinitions(ctx, companyID)
	if err != nil {
		return nil, nil, err
	}

	env := snapshotEnv(result, agg)
	diags := result.Diagnostics

	var recorded []*entity.KpiSnapshot
	now := time.Now().UTC()
	for _, def := range defs {
		value := result.TotalTonnesCO2e
		if def.Expression != "" {
			v, err := s.parser.Evaluate(def.Expression, env)
			if err != nil {
				diags = append(diags, entity.Diagnostic{
					Code:    entity.DiagSkippedItem,
					Subject: def.Key,
					Detail:  fmt.Sprintf("expression failed: %v", err),
				})
				continue
			}
			value = v
		}

		snapshot := &entity.KpiSnapshot{
			ID:              uuid.New(),
			CompanyID:       companyID,
			KpiDefinitionID: def.ID,
			SnapshotDate:    asOf,
			Value:           value,
			Metadata: map[string]string{
				"factor_version": result.FactorVersion,
				"data_quality":   string(agg.DataQuality),
			},
			CreatedAt: now,
		}
		if err := s.append(ctx, snapshot); err != nil {
			return nil, diags, err
		}
		recorded = append(recorded, snapshot)
	}
	return recorded, diags, nil
}

// AnalyzeTrend summarizes a KPI's snapshot history over the trailing
// monthsBack months.
func (s *SnapshotService) AnalyzeTrend(ctx context.Context, companyID, kpiID uuid.UUID, monthsBack int) (*entity.TrendResult, error) {
	now := time.Now().UTC()
	since := now.AddDate(0, -monthsBack, 0)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	snapshots, err := s.snapshots.GetWindow(ctx, companyID, kpiID, since, now)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("snapshots for %s: %w", kpiID, entity.ErrDependencyTimeout)
		}
		return nil, fmt.Errorf("failed to get snapshots: %w", err)
	}

	result := s.trend.Analyze(snapshots, since)
	return &result, nil
}

// ClassifyGoal classifies a goal against an explicit current value.
func (s *SnapshotService) ClassifyGoal(goal *entity.Goal, currentValue float64) entity.GoalProgress {
	return s.tracker.Classify(goal, currentValue, time.Now().UTC())
}

// ClassifyActiveGoal loads the active goal for a KPI and classifies it
// against the most recent snapshot value.
func (s *SnapshotService) ClassifyActiveGoal(ctx context.Context, companyID, kpiID uuid.UUID) (*entity.GoalProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	goal, err := s.goals.GetActive(ctx, companyID, kpiID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("goal for %s: %w", kpiID, entity.ErrDependencyTimeout)
		}
		return nil, fmt.Errorf("failed to get goal: %w", err)
	}

	current := goal.BaselineValue
	now := time.Now().UTC()
	snapshots, err := s.snapshots.GetWindow(ctx, companyID, kpiID, goal.CreatedAt, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshots: %w", err)
	}
	if len(snapshots) > 0 {
		current = snapshots[len(snapshots)-1].Value
	}

	progress := s.tracker.Classify(goal, current, now)
	return &progress, nil
}

// InitializeHistoricalSnapshots backfills monthsBack months of snapshots for
// a company, oldest first. The loop is deliberately sequential: each month's
// snapshot extends the series the next month's trend reads from. Job
// progress is updated per month.
func (s *SnapshotService) InitializeHistoricalSnapshots(ctx context.Context, jobID, companyID uuid.UUID, monthsBack int) error {
	if monthsBack <= 0 {
		return fmt.Errorf("monthsBack must be positive, got %d: %w", monthsBack, entity.ErrInvalidInput)
	}

	if err := s.jobs.UpdateStatus(ctx, jobID, entity.JobStatusRunning, 0, 0); err != nil {
		return fmt.Errorf("failed to start job: %w", err)
	}

	now := time.Now().UTC()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	var failed int64
	for i := monthsBack; i >= 1; i-- {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		asOf := current.AddDate(0, -i+1, 0)
		if _, _, err := s.RecordSnapshots(ctx, companyID, asOf); err != nil {
			if errors.Is(err, entity.ErrDependencyTimeout) {
				s.jobs.Fail(ctx, jobID, err.Error())
				return err
			}
			failed++
		}
		s.jobs.UpdateProgress(ctx, jobID, 1, 0)
	}

	if failed > 0 {
		s.jobs.UpdateStatus(ctx, jobID, entity.JobStatusRunning, int64(monthsBack)-failed, failed)
	}
	if err := s.jobs.Complete(ctx, jobID); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

func (s *SnapshotService) listDefinitions(ctx context.Context, companyID uuid.UUID) ([]*entity.KpiDefinition, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	defs, err := s.defs.ListByCompany(ctx, companyID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("kpi definitions for %s: %w", companyID, entity.ErrDependencyTimeout)
		}
		return nil, fmt.Errorf("failed to list kpi definitions: %w", err)
	}
	return defs, nil
}

func (s *SnapshotService) append(ctx context.Context, snapshot *entity.KpiSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.snapshots.Append(ctx, snapshot); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("append snapshot: %w", entity.ErrDependencyTimeout)
		}
		return fmt.Errorf("failed to append snapshot: %w", err)
	}
	return nil
}

// snapshotEnv builds the expression environment from the period aggregates.
func snapshotEnv(result *entity.EmissionsResult, agg *entity.FacilityAggregate) map[string]interface{} {
	env := map[string]interface{}{
		"total_co2e":        result.TotalTonnesCO2e,
		"electricity_kwh":   agg.TotalElectricityKwh,
		"natural_gas_m3":    agg.TotalNaturalGasM3,
		"water_m3":          agg.TotalWaterM3,
		"production_volume": agg.TotalProductionVolume,
		"month_count":       float64(agg.MonthCount),
	}
	for category, tonnes := range result.Breakdown {
		env[string(category)] = tonnes
	}
	// Categories absent from the breakdown still need a binding so
	// expressions referencing them compile.
	for _, category := range []entity.EmissionCategory{
		entity.CategoryScope1Direct,
		entity.CategoryScope2Energy,
		entity.CategoryPurchasedGoods,
		entity.CategoryFuelEnergy,
		entity.CategoryTransport,
		entity.CategoryEndOfLife,
	} {
		if _, ok := env[string(category)]; !ok {
			env[string(category)] = 0.0
		}
	}
	return env
}
