package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greensight/sustain-engine/internal/domain/entity"
	"github.com/greensight/sustain-engine/internal/domain/repository"
)

// goalRepo implements repository.GoalRepository
type goalRepo struct {
	pool *pgxpool.Pool
}

// NewGoalRepository creates a new goal repository
func NewGoalRepository(pool *pgxpool.Pool) repository.GoalRepository {
	return &goalRepo{pool: pool}
}

// Upsert deactivates any active goal for the (company, kpi) key and inserts
// the new one in a single transaction. Goals are superseded, never merged.
func (r *goalRepo) Upsert(ctx context.Context, goal *entity.Goal) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE goals SET is_active = false
		WHERE company_id = $1 AND kpi_definition_id = $2 AND is_active
	`, goal.CompanyID, goal.KpiDefinitionID)
	if err != nil {
		return fmt.Errorf("failed to supersede goal: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO goals (id, company_id, kpi_definition_id, baseline_value, target_reduction_percent, target_date, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, true, $7)
	`, goal.ID, goal.CompanyID, goal.KpiDefinitionID,
		goal.BaselineValue, goal.TargetReductionPercent, goal.TargetDate, goal.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert goal: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *goalRepo) GetActive(ctx context.Context, companyID, kpiID uuid.UUID) (*entity.Goal, error) {
	query := `
		SELECT id, company_id, kpi_definition_id, baseline_value, target_reduction_percent, target_date, created_at
		FROM goals
		WHERE company_id = $1 AND kpi_definition_id = $2 AND is_active
	`
	var g entity.Goal
	err := r.pool.QueryRow(ctx, query, companyID, kpiID).Scan(
		&g.ID, &g.CompanyID, &g.KpiDefinitionID,
		&g.BaselineValue, &g.TargetReductionPercent, &g.TargetDate, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *goalRepo) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*entity.Goal, error) {
	query := `
		SELECT id, company_id, kpi_definition_id, baseline_value, target_reduction_percent, target_date, created_at
		FROM goals WHERE company_id = $1 AND is_active ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var goals []*entity.Goal
	for rows.Next() {
		var g entity.Goal
		if err := rows.Scan(&g.ID, &g.CompanyID, &g.KpiDefinitionID,
			&g.BaselineValue, &g.TargetReductionPercent, &g.TargetDate, &g.CreatedAt); err != nil {
			return nil, err
		}
		goals = append(goals, &g)
	}
	return goals, nil
}
