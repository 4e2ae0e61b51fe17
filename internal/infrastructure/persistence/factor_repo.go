package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greensight/sustain-engine/internal/domain/entity"
	"github.com/greensight/sustain-engine/internal/domain/repository"
)

// impactFactorRepo implements repository.ImpactFactorRepository
type impactFactorRepo struct {
	pool *pgxpool.Pool
}

// NewImpactFactorRepository creates a new impact factor repository
func NewImpactFactorRepository(pool *pgxpool.Pool) repository.ImpactFactorRepository {
	return &impactFactorRepo{pool: pool}
}

func (r *impactFactorRepo) GetByKey(ctx context.Context, key, pathway string) (*entity.StoredFactor, error) {
	query := `
		SELECT id, version, key, pathway, unit, kg_co2e_per_unit, water_l_per_unit, created_at
		FROM impact_factors
		WHERE key = $1 AND pathway = $2
		ORDER BY version DESC LIMIT 1
	`
	var f entity.StoredFactor
	err := r.pool.QueryRow(ctx, query, key, pathway).Scan(
		&f.ID, &f.Version, &f.Key, &f.Pathway, &f.Unit, &f.KgCO2ePerUnit, &f.WaterLPerUnit, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *impactFactorRepo) ListAll(ctx context.Context, version string) ([]*entity.StoredFactor, error) {
	query := `
		SELECT id, version, key, pathway, unit, kg_co2e_per_unit, water_l_per_unit, created_at
		FROM impact_factors WHERE version = $1 ORDER BY key, pathway
	`
	rows, err := r.pool.Query(ctx, query, version)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var factors []*entity.StoredFactor
	for rows.Next() {
		var f entity.StoredFactor
		if err := rows.Scan(&f.ID, &f.Version, &f.Key, &f.Pathway, &f.Unit, &f.KgCO2ePerUnit, &f.WaterLPerUnit, &f.CreatedAt); err != nil {
			return nil, err
		}
		factors = append(factors, &f)
	}
	return factors, nil
}

func (r *impactFactorRepo) LatestVersion(ctx context.Context) (string, error) {
	var version string
	err := r.pool.QueryRow(ctx, "SELECT COALESCE(MAX(version), '') FROM impact_factors").Scan(&version)
	return version, err
}

// CreateBatch uses PostgreSQL COPY protocol; factor packs load in one shot.
func (r *impactFactorRepo) CreateBatch(ctx context.Context, factors []*entity.StoredFactor) (int64, error) {
	columns := []string{"id", "version", "key", "pathway", "unit", "kg_co2e_per_unit", "water_l_per_unit", "created_at"}
	rows := make([][]interface{}, len(factors))
	for i, f := range factors {
		rows[i] = []interface{}{f.ID, f.Version, f.Key, f.Pathway, f.Unit, f.KgCO2ePerUnit, f.WaterLPerUnit, f.CreatedAt}
	}
	copyCount, err := r.pool.CopyFrom(ctx, pgx.Identifier{"impact_factors"}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("failed to copy impact factors: %w", err)
	}
	return copyCount, nil
}
