package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greensight/sustain-engine/internal/domain/entity"
	"github.com/greensight/sustain-engine/internal/domain/repository"
)

// kpiDefinitionRepo implements repository.KpiDefinitionRepository
type kpiDefinitionRepo struct {
	pool *pgxpool.Pool
}

// NewKpiDefinitionRepository creates a new KPI definition repository
func NewKpiDefinitionRepository(pool *pgxpool.Pool) repository.KpiDefinitionRepository {
	return &kpiDefinitionRepo{pool: pool}
}

func (r *kpiDefinitionRepo) Create(ctx context.Context, def *entity.KpiDefinition) error {
	query := `
		INSERT INTO kpi_definitions (id, company_id, key, name, unit, expression, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		def.ID, def.CompanyID, def.Key, def.Name, def.Unit, def.Expression, def.CreatedAt)
	return err
}

func (r *kpiDefinitionRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.KpiDefinition, error) {
	query := `
		SELECT id, company_id, key, name, unit, expression, created_at
		FROM kpi_definitions WHERE id = $1
	`
	var d entity.KpiDefinition
	err := r.pool.QueryRow(ctx, query, id).Scan(&d.ID, &d.CompanyID, &d.Key, &d.Name, &d.Unit, &d.Expression, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *kpiDefinitionRepo) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*entity.KpiDefinition, error) {
	query := `
		SELECT id, company_id, key, name, unit, expression, created_at
		FROM kpi_definitions WHERE company_id = $1 ORDER BY key
	`
	rows, err := r.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []*entity.KpiDefinition
	for rows.Next() {
		var d entity.KpiDefinition
		if err := rows.Scan(&d.ID, &d.CompanyID, &d.Key, &d.Name, &d.Unit, &d.Expression, &d.CreatedAt); err != nil {
			return nil, err
		}
		defs = append(defs, &d)
	}
	return defs, nil
}

// kpiSnapshotRepo implements repository.KpiSnapshotRepository
type kpiSnapshotRepo struct {
	pool *pgxpool.Pool
}

// NewKpiSnapshotRepository creates a new KPI snapshot repository
func NewKpiSnapshotRepository(pool *pgxpool.Pool) repository.KpiSnapshotRepository {
	return &kpiSnapshotRepo{pool: pool}
}

// Append persists a snapshot. The unique key on (company_id,
// kpi_definition_id, snapshot_date) serializes concurrent appends for the
// same period to last-write-wins, which is the contract the engine requires
// from its storage collaborator.
func (r *kpiSnapshotRepo) Append(ctx context.Context, snapshot *entity.KpiSnapshot) error {
	query := `
		INSERT INTO kpi_snapshots (id, company_id, kpi_definition_id, snapshot_date, value, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (company_id, kpi_definition_id, snapshot_date) DO UPDATE SET
			value = EXCLUDED.value,
			metadata = EXCLUDED.metadata,
			created_at = EXCLUDED.created_at
	`
	metadata, _ := json.Marshal(snapshot.Metadata)
	_, err := r.pool.Exec(ctx, query,
		snapshot.ID, snapshot.CompanyID, snapshot.KpiDefinitionID,
		snapshot.SnapshotDate, snapshot.Value, metadata, snapshot.CreatedAt)
	return err
}

func (r *kpiSnapshotRepo) AppendBatch(ctx context.Context, snapshots []*entity.KpiSnapshot) (int64, error) {
	if len(snapshots) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tempTable := fmt.Sprintf("temp_ks_%d", time.Now().UnixNano())
	_, err = tx.Exec(ctx, fmt.Sprintf(`
		CREATE TEMP TABLE %s (
			id UUID,
			company_id UUID,
			kpi_definition_id UUID,
			snapshot_date DATE,
			value DECIMAL(18,6),
			metadata JSONB,
			created_at TIMESTAMPTZ
		) ON COMMIT DROP
	`, tempTable))
	if err != nil {
		return 0, fmt.Errorf("failed to create temp table: %w", err)
	}

	columns := []string{"id", "company_id", "kpi_definition_id", "snapshot_date", "value", "metadata", "created_at"}
	rows := make([][]interface{}, len(snapshots))
	for i, s := range snapshots {
		metadata, _ := json.Marshal(s.Metadata)
		rows[i] = []interface{}{
			s.ID, s.CompanyID, s.KpiDefinitionID, s.SnapshotDate, s.Value, metadata, s.CreatedAt,
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{tempTable}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("failed to copy to temp table: %w", err)
	}

	_, err = tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO kpi_snapshots (id, company_id, kpi_definition_id, snapshot_date, value, metadata, created_at)
		SELECT id, company_id, kpi_definition_id, snapshot_date, value, metadata, created_at FROM %s
		ON CONFLICT (company_id, kpi_definition_id, snapshot_date) DO UPDATE SET
			value = EXCLUDED.value,
			metadata = EXCLUDED.metadata,
			created_at = EXCLUDED.created_at
	`, tempTable))
	if err != nil {
		return 0, fmt.Errorf("failed to upsert from temp table: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return copyCount, nil
}

func (r *kpiSnapshotRepo) GetWindow(ctx context.Context, companyID, kpiID uuid.UUID, from, to time.Time) ([]*entity.KpiSnapshot, error) {
	query := `
		SELECT id, company_id, kpi_definition_id, snapshot_date, value, metadata, created_at
		FROM kpi_snapshots
		WHERE company_id = $1 AND kpi_definition_id = $2 AND snapshot_date >= $3 AND snapshot_date < $4
		ORDER BY snapshot_date
	`
	rows, err := r.pool.Query(ctx, query, companyID, kpiID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []*entity.KpiSnapshot
	for rows.Next() {
		var s entity.KpiSnapshot
		var metadata []byte
		if err := rows.Scan(&s.ID, &s.CompanyID, &s.KpiDefinitionID, &s.SnapshotDate, &s.Value, &metadata, &s.CreatedAt); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &s.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode snapshot metadata: %w", err)
			}
		}
		snapshots = append(snapshots, &s)
	}
	return snapshots, nil
}
