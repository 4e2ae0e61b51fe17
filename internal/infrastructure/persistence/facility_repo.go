package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greensight/sustain-engine/internal/domain/entity"
	"github.com/greensight/sustain-engine/internal/domain/repository"
)

// facilityRecordRepo implements repository.FacilityRecordRepository
type facilityRecordRepo struct {
	pool *pgxpool.Pool
}

// NewFacilityRecordRepository creates a new facility record repository
func NewFacilityRecordRepository(pool *pgxpool.Pool) repository.FacilityRecordRepository {
	return &facilityRecordRepo{pool: pool}
}

// Upsert overwrites any existing record for (company_id, month). The unique
// key is what guarantees a re-reported month never duplicates.
func (r *facilityRecordRepo) Upsert(ctx context.Context, record *entity.MonthlyFacilityRecord) error {
	query := `
		INSERT INTO monthly_facility_records (id, company_id, month, electricity_kwh, natural_gas_m3, water_m3, production_volume, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (company_id, month) DO UPDATE SET
			electricity_kwh = EXCLUDED.electricity_kwh,
			natural_gas_m3 = EXCLUDED.natural_gas_m3,
			water_m3 = EXCLUDED.water_m3,
			production_volume = EXCLUDED.production_volume,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		record.ID, record.CompanyID, record.Month,
		record.ElectricityKwh, record.NaturalGasM3, record.WaterM3, record.ProductionVolume,
		record.CreatedAt, record.UpdatedAt)
	return err
}

// UpsertBatch copies records into a temp table then upserts, the same
// COPY-then-merge approach used for other bulk writes.
func (r *facilityRecordRepo) UpsertBatch(ctx context.Context, records []*entity.MonthlyFacilityRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tempTable := fmt.Sprintf("temp_mfr_%d", time.Now().UnixNano())
	_, err = tx.Exec(ctx, fmt.Sprintf(`
		CREATE TEMP TABLE %s (
			id UUID,
			company_id UUID,
			month DATE,
			electricity_kwh DECIMAL(18,6),
			natural_gas_m3 DECIMAL(18,6),
			water_m3 DECIMAL(18,6),
			production_volume DECIMAL(18,6),
			created_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ
		) ON COMMIT DROP
	`, tempTable))
	if err != nil {
		return 0, fmt.Errorf("failed to create temp table: %w", err)
	}

	columns := []string{"id", "company_id", "month", "electricity_kwh", "natural_gas_m3", "water_m3", "production_volume", "created_at", "updated_at"}
	rows := make([][]interface{}, len(records))
	for i, rec := range records {
		rows[i] = []interface{}{
			rec.ID, rec.CompanyID, rec.Month,
			rec.ElectricityKwh, rec.NaturalGasM3, rec.WaterM3, rec.ProductionVolume,
			rec.CreatedAt, rec.UpdatedAt,
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{tempTable}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("failed to copy to temp table: %w", err)
	}

	_, err = tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO monthly_facility_records (id, company_id, month, electricity_kwh, natural_gas_m3, water_m3, production_volume, created_at, updated_at)
		SELECT id, company_id, month, electricity_kwh, natural_gas_m3, water_m3, production_volume, created_at, updated_at FROM %s
		ON CONFLICT (company_id, month) DO UPDATE SET
			electricity_kwh = EXCLUDED.electricity_kwh,
			natural_gas_m3 = EXCLUDED.natural_gas_m3,
			water_m3 = EXCLUDED.water_m3,
			production_volume = EXCLUDED.production_volume,
			updated_at = EXCLUDED.updated_at
	`, tempTable))
	if err != nil {
		return 0, fmt.Errorf("failed to upsert from temp table: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return copyCount, nil
}

func (r *facilityRecordRepo) GetRange(ctx context.Context, companyID uuid.UUID, from, to time.Time) ([]*entity.MonthlyFacilityRecord, error) {
	query := `
		SELECT id, company_id, month, electricity_kwh, natural_gas_m3, water_m3, production_volume, created_at, updated_at
		FROM monthly_facility_records
		WHERE company_id = $1 AND month >= $2 AND month < $3
		ORDER BY month
	`
	rows, err := r.pool.Query(ctx, query, companyID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*entity.MonthlyFacilityRecord
	for rows.Next() {
		var rec entity.MonthlyFacilityRecord
		if err := rows.Scan(&rec.ID, &rec.CompanyID, &rec.Month,
			&rec.ElectricityKwh, &rec.NaturalGasM3, &rec.WaterM3, &rec.ProductionVolume,
			&rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, nil
}
