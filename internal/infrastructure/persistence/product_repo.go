package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greensight/sustain-engine/internal/domain/entity"
	"github.com/greensight/sustain-engine/internal/domain/repository"
)

// productRepo implements repository.ProductRepository. The bill of materials
// (ingredients and packaging) is stored as JSONB alongside the row.
type productRepo struct {
	pool *pgxpool.Pool
}

// NewProductRepository creates a new product repository
func NewProductRepository(pool *pgxpool.Pool) repository.ProductRepository {
	return &productRepo{pool: pool}
}

func (r *productRepo) Create(ctx context.Context, product *entity.Product) error {
	query := `
		INSERT INTO products (id, company_id, name, ingredients, packaging, annual_production_volume, production_unit, avg_transport_distance_km, recycling_rate_percent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	ingredients, packaging, err := bomJSON(product)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, query,
		product.ID, product.CompanyID, product.Name, ingredients, packaging,
		product.AnnualProductionVolume, product.ProductionUnit,
		product.AvgTransportDistanceKm, product.RecyclingRatePercent,
		product.CreatedAt, product.UpdatedAt)
	return err
}

// CreateBatch uses PostgreSQL COPY protocol for high-performance bulk inserts
func (r *productRepo) CreateBatch(ctx context.Context, products []*entity.Product) (int64, error) {
	columns := []string{"id", "company_id", "name", "ingredients", "packaging", "annual_production_volume", "production_unit", "avg_transport_distance_km", "recycling_rate_percent", "created_at", "updated_at"}

	rows := make([][]interface{}, len(products))
	for i, p := range products {
		ingredients, packaging, err := bomJSON(p)
		if err != nil {
			return 0, err
		}
		rows[i] = []interface{}{
			p.ID, p.CompanyID, p.Name, ingredients, packaging,
			p.AnnualProductionVolume, p.ProductionUnit,
			p.AvgTransportDistanceKm, p.RecyclingRatePercent,
			p.CreatedAt, p.UpdatedAt,
		}
	}

	copyCount, err := r.pool.CopyFrom(ctx, pgx.Identifier{"products"}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("failed to copy products: %w", err)
	}
	return copyCount, nil
}

func (r *productRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Product, error) {
	query := `
		SELECT id, company_id, name, ingredients, packaging, annual_production_volume, production_unit, avg_transport_distance_km, recycling_rate_percent, created_at, updated_at
		FROM products WHERE id = $1
	`
	return scanProduct(r.pool.QueryRow(ctx, query, id))
}

func (r *productRepo) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*entity.Product, error) {
	query := `
		SELECT id, company_id, name, ingredients, packaging, annual_production_volume, production_unit, avg_transport_distance_km, recycling_rate_percent, created_at, updated_at
		FROM products WHERE company_id = $1 ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*entity.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func (r *productRepo) CountByCompany(ctx context.Context, companyID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM products WHERE company_id = $1", companyID).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*entity.Product, error) {
	var p entity.Product
	var ingredients, packaging []byte
	err := row.Scan(&p.ID, &p.CompanyID, &p.Name, &ingredients, &packaging,
		&p.AnnualProductionVolume, &p.ProductionUnit,
		&p.AvgTransportDistanceKm, &p.RecyclingRatePercent,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(ingredients, &p.Ingredients); err != nil {
		return nil, fmt.Errorf("failed to decode ingredients: %w", err)
	}
	if err := json.Unmarshal(packaging, &p.Packaging); err != nil {
		return nil, fmt.Errorf("failed to decode packaging: %w", err)
	}
	return &p, nil
}

func bomJSON(p *entity.Product) ([]byte, []byte, error) {
	ingredients, err := json.Marshal(p.Ingredients)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode ingredients: %w", err)
	}
	packaging, err := json.Marshal(p.Packaging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode packaging: %w", err)
	}
	return ingredients, packaging, nil
}
