package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/greensight/sustain-engine/internal/domain/entity"
)

// CompanyRepository defines the interface for company operations
type CompanyRepository interface {
	// Create creates a new company
	Create(ctx context.Context, company *entity.Company) error
	// GetByID retrieves a company by ID
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Company, error)
	// List retrieves companies with pagination
	List(ctx context.Context, limit, offset int) ([]*entity.Company, error)
	// ListIDs retrieves company IDs with pagination (for batch processing)
	ListIDs(ctx context.Context, limit, offset int) ([]uuid.UUID, error)
	// Count returns the total count of companies
	Count(ctx context.Context) (int64, error)
}

// ProductRepository defines the interface for product operations
type ProductRepository interface {
	// Create creates a new product
	Create(ctx context.Context, product *entity.Product) error
	// CreateBatch creates multiple products using COPY protocol
	CreateBatch(ctx context.Context, products []*entity.Product) (int64, error)
	// GetByID retrieves a product by ID
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Product, error)
	// ListByCompany retrieves all products for a company
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*entity.Product, error)
	// CountByCompany returns the count of products for a company
	CountByCompany(ctx context.Context, companyID uuid.UUID) (int64, error)
}

// FacilityRecordRepository defines the interface for monthly facility records.
// Records are uniquely keyed by (company_id, month); Upsert overwrites an
// existing month rather than duplicating it.
type FacilityRecordRepository interface {
	// Upsert creates or overwrites the record for (companyID, month)
	Upsert(ctx context.Context, record *entity.MonthlyFacilityRecord) error
	// UpsertBatch creates or overwrites multiple records
	UpsertBatch(ctx context.Context, records []*entity.MonthlyFacilityRecord) (int64, error)
	// GetRange retrieves records for [from, to) ordered by month ascending
	GetRange(ctx context.Context, companyID uuid.UUID, from, to time.Time) ([]*entity.MonthlyFacilityRecord, error)
}

// ImpactFactorRepository defines the interface for emission factor reference
// data. Factors are immutable at runtime; writes happen only through seeding.
type ImpactFactorRepository interface {
	// GetByKey retrieves a factor by key and pathway ("" for none)
	GetByKey(ctx context.Context, key, pathway string) (*entity.StoredFactor, error)
	// ListAll retrieves every factor of the given version
	ListAll(ctx context.Context, version string) ([]*entity.StoredFactor, error)
	// LatestVersion returns the most recently loaded factor version
	LatestVersion(ctx context.Context) (string, error)
	// CreateBatch loads a factor pack using COPY protocol
	CreateBatch(ctx context.Context, factors []*entity.StoredFactor) (int64, error)
}

// KpiDefinitionRepository defines the interface for KPI definitions
type KpiDefinitionRepository interface {
	// Create creates a new KPI definition
	Create(ctx context.Context, def *entity.KpiDefinition) error
	// GetByID retrieves a definition by ID
	GetByID(ctx context.Context, id uuid.UUID) (*entity.KpiDefinition, error)
	// ListByCompany retrieves all definitions for a company
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*entity.KpiDefinition, error)
}

// KpiSnapshotRepository defines the interface for KPI snapshots. Snapshots
// are append-only; a concurrent append for the same (company, kpi, date) key
// resolves to last-write-wins in the storage layer.
type KpiSnapshotRepository interface {
	// Append persists a snapshot
	Append(ctx context.Context, snapshot *entity.KpiSnapshot) error
	// AppendBatch persists multiple snapshots
	AppendBatch(ctx context.Context, snapshots []*entity.KpiSnapshot) (int64, error)
	// GetWindow retrieves snapshots for [from, to) ordered by date ascending
	GetWindow(ctx context.Context, companyID, kpiID uuid.UUID, from, to time.Time) ([]*entity.KpiSnapshot, error)
}

// GoalRepository defines the interface for reduction goals
type GoalRepository interface {
	// Upsert creates a goal, superseding any active goal for the same
	// (company, kpi) key
	Upsert(ctx context.Context, goal *entity.Goal) error
	// GetActive retrieves the active goal for a (company, kpi) key
	GetActive(ctx context.Context, companyID, kpiID uuid.UUID) (*entity.Goal, error)
	// ListByCompany retrieves all active goals for a company
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*entity.Goal, error)
}

// BatchJobRepository defines the interface for batch job operations
type BatchJobRepository interface {
	// Create creates a new batch job
	Create(ctx context.Context, job *entity.BatchJob) error
	// GetByID retrieves a job by ID
	GetByID(ctx context.Context, id uuid.UUID) (*entity.BatchJob, error)
	// UpdateStatus updates a job's status and progress
	UpdateStatus(ctx context.Context, id uuid.UUID, status entity.JobStatus, processed, failed int64) error
	// UpdateProgress updates a job's progress atomically
	UpdateProgress(ctx context.Context, id uuid.UUID, processed, failed int64) error
	// Complete marks a job as completed
	Complete(ctx context.Context, id uuid.UUID) error
	// Fail marks a job as failed
	Fail(ctx context.Context, id uuid.UUID, errorMsg string) error
	// ListRecent retrieves recent jobs
	ListRecent(ctx context.Context, limit int) ([]*entity.BatchJob, error)
}
