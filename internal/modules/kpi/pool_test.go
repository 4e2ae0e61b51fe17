package kpi

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greensight/sustain-engine/internal/domain/entity"
	"github.com/greensight/sustain-engine/internal/modules/emissions"
	"github.com/greensight/sustain-engine/internal/modules/facility"
	"github.com/greensight/sustain-engine/internal/modules/impact"
	"github.com/greensight/sustain-engine/pkg/factors"
)

type fakeCompanyRepo struct {
	ids []uuid.UUID
}

func (f *fakeCompanyRepo) Create(ctx context.Context, c *entity.Company) error {
	f.ids = append(f.ids, c.ID)
	return nil
}

func (f *fakeCompanyRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Company, error) {
	return &entity.Company{ID: id}, nil
}

func (f *fakeCompanyRepo) List(ctx context.Context, limit, offset int) ([]*entity.Company, error) {
	return nil, nil
}

func (f *fakeCompanyRepo) ListIDs(ctx context.Context, limit, offset int) ([]uuid.UUID, error) {
	if offset >= len(f.ids) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.ids) {
		end = len(f.ids)
	}
	return f.ids[offset:end], nil
}

func (f *fakeCompanyRepo) Count(ctx context.Context) (int64, error) {
	return int64(len(f.ids)), nil
}

func TestRecomputeAll_ProcessesEveryCompany(t *testing.T) {
	table, err := factors.NewTable("test", []factors.Factor{
		{Key: factors.KeyGridElectricity, Unit: "kwh", KgCO2ePerUnit: 0.435},
	})
	require.NoError(t, err)

	companies := &fakeCompanyRepo{}
	for i := 0; i < 5; i++ {
		companies.ids = append(companies.ids, uuid.New())
	}

	agg := facility.NewAggregator(&fakeRecordRepo{}, time.Second)
	engine := emissions.NewEngine(&fakeProductRepo{}, agg, impact.NewCalculator(table), table, time.Second)

	snapshots := newFakeSnapshotRepo()
	jobs := newFakeJobRepo()
	service := NewSnapshotService(
		snapshots, &fakeDefRepo{}, &fakeGoalRepo{}, jobs,
		engine, agg,
		NewTrendAnalyzer(5), NewGoalTracker(0.20, 0.80),
		time.Second,
	)

	// Batch size 2 exercises both the paged dispatcher and the progress
	// remainder flush.
	pool := NewRecomputePool(service, companies, jobs, 3, 2, zerolog.Nop())

	job := &entity.BatchJob{ID: uuid.New(), JobType: entity.JobTypeRecomputeAll, Status: entity.JobStatusPending}
	require.NoError(t, jobs.Create(context.Background(), job))

	err = pool.RecomputeAll(context.Background(), job.ID, time.Now().UTC())
	require.NoError(t, err)

	stored, _ := jobs.GetByID(context.Background(), job.ID)
	assert.Equal(t, entity.JobStatusCompleted, stored.Status)
	assert.Equal(t, int64(5), stored.ProcessedRecords)
	assert.Zero(t, stored.FailedRecords)
}
