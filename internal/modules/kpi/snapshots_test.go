package kpi

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greensight/sustain-engine/internal/domain/entity"
	"github.com/greensight/sustain-engine/internal/modules/emissions"
	"github.com/greensight/sustain-engine/internal/modules/facility"
	"github.com/greensight/sustain-engine/internal/modules/impact"
	"github.com/greensight/sustain-engine/pkg/factors"
)

// --- in-memory fakes ---

type fakeProductRepo struct {
	products []*entity.Product
}

func (f *fakeProductRepo) Create(ctx context.Context, p *entity.Product) error {
	f.products = append(f.products, p)
	return nil
}

func (f *fakeProductRepo) CreateBatch(ctx context.Context, ps []*entity.Product) (int64, error) {
	f.products = append(f.products, ps...)
	return int64(len(ps)), nil
}

func (f *fakeProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Product, error) {
	for _, p := range f.products {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, context.Canceled
}

func (f *fakeProductRepo) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*entity.Product, error) {
	var out []*entity.Product
	for _, p := range f.products {
		if p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProductRepo) CountByCompany(ctx context.Context, companyID uuid.UUID) (int64, error) {
	out, _ := f.ListByCompany(ctx, companyID)
	return int64(len(out)), nil
}

type fakeRecordRepo struct {
	records []*entity.MonthlyFacilityRecord
}

func (f *fakeRecordRepo) Upsert(ctx context.Context, r *entity.MonthlyFacilityRecord) error {
	f.records = append(f.records, r)
	return nil
}

func (f *fakeRecordRepo) UpsertBatch(ctx context.Context, rs []*entity.MonthlyFacilityRecord) (int64, error) {
	f.records = append(f.records, rs...)
	return int64(len(rs)), nil
}

func (f *fakeRecordRepo) GetRange(ctx context.Context, companyID uuid.UUID, from, to time.Time) ([]*entity.MonthlyFacilityRecord, error) {
	var out []*entity.MonthlyFacilityRecord
	for _, r := range f.records {
		if r.CompanyID == companyID && !r.Month.Before(from) && r.Month.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

// fakeSnapshotRepo keys by (company, kpi, date) with last-write-wins, like
// the ON CONFLICT clause in the real repository.
type fakeSnapshotRepo struct {
	mu   sync.Mutex
	byID map[string]*entity.KpiSnapshot
}

func newFakeSnapshotRepo() *fakeSnapshotRepo {
	return &fakeSnapshotRepo{byID: make(map[string]*entity.KpiSnapshot)}
}

func snapshotKey(s *entity.KpiSnapshot) string {
	return s.CompanyID.String() + "|" + s.KpiDefinitionID.String() + "|" + s.SnapshotDate.UTC().Format("2006-01-02")
}

func (f *fakeSnapshotRepo) Append(ctx context.Context, s *entity.KpiSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[snapshotKey(s)] = s
	return nil
}

func (f *fakeSnapshotRepo) AppendBatch(ctx context.Context, ss []*entity.KpiSnapshot) (int64, error) {
	for _, s := range ss {
		f.Append(ctx, s)
	}
	return int64(len(ss)), nil
}

func (f *fakeSnapshotRepo) GetWindow(ctx context.Context, companyID, kpiID uuid.UUID, from, to time.Time) ([]*entity.KpiSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.KpiSnapshot
	for _, s := range f.byID {
		if s.CompanyID == companyID && s.KpiDefinitionID == kpiID &&
			!s.SnapshotDate.Before(from) && s.SnapshotDate.Before(to) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SnapshotDate.Before(out[j].SnapshotDate) })
	return out, nil
}

type fakeDefRepo struct {
	defs []*entity.KpiDefinition
}

func (f *fakeDefRepo) Create(ctx context.Context, d *entity.KpiDefinition) error {
	f.defs = append(f.defs, d)
	return nil
}

func (f *fakeDefRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.KpiDefinition, error) {
	for _, d := range f.defs {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, context.Canceled
}

func (f *fakeDefRepo) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*entity.KpiDefinition, error) {
	var out []*entity.KpiDefinition
	for _, d := range f.defs {
		if d.CompanyID == companyID {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeGoalRepo struct {
	goals []*entity.Goal
}

func (f *fakeGoalRepo) Upsert(ctx context.Context, g *entity.Goal) error {
	f.goals = append(f.goals, g)
	return nil
}

func (f *fakeGoalRepo) GetActive(ctx context.Context, companyID, kpiID uuid.UUID) (*entity.Goal, error) {
	for i := len(f.goals) - 1; i >= 0; i-- {
		if f.goals[i].CompanyID == companyID && f.goals[i].KpiDefinitionID == kpiID {
			return f.goals[i], nil
		}
	}
	return nil, context.Canceled
}

func (f *fakeGoalRepo) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*entity.Goal, error) {
	var out []*entity.Goal
	for _, g := range f.goals {
		if g.CompanyID == companyID {
			out = append(out, g)
		}
	}
	return out, nil
}

type fakeJobRepo struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*entity.BatchJob
	completed []uuid.UUID
	failed    []uuid.UUID
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[uuid.UUID]*entity.BatchJob)}
}

func (f *fakeJobRepo) Create(ctx context.Context, job *entity.BatchJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.BatchJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[id], nil
}

func (f *fakeJobRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status entity.JobStatus, processed, failed int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job, ok := f.jobs[id]; ok {
		job.Status = status
		job.ProcessedRecords = processed
		job.FailedRecords = failed
	}
	return nil
}

func (f *fakeJobRepo) UpdateProgress(ctx context.Context, id uuid.UUID, processed, failed int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job, ok := f.jobs[id]; ok {
		job.ProcessedRecords += processed
		job.FailedRecords += failed
	}
	return nil
}

func (f *fakeJobRepo) Complete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job, ok := f.jobs[id]; ok {
		job.Status = entity.JobStatusCompleted
	}
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeJobRepo) Fail(ctx context.Context, id uuid.UUID, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job, ok := f.jobs[id]; ok {
		job.Status = entity.JobStatusFailed
		job.ErrorMessage = msg
	}
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeJobRepo) ListRecent(ctx context.Context, limit int) ([]*entity.BatchJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.BatchJob
	for _, j := range f.jobs {
		out = append(out, j)
	}
	return out, nil
}

// --- fixture ---

type serviceFixture struct {
	companyID uuid.UUID
	service   *SnapshotService
	snapshots *fakeSnapshotRepo
	defs      *fakeDefRepo
	goals     *fakeGoalRepo
	jobs      *fakeJobRepo
}

func ptr(v float64) *float64 { return &v }

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	table, err := factors.NewTable("test", []factors.Factor{
		{Key: factors.KeyGridElectricity, Unit: "kwh", KgCO2ePerUnit: 0.435},
		{Key: factors.KeyGridElectricityWTT, Unit: "kwh", KgCO2ePerUnit: 0.052},
		{Key: factors.KeyNaturalGas, Unit: "m3", KgCO2ePerUnit: 2.02},
		{Key: factors.KeyNaturalGasWTT, Unit: "m3", KgCO2ePerUnit: 0.31},
		{Key: "agave", Unit: "kg", KgCO2ePerUnit: 0.375},
	})
	require.NoError(t, err)

	companyID := uuid.New()
	volume := 10000.0
	products := &fakeProductRepo{products: []*entity.Product{{
		ID:                     uuid.New(),
		CompanyID:              companyID,
		Name:                   "Agave Spirit",
		Ingredients:            []entity.Ingredient{{Name: "agave", Amount: 0.7, Unit: "kg"}},
		AnnualProductionVolume: &volume,
	}}}

	records := &fakeRecordRepo{}
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 36; i++ {
		records.records = append(records.records, &entity.MonthlyFacilityRecord{
			ID:             uuid.New(),
			CompanyID:      companyID,
			Month:          start.AddDate(0, -i, 0),
			ElectricityKwh: ptr(2000),
			NaturalGasM3:   ptr(100),
		})
	}

	agg := facility.NewAggregator(records, time.Second)
	engine := emissions.NewEngine(products, agg, impact.NewCalculator(table), table, time.Second)

	fx := &serviceFixture{
		companyID: companyID,
		snapshots: newFakeSnapshotRepo(),
		defs:      &fakeDefRepo{},
		goals:     &fakeGoalRepo{},
		jobs:      newFakeJobRepo(),
	}
	fx.service = NewSnapshotService(
		fx.snapshots, fx.defs, fx.goals, fx.jobs,
		engine, agg,
		NewTrendAnalyzer(5), NewGoalTracker(0.20, 0.80),
		time.Second,
	)
	return fx
}

func (fx *serviceFixture) addDefinition(key, expression string) *entity.KpiDefinition {
	def := &entity.KpiDefinition{
		ID:         uuid.New(),
		CompanyID:  fx.companyID,
		Key:        key,
		Name:       key,
		Expression: expression,
	}
	fx.defs.defs = append(fx.defs.defs, def)
	return def
}

// --- tests ---

func TestRecordSnapshots_TotalAndDerived(t *testing.T) {
	fx := newServiceFixture(t)
	total := fx.addDefinition("total_emissions", "")
	derived := fx.addDefinition("electricity_use", "electricity_kwh")

	asOf := time.Now().UTC()
	recorded, diags, err := fx.service.RecordSnapshots(context.Background(), fx.companyID, asOf)
	require.NoError(t, err)
	assert.Empty(t, diags)
	require.Len(t, recorded, 2)

	byDef := map[uuid.UUID]*entity.KpiSnapshot{}
	for _, s := range recorded {
		byDef[s.KpiDefinitionID] = s
	}

	// Empty expression snapshots the emissions total directly:
	// Scope1 1200*2.02 + Scope2 24000*0.435 + WTT 1200*0.31+24000*0.052
	// + Cat1 0.7*0.375*10000 = 17109 kg.
	assert.InDelta(t, 17.109, byDef[total.ID].Value, 1e-9)
	assert.Equal(t, "test", byDef[total.ID].Metadata["factor_version"])
	assert.Equal(t, string(entity.DataQualityHigh), byDef[total.ID].Metadata["data_quality"])

	// 12 months x 2000 kWh.
	assert.InDelta(t, 24000, byDef[derived.ID].Value, 1e-9)
}

func TestRecordSnapshots_BrokenExpressionIsSkipped(t *testing.T) {
	fx := newServiceFixture(t)
	good := fx.addDefinition("total_emissions", "")
	fx.addDefinition("broken", "no_such_binding * 2")

	recorded, diags, err := fx.service.RecordSnapshots(context.Background(), fx.companyID, time.Now().UTC())
	require.NoError(t, err)

	require.Len(t, recorded, 1)
	assert.Equal(t, good.ID, recorded[0].KpiDefinitionID)

	found := false
	for _, d := range diags {
		if d.Code == entity.DiagSkippedItem && d.Subject == "broken" {
			found = true
		}
	}
	assert.True(t, found, "expected a skipped_item diagnostic for the broken KPI")
}

func TestRecordSnapshots_SameDateOverwrites(t *testing.T) {
	fx := newServiceFixture(t)
	fx.addDefinition("total_emissions", "")

	asOf := time.Now().UTC()
	_, _, err := fx.service.RecordSnapshots(context.Background(), fx.companyID, asOf)
	require.NoError(t, err)
	_, _, err = fx.service.RecordSnapshots(context.Background(), fx.companyID, asOf)
	require.NoError(t, err)

	// Same (company, kpi, date) key: one snapshot, not two.
	assert.Len(t, fx.snapshots.byID, 1)
}

func TestInitializeHistoricalSnapshots(t *testing.T) {
	fx := newServiceFixture(t)
	def := fx.addDefinition("total_emissions", "")

	job := &entity.BatchJob{ID: uuid.New(), JobType: entity.JobTypeSnapshotHistory, Status: entity.JobStatusPending}
	require.NoError(t, fx.jobs.Create(context.Background(), job))

	err := fx.service.InitializeHistoricalSnapshots(context.Background(), job.ID, fx.companyID, 6)
	require.NoError(t, err)

	// One snapshot per month, oldest first, all six months present.
	window, err := fx.snapshots.GetWindow(context.Background(), fx.companyID, def.ID,
		time.Now().UTC().AddDate(0, -7, 0), time.Now().UTC().AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Len(t, window, 6)
	for i := 1; i < len(window); i++ {
		assert.True(t, window[i-1].SnapshotDate.Before(window[i].SnapshotDate))
	}

	stored, _ := fx.jobs.GetByID(context.Background(), job.ID)
	assert.Equal(t, entity.JobStatusCompleted, stored.Status)
	assert.Equal(t, int64(6), stored.ProcessedRecords)
}

func TestInitializeHistoricalSnapshots_InvalidMonths(t *testing.T) {
	fx := newServiceFixture(t)

	err := fx.service.InitializeHistoricalSnapshots(context.Background(), uuid.New(), fx.companyID, 0)
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
}

func TestAnalyzeTrend_FromRecordedSnapshots(t *testing.T) {
	fx := newServiceFixture(t)
	def := fx.addDefinition("total_emissions", "")

	require.NoError(t, fx.service.InitializeHistoricalSnapshots(
		context.Background(),
		newJob(t, fx), fx.companyID, 6))

	result, err := fx.service.AnalyzeTrend(context.Background(), fx.companyID, def.ID, 12)
	require.NoError(t, err)

	// Constant facility data in the fixture: the series is flat.
	assert.Equal(t, entity.TrendStable, result.Trend)
	assert.Equal(t, 6, result.Count)
	assert.InDelta(t, result.Min, result.Max, 1e-9)
}

func newJob(t *testing.T, fx *serviceFixture) uuid.UUID {
	t.Helper()
	job := &entity.BatchJob{ID: uuid.New(), JobType: entity.JobTypeSnapshotHistory, Status: entity.JobStatusPending}
	require.NoError(t, fx.jobs.Create(context.Background(), job))
	return job.ID
}

func TestClassifyActiveGoal_UsesLatestSnapshot(t *testing.T) {
	fx := newServiceFixture(t)
	def := fx.addDefinition("total_emissions", "")

	created := time.Now().UTC().AddDate(0, -6, 0)
	goal := &entity.Goal{
		ID:                     uuid.New(),
		CompanyID:              fx.companyID,
		KpiDefinitionID:        def.ID,
		BaselineValue:          100,
		TargetReductionPercent: 20,
		TargetDate:             time.Now().UTC().AddDate(1, 0, 0),
		CreatedAt:              created,
	}
	fx.goals.goals = append(fx.goals.goals, goal)

	// Two snapshots; classification must use the newer value (88 -> 60% of
	// the way from 100 to 80).
	fx.snapshots.Append(context.Background(), &entity.KpiSnapshot{
		ID: uuid.New(), CompanyID: fx.companyID, KpiDefinitionID: def.ID,
		SnapshotDate: created.AddDate(0, 1, 0), Value: 95,
	})
	fx.snapshots.Append(context.Background(), &entity.KpiSnapshot{
		ID: uuid.New(), CompanyID: fx.companyID, KpiDefinitionID: def.ID,
		SnapshotDate: created.AddDate(0, 2, 0), Value: 88,
	})

	progress, err := fx.service.ClassifyActiveGoal(context.Background(), fx.companyID, def.ID)
	require.NoError(t, err)

	assert.InDelta(t, 60, progress.RawProgress, 1e-9)
	assert.Equal(t, entity.GoalOnTrack, progress.Status)
}
