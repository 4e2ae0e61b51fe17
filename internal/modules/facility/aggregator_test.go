package facility

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greensight/sustain-engine/internal/domain/entity"
)

// fakeRecordRepo serves records from memory, filtering like the real query.
type fakeRecordRepo struct {
	records []*entity.MonthlyFacilityRecord
	err     error
}

func (f *fakeRecordRepo) Upsert(ctx context.Context, record *entity.MonthlyFacilityRecord) error {
	f.records = append(f.records, record)
	return nil
}

func (f *fakeRecordRepo) UpsertBatch(ctx context.Context, records []*entity.MonthlyFacilityRecord) (int64, error) {
	f.records = append(f.records, records...)
	return int64(len(records)), nil
}

func (f *fakeRecordRepo) GetRange(ctx context.Context, companyID uuid.UUID, from, to time.Time) ([]*entity.MonthlyFacilityRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*entity.MonthlyFacilityRecord
	for _, r := range f.records {
		if r.CompanyID == companyID && !r.Month.Before(from) && r.Month.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func ptr(v float64) *float64 { return &v }

func monthRecord(companyID uuid.UUID, year int, month time.Month, kwh float64) *entity.MonthlyFacilityRecord {
	return &entity.MonthlyFacilityRecord{
		ID:             uuid.New(),
		CompanyID:      companyID,
		Month:          time.Date(year, month, 1, 0, 0, 0, 0, time.UTC),
		ElectricityKwh: ptr(kwh),
		NaturalGasM3:   ptr(100),
		WaterM3:        ptr(10),
	}
}

func TestAggregate_FullWindow(t *testing.T) {
	companyID := uuid.New()
	repo := &fakeRecordRepo{}
	asOf := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	// 12 full months: 2025-08 .. 2026-07.
	for i := 1; i <= 12; i++ {
		m := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -i, 0)
		repo.records = append(repo.records, monthRecord(companyID, m.Year(), m.Month(), 1000))
	}

	agg, err := NewAggregator(repo, time.Second).Aggregate(context.Background(), companyID, asOf)
	require.NoError(t, err)

	assert.Equal(t, 12, agg.MonthCount)
	assert.Equal(t, entity.DataQualityHigh, agg.DataQuality)
	assert.Empty(t, agg.MissingMonths)
	assert.InDelta(t, 12000, agg.TotalElectricityKwh, 1e-9)
	assert.InDelta(t, 1200, agg.TotalNaturalGasM3, 1e-9)

	// Monthly average and annual projection derive from the same totals.
	assert.InDelta(t, 1000, agg.MonthlyAverage(agg.TotalElectricityKwh), 1e-9)
	assert.InDelta(t, 12000, agg.AnnualProjection(agg.TotalElectricityKwh), 1e-9)
}

func TestAggregate_WindowExcludesCurrentMonth(t *testing.T) {
	companyID := uuid.New()
	repo := &fakeRecordRepo{}
	asOf := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	// The asOf month itself and the month 13 back must both fall outside.
	repo.records = append(repo.records,
		monthRecord(companyID, 2026, 8, 5000), // current month, excluded
		monthRecord(companyID, 2025, 7, 5000), // 13 months back, excluded
		monthRecord(companyID, 2025, 8, 1000), // oldest included month
		monthRecord(companyID, 2026, 7, 1000), // newest included month
	)

	agg, err := NewAggregator(repo, time.Second).Aggregate(context.Background(), companyID, asOf)
	require.NoError(t, err)

	assert.Equal(t, 2, agg.MonthCount)
	assert.InDelta(t, 2000, agg.TotalElectricityKwh, 1e-9)
}

func TestAggregate_DataQualityGrades(t *testing.T) {
	testCases := []struct {
		months   int
		expected entity.DataQuality
	}{
		{12, entity.DataQualityHigh},
		{10, entity.DataQualityHigh},
		{9, entity.DataQualityMedium},
		{6, entity.DataQualityMedium},
		{5, entity.DataQualityLow},
		{0, entity.DataQualityLow},
	}

	asOf := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for _, tc := range testCases {
		companyID := uuid.New()
		repo := &fakeRecordRepo{}
		for i := 1; i <= tc.months; i++ {
			m := asOf.AddDate(0, -i, 0)
			repo.records = append(repo.records, monthRecord(companyID, m.Year(), m.Month(), 500))
		}

		agg, err := NewAggregator(repo, time.Second).Aggregate(context.Background(), companyID, asOf)
		require.NoError(t, err)
		assert.Equal(t, tc.expected, agg.DataQuality, "months=%d", tc.months)
		assert.Len(t, agg.MissingMonths, 12-tc.months)
	}
}

func TestAggregate_NilFieldsContributeZeroButMonthCounts(t *testing.T) {
	companyID := uuid.New()
	repo := &fakeRecordRepo{
		records: []*entity.MonthlyFacilityRecord{
			{
				ID:             uuid.New(),
				CompanyID:      companyID,
				Month:          time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
				ElectricityKwh: ptr(800),
				// gas, water, volume not reported
			},
		},
	}

	agg, err := NewAggregator(repo, time.Second).Aggregate(context.Background(), companyID, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 1, agg.MonthCount)
	assert.InDelta(t, 800, agg.TotalElectricityKwh, 1e-9)
	assert.Zero(t, agg.TotalNaturalGasM3)
	assert.Zero(t, agg.TotalWaterM3)
}

func TestAggregate_RecordWithNoReadingsCountsAsMissing(t *testing.T) {
	companyID := uuid.New()
	repo := &fakeRecordRepo{
		records: []*entity.MonthlyFacilityRecord{
			{
				ID:        uuid.New(),
				CompanyID: companyID,
				Month:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
				// all fields nil
			},
		},
	}

	agg, err := NewAggregator(repo, time.Second).Aggregate(context.Background(), companyID, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 0, agg.MonthCount)
	assert.Contains(t, agg.MissingMonths, "2026-03")
	assert.Len(t, agg.MissingMonths, 12)
}

func TestAggregate_MissingMonthsAscending(t *testing.T) {
	companyID := uuid.New()
	repo := &fakeRecordRepo{}

	agg, err := NewAggregator(repo, time.Second).Aggregate(context.Background(), companyID, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Len(t, agg.MissingMonths, 12)
	assert.Equal(t, "2025-03", agg.MissingMonths[0])
	assert.Equal(t, "2026-02", agg.MissingMonths[11])
	assert.True(t, sortedAscending(agg.MissingMonths))
}

func sortedAscending(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] > s[i] {
			return false
		}
	}
	return true
}

func TestAggregate_DependencyTimeout(t *testing.T) {
	repo := &fakeRecordRepo{err: context.DeadlineExceeded}

	_, err := NewAggregator(repo, time.Second).Aggregate(context.Background(), uuid.New(), time.Now())
	assert.ErrorIs(t, err, entity.ErrDependencyTimeout)
}
