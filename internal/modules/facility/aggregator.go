// Package facility rolls monthly utility readings up into trailing-12-month
// aggregates with a completeness-based data-quality grade.
package facility

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/greensight/sustain-engine/internal/domain/entity"
	"github.com/greensight/sustain-engine/internal/domain/repository"
)

// Aggregator reads monthly facility records and derives rollups. It is a
// pure read path; it never writes.
type Aggregator struct {
	records repository.FacilityRecordRepository
	timeout time.Duration
}

// NewAggregator creates a new facility aggregator
func NewAggregator(records repository.FacilityRecordRepository, timeout time.Duration) *Aggregator {
	return &Aggregator{records: records, timeout: timeout}
}

// Aggregate sums the trailing 12 full months ending before asOf. A month
// with a record but a nil field contributes zero to that field; it counts
// toward MonthCount as long as any field was reported. Months with no record
// at all are listed in MissingMonths in ascending order.
func (a *Aggregator) Aggregate(ctx context.Context, companyID uuid.UUID, asOf time.Time) (*entity.FacilityAggregate, error) {
	to := monthStart(asOf)
	from := to.AddDate(0, -12, 0)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	records, err := a.records.GetRange(ctx, companyID, from, to)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("facility records for %s: %w", companyID, entity.ErrDependencyTimeout)
		}
		return nil, fmt.Errorf("failed to get facility records: %w", err)
	}

	agg := &entity.FacilityAggregate{
		CompanyID: companyID,
		From:      from,
		To:        to,
	}

	byMonth := make(map[string]*entity.MonthlyFacilityRecord, len(records))
	for _, rec := range records {
		byMonth[monthKey(rec.Month)] = rec
	}

	for m := from; m.Before(to); m = m.AddDate(0, 1, 0) {
		rec, ok := byMonth[monthKey(m)]
		if !ok {
			agg.MissingMonths = append(agg.MissingMonths, monthKey(m))
			continue
		}
		if !rec.HasAnyReading() {
			agg.MissingMonths = append(agg.MissingMonths, monthKey(m))
			continue
		}

		agg.MonthCount++
		agg.TotalElectricityKwh += deref(rec.ElectricityKwh)
		agg.TotalNaturalGasM3 += deref(rec.NaturalGasM3)
		agg.TotalWaterM3 += deref(rec.WaterM3)
		agg.TotalProductionVolume += deref(rec.ProductionVolume)
	}

	agg.DataQuality = gradeQuality(agg.MonthCount)
	return agg, nil
}

func gradeQuality(monthCount int) entity.DataQuality {
	switch {
	case monthCount >= 10:
		return entity.DataQualityHigh
	case monthCount >= 6:
		return entity.DataQualityMedium
	default:
		return entity.DataQualityLow
	}
}

// monthStart truncates a date to the first of its month in UTC.
func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
