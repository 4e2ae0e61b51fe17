// Package kpi tracks indicator snapshots over time: trend classification,
// goal progress, and batch snapshot generation.
package kpi

import (
	"sort"
	"time"

	"github.com/greensight/sustain-engine/internal/domain/entity"
)

// TrendAnalyzer classifies the movement of a KPI series. The deadband keeps
// small fluctuations from being flagged as a trend.
type TrendAnalyzer struct {
	DeadbandPercent float64
}

// NewTrendAnalyzer creates an analyzer with the given deadband (percent).
func NewTrendAnalyzer(deadbandPercent float64) *TrendAnalyzer {
	return &TrendAnalyzer{DeadbandPercent: deadbandPercent}
}

// Analyze summarizes the snapshots dated at or after `since`. Snapshots may
// arrive interleaved from different sources, so the input is sorted
// defensively rather than assumed ordered. A first value of zero makes the
// change percentage undefined; it is reported as 0 with ZeroBaseline set.
func (t *TrendAnalyzer) Analyze(snapshots []*entity.KpiSnapshot, since time.Time) entity.TrendResult {
	window := make([]*entity.KpiSnapshot, 0, len(snapshots))
	for _, s := range snapshots {
		if !s.SnapshotDate.Before(since) {
			window = append(window, s)
		}
	}
	sort.SliceStable(window, func(i, j int) bool {
		return window[i].SnapshotDate.Before(window[j].SnapshotDate)
	})

	result := entity.TrendResult{Trend: entity.TrendStable, Count: len(window)}
	if len(window) == 0 {
		return result
	}

	first := window[0].Value
	last := window[len(window)-1].Value

	result.Min = first
	result.Max = first
	var sum float64
	for _, s := range window {
		if s.Value < result.Min {
			result.Min = s.Value
		}
		if s.Value > result.Max {
			result.Max = s.Value
		}
		sum += s.Value
	}
	result.Mean = sum / float64(len(window))

	if first == 0 {
		result.ZeroBaseline = true
		return result
	}

	result.ChangePercent = (last - first) / first * 100
	switch {
	case result.ChangePercent > t.DeadbandPercent:
		result.Trend = entity.TrendIncreasing
	case result.ChangePercent < -t.DeadbandPercent:
		result.Trend = entity.TrendDecreasing
	}
	return result
}
