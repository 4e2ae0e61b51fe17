package kpi

import (
	"time"

	"github.com/greensight/sustain-engine/internal/domain/entity"
)

// GoalTracker classifies reduction-goal progress. The at-risk thresholds are
// policy knobs: a goal is at risk when little time remains and measured
// progress trails the time-proportional expectation.
type GoalTracker struct {
	AtRiskTimeFraction     float64 // remaining/total below this is "little time"
	AtRiskProgressFraction float64 // progress below this share of expected is "trailing"
}

// NewGoalTracker creates a tracker with the given at-risk thresholds.
func NewGoalTracker(timeFraction, progressFraction float64) *GoalTracker {
	return &GoalTracker{
		AtRiskTimeFraction:     timeFraction,
		AtRiskProgressFraction: progressFraction,
	}
}

// Classify computes progress toward a goal and its status. The status rules
// are evaluated in fixed order, first match wins:
//
//  1. achieved: raw progress >= 100
//  2. behind:   target date passed with progress < 100
//  3. at_risk:  remaining time below the time fraction and progress below
//     the progress fraction of the time-proportional expectation
//  4. on_track: otherwise
//
// A baseline of zero means there is nothing left to reduce; progress is
// defined as 100 so the division never degenerates.
func (g *GoalTracker) Classify(goal *entity.Goal, currentValue float64, now time.Time) entity.GoalProgress {
	target := goal.TargetValue()
	progress := entity.GoalProgress{TargetValue: target}

	if goal.BaselineValue == 0 {
		progress.RawProgress = 100
		progress.ProgressPercent = 100
		progress.Status = entity.GoalAchieved
		return progress
	}

	progress.RawProgress = (goal.BaselineValue - currentValue) / (goal.BaselineValue - target) * 100
	progress.ProgressPercent = clamp(progress.RawProgress, 0, 100)

	switch {
	case progress.RawProgress >= 100:
		progress.Status = entity.GoalAchieved
	case now.After(goal.TargetDate):
		progress.Status = entity.GoalBehind
	case g.atRisk(goal, progress.RawProgress, now):
		progress.Status = entity.GoalAtRisk
	default:
		progress.Status = entity.GoalOnTrack
	}
	return progress
}

func (g *GoalTracker) atRisk(goal *entity.Goal, rawProgress float64, now time.Time) bool {
	total := goal.TargetDate.Sub(goal.CreatedAt)
	if total <= 0 {
		return false
	}
	remaining := goal.TargetDate.Sub(now)
	if float64(remaining) >= float64(total)*g.AtRiskTimeFraction {
		return false
	}

	elapsed := now.Sub(goal.CreatedAt)
	expected := float64(elapsed) / float64(total) * 100
	return rawProgress < expected*g.AtRiskProgressFraction
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
