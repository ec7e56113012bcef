// Package goals manages per-user daily macro targets and progress against
// them.
package goals

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/proteinlens/proteinlens/internal/app/domain/goal"
	"github.com/proteinlens/proteinlens/internal/app/domain/meal"
	"github.com/proteinlens/proteinlens/internal/app/storage"
	"github.com/proteinlens/proteinlens/pkg/logger"
)

const (
	maxGoalCalories = 20000
	maxGoalMacroG   = 2000
)

// SummarySource supplies the consumed totals for a day. The meals service
// satisfies it.
type SummarySource interface {
	DailySummary(ctx context.Context, userID string, day time.Time) (meal.DailySummary, error)
}

// Service stores goals and computes daily progress against them.
type Service struct {
	goals     storage.GoalStore
	summaries SummarySource
	log       *logger.Logger
}

// New wires the goals service.
func New(goals storage.GoalStore, summaries SummarySource, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("goals")
	}
	return &Service{goals: goals, summaries: summaries, log: log}
}

// Set replaces the user's daily targets.
func (s *Service) Set(ctx context.Context, g goal.Goal) (goal.Goal, error) {
	if err := validateGoal(g); err != nil {
		return goal.Goal{}, err
	}
	saved, err := s.goals.UpsertGoal(ctx, g)
	if err != nil {
		return goal.Goal{}, fmt.Errorf("save goal: %w", err)
	}
	s.log.WithFields(map[string]interface{}{
		"user_id":  saved.UserID,
		"calories": saved.Calories,
	}).Info("goal updated")
	return saved, nil
}

// Get returns the user's goal. Users who never set one get the defaults.
func (s *Service) Get(ctx context.Context, userID string) (goal.Goal, error) {
	g, err := s.goals.GetGoal(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return goal.Default(userID), nil
	}
	if err != nil {
		return goal.Goal{}, err
	}
	return g, nil
}

// Progress compares the day's consumed totals against the goal. Percentages
// are rounded to one decimal and report 0 for zero targets.
func (s *Service) Progress(ctx context.Context, userID string, day time.Time) (goal.Progress, error) {
	g, err := s.Get(ctx, userID)
	if err != nil {
		return goal.Progress{}, err
	}
	sum, err := s.summaries.DailySummary(ctx, userID, day)
	if err != nil {
		return goal.Progress{}, err
	}
	return goal.Progress{
		TargetCalories:  g.Calories,
		TargetProteinG:  g.ProteinG,
		TargetCarbsG:    g.CarbsG,
		TargetFatG:      g.FatG,
		Calories:        sum.Calories,
		ProteinG:        sum.ProteinG,
		CarbsG:          sum.CarbsG,
		FatG:            sum.FatG,
		CaloriesPercent: percent(sum.Calories, g.Calories),
		ProteinPercent:  percent(sum.ProteinG, g.ProteinG),
		CarbsPercent:    percent(sum.CarbsG, g.CarbsG),
		FatPercent:      percent(sum.FatG, g.FatG),
	}, nil
}

func percent(actual, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return math.Round(actual/target*1000) / 10
}

func validateGoal(g goal.Goal) error {
	if g.UserID == "" {
		return fmt.Errorf("user id required")
	}
	if math.IsNaN(g.Calories) || math.IsInf(g.Calories, 0) || g.Calories <= 0 || g.Calories > maxGoalCalories {
		return fmt.Errorf("calories must be between 1 and %d", maxGoalCalories)
	}
	macros := []struct {
		name string
		v    float64
	}{
		{"protein_g", g.ProteinG},
		{"carbs_g", g.CarbsG},
		{"fat_g", g.FatG},
	}
	for _, m := range macros {
		if math.IsNaN(m.v) || math.IsInf(m.v, 0) || m.v < 0 || m.v > maxGoalMacroG {
			return fmt.Errorf("%s must be between 0 and %d", m.name, maxGoalMacroG)
		}
	}
	return nil
}
