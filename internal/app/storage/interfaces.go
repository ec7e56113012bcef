package storage

import (
	"context"
	"errors"
	"time"

	"github.com/proteinlens/proteinlens/internal/app/domain/analysis"
	"github.com/proteinlens/proteinlens/internal/app/domain/goal"
	"github.com/proteinlens/proteinlens/internal/app/domain/meal"
	"github.com/proteinlens/proteinlens/internal/app/domain/profile"
)

// ErrNotFound is wrapped by every store when a row does not exist or belongs
// to another user, so callers can branch without knowing the backend.
var ErrNotFound = errors.New("not found")

// MealStore persists logged meals.
type MealStore interface {
	CreateMeal(ctx context.Context, m meal.Meal) (meal.Meal, error)
	UpdateMeal(ctx context.Context, m meal.Meal) (meal.Meal, error)
	GetMeal(ctx context.Context, userID, id string) (meal.Meal, error)
	ListMeals(ctx context.Context, userID string, from, to time.Time, limit int) ([]meal.Meal, error)
	DeleteMeal(ctx context.Context, userID, id string) error
}

// AnalysisStore persists vision analysis attempts and outcomes.
type AnalysisStore interface {
	CreateAnalysis(ctx context.Context, rec analysis.Record) (analysis.Record, error)
	UpdateAnalysis(ctx context.Context, rec analysis.Record) (analysis.Record, error)
	GetAnalysis(ctx context.Context, userID, id string) (analysis.Record, error)
	ListAnalyses(ctx context.Context, userID string, limit int) ([]analysis.Record, error)
}

// GoalStore persists one daily macro goal per user.
type GoalStore interface {
	UpsertGoal(ctx context.Context, g goal.Goal) (goal.Goal, error)
	GetGoal(ctx context.Context, userID string) (goal.Goal, error)
}

// ProfileStore persists which diet profile each user follows. The profile
// catalog itself is file-backed, not stored here.
type ProfileStore interface {
	UpsertSelection(ctx context.Context, sel profile.Selection) (profile.Selection, error)
	GetSelection(ctx context.Context, userID string) (profile.Selection, error)
	DeleteSelection(ctx context.Context, userID string) error
}

// ReportingStore answers aggregate queries the services prefer to push down
// to the database.
type ReportingStore interface {
	DailySummary(ctx context.Context, userID string, day time.Time) (meal.DailySummary, error)
	// ActiveUserIDs lists users with at least one meal logged on the given
	// UTC day. The scheduler uses it to warm summary caches.
	ActiveUserIDs(ctx context.Context, day time.Time) ([]string, error)
}
