package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/proteinlens/proteinlens/internal/app/domain/analysis"
	"github.com/proteinlens/proteinlens/internal/app/domain/goal"
	"github.com/proteinlens/proteinlens/internal/app/domain/meal"
	"github.com/proteinlens/proteinlens/internal/app/domain/nutrition"
	"github.com/proteinlens/proteinlens/internal/app/domain/profile"
	"github.com/proteinlens/proteinlens/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu         sync.RWMutex
	nextID     int64
	meals      map[string]meal.Meal
	analyses   map[string]analysis.Record
	goals      map[string]goal.Goal
	selections map[string]profile.Selection
}

var _ storage.MealStore = (*Store)(nil)
var _ storage.AnalysisStore = (*Store)(nil)
var _ storage.GoalStore = (*Store)(nil)
var _ storage.ProfileStore = (*Store)(nil)
var _ storage.ReportingStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:     1,
		meals:      make(map[string]meal.Meal),
		analyses:   make(map[string]analysis.Record),
		goals:      make(map[string]goal.Goal),
		selections: make(map[string]profile.Selection),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// MealStore implementation ----------------------------------------------------

func (s *Store) CreateMeal(_ context.Context, m meal.Meal) (meal.Meal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = s.nextIDLocked()
	} else if _, exists := s.meals[m.ID]; exists {
		return meal.Meal{}, fmt.Errorf("meal %s already exists", m.ID)
	}

	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.LoggedAt.IsZero() {
		m.LoggedAt = now
	}
	m.Items = cloneItems(m.Items)

	s.meals[m.ID] = m
	return cloneMeal(m), nil
}

func (s *Store) UpdateMeal(_ context.Context, m meal.Meal) (meal.Meal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.meals[m.ID]
	if !ok || original.UserID != m.UserID {
		return meal.Meal{}, fmt.Errorf("meal %s: %w", m.ID, storage.ErrNotFound)
	}

	m.CreatedAt = original.CreatedAt
	m.UpdatedAt = time.Now().UTC()
	if m.LoggedAt.IsZero() {
		m.LoggedAt = original.LoggedAt
	}
	m.Items = cloneItems(m.Items)

	s.meals[m.ID] = m
	return cloneMeal(m), nil
}

func (s *Store) GetMeal(_ context.Context, userID, id string) (meal.Meal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.meals[id]
	if !ok || m.UserID != userID {
		return meal.Meal{}, fmt.Errorf("meal %s: %w", id, storage.ErrNotFound)
	}
	return cloneMeal(m), nil
}

func (s *Store) ListMeals(_ context.Context, userID string, from, to time.Time, limit int) ([]meal.Meal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]meal.Meal, 0)
	for _, m := range s.meals {
		if m.UserID != userID {
			continue
		}
		if !from.IsZero() && m.LoggedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !m.LoggedAt.Before(to) {
			continue
		}
		result = append(result, cloneMeal(m))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].LoggedAt.Equal(result[j].LoggedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].LoggedAt.After(result[j].LoggedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) DeleteMeal(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.meals[id]
	if !ok || m.UserID != userID {
		return fmt.Errorf("meal %s: %w", id, storage.ErrNotFound)
	}
	delete(s.meals, id)
	return nil
}

// AnalysisStore implementation ------------------------------------------------

func (s *Store) CreateAnalysis(_ context.Context, rec analysis.Record) (analysis.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = s.nextIDLocked()
	} else if _, exists := s.analyses[rec.ID]; exists {
		return analysis.Record{}, fmt.Errorf("analysis %s already exists", rec.ID)
	}

	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.Result = cloneResult(rec.Result)

	s.analyses[rec.ID] = rec
	return cloneRecord(rec), nil
}

func (s *Store) UpdateAnalysis(_ context.Context, rec analysis.Record) (analysis.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.analyses[rec.ID]
	if !ok {
		return analysis.Record{}, fmt.Errorf("analysis %s: %w", rec.ID, storage.ErrNotFound)
	}

	rec.CreatedAt = original.CreatedAt
	rec.UpdatedAt = time.Now().UTC()
	rec.Result = cloneResult(rec.Result)

	s.analyses[rec.ID] = rec
	return cloneRecord(rec), nil
}

func (s *Store) GetAnalysis(_ context.Context, userID, id string) (analysis.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.analyses[id]
	if !ok || rec.UserID != userID {
		return analysis.Record{}, fmt.Errorf("analysis %s: %w", id, storage.ErrNotFound)
	}
	return cloneRecord(rec), nil
}

func (s *Store) ListAnalyses(_ context.Context, userID string, limit int) ([]analysis.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]analysis.Record, 0)
	for _, rec := range s.analyses {
		if rec.UserID == userID {
			result = append(result, cloneRecord(rec))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GoalStore implementation ----------------------------------------------------

func (s *Store) UpsertGoal(_ context.Context, g goal.Goal) (goal.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if original, ok := s.goals[g.UserID]; ok {
		g.CreatedAt = original.CreatedAt
	} else {
		g.CreatedAt = now
	}
	g.UpdatedAt = now

	s.goals[g.UserID] = g
	return g, nil
}

func (s *Store) GetGoal(_ context.Context, userID string) (goal.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.goals[userID]
	if !ok {
		return goal.Goal{}, fmt.Errorf("goal for user %s: %w", userID, storage.ErrNotFound)
	}
	return g, nil
}

// ProfileStore implementation -------------------------------------------------

func (s *Store) UpsertSelection(_ context.Context, sel profile.Selection) (profile.Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if original, ok := s.selections[sel.UserID]; ok {
		sel.CreatedAt = original.CreatedAt
	} else {
		sel.CreatedAt = now
	}
	sel.UpdatedAt = now

	s.selections[sel.UserID] = sel
	return sel, nil
}

func (s *Store) GetSelection(_ context.Context, userID string) (profile.Selection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sel, ok := s.selections[userID]
	if !ok {
		return profile.Selection{}, fmt.Errorf("profile selection for user %s: %w", userID, storage.ErrNotFound)
	}
	return sel, nil
}

func (s *Store) DeleteSelection(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.selections[userID]; !ok {
		return fmt.Errorf("profile selection for user %s: %w", userID, storage.ErrNotFound)
	}
	delete(s.selections, userID)
	return nil
}

// ReportingStore implementation -----------------------------------------------

func (s *Store) DailySummary(_ context.Context, userID string, day time.Time) (meal.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day = day.UTC()
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	summary := meal.DailySummary{UserID: userID, Date: dayStart.Format("2006-01-02")}
	for _, m := range s.meals {
		if m.UserID != userID {
			continue
		}
		if m.LoggedAt.Before(dayStart) || !m.LoggedAt.Before(dayEnd) {
			continue
		}
		summary.Meals++
		summary.Calories += m.Calories
		summary.ProteinG += m.ProteinG
		summary.CarbsG += m.CarbsG
		summary.FatG += m.FatG
		summary.FiberG += m.FiberG
	}
	return summary, nil
}

func (s *Store) ActiveUserIDs(_ context.Context, day time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day = day.UTC()
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	seen := make(map[string]bool)
	for _, m := range s.meals {
		if m.LoggedAt.Before(dayStart) || !m.LoggedAt.Before(dayEnd) {
			continue
		}
		seen[m.UserID] = true
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Helpers --------------------------------------------------------------------

func cloneItems(items []nutrition.FoodItem) []nutrition.FoodItem {
	if len(items) == 0 {
		return nil
	}
	return append([]nutrition.FoodItem(nil), items...)
}

func cloneMeal(m meal.Meal) meal.Meal {
	m.Items = cloneItems(m.Items)
	return m
}

func cloneResult(r *nutrition.Analysis) *nutrition.Analysis {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Items = cloneItems(r.Items)
	cp.Warnings = append([]string(nil), r.Warnings...)
	return &cp
}

func cloneRecord(rec analysis.Record) analysis.Record {
	rec.Result = cloneResult(rec.Result)
	return rec
}
