// Package meals turns finished capture sessions into logged meals and
// answers history and daily-summary queries.
package meals

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/proteinlens/proteinlens/internal/app/domain/meal"
	"github.com/proteinlens/proteinlens/internal/app/domain/nutrition"
	"github.com/proteinlens/proteinlens/internal/app/domain/session"
	"github.com/proteinlens/proteinlens/internal/app/services/capture"
	"github.com/proteinlens/proteinlens/internal/app/storage"
	"github.com/proteinlens/proteinlens/internal/app/storage/rediscache"
	"github.com/proteinlens/proteinlens/pkg/logger"
)

// ErrSessionNotReady is returned when a session is asked for its analysis
// before reaching the done phase.
var ErrSessionNotReady = errors.New("session has no completed analysis")

const (
	defaultListLimit = 50
	maxListLimit     = 200

	maxDescriptionLen = 500
)

// CaptureGateway is the slice of the capture service meal logging needs.
type CaptureGateway interface {
	Get(ctx context.Context, userID, sessionID string) (capture.Snapshot, error)
	Reset(ctx context.Context, userID, sessionID string) (capture.Snapshot, bool, error)
}

// Service logs meals and reads them back. reporting and cache are optional;
// without them summaries are computed in process and never cached.
type Service struct {
	meals     storage.MealStore
	reporting storage.ReportingStore
	sessions  CaptureGateway
	cache     *rediscache.Cache
	log       *logger.Logger
}

// New wires the meals service.
func New(meals storage.MealStore, reporting storage.ReportingStore, sessions CaptureGateway, cache *rediscache.Cache, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("meals")
	}
	return &Service{
		meals:     meals,
		reporting: reporting,
		sessions:  sessions,
		cache:     cache,
		log:       log,
	}
}

// LogFromSession copies the finished session's analysis into a meal, then
// resets the session so the next capture starts clean. description overrides
// the provider's when non-empty; a zero loggedAt means now.
func (s *Service) LogFromSession(ctx context.Context, userID, sessionID, description string, loggedAt time.Time) (meal.Meal, error) {
	if s.sessions == nil {
		return meal.Meal{}, fmt.Errorf("session logging is not configured")
	}

	snap, err := s.sessions.Get(ctx, userID, sessionID)
	if err != nil {
		return meal.Meal{}, err
	}
	if snap.Session.Phase != session.PhaseDone || snap.Session.Result == nil {
		return meal.Meal{}, ErrSessionNotReady
	}

	result := snap.Session.Result
	if description == "" {
		description = result.Description
	}
	m := meal.Meal{
		UserID:      userID,
		Description: description,
		ImageRef:    snap.Session.RemoteImageRef,
		AnalysisID:  snap.Session.ResultID,
		Calories:    result.Calories,
		ProteinG:    result.ProteinG,
		CarbsG:      result.CarbsG,
		FatG:        result.FatG,
		FiberG:      result.FiberG,
		Confidence:  result.Confidence,
		Items:       append([]nutrition.FoodItem(nil), result.Items...),
		LoggedAt:    loggedAt,
	}

	created, err := s.Create(ctx, m)
	if err != nil {
		return meal.Meal{}, err
	}

	if _, applied, err := s.sessions.Reset(ctx, userID, sessionID); err != nil || !applied {
		s.log.WithField("session_id", sessionID).Warn("session reset after logging did not apply")
	}

	s.log.WithField("user_id", userID).
		WithField("meal_id", created.ID).
		WithField("session_id", sessionID).
		Info("meal logged from session")
	return created, nil
}

// Create validates and persists a meal.
func (s *Service) Create(ctx context.Context, m meal.Meal) (meal.Meal, error) {
	if err := validateMeal(m); err != nil {
		return meal.Meal{}, err
	}
	if m.LoggedAt.IsZero() {
		m.LoggedAt = time.Now().UTC()
	}

	created, err := s.meals.CreateMeal(ctx, m)
	if err != nil {
		return meal.Meal{}, fmt.Errorf("create meal: %w", err)
	}
	s.invalidateSummary(ctx, created.UserID, created.LoggedAt)
	return created, nil
}

// Get returns one meal scoped to its owner.
func (s *Service) Get(ctx context.Context, userID, id string) (meal.Meal, error) {
	return s.meals.GetMeal(ctx, userID, id)
}

// List returns meals newest first, optionally windowed to [from, to).
func (s *Service) List(ctx context.Context, userID string, from, to time.Time, limit int) ([]meal.Meal, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.meals.ListMeals(ctx, userID, from, to, limit)
}

// Update replaces a meal's editable fields, keeping its identity.
func (s *Service) Update(ctx context.Context, m meal.Meal) (meal.Meal, error) {
	if m.ID == "" {
		return meal.Meal{}, fmt.Errorf("meal id required")
	}
	if err := validateMeal(m); err != nil {
		return meal.Meal{}, err
	}

	existing, err := s.meals.GetMeal(ctx, m.UserID, m.ID)
	if err != nil {
		return meal.Meal{}, err
	}
	if m.LoggedAt.IsZero() {
		m.LoggedAt = existing.LoggedAt
	}

	updated, err := s.meals.UpdateMeal(ctx, m)
	if err != nil {
		return meal.Meal{}, fmt.Errorf("update meal: %w", err)
	}
	// The meal may have moved days; drop both summaries.
	s.invalidateSummary(ctx, m.UserID, existing.LoggedAt)
	s.invalidateSummary(ctx, m.UserID, updated.LoggedAt)
	return updated, nil
}

// Delete removes a meal scoped to its owner.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	existing, err := s.meals.GetMeal(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.meals.DeleteMeal(ctx, userID, id); err != nil {
		return err
	}
	s.invalidateSummary(ctx, userID, existing.LoggedAt)
	return nil
}

// DailySummary aggregates one UTC day, preferring the reporting store's
// pushdown query and falling back to summing in process.
func (s *Service) DailySummary(ctx context.Context, userID string, day time.Time) (meal.DailySummary, error) {
	date := day.UTC().Format("2006-01-02")
	key := rediscache.Key("summary", userID, date)

	var cached meal.DailySummary
	if hit, err := s.cache.GetJSON(ctx, key, &cached); err != nil {
		s.log.WithError(err).Warn("summary cache read failed")
	} else if hit {
		return cached, nil
	}

	summary, err := s.computeSummary(ctx, userID, day)
	if err != nil {
		return meal.DailySummary{}, err
	}

	if err := s.cache.SetJSON(ctx, key, summary); err != nil {
		s.log.WithError(err).Warn("summary cache write failed")
	}
	return summary, nil
}

func (s *Service) computeSummary(ctx context.Context, userID string, day time.Time) (meal.DailySummary, error) {
	if s.reporting != nil {
		return s.reporting.DailySummary(ctx, userID, day)
	}

	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)
	list, err := s.meals.ListMeals(ctx, userID, start, end, 0)
	if err != nil {
		return meal.DailySummary{}, fmt.Errorf("list meals for summary: %w", err)
	}

	summary := meal.DailySummary{UserID: userID, Date: start.Format("2006-01-02")}
	for _, m := range list {
		summary.Meals++
		summary.Calories += m.Calories
		summary.ProteinG += m.ProteinG
		summary.CarbsG += m.CarbsG
		summary.FatG += m.FatG
		summary.FiberG += m.FiberG
	}
	return summary, nil
}

func (s *Service) invalidateSummary(ctx context.Context, userID string, loggedAt time.Time) {
	date := loggedAt.UTC().Format("2006-01-02")
	if err := s.cache.Delete(ctx, rediscache.Key("summary", userID, date)); err != nil {
		s.log.WithError(err).Warn("summary cache invalidation failed")
	}
}

// WarmDailySummaries precomputes the summary for every user active on the
// given day, filling the cache through the normal read path. It reports how
// many users were warmed. Without a reporting store there is no way to
// enumerate users, so it warms nothing.
func (s *Service) WarmDailySummaries(ctx context.Context, day time.Time) (int, error) {
	if s.reporting == nil {
		return 0, nil
	}

	users, err := s.reporting.ActiveUserIDs(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("list active users: %w", err)
	}

	warmed := 0
	for _, userID := range users {
		if ctx.Err() != nil {
			return warmed, ctx.Err()
		}
		if _, err := s.DailySummary(ctx, userID, day); err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("summary warmup failed for user")
			continue
		}
		warmed++
	}
	return warmed, nil
}

func validateMeal(m meal.Meal) error {
	if m.UserID == "" {
		return fmt.Errorf("user id required")
	}
	if len(m.Description) > maxDescriptionLen {
		return fmt.Errorf("description exceeds %d characters", maxDescriptionLen)
	}
	for _, v := range []float64{m.Calories, m.ProteinG, m.CarbsG, m.FatG, m.FiberG} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("macro values must be non-negative numbers")
		}
	}
	if m.Calories > nutrition.MaxMealCalories {
		return fmt.Errorf("calories %.0f exceed single-meal maximum %d", m.Calories, nutrition.MaxMealCalories)
	}
	return nil
}
