package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/proteinlens/proteinlens/internal/app/domain/analysis"
	"github.com/proteinlens/proteinlens/internal/app/domain/goal"
	"github.com/proteinlens/proteinlens/internal/app/domain/meal"
	"github.com/proteinlens/proteinlens/internal/app/domain/nutrition"
	"github.com/proteinlens/proteinlens/internal/app/domain/profile"
	"github.com/proteinlens/proteinlens/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.MealStore = (*Store)(nil)
var _ storage.AnalysisStore = (*Store)(nil)
var _ storage.GoalStore = (*Store)(nil)
var _ storage.ProfileStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- MealStore --------------------------------------------------------------

func (s *Store) CreateMeal(ctx context.Context, m meal.Meal) (meal.Meal, error) {
	if m.UserID == "" {
		return meal.Meal{}, errors.New("user_id required")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.LoggedAt.IsZero() {
		m.LoggedAt = now
	}

	itemsJSON, err := json.Marshal(m.Items)
	if err != nil {
		return meal.Meal{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO app_meals (id, user_id, description, image_ref, analysis_id, calories, protein_g, carbs_g, fat_g, fiber_g, confidence, items, logged_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, m.ID, m.UserID, m.Description, m.ImageRef, m.AnalysisID, m.Calories, m.ProteinG, m.CarbsG, m.FatG, m.FiberG, string(m.Confidence), itemsJSON, m.LoggedAt, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return meal.Meal{}, err
	}
	return m, nil
}

func (s *Store) UpdateMeal(ctx context.Context, m meal.Meal) (meal.Meal, error) {
	existing, err := s.GetMeal(ctx, m.UserID, m.ID)
	if err != nil {
		return meal.Meal{}, err
	}

	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = time.Now().UTC()
	if m.LoggedAt.IsZero() {
		m.LoggedAt = existing.LoggedAt
	}

	itemsJSON, err := json.Marshal(m.Items)
	if err != nil {
		return meal.Meal{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE app_meals
		SET description = $3, image_ref = $4, analysis_id = $5, calories = $6, protein_g = $7, carbs_g = $8, fat_g = $9, fiber_g = $10, confidence = $11, items = $12, logged_at = $13, updated_at = $14
		WHERE id = $1 AND user_id = $2
	`, m.ID, m.UserID, m.Description, m.ImageRef, m.AnalysisID, m.Calories, m.ProteinG, m.CarbsG, m.FatG, m.FiberG, string(m.Confidence), itemsJSON, m.LoggedAt, m.UpdatedAt)
	if err != nil {
		return meal.Meal{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return meal.Meal{}, storage.ErrNotFound
	}
	return m, nil
}

func (s *Store) GetMeal(ctx context.Context, userID, id string) (meal.Meal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, description, image_ref, analysis_id, calories, protein_g, carbs_g, fat_g, fiber_g, confidence, items, logged_at, created_at, updated_at
		FROM app_meals
		WHERE id = $1 AND user_id = $2
	`, id, userID)

	m, err := scanMeal(row)
	if err != nil {
		return meal.Meal{}, notFound(err)
	}
	return m, nil
}

func (s *Store) ListMeals(ctx context.Context, userID string, from, to time.Time, limit int) ([]meal.Meal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, description, image_ref, analysis_id, calories, protein_g, carbs_g, fat_g, fiber_g, confidence, items, logged_at, created_at, updated_at
		FROM app_meals
		WHERE user_id = $1
		  AND ($2::timestamptz IS NULL OR logged_at >= $2)
		  AND ($3::timestamptz IS NULL OR logged_at < $3)
		ORDER BY logged_at DESC, id DESC
		LIMIT NULLIF($4, 0)
	`, userID, toNullTime(from), toNullTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []meal.Meal
	for rows.Next() {
		m, err := scanMeal(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *Store) DeleteMeal(ctx context.Context, userID, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM app_meals WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- AnalysisStore ----------------------------------------------------------

func (s *Store) CreateAnalysis(ctx context.Context, rec analysis.Record) (analysis.Record, error) {
	if rec.UserID == "" {
		return analysis.Record{}, errors.New("user_id required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	resultJSON, err := marshalResult(rec.Result)
	if err != nil {
		return analysis.Record{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO app_analyses (id, user_id, session_id, image_ref, status, result, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.ID, rec.UserID, rec.SessionID, rec.ImageRef, string(rec.Status), resultJSON, rec.ErrorMessage, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return analysis.Record{}, err
	}
	return rec, nil
}

func (s *Store) UpdateAnalysis(ctx context.Context, rec analysis.Record) (analysis.Record, error) {
	existing, err := s.GetAnalysis(ctx, rec.UserID, rec.ID)
	if err != nil {
		return analysis.Record{}, err
	}

	rec.SessionID = existing.SessionID
	rec.ImageRef = existing.ImageRef
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = time.Now().UTC()

	resultJSON, err := marshalResult(rec.Result)
	if err != nil {
		return analysis.Record{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE app_analyses
		SET status = $3, result = $4, error_message = $5, updated_at = $6
		WHERE id = $1 AND user_id = $2
	`, rec.ID, rec.UserID, string(rec.Status), resultJSON, rec.ErrorMessage, rec.UpdatedAt)
	if err != nil {
		return analysis.Record{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return analysis.Record{}, storage.ErrNotFound
	}
	return rec, nil
}

func (s *Store) GetAnalysis(ctx context.Context, userID, id string) (analysis.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, session_id, image_ref, status, result, error_message, created_at, updated_at
		FROM app_analyses
		WHERE id = $1 AND user_id = $2
	`, id, userID)

	rec, err := scanAnalysis(row)
	if err != nil {
		return analysis.Record{}, notFound(err)
	}
	return rec, nil
}

func (s *Store) ListAnalyses(ctx context.Context, userID string, limit int) ([]analysis.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, session_id, image_ref, status, result, error_message, created_at, updated_at
		FROM app_analyses
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($2, 0)
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []analysis.Record
	for rows.Next() {
		rec, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// --- GoalStore --------------------------------------------------------------

func (s *Store) UpsertGoal(ctx context.Context, g goal.Goal) (goal.Goal, error) {
	if g.UserID == "" {
		return goal.Goal{}, errors.New("user_id required")
	}

	now := time.Now().UTC()
	existing, err := s.GetGoal(ctx, g.UserID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		g.CreatedAt = now
		g.UpdatedAt = now
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO app_goals (user_id, calories, protein_g, carbs_g, fat_g, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, g.UserID, g.Calories, g.ProteinG, g.CarbsG, g.FatG, g.CreatedAt, g.UpdatedAt)
		if err != nil {
			return goal.Goal{}, err
		}
		return g, nil
	case err != nil:
		return goal.Goal{}, err
	}

	g.CreatedAt = existing.CreatedAt
	g.UpdatedAt = now
	_, err = s.db.ExecContext(ctx, `
		UPDATE app_goals
		SET calories = $2, protein_g = $3, carbs_g = $4, fat_g = $5, updated_at = $6
		WHERE user_id = $1
	`, g.UserID, g.Calories, g.ProteinG, g.CarbsG, g.FatG, g.UpdatedAt)
	if err != nil {
		return goal.Goal{}, err
	}
	return g, nil
}

func (s *Store) GetGoal(ctx context.Context, userID string) (goal.Goal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, calories, protein_g, carbs_g, fat_g, created_at, updated_at
		FROM app_goals
		WHERE user_id = $1
	`, userID)

	var g goal.Goal
	if err := row.Scan(&g.UserID, &g.Calories, &g.ProteinG, &g.CarbsG, &g.FatG, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return goal.Goal{}, notFound(err)
	}
	return g, nil
}

// --- ProfileStore -----------------------------------------------------------

func (s *Store) UpsertSelection(ctx context.Context, sel profile.Selection) (profile.Selection, error) {
	if sel.UserID == "" {
		return profile.Selection{}, errors.New("user_id required")
	}

	now := time.Now().UTC()
	existing, err := s.GetSelection(ctx, sel.UserID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		sel.CreatedAt = now
		sel.UpdatedAt = now
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO app_profile_selections (user_id, profile_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4)
		`, sel.UserID, sel.ProfileID, sel.CreatedAt, sel.UpdatedAt)
		if err != nil {
			return profile.Selection{}, err
		}
		return sel, nil
	case err != nil:
		return profile.Selection{}, err
	}

	sel.CreatedAt = existing.CreatedAt
	sel.UpdatedAt = now
	_, err = s.db.ExecContext(ctx, `
		UPDATE app_profile_selections
		SET profile_id = $2, updated_at = $3
		WHERE user_id = $1
	`, sel.UserID, sel.ProfileID, sel.UpdatedAt)
	if err != nil {
		return profile.Selection{}, err
	}
	return sel, nil
}

func (s *Store) GetSelection(ctx context.Context, userID string) (profile.Selection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, profile_id, created_at, updated_at
		FROM app_profile_selections
		WHERE user_id = $1
	`, userID)

	var sel profile.Selection
	if err := row.Scan(&sel.UserID, &sel.ProfileID, &sel.CreatedAt, &sel.UpdatedAt); err != nil {
		return profile.Selection{}, notFound(err)
	}
	return sel, nil
}

func (s *Store) DeleteSelection(ctx context.Context, userID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM app_profile_selections WHERE user_id = $1
	`, userID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- helpers ----------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

// notFound converts sql.ErrNoRows into the backend-neutral sentinel.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

func scanMeal(row rowScanner) (meal.Meal, error) {
	var (
		m          meal.Meal
		confidence string
		itemsRaw   []byte
	)
	if err := row.Scan(&m.ID, &m.UserID, &m.Description, &m.ImageRef, &m.AnalysisID, &m.Calories, &m.ProteinG, &m.CarbsG, &m.FatG, &m.FiberG, &confidence, &itemsRaw, &m.LoggedAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return meal.Meal{}, err
	}
	m.Confidence = nutrition.Confidence(confidence)
	if len(itemsRaw) > 0 {
		_ = json.Unmarshal(itemsRaw, &m.Items)
	}
	return m, nil
}

func scanAnalysis(row rowScanner) (analysis.Record, error) {
	var (
		rec       analysis.Record
		status    string
		resultRaw []byte
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.SessionID, &rec.ImageRef, &status, &resultRaw, &rec.ErrorMessage, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return analysis.Record{}, err
	}
	rec.Status = analysis.Status(status)
	if len(resultRaw) > 0 {
		var parsed nutrition.Analysis
		if err := json.Unmarshal(resultRaw, &parsed); err == nil {
			rec.Result = &parsed
		}
	}
	return rec, nil
}

func marshalResult(r *nutrition.Analysis) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
