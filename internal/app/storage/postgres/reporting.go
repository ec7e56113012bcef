package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/proteinlens/proteinlens/internal/app/domain/meal"
	"github.com/proteinlens/proteinlens/internal/app/storage"
)

// Reporting answers aggregate queries pushed down to PostgreSQL. It wraps the
// same connection as Store but goes through sqlx so aggregates scan straight
// into structs.
type Reporting struct {
	db *sqlx.DB
}

var _ storage.ReportingStore = (*Reporting)(nil)

// NewReporting wraps an existing database handle for reporting queries.
func NewReporting(db *sqlx.DB) *Reporting {
	return &Reporting{db: db}
}

type dailySummaryRow struct {
	Meals    int     `db:"meals"`
	Calories float64 `db:"calories"`
	ProteinG float64 `db:"protein_g"`
	CarbsG   float64 `db:"carbs_g"`
	FatG     float64 `db:"fat_g"`
	FiberG   float64 `db:"fiber_g"`
}

// DailySummary aggregates one user's meals for the UTC calendar day containing
// the given instant.
func (r *Reporting) DailySummary(ctx context.Context, userID string, day time.Time) (meal.DailySummary, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	var row dailySummaryRow
	err := r.db.GetContext(ctx, &row, `
		SELECT COUNT(*) AS meals,
		       COALESCE(SUM(calories), 0) AS calories,
		       COALESCE(SUM(protein_g), 0) AS protein_g,
		       COALESCE(SUM(carbs_g), 0) AS carbs_g,
		       COALESCE(SUM(fat_g), 0) AS fat_g,
		       COALESCE(SUM(fiber_g), 0) AS fiber_g
		FROM app_meals
		WHERE user_id = $1 AND logged_at >= $2 AND logged_at < $3
	`, userID, dayStart, dayEnd)
	if err != nil {
		return meal.DailySummary{}, err
	}

	return meal.DailySummary{
		UserID:   userID,
		Date:     dayStart.Format("2006-01-02"),
		Meals:    row.Meals,
		Calories: row.Calories,
		ProteinG: row.ProteinG,
		CarbsG:   row.CarbsG,
		FatG:     row.FatG,
		FiberG:   row.FiberG,
	}, nil
}

// ActiveUserIDs lists users who logged at least one meal on the UTC calendar
// day containing the given instant.
func (r *Reporting) ActiveUserIDs(ctx context.Context, day time.Time) ([]string, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT user_id
		FROM app_meals
		WHERE logged_at >= $1 AND logged_at < $2
		ORDER BY user_id
	`, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
