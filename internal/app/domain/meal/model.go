package meal

import (
	"time"

	"github.com/proteinlens/proteinlens/internal/app/domain/nutrition"
)

// Meal is one logged eating occasion. Macro fields are denormalized from the
// analysis so history survives provider or image deletion.
type Meal struct {
	ID          string
	UserID      string
	Description string
	ImageRef    string
	AnalysisID  string
	Calories    float64
	ProteinG    float64
	CarbsG      float64
	FatG        float64
	FiberG      float64
	Confidence  nutrition.Confidence
	Items       []nutrition.FoodItem
	LoggedAt    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DailySummary aggregates one user's meals for a calendar day.
type DailySummary struct {
	UserID   string
	Date     string
	Meals    int
	Calories float64
	ProteinG float64
	CarbsG   float64
	FatG     float64
	FiberG   float64
}
