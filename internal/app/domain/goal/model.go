package goal

import "time"

// Goal is a user's daily macro target. One row per user, upserted.
type Goal struct {
	UserID    string
	Calories  float64
	ProteinG  float64
	CarbsG    float64
	FatG      float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Default is applied for users who never set a target.
func Default(userID string) Goal {
	return Goal{
		UserID:   userID,
		Calories: 2000,
		ProteinG: 120,
		CarbsG:   200,
		FatG:     70,
	}
}

// Progress reports attainment of one macro for a day.
type Progress struct {
	TargetCalories  float64
	TargetProteinG  float64
	TargetCarbsG    float64
	TargetFatG      float64
	Calories        float64
	ProteinG        float64
	CarbsG          float64
	FatG            float64
	CaloriesPercent float64
	ProteinPercent  float64
	CarbsPercent    float64
	FatPercent      float64
}
