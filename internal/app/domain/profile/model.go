package profile

import "time"

// Profile is one diet style from the catalog. Weights steer the built-in
// scorer; Script, when present, replaces it with a user-visible formula run
// in the sandboxed engine.
type Profile struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Tags          []string `yaml:"tags"`
	ProteinWeight float64  `yaml:"protein_weight"`
	CarbWeight    float64  `yaml:"carb_weight"`
	FatWeight     float64  `yaml:"fat_weight"`
	Script        string   `yaml:"script"`
}

// Selection records which profile a user follows.
type Selection struct {
	UserID    string
	ProfileID string
	CreatedAt time.Time
	UpdatedAt time.Time
}
