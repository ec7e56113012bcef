package profiles

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/proteinlens/proteinlens/internal/app/domain/profile"
	"github.com/proteinlens/proteinlens/internal/engine/score"
)

// Catalog is the loaded profile set. Immutable after construction, file
// order preserved.
type Catalog struct {
	profiles []profile.Profile
	byID     map[string]profile.Profile
}

type catalogFile struct {
	Profiles []profile.Profile `yaml:"profiles"`
}

// LoadCatalog reads a catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse profile catalog: %w", err)
	}
	return NewCatalog(f.Profiles)
}

// NewCatalog validates the profiles and builds the lookup index.
func NewCatalog(list []profile.Profile) (*Catalog, error) {
	var errs []string
	byID := make(map[string]profile.Profile, len(list))

	for i, p := range list {
		if p.ID == "" {
			errs = append(errs, fmt.Sprintf("profile %d: id required", i))
			continue
		}
		if p.Name == "" {
			errs = append(errs, fmt.Sprintf("profile %q: name required", p.ID))
		}
		if len(p.Script) > score.MaxScriptSize {
			errs = append(errs, fmt.Sprintf("profile %q: script exceeds %d bytes", p.ID, score.MaxScriptSize))
		}
		for _, w := range []float64{p.ProteinWeight, p.CarbWeight, p.FatWeight} {
			if w < 0 {
				errs = append(errs, fmt.Sprintf("profile %q: negative weight", p.ID))
				break
			}
		}
		if _, dup := byID[p.ID]; dup {
			errs = append(errs, fmt.Sprintf("profile %q: duplicate id", p.ID))
			continue
		}
		byID[p.ID] = p
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid profile catalog:\n  %s", strings.Join(errs, "\n  "))
	}
	if len(byID) == 0 {
		return nil, fmt.Errorf("profile catalog is empty")
	}

	return &Catalog{profiles: append([]profile.Profile(nil), list...), byID: byID}, nil
}

// List returns the profiles in catalog order.
func (c *Catalog) List() []profile.Profile {
	return append([]profile.Profile(nil), c.profiles...)
}

// Get looks a profile up by id.
func (c *Catalog) Get(id string) (profile.Profile, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// Len reports the catalog size.
func (c *Catalog) Len() int {
	return len(c.profiles)
}

var defaultProfiles = []profile.Profile{
	{
		ID:            "balanced",
		Name:          "Balanced",
		Description:   "Even calorie split across protein, carbs, and fat.",
		Tags:          []string{"balanced"},
		ProteinWeight: 1,
		CarbWeight:    1,
		FatWeight:     1,
	},
	{
		ID:            "high-protein",
		Name:          "High Protein",
		Description:   "Favors protein-heavy meals for strength training and recovery.",
		Tags:          []string{"protein", "strength"},
		ProteinWeight: 2,
		CarbWeight:    1,
		FatWeight:     0.5,
	},
	{
		ID:            "low-carb",
		Name:          "Low Carb",
		Description:   "Keeps carbohydrate calories to a small share of the plate.",
		Tags:          []string{"low-carb"},
		ProteinWeight: 1.5,
		CarbWeight:    0.3,
		FatWeight:     1.2,
	},
	{
		ID:          "keto",
		Name:        "Keto",
		Description: "Scripted scorer that penalizes any meaningful carbohydrate share.",
		Tags:        []string{"keto", "low-carb"},
		Script: `function score(meal) {
  var total = meal.protein_g * 4 + meal.carbs_g * 4 + meal.fat_g * 9;
  if (total <= 0) {
    return {score: 0, verdict: "no data"};
  }
  var carbShare = meal.carbs_g * 4 / total;
  var s = Math.max(0, 100 - carbShare * 250);
  return {score: s, verdict: carbShare <= 0.1 ? "keto friendly" : "too many carbs"};
}`,
	},
}

// DefaultCatalog is used when no catalog file is configured.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultProfiles)
	if err != nil {
		panic(err)
	}
	return c
}
