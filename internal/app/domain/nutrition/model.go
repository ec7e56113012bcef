package nutrition

import (
	"fmt"
	"math"
	"strings"
)

// Confidence grades how much the provider trusts its own estimate.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// FoodItem is a single recognized food with its estimated portion and macros.
type FoodItem struct {
	Name     string
	PortionG float64
	Calories float64
	ProteinG float64
	CarbsG   float64
	FatG     float64
}

// Analysis is the nutrition breakdown estimated for one meal photo.
type Analysis struct {
	Description string
	Calories    float64
	ProteinG    float64
	CarbsG      float64
	FatG        float64
	FiberG      float64
	Confidence  Confidence
	Items       []FoodItem
	Model       string
	Warnings    []string
}

// MaxMealCalories bounds a single-meal estimate; anything above is treated as
// a provider hallucination.
const MaxMealCalories = 10000

// Totals sums macros across items. Useful when the provider returns items but
// omits the aggregate fields.
func (a Analysis) Totals() (calories, proteinG, carbsG, fatG float64) {
	for _, item := range a.Items {
		calories += item.Calories
		proteinG += item.ProteinG
		carbsG += item.CarbsG
		fatG += item.FatG
	}
	return calories, proteinG, carbsG, fatG
}

// Normalized returns a copy with negative macros clamped to zero, aggregate
// fields backfilled from items when empty, and the confidence grade coerced
// into the known set.
func (a Analysis) Normalized() Analysis {
	a.Calories = clampNonNegative(a.Calories)
	a.ProteinG = clampNonNegative(a.ProteinG)
	a.CarbsG = clampNonNegative(a.CarbsG)
	a.FatG = clampNonNegative(a.FatG)
	a.FiberG = clampNonNegative(a.FiberG)

	items := make([]FoodItem, len(a.Items))
	copy(items, a.Items)
	for i := range items {
		items[i].PortionG = clampNonNegative(items[i].PortionG)
		items[i].Calories = clampNonNegative(items[i].Calories)
		items[i].ProteinG = clampNonNegative(items[i].ProteinG)
		items[i].CarbsG = clampNonNegative(items[i].CarbsG)
		items[i].FatG = clampNonNegative(items[i].FatG)
	}
	a.Items = items

	if a.Calories == 0 && a.ProteinG == 0 && a.CarbsG == 0 && a.FatG == 0 && len(a.Items) > 0 {
		a.Calories, a.ProteinG, a.CarbsG, a.FatG = a.Totals()
	}

	switch Confidence(strings.ToLower(string(a.Confidence))) {
	case ConfidenceHigh:
		a.Confidence = ConfidenceHigh
	case ConfidenceMedium:
		a.Confidence = ConfidenceMedium
	default:
		a.Confidence = ConfidenceLow
	}
	return a
}

func clampNonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

// Validate rejects estimates that cannot describe a real meal.
func (a Analysis) Validate() error {
	for _, v := range []float64{a.Calories, a.ProteinG, a.CarbsG, a.FatG, a.FiberG} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("macro value is not a number")
		}
		if v < 0 {
			return fmt.Errorf("macro value is negative")
		}
	}
	if a.Calories > MaxMealCalories {
		return fmt.Errorf("calories %0.f exceed single-meal maximum %d", a.Calories, MaxMealCalories)
	}
	switch a.Confidence {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
	default:
		return fmt.Errorf("unknown confidence grade %q", a.Confidence)
	}
	return nil
}
