package score

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/proteinlens/proteinlens/internal/app/domain/nutrition"
)

func TestWeightedPerfectMatch(t *testing.T) {
	// 36 kcal from each macro, equal weights.
	a := &nutrition.Analysis{ProteinG: 9, CarbsG: 9, FatG: 4}

	res := Weighted(1, 1, 1, a)
	assert.Equal(t, 100.0, res.Score)
	assert.Equal(t, "excellent", res.Verdict)
}

func TestWeightedSkewedMeal(t *testing.T) {
	// All calories from carbs against an even split.
	a := &nutrition.Analysis{CarbsG: 25}

	res := Weighted(1, 1, 1, a)
	assert.Equal(t, 33.3, res.Score)
	assert.Equal(t, "poor", res.Verdict)
}

func TestWeightedSingleMacroEmphasis(t *testing.T) {
	a := &nutrition.Analysis{ProteinG: 30}

	res := Weighted(1, 0, 0, a)
	assert.Equal(t, 100.0, res.Score)
}

func TestWeightedEmptyMealScoresZero(t *testing.T) {
	res := Weighted(1, 1, 1, &nutrition.Analysis{})
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, "poor", res.Verdict)

	res = Weighted(1, 1, 1, nil)
	assert.Equal(t, 0.0, res.Score, "nil analysis scores zero")
}

func TestWeightedDefaultsDegenerateWeights(t *testing.T) {
	a := &nutrition.Analysis{ProteinG: 9, CarbsG: 9, FatG: 4}

	assert.Equal(t, 100.0, Weighted(0, 0, 0, a).Score, "zero weights fall back to an equal split")
	assert.Equal(t, 100.0, Weighted(-2, 5, 1, a).Score, "negative weights fall back to an equal split")
}
