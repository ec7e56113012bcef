package score

import (
	"math"

	"github.com/proteinlens/proteinlens/internal/app/domain/nutrition"
)

// Weighted is the built-in scorer for profiles without a script. The
// profile's weights describe the calorie split it favors; the score is how
// closely the meal's actual split matches, 100 for a perfect match down to 0
// when every calorie lands on the wrong macro.
func Weighted(proteinW, carbW, fatW float64, a *nutrition.Analysis) Result {
	if a == nil {
		return Result{Verdict: verdictFor(0)}
	}
	for _, w := range []float64{proteinW, carbW, fatW} {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			proteinW, carbW, fatW = 1, 1, 1
			break
		}
	}
	if proteinW+carbW+fatW == 0 {
		proteinW, carbW, fatW = 1, 1, 1
	}

	proteinCal := a.ProteinG * 4
	carbCal := a.CarbsG * 4
	fatCal := a.FatG * 9
	total := proteinCal + carbCal + fatCal
	if total <= 0 {
		return Result{Verdict: verdictFor(0)}
	}

	weightSum := proteinW + carbW + fatW
	deviation := math.Abs(proteinCal/total-proteinW/weightSum) +
		math.Abs(carbCal/total-carbW/weightSum) +
		math.Abs(fatCal/total-fatW/weightSum)

	s := math.Round(clamp((1-deviation/2)*100)*10) / 10
	return Result{Score: s, Verdict: verdictFor(s)}
}

func verdictFor(s float64) string {
	switch {
	case s >= 80:
		return "excellent"
	case s >= 60:
		return "good"
	case s >= 40:
		return "fair"
	default:
		return "poor"
	}
}
