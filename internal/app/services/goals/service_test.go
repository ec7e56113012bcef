package goals

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/proteinlens/proteinlens/internal/app/domain/goal"
	"github.com/proteinlens/proteinlens/internal/app/domain/meal"
	memstore "github.com/proteinlens/proteinlens/internal/app/storage/memory"
	"github.com/proteinlens/proteinlens/pkg/logger"
)

type fakeSummary struct {
	sum meal.DailySummary
	err error
}

func (f *fakeSummary) DailySummary(ctx context.Context, userID string, day time.Time) (meal.DailySummary, error) {
	if f.err != nil {
		return meal.DailySummary{}, f.err
	}
	return f.sum, nil
}

func newTestService(src SummarySource) (*Service, *memstore.Store) {
	store := memstore.New()
	svc := New(store, src, logger.NewDefault("goals-test"))
	return svc, store
}

func TestGetFallsBackToDefaults(t *testing.T) {
	svc, _ := newTestService(&fakeSummary{})

	g, err := svc.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := goal.Default("user-1")
	if g.Calories != want.Calories || g.ProteinG != want.ProteinG || g.CarbsG != want.CarbsG || g.FatG != want.FatG {
		t.Errorf("goal = %+v, want defaults %+v", g, want)
	}
	if g.UserID != "user-1" {
		t.Errorf("user id = %q", g.UserID)
	}
}

func TestSetRoundTrip(t *testing.T) {
	svc, _ := newTestService(&fakeSummary{})

	set, err := svc.Set(context.Background(), goal.Goal{
		UserID:   "user-1",
		Calories: 2400,
		ProteinG: 160,
		CarbsG:   250,
		FatG:     80,
	})
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if set.UpdatedAt.IsZero() {
		t.Errorf("updated at not stamped")
	}

	got, err := svc.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Calories != 2400 || got.ProteinG != 160 || got.CarbsG != 250 || got.FatG != 80 {
		t.Errorf("goal = %+v", got)
	}
}

func TestSetRejectsOutOfRangeTargets(t *testing.T) {
	svc, _ := newTestService(&fakeSummary{})

	cases := []struct {
		name string
		g    goal.Goal
	}{
		{"missing user", goal.Goal{Calories: 2000}},
		{"zero calories", goal.Goal{UserID: "u", Calories: 0}},
		{"negative calories", goal.Goal{UserID: "u", Calories: -100}},
		{"calories over max", goal.Goal{UserID: "u", Calories: 30000}},
		{"nan calories", goal.Goal{UserID: "u", Calories: math.NaN()}},
		{"negative protein", goal.Goal{UserID: "u", Calories: 2000, ProteinG: -1}},
		{"carbs over max", goal.Goal{UserID: "u", Calories: 2000, CarbsG: 5000}},
		{"inf fat", goal.Goal{UserID: "u", Calories: 2000, FatG: math.Inf(1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Set(context.Background(), tc.g); err == nil {
				t.Fatalf("expected validation error for %+v", tc.g)
			}
		})
	}
}

func TestProgressPercentages(t *testing.T) {
	src := &fakeSummary{sum: meal.DailySummary{
		UserID:   "user-1",
		Calories: 1000,
		ProteinG: 60,
		CarbsG:   150,
		FatG:     35,
	}}
	svc, _ := newTestService(src)

	if _, err := svc.Set(context.Background(), goal.Goal{
		UserID:   "user-1",
		Calories: 2000,
		ProteinG: 120,
		CarbsG:   200,
		FatG:     70,
	}); err != nil {
		t.Fatalf("set: %v", err)
	}

	p, err := svc.Progress(context.Background(), "user-1", time.Now())
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if p.TargetCalories != 2000 || p.Calories != 1000 {
		t.Errorf("calories = %+v", p)
	}
	if p.CaloriesPercent != 50 || p.ProteinPercent != 50 || p.CarbsPercent != 75 || p.FatPercent != 50 {
		t.Errorf("percents = %v %v %v %v", p.CaloriesPercent, p.ProteinPercent, p.CarbsPercent, p.FatPercent)
	}
}

func TestProgressRoundsToOneDecimal(t *testing.T) {
	src := &fakeSummary{sum: meal.DailySummary{UserID: "user-1", Calories: 1000}}
	svc, _ := newTestService(src)

	if _, err := svc.Set(context.Background(), goal.Goal{UserID: "user-1", Calories: 3000}); err != nil {
		t.Fatalf("set: %v", err)
	}

	p, err := svc.Progress(context.Background(), "user-1", time.Now())
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if p.CaloriesPercent != 33.3 {
		t.Errorf("calories percent = %v, want 33.3", p.CaloriesPercent)
	}
}

func TestProgressZeroTargetReportsZeroPercent(t *testing.T) {
	src := &fakeSummary{sum: meal.DailySummary{UserID: "user-1", ProteinG: 90}}
	svc, _ := newTestService(src)

	if _, err := svc.Set(context.Background(), goal.Goal{UserID: "user-1", Calories: 2000, ProteinG: 0}); err != nil {
		t.Fatalf("set: %v", err)
	}

	p, err := svc.Progress(context.Background(), "user-1", time.Now())
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if p.ProteinPercent != 0 {
		t.Errorf("protein percent = %v, want 0 for zero target", p.ProteinPercent)
	}
	if p.ProteinG != 90 {
		t.Errorf("protein consumed = %v", p.ProteinG)
	}
}

func TestProgressAgainstDefaultsWhenUnset(t *testing.T) {
	src := &fakeSummary{sum: meal.DailySummary{UserID: "user-1", Calories: 1000}}
	svc, _ := newTestService(src)

	p, err := svc.Progress(context.Background(), "user-1", time.Now())
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if p.TargetCalories != 2000 {
		t.Errorf("target calories = %v, want default 2000", p.TargetCalories)
	}
	if p.CaloriesPercent != 50 {
		t.Errorf("calories percent = %v, want 50", p.CaloriesPercent)
	}
}

func TestProgressPropagatesSummaryError(t *testing.T) {
	src := &fakeSummary{err: fmt.Errorf("reporting store offline")}
	svc, _ := newTestService(src)

	if _, err := svc.Progress(context.Background(), "user-1", time.Now()); err == nil {
		t.Fatal("expected summary error to propagate")
	}
}
