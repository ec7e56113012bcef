package memory

import (
	"context"
	"testing"
	"time"

	"github.com/proteinlens/proteinlens/internal/app/domain/analysis"
	"github.com/proteinlens/proteinlens/internal/app/domain/goal"
	"github.com/proteinlens/proteinlens/internal/app/domain/meal"
	"github.com/proteinlens/proteinlens/internal/app/domain/nutrition"
)

func TestMealLifecycle(t *testing.T) {
	store := New()
	ctx := context.Background()

	created, err := store.CreateMeal(ctx, meal.Meal{
		UserID:      "user-1",
		Description: "grilled chicken salad",
		Calories:    420,
		ProteinG:    38,
		Items: []nutrition.FoodItem{
			{Name: "chicken breast", Calories: 280, ProteinG: 34},
		},
	})
	if err != nil {
		t.Fatalf("CreateMeal: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated meal ID")
	}
	if created.CreatedAt.IsZero() || created.LoggedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}

	got, err := store.GetMeal(ctx, "user-1", created.ID)
	if err != nil {
		t.Fatalf("GetMeal: %v", err)
	}
	if got.Description != "grilled chicken salad" {
		t.Fatalf("unexpected description %q", got.Description)
	}

	// Mutating the returned slice must not leak into the store.
	got.Items[0].Name = "mutated"
	again, err := store.GetMeal(ctx, "user-1", created.ID)
	if err != nil {
		t.Fatalf("GetMeal after mutation: %v", err)
	}
	if again.Items[0].Name != "chicken breast" {
		t.Fatal("store state was mutated through a returned meal")
	}

	got.Description = "chicken salad, dressed"
	updated, err := store.UpdateMeal(ctx, got)
	if err != nil {
		t.Fatalf("UpdateMeal: %v", err)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatal("UpdateMeal must preserve CreatedAt")
	}

	if err := store.DeleteMeal(ctx, "user-1", created.ID); err != nil {
		t.Fatalf("DeleteMeal: %v", err)
	}
	if _, err := store.GetMeal(ctx, "user-1", created.ID); err == nil {
		t.Fatal("expected error after delete")
	}
}

func TestMealsAreScopedToUser(t *testing.T) {
	store := New()
	ctx := context.Background()

	created, err := store.CreateMeal(ctx, meal.Meal{UserID: "user-1", Description: "oatmeal"})
	if err != nil {
		t.Fatalf("CreateMeal: %v", err)
	}

	if _, err := store.GetMeal(ctx, "user-2", created.ID); err == nil {
		t.Fatal("expected not found for a different user")
	}
	if err := store.DeleteMeal(ctx, "user-2", created.ID); err == nil {
		t.Fatal("expected delete to fail for a different user")
	}
}

func TestListMealsFiltersAndSorts(t *testing.T) {
	store := New()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := store.CreateMeal(ctx, meal.Meal{
			UserID:   "user-1",
			LoggedAt: base.Add(time.Duration(i) * time.Hour),
			Calories: float64(100 * (i + 1)),
		})
		if err != nil {
			t.Fatalf("CreateMeal %d: %v", i, err)
		}
	}
	if _, err := store.CreateMeal(ctx, meal.Meal{UserID: "user-2", LoggedAt: base}); err != nil {
		t.Fatalf("CreateMeal other user: %v", err)
	}

	meals, err := store.ListMeals(ctx, "user-1", time.Time{}, time.Time{}, 0)
	if err != nil {
		t.Fatalf("ListMeals: %v", err)
	}
	if len(meals) != 5 {
		t.Fatalf("expected 5 meals, got %d", len(meals))
	}
	for i := 1; i < len(meals); i++ {
		if meals[i].LoggedAt.After(meals[i-1].LoggedAt) {
			t.Fatal("expected meals sorted newest first")
		}
	}

	window, err := store.ListMeals(ctx, "user-1", base.Add(time.Hour), base.Add(3*time.Hour), 0)
	if err != nil {
		t.Fatalf("ListMeals window: %v", err)
	}
	if len(window) != 2 {
		t.Fatalf("expected 2 meals in [from, to) window, got %d", len(window))
	}

	limited, err := store.ListMeals(ctx, "user-1", time.Time{}, time.Time{}, 2)
	if err != nil {
		t.Fatalf("ListMeals limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected limit to cap results, got %d", len(limited))
	}
}

func TestAnalysisLifecycle(t *testing.T) {
	store := New()
	ctx := context.Background()

	rec, err := store.CreateAnalysis(ctx, analysis.Record{
		UserID:    "user-1",
		SessionID: "session-1",
		ImageRef:  "images/user-1/lunch.jpg",
		Status:    analysis.StatusPending,
	})
	if err != nil {
		t.Fatalf("CreateAnalysis: %v", err)
	}

	rec.Status = analysis.StatusCompleted
	rec.Result = &nutrition.Analysis{Description: "ramen", Calories: 650, Confidence: nutrition.ConfidenceMedium}
	updated, err := store.UpdateAnalysis(ctx, rec)
	if err != nil {
		t.Fatalf("UpdateAnalysis: %v", err)
	}
	if updated.Status != analysis.StatusCompleted {
		t.Fatalf("unexpected status %s", updated.Status)
	}

	got, err := store.GetAnalysis(ctx, "user-1", rec.ID)
	if err != nil {
		t.Fatalf("GetAnalysis: %v", err)
	}
	if got.Result == nil || got.Result.Calories != 650 {
		t.Fatal("expected stored result")
	}

	// Result pointers must not alias store state.
	got.Result.Calories = 1
	fresh, err := store.GetAnalysis(ctx, "user-1", rec.ID)
	if err != nil {
		t.Fatalf("GetAnalysis fresh: %v", err)
	}
	if fresh.Result.Calories != 650 {
		t.Fatal("store result was mutated through a returned record")
	}

	list, err := store.ListAnalyses(ctx, "user-1", 0)
	if err != nil {
		t.Fatalf("ListAnalyses: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 analysis, got %d", len(list))
	}
	if _, err := store.GetAnalysis(ctx, "user-2", rec.ID); err == nil {
		t.Fatal("expected not found for a different user")
	}
}

func TestGoalUpsertPreservesCreatedAt(t *testing.T) {
	store := New()
	ctx := context.Background()

	first, err := store.UpsertGoal(ctx, goal.Default("user-1"))
	if err != nil {
		t.Fatalf("UpsertGoal: %v", err)
	}

	g := first
	g.Calories = 1800
	second, err := store.UpsertGoal(ctx, g)
	if err != nil {
		t.Fatalf("UpsertGoal again: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatal("upsert must preserve CreatedAt")
	}
	if second.Calories != 1800 {
		t.Fatalf("unexpected target %v", second.Calories)
	}

	if _, err := store.GetGoal(ctx, "user-2"); err == nil {
		t.Fatal("expected not found for user without a goal")
	}
}

func TestDailySummaryAggregatesOneDay(t *testing.T) {
	store := New()
	ctx := context.Background()

	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	inDay := []meal.Meal{
		{UserID: "user-1", LoggedAt: day.Add(8 * time.Hour), Calories: 400, ProteinG: 30},
		{UserID: "user-1", LoggedAt: day.Add(13 * time.Hour), Calories: 600, ProteinG: 40},
	}
	outOfDay := []meal.Meal{
		{UserID: "user-1", LoggedAt: day.Add(-time.Minute), Calories: 999},
		{UserID: "user-1", LoggedAt: day.Add(24 * time.Hour), Calories: 999},
		{UserID: "user-2", LoggedAt: day.Add(9 * time.Hour), Calories: 999},
	}
	for _, m := range append(inDay, outOfDay...) {
		if _, err := store.CreateMeal(ctx, m); err != nil {
			t.Fatalf("CreateMeal: %v", err)
		}
	}

	summary, err := store.DailySummary(ctx, "user-1", day.Add(10*time.Hour))
	if err != nil {
		t.Fatalf("DailySummary: %v", err)
	}
	if summary.Meals != 2 {
		t.Fatalf("expected 2 meals, got %d", summary.Meals)
	}
	if summary.Calories != 1000 || summary.ProteinG != 70 {
		t.Fatalf("unexpected totals: %+v", summary)
	}
	if summary.Date != "2025-06-02" {
		t.Fatalf("unexpected date %q", summary.Date)
	}

	ids, err := store.ActiveUserIDs(ctx, day)
	if err != nil {
		t.Fatalf("ActiveUserIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "user-1" || ids[1] != "user-2" {
		t.Fatalf("unexpected active users: %v", ids)
	}
}
