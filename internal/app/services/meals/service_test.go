package meals

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/proteinlens/proteinlens/internal/app/domain/meal"
	"github.com/proteinlens/proteinlens/internal/app/domain/nutrition"
	"github.com/proteinlens/proteinlens/internal/app/domain/session"
	"github.com/proteinlens/proteinlens/internal/app/services/capture"
	memstore "github.com/proteinlens/proteinlens/internal/app/storage/memory"
	"github.com/proteinlens/proteinlens/pkg/logger"
)

type fakeGateway struct {
	snap   capture.Snapshot
	err    error
	resets []string
}

func (f *fakeGateway) Get(ctx context.Context, userID, sessionID string) (capture.Snapshot, error) {
	if f.err != nil {
		return capture.Snapshot{}, f.err
	}
	return f.snap, nil
}

func (f *fakeGateway) Reset(ctx context.Context, userID, sessionID string) (capture.Snapshot, bool, error) {
	f.resets = append(f.resets, sessionID)
	return capture.Snapshot{}, true, nil
}

func doneSnapshot() capture.Snapshot {
	s := session.New("sess-1", "user-1")
	s.Phase = session.PhaseDone
	s.RemoteImageRef = "meals/user-1/sess-1.jpg"
	s.ResultID = "analysis-1"
	s.Result = &nutrition.Analysis{
		Description: "ramen bowl",
		Calories:    550,
		ProteinG:    25,
		CarbsG:      70,
		FatG:        18,
		FiberG:      4,
		Confidence:  nutrition.ConfidenceMedium,
		Items: []nutrition.FoodItem{
			{Name: "noodles", PortionG: 200, Calories: 280, CarbsG: 56},
		},
	}
	return capture.Snapshot{Session: s}
}

func newTestService(gw CaptureGateway) (*Service, *memstore.Store) {
	store := memstore.New()
	svc := New(store, nil, gw, nil, logger.NewDefault("meals-test"))
	return svc, store
}

func TestLogFromSessionCopiesAnalysis(t *testing.T) {
	gw := &fakeGateway{snap: doneSnapshot()}
	svc, _ := newTestService(gw)

	m, err := svc.LogFromSession(context.Background(), "user-1", "sess-1", "", time.Time{})
	if err != nil {
		t.Fatalf("log from session: %v", err)
	}
	if m.ID == "" {
		t.Fatalf("meal has no id")
	}
	if m.Description != "ramen bowl" {
		t.Errorf("description = %q, want provider default", m.Description)
	}
	if m.Calories != 550 || m.ProteinG != 25 || m.FiberG != 4 {
		t.Errorf("macros = %+v", m)
	}
	if m.ImageRef != "meals/user-1/sess-1.jpg" || m.AnalysisID != "analysis-1" {
		t.Errorf("refs = %q / %q", m.ImageRef, m.AnalysisID)
	}
	if len(m.Items) != 1 || m.Items[0].Name != "noodles" {
		t.Errorf("items = %+v", m.Items)
	}
	if m.LoggedAt.IsZero() {
		t.Errorf("logged at not defaulted")
	}
	if len(gw.resets) != 1 || gw.resets[0] != "sess-1" {
		t.Errorf("session not reset: %v", gw.resets)
	}
}

func TestLogFromSessionHonorsOverrides(t *testing.T) {
	gw := &fakeGateway{snap: doneSnapshot()}
	svc, _ := newTestService(gw)

	at := time.Date(2025, 6, 2, 8, 30, 0, 0, time.UTC)
	m, err := svc.LogFromSession(context.Background(), "user-1", "sess-1", "breakfast ramen", at)
	if err != nil {
		t.Fatalf("log from session: %v", err)
	}
	if m.Description != "breakfast ramen" {
		t.Errorf("description = %q", m.Description)
	}
	if !m.LoggedAt.Equal(at) {
		t.Errorf("logged at = %v, want %v", m.LoggedAt, at)
	}
}

func TestLogFromSessionRequiresDone(t *testing.T) {
	snap := doneSnapshot()
	snap.Session.Phase = session.PhaseAnalyzing
	snap.Session.Result = nil
	gw := &fakeGateway{snap: snap}
	svc, _ := newTestService(gw)

	_, err := svc.LogFromSession(context.Background(), "user-1", "sess-1", "", time.Time{})
	if err == nil || !strings.Contains(err.Error(), "no completed analysis") {
		t.Fatalf("err = %v", err)
	}
	if len(gw.resets) != 0 {
		t.Errorf("session should not be reset on failure")
	}
}

func TestCreateValidates(t *testing.T) {
	svc, _ := newTestService(nil)

	cases := []meal.Meal{
		{Description: "no user"},
		{UserID: "user-1", Calories: -10},
		{UserID: "user-1", Calories: 50000},
		{UserID: "user-1", Description: strings.Repeat("x", maxDescriptionLen+1)},
	}
	for i, m := range cases {
		if _, err := svc.Create(context.Background(), m); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestListClampsLimit(t *testing.T) {
	svc, _ := newTestService(nil)
	base := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := svc.Create(context.Background(), meal.Meal{
			UserID:   "user-1",
			Calories: float64(100 * (i + 1)),
			LoggedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	all, err := svc.List(context.Background(), "user-1", time.Time{}, time.Time{}, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d", len(all))
	}
	if !all[0].LoggedAt.After(all[1].LoggedAt) {
		t.Errorf("not sorted newest first")
	}

	two, err := svc.List(context.Background(), "user-1", time.Time{}, time.Time{}, 2)
	if err != nil || len(two) != 2 {
		t.Fatalf("limited list: %v / %d", err, len(two))
	}
}

func TestUpdateMovesSummaryDays(t *testing.T) {
	svc, _ := newTestService(nil)
	day1 := time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC)

	m, err := svc.Create(context.Background(), meal.Meal{UserID: "user-1", Calories: 400, LoggedAt: day1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	m.LoggedAt = day2
	if _, err := svc.Update(context.Background(), m); err != nil {
		t.Fatalf("update: %v", err)
	}

	s1, err := svc.DailySummary(context.Background(), "user-1", day1)
	if err != nil {
		t.Fatalf("summary day1: %v", err)
	}
	if s1.Meals != 0 {
		t.Errorf("day1 meals = %d, want 0", s1.Meals)
	}
	s2, err := svc.DailySummary(context.Background(), "user-1", day2)
	if err != nil {
		t.Fatalf("summary day2: %v", err)
	}
	if s2.Meals != 1 || s2.Calories != 400 {
		t.Errorf("day2 = %+v", s2)
	}
}

func TestDailySummaryComputesInProcess(t *testing.T) {
	svc, _ := newTestService(nil)
	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	meals := []meal.Meal{
		{UserID: "user-1", Calories: 400, ProteinG: 30, LoggedAt: day.Add(8 * time.Hour)},
		{UserID: "user-1", Calories: 600, ProteinG: 45, FiberG: 6, LoggedAt: day.Add(13 * time.Hour)},
		{UserID: "user-1", Calories: 900, LoggedAt: day.Add(-2 * time.Hour)},
		{UserID: "user-2", Calories: 800, LoggedAt: day.Add(12 * time.Hour)},
	}
	for _, m := range meals {
		if _, err := svc.Create(context.Background(), m); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := svc.DailySummary(context.Background(), "user-1", day.Add(15*time.Hour))
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if got.Date != "2025-06-02" {
		t.Errorf("date = %q", got.Date)
	}
	if got.Meals != 2 || got.Calories != 1000 || got.ProteinG != 75 || got.FiberG != 6 {
		t.Errorf("summary = %+v", got)
	}
}

type fakeReporting struct {
	summary meal.DailySummary
	users   []string
	calls   int
}

func (f *fakeReporting) DailySummary(ctx context.Context, userID string, day time.Time) (meal.DailySummary, error) {
	f.calls++
	return f.summary, nil
}

func (f *fakeReporting) ActiveUserIDs(ctx context.Context, day time.Time) ([]string, error) {
	return f.users, nil
}

func TestDailySummaryPrefersReportingStore(t *testing.T) {
	store := memstore.New()
	rep := &fakeReporting{summary: meal.DailySummary{UserID: "user-1", Date: "2025-06-02", Meals: 7, Calories: 2150}}
	svc := New(store, rep, nil, nil, logger.NewDefault("meals-test"))

	got, err := svc.DailySummary(context.Background(), "user-1", time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if got.Meals != 7 || got.Calories != 2150 {
		t.Errorf("summary = %+v", got)
	}
	if rep.calls != 1 {
		t.Errorf("reporting store calls = %d", rep.calls)
	}
}

func TestWarmDailySummariesVisitsActiveUsers(t *testing.T) {
	store := memstore.New()
	rep := &fakeReporting{users: []string{"user-1", "user-2", "user-3"}}
	svc := New(store, rep, nil, nil, logger.NewDefault("meals-test"))

	warmed, err := svc.WarmDailySummaries(context.Background(), time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("warm: %v", err)
	}
	if warmed != 3 {
		t.Errorf("warmed = %d, want 3", warmed)
	}
	if rep.calls != 3 {
		t.Errorf("reporting store calls = %d, want one summary per user", rep.calls)
	}
}

func TestWarmDailySummariesWithoutReportingStore(t *testing.T) {
	svc := New(memstore.New(), nil, nil, nil, logger.NewDefault("meals-test"))

	warmed, err := svc.WarmDailySummaries(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("warm: %v", err)
	}
	if warmed != 0 {
		t.Errorf("warmed = %d, want 0 without user enumeration", warmed)
	}
}

func TestDeleteRemovesMeal(t *testing.T) {
	svc, _ := newTestService(nil)

	m, err := svc.Create(context.Background(), meal.Meal{UserID: "user-1", Calories: 300})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Delete(context.Background(), "user-1", m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(context.Background(), "user-1", m.ID); err == nil {
		t.Fatalf("expected missing meal after delete")
	}
}
