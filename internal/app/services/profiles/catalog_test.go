package profiles

import (
	"strings"
	"testing"

	"github.com/proteinlens/proteinlens/internal/app/domain/profile"
	"github.com/proteinlens/proteinlens/internal/engine/score"
)

func TestParseCatalogFromYAML(t *testing.T) {
	doc := `
profiles:
  - id: cut
    name: Cutting
    description: Lean out without losing muscle.
    tags: [protein, deficit]
    protein_weight: 2
    carb_weight: 0.8
    fat_weight: 0.6
  - id: custom
    name: Custom Script
    script: |
      function score(meal) { return 50; }
`
	cat, err := ParseCatalog([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cat.Len() != 2 {
		t.Fatalf("len = %d, want 2", cat.Len())
	}

	cut, ok := cat.Get("cut")
	if !ok {
		t.Fatal("cut profile missing")
	}
	if cut.Name != "Cutting" || cut.ProteinWeight != 2 || cut.CarbWeight != 0.8 {
		t.Errorf("profile = %+v", cut)
	}
	if len(cut.Tags) != 2 || cut.Tags[0] != "protein" {
		t.Errorf("tags = %v", cut.Tags)
	}

	custom, _ := cat.Get("custom")
	if !strings.Contains(custom.Script, "function score") {
		t.Errorf("script = %q", custom.Script)
	}

	list := cat.List()
	if len(list) != 2 || list[0].ID != "cut" || list[1].ID != "custom" {
		t.Errorf("order = %v", list)
	}
}

func TestNewCatalogValidation(t *testing.T) {
	cases := []struct {
		name string
		list []profile.Profile
	}{
		{"empty", nil},
		{"missing id", []profile.Profile{{Name: "No ID"}}},
		{"missing name", []profile.Profile{{ID: "x"}}},
		{"duplicate id", []profile.Profile{{ID: "x", Name: "A"}, {ID: "x", Name: "B"}}},
		{"negative weight", []profile.Profile{{ID: "x", Name: "A", CarbWeight: -1}}},
		{"oversize script", []profile.Profile{{ID: "x", Name: "A", Script: strings.Repeat("a", score.MaxScriptSize+1)}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewCatalog(tc.list); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestParseCatalogRejectsMalformedYAML(t *testing.T) {
	if _, err := ParseCatalog([]byte("profiles: [")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDefaultCatalog(t *testing.T) {
	cat := DefaultCatalog()
	if cat.Len() < 3 {
		t.Fatalf("len = %d", cat.Len())
	}
	if _, ok := cat.Get("balanced"); !ok {
		t.Error("balanced profile missing")
	}
	keto, ok := cat.Get("keto")
	if !ok {
		t.Fatal("keto profile missing")
	}
	if keto.Script == "" {
		t.Error("keto profile should be scripted")
	}
}
