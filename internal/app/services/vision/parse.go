package vision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/tidwall/gjson"

	"github.com/proteinlens/proteinlens/internal/app/domain/nutrition"
)

// ParseOptions tunes parsing for a specific provider.
type ParseOptions struct {
	// FieldPaths maps analysis fields to JSONPath expressions for providers
	// that wrap their answer in an envelope. Known keys: description,
	// calories, protein_g, carbs_g, fat_g, fiber_g, confidence, items.
	FieldPaths map[string]string
}

type payloadItem struct {
	Name     string  `json:"name"`
	PortionG float64 `json:"portion_g"`
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

type payload struct {
	Description string        `json:"description"`
	Calories    float64       `json:"calories"`
	ProteinG    float64       `json:"protein_g"`
	CarbsG      float64       `json:"carbs_g"`
	FatG        float64       `json:"fat_g"`
	FiberG      float64       `json:"fiber_g"`
	Confidence  string        `json:"confidence"`
	Items       []payloadItem `json:"items"`
	Warnings    []string      `json:"warnings"`
}

// ParseAnalysis extracts a nutrition analysis from whatever text the model
// produced. Strict JSON is taken as-is; otherwise the first JSON object is
// dug out of the surrounding prose and read leniently. The returned analysis
// is normalized but not yet validated.
func ParseAnalysis(content string, opts ParseOptions) (*nutrition.Analysis, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty provider response")
	}

	block, ok := extractJSONBlock(content)
	if !ok {
		return nil, fmt.Errorf("no JSON object in provider response")
	}

	if len(opts.FieldPaths) > 0 {
		if a, ok := parseWithFieldPaths(block, opts.FieldPaths); ok {
			return a, nil
		}
	}

	var p payload
	if err := json.Unmarshal([]byte(block), &p); err == nil {
		a := p.toAnalysis()
		if !analysisEmpty(a) {
			return normalize(a), nil
		}
	}

	a := parseLenient(block)
	if analysisEmpty(a) {
		return nil, fmt.Errorf("provider response contained no nutrition data")
	}
	a.Warnings = append(a.Warnings, "provider response required lenient parsing")
	return normalize(a), nil
}

// analysisEmpty reports whether parsing produced no usable signal at all.
func analysisEmpty(a *nutrition.Analysis) bool {
	return a.Description == "" &&
		a.Calories == 0 && a.ProteinG == 0 && a.CarbsG == 0 && a.FatG == 0 &&
		len(a.Items) == 0
}

func normalize(a *nutrition.Analysis) *nutrition.Analysis {
	n := a.Normalized()
	return &n
}

func (p payload) toAnalysis() *nutrition.Analysis {
	a := &nutrition.Analysis{
		Description: p.Description,
		Calories:    p.Calories,
		ProteinG:    p.ProteinG,
		CarbsG:      p.CarbsG,
		FatG:        p.FatG,
		FiberG:      p.FiberG,
		Confidence:  nutrition.Confidence(p.Confidence),
		Warnings:    p.Warnings,
	}
	for _, item := range p.Items {
		a.Items = append(a.Items, nutrition.FoodItem{
			Name:     item.Name,
			PortionG: item.PortionG,
			Calories: item.Calories,
			ProteinG: item.ProteinG,
			CarbsG:   item.CarbsG,
			FatG:     item.FatG,
		})
	}
	return a
}

// parseLenient reads the fields one by one, tolerating string numbers,
// missing fields, and trailing junk.
func parseLenient(block string) *nutrition.Analysis {
	a := &nutrition.Analysis{
		Description: gjson.Get(block, "description").String(),
		Calories:    gjson.Get(block, "calories").Float(),
		ProteinG:    gjson.Get(block, "protein_g").Float(),
		CarbsG:      gjson.Get(block, "carbs_g").Float(),
		FatG:        gjson.Get(block, "fat_g").Float(),
		FiberG:      gjson.Get(block, "fiber_g").Float(),
		Confidence:  nutrition.Confidence(gjson.Get(block, "confidence").String()),
	}
	for _, item := range gjson.Get(block, "items").Array() {
		a.Items = append(a.Items, nutrition.FoodItem{
			Name:     item.Get("name").String(),
			PortionG: item.Get("portion_g").Float(),
			Calories: item.Get("calories").Float(),
			ProteinG: item.Get("protein_g").Float(),
			CarbsG:   item.Get("carbs_g").Float(),
			FatG:     item.Get("fat_g").Float(),
		})
	}
	for _, w := range gjson.Get(block, "warnings").Array() {
		if s := w.String(); s != "" {
			a.Warnings = append(a.Warnings, s)
		}
	}
	return a
}

// parseWithFieldPaths builds the analysis from provider-specific JSONPath
// expressions. Reports false when the document does not decode or no
// configured path yields anything.
func parseWithFieldPaths(block string, paths map[string]string) (*nutrition.Analysis, bool) {
	var doc interface{}
	if err := json.Unmarshal([]byte(block), &doc); err != nil {
		return nil, false
	}

	a := &nutrition.Analysis{}
	found := false

	lookup := func(field string) (interface{}, bool) {
		path, ok := paths[field]
		if !ok {
			return nil, false
		}
		v, err := jsonpath.Get(path, doc)
		if err != nil || v == nil {
			return nil, false
		}
		return v, true
	}

	if v, ok := lookup("description"); ok {
		if s, ok := v.(string); ok {
			a.Description = s
			found = true
		}
	}
	for field, dst := range map[string]*float64{
		"calories":  &a.Calories,
		"protein_g": &a.ProteinG,
		"carbs_g":   &a.CarbsG,
		"fat_g":     &a.FatG,
		"fiber_g":   &a.FiberG,
	} {
		if v, ok := lookup(field); ok {
			if f, ok := toFloat(v); ok {
				*dst = f
				found = true
			}
		}
	}
	if v, ok := lookup("confidence"); ok {
		if s, ok := v.(string); ok {
			a.Confidence = nutrition.Confidence(s)
			found = true
		}
	}
	if v, ok := lookup("items"); ok {
		if list, ok := v.([]interface{}); ok {
			for _, entry := range list {
				m, ok := entry.(map[string]interface{})
				if !ok {
					continue
				}
				item := nutrition.FoodItem{}
				if s, ok := m["name"].(string); ok {
					item.Name = s
				}
				if f, ok := toFloat(m["portion_g"]); ok {
					item.PortionG = f
				}
				if f, ok := toFloat(m["calories"]); ok {
					item.Calories = f
				}
				if f, ok := toFloat(m["protein_g"]); ok {
					item.ProteinG = f
				}
				if f, ok := toFloat(m["carbs_g"]); ok {
					item.CarbsG = f
				}
				if f, ok := toFloat(m["fat_g"]); ok {
					item.FatG = f
				}
				a.Items = append(a.Items, item)
				found = true
			}
		}
	}

	if !found || analysisEmpty(a) {
		return nil, false
	}
	return normalize(a), true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// extractJSONBlock returns the first balanced JSON object in s, skipping
// string contents so braces inside values do not confuse the scan.
func extractJSONBlock(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	// Unterminated object; hand back the tail and let the lenient reader
	// salvage what it can.
	return s[start:], true
}
