package httpapi

import (
	"time"

	"github.com/proteinlens/proteinlens/internal/app/domain/goal"
	"github.com/proteinlens/proteinlens/internal/app/domain/meal"
	"github.com/proteinlens/proteinlens/internal/app/domain/nutrition"
	"github.com/proteinlens/proteinlens/internal/app/domain/profile"
	"github.com/proteinlens/proteinlens/internal/app/domain/session"
	"github.com/proteinlens/proteinlens/internal/app/services/capture"
	"github.com/proteinlens/proteinlens/internal/engine/score"
)

// sessionFileDTO describes the selected image without its bytes.
type sessionFileDTO struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

type foodItemDTO struct {
	Name     string  `json:"name"`
	PortionG float64 `json:"portion_g"`
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

type analysisDTO struct {
	Description string        `json:"description"`
	Calories    float64       `json:"calories"`
	ProteinG    float64       `json:"protein_g"`
	CarbsG      float64       `json:"carbs_g"`
	FatG        float64       `json:"fat_g"`
	FiberG      float64       `json:"fiber_g"`
	Confidence  string        `json:"confidence,omitempty"`
	Items       []foodItemDTO `json:"items,omitempty"`
	Model       string        `json:"model,omitempty"`
	Warnings    []string      `json:"warnings,omitempty"`
}

type sessionDTO struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Phase          string          `json:"phase"`
	File           *sessionFileDTO `json:"file,omitempty"`
	Progress       int             `json:"progress"`
	RemoteImageRef string          `json:"remote_image_ref,omitempty"`
	ResultID       string          `json:"result_id,omitempty"`
	Result         *analysisDTO    `json:"result,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
}

// sessionResponse adds the registry bookkeeping times to the session value.
type sessionResponse struct {
	sessionDTO
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// sessionEventResponse reports whether an event applied. applied false means
// the event was a no-op for the current phase; the session is returned as is.
type sessionEventResponse struct {
	Applied bool            `json:"applied"`
	Session sessionResponse `json:"session"`
}

type mealDTO struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	Description string        `json:"description"`
	ImageRef    string        `json:"image_ref,omitempty"`
	AnalysisID  string        `json:"analysis_id,omitempty"`
	Calories    float64       `json:"calories"`
	ProteinG    float64       `json:"protein_g"`
	CarbsG      float64       `json:"carbs_g"`
	FatG        float64       `json:"fat_g"`
	FiberG      float64       `json:"fiber_g"`
	Confidence  string        `json:"confidence,omitempty"`
	Items       []foodItemDTO `json:"items,omitempty"`
	LoggedAt    time.Time     `json:"logged_at"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type summaryDTO struct {
	Date     string  `json:"date"`
	Meals    int     `json:"meals"`
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
	FiberG   float64 `json:"fiber_g"`
}

type goalDTO struct {
	Calories  float64   `json:"calories"`
	ProteinG  float64   `json:"protein_g"`
	CarbsG    float64   `json:"carbs_g"`
	FatG      float64   `json:"fat_g"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type progressDTO struct {
	TargetCalories  float64 `json:"target_calories"`
	TargetProteinG  float64 `json:"target_protein_g"`
	TargetCarbsG    float64 `json:"target_carbs_g"`
	TargetFatG      float64 `json:"target_fat_g"`
	Calories        float64 `json:"calories"`
	ProteinG        float64 `json:"protein_g"`
	CarbsG          float64 `json:"carbs_g"`
	FatG            float64 `json:"fat_g"`
	CaloriesPercent float64 `json:"calories_percent"`
	ProteinPercent  float64 `json:"protein_percent"`
	CarbsPercent    float64 `json:"carbs_percent"`
	FatPercent      float64 `json:"fat_percent"`
}

type profileDTO struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags,omitempty"`
	ProteinWeight float64  `json:"protein_weight"`
	CarbWeight    float64  `json:"carb_weight"`
	FatWeight     float64  `json:"fat_weight"`
	Script        string   `json:"script,omitempty"`
}

type selectionDTO struct {
	ProfileID string    `json:"profile_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type scoreDTO struct {
	Score   float64  `json:"score"`
	Verdict string   `json:"verdict"`
	Logs    []string `json:"logs,omitempty"`
}

func toSessionDTO(s session.Session) sessionDTO {
	dto := sessionDTO{
		ID:             s.ID,
		UserID:         s.UserID,
		Phase:          string(s.Phase),
		Progress:       s.Progress,
		RemoteImageRef: s.RemoteImageRef,
		ResultID:       s.ResultID,
		ErrorMessage:   s.ErrorMessage,
	}
	if s.File != nil {
		dto.File = &sessionFileDTO{
			Name:     s.File.Name,
			MIMEType: s.File.MIMEType,
			Size:     s.File.Size,
			Checksum: s.File.Checksum,
		}
	}
	if s.Result != nil {
		result := toAnalysisDTO(*s.Result)
		dto.Result = &result
	}
	return dto
}

func toSessionResponse(snap capture.Snapshot) sessionResponse {
	return sessionResponse{
		sessionDTO: toSessionDTO(snap.Session),
		CreatedAt:  snap.CreatedAt,
		UpdatedAt:  snap.UpdatedAt,
	}
}

func toAnalysisDTO(a nutrition.Analysis) analysisDTO {
	return analysisDTO{
		Description: a.Description,
		Calories:    a.Calories,
		ProteinG:    a.ProteinG,
		CarbsG:      a.CarbsG,
		FatG:        a.FatG,
		FiberG:      a.FiberG,
		Confidence:  string(a.Confidence),
		Items:       toFoodItemDTOs(a.Items),
		Model:       a.Model,
		Warnings:    a.Warnings,
	}
}

func fromAnalysisDTO(dto analysisDTO) nutrition.Analysis {
	return nutrition.Analysis{
		Description: dto.Description,
		Calories:    dto.Calories,
		ProteinG:    dto.ProteinG,
		CarbsG:      dto.CarbsG,
		FatG:        dto.FatG,
		FiberG:      dto.FiberG,
		Confidence:  nutrition.Confidence(dto.Confidence),
		Items:       fromFoodItemDTOs(dto.Items),
		Model:       dto.Model,
		Warnings:    dto.Warnings,
	}
}

func toFoodItemDTOs(items []nutrition.FoodItem) []foodItemDTO {
	if len(items) == 0 {
		return nil
	}
	out := make([]foodItemDTO, len(items))
	for i, item := range items {
		out[i] = foodItemDTO{
			Name:     item.Name,
			PortionG: item.PortionG,
			Calories: item.Calories,
			ProteinG: item.ProteinG,
			CarbsG:   item.CarbsG,
			FatG:     item.FatG,
		}
	}
	return out
}

func fromFoodItemDTOs(items []foodItemDTO) []nutrition.FoodItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]nutrition.FoodItem, len(items))
	for i, item := range items {
		out[i] = nutrition.FoodItem{
			Name:     item.Name,
			PortionG: item.PortionG,
			Calories: item.Calories,
			ProteinG: item.ProteinG,
			CarbsG:   item.CarbsG,
			FatG:     item.FatG,
		}
	}
	return out
}

func toMealDTO(m meal.Meal) mealDTO {
	return mealDTO{
		ID:          m.ID,
		UserID:      m.UserID,
		Description: m.Description,
		ImageRef:    m.ImageRef,
		AnalysisID:  m.AnalysisID,
		Calories:    m.Calories,
		ProteinG:    m.ProteinG,
		CarbsG:      m.CarbsG,
		FatG:        m.FatG,
		FiberG:      m.FiberG,
		Confidence:  string(m.Confidence),
		Items:       toFoodItemDTOs(m.Items),
		LoggedAt:    m.LoggedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func toSummaryDTO(s meal.DailySummary) summaryDTO {
	return summaryDTO{
		Date:     s.Date,
		Meals:    s.Meals,
		Calories: s.Calories,
		ProteinG: s.ProteinG,
		CarbsG:   s.CarbsG,
		FatG:     s.FatG,
		FiberG:   s.FiberG,
	}
}

func toGoalDTO(g goal.Goal) goalDTO {
	return goalDTO{
		Calories:  g.Calories,
		ProteinG:  g.ProteinG,
		CarbsG:    g.CarbsG,
		FatG:      g.FatG,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}

func toProgressDTO(p goal.Progress) progressDTO {
	return progressDTO{
		TargetCalories:  p.TargetCalories,
		TargetProteinG:  p.TargetProteinG,
		TargetCarbsG:    p.TargetCarbsG,
		TargetFatG:      p.TargetFatG,
		Calories:        p.Calories,
		ProteinG:        p.ProteinG,
		CarbsG:          p.CarbsG,
		FatG:            p.FatG,
		CaloriesPercent: p.CaloriesPercent,
		ProteinPercent:  p.ProteinPercent,
		CarbsPercent:    p.CarbsPercent,
		FatPercent:      p.FatPercent,
	}
}

func toProfileDTO(p profile.Profile) profileDTO {
	return profileDTO{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Tags:          p.Tags,
		ProteinWeight: p.ProteinWeight,
		CarbWeight:    p.CarbWeight,
		FatWeight:     p.FatWeight,
		Script:        p.Script,
	}
}

func toSelectionDTO(sel profile.Selection) selectionDTO {
	return selectionDTO{
		ProfileID: sel.ProfileID,
		CreatedAt: sel.CreatedAt,
		UpdatedAt: sel.UpdatedAt,
	}
}

func toScoreDTO(res score.Result) scoreDTO {
	return scoreDTO{Score: res.Score, Verdict: res.Verdict, Logs: res.Logs}
}
