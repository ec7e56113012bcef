// Package profiles serves the diet-profile catalog, per-user selections, and
// meal scoring.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/proteinlens/proteinlens/internal/app/domain/nutrition"
	"github.com/proteinlens/proteinlens/internal/app/domain/profile"
	"github.com/proteinlens/proteinlens/internal/app/metrics"
	"github.com/proteinlens/proteinlens/internal/app/storage"
	"github.com/proteinlens/proteinlens/internal/engine/score"
	"github.com/proteinlens/proteinlens/pkg/logger"
)

// ErrUnknownProfile marks profile ids that are not in the catalog.
var ErrUnknownProfile = errors.New("unknown profile")

// Service answers catalog reads, tracks selections, and scores meals.
type Service struct {
	catalog *Catalog
	store   storage.ProfileStore
	engine  *score.Engine
	log     *logger.Logger
}

// New wires the profiles service. A nil catalog falls back to the built-in
// one and a nil engine gets default limits.
func New(catalog *Catalog, store storage.ProfileStore, engine *score.Engine, log *logger.Logger) *Service {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if engine == nil {
		engine = score.NewEngine(0, nil)
	}
	if log == nil {
		log = logger.NewDefault("profiles")
	}
	return &Service{catalog: catalog, store: store, engine: engine, log: log}
}

// List returns the catalog in file order.
func (s *Service) List() []profile.Profile {
	return s.catalog.List()
}

// Get returns one profile by id.
func (s *Service) Get(id string) (profile.Profile, error) {
	p, ok := s.catalog.Get(id)
	if !ok {
		return profile.Profile{}, fmt.Errorf("%w: %s", ErrUnknownProfile, id)
	}
	return p, nil
}

// SetUserProfile records which profile the user follows.
func (s *Service) SetUserProfile(ctx context.Context, userID, profileID string) (profile.Selection, error) {
	if userID == "" {
		return profile.Selection{}, fmt.Errorf("user id required")
	}
	if _, err := s.Get(profileID); err != nil {
		return profile.Selection{}, err
	}

	sel, err := s.store.UpsertSelection(ctx, profile.Selection{UserID: userID, ProfileID: profileID})
	if err != nil {
		return profile.Selection{}, fmt.Errorf("save selection: %w", err)
	}
	s.log.WithFields(map[string]interface{}{
		"user_id":    userID,
		"profile_id": profileID,
	}).Info("profile selected")
	return sel, nil
}

// GetUserProfile returns the user's current selection. storage.ErrNotFound
// when the user never picked one.
func (s *Service) GetUserProfile(ctx context.Context, userID string) (profile.Selection, error) {
	return s.store.GetSelection(ctx, userID)
}

// ClearUserProfile removes the user's selection.
func (s *Service) ClearUserProfile(ctx context.Context, userID string) error {
	return s.store.DeleteSelection(ctx, userID)
}

// Score evaluates the analysis against a profile. Scripted profiles run in
// the sandbox; the rest use the weighted scorer.
func (s *Service) Score(ctx context.Context, profileID string, a *nutrition.Analysis) (score.Result, error) {
	p, err := s.Get(profileID)
	if err != nil {
		return score.Result{}, err
	}
	if a == nil {
		return score.Result{}, fmt.Errorf("analysis required")
	}

	start := time.Now()
	var res score.Result
	if p.Script != "" {
		res, err = s.engine.Evaluate(ctx, p.Script, a)
		if err != nil {
			metrics.RecordScoreEvaluation("failed")
			return score.Result{}, fmt.Errorf("profile %s: %w", profileID, err)
		}
	} else {
		res = score.Weighted(p.ProteinWeight, p.CarbWeight, p.FatWeight, a)
	}

	metrics.RecordScoreEvaluation("completed")
	s.log.WithFields(map[string]interface{}{
		"profile_id":  profileID,
		"score":       res.Score,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("meal scored")
	return res, nil
}
