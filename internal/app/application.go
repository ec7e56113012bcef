package app

import (
	"context"
	"fmt"
	"time"

	"github.com/proteinlens/proteinlens/internal/app/domain/nutrition"
	analysissvc "github.com/proteinlens/proteinlens/internal/app/services/analysis"
	"github.com/proteinlens/proteinlens/internal/app/services/breach"
	"github.com/proteinlens/proteinlens/internal/app/services/capture"
	goalssvc "github.com/proteinlens/proteinlens/internal/app/services/goals"
	mealssvc "github.com/proteinlens/proteinlens/internal/app/services/meals"
	profilessvc "github.com/proteinlens/proteinlens/internal/app/services/profiles"
	"github.com/proteinlens/proteinlens/internal/app/services/transport"
	"github.com/proteinlens/proteinlens/internal/app/services/vision"
	"github.com/proteinlens/proteinlens/internal/app/storage"
	"github.com/proteinlens/proteinlens/internal/app/storage/memory"
	"github.com/proteinlens/proteinlens/internal/app/storage/rediscache"
	"github.com/proteinlens/proteinlens/internal/app/system"
	"github.com/proteinlens/proteinlens/internal/engine/score"
	"github.com/proteinlens/proteinlens/internal/storage/objectstore"
	"github.com/proteinlens/proteinlens/pkg/logger"
)

// DefaultSessionTTL is how long an untouched capture session survives before
// the reaper drops it.
const DefaultSessionTTL = 30 * time.Minute

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Meals    storage.MealStore
	Analyses storage.AnalysisStore
	Goals    storage.GoalStore
	Profiles storage.ProfileStore

	// Reporting is optional; without it daily summaries are computed in
	// process from listed meals.
	Reporting storage.ReportingStore
}

// Options carries the non-store collaborators. Zero values select safe
// defaults: a memory object store, an analyzer that fails every attempt with
// a clear message, no summary cache, and the built-in profile catalog.
type Options struct {
	Objects  objectstore.ObjectStore
	Analyzer vision.Analyzer
	Cache    *rediscache.Cache
	Breach   *breach.Checker
	Catalog  *profilessvc.Catalog

	ScoreEngine *score.Engine

	MaxSessionsPerUser int
	SessionTTL         time.Duration
	Analysis           analysissvc.Config
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Registry *capture.Registry
	Sessions *capture.Service
	Analysis *analysissvc.Worker
	Meals    *mealssvc.Service
	Goals    *goalssvc.Service
	Profiles *profilessvc.Service

	// Breach is nil when no checker was configured; the HTTP layer reports
	// the endpoint as unavailable in that case.
	Breach *breach.Checker

	// SessionTTL is consumed by the scheduler's reaper job.
	SessionTTL time.Duration
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Meals == nil {
		stores.Meals = mem
	}
	if stores.Analyses == nil {
		stores.Analyses = mem
	}
	if stores.Goals == nil {
		stores.Goals = mem
	}
	if stores.Profiles == nil {
		stores.Profiles = mem
	}
	if stores.Reporting == nil {
		stores.Reporting = mem
	}

	if opts.Objects == nil {
		opts.Objects = objectstore.NewMemory()
	}
	if opts.Analyzer == nil {
		log.Warn("no vision analyzer configured; analyses will fail until one is wired")
		opts.Analyzer = unconfiguredAnalyzer()
	}
	if opts.Catalog == nil {
		opts.Catalog = profilessvc.DefaultCatalog()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}

	manager := system.NewManager()

	registry := capture.NewRegistry(opts.MaxSessionsPerUser, log)
	uploader := transport.New(opts.Objects, log)

	worker := analysissvc.NewWorker(registry, opts.Objects, opts.Analyzer, stores.Analyses, opts.Analysis, log)
	sessions := capture.New(registry, uploader, worker, log)

	mealsService := mealssvc.New(stores.Meals, stores.Reporting, sessions, opts.Cache, log)
	goalsService := goalssvc.New(stores.Goals, mealsService, log)
	profilesService := profilessvc.New(opts.Catalog, stores.Profiles, opts.ScoreEngine, log)

	if err := manager.Register(workerService{worker}); err != nil {
		return nil, fmt.Errorf("register analysis worker: %w", err)
	}

	return &Application{
		manager:    manager,
		log:        log,
		Registry:   registry,
		Sessions:   sessions,
		Analysis:   worker,
		Meals:      mealsService,
		Goals:      goalsService,
		Profiles:   profilesService,
		Breach:     opts.Breach,
		SessionTTL: opts.SessionTTL,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

// workerService adapts the analysis worker to the system lifecycle.
type workerService struct {
	w *analysissvc.Worker
}

func (s workerService) Name() string { return "analysis-worker" }

func (s workerService) Start(context.Context) error { return s.w.Start() }

func (s workerService) Stop(ctx context.Context) error { return s.w.Stop(ctx) }

// unconfiguredAnalyzer fails every attempt. Sessions still complete their
// state machine: the error lands on the session and the user can retry once
// a provider is configured.
func unconfiguredAnalyzer() vision.Analyzer {
	return vision.AnalyzerFunc(func(context.Context, []byte, string) (*nutrition.Analysis, error) {
		return nil, fmt.Errorf("vision provider not configured")
	})
}
