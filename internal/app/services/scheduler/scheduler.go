// Package scheduler runs the recurring maintenance jobs: expiring idle
// capture sessions, warming daily summary caches, and sweeping the breach
// checker's in-process range cache.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/proteinlens/proteinlens/internal/app/services/breach"
	"github.com/proteinlens/proteinlens/internal/app/services/capture"
	mealssvc "github.com/proteinlens/proteinlens/internal/app/services/meals"
	"github.com/proteinlens/proteinlens/pkg/logger"
)

// Config carries the cron spec for each job. An empty spec disables that job.
type Config struct {
	SessionReaperSpec string
	SummaryWarmupSpec string
	BreachSweepSpec   string
}

// Deps are the collaborators the jobs drive. A nil dependency disables the
// jobs that need it.
type Deps struct {
	Registry   *capture.Registry
	SessionTTL time.Duration
	Meals      *mealssvc.Service
	Breach     *breach.Checker
}

// Service schedules the background jobs. It implements the system service
// lifecycle: Start registers and launches the cron runner, Stop cancels job
// contexts and waits for running jobs to finish.
type Service struct {
	cfg  Config
	deps Deps
	log  *logger.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	names  []string
	jobCtx context.Context
	cancel context.CancelFunc
}

// New builds a scheduler. log may be nil.
func New(cfg Config, deps Deps, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("scheduler")
	}
	return &Service{cfg: cfg, deps: deps, log: log}
}

// Name identifies the service to the lifecycle manager.
func (s *Service) Name() string { return "scheduler" }

// Start registers the configured jobs and begins running them.
func (s *Service) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	adapter := cronLogger{log: s.log}
	runner := cron.New(
		cron.WithLogger(adapter),
		cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
	)

	names, err := s.registerJobs(runner, jobCtx)
	if err != nil {
		cancel()
		return err
	}

	s.cron = runner
	s.names = names
	s.jobCtx = jobCtx
	s.cancel = cancel
	runner.Start()

	s.log.WithField("jobs", names).Info("scheduler started")
	return nil
}

// Stop cancels job contexts and waits for in-flight jobs, honoring ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	runner := s.cron
	cancel := s.cancel
	s.cron = nil
	s.cancel = nil
	s.mu.Unlock()

	if runner == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	done := runner.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jobs lists the registered job names. Empty until Start.
func (s *Service) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}

type job struct {
	name string
	spec string
	run  func(context.Context)
}

func (s *Service) registerJobs(runner *cron.Cron, jobCtx context.Context) ([]string, error) {
	var jobs []job
	if s.deps.Registry != nil && s.cfg.SessionReaperSpec != "" {
		jobs = append(jobs, job{"session-reaper", s.cfg.SessionReaperSpec, s.reapSessions})
	}
	if s.deps.Meals != nil && s.cfg.SummaryWarmupSpec != "" {
		jobs = append(jobs, job{"summary-warmup", s.cfg.SummaryWarmupSpec, s.warmSummaries})
	}
	if s.deps.Breach != nil && s.cfg.BreachSweepSpec != "" {
		jobs = append(jobs, job{"breach-sweep", s.cfg.BreachSweepSpec, s.sweepBreachCache})
	}

	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		j := j
		if _, err := runner.AddFunc(j.spec, func() { j.run(jobCtx) }); err != nil {
			return nil, fmt.Errorf("schedule %s (%q): %w", j.name, j.spec, err)
		}
		names = append(names, j.name)
	}
	return names, nil
}

func (s *Service) reapSessions(context.Context) {
	expired := s.deps.Registry.Expire(s.deps.SessionTTL)
	if expired > 0 {
		s.log.WithField("expired", expired).Info("reaped idle capture sessions")
	}
}

func (s *Service) warmSummaries(ctx context.Context) {
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	warmed, err := s.deps.Meals.WarmDailySummaries(ctx, yesterday)
	if err != nil {
		s.log.WithError(err).Warn("summary warmup failed")
		return
	}
	if warmed > 0 {
		s.log.WithField("users", warmed).Info("warmed daily summaries")
	}
}

func (s *Service) sweepBreachCache(context.Context) {
	removed := s.deps.Breach.SweepExpired()
	if removed > 0 {
		s.log.WithField("removed", removed).Debug("swept breach range cache")
	}
}

// cronLogger adapts the service logger to the cron runner's interface.
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.WithField("detail", fmt.Sprint(keysAndValues...)).Debug(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.WithError(err).WithField("detail", fmt.Sprint(keysAndValues...)).Error(msg)
}
