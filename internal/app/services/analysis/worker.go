// Package analysis runs uploaded meal photos through the vision provider in
// the background, landing the outcome on the session and persisting an
// attempt record either way.
package analysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/proteinlens/proteinlens/internal/app/domain/analysis"
	"github.com/proteinlens/proteinlens/internal/app/metrics"
	"github.com/proteinlens/proteinlens/internal/app/services/capture"
	"github.com/proteinlens/proteinlens/internal/app/services/vision"
	"github.com/proteinlens/proteinlens/internal/app/storage"
	"github.com/proteinlens/proteinlens/internal/storage/objectstore"
	"github.com/proteinlens/proteinlens/pkg/logger"
)

// Config sizes the worker pool.
type Config struct {
	Workers        int
	QueueSize      int
	AttemptTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 90 * time.Second
	}
	return c
}

// Worker consumes analysis tasks queued by the capture service. Each attempt
// makes at most one terminal callback on the session: CompleteAnalysis on
// success, ReportError on failure, neither when the session abandoned the
// attempt first.
type Worker struct {
	registry *capture.Registry
	objects  objectstore.ObjectStore
	analyzer vision.Analyzer
	store    storage.AnalysisStore
	cfg      Config
	log      *logger.Logger

	mu      sync.Mutex
	queue   chan capture.AnalysisTask
	wg      sync.WaitGroup
	running bool
}

var _ capture.AnalysisEnqueuer = (*Worker)(nil)

// NewWorker wires the worker pool. store may be nil; outcomes then live only
// on the session.
func NewWorker(registry *capture.Registry, objects objectstore.ObjectStore, analyzer vision.Analyzer, store storage.AnalysisStore, cfg Config, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.NewDefault("analysis")
	}
	return &Worker{
		registry: registry,
		objects:  objects,
		analyzer: analyzer,
		store:    store,
		cfg:      cfg.withDefaults(),
		log:      log,
	}
}

// Start launches the worker goroutines.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("analysis worker already running")
	}
	w.queue = make(chan capture.AnalysisTask, w.cfg.QueueSize)
	w.running = true

	for i := 0; i < w.cfg.Workers; i++ {
		w.wg.Add(1)
		go w.runLoop()
	}
	w.log.WithField("workers", w.cfg.Workers).
		WithField("queue_size", w.cfg.QueueSize).
		Info("analysis worker started")
	return nil
}

// Stop refuses new tasks and drains the queue. It returns early with the
// context's error if draining outlasts ctx.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.queue)
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.log.Info("analysis worker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the pool accepts tasks.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Enqueue hands a task to the pool without blocking. False means the backlog
// is full or the pool is stopped.
func (w *Worker) Enqueue(task capture.AnalysisTask) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return false
	}
	select {
	case w.queue <- task:
		return true
	default:
		return false
	}
}

func (w *Worker) runLoop() {
	defer w.wg.Done()
	for task := range w.queue {
		w.process(task)
	}
}

func (w *Worker) process(task capture.AnalysisTask) {
	start := time.Now()

	drv, err := w.registry.Get(task.UserID, task.SessionID)
	if err != nil {
		metrics.RecordAnalysisRun("orphaned", time.Since(start))
		w.log.WithField("session_id", task.SessionID).Debug("analysis task dropped, session gone")
		return
	}

	if _, applied := drv.StartAnalysis(); !applied {
		metrics.RecordAnalysisRun("skipped", time.Since(start))
		w.log.WithField("session_id", task.SessionID).Debug("analysis task skipped, session left analyzing")
		return
	}

	ctx, cancel := context.WithTimeout(drv.AttemptContext(), w.cfg.AttemptTimeout)
	defer cancel()

	rec := analysis.Record{
		ID:        uuid.NewString(),
		UserID:    task.UserID,
		SessionID: task.SessionID,
		ImageRef:  task.ImageRef,
		Status:    analysis.StatusPending,
	}
	w.persist(&rec, true)

	data, contentType, err := w.objects.Get(ctx, task.ImageRef)
	if err != nil {
		w.fail(ctx, drv, &rec, fmt.Sprintf("fetch image: %v", err), start)
		return
	}

	result, err := w.analyzer.AnalyzeImage(ctx, data, contentType)
	if err != nil {
		w.fail(ctx, drv, &rec, fmt.Sprintf("analyze image: %v", err), start)
		return
	}

	rec.Status = analysis.StatusCompleted
	rec.Result = result
	w.persist(&rec, false)

	drv.CompleteAnalysis(rec.ID, result)
	metrics.RecordAnalysisRun("completed", time.Since(start))
	w.log.WithField("session_id", task.SessionID).
		WithField("analysis_id", rec.ID).
		WithField("calories", result.Calories).
		Info("analysis completed")
}

func (w *Worker) fail(ctx context.Context, drv *capture.Driver, rec *analysis.Record, msg string, start time.Time) {
	// Suppress the terminal callback only when the session itself abandoned
	// the attempt. A timed-out attempt still has a live session waiting.
	if drv.AttemptContext().Err() != nil {
		rec.Status = analysis.StatusFailed
		rec.ErrorMessage = "analysis canceled"
		w.persist(rec, false)
		metrics.RecordAnalysisRun("canceled", time.Since(start))
		w.log.WithField("session_id", rec.SessionID).Debug("analysis canceled by session")
		return
	}
	if ctx.Err() == context.DeadlineExceeded {
		msg = "analysis timed out"
	}

	rec.Status = analysis.StatusFailed
	rec.ErrorMessage = msg
	w.persist(rec, false)

	drv.ReportError(msg)
	metrics.RecordAnalysisRun("failed", time.Since(start))
	w.log.WithField("session_id", rec.SessionID).
		WithField("analysis_id", rec.ID).
		Warn("analysis failed: " + msg)
}

// persist writes the attempt record on its own deadline so bookkeeping
// survives session churn. Store failures degrade to a log line.
func (w *Worker) persist(rec *analysis.Record, create bool) {
	if w.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		saved analysis.Record
		err   error
	)
	if create {
		saved, err = w.store.CreateAnalysis(ctx, *rec)
	} else {
		saved, err = w.store.UpdateAnalysis(ctx, *rec)
	}
	if err != nil {
		w.log.WithField("analysis_id", rec.ID).WithError(err).Error("persist analysis record failed")
		return
	}
	*rec = saved
}
