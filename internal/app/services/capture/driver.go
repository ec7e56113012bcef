// Package capture hosts live meal-capture sessions. A Driver serializes
// events onto one session value; the Registry tracks drivers by ID and
// expires the ones nobody touches.
package capture

import (
	"context"
	"sync"
	"time"

	"github.com/proteinlens/proteinlens/internal/app/domain/nutrition"
	"github.com/proteinlens/proteinlens/internal/app/domain/session"
	"github.com/proteinlens/proteinlens/internal/app/metrics"
	"github.com/proteinlens/proteinlens/pkg/logger"
)

// Change is delivered to subscribers after every applied event. Seq increases
// by one per applied event, so receivers can discard stale deliveries.
type Change struct {
	Seq     uint64
	Session session.Session
}

// Snapshot pairs the current session value with the driver's bookkeeping
// times.
type Snapshot struct {
	Session   session.Session
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Driver owns one session. All events pass through Apply under a single
// mutex, which preserves the one-writer ordering the transition model
// assumes.
type Driver struct {
	mu          sync.Mutex
	current     session.Session
	seq         uint64
	createdAt   time.Time
	updatedAt   time.Time
	attemptCtx  context.Context
	cancel      context.CancelFunc
	handlers    map[int]func(Change)
	nextHandler int
	closed      bool
	log         *logger.Logger
}

func newDriver(id, userID string, log *logger.Logger) *Driver {
	now := time.Now().UTC()
	return &Driver{
		current:   session.New(id, userID),
		createdAt: now,
		updatedAt: now,
		handlers:  make(map[int]func(Change)),
		log:       log,
	}
}

var canceledCtx = func() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}()

// Apply runs one event through the transition function. Events the current
// phase does not accept leave the session untouched and report false.
func (d *Driver) Apply(ev session.Event) (session.Session, bool) {
	d.mu.Lock()
	if d.closed {
		cur := d.current
		d.mu.Unlock()
		return cur, false
	}

	next, applied := session.Step(d.current, ev)
	metrics.RecordCaptureEvent(string(ev.Kind), applied)

	if !applied {
		cur := d.current
		d.mu.Unlock()
		if ev.Kind.Terminal() {
			metrics.RecordDroppedTerminalEvent(string(ev.Kind), string(cur.Phase))
			d.log.WithField("session_id", cur.ID).
				WithField("phase", string(cur.Phase)).
				WithField("event", string(ev.Kind)).
				Warn("terminal event dropped, session left the accepting phase")
		} else {
			d.log.WithField("session_id", cur.ID).
				WithField("phase", string(cur.Phase)).
				WithField("event", string(ev.Kind)).
				Debug("event ignored for current phase")
		}
		return cur, false
	}

	d.current = next
	d.seq++
	d.updatedAt = time.Now().UTC()

	// One attempt context spans the in-flight phases. Leaving them, for any
	// reason, cancels whatever collaborator is still running.
	if next.Phase.InFlight() {
		if d.cancel == nil {
			d.attemptCtx, d.cancel = context.WithCancel(context.Background())
		}
	} else if d.cancel != nil {
		d.cancel()
		d.cancel = nil
		d.attemptCtx = nil
	}

	change := Change{Seq: d.seq, Session: next}
	handlers := make([]func(Change), 0, len(d.handlers))
	for _, fn := range d.handlers {
		handlers = append(handlers, fn)
	}
	d.mu.Unlock()

	for _, fn := range handlers {
		go fn(change)
	}
	return next, true
}

// SelectFile stages a file, replacing whatever the session held before.
func (d *Driver) SelectFile(file session.FilePayload) (session.Session, bool) {
	return d.Apply(session.Select(&file))
}

// StartUpload begins an upload attempt for the selected file.
func (d *Driver) StartUpload() (session.Session, bool) {
	return d.Apply(session.UploadStart())
}

// ReportProgress advances upload progress. Regressions and out-of-range
// values are absorbed.
func (d *Driver) ReportProgress(percent int) (session.Session, bool) {
	return d.Apply(session.UploadProgress(percent))
}

// CompleteUpload records the stored image reference and moves to analysis.
func (d *Driver) CompleteUpload(ref string) (session.Session, bool) {
	return d.Apply(session.UploadComplete(ref))
}

// StartAnalysis marks that the analyzer picked the session up.
func (d *Driver) StartAnalysis() (session.Session, bool) {
	return d.Apply(session.AnalyzeStart())
}

// CompleteAnalysis lands the nutrition result.
func (d *Driver) CompleteAnalysis(resultID string, result *nutrition.Analysis) (session.Session, bool) {
	return d.Apply(session.AnalyzeComplete(resultID, result))
}

// ReportError pushes the session into the error phase from anywhere.
func (d *Driver) ReportError(message string) (session.Session, bool) {
	return d.Apply(session.Fail(message))
}

// Retry returns an errored session to selected with its file intact.
func (d *Driver) Retry() (session.Session, bool) {
	return d.Apply(session.Retry())
}

// Reset returns the session to pristine idle from any phase.
func (d *Driver) Reset() (session.Session, bool) {
	return d.Apply(session.Reset())
}

// Snapshot returns the current session value with driver times.
func (d *Driver) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Snapshot{Session: d.current, CreatedAt: d.createdAt, UpdatedAt: d.updatedAt}
}

// LastActivity reports when the last event applied.
func (d *Driver) LastActivity() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.updatedAt
}

// AttemptContext returns the context covering the in-flight attempt.
// Outside uploading/analyzing it returns an already-canceled context, so a
// late collaborator fails fast instead of doing work nobody wants.
func (d *Driver) AttemptContext() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.attemptCtx == nil {
		return canceledCtx
	}
	return d.attemptCtx
}

// Subscribe registers fn for change notifications and returns its handle.
// Deliveries are asynchronous; use Change.Seq to discard stale ones.
func (d *Driver) Subscribe(fn func(Change)) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextHandler
	d.nextHandler++
	d.handlers[id] = fn
	return id
}

// Unsubscribe removes a handler registered with Subscribe.
func (d *Driver) Unsubscribe(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, id)
}

// Close cancels any in-flight attempt and stops notifications. Further
// events are ignored.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
		d.attemptCtx = nil
	}
	d.handlers = make(map[int]func(Change))
}
