package capture

import (
	"context"
	"fmt"

	"github.com/proteinlens/proteinlens/internal/app/domain/nutrition"
	"github.com/proteinlens/proteinlens/internal/app/domain/session"
	"github.com/proteinlens/proteinlens/pkg/logger"
)

// UploadTransport streams a session's file into durable storage. The
// implementation reports progress to the driver along the way and finishes
// with exactly one of CompleteUpload / ReportError. The returned flag says
// whether the completion applied, i.e. whether the session still wanted the
// upload when it finished.
type UploadTransport interface {
	Upload(ctx context.Context, drv *Driver, userID, sessionID string, file session.FilePayload) (ref string, completed bool)
}

// AnalysisTask points the analysis worker at an uploaded image.
type AnalysisTask struct {
	SessionID string
	UserID    string
	ImageRef  string
}

// AnalysisEnqueuer accepts tasks for the analysis worker. Enqueue reports
// false when the backlog is full or the worker is stopped.
type AnalysisEnqueuer interface {
	Enqueue(task AnalysisTask) bool
}

// Service scopes session operations to their owning user and launches the
// upload and analysis collaborators at the right transitions.
type Service struct {
	registry  *Registry
	transport UploadTransport
	queue     AnalysisEnqueuer
	log       *logger.Logger
}

// New constructs the capture service. transport and queue may be nil in
// tests; the corresponding transitions then simply do not launch work.
func New(registry *Registry, transport UploadTransport, queue AnalysisEnqueuer, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("capture")
	}
	return &Service{
		registry:  registry,
		transport: transport,
		queue:     queue,
		log:       log,
	}
}

// Registry exposes the underlying session registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Create opens a fresh idle session for userID.
func (s *Service) Create(_ context.Context, userID string) (Snapshot, error) {
	drv, err := s.registry.Create(userID)
	if err != nil {
		return Snapshot{}, err
	}
	return drv.Snapshot(), nil
}

// Get returns the current state of one session.
func (s *Service) Get(_ context.Context, userID, sessionID string) (Snapshot, error) {
	drv, err := s.registry.Get(userID, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return drv.Snapshot(), nil
}

// Remove drops a session, canceling any in-flight attempt.
func (s *Service) Remove(_ context.Context, userID, sessionID string) error {
	return s.registry.Remove(userID, sessionID)
}

// Driver exposes the raw driver for streaming consumers.
func (s *Service) Driver(userID, sessionID string) (*Driver, error) {
	return s.registry.Get(userID, sessionID)
}

// SelectFile stages file on the session.
func (s *Service) SelectFile(_ context.Context, userID, sessionID string, file session.FilePayload) (Snapshot, bool, error) {
	drv, err := s.registry.Get(userID, sessionID)
	if err != nil {
		return Snapshot{}, false, err
	}
	if err := validateFile(file); err != nil {
		return drv.Snapshot(), false, err
	}
	_, applied := drv.SelectFile(file)
	return drv.Snapshot(), applied, nil
}

// StartUpload begins the upload attempt and, when the transition applies,
// hands the file to the upload transport in the background.
func (s *Service) StartUpload(_ context.Context, userID, sessionID string) (Snapshot, bool, error) {
	drv, err := s.registry.Get(userID, sessionID)
	if err != nil {
		return Snapshot{}, false, err
	}

	next, applied := drv.StartUpload()
	if applied && s.transport != nil && next.File != nil {
		file := *next.File
		attemptCtx := drv.AttemptContext()
		go s.runUpload(attemptCtx, drv, userID, sessionID, file)
	}
	return drv.Snapshot(), applied, nil
}

func (s *Service) runUpload(ctx context.Context, drv *Driver, userID, sessionID string, file session.FilePayload) {
	ref, completed := s.transport.Upload(ctx, drv, userID, sessionID, file)
	if !completed {
		return
	}
	s.enqueueAnalysis(drv, AnalysisTask{SessionID: sessionID, UserID: userID, ImageRef: ref})
}

func (s *Service) enqueueAnalysis(drv *Driver, task AnalysisTask) {
	if s.queue == nil {
		return
	}
	if !s.queue.Enqueue(task) {
		s.log.WithField("session_id", task.SessionID).Warn("analysis backlog full")
		drv.ReportError("analysis backlog full, retry shortly")
	}
}

// ReportProgress advances upload progress for client-driven uploads.
func (s *Service) ReportProgress(_ context.Context, userID, sessionID string, percent int) (Snapshot, bool, error) {
	drv, err := s.registry.Get(userID, sessionID)
	if err != nil {
		return Snapshot{}, false, err
	}
	_, applied := drv.ReportProgress(percent)
	return drv.Snapshot(), applied, nil
}

// CompleteUpload records an externally uploaded image and queues analysis.
func (s *Service) CompleteUpload(_ context.Context, userID, sessionID, ref string) (Snapshot, bool, error) {
	drv, err := s.registry.Get(userID, sessionID)
	if err != nil {
		return Snapshot{}, false, err
	}
	if ref == "" {
		return drv.Snapshot(), false, fmt.Errorf("image ref required")
	}

	_, applied := drv.CompleteUpload(ref)
	if applied {
		s.enqueueAnalysis(drv, AnalysisTask{SessionID: sessionID, UserID: userID, ImageRef: ref})
	}
	return drv.Snapshot(), applied, nil
}

// StartAnalysis marks the session as picked up by an analyzer.
func (s *Service) StartAnalysis(_ context.Context, userID, sessionID string) (Snapshot, bool, error) {
	drv, err := s.registry.Get(userID, sessionID)
	if err != nil {
		return Snapshot{}, false, err
	}
	_, applied := drv.StartAnalysis()
	return drv.Snapshot(), applied, nil
}

// CompleteAnalysis lands an externally produced result on the session.
func (s *Service) CompleteAnalysis(_ context.Context, userID, sessionID, resultID string, result *nutrition.Analysis) (Snapshot, bool, error) {
	drv, err := s.registry.Get(userID, sessionID)
	if err != nil {
		return Snapshot{}, false, err
	}
	if resultID == "" || result == nil {
		return drv.Snapshot(), false, fmt.Errorf("result id and result required")
	}
	_, applied := drv.CompleteAnalysis(resultID, result)
	return drv.Snapshot(), applied, nil
}

// ReportError fails the session with a message.
func (s *Service) ReportError(_ context.Context, userID, sessionID, message string) (Snapshot, bool, error) {
	drv, err := s.registry.Get(userID, sessionID)
	if err != nil {
		return Snapshot{}, false, err
	}
	if message == "" {
		message = "unknown error"
	}
	_, applied := drv.ReportError(message)
	return drv.Snapshot(), applied, nil
}

// Retry returns an errored session to selected, keeping its file.
func (s *Service) Retry(_ context.Context, userID, sessionID string) (Snapshot, bool, error) {
	drv, err := s.registry.Get(userID, sessionID)
	if err != nil {
		return Snapshot{}, false, err
	}
	_, applied := drv.Retry()
	return drv.Snapshot(), applied, nil
}

// Reset returns the session to pristine idle.
func (s *Service) Reset(_ context.Context, userID, sessionID string) (Snapshot, bool, error) {
	drv, err := s.registry.Get(userID, sessionID)
	if err != nil {
		return Snapshot{}, false, err
	}
	_, applied := drv.Reset()
	return drv.Snapshot(), applied, nil
}

// maxSelectableBytes bounds the staged file; transports re-check on upload.
const maxSelectableBytes = 8 << 20

func validateFile(file session.FilePayload) error {
	if file.Name == "" {
		return fmt.Errorf("file name required")
	}
	if len(file.Data) == 0 {
		return fmt.Errorf("file data required")
	}
	if file.Size != int64(len(file.Data)) {
		return fmt.Errorf("file size %d does not match payload length %d", file.Size, len(file.Data))
	}
	if file.Size > maxSelectableBytes {
		return fmt.Errorf("file size %d exceeds limit %d", file.Size, maxSelectableBytes)
	}
	switch file.MIMEType {
	case "image/jpeg", "image/png", "image/webp", "image/heic":
	default:
		return fmt.Errorf("unsupported image type %q", file.MIMEType)
	}
	return nil
}
