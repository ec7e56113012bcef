// Package session models one meal-capture attempt as an immutable value
// advanced by a pure transition function. A session is replaced wholesale on
// every applied event; callers never mutate it in place.
package session

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/proteinlens/proteinlens/internal/app/domain/nutrition"
)

// Phase is the discrete state of a capture session and the sole driver of
// which events apply.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseSelected  Phase = "selected"
	PhaseUploading Phase = "uploading"
	PhaseAnalyzing Phase = "analyzing"
	PhaseDone      Phase = "done"
	PhaseError     Phase = "error"
)

// InFlight reports whether active work owns the selected file. SELECT is
// ignored in these phases.
func (p Phase) InFlight() bool {
	return p == PhaseUploading || p == PhaseAnalyzing
}

// FilePayload is the user-selected image. Treated as immutable once built;
// session values share the pointer across replacements.
type FilePayload struct {
	Name     string
	MIMEType string
	Size     int64
	Data     []byte
	Checksum string
}

// NewFilePayload builds a payload with its size and SHA-256 checksum filled.
func NewFilePayload(name, mimeType string, data []byte) *FilePayload {
	sum := sha256.Sum256(data)
	return &FilePayload{
		Name:     name,
		MIMEType: mimeType,
		Size:     int64(len(data)),
		Data:     data,
		Checksum: hex.EncodeToString(sum[:]),
	}
}

// Session is the capture state. Exactly one payload group is meaningful per
// phase: the file from selected through analyzing, the remote ref from
// analyzing on, the result pair in done, the error message in error. Fields
// carry no timestamps so that replaying an event sequence reproduces an
// identical value.
type Session struct {
	ID             string
	UserID         string
	Phase          Phase
	File           *FilePayload
	Progress       int
	RemoteImageRef string
	ResultID       string
	Result         *nutrition.Analysis
	ErrorMessage   string
}

// New returns the pristine idle session.
func New(id, userID string) Session {
	return Session{ID: id, UserID: userID, Phase: PhaseIdle}
}

// Equal compares two sessions field by field. File and Result compare by
// pointer identity, which is sufficient because both are immutable once
// attached.
func (s Session) Equal(o Session) bool {
	return s.ID == o.ID &&
		s.UserID == o.UserID &&
		s.Phase == o.Phase &&
		s.File == o.File &&
		s.Progress == o.Progress &&
		s.RemoteImageRef == o.RemoteImageRef &&
		s.ResultID == o.ResultID &&
		s.Result == o.Result &&
		s.ErrorMessage == o.ErrorMessage
}
