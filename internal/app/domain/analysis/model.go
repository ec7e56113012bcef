package analysis

import (
	"time"

	"github.com/proteinlens/proteinlens/internal/app/domain/nutrition"
)

// Status tracks one analysis attempt through the worker.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is the persisted outcome of running the vision provider over one
// uploaded image. Result is set only when Status is completed, ErrorMessage
// only when failed.
type Record struct {
	ID           string
	UserID       string
	SessionID    string
	ImageRef     string
	Status       Status
	Result       *nutrition.Analysis
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
