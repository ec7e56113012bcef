package session

import "github.com/proteinlens/proteinlens/internal/app/domain/nutrition"

// EventKind tags a capture event.
type EventKind string

const (
	EventSelect          EventKind = "SELECT"
	EventUploadStart     EventKind = "UPLOAD_START"
	EventUploadProgress  EventKind = "UPLOAD_PROGRESS"
	EventUploadComplete  EventKind = "UPLOAD_COMPLETE"
	EventAnalyzeStart    EventKind = "ANALYZE_START"
	EventAnalyzeComplete EventKind = "ANALYZE_COMPLETE"
	EventError           EventKind = "ERROR"
	EventRetry           EventKind = "RETRY"
	EventReset           EventKind = "RESET"
)

// Terminal reports whether the event is the closing callback of a
// collaborator attempt. A dropped terminal event means a collaborator broke
// its one-terminal-callback contract and is worth surfacing.
func (k EventKind) Terminal() bool {
	return k == EventUploadComplete || k == EventAnalyzeComplete
}

// Event is the tagged union fed to the transition function. Only the fields
// matching the kind are read; constructors below keep callers honest.
type Event struct {
	Kind     EventKind
	File     *FilePayload
	Progress int
	Ref      string
	ResultID string
	Result   *nutrition.Analysis
	Message  string
}

// Select carries a newly chosen image payload.
func Select(file *FilePayload) Event {
	return Event{Kind: EventSelect, File: file}
}

// UploadStart begins transfer of the selected file.
func UploadStart() Event {
	return Event{Kind: EventUploadStart}
}

// UploadProgress reports transfer completion in percent.
func UploadProgress(percent int) Event {
	return Event{Kind: EventUploadProgress, Progress: percent}
}

// UploadComplete carries the remote reference of the stored image.
func UploadComplete(ref string) Event {
	return Event{Kind: EventUploadComplete, Ref: ref}
}

// AnalyzeStart marks the hand-off to the vision provider.
func AnalyzeStart() Event {
	return Event{Kind: EventAnalyzeStart}
}

// AnalyzeComplete carries the stored analysis record and its breakdown.
func AnalyzeComplete(resultID string, result *nutrition.Analysis) Event {
	return Event{Kind: EventAnalyzeComplete, ResultID: resultID, Result: result}
}

// Fail reports any collaborator failure. Accepted from every phase.
func Fail(message string) Event {
	return Event{Kind: EventError, Message: message}
}

// Retry returns an errored session to selected, keeping its file.
func Retry() Event {
	return Event{Kind: EventRetry}
}

// Reset discards the session back to pristine idle.
func Reset() Event {
	return Event{Kind: EventReset}
}
