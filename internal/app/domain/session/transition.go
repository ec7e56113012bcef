package session

// Step computes the next session for one event. Pure and total: it performs
// no I/O, never returns an error, and answers every (phase, event) pair. An
// event that is not legal for the current phase leaves the session unchanged
// and reports applied=false, so stale or duplicate callbacks can never skip
// the session into a later phase.
func Step(s Session, ev Event) (next Session, applied bool) {
	switch ev.Kind {
	case EventSelect:
		// The file is locked while upload or analysis owns it.
		if s.Phase.InFlight() {
			return s, false
		}
		next = New(s.ID, s.UserID)
		next.Phase = PhaseSelected
		next.File = ev.File
		return next, true

	case EventUploadStart:
		if s.Phase != PhaseSelected {
			return s, false
		}
		s.Phase = PhaseUploading
		s.Progress = 0
		s.ErrorMessage = ""
		return s, true

	case EventUploadProgress:
		if s.Phase != PhaseUploading {
			return s, false
		}
		// Progress never moves backwards while uploading.
		p := ev.Progress
		if p < 0 {
			p = 0
		}
		if p > 100 {
			p = 100
		}
		if p < s.Progress {
			p = s.Progress
		}
		s.Progress = p
		return s, true

	case EventUploadComplete:
		if s.Phase != PhaseUploading {
			return s, false
		}
		s.Phase = PhaseAnalyzing
		s.RemoteImageRef = ev.Ref
		s.Progress = 100
		return s, true

	case EventAnalyzeStart:
		if s.Phase != PhaseAnalyzing {
			return s, false
		}
		return s, true

	case EventAnalyzeComplete:
		if s.Phase != PhaseAnalyzing {
			return s, false
		}
		s.Phase = PhaseDone
		s.ResultID = ev.ResultID
		s.Result = ev.Result
		// The session no longer owns the image bytes; the remote ref is the
		// durable pointer from here on.
		s.File = nil
		return s, true

	case EventError:
		s.Phase = PhaseError
		s.ErrorMessage = ev.Message
		return s, true

	case EventRetry:
		if s.Phase != PhaseError {
			return s, false
		}
		s.Phase = PhaseSelected
		s.ErrorMessage = ""
		s.Progress = 0
		s.RemoteImageRef = ""
		s.ResultID = ""
		s.Result = nil
		return s, true

	case EventReset:
		return New(s.ID, s.UserID), true
	}

	return s, false
}

// Next is Step without the applied flag, for callers that only want the
// resulting value.
func Next(s Session, ev Event) Session {
	next, _ := Step(s, ev)
	return next
}
