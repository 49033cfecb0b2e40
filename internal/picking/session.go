package picking

import "time"

// State is the preparation timer state of an order
type State int

const (
	NotStarted State = iota
	Started
	Finished
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Started:
		return "started"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// FinishPolicy decides what finishing a preparation requires
type FinishPolicy int

const (
	// FinishWhenStarted only needs a started preparation with at least one line
	FinishWhenStarted FinishPolicy = iota
	// FinishWhenComplete additionally needs every line fully scanned
	FinishWhenComplete
)

// Session mirrors the backend preparation state of the open order.
// It is not safe for concurrent use; Controller serializes access.
type Session struct {
	state            State
	preparerAssigned bool
	startedAt        *time.Time
	finishedAt       *time.Time
}

// ApplyHeader replaces the cached state with the one reported by the backend
func (s *Session) ApplyHeader(h *Header) {
	if h == nil {
		return
	}
	s.preparerAssigned = h.PreparerAssigned
	s.startedAt = h.StartedAt
	s.finishedAt = h.FinishedAt

	switch {
	case h.Finished():
		s.state = Finished
	case h.Started():
		s.state = Started
	default:
		s.state = NotStarted
	}
}

// State returns the current state
func (s *Session) State() State { return s.state }

// PreparerAssigned reports whether a preparer is assigned to the order
func (s *Session) PreparerAssigned() bool { return s.preparerAssigned }

// StartedAt returns the recorded start, if any
func (s *Session) StartedAt() *time.Time { return s.startedAt }

// FinishedAt returns the recorded finish, if any
func (s *Session) FinishedAt() *time.Time { return s.finishedAt }

// CanStart reports whether a start may be requested
func (s *Session) CanStart() bool {
	return s.preparerAssigned && s.state == NotStarted
}

// CanFinish reports whether a finish may be requested for an order with lineCount lines
func (s *Session) CanFinish(lineCount int) bool {
	return s.state == Started && lineCount > 0
}

// AcceptsScans reports whether scans are allowed
func (s *Session) AcceptsScans() bool {
	return s.state == Started
}

// Start records a successful start
func (s *Session) Start(at time.Time) {
	s.state = Started
	if s.startedAt == nil {
		s.startedAt = &at
	}
	s.finishedAt = nil
}

// Finish records a successful finish
func (s *Session) Finish(at time.Time) {
	s.state = Finished
	s.finishedAt = &at
}
