package pipeline

import (
	"errors"
	"fmt"

	"mail-archivist/internal/model"
)

var (
	// ErrShutdown is returned by Start once Shutdown has been called.
	ErrShutdown = errors.New("pipeline is shutting down")
	// ErrNoProposer is returned by the rules phase when no AI proposer is wired.
	ErrNoProposer = errors.New("no rule proposer configured")
)

// AlreadyRunningError rejects a Start while another run is in flight.
type AlreadyRunningError struct {
	Current model.RunInfo
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("pipeline already running: %s (run %s)", e.Current.Action, e.Current.RunID)
}

// ValidationError reports a malformed Start request.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// PhaseError names the sub-phase that failed a run.
type PhaseError struct {
	Phase model.Action
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }
