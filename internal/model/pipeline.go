package model

import "time"

// Action names a pipeline phase or the composed auto run.
type Action string

const (
	ActionSync     Action = "sync"
	ActionRules    Action = "rules"
	ActionClassify Action = "classify"
	ActionArchive  Action = "archive"
	ActionAuto     Action = "auto"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionSync, ActionRules, ActionClassify, ActionArchive, ActionAuto:
		return true
	}
	return false
}

// Status of an orchestrator.
type Status string

const (
	StatusIdle    Status = "Idle"
	StatusRunning Status = "Running"
	StatusFailed  Status = "Failed"
)

// DateLayout is the wire format of window bounds, e.g. 2024/03/01.
const DateLayout = "2006/01/02"

// DateWindow is the half-open range [After, Before).
type DateWindow struct {
	After  time.Time
	Before time.Time
}

// Contains reports whether t falls inside the window.
func (w DateWindow) Contains(t time.Time) bool {
	return !t.Before(w.After) && t.Before(w.Before)
}

// IsZero reports whether no bounds are set.
func (w DateWindow) IsZero() bool {
	return w.After.IsZero() && w.Before.IsZero()
}

func (w DateWindow) String() string {
	return w.After.Format(DateLayout) + " - " + w.Before.Format(DateLayout)
}

// RunInfo describes the current or last pipeline run.
type RunInfo struct {
	RunID      string     `json:"run_id,omitempty"`
	Status     Status     `json:"status"`
	Action     Action     `json:"action,omitempty"`
	After      string     `json:"after,omitempty"`
	Before     string     `json:"before,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}
