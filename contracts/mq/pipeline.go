package mq

import "time"

// PipelineRequestedPayload asks the orchestrator to start a run.
type PipelineRequestedPayload struct {
	Action string `json:"action"`
	After  string `json:"after,omitempty"`
	Before string `json:"before,omitempty"`
	Year   string `json:"year,omitempty"`
	Month  string `json:"month,omitempty"`
}

type PipelineStartedPayload struct {
	RunID     string    `json:"run_id"`
	Action    string    `json:"action"`
	After     string    `json:"after,omitempty"`
	Before    string    `json:"before,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

type PipelineCompletedPayload struct {
	RunID      string    `json:"run_id"`
	Action     string    `json:"action"`
	DurationMs int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

type PipelineFailedPayload struct {
	RunID      string    `json:"run_id"`
	Action     string    `json:"action"`
	Phase      string    `json:"phase"`
	Error      string    `json:"error"`
	FinishedAt time.Time `json:"finished_at"`
}
