package model

import "time"

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusCancelled RunStatus = "cancelled"
)

// TriggeredBy records what initiated a run.
type TriggeredBy string

const (
	TriggeredBySchedule TriggeredBy = "schedule"
	TriggeredByUser     TriggeredBy = "user"
	TriggeredByManual   TriggeredBy = "manual"
)

// CancelledErrorSummary is the fixed error text stamped on cancelled runs.
const CancelledErrorSummary = "Pipeline run was cancelled by user"

// PipelineRun is the audit record of one execution sweep.
type PipelineRun struct {
	ID          string      `json:"id"`
	PipelineID  string      `json:"pipeline_id"`
	Status      RunStatus   `json:"status"`
	TriggeredBy TriggeredBy `json:"triggered_by"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`

	TokensIn  int64   `json:"tokens_in"`
	TokensOut int64   `json:"tokens_out"`
	CostUSD   float64 `json:"cost_usd"`

	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`

	Error string `json:"error,omitempty"`
}
