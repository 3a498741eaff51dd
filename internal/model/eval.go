package model

import "time"

// PipelineEval is a stored (entity, desired output) pair used to
// regression-test a pipeline against a known-good expectation. Evals are
// golden fixtures, not part of the runtime hot path.
type PipelineEval struct {
	ID         string    `json:"id"`
	PipelineID string    `json:"pipeline_id"`
	EntityID   string    `json:"entity_id"`
	Expected   string    `json:"expected"`
	CreatedAt  time.Time `json:"created_at"`
}
