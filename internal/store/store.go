package store

import (
	"context"

	"github.com/sells-group/pim-core/internal/model"
)

// RunFilter specifies criteria for listing pipeline runs.
type RunFilter struct {
	Status     model.RunStatus `json:"status,omitempty"`
	PipelineID string          `json:"pipeline_id,omitempty"`
	Limit      int             `json:"limit,omitempty"`
	Offset     int             `json:"offset,omitempty"`
}

// RunTotals carries the final counters recorded when a run closes.
type RunTotals struct {
	Processed int     `json:"processed"`
	Skipped   int     `json:"skipped"`
	Failed    int     `json:"failed"`
	CostUSD   float64 `json:"cost_usd"`
}

// MutateFn modifies a versioned value record in place. It runs inside the
// backend's per-pair critical section.
type MutateFn func(v *model.VersionedValue) error

// Store defines the persistence interface for the attribute platform.
type Store interface {
	// Entities
	CreateEntity(ctx context.Context, entityType, externalKey string) (*model.Entity, error)
	GetEntity(ctx context.Context, id string) (*model.Entity, error)
	GetEntityByExternalKey(ctx context.Context, entityType, externalKey string) (*model.Entity, error)
	ListEntities(ctx context.Context, entityType string) ([]model.Entity, error)
	ImportEntities(ctx context.Context, entities []model.Entity) (int64, error)

	// Attribute catalog
	UpsertAttribute(ctx context.Context, attr model.Attribute) error
	GetAttribute(ctx context.Context, id string) (*model.Attribute, error)
	ListAttributes(ctx context.Context, entityType string) ([]model.Attribute, error)

	// Versioned values. GetValue returns (nil, nil) when no record exists.
	// MutateValue serializes the read-modify-write for one (entity, attribute)
	// pair; with create=false a missing record yields NotFoundError, with
	// create=true fn receives a fresh blank record.
	GetValue(ctx context.Context, entityID, attributeID string) (*model.VersionedValue, error)
	MutateValue(ctx context.Context, entityID, attributeID string, create bool, fn MutateFn) (*model.VersionedValue, error)
	ListValues(ctx context.Context, entityType string) ([]model.VersionedValue, error)

	// Pipelines
	SavePipeline(ctx context.Context, p *model.Pipeline) error
	GetPipeline(ctx context.Context, id string) (*model.Pipeline, error)
	GetPipelineByName(ctx context.Context, name string) (*model.Pipeline, error)
	ListPipelines(ctx context.Context, entityType string) ([]*model.Pipeline, error)

	// Runs
	CreateRun(ctx context.Context, pipelineID string, trigger model.TriggeredBy) (*model.PipelineRun, error)
	AddRunTokens(ctx context.Context, runID string, tokensIn, tokensOut int64) error
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, totals RunTotals) error
	FailRun(ctx context.Context, runID, errMsg string) error
	CancelRun(ctx context.Context, runID string) error
	GetRun(ctx context.Context, runID string) (*model.PipelineRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error)

	// Evals
	SaveEval(ctx context.Context, eval model.PipelineEval) error
	ListEvals(ctx context.Context, pipelineID string) ([]model.PipelineEval, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
