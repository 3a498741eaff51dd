package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/pim-core/internal/cost"
	"github.com/sells-group/pim-core/internal/model"
	"github.com/sells-group/pim-core/internal/pipeline/module"
	"github.com/sells-group/pim-core/internal/store"
	"github.com/sells-group/pim-core/internal/versioned"
)

// Stats aggregates entity outcomes for one engine invocation.
type Stats struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Add merges other into s.
func (s *Stats) Add(other Stats) {
	s.Processed += other.Processed
	s.Skipped += other.Skipped
	s.Failed += other.Failed
}

// Engine runs pipeline module chains against entities and writes results
// through the versioned value store.
type Engine struct {
	repo        store.Store
	values      *versioned.Store
	registry    *module.Registry
	calc        *cost.Calculator
	model       string
	concurrency int
	log         *zap.Logger
}

// NewEngine creates an execution engine. model is used to price metered
// tokens; concurrency bounds batch workers and is clamped to at least 1.
func NewEngine(repo store.Store, values *versioned.Store, registry *module.Registry, calc *cost.Calculator, model string, concurrency int) *Engine {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{
		repo:        repo,
		values:      values,
		registry:    registry,
		calc:        calc,
		model:       model,
		concurrency: concurrency,
		log:         zap.L().With(zap.String("component", "pipeline.engine")),
	}
}

// tokenMeter accumulates metered token usage for one run and mirrors it onto
// the persisted run record.
type tokenMeter struct {
	engine *Engine
	runID  string
	in     atomic.Int64
	out    atomic.Int64
}

func (m *tokenMeter) add(ctx context.Context) func(in, out int64) {
	return func(in, out int64) {
		m.in.Add(in)
		m.out.Add(out)
		if err := m.engine.repo.AddRunTokens(ctx, m.runID, in, out); err != nil {
			m.engine.log.Warn("record run tokens", zap.String("run", m.runID), zap.Error(err))
		}
	}
}

// ExecuteForSingleEntity runs the pipeline for one entity under a fresh run
// record and returns the closed run with its stats.
func (e *Engine) ExecuteForSingleEntity(ctx context.Context, p *model.Pipeline, entityID string, trigger model.TriggeredBy) (*model.PipelineRun, Stats, error) {
	return e.ExecuteBatch(ctx, p, []string{entityID}, trigger)
}

// ExecuteBatch runs the pipeline for each entity, isolating failures per
// entity: the batch always completes and the run closes as completed or
// partial. Entities are processed by a bounded worker pool. A concurrent
// Cancel stops scheduling further entities; the run keeps its cancelled
// status.
func (e *Engine) ExecuteBatch(ctx context.Context, p *model.Pipeline, entityIDs []string, trigger model.TriggeredBy) (*model.PipelineRun, Stats, error) {
	run, err := e.repo.CreateRun(ctx, p.ID, trigger)
	if err != nil {
		return nil, Stats{}, eris.Wrap(err, "pipeline: create run")
	}

	meter := &tokenMeter{engine: e, runID: run.ID}
	stats, cancelled := e.processBatch(ctx, run.ID, p, entityIDs, meter)

	if cancelled {
		// CancelRun already stamped the terminal status and summary.
		final, gerr := e.repo.GetRun(ctx, run.ID)
		if gerr != nil {
			return run, stats, gerr
		}
		return final, stats, nil
	}

	if cerr := ctx.Err(); cerr != nil {
		// Interrupted mid-batch. Close the run as failed so it does not
		// read as a clean completion.
		if ferr := e.repo.FailRun(context.WithoutCancel(ctx), run.ID, cerr.Error()); ferr != nil {
			e.log.Warn("mark run failed", zap.String("run", run.ID), zap.Error(ferr))
		}
		return run, stats, eris.Wrap(cerr, "pipeline: batch interrupted")
	}

	status := model.RunStatusCompleted
	if stats.Failed > 0 {
		status = model.RunStatusPartial
	}
	totals := store.RunTotals{
		Processed: stats.Processed,
		Skipped:   stats.Skipped,
		Failed:    stats.Failed,
		CostUSD:   e.calc.Claude(e.model, meter.in.Load(), meter.out.Load()),
	}
	if err := e.repo.CompleteRun(ctx, run.ID, status, totals); err != nil {
		return run, stats, eris.Wrap(err, "pipeline: complete run")
	}

	final, err := e.repo.GetRun(ctx, run.ID)
	if err != nil {
		return run, stats, err
	}
	e.log.Info("batch finished",
		zap.String("pipeline", p.Name),
		zap.String("run", run.ID),
		zap.Int("processed", stats.Processed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return final, stats, nil
}

func (e *Engine) processBatch(ctx context.Context, runID string, p *model.Pipeline, entityIDs []string, meter *tokenMeter) (Stats, bool) {
	var processed, skipped, failed atomic.Int64
	var cancelled atomic.Bool

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for _, entityID := range entityIDs {
		if cancelled.Load() {
			break
		}
		g.Go(func() error {
			if cancelled.Load() {
				return nil
			}
			if e.runCancelled(gctx, runID) {
				cancelled.Store(true)
				return nil
			}

			switch e.processEntity(gctx, p, entityID, meter.add(gctx)) {
			case outcomeProcessed:
				processed.Add(1)
			case outcomeSkipped:
				skipped.Add(1)
			case outcomeFailed:
				failed.Add(1)
			}
			return nil // individual failures never abort the batch
		})
	}
	_ = g.Wait()

	return Stats{
		Processed: int(processed.Load()),
		Skipped:   int(skipped.Load()),
		Failed:    int(failed.Load()),
	}, cancelled.Load()
}

func (e *Engine) runCancelled(ctx context.Context, runID string) bool {
	run, err := e.repo.GetRun(ctx, runID)
	if err != nil {
		return false
	}
	return run.Status == model.RunStatusCancelled
}

type entityOutcome int

const (
	outcomeProcessed entityOutcome = iota
	outcomeSkipped
	outcomeFailed
)

// processEntity resolves inputs, applies the change-detection short circuit,
// runs the module chain, and writes the result. All failures are caught and
// reported as an outcome, never raised.
func (e *Engine) processEntity(ctx context.Context, p *model.Pipeline, entityID string, addTokens func(in, out int64)) entityOutcome {
	inputIDs, inputs, err := e.resolveInputs(ctx, p, entityID)
	if err != nil {
		e.log.Warn("resolve inputs",
			zap.String("pipeline", p.Name),
			zap.String("entity", entityID),
			zap.Error(err),
		)
		return outcomeFailed
	}

	hash := inputHash(inputIDs, inputs, p.Version)

	existing, err := e.repo.GetValue(ctx, entityID, p.OutputAttributeID)
	if err != nil {
		e.log.Warn("read output record", zap.String("entity", entityID), zap.Error(err))
		return outcomeFailed
	}
	if existing != nil &&
		existing.InputHash != nil && *existing.InputHash == hash &&
		existing.PipelineVersion != nil && *existing.PipelineVersion == p.Version {
		return outcomeSkipped
	}

	result, err := e.runChain(ctx, p, inputs, addTokens)
	if err != nil {
		e.log.Warn("module chain failed",
			zap.String("pipeline", p.Name),
			zap.String("entity", entityID),
			zap.Error(err),
		)
		return outcomeFailed
	}

	meta := versioned.Meta{
		Confidence:      &result.Confidence,
		PipelineVersion: &p.Version,
		InputHash:       &hash,
	}
	if result.Justification != "" {
		meta.Justification = &result.Justification
	}
	if _, err := e.values.Upsert(ctx, entityID, p.OutputAttributeID, result.Value, meta); err != nil {
		e.log.Warn("write output",
			zap.String("pipeline", p.Name),
			zap.String("entity", entityID),
			zap.Error(err),
		)
		return outcomeFailed
	}
	return outcomeProcessed
}

// resolveInputs reads the effective value of every declared input attribute
// for the entity. Attributes never written resolve to empty strings.
func (e *Engine) resolveInputs(ctx context.Context, p *model.Pipeline, entityID string) ([]string, map[string]string, error) {
	deps := Dependencies(p)
	ids := make([]string, 0, len(deps))
	for id := range deps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	inputs := make(map[string]string, len(ids))
	for _, id := range ids {
		v, err := e.repo.GetValue(ctx, entityID, id)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "pipeline: resolve input %s", id)
		}
		if v == nil {
			inputs[id] = ""
			continue
		}
		display, _ := v.Display()
		inputs[id] = display
	}
	return ids, inputs, nil
}

// runChain applies the ordered module chain and returns the terminal result.
func (e *Engine) runChain(ctx context.Context, p *model.Pipeline, inputs map[string]string, addTokens func(in, out int64)) (*module.Result, error) {
	working := make(map[string]string)
	for _, m := range p.OrderedModules() {
		impl, err := e.registry.Get(m.Kind)
		if err != nil {
			return nil, &model.ModuleExecutionError{Kind: m.Kind, ModuleID: m.ID, Err: err}
		}
		env := &module.Env{
			Settings:  m.Settings,
			Inputs:    inputs,
			AddTokens: addTokens,
		}
		next, result, err := impl.Apply(ctx, env, working)
		if err != nil {
			return nil, &model.ModuleExecutionError{Kind: m.Kind, ModuleID: m.ID, Err: err}
		}
		if result != nil {
			return result, nil
		}
		working = next
	}
	return nil, model.NewValidationError("pipeline %q: module chain produced no result", p.Name)
}

// ExecuteSweep runs every pipeline of the entity type in dependency order
// against all entities of that type. A cycle aborts the sweep before any run
// starts. Pipelines execute strictly in sequence; entities within each
// pipeline run in parallel.
func (e *Engine) ExecuteSweep(ctx context.Context, entityType string, trigger model.TriggeredBy) ([]*model.PipelineRun, Stats, error) {
	pipelines, err := e.repo.ListPipelines(ctx, entityType)
	if err != nil {
		return nil, Stats{}, eris.Wrap(err, "pipeline: list pipelines")
	}
	order, err := ExecutionOrder(pipelines)
	if err != nil {
		return nil, Stats{}, err
	}

	entities, err := e.repo.ListEntities(ctx, entityType)
	if err != nil {
		return nil, Stats{}, eris.Wrap(err, "pipeline: list entities")
	}
	ids := make([]string, len(entities))
	for i, ent := range entities {
		ids[i] = ent.ID
	}

	var runs []*model.PipelineRun
	var total Stats
	for _, p := range order {
		run, stats, err := e.ExecuteBatch(ctx, p, ids, trigger)
		if err != nil {
			return runs, total, err
		}
		runs = append(runs, run)
		total.Add(stats)
	}
	return runs, total, nil
}

// Cancel marks a running run cancelled. Already-started entity writes
// complete normally; no further entities are scheduled.
func (e *Engine) Cancel(ctx context.Context, runID string) error {
	return e.repo.CancelRun(ctx, runID)
}

// inputHash fingerprints the resolved input values and the pipeline version.
// Any input change or version bump changes the hash and forces reprocessing.
func inputHash(ids []string, inputs map[string]string, version int) string {
	h := sha256.New()
	for _, id := range ids {
		fmt.Fprintf(h, "%s=%s\n", id, inputs[id])
	}
	fmt.Fprintf(h, "version=%d", version)
	return hex.EncodeToString(h.Sum(nil))
}
