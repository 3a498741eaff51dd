package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pim-core/internal/cost"
	"github.com/sells-group/pim-core/internal/model"
	"github.com/sells-group/pim-core/internal/pipeline/module"
	"github.com/sells-group/pim-core/internal/store"
	"github.com/sells-group/pim-core/internal/versioned"
)

type engineFixture struct {
	repo   store.Store
	values *versioned.Store
	engine *Engine
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "pim.db"))
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(context.Background()))
	t.Cleanup(func() { _ = repo.Close() })

	values := versioned.New(repo, 0.8)
	registry := module.NewRegistry(nil, "test-model", 1024)
	engine := NewEngine(repo, values, registry, cost.NewCalculator(cost.DefaultPricing()), "test-model", 2)

	return &engineFixture{repo: repo, values: values, engine: engine}
}

func (f *engineFixture) addAttribute(t *testing.T, id string, review model.ReviewPolicy) {
	t.Helper()
	require.NoError(t, f.repo.UpsertAttribute(context.Background(), model.Attribute{
		ID:         id,
		Key:        id,
		EntityType: "product",
		DataType:   model.DataTypeText,
		Editable:   model.EditableYes,
		Review:     review,
	}))
}

func (f *engineFixture) addEntity(t *testing.T, externalKey string) string {
	t.Helper()
	ent, err := f.repo.CreateEntity(context.Background(), "product", externalKey)
	require.NoError(t, err)
	return ent.ID
}

func (f *engineFixture) setValue(t *testing.T, entityID, attrID, value string) {
	t.Helper()
	_, err := f.values.Upsert(context.Background(), entityID, attrID, value, versioned.Meta{})
	require.NoError(t, err)
}

func (f *engineFixture) savePipeline(t *testing.T, p *model.Pipeline) {
	t.Helper()
	require.NoError(t, f.repo.SavePipeline(context.Background(), p))
}

// colorPipeline derives attr_label from attr_color with a calculation module.
func colorPipeline() *model.Pipeline {
	return &model.Pipeline{
		ID:                "pl_label",
		Name:              "label",
		EntityType:        "product",
		OutputAttributeID: "attr_label",
		Version:           1,
		Modules: []model.PipelineModule{
			{
				ID:       "m_src",
				Kind:     model.ModuleSource,
				Order:    0,
				Settings: map[string]any{"attributes": []any{"attr_color"}},
			},
			{
				ID:       "m_calc",
				Kind:     model.ModuleCalculation,
				Order:    1,
				Settings: map[string]any{"template": "{{attr_color}} chair"},
			},
		},
	}
}

func TestExecuteForSingleEntity_ProcessesAndWrites(t *testing.T) {
	f := newEngineFixture(t)
	f.addAttribute(t, "attr_color", model.ReviewNo)
	f.addAttribute(t, "attr_label", model.ReviewNo)
	entityID := f.addEntity(t, "sku-1")
	f.setValue(t, entityID, "attr_color", "red")

	p := colorPipeline()
	f.savePipeline(t, p)

	run, stats, err := f.engine.ExecuteForSingleEntity(context.Background(), p, entityID, model.TriggeredByUser)
	require.NoError(t, err)
	assert.Equal(t, Stats{Processed: 1}, stats)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, model.TriggeredByUser, run.TriggeredBy)
	assert.NotNil(t, run.CompletedAt)
	assert.Equal(t, 1, run.Processed)

	v, err := f.repo.GetValue(context.Background(), entityID, "attr_label")
	require.NoError(t, err)
	require.NotNil(t, v)
	require.NotNil(t, v.Current)
	assert.Equal(t, "red chair", *v.Current)
	require.NotNil(t, v.Approved)
	assert.Equal(t, "red chair", *v.Approved)
	require.NotNil(t, v.PipelineVersion)
	assert.Equal(t, 1, *v.PipelineVersion)
	require.NotNil(t, v.InputHash)
	assert.NotEmpty(t, *v.InputHash)
}

func TestExecuteForSingleEntity_SkipsWhenUnchanged(t *testing.T) {
	f := newEngineFixture(t)
	f.addAttribute(t, "attr_color", model.ReviewNo)
	f.addAttribute(t, "attr_label", model.ReviewNo)
	entityID := f.addEntity(t, "sku-1")
	f.setValue(t, entityID, "attr_color", "red")

	p := colorPipeline()
	f.savePipeline(t, p)
	ctx := context.Background()

	_, first, err := f.engine.ExecuteForSingleEntity(ctx, p, entityID, model.TriggeredByManual)
	require.NoError(t, err)
	assert.Equal(t, Stats{Processed: 1}, first)

	_, second, err := f.engine.ExecuteForSingleEntity(ctx, p, entityID, model.TriggeredByManual)
	require.NoError(t, err)
	assert.Equal(t, Stats{Skipped: 1}, second)
}

func TestExecuteForSingleEntity_InputChangeForcesReprocess(t *testing.T) {
	f := newEngineFixture(t)
	f.addAttribute(t, "attr_color", model.ReviewNo)
	f.addAttribute(t, "attr_label", model.ReviewNo)
	entityID := f.addEntity(t, "sku-1")
	f.setValue(t, entityID, "attr_color", "red")

	p := colorPipeline()
	f.savePipeline(t, p)
	ctx := context.Background()

	_, _, err := f.engine.ExecuteForSingleEntity(ctx, p, entityID, model.TriggeredByManual)
	require.NoError(t, err)

	before, err := f.repo.GetValue(ctx, entityID, "attr_label")
	require.NoError(t, err)

	f.setValue(t, entityID, "attr_color", "blue")

	_, stats, err := f.engine.ExecuteForSingleEntity(ctx, p, entityID, model.TriggeredByManual)
	require.NoError(t, err)
	assert.Equal(t, Stats{Processed: 1}, stats)

	after, err := f.repo.GetValue(ctx, entityID, "attr_label")
	require.NoError(t, err)
	assert.Equal(t, "blue chair", *after.Current)
	assert.NotEqual(t, *before.InputHash, *after.InputHash)
}

func TestExecuteForSingleEntity_VersionBumpForcesReprocess(t *testing.T) {
	f := newEngineFixture(t)
	f.addAttribute(t, "attr_color", model.ReviewNo)
	f.addAttribute(t, "attr_label", model.ReviewNo)
	entityID := f.addEntity(t, "sku-1")
	f.setValue(t, entityID, "attr_color", "red")

	p := colorPipeline()
	f.savePipeline(t, p)
	ctx := context.Background()

	_, _, err := f.engine.ExecuteForSingleEntity(ctx, p, entityID, model.TriggeredByManual)
	require.NoError(t, err)

	p.BumpVersion()

	_, stats, err := f.engine.ExecuteForSingleEntity(ctx, p, entityID, model.TriggeredByManual)
	require.NoError(t, err)
	assert.Equal(t, Stats{Processed: 1}, stats)

	v, err := f.repo.GetValue(ctx, entityID, "attr_label")
	require.NoError(t, err)
	assert.Equal(t, 2, *v.PipelineVersion)
}

func TestExecuteBatch_SumsStats(t *testing.T) {
	f := newEngineFixture(t)
	f.addAttribute(t, "attr_color", model.ReviewNo)
	f.addAttribute(t, "attr_label", model.ReviewNo)

	var ids []string
	for _, key := range []string{"sku-1", "sku-2", "sku-3"} {
		id := f.addEntity(t, key)
		f.setValue(t, id, "attr_color", "red")
		ids = append(ids, id)
	}

	p := colorPipeline()
	f.savePipeline(t, p)

	run, stats, err := f.engine.ExecuteBatch(context.Background(), p, ids, model.TriggeredBySchedule)
	require.NoError(t, err)
	assert.Equal(t, Stats{Processed: 3}, stats)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, 3, run.Processed)
	assert.Equal(t, model.TriggeredBySchedule, run.TriggeredBy)
}

func TestExecuteBatch_FailureIsolation(t *testing.T) {
	f := newEngineFixture(t)
	f.addAttribute(t, "attr_color", model.ReviewNo)
	f.addAttribute(t, "attr_label", model.ReviewNo)
	entityID := f.addEntity(t, "sku-1")
	f.setValue(t, entityID, "attr_color", "red")

	// Broken calculation module: no template.
	p := colorPipeline()
	p.Modules[1].Settings = map[string]any{}
	f.savePipeline(t, p)

	run, stats, err := f.engine.ExecuteBatch(context.Background(), p, []string{entityID}, model.TriggeredByManual)
	require.NoError(t, err)
	assert.Equal(t, Stats{Failed: 1}, stats)
	assert.Equal(t, model.RunStatusPartial, run.Status)
	assert.Equal(t, 1, run.Failed)

	v, err := f.repo.GetValue(context.Background(), entityID, "attr_label")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestExecuteBatch_MixedOutcomes(t *testing.T) {
	f := newEngineFixture(t)
	f.addAttribute(t, "attr_color", model.ReviewNo)
	f.addAttribute(t, "attr_label", model.ReviewNo)

	ok := f.addEntity(t, "sku-ok")
	f.setValue(t, ok, "attr_color", "red")
	stale := f.addEntity(t, "sku-stale")
	f.setValue(t, stale, "attr_color", "green")

	p := colorPipeline()
	f.savePipeline(t, p)
	ctx := context.Background()

	// Prime the stale entity so its second pass skips.
	_, _, err := f.engine.ExecuteForSingleEntity(ctx, p, stale, model.TriggeredByManual)
	require.NoError(t, err)

	_, stats, err := f.engine.ExecuteBatch(ctx, p, []string{ok, stale}, model.TriggeredByManual)
	require.NoError(t, err)
	assert.Equal(t, Stats{Processed: 1, Skipped: 1}, stats)
}

func TestExecuteSweep_DependencyOrder(t *testing.T) {
	f := newEngineFixture(t)
	f.addAttribute(t, "attr_base", model.ReviewNo)
	f.addAttribute(t, "attr_x", model.ReviewNo)
	f.addAttribute(t, "attr_y", model.ReviewNo)

	entityID := f.addEntity(t, "sku-1")
	f.setValue(t, entityID, "attr_base", "oak")

	// a: base -> x; b: x -> y. The sweep must run a before b so b sees the
	// freshly computed x.
	a := &model.Pipeline{
		ID: "pl_a", Name: "a", EntityType: "product", OutputAttributeID: "attr_x", Version: 1,
		Modules: []model.PipelineModule{
			{ID: "a_src", Kind: model.ModuleSource, Order: 0, Settings: map[string]any{"attributes": []any{"attr_base"}}},
			{ID: "a_calc", Kind: model.ModuleCalculation, Order: 1, Settings: map[string]any{"template": "{{attr_base}} frame"}},
		},
	}
	b := &model.Pipeline{
		ID: "pl_b", Name: "b", EntityType: "product", OutputAttributeID: "attr_y", Version: 1,
		Modules: []model.PipelineModule{
			{ID: "b_src", Kind: model.ModuleSource, Order: 0, Settings: map[string]any{"attributes": []any{"attr_x"}}},
			{ID: "b_calc", Kind: model.ModuleCalculation, Order: 1, Settings: map[string]any{"template": "{{attr_x}}, lacquered"}},
		},
	}
	f.savePipeline(t, b)
	f.savePipeline(t, a)

	runs, stats, err := f.engine.ExecuteSweep(context.Background(), "product", model.TriggeredBySchedule)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, Stats{Processed: 2}, stats)

	y, err := f.repo.GetValue(context.Background(), entityID, "attr_y")
	require.NoError(t, err)
	require.NotNil(t, y)
	assert.Equal(t, "oak frame, lacquered", *y.Current)
}

func TestExecuteSweep_CycleAbortsBeforeAnyRun(t *testing.T) {
	f := newEngineFixture(t)
	f.addAttribute(t, "attr_x", model.ReviewNo)
	f.addAttribute(t, "attr_y", model.ReviewNo)

	a := testPipeline("a", "attr_x", []string{"attr_y"})
	b := testPipeline("b", "attr_y", []string{"attr_x"})
	f.savePipeline(t, a)
	f.savePipeline(t, b)

	runs, _, err := f.engine.ExecuteSweep(context.Background(), "product", model.TriggeredBySchedule)
	require.Error(t, err)
	assert.True(t, model.IsCircularDependency(err))
	assert.Empty(t, runs)

	stored, err := f.repo.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestCancel_StampsSummary(t *testing.T) {
	f := newEngineFixture(t)
	p := colorPipeline()
	f.savePipeline(t, p)

	run, err := f.repo.CreateRun(context.Background(), p.ID, model.TriggeredByUser)
	require.NoError(t, err)

	require.NoError(t, f.engine.Cancel(context.Background(), run.ID))

	got, err := f.repo.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCancelled, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, model.CancelledErrorSummary, got.Error)
}

func TestInputHash_Deterministic(t *testing.T) {
	ids := []string{"a", "b"}
	inputs := map[string]string{"a": "1", "b": "2"}

	h1 := inputHash(ids, inputs, 1)
	h2 := inputHash(ids, inputs, 1)
	assert.Equal(t, h1, h2)

	assert.NotEqual(t, h1, inputHash(ids, map[string]string{"a": "1", "b": "3"}, 1))
	assert.NotEqual(t, h1, inputHash(ids, inputs, 2))
}
