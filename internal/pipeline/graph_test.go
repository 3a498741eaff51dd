package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pim-core/internal/model"
)

func testPipeline(name, output string, inputs []string) *model.Pipeline {
	anyInputs := make([]any, len(inputs))
	for i, in := range inputs {
		anyInputs[i] = in
	}
	return &model.Pipeline{
		ID:                "pl_" + name,
		Name:              name,
		EntityType:        "product",
		OutputAttributeID: output,
		Version:           1,
		Modules: []model.PipelineModule{
			{
				ID:       "m_" + name + "_source",
				Kind:     model.ModuleSource,
				Order:    0,
				Settings: map[string]any{"attributes": anyInputs},
			},
			{
				ID:       "m_" + name + "_calc",
				Kind:     model.ModuleCalculation,
				Order:    1,
				Settings: map[string]any{"template": "computed"},
			},
		},
	}
}

func TestDependencies_UnionOfSourceModules(t *testing.T) {
	p := testPipeline("a", "out", []string{"x", "y"})
	p.Modules = append(p.Modules, model.PipelineModule{
		ID:       "m_a_source2",
		Kind:     model.ModuleSource,
		Order:    2,
		Settings: map[string]any{"attributes": []any{"y", "z"}},
	})

	deps := Dependencies(p)
	assert.Len(t, deps, 3)
	for _, id := range []string{"x", "y", "z"} {
		assert.Contains(t, deps, id)
	}
}

func TestExecutionOrder_ProducerBeforeConsumer(t *testing.T) {
	a := testPipeline("a", "x", []string{"base"})
	b := testPipeline("b", "y", []string{"x"})

	order, err := ExecutionOrder([]*model.Pipeline{b, a})
	require.NoError(t, err)
	require.Len(t, order, 2)
	assert.Equal(t, "a", order[0].Name)
	assert.Equal(t, "b", order[1].Name)
}

func TestExecutionOrder_Chain(t *testing.T) {
	a := testPipeline("a", "x", nil)
	b := testPipeline("b", "y", []string{"x"})
	c := testPipeline("c", "z", []string{"y", "x"})

	order, err := ExecutionOrder([]*model.Pipeline{c, a, b})
	require.NoError(t, err)

	pos := map[string]int{}
	for i, p := range order {
		pos[p.Name] = i
	}
	assert.Less(t, pos["a"], pos["b"])
	assert.Less(t, pos["b"], pos["c"])
}

func TestExecutionOrder_IndependentPipelinesAllPresent(t *testing.T) {
	pipelines := []*model.Pipeline{
		testPipeline("a", "x", nil),
		testPipeline("b", "y", nil),
		testPipeline("c", "z", nil),
	}

	order, err := ExecutionOrder(pipelines)
	require.NoError(t, err)
	assert.Len(t, order, 3)
}

func TestExecutionOrder_SelfLoop(t *testing.T) {
	p := testPipeline("loop", "x", []string{"x"})

	_, err := ExecutionOrder([]*model.Pipeline{p})
	require.Error(t, err)
	assert.True(t, model.IsCircularDependency(err))
	assert.Contains(t, err.Error(), "circular")
	assert.Contains(t, err.Error(), "loop")
}

func TestExecutionOrder_SelfLoopWithCompetingProducer(t *testing.T) {
	// alpha consumes its own output attribute; beta also claims x. The
	// competing producer must not mask alpha's self-loop.
	alpha := testPipeline("alpha", "x", []string{"x"})
	beta := testPipeline("beta", "x", []string{"base"})

	_, err := ExecutionOrder([]*model.Pipeline{alpha, beta})
	require.Error(t, err)
	assert.True(t, model.IsCircularDependency(err))
	assert.Contains(t, err.Error(), "alpha")
}

func TestExecutionOrder_MutualCycle(t *testing.T) {
	a := testPipeline("a", "x", []string{"y"})
	b := testPipeline("b", "y", []string{"x"})

	_, err := ExecutionOrder([]*model.Pipeline{a, b})
	require.Error(t, err)
	assert.True(t, model.IsCircularDependency(err))
}

func TestExecutionOrder_NonPipelineInputsIgnored(t *testing.T) {
	a := testPipeline("a", "x", []string{"manual_attr", "imported_attr"})

	order, err := ExecutionOrder([]*model.Pipeline{a})
	require.NoError(t, err)
	assert.Len(t, order, 1)
}

func TestValidate_SelfReferenceWithoutOtherPipelines(t *testing.T) {
	p := testPipeline("loop", "x", []string{"x"})

	problems := Validate(p, nil)
	require.NotEmpty(t, problems)

	found := false
	for _, msg := range problems {
		if strings.Contains(msg, "circular") {
			found = true
		}
	}
	assert.True(t, found, "expected a problem mentioning circular, got %v", problems)
}

func TestValidate_CycleAgainstExistingGraph(t *testing.T) {
	a := testPipeline("a", "x", []string{"y"})
	b := testPipeline("b", "y", []string{"x"})

	problems := Validate(b, []*model.Pipeline{a})
	require.NotEmpty(t, problems)
	assert.Contains(t, strings.Join(problems, "; "), "circular")
}

func TestValidate_DuplicateOutputAttribute(t *testing.T) {
	a := testPipeline("a", "x", nil)
	b := testPipeline("b", "x", nil)

	problems := Validate(b, []*model.Pipeline{a})
	require.NotEmpty(t, problems)
	assert.Contains(t, strings.Join(problems, "; "), "already produced")
}

func TestValidate_ValidPipeline(t *testing.T) {
	a := testPipeline("a", "x", nil)
	b := testPipeline("b", "y", []string{"x"})

	assert.Empty(t, Validate(b, []*model.Pipeline{a}))
}

func TestValidate_ReplacingExistingDefinition(t *testing.T) {
	a := testPipeline("a", "x", nil)
	updated := testPipeline("a", "x", []string{"base"})
	updated.ID = a.ID

	assert.Empty(t, Validate(updated, []*model.Pipeline{a}))
}
