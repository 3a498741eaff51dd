package module

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pim-core/internal/model"
	"github.com/sells-group/pim-core/pkg/ai"
)

// fakeClient returns canned completions for prompt module tests.
type fakeClient struct {
	resp *ai.CompletionResponse
	err  error

	lastReq ai.CompletionRequest
}

func (f *fakeClient) Complete(_ context.Context, req ai.CompletionRequest) (*ai.CompletionResponse, error) {
	f.lastReq = req
	return f.resp, f.err
}

func TestRegistry_UnknownKind(t *testing.T) {
	r := NewRegistry(nil, "test-model", 1024)

	_, err := r.Get(model.ModuleKind("webhook"))
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestRegistry_BuiltinKinds(t *testing.T) {
	r := NewRegistry(nil, "test-model", 1024)

	for _, kind := range []model.ModuleKind{model.ModuleSource, model.ModuleCalculation, model.ModuleAIPrompt} {
		m, err := r.Get(kind)
		require.NoError(t, err, "kind %s", kind)
		assert.NotNil(t, m)
	}
}

func TestSourceModule_SeedsDeclaredInputs(t *testing.T) {
	m := &sourceModule{}
	env := &Env{
		Settings: map[string]any{"attributes": []any{"color", "material"}},
		Inputs:   map[string]string{"color": "red", "material": "oak", "weight": "12"},
	}

	working, result, err := m.Apply(context.Background(), env, map[string]string{})
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, map[string]string{"color": "red", "material": "oak"}, working)
}

func TestSourceModule_StringSliceSettings(t *testing.T) {
	m := &sourceModule{}
	env := &Env{
		Settings: map[string]any{"attributes": []string{"color"}},
		Inputs:   map[string]string{"color": "red"},
	}

	working, _, err := m.Apply(context.Background(), env, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, "red", working["color"])
}

func TestSourceModule_MissingInputSeedsEmpty(t *testing.T) {
	m := &sourceModule{}
	env := &Env{
		Settings: map[string]any{"attributes": []any{"color"}},
		Inputs:   map[string]string{},
	}

	working, _, err := m.Apply(context.Background(), env, map[string]string{})
	require.NoError(t, err)
	v, ok := working["color"]
	assert.True(t, ok)
	assert.Empty(t, v)
}

func TestCalculationModule_Terminal(t *testing.T) {
	m := &calculationModule{}
	env := &Env{Settings: map[string]any{
		"template":   "{{width}}x{{height}} cm",
		"confidence": 0.9,
	}}

	_, result, err := m.Apply(context.Background(), env, map[string]string{"width": "30", "height": "40"})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "30x40 cm", result.Value)
	assert.Equal(t, 0.9, result.Confidence)
}

func TestCalculationModule_DefaultConfidence(t *testing.T) {
	m := &calculationModule{}
	env := &Env{Settings: map[string]any{"template": "{{color}}"}}

	_, result, err := m.Apply(context.Background(), env, map[string]string{"color": "red"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestCalculationModule_OutputKeyIsNonTerminal(t *testing.T) {
	m := &calculationModule{}
	env := &Env{Settings: map[string]any{
		"template":   "{{width}}x{{height}}",
		"output_key": "dimensions",
	}}

	working, result, err := m.Apply(context.Background(), env, map[string]string{"width": "30", "height": "40"})
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, "30x40", working["dimensions"])
}

func TestCalculationModule_MissingTemplate(t *testing.T) {
	m := &calculationModule{}
	env := &Env{Settings: map[string]any{}}

	_, _, err := m.Apply(context.Background(), env, map[string]string{})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestPromptModule_ParsesFencedJSON(t *testing.T) {
	client := &fakeClient{resp: &ai.CompletionResponse{
		Text:  "```json\n{\"value\": \"Mid-century\", \"confidence\": 0.85, \"justification\": \"matches the era\"}\n```",
		Usage: ai.TokenUsage{InputTokens: 120, OutputTokens: 30},
	}}
	m := &promptModule{client: client, model: "test-model", maxTokens: 1024}

	var in, out int64
	env := &Env{
		Settings:  map[string]any{"prompt": "Style for {{name}}?"},
		AddTokens: func(i, o int64) { in += i; out += o },
	}

	_, result, err := m.Apply(context.Background(), env, map[string]string{"name": "Ekenäset"})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "Mid-century", result.Value)
	assert.Equal(t, 0.85, result.Confidence)
	assert.Equal(t, "matches the era", result.Justification)
	assert.Equal(t, int64(120), in)
	assert.Equal(t, int64(30), out)
	assert.Equal(t, "Style for Ekenäset?", client.lastReq.Prompt)
}

func TestPromptModule_ModelOverride(t *testing.T) {
	client := &fakeClient{resp: &ai.CompletionResponse{Text: `{"value":"x","confidence":1}`}}
	m := &promptModule{client: client, model: "default-model", maxTokens: 1024}
	env := &Env{Settings: map[string]any{"prompt": "p", "model": "better-model"}}

	_, _, err := m.Apply(context.Background(), env, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, "better-model", client.lastReq.Model)
}

func TestPromptModule_ClientErrorPropagates(t *testing.T) {
	client := &fakeClient{err: errors.New("service unavailable")}
	m := &promptModule{client: client, model: "test-model", maxTokens: 1024}
	env := &Env{Settings: map[string]any{"prompt": "p"}}

	_, _, err := m.Apply(context.Background(), env, map[string]string{})
	require.Error(t, err)
}

func TestPromptModule_NoClient(t *testing.T) {
	m := &promptModule{}
	env := &Env{Settings: map[string]any{"prompt": "p"}}

	_, _, err := m.Apply(context.Background(), env, map[string]string{})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestPromptModule_ConfidenceOutOfRange(t *testing.T) {
	client := &fakeClient{resp: &ai.CompletionResponse{Text: `{"value":"x","confidence":1.7}`}}
	m := &promptModule{client: client, model: "test-model", maxTokens: 1024}
	env := &Env{Settings: map[string]any{"prompt": "p"}}

	_, _, err := m.Apply(context.Background(), env, map[string]string{})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"value": 1}`, `{"value": 1}`},
		{"json fence", "```json\n{\"value\": 1}\n```", `{"value": 1}`},
		{"bare fence", "```\n{\"value\": 1}\n```", `{"value": 1}`},
		{"surrounding prose", "Here you go:\n{\"value\": 1}\nHope that helps.", `{"value": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSON(tt.input))
		})
	}
}

func TestRenderTemplate_UnknownPlaceholderLeftIntact(t *testing.T) {
	got := renderTemplate("{{a}} and {{b}}", map[string]string{"a": "1"})
	assert.Equal(t, "1 and {{b}}", got)
}
