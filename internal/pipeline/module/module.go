// Package module implements the pipeline module kinds and the registry the
// execution engine dispatches through.
package module

import (
	"context"
	"sort"
	"strings"

	"github.com/sells-group/pim-core/internal/model"
	"github.com/sells-group/pim-core/pkg/ai"
)

// Result is the terminal output of a module chain.
type Result struct {
	Value         string
	Confidence    float64
	Justification string
}

// Env carries per-invocation context shared with every module in a chain.
type Env struct {
	// Settings is the payload of the module being applied.
	Settings map[string]any

	// Inputs holds the resolved current values of the pipeline's declared
	// input attributes, keyed by attribute id.
	Inputs map[string]string

	// AddTokens meters external token usage onto the surrounding run. Nil
	// when the caller does not track tokens.
	AddTokens func(in, out int64)
}

// Module is one step in a pipeline's transform chain. A non-terminal module
// returns an augmented working map and a nil result; a terminal module
// returns a non-nil result.
type Module interface {
	Apply(ctx context.Context, env *Env, working map[string]string) (map[string]string, *Result, error)
}

// Registry maps module kinds to their implementations.
type Registry struct {
	modules map[model.ModuleKind]Module
}

// NewRegistry builds a registry with the built-in module kinds. client may be
// nil when no ai_prompt module will run (eval dry runs, tests).
func NewRegistry(client ai.Client, defaultModel string, maxTokens int64) *Registry {
	return &Registry{
		modules: map[model.ModuleKind]Module{
			model.ModuleSource:      &sourceModule{},
			model.ModuleCalculation: &calculationModule{},
			model.ModuleAIPrompt:    &promptModule{client: client, model: defaultModel, maxTokens: maxTokens},
		},
	}
}

// Get returns the implementation for a module kind, or a ValidationError for
// an unknown kind.
func (r *Registry) Get(kind model.ModuleKind) (Module, error) {
	m, ok := r.modules[kind]
	if !ok {
		return nil, model.NewValidationError("unknown module kind: %s", kind)
	}
	return m, nil
}

// renderTemplate substitutes {{key}} placeholders with values from the
// working map. Unknown placeholders are left intact.
func renderTemplate(tpl string, working map[string]string) string {
	if len(working) == 0 {
		return tpl
	}
	keys := make([]string, 0, len(working))
	for k := range working {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", working[k])
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}

// settingString reads a string setting, returning fallback when absent or of
// the wrong type.
func settingString(settings map[string]any, key, fallback string) string {
	if v, ok := settings[key].(string); ok {
		return v
	}
	return fallback
}

// settingFloat reads a numeric setting, accepting float64 and int (YAML and
// JSON decode numbers differently).
func settingFloat(settings map[string]any, key string, fallback float64) float64 {
	switch v := settings[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}
