package module

import (
	"context"

	"github.com/sells-group/pim-core/internal/model"
)

// calculationModule produces a deterministic value by rendering a template
// against the working map. Settings:
//
//	template   string, required; {{attribute_id}} placeholders
//	confidence number, optional; default 1.0
//	output_key string, optional; when set the module is non-terminal and
//	           stores the rendered value under that key instead
type calculationModule struct{}

func (m *calculationModule) Apply(_ context.Context, env *Env, working map[string]string) (map[string]string, *Result, error) {
	tpl := settingString(env.Settings, "template", "")
	if tpl == "" {
		return nil, nil, model.NewValidationError("calculation module requires a template setting")
	}

	value := renderTemplate(tpl, working)

	if key := settingString(env.Settings, "output_key", ""); key != "" {
		out := make(map[string]string, len(working)+1)
		for k, v := range working {
			out[k] = v
		}
		out[key] = value
		return out, nil, nil
	}

	return working, &Result{
		Value:      value,
		Confidence: settingFloat(env.Settings, "confidence", 1.0),
	}, nil
}
