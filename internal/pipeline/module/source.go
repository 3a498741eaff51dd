package module

import (
	"context"
)

// sourceModule seeds the working map with the declared input attributes from
// the resolved current values. Attributes with no value seed an empty string
// so downstream templates render predictably.
type sourceModule struct{}

func (m *sourceModule) Apply(_ context.Context, env *Env, working map[string]string) (map[string]string, *Result, error) {
	out := make(map[string]string, len(working))
	for k, v := range working {
		out[k] = v
	}

	attrs, _ := env.Settings["attributes"].([]any)
	for _, raw := range attrs {
		id, ok := raw.(string)
		if !ok {
			continue
		}
		out[id] = env.Inputs[id]
	}
	// In-process callers pass []string instead of decoded []any.
	if ids, ok := env.Settings["attributes"].([]string); ok {
		for _, id := range ids {
			out[id] = env.Inputs[id]
		}
	}

	return out, nil, nil
}
