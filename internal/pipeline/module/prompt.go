package module

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pim-core/internal/model"
	"github.com/sells-group/pim-core/internal/resilience"
	"github.com/sells-group/pim-core/pkg/ai"
)

const promptSystem = `You derive a single attribute value from the provided product data.
Respond with a JSON object only: {"value": string, "confidence": number between 0 and 1, "justification": string}.`

// promptModule renders a prompt template against the working map and asks the
// model for a value. Settings:
//
//	prompt     string, required; {{attribute_id}} placeholders
//	system     string, optional; replaces the default system prompt
//	model      string, optional; overrides the configured default
type promptModule struct {
	client    ai.Client
	model     string
	maxTokens int64
}

// promptOutput is the JSON shape the model is instructed to return.
type promptOutput struct {
	Value         string  `json:"value"`
	Confidence    float64 `json:"confidence"`
	Justification string  `json:"justification"`
}

func (m *promptModule) Apply(ctx context.Context, env *Env, working map[string]string) (map[string]string, *Result, error) {
	if m.client == nil {
		return nil, nil, model.NewValidationError("ai_prompt module requires an Anthropic client")
	}
	tpl := settingString(env.Settings, "prompt", "")
	if tpl == "" {
		return nil, nil, model.NewValidationError("ai_prompt module requires a prompt setting")
	}

	req := ai.CompletionRequest{
		Model:     settingString(env.Settings, "model", m.model),
		MaxTokens: m.maxTokens,
		System:    settingString(env.Settings, "system", promptSystem),
		Prompt:    renderTemplate(tpl, working),
	}

	resp, err := resilience.DoVal(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) (*ai.CompletionResponse, error) {
		return m.client.Complete(ctx, req)
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "module: ai completion")
	}

	if env.AddTokens != nil {
		env.AddTokens(resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}

	var out promptOutput
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text)), &out); err != nil {
		return nil, nil, eris.Wrapf(err, "module: parse model output %q", resp.Text)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return nil, nil, model.NewValidationError("model confidence out of range: %v", out.Confidence)
	}

	return working, &Result{
		Value:         out.Value,
		Confidence:    out.Confidence,
		Justification: out.Justification,
	}, nil
}

// cleanJSON extracts a JSON object from text that may contain markdown code
// fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
