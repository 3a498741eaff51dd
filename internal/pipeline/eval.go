package pipeline

import (
	"context"

	"github.com/sells-group/pim-core/internal/model"
)

// EvalOutcome is the result of replaying one stored eval fixture.
type EvalOutcome struct {
	EvalID   string `json:"eval_id"`
	EntityID string `json:"entity_id"`
	Expected string `json:"expected"`
	Got      string `json:"got"`
	Passed   bool   `json:"passed"`
	Error    string `json:"error,omitempty"`
}

// RunEvals replays the pipeline's module chain against each eval entity and
// compares the produced value with the stored expectation. Nothing is written
// to the value store and no run record is opened.
func (e *Engine) RunEvals(ctx context.Context, p *model.Pipeline, evals []model.PipelineEval) ([]EvalOutcome, error) {
	outcomes := make([]EvalOutcome, 0, len(evals))
	for _, ev := range evals {
		outcome := EvalOutcome{EvalID: ev.ID, EntityID: ev.EntityID, Expected: ev.Expected}

		_, inputs, err := e.resolveInputs(ctx, p, ev.EntityID)
		if err != nil {
			outcome.Error = err.Error()
			outcomes = append(outcomes, outcome)
			continue
		}

		result, err := e.runChain(ctx, p, inputs, nil)
		if err != nil {
			outcome.Error = err.Error()
			outcomes = append(outcomes, outcome)
			continue
		}

		outcome.Got = result.Value
		outcome.Passed = result.Value == ev.Expected
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}
