// Package pipeline implements the dependency-ordered execution of attribute
// computation pipelines: graph resolution, the module-chain engine, run
// bookkeeping, and eval regression checks.
package pipeline

import (
	"fmt"
	"sort"

	"github.com/sells-group/pim-core/internal/model"
)

// Dependencies returns the union of attribute ids declared as inputs by all
// source modules of the pipeline.
func Dependencies(p *model.Pipeline) map[string]struct{} {
	deps := make(map[string]struct{})
	for i := range p.Modules {
		for _, id := range p.Modules[i].InputAttributes() {
			deps[id] = struct{}{}
		}
	}
	return deps
}

// ExecutionOrder returns a topological ordering of the pipelines such that
// every pipeline runs after all pipelines whose output attribute it declares
// as input. Returns CircularDependencyError when the graph has a cycle,
// including the one-pipeline self-loop.
func ExecutionOrder(pipelines []*model.Pipeline) ([]*model.Pipeline, error) {
	// An attribute may be claimed by more than one pipeline (an invalid but
	// representable graph); every producer contributes an edge so a self-loop
	// is never masked by a competing producer.
	byOutput := make(map[string][]*model.Pipeline, len(pipelines))
	for _, p := range pipelines {
		byOutput[p.OutputAttributeID] = append(byOutput[p.OutputAttributeID], p)
	}

	// Kahn's algorithm. Edges run producer -> consumer.
	indegree := make(map[string]int, len(pipelines))
	consumers := make(map[string][]*model.Pipeline, len(pipelines))
	byID := make(map[string]*model.Pipeline, len(pipelines))
	for _, p := range pipelines {
		byID[p.ID] = p
		indegree[p.ID] += 0
		for dep := range Dependencies(p) {
			for _, producer := range byOutput[dep] {
				indegree[p.ID]++
				consumers[producer.ID] = append(consumers[producer.ID], p)
			}
		}
	}

	queue := make([]*model.Pipeline, 0, len(pipelines))
	for _, p := range pipelines {
		if indegree[p.ID] == 0 {
			queue = append(queue, p)
		}
	}
	sort.Slice(queue, func(i, j int) bool { return queue[i].Name < queue[j].Name })

	order := make([]*model.Pipeline, 0, len(pipelines))
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		order = append(order, p)
		for _, c := range consumers[p.ID] {
			indegree[c.ID]--
			if indegree[c.ID] == 0 {
				queue = append(queue, c)
			}
		}
	}

	if len(order) < len(pipelines) {
		var stuck []string
		for id, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, byID[id].Name)
			}
		}
		sort.Strings(stuck)
		return nil, &model.CircularDependencyError{Pipelines: stuck}
	}
	return order, nil
}

// Validate reports human-readable problems that adding p to the existing
// graph would introduce. An empty result means the pipeline is valid.
// Self-reference is detected even when no other pipeline exists.
func Validate(p *model.Pipeline, existing []*model.Pipeline) []string {
	var problems []string

	if p.OutputAttributeID == "" {
		problems = append(problems, "pipeline has no output attribute")
	}

	deps := Dependencies(p)
	if _, ok := deps[p.OutputAttributeID]; ok {
		problems = append(problems,
			fmt.Sprintf("circular dependency: pipeline %q consumes its own output attribute", p.Name))
	}

	merged := make([]*model.Pipeline, 0, len(existing)+1)
	for _, e := range existing {
		if e.ID == p.ID {
			continue // replacing an existing definition
		}
		if e.OutputAttributeID == p.OutputAttributeID {
			problems = append(problems,
				fmt.Sprintf("output attribute %q is already produced by pipeline %q", p.OutputAttributeID, e.Name))
		}
		merged = append(merged, e)
	}
	merged = append(merged, p)

	if _, err := ExecutionOrder(merged); err != nil {
		if model.IsCircularDependency(err) {
			problems = append(problems, err.Error())
		} else {
			problems = append(problems, fmt.Sprintf("invalid pipeline graph: %v", err))
		}
	}

	return problems
}
