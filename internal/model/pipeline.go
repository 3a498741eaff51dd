package model

import "sort"

// ModuleKind identifies the implementation of a pipeline module.
type ModuleKind string

const (
	ModuleSource      ModuleKind = "source"
	ModuleCalculation ModuleKind = "calculation"
	ModuleAIPrompt    ModuleKind = "ai_prompt"
)

// PipelineModule is one step in a pipeline's transform chain. Settings is a
// kind-specific payload; for source modules it carries the declared input
// attribute ids under "attributes".
type PipelineModule struct {
	ID       string         `json:"id"`
	Kind     ModuleKind     `json:"kind"`
	Order    int            `json:"order"`
	Settings map[string]any `json:"settings,omitempty"`
}

// InputAttributes returns the attribute ids declared by a source module.
// Handles both []string (in-process) and []any (decoded from JSON/YAML).
func (m *PipelineModule) InputAttributes() []string {
	if m.Kind != ModuleSource || m.Settings == nil {
		return nil
	}
	switch raw := m.Settings["attributes"].(type) {
	case []string:
		return raw
	case []any:
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Pipeline computes one output attribute for one entity type from an ordered
// module chain. Version increments on every structural change to the chain
// and participates in the engine's input-hash skip detection.
type Pipeline struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	EntityType        string           `json:"entity_type"`
	OutputAttributeID string           `json:"output_attribute_id"`
	Version           int              `json:"version"`
	Modules           []PipelineModule `json:"modules"`
}

// OrderedModules returns the module chain sorted by Order.
func (p *Pipeline) OrderedModules() []PipelineModule {
	mods := make([]PipelineModule, len(p.Modules))
	copy(mods, p.Modules)
	sort.SliceStable(mods, func(i, j int) bool { return mods[i].Order < mods[j].Order })
	return mods
}

// AddModule appends a module to the chain and bumps the version.
func (p *Pipeline) AddModule(m PipelineModule) {
	p.Modules = append(p.Modules, m)
	p.BumpVersion()
}

// UpdateModule replaces the module with the same ID and bumps the version.
// Returns false when no module matches.
func (p *Pipeline) UpdateModule(m PipelineModule) bool {
	for i := range p.Modules {
		if p.Modules[i].ID == m.ID {
			p.Modules[i] = m
			p.BumpVersion()
			return true
		}
	}
	return false
}

// RemoveModule deletes the module with the given ID and bumps the version.
// Returns false when no module matches.
func (p *Pipeline) RemoveModule(id string) bool {
	for i := range p.Modules {
		if p.Modules[i].ID == id {
			p.Modules = append(p.Modules[:i], p.Modules[i+1:]...)
			p.BumpVersion()
			return true
		}
	}
	return false
}

// BumpVersion increments the pipeline version, invalidating the input-hash
// cache for every entity previously processed by this pipeline.
func (p *Pipeline) BumpVersion() {
	p.Version++
}
