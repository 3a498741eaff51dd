package pipeline

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/pim-core/internal/model"
	"github.com/sells-group/pim-core/internal/store"
)

// pipelineFile is the YAML shape accepted by LoadFile.
type pipelineFile struct {
	Pipelines []pipelineDef `yaml:"pipelines"`
}

type pipelineDef struct {
	Name            string      `yaml:"name"`
	EntityType      string      `yaml:"entity_type"`
	OutputAttribute string      `yaml:"output_attribute"`
	Modules         []moduleDef `yaml:"modules"`
}

type moduleDef struct {
	Kind     string         `yaml:"kind"`
	Settings map[string]any `yaml:"settings"`
}

// Loader reads pipeline definitions from YAML and saves them after graph
// validation. Reloading a pipeline by name keeps its identity and bumps its
// version, invalidating the input-hash cache.
type Loader struct {
	repo store.Store
}

// NewLoader creates a pipeline definition loader.
func NewLoader(repo store.Store) *Loader {
	return &Loader{repo: repo}
}

// LoadFile parses the YAML file and saves each pipeline it defines. The whole
// file is validated before anything is saved; any invalid definition rejects
// the file.
func (l *Loader) LoadFile(ctx context.Context, path string) ([]*model.Pipeline, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read %s", path)
	}

	var file pipelineFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, eris.Wrapf(err, "pipeline: parse %s", path)
	}
	if len(file.Pipelines) == 0 {
		return nil, model.NewValidationError("no pipelines defined in %s", path)
	}

	pipelines := make([]*model.Pipeline, 0, len(file.Pipelines))
	for _, def := range file.Pipelines {
		p, err := l.build(ctx, def)
		if err != nil {
			return nil, err
		}
		pipelines = append(pipelines, p)
	}

	for _, p := range pipelines {
		existing, err := l.repo.ListPipelines(ctx, p.EntityType)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: list existing")
		}
		if problems := Validate(p, existing); len(problems) > 0 {
			return nil, model.NewValidationError("pipeline %q: %s", p.Name, problems[0])
		}
	}

	for _, p := range pipelines {
		if err := l.repo.SavePipeline(ctx, p); err != nil {
			return nil, eris.Wrapf(err, "pipeline: save %s", p.Name)
		}
	}
	return pipelines, nil
}

func (l *Loader) build(ctx context.Context, def pipelineDef) (*model.Pipeline, error) {
	if def.Name == "" {
		return nil, model.NewValidationError("pipeline definition has no name")
	}
	if def.EntityType == "" || def.OutputAttribute == "" {
		return nil, model.NewValidationError("pipeline %q: entity_type and output_attribute are required", def.Name)
	}
	if len(def.Modules) == 0 {
		return nil, model.NewValidationError("pipeline %q: at least one module is required", def.Name)
	}

	p := &model.Pipeline{
		ID:                uuid.NewString(),
		Name:              def.Name,
		EntityType:        def.EntityType,
		OutputAttributeID: def.OutputAttribute,
		Version:           1,
	}

	existing, err := l.repo.GetPipelineByName(ctx, def.Name)
	if err != nil && !model.IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		p.ID = existing.ID
		p.Version = existing.Version + 1
	}

	for i, md := range def.Modules {
		kind := model.ModuleKind(md.Kind)
		switch kind {
		case model.ModuleSource, model.ModuleCalculation, model.ModuleAIPrompt:
		default:
			return nil, model.NewValidationError("pipeline %q: unknown module kind %q", def.Name, md.Kind)
		}
		p.Modules = append(p.Modules, model.PipelineModule{
			ID:       uuid.NewString(),
			Kind:     kind,
			Order:    i,
			Settings: md.Settings,
		})
	}
	return p, nil
}
