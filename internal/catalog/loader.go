package catalog

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/pim-core/internal/model"
	"github.com/sells-group/pim-core/internal/store"
)

// attributeFile is the YAML shape accepted by LoadFile.
type attributeFile struct {
	Attributes []attributeDef `yaml:"attributes"`
}

type attributeDef struct {
	ID                  string   `yaml:"id"`
	Key                 string   `yaml:"key"`
	Label               string   `yaml:"label"`
	EntityType          string   `yaml:"entity_type"`
	DataType            string   `yaml:"data_type"`
	Editable            string   `yaml:"editable"`
	Review              string   `yaml:"review_policy"`
	ConfidenceThreshold *float64 `yaml:"confidence_threshold"`
	Options             []string `yaml:"options"`
}

// LoadFile reads attribute definitions from a YAML file and upserts them into
// the store. The whole file is validated before anything is saved.
func LoadFile(ctx context.Context, repo store.Store, path string) ([]model.Attribute, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}

	var file attributeFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, eris.Wrapf(err, "catalog: parse %s", path)
	}
	if len(file.Attributes) == 0 {
		return nil, model.NewValidationError("no attributes defined in %s", path)
	}

	attrs := make([]model.Attribute, 0, len(file.Attributes))
	for _, def := range file.Attributes {
		attr, err := def.toModel()
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}

	for _, attr := range attrs {
		if err := repo.UpsertAttribute(ctx, attr); err != nil {
			return nil, eris.Wrapf(err, "catalog: save attribute %s", attr.Key)
		}
	}
	return attrs, nil
}

func (d attributeDef) toModel() (model.Attribute, error) {
	var zero model.Attribute
	if d.ID == "" || d.Key == "" || d.EntityType == "" {
		return zero, model.NewValidationError("attribute definition requires id, key, and entity_type")
	}

	dataType := model.DataType(d.DataType)
	switch dataType {
	case model.DataTypeText, model.DataTypeInteger, model.DataTypeDecimal,
		model.DataTypeBoolean, model.DataTypeSelect, model.DataTypeJSON:
	case "":
		dataType = model.DataTypeText
	default:
		return zero, model.NewValidationError("attribute %s: unknown data type %q", d.Key, d.DataType)
	}
	if dataType == model.DataTypeSelect && len(d.Options) == 0 {
		return zero, model.NewValidationError("attribute %s: select type requires options", d.Key)
	}

	editable := model.Editable(d.Editable)
	switch editable {
	case model.EditableYes, model.EditableNo, model.EditableOverridable:
	case "":
		editable = model.EditableYes
	default:
		return zero, model.NewValidationError("attribute %s: unknown editable mode %q", d.Key, d.Editable)
	}

	review := model.ReviewPolicy(d.Review)
	switch review {
	case model.ReviewAlways, model.ReviewLowConfidence, model.ReviewNo:
	case "":
		review = model.ReviewNo
	default:
		return zero, model.NewValidationError("attribute %s: unknown review policy %q", d.Key, d.Review)
	}

	return model.Attribute{
		ID:                  d.ID,
		Key:                 d.Key,
		Label:               d.Label,
		EntityType:          d.EntityType,
		DataType:            dataType,
		Editable:            editable,
		Review:              review,
		ConfidenceThreshold: d.ConfidenceThreshold,
		Options:             d.Options,
	}, nil
}
