package model

// DataType identifies the value type of an attribute.
type DataType string

const (
	DataTypeText    DataType = "text"
	DataTypeInteger DataType = "integer"
	DataTypeDecimal DataType = "decimal"
	DataTypeBoolean DataType = "boolean"
	DataTypeSelect  DataType = "select"
	DataTypeJSON    DataType = "json"
)

// Editable controls how writes through the entity accessor are handled.
type Editable string

const (
	EditableYes         Editable = "yes"
	EditableNo          Editable = "no"
	EditableOverridable Editable = "overridable"
)

// ReviewPolicy governs write-time auto-approval of versioned values.
type ReviewPolicy string

const (
	ReviewAlways        ReviewPolicy = "always"
	ReviewLowConfidence ReviewPolicy = "low_confidence"
	ReviewNo            ReviewPolicy = "no"
)

// Attribute defines a named field on an entity type. Identity fields
// (ID, Key, EntityType, DataType) are immutable after creation; the
// policy fields may change.
type Attribute struct {
	ID         string       `json:"id"`
	Key        string       `json:"key"`
	Label      string       `json:"label,omitempty"`
	EntityType string       `json:"entity_type"`
	DataType   DataType     `json:"data_type"`
	Editable   Editable     `json:"editable"`
	Review     ReviewPolicy `json:"review_policy"`

	// PipelineID is set when the attribute is produced by a pipeline.
	PipelineID string `json:"pipeline_id,omitempty"`

	// ConfidenceThreshold overrides the global auto-approval threshold
	// for low_confidence attributes. Nil means use the global default.
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`

	// Options holds the allowed values for select attributes.
	Options []string `json:"options,omitempty"`
}

// IsPipelineOutput reports whether the attribute is owned by a pipeline.
func (a *Attribute) IsPipelineOutput() bool {
	return a.PipelineID != ""
}

// Threshold returns the effective confidence threshold for this attribute.
func (a *Attribute) Threshold(global float64) float64 {
	if a.ConfidenceThreshold != nil {
		return *a.ConfidenceThreshold
	}
	return global
}
