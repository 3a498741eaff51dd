package model

import "time"

// VersionedValue is the four-layer value record for one (entity, attribute)
// pair. Exactly one record exists per pair.
//
// Layers:
//   - Current: the latest raw write (user, import, or pipeline).
//   - Approved: the value considered live-able; nil until approved. Only an
//     explicit approval or the write-time auto-approval rule sets it; a later
//     write to Current never clears it.
//   - Override: optional manual correction; never touches Current. An empty
//     string is treated as "no override".
//   - Live: last value confirmed as published externally, maintained by the
//     sync collaborator.
type VersionedValue struct {
	EntityID    string `json:"entity_id"`
	AttributeID string `json:"attribute_id"`

	Current  *string `json:"current,omitempty"`
	Approved *string `json:"approved,omitempty"`
	Override *string `json:"override,omitempty"`
	Live     *string `json:"live,omitempty"`

	Confidence      *float64 `json:"confidence,omitempty"`
	Justification   *string  `json:"justification,omitempty"`
	PipelineVersion *int     `json:"pipeline_version,omitempty"`
	InputHash       *string  `json:"input_hash,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Display returns the value a reviewer sees: the override when present and
// non-empty, otherwise the current value (empty string when never written).
// The second return reports whether the override branch was taken.
func (v *VersionedValue) Display() (string, bool) {
	if v.Override != nil && *v.Override != "" {
		return *v.Override, true
	}
	if v.Current != nil {
		return *v.Current, false
	}
	return "", false
}

// Pending reports whether the record awaits human attention: never approved,
// or the display value diverged from the approved one.
func (v *VersionedValue) Pending() bool {
	if v.Approved == nil {
		return true
	}
	display, _ := v.Display()
	return display != *v.Approved
}

// ValuePair addresses one versioned value record.
type ValuePair struct {
	EntityID    string `json:"entity_id"`
	AttributeID string `json:"attribute_id"`
}
