package model

import (
	"encoding/json"
	"strconv"
)

// ValidateValue checks a raw value against the attribute's data type.
// Select attributes with no configured options accept any value.
func (a *Attribute) ValidateValue(v string) error {
	switch a.DataType {
	case DataTypeInteger:
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			return NewValidationError("attribute %s: %q is not an integer", a.Key, v)
		}
	case DataTypeDecimal:
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return NewValidationError("attribute %s: %q is not a decimal", a.Key, v)
		}
	case DataTypeBoolean:
		if _, err := strconv.ParseBool(v); err != nil {
			return NewValidationError("attribute %s: %q is not a boolean", a.Key, v)
		}
	case DataTypeJSON:
		if !json.Valid([]byte(v)) {
			return NewValidationError("attribute %s: invalid JSON", a.Key)
		}
	case DataTypeSelect:
		if len(a.Options) == 0 {
			return nil
		}
		for _, opt := range a.Options {
			if v == opt {
				return nil
			}
		}
		return NewValidationError("attribute %s: %q is not an allowed option", a.Key, v)
	}
	return nil
}
