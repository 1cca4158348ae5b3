package record

import (
	"encoding/json"
	"time"

	"github.com/roach88/recordstore/internal/value"
)

// FieldInput is one dynamic attribute write. Value is the raw caller value; it is coerced
// to Type strictly before it is stored.
type FieldInput struct {
	Name      string          `json:"field_name" validate:"required,max=100"`
	Type      value.FieldType `json:"field_type" validate:"required,oneof=text number boolean date json"`
	Value     any             `json:"field_value"`
	SmartCode string          `json:"smart_code" validate:"required,smartcode"`
}

// DynamicField is a stored dynamic attribute. Exactly one value column backs Value.
type DynamicField struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	EntityID       string          `json:"entity_id"`
	Name           string          `json:"field_name"`
	Type           value.FieldType `json:"field_type"`
	Value          value.Value     `json:"-"`
	SmartCode      string          `json:"smart_code"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CreatedBy      string          `json:"created_by,omitempty"`
	UpdatedBy      string          `json:"updated_by,omitempty"`
}

// Result resolves the field to its unified read shape.
func (f DynamicField) Result() FieldResult {
	return FieldResult{Type: f.Type, Value: f.Value, SmartCode: f.SmartCode, UpdatedAt: f.UpdatedAt}
}

// FieldResult is the unified read shape of a dynamic attribute: one logical value
// regardless of which column stores it.
type FieldResult struct {
	Type      value.FieldType
	Value     value.Value
	SmartCode string
	UpdatedAt time.Time
}

// MarshalJSON encodes the value in its native JSON form.
func (r FieldResult) MarshalJSON() ([]byte, error) {
	var native any
	if r.Value != nil {
		native = r.Value.Native()
	}
	return json.Marshal(struct {
		Type      value.FieldType `json:"type"`
		Value     any             `json:"value"`
		SmartCode string          `json:"smart_code"`
		UpdatedAt time.Time       `json:"updated_at"`
	}{r.Type, native, r.SmartCode, r.UpdatedAt})
}
