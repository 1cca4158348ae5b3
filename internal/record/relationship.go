package record

import (
	"encoding/json"
	"time"
)

// DirectionForward is the default relationship direction.
const DirectionForward = "forward"

// Relationship is a typed directed edge between two entities of one organization.
// (organization_id, from_entity_id, to_entity_id, relationship_type) is unique.
type Relationship struct {
	ID               string          `json:"id"`
	OrganizationID   string          `json:"organization_id"`
	FromEntityID     string          `json:"from_entity_id"`
	ToEntityID       string          `json:"to_entity_id"`
	RelationshipType string          `json:"relationship_type"`
	Direction        string          `json:"direction"`
	Strength         float64         `json:"strength"`
	Data             json.RawMessage `json:"relationship_data,omitempty"`
	SmartCode        string          `json:"smart_code"`
	IsActive         bool            `json:"is_active"`
	EffectiveDate    *time.Time      `json:"effective_date,omitempty"`
	ExpirationDate   *time.Time      `json:"expiration_date,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

// RelationshipInput is an upsert request for an edge. Nil pointers take defaults on create
// and keep the stored value on update.
type RelationshipInput struct {
	FromEntityID     string          `json:"from_entity_id"`
	ToEntityID       string          `json:"to_entity_id" validate:"required"`
	RelationshipType string          `json:"relationship_type" validate:"required,max=100"`
	Direction        string          `json:"direction,omitempty" validate:"max=50"`
	Strength         *float64        `json:"strength,omitempty" validate:"omitempty,gte=0"`
	Data             json.RawMessage `json:"relationship_data,omitempty"`
	SmartCode        string          `json:"smart_code" validate:"required,smartcode"`
	IsActive         *bool           `json:"is_active,omitempty"`
	EffectiveDate    *time.Time      `json:"effective_date,omitempty"`
	ExpirationDate   *time.Time      `json:"expiration_date,omitempty"`
}

// RelationshipQuery selects edges touching an endpoint. At least one of FromEntityID,
// ToEntityID or EntityID (either end) is required.
type RelationshipQuery struct {
	FromEntityID string   `json:"from_entity_id,omitempty"`
	ToEntityID   string   `json:"to_entity_id,omitempty"`
	EntityID     string   `json:"entity_id,omitempty"`
	Types        []string `json:"types,omitempty"`
	ActiveOnly   bool     `json:"active_only,omitempty"`
	SmartCode    string   `json:"smart_code,omitempty"`

	Limit  int `json:"limit,omitempty" validate:"gte=0"`
	Offset int `json:"offset,omitempty" validate:"gte=0"`
}
