// Package record defines the five generic record kinds shared by every vertical:
// organizations, entities, dynamic fields, relationships and transactions (with lines).
//
// Domain variance lives in data (entity_type, relationship_type, smart_code), never in
// Go types. Every record carries organization_id and smart_code.
package record

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle status of organizations and entities.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"

	// StatusAny is a read filter value matching every status. It is never stored.
	StatusAny Status = "any"
)

// Organization is a tenant boundary. It owns every other record by organization_id.
type Organization struct {
	ID        string          `json:"id"`
	Name      string          `json:"name" validate:"required,max=255"`
	Code      string          `json:"code,omitempty" validate:"max=100"`
	Type      string          `json:"type,omitempty" validate:"max=100"`
	Status    Status          `json:"status,omitempty" validate:"omitempty,oneof=active archived"`
	Settings  json.RawMessage `json:"settings,omitempty"`
	SmartCode string          `json:"smart_code" validate:"required,smartcode"`

	// Version is the optimistic lock. Updates must carry the stored version.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

// Entity is a named object of an arbitrary domain type.
type Entity struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	EntityType     string          `json:"entity_type" validate:"required,max=100"`
	EntityName     string          `json:"entity_name" validate:"required,max=255"`
	EntityCode     string          `json:"entity_code,omitempty" validate:"max=100"`
	SmartCode      string          `json:"smart_code" validate:"required,smartcode"`
	Status         Status          `json:"status,omitempty" validate:"omitempty,oneof=active archived"`
	ParentEntityID string          `json:"parent_entity_id,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

// EntityFilter selects entities for Read. Zero fields do not filter.
type EntityFilter struct {
	IDs            []string `json:"ids,omitempty"`
	EntityType     string   `json:"entity_type,omitempty"`
	EntityCode     string   `json:"entity_code,omitempty"`
	ParentEntityID string   `json:"parent_entity_id,omitempty"`

	// Status defaults to active. Use archived or any explicitly.
	Status Status `json:"status,omitempty" validate:"omitempty,oneof=active archived any"`

	// SmartCode is a glob over smart-code segments, e.g. HERA.SALON.**.
	SmartCode    string `json:"smart_code,omitempty"`
	NameContains string `json:"name_contains,omitempty"`

	Limit  int `json:"limit,omitempty" validate:"gte=0"`
	Offset int `json:"offset,omitempty" validate:"gte=0"`
}

// Bundle is an entity with its dynamic fields and outgoing relationships, written in one unit.
// Relationships with an empty FromEntityID start at the bundled entity.
type Bundle struct {
	Entity        Entity              `json:"entity"`
	Fields        []FieldInput        `json:"dynamic_fields,omitempty" validate:"dive"`
	Relationships []RelationshipInput `json:"relationships,omitempty" validate:"dive"`
}

// BundleResult is the stored state of a bundle after an upsert.
type BundleResult struct {
	Entity        Entity                 `json:"entity"`
	Fields        map[string]FieldResult `json:"dynamic_fields"`
	Relationships []Relationship         `json:"relationships"`
}
