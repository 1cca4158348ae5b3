package facade

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/recordstore/internal/ledger"
	"github.com/roach88/recordstore/internal/record"
	"github.com/roach88/recordstore/internal/tenant"
)

// fieldBatch and lineBatch give list payloads a struct root for validation.
type fieldBatch struct {
	EntityID string              `json:"entity_id" validate:"required"`
	Fields   []record.FieldInput `json:"dynamic_fields" validate:"required,min=1,dive"`
}

type lineBatch struct {
	ID    string        `json:"id" validate:"required"`
	Lines []record.Line `json:"lines" validate:"required,min=1,dive"`
}

func fieldCodes(list string, ins []record.FieldInput) []codeRef {
	refs := make([]codeRef, 0, len(ins))
	for i, in := range ins {
		refs = append(refs, codeRef{field: fmt.Sprintf("%s[%d].smart_code", list, i), code: in.SmartCode})
	}
	return refs
}

func lineCodes(lines []record.Line) []codeRef {
	refs := make([]codeRef, 0, len(lines))
	for i, l := range lines {
		refs = append(refs, codeRef{field: fmt.Sprintf("lines[%d].smart_code", i), code: l.SmartCode, optional: true})
	}
	return refs
}

// Organization

func (s *Service) UpsertOrganization(ctx context.Context, scope tenant.Scope, org record.Organization) (record.Organization, error) {
	c := checks{org: org.ID, codes: []codeRef{{field: "smart_code", code: org.SmartCode}}, payload: org}
	return invoke(ctx, s, route{KindOrganization, VerbUpsert}, scope, c, func(ctx context.Context) (record.Organization, error) {
		return s.backend.UpsertOrganization(ctx, scope, org)
	})
}

func (s *Service) GetOrganization(ctx context.Context, scope tenant.Scope) (record.Organization, error) {
	return invoke(ctx, s, route{KindOrganization, VerbGet}, scope, checks{}, func(ctx context.Context) (record.Organization, error) {
		return s.backend.GetOrganization(ctx, scope)
	})
}

func (s *Service) ArchiveOrganization(ctx context.Context, scope tenant.Scope) (record.Organization, error) {
	return invoke(ctx, s, route{KindOrganization, VerbArchive}, scope, checks{}, func(ctx context.Context) (record.Organization, error) {
		return s.backend.ArchiveOrganization(ctx, scope)
	})
}

// Entity

func (s *Service) UpsertEntity(ctx context.Context, scope tenant.Scope, e record.Entity) (record.Entity, error) {
	c := checks{org: e.OrganizationID, codes: []codeRef{{field: "smart_code", code: e.SmartCode}}, payload: e}
	return invoke(ctx, s, route{KindEntity, VerbUpsert}, scope, c, func(ctx context.Context) (record.Entity, error) {
		return s.backend.UpsertEntity(ctx, scope, e)
	})
}

// UpsertEntityBundle writes an entity with its fields and outgoing relationships atomically.
func (s *Service) UpsertEntityBundle(ctx context.Context, scope tenant.Scope, b record.Bundle) (record.BundleResult, error) {
	codes := []codeRef{{field: "entity.smart_code", code: b.Entity.SmartCode}}
	codes = append(codes, fieldCodes("dynamic_fields", b.Fields)...)
	for i, r := range b.Relationships {
		codes = append(codes, codeRef{field: fmt.Sprintf("relationships[%d].smart_code", i), code: r.SmartCode})
	}
	c := checks{org: b.Entity.OrganizationID, codes: codes, payload: b}
	return invoke(ctx, s, route{KindEntity, VerbBundle}, scope, c, func(ctx context.Context) (record.BundleResult, error) {
		return s.backend.UpsertEntityBundle(ctx, scope, b)
	})
}

func (s *Service) GetEntity(ctx context.Context, scope tenant.Scope, id string) (record.Entity, error) {
	return invoke(ctx, s, route{KindEntity, VerbGet}, scope, requireID(id), func(ctx context.Context) (record.Entity, error) {
		return s.backend.GetEntity(ctx, scope, id)
	})
}

func (s *Service) ReadEntities(ctx context.Context, scope tenant.Scope, f record.EntityFilter) ([]record.Entity, error) {
	return invoke(ctx, s, route{KindEntity, VerbRead}, scope, checks{payload: f}, func(ctx context.Context) ([]record.Entity, error) {
		return s.backend.ReadEntities(ctx, scope, f)
	})
}

func (s *Service) ArchiveEntity(ctx context.Context, scope tenant.Scope, id string) (record.Entity, error) {
	return invoke(ctx, s, route{KindEntity, VerbArchive}, scope, requireID(id), func(ctx context.Context) (record.Entity, error) {
		return s.backend.ArchiveEntity(ctx, scope, id)
	})
}

func (s *Service) RecoverEntity(ctx context.Context, scope tenant.Scope, id string) (record.Entity, error) {
	return invoke(ctx, s, route{KindEntity, VerbRecover}, scope, requireID(id), func(ctx context.Context) (record.Entity, error) {
		return s.backend.RecoverEntity(ctx, scope, id)
	})
}

func (s *Service) DeleteEntity(ctx context.Context, scope tenant.Scope, id string) error {
	_, err := invoke(ctx, s, route{KindEntity, VerbDelete}, scope, requireID(id), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.backend.DeleteEntity(ctx, scope, id)
	})
	return err
}

// Dynamic fields

func (s *Service) SetField(ctx context.Context, scope tenant.Scope, entityID string, in record.FieldInput) (record.FieldResult, error) {
	c := checks{
		codes:    []codeRef{{field: "smart_code", code: in.SmartCode}},
		payload:  in,
		required: []requiredField{{"entity_id", entityID}},
	}
	return invoke(ctx, s, route{KindDynamicField, VerbSet}, scope, c, func(ctx context.Context) (record.FieldResult, error) {
		return s.backend.SetField(ctx, scope, entityID, in)
	})
}

func (s *Service) SetFields(ctx context.Context, scope tenant.Scope, entityID string, ins []record.FieldInput) (map[string]record.FieldResult, error) {
	c := checks{codes: fieldCodes("dynamic_fields", ins), payload: fieldBatch{EntityID: entityID, Fields: ins}}
	return invoke(ctx, s, route{KindDynamicField, VerbSetBatch}, scope, c, func(ctx context.Context) (map[string]record.FieldResult, error) {
		return s.backend.SetFields(ctx, scope, entityID, ins)
	})
}

func (s *Service) GetFields(ctx context.Context, scope tenant.Scope, entityID string, names []string) (map[string]record.FieldResult, error) {
	c := checks{required: []requiredField{{"entity_id", entityID}}}
	return invoke(ctx, s, route{KindDynamicField, VerbGet}, scope, c, func(ctx context.Context) (map[string]record.FieldResult, error) {
		return s.backend.GetFields(ctx, scope, entityID, names)
	})
}

func (s *Service) DeleteFields(ctx context.Context, scope tenant.Scope, entityID string, names []string) (int, error) {
	c := checks{required: []requiredField{{"entity_id", entityID}}}
	return invoke(ctx, s, route{KindDynamicField, VerbDelete}, scope, c, func(ctx context.Context) (int, error) {
		return s.backend.DeleteFields(ctx, scope, entityID, names)
	})
}

// Relationships

func (s *Service) UpsertRelationship(ctx context.Context, scope tenant.Scope, in record.RelationshipInput) (record.Relationship, error) {
	c := checks{codes: []codeRef{{field: "smart_code", code: in.SmartCode}}, payload: in}
	return invoke(ctx, s, route{KindRelationship, VerbUpsert}, scope, c, func(ctx context.Context) (record.Relationship, error) {
		return s.backend.UpsertRelationship(ctx, scope, in)
	})
}

func (s *Service) GetRelationship(ctx context.Context, scope tenant.Scope, id string) (record.Relationship, error) {
	return invoke(ctx, s, route{KindRelationship, VerbGet}, scope, requireID(id), func(ctx context.Context) (record.Relationship, error) {
		return s.backend.GetRelationship(ctx, scope, id)
	})
}

func (s *Service) QueryRelationships(ctx context.Context, scope tenant.Scope, q record.RelationshipQuery) ([]record.Relationship, error) {
	return invoke(ctx, s, route{KindRelationship, VerbQuery}, scope, checks{payload: q}, func(ctx context.Context) ([]record.Relationship, error) {
		return s.backend.QueryRelationships(ctx, scope, q)
	})
}

func (s *Service) DeactivateRelationship(ctx context.Context, scope tenant.Scope, id string) (record.Relationship, error) {
	return invoke(ctx, s, route{KindRelationship, VerbDeactivate}, scope, requireID(id), func(ctx context.Context) (record.Relationship, error) {
		return s.backend.DeactivateRelationship(ctx, scope, id)
	})
}

func (s *Service) DeleteRelationship(ctx context.Context, scope tenant.Scope, id string) error {
	_, err := invoke(ctx, s, route{KindRelationship, VerbDelete}, scope, requireID(id), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.backend.DeleteRelationship(ctx, scope, id)
	})
	return err
}

// Transactions

func (s *Service) Emit(ctx context.Context, scope tenant.Scope, em record.Emission) (record.EmitResult, error) {
	codes := append([]codeRef{{field: "transaction.smart_code", code: em.Transaction.SmartCode}}, lineCodes(em.Lines)...)
	c := checks{org: em.Transaction.OrganizationID, codes: codes, payload: em}
	return invoke(ctx, s, route{KindTransaction, VerbEmit}, scope, c, func(ctx context.Context) (record.EmitResult, error) {
		return s.backend.Emit(ctx, scope, em)
	})
}

func (s *Service) Post(ctx context.Context, scope tenant.Scope, id string) (record.Transaction, error) {
	return invoke(ctx, s, route{KindTransaction, VerbPost}, scope, requireID(id), func(ctx context.Context) (record.Transaction, error) {
		return s.backend.Post(ctx, scope, id)
	})
}

func (s *Service) AppendLines(ctx context.Context, scope tenant.Scope, id string, lines []record.Line) (record.EmitResult, error) {
	c := checks{codes: lineCodes(lines), payload: lineBatch{ID: id, Lines: lines}}
	return invoke(ctx, s, route{KindTransaction, VerbAppendLines}, scope, c, func(ctx context.Context) (record.EmitResult, error) {
		return s.backend.AppendLines(ctx, scope, id, lines)
	})
}

func (s *Service) Void(ctx context.Context, scope tenant.Scope, id, reason string) (record.Transaction, error) {
	c := checks{required: []requiredField{{"id", id}, {"reason", reason}}}
	return invoke(ctx, s, route{KindTransaction, VerbVoid}, scope, c, func(ctx context.Context) (record.Transaction, error) {
		return s.backend.Void(ctx, scope, id, reason)
	})
}

func (s *Service) Reverse(ctx context.Context, scope tenant.Scope, id, reason string, date *time.Time) (record.ReverseResult, error) {
	return invoke(ctx, s, route{KindTransaction, VerbReverse}, scope, requireID(id), func(ctx context.Context) (record.ReverseResult, error) {
		return s.backend.Reverse(ctx, scope, id, reason, date)
	})
}

func (s *Service) ValidateTransaction(ctx context.Context, scope tenant.Scope, id string) (ledger.Report, error) {
	return invoke(ctx, s, route{KindTransaction, VerbValidate}, scope, requireID(id), func(ctx context.Context) (ledger.Report, error) {
		return s.backend.ValidateTransaction(ctx, scope, id)
	})
}

func (s *Service) GetTransaction(ctx context.Context, scope tenant.Scope, id string) (record.Transaction, error) {
	return invoke(ctx, s, route{KindTransaction, VerbGet}, scope, requireID(id), func(ctx context.Context) (record.Transaction, error) {
		return s.backend.GetTransaction(ctx, scope, id)
	})
}

func (s *Service) GetLines(ctx context.Context, scope tenant.Scope, id string) ([]record.Line, error) {
	return invoke(ctx, s, route{KindTransaction, VerbGetLines}, scope, requireID(id), func(ctx context.Context) ([]record.Line, error) {
		return s.backend.GetLines(ctx, scope, id)
	})
}

func (s *Service) SearchTransactions(ctx context.Context, scope tenant.Scope, f record.TxnFilter) ([]record.Transaction, error) {
	return invoke(ctx, s, route{KindTransaction, VerbSearch}, scope, checks{payload: f}, func(ctx context.Context) ([]record.Transaction, error) {
		return s.backend.SearchTransactions(ctx, scope, f)
	})
}
