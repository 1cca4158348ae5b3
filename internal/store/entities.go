package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/recordstore/internal/apperr"
	"github.com/roach88/recordstore/internal/record"
	"github.com/roach88/recordstore/internal/tenant"
)

// maxParentDepth bounds the ancestor walk done when a parent is assigned.
const maxParentDepth = 64

const entityColumns = `id, organization_id, entity_type, entity_name, entity_code, smart_code, status,
	parent_entity_id, metadata, version, created_at, updated_at, created_by, updated_by`

func scanEntity(row rowScanner) (record.Entity, error) {
	var (
		e                    record.Entity
		status               string
		parent, metadata     sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&e.ID, &e.OrganizationID, &e.EntityType, &e.EntityName, &e.EntityCode,
		&e.SmartCode, &status, &parent, &metadata, &e.Version, &createdAt, &updatedAt,
		&e.CreatedBy, &e.UpdatedBy)
	if err != nil {
		return record.Entity{}, err
	}
	e.Status = record.Status(status)
	e.ParentEntityID = parent.String
	e.Metadata = rawJSON(metadata)
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return record.Entity{}, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return record.Entity{}, err
	}
	return e, nil
}

// loadEntity reads one entity and enforces ownership.
// Returns NotFound when the id does not exist and TenantMismatch when it lives under
// another organization.
func loadEntity(ctx context.Context, q dbtx, scope tenant.Scope, id string) (record.Entity, error) {
	row := q.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Entity{}, apperr.NotFound("entity", id)
	}
	if err != nil {
		return record.Entity{}, fmt.Errorf("load entity %s: %w", id, err)
	}
	if err := tenant.Owns(scope, "entity", id, e.OrganizationID); err != nil {
		return record.Entity{}, err
	}
	return e, nil
}

// UpsertEntity creates an entity, or updates it when e.ID names an existing one.
//
// On update, entity_type must not change and zero-valued optional fields (code, status,
// parent, metadata) keep their stored values. A supplied id that does not exist is NotFound.
func (s *Store) UpsertEntity(ctx context.Context, scope tenant.Scope, e record.Entity) (record.Entity, error) {
	if err := tenant.Check(scope, "entity", e.OrganizationID); err != nil {
		return record.Entity{}, err
	}
	e.OrganizationID = tenant.Stamp(scope, e.OrganizationID)
	if err := record.Validate(e); err != nil {
		return record.Entity{}, err
	}

	var out record.Entity
	err := s.withTx(ctx, "upsert entity", func(tx *sql.Tx) error {
		var err error
		out, err = s.upsertEntity(ctx, tx, scope, e)
		return err
	})
	if err != nil {
		return record.Entity{}, err
	}
	return out, nil
}

func (s *Store) upsertEntity(ctx context.Context, q dbtx, scope tenant.Scope, e record.Entity) (record.Entity, error) {
	metadata, err := jsonText("metadata", e.Metadata)
	if err != nil {
		return record.Entity{}, err
	}
	now := s.now()
	actor := scope.ActorOr(systemActor)

	if e.ID == "" {
		e.ID = s.ids.Generate()
		if e.Status == "" {
			e.Status = record.StatusActive
		}
		if err := checkParent(ctx, q, scope, e.ID, e.ParentEntityID); err != nil {
			return record.Entity{}, err
		}
		e.Version = 1
		e.CreatedAt, e.UpdatedAt = now, now
		e.CreatedBy, e.UpdatedBy = actor, actor

		_, err := q.ExecContext(ctx, `
			INSERT INTO entities
			(id, organization_id, entity_type, entity_name, entity_code, smart_code, status,
			 parent_entity_id, metadata, version, created_at, updated_at, created_by, updated_by)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			e.ID, e.OrganizationID, e.EntityType, e.EntityName, e.EntityCode, e.SmartCode,
			string(e.Status), nullString(e.ParentEntityID), metadata, e.Version,
			formatTime(now), formatTime(now), actor, actor,
		)
		if err != nil {
			return record.Entity{}, fmt.Errorf("insert entity: %w", err)
		}
		e.Metadata = rawJSON(metadata)
		return e, nil
	}

	existing, err := loadEntity(ctx, q, scope, e.ID)
	if err != nil {
		return record.Entity{}, err
	}
	if e.EntityType != existing.EntityType {
		return record.Entity{}, apperr.Conflict("entity_type cannot change after creation").
			WithField("entity_type").
			WithDetail("stored", existing.EntityType).
			WithDetail("requested", e.EntityType)
	}

	merged := existing
	merged.EntityName = e.EntityName
	merged.SmartCode = e.SmartCode
	if e.EntityCode != "" {
		merged.EntityCode = e.EntityCode
	}
	if e.Status != "" {
		merged.Status = e.Status
	}
	if e.ParentEntityID != "" && e.ParentEntityID != existing.ParentEntityID {
		if err := checkParent(ctx, q, scope, e.ID, e.ParentEntityID); err != nil {
			return record.Entity{}, err
		}
		merged.ParentEntityID = e.ParentEntityID
	}
	if metadata.Valid {
		merged.Metadata = rawJSON(metadata)
	}
	merged.Version = existing.Version + 1
	merged.UpdatedAt = now
	merged.UpdatedBy = actor

	stored, err := jsonText("metadata", merged.Metadata)
	if err != nil {
		return record.Entity{}, err
	}
	_, err = q.ExecContext(ctx, `
		UPDATE entities
		SET entity_name = ?, entity_code = ?, smart_code = ?, status = ?, parent_entity_id = ?,
		    metadata = ?, version = ?, updated_at = ?, updated_by = ?
		WHERE id = ? AND organization_id = ?
	`,
		merged.EntityName, merged.EntityCode, merged.SmartCode, string(merged.Status),
		nullString(merged.ParentEntityID), stored, merged.Version, formatTime(now), actor,
		merged.ID, merged.OrganizationID,
	)
	if err != nil {
		return record.Entity{}, fmt.Errorf("update entity: %w", err)
	}
	return merged, nil
}

// checkParent verifies that parentID exists under the tenant and that making it the
// parent of id does not close a cycle.
func checkParent(ctx context.Context, q dbtx, scope tenant.Scope, id, parentID string) error {
	if parentID == "" {
		return nil
	}
	if parentID == id {
		return apperr.Conflict("entity cannot be its own parent").WithField("parent_entity_id")
	}

	cur := parentID
	for depth := 0; cur != ""; depth++ {
		if depth >= maxParentDepth {
			return apperr.Conflict(fmt.Sprintf("parent chain exceeds %d levels", maxParentDepth)).
				WithField("parent_entity_id")
		}
		p, err := loadEntity(ctx, q, scope, cur)
		if err != nil {
			var ae *apperr.Error
			if errors.As(err, &ae) {
				ae.WithField("parent_entity_id")
			}
			return err
		}
		if p.ParentEntityID == id {
			return apperr.Conflict("parent assignment would create a cycle").
				WithField("parent_entity_id").
				WithDetail("via", p.ID)
		}
		cur = p.ParentEntityID
	}
	return nil
}

// GetEntity returns one entity by id regardless of status.
func (s *Store) GetEntity(ctx context.Context, scope tenant.Scope, id string) (record.Entity, error) {
	if err := tenant.Require(scope); err != nil {
		return record.Entity{}, err
	}
	return loadEntity(ctx, s.db, scope, id)
}

// ReadEntities returns the tenant's entities matching f, ordered by created_at, id.
//
// Status defaults to active. Returns an empty slice (not nil) when nothing matches.
func (s *Store) ReadEntities(ctx context.Context, scope tenant.Scope, f record.EntityFilter) ([]record.Entity, error) {
	if err := tenant.Require(scope); err != nil {
		return nil, err
	}
	if err := record.Validate(f); err != nil {
		return nil, err
	}
	if err := checkPattern(f.SmartCode); err != nil {
		return nil, err
	}

	if err := checkForeignEntities(ctx, s.db, scope, "ids", f.IDs...); err != nil {
		return nil, err
	}
	if f.ParentEntityID != "" {
		if err := checkForeignEntities(ctx, s.db, scope, "parent_entity_id", f.ParentEntityID); err != nil {
			return nil, err
		}
	}

	w := &where{}
	w.add("organization_id = ?", scope.OrganizationID)
	w.in("id", f.IDs)
	switch f.Status {
	case "":
		w.add("status = ?", string(record.StatusActive))
	case record.StatusAny:
	default:
		w.add("status = ?", string(f.Status))
	}
	if f.EntityType != "" {
		w.add("entity_type = ?", f.EntityType)
	}
	if f.EntityCode != "" {
		w.add("entity_code = ?", f.EntityCode)
	}
	if f.ParentEntityID != "" {
		w.add("parent_entity_id = ?", f.ParentEntityID)
	}
	if f.NameContains != "" {
		w.add(likeClause("LOWER(entity_name)"), likePattern(f.NameContains))
	}

	limit, offset := s.page(f.Limit, f.Offset)
	query := `SELECT ` + entityColumns + ` FROM entities` + w.String() + ` ORDER BY created_at ASC, id ASC`
	args := w.args
	// Smart-code globs are matched in Go, so pagination happens after filtering.
	if f.SmartCode == "" {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	entities := []record.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}

	if f.SmartCode != "" {
		entities = matchCode(entities, f.SmartCode, func(e record.Entity) string { return e.SmartCode })
		entities = window(entities, limit, offset)
	}
	return entities, nil
}

// ArchiveEntity sets an entity's status to archived. Archived entities are excluded from
// default reads. Archiving an archived entity is a no-op.
func (s *Store) ArchiveEntity(ctx context.Context, scope tenant.Scope, id string) (record.Entity, error) {
	return s.setEntityStatus(ctx, scope, id, record.StatusArchived)
}

// RecoverEntity returns an archived entity to active.
func (s *Store) RecoverEntity(ctx context.Context, scope tenant.Scope, id string) (record.Entity, error) {
	return s.setEntityStatus(ctx, scope, id, record.StatusActive)
}

func (s *Store) setEntityStatus(ctx context.Context, scope tenant.Scope, id string, status record.Status) (record.Entity, error) {
	if err := tenant.Require(scope); err != nil {
		return record.Entity{}, err
	}

	var out record.Entity
	err := s.withTx(ctx, "set entity status", func(tx *sql.Tx) error {
		e, err := loadEntity(ctx, tx, scope, id)
		if err != nil {
			return err
		}
		if e.Status == status {
			out = e
			return nil
		}
		now := s.now()
		actor := scope.ActorOr(systemActor)
		_, err = tx.ExecContext(ctx, `
			UPDATE entities SET status = ?, version = version + 1, updated_at = ?, updated_by = ?
			WHERE id = ? AND organization_id = ?
		`, string(status), formatTime(now), actor, id, scope.OrganizationID)
		if err != nil {
			return fmt.Errorf("set entity status: %w", err)
		}
		e.Status = status
		e.Version++
		e.UpdatedAt = now
		e.UpdatedBy = actor
		out = e
		return nil
	})
	if err != nil {
		return record.Entity{}, err
	}
	return out, nil
}

// DeleteEntity hard-deletes an entity.
//
// Fails HasDependents while dynamic fields, relationships (either endpoint, any state),
// transaction lines or child entities still reference it. Nothing is cascaded.
func (s *Store) DeleteEntity(ctx context.Context, scope tenant.Scope, id string) error {
	if err := tenant.Require(scope); err != nil {
		return err
	}

	return s.withTx(ctx, "delete entity", func(tx *sql.Tx) error {
		if _, err := loadEntity(ctx, tx, scope, id); err != nil {
			return err
		}

		counts, err := entityDependents(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, n := range counts {
			if n > 0 {
				return apperr.HasDependents("entity", id, counts)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id = ? AND organization_id = ?`,
			id, scope.OrganizationID); err != nil {
			return fmt.Errorf("delete entity: %w", err)
		}
		return nil
	})
}

// entityDependents counts the rows that reference an entity, by dependent kind.
func entityDependents(ctx context.Context, q dbtx, id string) (map[string]int, error) {
	checks := []struct {
		kind  string
		query string
		args  []any
	}{
		{"dynamic_fields", `SELECT COUNT(*) FROM dynamic_fields WHERE entity_id = ?`, []any{id}},
		{"relationships", `SELECT COUNT(*) FROM relationships WHERE from_entity_id = ? OR to_entity_id = ?`, []any{id, id}},
		{"transaction_lines", `SELECT COUNT(*) FROM transaction_lines WHERE entity_id = ?`, []any{id}},
		{"children", `SELECT COUNT(*) FROM entities WHERE parent_entity_id = ?`, []any{id}},
	}

	counts := make(map[string]int, len(checks))
	for _, c := range checks {
		var n int
		if err := q.QueryRowContext(ctx, c.query, c.args...).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", c.kind, err)
		}
		counts[c.kind] = n
	}
	return counts, nil
}

// UpsertEntityBundle writes an entity, its dynamic fields and its outgoing relationships
// in one database transaction. A failure anywhere leaves nothing written.
func (s *Store) UpsertEntityBundle(ctx context.Context, scope tenant.Scope, b record.Bundle) (record.BundleResult, error) {
	if err := tenant.Check(scope, "entity", b.Entity.OrganizationID); err != nil {
		return record.BundleResult{}, err
	}
	b.Entity.OrganizationID = tenant.Stamp(scope, b.Entity.OrganizationID)
	if err := record.Validate(b); err != nil {
		return record.BundleResult{}, err
	}
	fields, err := coerceFields(b.Fields)
	if err != nil {
		return record.BundleResult{}, err
	}

	var out record.BundleResult
	err = s.withTx(ctx, "upsert entity bundle", func(tx *sql.Tx) error {
		e, err := s.upsertEntity(ctx, tx, scope, b.Entity)
		if err != nil {
			return err
		}
		stored, err := s.setFields(ctx, tx, scope, e.ID, fields)
		if err != nil {
			return err
		}

		rels := make([]record.Relationship, 0, len(b.Relationships))
		for i, in := range b.Relationships {
			if in.FromEntityID == "" {
				in.FromEntityID = e.ID
			}
			rel, err := s.upsertRelationship(ctx, tx, scope, in)
			if err != nil {
				var ae *apperr.Error
				if errors.As(err, &ae) && ae.Field != "" {
					ae.WithField(fmt.Sprintf("relationships[%d].%s", i, ae.Field))
				}
				return err
			}
			rels = append(rels, rel)
		}

		results := make(map[string]record.FieldResult, len(stored))
		for _, f := range stored {
			results[f.Name] = f.Result()
		}
		out = record.BundleResult{Entity: e, Fields: results, Relationships: rels}
		return nil
	})
	if err != nil {
		return record.BundleResult{}, err
	}
	return out, nil
}
