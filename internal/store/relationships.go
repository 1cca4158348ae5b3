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

const relationshipColumns = `id, organization_id, from_entity_id, to_entity_id, relationship_type,
	direction, strength, relationship_data, smart_code, is_active, effective_date, expiration_date,
	version, created_at, updated_at, created_by, updated_by`

func scanRelationship(row rowScanner) (record.Relationship, error) {
	var (
		r                    record.Relationship
		data                 sql.NullString
		active               int
		effective, expires   sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&r.ID, &r.OrganizationID, &r.FromEntityID, &r.ToEntityID, &r.RelationshipType,
		&r.Direction, &r.Strength, &data, &r.SmartCode, &active, &effective, &expires,
		&r.Version, &createdAt, &updatedAt, &r.CreatedBy, &r.UpdatedBy)
	if err != nil {
		return record.Relationship{}, err
	}
	r.Data = rawJSON(data)
	r.IsActive = active != 0
	if r.EffectiveDate, err = parseNullTime(effective); err != nil {
		return record.Relationship{}, err
	}
	if r.ExpirationDate, err = parseNullTime(expires); err != nil {
		return record.Relationship{}, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return record.Relationship{}, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return record.Relationship{}, err
	}
	return r, nil
}

func loadRelationship(ctx context.Context, q dbtx, scope tenant.Scope, id string) (record.Relationship, error) {
	row := q.QueryRowContext(ctx, `SELECT `+relationshipColumns+` FROM relationships WHERE id = ?`, id)
	r, err := scanRelationship(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Relationship{}, apperr.NotFound("relationship", id)
	}
	if err != nil {
		return record.Relationship{}, fmt.Errorf("load relationship %s: %w", id, err)
	}
	if err := tenant.Owns(scope, "relationship", id, r.OrganizationID); err != nil {
		return record.Relationship{}, err
	}
	return r, nil
}

// findEdge reads the edge stored under the (organization, from, to, type) key.
func findEdge(ctx context.Context, q dbtx, org, from, to, relType string) (record.Relationship, bool, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+relationshipColumns+` FROM relationships
		WHERE organization_id = ? AND from_entity_id = ? AND to_entity_id = ? AND relationship_type = ?
	`, org, from, to, relType)
	r, err := scanRelationship(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Relationship{}, false, nil
	}
	if err != nil {
		return record.Relationship{}, false, fmt.Errorf("find relationship: %w", err)
	}
	return r, true, nil
}

// UpsertRelationship creates the edge (from, to, type) or updates it in place.
//
// The edge key is (organization, from, to, type): repeating a call never creates a second
// edge. On update, nil optional inputs keep their stored values.
func (s *Store) UpsertRelationship(ctx context.Context, scope tenant.Scope, in record.RelationshipInput) (record.Relationship, error) {
	if err := tenant.Require(scope); err != nil {
		return record.Relationship{}, err
	}
	if err := record.Validate(in); err != nil {
		return record.Relationship{}, err
	}

	var out record.Relationship
	err := s.withTx(ctx, "upsert relationship", func(tx *sql.Tx) error {
		var err error
		out, err = s.upsertRelationship(ctx, tx, scope, in)
		return err
	})
	if err != nil {
		return record.Relationship{}, err
	}
	return out, nil
}

func (s *Store) upsertRelationship(ctx context.Context, q dbtx, scope tenant.Scope, in record.RelationshipInput) (record.Relationship, error) {
	if in.FromEntityID == "" {
		return record.Relationship{}, apperr.Invalid("from_entity_id", "from_entity_id is required")
	}
	if in.FromEntityID == in.ToEntityID {
		return record.Relationship{}, apperr.Invalid("to_entity_id", "relationship cannot connect an entity to itself")
	}
	if err := checkEndpoint(ctx, q, scope, "from_entity_id", in.FromEntityID); err != nil {
		return record.Relationship{}, err
	}
	if err := checkEndpoint(ctx, q, scope, "to_entity_id", in.ToEntityID); err != nil {
		return record.Relationship{}, err
	}
	data, err := jsonText("relationship_data", in.Data)
	if err != nil {
		return record.Relationship{}, err
	}

	now := s.now()
	actor := scope.ActorOr(systemActor)

	existing, found, err := findEdge(ctx, q, scope.OrganizationID, in.FromEntityID, in.ToEntityID, in.RelationshipType)
	if err != nil {
		return record.Relationship{}, err
	}
	if !found {
		r := record.Relationship{
			ID:               s.ids.Generate(),
			OrganizationID:   scope.OrganizationID,
			FromEntityID:     in.FromEntityID,
			ToEntityID:       in.ToEntityID,
			RelationshipType: in.RelationshipType,
			Direction:        record.DirectionForward,
			Strength:         1,
			Data:             rawJSON(data),
			SmartCode:        in.SmartCode,
			IsActive:         true,
			EffectiveDate:    in.EffectiveDate,
			ExpirationDate:   in.ExpirationDate,
			Version:          1,
			CreatedAt:        now,
			UpdatedAt:        now,
			CreatedBy:        actor,
			UpdatedBy:        actor,
		}
		if in.Direction != "" {
			r.Direction = in.Direction
		}
		if in.Strength != nil {
			r.Strength = *in.Strength
		}
		if in.IsActive != nil {
			r.IsActive = *in.IsActive
		}

		_, err := q.ExecContext(ctx, `
			INSERT INTO relationships
			(id, organization_id, from_entity_id, to_entity_id, relationship_type, direction, strength,
			 relationship_data, smart_code, is_active, effective_date, expiration_date,
			 version, created_at, updated_at, created_by, updated_by)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			r.ID, r.OrganizationID, r.FromEntityID, r.ToEntityID, r.RelationshipType, r.Direction,
			r.Strength, data, r.SmartCode, boolInt(r.IsActive), nullTime(r.EffectiveDate),
			nullTime(r.ExpirationDate), r.Version, formatTime(now), formatTime(now), actor, actor,
		)
		if err == nil {
			return r, nil
		}
		if !s.dialect.isUniqueViolation(err) {
			return record.Relationship{}, fmt.Errorf("insert relationship: %w", err)
		}
		// A concurrent writer created the edge first; update it instead.
		existing, found, err = findEdge(ctx, q, scope.OrganizationID, in.FromEntityID, in.ToEntityID, in.RelationshipType)
		if err != nil {
			return record.Relationship{}, err
		}
		if !found {
			return record.Relationship{}, apperr.Conflict("relationship changed concurrently")
		}
	}

	r := existing
	r.SmartCode = in.SmartCode
	if in.Direction != "" {
		r.Direction = in.Direction
	}
	if in.Strength != nil {
		r.Strength = *in.Strength
	}
	if data.Valid {
		r.Data = rawJSON(data)
	}
	if in.IsActive != nil {
		r.IsActive = *in.IsActive
	}
	if in.EffectiveDate != nil {
		r.EffectiveDate = in.EffectiveDate
	}
	if in.ExpirationDate != nil {
		r.ExpirationDate = in.ExpirationDate
	}
	r.Version = existing.Version + 1
	r.UpdatedAt = now
	r.UpdatedBy = actor

	stored, err := jsonText("relationship_data", r.Data)
	if err != nil {
		return record.Relationship{}, err
	}
	_, err = q.ExecContext(ctx, `
		UPDATE relationships
		SET direction = ?, strength = ?, relationship_data = ?, smart_code = ?, is_active = ?,
		    effective_date = ?, expiration_date = ?, version = ?, updated_at = ?, updated_by = ?
		WHERE id = ? AND organization_id = ?
	`,
		r.Direction, r.Strength, stored, r.SmartCode, boolInt(r.IsActive),
		nullTime(r.EffectiveDate), nullTime(r.ExpirationDate), r.Version, formatTime(now), actor,
		r.ID, r.OrganizationID,
	)
	if err != nil {
		return record.Relationship{}, fmt.Errorf("update relationship: %w", err)
	}
	return r, nil
}

func checkEndpoint(ctx context.Context, q dbtx, scope tenant.Scope, field, id string) error {
	_, err := loadEntity(ctx, q, scope, id)
	var ae *apperr.Error
	if errors.As(err, &ae) {
		ae.WithField(field)
	}
	return err
}

// GetRelationship returns one edge by id.
func (s *Store) GetRelationship(ctx context.Context, scope tenant.Scope, id string) (record.Relationship, error) {
	if err := tenant.Require(scope); err != nil {
		return record.Relationship{}, err
	}
	return loadRelationship(ctx, s.db, scope, id)
}

// QueryRelationships returns the edges touching an endpoint, ordered by created_at, id.
//
// Direction is significant: an edge A→B is not returned by a from=B query. Every stored
// edge matching the filter is returned; the store never picks one of several candidates.
func (s *Store) QueryRelationships(ctx context.Context, scope tenant.Scope, rq record.RelationshipQuery) ([]record.Relationship, error) {
	if err := tenant.Require(scope); err != nil {
		return nil, err
	}
	if err := record.Validate(rq); err != nil {
		return nil, err
	}
	if rq.FromEntityID == "" && rq.ToEntityID == "" && rq.EntityID == "" {
		return nil, apperr.Invalid("from_entity_id", "one of from_entity_id, to_entity_id or entity_id is required")
	}
	if err := checkPattern(rq.SmartCode); err != nil {
		return nil, err
	}
	endpoints := []struct{ field, id string }{
		{"from_entity_id", rq.FromEntityID},
		{"to_entity_id", rq.ToEntityID},
		{"entity_id", rq.EntityID},
	}
	for _, ep := range endpoints {
		if ep.id == "" {
			continue
		}
		if err := checkForeignEntities(ctx, s.db, scope, ep.field, ep.id); err != nil {
			return nil, err
		}
	}

	w := &where{}
	w.add("organization_id = ?", scope.OrganizationID)
	if rq.FromEntityID != "" {
		w.add("from_entity_id = ?", rq.FromEntityID)
	}
	if rq.ToEntityID != "" {
		w.add("to_entity_id = ?", rq.ToEntityID)
	}
	if rq.EntityID != "" {
		w.add("(from_entity_id = ? OR to_entity_id = ?)", rq.EntityID, rq.EntityID)
	}
	w.in("relationship_type", rq.Types)
	if rq.ActiveOnly {
		w.add("is_active = 1")
	}

	limit, offset := s.page(rq.Limit, rq.Offset)
	query := `SELECT ` + relationshipColumns + ` FROM relationships` + w.String() + ` ORDER BY created_at ASC, id ASC`
	args := w.args
	if rq.SmartCode == "" {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	defer rows.Close()

	rels := []record.Relationship{}
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		rels = append(rels, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate relationships: %w", err)
	}

	if rq.SmartCode != "" {
		rels = matchCode(rels, rq.SmartCode, func(r record.Relationship) string { return r.SmartCode })
		rels = window(rels, limit, offset)
	}
	return rels, nil
}

// DeactivateRelationship soft-removes an edge by clearing is_active.
// Deactivating an inactive edge is a no-op.
func (s *Store) DeactivateRelationship(ctx context.Context, scope tenant.Scope, id string) (record.Relationship, error) {
	if err := tenant.Require(scope); err != nil {
		return record.Relationship{}, err
	}

	var out record.Relationship
	err := s.withTx(ctx, "deactivate relationship", func(tx *sql.Tx) error {
		r, err := loadRelationship(ctx, tx, scope, id)
		if err != nil {
			return err
		}
		if !r.IsActive {
			out = r
			return nil
		}
		now := s.now()
		actor := scope.ActorOr(systemActor)
		_, err = tx.ExecContext(ctx, `
			UPDATE relationships SET is_active = 0, version = version + 1, updated_at = ?, updated_by = ?
			WHERE id = ? AND organization_id = ?
		`, formatTime(now), actor, id, scope.OrganizationID)
		if err != nil {
			return fmt.Errorf("deactivate relationship: %w", err)
		}
		r.IsActive = false
		r.Version++
		r.UpdatedAt = now
		r.UpdatedBy = actor
		out = r
		return nil
	})
	if err != nil {
		return record.Relationship{}, err
	}
	return out, nil
}

// DeleteRelationship hard-deletes an edge.
func (s *Store) DeleteRelationship(ctx context.Context, scope tenant.Scope, id string) error {
	if err := tenant.Require(scope); err != nil {
		return err
	}
	return s.withTx(ctx, "delete relationship", func(tx *sql.Tx) error {
		if _, err := loadRelationship(ctx, tx, scope, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM relationships WHERE id = ? AND organization_id = ?`,
			id, scope.OrganizationID); err != nil {
			return fmt.Errorf("delete relationship: %w", err)
		}
		return nil
	})
}
