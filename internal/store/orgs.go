package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/roach88/recordstore/internal/apperr"
	"github.com/roach88/recordstore/internal/record"
	"github.com/roach88/recordstore/internal/tenant"
)

const organizationColumns = `id, name, code, org_type, status, settings, smart_code,
	version, created_at, updated_at, created_by, updated_by`

func scanOrganization(row rowScanner) (record.Organization, error) {
	var (
		o                    record.Organization
		status               string
		settings             sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&o.ID, &o.Name, &o.Code, &o.Type, &status, &settings, &o.SmartCode,
		&o.Version, &createdAt, &updatedAt, &o.CreatedBy, &o.UpdatedBy)
	if err != nil {
		return record.Organization{}, err
	}
	o.Status = record.Status(status)
	o.Settings = rawJSON(settings)
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return record.Organization{}, err
	}
	if o.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return record.Organization{}, err
	}
	return o, nil
}

func loadOrganization(ctx context.Context, q dbtx, id string) (record.Organization, error) {
	row := q.QueryRowContext(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE id = ?`, id)
	o, err := scanOrganization(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Organization{}, apperr.NotFound("organization", id)
	}
	if err != nil {
		return record.Organization{}, fmt.Errorf("load organization %s: %w", id, err)
	}
	return o, nil
}

// UpsertOrganization creates the scope's organization or updates it.
//
// The organization id must equal the scope organization and defaults to it. Updates are
// optimistically locked: org.Version must equal the stored version, else Conflict.
func (s *Store) UpsertOrganization(ctx context.Context, scope tenant.Scope, org record.Organization) (record.Organization, error) {
	if err := tenant.Check(scope, "organization", org.ID); err != nil {
		return record.Organization{}, err
	}
	org.ID = tenant.Stamp(scope, org.ID)
	if err := record.Validate(org); err != nil {
		return record.Organization{}, err
	}
	settings, err := jsonText("settings", org.Settings)
	if err != nil {
		return record.Organization{}, err
	}

	var out record.Organization
	err = s.withTx(ctx, "upsert organization", func(tx *sql.Tx) error {
		now := s.now()
		actor := scope.ActorOr(systemActor)

		existing, err := loadOrganization(ctx, tx, org.ID)
		if apperr.KindOf(err) == apperr.KindNotFound {
			org.Version = 1
			if org.Status == "" {
				org.Status = record.StatusActive
			}
			org.Settings = rawJSON(settings)
			org.CreatedAt, org.UpdatedAt = now, now
			org.CreatedBy, org.UpdatedBy = actor, actor
			_, err := tx.ExecContext(ctx, `
				INSERT INTO organizations
				(id, name, code, org_type, status, settings, smart_code,
				 version, created_at, updated_at, created_by, updated_by)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				org.ID, org.Name, org.Code, org.Type, string(org.Status), settings, org.SmartCode,
				org.Version, formatTime(now), formatTime(now), actor, actor,
			)
			if err != nil {
				if s.dialect.isUniqueViolation(err) {
					return apperr.Conflict("organization was created concurrently").WithField("version")
				}
				return fmt.Errorf("insert organization: %w", err)
			}
			out = org
			return nil
		}
		if err != nil {
			return err
		}

		if org.Version != existing.Version {
			return versionConflict(existing.Version, org.Version)
		}

		merged := existing
		merged.Name = org.Name
		merged.SmartCode = org.SmartCode
		if org.Code != "" {
			merged.Code = org.Code
		}
		if org.Type != "" {
			merged.Type = org.Type
		}
		if org.Status != "" {
			merged.Status = org.Status
		}
		if settings.Valid {
			merged.Settings = rawJSON(settings)
		}
		merged.Version = existing.Version + 1
		merged.UpdatedAt = now
		merged.UpdatedBy = actor

		stored, err := jsonText("settings", merged.Settings)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE organizations
			SET name = ?, code = ?, org_type = ?, status = ?, settings = ?, smart_code = ?,
			    version = ?, updated_at = ?, updated_by = ?
			WHERE id = ? AND version = ?
		`,
			merged.Name, merged.Code, merged.Type, string(merged.Status), stored, merged.SmartCode,
			merged.Version, formatTime(now), actor, merged.ID, existing.Version,
		)
		if err != nil {
			return fmt.Errorf("update organization: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("update organization: %w", err)
		} else if n == 0 {
			return versionConflict(existing.Version, org.Version)
		}
		out = merged
		return nil
	})
	if err != nil {
		return record.Organization{}, err
	}
	return out, nil
}

func versionConflict(expected, actual int64) error {
	return apperr.Conflict("organization version does not match the stored version").
		WithField("version").
		WithDetail("expected", strconv.FormatInt(expected, 10)).
		WithDetail("actual", strconv.FormatInt(actual, 10))
}

// GetOrganization returns the scope's organization.
func (s *Store) GetOrganization(ctx context.Context, scope tenant.Scope) (record.Organization, error) {
	if err := tenant.Require(scope); err != nil {
		return record.Organization{}, err
	}
	return loadOrganization(ctx, s.db, scope.OrganizationID)
}

// ArchiveOrganization sets the scope's organization status to archived. It does not take
// part in optimistic locking. Archiving twice is a no-op.
func (s *Store) ArchiveOrganization(ctx context.Context, scope tenant.Scope) (record.Organization, error) {
	if err := tenant.Require(scope); err != nil {
		return record.Organization{}, err
	}

	var out record.Organization
	err := s.withTx(ctx, "archive organization", func(tx *sql.Tx) error {
		o, err := loadOrganization(ctx, tx, scope.OrganizationID)
		if err != nil {
			return err
		}
		if o.Status == record.StatusArchived {
			out = o
			return nil
		}
		now := s.now()
		actor := scope.ActorOr(systemActor)
		_, err = tx.ExecContext(ctx, `
			UPDATE organizations SET status = ?, version = version + 1, updated_at = ?, updated_by = ?
			WHERE id = ?
		`, string(record.StatusArchived), formatTime(now), actor, o.ID)
		if err != nil {
			return fmt.Errorf("archive organization: %w", err)
		}
		o.Status = record.StatusArchived
		o.Version++
		o.UpdatedAt = now
		o.UpdatedBy = actor
		out = o
		return nil
	})
	if err != nil {
		return record.Organization{}, err
	}
	return out, nil
}
