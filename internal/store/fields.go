package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/recordstore/internal/apperr"
	"github.com/roach88/recordstore/internal/record"
	"github.com/roach88/recordstore/internal/tenant"
	"github.com/roach88/recordstore/internal/value"
)

const fieldColumns = `id, organization_id, entity_id, field_name, field_type,
	field_value_text, field_value_number, field_value_boolean, field_value_date, field_value_json,
	smart_code, created_at, updated_at, created_by, updated_by`

// fieldColumnValues maps a value onto the five typed columns. Exactly one is non-NULL.
type fieldColumnValues struct {
	text, number, date, json sql.NullString
	boolean                  sql.NullInt64
}

func columnsFor(v value.Value) fieldColumnValues {
	var c fieldColumnValues
	switch tv := v.(type) {
	case value.Text:
		c.text = sql.NullString{String: string(tv), Valid: true}
	case value.Number:
		c.number = sql.NullString{String: decimalText(tv.Decimal), Valid: true}
	case value.Bool:
		c.boolean = sql.NullInt64{Int64: int64(boolInt(bool(tv))), Valid: true}
	case value.Date:
		c.date = sql.NullString{String: formatTime(tv.Time), Valid: true}
	case value.JSON:
		c.json = sql.NullString{String: string(tv), Valid: true}
	}
	return c
}

// resolve returns the one logical value a row stores for its declared type.
func (c fieldColumnValues) resolve(declared value.FieldType) (value.Value, error) {
	switch declared {
	case value.TypeText:
		return value.Text(c.text.String), nil
	case value.TypeNumber:
		d, err := parseDecimal("field_value_number", c.number.String)
		if err != nil {
			return nil, err
		}
		return value.Number{Decimal: d}, nil
	case value.TypeBoolean:
		return value.Bool(c.boolean.Int64 != 0), nil
	case value.TypeDate:
		t, err := parseTime(c.date.String)
		if err != nil {
			return nil, err
		}
		return value.Date{Time: t}, nil
	case value.TypeJSON:
		return value.JSON(c.json.String), nil
	default:
		return nil, fmt.Errorf("unknown stored field type %q", declared)
	}
}

func scanField(row rowScanner) (record.DynamicField, error) {
	var (
		f                    record.DynamicField
		fieldType            string
		cols                 fieldColumnValues
		createdAt, updatedAt string
	)
	err := row.Scan(&f.ID, &f.OrganizationID, &f.EntityID, &f.Name, &fieldType,
		&cols.text, &cols.number, &cols.boolean, &cols.date, &cols.json,
		&f.SmartCode, &createdAt, &updatedAt, &f.CreatedBy, &f.UpdatedBy)
	if err != nil {
		return record.DynamicField{}, err
	}
	f.Type = value.FieldType(fieldType)
	if f.Value, err = cols.resolve(f.Type); err != nil {
		return record.DynamicField{}, err
	}
	if f.CreatedAt, err = parseTime(createdAt); err != nil {
		return record.DynamicField{}, err
	}
	if f.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return record.DynamicField{}, err
	}
	return f, nil
}

// coerceFields validates inputs and converts raw values to their declared types.
// Everything is checked before any row is touched.
func coerceFields(ins []record.FieldInput) ([]record.DynamicField, error) {
	seen := make(map[string]bool, len(ins))
	out := make([]record.DynamicField, 0, len(ins))
	for i, in := range ins {
		if err := record.Validate(in); err != nil {
			return nil, withIndex(err, "dynamic_fields", i)
		}
		if seen[in.Name] {
			return nil, apperr.Conflict(fmt.Sprintf("field %q appears more than once", in.Name)).
				WithField(fmt.Sprintf("dynamic_fields[%d].field_name", i))
		}
		seen[in.Name] = true

		v, err := value.Coerce(in.Name, in.Type, in.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, record.DynamicField{
			Name:      in.Name,
			Type:      in.Type,
			Value:     v,
			SmartCode: in.SmartCode,
		})
	}
	return out, nil
}

// withIndex prefixes a validation error's field with list[i].
func withIndex(err error, list string, i int) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		if ae.Field == "" {
			ae.WithField(fmt.Sprintf("%s[%d]", list, i))
		} else {
			ae.WithField(fmt.Sprintf("%s[%d].%s", list, i, ae.Field))
		}
	}
	return err
}

// SetField writes one dynamic field, replacing any prior value under the same name.
// A value disagreeing with the declared type fails TypeMismatch and the stored value is kept.
func (s *Store) SetField(ctx context.Context, scope tenant.Scope, entityID string, in record.FieldInput) (record.FieldResult, error) {
	if err := tenant.Require(scope); err != nil {
		return record.FieldResult{}, err
	}
	if err := record.Validate(in); err != nil {
		return record.FieldResult{}, err
	}
	v, err := value.Coerce(in.Name, in.Type, in.Value)
	if err != nil {
		return record.FieldResult{}, err
	}
	field := record.DynamicField{Name: in.Name, Type: in.Type, Value: v, SmartCode: in.SmartCode}

	var out record.FieldResult
	err = s.withTx(ctx, "set field", func(tx *sql.Tx) error {
		stored, err := s.setFields(ctx, tx, scope, entityID, []record.DynamicField{field})
		if err != nil {
			return err
		}
		out = stored[0].Result()
		return nil
	})
	if err != nil {
		return record.FieldResult{}, err
	}
	return out, nil
}

// SetFields writes a batch of dynamic fields in one database transaction.
// Either every field is stored or none is.
func (s *Store) SetFields(ctx context.Context, scope tenant.Scope, entityID string, ins []record.FieldInput) (map[string]record.FieldResult, error) {
	if err := tenant.Require(scope); err != nil {
		return nil, err
	}
	if len(ins) == 0 {
		return nil, apperr.Invalid("dynamic_fields", "at least one field is required")
	}
	fields, err := coerceFields(ins)
	if err != nil {
		return nil, err
	}

	out := make(map[string]record.FieldResult, len(fields))
	err = s.withTx(ctx, "set fields", func(tx *sql.Tx) error {
		stored, err := s.setFields(ctx, tx, scope, entityID, fields)
		if err != nil {
			return err
		}
		for _, f := range stored {
			out[f.Name] = f.Result()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) setFields(ctx context.Context, q dbtx, scope tenant.Scope, entityID string, fields []record.DynamicField) ([]record.DynamicField, error) {
	if _, err := loadEntity(ctx, q, scope, entityID); err != nil {
		return nil, err
	}

	now := s.now()
	actor := scope.ActorOr(systemActor)
	out := make([]record.DynamicField, 0, len(fields))
	for _, f := range fields {
		f.OrganizationID = scope.OrganizationID
		f.EntityID = entityID
		f.UpdatedAt = now
		f.UpdatedBy = actor

		stored, err := s.writeField(ctx, q, f)
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	return out, nil
}

// writeField updates the (entity_id, field_name) row in place or inserts it.
// An insert that loses a race on the unique key falls back to the update.
func (s *Store) writeField(ctx context.Context, q dbtx, f record.DynamicField) (record.DynamicField, error) {
	cols := columnsFor(f.Value)

	var id, createdAt, createdBy string
	err := q.QueryRowContext(ctx, `
		SELECT id, created_at, created_by FROM dynamic_fields WHERE entity_id = ? AND field_name = ?
	`, f.EntityID, f.Name).Scan(&id, &createdAt, &createdBy)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		f.ID = s.ids.Generate()
		f.CreatedAt, f.CreatedBy = f.UpdatedAt, f.UpdatedBy
		_, err = q.ExecContext(ctx, `
			INSERT INTO dynamic_fields
			(id, organization_id, entity_id, field_name, field_type,
			 field_value_text, field_value_number, field_value_boolean, field_value_date, field_value_json,
			 smart_code, created_at, updated_at, created_by, updated_by)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			f.ID, f.OrganizationID, f.EntityID, f.Name, string(f.Type),
			cols.text, cols.number, cols.boolean, cols.date, cols.json,
			f.SmartCode, formatTime(f.CreatedAt), formatTime(f.UpdatedAt), f.CreatedBy, f.UpdatedBy,
		)
		if err == nil {
			return f, nil
		}
		if !s.dialect.isUniqueViolation(err) {
			return record.DynamicField{}, fmt.Errorf("insert field %s: %w", f.Name, err)
		}
		f.ID, f.CreatedAt = "", time.Time{}
		return s.updateField(ctx, q, f, cols)
	case err != nil:
		return record.DynamicField{}, fmt.Errorf("load field %s: %w", f.Name, err)
	}

	f.ID = id
	f.CreatedBy = createdBy
	if f.CreatedAt, err = parseTime(createdAt); err != nil {
		return record.DynamicField{}, err
	}
	return s.updateField(ctx, q, f, cols)
}

func (s *Store) updateField(ctx context.Context, q dbtx, f record.DynamicField, cols fieldColumnValues) (record.DynamicField, error) {
	_, err := q.ExecContext(ctx, `
		UPDATE dynamic_fields
		SET field_type = ?, field_value_text = ?, field_value_number = ?, field_value_boolean = ?,
		    field_value_date = ?, field_value_json = ?, smart_code = ?, updated_at = ?, updated_by = ?
		WHERE entity_id = ? AND field_name = ?
	`,
		string(f.Type), cols.text, cols.number, cols.boolean, cols.date, cols.json,
		f.SmartCode, formatTime(f.UpdatedAt), f.UpdatedBy, f.EntityID, f.Name,
	)
	if err != nil {
		return record.DynamicField{}, fmt.Errorf("update field %s: %w", f.Name, err)
	}
	if f.ID == "" || f.CreatedAt.IsZero() {
		var createdAt string
		err := q.QueryRowContext(ctx, `
			SELECT id, created_at, created_by FROM dynamic_fields WHERE entity_id = ? AND field_name = ?
		`, f.EntityID, f.Name).Scan(&f.ID, &createdAt, &f.CreatedBy)
		if err != nil {
			return record.DynamicField{}, fmt.Errorf("reload field %s: %w", f.Name, err)
		}
		if f.CreatedAt, err = parseTime(createdAt); err != nil {
			return record.DynamicField{}, err
		}
	}
	return f, nil
}

// GetFields returns an entity's dynamic fields keyed by name, resolved to one logical value
// each. With names, only those fields are returned; unknown names are omitted.
func (s *Store) GetFields(ctx context.Context, scope tenant.Scope, entityID string, names []string) (map[string]record.FieldResult, error) {
	fields, err := s.ListFields(ctx, scope, entityID, names)
	if err != nil {
		return nil, err
	}
	out := make(map[string]record.FieldResult, len(fields))
	for _, f := range fields {
		out[f.Name] = f.Result()
	}
	return out, nil
}

// ListFields returns the full stored field rows ordered by field name.
func (s *Store) ListFields(ctx context.Context, scope tenant.Scope, entityID string, names []string) ([]record.DynamicField, error) {
	if err := tenant.Require(scope); err != nil {
		return nil, err
	}
	if _, err := loadEntity(ctx, s.db, scope, entityID); err != nil {
		return nil, err
	}

	w := &where{}
	w.add("organization_id = ?", scope.OrganizationID)
	w.add("entity_id = ?", entityID)
	w.in("field_name", names)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fieldColumns+` FROM dynamic_fields`+w.String()+` ORDER BY field_name ASC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query fields: %w", err)
	}
	defer rows.Close()

	fields := []record.DynamicField{}
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fields: %w", err)
	}
	return fields, nil
}

// DeleteFields removes the named fields from an entity and returns how many rows were deleted.
// Names that are not set are ignored.
func (s *Store) DeleteFields(ctx context.Context, scope tenant.Scope, entityID string, names []string) (int, error) {
	if err := tenant.Require(scope); err != nil {
		return 0, err
	}
	if len(names) == 0 {
		return 0, apperr.Invalid("field_names", "at least one field name is required")
	}

	var deleted int
	err := s.withTx(ctx, "delete fields", func(tx *sql.Tx) error {
		if _, err := loadEntity(ctx, tx, scope, entityID); err != nil {
			return err
		}
		w := &where{}
		w.add("organization_id = ?", scope.OrganizationID)
		w.add("entity_id = ?", entityID)
		w.in("field_name", names)
		res, err := tx.ExecContext(ctx, `DELETE FROM dynamic_fields`+w.String(), w.args...)
		if err != nil {
			return fmt.Errorf("delete fields: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete fields: %w", err)
		}
		deleted = int(n)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

