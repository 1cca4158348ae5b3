package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/recordstore/internal/apperr"
	"github.com/roach88/recordstore/internal/smartcode"
	"github.com/roach88/recordstore/internal/tenant"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// where accumulates AND-ed predicates with their arguments.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *where) in(column string, values []string) {
	if len(values) == 0 {
		return
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	w.add(column+" IN ("+placeholders(len(values))+")", args...)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// checkPattern rejects a malformed smart-code glob filter.
func checkPattern(pattern string) error {
	if pattern == "" || smartcode.ValidPattern(pattern) {
		return nil
	}
	return apperr.Invalid("smart_code", "smart_code filter is not a valid pattern").WithDetail("pattern", pattern)
}

// checkForeignEntities rejects a read filter naming an entity that lives under another
// organization. Ids that do not exist anywhere just match nothing.
func checkForeignEntities(ctx context.Context, q dbtx, scope tenant.Scope, field string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, scope.OrganizationID)

	var id, org string
	err := q.QueryRowContext(ctx,
		`SELECT id, organization_id FROM entities WHERE id IN (`+placeholders(len(ids))+`) AND organization_id <> ? ORDER BY id LIMIT 1`,
		args...).Scan(&id, &org)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check entity owners: %w", err)
	}
	return apperr.TenantMismatch("entity", id, scope.OrganizationID, org).WithField(field)
}

// window slices items by offset and limit.
func window[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

// matchCode keeps the items whose smart code matches pattern.
func matchCode[T any](items []T, pattern string, code func(T) string) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if smartcode.Match(pattern, code(it)) {
			out = append(out, it)
		}
	}
	return out
}
