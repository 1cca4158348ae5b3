// Package store provides relational storage for the generic record model.
//
// Six tables hold every vertical's data:
//   - organizations: tenant boundaries, optimistically locked by version
//   - entities: named objects typed by a free-form entity_type
//   - dynamic_fields: typed attributes, one row per (entity, field_name)
//   - relationships: directed edges, unique per (organization, from, to, type)
//   - transactions and transaction_lines: business events and their items
//
// # Invariants
//
// Tenant scope: every exported method takes a tenant.Scope. A record addressed by id under
// another organization fails TenantMismatch, never NotFound, so ownership is not guessable.
//
// Atomic writes: bundles, field batches, emits and reversals each run in one database/sql
// transaction. Nothing partial is observable.
//
// Idempotent emit: (organization_id, external_reference) is unique. A repeated emit with
// the same payload fingerprint returns the stored transaction unchanged.
//
// Deterministic reads: every list query has an explicit ORDER BY with id as tiebreak.
// Timestamps are stored as fixed-width UTC text so lexical order is time order.
//
// # Database Configuration
//
// SQLite (default):
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// MySQL is supported through go-sql-driver/mysql with the same portable SQL.
// Decimal amounts are stored as text so no precision is lost on either backend.
package store
