package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recordstore/internal/logging"
	"github.com/roach88/recordstore/internal/record"
	"github.com/roach88/recordstore/internal/tenant"
	"github.com/roach88/recordstore/internal/testutil"
)

var recordTables = []string{
	"organizations", "entities", "dynamic_fields", "relationships", "transactions", "transaction_lines",
}

var (
	orgA = tenant.NewScope("org-a", "user-1")
	orgB = tenant.NewScope("org-b", "user-2")
)

// createTestStore creates a file-backed store with a step clock and sequential ids.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenWithOptions(path, Options{
		Clock:  testutil.NewStepClock(),
		IDs:    testutil.NewSequentialIDs("id"),
		Logger: logging.Discard(),
	})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mustEntity creates an entity of the given type and name under scope.
func mustEntity(t *testing.T, s *Store, scope tenant.Scope, entityType, name string) record.Entity {
	t.Helper()
	e, err := s.UpsertEntity(context.Background(), scope, record.Entity{
		EntityType: entityType,
		EntityName: name,
		SmartCode:  "HERA.TEST." + strings.ToUpper(entityType) + ".ENTITY.v1",
	})
	require.NoError(t, err)
	return e
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// posTicket is a balanced point-of-sale emission: service 100, tax 5, payments 60 and 45.
func posTicket(ref string) record.Emission {
	return record.Emission{
		Transaction: record.Transaction{
			TransactionType:   "sale",
			SmartCode:         "HERA.SALON.POS.SALE.v1",
			TotalAmount:       dec("105"),
			ExternalReference: ref,
		},
		Lines: []record.Line{
			{LineType: "SERVICE", LineAmount: dec("100")},
			{LineType: "TAX", LineAmount: dec("5")},
			{LineType: "PAYMENT", LineAmount: dec("60")},
			{LineType: "PAYMENT", LineAmount: dec("45")},
		},
	}
}

func insertRawEntity(t *testing.T, db *sql.DB, id, org string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO entities (id, organization_id, entity_type, entity_name, smart_code,
		created_at, updated_at) VALUES (?, ?, 'thing', 'Thing', 'HERA.TEST.THING.ENTITY.v1', 'x', 'x')`, id, org)
	if err != nil {
		t.Fatalf("insert raw entity: %v", err)
	}
}

func verifyPragma(db *sql.DB, name, want string) error {
	var got string
	if err := db.QueryRow("PRAGMA " + name).Scan(&got); err != nil {
		return fmt.Errorf("PRAGMA %s: %w", name, err)
	}
	if got != want {
		return fmt.Errorf("PRAGMA %s = %q, want %q", name, got, want)
	}
	return nil
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
