package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recordstore/internal/store"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Action: "entity.upsert", Org: "org-a", Case: CaseOK},
		{Seq: 2, Action: "dynamic_field.set", Org: "org-a", Case: CaseOK},
		{Seq: 3, Action: "dynamic_field.set", Org: "org-a", Case: "TypeMismatch", Field: "price"},
		{Seq: 4, Action: "entity.get", Org: "org-b", Case: "TenantMismatch", Field: "organization_id"},
	}
}

func TestAssertTraceContains(t *testing.T) {
	tests := []struct {
		name   string
		action string
		kase   string
		ok     bool
	}{
		{"action only", "entity.get", "", true},
		{"action and case", "dynamic_field.set", "TypeMismatch", true},
		{"case differs", "entity.upsert", "Conflict", false},
		{"missing action", "transaction.emit", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceContains(sampleTrace(), Assertion{
				Type:   AssertTraceContains,
				Action: tt.action,
				Case:   tt.kase,
			})
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var assertErr *AssertionError
			require.ErrorAs(t, err, &assertErr)
			assert.Equal(t, AssertTraceContains, assertErr.Type)
			assert.Contains(t, assertErr.Expected, tt.action)
		})
	}
}

func TestAssertTraceOrder(t *testing.T) {
	tests := []struct {
		name    string
		actions []string
		ok      bool
	}{
		{"consecutive", []string{"entity.upsert", "dynamic_field.set"}, true},
		{"intervening actions allowed", []string{"entity.upsert", "entity.get"}, true},
		{"repeated action advances", []string{"dynamic_field.set", "dynamic_field.set", "entity.get"}, true},
		{"wrong order", []string{"entity.get", "entity.upsert"}, false},
		{"repeated too often", []string{"dynamic_field.set", "dynamic_field.set", "dynamic_field.set"}, false},
		{"missing action", []string{"entity.upsert", "entity.delete"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceOrder(sampleTrace(), Assertion{Type: AssertTraceOrder, Actions: tt.actions})
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestAssertTraceCount(t *testing.T) {
	assert.NoError(t, assertTraceCount(sampleTrace(), Assertion{Action: "dynamic_field.set", Count: 2}))
	assert.NoError(t, assertTraceCount(sampleTrace(), Assertion{Action: "transaction.emit", Count: 0}))

	err := assertTraceCount(sampleTrace(), Assertion{Type: AssertTraceCount, Action: "entity.get", Count: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 occurrences of entity.get")
	assert.Contains(t, err.Error(), "1 occurrences")
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceContains,
		Expected: "action entity.delete",
		Actual:   "not found in trace",
		Trace:    sampleTrace()[:1],
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_contains")
	assert.Contains(t, msg, "Expected: action entity.delete")
	assert.Contains(t, msg, "Actual: not found in trace")
	assert.Contains(t, msg, "[1] org-a entity.upsert -> ok")
}

func TestBuildWhereClause(t *testing.T) {
	sql, args, err := buildWhereClause(nil)
	require.NoError(t, err)
	assert.Empty(t, sql)
	assert.Nil(t, args)

	sql, args, err = buildWhereClause(map[string]any{
		"organization_id":  "org-a",
		"field_name":       "price",
		"field_value_text": nil,
		"line_number":      json.Number("3"),
	})
	require.NoError(t, err)
	assert.Equal(t, "field_name = ? AND field_value_text IS NULL AND line_number = ? AND organization_id = ?", sql)
	assert.Equal(t, []any{"price", "3", "org-a"}, args)
}

func TestBuildWhereClause_InvalidColumnName(t *testing.T) {
	for _, column := range []string{"id; DROP TABLE entities", "1abc", "a-b", ""} {
		t.Run(column, func(t *testing.T) {
			_, _, err := buildWhereClause(map[string]any{column: "x"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid column name")
		})
	}
}

func TestToSQLValue(t *testing.T) {
	assert.Equal(t, "text", toSQLValue("text"))
	assert.Equal(t, 5, toSQLValue(5))
	assert.Equal(t, int64(5), toSQLValue(int64(5)))
	assert.Equal(t, true, toSQLValue(true))
	assert.Equal(t, "18.5", toSQLValue(json.Number("18.5")))
	assert.Equal(t, "18.5", toSQLValue(18.5))
}

func TestFormatWhereClause(t *testing.T) {
	assert.Equal(t, "(no conditions)", formatWhereClause(nil))
	assert.Equal(t, "a=1 AND b=x", formatWhereClause(map[string]any{"b": "x", "a": 1}))
}

func TestScalarEqual(t *testing.T) {
	tests := []struct {
		name     string
		actual   any
		expected any
		want     bool
	}{
		{"strings", "draft", "draft", true},
		{"strings differ", "draft", "posted", false},
		{"bytes as string", []byte("org-a"), "org-a", true},
		{"decimal text and int", "65.00", 65, true},
		{"negative decimal text", "-60", -60, true},
		{"json number and int", json.Number("105"), 105, true},
		{"float and json number", 18.5, json.Number("18.50"), true},
		{"numbers differ", int64(4), 5, false},
		{"numeric strings compare as strings", "1.0", "1", false},
		{"sqlite true", int64(1), true, true},
		{"sqlite false", int64(0), false, true},
		{"bool mismatch", int64(0), true, false},
		{"bool against text", "true", true, false},
		{"both nil", nil, nil, true},
		{"nil actual", nil, "x", false},
		{"nil expected", "x", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scalarEqual(tt.actual, tt.expected))
		})
	}
}

func TestMatchSubset(t *testing.T) {
	actual := map[string]any{
		"transaction": map[string]any{
			"id":           "id-0001",
			"status":       "draft",
			"total_amount": json.Number("105"),
		},
		"lines": []any{
			map[string]any{"line_number": json.Number("1"), "line_type": "SERVICE"},
			map[string]any{"line_number": json.Number("2"), "line_type": "PAYMENT"},
		},
		"replayed": false,
	}

	tests := []struct {
		name     string
		expected any
		wantPath string
		ok       bool
	}{
		{"extra keys ignored", map[string]any{"replayed": false}, "", true},
		{"nested", map[string]any{"transaction": map[string]any{"status": "draft", "total_amount": 105}}, "", true},
		{"slice elements", map[string]any{"lines": []any{
			map[string]any{"line_type": "SERVICE"},
			map[string]any{"line_number": 2},
		}}, "", true},
		{"missing key", map[string]any{"transaction": map[string]any{"voided_at": nil}}, ".transaction.voided_at", false},
		{"slice length", map[string]any{"lines": []any{map[string]any{}}}, ".lines", false},
		{"leaf mismatch", map[string]any{"transaction": map[string]any{"status": "posted"}}, ".transaction.status (expected posted, got draft)", false},
		{"slice leaf mismatch", map[string]any{"lines": []any{
			map[string]any{"line_type": "SERVICE"},
			map[string]any{"line_type": "TAX"},
		}}, ".lines[1].line_type (expected TAX, got PAYMENT)", false},
		{"type mismatch at root", []any{}, "(root)", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, ok := matchSubset(actual, tt.expected, "")
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

// Integration tests for assertFinalState with real database

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func createTestTable(t *testing.T, st *store.Store) {
	t.Helper()
	_, err := st.DB().Exec(`
		CREATE TABLE test_items (
			item_id TEXT PRIMARY KEY,
			quantity INTEGER,
			price TEXT,
			status TEXT,
			active INTEGER
		)
	`)
	require.NoError(t, err)
	_, err = st.DB().Exec(`INSERT INTO test_items (item_id, quantity, price, status, active) VALUES
		('widget', 10, '18.50', 'available', 1),
		('gadget', 0, NULL, 'archived', 0),
		('gizmo', 10, '3', 'available', 1)`)
	require.NoError(t, err)
}

func TestAssertFinalState(t *testing.T) {
	st := setupTestStore(t)
	createTestTable(t, st)
	ctx := context.Background()

	tests := []struct {
		name      string
		where     map[string]any
		expect    map[string]any
		wantError string
	}{
		{"row matches", map[string]any{"item_id": "widget"},
			map[string]any{"quantity": 10, "price": 18.5, "status": "available", "active": true}, ""},
		{"null column", map[string]any{"item_id": "gadget"},
			map[string]any{"price": nil, "active": false}, ""},
		{"match on null", map[string]any{"price": nil},
			map[string]any{"item_id": "gadget"}, ""},
		{"multiple conditions", map[string]any{"status": "available", "quantity": 10, "price": "3"},
			map[string]any{"item_id": "gizmo"}, ""},
		{"row not found", map[string]any{"item_id": "sprocket"},
			map[string]any{"quantity": 1}, "row not found"},
		{"ambiguous", map[string]any{"status": "available"},
			map[string]any{"quantity": 10}, "2 rows matched"},
		{"value mismatch", map[string]any{"item_id": "widget"},
			map[string]any{"quantity": 11}, `field "quantity" = 11`},
		{"missing column", map[string]any{"item_id": "widget"},
			map[string]any{"colour": "red"}, `field "colour" not present`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertFinalState(ctx, st, Assertion{
				Type:   AssertFinalState,
				Table:  "test_items",
				Where:  tt.where,
				Expect: tt.expect,
			})
			if tt.wantError == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantError)
		})
	}
}

func TestAssertFinalState_InvalidTableName(t *testing.T) {
	st := setupTestStore(t)

	err := assertFinalState(context.Background(), st, Assertion{
		Type:   AssertFinalState,
		Table:  "entities; DROP TABLE entities",
		Expect: map[string]any{"id": "x"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table name")
}

func TestAssertFinalState_TableNotFound(t *testing.T) {
	st := setupTestStore(t)

	err := assertFinalState(context.Background(), st, Assertion{
		Type:   AssertFinalState,
		Table:  "no_such_table",
		Expect: map[string]any{"id": "x"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query error")
}

func TestAssertRowCount(t *testing.T) {
	st := setupTestStore(t)
	createTestTable(t, st)
	ctx := context.Background()

	assert.NoError(t, assertRowCount(ctx, st, Assertion{Table: "test_items", Count: 3}))
	assert.NoError(t, assertRowCount(ctx, st, Assertion{Table: "test_items", Where: map[string]any{"quantity": 10}, Count: 2}))
	assert.NoError(t, assertRowCount(ctx, st, Assertion{Table: "test_items", Where: map[string]any{"status": "deleted"}, Count: 0}))

	err := assertRowCount(ctx, st, Assertion{Type: AssertRowCount, Table: "test_items", Where: map[string]any{"active": 1}, Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 rows")
}

func TestEvaluateAssertions(t *testing.T) {
	st := setupTestStore(t)
	createTestTable(t, st)
	result := &Result{Trace: sampleTrace()}

	actx := &AssertionContext{
		Store:    st,
		Ctx:      context.Background(),
		Bindings: bindings{"item": map[string]any{"id": "widget", "price": json.Number("18.5")}},
	}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceContains, Action: "entity.upsert"},
		{Type: AssertTraceCount, Action: "dynamic_field.set", Count: 2},
		{Type: AssertFinalState, Table: "test_items",
			Where:  map[string]any{"item_id": "${item.id}"},
			Expect: map[string]any{"price": "${item.price}"}},
		{Type: AssertRowCount, Table: "test_items", Where: map[string]any{"item_id": "${item.id}"}, Count: 1},
	}, actx)
	assert.Empty(t, errs)

	errs = EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceContains, Action: "transaction.emit"},
		{Type: AssertRowCount, Table: "test_items", Where: map[string]any{"item_id": "${missing.id}"}},
		{Type: "vibes"},
	}, actx)
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "transaction.emit")
	assert.Contains(t, errs[1], `unknown template label "missing"`)
	assert.Contains(t, errs[2], "unknown assertion type")
}

func TestEvaluateAssertions_StateWithoutContext(t *testing.T) {
	errs := EvaluateAssertions(&Result{}, []Assertion{
		{Type: AssertRowCount, Table: "entities"},
	}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "requires database context")
}
