package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recordstore/internal/apperr"
	"github.com/roach88/recordstore/internal/record"
	"github.com/roach88/recordstore/internal/value"
)

func priceField(raw any) record.FieldInput {
	return record.FieldInput{
		Name:      "price",
		Type:      value.TypeNumber,
		Value:     raw,
		SmartCode: "HERA.SALON.SVC.PRICE.v1",
	}
}

// A service gets a numeric price and reads it back as one logical value.
func TestSetField_NumberRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	svc := mustEntity(t, s, orgA, "service", "Haircut")

	res, err := s.SetField(ctx, orgA, svc.ID, priceField(json.Number("65")))
	require.NoError(t, err)
	assert.Equal(t, value.TypeNumber, res.Type)
	assert.True(t, value.Equal(value.NewNumber(65), res.Value))

	fields, err := s.GetFields(ctx, orgA, svc.ID, []string{"price"})
	require.NoError(t, err)
	require.Contains(t, fields, "price")
	assert.True(t, value.Equal(value.NewNumber(65), fields["price"].Value))

	encoded, err := json.Marshal(fields["price"])
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"value":65`)

	// Only the number column is populated
	var text, boolean, date, doc any
	require.NoError(t, s.db.QueryRow(`
		SELECT field_value_text, field_value_boolean, field_value_date, field_value_json
		FROM dynamic_fields WHERE entity_id = ? AND field_name = 'price'
	`, svc.ID).Scan(&text, &boolean, &date, &doc))
	assert.Nil(t, text)
	assert.Nil(t, boolean)
	assert.Nil(t, date)
	assert.Nil(t, doc)
}

func TestSetField_TypeMismatchKeepsStoredValue(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	svc := mustEntity(t, s, orgA, "service", "Haircut")

	_, err := s.SetField(ctx, orgA, svc.ID, priceField(json.Number("150")))
	require.NoError(t, err)

	_, err = s.SetField(ctx, orgA, svc.ID, priceField("free"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindTypeMismatch, apperr.KindOf(err))
	assert.Equal(t, "price", apperr.As(err).Field)
	assert.Equal(t, "text", apperr.As(err).Details["actual"])

	fields, err := s.GetFields(ctx, orgA, svc.ID, nil)
	require.NoError(t, err)
	assert.True(t, value.Equal(value.NewNumber(150), fields["price"].Value))
}

func TestSetField_Replace(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	svc := mustEntity(t, s, orgA, "service", "Haircut")

	_, err := s.SetField(ctx, orgA, svc.ID, priceField(json.Number("65")))
	require.NoError(t, err)
	first, err := s.ListFields(ctx, orgA, svc.ID, nil)
	require.NoError(t, err)
	require.Len(t, first, 1)

	_, err = s.SetField(ctx, orgA, svc.ID, priceField(json.Number("70.50")))
	require.NoError(t, err)
	second, err := s.ListFields(ctx, orgA, svc.ID, nil)
	require.NoError(t, err)
	require.Len(t, second, 1, "a name holds at most one row per entity")

	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].CreatedAt, second[0].CreatedAt)
	assert.True(t, second[0].UpdatedAt.After(first[0].UpdatedAt))
	assert.True(t, value.Equal(value.Number{Decimal: dec("70.5")}, second[0].Value))

	// Redeclaring the type replaces the value column
	_, err = s.SetField(ctx, orgA, svc.ID, record.FieldInput{
		Name: "price", Type: value.TypeText, Value: "on request", SmartCode: "HERA.SALON.SVC.PRICE.v2",
	})
	require.NoError(t, err)
	fields, err := s.GetFields(ctx, orgA, svc.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, value.TypeText, fields["price"].Type)
	assert.Equal(t, value.Text("on request"), fields["price"].Value)

	var number any
	require.NoError(t, s.db.QueryRow(
		`SELECT field_value_number FROM dynamic_fields WHERE entity_id = ?`, svc.ID).Scan(&number))
	assert.Nil(t, number)
}

func TestSetFields_AllTypes(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	c := mustEntity(t, s, orgA, "customer", "Alice")
	birthday := time.Date(1990, 4, 12, 0, 0, 0, 0, time.UTC)

	out, err := s.SetFields(ctx, orgA, c.ID, []record.FieldInput{
		{Name: "email", Type: value.TypeText, Value: "alice@example.com", SmartCode: "HERA.CRM.CUSTOMER.EMAIL.v1"},
		{Name: "visits", Type: value.TypeNumber, Value: 12, SmartCode: "HERA.CRM.CUSTOMER.VISITS.v1"},
		{Name: "vip", Type: value.TypeBoolean, Value: false, SmartCode: "HERA.CRM.CUSTOMER.VIP.v1"},
		{Name: "birthday", Type: value.TypeDate, Value: "1990-04-12", SmartCode: "HERA.CRM.CUSTOMER.BIRTHDAY.v1"},
		{Name: "prefs", Type: value.TypeJSON, Value: map[string]any{"stylist": "Maya"}, SmartCode: "HERA.CRM.CUSTOMER.PREFS.v1"},
	})
	require.NoError(t, err)
	assert.Len(t, out, 5)

	got, err := s.GetFields(ctx, orgA, c.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, value.Text("alice@example.com"), got["email"].Value)
	assert.True(t, value.Equal(value.NewNumber(12), got["visits"].Value))
	assert.Equal(t, value.Bool(false), got["vip"].Value)
	assert.True(t, value.Equal(value.Date{Time: birthday}, got["birthday"].Value))
	assert.JSONEq(t, `{"stylist":"Maya"}`, string(got["prefs"].Value.(value.JSON)))

	list, err := s.ListFields(ctx, orgA, c.ID, nil)
	require.NoError(t, err)
	names := make([]string, len(list))
	for i, f := range list {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"birthday", "email", "prefs", "vip", "visits"}, names)
}

func TestSetFields_BatchIsAtomic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	svc := mustEntity(t, s, orgA, "service", "Haircut")

	_, err := s.SetFields(ctx, orgA, svc.ID, []record.FieldInput{
		{Name: "duration", Type: value.TypeNumber, Value: 30, SmartCode: "HERA.SALON.SVC.DURATION.v1"},
		{Name: "bookable", Type: value.TypeBoolean, Value: 1, SmartCode: "HERA.SALON.SVC.BOOKABLE.v1"},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindTypeMismatch, apperr.KindOf(err))

	got, err := s.GetFields(ctx, orgA, svc.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSetFields_Rejects(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	svc := mustEntity(t, s, orgA, "service", "Haircut")

	tests := []struct {
		name      string
		entityID  string
		ins       []record.FieldInput
		wantKind  apperr.Kind
		wantField string
	}{
		{
			name:      "empty batch",
			entityID:  svc.ID,
			wantKind:  apperr.KindInvalidInput,
			wantField: "dynamic_fields",
		},
		{
			name:     "duplicate name",
			entityID: svc.ID,
			ins: []record.FieldInput{
				priceField(json.Number("1")),
				priceField(json.Number("2")),
			},
			wantKind:  apperr.KindConflict,
			wantField: "dynamic_fields[1].field_name",
		},
		{
			name:     "bad smart code",
			entityID: svc.ID,
			ins: []record.FieldInput{
				priceField(json.Number("1")),
				{Name: "color", Type: value.TypeText, Value: "red", SmartCode: "color"},
			},
			wantKind:  apperr.KindInvalidSmartCode,
			wantField: "dynamic_fields[1].smart_code",
		},
		{
			name:      "unknown type",
			entityID:  svc.ID,
			ins:       []record.FieldInput{{Name: "x", Type: "currency", Value: 1, SmartCode: "HERA.SALON.SVC.X.v1"}},
			wantKind:  apperr.KindInvalidInput,
			wantField: "dynamic_fields[0].field_type",
		},
		{
			name:     "missing entity",
			entityID: "nope",
			ins:      []record.FieldInput{priceField(json.Number("1"))},
			wantKind: apperr.KindNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.SetFields(ctx, orgA, tt.entityID, tt.ins)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, apperr.As(err).Field)
			}
		})
	}
}

func TestFields_TenantIsolation(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	svc := mustEntity(t, s, orgA, "service", "Haircut")
	_, err := s.SetField(ctx, orgA, svc.ID, priceField(json.Number("65")))
	require.NoError(t, err)

	_, err = s.SetField(ctx, orgB, svc.ID, priceField(json.Number("1")))
	assert.Equal(t, apperr.KindTenantMismatch, apperr.KindOf(err))

	_, err = s.GetFields(ctx, orgB, svc.ID, nil)
	assert.Equal(t, apperr.KindTenantMismatch, apperr.KindOf(err))

	_, err = s.DeleteFields(ctx, orgB, svc.ID, []string{"price"})
	assert.Equal(t, apperr.KindTenantMismatch, apperr.KindOf(err))

	got, err := s.GetFields(ctx, orgA, svc.ID, nil)
	require.NoError(t, err)
	assert.True(t, value.Equal(value.NewNumber(65), got["price"].Value))
}

func TestDeleteFields(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	svc := mustEntity(t, s, orgA, "service", "Haircut")
	_, err := s.SetFields(ctx, orgA, svc.ID, []record.FieldInput{
		priceField(json.Number("65")),
		{Name: "duration", Type: value.TypeNumber, Value: 30, SmartCode: "HERA.SALON.SVC.DURATION.v1"},
	})
	require.NoError(t, err)

	n, err := s.DeleteFields(ctx, orgA, svc.ID, []string{"price", "not-set"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetFields(ctx, orgA, svc.ID, nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, "duration")

	_, err = s.DeleteFields(ctx, orgA, svc.ID, nil)
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
}
