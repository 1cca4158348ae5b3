package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/recordstore/internal/apperr"
)

// FieldType is the declared type of a dynamic attribute.
type FieldType string

const (
	TypeText    FieldType = "text"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeDate    FieldType = "date"
	TypeJSON    FieldType = "json"
)

// FieldTypes lists the supported field types in column order.
var FieldTypes = []FieldType{TypeText, TypeNumber, TypeBoolean, TypeDate, TypeJSON}

// ParseFieldType parses a declared field type (case-insensitive).
func ParseFieldType(s string) (FieldType, error) {
	ft := FieldType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range FieldTypes {
		if ft == known {
			return ft, nil
		}
	}
	return "", apperr.Invalid("field_type", fmt.Sprintf("unknown field type %q: must be one of text, number, boolean, date, json", s))
}

// Value is a sealed interface over the typed values a dynamic attribute can hold.
// Only Text, Number, Bool, Date and JSON implement it.
type Value interface {
	// Type returns the field type this value populates.
	Type() FieldType

	// Native returns the single logical value, regardless of which column stores it.
	Native() any

	isValue()
}

// Text is a text value.
type Text string

func (Text) isValue()         {}
func (Text) Type() FieldType  { return TypeText }
func (v Text) Native() any    { return string(v) }
func (v Text) String() string { return string(v) }

// Number is an exact decimal value.
type Number struct {
	Decimal decimal.Decimal
}

func (Number) isValue()        {}
func (Number) Type() FieldType { return TypeNumber }

// Native returns the number as a json.Number so it encodes unquoted.
func (v Number) Native() any { return json.Number(v.Decimal.String()) }

// NewNumber creates a Number from an int64.
func NewNumber(n int64) Number { return Number{Decimal: decimal.NewFromInt(n)} }

// Bool is a boolean value.
type Bool bool

func (Bool) isValue()        {}
func (Bool) Type() FieldType { return TypeBoolean }
func (v Bool) Native() any   { return bool(v) }

// Date is a point in time, always held in UTC.
type Date struct {
	Time time.Time
}

func (Date) isValue()        {}
func (Date) Type() FieldType { return TypeDate }
func (v Date) Native() any   { return v.Time.UTC().Format(time.RFC3339Nano) }

// JSON is an arbitrary JSON document.
type JSON json.RawMessage

func (JSON) isValue()        {}
func (JSON) Type() FieldType { return TypeJSON }
func (v JSON) Native() any   { return json.RawMessage(v) }

// dateLayouts are the accepted wire forms of a date value.
var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// ParseDate parses a wire-form date string.
func ParseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Coerce converts a raw value to the declared field type.
//
// Coercion is strict: a raw value whose kind disagrees with the declared type is rejected
// with TypeMismatch rather than converted ("free" is never a number, 1 is never a boolean).
// Strings are accepted for dates because strings are the wire form of a date.
// field is used for error reporting only.
func Coerce(field string, declared FieldType, raw any) (Value, error) {
	if v, ok := raw.(Value); ok {
		if v.Type() != declared {
			return nil, apperr.TypeMismatch(field, string(declared), string(v.Type()))
		}
		return v, nil
	}
	if raw == nil {
		return nil, apperr.TypeMismatch(field, string(declared), "null")
	}

	switch declared {
	case TypeText:
		if s, ok := raw.(string); ok {
			return Text(s), nil
		}
	case TypeNumber:
		if d, ok := toDecimal(raw); ok {
			return Number{Decimal: d}, nil
		}
	case TypeBoolean:
		if b, ok := raw.(bool); ok {
			return Bool(b), nil
		}
	case TypeDate:
		switch t := raw.(type) {
		case time.Time:
			return Date{Time: t.UTC()}, nil
		case string:
			if parsed, ok := ParseDate(t); ok {
				return Date{Time: parsed}, nil
			}
			return nil, apperr.TypeMismatch(field, string(declared), "text").
				WithDetail("reason", "unparseable date")
		}
	case TypeJSON:
		doc, err := toJSON(raw)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInvalidInput, "json value cannot be encoded", err).WithField(field)
		}
		return doc, nil
	default:
		return nil, apperr.Invalid("field_type", fmt.Sprintf("unknown field type %q", declared))
	}

	return nil, apperr.TypeMismatch(field, string(declared), kindOf(raw))
}

func toDecimal(raw any) (decimal.Decimal, bool) {
	switch n := raw.(type) {
	case decimal.Decimal:
		return n, true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int8:
		return decimal.NewFromInt(int64(n)), true
	case int16:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt32(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint:
		return fromUint64(uint64(n)), true
	case uint8:
		return decimal.NewFromInt(int64(n)), true
	case uint16:
		return decimal.NewFromInt(int64(n)), true
	case uint32:
		return decimal.NewFromInt(int64(n)), true
	case uint64:
		return fromUint64(n), true
	default:
		return decimal.Decimal{}, false
	}
}

// fromUint64 converts without overflowing int64.
func fromUint64(n uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(n), 0)
}

func toJSON(raw any) (JSON, error) {
	switch doc := raw.(type) {
	case json.RawMessage:
		if !json.Valid(doc) {
			return nil, fmt.Errorf("invalid json document")
		}
		return JSON(compact(doc)), nil
	case JSON:
		return doc, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return JSON(data), nil
}

func compact(doc []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, doc); err != nil {
		return doc
	}
	return buf.Bytes()
}

// kindOf names the field type a raw value would naturally populate.
func kindOf(raw any) string {
	switch raw.(type) {
	case string:
		return string(TypeText)
	case bool:
		return string(TypeBoolean)
	case json.Number, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, decimal.Decimal:
		return string(TypeNumber)
	case time.Time:
		return string(TypeDate)
	case map[string]any, []any, json.RawMessage:
		return string(TypeJSON)
	default:
		return fmt.Sprintf("%T", raw)
	}
}

// Decode parses a JSON value with numbers preserved as json.Number.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Equal reports whether two values have the same type and logical value.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Type() != b.Type() {
		return false
	}
	switch av := a.(type) {
	case Number:
		return av.Decimal.Equal(b.(Number).Decimal)
	case Date:
		return av.Time.Equal(b.(Date).Time)
	case JSON:
		return bytes.Equal(compact(av), compact(b.(JSON)))
	default:
		return a == b
	}
}
