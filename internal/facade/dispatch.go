package facade

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/roach88/recordstore/internal/apperr"
	"github.com/roach88/recordstore/internal/ledger"
	"github.com/roach88/recordstore/internal/record"
	"github.com/roach88/recordstore/internal/tenant"
)

// Kind names a record kind on the wire.
type Kind string

const (
	KindOrganization Kind = "organization"
	KindEntity       Kind = "entity"
	KindDynamicField Kind = "dynamic_field"
	KindRelationship Kind = "relationship"
	KindTransaction  Kind = "transaction"
)

// Verb names an operation on the wire.
type Verb string

const (
	VerbUpsert      Verb = "upsert"
	VerbGet         Verb = "get"
	VerbArchive     Verb = "archive"
	VerbBundle      Verb = "bundle"
	VerbRead        Verb = "read"
	VerbRecover     Verb = "recover"
	VerbDelete      Verb = "delete"
	VerbSet         Verb = "set"
	VerbSetBatch    Verb = "set-batch"
	VerbQuery       Verb = "query"
	VerbDeactivate  Verb = "deactivate"
	VerbEmit        Verb = "emit"
	VerbPost        Verb = "post"
	VerbAppendLines Verb = "append-lines"
	VerbVoid        Verb = "void"
	VerbReverse     Verb = "reverse"
	VerbValidate    Verb = "validate"
	VerbGetLines    Verb = "get-lines"
	VerbSearch      Verb = "search"
)

type route struct {
	kind Kind
	verb Verb
}

// Request is one operation in the wire contract.
type Request struct {
	ID             string          `json:"id,omitempty"`
	Kind           Kind            `json:"kind"`
	Verb           Verb            `json:"verb"`
	OrganizationID string          `json:"organization_id"`
	Actor          string          `json:"actor,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// Response answers a Request. Exactly one of Result and Error is set.
type Response struct {
	ID     string     `json:"id,omitempty"`
	OK     bool       `json:"ok"`
	Result any        `json:"result,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the wire form of an apperr.Error.
type ErrorBody struct {
	Kind    apperr.Kind       `json:"kind"`
	Message string            `json:"message"`
	Field   string            `json:"field,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// NewErrorBody converts err. Internal causes are not exposed.
func NewErrorBody(err error) *ErrorBody {
	e := apperr.As(err)
	if e.Kind == apperr.KindInternal {
		return &ErrorBody{Kind: e.Kind, Message: "internal error"}
	}
	return &ErrorBody{Kind: e.Kind, Message: e.Message, Field: e.Field, Details: e.Details}
}

type handler func(ctx context.Context, scope tenant.Scope, payload json.RawMessage) (any, error)

type idPayload struct {
	ID string `json:"id"`
}

type fieldPayload struct {
	EntityID string `json:"entity_id"`
	record.FieldInput
}

type fieldNames struct {
	EntityID string   `json:"entity_id"`
	Names    []string `json:"field_names,omitempty"`
}

type voidPayload struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type reversePayload struct {
	ID     string     `json:"id"`
	Reason string     `json:"reason,omitempty"`
	Date   *time.Time `json:"transaction_date,omitempty"`
}

type deleted struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

type fieldsDeleted struct {
	EntityID string `json:"entity_id"`
	Deleted  int    `json:"deleted"`
}

// decodeInto parses a payload strictly. Numbers stay json.Number so no precision is lost
// before coercion.
func decodeInto[P any](raw json.RawMessage) (P, error) {
	var p P
	if len(bytes.TrimSpace(raw)) == 0 {
		return p, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return p, apperr.Wrap(apperr.KindInvalidInput, "payload is not valid JSON for this operation", err).WithField("payload")
	}
	return p, nil
}

// bind adapts a typed operation to the generic handler shape.
func bind[P, R any](fn func(ctx context.Context, scope tenant.Scope, p P) (R, error)) handler {
	return func(ctx context.Context, scope tenant.Scope, raw json.RawMessage) (any, error) {
		p, err := decodeInto[P](raw)
		if err != nil {
			return nil, err
		}
		return fn(ctx, scope, p)
	}
}

// Dispatch runs one Request. Failures are reported in the Response, never returned.
func (s *Service) Dispatch(ctx context.Context, req Request) Response {
	scope := tenant.NewScope(req.OrganizationID, req.Actor)
	o := route{req.Kind, req.Verb}

	h, ok := s.routes[o]
	if !ok {
		err := apperr.Newf(apperr.KindInvalidInput, "unknown operation %s %s", req.Kind, req.Verb).WithField("verb")
		s.observe(o, scope, 0, err)
		return Response{ID: req.ID, Error: NewErrorBody(err)}
	}

	result, err := h(ctx, scope, req.Payload)
	if err != nil {
		// Decode failures never reach the typed method, so they are observed here.
		if apperr.As(err).Field == "payload" && apperr.KindOf(err) == apperr.KindInvalidInput {
			s.observe(o, scope, 0, err)
		}
		return Response{ID: req.ID, Error: NewErrorBody(err)}
	}
	return Response{ID: req.ID, OK: true, Result: result}
}

func (s *Service) buildRoutes() map[route]handler {
	noPayload := func(fn func(context.Context, tenant.Scope) (record.Organization, error)) handler {
		return bind(func(ctx context.Context, scope tenant.Scope, _ struct{}) (record.Organization, error) {
			return fn(ctx, scope)
		})
	}
	byID := func(fn func(context.Context, tenant.Scope, string) (record.Entity, error)) handler {
		return bind(func(ctx context.Context, scope tenant.Scope, p idPayload) (record.Entity, error) {
			return fn(ctx, scope, p.ID)
		})
	}
	edgeByID := func(fn func(context.Context, tenant.Scope, string) (record.Relationship, error)) handler {
		return bind(func(ctx context.Context, scope tenant.Scope, p idPayload) (record.Relationship, error) {
			return fn(ctx, scope, p.ID)
		})
	}
	txnByID := func(fn func(context.Context, tenant.Scope, string) (record.Transaction, error)) handler {
		return bind(func(ctx context.Context, scope tenant.Scope, p idPayload) (record.Transaction, error) {
			return fn(ctx, scope, p.ID)
		})
	}

	return map[route]handler{
		{KindOrganization, VerbUpsert}:  bind(s.UpsertOrganization),
		{KindOrganization, VerbGet}:     noPayload(s.GetOrganization),
		{KindOrganization, VerbArchive}: noPayload(s.ArchiveOrganization),

		{KindEntity, VerbUpsert}:  bind(s.UpsertEntity),
		{KindEntity, VerbBundle}:  bind(s.UpsertEntityBundle),
		{KindEntity, VerbGet}:     byID(s.GetEntity),
		{KindEntity, VerbRead}:    bind(s.ReadEntities),
		{KindEntity, VerbArchive}: byID(s.ArchiveEntity),
		{KindEntity, VerbRecover}: byID(s.RecoverEntity),
		{KindEntity, VerbDelete}: bind(func(ctx context.Context, scope tenant.Scope, p idPayload) (deleted, error) {
			if err := s.DeleteEntity(ctx, scope, p.ID); err != nil {
				return deleted{}, err
			}
			return deleted{ID: p.ID, Deleted: true}, nil
		}),

		{KindDynamicField, VerbSet}: bind(func(ctx context.Context, scope tenant.Scope, p fieldPayload) (record.FieldResult, error) {
			return s.SetField(ctx, scope, p.EntityID, p.FieldInput)
		}),
		{KindDynamicField, VerbSetBatch}: bind(func(ctx context.Context, scope tenant.Scope, p fieldBatch) (map[string]record.FieldResult, error) {
			return s.SetFields(ctx, scope, p.EntityID, p.Fields)
		}),
		{KindDynamicField, VerbGet}: bind(func(ctx context.Context, scope tenant.Scope, p fieldNames) (map[string]record.FieldResult, error) {
			return s.GetFields(ctx, scope, p.EntityID, p.Names)
		}),
		{KindDynamicField, VerbDelete}: bind(func(ctx context.Context, scope tenant.Scope, p fieldNames) (fieldsDeleted, error) {
			n, err := s.DeleteFields(ctx, scope, p.EntityID, p.Names)
			if err != nil {
				return fieldsDeleted{}, err
			}
			return fieldsDeleted{EntityID: p.EntityID, Deleted: n}, nil
		}),

		{KindRelationship, VerbUpsert}:     bind(s.UpsertRelationship),
		{KindRelationship, VerbGet}:        edgeByID(s.GetRelationship),
		{KindRelationship, VerbQuery}:      bind(s.QueryRelationships),
		{KindRelationship, VerbDeactivate}: edgeByID(s.DeactivateRelationship),
		{KindRelationship, VerbDelete}: bind(func(ctx context.Context, scope tenant.Scope, p idPayload) (deleted, error) {
			if err := s.DeleteRelationship(ctx, scope, p.ID); err != nil {
				return deleted{}, err
			}
			return deleted{ID: p.ID, Deleted: true}, nil
		}),

		{KindTransaction, VerbEmit}: bind(s.Emit),
		{KindTransaction, VerbPost}: txnByID(s.Post),
		{KindTransaction, VerbAppendLines}: bind(func(ctx context.Context, scope tenant.Scope, p lineBatch) (record.EmitResult, error) {
			return s.AppendLines(ctx, scope, p.ID, p.Lines)
		}),
		{KindTransaction, VerbVoid}: bind(func(ctx context.Context, scope tenant.Scope, p voidPayload) (record.Transaction, error) {
			return s.Void(ctx, scope, p.ID, p.Reason)
		}),
		{KindTransaction, VerbReverse}: bind(func(ctx context.Context, scope tenant.Scope, p reversePayload) (record.ReverseResult, error) {
			return s.Reverse(ctx, scope, p.ID, p.Reason, p.Date)
		}),
		{KindTransaction, VerbValidate}: bind(func(ctx context.Context, scope tenant.Scope, p idPayload) (ledger.Report, error) {
			return s.ValidateTransaction(ctx, scope, p.ID)
		}),
		{KindTransaction, VerbGet}: txnByID(s.GetTransaction),
		{KindTransaction, VerbGetLines}: bind(func(ctx context.Context, scope tenant.Scope, p idPayload) ([]record.Line, error) {
			return s.GetLines(ctx, scope, p.ID)
		}),
		{KindTransaction, VerbSearch}: bind(s.SearchTransactions),
	}
}
