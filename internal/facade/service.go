// Package facade is the single call surface over the record store.
//
// Every operation runs the same pipeline in a fixed order: tenant guard, smart-code
// validation, payload validation, then the store. A request rejected at any step never
// reaches the store. The façade adds no business rules of its own.
package facade

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/roach88/recordstore/internal/apperr"
	"github.com/roach88/recordstore/internal/ledger"
	"github.com/roach88/recordstore/internal/logging"
	"github.com/roach88/recordstore/internal/record"
	"github.com/roach88/recordstore/internal/smartcode"
	"github.com/roach88/recordstore/internal/tenant"
)

// Backend is the storage the façade delegates to. *store.Store implements it.
type Backend interface {
	UpsertOrganization(ctx context.Context, scope tenant.Scope, org record.Organization) (record.Organization, error)
	GetOrganization(ctx context.Context, scope tenant.Scope) (record.Organization, error)
	ArchiveOrganization(ctx context.Context, scope tenant.Scope) (record.Organization, error)

	UpsertEntity(ctx context.Context, scope tenant.Scope, e record.Entity) (record.Entity, error)
	UpsertEntityBundle(ctx context.Context, scope tenant.Scope, b record.Bundle) (record.BundleResult, error)
	GetEntity(ctx context.Context, scope tenant.Scope, id string) (record.Entity, error)
	ReadEntities(ctx context.Context, scope tenant.Scope, f record.EntityFilter) ([]record.Entity, error)
	ArchiveEntity(ctx context.Context, scope tenant.Scope, id string) (record.Entity, error)
	RecoverEntity(ctx context.Context, scope tenant.Scope, id string) (record.Entity, error)
	DeleteEntity(ctx context.Context, scope tenant.Scope, id string) error

	SetField(ctx context.Context, scope tenant.Scope, entityID string, in record.FieldInput) (record.FieldResult, error)
	SetFields(ctx context.Context, scope tenant.Scope, entityID string, ins []record.FieldInput) (map[string]record.FieldResult, error)
	GetFields(ctx context.Context, scope tenant.Scope, entityID string, names []string) (map[string]record.FieldResult, error)
	DeleteFields(ctx context.Context, scope tenant.Scope, entityID string, names []string) (int, error)

	UpsertRelationship(ctx context.Context, scope tenant.Scope, in record.RelationshipInput) (record.Relationship, error)
	GetRelationship(ctx context.Context, scope tenant.Scope, id string) (record.Relationship, error)
	QueryRelationships(ctx context.Context, scope tenant.Scope, q record.RelationshipQuery) ([]record.Relationship, error)
	DeactivateRelationship(ctx context.Context, scope tenant.Scope, id string) (record.Relationship, error)
	DeleteRelationship(ctx context.Context, scope tenant.Scope, id string) error

	Emit(ctx context.Context, scope tenant.Scope, em record.Emission) (record.EmitResult, error)
	Post(ctx context.Context, scope tenant.Scope, id string) (record.Transaction, error)
	AppendLines(ctx context.Context, scope tenant.Scope, id string, lines []record.Line) (record.EmitResult, error)
	Void(ctx context.Context, scope tenant.Scope, id, reason string) (record.Transaction, error)
	Reverse(ctx context.Context, scope tenant.Scope, id, reason string, date *time.Time) (record.ReverseResult, error)
	ValidateTransaction(ctx context.Context, scope tenant.Scope, id string) (ledger.Report, error)
	GetTransaction(ctx context.Context, scope tenant.Scope, id string) (record.Transaction, error)
	GetLines(ctx context.Context, scope tenant.Scope, id string) ([]record.Line, error)
	SearchTransactions(ctx context.Context, scope tenant.Scope, f record.TxnFilter) ([]record.Transaction, error)
}

// Options configures a Service. Zero values take defaults.
type Options struct {
	Logger logrus.FieldLogger

	// Registerer receives the operation metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
}

// Service exposes one method per (kind, verb) plus Dispatch for the wire contract.
// It holds no mutable state and is safe for concurrent use.
type Service struct {
	backend Backend
	log     logrus.FieldLogger
	metrics *metrics
	routes  map[route]handler
}

// New creates a Service over backend.
func New(backend Backend, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Service{
		backend: backend,
		log:     logger.WithField("module", "facade"),
		metrics: newMetrics(opts.Registerer),
	}
	s.routes = s.buildRoutes()
	return s
}

// codeRef is one smart code carried by a payload, with its field path for errors.
type codeRef struct {
	field    string
	code     string
	optional bool
}

// checks is what the pipeline verifies before the store is called.
type checks struct {
	// org is the organization id the payload carries, if any.
	org      string
	codes    []codeRef
	payload  any
	required []requiredField
}

type requiredField struct {
	field, value string
}

func (c checks) run(scope tenant.Scope) error {
	if err := tenant.Check(scope, "payload", c.org); err != nil {
		return err
	}
	for _, ref := range c.codes {
		if ref.optional && ref.code == "" {
			continue
		}
		if err := smartcode.Validate(ref.code); err != nil {
			return apperr.As(err).WithField(ref.field)
		}
	}
	if c.payload != nil {
		if err := record.Validate(c.payload); err != nil {
			return err
		}
	}
	for _, r := range c.required {
		if r.value == "" {
			return apperr.Invalid(r.field, r.field+" is required")
		}
	}
	return nil
}

func requireID(id string) checks {
	return checks{required: []requiredField{{"id", id}}}
}

// invoke runs the guard pipeline around one store call and records the outcome.
func invoke[T any](ctx context.Context, s *Service, o route, scope tenant.Scope, c checks, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	out, err := func() (T, error) {
		var zero T
		if err := c.run(scope); err != nil {
			return zero, err
		}
		return fn(ctx)
	}()
	s.observe(o, scope, time.Since(start), err)
	return out, err
}

func (s *Service) observe(o route, scope tenant.Scope, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = string(apperr.KindOf(err))
	}
	s.metrics.record(o, result, elapsed)

	fields := logrus.Fields{
		"kind":            string(o.kind),
		"verb":            string(o.verb),
		"organization_id": scope.OrganizationID,
	}
	switch {
	case err == nil:
		s.log.WithFields(fields).WithField("duration", elapsed).Debug("operation completed")
	case apperr.KindOf(err) == apperr.KindInternal:
		logging.Error(s.log, "facade", fmt.Sprintf("%s.%s", o.kind, o.verb), err, fields)
	default:
		s.log.WithFields(fields).WithField("error_kind", result).Info(err.Error())
	}
}
