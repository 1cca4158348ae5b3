package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/roach88/recordstore/internal/apperr"
	"github.com/roach88/recordstore/internal/config"
	"github.com/roach88/recordstore/internal/ledger"
	"github.com/roach88/recordstore/internal/logging"
	"github.com/roach88/recordstore/internal/tenant"
)

// Schema version tracking:
// 1 - Base schema (organizations, entities, dynamic_fields, relationships, transactions, lines)
// 2 - Added index on transactions(organization_id, status) for search
const currentSchemaVersion = 2

// systemActor stamps created_by/updated_by when the caller supplies no actor.
const systemActor = "system"

// Options configures a Store. Zero values take defaults.
type Options struct {
	// Driver is sqlite (default) or mysql.
	Driver          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	Clock  Clock
	IDs    IDGenerator
	Logger logrus.FieldLogger

	// Rules are the ledger balance rules. Zero value means ledger.DefaultRules.
	Rules           ledger.Rules
	DefaultCurrency string

	DefaultLimit int
	MaxLimit     int
}

// OptionsFromConfig maps loaded configuration onto store options.
func OptionsFromConfig(cfg *config.Config, logger logrus.FieldLogger) Options {
	return Options{
		Driver:          cfg.Database.Driver,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		Logger:          logger,
		Rules:           cfg.Rules(),
		DefaultCurrency: cfg.Ledger.DefaultCurrency,
		DefaultLimit:    cfg.Query.DefaultLimit,
		MaxLimit:        cfg.Query.MaxLimit,
	}
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = SystemClock{}
	}
	if o.IDs == nil {
		o.IDs = UUIDv7Generator{}
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if len(o.Rules.BalancedPatterns) == 0 && len(o.Rules.CreditLineTypes) == 0 && o.Rules.Tolerance.IsZero() {
		o.Rules = ledger.DefaultRules()
	}
	if o.DefaultCurrency == "" {
		o.DefaultCurrency = "USD"
	}
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = 100
	}
	if o.MaxLimit < o.DefaultLimit {
		o.MaxLimit = o.DefaultLimit * 10
	}
	return o
}

// Store is the generic multi-tenant record store: entities, dynamic fields,
// relationships and transactions over a relational backend.
//
// Every operation takes an explicit tenant.Scope. Multi-row writes run in one
// database/sql transaction so partial writes are never observable.
type Store struct {
	db      *sql.DB
	dialect dialect
	clock   Clock
	ids     IDGenerator
	log     logrus.FieldLogger
	rules   ledger.Rules

	defaultCurrency string
	defaultLimit    int
	maxLimit        int
}

// Open creates or opens a SQLite database at the given path (":memory:" for tests)
// with default options.
func Open(path string) (*Store, error) {
	return OpenWithOptions(path, Options{})
}

// OpenWithOptions opens the store on the configured driver and applies the schema.
//
// This function is idempotent - safe to call multiple times on the same database.
func OpenWithOptions(dsn string, opts Options) (*Store, error) {
	opts = opts.withDefaults()

	d, err := dialectFor(opts.Driver)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := d.configure(db, opts); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure connection: %w", err)
	}

	if err := applySchema(db, d); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{
		db:              db,
		dialect:         d,
		clock:           opts.Clock,
		ids:             opts.IDs,
		log:             opts.Logger.WithField("module", "store"),
		rules:           opts.Rules,
		defaultCurrency: opts.DefaultCurrency,
		defaultLimit:    opts.DefaultLimit,
		maxLimit:        opts.MaxLimit,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the backing driver name.
func (s *Store) Driver() string {
	return s.dialect.name()
}

// SchemaVersion returns the applied schema version.
func (s *Store) SchemaVersion() (int, error) {
	return s.dialect.schemaVersion(s.db)
}

// Rules returns the ledger rules the store enforces.
func (s *Store) Rules() ledger.Rules {
	return s.rules
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB, d dialect) error {
	if err := d.applySchema(db); err != nil {
		return err
	}
	if err := runMigrations(db, d); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on the stored version.
func runMigrations(db *sql.DB, d dialect) error {
	version, err := d.schemaVersion(db)
	if err != nil {
		return err
	}

	if version < 2 {
		if err := migrateToV2(db, d); err != nil {
			return err
		}
	}

	return d.setSchemaVersion(db, currentSchemaVersion)
}

// migrateToV2 adds the status index used by transaction search.
func migrateToV2(db *sql.DB, d dialect) error {
	stmt := "CREATE INDEX idx_transactions_org_status ON transactions(organization_id, status)"
	if d.name() == DriverSQLite {
		stmt = "CREATE INDEX IF NOT EXISTS idx_transactions_org_status ON transactions(organization_id, status)"
	}
	if _, err := db.Exec(stmt); err != nil && !isDuplicateIndex(err) {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	return nil
}

// dbtx is satisfied by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a database transaction, committing when fn returns nil.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

// page clamps a requested limit/offset to the configured bounds.
func (s *Store) page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *Store) now() time.Time {
	return s.clock.Now().UTC()
}

// logTxnError records a failed ledger write. Caller-facing failures log at debug level;
// backing-store failures log at error level.
func logTxnError(s *Store, funcName string, scope tenant.Scope, ref string, err error) {
	fields := logrus.Fields{"organization_id": scope.OrganizationID}
	if ref != "" {
		fields["ref"] = ref
	}
	if kind := apperr.KindOf(err); kind != apperr.KindInternal {
		s.log.WithFields(fields).
			WithField("funcName", funcName).
			WithField("error_kind", string(kind)).
			Debug(err.Error())
		return
	}
	logging.Error(s.log, "store", funcName, err, fields)
}
