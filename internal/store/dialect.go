package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

//go:embed schema_sqlite.sql
var sqliteSchemaSQL string

//go:embed schema_mysql.sql
var mysqlSchemaSQL string

// Driver names accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// dialect isolates the few places where SQLite and MySQL differ: connection setup,
// schema application, schema version tracking and unique-violation detection.
// Queries themselves use portable SQL with ? placeholders.
type dialect interface {
	name() string
	driverName() string
	configure(db *sql.DB, opts Options) error
	applySchema(db *sql.DB) error
	schemaVersion(db *sql.DB) (int, error)
	setSchemaVersion(db *sql.DB, version int) error
	isUniqueViolation(err error) bool
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "", DriverSQLite, "sqlite3":
		return sqliteDialect{}, nil
	case DriverMySQL:
		return mysqlDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

type sqliteDialect struct{}

func (sqliteDialect) name() string       { return DriverSQLite }
func (sqliteDialect) driverName() string { return "sqlite3" }

// configure limits SQLite to a single writer and sets the required pragmas:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - foreign key enforcement
func (sqliteDialect) configure(db *sql.DB, _ Options) error {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (sqliteDialect) applySchema(db *sql.DB) error {
	if _, err := db.Exec(sqliteSchemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func (sqliteDialect) schemaVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return version, nil
}

func (sqliteDialect) setSchemaVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func (sqliteDialect) isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

type mysqlDialect struct{}

func (mysqlDialect) name() string       { return DriverMySQL }
func (mysqlDialect) driverName() string { return "mysql" }

func (mysqlDialect) configure(db *sql.DB, opts Options) error {
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	return nil
}

// applySchema runs the schema one statement at a time; the driver rejects
// multi-statement exec unless the DSN enables it.
func (mysqlDialect) applySchema(db *sql.DB) error {
	for i, stmt := range splitStatements(mysqlSchemaSQL) {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

func (mysqlDialect) schemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT version FROM schema_meta WHERE id = 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}
	return version, nil
}

func (mysqlDialect) setSchemaVersion(db *sql.DB, version int) error {
	_, err := db.Exec(`
		INSERT INTO schema_meta (id, version) VALUES (1, ?)
		ON DUPLICATE KEY UPDATE version = VALUES(version)
	`, version)
	if err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

func (mysqlDialect) isUniqueViolation(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// splitStatements splits a schema file on ";" line endings and drops comment lines.
func splitStatements(schema string) []string {
	var (
		stmts []string
		cur   strings.Builder
	)
	for _, line := range strings.Split(schema, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			stmts = append(stmts, strings.TrimSuffix(strings.TrimSpace(cur.String()), ";"))
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		stmts = append(stmts, rest)
	}
	return stmts
}

// mysqlDuplicateKeyName is ER_DUP_KEYNAME, returned when an index already exists.
const mysqlDuplicateKeyName = 1061

func isDuplicateIndex(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateKeyName
}
