// Package engine implements the adapter side of the embedded engine
// contract (§6.3): open/prepare/bind/step/column_*/finalize/
// register_function/exec, backed by database/sql over mattn/go-sqlite3.
// DSN and pragma construction follows the same approach as
// ha1tch/aul's storage.SQLiteStorage: a single-writer pool plus
// _journal_mode/_busy_timeout/_foreign_keys query parameters, with
// cache=shared added so every Conn of one Engine observes the same
// database. Each Engine opened on ":memory:" gets its own named in-memory
// database, which other Engines in the process do not see.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// Config configures the single underlying database/sql.DB every Conn is
// drawn from.
type Config struct {
	// Path is the engine database file, or ":memory:" for an in-memory
	// database shared across every Conn via cache=shared.
	Path string

	JournalMode string // default MEMORY (WAL has no effect on :memory:)
	BusyTimeout int    // milliseconds, default 5000
	ForeignKeys bool   // default true
}

// DefaultConfig returns the engine's default configuration: an in-memory
// database with WAL journaling disabled (WAL has no effect on :memory:)
// and a 5 second busy timeout.
func DefaultConfig() Config {
	return Config{
		Path:        ":memory:",
		JournalMode: "MEMORY",
		BusyTimeout: 5000,
		ForeignKeys: true,
	}
}

// Every Open call registers a driver, with the custom functions the
// translator needs (pg_regex, pg_fts_*), under a fresh name built from
// driverCounter. sql.Open looks drivers up by name, and registering one
// name twice panics, so each Engine gets its own registration even when
// several are opened in the same process (tests in particular).
var (
	driverMu      sync.Mutex
	driverCounter int
)

// Engine owns the single database/sql.DB backing every session's Conn. A
// Server owns exactly one Engine; each Session acquires its own Conn from
// it via the Connection Manager.
type Engine struct {
	db         *sql.DB
	driverName string
}

// Open establishes the engine database and registers the adapter's custom
// SQL functions (regex match, full-text search shims) that the translator
// rewrites PostgreSQL-only syntax to call.
func Open(cfg Config) (*Engine, error) {
	driverMu.Lock()
	driverCounter++
	name := fmt.Sprintf("pgwire-sqlite3-%d", driverCounter)
	driverMu.Unlock()

	sql.Register(name, &sqlite3.SQLiteDriver{
		ConnectHook: registerFunctions,
	})

	dsn := buildDSN(cfg, name)
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("engine: open: %w", err)
	}

	// The engine requires a single writer; SQLite serializes writes
	// regardless, but capping the pool avoids SQLITE_BUSY storms under
	// concurrent sessions sharing one :memory: database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: ping: %w", err)
	}

	if err := bootstrapCatalog(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: bootstrap catalog: %w", err)
	}

	return &Engine{db: db, driverName: name}, nil
}

// bootstrapCatalog creates the reserved __pg_catalog metadata table (§6.2)
// and the fixed pg_catalog compatibility views the Query Translator rewrites
// pg_catalog.pg_* references to. __pg_catalog itself is left empty: the
// schema-migration tool that populates it is an external collaborator
// (out of scope here); the adapter only reads what is already there.
func bootstrapCatalog(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS __pg_catalog (
			table_name TEXT NOT NULL,
			column_name TEXT NOT NULL,
			pg_type_oid INTEGER NOT NULL,
			pg_type_mod INTEGER NOT NULL DEFAULT -1,
			datetime_format TEXT,
			timezone_offset_seconds INTEGER,
			PRIMARY KEY (table_name, column_name)
		)`,
		`CREATE VIEW IF NOT EXISTS __pg_namespace_view AS
			SELECT 2200 AS oid, 'public' AS nspname`,
		`CREATE VIEW IF NOT EXISTS __pg_class_view AS
			SELECT rowid AS oid, name AS relname, 2200 AS relnamespace,
			       CASE type WHEN 'view' THEN 'v' WHEN 'index' THEN 'i' ELSE 'r' END AS relkind
			FROM sqlite_master
			WHERE type IN ('table', 'view', 'index') AND name NOT LIKE 'sqlite_%' AND name NOT LIKE '\_\_pg\_%' ESCAPE '\'`,
		`CREATE VIEW IF NOT EXISTS __pg_attribute_view AS
			SELECT m.rowid AS attrelid, ti.name AS attname, ti.cid + 1 AS attnum,
			       CASE ti."notnull" WHEN 0 THEN 0 ELSE 1 END AS attnotnull
			FROM sqlite_master m, pragma_table_info(m.name) ti
			WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%' AND m.name NOT LIKE '\_\_pg\_%' ESCAPE '\'`,
		`CREATE VIEW IF NOT EXISTS __pg_type_view AS
			SELECT 16 AS oid, 'bool' AS typname UNION ALL
			SELECT 20, 'int8' UNION ALL
			SELECT 23, 'int4' UNION ALL
			SELECT 25, 'text' UNION ALL
			SELECT 701, 'float8' UNION ALL
			SELECT 1700, 'numeric'`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// DB exposes the underlying database/sql.DB for collaborators that must
// query outside of a session's dedicated Conn, namely Catalog.Load reading
// the reserved metadata table at server startup.
func (e *Engine) DB() *sql.DB {
	return e.db
}

func buildDSN(cfg Config, name string) string {
	dsn := cfg.Path
	var opts []string

	if cfg.Path == ":memory:" {
		dsn = "file:" + name
		opts = append(opts, "mode=memory", "cache=shared")
	}

	if cfg.BusyTimeout > 0 {
		opts = append(opts, fmt.Sprintf("_busy_timeout=%d", cfg.BusyTimeout))
	}
	if cfg.JournalMode != "" {
		opts = append(opts, fmt.Sprintf("_journal_mode=%s", cfg.JournalMode))
	}
	if cfg.ForeignKeys {
		opts = append(opts, "_foreign_keys=ON")
	}

	if len(opts) > 0 {
		dsn = dsn + "?" + strings.Join(opts, "&")
	}

	return dsn
}

// Close releases the underlying database/sql.DB. Call once the server is
// shutting down; individual sessions release their Conn, not the Engine.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Acquire hands out a dedicated Conn for a session's exclusive use for the
// lifetime of that session, per the Engine Connection data model entry.
func (e *Engine) Acquire(ctx context.Context) (*Conn, error) {
	c, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: acquire: %w", err)
	}

	return &Conn{raw: c}, nil
}

// Exec runs sql directly against the shared database, bypassing any
// session's Conn. Used by schema-migration tooling (external); the
// adapter's own startup SQL (bootstrapCatalog) runs before any Engine
// value exists and calls database/sql directly instead.
func (e *Engine) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return e.db.ExecContext(ctx, query, args...)
}
