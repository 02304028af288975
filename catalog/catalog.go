// Package catalog implements the Type Registry (component L4): it resolves
// a result column's PostgreSQL OID and supplies the reverse mapping used
// when provisioning engine-side storage for a PostgreSQL type. Declared
// types are the second line of defense after an explicit metadata
// override; dynamic sniffing off the first row is the last resort for
// expressions the engine reports no declared type for.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/lib/pq/oid"
)

// Override pins the OID and type modifier for one (table, column) pair,
// sourced from the adapter's reserved metadata table (see Load).
type Override struct {
	OID             oid.Oid
	TypeMod         int32
	DatetimeFormat  string
	TimezoneOffsetS int32
}

// Catalog is the Type Registry: a reader-mostly map of (table, column)
// overrides plus the static declared-type table. It is read on every
// Describe and RowDescription; writes happen through Load, called once at
// server startup, and through Put for callers seeding overrides directly.
type Catalog struct {
	mu        sync.RWMutex
	overrides map[tableColumn]Override
}

type tableColumn struct {
	table  string
	column string
}

// New constructs an empty Catalog.
func New() *Catalog {
	return &Catalog{overrides: make(map[tableColumn]Override)}
}

// Put installs or replaces the override for (table, column) in memory.
// Load is the adapter's own populating path, reading back what an
// external schema-migration tool already wrote to the `__pg_catalog`
// table; Put is also exported directly for callers (tests, embedders)
// that want to seed overrides without a database round trip.
func (c *Catalog) Put(table, column string, o Override) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides[tableColumn{table, column}] = o
}

// Load populates the Catalog from the engine's reserved __pg_catalog
// metadata table (§6.2): `(table_name, column_name, pg_type_oid,
// pg_type_mod, datetime_format, timezone_offset_seconds)`. That table is
// written externally by a schema-migration tool (out of scope here); Load
// is this adapter's read side of the contract, called once at server
// startup. Missing table is not an error — an adapter fronting a database
// nobody has migrated yet simply has no overrides.
func (c *Catalog) Load(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `SELECT table_name, column_name, pg_type_oid, pg_type_mod, datetime_format, timezone_offset_seconds FROM __pg_catalog`)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return nil
		}
		return fmt.Errorf("catalog: load: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			table, column string
			typeOID       int64
			typeMod       sql.NullInt64
			datetimeFmt   sql.NullString
			tzOffset      sql.NullInt64
		)
		if err := rows.Scan(&table, &column, &typeOID, &typeMod, &datetimeFmt, &tzOffset); err != nil {
			return fmt.Errorf("catalog: load: scan: %w", err)
		}
		c.Put(table, column, Override{
			OID:             oid.Oid(typeOID),
			TypeMod:         int32(typeMod.Int64),
			DatetimeFormat:  datetimeFmt.String,
			TimezoneOffsetS: int32(tzOffset.Int64),
		})
	}
	return rows.Err()
}

// Lookup returns the explicit override for (table, column), if any.
func (c *Catalog) Lookup(table, column string) (Override, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.overrides[tableColumn{table, column}]
	return o, ok
}

// ResolveOID implements the three-step priority order from the Type
// Registry's contract: (1) catalog override, (2) the engine's declared
// column type mapped through the static table, (3) dynamic sniffing of a
// sample value when the engine reports no declared type at all.
func (c *Catalog) ResolveOID(table, column, declaredType string, sample interface{}) oid.Oid {
	if o, ok := c.Lookup(table, column); ok {
		return o.OID
	}

	if declaredType != "" {
		if resolved, ok := oidForDeclaredType(declaredType); ok {
			return resolved
		}
	}

	return oidForSample(sample)
}

// oidForDeclaredType maps an engine column's declared type affinity to a
// PostgreSQL OID. The engine's declared types are SQLite-style affinity
// names (INTEGER, TEXT, REAL, BLOB, NUMERIC) plus the PostgreSQL
// datetime/boolean names, which appear only when a table was declared with
// them directly (the DDL rewrite replaces them with INTEGER or TEXT).
func oidForDeclaredType(declared string) (oid.Oid, bool) {
	switch strings.ToUpper(strings.TrimSpace(declared)) {
	case "INTEGER", "INT", "BIGINT":
		return oid.T_int8, true
	case "SMALLINT":
		return oid.T_int2, true
	case "REAL", "DOUBLE", "DOUBLE PRECISION", "FLOAT":
		return oid.T_float8, true
	case "TEXT", "VARCHAR", "CHAR", "CLOB":
		return oid.T_text, true
	case "BLOB", "BYTEA":
		return oid.T_bytea, true
	case "NUMERIC", "DECIMAL":
		return oid.T_numeric, true
	case "BOOLEAN", "BOOL":
		return oid.T_bool, true
	case "DATE":
		return oid.T_date, true
	case "TIME":
		return oid.T_time, true
	case "TIMETZ":
		return oid.T_timetz, true
	case "TIMESTAMP":
		return oid.T_timestamp, true
	case "TIMESTAMPTZ":
		return oid.T_timestamptz, true
	case "INTERVAL":
		return oid.T_interval, true
	case "UUID":
		return oid.T_uuid, true
	case "JSON":
		return oid.T_json, true
	case "JSONB":
		return oid.T_jsonb, true
	case "INET":
		return oid.T_inet, true
	case "MACADDR":
		return oid.T_macaddr, true
	default:
		return 0, false
	}
}

// oidForSample sniffs an OID from a Go-native sample value, the fallback
// used for expressions (e.g. computed columns) the engine cannot assign a
// declared type to.
func oidForSample(sample interface{}) oid.Oid {
	switch sample.(type) {
	case nil:
		return oid.T_text
	case int, int32, int64:
		return oid.T_int8
	case float32, float64:
		return oid.T_float8
	case bool:
		return oid.T_bool
	case []byte:
		return oid.T_bytea
	default:
		return oid.T_text
	}
}

// StorageAffinity is the reverse mapping: given a PostgreSQL OID, the
// engine-native column type used when provisioning storage for it, plus
// any CHECK constraint needed to approximate PostgreSQL's domain (the
// engine has no native boolean or fixed-precision decimal type).
type StorageAffinity struct {
	EngineType string
	Check      string
}

// StorageAffinityForOID returns the engine storage affinity for a
// PostgreSQL OID: datetime family collapses to INTEGER (the adapter's
// microsecond representation), NUMERIC to TEXT with a numeric-shaped CHECK
// constraint, and BOOLEAN to INTEGER restricted to {0,1}.
func StorageAffinityForOID(o oid.Oid) StorageAffinity {
	switch o {
	case oid.T_date, oid.T_time, oid.T_timetz, oid.T_timestamp, oid.T_timestamptz, oid.T_interval:
		return StorageAffinity{EngineType: "INTEGER"}
	case oid.T_numeric:
		return StorageAffinity{EngineType: "TEXT", Check: `typeof("%s") IN ('text', 'null')`}
	case oid.T_bool:
		return StorageAffinity{EngineType: "INTEGER", Check: `"%s" IN (0, 1)`}
	case oid.T_int2, oid.T_int4, oid.T_int8:
		return StorageAffinity{EngineType: "INTEGER"}
	case oid.T_float4, oid.T_float8:
		return StorageAffinity{EngineType: "REAL"}
	case oid.T_bytea:
		return StorageAffinity{EngineType: "BLOB"}
	default:
		return StorageAffinity{EngineType: "TEXT"}
	}
}
