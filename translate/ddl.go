package translate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/latticedb/pgwire/catalog"
	"github.com/lib/pq/oid"
)

// createTableStmtPattern gates rewriteCreateTableStorageAffinity to actual
// CREATE TABLE statements; ALTER/DROP/INDEX DDL passes through untouched.
var createTableStmtPattern = regexp.MustCompile(`(?i)^\s*CREATE\s+(?:TEMP(?:ORARY)?\s+)?TABLE\b`)

// createTableColumnTypePattern matches a column name followed by one of the
// PostgreSQL types the engine has no native representation for (§4.4): the
// datetime family, NUMERIC/DECIMAL, and BOOLEAN.
var createTableColumnTypePattern = regexp.MustCompile(
	`(?i)("?\w+"?)\s+(NUMERIC(?:\s*\([^)]*\))?|DECIMAL(?:\s*\([^)]*\))?|BOOLEAN|BOOL|TIMESTAMPTZ|TIMESTAMP(?:\s+WITH(?:OUT)?\s+TIME\s+ZONE)?|TIMETZ|TIME(?:\s+WITH(?:OUT)?\s+TIME\s+ZONE)?|DATE|INTERVAL)\b`,
)

// ddlTypeOIDs maps the type keyword captured by createTableColumnTypePattern
// to the OID catalog.StorageAffinityForOID expects.
var ddlTypeOIDs = map[string]oid.Oid{
	"NUMERIC":     oid.T_numeric,
	"DECIMAL":     oid.T_numeric,
	"BOOLEAN":     oid.T_bool,
	"BOOL":        oid.T_bool,
	"TIMESTAMPTZ": oid.T_timestamptz,
	"TIMESTAMP":   oid.T_timestamp,
	"TIMETZ":      oid.T_timetz,
	"TIME":        oid.T_time,
	"DATE":        oid.T_date,
	"INTERVAL":    oid.T_interval,
}

// rewriteCreateTableStorageAffinity rewrites a CREATE TABLE statement's
// column types to the engine storage affinity the Type Registry's reverse
// mapping defines (§4.4): datetime family collapses to INTEGER, NUMERIC/
// DECIMAL to TEXT with a numeric-shaped CHECK, and BOOLEAN to INTEGER
// restricted to {0,1}. Checks are appended as table-level constraints
// rather than inline, so the column-type substitution stays a plain text
// replacement regardless of how the original definition was formatted.
func rewriteCreateTableStorageAffinity(sql string) string {
	if !createTableStmtPattern.MatchString(sql) {
		return sql
	}

	var checks []string
	rewritten := createTableColumnTypePattern.ReplaceAllStringFunc(sql, func(m string) string {
		groups := createTableColumnTypePattern.FindStringSubmatch(m)
		column, rawType := groups[1], groups[2]

		key := strings.ToUpper(strings.Fields(rawType)[0])
		o, ok := ddlTypeOIDs[key]
		if !ok {
			return m
		}

		affinity := catalog.StorageAffinityForOID(o)
		if affinity.Check != "" {
			checks = append(checks, fmt.Sprintf(affinity.Check, strings.Trim(column, `"`)))
		}

		return fmt.Sprintf("%s %s", column, affinity.EngineType)
	})

	if len(checks) == 0 {
		return rewritten
	}

	idx := strings.LastIndex(rewritten, ")")
	if idx < 0 {
		return rewritten
	}

	var b strings.Builder
	b.WriteString(rewritten[:idx])
	for _, c := range checks {
		b.WriteString(", CHECK (")
		b.WriteString(c)
		b.WriteString(")")
	}
	b.WriteString(rewritten[idx:])
	return b.String()
}
