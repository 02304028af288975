// Package translate implements the Query Translator (component L5): a
// single pass over a parsed SQL statement that rewrites PostgreSQL-dialect
// constructs the engine cannot execute natively — datetime functions,
// regex operators, full-text search calls, catalog views, and `$N`
// parameter placeholders — into engine-native SQL. Classification follows
// the same pg_query_go walk riftdata-rift's parser package uses, so
// translation and the Simple-query command-tag logic share one parse.
package translate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// StatementKind classifies a parsed statement for both translation and
// CommandComplete tag purposes.
type StatementKind int

const (
	KindUnknown StatementKind = iota
	KindSelect
	KindInsert
	KindUpdate
	KindDelete
	KindDDL
	KindUtility
)

// CommandTag returns the verb used in a CommandComplete tag for this kind
// ("SELECT", "INSERT", "UPDATE", ...). DDL statements use their own verb,
// supplied separately by the caller since pg_query's node type already
// names it (CREATE TABLE, DROP INDEX, ...).
func (k StatementKind) CommandTag() string {
	switch k {
	case KindSelect:
		return "SELECT"
	case KindInsert:
		return "INSERT"
	case KindUpdate:
		return "UPDATE"
	case KindDelete:
		return "DELETE"
	default:
		return ""
	}
}

// Translation is the outcome of translating one statement: the rewritten
// SQL, its classification, and the ordinal-preserving parameter count
// inferred from `$N` placeholders.
type Translation struct {
	SQL        string
	Kind       StatementKind
	ParamCount int
	Table      string // best-effort primary table, for catalog-override lookups
}

// Translator applies the L5 rewrites and caches results keyed by the
// original SQL text, since every rewrite is idempotent and repeat
// executions of the same prepared statement text are the common case.
type Translator struct {
	mu    sync.RWMutex
	cache map[string]Translation
}

// New constructs an empty Translator.
func New() *Translator {
	return &Translator{cache: make(map[string]Translation)}
}

// Translate rewrites sql into engine-native SQL, or returns the cached
// result of a previous call with the same input.
func (t *Translator) Translate(sql string) (Translation, error) {
	t.mu.RLock()
	if cached, ok := t.cache[sql]; ok {
		t.mu.RUnlock()
		return cached, nil
	}
	t.mu.RUnlock()

	tree, err := pg_query.Parse(sql)
	if err != nil {
		return Translation{}, fmt.Errorf("translate: parse: %w", err)
	}

	rewritten := sql
	kind := KindUnknown
	table := ""
	if len(tree.Stmts) > 0 && tree.Stmts[0].Stmt != nil {
		kind = classify(tree.Stmts[0].Stmt)
		table = primaryTable(tree.Stmts[0].Stmt)
	}

	rewritten = rewriteDatetimeFunctions(rewritten)
	rewritten = rewriteRegexOperators(rewritten)
	rewritten = rewriteFullTextSearch(rewritten)
	rewritten = rewriteCatalogViews(rewritten)
	if kind == KindDDL {
		rewritten = rewriteCreateTableStorageAffinity(rewritten)
	}

	out := Translation{
		SQL:        rewritten,
		Kind:       kind,
		ParamCount: countPlaceholders(rewritten),
		Table:      table,
	}

	t.mu.Lock()
	t.cache[sql] = out
	t.mu.Unlock()

	return out, nil
}

// classify mirrors riftdata-rift's classifyStatement: a type switch over
// the parsed statement's concrete node type.
func classify(stmt *pg_query.Node) StatementKind {
	switch stmt.Node.(type) {
	case *pg_query.Node_SelectStmt:
		return KindSelect
	case *pg_query.Node_InsertStmt:
		return KindInsert
	case *pg_query.Node_UpdateStmt:
		return KindUpdate
	case *pg_query.Node_DeleteStmt:
		return KindDelete
	case *pg_query.Node_CreateStmt, *pg_query.Node_DropStmt, *pg_query.Node_IndexStmt,
		*pg_query.Node_AlterTableStmt:
		return KindDDL
	case *pg_query.Node_VariableSetStmt, *pg_query.Node_VariableShowStmt,
		*pg_query.Node_TransactionStmt:
		return KindUtility
	default:
		return KindUnknown
	}
}

// primaryTable returns the first table referenced by a SELECT, INSERT,
// UPDATE, or DELETE statement, for catalog-override lookups keyed by
// (table, column). Joins resolve to the first FROM-clause entry; this is
// a best-effort heuristic the Type Registry falls back from (to the
// declared-type and sample-sniffing steps) when it is empty or does not
// carry an override for the column in question.
func primaryTable(stmt *pg_query.Node) string {
	switch n := stmt.Node.(type) {
	case *pg_query.Node_SelectStmt:
		for _, item := range n.SelectStmt.FromClause {
			if rv, ok := item.Node.(*pg_query.Node_RangeVar); ok {
				return rv.RangeVar.Relname
			}
		}
	case *pg_query.Node_InsertStmt:
		if n.InsertStmt.Relation != nil {
			return n.InsertStmt.Relation.Relname
		}
	case *pg_query.Node_UpdateStmt:
		if n.UpdateStmt.Relation != nil {
			return n.UpdateStmt.Relation.Relname
		}
	case *pg_query.Node_DeleteStmt:
		if n.DeleteStmt.Relation != nil {
			return n.DeleteStmt.Relation.Relname
		}
	}
	return ""
}

// ddlVerbPattern extracts the leading verb phrase of a DDL statement for
// use as its CommandComplete tag (CREATE TABLE, DROP INDEX, ALTER TABLE —
// PostgreSQL's own tags for these statements carry the object type).
var ddlVerbPattern = regexp.MustCompile(`(?i)^\s*(CREATE\s+(?:UNIQUE\s+)?(?:TABLE|INDEX|VIEW)|DROP\s+(?:TABLE|INDEX|VIEW)|ALTER\s+TABLE)`)

// DDLVerb returns the normalized command tag verb for a DDL statement, or
// "" if sql does not match a recognized DDL form.
func DDLVerb(sql string) string {
	m := ddlVerbPattern.FindStringSubmatch(sql)
	if m == nil {
		return ""
	}
	return strings.ToUpper(strings.Join(strings.Fields(m[1]), " "))
}

// EngineSQL rewrites `$N` parameter markers in an already-translated
// statement into SQLite's own numbered-parameter syntax `?N`, which
// database/sql's go-sqlite3 driver binds positionally by ordinal number
// rather than by occurrence order — this preserves the ordinal mapping
// the spec requires even when a parameter is referenced more than once in
// the same statement. This conversion happens only at engine-Prepare time,
// kept out of Translate/Translation.SQL itself, since pg_query_go cannot
// re-parse `?N` syntax on a hypothetical second translation pass and the
// Query Translator's idempotence contract (translate(translate(sql)) ==
// translate(sql)) must hold on its cached SQL text.
func EngineSQL(sql string) string {
	return placeholderRewritePattern.ReplaceAllString(sql, "?$1")
}

var placeholderRewritePattern = regexp.MustCompile(`\$(\d+)`)

// countPlaceholders returns the highest `$N` parameter marker, which is the
// adapter's approximation of "the translated SQL's declared parameter
// count" used by the Prepared Statement invariant in §8.
var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

func countPlaceholders(sql string) int {
	matches := placeholderPattern.FindAllStringSubmatch(sql, -1)
	max := 0
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > max {
			max = n
		}
	}
	return max
}
