package engine

import (
	"regexp"
	"strings"
	"sync"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// registerFunctions installs the user-defined functions the Query
// Translator's rewrites depend on: regex matching for `~`/`!~`/`~*`/`!~*`,
// and a minimal full-text search shim for to_tsvector/to_tsquery/`@@`/
// ts_rank. The engine contract (§6.3) requires the engine to support UDFs
// for exactly this reason.
func registerFunctions(conn *sqlite3.SQLiteConn) error {
	if err := conn.RegisterFunc("pg_regex", pgRegex, true); err != nil {
		return err
	}
	if err := conn.RegisterFunc("pg_fts_index", pgFTSIndex, true); err != nil {
		return err
	}
	if err := conn.RegisterFunc("pg_fts_query", pgFTSQuery, true); err != nil {
		return err
	}
	if err := conn.RegisterFunc("pg_fts_match", pgFTSMatch, true); err != nil {
		return err
	}
	if err := conn.RegisterFunc("pg_fts_rank", pgFTSRank, true); err != nil {
		return err
	}
	return nil
}

var regexCacheMu sync.Mutex
var regexCache = map[string]*regexp.Regexp{}

// pgRegex implements the `~`/`!~`/`~*`/`!~*` operators: POSIX-ish regex
// match against text, case sensitive unless caseInsensitive is true.
// Compiled patterns are cached since the same pattern is typically
// re-evaluated once per row.
func pgRegex(text, pattern string, caseInsensitive bool) (bool, error) {
	key := pattern
	if caseInsensitive {
		key = "(?i)" + pattern
	}

	regexCacheMu.Lock()
	re, ok := regexCache[key]
	regexCacheMu.Unlock()

	if !ok {
		compiled, err := regexp.Compile(key)
		if err != nil {
			return false, err
		}
		re = compiled
		regexCacheMu.Lock()
		regexCache[key] = re
		regexCacheMu.Unlock()
	}

	return re.MatchString(text), nil
}

// pgFTSIndex normalizes free text into the adapter's tsvector shadow
// representation: a lowercased, whitespace-delimited token list. This is
// a deliberately simplified stand-in for PostgreSQL's tsvector (no
// stemming, no language configs, no lexeme positions) since full lexical
// parity with PostgreSQL's text search is out of the core's scope.
func pgFTSIndex(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// pgFTSQuery turns a tsquery-style expression into the same normalized
// token form pgFTSIndex produces, so pgFTSMatch can compare them as sets.
func pgFTSQuery(text string) string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r == '&' || r == '|' || r == '!' || r == ' '
	})
	return strings.Join(fields, " ")
}

// pgFTSMatch implements `@@`: every token in the query must appear in the
// indexed text.
func pgFTSMatch(indexed, query string) bool {
	tokens := strings.Fields(indexed)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}

	for _, q := range strings.Fields(query) {
		if _, ok := set[q]; !ok {
			return false
		}
	}
	return true
}

// pgFTSRank approximates ts_rank as the fraction of query tokens present
// in the indexed text, which preserves relative ordering for the common
// case of ranking matches without implementing PostgreSQL's weighted
// coverage/density algorithm.
func pgFTSRank(indexed, query string) float64 {
	qTokens := strings.Fields(query)
	if len(qTokens) == 0 {
		return 0
	}

	set := make(map[string]struct{})
	for _, t := range strings.Fields(indexed) {
		set[t] = struct{}{}
	}

	hits := 0
	for _, q := range qTokens {
		if _, ok := set[q]; ok {
			hits++
		}
	}

	return float64(hits) / float64(len(qTokens))
}
