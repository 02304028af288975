package translate

import "regexp"

// Full-text search rewrites: PostgreSQL's to_tsvector/to_tsquery family and
// the `@@` match operator route to engine UDFs (pg_fts_index/pg_fts_query/
// pg_fts_match/pg_fts_rank, registered by engine.registerFunctions) that
// compute the match directly against the text argument on every row. There
// is no shadow tsvector index kept in sync on write: tsvector columns are
// not stored or materialized anywhere, so a query using `@@` re-tokenizes
// its operands each time it runs, same cost whether or not the underlying
// column ever changed. This trades index-free storage for O(row) per-query
// cost, acceptable given the Non-goals on full PostgreSQL semantic fidelity.
var (
	toTsvectorPattern = regexp.MustCompile(`(?i)\bto_tsvector\s*\(\s*(?:'[\w-]+'\s*,\s*)?(.+?)\)`)
	toTsqueryPattern  = regexp.MustCompile(`(?i)\b(?:to_tsquery|plainto_tsquery|phraseto_tsquery)\s*\(\s*(?:'[\w-]+'\s*,\s*)?(.+?)\)`)
	ftsMatchPattern   = regexp.MustCompile(`(\S+)\s*@@\s*(\S+)`)
	tsRankPattern     = regexp.MustCompile(`(?i)\bts_rank\s*\(\s*(.+?)\s*,\s*(.+?)\)`)
)

func rewriteFullTextSearch(sql string) string {
	sql = ftsMatchPattern.ReplaceAllString(sql, "pg_fts_match($1, $2)")
	sql = toTsvectorPattern.ReplaceAllString(sql, "pg_fts_index($1)")
	sql = toTsqueryPattern.ReplaceAllString(sql, "pg_fts_query($1)")
	sql = tsRankPattern.ReplaceAllString(sql, "pg_fts_rank($1, $2)")
	return sql
}
