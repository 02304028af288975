package translate

import "regexp"

// Catalog compatibility: a handful of pg_catalog relations are rewritten
// to read from fixed views over sqlite_master and pragma_table_info(),
// created by engine.Open (see engine.bootstrapCatalog), just enough to
// satisfy psql's describe commands (\d, \dt, \l).
var pgCatalogViewPattern = regexp.MustCompile(`(?i)\bpg_catalog\.(pg_\w+)\b`)

// catalogViewNames maps a pg_catalog relation to the adapter's shadow view
// name. Only relations engine.bootstrapCatalog actually creates a view for
// are listed here; everything else is left untouched so an unsupported
// describe command fails with its original, legible table name instead of
// a reference to a view that was never created.
var catalogViewNames = map[string]string{
	"pg_class":     "__pg_class_view",
	"pg_namespace": "__pg_namespace_view",
	"pg_attribute": "__pg_attribute_view",
	"pg_type":      "__pg_type_view",
}

func rewriteCatalogViews(sql string) string {
	return pgCatalogViewPattern.ReplaceAllStringFunc(sql, func(m string) string {
		groups := pgCatalogViewPattern.FindStringSubmatch(m)
		relation := groups[1]
		if view, ok := catalogViewNames[relation]; ok {
			return view
		}
		return m
	})
}
