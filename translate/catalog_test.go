package translate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRewriteCatalogViews(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "pg_class rewritten to backing view",
			input: `SELECT relname FROM pg_catalog.pg_class`,
			want:  `SELECT relname FROM __pg_class_view`,
		},
		{
			name:  "pg_namespace rewritten",
			input: `SELECT nspname FROM pg_catalog.pg_namespace`,
			want:  `SELECT nspname FROM __pg_namespace_view`,
		},
		{
			name:  "pg_attribute rewritten",
			input: `SELECT attname FROM pg_catalog.pg_attribute`,
			want:  `SELECT attname FROM __pg_attribute_view`,
		},
		{
			name:  "pg_type rewritten",
			input: `SELECT typname FROM pg_catalog.pg_type`,
			want:  `SELECT typname FROM __pg_type_view`,
		},
		{
			name:  "unimplemented relation left untouched",
			input: `SELECT conname FROM pg_catalog.pg_constraint`,
			want:  `SELECT conname FROM pg_catalog.pg_constraint`,
		},
		{
			name:  "no pg_catalog reference",
			input: `SELECT 1`,
			want:  `SELECT 1`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, rewriteCatalogViews(tt.input))
		})
	}
}

func TestCatalogViewNamesOnlyCoversImplementedViews(t *testing.T) {
	// Every entry must correspond to a view engine.bootstrapCatalog creates;
	// the set here is intentionally the same four relations, kept in sync
	// by hand since the two packages don't share a constant (translate must
	// not import engine, and engine must not import translate).
	want := map[string]string{
		"pg_class":     "__pg_class_view",
		"pg_namespace": "__pg_namespace_view",
		"pg_attribute": "__pg_attribute_view",
		"pg_type":      "__pg_type_view",
	}
	require.Equal(t, want, catalogViewNames)
}
