package translate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRewriteCreateTableStorageAffinity(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantType   string
		wantCheck  string
		wantNoStmt bool
	}{
		{
			name:      "numeric becomes text with check",
			input:     `CREATE TABLE accounts (id INTEGER, balance NUMERIC(10,2))`,
			wantType:  `balance TEXT`,
			wantCheck: `typeof("balance") IN ('text', 'null')`,
		},
		{
			name:      "boolean becomes integer with 0/1 check",
			input:     `CREATE TABLE flags (id INTEGER, active BOOLEAN)`,
			wantType:  `active INTEGER`,
			wantCheck: `"active" IN (0, 1)`,
		},
		{
			name:     "timestamp collapses to integer with no check",
			input:    `CREATE TABLE events (id INTEGER, seen_at TIMESTAMP)`,
			wantType: `seen_at INTEGER`,
		},
		{
			name:       "select statement is untouched",
			input:      `SELECT balance FROM accounts WHERE active = true`,
			wantNoStmt: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rewriteCreateTableStorageAffinity(tt.input)
			if tt.wantNoStmt {
				require.Equal(t, tt.input, got)
				return
			}
			require.Contains(t, got, tt.wantType)
			if tt.wantCheck != "" {
				require.Contains(t, got, tt.wantCheck)
				require.True(t, strings.HasSuffix(strings.TrimSpace(got), ")"))
			} else {
				require.NotContains(t, got, "CHECK")
			}
		})
	}
}

func TestRewriteCreateTableStorageAffinityMultipleChecks(t *testing.T) {
	got := rewriteCreateTableStorageAffinity(
		`CREATE TABLE t (id INTEGER, price NUMERIC, active BOOLEAN)`,
	)

	require.Contains(t, got, `price TEXT`)
	require.Contains(t, got, `active INTEGER`)
	require.Equal(t, 2, strings.Count(got, "CHECK ("))
}

func TestRewriteCreateTableStorageAffinityIgnoresUnknownTypes(t *testing.T) {
	input := `CREATE TABLE t (id INTEGER, name TEXT)`
	require.Equal(t, input, rewriteCreateTableStorageAffinity(input))
}
