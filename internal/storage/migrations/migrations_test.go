package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-candle-lab/internal/features"
)

func TestEmbeddedMigrations_Ordered(t *testing.T) {
	pg, err := Postgres()
	require.NoError(t, err)
	require.Len(t, pg, 3)
	assert.Equal(t, "001_instruments.sql", pg[0].Name)
	assert.Equal(t, "003_unit_runs.sql", pg[2].Name)

	ch, err := Clickhouse()
	require.NoError(t, err)
	require.NotEmpty(t, ch)
	for _, m := range ch {
		stmts, err := SplitStatements(m.SQL)
		assert.NoError(t, err, m.Name)
		assert.NotEmpty(t, stmts, m.Name)
	}
}

func TestClickhouseCandlesTable_HasEveryFeatureColumn(t *testing.T) {
	ch, err := Clickhouse()
	require.NoError(t, err)

	var ddl string
	for _, m := range ch {
		ddl += m.SQL
	}
	for _, name := range features.FieldNames() {
		assert.Contains(t, ddl, "    "+name+" ", "candles table missing %s", name)
	}
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{
			name: "comments dropped",
			sql:  "-- header\nCREATE TABLE a (x Int64);\n\n-- trailing",
			want: []string{"CREATE TABLE a (x Int64)"},
		},
		{
			name: "semicolon in literal",
			sql:  "SELECT 'a;b'; SELECT 'it''s';",
			want: []string{"SELECT 'a;b'", "SELECT 'it''s'"},
		},
		{
			name: "semicolon in identifier and block comment",
			sql:  "SELECT 1 AS `x;y` /* ; */; SELECT 2",
			want: []string{"SELECT 1 AS `x;y`", "SELECT 2"},
		},
		{
			name: "backslash escape",
			sql:  `SELECT 'a\';b';`,
			want: []string{`SELECT 'a\';b'`},
		},
		{
			name: "dashes inside literal kept",
			sql:  "SELECT '--not a comment';",
			want: []string{"SELECT '--not a comment'"},
		},
		{
			name: "empty",
			sql:  " ;\n-- only a comment\n",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SplitStatements(tt.sql)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitStatements_MultiLine(t *testing.T) {
	stmts, err := SplitStatements("CREATE TABLE b (\n    y String -- label\n);\n")
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "y String")
	assert.NotContains(t, stmts[0], "label")
}

func TestSplitStatements_Unterminated(t *testing.T) {
	_, err := SplitStatements("SELECT 'open;")
	assert.ErrorContains(t, err, "unterminated")

	_, err = SplitStatements("SELECT 1 /* never closed")
	assert.ErrorContains(t, err, "block comment")
}
