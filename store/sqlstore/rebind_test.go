package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	query := `UPDATE rewards SET status = ? WHERE id = ? AND status = ?`

	sqlite := conn{dialect: DialectSQLite}
	assert.Equal(t, query, sqlite.rebind(query))

	pg := conn{dialect: DialectPostgres}
	assert.Equal(t, `UPDATE rewards SET status = $1 WHERE id = $2 AND status = $3`, pg.rebind(query))
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{
		"sqlite3":    DialectSQLite,
		"SQLite":     DialectSQLite,
		"postgres":   DialectPostgres,
		"postgresql": DialectPostgres,
	} {
		got, err := ParseDialect(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseDialect("mysql")
	assert.Error(t, err)
}
