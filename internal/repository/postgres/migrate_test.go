package postgres

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u:p@localhost:5432/db?sslmode=disable", "pgx5://u:p@localhost:5432/db?sslmode=disable"},
		{"postgresql://localhost/db", "pgx5://localhost/db"},
		{"pgx5://localhost/db", "pgx5://localhost/db"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, migrationURL(tt.in))
		})
	}
}

func TestMigrationsAreEmbedded(t *testing.T) {
	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	require.NoError(t, err)

	// every up migration has a matching down migration
	assert.Len(t, files, 6)
	assert.Contains(t, files, "migrations/000002_create_messages.up.sql")
	assert.Contains(t, files, "migrations/000002_create_messages.down.sql")
	assert.Contains(t, files, "migrations/000003_add_message_correlation_id.up.sql")
}

func TestNullable(t *testing.T) {
	assert.Nil(t, nullable(""))
	require.NotNil(t, nullable("t1"))
	assert.Equal(t, "t1", *nullable("t1"))
}
