package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestLoadMigrations_Embedded(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrations(migrationsFS)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	require.Equal(t, int64(1), migrations[0].Version)
	require.Equal(t, "store_documents", migrations[0].Name)
	require.Contains(t, migrations[0].Up, "CREATE TABLE IF NOT EXISTS store_documents")
	require.Equal(t, int64(2), migrations[1].Version)
}

func TestLoadMigrations_SortsByVersion(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0010_later.up.sql":   {Data: []byte("CREATE TABLE b (id INT);")},
		"sql/migrations/0010_later.down.sql": {Data: []byte("DROP TABLE b;")},
		"sql/migrations/0002_init.up.sql":    {Data: []byte("CREATE TABLE a (id INT);")},
		"sql/migrations/0002_init.down.sql":  {Data: []byte("DROP TABLE a;")},
	}

	migrations, err := loadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	require.Equal(t, "init", migrations[0].Name)
	require.Equal(t, "later", migrations[1].Name)
	require.Equal(t, "DROP TABLE b;", migrations[1].Down)
}

func TestLoadMigrations_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fsys    fstest.MapFS
		message string
	}{
		{
			name: "missing down",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql": {Data: []byte("SELECT 1;")},
			},
			message: "both up and down",
		},
		{
			name: "invalid file name",
			fsys: fstest.MapFS{
				"sql/migrations/not_a_migration.sql": {Data: []byte("SELECT 1;")},
			},
			message: "invalid migration file name",
		},
		{
			name: "empty body",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":   {Data: []byte("  \n")},
				"sql/migrations/0001_init.down.sql": {Data: []byte("SELECT 1;")},
			},
			message: "is empty",
		},
		{
			name: "name mismatch",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":    {Data: []byte("SELECT 1;")},
				"sql/migrations/0001_other.down.sql": {Data: []byte("SELECT 1;")},
			},
			message: "name mismatch",
		},
		{
			name:    "no directory",
			fsys:    fstest.MapFS{},
			message: "list migrations",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := loadMigrations(tt.fsys)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.message)
		})
	}
}
