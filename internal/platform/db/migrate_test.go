package db

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamdesk/identity/migrations"
)

func TestLoadMigrationsOrdersAndPairs(t *testing.T) {
	fsys := fstest.MapFS{
		"000002_audit.up.sql":      {Data: []byte("CREATE TABLE b ();")},
		"000001_init.up.sql":       {Data: []byte("CREATE TABLE a ();")},
		"000001_init.down.sql":     {Data: []byte("DROP TABLE a;")},
		"README.md":                {Data: []byte("ignored")},
		"000003_scratch.notes.sql": {Data: []byte("ignored")},
	}

	got, err := LoadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "000001", got[0].Version)
	assert.Equal(t, "init", got[0].Name)
	assert.Equal(t, "DROP TABLE a;", got[0].DownSQL)
	assert.Equal(t, "000002", got[1].Version)
	assert.Empty(t, got[1].DownSQL)
}

func TestLoadMigrationsRejectsMissingUp(t *testing.T) {
	_, err := LoadMigrations(fstest.MapFS{"000001_init.down.sql": {Data: []byte("DROP TABLE a;")}})
	assert.Error(t, err)
}

func TestLoadMigrationsRejectsMissingVersion(t *testing.T) {
	_, err := LoadMigrations(fstest.MapFS{"init.up.sql": {Data: []byte("CREATE TABLE a ();")}})
	assert.Error(t, err)
}

func TestEmbeddedSchemaNamesMappedConstraints(t *testing.T) {
	got, err := LoadMigrations(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, got)

	schema := got[0].UpSQL
	for _, constraint := range []string{
		"users_email_key",
		"users_username_key",
		"users_created_by_fkey",
		"roles_name_key",
		"permissions_name_key",
		"role_permissions_pkey",
		"user_roles_pkey",
		"user_roles_role_id_fkey",
	} {
		assert.Contains(t, schema, constraint)
	}
	assert.NotContains(t, schema, "CASCADE")
}
