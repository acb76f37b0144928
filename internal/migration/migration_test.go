package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/smallbiznis/pricedesk/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file %s", name)
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestMigrationsCreateEveryTable(t *testing.T) {
	raw, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000001_core.up.sql")
	require.NoError(t, err)
	all := string(raw)
	for _, name := range []string{"000002_catalog", "000003_sales", "000004_contracts", "000005_salesforce"} {
		b, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/"+name+".up.sql")
		require.NoError(t, err)
		all += string(b)
	}

	for _, m := range Models() {
		tabler, ok := m.(interface{ TableName() string })
		require.True(t, ok, "%T has no table name", m)
		assert.Contains(t, all, "CREATE TABLE IF NOT EXISTS "+tabler.TableName()+" (")
	}
	assert.Contains(t, all, "CREATE TABLE IF NOT EXISTS casbin_rule (")
}

func TestAutoMigrate(t *testing.T) {
	conn := dbtest.Open(t)
	require.NoError(t, AutoMigrate(conn))

	for _, table := range []string{"quotes", "contract_signatures", "salesforce_sync_logs", "casbin_rule"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}
