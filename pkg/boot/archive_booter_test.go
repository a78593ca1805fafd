package boot

import (
	"context"
	"testing"

	"github.com/block/coldarchive/pkg/ledger"
	"github.com/block/coldarchive/pkg/source"
	"github.com/block/coldarchive/pkg/test"
	"github.com/block/coldarchive/pkg/test/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveBooter_Setup(t *testing.T) {
	db := test.SetupDB(t)
	test.RunSQL(t, `DROP DATABASE IF EXISTS coldarchive_boot`)

	ab := NewArchiveBooter(&ArchiveBooterConfig{
		Dialect: source.MySQL,
		DB:      db,
		Ledger:  ledger.NewMySQL(db, "coldarchive_boot"),
	})
	require.NoError(t, ab.PreflightChecks(context.Background()))
	require.NoError(t, ab.Setup(context.Background()))

	// Test that the manifest table is created
	assert.True(t, test.TableExists(t, "coldarchive_boot", ledger.TblName, db))

	// running setup again is a no-op
	require.NoError(t, ab.Setup(context.Background()))
}

func TestArchiveBooter_PreflightChecks(t *testing.T) {
	ctx := context.Background()

	ab := NewArchiveBooter(&ArchiveBooterConfig{Dialect: source.MySQL, Ledger: fake.NewLedger()})
	require.ErrorContains(t, ab.PreflightChecks(ctx), "no MySQL connection")

	ab = NewArchiveBooter(&ArchiveBooterConfig{Dialect: source.Postgres, Ledger: fake.NewLedger()})
	require.ErrorContains(t, ab.PreflightChecks(ctx), "no Postgres connection")

	ab = NewArchiveBooter(&ArchiveBooterConfig{Dialect: "oracle", Ledger: fake.NewLedger()})
	require.ErrorContains(t, ab.PreflightChecks(ctx), `unsupported source dialect "oracle"`)
}

func TestArchiveBooter_SetupEnsuresLedger(t *testing.T) {
	l := fake.NewLedger()
	ab := NewArchiveBooter(&ArchiveBooterConfig{Dialect: source.MySQL, Ledger: l})
	require.NoError(t, ab.Setup(context.Background()))
	assert.True(t, l.Ensured)
}
