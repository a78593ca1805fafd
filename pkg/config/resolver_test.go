package config

import (
	"os"
	"path/filepath"
	"testing"
	_ "time/tzdata"

	"github.com/block/coldarchive/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func baseSettings() Settings {
	s := Defaults()
	s.Source.Database = "app"

	return s
}

const coldYAML = `
defaults:
  bucket: cold-bucket
  archive_prefix: archive/cold
  compression: SNAPPY
  retention_days: 30
  extraction_timezone: America/Chicago
  default_date_column: created_at
tables:
  - schema: public
    name: events
    retention_days: 7
  - name: orders
    date_column: ordered_at
`

const manifestJSON = `{
  "nodes": {
    "model.shop.events": {
      "resource_type": "model",
      "name": "events",
      "schema": "public",
      "tags": ["cold_archive"],
      "meta": {}
    },
    "model.shop.sessions": {
      "resource_type": "model",
      "name": "sessions_raw",
      "alias": "sessions",
      "schema": "public",
      "meta": {"cold_storage": {"partition_column": "started_at", "retention_days": 14}}
    },
    "model.shop.untagged": {
      "resource_type": "model",
      "name": "untagged",
      "schema": "public",
      "tags": ["daily"]
    },
    "test.shop.not_null": {
      "resource_type": "test",
      "name": "not_null",
      "schema": "public",
      "tags": ["cold_archive"]
    }
  },
  "sources": {
    "source.shop.raw.clicks": {
      "resource_type": "source",
      "name": "clicks",
      "identifier": "click_stream",
      "fqn": ["shop", "raw", "clicks"],
      "meta": {"cold_storage": {"date_column": "clicked_at"}}
    }
  }
}`

func TestResolveAppliesFileDefaults(t *testing.T) {
	s := baseSettings()
	s.ConfigFile = writeFile(t, "cold.yml", coldYAML)

	resolved, err := Resolve(s)
	require.NoError(t, err)

	assert.Equal(t, "cold-bucket", resolved.Bucket)
	assert.Equal(t, "archive/cold", resolved.ArchivePrefix)
	assert.Equal(t, "SNAPPY", resolved.Compression)
	assert.Equal(t, 30, resolved.RetentionDays)
	assert.Equal(t, "America/Chicago", resolved.Timezone)
	assert.Equal(t, "created_at", resolved.PartitionColumn)
	// keys absent from the file keep their in-memory value
	assert.Equal(t, DefaultRegion, resolved.Region)
	assert.True(t, resolved.UseTLS)

	require.Len(t, resolved.Tables, 2)
	assert.Equal(t, "public.events", resolved.Tables[0].Key())
	assert.Equal(t, 7, resolved.Retention(resolved.Tables[0]))
	assert.Equal(t, "created_at", resolved.Column(resolved.Tables[0]))
	assert.Equal(t, "app.orders", resolved.Tables[1].Key())
	assert.Equal(t, "ordered_at", resolved.Column(resolved.Tables[1]))
	assert.Equal(t, 30, resolved.Retention(resolved.Tables[1]))

	// base is not mutated
	assert.Equal(t, DefaultBucket, s.Bucket)
	assert.Empty(t, s.Tables)
}

func TestResolveManifestDiscovery(t *testing.T) {
	s := baseSettings()
	s.Source.Type = SourcePostgres
	s.ManifestPath = writeFile(t, "manifest.json", manifestJSON)

	resolved, err := Resolve(s)
	require.NoError(t, err)

	require.Len(t, resolved.Tables, 3)
	assert.Equal(t, TableSpec{Schema: "public", Name: "events"}, resolved.Tables[0])
	assert.Equal(t, "public.sessions", resolved.Tables[1].Key())
	assert.Equal(t, "started_at", resolved.Tables[1].PartitionColumn)
	assert.Equal(t, 14, *resolved.Tables[1].RetentionDays)
	assert.Equal(t, "raw.click_stream", resolved.Tables[2].Key())
	assert.Equal(t, "clicked_at", resolved.Tables[2].PartitionColumn)
}

func TestResolvePrecedence(t *testing.T) {
	s := baseSettings()
	s.Source.Type = SourcePostgres
	s.ManifestPath = writeFile(t, "manifest.json", manifestJSON)
	s.ConfigFile = writeFile(t, "cold.yml", coldYAML)
	s.Tables = []TableSpec{{Name: "events", PartitionColumn: "inserted_at"}}

	resolved, err := Resolve(s)
	require.NoError(t, err)

	keys := make([]string, 0, len(resolved.Tables))
	for _, tbl := range resolved.Tables {
		keys = append(keys, tbl.Key())
	}
	assert.Equal(t, []string{"public.events", "public.sessions", "raw.click_stream", "public.orders"}, keys)

	// explicit replaces the file entry entirely, so the file's retention is gone
	events := resolved.Tables[0]
	assert.Equal(t, "inserted_at", events.PartitionColumn)
	assert.Nil(t, events.RetentionDays)
	assert.Equal(t, 30, resolved.Retention(events))
}

func TestMerge(t *testing.T) {
	merged := Merge("app",
		[]TableSpec{{Name: "a"}, {Schema: "x", Name: "b"}},
		[]TableSpec{{Schema: "app", Name: "a", RetentionDays: intPtr(3)}, {Name: "c"}},
		nil,
	)
	require.Len(t, merged, 3)
	assert.Equal(t, "app.a", merged[0].Key())
	assert.Equal(t, 3, *merged[0].RetentionDays)
	assert.Equal(t, "x.b", merged[1].Key())
	assert.Equal(t, "app.c", merged[2].Key())

	assert.Empty(t, Merge("app"))
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, s *Settings)
		msg    string
	}{
		{
			name:   "no tables",
			mutate: func(t *testing.T, s *Settings) {},
			msg:    "no tables configured or discovered for archiving",
		},
		{
			name: "missing yaml",
			mutate: func(t *testing.T, s *Settings) {
				s.ConfigFile = filepath.Join(t.TempDir(), "missing.yml")
			},
			msg: "YAML config not found",
		},
		{
			name: "missing manifest",
			mutate: func(t *testing.T, s *Settings) {
				s.ManifestPath = filepath.Join(t.TempDir(), "manifest.json")
			},
			msg: "dbt manifest not found",
		},
		{
			name: "table without name",
			mutate: func(t *testing.T, s *Settings) {
				s.ConfigFile = writeFile(t, "cold.yml", "tables:\n  - schema: public\n")
			},
			msg: "invalid table entry at",
		},
		{
			name: "malformed table entry",
			mutate: func(t *testing.T, s *Settings) {
				s.ConfigFile = writeFile(t, "cold.yml", "tables:\n  - name: events\n    retention_days: soon\n")
			},
			msg: "invalid table entry at",
		},
		{
			name: "negative retention",
			mutate: func(t *testing.T, s *Settings) {
				s.Tables = []TableSpec{{Name: "events", RetentionDays: intPtr(-1)}}
			},
			msg: "retention days must not be negative",
		},
		{
			name: "no partition column",
			mutate: func(t *testing.T, s *Settings) {
				s.PartitionColumn = ""
				s.Tables = []TableSpec{{Name: "events"}}
			},
			msg: "no partition column specified",
		},
		{
			name: "bad timezone",
			mutate: func(t *testing.T, s *Settings) {
				s.Timezone = "Mars/Olympus"
				s.Tables = []TableSpec{{Name: "events"}}
			},
			msg: "invalid timezone",
		},
		{
			name: "bad codec",
			mutate: func(t *testing.T, s *Settings) {
				s.Compression = "BZIP9"
				s.Tables = []TableSpec{{Name: "events"}}
			},
			msg: "invalid compression",
		},
		{
			name: "bad destination",
			mutate: func(t *testing.T, s *Settings) {
				s.DestinationType = "ftp"
				s.Tables = []TableSpec{{Name: "events"}}
			},
			msg: "unknown destination type",
		},
		{
			name: "same table name in two schemas",
			mutate: func(t *testing.T, s *Settings) {
				s.Tables = []TableSpec{{Schema: "app", Name: "events"}, {Schema: "app", Name: "orders"}, {Schema: "audit", Name: "events"}}
			},
			msg: "tables app.events and audit.events would be archived to the same location",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := baseSettings()
			tt.mutate(t, &s)
			_, err := Resolve(s)
			require.Error(t, err)
			require.ErrorIs(t, err, errs.ErrConfiguration)
			require.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestDefaultSchemaAndLedgerLocation(t *testing.T) {
	s := baseSettings()
	assert.Equal(t, "app", s.DefaultSchema())
	assert.Equal(t, DefaultMySQLLedgerDB, s.LedgerLocation())

	s.Source.Type = SourcePostgres
	assert.Equal(t, "public", s.DefaultSchema())
	assert.Equal(t, "public", s.LedgerLocation())

	s.LedgerSchema = "ops"
	assert.Equal(t, "ops", s.LedgerLocation())
}

func TestResolveSourcePort(t *testing.T) {
	s := baseSettings()
	s.Tables = []TableSpec{{Name: "events"}}
	resolved, err := Resolve(s)
	require.NoError(t, err)
	assert.Equal(t, DefaultMySQLPort, resolved.Source.Port)

	s.Source.Type = SourcePostgres
	resolved, err = Resolve(s)
	require.NoError(t, err)
	assert.Equal(t, DefaultPostgresPort, resolved.Source.Port)

	s.Source.Port = 6432
	resolved, err = Resolve(s)
	require.NoError(t, err)
	assert.Equal(t, 6432, resolved.Source.Port)

	// unresolved settings, as the ledger command uses, get the same default
	assert.Equal(t, "127.0.0.1:5432", SourceConfig{Type: SourcePostgres, Host: "127.0.0.1"}.Addr())
	assert.Equal(t, "127.0.0.1:3306", SourceConfig{Type: SourceMySQL, Host: "127.0.0.1"}.Addr())
}
