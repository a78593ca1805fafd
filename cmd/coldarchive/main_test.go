package main

import (
	"testing"

	"github.com/alecthomas/kong"
	"github.com/block/coldarchive/pkg/config"
	"github.com/block/coldarchive/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTable(t *testing.T) {
	assert.Equal(t, source.Table{Schema: "app", Name: "events"}, parseTable("app.events"))
	assert.Equal(t, source.Table{Name: "events"}, parseTable("events"))
}

func newParser(t *testing.T, cmd any) *kong.Kong {
	t.Helper()
	parser, err := kong.New(cmd, kong.Vars{
		"bucket":      config.DefaultBucket,
		"prefix":      config.DefaultArchivePrefix,
		"region":      config.DefaultRegion,
		"compression": config.DefaultCompression,
		"retention":   "90",
		"column":      config.DefaultPartitionColumn,
		"timezone":    config.DefaultTimezone,
		"maxfilesize": "1024",
	})
	require.NoError(t, err)

	return parser
}

func TestArchiveCmdSettings(t *testing.T) {
	var cmd struct {
		Archive ArchiveCmd `cmd:""`
	}
	parser := newParser(t, &cmd)
	_, err := parser.Parse([]string{"archive",
		"--table", "app.events", "--table", "orders",
		"--source-type", "postgres", "--port", "5432", "--database", "shop",
		"--retention-days", "7", "--dry-run", "--no-s3-use-tls",
	})
	require.NoError(t, err)

	s := cmd.Archive.settings()
	assert.Equal(t, []config.TableSpec{{Schema: "app", Name: "events"}, {Name: "orders"}}, s.Tables)
	assert.Equal(t, config.SourcePostgres, s.Source.Type)
	assert.Equal(t, 5432, s.Source.Port)
	assert.Equal(t, 7, s.RetentionDays)
	assert.True(t, s.DryRun)
	assert.False(t, s.UseTLS)
	assert.EqualValues(t, 1024, s.MaxFileSize)
	assert.Equal(t, config.DefaultBucket, s.Bucket)

	resolved, err := config.Resolve(s)
	require.NoError(t, err)
	// tables without a schema use public on Postgres
	assert.Equal(t, "public", resolved.Tables[1].Schema)
}

func TestArchiveCmdDefaultPort(t *testing.T) {
	for _, tt := range []struct {
		sourceType string
		port       int
	}{
		{"mysql", 3306},
		{"postgres", 5432},
	} {
		t.Run(tt.sourceType, func(t *testing.T) {
			var cmd struct {
				Archive ArchiveCmd `cmd:""`
			}
			_, err := newParser(t, &cmd).Parse([]string{"archive", "--table", "app.events", "--source-type", tt.sourceType})
			require.NoError(t, err)
			resolved, err := config.Resolve(cmd.Archive.settings())
			require.NoError(t, err)
			assert.Equal(t, tt.port, resolved.Source.Port)
		})
	}
}
