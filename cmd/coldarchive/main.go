package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/alecthomas/kong"
	"github.com/block/coldarchive/pkg/config"
	"github.com/block/coldarchive/pkg/runner"
	"github.com/block/coldarchive/pkg/source"
	"github.com/sirupsen/logrus"

	_ "time/tzdata"
)

var cli struct {
	Archive ArchiveCmd `cmd:"archive" help:"Archive day partitions older than their retention to Parquet files and delete them from the source"`
	Ledger  LedgerCmd  `cmd:"ledger"  help:"List the archived partitions of a table"`
}

// SourceFlags hold the connection to the row store being archived.
type SourceFlags struct {
	SourceType string `name:"source-type" help:"Source database type (mysql or postgres)" enum:"mysql,postgres" default:"mysql"`
	Host       string `name:"host" help:"Hostname" default:"127.0.0.1"`
	Port       int    `name:"port" help:"Port, 3306 for mysql and 5432 for postgres when unset" optional:""`
	Database   string `name:"database" help:"Database" default:"test"`
	Username   string `name:"username" help:"User" env:"COLDARCHIVE_DB_USER" default:"msandbox"`
	Password   string `name:"password" help:"Password" env:"COLDARCHIVE_DB_PASSWORD" default:"msandbox"`
	LedgerDB   string `name:"ledger-schema" help:"Schema (database on MySQL) holding the archive manifest" optional:""`
}

func (f SourceFlags) apply(s *config.Settings) {
	s.Source = config.SourceConfig{
		Type:     f.SourceType,
		Host:     f.Host,
		Port:     f.Port,
		Database: f.Database,
		User:     f.Username,
		Password: f.Password,
	}
	s.LedgerSchema = f.LedgerDB
}

// ArchiveCmd holds the arguments of an archive run.
type ArchiveCmd struct {
	RunID           string   `name:"run-id" help:"RunID used to correlate log lines" optional:""`
	ConfigFile      string   `name:"config" help:"Declarative YAML file with defaults and tables" optional:"" type:"path"`
	Manifest        string   `name:"manifest" help:"dbt manifest.json to discover tables tagged cold_archive" optional:"" type:"path"`
	Tables          []string `name:"table" help:"Table to archive as [schema.]name, repeatable" optional:""`
	DestinationType string   `name:"destination-type" help:"Where files are written (s3 or local)" enum:"s3,local" default:"s3"`
	Bucket          string   `name:"bucket" help:"Bucket, or root directory for local" default:"${bucket}"`
	Prefix          string   `name:"archive-prefix" help:"Key prefix of archived partitions" default:"${prefix}"`
	Endpoint        string   `name:"s3-endpoint" help:"Custom S3 endpoint, e.g. a MinIO host" optional:""`
	Region          string   `name:"s3-region" help:"S3 region" default:"${region}"`
	AccessKey       string   `name:"s3-access-key" help:"S3 access key" env:"COLDARCHIVE_S3_ACCESS_KEY" optional:""`
	SecretKey       string   `name:"s3-secret-key" help:"S3 secret key" env:"COLDARCHIVE_S3_SECRET_KEY" optional:""`
	UseTLS          bool     `name:"s3-use-tls" help:"Use TLS for a custom endpoint" default:"true" negatable:""`
	Compression     string   `name:"compression" help:"Parquet codec" default:"${compression}"`
	RetentionDays   int      `name:"retention-days" help:"Days of partitions kept in the source" default:"${retention}"`
	PartitionColumn string   `name:"partition-column" help:"Default partition column" default:"${column}"`
	Timezone        string   `name:"timezone" help:"Timezone partition days are computed in" default:"${timezone}"`
	MaxFileSize     uint64   `name:"max-file-size" help:"Approximate maximum size of a Parquet file in bytes" default:"${maxfilesize}"`
	DryRun          bool     `name:"dry-run" help:"Log what would be archived without writing or deleting anything"`
	SourceFlags
}

func (a *ArchiveCmd) settings() config.Settings {
	s := config.Defaults()
	s.DestinationType = a.DestinationType
	s.Bucket = a.Bucket
	s.ArchivePrefix = a.Prefix
	s.Endpoint = a.Endpoint
	s.Region = a.Region
	s.AccessKey = a.AccessKey
	s.SecretKey = a.SecretKey
	s.UseTLS = a.UseTLS
	s.Compression = a.Compression
	s.RetentionDays = a.RetentionDays
	s.PartitionColumn = a.PartitionColumn
	s.Timezone = a.Timezone
	s.MaxFileSize = a.MaxFileSize
	s.DryRun = a.DryRun
	s.ConfigFile = a.ConfigFile
	s.ManifestPath = a.Manifest
	a.SourceFlags.apply(&s)
	for _, name := range a.Tables {
		s.Tables = append(s.Tables, tableSpec(name))
	}

	return s
}

func tableSpec(name string) config.TableSpec {
	t := parseTable(name)

	return config.TableSpec{Schema: t.Schema, Name: t.Name}
}

func parseTable(name string) source.Table {
	if schema, tbl, ok := strings.Cut(name, "."); ok {
		return source.Table{Schema: schema, Name: tbl}
	}

	return source.Table{Name: name}
}

// Run invokes the archiving process. Blocks until completion.
func (a *ArchiveCmd) Run() error {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	archiveRunner, err := runner.NewArchiveRunner(&runner.ArchiveRunnerConfig{
		Settings: a.settings(),
		RunID:    a.RunID,
	}, logger)
	if err != nil {
		return fmt.Errorf("error creating archive runner: %w", err)
	}

	return archiveRunner.Run(context.Background())
}

// LedgerCmd prints the manifest entries of one table.
type LedgerCmd struct {
	Schema string `name:"schema" help:"Schema of the table, defaults to the source database" optional:""`
	Table  string `name:"table" help:"Name of the table" required:""`
	SourceFlags
}

func (l *LedgerCmd) Run() error {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	s := config.Defaults()
	l.SourceFlags.apply(&s)
	t := source.Table{Schema: l.Schema, Name: l.Table}
	if t.Schema == "" {
		t.Schema = s.DefaultSchema()
	}

	archiveRunner, err := runner.NewArchiveRunner(&runner.ArchiveRunnerConfig{Settings: s}, logger)
	if err != nil {
		return fmt.Errorf("error creating archive runner: %w", err)
	}
	entries, err := archiveRunner.Entries(context.Background(), t)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PARTITION\tROWS\tLOCATION\tARCHIVED AT")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", e.Partition, e.RowCount, e.Location, e.ArchivedAt.Format("2006-01-02 15:04:05"))
	}

	return w.Flush()
}

func main() {
	parsedCmd := kong.Parse(&cli,
		kong.Name("coldarchive"),
		kong.Description("Moves day partitions of large tables into Parquet files in object storage."),
		kong.Vars{
			"bucket":      config.DefaultBucket,
			"prefix":      config.DefaultArchivePrefix,
			"region":      config.DefaultRegion,
			"compression": config.DefaultCompression,
			"retention":   fmt.Sprint(config.DefaultRetentionDays),
			"column":      config.DefaultPartitionColumn,
			"timezone":    config.DefaultTimezone,
			"maxfilesize": fmt.Sprint(config.DefaultMaxFileSize),
		})
	parsedCmd.FatalIfErrorf(parsedCmd.Run())
}
