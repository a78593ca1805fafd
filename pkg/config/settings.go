// Package config holds the archiver settings and resolves the set of tables
// to archive from a declarative YAML file, a dbt build manifest and tables
// supplied by the caller.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

const (
	DestinationS3    = "s3"
	DestinationLocal = "local"

	SourceMySQL    = "mysql"
	SourcePostgres = "postgres"

	DefaultBucket          = "datalake"
	DefaultArchivePrefix   = "archive/raw"
	DefaultRegion          = "us-east-1"
	DefaultCompression     = "ZSTD"
	DefaultRetentionDays   = 90
	DefaultTimezone        = "UTC"
	DefaultPartitionColumn = "_sdc_extracted_at"
	DefaultMaxFileSize     = 128 * 1024 * 1024
	DefaultMySQLLedgerDB   = "coldarchive"
	DefaultPostgresSchema  = "public"
	DefaultMySQLPort       = 3306
	DefaultPostgresPort    = 5432
)

// TableSpec identifies one source table by (Schema, Name). PartitionColumn
// and RetentionDays override the global defaults when set.
type TableSpec struct {
	Schema          string
	Name            string
	PartitionColumn string
	RetentionDays   *int
}

func (t TableSpec) Key() string {
	return t.Schema + "." + t.Name
}

func (t TableSpec) String() string {
	return t.Key()
}

// SourceConfig describes the connection to the row store partitions are
// archived from.
type SourceConfig struct {
	Type     string
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// Settings is the process-wide archiver configuration.
type Settings struct {
	DestinationType string
	Bucket          string
	ArchivePrefix   string
	Endpoint        string
	Region          string
	AccessKey       string
	SecretKey       string
	UseTLS          bool

	Compression     string
	RetentionDays   int
	PartitionColumn string
	Timezone        string
	MaxFileSize     uint64
	DryRun          bool

	ConfigFile   string
	ManifestPath string
	LedgerSchema string

	Source SourceConfig
	Tables []TableSpec
}

// Defaults returns settings populated with the built-in defaults and no
// tables.
func Defaults() Settings {
	return Settings{
		DestinationType: DestinationS3,
		Bucket:          DefaultBucket,
		ArchivePrefix:   DefaultArchivePrefix,
		Region:          DefaultRegion,
		UseTLS:          true,
		Compression:     DefaultCompression,
		RetentionDays:   DefaultRetentionDays,
		PartitionColumn: DefaultPartitionColumn,
		Timezone:        DefaultTimezone,
		MaxFileSize:     DefaultMaxFileSize,
		Source: SourceConfig{
			Type: SourceMySQL,
			Host: "127.0.0.1",
		},
	}
}

// DefaultSchema is the schema given to table entries that do not name one.
func (s Settings) DefaultSchema() string {
	if s.Source.Type == SourcePostgres {
		return DefaultPostgresSchema
	}

	return s.Source.Database
}

// port is the configured source port, or the default port of the source
// type when none is set.
func (c SourceConfig) port() int {
	if c.Port != 0 {
		return c.Port
	}
	if c.Type == SourcePostgres {
		return DefaultPostgresPort
	}

	return DefaultMySQLPort
}

// Addr is host:port of the source.
func (c SourceConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.port()))
}

// LedgerLocation is the schema (a database on MySQL) holding the archive
// manifest table.
func (s Settings) LedgerLocation() string {
	if s.LedgerSchema != "" {
		return s.LedgerSchema
	}
	if s.Source.Type == SourcePostgres {
		return DefaultPostgresSchema
	}

	return DefaultMySQLLedgerDB
}

// Location loads the configured timezone.
func (s Settings) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", s.Timezone, err)
	}

	return loc, nil
}

// Retention returns the effective retention for a table.
func (s Settings) Retention(t TableSpec) int {
	if t.RetentionDays != nil {
		return *t.RetentionDays
	}

	return s.RetentionDays
}

// Column returns the effective partition column for a table.
func (s Settings) Column(t TableSpec) string {
	if t.PartitionColumn != "" {
		return t.PartitionColumn
	}

	return s.PartitionColumn
}

func (s Settings) clone() Settings {
	c := s
	c.Tables = make([]TableSpec, len(s.Tables))
	copy(c.Tables, s.Tables)

	return c
}
