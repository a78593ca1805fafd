package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/block/coldarchive/pkg/errs"
	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	Defaults fileDefaults `yaml:"defaults"`
	Tables   []yaml.Node  `yaml:"tables"`
}

// fileDefaults uses pointers so a key missing from the file leaves the
// in-memory value alone.
type fileDefaults struct {
	Bucket             *string `yaml:"bucket"`
	ArchivePrefix      *string `yaml:"archive_prefix"`
	S3Endpoint         *string `yaml:"s3_endpoint"`
	S3Region           *string `yaml:"s3_region"`
	S3UseSSL           *bool   `yaml:"s3_use_ssl"`
	Compression        *string `yaml:"compression"`
	RetentionDays      *int    `yaml:"retention_days"`
	ExtractionTimezone *string `yaml:"extraction_timezone"`
	Timezone           *string `yaml:"timezone"`
	DefaultDateColumn  *string `yaml:"default_date_column"`
	PartitionColumn    *string `yaml:"partition_column"`
}

type fileTable struct {
	Schema          string `yaml:"schema"`
	Name            string `yaml:"name"`
	PartitionColumn string `yaml:"partition_column"`
	DateColumn      string `yaml:"date_column"`
	RetentionDays   *int   `yaml:"retention_days"`
}

// loadFile reads the declarative config file and returns its defaults and
// table entries.
func loadFile(path string) (*fileDefaults, []TableSpec, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, errs.Configf("YAML config not found: %s", path)
	} else if err != nil {
		return nil, nil, &errs.ConfigurationError{Msg: "reading YAML config " + path, Err: err}
	}

	var fc fileConfig
	if err = yaml.Unmarshal(data, &fc); err != nil {
		return nil, nil, &errs.ConfigurationError{Msg: "parsing YAML config " + path, Err: err}
	}

	tables := make([]TableSpec, 0, len(fc.Tables))
	for i := range fc.Tables {
		node := &fc.Tables[i]
		var ft fileTable
		if err = node.Decode(&ft); err != nil {
			return nil, nil, &errs.ConfigurationError{
				Msg: fmt.Sprintf("invalid table entry at %s:%d", path, node.Line),
				Err: err,
			}
		}
		spec, err := ft.spec()
		if err != nil {
			return nil, nil, &errs.ConfigurationError{
				Msg: fmt.Sprintf("invalid table entry at %s:%d", path, node.Line),
				Err: err,
			}
		}
		tables = append(tables, spec)
	}

	return &fc.Defaults, tables, nil
}

func (ft fileTable) spec() (TableSpec, error) {
	if ft.Name == "" {
		return TableSpec{}, errors.New("table name is required")
	}
	if ft.RetentionDays != nil && *ft.RetentionDays < 0 {
		return TableSpec{}, errors.New("retention_days must not be negative")
	}
	column := ft.PartitionColumn
	if column == "" {
		column = ft.DateColumn
	}

	return TableSpec{
		Schema:          ft.Schema,
		Name:            ft.Name,
		PartitionColumn: column,
		RetentionDays:   ft.RetentionDays,
	}, nil
}

func (d *fileDefaults) apply(s *Settings) {
	if d == nil {
		return
	}
	setString(&s.Bucket, d.Bucket)
	setString(&s.ArchivePrefix, d.ArchivePrefix)
	setString(&s.Endpoint, d.S3Endpoint)
	setString(&s.Region, d.S3Region)
	setString(&s.Compression, d.Compression)
	setString(&s.Timezone, d.Timezone)
	setString(&s.Timezone, d.ExtractionTimezone)
	setString(&s.PartitionColumn, d.PartitionColumn)
	setString(&s.PartitionColumn, d.DefaultDateColumn)
	if d.S3UseSSL != nil {
		s.UseTLS = *d.S3UseSSL
	}
	if d.RetentionDays != nil {
		s.RetentionDays = *d.RetentionDays
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
