package config

import (
	"strings"

	"github.com/block/coldarchive/pkg/destinations"
	"github.com/block/coldarchive/pkg/errs"
	"github.com/block/coldarchive/pkg/parquet"
)

// Resolve returns a copy of base with the declarative file defaults applied
// and the table set merged from, in increasing precedence, the dbt manifest,
// the declarative file and base.Tables. It does no network or storage I/O.
func Resolve(base Settings) (Settings, error) {
	s := base.clone()

	var fileTables []TableSpec
	if s.ConfigFile != "" {
		defaults, tables, err := loadFile(s.ConfigFile)
		if err != nil {
			return Settings{}, err
		}
		defaults.apply(&s)
		fileTables = tables
	}

	var discovered []TableSpec
	if s.ManifestPath != "" {
		var err error
		if discovered, err = discoverFromManifest(s.ManifestPath); err != nil {
			return Settings{}, err
		}
	}

	s.Source.Port = s.Source.port()
	s.Tables = Merge(s.DefaultSchema(), discovered, fileTables, base.Tables)
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}

	return s, nil
}

// Merge combines table layers keyed by (schema, name). A spec in a later
// layer replaces an earlier one with the same key entirely. Specs without a
// schema get defaultSchema. The position of a key is where it first
// appeared.
func Merge(defaultSchema string, layers ...[]TableSpec) []TableSpec {
	index := make(map[string]int)
	var merged []TableSpec
	for _, layer := range layers {
		for _, t := range layer {
			if t.Schema == "" {
				t.Schema = defaultSchema
			}
			if i, ok := index[t.Key()]; ok {
				merged[i] = t

				continue
			}
			index[t.Key()] = len(merged)
			merged = append(merged, t)
		}
	}

	return merged
}

// Validate checks the invariants a run relies on.
func (s Settings) Validate() error {
	if len(s.Tables) == 0 {
		return errs.Configf("no tables configured or discovered for archiving")
	}
	if _, err := s.Location(); err != nil {
		return &errs.ConfigurationError{Msg: "invalid timezone", Err: err}
	}
	if _, err := parquet.ParseCodec(s.Compression); err != nil {
		return &errs.ConfigurationError{Msg: "invalid compression", Err: err}
	}
	if s.RetentionDays < 0 {
		return errs.Configf("retention days must not be negative, got %d", s.RetentionDays)
	}
	if _, err := destinations.Parse(s.DestinationType); err != nil {
		return &errs.ConfigurationError{Msg: "invalid destination", Err: err}
	}
	if s.Bucket == "" {
		return errs.Configf("bucket is required")
	}
	switch s.Source.Type {
	case SourceMySQL, SourcePostgres:
	default:
		return errs.Configf("unknown source type %q", s.Source.Type)
	}
	// archive locations are keyed by table name only
	byName := make(map[string]TableSpec, len(s.Tables))
	for _, t := range s.Tables {
		if t.Name == "" || t.Schema == "" {
			return errs.Configf("table %q needs both a schema and a name", t.Key())
		}
		if other, ok := byName[t.Name]; ok {
			return errs.Configf("tables %s and %s would be archived to the same location", other, t)
		}
		byName[t.Name] = t
		if strings.TrimSpace(s.Column(t)) == "" {
			return errs.Configf("%s: no partition column specified and no default configured", t.Key())
		}
		if s.Retention(t) < 0 {
			return errs.Configf("%s: retention days must not be negative", t.Key())
		}
	}

	return nil
}
