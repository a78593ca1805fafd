package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/block/coldarchive/pkg/errs"
	"github.com/goccy/go-json"
)

// ArchiveTag marks a dbt node for cold archiving.
const ArchiveTag = "cold_archive"

var archivableResources = []string{"model", "seed", "snapshot", "source"}

type dbtManifest struct {
	Nodes   map[string]dbtNode `json:"nodes"`
	Sources map[string]dbtNode `json:"sources"`
}

type dbtNode struct {
	ResourceType string   `json:"resource_type"`
	Name         string   `json:"name"`
	Alias        string   `json:"alias"`
	Identifier   string   `json:"identifier"`
	Schema       string   `json:"schema"`
	FQN          []string `json:"fqn"`
	Tags         []string `json:"tags"`
	Meta         struct {
		ColdStorage map[string]json.RawMessage `json:"cold_storage"`
	} `json:"meta"`
}

type coldStorageMeta struct {
	PartitionColumn string `json:"partition_column"`
	DateColumn      string `json:"date_column"`
	RetentionDays   *int   `json:"retention_days"`
}

// discoverFromManifest returns a TableSpec for every node of a dbt manifest
// that carries the archive tag or a non-empty cold_storage meta block.
func discoverFromManifest(path string) ([]TableSpec, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errs.Configf("dbt manifest not found: %s", path)
	} else if err != nil {
		return nil, &errs.ConfigurationError{Msg: "reading dbt manifest " + path, Err: err}
	}

	var m dbtManifest
	if err = json.Unmarshal(data, &m); err != nil {
		return nil, &errs.ConfigurationError{Msg: "parsing dbt manifest " + path, Err: err}
	}

	var out []TableSpec
	for _, nodes := range []map[string]dbtNode{m.Nodes, m.Sources} {
		// map order is random, keep discovery deterministic
		ids := make([]string, 0, len(nodes))
		for id := range nodes {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			spec, ok, err := nodes[id].spec()
			if err != nil {
				return nil, &errs.ConfigurationError{Msg: fmt.Sprintf("invalid cold_storage meta on %s", id), Err: err}
			}
			if ok {
				out = append(out, spec)
			}
		}
	}

	return out, nil
}

func (n dbtNode) spec() (TableSpec, bool, error) {
	if !slices.Contains(archivableResources, n.ResourceType) {
		return TableSpec{}, false, nil
	}
	if !slices.Contains(n.Tags, ArchiveTag) && len(n.Meta.ColdStorage) == 0 {
		return TableSpec{}, false, nil
	}

	var meta coldStorageMeta
	if len(n.Meta.ColdStorage) > 0 {
		raw, err := json.Marshal(n.Meta.ColdStorage)
		if err != nil {
			return TableSpec{}, false, err
		}
		if err = json.Unmarshal(raw, &meta); err != nil {
			return TableSpec{}, false, err
		}
	}
	if meta.RetentionDays != nil && *meta.RetentionDays < 0 {
		return TableSpec{}, false, errors.New("retention_days must not be negative")
	}

	name := n.Alias
	if name == "" {
		name = n.Identifier
	}
	if name == "" {
		name = n.Name
	}
	schema := n.Schema
	if schema == "" && len(n.FQN) >= 2 {
		schema = n.FQN[len(n.FQN)-2]
	}
	column := meta.PartitionColumn
	if column == "" {
		column = meta.DateColumn
	}

	return TableSpec{
		Schema:          schema,
		Name:            name,
		PartitionColumn: column,
		RetentionDays:   meta.RetentionDays,
	}, true, nil
}
