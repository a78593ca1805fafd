package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

type explainOutput struct {
	QueryBlock struct {
		Table             *explainTable `json:"table"`
		OrderingOperation *struct {
			Table *explainTable `json:"table"`
		} `json:"ordering_operation"`
		Message string `json:"message"`
	} `json:"query_block"`
}

type explainTable struct {
	TableName    string   `json:"table_name"`
	AccessType   string   `json:"access_type"`
	PossibleKeys []string `json:"possible_keys"`
	Key          string   `json:"key"`
	UsingIndex   bool     `json:"using_index"`
	RowsPerScan  int64    `json:"rows_examined_per_scan"`
}

var ErrNoIndexAvb = errors.New("no index available to satisfy the WHERE query")
var ErrNoTable = errors.New("could not identify table in EXPLAIN output")

// Plan is what the optimizer intends to do for a single-table statement.
type Plan struct {
	Table string
	// Index is the chosen key, or the first possible key when the optimizer
	// did not pick one.
	Index string
	// Covering is true when the index alone answers the statement.
	Covering bool
	// AccessType is the join type, e.g. "range" or "ALL".
	AccessType string
	// Rows is the optimizer's estimate of rows examined.
	Rows int64
}

// Explain returns the plan of query. It returns ErrNoTable when the
// optimizer answered without touching a table, as for a range with no
// rows, and ErrNoIndexAvb along with the plan when no index applies.
func Explain(ctx context.Context, db *sql.DB, query string, args ...any) (Plan, error) {
	var explainResult string
	err := db.QueryRowContext(ctx, "EXPLAIN format=json "+query, args...).Scan(&explainResult) //nolint:execinquery
	if err != nil {
		return Plan{}, err
	}

	var eo explainOutput
	if err = json.Unmarshal([]byte(explainResult), &eo); err != nil {
		return Plan{}, err
	}
	qb := eo.QueryBlock
	tbl := qb.Table
	// With an ORDER BY the table sits under the ordering operation.
	if tbl == nil && qb.OrderingOperation != nil {
		tbl = qb.OrderingOperation.Table
	}
	if tbl == nil {
		return Plan{}, fmt.Errorf("%w: %s, message: %s", ErrNoTable, query, qb.Message)
	}

	plan := Plan{
		Table:      tbl.TableName,
		Index:      tbl.Key,
		Covering:   tbl.UsingIndex,
		AccessType: tbl.AccessType,
		Rows:       tbl.RowsPerScan,
	}
	if plan.Index == "" && len(tbl.PossibleKeys) != 0 {
		plan.Index = tbl.PossibleKeys[0]
	}
	if plan.Index == "" {
		return plan, fmt.Errorf("%w: %s, message: %s", ErrNoIndexAvb, query, qb.Message)
	}

	return plan, nil
}
