// Package ledger records which partitions have been archived. A partition
// is recorded at most once; the ledger is the only durable state besides
// the source rows and the exported files.
package ledger

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/block/coldarchive/pkg/source"
)

const TblName = "archive_manifest"

// Columns of the manifest table, in order.
var Columns = []string{"table_schema", "table_name", "partition_date", "row_count", "location", "archived_at"}

type Entry struct {
	Table      source.Table
	Partition  civil.Date
	RowCount   int64
	Location   string
	ArchivedAt time.Time
}

type Ledger interface {
	// Ensure creates the manifest table if it does not exist.
	Ensure(ctx context.Context) error
	IsArchived(ctx context.Context, t source.Table, d civil.Date) (bool, error)
	// Record appends e. Recording a partition that is already present is a
	// no-op.
	Record(ctx context.Context, e Entry) error
	// Entries returns the entries of t ordered by partition.
	Entries(ctx context.Context, t source.Table) ([]Entry, error)
}

func scanDate(v any) (civil.Date, error) {
	ts, err := source.ParseTime(v)
	if err != nil {
		return civil.Date{}, err
	}

	return civil.DateOf(ts), nil
}
