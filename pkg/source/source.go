// Package source reads, counts and deletes day partitions of a table in the
// row store being archived. MySQL and Postgres are supported.
package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
)

// Table is a fully qualified source table.
type Table struct {
	Schema string
	Name   string
}

func (t Table) String() string {
	return t.Schema + "." + t.Name
}

type Temporal int

const (
	NotTemporal Temporal = iota
	// TemporalDate columns hold calendar days and are their own partition.
	TemporalDate
	// TemporalInstant columns hold a point in time. Values without zone
	// information are read as UTC.
	TemporalInstant
)

// Column is a column as reported by information_schema.
type Column struct {
	Name string
	// DataType is the lower-cased information_schema data_type, e.g.
	// "varchar" or "timestamp with time zone".
	DataType string
	// ColumnType is the full type, e.g. "decimal(10,2)" or "int unsigned".
	// Postgres reports the udt name here.
	ColumnType string
	Nullable   bool
}

func (c Column) Temporal() Temporal {
	switch c.DataType {
	case "date":
		return TemporalDate
	case "datetime", "timestamp", "timestamp without time zone", "timestamp with time zone":
		return TemporalInstant
	}

	return NotTemporal
}

func (c Column) Unsigned() bool {
	return strings.Contains(strings.ToLower(c.ColumnType), "unsigned")
}

// Store is the row store partitions are archived from. Implementations hold
// a single connection and are not safe for concurrent use.
type Store interface {
	Dialect() Dialect
	// Columns returns the columns of t in ordinal order. It returns no
	// columns and no error when the table does not exist.
	Columns(ctx context.Context, t Table) ([]Column, error)
	// Min returns the smallest partition column value matching p.
	Min(ctx context.Context, p Predicate) (time.Time, bool, error)
	Count(ctx context.Context, p Predicate) (int64, error)
	// Scan calls fn once per row matching p with the values of cols. The row
	// slice is reused between calls. Scan holds the connection, so fn must
	// not call back into the store.
	Scan(ctx context.Context, p Predicate, cols []Column, fn func(row []any) error) error
	// Delete removes the rows matching p and returns how many were removed.
	Delete(ctx context.Context, p Predicate) (int64, error)
	// Reclaim returns the space freed by deletes to the store.
	Reclaim(ctx context.Context, t Table) error
	Close() error
}

// Scope binds a table to its partition column.
type Scope struct {
	Table   Table
	Column  Column
	Columns []Column
	// Location is the timezone a day is computed in. DATE columns always
	// use UTC.
	Location *time.Location
}

// NewScope resolves column against the catalog columns of a table.
func NewScope(t Table, columns []Column, column string, loc *time.Location) (Scope, error) {
	if len(columns) == 0 {
		return Scope{}, fmt.Errorf("table %s does not exist, cannot resolve partition column %s", t, column)
	}
	for _, c := range columns {
		if c.Name != column {
			continue
		}
		if c.Temporal() == NotTemporal {
			return Scope{}, fmt.Errorf("partition column %s.%s has type %s, expected a date or timestamp", t, column, c.DataType)
		}
		if c.Temporal() == TemporalDate || loc == nil {
			loc = time.UTC
		}

		return Scope{Table: t, Column: c, Columns: columns, Location: loc}, nil
	}

	return Scope{}, fmt.Errorf("partition column %s not found in %s", column, t)
}

// Start is the first instant of d.
func (s Scope) Start(d civil.Date) time.Time {
	return d.In(s.Location).UTC()
}

// DateOf returns the partition a column value falls in.
func (s Scope) DateOf(v time.Time) civil.Date {
	return civil.DateOf(v.In(s.Location))
}

// Partition matches the rows of day d.
func (s Scope) Partition(d civil.Date) Predicate {
	return s.Between(d, d.AddDays(1))
}

// Between matches the rows of the days in [from, to).
func (s Scope) Between(from, to civil.Date) Predicate {
	return Predicate{
		Table:  s.Table,
		Column: s.Column.Name,
		From:   s.Start(from),
		To:     s.Start(to),
	}
}

// Predicate is the half-open range From <= Column < To on a table. Bounds
// are UTC instants and are always passed as bind parameters.
type Predicate struct {
	Table  Table
	Column string
	From   time.Time
	To     time.Time
}

func (p Predicate) String() string {
	return fmt.Sprintf("%s.%s in [%s, %s)", p.Table, p.Column,
		p.From.Format(time.RFC3339), p.To.Format(time.RFC3339))
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02",
}

// ParseTime reads a temporal value as returned by a driver. Text values
// without an offset are read as UTC.
func ParseTime(v any) (time.Time, error) {
	var s string
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case []byte:
		s = string(t)
	case string:
		s = t
	default:
		return time.Time{}, fmt.Errorf("cannot read %T as a time", v)
	}
	for _, layout := range timeLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, nil
		}
	}

	return time.Time{}, fmt.Errorf("cannot parse %q as a time", s)
}
