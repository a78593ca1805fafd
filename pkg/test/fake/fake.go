// Package fake holds in-memory source, ledger and object stores for tests
// that need no database or bucket.
package fake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/block/coldarchive/pkg/ledger"
	"github.com/block/coldarchive/pkg/source"
	"github.com/block/coldarchive/pkg/storage"
)

// Table is an in-memory source table. Rows hold values in column order.
type Table struct {
	Columns []source.Column
	Rows    [][]any
	// Phantoms are values of the partition column that Min reports but no
	// row holds, as when rows vanish between discovery and export.
	Phantoms []time.Time
}

// Source is an in-memory source.Store.
type Source struct {
	Tables map[source.Table]*Table

	Scans     int
	Deletes   int
	Reclaims  int
	Closed    bool
	DeleteErr error
}

func NewSource() *Source {
	return &Source{Tables: make(map[source.Table]*Table)}
}

// Add creates t with a DATETIME partition column named column plus an id and
// a name column, and inserts one row per value of at.
func (s *Source) Add(t source.Table, column string, at ...time.Time) *Table {
	tbl := &Table{Columns: []source.Column{
		{Name: "id", DataType: "bigint", ColumnType: "bigint"},
		{Name: "name", DataType: "varchar", ColumnType: "varchar(255)", Nullable: true},
		{Name: column, DataType: "datetime", ColumnType: "datetime"},
	}}
	for i, ts := range at {
		tbl.Rows = append(tbl.Rows, []any{int64(i + 1), fmt.Sprintf("row-%d", i+1), ts})
	}
	s.Tables[t] = tbl

	return tbl
}

// Rows returns how many rows of t fall on day d in loc.
func (s *Source) Rows(t source.Table, column string, d civil.Date, loc *time.Location) int {
	tbl := s.Tables[t]
	idx := tbl.index(column)
	n := 0
	for _, row := range tbl.Rows {
		if civil.DateOf(row[idx].(time.Time).In(loc)) == d {
			n++
		}
	}

	return n
}

func (tbl *Table) index(column string) int {
	return slices.IndexFunc(tbl.Columns, func(c source.Column) bool { return c.Name == column })
}

func (tbl *Table) match(p source.Predicate) []int {
	idx := tbl.index(p.Column)
	var out []int
	for i, row := range tbl.Rows {
		if v, ok := row[idx].(time.Time); ok && inRange(v, p) {
			out = append(out, i)
		}
	}

	return out
}

func inRange(v time.Time, p source.Predicate) bool {
	return !v.Before(p.From) && v.Before(p.To)
}

func (s *Source) table(t source.Table) (*Table, error) {
	tbl, ok := s.Tables[t]
	if !ok {
		return nil, fmt.Errorf("table %s doesn't exist", t)
	}

	return tbl, nil
}

func (s *Source) Dialect() source.Dialect {
	return source.MySQL
}

func (s *Source) Columns(_ context.Context, t source.Table) ([]source.Column, error) {
	if tbl, ok := s.Tables[t]; ok {
		return tbl.Columns, nil
	}

	return nil, nil
}

func (s *Source) Min(_ context.Context, p source.Predicate) (time.Time, bool, error) {
	tbl, err := s.table(p.Table)
	if err != nil {
		return time.Time{}, false, err
	}
	candidates := slices.Clone(tbl.Phantoms)
	idx := tbl.index(p.Column)
	for _, i := range tbl.match(p) {
		candidates = append(candidates, tbl.Rows[i][idx].(time.Time))
	}
	var lowest time.Time
	found := false
	for _, v := range candidates {
		if inRange(v, p) && (!found || v.Before(lowest)) {
			lowest, found = v, true
		}
	}

	return lowest, found, nil
}

func (s *Source) Count(_ context.Context, p source.Predicate) (int64, error) {
	tbl, err := s.table(p.Table)
	if err != nil {
		return 0, err
	}

	return int64(len(tbl.match(p))), nil
}

func (s *Source) Scan(_ context.Context, p source.Predicate, cols []source.Column, fn func(row []any) error) error {
	tbl, err := s.table(p.Table)
	if err != nil {
		return err
	}
	s.Scans++
	row := make([]any, len(cols))
	for _, i := range tbl.match(p) {
		for j, c := range cols {
			row[j] = tbl.Rows[i][tbl.index(c.Name)]
		}
		if err = fn(row); err != nil {
			return err
		}
	}

	return nil
}

func (s *Source) Delete(_ context.Context, p source.Predicate) (int64, error) {
	if s.DeleteErr != nil {
		return 0, s.DeleteErr
	}
	tbl, err := s.table(p.Table)
	if err != nil {
		return 0, err
	}
	s.Deletes++
	matched := tbl.match(p)
	kept := tbl.Rows[:0]
	for i, row := range tbl.Rows {
		if !slices.Contains(matched, i) {
			kept = append(kept, row)
		}
	}
	tbl.Rows = kept

	return int64(len(matched)), nil
}

func (s *Source) Reclaim(_ context.Context, _ source.Table) error {
	s.Reclaims++

	return nil
}

func (s *Source) Close() error {
	s.Closed = true

	return nil
}

type ledgerKey struct {
	table source.Table
	date  civil.Date
}

// errNoLedgerTable is what a real ledger reports before Ensure created its
// table.
var errNoLedgerTable = errors.New("ledger table does not exist")

// Ledger is an in-memory ledger.Ledger. Lookups and writes fail until
// Ensure has been called.
type Ledger struct {
	entries map[ledgerKey]ledger.Entry
	Ensured bool
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[ledgerKey]ledger.Entry)}
}

func (l *Ledger) Ensure(_ context.Context) error {
	l.Ensured = true

	return nil
}

func (l *Ledger) IsArchived(_ context.Context, t source.Table, d civil.Date) (bool, error) {
	if !l.Ensured {
		return false, errNoLedgerTable
	}
	_, ok := l.entries[ledgerKey{t, d}]

	return ok, nil
}

func (l *Ledger) Record(_ context.Context, e ledger.Entry) error {
	if !l.Ensured {
		return errNoLedgerTable
	}
	key := ledgerKey{e.Table, e.Partition}
	if _, ok := l.entries[key]; !ok {
		l.entries[key] = e
	}

	return nil
}

func (l *Ledger) Entries(_ context.Context, t source.Table) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for key, e := range l.entries {
		if key.table == t {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Partition.Before(out[j].Partition) })

	return out, nil
}

// Len is the number of recorded partitions across all tables.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// ObjectStore is an in-memory storage.Store.
type ObjectStore struct {
	Objects map[string][]byte
	Puts    int
	// DropPuts acknowledges writes without keeping them.
	DropPuts bool
	PutErr   error
}

func NewObjectStore() *ObjectStore {
	return &ObjectStore{Objects: make(map[string][]byte)}
}

func (o *ObjectStore) Put(_ context.Context, key string, data []byte) error {
	if o.PutErr != nil {
		return o.PutErr
	}
	o.Puts++
	if !o.DropPuts {
		o.Objects[key] = bytes.Clone(data)
	}

	return nil
}

func (o *ObjectStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for key := range o.Objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	return keys, nil
}

func (o *ObjectStore) Delete(_ context.Context, keys []string) error {
	for _, key := range keys {
		delete(o.Objects, key)
	}

	return nil
}

func (o *ObjectStore) Open(_ context.Context, key string) (storage.Object, error) {
	data, ok := o.Objects[key]
	if !ok {
		return nil, errors.New("no such key: " + key)
	}

	return object{bytes.NewReader(data)}, nil
}

func (o *ObjectStore) URI(key string) string {
	return "mem://" + key
}

type object struct {
	*bytes.Reader
}

func (object) Close() error { return nil }
