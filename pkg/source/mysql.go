package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/block/coldarchive/pkg/query"
	"github.com/siddontang/loggers"
)

const defaultDeleteBatchSize = 10000

// MySQLStore reads partitions through a spirit connection pool. Every
// statement it builds is parsed and EXPLAINed before it runs.
type MySQLStore struct {
	db              *sql.DB
	logger          loggers.Advanced
	deleteBatchSize int

	// predicates already checked for index usage, keyed by table and column
	explained map[string]struct{}
}

func NewMySQLStore(db *sql.DB, logger loggers.Advanced, deleteBatchSize int) *MySQLStore {
	if deleteBatchSize <= 0 {
		deleteBatchSize = defaultDeleteBatchSize
	}

	return &MySQLStore{
		db:              db,
		logger:          logger,
		deleteBatchSize: deleteBatchSize,
		explained:       make(map[string]struct{}),
	}
}

// DB is the underlying pool, shared with the ledger.
func (s *MySQLStore) DB() *sql.DB {
	return s.db
}

func (s *MySQLStore) Dialect() Dialect {
	return MySQL
}

func (s *MySQLStore) Columns(ctx context.Context, t Table) ([]Column, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT COLUMN_NAME, DATA_TYPE, COLUMN_TYPE, IS_NULLABLE
		FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`, t.Schema, t.Name)
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", t, err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var c Column
		var nullable string
		if err = rows.Scan(&c.Name, &c.DataType, &c.ColumnType, &nullable); err != nil {
			return nil, err
		}
		c.DataType = strings.ToLower(c.DataType)
		c.Nullable = nullable == "YES"
		columns = append(columns, c)
	}

	return columns, rows.Err()
}

func (s *MySQLStore) Min(ctx context.Context, p Predicate) (time.Time, bool, error) {
	stmt := fmt.Sprintf("SELECT MIN(%s) FROM %s WHERE %s", quoteMySQL(p.Column), tableMySQL(p.Table), whereMySQL(p))
	if err := s.check(ctx, p, stmt); err != nil {
		return time.Time{}, false, err
	}
	var v any
	if err := s.db.QueryRowContext(ctx, stmt, p.From, p.To).Scan(&v); err != nil {
		return time.Time{}, false, fmt.Errorf("probing %s: %w", p, err)
	}
	if v == nil {
		return time.Time{}, false, nil
	}
	ts, err := ParseTime(v)
	if err != nil {
		return time.Time{}, false, err
	}

	return ts, true, nil
}

func (s *MySQLStore) Count(ctx context.Context, p Predicate) (int64, error) {
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", tableMySQL(p.Table), whereMySQL(p))
	if err := s.check(ctx, p, stmt); err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, stmt, p.From, p.To).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", p, err)
	}

	return n, nil
}

func (s *MySQLStore) Scan(ctx context.Context, p Predicate, cols []Column, fn func(row []any) error) error {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = quoteMySQL(c.Name)
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(names, ", "), tableMySQL(p.Table), whereMySQL(p))
	if err := s.check(ctx, p, stmt); err != nil {
		return err
	}
	rows, err := s.db.QueryContext(ctx, stmt, p.From, p.To)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", p, err)
	}
	defer rows.Close()

	row := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range row {
		ptrs[i] = &row[i]
	}
	for rows.Next() {
		if err = rows.Scan(ptrs...); err != nil {
			return err
		}
		if err = fn(row); err != nil {
			return err
		}
	}

	return rows.Err()
}

// Delete removes the partition in batches so no single statement holds
// locks on the whole partition.
func (s *MySQLStore) Delete(ctx context.Context, p Predicate) (int64, error) {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s LIMIT %d", tableMySQL(p.Table), whereMySQL(p), s.deleteBatchSize)
	if err := s.check(ctx, p, stmt); err != nil {
		return 0, err
	}
	var total int64
	for {
		res, err := s.db.ExecContext(ctx, stmt, p.From, p.To)
		if err != nil {
			return total, fmt.Errorf("deleting %s: %w", p, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
		if n < int64(s.deleteBatchSize) {
			return total, nil
		}
	}
}

// Reclaim runs OPTIMIZE TABLE. Its result set is drained so the single
// connection is free for the next statement.
func (s *MySQLStore) Reclaim(ctx context.Context, t Table) error {
	rows, err := s.db.QueryContext(ctx, "OPTIMIZE TABLE "+tableMySQL(t))
	if err != nil {
		return fmt.Errorf("optimizing %s: %w", t, err)
	}
	defer rows.Close()
	for rows.Next() { //nolint:revive
	}

	return rows.Err()
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

// check parses stmt and, once per table and column, warns when the
// partition predicate cannot use an index.
func (s *MySQLStore) check(ctx context.Context, p Predicate, stmt string) error {
	if _, err := query.Parse(stmt); err != nil {
		return err
	}
	key := p.Table.String() + "." + p.Column
	if _, ok := s.explained[key]; ok {
		return nil
	}
	s.explained[key] = struct{}{}
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", tableMySQL(p.Table), whereMySQL(p))
	if _, err := query.Validate(ctx, s.db, countQuery, p.From, p.To); err != nil {
		return err
	}
	plan, err := query.Explain(ctx, s.db, countQuery, p.From, p.To)
	switch {
	case errors.Is(err, query.ErrNoIndexAvb):
		s.logger.Warnf("no index on %s.%s, partition statements will scan the whole table (about %d rows)", p.Table, p.Column, plan.Rows)
	case errors.Is(err, query.ErrNoTable):
		// empty range, nothing to plan
	case err != nil:
		return err
	default:
		s.logger.Debugf("partition predicate on %s.%s uses index %s (%s)", p.Table, p.Column, plan.Index, plan.AccessType)
	}

	return nil
}

func quoteMySQL(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func tableMySQL(t Table) string {
	return quoteMySQL(t.Schema) + "." + quoteMySQL(t.Name)
}

func whereMySQL(p Predicate) string {
	col := quoteMySQL(p.Column)

	return col + " >= ? AND " + col + " < ?"
}
