package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/siddontang/loggers"
)

// PostgresStore reads partitions through a pgx pool. The pool is expected
// to run its sessions in UTC so naive timestamps and dates compare as UTC
// instants.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger loggers.Advanced
}

func NewPostgresStore(pool *pgxpool.Pool, logger loggers.Advanced) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Pool is the underlying pool, shared with the ledger.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *PostgresStore) Dialect() Dialect {
	return Postgres
}

func (s *PostgresStore) Columns(ctx context.Context, t Table) ([]Column, error) {
	rows, err := s.pool.Query(ctx, `SELECT column_name, data_type, udt_name, is_nullable
		FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, t.Schema, t.Name)
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

func (s *PostgresStore) Min(ctx context.Context, p Predicate) (time.Time, bool, error) {
	stmt := fmt.Sprintf("SELECT MIN(%s) FROM %s WHERE %s", quotePostgres(p.Column), tablePostgres(p.Table), wherePostgres(p))
	var v any
	if err := s.pool.QueryRow(ctx, stmt, p.From, p.To).Scan(&v); err != nil {
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

func (s *PostgresStore) Count(ctx context.Context, p Predicate) (int64, error) {
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", tablePostgres(p.Table), wherePostgres(p))
	var n int64
	if err := s.pool.QueryRow(ctx, stmt, p.From, p.To).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", p, err)
	}

	return n, nil
}

func (s *PostgresStore) Scan(ctx context.Context, p Predicate, cols []Column, fn func(row []any) error) error {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = quotePostgres(c.Name)
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(names, ", "), tablePostgres(p.Table), wherePostgres(p))
	rows, err := s.pool.Query(ctx, stmt, p.From, p.To)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", p, err)
	}
	defer rows.Close()

	for rows.Next() {
		row, err := rows.Values()
		if err != nil {
			return err
		}
		if err = fn(row); err != nil {
			return err
		}
	}

	return rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, p Predicate) (int64, error) {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", tablePostgres(p.Table), wherePostgres(p))
	tag, err := s.pool.Exec(ctx, stmt, p.From, p.To)
	if err != nil {
		return 0, fmt.Errorf("deleting %s: %w", p, err)
	}
	s.logger.Debugf("deleted %d rows where %s", tag.RowsAffected(), p)

	return tag.RowsAffected(), nil
}

// Reclaim runs VACUUM ANALYZE, which cannot run inside a transaction.
func (s *PostgresStore) Reclaim(ctx context.Context, t Table) error {
	if _, err := s.pool.Exec(ctx, "VACUUM ANALYZE "+tablePostgres(t)); err != nil {
		return fmt.Errorf("vacuuming %s: %w", t, err)
	}

	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()

	return nil
}

func quotePostgres(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}

func tablePostgres(t Table) string {
	return pgx.Identifier{t.Schema, t.Name}.Sanitize()
}

func wherePostgres(p Predicate) string {
	col := quotePostgres(p.Column)

	return col + " >= $1 AND " + col + " < $2"
}
