package ledger

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/block/coldarchive/pkg/source"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres keeps the manifest in a schema of the source database.
type Postgres struct {
	pool   *pgxpool.Pool
	schema string
}

func NewPostgres(pool *pgxpool.Pool, schema string) *Postgres {
	return &Postgres{pool: pool, schema: schema}
}

func (l *Postgres) tbl() string {
	return pgx.Identifier{l.schema, TblName}.Sanitize()
}

func (l *Postgres) Ensure(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{l.schema}.Sanitize()); err != nil {
		return err
	}
	_, err := l.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+l.tbl()+` (
		table_schema text NOT NULL,
		table_name text NOT NULL,
		partition_date date NOT NULL,
		row_count bigint NOT NULL,
		location text NOT NULL,
		archived_at timestamptz NOT NULL DEFAULT now(),
		PRIMARY KEY (table_schema, table_name, partition_date)
	)`)

	return err
}

func (l *Postgres) IsArchived(ctx context.Context, t source.Table, d civil.Date) (bool, error) {
	var exists bool
	err := l.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM "+l.tbl()+
		" WHERE table_schema = $1 AND table_name = $2 AND partition_date = $3::date)",
		t.Schema, t.Name, d.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking ledger for %s %s: %w", t, d, err)
	}

	return exists, nil
}

func (l *Postgres) Record(ctx context.Context, e Entry) error {
	_, err := l.pool.Exec(ctx, "INSERT INTO "+l.tbl()+
		" (table_schema, table_name, partition_date, row_count, location, archived_at) VALUES ($1, $2, $3::date, $4, $5, $6)"+
		" ON CONFLICT (table_schema, table_name, partition_date) DO NOTHING",
		e.Table.Schema, e.Table.Name, e.Partition.String(), e.RowCount, e.Location, e.ArchivedAt)
	if err != nil {
		return fmt.Errorf("recording %s %s: %w", e.Table, e.Partition, err)
	}

	return nil
}

func (l *Postgres) Entries(ctx context.Context, t source.Table) ([]Entry, error) {
	rows, err := l.pool.Query(ctx, "SELECT partition_date, row_count, location, archived_at FROM "+l.tbl()+
		" WHERE table_schema = $1 AND table_name = $2 ORDER BY partition_date", t.Schema, t.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e := Entry{Table: t}
		var partition any
		if err = rows.Scan(&partition, &e.RowCount, &e.Location, &e.ArchivedAt); err != nil {
			return nil, err
		}
		if e.Partition, err = scanDate(partition); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
