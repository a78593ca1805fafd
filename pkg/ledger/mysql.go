package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/block/coldarchive/pkg/source"
	"github.com/block/spirit/pkg/dbconn"
	"github.com/block/spirit/pkg/table"
)

var manifestTblCreateStmt = `CREATE TABLE IF NOT EXISTS %n.%n (
    table_schema varchar(64) NOT NULL,
    table_name varchar(64) NOT NULL,
    partition_date DATE NOT NULL,
    row_count BIGINT NOT NULL,
    location TEXT NOT NULL,
    archived_at timestamp NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (table_schema, table_name, partition_date)
    )`

// MySQL keeps the manifest in its own database on the source server.
type MySQL struct {
	db       *sql.DB
	database string
}

func NewMySQL(db *sql.DB, database string) *MySQL {
	return &MySQL{db: db, database: database}
}

func (l *MySQL) tbl() string {
	quote := func(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" }

	return quote(l.database) + "." + quote(TblName)
}

func (l *MySQL) Ensure(ctx context.Context) error {
	if err := dbconn.Exec(ctx, l.db, "CREATE DATABASE IF NOT EXISTS %n", l.database); err != nil {
		return err
	}
	if err := dbconn.Exec(ctx, l.db, manifestTblCreateStmt, l.database, TblName); err != nil {
		return err
	}
	manifestTbl := table.NewTableInfo(l.db, l.database, TblName)
	if err := manifestTbl.SetInfo(ctx); err != nil {
		return err
	}
	for _, col := range Columns {
		if !slices.Contains(manifestTbl.Columns, col) {
			return fmt.Errorf("%s.%s exists but has no %s column", l.database, TblName, col)
		}
	}

	return nil
}

func (l *MySQL) IsArchived(ctx context.Context, t source.Table, d civil.Date) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE table_schema = ? AND table_name = ? AND partition_date = ?",
		l.tbl()), t.Schema, t.Name, d.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking ledger for %s %s: %w", t, d, err)
	}

	return n > 0, nil
}

func (l *MySQL) Record(ctx context.Context, e Entry) error {
	err := dbconn.Exec(ctx, l.db, "INSERT INTO %n.%n (table_schema, table_name, partition_date, row_count, location, archived_at) VALUES (%?, %?, %?, %?, %?, %?) ON DUPLICATE KEY UPDATE table_name = table_name",
		l.database, TblName, e.Table.Schema, e.Table.Name, e.Partition.String(), e.RowCount, e.Location, e.ArchivedAt.UTC())
	if err != nil {
		return fmt.Errorf("recording %s %s: %w", e.Table, e.Partition, err)
	}

	return nil
}

func (l *MySQL) Entries(ctx context.Context, t source.Table) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT partition_date, row_count, location, archived_at FROM %s WHERE table_schema = ? AND table_name = ? ORDER BY partition_date",
		l.tbl()), t.Schema, t.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e := Entry{Table: t}
		var partition, archivedAt any
		if err = rows.Scan(&partition, &e.RowCount, &e.Location, &archivedAt); err != nil {
			return nil, err
		}
		if e.Partition, err = scanDate(partition); err != nil {
			return nil, err
		}
		if e.ArchivedAt, err = source.ParseTime(archivedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
