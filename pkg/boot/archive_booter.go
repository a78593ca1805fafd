package boot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/block/coldarchive/pkg/ledger"
	"github.com/block/coldarchive/pkg/source"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ArchiveBooter struct {
	dialect source.Dialect
	db      *sql.DB
	pool    *pgxpool.Pool
	ledger  ledger.Ledger
}

// ArchiveBooterConfig takes the source handle of a run: DB for MySQL, Pool
// for Postgres.
type ArchiveBooterConfig struct {
	Dialect source.Dialect
	DB      *sql.DB
	Pool    *pgxpool.Pool
	Ledger  ledger.Ledger
}

func NewArchiveBooter(abc *ArchiveBooterConfig) *ArchiveBooter {
	return &ArchiveBooter{
		dialect: abc.Dialect,
		db:      abc.DB,
		pool:    abc.Pool,
		ledger:  abc.Ledger,
	}
}

func (ab *ArchiveBooter) PreflightChecks(ctx context.Context) error {
	switch ab.dialect {
	case source.MySQL:
		if ab.db == nil {
			return errors.New("no MySQL connection")
		}
		if !isMySQLVersionCompatible(ctx, ab.db) {
			return errors.New("MySQL 8.0 is required")
		}
	case source.Postgres:
		if ab.pool == nil {
			return errors.New("no Postgres connection")
		}
		if !isPostgresVersionCompatible(ctx, ab.pool) {
			return errors.New("Postgres 12 is required")
		}
	default:
		return fmt.Errorf("unsupported source dialect %q", ab.dialect)
	}

	return nil
}

// Setup creates the ledger table if it does not exist.
func (ab *ArchiveBooter) Setup(ctx context.Context) error {
	if err := ab.ledger.Ensure(ctx); err != nil {
		return fmt.Errorf("failed to create ledger: %w", err)
	}

	return nil
}
