// Package boot checks that the source server can be archived from and sets
// up the ledger before a run touches any data.
package boot

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	minMySQLVersion = 8
	// server_version_num of Postgres 12
	minPostgresVersion = 120000
)

type Booter interface {
	PreflightChecks(ctx context.Context) error
	Setup(ctx context.Context) error
}

// isMySQLVersionCompatible returns true if we can positively identify this as MySQL 8 or later.
func isMySQLVersionCompatible(ctx context.Context, db *sql.DB) bool {
	var version string
	if err := db.QueryRowContext(ctx, "select substr(version(), 1, 1)").Scan(&version); err != nil {
		return false // can't tell
	}

	intVer, err := strconv.Atoi(version)
	if err != nil {
		return false // can't tell
	}

	return intVer >= minMySQLVersion
}

func isPostgresVersionCompatible(ctx context.Context, pool *pgxpool.Pool) bool {
	var version string
	if err := pool.QueryRow(ctx, "SHOW server_version_num").Scan(&version); err != nil {
		return false
	}

	intVer, err := strconv.Atoi(version)
	if err != nil {
		return false
	}

	return intVer >= minPostgresVersion
}
