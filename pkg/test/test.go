package test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/block/spirit/pkg/dbconn"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func DSN() string {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		return "msandbox:msandbox@tcp(127.0.0.1:8030)/test"
	}

	return dsn
}

// PostgresDSN is empty unless PG_DSN is set.
func PostgresDSN() string {
	return os.Getenv("PG_DSN")
}

// RequireMySQL skips the test when no MySQL server answers on DSN().
func RequireMySQL(t *testing.T) {
	t.Helper()
	db, err := sql.Open("mysql", DSN())
	require.NoError(t, err)
	defer db.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		t.Skipf("mysql not available at %s: %v", DSN(), err)
	}
}

func RunSQL(t *testing.T, stmt string) {
	t.Helper()
	db, err := sql.Open("mysql", DSN())
	require.NoError(t, err)
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Errorf("error closing db: %v", closeErr)
		}
	}()
	_, err = db.Exec(stmt)
	require.NoError(t, err)
}

// SetupDB opens a spirit connection pool with a single connection, the way
// an archive run does.
func SetupDB(t *testing.T) *sql.DB {
	t.Helper()
	RequireMySQL(t)
	cfg, err := mysql.ParseDSN(DSN())
	require.NoError(t, err)

	dbConfig := dbconn.NewDBConfig()
	dbConfig.MaxOpenConnections = 1
	dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s", cfg.User, cfg.Passwd, cfg.Addr, cfg.DBName)
	db, err := dbconn.New(dsn, dbConfig)
	require.NoError(t, err, "error connecting to database: %s as user: %s", cfg.DBName, cfg.User)
	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// Database is the database named in DSN().
func Database(t *testing.T) string {
	t.Helper()
	cfg, err := mysql.ParseDSN(DSN())
	require.NoError(t, err)

	return cfg.DBName
}

// SetupPool opens a Postgres pool on PG_DSN and skips the test when it is
// unset or unreachable.
func SetupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := PostgresDSN()
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.MaxConns = 1
	cfg.ConnConfig.RuntimeParams["timezone"] = "UTC"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("postgres not available: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

func RunPostgres(t *testing.T, pool *pgxpool.Pool, stmt string) {
	t.Helper()
	_, err := pool.Exec(context.Background(), stmt)
	require.NoError(t, err)
}

func TableExists(t *testing.T, schema, table string, db *sql.DB) bool {
	t.Helper()
	var count int
	query := "SELECT COUNT(TABLE_NAME) FROM information_schema.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?;"

	_ = db.QueryRowContext(context.Background(), query, schema, table).Scan(&count)

	return count > 0
}

func GetCount(t *testing.T, db *sql.DB, tableName string, where string) int {
	t.Helper()
	var count int
	err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", tableName, where)).Scan(&count)
	require.NoError(t, err)

	return count
}

// ParquetFiles lists the parquet files under dir, recursively.
func ParquetFiles(t *testing.T, dir string) []string {
	t.Helper()
	var matches []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".parquet" {
			matches = append(matches, path)
		}

		return nil
	})
	require.NoError(t, err)

	return matches
}
