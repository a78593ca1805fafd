package runner

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/block/coldarchive/pkg/boot"
	"github.com/block/coldarchive/pkg/config"
	"github.com/block/coldarchive/pkg/destinations"
	"github.com/block/coldarchive/pkg/ledger"
	"github.com/block/coldarchive/pkg/source"
	"github.com/block/coldarchive/pkg/storage"
	"github.com/block/spirit/pkg/dbconn"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/siddontang/loggers"
)

// Conn is the source connection of a run and everything built on it. The
// ledger shares the source handle.
type Conn struct {
	Source source.Store
	Ledger ledger.Ledger
	Booter boot.Booter
}

func (c *Conn) Close() error {
	return c.Source.Close()
}

func setupDBConfig() *dbconn.DBConfig {
	dbConfig := dbconn.NewDBConfig()
	// Everything in a run is sequential, the ledger included.
	dbConfig.MaxOpenConnections = 1

	return dbConfig
}

func setupDB(dsn string, dbConfig *dbconn.DBConfig) (*sql.DB, error) {
	db, err := dbconn.New(dsn, dbConfig)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database err:%w", err)
	}

	return db, nil
}

func dsnFromCreds(src config.SourceConfig) string {
	cfg := mysql.NewConfig()
	cfg.User = src.User
	cfg.Passwd = src.Password
	cfg.Net = "tcp"
	cfg.Addr = src.Addr()
	cfg.DBName = src.Database

	return cfg.FormatDSN()
}

func connStringFromCreds(src config.SourceConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(src.User, src.Password),
		Host:   src.Addr(),
		Path:   "/" + src.Database,
	}

	return u.String()
}

func setupPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres connection settings: %w", err)
	}
	cfg.MaxConns = 1
	// naive timestamps are compared as UTC instants
	cfg.ConnConfig.RuntimeParams["timezone"] = "UTC"
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("error connecting to postgres err:%w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("error connecting to postgres err:%w", err)
	}

	return pool, nil
}

// connect opens the single source handle of a run.
func connect(ctx context.Context, s config.Settings, logger loggers.Advanced) (*Conn, error) {
	switch s.Source.Type {
	case config.SourceMySQL:
		db, err := setupDB(dsnFromCreds(s.Source), setupDBConfig())
		if err != nil {
			return nil, err
		}
		l := ledger.NewMySQL(db, s.LedgerLocation())

		return &Conn{
			Source: source.NewMySQLStore(db, logger, 0),
			Ledger: l,
			Booter: boot.NewArchiveBooter(&boot.ArchiveBooterConfig{Dialect: source.MySQL, DB: db, Ledger: l}),
		}, nil
	case config.SourcePostgres:
		pool, err := setupPool(ctx, connStringFromCreds(s.Source))
		if err != nil {
			return nil, err
		}
		l := ledger.NewPostgres(pool, s.LedgerLocation())

		return &Conn{
			Source: source.NewPostgresStore(pool, logger),
			Ledger: l,
			Booter: boot.NewArchiveBooter(&boot.ArchiveBooterConfig{Dialect: source.Postgres, Pool: pool, Ledger: l}),
		}, nil
	}

	return nil, fmt.Errorf("unsupported source type %q", s.Source.Type)
}

func openStore(ctx context.Context, s config.Settings) (storage.Store, error) {
	tp, err := destinations.Parse(s.DestinationType)
	if err != nil {
		return nil, err
	}

	return storage.NewStore(ctx, tp, storage.Options{
		Bucket:    s.Bucket,
		Endpoint:  s.Endpoint,
		Region:    s.Region,
		AccessKey: s.AccessKey,
		SecretKey: s.SecretKey,
		UseTLS:    s.UseTLS,
	}, awsconfig.LoadDefaultConfig)
}
