package database

import (
	"context"
	"embed"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/lms-portal/core"
)

const (
	Postgres = "postgres"
	SQLite   = "sqlite3"
)

//go:embed migrations
var migrations embed.FS

func dsn(dbName string, conf *core.Config) (string, error) {
	switch conf.Database.Engine {
	case Postgres:
		sslMode := "require"
		if conf.Database.DisableTLS {
			sslMode = "disable"
		}
		q := make(url.Values)
		q.Set("sslmode", sslMode)
		q.Set("timezone", "utc")

		u := url.URL{
			Scheme:   Postgres,
			User:     url.UserPassword(conf.Database.User, conf.Database.Password),
			Host:     conf.Database.Address(),
			Path:     dbName,
			RawQuery: q.Encode(),
		}
		return u.String(), nil
	case SQLite:
		return "file:" + conf.Database.Path + "?_foreign_keys=on&_busy_timeout=5000", nil
	}
	return "", errors.Errorf("unsupported database engine %q", conf.Database.Engine)
}

// Open opens the configured database. It does not check connectivity; see Ping.
func Open(conf *core.Config) (*sqlx.DB, error) {
	source, err := dsn(conf.Database.Name, conf)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(conf.Database.Engine, source)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if conf.Database.Engine == SQLite {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// OpenSQLite opens a SQLite database at dsn; used by tests with in-memory databases.
func OpenSQLite(source string) (*sqlx.DB, error) {
	db, err := sqlx.Open(SQLite, source)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Ping waits for the database to be ready. Waits 100ms longer between each attempt.
func Ping(ctx context.Context, db *sqlx.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "DB ping")
		case <-time.After(time.Duration(attempts) * 100 * time.Millisecond):
		}
	}
	return errors.Wrap(err, "DB ping timeout")
}

// CreateIfNotExist creates the configured PostgreSQL database, connecting to the
// "postgres" maintenance database as the app user. SQLite databases are created on open.
func CreateIfNotExist(ctx context.Context, conf *core.Config) error {
	if conf.Database.Engine != Postgres {
		return nil
	}
	source, err := dsn("postgres", conf)
	if err != nil {
		return err
	}
	db, err := sqlx.Open(Postgres, source)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = Ping(ctx, db); err != nil {
		return errors.Wrap(err, "pinging database")
	}

	var exists bool
	err = db.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !exists {
		name := fmt.Sprintf("%q", conf.Database.Name)
		if _, err = db.ExecContext(ctx, "CREATE DATABASE "+name); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// SetupMigrations points goose at the embedded migrations of the db's dialect
// and returns the directory to pass to goose commands.
func SetupMigrations(db *sqlx.DB) (string, error) {
	dialect := db.DriverName()
	if err := goose.SetDialect(dialect); err != nil {
		return "", errors.Wrap(err, "setting migration dialect")
	}
	goose.SetBaseFS(migrations)
	return "migrations/" + dialect, nil
}

// Migrate applies every pending migration.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	dir, err := SetupMigrations(db)
	if err != nil {
		return err
	}
	if err = goose.UpContext(ctx, db.DB, dir); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}
