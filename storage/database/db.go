package database

import (
	"context"
	"database/sql"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/trezcool/goose"

	"github.com/pavulla/kiosk/core"
	"github.com/pavulla/kiosk/fs"
)

const (
	driverName    = "postgres"
	migrationsDir = "migrations"
)

// Migration directions understood by Migrate.
const (
	MigrateUp   = "up"
	MigrateDown = "down"
	MigrateRedo = "redo"
)

func dsn(dbName string, admin bool, conf core.DatabaseConfig) string {
	usr := url.UserPassword(conf.User, conf.Password)
	if admin && conf.AdminUser != "" {
		usr = url.UserPassword(conf.AdminUser, conf.AdminPassword)
	}

	sslMode := "require"
	if conf.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   "postgres",
		User:     usr,
		Host:     conf.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Open connects to the kiosk database and waits for it to answer.
func Open(ctx context.Context, conf core.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open(driverName, dsn(conf.Name, false, conf))
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err := ping(ctx, db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ping waits for the database to be ready, backing off 100ms more after each attempt.
func ping(ctx context.Context, db *sql.DB) error {
	var err error
	for attempts := 1; attempts <= 30; attempts++ {
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

func exists(ctx context.Context, db *sql.DB, query, name string) (bool, error) {
	var found bool
	err := db.QueryRowContext(ctx, query, name).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return found, err
}

// CreateIfNotExist creates the application role and database, connecting as the admin user.
func CreateIfNotExist(ctx context.Context, conf core.DatabaseConfig) error {
	admin, err := sql.Open(driverName, dsn("postgres", true, conf))
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = admin.Close() }()
	if err = ping(ctx, admin); err != nil {
		return err
	}

	if conf.User != "" {
		found, err := exists(ctx, admin, "SELECT true FROM pg_roles WHERE rolname = $1", conf.User)
		if err != nil {
			return errors.Wrap(err, "checking app user")
		}
		if !found {
			// identifiers and passwords cannot be bound as parameters
			q := "CREATE USER " + pq.QuoteIdentifier(conf.User) + " CREATEDB ENCRYPTED PASSWORD " + pq.QuoteLiteral(conf.Password)
			if _, err = admin.ExecContext(ctx, q); err != nil {
				return errors.Wrap(err, "creating app user")
			}
		}
	}

	found, err := exists(ctx, admin, "SELECT true FROM pg_database WHERE datname = $1", conf.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !found {
		q := "CREATE DATABASE " + pq.QuoteIdentifier(conf.Name)
		if conf.User != "" {
			q += " OWNER " + pq.QuoteIdentifier(conf.User)
		}
		if _, err = admin.ExecContext(ctx, q); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

var (
	// mockable
	gooseUpFunc   = goose.Up
	gooseDownFunc = goose.Down
	gooseRedoFunc = goose.Redo
)

// Migrate applies the embedded migrations in the given direction.
func Migrate(db *sql.DB, direction string) error {
	var err error
	switch direction {
	case MigrateUp:
		err = gooseUpFunc(db, appfs.FS, migrationsDir)
	case MigrateDown:
		err = gooseDownFunc(db, appfs.FS, migrationsDir)
	case MigrateRedo:
		err = gooseRedoFunc(db, appfs.FS, migrationsDir)
	default:
		return errors.Errorf("unknown migration direction %q", direction)
	}
	if err != nil {
		return errors.Wrapf(err, "migrating database %s", direction)
	}
	return nil
}
