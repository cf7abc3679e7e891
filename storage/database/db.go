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

	"github.com/akcent-academy/crm/core"
	appfs "github.com/akcent-academy/crm/fs"
)

// maintenanceDB is the database admin connections open before the app database exists.
const maintenanceDB = "postgres"

// DSN builds the connection URL of dbName. Admin connections use the admin role when one is configured.
func DSN(conf *core.Config, dbName string, admin bool) string {
	dbc := conf.Database
	user := url.UserPassword(dbc.User, dbc.Password)
	if admin && dbc.AdminUser != "" {
		user = url.UserPassword(dbc.AdminUser, dbc.AdminPassword)
	}

	q := make(url.Values)
	q.Set("sslmode", "require")
	if dbc.DisableTLS {
		q.Set("sslmode", "disable")
	}
	q.Set("timezone", "utc") // timestamps are stored as epoch millis
	if conf.AppName != "" {
		q.Set("application_name", conf.AppName)
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     user,
		Host:     dbc.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func open(conf *core.Config, dbName string, admin bool) (*sql.DB, error) {
	db, err := sql.Open(conf.Database.Engine, DSN(conf, dbName, admin))
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", dbName)
	}
	return db, nil
}

// Connect opens the app database, waits until it accepts connections and applies the pool settings.
func Connect(conf *core.Config) (*sqlx.DB, error) {
	db, err := open(conf, conf.Database.Name, false)
	if err != nil {
		return nil, err
	}
	if err = ping(context.Background(), db, conf.Database.PingAttempts, conf.Database.PingBackoff); err != nil {
		_ = db.Close()
		return nil, err
	}

	if n := conf.Database.MaxOpenConns; n > 0 {
		db.SetMaxOpenConns(n)
		db.SetMaxIdleConns(n)
	}
	db.SetConnMaxLifetime(conf.Database.ConnMaxLifetime)
	return sqlx.NewDb(db, conf.Database.Engine), nil
}

type pinger interface {
	PingContext(ctx context.Context) error
}

// ping retries up to attempts times, waiting backoff longer after each failure.
func ping(ctx context.Context, db pinger, attempts int, backoff time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		select {
		case <-time.After(time.Duration(i) * backoff):
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "waiting for database")
		}
	}
	return errors.Wrapf(err, "database unreachable after %d attempts", attempts)
}

func exists(db *sql.DB, query string, arg interface{}) (bool, error) {
	var found bool
	err := db.QueryRow(query, arg).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return found, err
}

func createAppUser(db *sql.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}
	found, err := exists(db, "SELECT true FROM pg_roles WHERE rolname = $1", conf.Database.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if found {
		return nil
	}
	// role DDL takes no bind parameters
	q := "CREATE USER " + pq.QuoteIdentifier(conf.Database.User) + " CREATEDB ENCRYPTED PASSWORD " + pq.QuoteLiteral(conf.Database.Password)
	if _, err = db.Exec(q); err != nil {
		return errors.Wrap(err, "creating app user")
	}
	return nil
}

func createDB(db *sql.DB, conf *core.Config) error {
	found, err := exists(db, "SELECT true FROM pg_database WHERE datname = $1", conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "checking database")
	}
	if found {
		return nil
	}
	if _, err = db.Exec("CREATE DATABASE " + pq.QuoteIdentifier(conf.Database.Name)); err != nil {
		return errors.Wrap(err, "creating database")
	}
	return nil
}

// CreateIfNotExist creates the app role (as admin) and then the app database (as the app role).
func CreateIfNotExist(conf *core.Config) error {
	if err := withMaintenanceDB(conf, true, func(db *sql.DB) error { return createAppUser(db, conf) }); err != nil {
		return err
	}
	return withMaintenanceDB(conf, false, func(db *sql.DB) error { return createDB(db, conf) })
}

func withMaintenanceDB(conf *core.Config, admin bool, fn func(db *sql.DB) error) error {
	db, err := open(conf, maintenanceDB, admin)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err = ping(context.Background(), db, conf.Database.PingAttempts, conf.Database.PingBackoff); err != nil {
		return err
	}
	return fn(db)
}

func Migrate(db *sql.DB) error {
	if err := goose.RunFS("up", db, appfs.FS, "migrations"); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}
