package database

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akcent-academy/crm/core"
)

func TestDSN(t *testing.T) {
	conf := &core.Config{
		AppName: "Akcent CRM",
		Database: core.DatabaseConfig{
			Host:          "db",
			Port:          "5433",
			Name:          "akcent",
			User:          "app",
			Password:      "p@ss word",
			AdminUser:     "postgres",
			AdminPassword: "root",
		},
	}

	tests := []struct {
		name       string
		dbName     string
		admin      bool
		disableTLS bool
		wantUser   string
		wantPwd    string
		wantSSL    string
	}{
		{name: "app", dbName: "akcent", wantUser: "app", wantPwd: "p@ss word", wantSSL: "require"},
		{name: "admin", dbName: "postgres", admin: true, wantUser: "postgres", wantPwd: "root", wantSSL: "require"},
		{name: "no tls", dbName: "akcent", disableTLS: true, wantUser: "app", wantPwd: "p@ss word", wantSSL: "disable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *conf
			c.Database.DisableTLS = tt.disableTLS
			u, err := url.Parse(DSN(&c, tt.dbName, tt.admin))
			require.NoError(t, err)

			pwd, _ := u.User.Password()
			assert.Equal(t, "postgres", u.Scheme)
			assert.Equal(t, "db:5433", u.Host)
			assert.Equal(t, "/"+tt.dbName, u.Path)
			assert.Equal(t, tt.wantUser, u.User.Username())
			assert.Equal(t, tt.wantPwd, pwd)
			assert.Equal(t, tt.wantSSL, u.Query().Get("sslmode"))
			assert.Equal(t, "utc", u.Query().Get("timezone"))
			assert.Equal(t, "Akcent CRM", u.Query().Get("application_name"))
		})
	}

	t.Run("admin falls back to the app role", func(t *testing.T) {
		c := *conf
		c.Database.AdminUser = ""
		u, err := url.Parse(DSN(&c, "postgres", true))
		require.NoError(t, err)
		assert.Equal(t, "app", u.User.Username())
	})
}

type flakyDB struct {
	failures int
	calls    int
}

func (db *flakyDB) PingContext(context.Context) error {
	db.calls++
	if db.calls <= db.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestPing(t *testing.T) {
	ctx := context.Background()

	db := &flakyDB{failures: 2}
	require.NoError(t, ping(ctx, db, 5, time.Millisecond))
	assert.Equal(t, 3, db.calls)

	db = &flakyDB{failures: 10}
	err := ping(ctx, db, 3, time.Millisecond)
	assert.EqualError(t, err, "database unreachable after 3 attempts: connection refused")
	assert.Equal(t, 3, db.calls)

	db = &flakyDB{failures: 10}
	assert.Error(t, ping(ctx, db, 0, time.Millisecond))
	assert.Equal(t, 1, db.calls, "at least one attempt")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	db = &flakyDB{failures: 10}
	assert.Error(t, ping(cancelled, db, 5, time.Hour))
	assert.Equal(t, 1, db.calls)
}
