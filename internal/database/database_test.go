package database

import (
	"net/url"
	"testing"

	"storefront/internal/config"

	"github.com/jackc/pgx/v5"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN_EscapesCredentials(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "db.internal",
		Port:     "5433",
		User:     "shop:admin",
		Password: "p@ss/w:rd?#%",
		Database: "storefront",
		Schema:   "public",
	}

	parsed, err := url.Parse(DSN(cfg))
	require.NoError(t, err)

	password, _ := parsed.User.Password()
	assert.Equal(t, cfg.User, parsed.User.Username())
	assert.Equal(t, cfg.Password, password)
	assert.Equal(t, "db.internal", parsed.Hostname())
	assert.Equal(t, "5433", parsed.Port())
	assert.Equal(t, "/storefront", parsed.Path)
	assert.Equal(t, "public", parsed.Query().Get("search_path"))
	assert.Equal(t, "disable", parsed.Query().Get("sslmode"))

	connConfig, err := pgx.ParseConfig(DSN(cfg))
	require.NoError(t, err)
	assert.Equal(t, cfg.User, connConfig.User)
	assert.Equal(t, cfg.Password, connConfig.Password)
	assert.Equal(t, "storefront", connConfig.Database)
}

func TestProperty_DSNRoundTripsAnyPassword(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("the password survives parsing unchanged", prop.ForAll(
		func(password string) bool {
			dsn := DSN(config.DatabaseConfig{
				Host: "localhost", Port: "5432", User: "user", Password: password, Database: "db",
			})
			parsed, err := url.Parse(dsn)
			if err != nil {
				return false
			}
			got, _ := parsed.User.Password()
			return got == password
		},
		gen.AnyString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
