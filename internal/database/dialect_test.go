package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdsdg/internal/config"
)

func conn(dialect string) *config.ConnectionConfig {
	return &config.ConnectionConfig{
		Name: "shop", Dialect: dialect, Host: "db", Port: 5432,
		User: "app", Password: "p@ss", Database: "shop", PasswordEnv: "PW",
	}
}

func TestDSN(t *testing.T) {
	tests := []struct {
		dialect string
		want    string
	}{
		{"postgresql", "postgres://app:p%40ss@db:5432/shop?sslmode=disable"},
		{"mysql", "app:p@ss@tcp(db:5432)/shop?parseTime=true"},
		{"sqlserver", "sqlserver://app:p%40ss@db:5432?database=shop"},
	}
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			dsn, err := DSN(conn(tt.dialect))
			require.NoError(t, err)
			assert.Equal(t, tt.want, dsn)
		})
	}
}

func TestDSNUnsupported(t *testing.T) {
	_, err := DSN(conn("sqlite"))
	require.Error(t, err)
}

func TestDialectDetails(t *testing.T) {
	pg, err := ParseDialect("PostgreSQL")
	require.NoError(t, err)
	assert.Equal(t, Postgres, pg)
	assert.Equal(t, "pgx", pg.DriverName())
	assert.Equal(t, "$2", pg.Placeholder(2))
	assert.Equal(t, "public", pg.DefaultSchema(conn("postgres")))

	my, _ := ParseDialect("mysql+pymysql")
	assert.Equal(t, "?", my.Placeholder(1))
	assert.Equal(t, "shop", my.DefaultSchema(conn("mysql")))

	ms, _ := ParseDialect("mssql")
	assert.Equal(t, "sqlserver", ms.DriverName())
	assert.Equal(t, "@p1", ms.Placeholder(1))
	c := conn("mssql")
	c.Schema = "sales"
	assert.Equal(t, "sales", ms.DefaultSchema(c))
}
