package database

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"sdsdg/internal/config"
)

// Dialect identifies a database engine.
type Dialect string

const (
	Postgres  Dialect = "postgres"
	MySQL     Dialect = "mysql"
	SQLServer Dialect = "sqlserver"
)

// ParseDialect maps a configured dialect name or alias to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	d, ok := config.SupportedDialects[strings.ToLower(name)]
	if !ok {
		return "", fmt.Errorf("unsupported database type: %s", name)
	}
	return Dialect(d), nil
}

// DriverName returns the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case Postgres:
		return "pgx"
	case MySQL:
		return "mysql"
	default:
		return "sqlserver"
	}
}

// DefaultSchema is the namespace introspected when the connection names none.
func (d Dialect) DefaultSchema(conn *config.ConnectionConfig) string {
	if conn.Schema != "" {
		return conn.Schema
	}
	switch d {
	case Postgres:
		return "public"
	case MySQL:
		return conn.Database
	default:
		return "dbo"
	}
}

// Placeholder returns the bind parameter marker for position n, starting at 1.
func (d Dialect) Placeholder(n int) string {
	switch d {
	case Postgres:
		return "$" + strconv.Itoa(n)
	case MySQL:
		return "?"
	default:
		return "@p" + strconv.Itoa(n)
	}
}

// DSN builds the driver connection string for conn.
func DSN(conn *config.ConnectionConfig) (string, error) {
	d, err := ParseDialect(conn.Dialect)
	if err != nil {
		return "", err
	}
	addr := net.JoinHostPort(conn.Host, strconv.Itoa(conn.Port))

	switch d {
	case Postgres:
		q := url.Values{}
		sslMode := conn.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		q.Set("sslmode", sslMode)
		for k, v := range conn.Params {
			q.Set(k, v)
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(conn.User, conn.Password),
			Host:     addr,
			Path:     "/" + conn.Database,
			RawQuery: q.Encode(),
		}
		return u.String(), nil

	case MySQL:
		mc := mysql.NewConfig()
		mc.User = conn.User
		mc.Passwd = conn.Password
		mc.Net = "tcp"
		mc.Addr = addr
		mc.DBName = conn.Database
		mc.ParseTime = true
		if len(conn.Params) > 0 {
			mc.Params = make(map[string]string, len(conn.Params))
			for k, v := range conn.Params {
				mc.Params[k] = v
			}
		}
		return mc.FormatDSN(), nil

	default:
		q := url.Values{}
		q.Set("database", conn.Database)
		for k, v := range conn.Params {
			q.Set(k, v)
		}
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(conn.User, conn.Password),
			Host:     addr,
			RawQuery: q.Encode(),
		}
		return u.String(), nil
	}
}
