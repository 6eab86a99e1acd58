// Package database manages named database connections and reads their schema
// metadata from the information_schema catalog.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // for sqlserver
	_ "github.com/go-sql-driver/mysql"   // for mysql
	_ "github.com/jackc/pgx/v5/stdlib"   // for postgres
	"go.uber.org/zap"

	"sdsdg/internal/apperrors"
	"sdsdg/internal/config"
	"sdsdg/internal/logger"
	"sdsdg/internal/retry"
	"sdsdg/internal/schema"
)

// Manager opens connections lazily and keeps one pool per connection name.
type Manager struct {
	mu      sync.Mutex
	configs map[string]config.ConnectionConfig
	pools   map[string]*sql.DB
	schemas map[string]*schema.Schema
	retry   *retry.Config
	logger  *zap.Logger
}

// NewManager validates the connection configurations. No connection is opened.
func NewManager(conns []config.ConnectionConfig, log *zap.Logger) (*Manager, error) {
	m := &Manager{
		configs: make(map[string]config.ConnectionConfig, len(conns)),
		pools:   make(map[string]*sql.DB),
		schemas: make(map[string]*schema.Schema),
		retry:   retry.DefaultConfig(),
		logger:  log.Named("database"),
	}
	for _, c := range conns {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := m.configs[c.Name]; dup {
			return nil, fmt.Errorf("duplicate connection name %q", c.Name)
		}
		m.configs[c.Name] = c
	}
	return m, nil
}

// Names returns the configured connection names, sorted.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.configs))
	for n := range m.configs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Config returns the configuration of connection name.
func (m *Manager) Config(name string) (config.ConnectionConfig, error) {
	c, ok := m.configs[name]
	if !ok {
		return config.ConnectionConfig{}, fmt.Errorf("%w: %q", apperrors.ErrConnectionNotFound, name)
	}
	return c, nil
}

// Dialect returns the dialect of connection name.
func (m *Manager) Dialect(name string) (Dialect, error) {
	c, err := m.Config(name)
	if err != nil {
		return "", err
	}
	return ParseDialect(c.Dialect)
}

// DB returns the pool for connection name, opening and pinging it on first use.
// Transient connection errors are retried.
func (m *Manager) DB(ctx context.Context, name string) (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if db, ok := m.pools[name]; ok {
		return db, nil
	}
	c, ok := m.configs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrConnectionNotFound, name)
	}
	d, err := ParseDialect(c.Dialect)
	if err != nil {
		return nil, err
	}
	dsn, err := DSN(&c)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", logger.SanitizeConnectionString(dsn), err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	err = retry.DoIfRetryable(ctx, m.retry, func(attempt int) error {
		if err := db.PingContext(ctx); err != nil {
			m.logger.Debug("Ping failed",
				zap.String("connection", name),
				zap.Int("attempt", attempt),
				zap.String("error", logger.SanitizeError(err)))
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to %s: %w", logger.SanitizeConnectionString(dsn), err)
	}

	m.logger.Info("Connected", zap.String("connection", name), zap.String("dialect", string(d)))
	m.pools[name] = db
	return db, nil
}

// Introspect reads the tables, columns, keys and constraints of connection
// name. Failures are wrapped in a SchemaUnavailableError.
func (m *Manager) Introspect(ctx context.Context, name string) (*schema.RawSchema, error) {
	c, err := m.Config(name)
	if err != nil {
		return nil, &apperrors.SchemaUnavailableError{Connection: name, Cause: err}
	}
	d, err := ParseDialect(c.Dialect)
	if err != nil {
		return nil, &apperrors.SchemaUnavailableError{Connection: name, Cause: err}
	}
	db, err := m.DB(ctx, name)
	if err != nil {
		return nil, &apperrors.SchemaUnavailableError{Connection: name, Cause: err}
	}

	start := time.Now()
	raw, err := introspect(ctx, db, d, c.Database, d.DefaultSchema(&c))
	if err != nil {
		return nil, &apperrors.SchemaUnavailableError{Connection: name, Cause: err}
	}
	m.logger.Info("Introspected schema",
		zap.String("connection", name),
		zap.Int("tables", len(raw.Tables)),
		zap.Duration("elapsed", time.Since(start)))
	return raw, nil
}

// Load introspects connection name and builds the schema model. The model is
// cached until Forget or Close.
func (m *Manager) Load(ctx context.Context, name string) (*schema.Schema, error) {
	m.mu.Lock()
	s, ok := m.schemas[name]
	m.mu.Unlock()
	if ok {
		return s, nil
	}

	raw, err := m.Introspect(ctx, name)
	if err != nil {
		return nil, err
	}
	s, err = schema.Build(raw)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.schemas[name] = s
	m.mu.Unlock()
	return s, nil
}

// Forget drops the cached schema of connection name.
func (m *Manager) Forget(name string) {
	m.mu.Lock()
	delete(m.schemas, name)
	m.mu.Unlock()
}

// Close closes every open pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, db := range m.pools {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection %q: %w", name, err))
		}
	}
	m.pools = make(map[string]*sql.DB)
	m.schemas = make(map[string]*schema.Schema)
	return errors.Join(errs...)
}
