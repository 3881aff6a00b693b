// Package store provides access to named source stores and the metastore.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// DefaultQueryTimeout bounds store operations that have no explicit
// deadline on their context.
const DefaultQueryTimeout = 30 * time.Second

// Config identifies one externally configured store. Two configs are
// equal when all fields are equal; a table's identity is its config plus
// its table name.
type Config struct {
	Name         string
	Driver       string // "sqlite3" or "pgx"
	DSN          string
	MaxOpenConns int
	QueryTimeout time.Duration
}

// Validate checks that the config can be used to open a pool.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("store name is required")
	}
	if c.Driver == "" {
		return fmt.Errorf("store %q: driver is required", c.Name)
	}
	if c.DSN == "" {
		return fmt.Errorf("store %q: dsn is required", c.Name)
	}
	return nil
}

// Source is a pooled connection to one configured store.
type Source struct {
	Config Config
	DB     *sql.DB
}

// QueryContext runs a query with the config's bounded wait applied when
// the caller's context has no deadline.
func (s *Source) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	ctx, cancel := s.boundCtx(ctx)
	defer cancel()
	return s.DB.QueryContext(ctx, query, args...) //nolint:sqlclosecheck // caller owns rows
}

// ExecContext runs a statement with the config's bounded wait applied when
// the caller's context has no deadline.
func (s *Source) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, cancel := s.boundCtx(ctx)
	defer cancel()
	return s.DB.ExecContext(ctx, query, args...)
}

// Placeholder returns the driver's positional parameter marker for the
// 1-based argument index.
func (s *Source) Placeholder(i int) string {
	if s.Config.Driver == "pgx" {
		return "$" + strconv.Itoa(i)
	}
	return "?"
}

func (s *Source) boundCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	timeout := s.Config.QueryTimeout
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Registry is the connection factory: it maps store names to configs and
// opens one pool per store on first use. Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	configs map[string]Config
	sources map[string]*Source
}

// NewRegistry creates a Registry over the given configs.
func NewRegistry(configs ...Config) (*Registry, error) {
	r := &Registry{
		configs: make(map[string]Config, len(configs)),
		sources: make(map[string]*Source),
	}
	for _, c := range configs {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, ok := r.configs[c.Name]; ok {
			return nil, fmt.Errorf("duplicate store name %q", c.Name)
		}
		r.configs[c.Name] = c
	}
	return r, nil
}

// Source returns the pooled connection for the named store, opening it on
// first use.
func (r *Registry) Source(name string) (*Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sources[name]; ok {
		return s, nil
	}
	cfg, ok := r.configs[name]
	if !ok {
		return nil, fmt.Errorf("unknown store %q", name)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store %q: %w", name, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	s := &Source{Config: cfg, DB: db}
	r.sources[name] = s
	return s, nil
}

// Close closes every opened pool.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, s := range r.sources {
		if err := s.DB.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close store %q: %w", name, err)
		}
		delete(r.sources, name)
	}
	return firstErr
}
