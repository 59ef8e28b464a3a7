// Package store persists extracted values to PostgreSQL.
package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/webharvest/internal/db"
)

var (
	// ErrClosed is returned for writes after Close.
	ErrClosed = eris.New("store: sink is closed")
	// ErrBadTable is returned when a table name fails identifier validation.
	ErrBadTable = eris.New("store: invalid table name")
)

// Table names are interpolated into statement text (identifiers cannot be
// parameterized), so they are restricted to plain, optionally
// schema-qualified identifiers before any SQL is built.
var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Config holds connection parameters for the sink.
type Config struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Database string `yaml:"database" mapstructure:"database"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
}

// DSN renders the config as a pgx connection string. Port defaults to 5432.
func (c Config) DSN() string {
	port := c.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, port, c.Database)
}

// Sink executes parameterized writes, committing each statement
// individually. A sink exclusively owns its connection; it must be closed
// when done and accepts no writes afterwards.
type Sink struct {
	pool    db.Pool
	closeFn func()
	closed  bool
}

// New connects to PostgreSQL and returns a ready sink. The pool is capped at
// one connection so the sink keeps single-connection write semantics.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	pgxCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, eris.Wrap(err, "store: parse config")
	}
	pgxCfg.MaxConns = 1
	pgxCfg.MinConns = 1
	pgxCfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "store: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping")
	}
	return &Sink{pool: pool, closeFn: pool.Close}, nil
}

// NewWithPool wraps an existing pool. Used by tests to substitute pgxmock.
func NewWithPool(pool db.Pool) *Sink {
	return &Sink{pool: pool, closeFn: pool.Close}
}

// Write executes one parameterized statement. Outside an explicit
// transaction pgx commits per statement, so every successful call is its own
// atomic unit.
func (s *Sink) Write(ctx context.Context, query string, args ...any) error {
	if s.closed {
		return ErrClosed
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return eris.Wrap(err, "store: execute")
	}
	return nil
}

// WriteAll inserts one row per value into table, committing after each row.
// A failed row is logged and skipped; rows already written stay committed.
// The trailing written/failed counts are logged when the batch finishes.
func (s *Sink) WriteAll(ctx context.Context, table string, values []any) error {
	if s.closed {
		return ErrClosed
	}
	if !tableNameRe.MatchString(table) {
		return eris.Wrapf(ErrBadTable, "%q", table)
	}

	query := fmt.Sprintf("INSERT INTO %s (data) VALUES ($1)", table)

	var failed int
	for i, v := range values {
		if _, err := s.pool.Exec(ctx, query, v); err != nil {
			failed++
			zap.L().Error("row write failed",
				zap.String("table", table),
				zap.Int("index", i),
				zap.Error(err),
			)
		}
	}

	zap.L().Info("batch write finished",
		zap.String("table", table),
		zap.Int("written", len(values)-failed),
		zap.Int("failed", failed),
	)
	return nil
}

// Close releases the connection. Safe to call repeatedly and safe when the
// connection was never successfully opened.
func (s *Sink) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.closeFn != nil {
		s.closeFn()
	}
}

// Closed reports whether Close has been called.
func (s *Sink) Closed() bool {
	return s.closed
}
