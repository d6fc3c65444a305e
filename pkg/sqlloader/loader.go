// Package sqlloader provides the public API for the database/sql and GORM
// fixtures loader. It exposes the factory functions and options while keeping
// the mediums and the state machine internal.
//
// Example:
//
//	loader, err := sqlloader.Open(ctx, types.Config{
//	    Driver: types.DriverSQLite,
//	    DSN:    "file:test.db",
//	}, sqlloader.NewEnv(categories, products))
//	defer loader.Dispose(ctx)
package sqlloader

import (
	"context"
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	loader "github.com/mesh-intelligence/fixtures/internal/sqlloader"
	"github.com/mesh-intelligence/fixtures/pkg/types"
)

type (
	// Loader loads dataset trees into a database.
	Loader = loader.Loader
	// Env maps target names to *types.Table or *types.MappedClass.
	Env = loader.Env
	// Option configures a Loader.
	Option = loader.Option
	// Metrics counts what loaders do.
	Metrics = loader.Metrics
	// State is a position in the loader's state machine.
	State = loader.State
)

// NewEnv returns an Env holding targets under their own names.
func NewEnv(targets ...any) Env { return loader.NewEnv(targets...) }

// New creates an idle Loader. Give it an engine, a connection or a session.
func New(env Env, opts ...Option) *Loader { return loader.New(env, opts...) }

// Open opens the database cfg names and returns a Loader that closes it on
// Dispose.
func Open(ctx context.Context, cfg types.Config, env Env, opts ...Option) (*Loader, error) {
	return loader.Open(ctx, cfg, env, opts...)
}

// NewMetrics creates loader collectors registered with reg, if not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics { return loader.NewMetrics(reg) }

// WithEngine sets the database a connection is taken from.
func WithEngine(db *sql.DB) Option { return loader.WithEngine(db) }

// WithConnection sets an explicit connection. Dispose leaves it open.
func WithConnection(conn *sql.Conn) Option { return loader.WithConnection(conn) }

// WithSession sets an external GORM session.
func WithSession(session *gorm.DB) Option { return loader.WithSession(session) }

// WithDriver sets the driver name that picks the GORM dialect.
func WithDriver(driver string) Option { return loader.WithDriver(driver) }

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option { return loader.WithLogger(log) }

// WithMetrics sets the collectors.
func WithMetrics(m *Metrics) Option { return loader.WithMetrics(m) }
