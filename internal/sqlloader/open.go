package sqlloader

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/mesh-intelligence/fixtures/pkg/types"
)

// Open validates cfg, opens and pings the database it names and returns a
// Loader that owns it: Dispose closes the database.
func Open(ctx context.Context, cfg types.Config, env Env, opts ...Option) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	opts = append(opts, WithEngine(db), WithDriver(cfg.Driver))
	l := New(env, opts...)
	l.ownsDB = true
	return l, nil
}

// dialector returns the GORM dialect for driver over an existing connection.
func dialector(driver string, conn gorm.ConnPool) gorm.Dialector {
	if driver == types.DriverPgx {
		return postgres.New(postgres.Config{Conn: conn})
	}
	return sqlite.New(sqlite.Config{DriverName: types.DriverSQLite, Conn: conn})
}
