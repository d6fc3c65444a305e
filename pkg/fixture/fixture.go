// Package fixture binds the lifetime of loaded test data to test functions.
//
// A Fixture pairs a tree builder with a Loader. Data sessions set a fresh
// dataset.Tree up for one test and tear it down afterwards; a Decorator wraps
// plain routines, *testing.T functions and generated cases so teardown runs
// on every exit path.
//
//	fx := fixture.New(loader)
//	func TestCheckout(t *testing.T) {
//		data := fx.Bind(t, products)
//		truck := data.MustGet("products")
//		...
//	}
package fixture

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/fixtures/pkg/dataset"
)

// Loader persists dataset trees. *sqlloader.Loader implements it.
type Loader interface {
	Begin(ctx context.Context, unloading bool) error
	Load(ctx context.Context, tree *dataset.Tree) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Unload(ctx context.Context) error
	Dispose(ctx context.Context) error
}

// Builder assembles definitions into a tree.
type Builder func(defs ...*dataset.Definition) (*dataset.Tree, error)

// Fixture is the process-wide pairing of a tree builder and a loader. It is
// safe to keep at package level; the loader it holds is not safe for
// concurrent sessions.
type Fixture struct {
	build  Builder
	loader Loader
	log    zerolog.Logger
}

// Option configures a Fixture.
type Option func(*Fixture)

// WithBuilder replaces dataset.Build as the tree builder.
func WithBuilder(b Builder) Option {
	return func(f *Fixture) { f.build = b }
}

// WithLogger sets the logger sessions log setup and teardown to.
func WithLogger(log zerolog.Logger) Option {
	return func(f *Fixture) { f.log = log }
}

// New creates a Fixture loading through loader.
func New(loader Loader, opts ...Option) *Fixture {
	f := &Fixture{
		build:  dataset.Build,
		loader: loader,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Loader returns the fixture's loader.
func (f *Fixture) Loader() Loader { return f.loader }

// Data returns an inert session for defs. Call Setup before reading it.
func (f *Fixture) Data(defs ...*dataset.Definition) *Data {
	return newData(f, defs)
}

// WithData returns a decorator that gives every wrapped call its own session
// of defs.
func (f *Fixture) WithData(defs ...*dataset.Definition) *Decorator {
	return &Decorator{fixture: f, defs: append([]*dataset.Definition(nil), defs...)}
}
