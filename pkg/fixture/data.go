package fixture

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/fixtures/pkg/dataset"
	"github.com/mesh-intelligence/fixtures/pkg/types"
)

// Data is one scoped data session: the tree built from its definitions,
// loaded through the fixture's loader. It is inert until Setup and inert
// again after Teardown.
type Data struct {
	id      uuid.UUID
	fixture *Fixture
	defs    []*dataset.Definition
	tree    *dataset.Tree
	log     zerolog.Logger
}

func newData(f *Fixture, defs []*dataset.Definition) *Data {
	id := uuid.New()
	return &Data{
		id:      id,
		fixture: f,
		defs:    append([]*dataset.Definition(nil), defs...),
		log:     f.log.With().Str("session", id.String()).Logger(),
	}
}

// ID identifies the session in logs.
func (d *Data) ID() uuid.UUID { return d.id }

// Setup builds a fresh tree and loads it. Calling Setup twice without
// Teardown loads a second tree; callers must not do that.
func (d *Data) Setup(ctx context.Context) error {
	tree, err := d.fixture.build(d.defs...)
	if err != nil {
		return fmt.Errorf("building datasets: %w", err)
	}
	if err := d.fixture.loader.Load(ctx, tree); err != nil {
		return fmt.Errorf("loading datasets: %w", err)
	}
	d.tree = tree
	d.log.Debug().Int("datasets", tree.Len()).Int("rows", tree.RowCount()).Msg("data setup")
	return nil
}

// Teardown unloads everything the loader retains and drops the tree.
func (d *Data) Teardown(ctx context.Context) error {
	d.tree = nil
	if err := d.fixture.loader.Unload(ctx); err != nil {
		return fmt.Errorf("unloading datasets: %w", err)
	}
	d.log.Debug().Msg("data teardown")
	return nil
}

// Tree returns the loaded tree.
func (d *Data) Tree() (*dataset.Tree, error) {
	if d.tree == nil {
		return nil, fmt.Errorf("data session %s: %w", d.id, types.ErrUninitialized)
	}
	return d.tree, nil
}

// Get returns the dataset with the given name.
func (d *Data) Get(name string) (*dataset.Dataset, error) {
	tree, err := d.Tree()
	if err != nil {
		return nil, err
	}
	return tree.Get(name)
}

// At returns the i-th dataset in declaration order.
func (d *Data) At(i int) (*dataset.Dataset, error) {
	tree, err := d.Tree()
	if err != nil {
		return nil, err
	}
	return tree.At(i)
}

// MustGet is Get for tests: it panics on error.
func (d *Data) MustGet(name string) *dataset.Dataset {
	ds, err := d.Get(name)
	if err != nil {
		panic(err)
	}
	return ds
}

// Use sets a session of defs up, runs fn with it and tears it down, also when
// fn fails or panics. A failed setup leaves nothing to tear down: the load
// was rolled back. Teardown ignores the cancellation of ctx. Its error is
// joined after fn's.
func Use(ctx context.Context, f *Fixture, defs []*dataset.Definition, fn func(context.Context, *Data) error) (err error) {
	data := f.Data(defs...)
	if err := data.Setup(ctx); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, data.Teardown(context.WithoutCancel(ctx)))
	}()
	return fn(ctx, data)
}

// Bind sets a session of defs up for the test and registers its teardown
// with t.Cleanup. A failed setup fails the test immediately.
func (f *Fixture) Bind(t testing.TB, defs ...*dataset.Definition) *Data {
	t.Helper()
	ctx := context.WithoutCancel(t.Context())
	data := f.Data(defs...)
	if err := data.Setup(ctx); err != nil {
		t.Fatalf("fixture setup: %v", err)
	}
	t.Cleanup(func() {
		if err := data.Teardown(ctx); err != nil {
			t.Errorf("fixture teardown: %v", err)
		}
	})
	return data
}
