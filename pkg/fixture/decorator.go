package fixture

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"testing"

	"github.com/mesh-intelligence/fixtures/pkg/dataset"
)

// Hook runs around wrapped calls.
type Hook func(ctx context.Context) error

// Routine is a plain routine receiving its data session.
type Routine func(ctx context.Context, data *Data) error

// CaseFunc is the body of one generated case.
type CaseFunc func(ctx context.Context, data *Data, args ...any) error

// Case is one generated test case.
type Case struct {
	Name string
	Fn   CaseFunc
	Args []any
}

// Generator lazily produces test cases.
type Generator func() iter.Seq[Case]

// SetupFunc creates and sets up a fresh data session.
type SetupFunc func(ctx context.Context) (*Data, error)

// Adapter runs a case body with the session SetupFunc creates and tears the
// session down afterwards.
type Adapter func(ctx context.Context, setup SetupFunc, args ...any) error

// BoundCase is a Case rewritten to own its data session.
type BoundCase struct {
	Name      string
	Adapter   Adapter
	SetupData SetupFunc
	Args      []any
}

// Call runs the case with a fresh session.
func (bc BoundCase) Call(ctx context.Context) error {
	return bc.Adapter(ctx, bc.SetupData, bc.Args...)
}

// Decorator wraps calls so that each gets its own data session.
type Decorator struct {
	fixture  *Fixture
	defs     []*dataset.Definition
	setup    Hook
	teardown Hook
}

// Setup sets the hook that runs before the wrapped call, or once before a
// generator produces its first case.
func (d *Decorator) Setup(h Hook) *Decorator {
	d.setup = h
	return d
}

// Teardown sets the hook that runs after every data teardown.
func (d *Decorator) Teardown(h Hook) *Decorator {
	d.teardown = h
	return d
}

func (d *Decorator) runSetup(ctx context.Context) error {
	if d.setup == nil {
		return nil
	}
	if err := d.setup(ctx); err != nil {
		return fmt.Errorf("setup hook: %w", err)
	}
	return nil
}

func (d *Decorator) setupData(ctx context.Context) (*Data, error) {
	data := d.fixture.Data(d.defs...)
	if err := data.Setup(ctx); err != nil {
		return nil, err
	}
	return data, nil
}

// teardownData tears data down and runs the teardown hook even when the
// teardown failed. Both run on ctx detached from its cancellation, so a
// routine that cancelled or outlived its context still leaves nothing behind.
func (d *Decorator) teardownData(ctx context.Context, data *Data) error {
	ctx = context.WithoutCancel(ctx)
	err := data.Teardown(ctx)
	if d.teardown != nil {
		if hookErr := d.teardown(ctx); hookErr != nil {
			err = errors.Join(err, fmt.Errorf("teardown hook: %w", hookErr))
		}
	}
	return err
}

// guard runs fn with a fresh session and tears it down on every exit path,
// panics included. fn's error comes first in the returned chain.
func (d *Decorator) guard(ctx context.Context, setup SetupFunc, fn func(*Data) error) (err error) {
	data, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if tdErr := d.teardownData(ctx, data); tdErr != nil {
			err = errors.Join(err, tdErr)
		}
	}()
	return fn(data)
}

// Wrap returns routine bound to a fresh data session per call.
func (d *Decorator) Wrap(routine Routine) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := d.runSetup(ctx); err != nil {
			return err
		}
		return d.guard(ctx, d.setupData, func(data *Data) error {
			return routine(ctx, data)
		})
	}
}

// Test returns fn as a test function with its own data session. Teardown
// runs also when fn calls t.FailNow.
func (d *Decorator) Test(fn func(t *testing.T, data *Data)) func(*testing.T) {
	return func(t *testing.T) {
		t.Helper()
		ctx := context.WithoutCancel(t.Context())
		if err := d.runSetup(ctx); err != nil {
			t.Fatal(err)
		}
		data, err := d.setupData(ctx)
		if err != nil {
			t.Fatal(err)
		}
		defer func() {
			if err := d.teardownData(ctx, data); err != nil {
				t.Error(err)
			}
		}()
		fn(t, data)
	}
}

// Expand rewrites each case gen produces into a BoundCase with its own
// session. The setup hook runs once, before the first case is produced; when
// it fails, Expand yields a single case returning that error.
func (d *Decorator) Expand(ctx context.Context, gen Generator) iter.Seq[BoundCase] {
	return func(yield func(BoundCase) bool) {
		if err := d.runSetup(ctx); err != nil {
			yield(BoundCase{
				Name:      "setup",
				Adapter:   func(context.Context, SetupFunc, ...any) error { return err },
				SetupData: d.setupData,
			})
			return
		}
		for c := range gen() {
			if !yield(d.bind(c)) {
				return
			}
		}
	}
}

func (d *Decorator) bind(c Case) BoundCase {
	fn := c.Fn
	return BoundCase{
		Name: c.Name,
		Adapter: func(ctx context.Context, setup SetupFunc, args ...any) error {
			return d.guard(ctx, setup, func(data *Data) error {
				return fn(ctx, data, args...)
			})
		},
		SetupData: d.setupData,
		Args:      append([]any(nil), c.Args...),
	}
}

// RunCases runs every case gen produces as a subtest with its own session.
func (d *Decorator) RunCases(t *testing.T, gen Generator) {
	t.Helper()
	ctx := context.WithoutCancel(t.Context())
	i := 0
	for bc := range d.Expand(ctx, gen) {
		name := bc.Name
		if name == "" {
			name = fmt.Sprintf("case_%d", i)
		}
		i++
		t.Run(name, func(t *testing.T) {
			if err := bc.Call(ctx); err != nil {
				t.Error(err)
			}
		})
	}
}
