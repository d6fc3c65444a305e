package fixture

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/fixtures/pkg/dataset"
	"github.com/mesh-intelligence/fixtures/pkg/types"
)

// fakeLoader records the calls a session makes.
type fakeLoader struct {
	calls     *[]string
	loadErr   error
	unloadErr error
	trees     []*dataset.Tree
}

func (l *fakeLoader) Begin(context.Context, bool) error { return nil }
func (l *fakeLoader) Commit(context.Context) error      { return nil }
func (l *fakeLoader) Rollback(context.Context) error    { return nil }
func (l *fakeLoader) Dispose(context.Context) error     { return nil }

func (l *fakeLoader) Load(_ context.Context, tree *dataset.Tree) error {
	*l.calls = append(*l.calls, "load")
	if l.loadErr != nil {
		return l.loadErr
	}
	l.trees = append(l.trees, tree)
	return nil
}

func (l *fakeLoader) Unload(context.Context) error {
	*l.calls = append(*l.calls, "unload")
	return l.unloadErr
}

func newFake() (*fakeLoader, *[]string) {
	calls := &[]string{}
	return &fakeLoader{calls: calls}, calls
}

func hook(calls *[]string, name string) Hook {
	return func(context.Context) error {
		*calls = append(*calls, name)
		return nil
	}
}

var colors = dataset.Define("colors").
	Row("red", dataset.Col("name", "red")).
	Row("blue", dataset.Col("name", "blue"))

func TestDataBeforeSetup(t *testing.T) {
	loader, _ := newFake()
	data := New(loader).Data(colors)

	_, err := data.Get("colors")
	require.ErrorIs(t, err, types.ErrUninitialized)
	_, err = data.At(0)
	require.ErrorIs(t, err, types.ErrUninitialized)
	_, err = data.Tree()
	require.ErrorIs(t, err, types.ErrUninitialized)
	assert.Panics(t, func() { data.MustGet("colors") })
	assert.NotEqual(t, uuid.Nil, data.ID())
}

func TestDataSetupTeardown(t *testing.T) {
	ctx := context.Background()
	loader, calls := newFake()
	data := New(loader).Data(colors)

	require.NoError(t, data.Setup(ctx))
	ds, err := data.Get("colors")
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())
	ds0, err := data.At(0)
	require.NoError(t, err)
	assert.Same(t, ds, ds0)
	assert.Same(t, ds, data.MustGet("colors"))
	_, err = data.Get("shapes")
	require.ErrorIs(t, err, types.ErrDatasetNotFound)

	require.NoError(t, data.Teardown(ctx))
	assert.Equal(t, []string{"load", "unload"}, *calls)
	_, err = data.Get("colors")
	require.ErrorIs(t, err, types.ErrUninitialized)
}

func TestDataSetupBuildFailure(t *testing.T) {
	loader, calls := newFake()
	bad := dataset.Define("p").Row("r", dataset.Col("c", dataset.RefTo("missing", "x", "id")))
	err := New(loader).Data(bad).Setup(context.Background())
	require.ErrorIs(t, err, types.ErrResolution)
	assert.Empty(t, *calls)
}

func TestFixtureWithBuilder(t *testing.T) {
	loader, _ := newFake()
	var built [][]*dataset.Definition
	fx := New(loader, WithBuilder(func(defs ...*dataset.Definition) (*dataset.Tree, error) {
		built = append(built, defs)
		return dataset.Build(defs...)
	}))
	require.NoError(t, fx.Data(colors).Setup(context.Background()))
	assert.Equal(t, [][]*dataset.Definition{{colors}}, built)
	assert.Same(t, loader, fx.Loader())
}

func TestUse(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	tests := []struct {
		name      string
		loadErr   error
		unloadErr error
		fn        func(context.Context, *Data) error
		wantCalls []string
		wantErrs  []error
	}{
		{
			name:      "success",
			fn:        func(context.Context, *Data) error { return nil },
			wantCalls: []string{"load", "unload"},
		},
		{
			name:      "routine error",
			fn:        func(context.Context, *Data) error { return boom },
			wantCalls: []string{"load", "unload"},
			wantErrs:  []error{boom},
		},
		{
			name:      "routine and unload errors are joined",
			unloadErr: types.ErrNotImplemented,
			fn:        func(context.Context, *Data) error { return boom },
			wantCalls: []string{"load", "unload"},
			wantErrs:  []error{boom, types.ErrNotImplemented},
		},
		{
			name:      "failed setup skips teardown",
			loadErr:   types.ErrValueMismatch,
			fn:        func(context.Context, *Data) error { return nil },
			wantCalls: []string{"load"},
			wantErrs:  []error{types.ErrValueMismatch},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader, calls := newFake()
			loader.loadErr = tt.loadErr
			loader.unloadErr = tt.unloadErr

			err := Use(ctx, New(loader), []*dataset.Definition{colors}, tt.fn)
			assert.Equal(t, tt.wantCalls, *calls)
			if len(tt.wantErrs) == 0 {
				require.NoError(t, err)
			}
			for _, want := range tt.wantErrs {
				require.ErrorIs(t, err, want)
			}
		})
	}
}

func TestUseTearsDownOnPanic(t *testing.T) {
	loader, calls := newFake()
	assert.PanicsWithValue(t, "kaboom", func() {
		_ = Use(context.Background(), New(loader), []*dataset.Definition{colors}, func(context.Context, *Data) error {
			panic("kaboom")
		})
	})
	assert.Equal(t, []string{"load", "unload"}, *calls)
}

func TestBind(t *testing.T) {
	loader, calls := newFake()
	fx := New(loader)

	t.Run("bound", func(t *testing.T) {
		data := fx.Bind(t, colors)
		assert.Equal(t, 2, data.MustGet("colors").Len())
		assert.Equal(t, []string{"load"}, *calls)
	})
	assert.Equal(t, []string{"load", "unload"}, *calls)
}

func TestWrapRunsHooksAroundSession(t *testing.T) {
	loader, calls := newFake()
	dec := New(loader).WithData(colors).
		Setup(hook(calls, "setup hook")).
		Teardown(hook(calls, "teardown hook"))

	run := dec.Wrap(func(_ context.Context, data *Data) error {
		*calls = append(*calls, "routine")
		_, err := data.Get("colors")
		return err
	})
	require.NoError(t, run(context.Background()))
	assert.Equal(t, []string{"setup hook", "load", "routine", "unload", "teardown hook"}, *calls)
}

func TestWrapTearsDownOnPanic(t *testing.T) {
	loader, calls := newFake()
	run := New(loader).WithData(colors).
		Teardown(hook(calls, "teardown hook")).
		Wrap(func(context.Context, *Data) error { panic("kaboom") })

	assert.Panics(t, func() { _ = run(context.Background()) })
	assert.Equal(t, []string{"load", "unload", "teardown hook"}, *calls)
}

func TestWrapChainsErrors(t *testing.T) {
	loader, calls := newFake()
	loader.unloadErr = types.ErrNotImplemented
	boom := errors.New("boom")
	hookErr := errors.New("hook")

	run := New(loader).WithData(colors).
		Teardown(func(context.Context) error { return hookErr }).
		Wrap(func(context.Context, *Data) error { return boom })

	err := run(context.Background())
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, err, types.ErrNotImplemented)
	require.ErrorIs(t, err, hookErr)
	assert.Equal(t, []string{"load", "unload"}, *calls)
}

func TestWrapGivesEachCallAFreshSession(t *testing.T) {
	loader, _ := newFake()
	var ids []uuid.UUID
	run := New(loader).WithData(colors).Wrap(func(_ context.Context, data *Data) error {
		ids = append(ids, data.ID())
		return nil
	})
	require.NoError(t, run(context.Background()))
	require.NoError(t, run(context.Background()))
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
	require.Len(t, loader.trees, 2)
	assert.NotSame(t, loader.trees[0], loader.trees[1])
}

func TestWrapIsIdempotentAcrossDecorators(t *testing.T) {
	wrapOnce := func() []string {
		loader, calls := newFake()
		run := New(loader).WithData(colors).
			Setup(hook(calls, "setup hook")).
			Teardown(hook(calls, "teardown hook")).
			Wrap(func(_ context.Context, data *Data) error {
				ds := data.MustGet("colors")
				*calls = append(*calls, "routine", ds.Name())
				return nil
			})
		require.NoError(t, run(context.Background()))
		return *calls
	}

	first, second := wrapOnce(), wrapOnce()
	assert.Equal(t, []string{"setup hook", "load", "routine", "colors", "unload", "teardown hook"}, first)
	assert.Equal(t, first, second)
}

func TestWrapSetupHookFailure(t *testing.T) {
	loader, calls := newFake()
	hookErr := errors.New("hook")
	run := New(loader).WithData(colors).
		Setup(func(context.Context) error { return hookErr }).
		Wrap(func(context.Context, *Data) error { return nil })

	require.ErrorIs(t, run(context.Background()), hookErr)
	assert.Empty(t, *calls)
}

func TestDecoratorTest(t *testing.T) {
	loader, calls := newFake()
	dec := New(loader).WithData(colors).Teardown(hook(calls, "teardown hook"))

	var seen *dataset.Dataset
	t.Run("wrapped", dec.Test(func(t *testing.T, data *Data) {
		seen = data.MustGet("colors")
	}))
	require.NotNil(t, seen)
	assert.Equal(t, []string{"load", "unload", "teardown hook"}, *calls)
}

// threeCases yields cases that each mutate their own session.
func threeCases(seen *[]*Data) Generator {
	return func() iter.Seq[Case] {
		return func(yield func(Case) bool) {
			for i, name := range []string{"a", "b", "c"} {
				c := Case{
					Name: name,
					Fn: func(ctx context.Context, data *Data, args ...any) error {
						*seen = append(*seen, data)
						ds := data.MustGet("colors")
						red, _ := ds.Row("red")
						if v, _ := red.Value("name"); v != "red" {
							return errors.New("mutation leaked between cases")
						}
						red.Set("name", args[0])
						return nil
					},
					Args: []any{i},
				}
				if !yield(c) {
					return
				}
			}
		}
	}
}

func TestExpandIsolatesCases(t *testing.T) {
	ctx := context.Background()
	loader, calls := newFake()
	dec := New(loader).WithData(colors).
		Setup(hook(calls, "setup hook")).
		Teardown(hook(calls, "teardown hook"))

	var seen []*Data
	var cases []BoundCase
	for bc := range dec.Expand(ctx, threeCases(&seen)) {
		cases = append(cases, bc)
	}
	require.Len(t, cases, 3)
	assert.Equal(t, []string{"setup hook"}, *calls, "expansion sets no session up")

	for i, bc := range cases {
		assert.Equal(t, []any{i}, bc.Args)
		require.NoError(t, bc.Call(ctx))
	}
	require.Len(t, seen, 3)
	assert.NotSame(t, seen[0], seen[1])
	assert.NotSame(t, seen[1], seen[2])
	assert.Equal(t, []string{
		"setup hook",
		"load", "unload", "teardown hook",
		"load", "unload", "teardown hook",
		"load", "unload", "teardown hook",
	}, *calls)
}

func TestExpandIsLazy(t *testing.T) {
	loader, calls := newFake()
	dec := New(loader).WithData(colors).Setup(hook(calls, "setup hook"))

	var seen []*Data
	seq := dec.Expand(context.Background(), threeCases(&seen))
	assert.Empty(t, *calls)
	for range seq {
		break
	}
	assert.Equal(t, []string{"setup hook"}, *calls)
}

func TestExpandSetupHookFailure(t *testing.T) {
	loader, _ := newFake()
	hookErr := errors.New("hook")
	dec := New(loader).WithData(colors).Setup(func(context.Context) error { return hookErr })

	var seen []*Data
	var cases []BoundCase
	for bc := range dec.Expand(context.Background(), threeCases(&seen)) {
		cases = append(cases, bc)
	}
	require.Len(t, cases, 1)
	require.ErrorIs(t, cases[0].Call(context.Background()), hookErr)
	assert.Empty(t, seen)
}

func TestBoundCaseTearsDownOnError(t *testing.T) {
	loader, calls := newFake()
	boom := errors.New("boom")
	dec := New(loader).WithData(colors)
	gen := func() iter.Seq[Case] {
		return func(yield func(Case) bool) {
			yield(Case{Fn: func(context.Context, *Data, ...any) error { return boom }})
		}
	}
	for bc := range dec.Expand(context.Background(), gen) {
		require.ErrorIs(t, bc.Call(context.Background()), boom)
	}
	assert.Equal(t, []string{"load", "unload"}, *calls)
}

func TestRunCases(t *testing.T) {
	loader, calls := newFake()
	var seen []*Data
	New(loader).WithData(colors).RunCases(t, threeCases(&seen))
	assert.Len(t, seen, 3)
	assert.Len(t, *calls, 6)
}
