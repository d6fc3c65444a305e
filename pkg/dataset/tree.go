package dataset

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/fixtures/pkg/types"
)

// Tree is the resolved composite of datasets built for one test session.
type Tree struct {
	datasets []*Dataset
	byName   map[string]*Dataset
	order    []*Dataset
}

// Build assembles definitions into a Tree. Declaration order is preserved.
// A definition referenced through Definition.Ref but not supplied is
// defaulted into the tree right before the first dataset that needs it.
// Unknown datasets or rows, conflicting names and reference cycles between
// datasets fail with types.ErrResolution.
func Build(defs ...*Definition) (*Tree, error) {
	b := &builder{
		supplied: make(map[string]*Definition, len(defs)),
		placed:   make(map[string]*Definition),
		visiting: make(map[*Definition]bool),
	}
	for _, d := range defs {
		if d == nil {
			return nil, fmt.Errorf("%w: nil definition", types.ErrResolution)
		}
		if prev, ok := b.supplied[d.name]; ok && prev != d {
			return nil, fmt.Errorf("%w: two definitions named %q", types.ErrResolution, d.name)
		}
		b.supplied[d.name] = d
	}
	for _, d := range defs {
		if _, ok := b.placed[d.name]; ok {
			continue
		}
		if err := b.placeDefaults(d); err != nil {
			return nil, err
		}
		b.place(d, false)
	}

	t := &Tree{byName: make(map[string]*Dataset, len(b.order))}
	for _, p := range b.order {
		ds, err := instantiate(p.def, p.defaulted, t)
		if err != nil {
			return nil, err
		}
		t.datasets = append(t.datasets, ds)
		t.byName[ds.name] = ds
	}
	if err := t.checkRefs(); err != nil {
		return nil, err
	}
	order, err := t.sortByDependency()
	if err != nil {
		return nil, err
	}
	t.order = order
	return t, nil
}

type placement struct {
	def       *Definition
	defaulted bool
}

type builder struct {
	supplied map[string]*Definition
	placed   map[string]*Definition
	visiting map[*Definition]bool
	order    []placement
}

// placeDefaults places every definition d references through a template
// that was neither supplied nor placed yet.
func (b *builder) placeDefaults(d *Definition) error {
	b.visiting[d] = true
	defer delete(b.visiting, d)

	for _, ref := range d.refs() {
		if ref.name == d.name {
			continue
		}
		if _, ok := b.supplied[ref.name]; ok {
			continue
		}
		if _, ok := b.placed[ref.name]; ok {
			continue
		}
		if ref.def == nil {
			return fmt.Errorf("%w: %s refers to unknown dataset %q", types.ErrResolution, d.name, ref.name)
		}
		if b.visiting[ref.def] {
			continue
		}
		if err := b.placeDefaults(ref.def); err != nil {
			return err
		}
		b.place(ref.def, true)
	}
	return nil
}

func (b *builder) place(d *Definition, defaulted bool) {
	if _, ok := b.placed[d.name]; ok {
		return
	}
	b.placed[d.name] = d
	b.order = append(b.order, placement{def: d, defaulted: defaulted})
}

func instantiate(d *Definition, defaulted bool, t *Tree) (*Dataset, error) {
	ds := &Dataset{
		name:      d.name,
		target:    d.Target(),
		defaulted: defaulted,
		byKey:     make(map[string]*Row, len(d.rows)),
		tree:      t,
	}
	for _, rd := range d.rows {
		if _, ok := ds.byKey[rd.key]; ok {
			return nil, fmt.Errorf("%w: dataset %q has two rows keyed %q", types.ErrResolution, d.name, rd.key)
		}
		r := &Row{
			key:     rd.key,
			dataset: ds,
			cols:    append([]types.Column(nil), rd.cols...),
		}
		ds.rows = append(ds.rows, r)
		ds.byKey[r.key] = r
	}
	return ds, nil
}

func (t *Tree) checkRefs() error {
	for _, ds := range t.datasets {
		for _, r := range ds.rows {
			for _, c := range r.cols {
				ref, ok := c.Value.(Ref)
				if !ok {
					continue
				}
				target, ok := t.byName[ref.name]
				if !ok {
					return fmt.Errorf("%w: %s.%s refers to unknown dataset %q", types.ErrResolution, ds.name, r.key, ref.name)
				}
				if _, ok := target.byKey[ref.row]; !ok {
					return fmt.Errorf("%w: %s.%s refers to unknown row %s", types.ErrResolution, ds.name, r.key, ref)
				}
			}
		}
	}
	return nil
}

// sortByDependency orders datasets so that every dataset comes after the
// datasets it references. Ties keep declaration order.
func (t *Tree) sortByDependency() ([]*Dataset, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[*Dataset]int, len(t.datasets))
	order := make([]*Dataset, 0, len(t.datasets))

	var visit func(ds *Dataset) error
	visit = func(ds *Dataset) error {
		switch state[ds] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: reference cycle through %q", types.ErrResolution, ds.name)
		}
		state[ds] = visiting
		for _, dep := range ds.dependencies() {
			if err := visit(t.byName[dep]); err != nil {
				return err
			}
		}
		state[ds] = done
		order = append(order, ds)
		return nil
	}
	for _, ds := range t.datasets {
		if err := visit(ds); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Len returns the number of datasets.
func (t *Tree) Len() int { return len(t.datasets) }

// Get returns the dataset with the given name.
func (t *Tree) Get(name string) (*Dataset, error) {
	ds, ok := t.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrDatasetNotFound, name)
	}
	return ds, nil
}

// At returns the i-th dataset in declaration order.
func (t *Tree) At(i int) (*Dataset, error) {
	if i < 0 || i >= len(t.datasets) {
		return nil, fmt.Errorf("%w: index %d of %d", types.ErrDatasetNotFound, i, len(t.datasets))
	}
	return t.datasets[i], nil
}

// Datasets returns the datasets in declaration order.
func (t *Tree) Datasets() []*Dataset {
	return append([]*Dataset(nil), t.datasets...)
}

// Names returns the dataset names in declaration order.
func (t *Tree) Names() []string {
	names := make([]string, len(t.datasets))
	for i, ds := range t.datasets {
		names[i] = ds.name
	}
	return names
}

// LoadOrder returns the datasets in an order safe for insertion: referenced
// datasets first, declaration order otherwise.
func (t *Tree) LoadOrder() []*Dataset {
	return append([]*Dataset(nil), t.order...)
}

// RowCount returns the total number of rows across all datasets.
func (t *Tree) RowCount() int {
	n := 0
	for _, ds := range t.datasets {
		n += len(ds.rows)
	}
	return n
}

// Dataset is one resolved dataset of a Tree.
type Dataset struct {
	name      string
	target    string
	defaulted bool
	rows      []*Row
	byKey     map[string]*Row
	tree      *Tree
}

// Name returns the dataset name.
func (ds *Dataset) Name() string { return ds.name }

// Target returns the storage target name.
func (ds *Dataset) Target() string { return ds.target }

// Defaulted reports whether the dataset was pulled into the tree by a
// reference rather than supplied.
func (ds *Dataset) Defaulted() bool { return ds.defaulted }

// Len returns the number of rows.
func (ds *Dataset) Len() int { return len(ds.rows) }

// Rows returns the rows in declaration order.
func (ds *Dataset) Rows() []*Row {
	return append([]*Row(nil), ds.rows...)
}

// Row returns the row with the given key.
func (ds *Dataset) Row(key string) (*Row, bool) {
	r, ok := ds.byKey[key]
	return r, ok
}

func (ds *Dataset) dependencies() []string {
	seen := make(map[string]bool)
	var deps []string
	for _, r := range ds.rows {
		for _, c := range r.cols {
			ref, ok := c.Value.(Ref)
			if !ok || ref.name == ds.name || seen[ref.name] {
				continue
			}
			seen[ref.name] = true
			deps = append(deps, ref.name)
		}
	}
	return deps
}

// Row is one row of a Dataset. After loading it carries the handle it was
// saved as.
type Row struct {
	key     string
	dataset *Dataset
	cols    []types.Column
	handle  types.Handle
}

// Key returns the row key.
func (r *Row) Key() string { return r.key }

// Dataset returns the dataset the row belongs to.
func (r *Row) Dataset() *Dataset { return r.dataset }

// Columns returns the declared columns. Ref values are not resolved.
func (r *Row) Columns() []types.Column {
	return append([]types.Column(nil), r.cols...)
}

// Value returns the declared value of a column.
func (r *Row) Value(column string) (any, bool) {
	for _, c := range r.cols {
		if c.Name == column {
			return c.Value, true
		}
	}
	return nil, false
}

// Set overwrites a declared column, or appends it. It only affects this tree.
func (r *Row) Set(column string, value any) {
	for i := range r.cols {
		if r.cols[i].Name == column {
			r.cols[i].Value = value
			return
		}
	}
	r.cols = append(r.cols, types.Column{Name: column, Value: value})
}

// Handle returns the handle the row was saved as, or nil.
func (r *Row) Handle() types.Handle { return r.handle }

// Bind records the handle the row was saved as.
func (r *Row) Bind(h types.Handle) { r.handle = h }

// Get returns the value of a column: the declared value when there is one,
// otherwise the persisted value read through the row's handle.
func (r *Row) Get(ctx context.Context, column string) (any, error) {
	return r.lookup(ctx, column, make(map[string]bool))
}

// Resolve returns the row's columns with every Ref replaced by the value it
// points to. A Ref to a row that was not saved yet, and declares no such
// column, fails with types.ErrResolution.
func (r *Row) Resolve(ctx context.Context) ([]types.Column, error) {
	out := make([]types.Column, len(r.cols))
	for i, c := range r.cols {
		v, err := r.resolveValue(ctx, c.Value, make(map[string]bool))
		if err != nil {
			return nil, fmt.Errorf("resolving %s.%s.%s: %w", r.dataset.name, r.key, c.Name, err)
		}
		out[i] = types.Column{Name: c.Name, Value: v}
	}
	return out, nil
}

func (r *Row) resolveValue(ctx context.Context, v any, seen map[string]bool) (any, error) {
	ref, ok := v.(Ref)
	if !ok {
		return v, nil
	}
	if seen[ref.String()] {
		return nil, fmt.Errorf("%w: reference loop at %s", types.ErrResolution, ref)
	}
	seen[ref.String()] = true

	ds, ok := r.dataset.tree.byName[ref.name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown dataset in %s", types.ErrResolution, ref)
	}
	target, ok := ds.byKey[ref.row]
	if !ok {
		return nil, fmt.Errorf("%w: unknown row in %s", types.ErrResolution, ref)
	}
	return target.lookup(ctx, ref.column, seen)
}

func (r *Row) lookup(ctx context.Context, column string, seen map[string]bool) (any, error) {
	if v, ok := r.Value(column); ok {
		return r.resolveValue(ctx, v, seen)
	}
	if r.handle == nil {
		return nil, fmt.Errorf("%w: %s.%s is not loaded and declares no %q", types.ErrResolution, r.dataset.name, r.key, column)
	}
	f, ok := r.handle.(types.Fetcher)
	if !ok {
		return nil, fmt.Errorf("%w: handle of %s.%s cannot read %q", types.ErrResolution, r.dataset.name, r.key, column)
	}
	return f.Get(ctx, column)
}
