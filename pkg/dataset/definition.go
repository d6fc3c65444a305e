// Package dataset declares test datasets and assembles them into a Tree.
//
// A Definition is an immutable-by-convention template: a name, an optional
// storage target and an ordered list of keyed rows. Build turns a sequence of
// definitions into a Tree of fresh Datasets, one per definition, so every test
// session works on its own copy.
//
//	categories := dataset.Define("categories").
//		Row("cars", dataset.Col("name", "cars"))
//	products := dataset.Define("products").
//		Row("truck",
//			dataset.Col("name", "truck"),
//			dataset.Col("category_id", categories.Ref("cars", "id")))
//
//	tree, err := dataset.Build(products)
//
// Build defaults categories into the tree because products references it.
package dataset

import (
	"fmt"

	"github.com/mesh-intelligence/fixtures/pkg/types"
)

// Definition is a named template of rows.
type Definition struct {
	name   string
	target string
	rows   []rowDef
}

type rowDef struct {
	key  string
	cols []types.Column
}

// Define starts a Definition with the given name. The name is also the
// storage target unless Into says otherwise.
func Define(name string) *Definition {
	return &Definition{name: name}
}

// Into sets the name of the storage target rows are persisted into.
func (d *Definition) Into(target string) *Definition {
	d.target = target
	return d
}

// Row appends a row with the given key and columns. Keys are unique within a
// definition; Build rejects a repeated key.
func (d *Definition) Row(key string, cols ...types.Column) *Definition {
	d.rows = append(d.rows, rowDef{key: key, cols: append([]types.Column(nil), cols...)})
	return d
}

// Name returns the definition name.
func (d *Definition) Name() string { return d.name }

// Target returns the storage target name.
func (d *Definition) Target() string {
	if d.target != "" {
		return d.target
	}
	return d.name
}

// Len returns the number of rows.
func (d *Definition) Len() int { return len(d.rows) }

// Ref returns a reference to a column of one of this definition's rows. The
// reference carries the definition, so Build can default it into a tree that
// was not given it explicitly.
func (d *Definition) Ref(row, column string) Ref {
	return Ref{def: d, name: d.name, row: row, column: column}
}

// refs returns every reference held by the definition's rows.
func (d *Definition) refs() []Ref {
	var out []Ref
	for _, r := range d.rows {
		for _, c := range r.cols {
			if ref, ok := c.Value.(Ref); ok {
				out = append(out, ref)
			}
		}
	}
	return out
}

// Col builds a column.
func Col(name string, value any) types.Column {
	return types.Column{Name: name, Value: value}
}

// Ref is a column value that resolves, at load time, to a column of a row of
// another dataset (or of the same one).
type Ref struct {
	def    *Definition
	name   string
	row    string
	column string
}

// RefTo returns a reference by dataset name only. Build fails with
// types.ErrResolution when no dataset of that name is in the tree.
func RefTo(dataset, row, column string) Ref {
	return Ref{name: dataset, row: row, column: column}
}

// Dataset returns the referenced dataset name.
func (r Ref) Dataset() string { return r.name }

// Row returns the referenced row key.
func (r Ref) Row() string { return r.row }

// Column returns the referenced column.
func (r Ref) Column() string { return r.column }

func (r Ref) String() string {
	return fmt.Sprintf("%s.%s.%s", r.name, r.row, r.column)
}
