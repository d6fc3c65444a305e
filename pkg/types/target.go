package types

import (
	"fmt"
	"slices"
)

// Shape is the structural kind of a storage target.
type Shape int

// Target shapes understood by Classify.
const (
	ShapeUnknown Shape = iota
	ShapeTable
	ShapeMappedClass
)

// String returns the shape name used in logs and errors.
func (s Shape) String() string {
	switch s {
	case ShapeTable:
		return "table"
	case ShapeMappedClass:
		return "mapped-class"
	default:
		return "unknown"
	}
}

// Table describes a table-like target: a named set of columns with a primary
// key. Rows are written to it as column maps, without a model.
type Table struct {
	Name       string
	Columns    []string
	PrimaryKey []string
}

// HasColumn reports whether the table declares the named column.
func (t *Table) HasColumn(name string) bool {
	return slices.Contains(t.Columns, name)
}

// MappedClass describes a class-like target: a GORM model type. New returns
// a pointer to a fresh zero model.
type MappedClass struct {
	Name string
	New  func() any
}

// Mapped returns the MappedClass for model type T.
func Mapped[T any](name string) *MappedClass {
	return &MappedClass{
		Name: name,
		New:  func() any { return new(T) },
	}
}

// Classify returns the shape of target. The set of shapes is closed:
// *Table and *MappedClass. Any other value, or a nil or incomplete one,
// returns ErrUnsupportedTarget.
func Classify(target any) (Shape, error) {
	switch t := target.(type) {
	case *Table:
		if t == nil || t.Name == "" {
			return ShapeUnknown, fmt.Errorf("%w: table without a name", ErrUnsupportedTarget)
		}
		return ShapeTable, nil
	case *MappedClass:
		if t == nil || t.New == nil {
			return ShapeUnknown, fmt.Errorf("%w: mapped class without a constructor", ErrUnsupportedTarget)
		}
		return ShapeMappedClass, nil
	default:
		return ShapeUnknown, fmt.Errorf("%w: %T", ErrUnsupportedTarget, target)
	}
}

// TargetName returns the name of a classified target, or "" for anything else.
func TargetName(target any) string {
	switch t := target.(type) {
	case *Table:
		if t != nil {
			return t.Name
		}
	case *MappedClass:
		if t != nil {
			return t.Name
		}
	}
	return ""
}
