package sqlloader

import (
	"context"
	"fmt"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/mesh-intelligence/fixtures/pkg/types"
)

// LoadedTableRow is the handle of a row saved by a TableMedium. Its values
// are read lazily through the loader scope it was saved in.
type LoadedTableRow struct {
	table    *types.Table
	identity []any
	scope    types.Scope
	cache    map[string]any
}

// Target returns the table name.
func (r *LoadedTableRow) Target() string { return r.table.Name }

// Identity returns the primary-key values.
func (r *LoadedTableRow) Identity() []any { return append([]any(nil), r.identity...) }

// Get returns a persisted column value. The row is selected on first access
// and cached.
func (r *LoadedTableRow) Get(ctx context.Context, column string) (any, error) {
	if len(r.table.PrimaryKey) == 1 && column == r.table.PrimaryKey[0] {
		return r.identity[0], nil
	}
	if r.cache == nil {
		if err := r.fetch(ctx); err != nil {
			return nil, err
		}
	}
	v, ok := r.cache[column]
	if !ok {
		return nil, fmt.Errorf("%w: table %q returned no column %q", types.ErrValueMismatch, r.table.Name, column)
	}
	return v, nil
}

func (r *LoadedTableRow) fetch(ctx context.Context) error {
	if len(r.table.PrimaryKey) != 1 {
		return fmt.Errorf("select from %s with a composite key: %w", r.table.Name, types.ErrNotImplemented)
	}
	db, err := sessionOf(ctx, r.scope)
	if err != nil {
		return err
	}
	cache := map[string]any{}
	if err := db.Table(r.table.Name).Where(byPrimaryKey(r.table, r.identity[0])).Take(&cache).Error; err != nil {
		return fmt.Errorf("select from %s %v: %w", r.table.Name, r.identity, err)
	}
	r.cache = cache
	return nil
}

// MappedRow is the handle of a model saved by a MappedClassMedium.
type MappedRow struct {
	target string
	schema *schema.Schema
	obj    any
}

func newMappedRow(ctx context.Context, db *gorm.DB, target string, obj any) (*MappedRow, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(obj); err != nil {
		return nil, fmt.Errorf("parsing model %s: %w", target, err)
	}
	return &MappedRow{target: target, schema: stmt.Schema, obj: obj}, nil
}

// Target returns the mapped class name.
func (r *MappedRow) Target() string { return r.target }

// Identity returns the primary-key field values of the model.
func (r *MappedRow) Identity() []any {
	rv := reflect.ValueOf(r.obj)
	ids := make([]any, 0, len(r.schema.PrimaryFields))
	for _, f := range r.schema.PrimaryFields {
		v, _ := f.ValueOf(context.Background(), rv)
		ids = append(ids, v)
	}
	return ids
}

// Object returns the saved model.
func (r *MappedRow) Object() any { return r.obj }

// Get reads a field of the saved model by column or field name.
func (r *MappedRow) Get(ctx context.Context, column string) (any, error) {
	f := r.schema.LookUpField(column)
	if f == nil {
		return nil, fmt.Errorf("%w: model %s has no field %q", types.ErrValueMismatch, r.target, column)
	}
	v, _ := f.ValueOf(ctx, reflect.ValueOf(r.obj))
	return v, nil
}

var (
	_ types.Fetcher = (*LoadedTableRow)(nil)
	_ types.Fetcher = (*MappedRow)(nil)
	_ types.Medium  = (*TableMedium)(nil)
	_ types.Medium  = (*MappedClassMedium)(nil)
	_ types.Scope   = (*Loader)(nil)
)
