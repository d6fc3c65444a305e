package sqlloader

import (
	"context"
	"fmt"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mesh-intelligence/fixtures/pkg/types"
)

// Negotiate returns the medium for target. Tables get a TableMedium, mapped
// classes a MappedClassMedium; anything else fails with
// types.ErrUnsupportedTarget.
func Negotiate(target any) (types.Medium, error) {
	shape, err := types.Classify(target)
	if err != nil {
		return nil, err
	}
	switch shape {
	case types.ShapeTable:
		return &TableMedium{table: target.(*types.Table)}, nil
	case types.ShapeMappedClass:
		return &MappedClassMedium{class: target.(*types.MappedClass)}, nil
	}
	return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedTarget, shape)
}

// sessionOf returns the scope's session bound to ctx.
func sessionOf(ctx context.Context, scope types.Scope) (*gorm.DB, error) {
	if scope == nil {
		return nil, fmt.Errorf("medium was not visited by a loader: %w", types.ErrUninitialized)
	}
	s := scope.Session()
	if s == nil {
		return nil, fmt.Errorf("no session: %w", types.ErrUninitialized)
	}
	return s.WithContext(ctx), nil
}

// byPrimaryKey matches the single-column primary key of t.
func byPrimaryKey(t *types.Table, id any) clause.Eq {
	return clause.Eq{Column: clause.Column{Name: t.PrimaryKey[0]}, Value: id}
}

// TableMedium writes rows into a *types.Table as column maps through the
// scope's session.
type TableMedium struct {
	table *types.Table
	scope types.Scope
}

// VisitLoader binds the medium to the loader's scope.
func (m *TableMedium) VisitLoader(scope types.Scope) { m.scope = scope }

// Save inserts one row and returns its primary key.
func (m *TableMedium) Save(ctx context.Context, row string, values []types.Column) (types.Handle, error) {
	t := m.table
	if len(t.PrimaryKey) == 0 {
		return nil, fmt.Errorf("table %q has no primary key: %w", t.Name, types.ErrNotImplemented)
	}
	db, err := sessionOf(ctx, m.scope)
	if err != nil {
		return nil, err
	}

	record := make(map[string]any, len(values))
	for _, c := range values {
		if len(t.Columns) > 0 && !t.HasColumn(c.Name) {
			return nil, fmt.Errorf("%w: table %q has no column %q", types.ErrValueMismatch, t.Name, c.Name)
		}
		record[c.Name] = c.Value
	}
	returning := clause.Returning{Columns: make([]clause.Column, len(t.PrimaryKey))}
	for i, k := range t.PrimaryKey {
		returning.Columns[i] = clause.Column{Name: k}
	}

	if err := db.Table(t.Name).Clauses(returning).Create(record).Error; err != nil {
		return nil, fmt.Errorf("insert into %s (row %s): %w", t.Name, row, err)
	}
	identity := make([]any, len(t.PrimaryKey))
	for i, k := range t.PrimaryKey {
		v, ok := record[k]
		if !ok {
			return nil, fmt.Errorf("%w: insert into %s returned no %q", types.ErrValueMismatch, t.Name, k)
		}
		identity[i] = v
	}
	return &LoadedTableRow{table: t, identity: identity, scope: m.scope}, nil
}

// Clear deletes a saved row by primary key. Composite keys are not supported.
func (m *TableMedium) Clear(ctx context.Context, h types.Handle) error {
	lr, ok := h.(*LoadedTableRow)
	if !ok {
		return fmt.Errorf("%w: %T is not a table row", types.ErrValueMismatch, h)
	}
	if len(lr.table.PrimaryKey) != 1 {
		return fmt.Errorf("delete from %s with a composite key: %w", lr.table.Name, types.ErrNotImplemented)
	}
	db, err := sessionOf(ctx, m.scope)
	if err != nil {
		return err
	}
	err = db.Table(lr.table.Name).Where(byPrimaryKey(lr.table, lr.identity[0])).Delete(map[string]any{}).Error
	if err != nil {
		return fmt.Errorf("delete from %s: %w", lr.table.Name, err)
	}
	return nil
}

// MappedClassMedium writes rows as GORM models of a *types.MappedClass.
type MappedClassMedium struct {
	class *types.MappedClass
	scope types.Scope
}

// VisitLoader binds the medium to the loader's scope.
func (m *MappedClassMedium) VisitLoader(scope types.Scope) { m.scope = scope }

// Save builds a model from values and creates it, unless the current session
// scope already tracks the row for this medium.
func (m *MappedClassMedium) Save(ctx context.Context, row string, values []types.Column) (types.Handle, error) {
	db, err := sessionOf(ctx, m.scope)
	if err != nil {
		return nil, fmt.Errorf("mapped class %q: %w", m.class.Name, err)
	}
	key := fmt.Sprintf("%s.%p.%s", m.class.Name, m, row)
	if obj, ok := m.scope.Tracked(key); ok {
		return newMappedRow(ctx, db, m.class.Name, obj)
	}

	obj := m.class.New()
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(obj); err != nil {
		return nil, fmt.Errorf("parsing model %s: %w", m.class.Name, err)
	}
	rv := reflect.ValueOf(obj)
	for _, c := range values {
		field := stmt.Schema.LookUpField(c.Name)
		if field == nil {
			return nil, fmt.Errorf("%w: model %s has no field %q", types.ErrValueMismatch, m.class.Name, c.Name)
		}
		if err := field.Set(ctx, rv, c.Value); err != nil {
			return nil, fmt.Errorf("%w: setting %s.%s: %v", types.ErrValueMismatch, m.class.Name, c.Name, err)
		}
	}
	if err := db.Create(obj).Error; err != nil {
		return nil, fmt.Errorf("creating %s (row %s): %w", m.class.Name, row, err)
	}
	m.scope.Track(key, obj)
	return newMappedRow(ctx, db, m.class.Name, obj)
}

// Clear deletes the saved model through the session.
func (m *MappedClassMedium) Clear(ctx context.Context, h types.Handle) error {
	mr, ok := h.(*MappedRow)
	if !ok {
		return fmt.Errorf("%w: %T is not a mapped row", types.ErrValueMismatch, h)
	}
	db, err := sessionOf(ctx, m.scope)
	if err != nil {
		return fmt.Errorf("mapped class %q: %w", m.class.Name, err)
	}
	if err := db.Delete(mr.obj).Error; err != nil {
		return fmt.Errorf("deleting %s: %w", m.class.Name, err)
	}
	return nil
}
