package sqlloader

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/fixtures/pkg/dataset"
	"github.com/mesh-intelligence/fixtures/pkg/types"
)

const schemaSQL = `
CREATE TABLE categories (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL);
CREATE TABLE products (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, category_id INTEGER);
CREATE TABLE widgets (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, category_id INTEGER);
CREATE TABLE memberships (user_id INTEGER NOT NULL, group_id INTEGER NOT NULL, PRIMARY KEY (user_id, group_id));
CREATE TABLE "order" (id INTEGER PRIMARY KEY AUTOINCREMENT, "unit price" INTEGER NOT NULL);
`

var (
	categoriesTable = &types.Table{
		Name:       "categories",
		Columns:    []string{"id", "name"},
		PrimaryKey: []string{"id"},
	}
	productsTable = &types.Table{
		Name:       "products",
		Columns:    []string{"id", "name", "category_id"},
		PrimaryKey: []string{"id"},
	}
	membershipsTable = &types.Table{
		Name:       "memberships",
		Columns:    []string{"user_id", "group_id"},
		PrimaryKey: []string{"user_id", "group_id"},
	}
	orderTable = &types.Table{
		Name:       "order",
		Columns:    []string{"id", "unit price"},
		PrimaryKey: []string{"id"},
	}
)

type widget struct {
	ID         uint `gorm:"primaryKey"`
	Name       string
	CategoryID int64
}

// openTestDB creates a SQLite database file with the test schema.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open(types.DriverSQLite, filepath.Join(t.TempDir(), "fixtures.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(schemaSQL)
	require.NoError(t, err)
	return db
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "`+table+`"`).Scan(&n))
	return n
}

func testEnv() Env {
	return NewEnv(categoriesTable, productsTable, membershipsTable, orderTable, types.Mapped[widget]("widgets"))
}

// catalog returns categories and products, products referencing categories.
func catalog() (categories, products *dataset.Definition) {
	categories = dataset.Define("categories").
		Row("cars", dataset.Col("name", "cars")).
		Row("free", dataset.Col("name", "free stuff"))
	products = dataset.Define("products").
		Row("truck", dataset.Col("name", "truck"), dataset.Col("category_id", categories.Ref("cars", "id")))
	return categories, products
}

func mustBuild(t *testing.T, defs ...*dataset.Definition) *dataset.Tree {
	t.Helper()
	tree, err := dataset.Build(defs...)
	require.NoError(t, err)
	return tree
}

// recordingMedium wraps a medium and records what it saves and clears.
type recordingMedium struct {
	types.Medium
	log *[]string
}

func (m recordingMedium) Save(ctx context.Context, row string, values []types.Column) (types.Handle, error) {
	h, err := m.Medium.Save(ctx, row, values)
	if err == nil {
		*m.log = append(*m.log, "save "+h.Target()+"."+row)
	}
	return h, err
}

func (m recordingMedium) Clear(ctx context.Context, h types.Handle) error {
	*m.log = append(*m.log, "clear "+h.Target())
	return m.Medium.Clear(ctx, h)
}

func recording(log *[]string) MediumFunc {
	return func(target any) (types.Medium, error) {
		m, err := Negotiate(target)
		if err != nil {
			return nil, err
		}
		return recordingMedium{Medium: m, log: log}, nil
	}
}
