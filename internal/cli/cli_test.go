package cli

import (
	"bytes"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/fixtures/pkg/types"
)

const dataYAML = `
tables:
  - name: categories
    columns: [id, name]
    primary_key: [id]
  - name: products
    columns: [id, name, category_id]
    primary_key: [id]
datasets:
  - name: products
    rows:
      - key: truck
        values:
          name: truck
          category_id: {ref: categories.cars.id}
  - name: categories
    rows:
      - key: cars
        values:
          name: cars
      - key: free
        values:
          name: free stuff
`

type env struct {
	configDir string
	dsn       string
	dataFile  string
	db        *sql.DB
}

func newEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	e := env{
		configDir: filepath.Join(dir, "config"),
		dsn:       filepath.Join(dir, "db", "fixtures.db"),
		dataFile:  filepath.Join(dir, "data.yaml"),
	}
	require.NoError(t, os.WriteFile(e.dataFile, []byte(dataYAML), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Dir(e.dsn), 0o755))

	db, err := sql.Open(types.DriverSQLite, e.dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`
CREATE TABLE categories (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL);
CREATE TABLE products (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, category_id INTEGER);`)
	require.NoError(t, err)
	e.db = db
	return e
}

func (e env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config-dir", e.configDir, "--dsn", e.dsn}, args...))
	err := root.Execute()
	return out.String(), err
}

func (e env) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestVersionCmd(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "fixtures v"+Version)
	assert.Contains(t, out.String(), modulePath)
}

func TestLoadCmd(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "load", "-f", e.dataFile)
	require.NoError(t, err)
	assert.Contains(t, out, "products: 1 rows")
	assert.Contains(t, out, "categories: 2 rows")
	assert.Equal(t, 2, e.count(t, "categories"))
	assert.Equal(t, 1, e.count(t, "products"))
}

func TestCheckCmd(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "check", "-f", e.dataFile)
	require.NoError(t, err)
	assert.Contains(t, out, "loaded 3 rows in 2 datasets")
	assert.Contains(t, out, "saved 3 rows, cleared 3 rows")
	assert.Contains(t, out, "ok")
	assert.Equal(t, 0, e.count(t, "categories"))
	assert.Equal(t, 0, e.count(t, "products"))
}

func TestCheckCmdKeepsExistingRows(t *testing.T) {
	e := newEnv(t)
	_, err := e.db.Exec(`INSERT INTO categories (name) VALUES ('existing')`)
	require.NoError(t, err)

	_, err = e.run(t, "check", "-f", e.dataFile)
	require.NoError(t, err)
	assert.Equal(t, 1, e.count(t, "categories"))
}

func TestLoadCmdErrors(t *testing.T) {
	e := newEnv(t)

	_, err := e.run(t, "load")
	require.Error(t, err, "--file is required")

	_, err = e.run(t, "load", "-f", filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = e.run(t, "--driver", "oracle", "load", "-f", e.dataFile)
	require.ErrorIs(t, err, types.ErrDriverUnknown)

	_, err = e.run(t, "--log-level", "loud", "load", "-f", e.dataFile)
	require.Error(t, err)
}

func TestInitCmd(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")

	data, err := os.ReadFile(filepath.Join(e.configDir, configFileExt))
	require.NoError(t, err)
	assert.Contains(t, string(data), "driver: sqlite")
	assert.Contains(t, string(data), "log_level: info")

	out, err = e.run(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestConfigFileIsRead(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.MkdirAll(e.configDir, 0o755))
	cfg := "driver: sqlite\ndsn: " + e.dsn + "\nlog_level: debug\n"
	require.NoError(t, os.WriteFile(filepath.Join(e.configDir, configFileExt), []byte(cfg), 0o644))

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config-dir", e.configDir, "load", "-f", e.dataFile})
	require.NoError(t, root.Execute())
	assert.Equal(t, 1, e.count(t, "products"))
}

func TestLoadConfigMissingFile(t *testing.T) {
	v, err := loadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, types.DriverSQLite, v.GetString(cfgKeyDriver))
	assert.Equal(t, defaultLogLevel, v.GetString(cfgKeyLogLevel))
}
