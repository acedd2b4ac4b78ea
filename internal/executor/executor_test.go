package executor

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daniilsunyaev/yarrd/internal/dbcatalog"
	"github.com/daniilsunyaev/yarrd/internal/sqlfront"
)

func newConnectedDB(t *testing.T) *dbcatalog.Database {
	t.Helper()
	dir := t.TempDir()
	rootPath := filepath.Join(dir, "app.db")
	require.NoError(t, dbcatalog.CreateDatabase(rootPath, ""))
	db, err := dbcatalog.Connect(rootPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func exec(t *testing.T, e *Executor, sql string) {
	t.Helper()
	stmt, err := sqlfront.Parse(sql)
	require.NoError(t, err)
	_, err = e.Execute(stmt)
	require.NoError(t, err)
}

func TestExecuteCreateInsertSelect(t *testing.T) {
	db := newConnectedDB(t)
	e := New(db)

	exec(t, e, `CREATE TABLE users (id INTEGER, name STRING NOT NULL, balance FLOAT DEFAULT 0.0)`)
	exec(t, e, `INSERT INTO users VALUES (1, "Alice", 10.5)`)
	exec(t, e, `INSERT INTO users (id, name) VALUES (2, "Bob")`)

	stmt, err := sqlfront.Parse(`SELECT * FROM users WHERE id = 2`)
	require.NoError(t, err)
	res, err := e.Execute(stmt)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Equal(t, []string{"id", "name", "balance"}, res.ColumnNames)
}

func TestExecuteSelectStarRepeatsColumn(t *testing.T) {
	db := newConnectedDB(t)
	e := New(db)
	exec(t, e, `CREATE TABLE users (id INTEGER, name STRING)`)
	exec(t, e, `INSERT INTO users VALUES (1, "Alice")`)

	stmt, err := sqlfront.Parse(`SELECT *, id FROM users`)
	require.NoError(t, err)
	res, err := e.Execute(stmt)
	require.NoError(t, err)
	require.Equal(t, []string{"id", "name", "id"}, res.ColumnNames)
}

func TestExecuteUpdateDeleteAlterVacuum(t *testing.T) {
	db := newConnectedDB(t)
	e := New(db)
	exec(t, e, `CREATE TABLE users (id INTEGER, name STRING)`)
	exec(t, e, `INSERT INTO users VALUES (1, "Alice")`)
	exec(t, e, `INSERT INTO users VALUES (2, "Bob")`)

	exec(t, e, `UPDATE users SET name = "Carol" WHERE id = 1`)
	exec(t, e, `DELETE FROM users WHERE id = 2`)
	exec(t, e, `ALTER TABLE users ADD active INTEGER DEFAULT 1`)
	exec(t, e, `CREATE INDEX ON users (name)`)
	exec(t, e, `VACUUM`)

	stmt, err := sqlfront.Parse(`SELECT name, active FROM users`)
	require.NoError(t, err)
	res, err := e.Execute(stmt)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
}

func TestExecuteRenameTablePropagatesToStore(t *testing.T) {
	db := newConnectedDB(t)
	e := New(db)
	exec(t, e, `CREATE TABLE users (id INTEGER)`)

	stmt, err := sqlfront.Parse(`ALTER TABLE users RENAME TO people`)
	require.NoError(t, err)
	_, err = e.Execute(stmt)
	require.NoError(t, err)

	names, err := db.AllTableNames()
	require.NoError(t, err)
	require.Equal(t, []string{"people"}, names)
}
