package dbcatalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daniilsunyaev/yarrd/internal/dberrors"
	"github.com/daniilsunyaev/yarrd/internal/types"
)

func usersSchema() *types.Schema {
	return &types.Schema{
		TableName: "users",
		Columns: []types.Column{
			{Name: "id", Type: types.Integer},
			{Name: "name", Type: types.String},
		},
	}
}

func TestCreateConnectCreateTableClose(t *testing.T) {
	dir := t.TempDir()
	rootPath := filepath.Join(dir, "app.db")
	tablesDir := filepath.Join(dir, "tables")

	require.NoError(t, CreateDatabase(rootPath, tablesDir))

	db, err := Connect(rootPath)
	require.NoError(t, err)

	names, err := db.AllTableNames()
	require.NoError(t, err)
	require.Empty(t, names)

	_, err = db.CreateTable(usersSchema())
	require.NoError(t, err)

	names, err = db.AllTableNames()
	require.NoError(t, err)
	require.Equal(t, []string{"users"}, names)

	require.NoError(t, db.Close())

	// Reconnect and confirm the table survived the round trip.
	db2, err := Connect(rootPath)
	require.NoError(t, err)
	defer db2.Close()

	tbl, err := db2.Table("users")
	require.NoError(t, err)
	require.Equal(t, "users", tbl.Schema().TableName)
}

func TestTableUnknownErrors(t *testing.T) {
	dir := t.TempDir()
	rootPath := filepath.Join(dir, "app.db")
	require.NoError(t, CreateDatabase(rootPath, ""))

	db, err := Connect(rootPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Table("ghost")
	require.ErrorIs(t, err, dberrors.ErrUnknownTable)
}

func TestDropTableRemovesFiles(t *testing.T) {
	dir := t.TempDir()
	rootPath := filepath.Join(dir, "app.db")
	tablesDir := filepath.Join(dir, "tables")
	require.NoError(t, CreateDatabase(rootPath, tablesDir))

	db, err := Connect(rootPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.CreateTable(usersSchema())
	require.NoError(t, err)
	require.NoError(t, db.DropTable("users"))
	_, err = os.Stat(filepath.Join(tablesDir, "users.table"))
	require.True(t, os.IsNotExist(err))

	names, err := db.AllTableNames()
	require.NoError(t, err)
	require.Empty(t, names)

	_, err = db.Table("users")
	require.ErrorIs(t, err, dberrors.ErrUnknownTable)
}

func TestRenameTableUpdatesCatalog(t *testing.T) {
	dir := t.TempDir()
	rootPath := filepath.Join(dir, "app.db")
	require.NoError(t, CreateDatabase(rootPath, ""))

	db, err := Connect(rootPath)
	require.NoError(t, err)
	defer db.Close()

	tbl, err := db.CreateTable(usersSchema())
	require.NoError(t, err)
	require.NoError(t, tbl.RenameTable("people"))
	require.NoError(t, db.RenameTable("users", "people"))

	names, err := db.AllTableNames()
	require.NoError(t, err)
	require.Equal(t, []string{"people"}, names)

	got, err := db.Table("people")
	require.NoError(t, err)
	require.Equal(t, "people", got.Schema().TableName)
}

func TestSecondHandleOnSameTableFileIsRejected(t *testing.T) {
	dir := t.TempDir()
	rootPath := filepath.Join(dir, "app.db")
	tablesDir := filepath.Join(dir, "tables")
	require.NoError(t, CreateDatabase(rootPath, tablesDir))

	db, err := Connect(rootPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.CreateTable(usersSchema())
	require.NoError(t, err)

	// A second connection opening the same tables directory must not be
	// able to grab the same table's lock file while db still holds it.
	_, err = acquireTableLock(filepath.Join(tablesDir, lockFileSuffix("users")))
	require.ErrorIs(t, err, dberrors.ErrAlreadyOpen)
}

func TestDropDatabaseRemovesRootAndTablesDir(t *testing.T) {
	dir := t.TempDir()
	rootPath := filepath.Join(dir, "app.db")
	tablesDir := filepath.Join(dir, "tables")
	require.NoError(t, CreateDatabase(rootPath, tablesDir))

	db, err := Connect(rootPath)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	require.NoError(t, DropDatabase(rootPath))
	_, err = os.Stat(rootPath)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(tablesDir)
	require.True(t, os.IsNotExist(err))
}
