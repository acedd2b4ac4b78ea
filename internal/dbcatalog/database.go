// Package dbcatalog implements the database catalog / lifecycle
// collaborator of spec.md §4.9: a root file listing the tables a
// connection owns, `.createdb`/`.dropdb`/`.connect`/`.close` lifecycle
// operations, and an advisory per-table flock guarding against two
// handles opening the same table file at once.
//
// Grounded on the teacher's internal/storage.Engine (the single seam
// cmd/godb-server opens once and closes once), generalized from the
// teacher's one-process-one-store model to a catalog of independently
// open-able named tables, each with its own lock file, matching
// spec.md §5's "no two table handles open on the same file
// simultaneously" requirement.
package dbcatalog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/daniilsunyaev/yarrd/internal/dberrors"
	"github.com/daniilsunyaev/yarrd/internal/index"
	"github.com/daniilsunyaev/yarrd/internal/table"
	"github.com/daniilsunyaev/yarrd/internal/types"
	"github.com/daniilsunyaev/yarrd/internal/yarrdlog"
)

// rootFileName is the conventional name of a database's root file.
const rootFileName = "yarrd.db"

// defaultTablesDirName is used when .createdb is given no explicit
// tables directory.
const defaultTablesDirName = "tables"

// lockFileSuffix names a table's advisory lock file, per spec.md §4.9.
func lockFileSuffix(tableName string) string { return tableName + ".table.lock" }

// Database is one connected yarrd database: a root file plus whichever
// table handles have been opened so far. It implements
// internal/executor.Store.
type Database struct {
	rootPath  string
	tablesDir string

	tables []string                // declared table names, root-file order
	open   map[string]*table.Table // currently open handles, by name
	locks  map[string]*tableLock   // held locks for currently open handles
}

// CreateDatabase creates a brand-new root file and tables directory at
// path/tablesDir. tablesDir defaults to a "tables" directory alongside
// the root file when empty, matching `.createdb PATH [TABLES_DIR]`.
func CreateDatabase(path, tablesDir string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: database root %q already exists", dberrors.ErrDuplicateTable, path)
	}
	if tablesDir == "" {
		tablesDir = filepath.Join(filepath.Dir(path), defaultTablesDirName)
	}
	if err := os.MkdirAll(tablesDir, 0o755); err != nil {
		return fmt.Errorf("%w: create tables dir: %v", dberrors.ErrIO, err)
	}
	if err := writeRootFile(path, rootDoc{TablesDir: tablesDir, Tables: nil}); err != nil {
		return err
	}
	yarrdlog.Infof("createdb %s (tables dir %s)", path, tablesDir)
	return nil
}

// DropDatabase removes a database's root file and tables directory. It
// does not check whether a *Database for path is still open; cmd/yarrd
// refuses .dropdb while it is connected.
func DropDatabase(path string) error {
	doc, err := readRootFile(path)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(doc.TablesDir); err != nil {
		return fmt.Errorf("%w: remove tables dir: %v", dberrors.ErrIO, err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("%w: remove root file: %v", dberrors.ErrIO, err)
	}
	yarrdlog.Infof("dropdb %s", path)
	return nil
}

// Connect loads path's root file and returns a *Database without
// eagerly opening any table handle, per spec.md §4.9.
func Connect(path string) (*Database, error) {
	doc, err := readRootFile(path)
	if err != nil {
		return nil, err
	}
	db := &Database{
		rootPath:  path,
		tablesDir: doc.TablesDir,
		tables:    doc.Tables,
		open:      make(map[string]*table.Table),
		locks:     make(map[string]*tableLock),
	}
	yarrdlog.Infof("connect %s (%d tables declared)", path, len(doc.Tables))
	return db, nil
}

func (db *Database) persistRoot() error {
	return writeRootFile(db.rootPath, rootDoc{TablesDir: db.tablesDir, Tables: db.tables})
}

func (db *Database) hasTable(name string) bool {
	for _, n := range db.tables {
		if n == name {
			return true
		}
	}
	return false
}

// Table returns the open handle for name, opening (and locking) it on
// first use.
func (db *Database) Table(name string) (*table.Table, error) {
	if t, ok := db.open[name]; ok {
		return t, nil
	}
	if !db.hasTable(name) {
		return nil, fmt.Errorf("%w: %q", dberrors.ErrUnknownTable, name)
	}
	return db.openAndLock(name)
}

func (db *Database) openAndLock(name string) (*table.Table, error) {
	lock, err := acquireTableLock(filepath.Join(db.tablesDir, lockFileSuffix(name)))
	if err != nil {
		return nil, err
	}
	t, err := table.Open(db.tablesDir, name)
	if err != nil {
		_ = lock.release()
		return nil, err
	}
	db.open[name] = t
	db.locks[name] = lock
	return t, nil
}

// CreateTable creates a new table file, declares it in the root file,
// and opens (and locks) its handle.
func (db *Database) CreateTable(schema *types.Schema) (*table.Table, error) {
	if db.hasTable(schema.TableName) {
		return nil, fmt.Errorf("%w: %q", dberrors.ErrDuplicateTable, schema.TableName)
	}
	lock, err := acquireTableLock(filepath.Join(db.tablesDir, lockFileSuffix(schema.TableName)))
	if err != nil {
		return nil, err
	}
	t, err := table.Create(db.tablesDir, schema)
	if err != nil {
		_ = lock.release()
		return nil, err
	}

	db.tables = append(db.tables, schema.TableName)
	if err := db.persistRoot(); err != nil {
		db.tables = db.tables[:len(db.tables)-1]
		_ = t.Close()
		_ = lock.release()
		return nil, err
	}
	db.open[schema.TableName] = t
	db.locks[schema.TableName] = lock
	return t, nil
}

// DropTable closes (if open), unlocks, and removes a table's data and
// index files, then removes it from the root file.
func (db *Database) DropTable(name string) error {
	if !db.hasTable(name) {
		return fmt.Errorf("%w: %q", dberrors.ErrUnknownTable, name)
	}
	schema, err := db.schemaOf(name)
	if err != nil {
		return err
	}
	if err := db.closeAndUnlock(name); err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(db.tablesDir, table.DataFileName(name))); err != nil {
		return fmt.Errorf("%w: remove table file: %v", dberrors.ErrIO, err)
	}
	for _, ix := range schema.Indexes {
		suffix := index.IndexFileSuffix(name, ix.Column)
		_ = os.Remove(filepath.Join(db.tablesDir, suffix))
		_ = os.Remove(filepath.Join(db.tablesDir, suffix+".ovf"))
	}
	_ = os.Remove(filepath.Join(db.tablesDir, lockFileSuffix(name)))

	db.removeTableName(name)
	return db.persistRoot()
}

// schemaOf returns a table's schema, opening it briefly if it was not
// already open.
func (db *Database) schemaOf(name string) (*types.Schema, error) {
	t, err := db.Table(name)
	if err != nil {
		return nil, err
	}
	return t.Schema(), nil
}

func (db *Database) removeTableName(name string) {
	kept := make([]string, 0, len(db.tables))
	for _, n := range db.tables {
		if n != name {
			kept = append(kept, n)
		}
	}
	db.tables = kept
}

func (db *Database) closeAndUnlock(name string) error {
	t, open := db.open[name]
	if !open {
		return nil
	}
	closeErr := t.Close()
	lockErr := db.locks[name].release()
	delete(db.open, name)
	delete(db.locks, name)
	if closeErr != nil {
		return closeErr
	}
	return lockErr
}

// RenameTable updates the catalog's bookkeeping after
// *table.Table.RenameTable has already renamed the on-disk files: the
// open-handle map key, the held lock (re-acquired under the new lock
// file name), and the root file's table list.
func (db *Database) RenameTable(oldName, newName string) error {
	if !db.hasTable(oldName) {
		return fmt.Errorf("%w: %q", dberrors.ErrUnknownTable, oldName)
	}
	if db.hasTable(newName) {
		return fmt.Errorf("%w: %q", dberrors.ErrDuplicateTable, newName)
	}

	if t, open := db.open[oldName]; open {
		oldLockPath := filepath.Join(db.tablesDir, lockFileSuffix(oldName))
		newLockPath := filepath.Join(db.tablesDir, lockFileSuffix(newName))
		if err := db.locks[oldName].release(); err != nil {
			return err
		}
		_ = os.Rename(oldLockPath, newLockPath)
		lock, err := acquireTableLock(newLockPath)
		if err != nil {
			return err
		}
		delete(db.open, oldName)
		delete(db.locks, oldName)
		db.open[newName] = t
		db.locks[newName] = lock
	}

	for i, n := range db.tables {
		if n == oldName {
			db.tables[i] = newName
			break
		}
	}
	return db.persistRoot()
}

// AllTableNames returns every table name declared in the root file,
// whether or not it currently has an open handle.
func (db *Database) AllTableNames() ([]string, error) {
	return append([]string(nil), db.tables...), nil
}

// Close flushes and closes every open table handle and releases its
// lock, collecting (rather than stopping on) the first error so every
// handle still gets a best-effort close. Crash recovery mid-flush is
// not attempted; this is the only shutdown path, matching spec.md §9.
func (db *Database) Close() error {
	var firstErr error
	for name := range db.open {
		if err := db.closeAndUnlock(name); err != nil {
			yarrdlog.Errorf("close %s: %v", name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return firstErr
	}
	yarrdlog.Infof("close %s", db.rootPath)
	return nil
}
