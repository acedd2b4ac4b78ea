package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/daniilsunyaev/yarrd/internal/types"
)

// Manager tracks every open index inside one tables directory, keyed by
// "table.column". Grounded on the teacher's btree.Manager registry.
type Manager struct {
	dir  string
	open map[string]*Index
}

// NewManager creates a Manager rooted at dir.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir, open: make(map[string]*Index)}
}

func fileSuffix(table, column string) string {
	return fmt.Sprintf("%s.%s.idx", table, column)
}

func key(table, column string) string { return table + "." + column }

func (m *Manager) paths(table, column string) (primary, overflow string) {
	base := filepath.Join(m.dir, fileSuffix(table, column))
	return base, base + ".ovf"
}

// Get returns an already-open index, if any.
func (m *Manager) Get(table, column string) (*Index, bool) {
	idx, ok := m.open[key(table, column)]
	return idx, ok
}

// CreateIndex creates and opens a new on-disk index for (table, column).
func (m *Manager) CreateIndex(table, column string, colType types.ColumnType) (*Index, error) {
	primary, overflow := m.paths(table, column)
	idx, err := Create(primary, overflow, colType)
	if err != nil {
		return nil, err
	}
	m.open[key(table, column)] = idx
	return idx, nil
}

// OpenIndex opens an existing on-disk index for (table, column).
func (m *Manager) OpenIndex(table, column string, colType types.ColumnType) (*Index, error) {
	if idx, ok := m.open[key(table, column)]; ok {
		return idx, nil
	}
	primary, overflow := m.paths(table, column)
	idx, err := Open(primary, overflow, colType)
	if err != nil {
		return nil, err
	}
	m.open[key(table, column)] = idx
	return idx, nil
}

// DropIndex removes an index's files and drops it from the registry.
func (m *Manager) DropIndex(table, column string) error {
	k := key(table, column)
	if idx, ok := m.open[k]; ok {
		delete(m.open, k)
		return idx.Remove()
	}
	primary, overflow := m.paths(table, column)
	if err := os.Remove(primary); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(overflow); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// FlushAll flushes every open index.
func (m *Manager) FlushAll() error {
	for _, idx := range m.open {
		if err := idx.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// CloseAll closes every open index and clears the registry.
func (m *Manager) CloseAll() error {
	var firstErr error
	for k, idx := range m.open {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.open, k)
	}
	return firstErr
}

// IndexFileSuffix returns the on-disk filename (no directory) used for
// a (table, column) index, for the catalog's index-list section.
func IndexFileSuffix(table, column string) string {
	return fileSuffix(table, column)
}
