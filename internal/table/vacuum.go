package table

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	natomic "github.com/natefinch/atomic"

	"github.com/daniilsunyaev/yarrd/internal/catalog"
	"github.com/daniilsunyaev/yarrd/internal/dberrors"
	"github.com/daniilsunyaev/yarrd/internal/index"
	"github.com/daniilsunyaev/yarrd/internal/pager"
	"github.com/daniilsunyaev/yarrd/internal/row"
	"github.com/daniilsunyaev/yarrd/internal/rowcodec"
	"github.com/daniilsunyaev/yarrd/internal/types"
)

// indexPath returns the final on-disk primary path for a (table, column)
// index, matching the convention used by internal/index.Manager.
func (t *Table) indexPath(column string) string {
	return filepath.Join(t.dir, index.IndexFileSuffix(t.schema.TableName, column))
}

// Vacuum rewrites the table densely (new slot IDs 0..L-1, no gaps),
// rebuilds every index from scratch against the new IDs, and atomically
// replaces the data file and every index file. The free-list becomes
// empty. Grounded on the atomic write-new-then-swap idiom used for
// rehash (internal/index) and the pack's natefinch/atomic usages.
func (t *Table) Vacuum() error {
	liveRows, err := t.collectLiveRows()
	if err != nil {
		return err
	}

	tmpPath := t.path + ".vacuum.tmp"
	if err := catalog.WriteNewFile(tmpPath, t.schema, t.indexRefs()); err != nil {
		return err
	}
	tmpFile, err := os.OpenFile(tmpPath, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open vacuum scratch file: %v", dberrors.ErrIO, err)
	}
	reserved, err := catalog.ReadPreamble(tmpFile)
	if err != nil {
		_ = tmpFile.Close()
		return err
	}
	tmpPager := pager.Open(tmpFile, catalog.PageAreaOffset(reserved), 0)

	tmpIndexes := make(map[string]*index.Index, len(t.schema.Indexes))
	for _, ix := range t.schema.Indexes {
		colType := t.schema.Columns[t.schema.ColumnIndex(ix.Column)].Type
		primTmp := t.indexPath(ix.Column) + ".vacuum.tmp"
		ovfTmp := primTmp + ".ovf"
		idx, err := index.Create(primTmp, ovfTmp, colType)
		if err != nil {
			return err
		}
		tmpIndexes[ix.Column] = idx
	}

	for slot, r := range liveRows {
		pageIdx, within := row.Locate(slot, t.slotsPerPage)
		pg, err := tmpPager.Get(pageIdx)
		if err != nil {
			return err
		}
		if err := row.Write(t.schema, pg.Buf, within, r); err != nil {
			return err
		}
		tmpPager.MarkDirty(pageIdx)

		for _, ix := range t.schema.Indexes {
			col := t.schema.ColumnIndex(ix.Column)
			if r[col].IsNull {
				continue
			}
			colType := t.schema.Columns[col].Type
			if err := tmpIndexes[ix.Column].Insert(rowcodec.KeyBytes(colType, r[col]), uint64(slot)); err != nil {
				return err
			}
		}
	}

	newMaxRowID := uint64(len(liveRows))
	if err := catalog.WriteInPlace(tmpFile, reserved, t.schema, t.indexRefs(), nil, newMaxRowID); err != nil {
		return err
	}
	if err := tmpPager.Sync(); err != nil {
		return err
	}
	for _, idx := range tmpIndexes {
		if err := idx.Flush(); err != nil {
			return err
		}
	}

	// Close everything before reading the scratch bytes back for the
	// atomic swap.
	if err := tmpPager.Close(); err != nil {
		return err
	}
	for _, idx := range tmpIndexes {
		if err := idx.Close(); err != nil {
			return err
		}
	}
	if err := t.Close(); err != nil {
		return err
	}

	if err := swapFileInto(tmpPath, t.path); err != nil {
		return err
	}
	for _, ix := range t.schema.Indexes {
		finalPrimary := t.indexPath(ix.Column)
		if err := swapFileInto(finalPrimary+".vacuum.tmp", finalPrimary); err != nil {
			return err
		}
		if err := swapFileInto(finalPrimary+".vacuum.tmp.ovf", finalPrimary+".ovf"); err != nil {
			return err
		}
	}

	reopened, err := open(t.path, t.dir, index.NewManager(t.dir))
	if err != nil {
		return err
	}
	*t = *reopened
	return nil
}

func swapFileInto(tmpPath, finalPath string) error {
	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return fmt.Errorf("%w: read vacuum scratch: %v", dberrors.ErrIO, err)
	}
	if err := natomic.WriteFile(finalPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: swap vacuumed file: %v", dberrors.ErrIO, err)
	}
	return os.Remove(tmpPath)
}

// collectLiveRows reads every live row in ascending slot order. The
// returned slice's index becomes the row's new, dense slot ID.
func (t *Table) collectLiveRows() ([]types.Row, error) {
	var out []types.Row
	for slot := uint64(0); slot < t.maxRowID; slot++ {
		if t.isFree(slot) {
			continue
		}
		r, err := t.readRowAt(slot)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
