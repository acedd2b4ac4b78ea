package table

import (
	"fmt"

	"github.com/daniilsunyaev/yarrd/internal/dberrors"
	"github.com/daniilsunyaev/yarrd/internal/rowcodec"
	"github.com/daniilsunyaev/yarrd/internal/types"
)

// CreateIndex builds a hash index over column from every live row, then
// declares it in the schema. Grounded on spec.md §4.5/§4.6: the index
// file is created empty and backfilled by a full scan, matching the
// same Insert path used by ordinary INSERT statements.
func (t *Table) CreateIndex(column string) error {
	colIdx := t.schema.ColumnIndex(column)
	if colIdx < 0 {
		return fmt.Errorf("%w: %q", dberrors.ErrUnknownColumn, column)
	}
	if t.schema.HasIndex(column) {
		return fmt.Errorf("%w: on %q", dberrors.ErrDuplicateIndex, column)
	}

	colType := t.schema.Columns[colIdx].Type
	idx, err := t.indexMgr.CreateIndex(t.schema.TableName, column, colType)
	if err != nil {
		return err
	}

	for slot := uint64(0); slot < t.maxRowID; slot++ {
		if t.isFree(slot) {
			continue
		}
		r, err := t.readRowAt(slot)
		if err != nil {
			_ = t.indexMgr.DropIndex(t.schema.TableName, column)
			return err
		}
		if r[colIdx].IsNull {
			continue
		}
		if err := idx.Insert(rowcodec.KeyBytes(colType, r[colIdx]), slot); err != nil {
			_ = t.indexMgr.DropIndex(t.schema.TableName, column)
			return err
		}
	}

	t.schema.Indexes = append(t.schema.Indexes, types.IndexDecl{Column: column})
	if err := t.persistHeader(); err != nil {
		t.schema.Indexes = t.schema.Indexes[:len(t.schema.Indexes)-1]
		_ = t.indexMgr.DropIndex(t.schema.TableName, column)
		return err
	}
	return nil
}

// DropIndex removes a declared index and its files.
func (t *Table) DropIndex(column string) error {
	if !t.schema.HasIndex(column) {
		return fmt.Errorf("%w: on %q", dberrors.ErrUnknownIndex, column)
	}
	if err := t.indexMgr.DropIndex(t.schema.TableName, column); err != nil {
		return err
	}
	kept := make([]types.IndexDecl, 0, len(t.schema.Indexes))
	for _, ix := range t.schema.Indexes {
		if ix.Column != column {
			kept = append(kept, ix)
		}
	}
	t.schema.Indexes = kept
	return t.persistHeader()
}
