package table

import (
	"github.com/daniilsunyaev/yarrd/internal/predicate"
	"github.com/daniilsunyaev/yarrd/internal/row"
	"github.com/daniilsunyaev/yarrd/internal/rowcodec"
)

// Delete removes every row matching pred, returning the number removed.
// Matching rows are dropped from every index using their current key,
// then zeroed (for debuggability, not correctness) and pushed onto the
// free-list.
func (t *Table) Delete(pred *predicate.Predicate) (int, error) {
	slots, err := t.matchingSlots(pred)
	if err != nil {
		return 0, err
	}

	for _, slot := range slots {
		r, err := t.readRowAt(slot)
		if err != nil {
			return 0, err
		}
		for _, ix := range t.schema.Indexes {
			col := t.schema.ColumnIndex(ix.Column)
			if r[col].IsNull {
				continue
			}
			idx, ok := t.indexMgr.Get(t.schema.TableName, ix.Column)
			if !ok {
				continue
			}
			colType := t.schema.Columns[col].Type
			if err := idx.Delete(rowcodec.KeyBytes(colType, r[col]), slot); err != nil {
				return 0, err
			}
		}

		pageIdx, within := pageAndSlot(slot, t.slotsPerPage)
		pg, err := t.pager.Get(pageIdx)
		if err != nil {
			return 0, err
		}
		row.Zero(t.schema, pg.Buf, within)
		t.pager.MarkDirty(pageIdx)

		t.pushFreeSlot(slot)
	}

	if len(slots) > 0 {
		if err := t.persistHeader(); err != nil {
			return len(slots), err
		}
	}
	return len(slots), nil
}

func pageAndSlot(slot uint64, slotsPerPage int) (int, int) {
	p, w := int(slot)/slotsPerPage, int(slot)%slotsPerPage
	return p, w
}
