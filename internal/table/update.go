package table

import (
	"fmt"

	"github.com/daniilsunyaev/yarrd/internal/dberrors"
	"github.com/daniilsunyaev/yarrd/internal/predicate"
	"github.com/daniilsunyaev/yarrd/internal/rowcodec"
	"github.com/daniilsunyaev/yarrd/internal/types"
)

// Assignment is one `column = value` of an UPDATE's SET clause.
type Assignment struct {
	Column string
	Value  types.Value
}

// Update applies assignments to every row matching pred, returning the
// number of rows changed. Constraints are re-validated per row before
// anything is written; index deletes are sequenced before index inserts
// (spec §5) to avoid spurious duplicate-key observations.
func (t *Table) Update(assignments []Assignment, pred *predicate.Predicate) (int, error) {
	colIdx := make([]int, len(assignments))
	for i, a := range assignments {
		idx := t.schema.ColumnIndex(a.Column)
		if idx < 0 {
			return 0, fmt.Errorf("%w: %q", dberrors.ErrUnknownColumn, a.Column)
		}
		colIdx[i] = idx
	}

	slots, err := t.matchingSlots(pred)
	if err != nil {
		return 0, err
	}

	// Validate every affected row before writing any of them, so a
	// constraint violation on row N leaves rows 1..N-1 untouched.
	newRows := make([]types.Row, len(slots))
	oldRows := make([]types.Row, len(slots))
	for i, slot := range slots {
		old, err := t.readRowAt(slot)
		if err != nil {
			return 0, err
		}
		oldRows[i] = old
		updated := append(types.Row(nil), old...)
		for j, a := range assignments {
			updated[colIdx[j]] = a.Value
		}
		if err := t.checkConstraints(updated); err != nil {
			return 0, err
		}
		newRows[i] = updated
	}

	for i, slot := range slots {
		if err := t.applyIndexDeltas(slot, oldRows[i], newRows[i]); err != nil {
			return i, err
		}
		if err := t.writeRowAt(slot, newRows[i]); err != nil {
			return i, err
		}
	}

	if len(slots) > 0 {
		if err := t.persistHeader(); err != nil {
			return len(slots), err
		}
	}
	return len(slots), nil
}

// matchingSlots returns every live slot matching pred, using an index
// lookup when pred is an equality test on an indexed column.
func (t *Table) matchingSlots(pred *predicate.Predicate) ([]uint64, error) {
	var out []uint64

	if column, literal, ok := predicate.EqualityColumn(pred); ok && t.schema.HasIndex(column) {
		candidates, err := t.lookupByIndex(column, literal)
		if err != nil {
			return nil, err
		}
		seen := make(map[uint64]bool, len(candidates))
		for _, slot := range candidates {
			if seen[slot] || t.isFree(slot) {
				continue
			}
			seen[slot] = true
			r, err := t.readRowAt(slot)
			if err != nil {
				return nil, err
			}
			if predicate.Eval(pred, t.schema, r) {
				out = append(out, slot)
			}
		}
		return out, nil
	}

	for slot := uint64(0); slot < t.maxRowID; slot++ {
		if t.isFree(slot) {
			continue
		}
		r, err := t.readRowAt(slot)
		if err != nil {
			return nil, err
		}
		if predicate.Eval(pred, t.schema, r) {
			out = append(out, slot)
		}
	}
	return out, nil
}

// applyIndexDeltas deletes stale index entries and inserts fresh ones
// for every indexed column whose value changed between old and updated.
func (t *Table) applyIndexDeltas(slot uint64, old, updated types.Row) error {
	for _, ix := range t.schema.Indexes {
		col := t.schema.ColumnIndex(ix.Column)
		if valuesEqual(old[col], updated[col]) {
			continue
		}
		idx, ok := t.indexMgr.Get(t.schema.TableName, ix.Column)
		if !ok {
			continue
		}
		colType := t.schema.Columns[col].Type
		if !old[col].IsNull {
			if err := idx.Delete(rowcodec.KeyBytes(colType, old[col]), slot); err != nil {
				return err
			}
		}
		if !updated[col].IsNull {
			if err := idx.Insert(rowcodec.KeyBytes(colType, updated[col]), slot); err != nil {
				return err
			}
		}
	}
	return nil
}

func valuesEqual(a, b types.Value) bool {
	if a.IsNull || b.IsNull {
		return a.IsNull == b.IsNull
	}
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case types.Integer:
		return a.I == b.I
	case types.Float:
		return a.F == b.F
	case types.String:
		return a.S == b.S
	default:
		return false
	}
}
