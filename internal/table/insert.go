package table

import (
	"fmt"

	"github.com/daniilsunyaev/yarrd/internal/dberrors"
	"github.com/daniilsunyaev/yarrd/internal/predicate"
	"github.com/daniilsunyaev/yarrd/internal/rowcodec"
	"github.com/daniilsunyaev/yarrd/internal/types"
)

// Insert validates and writes one row. columns may be nil/empty, meaning
// values are given in schema-declaration order; otherwise columns names
// every value's target column (no column may appear twice), and each
// omitted column takes its DEFAULT, or Null if it has none.
func (t *Table) Insert(columns []string, values []types.Value) error {
	out, err := t.resolveInsertRow(columns, values)
	if err != nil {
		return err
	}
	if err := t.checkConstraints(out); err != nil {
		return err
	}

	slot, fromFreeList := t.popFreeSlot()
	if !fromFreeList {
		slot = t.maxRowID
	}

	// Build the set of index inserts before writing anything, so a later
	// failure leaves no partial effect (spec §7).
	type pendingIndexInsert struct {
		column string
		key    []byte
	}
	var pending []pendingIndexInsert
	for _, ix := range t.schema.Indexes {
		col := t.schema.ColumnIndex(ix.Column)
		if out[col].IsNull {
			continue
		}
		colType := t.schema.Columns[col].Type
		pending = append(pending, pendingIndexInsert{column: ix.Column, key: rowcodec.KeyBytes(colType, out[col])})
	}

	if err := t.writeRowAt(slot, out); err != nil {
		if fromFreeList {
			t.pushFreeSlot(slot)
		}
		return err
	}

	var done []pendingIndexInsert
	for _, p := range pending {
		idx, ok := t.indexMgr.Get(t.schema.TableName, p.column)
		if !ok {
			continue
		}
		if err := idx.Insert(p.key, slot); err != nil {
			// Roll back index inserts already applied in this statement.
			for _, d := range done {
				di, _ := t.indexMgr.Get(t.schema.TableName, d.column)
				_ = di.Delete(d.key, slot)
			}
			if fromFreeList {
				t.pushFreeSlot(slot)
			}
			return err
		}
		done = append(done, p)
	}

	if !fromFreeList {
		t.maxRowID++
	}
	return t.persistHeader()
}

func (t *Table) resolveInsertRow(columns []string, values []types.Value) (types.Row, error) {
	numCols := len(t.schema.Columns)

	if len(columns) == 0 {
		if len(values) != numCols {
			return nil, fmt.Errorf("INSERT: expected %d values, got %d", numCols, len(values))
		}
		out := make(types.Row, numCols)
		for i, v := range values {
			out[i] = v
		}
		return out, nil
	}

	if len(columns) != len(values) {
		return nil, fmt.Errorf("INSERT: %d columns but %d values", len(columns), len(values))
	}

	out := make(types.Row, numCols)
	seen := make([]bool, numCols)
	for i, name := range columns {
		idx := t.schema.ColumnIndex(name)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %q", dberrors.ErrUnknownColumn, name)
		}
		if seen[idx] {
			return nil, fmt.Errorf("%w: %q in INSERT column list", dberrors.ErrDuplicateColumn, name)
		}
		seen[idx] = true
		out[idx] = values[i]
	}
	for i, s := range seen {
		if !s {
			out[i] = t.withDefault(i, types.Null(t.schema.Columns[i].Type))
		}
	}
	return out, nil
}

// withDefault substitutes the column's DEFAULT literal for a column
// omitted from the INSERT's column list, if one is declared.
func (t *Table) withDefault(col int, v types.Value) types.Value {
	if !v.IsNull {
		return v
	}
	if def, ok := t.schema.Columns[col].DefaultValue(); ok {
		return def
	}
	return v
}

// checkConstraints enforces NOT NULL and CHECK for every column of row.
func (t *Table) checkConstraints(r types.Row) error {
	for i, c := range t.schema.Columns {
		if c.NotNull() && r[i].IsNull {
			return fmt.Errorf("%w: column %q", dberrors.ErrNotNullViolation, c.Name)
		}
		if r[i].IsNull {
			continue // CHECK is satisfied (not violated) by a null value
		}
		for _, expr := range c.CheckExprs() {
			p := &predicate.Predicate{Column: expr.Column, Op: expr.Op, Literal: expr.Literal}
			if !predicate.Eval(p, t.schema, r) {
				return fmt.Errorf("%w: column %q", dberrors.ErrCheckViolation, c.Name)
			}
		}
	}
	return nil
}
