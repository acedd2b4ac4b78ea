package table

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/daniilsunyaev/yarrd/internal/catalog"
	"github.com/daniilsunyaev/yarrd/internal/dberrors"
	"github.com/daniilsunyaev/yarrd/internal/index"
	"github.com/daniilsunyaev/yarrd/internal/pager"
	"github.com/daniilsunyaev/yarrd/internal/predicate"
	"github.com/daniilsunyaev/yarrd/internal/row"
	"github.com/daniilsunyaev/yarrd/internal/types"
)

// RenameTable renames the table, its data file and every index file that
// names it in their suffix. Indexes themselves are untouched: slot IDs
// and key bytes do not change.
func (t *Table) RenameTable(newName string) error {
	if newName == t.schema.TableName {
		return nil
	}
	newPath := filepath.Join(t.dir, DataFileName(newName))
	if _, err := os.Stat(newPath); err == nil {
		return fmt.Errorf("%w: table %q", dberrors.ErrDuplicateTable, newName)
	}

	oldName := t.schema.TableName
	type renamedIndex struct{ oldPrimary, oldOverflow, newPrimary, newOverflow string }
	var renames []renamedIndex
	for _, ix := range t.schema.Indexes {
		oldPrimary := filepath.Join(t.dir, index.IndexFileSuffix(oldName, ix.Column))
		newPrimary := filepath.Join(t.dir, index.IndexFileSuffix(newName, ix.Column))
		renames = append(renames, renamedIndex{oldPrimary, oldPrimary + ".ovf", newPrimary, newPrimary + ".ovf"})
	}

	if err := t.Close(); err != nil {
		return err
	}
	if err := os.Rename(t.path, newPath); err != nil {
		return fmt.Errorf("%w: rename table file: %v", dberrors.ErrIO, err)
	}
	for _, r := range renames {
		if err := os.Rename(r.oldPrimary, r.newPrimary); err != nil {
			return fmt.Errorf("%w: rename index file: %v", dberrors.ErrIO, err)
		}
		if err := os.Rename(r.oldOverflow, r.newOverflow); err != nil {
			return fmt.Errorf("%w: rename index overflow file: %v", dberrors.ErrIO, err)
		}
	}

	t.schema.TableName = newName
	t.path = newPath
	f, err := os.OpenFile(newPath, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("%w: reopen renamed table file: %v", dberrors.ErrIO, err)
	}
	t.file = f
	t.pager = pager.Open(f, catalog.PageAreaOffset(t.reserved), 0)
	t.indexMgr = index.NewManager(t.dir)
	for _, ix := range t.schema.Indexes {
		col := t.schema.Columns[t.schema.ColumnIndex(ix.Column)]
		if _, err := t.indexMgr.OpenIndex(t.schema.TableName, ix.Column, col.Type); err != nil {
			return err
		}
	}
	return t.persistHeader()
}

// RenameColumn renames a column in place, updating any CHECK expressions
// that reference it by name and renaming that column's index files, if any.
func (t *Table) RenameColumn(oldName, newName string) error {
	idx := t.schema.ColumnIndex(oldName)
	if idx < 0 {
		return fmt.Errorf("%w: %q", dberrors.ErrUnknownColumn, oldName)
	}
	if t.schema.ColumnIndex(newName) >= 0 {
		return fmt.Errorf("%w: %q", dberrors.ErrDuplicateColumn, newName)
	}

	hasIndex := t.schema.HasIndex(oldName)
	var oldPrimary, oldOverflow, newPrimary, newOverflow string
	if hasIndex {
		oldPrimary = filepath.Join(t.dir, index.IndexFileSuffix(t.schema.TableName, oldName))
		oldOverflow = oldPrimary + ".ovf"
		newPrimary = filepath.Join(t.dir, index.IndexFileSuffix(t.schema.TableName, newName))
		newOverflow = newPrimary + ".ovf"
	}

	if hasIndex {
		if err := t.indexMgr.CloseAll(); err != nil {
			return err
		}
	}

	t.schema.Columns[idx].Name = newName
	for i := range t.schema.Indexes {
		if t.schema.Indexes[i].Column == oldName {
			t.schema.Indexes[i].Column = newName
		}
	}
	for i := range t.schema.Columns {
		for _, expr := range t.schema.Columns[i].CheckExprs() {
			if expr.Column == oldName {
				expr.Column = newName
			}
		}
	}

	if hasIndex {
		if err := os.Rename(oldPrimary, newPrimary); err != nil {
			return fmt.Errorf("%w: rename index file: %v", dberrors.ErrIO, err)
		}
		if err := os.Rename(oldOverflow, newOverflow); err != nil {
			return fmt.Errorf("%w: rename index overflow file: %v", dberrors.ErrIO, err)
		}
		for _, ix := range t.schema.Indexes {
			col := t.schema.Columns[t.schema.ColumnIndex(ix.Column)]
			if _, err := t.indexMgr.OpenIndex(t.schema.TableName, ix.Column, col.Type); err != nil {
				return err
			}
		}
	}

	return t.persistHeader()
}

// AddColumn appends a new column to the schema, materializing its DEFAULT
// (or Null) in every live row. Row width changes, so the whole data file
// is physically rewritten at the new width; slot IDs are preserved
// exactly, so existing indexes need no rebuilding.
func (t *Table) AddColumn(col types.Column) error {
	if t.schema.ColumnIndex(col.Name) >= 0 {
		return fmt.Errorf("%w: %q", dberrors.ErrDuplicateColumn, col.Name)
	}
	def, hasDefault := col.DefaultValue()
	if col.NotNull() && !hasDefault {
		return fmt.Errorf("%w: ADD COLUMN %q is NOT NULL without a DEFAULT", dberrors.ErrNotNullViolation, col.Name)
	}

	newSchema := t.cloneSchema()
	newSchema.Columns = append(newSchema.Columns, col)

	fill := types.Null(col.Type)
	if hasDefault {
		fill = def
	}
	transform := func(old types.Row) types.Row {
		return append(append(types.Row{}, old...), fill)
	}
	return t.rewriteRowsWithSchema(newSchema, transform)
}

// DropColumn removes a column, dropping any index declared on it, and
// physically rewrites every row at the narrower width. Slot IDs are
// preserved, so indexes on surviving columns need no rebuilding.
func (t *Table) DropColumn(name string) error {
	colIdx := t.schema.ColumnIndex(name)
	if colIdx < 0 {
		return fmt.Errorf("%w: %q", dberrors.ErrUnknownColumn, name)
	}

	if t.schema.HasIndex(name) {
		if err := t.indexMgr.DropIndex(t.schema.TableName, name); err != nil {
			return err
		}
	}

	newSchema := t.cloneSchema()
	newSchema.Columns = append(newSchema.Columns[:colIdx:colIdx], newSchema.Columns[colIdx+1:]...)
	var newIndexes []types.IndexDecl
	for _, ix := range newSchema.Indexes {
		if ix.Column != name {
			newIndexes = append(newIndexes, ix)
		}
	}
	newSchema.Indexes = newIndexes

	transform := func(old types.Row) types.Row {
		out := make(types.Row, 0, len(old)-1)
		for i, v := range old {
			if i == colIdx {
				continue
			}
			out = append(out, v)
		}
		return out
	}
	return t.rewriteRowsWithSchema(newSchema, transform)
}

// AddConstraint attaches constraint to column, after validating every
// live row against it so a violating table is left untouched.
func (t *Table) AddConstraint(column string, constraint types.Constraint) error {
	colIdx := t.schema.ColumnIndex(column)
	if colIdx < 0 {
		return fmt.Errorf("%w: %q", dberrors.ErrUnknownColumn, column)
	}

	candidate := t.schema.Columns[colIdx]
	candidate.Constraints = append(append([]types.Constraint{}, candidate.Constraints...), constraint)

	for slot := uint64(0); slot < t.maxRowID; slot++ {
		if t.isFree(slot) {
			continue
		}
		r, err := t.readRowAt(slot)
		if err != nil {
			return err
		}
		if constraint.Kind == types.NotNull && r[colIdx].IsNull {
			return fmt.Errorf("%w: column %q", dberrors.ErrNotNullViolation, column)
		}
		if constraint.Kind == types.Check && constraint.CheckExpr != nil && !r[colIdx].IsNull {
			p := &predicate.Predicate{Column: constraint.CheckExpr.Column, Op: constraint.CheckExpr.Op, Literal: constraint.CheckExpr.Literal}
			if !predicate.Eval(p, t.schema, r) {
				return fmt.Errorf("%w: column %q", dberrors.ErrCheckViolation, column)
			}
		}
	}

	t.schema.Columns[colIdx] = candidate
	return t.persistHeader()
}

// DropConstraint removes every constraint of kind from column.
func (t *Table) DropConstraint(column string, kind types.ConstraintKind) error {
	colIdx := t.schema.ColumnIndex(column)
	if colIdx < 0 {
		return fmt.Errorf("%w: %q", dberrors.ErrUnknownColumn, column)
	}
	c := &t.schema.Columns[colIdx]
	var kept []types.Constraint
	for _, cons := range c.Constraints {
		if cons.Kind != kind {
			kept = append(kept, cons)
		}
	}
	c.Constraints = kept
	return t.persistHeader()
}

func (t *Table) cloneSchema() *types.Schema {
	cols := append([]types.Column{}, t.schema.Columns...)
	idxs := append([]types.IndexDecl{}, t.schema.Indexes...)
	return &types.Schema{TableName: t.schema.TableName, Columns: cols, Indexes: idxs}
}

func indexRefsForSchema(schema *types.Schema) []catalog.IndexRef {
	refs := make([]catalog.IndexRef, len(schema.Indexes))
	for i, ix := range schema.Indexes {
		refs[i] = catalog.IndexRef{Column: ix.Column, Suffix: index.IndexFileSuffix(schema.TableName, ix.Column)}
	}
	return refs
}

// rewriteRowsWithSchema builds a fresh data file under newSchema, maps
// every existing slot ID through transform into the new row width, and
// atomically swaps it in. Free slots stay free at the same slot ID;
// indexes are not touched, since slot IDs and indexed values are
// unaffected by a column addition/removal.
func (t *Table) rewriteRowsWithSchema(newSchema *types.Schema, transform func(types.Row) types.Row) error {
	tmpPath := t.path + ".alter.tmp"
	refs := indexRefsForSchema(newSchema)
	if err := catalog.WriteNewFile(tmpPath, newSchema, refs); err != nil {
		return err
	}
	tmpFile, err := os.OpenFile(tmpPath, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open alter scratch file: %v", dberrors.ErrIO, err)
	}
	reserved, err := catalog.ReadPreamble(tmpFile)
	if err != nil {
		_ = tmpFile.Close()
		return err
	}
	tmpPager := pager.Open(tmpFile, catalog.PageAreaOffset(reserved), 0)
	newSlotsPerPage := row.SlotsPerPage(newSchema.RowWidth())

	for slot := uint64(0); slot < t.maxRowID; slot++ {
		pageIdx, within := row.Locate(int(slot), newSlotsPerPage)
		if t.isFree(slot) {
			continue
		}
		old, err := t.readRowAt(slot)
		if err != nil {
			return err
		}
		pg, err := tmpPager.Get(pageIdx)
		if err != nil {
			return err
		}
		if err := row.Write(newSchema, pg.Buf, within, transform(old)); err != nil {
			return err
		}
		tmpPager.MarkDirty(pageIdx)
	}

	// WriteNewFile sized reserved for an empty free-list; the table's
	// real free-list may be larger, so grow/rewrite the header region to
	// fit it exactly via the same whole-file atomic rewrite vacuum uses,
	// rather than risk WriteInPlace rejecting an oversized body.
	maxPageIdx := -1
	if t.maxRowID > 0 {
		maxPageIdx = int((t.maxRowID - 1) / uint64(newSlotsPerPage))
	}
	if err := catalog.RewriteWholeFile(tmpPath, tmpPager, catalog.PageAreaOffset(reserved), maxPageIdx, newSchema, refs, t.freeList, t.maxRowID); err != nil {
		return err
	}
	if err := tmpPager.Close(); err != nil {
		return err
	}

	if err := t.Close(); err != nil {
		return err
	}
	if err := swapFileInto(tmpPath, t.path); err != nil {
		return err
	}

	reopened, err := open(t.path, t.dir, index.NewManager(t.dir))
	if err != nil {
		return err
	}
	*t = *reopened
	return nil
}
