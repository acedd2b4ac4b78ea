// Package row is the Row/Slot view: it interprets a byte range inside a
// page as one row of a given schema. It owns no memory — every function
// borrows the page buffer for the duration of a single call.
package row

import (
	"github.com/daniilsunyaev/yarrd/internal/pager"
	"github.com/daniilsunyaev/yarrd/internal/rowcodec"
	"github.com/daniilsunyaev/yarrd/internal/types"
)

// SlotsPerPage returns how many fixed-width rows of this width fit in a page.
func SlotsPerPage(rowWidth int) int {
	if rowWidth <= 0 {
		return 0
	}
	return pager.PageSize / rowWidth
}

// Locate splits a dense slot ID into a page index and within-page slot,
// given how many rows fit per page.
func Locate(slot, slotsPerPage int) (pageIndex, withinPage int) {
	return slot / slotsPerPage, slot % slotsPerPage
}

// SlotID is the inverse of Locate.
func SlotID(pageIndex, withinPage, slotsPerPage int) int {
	return pageIndex*slotsPerPage + withinPage
}

// Bytes returns the byte range of slot i (0-based, within-page) inside
// a page buffer of the given row width.
func Bytes(buf []byte, withinPage, rowWidth int) []byte {
	start := withinPage * rowWidth
	return buf[start : start+rowWidth]
}

// Read decodes the row stored at withinPage inside buf.
func Read(schema *types.Schema, buf []byte, withinPage int) types.Row {
	return rowcodec.ReadRow(schema, Bytes(buf, withinPage, schema.RowWidth()))
}

// ReadCell decodes a single column of the row at withinPage.
func ReadCell(schema *types.Schema, buf []byte, withinPage, col int) types.Value {
	return rowcodec.ReadCell(schema, Bytes(buf, withinPage, schema.RowWidth()), col)
}

// IsNull reports whether column col of the row at withinPage is null.
func IsNull(schema *types.Schema, buf []byte, withinPage, col int) bool {
	return rowcodec.IsNull(schema, Bytes(buf, withinPage, schema.RowWidth()), col)
}

// Write encodes values into the row slot at withinPage.
func Write(schema *types.Schema, buf []byte, withinPage int, values []types.Value) error {
	encoded, err := rowcodec.WriteRow(schema, values)
	if err != nil {
		return err
	}
	copy(Bytes(buf, withinPage, schema.RowWidth()), encoded)
	return nil
}

// Zero clears the row slot at withinPage to all-null bytes; used by
// delete for debuggability (spec §4.4), not required for correctness.
func Zero(schema *types.Schema, buf []byte, withinPage int) {
	cell := Bytes(buf, withinPage, schema.RowWidth())
	for i := range cell {
		cell[i] = 0
	}
}
