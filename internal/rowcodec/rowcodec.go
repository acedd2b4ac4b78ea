// Package rowcodec is the Serializer: pure functions that encode a Row
// into the schema's fixed-width byte layout and decode/write individual
// cells back out of it. No file or page concept lives here — see
// internal/pager and internal/row for that.
//
// Layout: a leading null bitmask (NullBitmaskBytes(len(cols)) bytes,
// bit i set means column i is non-null, little-endian bit order within
// each byte) followed by each column's fixed-width cell in declaration
// order. A null cell's bytes are left zeroed and must not be interpreted.
package rowcodec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/daniilsunyaev/yarrd/internal/dberrors"
	"github.com/daniilsunyaev/yarrd/internal/types"
)

// WriteRow encodes values (one per schema column, in order) into a
// freshly allocated buffer of exactly schema.RowWidth() bytes.
func WriteRow(schema *types.Schema, values []types.Value) ([]byte, error) {
	if len(values) != len(schema.Columns) {
		return nil, fmt.Errorf("rowcodec: expected %d values, got %d", len(schema.Columns), len(values))
	}

	width := schema.RowWidth()
	if width > PageSize {
		return nil, fmt.Errorf("%w: row width %d exceeds page size %d", dberrors.ErrRowTooLarge, width, PageSize)
	}

	buf := make([]byte, width)
	for i, v := range values {
		if err := WriteCell(schema, buf, i, v); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// PageSize is redeclared here (rather than imported from internal/pager)
// to keep rowcodec free of any file/page dependency; internal/pager
// declares the same value.
const PageSize = 4096

// cellOffset returns the byte offset of column i's cell within a row
// buffer, and the bitmask length in bytes.
func cellOffset(schema *types.Schema, col int) (offset int, bitmaskLen int) {
	bitmaskLen = types.NullBitmaskBytes(len(schema.Columns))
	offset = bitmaskLen
	for i := 0; i < col; i++ {
		offset += schema.Columns[i].Type.Width()
	}
	return offset, bitmaskLen
}

// IsNull reports whether column col is null in the row buffer.
func IsNull(schema *types.Schema, buf []byte, col int) bool {
	byteIdx := col / 8
	bitIdx := uint(col % 8)
	return (buf[byteIdx]>>bitIdx)&1 == 0
}

func setNullBit(buf []byte, col int, nonNull bool) {
	byteIdx := col / 8
	bitIdx := uint(col % 8)
	if nonNull {
		buf[byteIdx] |= 1 << bitIdx
	} else {
		buf[byteIdx] &^= 1 << bitIdx
	}
}

// WriteCell writes value into column col of the row buffer, setting or
// clearing its null bit accordingly.
func WriteCell(schema *types.Schema, buf []byte, col int, value types.Value) error {
	colType := schema.Columns[col].Type
	offset, _ := cellOffset(schema, col)
	width := colType.Width()
	cell := buf[offset : offset+width]

	if value.IsNull {
		setNullBit(buf, col, false)
		for i := range cell {
			cell[i] = 0
		}
		return nil
	}
	if value.Type != colType {
		return fmt.Errorf("%w: column %q expects %s, got %s", dberrors.ErrTypeMismatch, schema.Columns[col].Name, colType, value.Type)
	}

	switch colType {
	case types.Integer:
		binary.LittleEndian.PutUint64(cell, uint64(value.I))
	case types.Float:
		binary.LittleEndian.PutUint64(cell, math.Float64bits(value.F))
	case types.String:
		if len(value.S) > types.MaxStringLen {
			return fmt.Errorf("%w: %d bytes (max %d)", dberrors.ErrStringTooLong, len(value.S), types.MaxStringLen)
		}
		cell[0] = byte(len(value.S))
		for i := 1; i < len(cell); i++ {
			cell[i] = 0
		}
		copy(cell[1:], value.S)
	}
	setNullBit(buf, col, true)
	return nil
}

// ReadCell reads column col out of the row buffer.
func ReadCell(schema *types.Schema, buf []byte, col int) types.Value {
	colType := schema.Columns[col].Type
	if IsNull(schema, buf, col) {
		return types.Null(colType)
	}

	offset, _ := cellOffset(schema, col)
	width := colType.Width()
	cell := buf[offset : offset+width]

	switch colType {
	case types.Integer:
		return types.NewInt(int64(binary.LittleEndian.Uint64(cell)))
	case types.Float:
		return types.NewFloat(math.Float64frombits(binary.LittleEndian.Uint64(cell)))
	case types.String:
		n := int(cell[0])
		if n > len(cell)-1 {
			n = len(cell) - 1
		}
		return types.NewString(string(cell[1 : 1+n]))
	default:
		return types.Value{}
	}
}

// ReadRow decodes every column of the row buffer.
func ReadRow(schema *types.Schema, buf []byte) types.Row {
	row := make(types.Row, len(schema.Columns))
	for i := range schema.Columns {
		row[i] = ReadCell(schema, buf, i)
	}
	return row
}

// KeyBytes returns the fixed-width index-key encoding of a value: the
// exact column bytes excluding the null bit, used by internal/index.
// Integers and floats are their full 8-byte cell; strings are the full
// 256-byte cell (length byte + padded payload).
func KeyBytes(colType types.ColumnType, value types.Value) []byte {
	buf := make([]byte, colType.Width())
	switch colType {
	case types.Integer:
		binary.LittleEndian.PutUint64(buf, uint64(value.I))
	case types.Float:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(value.F))
	case types.String:
		buf[0] = byte(len(value.S))
		copy(buf[1:], value.S)
	}
	return buf
}
