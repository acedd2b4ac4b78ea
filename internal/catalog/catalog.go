// Package catalog implements the Schema/catalog component of spec §4.6:
// the per-table header (magic, version, columns, constraints, index
// list) plus the free-list section, stored at the front of the table's
// data file ahead of the page-aligned row storage.
//
// Grounded on the teacher's internal/storage/filestore/format.go
// writeHeader/readHeader, generalized with constraints, an index list,
// a free-list section, and the in-place-if-it-fits/else-rewrite rule of
// spec §4.6 (the teacher always rewrites the whole file, since its rows
// are appended after a header it never resizes in place).
package catalog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	natomic "github.com/natefinch/atomic"

	"github.com/daniilsunyaev/yarrd/internal/dberrors"
	"github.com/daniilsunyaev/yarrd/internal/pager"
	"github.com/daniilsunyaev/yarrd/internal/types"
)

const (
	magic           = "YARD1"
	formatVersion   = 1
	preambleSize    = 16 // magic(5) + version(2) + reservedSize(4) + reserved(5)
	growthFactorPct = 200
)

// IndexRef is one entry of the catalog's index list.
type IndexRef struct {
	Column string
	Suffix string
}

// Header is the fully decoded contents of a table's header region.
type Header struct {
	Schema    *types.Schema
	Indexes   []IndexRef
	FreeList  []uint64
	MaxRowID  uint64
	Reserved  int // bytes reserved for the header body, read from the file
}

func encodeLiteral(v types.Value) []byte {
	var buf bytes.Buffer
	if v.IsNull {
		buf.WriteByte(1)
		return buf.Bytes()
	}
	buf.WriteByte(0)
	buf.WriteByte(byte(v.Type))
	switch v.Type {
	case types.Integer:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v.I))
		buf.Write(b[:])
	case types.Float:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v.F))
		buf.Write(b[:])
	case types.String:
		var lb [2]byte
		binary.LittleEndian.PutUint16(lb[:], uint16(len(v.S)))
		buf.Write(lb[:])
		buf.WriteString(v.S)
	}
	return buf.Bytes()
}

func decodeLiteral(r *bytes.Reader) (types.Value, error) {
	isNull, err := r.ReadByte()
	if err != nil {
		return types.Value{}, err
	}
	if isNull == 1 {
		return types.Value{IsNull: true}, nil
	}
	tb, err := r.ReadByte()
	if err != nil {
		return types.Value{}, err
	}
	t := types.ColumnType(tb)
	switch t {
	case types.Integer:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return types.Value{}, err
		}
		return types.NewInt(int64(binary.LittleEndian.Uint64(b[:]))), nil
	case types.Float:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return types.Value{}, err
		}
		return types.NewFloat(math.Float64frombits(binary.LittleEndian.Uint64(b[:]))), nil
	case types.String:
		var lb [2]byte
		if _, err := io.ReadFull(r, lb[:]); err != nil {
			return types.Value{}, err
		}
		n := binary.LittleEndian.Uint16(lb[:])
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return types.Value{}, err
		}
		return types.NewString(string(buf)), nil
	default:
		return types.Value{}, fmt.Errorf("%w: unknown literal type tag %d", dberrors.ErrCorruptData, tb)
	}
}

func encodeConstraint(c types.Constraint) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(c.Kind))
	switch c.Kind {
	case types.NotNull:
		// no payload
	case types.Default:
		buf.Write(encodeLiteral(c.Literal))
	case types.Check:
		nameBytes := []byte(c.CheckExpr.Column)
		var lb [2]byte
		binary.LittleEndian.PutUint16(lb[:], uint16(len(nameBytes)))
		buf.Write(lb[:])
		buf.Write(nameBytes)
		buf.WriteByte(byte(c.CheckExpr.Op))
		buf.Write(encodeLiteral(c.CheckExpr.Literal))
	}
	return buf.Bytes()
}

func decodeConstraint(r *bytes.Reader) (types.Constraint, error) {
	kb, err := r.ReadByte()
	if err != nil {
		return types.Constraint{}, err
	}
	kind := types.ConstraintKind(kb)
	c := types.Constraint{Kind: kind}
	switch kind {
	case types.NotNull:
	case types.Default:
		lit, err := decodeLiteral(r)
		if err != nil {
			return types.Constraint{}, err
		}
		c.Literal = lit
	case types.Check:
		var lb [2]byte
		if _, err := io.ReadFull(r, lb[:]); err != nil {
			return types.Constraint{}, err
		}
		n := binary.LittleEndian.Uint16(lb[:])
		nameBuf := make([]byte, n)
		if _, err := io.ReadFull(r, nameBuf); err != nil {
			return types.Constraint{}, err
		}
		opB, err := r.ReadByte()
		if err != nil {
			return types.Constraint{}, err
		}
		lit, err := decodeLiteral(r)
		if err != nil {
			return types.Constraint{}, err
		}
		c.CheckExpr = &types.CheckExpr{Column: string(nameBuf), Op: types.CompareOp(opB), Literal: lit}
	default:
		return types.Constraint{}, fmt.Errorf("%w: unknown constraint kind %d", dberrors.ErrCorruptData, kb)
	}
	return c, nil
}

// EncodeBody serializes the schema, index list, and free-list into the
// variable-length header body (everything after the 16-byte preamble).
func EncodeBody(schema *types.Schema, indexes []IndexRef, freeList []uint64, maxRowID uint64) []byte {
	var buf bytes.Buffer

	nameBytes := []byte(schema.TableName)
	writeU16(&buf, uint16(len(nameBytes)))
	buf.Write(nameBytes)

	writeU16(&buf, uint16(len(schema.Columns)))
	for _, c := range schema.Columns {
		cn := []byte(c.Name)
		writeU16(&buf, uint16(len(cn)))
		buf.Write(cn)
		buf.WriteByte(byte(c.Type))
		buf.WriteByte(byte(len(c.Constraints)))
		for _, cons := range c.Constraints {
			buf.Write(encodeConstraint(cons))
		}
	}

	writeU16(&buf, uint16(len(indexes)))
	for _, ix := range indexes {
		cb := []byte(ix.Column)
		writeU16(&buf, uint16(len(cb)))
		buf.Write(cb)
		sb := []byte(ix.Suffix)
		writeU16(&buf, uint16(len(sb)))
		buf.Write(sb)
	}

	var mrb [8]byte
	binary.LittleEndian.PutUint64(mrb[:], maxRowID)
	buf.Write(mrb[:])

	writeU64(&buf, uint64(len(freeList)))
	for _, s := range freeList {
		writeU64(&buf, s)
	}

	return buf.Bytes()
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

// DecodeBody parses EncodeBody's output.
func DecodeBody(body []byte) (*types.Schema, []IndexRef, []uint64, uint64, error) {
	r := bytes.NewReader(body)

	name, err := readString16(r)
	if err != nil {
		return nil, nil, nil, 0, err
	}

	var numColsB [2]byte
	if _, err := io.ReadFull(r, numColsB[:]); err != nil {
		return nil, nil, nil, 0, err
	}
	numCols := binary.LittleEndian.Uint16(numColsB[:])

	cols := make([]types.Column, numCols)
	for i := range cols {
		cn, err := readString16(r)
		if err != nil {
			return nil, nil, nil, 0, err
		}
		tb, err := r.ReadByte()
		if err != nil {
			return nil, nil, nil, 0, err
		}
		cc, err := r.ReadByte()
		if err != nil {
			return nil, nil, nil, 0, err
		}
		constraints := make([]types.Constraint, cc)
		for j := range constraints {
			cons, err := decodeConstraint(r)
			if err != nil {
				return nil, nil, nil, 0, err
			}
			constraints[j] = cons
		}
		cols[i] = types.Column{Name: cn, Type: types.ColumnType(tb), Constraints: constraints}
	}

	var numIdxB [2]byte
	if _, err := io.ReadFull(r, numIdxB[:]); err != nil {
		return nil, nil, nil, 0, err
	}
	numIdx := binary.LittleEndian.Uint16(numIdxB[:])
	indexes := make([]IndexRef, numIdx)
	for i := range indexes {
		col, err := readString16(r)
		if err != nil {
			return nil, nil, nil, 0, err
		}
		suf, err := readString16(r)
		if err != nil {
			return nil, nil, nil, 0, err
		}
		indexes[i] = IndexRef{Column: col, Suffix: suf}
	}

	var mrb [8]byte
	if _, err := io.ReadFull(r, mrb[:]); err != nil {
		return nil, nil, nil, 0, err
	}
	maxRowID := binary.LittleEndian.Uint64(mrb[:])

	var flCountB [8]byte
	if _, err := io.ReadFull(r, flCountB[:]); err != nil {
		return nil, nil, nil, 0, err
	}
	flCount := binary.LittleEndian.Uint64(flCountB[:])
	freeList := make([]uint64, flCount)
	for i := range freeList {
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, nil, nil, 0, err
		}
		freeList[i] = binary.LittleEndian.Uint64(b[:])
	}

	indexDecls := make([]types.IndexDecl, len(indexes))
	for i, ix := range indexes {
		indexDecls[i] = types.IndexDecl{Column: ix.Column}
	}

	schema := &types.Schema{TableName: name, Columns: cols, Indexes: indexDecls}
	return schema, indexes, freeList, maxRowID, nil
}

func readString16(r *bytes.Reader) (string, error) {
	var lb [2]byte
	if _, err := io.ReadFull(r, lb[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint16(lb[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// ReadPreamble reads the fixed 16-byte preamble and validates the magic.
func ReadPreamble(f *os.File) (reservedSize int, err error) {
	buf := make([]byte, preambleSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return 0, fmt.Errorf("%w: read preamble: %v", dberrors.ErrIO, err)
	}
	if string(buf[0:5]) != magic {
		return 0, fmt.Errorf("%w: bad table magic", dberrors.ErrCorruptData)
	}
	return int(binary.LittleEndian.Uint32(buf[7:11])), nil
}

func encodePreamble(reservedSize int) []byte {
	buf := make([]byte, preambleSize)
	copy(buf[0:5], magic)
	binary.LittleEndian.PutUint16(buf[5:7], formatVersion)
	binary.LittleEndian.PutUint32(buf[7:11], uint32(reservedSize))
	return buf
}

// PageAreaOffset returns the byte offset where 4 KiB pages begin, given
// a reserved header-body size.
func PageAreaOffset(reservedSize int) int64 {
	return int64(preambleSize + reservedSize)
}

// ReadHeader reads the preamble and header body from an already-open file.
func ReadHeader(f *os.File) (*Header, error) {
	reserved, err := ReadPreamble(f)
	if err != nil {
		return nil, err
	}
	body := make([]byte, reserved)
	if _, err := f.ReadAt(body, preambleSize); err != nil {
		return nil, fmt.Errorf("%w: read header body: %v", dberrors.ErrIO, err)
	}
	schema, indexes, freeList, maxRowID, err := DecodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("%w: decode header: %v", dberrors.ErrCorruptData, err)
	}
	return &Header{Schema: schema, Indexes: indexes, FreeList: freeList, MaxRowID: maxRowID, Reserved: reserved}, nil
}

// WriteNewFile creates a brand-new table data file with an empty page area.
func WriteNewFile(path string, schema *types.Schema, indexes []IndexRef) error {
	body := EncodeBody(schema, indexes, nil, 0)
	reserved := len(body) * growthFactorPct / 100
	if reserved < len(body) {
		reserved = len(body)
	}
	padded := make([]byte, reserved)
	copy(padded, body)

	var out bytes.Buffer
	out.Write(encodePreamble(reserved))
	out.Write(padded)
	return os.WriteFile(path, out.Bytes(), 0o644)
}

// WriteInPlace rewrites the header body within its existing reserved
// space; the caller must have already verified the new body fits.
func WriteInPlace(f *os.File, reservedSize int, schema *types.Schema, indexes []IndexRef, freeList []uint64, maxRowID uint64) error {
	body := EncodeBody(schema, indexes, freeList, maxRowID)
	if len(body) > reservedSize {
		return fmt.Errorf("catalog: header body %d exceeds reserved %d", len(body), reservedSize)
	}
	padded := make([]byte, reservedSize)
	copy(padded, body)
	if _, err := f.WriteAt(padded, preambleSize); err != nil {
		return fmt.Errorf("%w: write header in place: %v", dberrors.ErrIO, err)
	}
	return nil
}

// RewriteWholeFile grows the reserved header size and rewrites the
// entire table file (new header + every page up through maxPageIndex),
// swapping it in atomically via natefinch/atomic so a crash mid-rewrite
// leaves either the old or the new file intact.
func RewriteWholeFile(path string, pgr *pager.Pager, oldPageAreaOffset int64, maxPageIndex int, schema *types.Schema, indexes []IndexRef, freeList []uint64, maxRowID uint64) error {
	body := EncodeBody(schema, indexes, freeList, maxRowID)
	newReserved := len(body) * growthFactorPct / 100
	if newReserved < len(body) {
		newReserved = len(body)
	}
	padded := make([]byte, newReserved)
	copy(padded, body)

	if err := pgr.FlushAll(); err != nil {
		return err
	}

	var out bytes.Buffer
	out.Write(encodePreamble(newReserved))
	out.Write(padded)

	for i := 0; i <= maxPageIndex; i++ {
		pg, err := pgr.Get(i)
		if err != nil {
			return err
		}
		out.Write(pg.Buf)
	}

	if err := natomic.WriteFile(path, bytes.NewReader(out.Bytes())); err != nil {
		return fmt.Errorf("%w: rewrite table file: %v", dberrors.ErrIO, err)
	}
	_ = oldPageAreaOffset
	return nil
}
