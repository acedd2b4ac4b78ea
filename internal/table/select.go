package table

import (
	"fmt"

	"github.com/daniilsunyaev/yarrd/internal/dberrors"
	"github.com/daniilsunyaev/yarrd/internal/predicate"
	"github.com/daniilsunyaev/yarrd/internal/rowcodec"
	"github.com/daniilsunyaev/yarrd/internal/types"
)

// QueryResult is the materialized result of a SELECT.
type QueryResult struct {
	ColumnNames []string
	ColumnTypes []types.ColumnType
	Rows        []types.Row
}

// Select projects the given columns (already resolved — no "*" — by the
// executor) from every row matching pred. If pred is an equality test on
// an indexed column, the index is consulted instead of a full scan.
func (t *Table) Select(projection []string, pred *predicate.Predicate) (*QueryResult, error) {
	colIdx := make([]int, len(projection))
	for i, name := range projection {
		idx := t.schema.ColumnIndex(name)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %q", dberrors.ErrUnknownColumn, name)
		}
		colIdx[i] = idx
	}

	result := &QueryResult{ColumnNames: projection}
	for _, idx := range colIdx {
		result.ColumnTypes = append(result.ColumnTypes, t.schema.Columns[idx].Type)
	}

	emit := func(r types.Row) {
		projected := make(types.Row, len(colIdx))
		for i, idx := range colIdx {
			projected[i] = r[idx]
		}
		result.Rows = append(result.Rows, projected)
	}

	if column, literal, ok := predicate.EqualityColumn(pred); ok && t.schema.HasIndex(column) {
		slots, err := t.lookupByIndex(column, literal)
		if err != nil {
			return nil, err
		}
		seen := make(map[uint64]bool, len(slots))
		for _, slot := range slots {
			if seen[slot] || t.isFree(slot) {
				continue
			}
			seen[slot] = true
			r, err := t.readRowAt(slot)
			if err != nil {
				return nil, err
			}
			if predicate.Eval(pred, t.schema, r) {
				emit(r)
			}
		}
		return result, nil
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
			emit(r)
		}
	}
	return result, nil
}

func (t *Table) lookupByIndex(column string, literal types.Value) ([]uint64, error) {
	idx, ok := t.indexMgr.Get(t.schema.TableName, column)
	if !ok {
		return nil, fmt.Errorf("%w: index on %q", dberrors.ErrUnknownIndex, column)
	}
	colType := t.schema.Columns[t.schema.ColumnIndex(column)].Type
	return idx.Lookup(rowcodec.KeyBytes(colType, literal))
}
