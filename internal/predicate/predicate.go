// Package predicate implements the single-conjunct WHERE clause
// evaluation of spec §4.4: three-valued comparisons collapsed to a
// simple boolean (any comparison touching Null excludes the row), plus
// IS [NOT] NULL as the only Null-aware operator.
package predicate

import (
	"github.com/daniilsunyaev/yarrd/internal/types"
)

// Predicate is either a Compare or an IsNull test against one column.
// A nil *Predicate matches every row (no WHERE clause).
type Predicate struct {
	Column string

	IsNullTest    bool
	NegateIsNull  bool // IS NOT NULL

	Op      types.CompareOp
	Literal types.Value
}

// Eval evaluates p against one row of schema. Comparisons against Null,
// or across mismatched types, always return false (spec §4.4, §9).
func Eval(p *Predicate, schema *types.Schema, row types.Row) bool {
	if p == nil {
		return true
	}
	col := schema.ColumnIndex(p.Column)
	if col < 0 {
		return false
	}
	v := row[col]

	if p.IsNullTest {
		if p.NegateIsNull {
			return !v.IsNull
		}
		return v.IsNull
	}

	if v.IsNull || p.Literal.IsNull {
		return false
	}
	if v.Type != p.Literal.Type {
		return false
	}

	switch v.Type {
	case types.Integer:
		return compareInt(v.I, p.Op, p.Literal.I)
	case types.Float:
		return compareFloat(v.F, p.Op, p.Literal.F)
	case types.String:
		return compareString(v.S, p.Op, p.Literal.S)
	default:
		return false
	}
}

func compareInt(a int64, op types.CompareOp, b int64) bool {
	switch op {
	case types.Eq:
		return a == b
	case types.Neq:
		return a != b
	case types.Lt:
		return a < b
	case types.Lte:
		return a <= b
	case types.Gt:
		return a > b
	case types.Gte:
		return a >= b
	default:
		return false
	}
}

func compareFloat(a float64, op types.CompareOp, b float64) bool {
	switch op {
	case types.Eq:
		return a == b
	case types.Neq:
		return a != b
	case types.Lt:
		return a < b
	case types.Lte:
		return a <= b
	case types.Gt:
		return a > b
	case types.Gte:
		return a >= b
	default:
		return false
	}
}

func compareString(a string, op types.CompareOp, b string) bool {
	switch op {
	case types.Eq:
		return a == b
	case types.Neq:
		return a != b
	case types.Lt:
		return a < b
	case types.Lte:
		return a <= b
	case types.Gt:
		return a > b
	case types.Gte:
		return a >= b
	default:
		return false
	}
}

// EqualityColumn returns the column and literal of an indexable equality
// predicate (`col = literal`), or ok=false if p isn't exactly that shape.
func EqualityColumn(p *Predicate) (column string, literal types.Value, ok bool) {
	if p == nil || p.IsNullTest || p.Op != types.Eq || p.Literal.IsNull {
		return "", types.Value{}, false
	}
	return p.Column, p.Literal, true
}
