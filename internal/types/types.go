// Package types defines the logical data model shared by every layer of
// yarrd: column types, runtime values, constraints and the table schema
// they compose into.
package types

import "fmt"

// ColumnType is the logical type of a column's values.
type ColumnType uint8

const (
	Integer ColumnType = iota
	Float
	String
)

// Width returns the fixed on-disk width in bytes for the type.
func (t ColumnType) Width() int {
	switch t {
	case Integer:
		return 8
	case Float:
		return 8
	case String:
		return 1 + MaxStringLen
	default:
		return 0
	}
}

func (t ColumnType) String() string {
	switch t {
	case Integer:
		return "INTEGER"
	case Float:
		return "FLOAT"
	case String:
		return "STRING"
	default:
		return fmt.Sprintf("ColumnType(%d)", uint8(t))
	}
}

// MaxStringLen is the maximum payload length of a String value.
const MaxStringLen = 255

// Value is a single typed cell. IsNull, when true, makes the rest of the
// struct meaningless; callers must check IsNull before reading I/F/S.
type Value struct {
	Type   ColumnType
	IsNull bool
	I      int64
	F      float64
	S      string
}

// Null constructs a null value of the given type.
func Null(t ColumnType) Value { return Value{Type: t, IsNull: true} }

// NewInt constructs a non-null Integer value.
func NewInt(i int64) Value { return Value{Type: Integer, I: i} }

// NewFloat constructs a non-null Float value.
func NewFloat(f float64) Value { return Value{Type: Float, F: f} }

// NewString constructs a non-null String value.
func NewString(s string) Value { return Value{Type: String, S: s} }

// ConstraintKind enumerates the constraint forms a column may carry.
type ConstraintKind uint8

const (
	NotNull ConstraintKind = iota
	Default
	Check
)

func (k ConstraintKind) String() string {
	switch k {
	case NotNull:
		return "NOT NULL"
	case Default:
		return "DEFAULT"
	case Check:
		return "CHECK"
	default:
		return fmt.Sprintf("ConstraintKind(%d)", uint8(k))
	}
}

// CompareOp enumerates the predicate comparators supported by WHERE clauses.
type CompareOp uint8

const (
	Eq CompareOp = iota
	Neq
	Lt
	Lte
	Gt
	Gte
)

func (op CompareOp) String() string {
	switch op {
	case Eq:
		return "="
	case Neq:
		return "<>"
	case Lt:
		return "<"
	case Lte:
		return "<="
	case Gt:
		return ">"
	case Gte:
		return ">="
	default:
		return fmt.Sprintf("CompareOp(%d)", uint8(op))
	}
}

// Constraint attaches one rule to a column. Default carries its literal in
// Literal; Check carries a predicate expression in CheckExpr.
type Constraint struct {
	Kind      ConstraintKind
	Literal   Value
	CheckExpr *CheckExpr
}

// CheckExpr is a single `column op literal` predicate, the only form
// CHECK(...) supports.
type CheckExpr struct {
	Column  string
	Op      CompareOp
	Literal Value
}

// Column describes one declared column of a table.
type Column struct {
	Name        string
	Type        ColumnType
	Constraints []Constraint
}

// NotNull reports whether the column carries a NOT NULL constraint.
func (c Column) NotNull() bool {
	for _, cons := range c.Constraints {
		if cons.Kind == NotNull {
			return true
		}
	}
	return false
}

// DefaultValue returns the column's DEFAULT literal, if any.
func (c Column) DefaultValue() (Value, bool) {
	for _, cons := range c.Constraints {
		if cons.Kind == Default {
			return cons.Literal, true
		}
	}
	return Value{}, false
}

// CheckExprs returns every CHECK predicate attached to the column.
func (c Column) CheckExprs() []*CheckExpr {
	var out []*CheckExpr
	for _, cons := range c.Constraints {
		if cons.Kind == Check && cons.CheckExpr != nil {
			out = append(out, cons.CheckExpr)
		}
	}
	return out
}

// IndexDecl declares a hash index over one column.
type IndexDecl struct {
	Column string
}

// Schema is the ordered column list plus declared indexes of one table.
type Schema struct {
	TableName string
	Columns   []Column
	Indexes   []IndexDecl
}

// ColumnIndex returns the position of name in the schema, or -1.
func (s *Schema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// HasIndex reports whether column has a declared index.
func (s *Schema) HasIndex(column string) bool {
	for _, ix := range s.Indexes {
		if ix.Column == column {
			return true
		}
	}
	return false
}

// NullBitmaskBytes returns the number of leading bytes used by the null
// bitmask for a schema with this many columns (rounds up to 1 byte when
// there are 8 or fewer columns, per spec).
func NullBitmaskBytes(numCols int) int {
	if numCols <= 8 {
		return 1
	}
	return (numCols + 7) / 8
}

// RowWidth returns the fixed on-disk row width R for the schema.
func (s *Schema) RowWidth() int {
	w := NullBitmaskBytes(len(s.Columns))
	for _, c := range s.Columns {
		w += c.Type.Width()
	}
	return w
}

// Row is one record: one Value per schema column, in declaration order.
type Row []Value
