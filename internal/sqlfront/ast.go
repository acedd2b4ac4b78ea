package sqlfront

import "github.com/daniilsunyaev/yarrd/internal/types"

// Statement is the common interface every parsed SQL form satisfies.
type Statement interface {
	stmtNode()
}

// ColumnDef is one column entry of a CREATE TABLE's column list.
type ColumnDef struct {
	Name        string
	Type        types.ColumnType
	Constraints []types.Constraint
}

// CreateTableStmt is `CREATE TABLE name (col type [NOT NULL] [DEFAULT lit] [CHECK expr], ...)`.
type CreateTableStmt struct {
	TableName string
	Columns   []ColumnDef
}

// DropTableStmt is `DROP TABLE name`.
type DropTableStmt struct {
	TableName string
}

// InsertStmt is `INSERT INTO name (cols) VALUES (vals)`; Columns is nil
// when the column list was omitted (positional insert).
type InsertStmt struct {
	TableName string
	Columns   []string
	Values    []types.Value
}

// WhereClause is the single `col op literal` or `col IS [NOT] NULL` test
// a statement's WHERE clause carries. Nil means no WHERE clause.
type WhereClause struct {
	Column       string
	IsNullTest   bool
	NegateIsNull bool
	Op           types.CompareOp
	Literal      types.Value
}

// SelectStmt is `SELECT projlist FROM name [WHERE ...]`.
type SelectStmt struct {
	TableName  string
	Projection []string // nil/empty means "*"
	Where      *WhereClause
}

// SetClause is one `column = value` pair of an UPDATE's SET list.
type SetClause struct {
	Column string
	Value  types.Value
}

// UpdateStmt is `UPDATE name SET col=val[, ...] [WHERE ...]`.
type UpdateStmt struct {
	TableName string
	Set       []SetClause
	Where     *WhereClause
}

// DeleteStmt is `DELETE FROM name [WHERE ...]`.
type DeleteStmt struct {
	TableName string
	Where     *WhereClause
}

// AlterAction enumerates the ALTER TABLE sub-forms of spec.md §6.
type AlterAction int

const (
	AlterRenameTable AlterAction = iota
	AlterRenameColumn
	AlterAddColumn
	AlterDropColumn
	AlterAddConstraint
	AlterDropConstraint
)

// AlterTableStmt is `ALTER TABLE name <action>`.
type AlterTableStmt struct {
	TableName string
	Action    AlterAction

	NewName      string // RenameTable
	OldColumn    string // RenameColumn, AddConstraint, DropConstraint
	NewColumn    string // RenameColumn
	Column       ColumnDef // AddColumn
	DropCol      string    // DropColumn
	Constraint   types.Constraint
	ConstraintOf types.ConstraintKind // DropConstraint
}

// VacuumStmt is `VACUUM`.
type VacuumStmt struct{}

// CreateIndexStmt is `CREATE INDEX ON name (col)`.
type CreateIndexStmt struct {
	TableName string
	Column    string
}

// DropIndexStmt is `DROP INDEX ON name (col)`.
type DropIndexStmt struct {
	TableName string
	Column    string
}

func (*CreateTableStmt) stmtNode() {}
func (*DropTableStmt) stmtNode()   {}
func (*InsertStmt) stmtNode()      {}
func (*SelectStmt) stmtNode()      {}
func (*UpdateStmt) stmtNode()      {}
func (*DeleteStmt) stmtNode()      {}
func (*AlterTableStmt) stmtNode()  {}
func (*VacuumStmt) stmtNode()      {}
func (*CreateIndexStmt) stmtNode() {}
func (*DropIndexStmt) stmtNode()   {}
