// Package executor implements the Executor component of spec.md §4.7:
// it translates a parsed internal/sqlfront.Statement into calls against
// an open internal/table.Table, resolving "*" projections, building
// internal/predicate.Predicate values from a WHERE clause, and
// surfacing every lower-layer error unwrapped (spec.md §7: errors
// propagate verbatim, never swallowed or reinterpreted).
//
// Grounded on the teacher's internal/engine (DBEngine.Exec* dispatch
// over a parsed statement), generalized from the teacher's single
// fixed in-memory table to spec's catalog of named on-disk tables via
// the Store seam, so the executor itself stays storage-agnostic.
package executor

import (
	"fmt"

	"github.com/daniilsunyaev/yarrd/internal/dberrors"
	"github.com/daniilsunyaev/yarrd/internal/predicate"
	"github.com/daniilsunyaev/yarrd/internal/sqlfront"
	"github.com/daniilsunyaev/yarrd/internal/table"
	"github.com/daniilsunyaev/yarrd/internal/types"
)

// Store is the table registry an Executor drives. A connected database
// (internal/dbcatalog) implements it; the executor never touches a
// data or index file directly.
type Store interface {
	Table(name string) (*table.Table, error)
	CreateTable(schema *types.Schema) (*table.Table, error)
	DropTable(name string) error
	RenameTable(oldName, newName string) error
	AllTableNames() ([]string, error)
}

// Executor runs parsed statements against a Store.
type Executor struct {
	store Store
}

// New creates an Executor over store.
func New(store Store) *Executor {
	return &Executor{store: store}
}

// Execute runs one parsed statement. SELECT returns a non-nil
// *table.QueryResult; every other statement returns a nil result on
// success.
func (e *Executor) Execute(stmt sqlfront.Statement) (*table.QueryResult, error) {
	switch s := stmt.(type) {
	case *sqlfront.CreateTableStmt:
		return nil, e.execCreateTable(s)
	case *sqlfront.DropTableStmt:
		return nil, e.store.DropTable(s.TableName)
	case *sqlfront.InsertStmt:
		return nil, e.execInsert(s)
	case *sqlfront.SelectStmt:
		return e.execSelect(s)
	case *sqlfront.UpdateStmt:
		return nil, e.execUpdate(s)
	case *sqlfront.DeleteStmt:
		return nil, e.execDelete(s)
	case *sqlfront.AlterTableStmt:
		return nil, e.execAlter(s)
	case *sqlfront.VacuumStmt:
		return nil, e.execVacuum()
	case *sqlfront.CreateIndexStmt:
		return nil, e.execCreateIndex(s)
	case *sqlfront.DropIndexStmt:
		return nil, e.execDropIndex(s)
	default:
		return nil, fmt.Errorf("%w: unsupported statement %T", dberrors.ErrParse, stmt)
	}
}

func (e *Executor) execCreateTable(s *sqlfront.CreateTableStmt) error {
	cols := make([]types.Column, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = types.Column{Name: c.Name, Type: c.Type, Constraints: c.Constraints}
	}
	schema := &types.Schema{TableName: s.TableName, Columns: cols}
	_, err := e.store.CreateTable(schema)
	return err
}

func (e *Executor) execInsert(s *sqlfront.InsertStmt) error {
	t, err := e.store.Table(s.TableName)
	if err != nil {
		return err
	}
	return t.Insert(s.Columns, s.Values)
}

func (e *Executor) execSelect(s *sqlfront.SelectStmt) (*table.QueryResult, error) {
	t, err := e.store.Table(s.TableName)
	if err != nil {
		return nil, err
	}
	projection, err := resolveProjection(s.Projection, t.Schema())
	if err != nil {
		return nil, err
	}
	pred, err := toPredicate(s.Where)
	if err != nil {
		return nil, err
	}
	return t.Select(projection, pred)
}

func (e *Executor) execUpdate(s *sqlfront.UpdateStmt) error {
	t, err := e.store.Table(s.TableName)
	if err != nil {
		return err
	}
	assignments := make([]table.Assignment, len(s.Set))
	for i, set := range s.Set {
		assignments[i] = table.Assignment{Column: set.Column, Value: set.Value}
	}
	pred, err := toPredicate(s.Where)
	if err != nil {
		return err
	}
	_, err = t.Update(assignments, pred)
	return err
}

func (e *Executor) execDelete(s *sqlfront.DeleteStmt) error {
	t, err := e.store.Table(s.TableName)
	if err != nil {
		return err
	}
	pred, err := toPredicate(s.Where)
	if err != nil {
		return err
	}
	_, err = t.Delete(pred)
	return err
}

func (e *Executor) execAlter(s *sqlfront.AlterTableStmt) error {
	t, err := e.store.Table(s.TableName)
	if err != nil {
		return err
	}
	switch s.Action {
	case sqlfront.AlterRenameTable:
		if err := t.RenameTable(s.NewName); err != nil {
			return err
		}
		return e.store.RenameTable(s.TableName, s.NewName)
	case sqlfront.AlterRenameColumn:
		return t.RenameColumn(s.OldColumn, s.NewColumn)
	case sqlfront.AlterAddColumn:
		return t.AddColumn(types.Column{Name: s.Column.Name, Type: s.Column.Type, Constraints: s.Column.Constraints})
	case sqlfront.AlterDropColumn:
		return t.DropColumn(s.DropCol)
	case sqlfront.AlterAddConstraint:
		return t.AddConstraint(s.OldColumn, s.Constraint)
	case sqlfront.AlterDropConstraint:
		return t.DropConstraint(s.OldColumn, s.ConstraintOf)
	default:
		return fmt.Errorf("%w: unsupported ALTER TABLE action", dberrors.ErrParse)
	}
}

// execVacuum runs VACUUM against every table of the connected database:
// spec.md's grammar gives VACUUM no table-name argument, so it compacts
// the whole catalog rather than a single table.
func (e *Executor) execVacuum() error {
	names, err := e.store.AllTableNames()
	if err != nil {
		return err
	}
	for _, name := range names {
		t, err := e.store.Table(name)
		if err != nil {
			return err
		}
		if err := t.Vacuum(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) execCreateIndex(s *sqlfront.CreateIndexStmt) error {
	t, err := e.store.Table(s.TableName)
	if err != nil {
		return err
	}
	return t.CreateIndex(s.Column)
}

func (e *Executor) execDropIndex(s *sqlfront.DropIndexStmt) error {
	t, err := e.store.Table(s.TableName)
	if err != nil {
		return err
	}
	return t.DropIndex(s.Column)
}

// resolveProjection expands "*" into every schema column, in order,
// leaving any other name as an explicit repeat (spec.md §9: `SELECT
// *, id` repeats the column rather than being rejected).
func resolveProjection(projection []string, schema *types.Schema) ([]string, error) {
	if len(projection) == 0 {
		out := make([]string, len(schema.Columns))
		for i, c := range schema.Columns {
			out[i] = c.Name
		}
		return out, nil
	}
	var out []string
	for _, name := range projection {
		if name == "*" {
			for _, c := range schema.Columns {
				out = append(out, c.Name)
			}
			continue
		}
		if schema.ColumnIndex(name) < 0 {
			return nil, fmt.Errorf("%w: %q", dberrors.ErrUnknownColumn, name)
		}
		out = append(out, name)
	}
	return out, nil
}

func toPredicate(w *sqlfront.WhereClause) (*predicate.Predicate, error) {
	if w == nil {
		return nil, nil
	}
	return &predicate.Predicate{
		Column:       w.Column,
		IsNullTest:   w.IsNullTest,
		NegateIsNull: w.NegateIsNull,
		Op:           w.Op,
		Literal:      w.Literal,
	}, nil
}
