package sqlfront

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daniilsunyaev/yarrd/internal/dberrors"
	"github.com/daniilsunyaev/yarrd/internal/types"
)

func TestParseCreateTableWithConstraints(t *testing.T) {
	stmt, err := Parse(`CREATE TABLE users (id INTEGER, name STRING NOT NULL, balance FLOAT DEFAULT 0.0)`)
	require.NoError(t, err)

	ct, ok := stmt.(*CreateTableStmt)
	require.True(t, ok)
	require.Equal(t, "users", ct.TableName)
	require.Len(t, ct.Columns, 3)
	require.Equal(t, "name", ct.Columns[1].Name)
	require.True(t, ct.Columns[1].Constraints[0].Kind == types.NotNull)
	require.Equal(t, types.NewFloat(0.0), ct.Columns[2].Constraints[0].Literal)
}

func TestParseInsertPositionalAndNamed(t *testing.T) {
	stmt, err := Parse(`INSERT INTO users VALUES (1, "Alice", 10.5)`)
	require.NoError(t, err)
	ins := stmt.(*InsertStmt)
	require.Nil(t, ins.Columns)
	require.Equal(t, []types.Value{types.NewInt(1), types.NewString("Alice"), types.NewFloat(10.5)}, ins.Values)

	stmt, err = Parse(`INSERT INTO users (id, name) VALUES (1, "Alice")`)
	require.NoError(t, err)
	ins = stmt.(*InsertStmt)
	require.Equal(t, []string{"id", "name"}, ins.Columns)
}

func TestParseSelectStarRepeatsColumn(t *testing.T) {
	stmt, err := Parse(`SELECT *, id FROM users`)
	require.NoError(t, err)
	sel := stmt.(*SelectStmt)
	require.Equal(t, []string{"*", "id"}, sel.Projection)
}

func TestParseSelectWhereIsNotNull(t *testing.T) {
	stmt, err := Parse(`SELECT id FROM users WHERE name IS NOT NULL`)
	require.NoError(t, err)
	sel := stmt.(*SelectStmt)
	require.NotNil(t, sel.Where)
	require.True(t, sel.Where.IsNullTest)
	require.True(t, sel.Where.NegateIsNull)
}

func TestParseSelectWhereCompare(t *testing.T) {
	stmt, err := Parse(`SELECT id FROM users WHERE balance >= 10.5`)
	require.NoError(t, err)
	sel := stmt.(*SelectStmt)
	require.Equal(t, types.Gte, sel.Where.Op)
	require.Equal(t, types.NewFloat(10.5), sel.Where.Literal)
}

func TestParseUpdateAndDelete(t *testing.T) {
	stmt, err := Parse(`UPDATE users SET balance = 0, name = "Bob" WHERE id = 1`)
	require.NoError(t, err)
	upd := stmt.(*UpdateStmt)
	require.Len(t, upd.Set, 2)
	require.Equal(t, "balance", upd.Set[0].Column)

	stmt, err = Parse(`DELETE FROM users WHERE id = 1`)
	require.NoError(t, err)
	del := stmt.(*DeleteStmt)
	require.Equal(t, "users", del.TableName)
}

func TestParseAlterTableForms(t *testing.T) {
	stmt, err := Parse(`ALTER TABLE users RENAME TO people`)
	require.NoError(t, err)
	alt := stmt.(*AlterTableStmt)
	require.Equal(t, AlterRenameTable, alt.Action)
	require.Equal(t, "people", alt.NewName)

	stmt, err = Parse(`ALTER TABLE users RENAME COLUMN name TO full_name`)
	require.NoError(t, err)
	alt = stmt.(*AlterTableStmt)
	require.Equal(t, AlterRenameColumn, alt.Action)
	require.Equal(t, "full_name", alt.NewColumn)

	stmt, err = Parse(`ALTER TABLE users ADD active INTEGER DEFAULT 1`)
	require.NoError(t, err)
	alt = stmt.(*AlterTableStmt)
	require.Equal(t, AlterAddColumn, alt.Action)
	require.Equal(t, "active", alt.Column.Name)

	stmt, err = Parse(`ALTER TABLE users DROP COLUMN active`)
	require.NoError(t, err)
	alt = stmt.(*AlterTableStmt)
	require.Equal(t, AlterDropColumn, alt.Action)
	require.Equal(t, "active", alt.DropCol)

	stmt, err = Parse(`ALTER TABLE users ADD CONSTRAINT NOT_NULL (name)`)
	require.NoError(t, err)
	alt = stmt.(*AlterTableStmt)
	require.Equal(t, AlterAddConstraint, alt.Action)
	require.Equal(t, types.NotNull, alt.Constraint.Kind)

	stmt, err = Parse(`ALTER TABLE users DROP CONSTRAINT NOT_NULL (name)`)
	require.NoError(t, err)
	alt = stmt.(*AlterTableStmt)
	require.Equal(t, AlterDropConstraint, alt.Action)
	require.Equal(t, types.NotNull, alt.ConstraintOf)
}

func TestParseVacuumAndIndexStatements(t *testing.T) {
	stmt, err := Parse(`VACUUM`)
	require.NoError(t, err)
	_, ok := stmt.(*VacuumStmt)
	require.True(t, ok)

	stmt, err = Parse(`CREATE INDEX ON users (name)`)
	require.NoError(t, err)
	ci := stmt.(*CreateIndexStmt)
	require.Equal(t, "users", ci.TableName)
	require.Equal(t, "name", ci.Column)

	stmt, err = Parse(`DROP INDEX ON users (name)`)
	require.NoError(t, err)
	di := stmt.(*DropIndexStmt)
	require.Equal(t, "name", di.Column)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse(`SELECT FROM WHERE`)
	require.ErrorIs(t, err, dberrors.ErrParse)

	_, err = Parse(``)
	require.ErrorIs(t, err, dberrors.ErrParse)
}

func TestParseKeywordsCaseInsensitive(t *testing.T) {
	stmt, err := Parse(`select id from users where id = 1`)
	require.NoError(t, err)
	_, ok := stmt.(*SelectStmt)
	require.True(t, ok)
}
