package table

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/daniilsunyaev/yarrd/internal/dberrors"
	"github.com/daniilsunyaev/yarrd/internal/predicate"
	"github.com/daniilsunyaev/yarrd/internal/types"
)

func usersSchema() *types.Schema {
	return &types.Schema{
		TableName: "users",
		Columns: []types.Column{
			{Name: "id", Type: types.Integer},
			{Name: "name", Type: types.String, Constraints: []types.Constraint{{Kind: types.NotNull}}},
			{Name: "balance", Type: types.Float, Constraints: []types.Constraint{{Kind: types.Default, Literal: types.NewFloat(0)}}},
		},
	}
}

func TestCreateInsertSelect(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Create(dir, usersSchema())
	require.NoError(t, err)
	defer tbl.Close()

	require.NoError(t, tbl.Insert(nil, []types.Value{types.NewInt(1), types.NewString("Alice"), types.NewFloat(10.5)}))
	require.NoError(t, tbl.Insert(nil, []types.Value{types.NewInt(2), types.NewString("Bob"), types.NewFloat(0)}))

	res, err := tbl.Select([]string{"id", "name", "balance"}, nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)

	want := []types.Row{
		{types.NewInt(1), types.NewString("Alice"), types.NewFloat(10.5)},
		{types.NewInt(2), types.NewString("Bob"), types.NewFloat(0)},
	}
	if diff := cmp.Diff(want, res.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestInsertMissingNotNullDefaultsFilled(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Create(dir, usersSchema())
	require.NoError(t, err)
	defer tbl.Close()

	require.NoError(t, tbl.Insert([]string{"id", "name"}, []types.Value{types.NewInt(1), types.NewString("Alice")}))

	res, err := tbl.Select([]string{"balance"}, nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Equal(t, types.NewFloat(0), res.Rows[0][0])
}

func TestInsertNotNullViolation(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Create(dir, usersSchema())
	require.NoError(t, err)
	defer tbl.Close()

	err = tbl.Insert(nil, []types.Value{types.NewInt(1), types.Null(types.String), types.NewFloat(0)})
	require.ErrorIs(t, err, dberrors.ErrNotNullViolation)
}

func TestUpdateAndDeleteWithWhere(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Create(dir, usersSchema())
	require.NoError(t, err)
	defer tbl.Close()

	require.NoError(t, tbl.Insert(nil, []types.Value{types.NewInt(1), types.NewString("Alice"), types.NewFloat(10)}))
	require.NoError(t, tbl.Insert(nil, []types.Value{types.NewInt(2), types.NewString("Bob"), types.NewFloat(20)}))

	pred := &predicate.Predicate{Column: "id", Op: types.Eq, Literal: types.NewInt(1)}
	n, err := tbl.Update([]Assignment{{Column: "balance", Value: types.NewFloat(99)}}, pred)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	res, err := tbl.Select([]string{"balance"}, pred)
	require.NoError(t, err)
	require.Equal(t, types.NewFloat(99), res.Rows[0][0])

	n, err = tbl.Delete(pred)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	res, err = tbl.Select([]string{"id"}, nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Equal(t, types.NewInt(2), res.Rows[0][0])
}

func TestDeleteFreesSlotForReuse(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Create(dir, usersSchema())
	require.NoError(t, err)
	defer tbl.Close()

	require.NoError(t, tbl.Insert(nil, []types.Value{types.NewInt(1), types.NewString("Alice"), types.NewFloat(0)}))
	_, err = tbl.Delete(&predicate.Predicate{Column: "id", Op: types.Eq, Literal: types.NewInt(1)})
	require.NoError(t, err)
	require.NoError(t, tbl.Insert(nil, []types.Value{types.NewInt(2), types.NewString("Bob"), types.NewFloat(0)}))

	require.Len(t, tbl.freeList, 0)
	require.Equal(t, uint64(1), tbl.maxRowID)
}

func TestCreateAndDropIndexBackfillsAndLookup(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Create(dir, usersSchema())
	require.NoError(t, err)
	defer tbl.Close()

	require.NoError(t, tbl.Insert(nil, []types.Value{types.NewInt(1), types.NewString("Alice"), types.NewFloat(0)}))
	require.NoError(t, tbl.Insert(nil, []types.Value{types.NewInt(2), types.NewString("Bob"), types.NewFloat(0)}))
	require.NoError(t, tbl.CreateIndex("name"))
	require.True(t, tbl.Schema().HasIndex("name"))

	res, err := tbl.Select([]string{"id"}, &predicate.Predicate{Column: "name", Op: types.Eq, Literal: types.NewString("Bob")})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Equal(t, types.NewInt(2), res.Rows[0][0])

	require.NoError(t, tbl.DropIndex("name"))
	require.False(t, tbl.Schema().HasIndex("name"))
}

func TestVacuumCompactsFreeList(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Create(dir, usersSchema())
	require.NoError(t, err)
	defer tbl.Close()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, tbl.Insert(nil, []types.Value{types.NewInt(i), types.NewString("n"), types.NewFloat(0)}))
	}
	_, err = tbl.Delete(&predicate.Predicate{Column: "id", Op: types.Eq, Literal: types.NewInt(2)})
	require.NoError(t, err)
	require.NotEmpty(t, tbl.freeList)

	require.NoError(t, tbl.Vacuum())
	require.Empty(t, tbl.freeList)
	require.Equal(t, uint64(2), tbl.maxRowID)

	res, err := tbl.Select([]string{"id"}, nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
}

func TestAddColumnThenDropColumnRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Create(dir, usersSchema())
	require.NoError(t, err)
	defer tbl.Close()

	require.NoError(t, tbl.Insert(nil, []types.Value{types.NewInt(1), types.NewString("Alice"), types.NewFloat(0)}))

	require.NoError(t, tbl.AddColumn(types.Column{
		Name: "active", Type: types.Integer,
		Constraints: []types.Constraint{{Kind: types.Default, Literal: types.NewInt(1)}},
	}))
	res, err := tbl.Select([]string{"active"}, nil)
	require.NoError(t, err)
	require.Equal(t, types.NewInt(1), res.Rows[0][0])

	require.NoError(t, tbl.DropColumn("active"))
	require.Equal(t, -1, tbl.Schema().ColumnIndex("active"))
}

func TestRenameTableAndColumn(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Create(dir, usersSchema())
	require.NoError(t, err)
	defer tbl.Close()

	require.NoError(t, tbl.RenameColumn("name", "full_name"))
	require.Equal(t, -1, tbl.Schema().ColumnIndex("name"))
	require.GreaterOrEqual(t, tbl.Schema().ColumnIndex("full_name"), 0)

	require.NoError(t, tbl.RenameTable("people"))
	require.Equal(t, "people", tbl.Schema().TableName)
}
