package connector

import (
	"context"
	"path/filepath"
	"testing"

	tgerrors "github.com/maxkimambo/taskgraph/internal/errors"
	"github.com/maxkimambo/taskgraph/internal/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openWarehouse(t *testing.T) *Set {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "warehouse.db")
	set, err := Open(context.Background(), map[string]project.ConnectorConfig{
		"warehouse": {Driver: "sqlite", DSN: dsn, MaxOpenConns: 1},
	})
	require.NoError(t, err)
	t.Cleanup(func() { set.Close() })
	return set
}

func TestQueryAndExec(t *testing.T) {
	ctx := context.Background()
	set := openWarehouse(t)

	_, err := set.Exec(ctx, "warehouse", `CREATE TABLE sales (region TEXT, amount INTEGER)`)
	require.NoError(t, err)

	n, err := set.Exec(ctx, "warehouse", `INSERT INTO sales VALUES (?, ?), (?, ?)`, "emea", 10, "apac", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rows, err := set.Query(ctx, "warehouse", `SELECT region, amount FROM sales ORDER BY region`)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "apac", rows[0]["region"])
	assert.Equal(t, int64(7), rows[0]["amount"])

	assert.Equal(t, []string{"warehouse"}, set.Names())
}

func TestUnknownConnector(t *testing.T) {
	set := openWarehouse(t)

	_, err := set.Query(context.Background(), "lake", "SELECT 1")
	require.Error(t, err)
	assert.True(t, tgerrors.IsCategory(err, tgerrors.ErrorCategoryConfiguration))

	var empty *Set
	_, err = empty.DB("warehouse")
	assert.Error(t, err)
	assert.NoError(t, empty.Close())
	assert.Nil(t, empty.Names())
}

func TestOpenFailsOnUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), map[string]project.ConnectorConfig{
		"bad": {Driver: "nosuchdriver", DSN: "x"},
	})
	require.Error(t, err)

	pe, ok := tgerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, tgerrors.CodeConnectorOpen, pe.Code)
}

func TestCloseEmptiesSet(t *testing.T) {
	set := openWarehouse(t)

	require.NoError(t, set.Close())
	assert.Empty(t, set.Names())
}
