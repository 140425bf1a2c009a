package background

import (
	"context"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestIndex(t *testing.T) (*Index, string) {
	t.Helper()
	dir := writeSet(t)

	set, err := Resolve(dir, "", "", "", "", "sequence_name")
	require.NoError(t, err)

	dbPath := IndexPath(dir)
	n, err := set.BuildIndex(context.Background(), dbPath)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ix, err := OpenIndex(dbPath, "sequence_name")
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })
	return ix, dir
}

func TestIndexHeader(t *testing.T) {
	ix, _ := buildTestIndex(t)
	assert.Equal(t, []string{"sequence_name", "lineage", "country", "sample_date"}, ix.Header())
}

func TestIndexLookup(t *testing.T) {
	ix, _ := buildTestIndex(t)

	rows, err := ix.Lookup(context.Background(), []string{"SEQ001", "SEQ003", "MISSING"})
	require.NoError(t, err)

	require.Len(t, rows, 2)
	got := map[string]Row{}
	for _, r := range rows {
		got[r["sequence_name"]] = r
	}
	assert.Equal(t, "B.1", got["SEQ001"]["lineage"])
	assert.Equal(t, "Wales", got["SEQ003"]["country"])
}

func TestIndexSearch(t *testing.T) {
	ix, _ := buildTestIndex(t)

	rows, err := ix.Search(context.Background(), []SearchTerm{
		{Column: "sample_date", Lo: "2020-03-01", Hi: "2020-03-31", Range: true},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	rows, err = ix.Search(context.Background(), []SearchTerm{
		{Column: "country", Value: "Wales"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "SEQ003", rows[0]["sequence_name"])
}

func TestIndexSearchUnknownColumn(t *testing.T) {
	ix, _ := buildTestIndex(t)

	_, err := ix.Search(context.Background(), []SearchTerm{{Column: "adm2", Value: "Edinburgh"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adm2")
}

func TestBuildIndexReplacesStale(t *testing.T) {
	_, dir := buildTestIndex(t)

	set, err := Resolve(dir, "", "", "", "", "sequence_name")
	require.NoError(t, err)

	// Rebuilding over an existing index must not fail or duplicate rows.
	n, err := set.BuildIndex(context.Background(), path.Join(dir, indexFile))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
