package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kagami/internal/models"
	"github.com/hyperjump/kagami/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const root = "/data/images"

func testStore(t *testing.T, paths ...string) *vectorstore.Store {
	t.Helper()
	s := vectorstore.New(2)
	for i, p := range paths {
		require.NoError(t, s.Append([]float32{float32(i), 1}, models.SourceRecord{CanonicalPath: p}))
	}
	return s
}

func newTestCatalog(t *testing.T, s *vectorstore.Store) *Catalog {
	t.Helper()
	c, err := NewMemOnly(root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Rebuild(context.Background(), s))
	return c
}

func TestCatalog_SearchByFilenameWords(t *testing.T) {
	s := testStore(t,
		root+"/golden_retriever/golden_retriever_01.jpg",
		root+"/tabby_cat/tabby-cat-02.png",
		root+"/golden_retriever/puppy.jpg",
	)
	c := newTestCatalog(t, s)
	ctx := context.Background()

	results, err := c.Search(ctx, Query{Text: "tabby"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Row)
	assert.Equal(t, "tabby-cat-02.png", results[0].Filename)
	assert.Equal(t, "tabby_cat", results[0].Class)

	// Class words match images whose filename does not mention them.
	results, err = c.Search(ctx, Query{Text: "retriever"})
	require.NoError(t, err)
	rows := make([]int, 0, len(results))
	for _, r := range results {
		rows = append(rows, r.Row)
	}
	assert.ElementsMatch(t, []int{0, 2}, rows)
}

func TestCatalog_ClassFilterAndMatchAll(t *testing.T) {
	s := testStore(t,
		root+"/dogs/a.jpg",
		root+"/cats/b.jpg",
		root+"/dogs/c.jpg",
	)
	c := newTestCatalog(t, s)
	ctx := context.Background()

	results, err := c.Search(ctx, Query{Class: "dogs"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].Row)
	assert.Equal(t, 2, results[1].Row)

	all, err := c.Search(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := c.Search(ctx, Query{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestCatalog_Fuzzy(t *testing.T) {
	c := newTestCatalog(t, testStore(t, root+"/birds/sparrow.png"))
	ctx := context.Background()

	exact, err := c.Search(ctx, Query{Text: "sparow"})
	require.NoError(t, err)
	assert.Empty(t, exact)

	fuzzy, err := c.Search(ctx, Query{Text: "sparow", Fuzziness: 1})
	require.NoError(t, err)
	require.Len(t, fuzzy, 1)
	assert.Equal(t, "sparrow.png", fuzzy[0].Filename)
}

func TestCatalog_RebuildRemovesStaleAndSkipsPlaceholders(t *testing.T) {
	c := newTestCatalog(t, testStore(t, root+"/a/one.png", root+"/a/two.png"))

	next := testStore(t, root+"/a/two.png")
	require.NoError(t, next.AppendPlaceholder(models.SourceRecord{CanonicalPath: root + "/a/broken.png", Placeholder: true}))
	require.NoError(t, c.Rebuild(context.Background(), next))

	n, err := c.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	results, err := c.Search(context.Background(), Query{Text: "two"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Row)
}

func TestCatalog_AddAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.bleve")
	c, err := New(path, root)
	require.NoError(t, err)
	require.NoError(t, c.Add(7, models.SourceRecord{CanonicalPath: root + "/fish/koi.jpg"}))
	require.NoError(t, c.Add(8, models.SourceRecord{CanonicalPath: root + "/fish/bad.jpg", Placeholder: true}))
	require.NoError(t, c.Close())

	reopened, err := New(path, root)
	require.NoError(t, err)
	defer reopened.Close()
	results, err := reopened.Search(context.Background(), Query{Text: "koi"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 7, results[0].Row)
	assert.Equal(t, "fish", results[0].Class)

	n, err := reopened.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestClasses(t *testing.T) {
	s := testStore(t, root+"/dogs/a.jpg", root+"/cats/b.jpg", root+"/dogs/c.jpg", root+"/loose.jpg")
	got := Classes(s, root)
	assert.Equal(t, []ClassCount{
		{Class: "cats", Count: 1},
		{Class: "dogs", Count: 2},
		{Class: models.UnknownClass, Count: 1},
	}, got)
}
