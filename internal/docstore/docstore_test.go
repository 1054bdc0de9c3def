package docstore

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/docchat/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNodes() []schema.Node {
	return []schema.Node{
		{ID: "n1", Text: "The refund policy allows returns within 14 days of purchase.",
			Metadata: map[string]interface{}{schema.MetaFileName: "policy.pdf", schema.MetaPageLabel: "2"}},
		{ID: "n2", Text: "Shipping normally takes three to five business days."},
		{ID: "n3", Text: "Gift cards cannot be refunded or exchanged."},
	}
}

func TestAddAndGet(t *testing.T) {
	store, err := NewMemory()
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Add(context.Background(), testNodes()))
	assert.Equal(t, 3, store.Count())

	n, err := store.Get("n1")
	require.NoError(t, err)
	assert.Equal(t, "policy.pdf", n.MetaString(schema.MetaFileName))

	_, err = store.Get("missing")
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestAddValidation(t *testing.T) {
	store, err := NewMemory()
	require.NoError(t, err)
	defer store.Close()

	assert.ErrorIs(t, store.Add(context.Background(), nil), ErrEmptyNodes)
	assert.ErrorIs(t, store.Add(context.Background(), []schema.Node{{Text: "no id"}}), ErrEmptyNodes)
}

func TestSearchRanksByRelevance(t *testing.T) {
	store, err := NewMemory()
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Add(context.Background(), testNodes()))

	results, err := store.Search(context.Background(), "refund policy", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// n1 matches both terms, n3 only one, n2 neither.
	assert.Equal(t, "n1", results[0].Node.ID)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	for _, r := range results {
		assert.NotEqual(t, "n2", r.Node.ID)
	}
}

func TestSearchStemming(t *testing.T) {
	store, err := NewMemory()
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Add(context.Background(), testNodes()))

	// English analyzer stems "refunded" and "refund" to the same term.
	results, err := store.Search(context.Background(), "refunds", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestSearchLimitsResults(t *testing.T) {
	store, err := NewMemory()
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Add(context.Background(), testNodes()))

	results, err := store.Search(context.Background(), "refund days shipping", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = store.Search(context.Background(), "refund", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchNoMatches(t *testing.T) {
	store, err := NewMemory()
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Add(context.Background(), testNodes()))

	results, err := store.Search(context.Background(), "zebra astronomy", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestPersistentRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, store.Add(ctx, testNodes()))
	require.NoError(t, store.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 3, reopened.Count())

	n, err := reopened.Get("n1")
	require.NoError(t, err)
	assert.Equal(t, "2", n.MetaString(schema.MetaPageLabel))

	results, err := reopened.Search(ctx, "refund policy", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "n1", results[0].Node.ID)
}
