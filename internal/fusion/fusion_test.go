package fusion

import (
	"testing"

	"github.com/fyrsmithlabs/docchat/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id string) schema.ScoredNode {
	return schema.ScoredNode{Node: schema.Node{ID: id, Text: "text-" + id}}
}

func ids(nodes []schema.ScoredNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Node.ID
	}
	return out
}

func TestOverlappingBranchesPromoteSharedNodes(t *testing.T) {
	branches := map[string][]schema.ScoredNode{
		"dense":   {node("A"), node("B"), node("C")},
		"lexical": {node("B"), node("C"), node("D")},
	}

	fused := ReciprocalRankFusion(branches, DefaultK, 0)
	require.Len(t, fused, 4)

	// B appears at ranks 2 and 1, the highest combined contribution.
	assert.Equal(t, "B", fused[0].Node.ID)

	seen := map[string]bool{}
	for _, n := range fused {
		assert.False(t, seen[n.Node.ID], "duplicate node %s", n.Node.ID)
		seen[n.Node.ID] = true
	}
}

func TestScoresDescendAndAccumulate(t *testing.T) {
	branches := map[string][]schema.ScoredNode{
		"dense":   {node("A"), node("B")},
		"lexical": {node("A")},
	}

	fused := ReciprocalRankFusion(branches, 60, 0)
	require.Len(t, fused, 2)
	assert.Equal(t, "A", fused[0].Node.ID)
	assert.InDelta(t, 1.0/61+1.0/61, fused[0].Score, 1e-12)
	assert.InDelta(t, 1.0/62, fused[1].Score, 1e-12)
	assert.Greater(t, fused[0].Score, fused[1].Score)
}

func TestDeterministicAcrossRuns(t *testing.T) {
	branches := map[string][]schema.ScoredNode{
		"dense_hyde_s1": {node("A"), node("B")},
		"lexical_s1":    {node("C"), node("D")},
		"dense_s1":      {node("E"), node("F")},
	}

	first := ids(ReciprocalRankFusion(branches, DefaultK, 0))
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, ids(ReciprocalRankFusion(branches, DefaultK, 0)))
	}
}

func TestTieBreaksByBranchOrder(t *testing.T) {
	// A and B each appear once at rank 1 in different branches, so their
	// scores tie exactly. The branch whose key sorts first wins.
	branches := map[string][]schema.ScoredNode{
		"b_lexical": {node("B")},
		"a_dense":   {node("A")},
	}

	fused := ReciprocalRankFusion(branches, DefaultK, 0)
	require.Len(t, fused, 2)
	assert.Equal(t, "A", fused[0].Node.ID)
	assert.Equal(t, "B", fused[1].Node.ID)
}

func TestTruncatesToTopK(t *testing.T) {
	branches := map[string][]schema.ScoredNode{
		"dense": {node("A"), node("B"), node("C"), node("D")},
	}

	fused := ReciprocalRankFusion(branches, DefaultK, 2)
	assert.Equal(t, []string{"A", "B"}, ids(fused))
}

func TestEmptyAndMissingBranches(t *testing.T) {
	assert.Empty(t, ReciprocalRankFusion(nil, DefaultK, 5))
	assert.Empty(t, ReciprocalRankFusion(map[string][]schema.ScoredNode{}, DefaultK, 5))

	// A failed branch contributes an empty list, the others still fuse.
	branches := map[string][]schema.ScoredNode{
		"dense":   {},
		"lexical": {node("A")},
	}
	fused := ReciprocalRankFusion(branches, DefaultK, 5)
	assert.Equal(t, []string{"A"}, ids(fused))
}

func TestZeroKUsesDefault(t *testing.T) {
	branches := map[string][]schema.ScoredNode{"dense": {node("A")}}
	fused := ReciprocalRankFusion(branches, 0, 0)
	require.Len(t, fused, 1)
	assert.InDelta(t, 1.0/61, fused[0].Score, 1e-12)
}
