// Package fusion merges ranked result lists from multiple retrieval
// branches using Reciprocal Rank Fusion (RRF).
//
// RRF works on rank positions alone, which makes it safe to combine
// branches whose raw scores live on incomparable scales (cosine
// similarity vs BM25). Each occurrence of a node contributes
// 1/(k+rank) to its fused score; nodes found by several branches
// accumulate and rise.
package fusion

import (
	"sort"

	"github.com/fyrsmithlabs/docchat/internal/schema"
)

// DefaultK is the standard RRF smoothing constant. Larger values flatten
// the difference between adjacent ranks.
const DefaultK = 60

// ReciprocalRankFusion fuses the branch result lists into one list of at
// most topK nodes, deduplicated by node ID and ordered by fused score
// descending.
//
// Branches are processed in sorted key order and ranks are 1-based, so
// the output is deterministic for identical input regardless of map
// iteration order. Score ties break by first appearance in that fixed
// processing order. topK <= 0 means no truncation.
func ReciprocalRankFusion(branches map[string][]schema.ScoredNode, k float64, topK int) []schema.ScoredNode {
	if k <= 0 {
		k = DefaultK
	}

	keys := make([]string, 0, len(branches))
	for key := range branches {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	type entry struct {
		node  schema.Node
		score float64
		seen  int // first-appearance order, tie-breaker
	}

	fused := make(map[string]*entry)
	order := 0
	for _, key := range keys {
		for rank, sn := range branches[key] {
			contribution := 1.0 / (k + float64(rank+1))
			if e, ok := fused[sn.Node.ID]; ok {
				e.score += contribution
				continue
			}
			fused[sn.Node.ID] = &entry{node: sn.Node, score: contribution, seen: order}
			order++
		}
	}

	entries := make([]*entry, 0, len(fused))
	for _, e := range fused {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].seen < entries[j].seen
	})

	if topK > 0 && len(entries) > topK {
		entries = entries[:topK]
	}

	out := make([]schema.ScoredNode, len(entries))
	for i, e := range entries {
		out[i] = schema.ScoredNode{Node: e.node, Score: e.score}
	}
	return out
}
