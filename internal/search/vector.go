// Package search ranks stored analyses against a question embedding and
// composes answers from the best matches.
package search

import (
	"math"
	"sort"

	"github.com/Aman-CERP/pagemind/internal/store"
)

// DefaultTopK is the number of matches handed to the answer model.
const DefaultTopK = 8

// CosineSimilarity returns the cosine of the angle between a and b, or -1
// when either vector is empty, the lengths differ or a norm is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return -1
	}

	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return -1
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Match is a scored knowledge row.
type Match struct {
	Row   store.KnowledgeRow
	Score float64
}

// Rank scores rows against query, drops negative scores and returns the
// topK best in descending order. Ties keep input order. A topK of zero or
// less returns no matches; callers pick the default.
func Rank(query []float32, rows []store.KnowledgeRow, topK int) []Match {
	if topK <= 0 {
		return []Match{}
	}

	matches := make([]Match, 0, len(rows))
	for _, row := range rows {
		if row.Analysis == nil {
			continue
		}
		score := CosineSimilarity(query, row.Analysis.Embedding)
		if score < 0 || math.IsNaN(score) {
			continue
		}
		matches = append(matches, Match{Row: row, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}
