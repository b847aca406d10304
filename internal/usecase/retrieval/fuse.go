package retrieval

import (
	"math"
	"sort"

	"retrieval-pipeline/internal/domain"
)

// fusedEpsilon is the tolerance under which two scores count as tied.
const fusedEpsilon = 1e-9

// Fuse combines vector similarity and cross-encoder relevance into a single
// ranking key using the configured mixing weights.
func Fuse(similarity, relevance float64, w domain.FusionWeights) float64 {
	return w.Similarity*similarity + w.Relevance*relevance
}

// Rank sorts candidates by fused score descending, in place. Fused scores
// within fusedEpsilon of each other are ordered by similarity descending,
// then by ID ascending, so the final order never depends on input order or
// map iteration order.
func Rank(candidates []domain.RankedCandidate) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if math.Abs(a.Fused-b.Fused) > fusedEpsilon {
			return a.Fused > b.Fused
		}
		if math.Abs(a.Similarity-b.Similarity) > fusedEpsilon {
			return a.Similarity > b.Similarity
		}
		return a.ID < b.ID
	})
}
