package domain

// Candidate is a passage retrieved from the corpus as a possible answer
// source. Candidates are created per retrieval call and never mutated
// downstream; IDs are unique within one call's result set.
type Candidate struct {
	ID         string
	Content    string
	SourceRef  string
	Similarity float64
}

// RankedCandidate is a Candidate extended with rescoring output.
// Relevance is meaningful only when Reranked is true; Fused is always
// populated before results leave the pipeline.
type RankedCandidate struct {
	Candidate
	Relevance float64
	Fused     float64
	Reranked  bool
}

// FusionWeights are the mixing coefficients for combining vector similarity
// and cross-encoder relevance into a single ranking key. Both weights must be
// non-negative; they need not sum to 1.
type FusionWeights struct {
	Similarity float64
	Relevance  float64
}
