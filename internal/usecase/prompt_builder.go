package usecase

import (
	"fmt"
	"strings"

	"retrieval-pipeline/internal/domain"
)

// BuildAnswerPrompt renders the retrieved passages and the question into a
// single grounded-answer prompt for the completion model.
func BuildAnswerPrompt(query string, results []domain.RankedCandidate) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the passages below. ")
	b.WriteString("If the passages do not contain the answer, say so.\n\n")

	for i, r := range results {
		fmt.Fprintf(&b, "[passage %d] (source: %s)\n%s\n\n", i+1, r.SourceRef, r.Content)
	}

	fmt.Fprintf(&b, "Question: %s\n", query)
	return b.String()
}
