package services

import "strings"

// SimilarityScorer measures how close a candidate rewrite stays to the
// original text, in [0,1]. Implementations must be pure and never fail.
type SimilarityScorer interface {
	Score(original, candidate string) float64
}

// WordOverlapScorer is a word-set Jaccard heuristic standing in for an
// embedding-cosine metric. The 0.3 spread over a 0.7 base keeps every result
// in the upper third of the range, so floors below 0.7 never discriminate.
type WordOverlapScorer struct{}

func NewWordOverlapScorer() *WordOverlapScorer {
	return &WordOverlapScorer{}
}

func (s *WordOverlapScorer) Score(original, candidate string) float64 {
	origWords := tokenSet(original)
	candWords := tokenSet(candidate)

	// Two empty texts are trivially identical.
	if len(origWords) == 0 && len(candWords) == 0 {
		return 1.0
	}

	common := 0
	for w := range candWords {
		if _, ok := origWords[w]; ok {
			common++
		}
	}

	ratio := float64(common) / float64(len(origWords)+len(candWords)-common)
	return 0.7 + 0.3*ratio
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = struct{}{}
	}
	return set
}
