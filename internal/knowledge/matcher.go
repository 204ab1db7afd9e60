package knowledge

import (
	"sort"

	"github.com/reviewgate/reviewgate/internal/model"
)

const (
	// MinJaccard is the similarity floor for a precedent match.
	MinJaccard = 0.15
	// MinOverlap admits a match on absolute shared-token count even when
	// a large signature dilutes the Jaccard ratio.
	MinOverlap = 5
	// MaxMatches caps the precedent list.
	MaxMatches = 5
)

// Match is one precedent source with its similarity measures.
type Match struct {
	Source  *model.KnowledgeSource
	Jaccard float64
	Overlap int
}

// jaccard computes |a∩b| and |a∩b|/|a∪b| over two token sets.
func jaccard(a, b []string) (float64, int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0
	}
	set := make(map[string]bool, len(a))
	for _, tok := range a {
		set[tok] = true
	}
	overlap := 0
	for _, tok := range b {
		if set[tok] {
			overlap++
		}
	}
	union := len(set) + countDistinct(b) - overlap
	if union == 0 {
		return 0, 0
	}
	return float64(overlap) / float64(union), overlap
}

func countDistinct(tokens []string) int {
	set := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		set[tok] = true
	}
	return len(set)
}

// FindMatches ranks candidate sources against a signature. A candidate
// qualifies when Jaccard >= MinJaccard or the raw overlap >= MinOverlap;
// results are ordered by Jaccard, then overlap, then provider id for
// stability, capped at MaxMatches. An empty index yields no matches.
func FindMatches(signature []string, candidates []*model.KnowledgeSource) []Match {
	var matches []Match
	for _, cand := range candidates {
		j, overlap := jaccard(signature, cand.FeatureTokens)
		if j >= MinJaccard || overlap >= MinOverlap {
			matches = append(matches, Match{Source: cand, Jaccard: j, Overlap: overlap})
		}
	}

	sort.Slice(matches, func(i, k int) bool {
		if matches[i].Jaccard != matches[k].Jaccard {
			return matches[i].Jaccard > matches[k].Jaccard
		}
		if matches[i].Overlap != matches[k].Overlap {
			return matches[i].Overlap > matches[k].Overlap
		}
		return matches[i].Source.ProviderID < matches[k].Source.ProviderID
	})

	if len(matches) > MaxMatches {
		matches = matches[:MaxMatches]
	}
	return matches
}
