package checks

import (
	"math"

	"github.com/reviewgate/reviewgate/internal/model"
)

// categoryWeights are the fixed scoring weights. Categories with no
// executed checks contribute no weight.
var categoryWeights = map[model.CheckCategory]int{
	model.CategorySecurity:      20,
	model.CategoryCodeQuality:   15,
	model.CategoryArchitecture:  15,
	model.CategoryPerformance:   10,
	model.CategoryTesting:       15,
	model.CategoryObservability: 10,
	model.CategoryRepoHygiene:   5,
}

// CategoryOrder is the stable report order for categories.
var CategoryOrder = []model.CheckCategory{
	model.CategorySecurity,
	model.CategoryCodeQuality,
	model.CategoryArchitecture,
	model.CategoryPerformance,
	model.CategoryTesting,
	model.CategoryObservability,
	model.CategoryRepoHygiene,
}

func statusPoints(s model.CheckStatus) float64 {
	switch s {
	case model.CheckStatusPass:
		return 10
	case model.CheckStatusWarn:
		return 5
	default:
		return 0
	}
}

// Score computes the weighted overall score in [0,100]. Each category's
// sub-score is the mean of its check points (PASS=10, WARN=5, FAIL=0);
// the overall score is the weight-averaged sub-score scaled to 100.
// An empty outcome list scores 100.
func Score(outcomes []Outcome) int {
	if len(outcomes) == 0 {
		return 100
	}

	sums := make(map[model.CheckCategory]float64)
	counts := make(map[model.CheckCategory]int)
	for _, o := range outcomes {
		sums[o.Category] += statusPoints(o.Status)
		counts[o.Category]++
	}

	var weighted float64
	var totalWeight int
	for cat, n := range counts {
		w := categoryWeights[cat]
		if w == 0 || n == 0 {
			continue
		}
		weighted += float64(w) * (sums[cat] / float64(n))
		totalWeight += w
	}
	if totalWeight == 0 {
		return 100
	}

	score := int(math.Round(weighted / float64(totalWeight) * 10))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// StatusCounts tallies outcomes by verdict.
func StatusCounts(outcomes []Outcome) (pass, warn, fail int) {
	for _, o := range outcomes {
		switch o.Status {
		case model.CheckStatusPass:
			pass++
		case model.CheckStatusWarn:
			warn++
		case model.CheckStatusFail:
			fail++
		}
	}
	return pass, warn, fail
}

// HasFailInCategories reports whether any outcome in the given categories
// is a FAIL.
func HasFailInCategories(outcomes []Outcome, cats ...model.CheckCategory) bool {
	set := make(map[model.CheckCategory]bool, len(cats))
	for _, c := range cats {
		set[c] = true
	}
	for _, o := range outcomes {
		if o.Status == model.CheckStatusFail && set[o.Category] {
			return true
		}
	}
	return false
}
