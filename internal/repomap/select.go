package repomap

import (
	"github.com/phobologic/repomap/internal/model"
	"github.com/phobologic/repomap/internal/render"
)

// budgetSlack accepts a rendering once it lands within 15% below the budget,
// cutting off the bisection early.
const budgetSlack = 0.15

// selectBudget finds the largest rank-ordered prefix of tags whose rendered
// form fits the token budget. Rendered length is monotonically non-decreasing
// in the number of included tags, so bisection over the prefix length is
// sound. Returns "" when even the bare headers exceed the budget.
func (rm *RepoMap) selectBudget(ranked []model.RankedTag, chatPaths []string) string {
	budget := rm.mapTokens

	renderK := func(k int) string {
		return render.Map(ranked[:k], chatPaths, rm.readSource)
	}

	// Common case: everything fits.
	full := renderK(len(ranked))
	if rm.tokenCount(full) <= budget {
		return full
	}

	best := -1
	bestText := ""
	lo, hi := 0, len(ranked)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		text := renderK(mid)
		tokens := rm.tokenCount(text)
		if tokens <= budget {
			best = mid
			bestText = text
			if float64(budget-tokens) < budgetSlack*float64(budget) {
				break
			}
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}

	if best < 0 {
		return ""
	}
	return bestText
}
