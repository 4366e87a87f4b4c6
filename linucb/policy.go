package linucb

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/n0madic/go-linucb-sim/prng"
)

// ChooseUCB returns, for every row of scores, the arm with the largest score.
// Comparison is strict, so arms still exactly tied after noise resolve to the
// lowest index. NaN scores never win.
func ChooseUCB(scores mat.Matrix) []int {
	users, arms := scores.Dims()
	choices := make([]int, users)
	for u := 0; u < users; u++ {
		best := 0
		maxScore := math.Inf(-1)
		for k := 0; k < arms; k++ {
			if s := scores.At(u, k); s > maxScore {
				best = k
				maxScore = s
			}
		}
		choices[u] = best
	}
	return choices
}

// ChooseRandom draws one arm per user uniformly over [0, arms), user u
// drawing from key.Fold(u).
func ChooseRandom(users, arms int, key prng.Key) []int {
	choices := make([]int, users)
	if arms <= 0 {
		return choices
	}
	for u := range choices {
		choices[u] = key.Fold(u).Rand().IntN(arms)
	}
	return choices
}
