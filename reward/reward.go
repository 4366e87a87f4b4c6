// Package reward draws zero-inflated Bernoulli rewards and computes regret
// against a ground-truth arm probability table.
package reward

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/n0madic/go-linucb-sim/internal/parallel"
	"github.com/n0madic/go-linucb-sim/prng"
)

// Model is the reward generation model.
type Model struct {
	// Sparsity is the probability that a reward is withheld regardless of
	// success. Must be in [0, 1).
	Sparsity float64
	// Weighting scales delivered rewards after the Bernoulli draws. Must be > 0.
	Weighting float64
}

// New validates and returns a Model.
func New(sparsity, weighting float64) (Model, error) {
	m := Model{Sparsity: sparsity, Weighting: weighting}
	if err := m.Validate(); err != nil {
		return Model{}, err
	}
	return m, nil
}

// CompensatingWeight returns 1/(1-sparsity), the weighting that keeps the
// expected reward independent of sparsity.
func CompensatingWeight(sparsity float64) float64 {
	return 1.0 / (1.0 - sparsity)
}

// Validate checks the model parameters.
func (m Model) Validate() error {
	if !(m.Sparsity >= 0 && m.Sparsity < 1) {
		return fmt.Errorf("reward: sparsity must be in [0,1), got %v", m.Sparsity)
	}
	if !(m.Weighting > 0) {
		return fmt.Errorf("reward: weighting must be > 0, got %v", m.Weighting)
	}
	return nil
}

// Outcome is the realised reward and the regret of one arm choice.
type Outcome struct {
	Reward float64
	Regret float64
}

// Draw realises the reward of pulling arm for a user whose true success
// probabilities are probs. The hurdle draw is taken from src first, then the
// success draw.
func (m Model) Draw(arm int, probs []float64, src rand.Source) Outcome {
	hurdle := distuv.Bernoulli{P: 1 - m.Sparsity, Src: src}.Rand()
	success := distuv.Bernoulli{P: probs[arm], Src: src}.Rand()
	return Outcome{
		Reward: hurdle * success * m.Weighting,
		Regret: Regret(probs, arm),
	}
}

// DrawAll realises one outcome per user. table is [users, arms]; user u draws
// from key.Fold(u). Users are processed in parallel chunks; the result does
// not depend on the worker count.
func (m Model) DrawAll(choices []int, table *mat.Dense, key prng.Key, workers int) (rewards, regrets []float64, err error) {
	users, arms := table.Dims()
	if len(choices) != users {
		return nil, nil, fmt.Errorf("reward: %d choices for %d users", len(choices), users)
	}
	for u, k := range choices {
		if k < 0 || k >= arms {
			return nil, nil, fmt.Errorf("reward: user %d chose arm %d, want [0,%d)", u, k, arms)
		}
	}

	rewards = make([]float64, users)
	regrets = make([]float64, users)
	err = parallel.ForEachChunk(users, workers, func(lo, hi int) error {
		for u := lo; u < hi; u++ {
			o := m.Draw(choices[u], table.RawRowView(u), key.Fold(u).Source())
			rewards[u] = o.Reward
			regrets[u] = o.Regret
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return rewards, regrets, nil
}

// BestArm returns the arm with the highest true probability, lowest index on ties.
func BestArm(probs []float64) int {
	best := 0
	for k := 1; k < len(probs); k++ {
		if probs[k] > probs[best] {
			best = k
		}
	}
	return best
}

// Regret is max(probs) - probs[arm]. It depends only on the true table.
func Regret(probs []float64, arm int) float64 {
	return probs[BestArm(probs)] - probs[arm]
}
