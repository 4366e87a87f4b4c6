// Package linucb implements the disjoint LinUCB model: per-arm ridge
// regression statistics, upper-confidence-bound scoring and arm selection.
//
// All operations are value-returning. ArmStatistics passed in are never
// mutated, so a set of statistics can be read concurrently while the next
// set is being built.
package linucb

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/n0madic/go-linucb-sim/internal/parallel"
)

// ArmStatistics holds the sufficient statistics of one arm's ridge estimator:
// the regularized Gram matrix A = I + Σ x xᵀ and the reward-weighted context
// sum b = Σ r x.
type ArmStatistics struct {
	A *mat.SymDense // d x d, symmetric positive definite
	B *mat.VecDense // d x 1
}

// NewArmStatistics returns the prior statistics A = I, b = 0.
func NewArmStatistics(dim int) ArmStatistics {
	a := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		a.SetSym(i, i, 1.0)
	}
	return ArmStatistics{
		A: a,
		B: mat.NewVecDense(dim, nil),
	}
}

// InitArms returns prior statistics for every arm.
func InitArms(arms, dim int) []ArmStatistics {
	out := make([]ArmStatistics, arms)
	for k := range out {
		out[k] = NewArmStatistics(dim)
	}
	return out
}

// Dim returns the context dimension d.
func (s ArmStatistics) Dim() int {
	return s.B.Len()
}

// Clone returns a deep copy.
func (s ArmStatistics) Clone() ArmStatistics {
	a := mat.NewSymDense(s.Dim(), nil)
	a.CopySym(s.A)
	b := mat.NewVecDense(s.Dim(), nil)
	b.CopyVec(s.B)
	return ArmStatistics{A: a, B: b}
}

// Update returns the statistics after observing reward for context x:
// A' = A + x xᵀ, b' = b + reward·x. The receiver is left unchanged.
// x must have length Dim().
func (s ArmStatistics) Update(x mat.Vector, reward float64) ArmStatistics {
	var a mat.SymDense
	a.SymRankOne(s.A, 1.0, x)
	var b mat.VecDense
	b.AddScaledVec(s.B, reward, x)
	return ArmStatistics{A: &a, B: &b}
}

// Estimate solves theta = A⁻¹ b.
func (s ArmStatistics) Estimate() (*mat.VecDense, error) {
	chol, err := s.factorize()
	if err != nil {
		return nil, err
	}
	theta := mat.NewVecDense(s.Dim(), nil)
	if err := chol.SolveVecTo(theta, s.B); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPositiveDefinite, err)
	}
	return theta, nil
}

// CheckPositiveDefinite reports whether A still admits a Cholesky factorization.
func (s ArmStatistics) CheckPositiveDefinite() error {
	_, err := s.factorize()
	return err
}

func (s ArmStatistics) factorize() (*mat.Cholesky, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(s.A); !ok {
		return nil, ErrNotPositiveDefinite
	}
	return &chol, nil
}

// PooledUpdate applies one LinUCB update per user to that user's chosen arm
// and averages the per-user results over the population, yielding one shared
// estimator per arm:
//
//	A_k' = A_k + (1/U) Σ_{u: choice_u = k} x_u x_uᵀ
//	b_k' = b_k + (1/U) Σ_{u: choice_u = k} r_u x_u
//
// contexts is [users, d]. Users are accumulated in index order so the result
// does not depend on the worker count. The input statistics are not modified.
func PooledUpdate(arms []ArmStatistics, contexts *mat.Dense, choices []int, rewards []float64, workers int) ([]ArmStatistics, error) {
	users, dim := contexts.Dims()
	if len(choices) != users {
		return nil, &DimensionError{Expected: users, Got: len(choices), Type: "choices"}
	}
	if len(rewards) != users {
		return nil, &DimensionError{Expected: users, Got: len(rewards), Type: "rewards"}
	}
	if users == 0 {
		return nil, &DimensionError{Expected: 1, Got: 0, Type: "users"}
	}
	byArm := make([][]int, len(arms))
	for u, k := range choices {
		if k < 0 || k >= len(arms) {
			return nil, fmt.Errorf("linucb: user %d chose arm %d, want [0,%d)", u, k, len(arms))
		}
		byArm[k] = append(byArm[k], u)
	}
	for k := range arms {
		if arms[k].Dim() != dim {
			return nil, &DimensionError{Expected: arms[k].Dim(), Got: dim, Type: "context features"}
		}
	}

	weight := 1.0 / float64(users)
	out := make([]ArmStatistics, len(arms))
	err := parallel.ForEach(len(arms), workers, func(k int) error {
		next := arms[k].Clone()
		for _, u := range byArm[k] {
			x := contexts.RowView(u)
			next.A.SymRankOne(next.A, weight, x)
			next.B.AddScaledVec(next.B, weight*rewards[u], x)
		}
		out[k] = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
