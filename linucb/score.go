package linucb

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/n0madic/go-linucb-sim/internal/parallel"
	"github.com/n0madic/go-linucb-sim/prng"
)

// DefaultNoiseScale is the magnitude of the tie-breaking noise added to every
// (user, arm) score.
const DefaultNoiseScale = 1e-5

// Bound is the confidence bound of one arm for one context.
type Bound struct {
	Mu    float64 // xᵀθ
	Sigma float64 // sqrt(xᵀ A⁻¹ x)
	Upper float64 // Mu + alpha·Sigma
}

// Scorer caches A⁻¹ and θ = A⁻¹b of one arm so that many contexts can be
// scored with a single inversion. A Scorer is read-only and safe for
// concurrent use.
type Scorer struct {
	inv   *mat.SymDense
	theta *mat.VecDense
}

// NewScorer inverts A through its Cholesky factorization.
func NewScorer(s ArmStatistics) (*Scorer, error) {
	chol, err := s.factorize()
	if err != nil {
		return nil, err
	}
	inv := mat.NewSymDense(s.Dim(), nil)
	if err := chol.InverseTo(inv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPositiveDefinite, err)
	}
	theta := mat.NewVecDense(s.Dim(), nil)
	theta.MulVec(inv, s.B)
	return &Scorer{inv: inv, theta: theta}, nil
}

// Theta returns the point estimate θ. The returned vector must not be modified.
func (sc *Scorer) Theta() *mat.VecDense {
	return sc.theta
}

// Bound computes mu, sigma and the upper confidence bound for context x.
func (sc *Scorer) Bound(x mat.Vector, alpha float64) Bound {
	mu := mat.Dot(x, sc.theta)
	v := mat.Inner(x, sc.inv, x)
	if v < 0 {
		// rounding on a near-singular direction
		v = 0
	}
	sigma := math.Sqrt(v)
	return Bound{Mu: mu, Sigma: sigma, Upper: mu + alpha*sigma}
}

// Score is the one-shot form of NewScorer(s).Bound(x, alpha).
func Score(s ArmStatistics, x mat.Vector, alpha float64) (Bound, error) {
	if x.Len() != s.Dim() {
		return Bound{}, &DimensionError{Expected: s.Dim(), Got: x.Len(), Type: "context"}
	}
	sc, err := NewScorer(s)
	if err != nil {
		return Bound{}, err
	}
	return sc.Bound(x, alpha), nil
}

// ScoreOptions controls batched scoring.
type ScoreOptions struct {
	// NoiseScale multiplies a U[0,1) draw added to every score to break
	// exact ties. Zero disables noise.
	NoiseScale float64
	// NoiseKey seeds the noise; user u draws its K values from NoiseKey.Fold(u).
	NoiseKey prng.Key
	// Workers bounds parallelism; zero means GOMAXPROCS.
	Workers int
}

// ScoreAll returns the [users, arms] matrix of upper confidence bounds (plus
// tie-breaking noise) for every arm against every row of contexts. Arms are
// inverted in parallel, then users are scored in parallel chunks. The result
// is identical for any worker count.
func ScoreAll(arms []ArmStatistics, contexts *mat.Dense, alpha float64, opts ScoreOptions) (*mat.Dense, error) {
	users, dim := contexts.Dims()
	if len(arms) == 0 {
		return nil, &DimensionError{Expected: 1, Got: 0, Type: "arms"}
	}
	for k := range arms {
		if arms[k].Dim() != dim {
			return nil, &DimensionError{Expected: arms[k].Dim(), Got: dim, Type: "context features"}
		}
	}

	scorers := make([]*Scorer, len(arms))
	err := parallel.ForEach(len(arms), opts.Workers, func(k int) error {
		sc, err := NewScorer(arms[k])
		if err != nil {
			return fmt.Errorf("arm %d: %w", k, err)
		}
		scorers[k] = sc
		return nil
	})
	if err != nil {
		return nil, err
	}

	scores := mat.NewDense(users, len(arms), nil)
	err = parallel.ForEachChunk(users, opts.Workers, func(lo, hi int) error {
		for u := lo; u < hi; u++ {
			x := contexts.RowView(u)
			row := scores.RawRowView(u)
			for k, sc := range scorers {
				row[k] = sc.Bound(x, alpha).Upper
			}
			if opts.NoiseScale != 0 {
				rng := opts.NoiseKey.Fold(u).Rand()
				for k := range row {
					row[k] += opts.NoiseScale * rng.Float64()
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return scores, nil
}
