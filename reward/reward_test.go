package reward

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/n0madic/go-linucb-sim/prng"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name      string
		sparsity  float64
		weighting float64
		wantErr   bool
	}{
		{"no sparsity", 0, 1, false},
		{"sparse compensated", 0.8, CompensatingWeight(0.8), false},
		{"sparsity one", 1, 1, true},
		{"negative sparsity", -0.1, 1, true},
		{"zero weighting", 0.2, 0, true},
		{"negative weighting", 0.2, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.sparsity, tt.weighting)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCompensatingWeight(t *testing.T) {
	assert.Equal(t, 1.0, CompensatingWeight(0))
	assert.InDelta(t, 5.0, CompensatingWeight(0.8), 1e-12)
}

func TestRegret(t *testing.T) {
	probs := []float64{0.2, 0.7, 0.4}
	tests := []struct {
		arm  int
		want float64
	}{
		{0, 0.5},
		{1, 0},
		{2, 0.3},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Regret(probs, tt.arm), 1e-12, "arm %d", tt.arm)
	}
	assert.Equal(t, 1, BestArm(probs))
}

func TestPropertyRegretNonNegativeZeroOnlyAtBest(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	for trial := 0; trial < 1000; trial++ {
		probs := make([]float64, 5)
		for k := range probs {
			probs[k] = rng.Float64()
		}
		best := BestArm(probs)
		for k := range probs {
			r := Regret(probs, k)
			require.GreaterOrEqual(t, r, 0.0)
			if k == best {
				require.Equal(t, 0.0, r)
			} else if probs[k] != probs[best] {
				require.Greater(t, r, 0.0)
			}
		}
	}
}

func TestDraw_RegretIgnoresSparsityAndWeighting(t *testing.T) {
	probs := []float64{0.9, 0.1}
	src := prng.New(1).Source()
	for _, m := range []Model{{0, 1}, {0.5, 2}, {0.99, 100}} {
		o := m.Draw(1, probs, src)
		assert.InDelta(t, 0.8, o.Regret, 1e-12)
	}
}

func TestDraw_ExtremeProbabilities(t *testing.T) {
	m := Model{Sparsity: 0, Weighting: 3}
	src := prng.New(2).Source()
	for i := 0; i < 100; i++ {
		assert.Equal(t, 3.0, m.Draw(0, []float64{1, 0}, src).Reward)
		assert.Equal(t, 0.0, m.Draw(1, []float64{1, 0}, src).Reward)
	}
}

func TestPropertyRewardMeanConvergesWithoutSparsity(t *testing.T) {
	const n = 40000
	tests := []struct {
		name      string
		p         float64
		weighting float64
	}{
		{"unweighted", 0.3, 1},
		{"weighted", 0.6, 2.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Model{Sparsity: 0, Weighting: tt.weighting}
			src := prng.New(77).Source()
			sum := 0.0
			for i := 0; i < n; i++ {
				sum += m.Draw(0, []float64{tt.p}, src).Reward
			}
			// ~5 standard errors
			tol := 5 * tt.weighting * 0.5 / 200
			assert.InDelta(t, tt.p*tt.weighting, sum/n, tol)
		})
	}
}

func TestPropertyCompensatedSparseMean(t *testing.T) {
	const n = 60000
	m := Model{Sparsity: 0.75, Weighting: CompensatingWeight(0.75)}
	src := prng.New(78).Source()
	sum, zeros := 0.0, 0
	for i := 0; i < n; i++ {
		r := m.Draw(0, []float64{0.5}, src).Reward
		if r == 0 {
			zeros++
		}
		sum += r
	}
	assert.InDelta(t, 0.5, sum/n, 0.05)
	assert.InDelta(t, 1-0.25*0.5, float64(zeros)/n, 0.01)
}

func TestDrawAll(t *testing.T) {
	table := mat.NewDense(3, 2, []float64{
		0.2, 0.8,
		0.5, 0.5,
		1.0, 0.0,
	})
	m := Model{Sparsity: 0, Weighting: 1}
	key := prng.New(10)

	rewards, regrets, err := m.DrawAll([]int{0, 1, 0}, table, key, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.6, 0, 0}, regrets, 1e-12)
	assert.Equal(t, 1.0, rewards[2])

	again, _, err := m.DrawAll([]int{0, 1, 0}, table, key, 1)
	require.NoError(t, err)
	assert.Equal(t, rewards, again, "worker count must not change draws")
}

func TestDrawAll_Errors(t *testing.T) {
	table := mat.NewDense(2, 2, []float64{0.1, 0.2, 0.3, 0.4})
	m := Model{Weighting: 1}

	_, _, err := m.DrawAll([]int{0}, table, prng.New(1), 0)
	assert.Error(t, err)
	_, _, err = m.DrawAll([]int{0, 2}, table, prng.New(1), 0)
	assert.Error(t, err)
}
