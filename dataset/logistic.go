package dataset

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/n0madic/go-linucb-sim/internal/parallel"
)

// LogisticModel is a one-vs-rest L2-regularised logistic regression. Each
// class has its own independent sigmoid, so predicted probabilities of a
// row need not sum to 1.
type LogisticModel struct {
	Weights *mat.Dense // [classes, features]
	Bias    []float64  // [classes]
}

// FitOneVsRest fits one binary classifier per class, in parallel across
// classes.
func FitOneVsRest(x *mat.Dense, labels []int, classes int, l2 float64, workers int) (*LogisticModel, error) {
	n, p := x.Dims()
	if len(labels) != n {
		return nil, fmt.Errorf("dataset: %d labels for %d rows", len(labels), n)
	}
	if l2 < 0 {
		return nil, fmt.Errorf("dataset: l2 must be >= 0, got %v", l2)
	}

	model := &LogisticModel{
		Weights: mat.NewDense(classes, p, nil),
		Bias:    make([]float64, classes),
	}
	err := parallel.ForEach(classes, workers, func(c int) error {
		target := make([]float64, n)
		for i, y := range labels {
			if y == c {
				target[i] = 1
			}
		}
		params, err := fitBinary(x, target, l2)
		if err != nil {
			return fmt.Errorf("class %d: %w", c, err)
		}
		model.Weights.SetRow(c, params[:p])
		model.Bias[c] = params[p]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return model, nil
}

// fitBinary minimises the mean log-loss plus (l2/2n)·||w||² with LBFGS. The
// returned slice holds the p weights followed by the bias.
func fitBinary(x *mat.Dense, target []float64, l2 float64) ([]float64, error) {
	n, p := x.Dims()
	fn := float64(n)
	z := make([]float64, n)

	linear := func(params []float64) {
		w, b := params[:p], params[p]
		for i := 0; i < n; i++ {
			z[i] = floats.Dot(x.RawRowView(i), w) + b
		}
	}

	problem := optimize.Problem{
		Func: func(params []float64) float64 {
			linear(params)
			loss := 0.0
			for i, zi := range z {
				loss += softplus(zi) - target[i]*zi
			}
			w := params[:p]
			return loss/fn + 0.5*l2/fn*floats.Dot(w, w)
		},
		Grad: func(grad, params []float64) {
			linear(params)
			for j := range grad {
				grad[j] = 0
			}
			for i, zi := range z {
				r := (sigmoid(zi) - target[i]) / fn
				floats.AddScaled(grad[:p], r, x.RawRowView(i))
				grad[p] += r
			}
			floats.AddScaled(grad[:p], l2/fn, params[:p])
		},
	}

	settings := &optimize.Settings{
		GradientThreshold: 1e-8,
		MajorIterations:   1000,
	}
	result, err := optimize.Minimize(problem, make([]float64, p+1), settings, &optimize.LBFGS{})
	if err != nil {
		// Line search stalls close to the optimum; the best location is kept.
		if result == nil || !(errors.Is(err, optimize.ErrNoProgress) || errors.Is(err, optimize.ErrLinesearcherFailure)) {
			return nil, err
		}
	}
	for _, v := range result.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New("logistic fit diverged")
		}
	}
	return result.X, nil
}

// Probabilities returns the [rows, classes] table of per-class sigmoid
// outputs for x.
func (m *LogisticModel) Probabilities(x mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Mul(x, m.Weights.T())
	out.Apply(func(_, c int, v float64) float64 {
		return sigmoid(v + m.Bias[c])
	}, &out)
	return &out
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softplus is log(1 + e^z) without overflow.
func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}
