// Package dataset manufactures the read-only inputs of a simulation run:
// a context matrix from a classification-style generator and a ground-truth
// arm probability table from a logistic fit on that data.
package dataset

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/n0madic/go-linucb-sim/prng"
)

// Config describes the synthetic population.
type Config struct {
	Users       int     `yaml:"users"`
	Features    int     `yaml:"features"`    // total columns before the intercept
	Informative int     `yaml:"informative"` // leading columns that carry class signal
	Arms        int     `yaml:"arms"`        // one class per arm
	ClassSep    float64 `yaml:"class_sep"`   // half side of the centroid hypercube
	Intercept   bool    `yaml:"intercept"`
	L2          float64 `yaml:"l2"`
	Workers     int     `yaml:"workers"`
}

// DefaultConfig returns a moderate population.
func DefaultConfig() Config {
	return Config{
		Users:       1000,
		Features:    8,
		Informative: 4,
		Arms:        5,
		ClassSep:    1.0,
		Intercept:   true,
		L2:          1.0,
	}
}

// Validate checks the generator parameters.
func (c Config) Validate() error {
	switch {
	case c.Users <= 0:
		return fmt.Errorf("dataset: users must be > 0, got %d", c.Users)
	case c.Features <= 0:
		return fmt.Errorf("dataset: features must be > 0, got %d", c.Features)
	case c.Informative <= 0 || c.Informative > c.Features:
		return fmt.Errorf("dataset: informative must be in [1,%d], got %d", c.Features, c.Informative)
	case c.Arms < 2:
		return fmt.Errorf("dataset: arms must be >= 2, got %d", c.Arms)
	case !(c.ClassSep >= 0):
		return fmt.Errorf("dataset: class_sep must be >= 0, got %v", c.ClassSep)
	case !(c.L2 >= 0):
		return fmt.Errorf("dataset: l2 must be >= 0, got %v", c.L2)
	case c.Workers < 0:
		return fmt.Errorf("dataset: workers must be >= 0, got %d", c.Workers)
	}
	return nil
}

// Data is a generated population.
type Data struct {
	Contexts      *mat.Dense // [users, features(+1)]
	Probabilities *mat.Dense // [users, arms]
	Labels        []int      // generating class of each user
	Model         *LogisticModel
}

// Generate draws a population deterministically from key.
func Generate(cfg Config, key prng.Key) (*Data, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	centroids := hypercubeCentroids(cfg.Arms, cfg.Informative, cfg.ClassSep, key.Named("centroids"))

	labels := make([]int, cfg.Users)
	for u := range labels {
		labels[u] = u % cfg.Arms
	}
	shuffle := key.Named("labels").Rand()
	shuffle.Shuffle(len(labels), func(i, j int) { labels[i], labels[j] = labels[j], labels[i] })

	noise := distuv.Normal{Mu: 0, Sigma: 1, Src: key.Named("features").Source()}
	x := mat.NewDense(cfg.Users, cfg.Features, nil)
	for u := 0; u < cfg.Users; u++ {
		row := x.RawRowView(u)
		for j := range row {
			row[j] = noise.Rand()
			if j < cfg.Informative {
				row[j] += centroids[labels[u]][j]
			}
		}
	}
	Standardize(x)

	model, err := FitOneVsRest(x, labels, cfg.Arms, cfg.L2, cfg.Workers)
	if err != nil {
		return nil, err
	}

	contexts := x
	if cfg.Intercept {
		contexts = AppendIntercept(x)
	}
	return &Data{
		Contexts:      contexts,
		Probabilities: model.Probabilities(x),
		Labels:        labels,
		Model:         model,
	}, nil
}

// hypercubeCentroids places each class on a distinct vertex of a hypercube
// with side 2·sep when enough vertices exist, and on random vertices
// otherwise.
func hypercubeCentroids(classes, dims int, sep float64, key prng.Key) [][]float64 {
	rng := key.Rand()
	var vertices []int
	if dims < 20 && classes <= 1<<dims {
		vertices = rng.Perm(1 << dims)[:classes]
	}

	out := make([][]float64, classes)
	for c := range out {
		out[c] = make([]float64, dims)
		for j := range out[c] {
			var bit bool
			if vertices != nil {
				bit = vertices[c]>>j&1 == 1
			} else {
				bit = rng.IntN(2) == 1
			}
			if bit {
				out[c][j] = sep
			} else {
				out[c][j] = -sep
			}
		}
	}
	return out
}

// Standardize shifts and scales every column of x in place to zero mean and
// unit variance. Constant columns are only centred.
func Standardize(x *mat.Dense) {
	rows, cols := x.Dims()
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, x)
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		for i := range col {
			col[i] = (col[i] - mean) / std
		}
		x.SetCol(j, col)
	}
}

// AppendIntercept returns a copy of x with a trailing column of ones.
func AppendIntercept(x mat.Matrix) *mat.Dense {
	rows, cols := x.Dims()
	out := mat.NewDense(rows, cols+1, nil)
	out.Slice(0, rows, 0, cols).(*mat.Dense).Copy(x)
	for i := 0; i < rows; i++ {
		out.Set(i, cols, 1)
	}
	return out
}

// dataState is the serialized form of Data.
type dataState struct {
	Version         int       `gob:"version"`
	Users           int       `gob:"users"`
	Dim             int       `gob:"dim"`
	Arms            int       `gob:"arms"`
	ContextData     []float64 `gob:"context_data"`
	ProbabilityData []float64 `gob:"probability_data"`
	Labels          []int     `gob:"labels"`
}

// Save serializes the contexts, probabilities and labels to gob format. The
// fitted model is not kept.
func (d *Data) Save(w io.Writer) error {
	users, dim := d.Contexts.Dims()
	_, arms := d.Probabilities.Dims()
	state := dataState{
		Version:         1,
		Users:           users,
		Dim:             dim,
		Arms:            arms,
		ContextData:     mat.DenseCopyOf(d.Contexts).RawMatrix().Data,
		ProbabilityData: mat.DenseCopyOf(d.Probabilities).RawMatrix().Data,
		Labels:          d.Labels,
	}
	return gob.NewEncoder(w).Encode(state)
}

// Load deserializes data written by Save.
func Load(r io.Reader) (*Data, error) {
	var state dataState
	if err := gob.NewDecoder(r).Decode(&state); err != nil {
		return nil, err
	}
	if state.Version != 1 {
		return nil, errors.New("unsupported gob version")
	}
	if state.Users <= 0 || state.Dim <= 0 || state.Arms <= 0 {
		return nil, errors.New("invalid data shape")
	}
	if len(state.ContextData) != state.Users*state.Dim {
		return nil, errors.New("invalid context data length")
	}
	if len(state.ProbabilityData) != state.Users*state.Arms {
		return nil, errors.New("invalid probability data length")
	}
	if state.Labels != nil && len(state.Labels) != state.Users {
		return nil, errors.New("invalid label count")
	}
	return &Data{
		Contexts:      mat.NewDense(state.Users, state.Dim, state.ContextData),
		Probabilities: mat.NewDense(state.Users, state.Arms, state.ProbabilityData),
		Labels:        state.Labels,
	}, nil
}
