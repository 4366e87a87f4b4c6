// Package report aggregates simulation diagnostics into per-round mean and
// percentile bands across the user population.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/n0madic/go-linucb-sim/internal/parallel"
	"github.com/n0madic/go-linucb-sim/simulation"
)

// Percentiles reported in every Band.
var Percentiles = []float64{0.05, 0.25, 0.50, 0.75, 0.95}

// Band summarises one round of one quantity across users.
type Band struct {
	Mean float64 `json:"mean"`
	P5   float64 `json:"p5"`
	P25  float64 `json:"p25"`
	P50  float64 `json:"p50"`
	P75  float64 `json:"p75"`
	P95  float64 `json:"p95"`
}

// NewBand computes the mean and empirical percentiles of xs. xs is not
// modified.
func NewBand(xs []float64) Band {
	if len(xs) == 0 {
		return Band{}
	}
	sorted := slices.Clone(xs)
	slices.Sort(sorted)

	q := make([]float64, len(Percentiles))
	for i, p := range Percentiles {
		q[i] = stat.Quantile(p, stat.Empirical, sorted, nil)
	}
	return Band{
		Mean: stat.Mean(xs, nil),
		P5:   q[0],
		P25:  q[1],
		P50:  q[2],
		P75:  q[3],
		P95:  q[4],
	}
}

// Series is one policy's per-round aggregates.
type Series struct {
	Reward []Band `json:"reward"`
	Regret []Band `json:"regret"`
	// CumulativeRegret[t] is the sum of mean regret over rounds 0..t.
	CumulativeRegret []float64 `json:"cumulative_regret"`
}

// Summary is the aggregated view of a run.
type Summary struct {
	RunID    string            `json:"run_id"`
	Config   simulation.Config `json:"config"`
	Rounds   int               `json:"rounds"`
	Users    int               `json:"users"`
	Arms     int               `json:"arms"`
	Policies map[string]Series `json:"policies"`
}

// Summarize aggregates diag, processing rounds in parallel.
func Summarize(diag *simulation.Diagnostics, workers int) (Summary, error) {
	rounds := len(diag.Records)
	s := Summary{
		RunID:    diag.RunID,
		Config:   diag.Config,
		Rounds:   rounds,
		Users:    diag.Users,
		Arms:     diag.Arms,
		Policies: make(map[string]Series, 2),
	}

	for _, policy := range []string{simulation.PolicyLinUCB, simulation.PolicyRandom} {
		series := Series{
			Reward: make([]Band, rounds),
			Regret: make([]Band, rounds),
		}
		err := parallel.ForEach(rounds, workers, func(t int) error {
			out, ok := diag.Records[t].Policy(policy)
			if !ok {
				return fmt.Errorf("round %d: no outcome for policy %q", t, policy)
			}
			series.Reward[t] = NewBand(out.Rewards)
			series.Regret[t] = NewBand(out.Regrets)
			return nil
		})
		if err != nil {
			return Summary{}, err
		}

		means := make([]float64, rounds)
		for t, b := range series.Regret {
			means[t] = b.Mean
		}
		series.CumulativeRegret = floats.CumSum(make([]float64, rounds), means)
		s.Policies[policy] = series
	}
	return s, nil
}

// Totals are the end-of-run figures of one policy.
type Totals struct {
	Policy           string  `json:"policy"`
	FinalMeanReward  float64 `json:"final_mean_reward"`
	FinalMeanRegret  float64 `json:"final_mean_regret"`
	AverageReward    float64 `json:"average_reward"`
	CumulativeRegret float64 `json:"cumulative_regret"`
}

// Final returns the totals of every policy in a stable order.
func (s Summary) Final() []Totals {
	var out []Totals
	for _, policy := range []string{simulation.PolicyLinUCB, simulation.PolicyRandom} {
		series, ok := s.Policies[policy]
		if !ok || len(series.Regret) == 0 {
			continue
		}
		last := len(series.Regret) - 1
		rewards := make([]float64, len(series.Reward))
		for t, b := range series.Reward {
			rewards[t] = b.Mean
		}
		out = append(out, Totals{
			Policy:           policy,
			FinalMeanReward:  series.Reward[last].Mean,
			FinalMeanRegret:  series.Regret[last].Mean,
			AverageReward:    stat.Mean(rewards, nil),
			CumulativeRegret: series.CumulativeRegret[last],
		})
	}
	return out
}

// WriteJSON writes s as indented JSON.
func WriteJSON(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
