package simulation

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/n0madic/go-linucb-sim/linucb"
)

const diagnosticsVersion = 1

// Policy names used in records, metrics and reports.
const (
	PolicyLinUCB = "linucb"
	PolicyRandom = "random"
)

// PolicyOutcome holds one policy's per-user results for a round.
type PolicyOutcome struct {
	Choices []int     `gob:"choices"`
	Rewards []float64 `gob:"rewards"`
	Regrets []float64 `gob:"regrets"`
}

// MeanReward returns the population-average reward.
func (p PolicyOutcome) MeanReward() float64 { return stat.Mean(p.Rewards, nil) }

// MeanRegret returns the population-average regret.
func (p PolicyOutcome) MeanRegret() float64 { return stat.Mean(p.Regrets, nil) }

// ArmSnapshot is a flattened copy of one arm's statistics.
type ArmSnapshot struct {
	Dim int       `gob:"dim"`
	A   []float64 `gob:"a"` // row-major d x d
	B   []float64 `gob:"b"`
}

func snapshotArm(s linucb.ArmStatistics) ArmSnapshot {
	d := s.Dim()
	a := make([]float64, 0, d*d)
	for i := 0; i < d; i++ {
		for j := 0; j < d; j++ {
			a = append(a, s.A.At(i, j))
		}
	}
	b := make([]float64, d)
	copy(b, s.B.RawVector().Data)
	return ArmSnapshot{Dim: d, A: a, B: b}
}

// Statistics rebuilds the arm statistics from the snapshot.
func (s ArmSnapshot) Statistics() (linucb.ArmStatistics, error) {
	if len(s.A) != s.Dim*s.Dim {
		return linucb.ArmStatistics{}, &linucb.DimensionError{Expected: s.Dim * s.Dim, Got: len(s.A), Type: "snapshot A"}
	}
	if len(s.B) != s.Dim {
		return linucb.ArmStatistics{}, &linucb.DimensionError{Expected: s.Dim, Got: len(s.B), Type: "snapshot b"}
	}
	a := mat.NewSymDense(s.Dim, append([]float64(nil), s.A...))
	b := mat.NewVecDense(s.Dim, append([]float64(nil), s.B...))
	return linucb.ArmStatistics{A: a, B: b}, nil
}

// RoundRecord is the diagnostics entry of one round. Records are never
// modified after the driver appends them.
type RoundRecord struct {
	Round    int           `gob:"round"`
	LinUCB   PolicyOutcome `gob:"linucb"`
	Random   PolicyOutcome `gob:"random"`
	ArmStats []ArmSnapshot `gob:"arm_stats"` // nil unless RecordArmStats is set
}

// Policy returns the outcome recorded for the named policy.
func (r RoundRecord) Policy(name string) (PolicyOutcome, bool) {
	switch name {
	case PolicyLinUCB:
		return r.LinUCB, true
	case PolicyRandom:
		return r.Random, true
	}
	return PolicyOutcome{}, false
}

// Diagnostics is the output of a run: one record per round plus the
// parameters needed to interpret them.
type Diagnostics struct {
	RunID   string        `gob:"run_id"`
	Config  Config        `gob:"config"`
	Users   int           `gob:"users"`
	Arms    int           `gob:"arms"`
	Dim     int           `gob:"dim"`
	Records []RoundRecord `gob:"records"`
}

// diagnosticsState is the serialized form of Diagnostics.
type diagnosticsState struct {
	Version int         `gob:"version"`
	Diag    Diagnostics `gob:"diag"`
}

// Save serializes the diagnostics to gob format.
func (d *Diagnostics) Save(w io.Writer) error {
	encoder := gob.NewEncoder(w)
	return encoder.Encode(diagnosticsState{Version: diagnosticsVersion, Diag: *d})
}

// LoadDiagnostics deserializes diagnostics written by Save.
func LoadDiagnostics(r io.Reader) (*Diagnostics, error) {
	decoder := gob.NewDecoder(r)

	var state diagnosticsState
	if err := decoder.Decode(&state); err != nil {
		return nil, err
	}
	if state.Version != diagnosticsVersion {
		return nil, errors.New("unsupported gob version")
	}

	d := state.Diag
	if len(d.Records) != d.Config.Rounds {
		return nil, fmt.Errorf("invalid record count: got %d, want %d", len(d.Records), d.Config.Rounds)
	}
	for i, rec := range d.Records {
		for _, p := range []PolicyOutcome{rec.LinUCB, rec.Random} {
			if len(p.Choices) != d.Users || len(p.Rewards) != d.Users || len(p.Regrets) != d.Users {
				return nil, fmt.Errorf("invalid per-user data length in round %d", i)
			}
		}
		if rec.ArmStats != nil && len(rec.ArmStats) != d.Arms {
			return nil, fmt.Errorf("invalid arm snapshot count in round %d", i)
		}
	}
	return &d, nil
}
