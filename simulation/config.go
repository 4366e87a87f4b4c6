package simulation

import (
	"fmt"
	"math"

	"github.com/n0madic/go-linucb-sim/linucb"
	"github.com/n0madic/go-linucb-sim/reward"
)

// Config holds the run parameters.
type Config struct {
	Alpha           float64 `yaml:"alpha" json:"alpha"`                       // exploration weight, > 0
	RewardSparsity  float64 `yaml:"reward_sparsity" json:"reward_sparsity"`   // probability a reward is withheld, [0,1)
	RewardWeighting float64 `yaml:"reward_weighting" json:"reward_weighting"` // multiplier on delivered rewards, > 0
	Rounds          int     `yaml:"rounds" json:"rounds"`                     // number of rounds, > 0
	Seed            int64   `yaml:"seed" json:"seed"`

	NoiseScale     float64 `yaml:"noise_scale" json:"noise_scale"`           // tie-break noise amplitude, >= 0
	Workers        int     `yaml:"workers" json:"workers"`                   // 0 = GOMAXPROCS
	RecordArmStats bool    `yaml:"record_arm_stats" json:"record_arm_stats"` // keep a deep copy of the statistics in every record
}

// DefaultConfig returns the baseline run parameters.
func DefaultConfig() Config {
	return Config{
		Alpha:           1.0,
		RewardSparsity:  0.0,
		RewardWeighting: 1.0,
		Rounds:          100,
		Seed:            42,
		NoiseScale:      linucb.DefaultNoiseScale,
	}
}

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Validate returns a *ConfigError for the first invalid field.
func (c Config) Validate() error {
	switch {
	case !(c.Alpha > 0) || math.IsInf(c.Alpha, 0):
		return &ConfigError{Field: "alpha", Value: c.Alpha, Reason: "must be a finite value > 0"}
	case !(c.RewardSparsity >= 0 && c.RewardSparsity < 1):
		return &ConfigError{Field: "reward_sparsity", Value: c.RewardSparsity, Reason: "must be in [0,1)"}
	case !(c.RewardWeighting > 0) || math.IsInf(c.RewardWeighting, 0):
		return &ConfigError{Field: "reward_weighting", Value: c.RewardWeighting, Reason: "must be a finite value > 0"}
	case c.Rounds <= 0:
		return &ConfigError{Field: "rounds", Value: c.Rounds, Reason: "must be > 0"}
	case !(c.NoiseScale >= 0) || math.IsInf(c.NoiseScale, 0):
		return &ConfigError{Field: "noise_scale", Value: c.NoiseScale, Reason: "must be a finite value >= 0"}
	case c.Workers < 0:
		return &ConfigError{Field: "workers", Value: c.Workers, Reason: "must be >= 0"}
	}
	return nil
}

// RewardModel returns the reward model described by the configuration.
func (c Config) RewardModel() (reward.Model, error) {
	return reward.New(c.RewardSparsity, c.RewardWeighting)
}
