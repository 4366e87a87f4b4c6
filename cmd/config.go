package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/n0madic/go-linucb-sim/dataset"
	"github.com/n0madic/go-linucb-sim/reward"
	"github.com/n0madic/go-linucb-sim/simulation"
)

// FileConfig is the YAML run description.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type FileConfig struct {
	Simulation simulation.Config `yaml:"simulation"`
	Dataset    dataset.Config    `yaml:"dataset"`
}

// DefaultFileConfig returns the built-in defaults. A zero reward weighting
// means 1/(1-sparsity), resolved after flags are applied.
func DefaultFileConfig() FileConfig {
	sim := simulation.DefaultConfig()
	sim.RewardWeighting = 0
	return FileConfig{
		Simulation: sim,
		Dataset:    dataset.DefaultConfig(),
	}
}

// LoadFileConfig reads path over the defaults. Unknown keys are errors.
func LoadFileConfig(path string) (FileConfig, error) {
	cfg := DefaultFileConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	// Parse YAML with strict field checking: typos must cause errors
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// resolve fills derived values once file and flags have been merged.
func (c *FileConfig) resolve() {
	if c.Simulation.RewardWeighting == 0 && c.Simulation.RewardSparsity >= 0 && c.Simulation.RewardSparsity < 1 {
		c.Simulation.RewardWeighting = reward.CompensatingWeight(c.Simulation.RewardSparsity)
	}
	if c.Dataset.Workers == 0 {
		c.Dataset.Workers = c.Simulation.Workers
	}
}

// simFlags are the flags shared by run and generate.
type simFlags struct {
	configPath string

	alpha           float64
	rounds          int
	seed            int64
	rewardSparsity  float64
	rewardWeighting float64
	noiseScale      float64
	workers         int
	recordArmStats  bool

	users       int
	arms        int
	features    int
	informative int
	classSep    float64
	noIntercept bool
}

func (f *simFlags) register(cmd *cobra.Command) {
	defaults := DefaultFileConfig()
	flags := cmd.Flags()
	flags.StringVar(&f.configPath, "config", "", "YAML config file (flags override its values)")

	flags.Float64Var(&f.alpha, "alpha", defaults.Simulation.Alpha, "Exploration weight of the confidence bound")
	flags.IntVar(&f.rounds, "rounds", defaults.Simulation.Rounds, "Number of simulation rounds")
	flags.Int64Var(&f.seed, "seed", defaults.Simulation.Seed, "Root seed for all randomness")
	flags.Float64Var(&f.rewardSparsity, "reward-sparsity", defaults.Simulation.RewardSparsity, "Probability that a reward is withheld, in [0,1)")
	flags.Float64Var(&f.rewardWeighting, "reward-weighting", 0, "Multiplier on delivered rewards (0 = 1/(1-sparsity))")
	flags.Float64Var(&f.noiseScale, "noise-scale", defaults.Simulation.NoiseScale, "Amplitude of the tie-break noise added to scores")
	flags.IntVar(&f.workers, "workers", 0, "Goroutines per round (0 = GOMAXPROCS)")
	flags.BoolVar(&f.recordArmStats, "record-arm-stats", false, "Keep arm statistics snapshots in every round record")

	flags.IntVar(&f.users, "users", defaults.Dataset.Users, "Number of simulated users")
	flags.IntVar(&f.arms, "arms", defaults.Dataset.Arms, "Number of arms")
	flags.IntVar(&f.features, "features", defaults.Dataset.Features, "Number of context features")
	flags.IntVar(&f.informative, "informative", defaults.Dataset.Informative, "Features carrying class signal")
	flags.Float64Var(&f.classSep, "class-sep", defaults.Dataset.ClassSep, "Class centroid separation")
	flags.BoolVar(&f.noIntercept, "no-intercept", false, "Do not append a constant context column")
}

// load merges defaults, the optional config file and explicitly set flags.
func (f *simFlags) load(cmd *cobra.Command) (FileConfig, error) {
	cfg := DefaultFileConfig()
	if f.configPath != "" {
		var err error
		if cfg, err = LoadFileConfig(f.configPath); err != nil {
			return cfg, err
		}
	}

	changed := cmd.Flags().Changed
	if changed("alpha") {
		cfg.Simulation.Alpha = f.alpha
	}
	if changed("rounds") {
		cfg.Simulation.Rounds = f.rounds
	}
	if changed("seed") {
		cfg.Simulation.Seed = f.seed
	}
	if changed("reward-sparsity") {
		cfg.Simulation.RewardSparsity = f.rewardSparsity
	}
	if changed("reward-weighting") {
		cfg.Simulation.RewardWeighting = f.rewardWeighting
	}
	if changed("noise-scale") {
		cfg.Simulation.NoiseScale = f.noiseScale
	}
	if changed("workers") {
		cfg.Simulation.Workers = f.workers
		cfg.Dataset.Workers = f.workers
	}
	if changed("record-arm-stats") {
		cfg.Simulation.RecordArmStats = f.recordArmStats
	}
	if changed("users") {
		cfg.Dataset.Users = f.users
	}
	if changed("arms") {
		cfg.Dataset.Arms = f.arms
	}
	if changed("features") {
		cfg.Dataset.Features = f.features
	}
	if changed("informative") {
		cfg.Dataset.Informative = f.informative
	}
	if changed("class-sep") {
		cfg.Dataset.ClassSep = f.classSep
	}
	if changed("no-intercept") {
		cfg.Dataset.Intercept = !f.noIntercept
	}

	cfg.resolve()
	return cfg, nil
}
