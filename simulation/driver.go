// Package simulation runs the round loop that pits a pooled LinUCB learner
// against a uniform-random baseline over a fixed user population.
package simulation

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/n0madic/go-linucb-sim/internal/parallel"
	"github.com/n0madic/go-linucb-sim/linucb"
	"github.com/n0madic/go-linucb-sim/prng"
	"github.com/n0madic/go-linucb-sim/reward"
)

// Inputs are the read-only tables a run consumes.
type Inputs struct {
	Contexts      *mat.Dense // [users, d], shared by all arms
	Probabilities *mat.Dense // [users, arms], entries in [0,1]
}

// Driver owns the round loop. The per-arm statistics and the PRNG key are
// threaded through step as values; nothing else is mutated between rounds.
type Driver struct {
	cfg   Config
	data  Inputs
	model reward.Model

	users, arms, dim int

	workers         int
	checkInvariants bool
	metrics         *Metrics
	log             *logrus.Entry
	runID           string
}

// Option is a function type for configuring Driver
type Option func(*Driver)

// WithWorkers bounds the goroutines used inside a round (0 = GOMAXPROCS).
// It overrides Config.Workers. Results do not depend on it.
func WithWorkers(n int) Option {
	return func(d *Driver) {
		d.workers = n
	}
}

// WithCheckInvariants verifies after every update that each Gram matrix is
// still positive definite.
func WithCheckInvariants(on bool) Option {
	return func(d *Driver) {
		d.checkInvariants = on
	}
}

// WithMetrics records per-round metrics.
func WithMetrics(m *Metrics) Option {
	return func(d *Driver) {
		d.metrics = m
	}
}

// WithLogger sets the log entry used for run progress.
func WithLogger(l *logrus.Entry) Option {
	return func(d *Driver) {
		d.log = l
	}
}

// WithRunID sets the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(d *Driver) {
		d.runID = id
	}
}

// New validates cfg and data and returns a driver ready to Run. Invalid
// configuration yields a *ConfigError and shape mismatches a
// *linucb.DimensionError; no round is executed in either case.
func New(cfg Config, data Inputs, opts ...Option) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	model, err := cfg.RewardModel()
	if err != nil {
		return nil, err
	}

	d := &Driver{
		cfg:     cfg,
		data:    data,
		model:   model,
		workers: cfg.Workers,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.workers < 0 {
		return nil, &ConfigError{Field: "workers", Value: d.workers, Reason: "must be >= 0"}
	}
	if d.runID == "" {
		d.runID = uuid.NewString()
	}
	if d.log == nil {
		d.log = logrus.NewEntry(logrus.StandardLogger())
	}
	d.log = d.log.WithField("run_id", d.runID)

	if err := d.validateInputs(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) validateInputs() error {
	if d.data.Contexts == nil || d.data.Contexts.IsEmpty() {
		return &ConfigError{Field: "contexts", Value: nil, Reason: "must be a non-empty matrix"}
	}
	if d.data.Probabilities == nil || d.data.Probabilities.IsEmpty() {
		return &ConfigError{Field: "probabilities", Value: nil, Reason: "must be a non-empty matrix"}
	}

	users, dim := d.data.Contexts.Dims()
	rows, arms := d.data.Probabilities.Dims()
	if rows != users {
		return &linucb.DimensionError{Expected: users, Got: rows, Type: "probability table rows"}
	}

	for u := 0; u < users; u++ {
		for _, v := range d.data.Contexts.RawRowView(u) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &ConfigError{Field: "contexts", Value: v, Reason: fmt.Sprintf("row %d is not finite", u)}
			}
		}
	}

	zeroRows := 0
	for u := 0; u < users; u++ {
		allZero := true
		for k, p := range d.data.Probabilities.RawRowView(u) {
			if !(p >= 0 && p <= 1) {
				return &ConfigError{Field: "probabilities", Value: p, Reason: fmt.Sprintf("entry [%d,%d] outside [0,1]", u, k)}
			}
			if p != 0 {
				allZero = false
			}
		}
		if allZero {
			zeroRows++
		}
	}
	if zeroRows > 0 {
		d.log.Warnf("%d of %d users have an all-zero probability row; their rewards are always 0", zeroRows, users)
	}

	d.users, d.arms, d.dim = users, arms, dim
	return nil
}

// RunID returns the identifier attached to logs, metrics and diagnostics.
func (d *Driver) RunID() string {
	return d.runID
}

// state is the value threaded from one round to the next.
type state struct {
	round int
	key   prng.Key
	arms  []linucb.ArmStatistics
}

func (d *Driver) initial() state {
	return state{
		round: 0,
		key:   prng.New(d.cfg.Seed),
		arms:  linucb.InitArms(d.arms, d.dim),
	}
}

// step advances one round. The incoming key is split and never drawn from
// directly; only the returned state's key survives the round.
func (d *Driver) step(s state) (state, RoundRecord, error) {
	keys := s.key.Split(4)
	noiseKey, randomKey, rewardKey, next := keys[0], keys[1], keys[2], keys[3]
	choiceKey, randomRewardKey := randomKey.Split2()

	scores, err := linucb.ScoreAll(s.arms, d.data.Contexts, d.cfg.Alpha, linucb.ScoreOptions{
		NoiseScale: d.cfg.NoiseScale,
		NoiseKey:   noiseKey,
		Workers:    d.workers,
	})
	if err != nil {
		return state{}, RoundRecord{}, fmt.Errorf("round %d: %w", s.round, err)
	}

	rec := RoundRecord{Round: s.round}
	rec.LinUCB.Choices = linucb.ChooseUCB(scores)
	rec.Random.Choices = linucb.ChooseRandom(d.users, d.arms, choiceKey)

	rec.LinUCB.Rewards, rec.LinUCB.Regrets, err = d.model.DrawAll(rec.LinUCB.Choices, d.data.Probabilities, rewardKey, d.workers)
	if err != nil {
		return state{}, RoundRecord{}, fmt.Errorf("round %d: %w", s.round, err)
	}
	rec.Random.Rewards, rec.Random.Regrets, err = d.model.DrawAll(rec.Random.Choices, d.data.Probabilities, randomRewardKey, d.workers)
	if err != nil {
		return state{}, RoundRecord{}, fmt.Errorf("round %d: %w", s.round, err)
	}

	arms, err := linucb.PooledUpdate(s.arms, d.data.Contexts, rec.LinUCB.Choices, rec.LinUCB.Rewards, d.workers)
	if err != nil {
		return state{}, RoundRecord{}, fmt.Errorf("round %d: %w", s.round, err)
	}
	if d.checkInvariants {
		err := parallel.ForEach(len(arms), d.workers, func(k int) error {
			if err := arms[k].CheckPositiveDefinite(); err != nil {
				return fmt.Errorf("round %d arm %d: %w", s.round, k, err)
			}
			return nil
		})
		if err != nil {
			return state{}, RoundRecord{}, err
		}
	}

	// Snapshots are taken after the round's update.
	if d.cfg.RecordArmStats {
		rec.ArmStats = make([]ArmSnapshot, len(arms))
		for k, a := range arms {
			rec.ArmStats[k] = snapshotArm(a)
		}
	}

	return state{round: s.round + 1, key: next, arms: arms}, rec, nil
}

// Run executes exactly Config.Rounds rounds and returns their records. A
// numerical failure aborts the run; no partial diagnostics are returned.
func (d *Driver) Run() (*Diagnostics, error) {
	d.log.Infof("Starting simulation: rounds=%d users=%d arms=%d dim=%d alpha=%g sparsity=%g weighting=%g seed=%d",
		d.cfg.Rounds, d.users, d.arms, d.dim, d.cfg.Alpha, d.cfg.RewardSparsity, d.cfg.RewardWeighting, d.cfg.Seed)

	diag := &Diagnostics{
		RunID:   d.runID,
		Config:  d.cfg,
		Users:   d.users,
		Arms:    d.arms,
		Dim:     d.dim,
		Records: make([]RoundRecord, 0, d.cfg.Rounds),
	}

	start := time.Now()
	s := d.initial()
	for s.round < d.cfg.Rounds {
		roundStart := time.Now()
		next, rec, err := d.step(s)
		if err != nil {
			d.log.WithError(err).Errorf("Simulation aborted at round %d", s.round)
			return nil, err
		}
		if d.metrics != nil {
			d.metrics.observe(rec, time.Since(roundStart))
		}
		d.log.Debugf("[round %04d] linucb reward=%.4f regret=%.4f | random reward=%.4f regret=%.4f",
			rec.Round, rec.LinUCB.MeanReward(), rec.LinUCB.MeanRegret(), rec.Random.MeanReward(), rec.Random.MeanRegret())

		diag.Records = append(diag.Records, rec)
		s = next
	}

	last := diag.Records[len(diag.Records)-1]
	d.log.Infof("Simulation finished in %s: final mean regret linucb=%.4f random=%.4f",
		time.Since(start).Round(time.Millisecond), last.LinUCB.MeanRegret(), last.Random.MeanRegret())
	return diag, nil
}

// Run is a shorthand for New followed by Run.
func Run(cfg Config, data Inputs, opts ...Option) (*Diagnostics, error) {
	d, err := New(cfg, data, opts...)
	if err != nil {
		return nil, err
	}
	return d.Run()
}
