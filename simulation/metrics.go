package simulation

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects per-run counters on a private registry. A batch run
// exports them once with WriteTextfile; nothing is served over HTTP.
type Metrics struct {
	registry *prometheus.Registry

	// rounds counts completed rounds.
	rounds prometheus.Counter

	// armPulls counts arm selections.
	// Labels: policy (linucb, random), arm (index)
	armPulls *prometheus.CounterVec

	// cumulativeRegret sums the per-round population-mean regret.
	// Labels: policy
	cumulativeRegret *prometheus.GaugeVec

	// meanReward is the population-mean reward of the latest round.
	// Labels: policy
	meanReward *prometheus.GaugeVec

	// roundDuration measures wall time per round.
	roundDuration prometheus.Histogram
}

// NewMetrics creates a metrics set on a fresh registry. Every series carries
// the run_id constant label.
func NewMetrics(runID string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"run_id": runID}, reg))

	return &Metrics{
		registry: reg,
		rounds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "linucb_sim",
			Name:      "rounds_total",
			Help:      "Total simulation rounds completed",
		}),
		armPulls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linucb_sim",
			Name:      "arm_pulls_total",
			Help:      "Total arm selections by policy and arm",
		}, []string{"policy", "arm"}),
		cumulativeRegret: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "linucb_sim",
			Name:      "cumulative_mean_regret",
			Help:      "Sum over rounds of the population-mean regret",
		}, []string{"policy"}),
		meanReward: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "linucb_sim",
			Name:      "round_mean_reward",
			Help:      "Population-mean reward of the latest round",
		}, []string{"policy"}),
		roundDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "linucb_sim",
			Name:      "round_duration_seconds",
			Help:      "Wall time of one simulation round",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// observe records one completed round.
func (m *Metrics) observe(rec RoundRecord, elapsed time.Duration) {
	m.rounds.Inc()
	m.roundDuration.Observe(elapsed.Seconds())
	for _, policy := range []string{PolicyLinUCB, PolicyRandom} {
		out, _ := rec.Policy(policy)
		pulls := make(map[int]int)
		for _, k := range out.Choices {
			pulls[k]++
		}
		for k, n := range pulls {
			m.armPulls.WithLabelValues(policy, strconv.Itoa(k)).Add(float64(n))
		}
		m.cumulativeRegret.WithLabelValues(policy).Add(out.MeanRegret())
		m.meanReward.WithLabelValues(policy).Set(out.MeanReward())
	}
}

// WriteTextfile writes the current metric values in the Prometheus text
// exposition format, suitable for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
