package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/n0madic/go-linucb-sim/dataset"
	"github.com/n0madic/go-linucb-sim/prng"
	"github.com/n0madic/go-linucb-sim/report"
	"github.com/n0madic/go-linucb-sim/simulation"
)

func newRunCmd() *cobra.Command {
	var (
		flags           simFlags
		dataPath        string
		outPath         string
		summaryPath     string
		metricsPath     string
		checkInvariants bool
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the LinUCB vs random simulation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}

			runID := uuid.NewString()
			log := logrus.WithField("run_id", runID)

			data, err := loadOrGenerate(dataPath, cfg, log)
			if err != nil {
				return err
			}

			opts := []simulation.Option{
				simulation.WithRunID(runID),
				simulation.WithCheckInvariants(checkInvariants),
			}
			var metrics *simulation.Metrics
			if metricsPath != "" {
				metrics = simulation.NewMetrics(runID)
				opts = append(opts, simulation.WithMetrics(metrics))
			}

			diag, err := simulation.Run(cfg.Simulation, simulation.Inputs{
				Contexts:      data.Contexts,
				Probabilities: data.Probabilities,
			}, opts...)
			if err != nil {
				return err
			}

			if outPath != "" {
				if err := writeFile(outPath, diag.Save); err != nil {
					return fmt.Errorf("saving diagnostics: %w", err)
				}
				log.Infof("Diagnostics written to %s", outPath)
			}
			if metrics != nil {
				if err := metrics.WriteTextfile(metricsPath); err != nil {
					return fmt.Errorf("writing metrics: %w", err)
				}
				log.Infof("Metrics written to %s", metricsPath)
			}
			return summarize(cmd.OutOrStdout(), diag, summaryPath, cfg.Simulation.Workers, log)
		},
	}

	flags.register(runCmd)
	runCmd.Flags().StringVar(&dataPath, "data", "", "Dataset written by 'generate' (default: generate in memory)")
	runCmd.Flags().StringVar(&outPath, "out", "", "Write the diagnostics log (gob) to this file")
	runCmd.Flags().StringVar(&summaryPath, "summary", "", "Write the aggregated summary (JSON) to this file")
	runCmd.Flags().StringVar(&metricsPath, "metrics-file", "", "Write Prometheus metrics in text format to this file")
	runCmd.Flags().BoolVar(&checkInvariants, "check-invariants", false, "Verify every Gram matrix is positive definite after each round")
	return runCmd
}

// loadOrGenerate reads a saved dataset or generates one from the run seed.
func loadOrGenerate(path string, cfg FileConfig, log *logrus.Entry) (*dataset.Data, error) {
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		data, err := dataset.Load(f)
		if err != nil {
			return nil, fmt.Errorf("loading dataset %s: %w", path, err)
		}
		users, dim := data.Contexts.Dims()
		_, arms := data.Probabilities.Dims()
		log.Infof("Loaded dataset %s: users=%d dim=%d arms=%d", path, users, dim, arms)
		return data, nil
	}

	log.Infof("Generating dataset: users=%d features=%d informative=%d arms=%d",
		cfg.Dataset.Users, cfg.Dataset.Features, cfg.Dataset.Informative, cfg.Dataset.Arms)
	return dataset.Generate(cfg.Dataset, datasetKey(cfg.Simulation.Seed))
}

// datasetKey is independent of the key driving the round loop.
func datasetKey(seed int64) prng.Key {
	return prng.New(seed).Named("dataset")
}

func summarize(w io.Writer, diag *simulation.Diagnostics, summaryPath string, workers int, log *logrus.Entry) error {
	summary, err := report.Summarize(diag, workers)
	if err != nil {
		return err
	}
	if summaryPath != "" {
		err := writeFile(summaryPath, func(w io.Writer) error {
			return report.WriteJSON(w, summary)
		})
		if err != nil {
			return fmt.Errorf("writing summary: %w", err)
		}
		log.Infof("Summary written to %s", summaryPath)
	}
	printTotals(w, summary)
	return nil
}

func printTotals(w io.Writer, s report.Summary) {
	fmt.Fprintf(w, "=== Run %s: %d rounds, %d users, %d arms ===\n", s.RunID, s.Rounds, s.Users, s.Arms)
	fmt.Fprintf(w, "%-8s %14s %14s %14s %16s\n", "policy", "final reward", "final regret", "avg reward", "cum. regret")
	for _, t := range s.Final() {
		fmt.Fprintf(w, "%-8s %14.4f %14.4f %14.4f %16.4f\n",
			t.Policy, t.FinalMeanReward, t.FinalMeanRegret, t.AverageReward, t.CumulativeRegret)
	}
}

// writeFile creates path and hands it to write, reporting close errors.
func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return write(f)
}
