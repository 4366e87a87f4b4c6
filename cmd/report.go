package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/n0madic/go-linucb-sim/simulation"
)

func newReportCmd() *cobra.Command {
	var (
		inPath      string
		summaryPath string
		workers     int
	)

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Re-aggregate a saved diagnostics log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if inPath == "" {
				return errors.New("--in is required")
			}
			f, err := os.Open(inPath)
			if err != nil {
				return err
			}
			defer f.Close()

			diag, err := simulation.LoadDiagnostics(f)
			if err != nil {
				return fmt.Errorf("loading diagnostics %s: %w", inPath, err)
			}
			log := logrus.WithField("run_id", diag.RunID)
			log.Infof("Loaded %d rounds from %s", len(diag.Records), inPath)
			return summarize(cmd.OutOrStdout(), diag, summaryPath, workers, log)
		},
	}

	reportCmd.Flags().StringVar(&inPath, "in", "", "Diagnostics log written by 'run --out'")
	reportCmd.Flags().StringVar(&summaryPath, "summary", "", "Write the aggregated summary (JSON) to this file")
	reportCmd.Flags().IntVar(&workers, "workers", 0, "Goroutines used for aggregation (0 = GOMAXPROCS)")
	return reportCmd
}
