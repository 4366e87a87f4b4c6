package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the CLI command tree.
func NewRootCmd() *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "linucb-sim",
		Short: "Pooled LinUCB contextual bandit simulator",
		Long: "linucb-sim runs a pooled LinUCB learner against a uniform-random baseline\n" +
			"over a synthetic user population and reports reward and regret per round.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")

	rootCmd.AddCommand(newRunCmd(), newGenerateCmd(), newReportCmd())
	return rootCmd
}

// Execute runs the CLI root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
