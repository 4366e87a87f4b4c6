package cmd

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newGenerateCmd() *cobra.Command {
	var (
		flags   simFlags
		outPath string
	)

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a synthetic context and probability dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath == "" {
				return errors.New("--out is required")
			}
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}

			data, err := loadOrGenerate("", cfg, logrus.NewEntry(logrus.StandardLogger()))
			if err != nil {
				return err
			}
			if err := writeFile(outPath, data.Save); err != nil {
				return fmt.Errorf("saving dataset: %w", err)
			}
			logrus.Infof("Dataset written to %s", outPath)
			return nil
		},
	}

	flags.register(generateCmd)
	generateCmd.Flags().StringVar(&outPath, "out", "", "Write the dataset (gob) to this file")
	return generateCmd
}
