package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/dog-breed-api/internal/model"
)

var predictCmd = &cobra.Command{
	Use:          "predict <image>...",
	Short:        "Print the predicted breed for each image",
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPredict(cmd, args)
	},
}

func runPredict(cmd *cobra.Command, paths []string) error {
	_, log, classifier, err := setup()
	if err != nil {
		return err
	}
	defer teardown(log, classifier)

	if err := classifier.Err(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, path := range paths {
		pred, err := classifier.Predict(path)
		if errors.Is(err, model.ErrInference) {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err != nil {
			failed++
			fmt.Fprintf(out, "%s: error: %v\n", path, err)
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", path, pred.Label)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d images could not be classified", failed, len(paths))
	}
	return nil
}
