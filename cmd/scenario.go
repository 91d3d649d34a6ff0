package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/floodrescue/infra/logger"
	"github.com/kilianp07/floodrescue/qa/scenarios"
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario <file.yaml>...",
	Short: "Replay YAML scenarios against an in-memory engine",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScenarios,
}

func init() {
	rootCmd.AddCommand(scenarioCmd)
}

func runScenarios(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	failed := 0
	for _, path := range args {
		sc, err := scenarios.Load(path)
		if err != nil {
			return err
		}
		rep, err := scenarios.Run(context.Background(), sc, logger.New("scenario"))
		if err != nil {
			return fmt.Errorf("%s: %w", sc.Name, err)
		}
		mismatches := rep.Check(sc.Expected)
		if len(mismatches) == 0 {
			fmt.Fprintf(out, "PASS %s (created=%d accepted=%d rejected=%d)\n", sc.Name, rep.Created, rep.Accepted, rep.Rejected)
			continue
		}
		failed++
		fmt.Fprintf(out, "FAIL %s\n", sc.Name)
		for _, m := range mismatches {
			fmt.Fprintf(out, "  %s\n", m)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(args))
	}
	return nil
}
