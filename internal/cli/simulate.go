package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/aille/internal/fusion"
	"github.com/ppiankov/aille/internal/ingest"
	"github.com/ppiankov/aille/internal/sim"
)

var (
	simBatches   string
	simCandidate string
	simCount     int
	simSeed      uint64
	simFormat    string
)

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&simBatches, "batches", "", "Recorded signal batches, JSONL (simulated when empty)")
	simulateCmd.Flags().StringVar(&simCandidate, "candidate", "", "Path to candidate engine thresholds YAML (required)")
	simulateCmd.Flags().IntVarP(&simCount, "count", "n", 500, "Number of simulated batches when --batches is empty")
	simulateCmd.Flags().Uint64Var(&simSeed, "seed", 42, "Seed for simulated batches")
	simulateCmd.Flags().StringVarP(&simFormat, "format", "f", "text", "Output format (text|json)")
	simulateCmd.MarkFlagRequired("candidate")
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay signal batches against candidate thresholds and show decision diffs",
	Long: "Runs each batch through an engine with the current thresholds and one with\n" +
		"the candidate thresholds, and shows which decisions changed.\n\n" +
		"Use this to preview threshold changes before deploying them.",
	RunE: runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(simCandidate); err != nil {
		return fmt.Errorf("candidate thresholds: %w", err)
	}
	candidate, err := fusion.LoadConfig(simCandidate)
	if err != nil {
		return err
	}

	var batches []ingest.Batch
	if simBatches != "" {
		batches, err = readBatchesFrom(cmd, simBatches)
		if err != nil {
			return err
		}
	} else {
		batches = sim.NewMarket(simSeed, "SIM", nil).Batches(simCount)
	}

	result, err := sim.Simulate(batches, appCfg.Engine, candidate)
	if err != nil {
		return err
	}

	switch simFormat {
	case "json":
		out, err := sim.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	default:
		fmt.Fprint(cmd.OutOrStdout(), sim.FormatText(result))
	}
	return nil
}
