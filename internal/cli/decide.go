package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/aille/internal/audit"
	"github.com/ppiankov/aille/internal/enforce"
	"github.com/ppiankov/aille/internal/ingest"
	"github.com/ppiankov/aille/internal/metrics"
	"github.com/ppiankov/aille/internal/model"
)

var (
	decideInput   string
	decideFormat  string
	decideSummary bool
)

func init() {
	rootCmd.AddCommand(decideCmd)
	decideCmd.Flags().StringVarP(&decideInput, "input", "i", "-", "Signal batches, one JSON object per line (- for stdin)")
	decideCmd.Flags().StringVarP(&decideFormat, "format", "f", "json", "Output format (json|text)")
	decideCmd.Flags().BoolVar(&decideSummary, "summary", false, "Print a metrics snapshot after the last decision")
}

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Fuse signal batches into decisions and record them in the ledger",
	Long: "Reads signal batches (JSON or JSONL), runs one decision cycle per batch,\n" +
		"appends each decision to the configured audit ledger and prints the\n" +
		"decision together with the action to take.",
	RunE: runDecide,
}

// decisionLine is one output record of the decide command.
type decisionLine struct {
	Decision   model.Decision `json:"decision"`
	Action     enforce.Action `json:"action"`
	DecisionID uint64         `json:"decision_id"`
	Hash       string         `json:"hash"`
	Persisted  bool           `json:"persisted"`
}

func runDecide(cmd *cobra.Command, args []string) error {
	batches, err := readBatchesFrom(cmd, decideInput)
	if err != nil {
		return err
	}

	engine, err := newEngine(appCfg.Engine)
	if err != nil {
		return err
	}
	ledger, err := openLedger(appCfg.Ledger)
	if err != nil {
		return err
	}
	defer ledger.Close()
	collector := metrics.NewCollector()

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	for _, b := range batches {
		d := engine.MakeDecision(b.Signals)
		collector.Observe(d)

		line := decisionLine{Decision: d, Action: enforce.Plan(d), Persisted: true}
		rec, err := ledger.Append(d, b.Metadata())
		var perr *audit.PersistError
		switch {
		case err == nil:
		case errors.As(err, &perr):
			line.Persisted = false
		default:
			return fmt.Errorf("record decision: %w", err)
		}
		line.DecisionID, line.Hash = rec.DecisionID, rec.Hash

		if decideFormat == "text" {
			fmt.Fprintf(out, "#%-5d %-24s value=%+.6f conf=%.3f agreed=%d action=%s\n",
				line.DecisionID, d.Status, d.FinalValue, d.Confidence, d.ModelsAgreed, line.Action.Kind)
			continue
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("write decision: %w", err)
		}
	}

	if decideSummary {
		fmt.Fprintln(cmd.ErrOrStderr(), metrics.FormatSnapshot(collector.Snapshot()))
	}
	if ledger.Diverged() {
		return fmt.Errorf("%d decision(s) not persisted to %s", ledger.Pending(), appCfg.Ledger.Path)
	}
	return nil
}

func readBatchesFrom(cmd *cobra.Command, path string) ([]ingest.Batch, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" && path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	return ingest.ReadBatches(r)
}
