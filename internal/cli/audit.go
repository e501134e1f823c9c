package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/aille/internal/audit"
	"github.com/ppiankov/aille/internal/config"
)

var errChainBroken = errors.New("audit chain verification failed")

var (
	tailLines    int
	tailFormat   string
	reportFrom   string
	reportTo     string
	reportFormat string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditCmd.AddCommand(auditReportCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent records to show")
	auditTailCmd.Flags().StringVarP(&tailFormat, "format", "f", "text", "Output format (text|json)")
	auditReportCmd.Flags().StringVar(&reportFrom, "from", "", "Start of period, inclusive (RFC3339)")
	auditReportCmd.Flags().StringVar(&reportTo, "to", "", "End of period, inclusive (RFC3339)")
	auditReportCmd.Flags().StringVarP(&reportFormat, "format", "f", "text", "Output format (text|json)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit ledger operations",
	Long:  "Commands for verifying and inspecting the hash-chained decision ledger.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify hash chain integrity of the decision ledger",
	Long: "Recomputes every record's hash and checks that each prev_hash matches the\n" +
		"hash of the record before it. Exits 0 if valid, 1 if tampered.",
	Args: cobra.MaximumNArgs(1),
	RunE: runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail [path]",
	Short: "Show the most recent ledger records",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditTail,
}

var auditReportCmd = &cobra.Command{
	Use:   "report [path]",
	Short: "Generate the regulatory report for a period",
	Long: "Counts decisions by status over an inclusive time range and states\n" +
		"whether the whole ledger chain verifies.",
	Args: cobra.MaximumNArgs(1),
	RunE: runAuditReport,
}

// ledgerFromArgs returns the ledger config with an optional path argument
// applied.
func ledgerFromArgs(args []string) (config.LedgerConfig, audit.Digest, error) {
	lc := appCfg.Ledger
	if len(args) == 1 {
		lc.Path = args[0]
	}
	if lc.Backend == config.BackendMemory {
		return lc, nil, errors.New("the memory backend keeps no ledger to inspect")
	}
	d, err := audit.DigestByName(lc.Digest)
	if err != nil {
		return lc, nil, err
	}
	if _, err := os.Stat(lc.Path); err != nil {
		return lc, nil, fmt.Errorf("ledger %s: %w", lc.Path, err)
	}
	return lc, d, nil
}

func openStore(lc config.LedgerConfig) (audit.Store, error) {
	if lc.Backend == config.BackendSQLite {
		return audit.OpenSQLite(lc.Path)
	}
	return audit.OpenJSONL(lc.Path)
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	lc, d, err := ledgerFromArgs(args)
	if err != nil {
		return err
	}

	var result audit.VerifyResult
	if lc.Backend == config.BackendSQLite {
		s, err := audit.OpenSQLite(lc.Path)
		if err != nil {
			return err
		}
		defer s.Close()
		result = audit.VerifyStore(s, d)
	} else {
		result = audit.VerifyFile(lc.Path, d)
	}

	if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d records verified (%s)\n", result.Records, d.Name())
		return nil
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "FAILED at record %d: %s\n", result.ErrorRecord, result.Error)
	return errChainBroken
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	lc, _, err := ledgerFromArgs(args)
	if err != nil {
		return err
	}
	s, err := openStore(lc)
	if err != nil {
		return err
	}
	defer s.Close()

	records, err := s.Load()
	if err != nil {
		return err
	}
	if start := len(records) - tailLines; start > 0 {
		records = records[start:]
	}

	out := cmd.OutOrStdout()
	if tailFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}
	fmt.Fprint(out, audit.FormatRecords(records))
	return nil
}

func runAuditReport(cmd *cobra.Command, args []string) error {
	from, err := parseTimeFlag("from", reportFrom)
	if err != nil {
		return err
	}
	to, err := parseTimeFlag("to", reportTo)
	if err != nil {
		return err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return fmt.Errorf("--to %s is before --from %s", reportTo, reportFrom)
	}

	lc, d, err := ledgerFromArgs(args)
	if err != nil {
		return err
	}
	s, err := openStore(lc)
	if err != nil {
		return err
	}
	ledger, err := audit.Open(s, audit.WithDigest(d), audit.WithLogger(appLog))
	if err != nil {
		s.Close()
		return err
	}
	defer ledger.Close()

	rep := ledger.Report(from, to)
	if reportFormat == "json" {
		out, err := audit.FormatJSON(rep)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), audit.FormatReport(rep))
	return nil
}

func parseTimeFlag(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s time %q: %w", name, v, err)
	}
	return t, nil
}
