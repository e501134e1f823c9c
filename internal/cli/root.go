package cli

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ppiankov/aille/internal/audit"
	"github.com/ppiankov/aille/internal/config"
	"github.com/ppiankov/aille/internal/fusion"
	"github.com/ppiankov/aille/internal/logging"
)

var (
	configPath    string
	ledgerPath    string
	ledgerBackend string
	ledgerDigest  string
	logLevel      string

	appCfg    config.Config
	appLog    = zerolog.Nop()
	logCloser io.Closer
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Path to aille.yaml (defaults apply when empty)")
	pf.StringVar(&ledgerPath, "ledger", "", "Ledger path (overrides ledger.path)")
	pf.StringVar(&ledgerBackend, "backend", "", "Ledger backend: jsonl|sqlite|memory (overrides ledger.backend)")
	pf.StringVar(&ledgerDigest, "digest", "", "Chain digest: xxhash|sha256 (overrides ledger.digest)")
	pf.StringVar(&logLevel, "log-level", "", "Log level (overrides logging.level)")
}

var rootCmd = &cobra.Command{
	Use:           "aille",
	Short:         "Adaptive decision fusion with a hash-chained audit ledger",
	Long:          "Fuses signals from several predictive models into one trading decision,\nfalls back to a directional position when confidence or consensus is missing,\nand records every decision in a tamper-evident ledger.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadRuntime()
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

// loadRuntime reads the config file, applies flag overrides and builds the
// logger.
func loadRuntime() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if ledgerPath != "" {
		cfg.Ledger.Path = ledgerPath
	}
	if ledgerBackend != "" {
		cfg.Ledger.Backend = ledgerBackend
	}
	if ledgerDigest != "" {
		cfg.Ledger.Digest = ledgerDigest
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	appCfg, appLog, logCloser = cfg, log, closer
	return nil
}

func newEngine(cfg fusion.Config) (*fusion.Engine, error) {
	return fusion.NewEngine(cfg, fusion.WithLogger(appLog))
}

func openLedger(lc config.LedgerConfig) (*audit.Ledger, error) {
	return lc.OpenLedger(audit.WithLogger(appLog))
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		rootCmd.PrintErrln("Error:", err)
		os.Exit(1)
	}
}
