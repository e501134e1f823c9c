package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/aille/internal/alert"
	"github.com/ppiankov/aille/internal/metrics"
	"github.com/ppiankov/aille/internal/ratelimit"
	"github.com/ppiankov/aille/internal/reload"
	"github.com/ppiankov/aille/internal/server"
)

var serveListen string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "HTTP listen address (overrides server.listen)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP decision server",
	Long: "Serves decisions, audit verification, reports and Prometheus metrics over HTTP.\n" +
		"The engine section of --config is hot-reloaded when the file changes.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx)
}

func serve(ctx context.Context) error {
	addr := appCfg.Server.Listen
	if serveListen != "" {
		addr = serveListen
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

	alerts := alert.NewDispatcher(appCfg.Alerts, appLog)
	defer alerts.Wait()

	srv := server.New(engine, ledger, metrics.NewCollector(),
		server.WithLogger(appLog),
		server.WithMaxFallbackRate(appCfg.Server.MaxFallbackRate),
		server.WithAlerts(alerts),
		server.WithRateLimiter(ratelimit.NewLimiter(appCfg.Server.RateLimits)),
	)

	if configPath != "" {
		r, err := reload.New(configPath, engine, reload.WithLogger(appLog))
		if err != nil {
			appLog.Warn().Err(err).Msg("hot-reload disabled")
		} else {
			go func() {
				if err := r.Run(ctx); err != nil {
					appLog.Error().Err(err).Msg("config watcher stopped")
				}
			}()
		}
	}

	appLog.Info().
		Str("addr", addr).
		Str("ledger_backend", appCfg.Ledger.Backend).
		Str("ledger_path", appCfg.Ledger.Path).
		Str("digest", ledger.Digest().Name()).
		Int("records", ledger.Len()).
		Int("alert_hooks", len(appCfg.Alerts)).
		Msg("aille server starting")
	return srv.Run(ctx, addr)
}
