package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadval-cli/internal/monitoring"
	"github.com/sells-group/leadval-cli/internal/resilience"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API",
	Long: `Starts the read-only HTTP API over the store: summary, source
scorecard, trends, anomalies, daily report, lead lookup, and health metrics.
With monitoring enabled, a background checker posts health alerts to the
monitoring webhook.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx, "serve")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		// Resolve the scoring profile once; handlers read the result.
		sc, err := scoringConfig()
		if err != nil {
			return err
		}
		apiCfg := *cfg
		apiCfg.Scoring = sc

		_, circuit := resilience.FromConfig(cfg.Resilience)
		breakers := resilience.NewServiceBreakers(circuit)

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(st, breakers),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		addr := serveAddr
		if addr == "" {
			addr = fmt.Sprintf(":%d", cfg.Server.Port)
		}
		srv := &http.Server{
			Addr:              addr,
			Handler:           newRouter(st, &apiCfg, breakers),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config port)")
	rootCmd.AddCommand(serveCmd)
}
