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

	"github.com/sells-group/customer-map/internal/api"
	"github.com/sells-group/customer-map/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the customer view, CRM proxy, and metrics with periodic resync",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, cfg, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.initOrchestrator(cfg); err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(env),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- eris.Wrap(err, "server listen")
			}
			close(errCh)
		}()

		view := env.Orchestrator.Initialize(ctx)
		zap.L().Info("customer view initialized", zap.Int("records", len(view)))

		checker := monitoring.NewChecker(
			monitoring.NewCollector(env.Orchestrator),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)
		go checker.Run(ctx)

		select {
		case <-ctx.Done():
		case err, ok := <-errCh:
			if ok && err != nil {
				return err
			}
		}

		// Graceful shutdown
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "server shutdown")
		}
		return nil
	},
}

// buildRouter wires the API, the CRM proxy, and the metrics endpoint.
func buildRouter(env *appEnv) http.Handler {
	opts := []api.Option{
		api.WithMetrics(env.Registry),
		api.WithSyncTimeout(env.SyncTimeout),
	}
	if env.Proxy != nil {
		opts = append(opts, api.WithProxy(env.Proxy.Router()))
	}
	return api.NewRouter(env.Orchestrator, opts...)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
