package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/telemetry"
	httpAdapter "github.com/aretw0/parley/pkg/adapters/http"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts Parley as an HTTP service. Stateless turns carry their snapshot in
each request; stored sessions live in the configured store and stream
their changes over Server-Sent Events.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port := cfg.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		ctx := cmd.Context()
		shutdownTracing, err := telemetry.Setup(ctx, telemetry.TracingConfig{
			Enabled:     cfg.OTelEnabled,
			Endpoint:    cfg.OTelEndpoint,
			ServiceName: "parley",
			Version:     parley.Version,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Warn("tracing shutdown failed", "err", err)
			}
		}()

		var (
			metrics *telemetry.Metrics
			hooks   []domain.LifecycleHooks
		)
		if cfg.MetricsEnabled {
			metrics = telemetry.NewMetrics()
			hooks = append(hooks, metrics.Hooks())
		}

		app, err := newParley(hooks...)
		if err != nil {
			return err
		}

		store, err := openStore(cfg, "")
		if err != nil {
			return fmt.Errorf("open session store: %w", err)
		}
		defer store.Close()

		transcriber, synthesizer := newSpeech(cfg)
		opts := []httpAdapter.Option{
			httpAdapter.WithSessions(store.manager()),
			httpAdapter.WithSpeech(transcriber, synthesizer),
			httpAdapter.WithLimits(cfg.MaxUtteranceBytes, int64(cfg.MaxAudioBytes)),
		}
		if metrics != nil {
			opts = append(opts, httpAdapter.WithMetrics(metrics))
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           httpAdapter.NewHandler(app, opts...),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting parley server", "addr", srv.Addr, "vignettes", cfg.VignetteDir, "store", cfg.Store)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("start shutdown", "signal", sig.String())

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("graceful shutdown did not complete", "timeout", 5*time.Second, "err", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("could not stop server: %w", err)
				}
			}
			logger.Info("parley server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on (defaults to PARLEY_PORT)")
}
