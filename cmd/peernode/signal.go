package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	router "github.com/dkeye/peernode/internal/adapters/http"
	"github.com/dkeye/peernode/internal/adapters/signal"
	"github.com/dkeye/peernode/internal/telemetry"
)

func newSignalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signal",
		Short: "Run the signaling broker peers register with",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			tp, err := telemetry.InitTracer(ctx, cfg.TelemetryEndpoint, "peernode-signal")
			if err != nil {
				log.Warn().Err(err).Msg("tracing disabled")
			}

			srv := signal.NewServer(signal.ServerOptions{
				ReadLimit:     cfg.ReadLimit,
				PingPeriod:    cfg.PingPeriod,
				OfferLimit:    cfg.OfferRateLimit,
				OfferInterval: cfg.OfferRateInterval,
				Policy:        signal.SimplePolicy{},
			})
			httpSrv := &http.Server{
				Addr:    cfg.SignalAddr,
				Handler: router.SetupSignalRouter(ctx, cfg, srv),
			}

			go func() {
				log.Info().Str("addr", cfg.SignalAddr).Msg("signal server started")
				if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error().Err(err).Msg("server error")
				}
			}()

			<-ctx.Done()
			log.Info().Msg("Shutting down")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			srv.Close()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Server forced to shutdown")
			}
			if tp != nil {
				_ = tp.Shutdown(shutdownCtx)
			}
			log.Info().Msg("Server exited gracefully")
			return nil
		},
	}
	f := cmd.Flags()
	f.String("signal-addr", ":8080", "listen address")
	f.Int("offer-rate-limit", 10, "offers a peer may send per interval, 0 disables")
	f.Duration("offer-rate-interval", 10*time.Second, "offer rate limit window")
	return cmd
}
