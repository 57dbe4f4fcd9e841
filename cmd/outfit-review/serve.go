package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ILLUVRSE/outfit-review/internal/auth"
	"github.com/ILLUVRSE/outfit-review/internal/events"
	"github.com/ILLUVRSE/outfit-review/internal/export"
	"github.com/ILLUVRSE/outfit-review/internal/httpserver"
	"github.com/ILLUVRSE/outfit-review/internal/sampler"
	"github.com/ILLUVRSE/outfit-review/internal/service"
)

func newServeCmd() *cobra.Command {
	var (
		addr      string
		dataDir   string
		assetDir  string
		uiDir     string
		ephemeral bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the review HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFrom(cmd)
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("data-dir") {
				cfg.DataDir = dataDir
			}
			if cmd.Flags().Changed("asset-dir") {
				cfg.AssetDir = assetDir
			}
			if cmd.Flags().Changed("ui-dir") {
				cfg.UIDir = uiDir
			}
			if ephemeral {
				cfg.Ephemeral = true
			}
			ctx := cmd.Context()

			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					log.Error().Err(err).Msg("close ledger")
				}
			}()

			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}

			opts := []service.Option{}
			var dispatcher *events.Dispatcher
			if cfg.KafkaEnabled() {
				producer, err := events.NewKafkaProducer(events.KafkaProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaTopic,
					WriteTimeout: cfg.KafkaTimeout,
				})
				if err != nil {
					return err
				}
				defer producer.Close()
				dispatcher = events.NewDispatcher(producer, 0)
				opts = append(opts, service.WithPublisher(dispatcher))
				log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing decision events")
			}

			var verifier *auth.Verifier
			if cfg.JWTSecret != "" {
				if verifier, err = auth.NewVerifier(cfg.JWTSecret); err != nil {
					return err
				}
			}

			smp := sampler.New(pool, sampler.WithMaxAttempts(cfg.MaxAttempts))
			svc := service.New(store, smp, opts...)
			exporter := export.NewExporter(store)
			server := httpserver.New(cfg, svc, exporter, store, verifier)

			httpServer := &http.Server{
				Addr:              cfg.Addr,
				Handler:           server.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.Addr).Bool("auth", verifier != nil).Msg("outfit review listening")
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			serveErr := waitForShutdown(httpServer, errCh)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if dispatcher != nil {
				if err := dispatcher.Close(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("decision events not drained")
				}
			}
			if cfg.ArchiveBucket != "" {
				archiver, err := export.NewS3Archiver(shutdownCtx, exporter, cfg.ArchiveBucket, cfg.ArchivePrefix)
				if err == nil {
					_, err = archiver.Archive(shutdownCtx)
				}
				if err != nil {
					log.Error().Err(err).Msg("archive on shutdown")
				}
			}
			return serveErr
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides OUTFIT_ADDR)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "ledger directory (overrides OUTFIT_DATA_DIR)")
	cmd.Flags().StringVar(&assetDir, "asset-dir", "", "image root (overrides OUTFIT_ASSET_DIR)")
	cmd.Flags().StringVar(&uiDir, "ui-dir", "", "static UI build (overrides OUTFIT_UI_DIR)")
	cmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "keep the ledgers in memory")
	return cmd
}

// waitForShutdown blocks until a signal arrives or the listener fails, then
// stops the server.
func waitForShutdown(srv *http.Server, errCh <-chan error) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	return nil
}
