package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/morango-sync/morango/internal/syncmetrics"
	"github.com/morango-sync/morango/internal/syncsession"
	"github.com/morango-sync/morango/internal/synclog"
	"github.com/morango-sync/morango/internal/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the sync engine's HTTP+JSON API for inbound peers",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("profile", "", "Path to the profile fixture (required)")
	serveCmd.Flags().String("addr", ":8242", "Address to listen on")
	serveCmd.Flags().StringSlice("require-capability", nil, "Capability INITIALIZING requires before later stages run; checked against the server's own capability set, not one advertised by the peer")
	_ = serveCmd.MarkFlagRequired("profile")
}

func runServe(cmd *cobra.Command, _ []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	profilePath, _ := cmd.Flags().GetString("profile")
	addr, _ := cmd.Flags().GetString("addr")
	required, _ := cmd.Flags().GetStringSlice("require-capability")

	prof, store, err := openProfileAndStore(profilePath, dataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := syncsession.NewMiddlewareRegistry()
	if err := syncsession.RegisterDefaultMiddleware(registry, store, syncsession.NoopSerializer{}, required); err != nil {
		return fmt.Errorf("registering middleware: %w", err)
	}

	backend := syncsession.NewServerBackend(registry, store, prof.Name)
	syncServer := transport.NewServer(backend)

	mux := http.NewServeMux()
	mux.Handle("/api/morango/v1/", syncServer.Handler())
	mux.Handle("/metrics", syncmetrics.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := synclog.WithComponent("serve")
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Str("profile", prof.Name).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
