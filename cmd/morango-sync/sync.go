package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/morango-sync/morango/internal/model"
	"github.com/morango-sync/morango/internal/syncsession"
	"github.com/morango-sync/morango/internal/synclog"
	"github.com/morango-sync/morango/internal/transport"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one push or pull episode against a peer",
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().String("profile", "", "Path to the profile fixture (required)")
	syncCmd.Flags().String("peer", "", "Base URL of the remote peer (required)")
	syncCmd.Flags().Bool("push", false, "Push local changes to the peer instead of pulling")
	syncCmd.Flags().StringSlice("filter", nil, "Partition prefixes to scope the transfer to (default: everything)")
	syncCmd.Flags().String("client-certificate", "", "Client certificate identity to present to the peer")
	_ = syncCmd.MarkFlagRequired("profile")
	_ = syncCmd.MarkFlagRequired("peer")
}

func runSync(cmd *cobra.Command, _ []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	profilePath, _ := cmd.Flags().GetString("profile")
	peer, _ := cmd.Flags().GetString("peer")
	push, _ := cmd.Flags().GetBool("push")
	filterArg, _ := cmd.Flags().GetStringSlice("filter")
	clientCert, _ := cmd.Flags().GetString("client-certificate")

	_, store, err := openProfileAndStore(profilePath, dataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := syncsession.NewMiddlewareRegistry()
	if err := syncsession.RegisterDefaultMiddleware(registry, store, syncsession.NoopSerializer{}, nil); err != nil {
		return fmt.Errorf("registering middleware: %w", err)
	}

	conn := transport.NewHTTPConnection(peer, &http.Client{Timeout: 30 * time.Second})

	reqCtx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	syncSession, err := conn.CreateSyncSession(reqCtx, clientCert)
	if err != nil {
		return fmt.Errorf("creating sync session: %w", err)
	}

	client := syncsession.NewTransferClient(conn, registry, store)
	logger := synclog.WithComponent("sync")

	client.Signals.Queuing.Started.Connect(func(map[string]interface{}) { logger.Info().Msg("queuing started") })
	client.Signals.Transferring.Started.Connect(func(map[string]interface{}) { logger.Info().Msg("transferring started") })
	client.Signals.Dequeuing.Started.Connect(func(map[string]interface{}) { logger.Info().Msg("dequeuing started") })

	status, err := client.InitiateTransfer(reqCtx, syncSession, push, model.Filter(filterArg))
	if err != nil {
		return fmt.Errorf("transfer failed: %w", err)
	}
	logger.Info().Str("status", string(status)).Bool("push", push).Msg("transfer finished")
	return nil
}
