package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/morango-sync/morango/internal/synclog"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "morango-sync",
	Short: "Morango peer-to-peer database sync engine",
	Long: `morango-sync drives and serves the FSIC-diff, buffer-queue,
transfer, and merge-conflict-resolving dequeue pipeline between two
peers holding replicas of the same partitioned data set.`,
}

func init() {
	rootCmd.PersistentFlags().String("data-dir", "./data", "Directory holding the local bbolt database")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	synclog.Init(synclog.Config{
		Level:      synclog.Level(logLevel),
		JSONOutput: logJSON,
	})
}
