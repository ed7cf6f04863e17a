// Package cmd defines and implements the CLI commands for the netcapture
// executable.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "netcapture",
		Short: "Capture browser network traffic through tool providers",
		Long: `netcapture drives a browser automation provider to load a page, waits for
the network to settle, pulls the observed request/response records, filters
them client-side, and persists them as JSONL through a storage provider.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is none; NETCAPTURE_* env vars apply)")

	cmd.AddCommand(newCaptureCmd())

	return cmd
}

// Execute is the main entry point. It wires SIGINT/SIGTERM into the run
// context so an interrupted capture releases its provider sessions.
func Execute() {
	// Optional .env for provider endpoints and credentials.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
