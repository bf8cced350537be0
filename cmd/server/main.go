package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gochat",
		Short: "Line-based TCP chat relay",
		Long: `GoChat relays newline-terminated text between connected clients.

Every line a client sends is broadcast to all other connected clients.
The server admits a bounded number of concurrent clients and rejects
the rest with a notice. An optional HTTP listener serves health,
metrics and a WebSocket gateway into the same relay.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		connectCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
