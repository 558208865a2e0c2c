// Package cli wires the relay server and the terminal chat client into a
// single cobra command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "parlor",
	Short: "Parlor chat relay",
	Long:  `Parlor relays chat rooms over WebSocket: deduplicated message history, heartbeat presence, and optional Redis fan-out across instances.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
}
