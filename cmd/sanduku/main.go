// Sanduku — remote command execution sandbox.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sanduku",
	Short: "Sanduku — remote command execution sandbox.",
	Long: `Sanduku runs shell commands inside an isolated workspace and exposes them
over HTTP, SSE, WebSocket, and MCP. Commands run with a wall-clock timeout,
stdout and stderr are captured separately, and files can be moved in and out
of the workspace over the API.`,
	RunE:          runServer, // Default to server mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serverCmd, mcpCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
