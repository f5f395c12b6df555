package main

import (
	"fmt"
	"log"
	"os"

	"github.com/aretw0/citylink/internal/cli"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the local participant as MCP tools, so an agent can host, join
and trade on its behalf.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		// Keep stray log output off the JSON-RPC stream.
		log.SetOutput(os.Stderr)

		return withApp(cmd, func(app *cli.App) error {
			addr := fmt.Sprintf(":%d", port)
			return cli.RunMCP(cmd.Context(), app, transport, addr, fmt.Sprintf("http://localhost:%d", port))
		})
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", cli.TransportStdio, "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
}
