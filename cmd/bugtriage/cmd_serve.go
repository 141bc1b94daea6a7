package main

import (
	"context"

	"github.com/spf13/cobra"

	"bugtriage/internal/logging"
	mcpserver "bugtriage/internal/mcp"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio",
	Long: "Starts an MCP server over stdin/stdout exposing the triage tools:\n" +
		"upload_cycle, classify_cycle, train_initial, record_override,\n" +
		"get_cycle_report, get_status.\n\n" +
		"The server monitors for parent process death and self-terminates when\n" +
		"its client disconnects, to prevent zombie processes.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	srv := mcpserver.NewServer(a.pipe, a.st)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	mcpserver.WatchParent(ctx, cancel)

	logging.New("mcp").Info("starting bugtriage MCP server over stdio (parent watchdog active)")
	return srv.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}
