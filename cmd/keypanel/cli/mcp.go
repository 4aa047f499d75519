package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	kmcp "github.com/keypanel/keypanel/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes app and key
operations as tools. Supports stdio (default) and streamable HTTP transports.

In stdio mode, the server talks JSON-RPC over stdin/stdout, suitable for
desktop MCP clients. Logs go to stderr.`,
		Example: `  keypanel mcp                             # stdio mode
  keypanel mcp --transport http --port 3001  # HTTP mode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(viper.GetString("mcp.transport"), viper.GetInt("mcp.port"))
		},
	}

	cmd.Flags().String("transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().Int("port", 3001, "HTTP port (only used with --transport http)")
	viper.BindPFlag("mcp.transport", cmd.Flags().Lookup("transport"))
	viper.BindPFlag("mcp.port", cmd.Flags().Lookup("port"))

	return cmd
}

func runMCP(transport string, port int) error {
	logger := newLogger(os.Stderr, false)

	st, services, err := openServices(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	mcpSrv := kmcp.NewMCPServer(services, versionString(), logger)

	switch transport {
	case "stdio":
		return mcpSrv.ServeStdio()
	case "http":
		addr := fmt.Sprintf(":%d", port)
		logger.Info("starting MCP HTTP server", "addr", addr)
		return mcpSrv.ServeHTTP(addr)
	default:
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
	}
}
