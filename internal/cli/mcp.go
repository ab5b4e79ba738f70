package cli

import (
	"github.com/spf13/cobra"

	"github.com/wagiedev/unity-bridge-go/internal/mcp"
)

// mcpServerVersion is reported to MCP clients.
const mcpServerVersion = "0.1.0"

func newMCPCmd(a *app) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve bridge tools to an MCP client over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			b, err := a.connect(ctx, nil)
			if err != nil {
				return err
			}
			defer a.closeBridge(b)

			server := mcp.NewToolServer(a.log, name, mcpServerVersion)
			mcp.RegisterBridgeTools(server, b)

			a.log.Info("Serving MCP tools", "name", name, "tools", len(server.ListTools()))

			return server.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&name, "name", "unity-bridge", "server name reported to clients")

	return cmd
}
