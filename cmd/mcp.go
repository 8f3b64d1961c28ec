package cmd

import (
	"github.com/huangsam/macindex/core"
	"github.com/huangsam/macindex/internal/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the macindex MCP server",
	Long:  `Launch an MCP server over stdio that lets AI agents score pillar snapshots, list regime bands and browse recorded backtest runs.`,
	Args:  cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		// stdio carries the protocol, so run headers are suppressed
		rootCtx = core.WithSuppressHeader(rootCtx)
		return sharedSetupWrapper(cmd, args)
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		return mcp.StartMCPServer(rootCtx, cfg, cacheManager)
	},
}
