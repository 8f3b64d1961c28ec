// Package mcp provides the Model Context Protocol (MCP) server implementation.
package mcp

import (
	"context"

	"github.com/huangsam/macindex/internal/contract"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer initializes and configures the MAC index MCP server without starting it.
// This is exposed for unit testing.
func NewMCPServer(baseCfg *contract.Config, mgr contract.CacheManager) *server.MCPServer {
	s := server.NewMCPServer(
		"MAC Index Server",
		"1.0.0",
		server.WithLogging(),
	)

	h := &toolHandler{
		baseCfg: baseCfg,
		mgr:     mgr,
	}

	// --- 1. Tool: score_snapshot ---
	s.AddTool(mcp.NewTool("score_snapshot",
		mcp.WithDescription("Compute a composite stress score from pillar scores in [0,1], without an observation feed."),
		mcp.WithString("scores", mcp.Description(`JSON object of pillar scores, e.g. {"liquidity": 0.4, "volatility": 0.7}.`), mcp.Required()),
		mcp.WithString("date", mcp.Description("Scoring date as YYYY-MM-DD (defaults to today).")),
		mcp.WithString("family", mcp.Description("Composite family. Defaults to 'mac'."), mcp.Enum("mac", "grri")),
	), h.handleScoreSnapshot)

	// --- 2. Tool: list_regimes ---
	s.AddTool(mcp.NewTool("list_regimes",
		mcp.WithDescription("List the regime labels and the score band each one covers."),
	), h.handleListRegimes)

	// --- 3. Tool: list_runs ---
	s.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List recent backtest runs recorded in the run store, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs to return (defaults to 10).")),
	), h.handleListRuns)

	return s
}

// StartMCPServer starts the MAC index MCP server.
func StartMCPServer(_ context.Context, baseCfg *contract.Config, mgr contract.CacheManager) error {
	s := NewMCPServer(baseCfg, mgr)
	return server.ServeStdio(s)
}
