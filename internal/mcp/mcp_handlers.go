package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/huangsam/macindex/core"
	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/schema"
	"github.com/mark3labs/mcp-go/mcp"
)

const defaultRunLimit = 10

// toolHandler holds common dependencies for MCP tool handlers.
type toolHandler struct {
	baseCfg *contract.Config
	mgr     contract.CacheManager
	now     func() time.Time
}

func (h *toolHandler) today() time.Time {
	now := time.Now
	if h.now != nil {
		now = h.now
	}
	y, m, d := now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (h *toolHandler) handleScoreSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := h.baseCfg.Clone()
	if f := request.GetString("family", ""); f != "" {
		family := schema.Family(strings.ToLower(f))
		if _, ok := schema.GetProfile(family); !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown family %q", f)), nil
		}
		cfg.Family = family
	}
	if cfg.Family == "" {
		cfg.Family = schema.MACFamily
	}

	raw := request.GetString("scores", "")
	if raw == "" {
		return mcp.NewToolResultError("scores is required"), nil
	}
	var scores map[schema.PillarID]float64
	if err := json.Unmarshal([]byte(raw), &scores); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid scores: %v", err)), nil
	}

	date := h.today()
	if d := request.GetString("date", ""); d != "" {
		parsed, err := time.Parse(time.DateOnly, d)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid date %q: expected YYYY-MM-DD", d)), nil
		}
		date = parsed
	}

	report, err := core.ScoreSnapshot(core.WithSuppressHeader(ctx), cfg, date, scores)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scoring failed: %v", err)), nil
	}

	jsonData, _ := json.MarshalIndent(report, "", "  ")
	return mcp.NewToolResultText(string(jsonData)), nil
}

func (h *toolHandler) handleListRegimes(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jsonData, _ := json.MarshalIndent(schema.RegimeBands(), "", "  ")
	return mcp.NewToolResultText(string(jsonData)), nil
}

func (h *toolHandler) handleListRuns(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.mgr == nil {
		return mcp.NewToolResultError("run store is not configured"), nil
	}
	store := h.mgr.GetRunStore()
	if store == nil {
		return mcp.NewToolResultError("run store is not configured"), nil
	}

	limit := request.GetInt("limit", defaultRunLimit)
	if limit < 0 {
		return mcp.NewToolResultError("limit must not be negative"), nil
	}

	runs, err := store.ListRuns(limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing runs failed: %v", err)), nil
	}
	if runs == nil {
		runs = []schema.RunRecord{}
	}

	jsonData, _ := json.MarshalIndent(runs, "", "  ")
	return mcp.NewToolResultText(string(jsonData)), nil
}
