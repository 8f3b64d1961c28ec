package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/internal/iocache"
	mcp_internal "github.com/huangsam/macindex/internal/mcp"
	"github.com/huangsam/macindex/schema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callTool(t *testing.T, mgr contract.CacheManager, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	s := mcp_internal.NewMCPServer(&contract.Config{Family: schema.MACFamily}, mgr)
	tool := s.GetTool(name)
	require.NotNil(t, tool, "Tool %s should exist", name)

	req := mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}}
	res, err := tool.Handler(context.Background(), req)
	require.NoError(t, err, "The MCP handler should not return a raw error for tool logic failures")
	require.NotEmpty(t, res.Content)
	return res
}

func resultText(res *mcp.CallToolResult) string {
	return res.Content[0].(mcp.TextContent).Text
}

func macScores(value float64) string {
	profile, _ := schema.GetProfile(schema.MACFamily)
	scores := make(map[schema.PillarID]float64, len(profile.Pillars))
	for _, p := range profile.Pillars {
		scores[p] = value
	}
	data, _ := json.Marshal(scores)
	return string(data)
}

func TestScoreSnapshotTool(t *testing.T) {
	res := callTool(t, nil, "score_snapshot", map[string]any{
		"scores": macScores(0.8),
		"date":   "2020-03-16",
	})
	require.False(t, res.IsError, resultText(res))

	var report schema.CompositeReport
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), &report))
	assert.Equal(t, schema.MACFamily, report.Family)
	assert.Equal(t, time.Date(2020, 3, 16, 0, 0, 0, 0, time.UTC), report.Date)
	assert.False(t, report.Indeterminate)
	assert.Zero(t, report.BreachCount)
	assert.Greater(t, report.Score, 0.0)
	assert.NotNil(t, report.Regime)
}

func TestScoreSnapshotToolErrors(t *testing.T) {
	tests := []struct {
		name     string
		args     map[string]any
		contains string
	}{
		{"missing scores", map[string]any{}, "scores is required"},
		{"malformed scores", map[string]any{"scores": "{liquidity"}, "invalid scores"},
		{"bad date", map[string]any{"scores": macScores(0.5), "date": "16/03/2020"}, "invalid date"},
		{"unknown family", map[string]any{"scores": macScores(0.5), "family": "equities"}, "unknown family"},
		{"foreign pillar", map[string]any{"scores": `{"not_a_pillar": 0.5}`}, "scoring failed"},
		{"out of range", map[string]any{"scores": macScores(1.5)}, "outside [0,1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := callTool(t, nil, "score_snapshot", tt.args)
			assert.True(t, res.IsError, "The response should indicate an error state")
			assert.Contains(t, resultText(res), tt.contains)
		})
	}
}

func TestListRegimesTool(t *testing.T) {
	res := callTool(t, nil, "list_regimes", nil)
	require.False(t, res.IsError)

	var bands []schema.RegimeBand
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), &bands))
	assert.Equal(t, schema.RegimeBands(), bands)
	require.NotEmpty(t, bands)
	assert.Equal(t, 1.0, bands[0].Upper)
	assert.Equal(t, schema.RegimeBreakLabel, bands[len(bands)-1].Label)
}

func TestListRunsTool(t *testing.T) {
	ended := time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC)
	runs := []schema.RunRecord{
		{RunID: 2, RunUUID: "b", Family: "mac", StartTime: ended.Add(-5 * time.Minute), EndTime: &ended, TotalDates: 52},
		{RunID: 1, RunUUID: "a", Family: "mac", StartTime: ended.Add(-time.Hour)},
	}

	t.Run("default limit", func(t *testing.T) {
		store := &iocache.MockRunStore{}
		mgr := &iocache.MockCacheManager{}
		mgr.On("GetRunStore").Return(store)
		store.On("ListRuns", 10).Return(runs, nil)

		res := callTool(t, mgr, "list_runs", nil)
		require.False(t, res.IsError, resultText(res))

		var got []schema.RunRecord
		require.NoError(t, json.Unmarshal([]byte(resultText(res)), &got))
		require.Len(t, got, 2)
		assert.Equal(t, "b", got[0].RunUUID)
		assert.Equal(t, int32(52), got[0].TotalDates)
		store.AssertExpectations(t)
	})

	t.Run("explicit limit and empty store", func(t *testing.T) {
		store := &iocache.MockRunStore{}
		mgr := &iocache.MockCacheManager{}
		mgr.On("GetRunStore").Return(store)
		store.On("ListRuns", 3).Return([]schema.RunRecord(nil), nil)

		res := callTool(t, mgr, "list_runs", map[string]any{"limit": 3.0})
		require.False(t, res.IsError)
		assert.Equal(t, "[]", resultText(res))
	})

	t.Run("store failure", func(t *testing.T) {
		store := &iocache.MockRunStore{}
		mgr := &iocache.MockCacheManager{}
		mgr.On("GetRunStore").Return(store)
		store.On("ListRuns", 10).Return([]schema.RunRecord(nil), errors.New("connection refused"))

		res := callTool(t, mgr, "list_runs", nil)
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(res), "connection refused")
	})

	t.Run("no manager", func(t *testing.T) {
		res := callTool(t, nil, "list_runs", nil)
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(res), "not configured")
	})

	t.Run("negative limit", func(t *testing.T) {
		mgr := &iocache.MockCacheManager{}
		mgr.On("GetRunStore").Return(&iocache.MockRunStore{})
		res := callTool(t, mgr, "list_runs", map[string]any{"limit": -1.0})
		assert.True(t, res.IsError)
	})
}
