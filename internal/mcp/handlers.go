package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wesm/glider/internal/analysis"
	"github.com/wesm/glider/internal/oauth"
	"github.com/wesm/glider/internal/sync"
)

const (
	defaultDashboardLimit = 50
	maxDashboardLimit     = 500
)

type handlers struct {
	ingester  Ingester
	analyzer  Analyzer
	dashboard DashboardReader
}

// ownerArg extracts the required owner argument.
func ownerArg(args map[string]any) (string, error) {
	owner, _ := args["owner"].(string)
	if owner == "" {
		return "", errors.New("owner parameter is required")
	}
	return owner, nil
}

// opError renders a pipeline failure as a tool error. Credential failures
// carry their reason so the caller can tell a revoked token from a
// missing one.
func opError(op string, err error) *mcp.CallToolResult {
	var ce *oauth.CredentialError
	if errors.As(err, &ce) {
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: credential %s for %s: %v", op, ce.Reason, ce.Owner, ce.Err))
	}
	if errors.Is(err, analysis.ErrAnalysisInProgress) {
		return mcp.NewToolResultError("analysis already running for this owner")
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", op, err))
}

func (h *handlers) ingestEmails(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	owner, err := ownerArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if h.ingester == nil {
		return mcp.NewToolResultError("ingest not configured"), nil
	}

	opts := sync.IngestOptions{}
	opts.Refresh, _ = args["refresh"].(bool)
	opts.PageToken, _ = args["page_token"].(string)

	res, err := h.ingester.Ingest(ctx, owner, opts)
	if err != nil {
		return opError("ingest", err), nil
	}
	return jsonResult(res)
}

func (h *handlers) runAnalysis(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := ownerArg(req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if h.analyzer == nil {
		return mcp.NewToolResultError("analysis not configured"), nil
	}

	summary, err := h.analyzer.RunAnalysis(ctx, owner)
	if err != nil {
		return opError("analysis", err), nil
	}
	return jsonResult(summary)
}

func (h *handlers) getDashboard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	owner, err := ownerArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if h.dashboard == nil {
		return mcp.NewToolResultError("store not configured"), nil
	}

	dash, err := h.dashboard.Dashboard(ctx, owner, limitArg(args, "limit", defaultDashboardLimit))
	if err != nil {
		return opError("dashboard", err), nil
	}
	return jsonResult(dash)
}

func (h *handlers) analysisStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := ownerArg(req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if h.analyzer == nil {
		return mcp.NewToolResultError("analysis not configured"), nil
	}

	n, err := h.analyzer.UnanalyzedCount(ctx, owner)
	if err != nil {
		return opError("analysis status", err), nil
	}
	return jsonResult(struct {
		Owner           string `json:"owner"`
		UnanalyzedCount int    `json:"unanalyzedCount"`
		Running         bool   `json:"running"`
	}{owner, n, h.analyzer.IsRunning(owner)})
}

// limitArg extracts a positive integer limit from a map, with a default.
// JSON numbers arrive as float64. Clamps to maxDashboardLimit.
func limitArg(args map[string]any, key string, def int) int {
	v, ok := args[key].(float64)
	if !ok || math.IsNaN(v) || v < 1 {
		return def
	}
	if math.IsInf(v, 1) || v > maxDashboardLimit {
		return maxDashboardLimit
	}
	return int(v)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
