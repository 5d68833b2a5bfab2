package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wesm/glider/internal/analysis"
	"github.com/wesm/glider/internal/store"
	"github.com/wesm/glider/internal/sync"
)

// Tool name constants.
const (
	ToolIngestEmails   = "ingest_emails"
	ToolRunAnalysis    = "run_analysis"
	ToolGetDashboard   = "get_dashboard"
	ToolAnalysisStatus = "analysis_status"
)

// Ingester fetches mail for an owner.
type Ingester interface {
	Ingest(ctx context.Context, owner string, opts sync.IngestOptions) (*sync.IngestResult, error)
}

// Analyzer runs analysis for an owner and reports pending work.
type Analyzer interface {
	RunAnalysis(ctx context.Context, owner string) (*analysis.RunSummary, error)
	UnanalyzedCount(ctx context.Context, owner string) (int, error)
	IsRunning(owner string) bool
}

// DashboardReader reads the joined email and analysis view.
type DashboardReader interface {
	Dashboard(ctx context.Context, owner string, limit int) (*store.Dashboard, error)
}

func withOwner() mcp.ToolOption {
	return mcp.WithString("owner",
		mcp.Required(),
		mcp.Description("Mailbox owner (the account email address)"),
	)
}

// Serve creates an MCP server with mailbox tools and serves over stdio.
// It blocks until stdin is closed or the context is cancelled.
func Serve(ctx context.Context, in Ingester, an Analyzer, dash DashboardReader, version string) error {
	s := NewServer(in, an, dash, version)
	stdio := server.NewStdioServer(s)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// NewServer registers the glider tools on a new MCP server.
func NewServer(in Ingester, an Analyzer, dash DashboardReader, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"glider",
		version,
		server.WithToolCapabilities(false),
	)

	h := &handlers{ingester: in, analyzer: an, dashboard: dash}

	s.AddTool(ingestEmailsTool(), h.ingestEmails)
	s.AddTool(runAnalysisTool(), h.runAnalysis)
	s.AddTool(getDashboardTool(), h.getDashboard)
	s.AddTool(analysisStatusTool(), h.analysisStatus)

	return s
}

func ingestEmailsTool() mcp.Tool {
	return mcp.NewTool(ToolIngestEmails,
		mcp.WithDescription("Return the owner's recent emails. Serves the local cache unless refresh is set or a page token is given, in which case a page is fetched from Gmail and cached."),
		withOwner(),
		mcp.WithBoolean("refresh",
			mcp.Description("Bypass the cache and fetch from Gmail (default false)"),
		),
		mcp.WithString("page_token",
			mcp.Description("Continuation token from a previous ingest_emails result"),
		),
	)
}

func runAnalysisTool() mcp.Tool {
	return mcp.NewTool(ToolRunAnalysis,
		mcp.WithDescription("Analyze the owner's unanalyzed emails with the language model and store the results. Returns counts of analyzed and failed emails."),
		withOwner(),
	)
}

func getDashboardTool() mcp.Tool {
	return mcp.NewTool(ToolGetDashboard,
		mcp.WithDescription("Get the owner's most recent emails with their stored analyses (summary, priority, category, action items)."),
		mcp.WithReadOnlyHintAnnotation(true),
		withOwner(),
		mcp.WithNumber("limit",
			mcp.Description("Maximum emails to return (default 50, max 500)"),
		),
	)
}

func analysisStatusTool() mcp.Tool {
	return mcp.NewTool(ToolAnalysisStatus,
		mcp.WithDescription("Report how many of the owner's emails are waiting for analysis and whether a run is in progress."),
		mcp.WithReadOnlyHintAnnotation(true),
		withOwner(),
	)
}
