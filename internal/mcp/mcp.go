// Package mcp implements the Model Context Protocol server for
// tracefold.
//
// It exposes the read side of the HTTP API as MCP tools so
// MCP-compatible AI agents can inspect experiment runs and their
// metrics without going through HTTP.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/tracefold/tracefold/internal/analyze"
	"github.com/tracefold/tracefold/internal/model"
	"github.com/tracefold/tracefold/internal/runs"
	"github.com/tracefold/tracefold/internal/store"
)

// Server wraps the MCP server with tracefold's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	registry  *runs.Registry
	store     store.EventStore
	analyzer  *analyze.Analyzer
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all tools.
func New(registry *runs.Registry, st store.EventStore, analyzer *analyze.Analyzer, version string, logger *slog.Logger) *Server {
	s := &Server{
		registry: registry,
		store:    st,
		analyzer: analyzer,
		logger:   logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"tracefold",
		version,
		mcpserver.WithToolCapabilities(true),
	)

	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	// tracefold_list_runs: enumerate experiment runs.
	s.mcpServer.AddTool(
		mcplib.NewTool("tracefold_list_runs",
			mcplib.WithDescription("List experiment runs, most recently started first, with their status and metadata."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
		),
		s.handleListRuns,
	)

	// tracefold_run_metrics: the offline analyzer's full report.
	s.mcpServer.AddTool(
		mcplib.NewTool("tracefold_run_metrics",
			mcplib.WithDescription(`Compute the full metrics report for one run: latency distribution with percentiles, cost totals and projections, success rate against SLA thresholds, token usage, and per-category event counts.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("run_id",
				mcplib.Description("UUID of the run to analyze"),
				mcplib.Required(),
			),
		),
		s.handleRunMetrics,
	)

	// tracefold_query_events: filtered event history.
	s.mcpServer.AddTool(
		mcplib.NewTool("tracefold_query_events",
			mcplib.WithDescription(`Query a run's event history with structured filters. Events come back in timestamp order. Use event_name to narrow to one instrumentation point, success to isolate failures, and from/to (microseconds since epoch) for a time range.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("run_id",
				mcplib.Description("UUID of the run to query"),
				mcplib.Required(),
			),
			mcplib.WithString("event_name",
				mcplib.Description("Only events with this exact name"),
			),
			mcplib.WithBoolean("success",
				mcplib.Description("Only events with this outcome; omit for all outcomes"),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum events to return"),
				mcplib.Min(1),
				mcplib.Max(1000),
				mcplib.DefaultNumber(100),
			),
		),
		s.handleQueryEvents,
	)

	// tracefold_compare_runs: baseline comparison.
	s.mcpServer.AddTool(
		mcplib.NewTool("tracefold_compare_runs",
			mcplib.WithDescription(`Compare two or more runs against a baseline (the first run id). Reports latency change percent, cost difference, success rate change in points, and event count difference for each run.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("baseline_run_id",
				mcplib.Description("UUID of the baseline run"),
				mcplib.Required(),
			),
			mcplib.WithString("run_id",
				mcplib.Description("UUID of the run to compare against the baseline"),
				mcplib.Required(),
			),
		),
		s.handleCompareRuns,
	)
}

func (s *Server) handleListRuns(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	list := s.registry.List(ctx)
	return jsonResult(map[string]any{
		"runs":  list,
		"total": len(list),
	})
}

func (s *Server) handleRunMetrics(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	runID, err := uuid.Parse(request.GetString("run_id", ""))
	if err != nil {
		return errorResult("run_id must be a valid UUID"), nil
	}

	metrics, err := s.analyzer.RunMetrics(ctx, runID)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to compute metrics: %v", err)), nil
	}
	return jsonResult(metrics)
}

func (s *Server) handleQueryEvents(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	runID, err := uuid.Parse(request.GetString("run_id", ""))
	if err != nil {
		return errorResult("run_id must be a valid UUID"), nil
	}

	var f model.Filters
	if name := request.GetString("event_name", ""); name != "" {
		f.EventName = &name
	}
	if args := request.GetArguments(); args != nil {
		if raw, ok := args["success"]; ok {
			if b, ok := raw.(bool); ok {
				f.Success = &b
			}
		}
	}
	limit := request.GetInt("limit", 100)

	events, err := s.store.Query(ctx, runID, f)
	if err != nil {
		return errorResult(fmt.Sprintf("query failed: %v", err)), nil
	}
	truncated := false
	if limit > 0 && len(events) > limit {
		// Keep the most recent events when over the limit.
		events = events[len(events)-limit:]
		truncated = true
	}
	return jsonResult(map[string]any{
		"events":    events,
		"count":     len(events),
		"truncated": truncated,
	})
}

func (s *Server) handleCompareRuns(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	baseline, err := uuid.Parse(request.GetString("baseline_run_id", ""))
	if err != nil {
		return errorResult("baseline_run_id must be a valid UUID"), nil
	}
	other, err := uuid.Parse(request.GetString("run_id", ""))
	if err != nil {
		return errorResult("run_id must be a valid UUID"), nil
	}

	cmp, err := s.analyzer.CompareRuns(ctx, []uuid.UUID{baseline, other})
	if err != nil {
		return errorResult(fmt.Sprintf("comparison failed: %v", err)), nil
	}
	return jsonResult(cmp)
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
