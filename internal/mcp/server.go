package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/pagemind/internal/llm"
	"github.com/Aman-CERP/pagemind/internal/service"
	"github.com/Aman-CERP/pagemind/pkg/version"
)

// Server bridges AI clients with the knowledge base.
type Server struct {
	mcp    *mcp.Server
	svc    *service.Service
	logger *slog.Logger
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        ToolAsk,
		Description: "Answer a question from the user's saved tabs and bookmarks. Returns an answer grounded in the analyzed pages with the URLs it is based on.",
	},
	{
		Name:        ToolSearch,
		Description: "Find saved tabs and bookmarks by meaning. Returns pages ranked by similarity with their summaries, topics and tags.",
	},
	{
		Name:        ToolStats,
		Description: "Report how many saved pages are analyzed, pending or failed, and whether the knowledge base is configured.",
	},
}

// NewServer creates an MCP server over svc.
func NewServer(svc *service.Service, logger *slog.Logger) (*Server, error) {
	if svc == nil {
		return nil, errors.New("service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		svc:    svc,
		logger: logger.With(slog.String("component", "mcp")),
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: version.Name, Version: version.Version}, nil)
	s.registerTools()
	s.registerQueryStatsResource()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server { return s.mcp }

// ListTools returns the registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolAsk, Description: tools[0].Description}, s.mcpAskHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolSearch, Description: tools[1].Description}, s.mcpSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolStats, Description: tools[2].Description}, s.mcpStatsHandler)
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

// CallTool invokes a tool by name with decoded JSON arguments and returns
// its markdown rendering.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case ToolAsk:
		question, _ := args["question"].(string)
		out, err := s.ask(ctx, AskInput{Question: question})
		if err != nil {
			return "", err
		}
		return FormatAnswer(out), nil
	case ToolSearch:
		in := SearchInput{}
		in.Query, _ = args["query"].(string)
		if l, ok := args["limit"].(float64); ok {
			in.Limit = int(l)
		}
		out, err := s.search(ctx, in)
		if err != nil {
			return "", err
		}
		return FormatSearchResults(in.Query, out.Results), nil
	case ToolStats:
		out, err := s.stats(ctx)
		if err != nil {
			return "", err
		}
		return FormatStats(out), nil
	default:
		return "", NewMethodNotFoundError(name)
	}
}

func (s *Server) mcpAskHandler(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, AskOutput, error) {
	out, err := s.ask(ctx, in)
	if err != nil {
		return nil, AskOutput{}, err
	}
	return textResult(FormatAnswer(out)), out, nil
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	out, err := s.search(ctx, in)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return textResult(FormatSearchResults(in.Query, out.Results)), out, nil
}

func (s *Server) mcpStatsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ StatsInput) (*mcp.CallToolResult, StatsOutput, error) {
	out, err := s.stats(ctx)
	if err != nil {
		return nil, StatsOutput{}, err
	}
	return textResult(FormatStats(out)), out, nil
}

func (s *Server) ask(ctx context.Context, in AskInput) (AskOutput, error) {
	if strings.TrimSpace(in.Question) == "" {
		return AskOutput{}, NewInvalidParamsError("question is required")
	}

	start := time.Now()
	requestID := generateRequestID()
	res, err := s.svc.Ask(ctx, in.Question)
	if err != nil {
		s.logger.Warn("mcp_ask_failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return AskOutput{}, MapError(err)
	}
	s.logger.Info("mcp_ask_completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("matched", len(res.MatchedURLs)))

	out := AskOutput{
		Answer:      res.Answer,
		MatchedURLs: res.MatchedURLs,
		RelatedURLs: res.RelatedURLs,
		Confidence:  res.Confidence,
	}
	if out.MatchedURLs == nil {
		out.MatchedURLs = []llm.URLReason{}
	}
	if out.RelatedURLs == nil {
		out.RelatedURLs = []llm.URLReason{}
	}
	return out, nil
}

func (s *Server) search(ctx context.Context, in SearchInput) (SearchOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return SearchOutput{}, NewInvalidParamsError("query is required")
	}

	start := time.Now()
	requestID := generateRequestID()
	hits, err := s.svc.Search(ctx, in.Query, clampLimit(in.Limit))
	if err != nil {
		s.logger.Warn("mcp_search_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return SearchOutput{}, MapError(err)
	}
	s.logger.Info("mcp_search_completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(hits)))
	return SearchOutput{Results: hits}, nil
}

func (s *Server) stats(ctx context.Context) (StatsOutput, error) {
	rep, err := s.svc.Status(ctx)
	if err != nil {
		return StatsOutput{}, MapError(err)
	}
	out := StatsOutput{
		Status:     rep.Status,
		Running:    rep.Running,
		Configured: rep.Configured,
		Missing:    rep.Missing,
		Records:    rep.Stats,
	}
	if out.Missing == nil {
		out.Missing = []string{}
	}
	return out, nil
}

// Serve runs the server on the given transport until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "", "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		} else {
			s.logger.Info("mcp_server_stopped")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// generateRequestID creates a short id for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
