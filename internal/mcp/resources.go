package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// QueryStatsURI is the resource holding recent question telemetry.
const QueryStatsURI = "pagemind://query_stats"

// registerQueryStatsResource exposes the in-process query summary.
func (s *Server) registerQueryStatsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "query_stats",
			URI:         QueryStatsURI,
			Description: "Recent ask and search telemetry: volume, top terms, unanswered queries and latency",
			MIMEType:    "application/json",
		},
		s.readQueryStats,
	)
}

func (s *Server) readQueryStats(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	content, err := json.MarshalIndent(s.svc.QueryStats(), "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      QueryStatsURI,
				MIMEType: "application/json",
				Text:     string(content),
			},
		},
	}, nil
}
