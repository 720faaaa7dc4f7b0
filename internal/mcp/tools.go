package mcp

import (
	"github.com/Aman-CERP/pagemind/internal/llm"
	"github.com/Aman-CERP/pagemind/internal/pipeline"
	"github.com/Aman-CERP/pagemind/internal/service"
	"github.com/Aman-CERP/pagemind/internal/store"
)

// Tool names.
const (
	ToolAsk    = "ask_knowledge"
	ToolSearch = "search_knowledge"
	ToolStats  = "knowledge_stats"
)

const (
	defaultLimit = 10
	maxLimit     = 50
)

// AskInput is the ask_knowledge input schema.
type AskInput struct {
	Question string `json:"question" jsonschema:"a natural-language question about the saved pages"`
}

// AskOutput is the ask_knowledge output schema.
type AskOutput struct {
	Answer      string          `json:"answer" jsonschema:"the answer grounded in saved pages"`
	MatchedURLs []llm.URLReason `json:"matched_urls" jsonschema:"pages the answer is based on"`
	RelatedURLs []llm.URLReason `json:"related_urls" jsonschema:"other pages worth reading"`
	Confidence  float64         `json:"confidence" jsonschema:"model confidence between 0 and 1"`
}

// SearchInput is the search_knowledge input schema.
type SearchInput struct {
	Query string `json:"query" jsonschema:"what to look for in the saved pages"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// SearchOutput is the search_knowledge output schema.
type SearchOutput struct {
	Results []service.Hit `json:"results" jsonschema:"saved pages ranked by similarity"`
}

// StatsInput is the knowledge_stats input schema.
type StatsInput struct{}

// StatsOutput is the knowledge_stats output schema.
type StatsOutput struct {
	Status     pipeline.RuntimeStatus `json:"status"`
	Running    bool                   `json:"running"`
	Configured bool                   `json:"configured"`
	Missing    []string               `json:"missing"`
	Records    store.Stats            `json:"records"`
}

// clampLimit returns defaultLimit for non-positive values, else v capped at maxLimit.
func clampLimit(v int) int {
	if v <= 0 {
		return defaultLimit
	}
	return min(v, maxLimit)
}
