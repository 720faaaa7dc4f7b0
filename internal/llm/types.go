// Package llm talks to Azure OpenAI chat and embedding deployments and
// validates their JSON answers.
package llm

import (
	"context"

	"github.com/Aman-CERP/pagemind/internal/config"
)

// Prompt versions stamped on stored analyses.
const (
	PromptVersionSummary = "summary_v1"
	PromptVersionAnswer  = "answer_v1"
)

// SummaryInput is the page material sent to the summary prompt.
type SummaryInput struct {
	SourceTitle string
	URL         string
	PageTitle   string
	ContentText string
}

// SummaryResult is a validated summary response.
type SummaryResult struct {
	SummaryShort    string   `json:"summary_short"`
	SummaryDetailed string   `json:"summary_detailed"`
	WhyRelevant     string   `json:"why_relevant"`
	Tags            []string `json:"tags"`
	Topics          []string `json:"topics"`
	Confidence      float64  `json:"confidence"`
}

// URLReason pairs a URL with the model's reason for citing it.
type URLReason struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// AnswerResult is a validated answer response.
type AnswerResult struct {
	Answer      string      `json:"answer"`
	MatchedURLs []URLReason `json:"matched_urls"`
	RelatedURLs []URLReason `json:"related_urls"`
	Confidence  float64     `json:"confidence"`
}

// Usage reports token counts when the service returns them.
type Usage struct {
	PromptTokens     *int
	CompletionTokens *int
}

// Summarizer produces page summaries.
type Summarizer interface {
	Summarize(ctx context.Context, s config.Settings, in SummaryInput) (*SummaryResult, Usage, error)
}

// Embedder produces embedding vectors.
type Embedder interface {
	Embed(ctx context.Context, s config.Settings, text string) ([]float32, error)
}

// Answerer composes answers from retrieved records.
type Answerer interface {
	Answer(ctx context.Context, s config.Settings, question, recordsJSON string) (*AnswerResult, Usage, error)
}

// Client is the full model surface used by pagemind.
type Client interface {
	Summarizer
	Embedder
	Answerer
}
