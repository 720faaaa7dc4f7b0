package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/pagemind/internal/config"
	apperrors "github.com/Aman-CERP/pagemind/internal/errors"
	"github.com/Aman-CERP/pagemind/internal/llm"
	"github.com/Aman-CERP/pagemind/internal/store"
)

// Query failures. Each has its own code so callers can tell them apart.
var (
	ErrEmptyQuestion   = apperrors.New(apperrors.ErrCodeQueryEmpty, "question is empty", nil)
	ErrSettingsMissing = apperrors.New(apperrors.ErrCodeSettingsMissing, "Azure OpenAI settings are incomplete", nil)
	ErrNothingToSearch = apperrors.New(apperrors.ErrCodeNothingToAsk, "no analyzed records to search yet", nil)
	ErrNoMatches       = apperrors.New(apperrors.ErrCodeNoMatches, "no records matched the question", nil)
)

func init() {
	ErrSettingsMissing.Suggestion = "Run 'pagemind settings set' to configure the endpoint, key and deployments"
	ErrNothingToSearch.Suggestion = "Run 'pagemind scan' and 'pagemind analyze' first"
	ErrNoMatches.Suggestion = "Try rephrasing the question"
}

// Asker answers questions from the stored analyses.
type Asker struct {
	store    store.RecordStore
	settings config.SettingsProvider
	embedder llm.Embedder
	answerer llm.Answerer
	topK     int
	logger   *slog.Logger
}

// AskerOption configures an Asker.
type AskerOption func(*Asker)

// WithTopK sets how many matches are sent to the answer model.
func WithTopK(k int) AskerOption {
	return func(a *Asker) {
		if k > 0 {
			a.topK = k
		}
	}
}

// WithAskLogger sets the logger.
func WithAskLogger(l *slog.Logger) AskerOption {
	return func(a *Asker) { a.logger = l }
}

// NewAsker creates an Asker.
func NewAsker(st store.RecordStore, settings config.SettingsProvider, embedder llm.Embedder, answerer llm.Answerer, opts ...AskerOption) *Asker {
	a := &Asker{
		store:    st,
		settings: settings,
		embedder: embedder,
		answerer: answerer,
		topK:     DefaultTopK,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ask embeds the question, ranks the done analyses and asks the chat
// deployment to answer from the best matches.
func (a *Asker) Ask(ctx context.Context, question string) (*llm.AnswerResult, error) {
	question = strings.TrimSpace(question)
	s, matches, err := a.retrieve(ctx, question, a.topK)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrNoMatches
	}

	recordsJSON, err := MatchesJSON(matches)
	if err != nil {
		return nil, err
	}

	res, usage, err := a.answerer.Answer(ctx, s, question, recordsJSON)
	if err != nil {
		return nil, err
	}

	attrs := []any{slog.Int("matches", len(matches)), slog.Float64("top_score", matches[0].Score)}
	if usage.PromptTokens != nil {
		attrs = append(attrs, slog.Int("tokens_in", *usage.PromptTokens))
	}
	a.logger.Info("ask_answered", attrs...)

	return res, nil
}

// Search returns the ranked matches for query without calling the answer
// model. An empty result is not an error.
func (a *Asker) Search(ctx context.Context, query string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = a.topK
	}
	_, matches, err := a.retrieve(ctx, strings.TrimSpace(query), topK)
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func (a *Asker) retrieve(ctx context.Context, question string, topK int) (config.Settings, []Match, error) {
	if question == "" {
		return config.Settings{}, nil, ErrEmptyQuestion
	}

	s, err := a.settings.Settings(ctx)
	if err != nil {
		return s, nil, err
	}
	if !s.Complete() {
		return s, nil, ErrSettingsMissing
	}

	rows, err := a.store.ListDoneWithAnalyses(ctx)
	if err != nil {
		return s, nil, err
	}
	candidates := make([]store.KnowledgeRow, 0, len(rows))
	for _, row := range rows {
		if row.Analysis != nil && len(row.Analysis.Embedding) > 0 {
			candidates = append(candidates, row)
		}
	}
	if len(candidates) == 0 {
		return s, nil, ErrNothingToSearch
	}

	query, err := a.embedder.Embed(ctx, s, question)
	if err != nil {
		return s, nil, err
	}

	return s, Rank(query, candidates, topK), nil
}

// promptRecord is the JSON shape of one match in the answer prompt.
type promptRecord struct {
	Score           float64  `json:"score"`
	URL             string   `json:"url"`
	SourceTitle     string   `json:"source_title"`
	PageTitle       string   `json:"page_title"`
	SummaryShort    string   `json:"summary_short"`
	SummaryDetailed string   `json:"summary_detailed"`
	WhyRelevant     string   `json:"why_relevant"`
	Tags            []string `json:"tags"`
	Topics          []string `json:"topics"`
}

// MatchesJSON serializes matches for the answer prompt.
func MatchesJSON(matches []Match) (string, error) {
	records := make([]promptRecord, 0, len(matches))
	for _, m := range matches {
		an := m.Row.Analysis
		records = append(records, promptRecord{
			Score:           m.Score,
			URL:             m.Row.Record.URL,
			SourceTitle:     m.Row.Record.Title,
			PageTitle:       an.PageTitle,
			SummaryShort:    an.SummaryShort,
			SummaryDetailed: an.SummaryDetailed,
			WhyRelevant:     an.WhyRelevant,
			Tags:            nonNil(an.Tags),
			Topics:          nonNil(an.Topics),
		})
	}
	b, err := json.Marshal(records)
	if err != nil {
		return "", apperrors.InternalError("failed to encode matches", err)
	}
	return string(b), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
