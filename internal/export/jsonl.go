package export

import (
	"encoding/json"
	"io"
	"time"

	"github.com/Aman-CERP/pagemind/internal/store"
)

// Row is one JSONL line.
type Row struct {
	SchemaVersion string        `json:"schema_version"`
	ExportedAt    string        `json:"exported_at"`
	Record        RecordBlock   `json:"record"`
	Analysis      AnalysisBlock `json:"analysis"`
}

// RecordBlock describes where a page came from. Field names are the
// bookmark_knowledge.v1 ones for every source kind; Source is additive.
type RecordBlock struct {
	ID            string `json:"id"`
	BookmarkID    string `json:"bookmark_id"`
	URL           string `json:"url"`
	BookmarkTitle string `json:"bookmark_title"`
	FolderPath    string `json:"folder_path"`
	DateAdded     *int64 `json:"date_added"`
	Source        string `json:"source"`
}

// AnalysisBlock is the stored analysis of a page.
type AnalysisBlock struct {
	PageTitle       string    `json:"page_title"`
	FinalURL        string    `json:"final_url"`
	HTTPStatus      *int      `json:"http_status"`
	FetchStatus     string    `json:"fetch_status"`
	ContentHash     *string   `json:"content_hash"`
	SummaryShort    string    `json:"summary_short_en"`
	SummaryDetailed string    `json:"summary_detailed_en"`
	WhyRelevant     string    `json:"why_relevant_en"`
	Tags            []string  `json:"tags"`
	Topics          []string  `json:"topics"`
	Links           []string  `json:"links"`
	Embedding       []float32 `json:"embedding"`
	ModelChat       string    `json:"model_chat"`
	ModelEmbedding  string    `json:"model_embedding"`
	PromptVersion   string    `json:"prompt_version"`
	TokenUsageIn    *int      `json:"token_usage_in"`
	TokenUsageOut   *int      `json:"token_usage_out"`
	AnalyzedAt      string    `json:"analyzed_at"`
}

// ToRow converts a joined record and analysis.
func ToRow(r *store.Record, a *store.Analysis, exportedAt time.Time) Row {
	var added *int64
	if r.DateAdded != nil {
		ms := r.DateAdded.UnixMilli()
		added = &ms
	}
	var hash *string
	if a.ContentHash != "" {
		h := a.ContentHash
		hash = &h
	}
	return Row{
		SchemaVersion: SchemaJSONL,
		ExportedAt:    isoTime(exportedAt),
		Record: RecordBlock{
			ID:            r.ID,
			BookmarkID:    r.SourceID,
			URL:           r.URL,
			BookmarkTitle: r.Title,
			FolderPath:    r.SourceLabel,
			DateAdded:     added,
			Source:        string(r.Source),
		},
		Analysis: AnalysisBlock{
			PageTitle:       a.PageTitle,
			FinalURL:        a.FinalURL,
			HTTPStatus:      a.HTTPStatus,
			FetchStatus:     string(a.FetchStatus),
			ContentHash:     hash,
			SummaryShort:    a.SummaryShort,
			SummaryDetailed: a.SummaryDetailed,
			WhyRelevant:     a.WhyRelevant,
			Tags:            nonNil(a.Tags),
			Topics:          nonNil(a.Topics),
			Links:           nonNil(a.Links),
			Embedding:       nonNilVec(a.Embedding),
			ModelChat:       a.ModelChat,
			ModelEmbedding:  a.ModelEmbedding,
			PromptVersion:   a.PromptVersion,
			TokenUsageIn:    a.TokensIn,
			TokenUsageOut:   a.TokensOut,
			AnalyzedAt:      isoTime(a.CreatedAt),
		},
	}
}

// WriteJSONL writes one line per analyzed row.
func WriteJSONL(w io.Writer, rows []store.KnowledgeRow, exportedAt time.Time) (int, error) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	n := 0
	for _, kr := range Analyzed(rows) {
		if err := enc.Encode(ToRow(kr.Record, kr.Analysis, exportedAt)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilVec(v []float32) []float32 {
	if v == nil {
		return []float32{}
	}
	return v
}
