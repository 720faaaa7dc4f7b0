package service

import (
	"github.com/Aman-CERP/pagemind/internal/search"
)

// Hit is a search match flattened for display and the wire.
type Hit struct {
	Score       float64  `json:"score"`
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	PageTitle   string   `json:"page_title"`
	Summary     string   `json:"summary"`
	WhyRelevant string   `json:"why_relevant"`
	Tags        []string `json:"tags"`
	Topics      []string `json:"topics"`
}

// Hits converts ranked matches, keeping their order.
func Hits(matches []search.Match) []Hit {
	hits := make([]Hit, 0, len(matches))
	for _, m := range matches {
		h := Hit{Score: m.Score, URL: m.Row.Record.URL, Title: m.Row.Record.Title}
		if an := m.Row.Analysis; an != nil {
			h.PageTitle = an.PageTitle
			h.Summary = an.SummaryShort
			h.WhyRelevant = an.WhyRelevant
			h.Tags = an.Tags
			h.Topics = an.Topics
		}
		if h.Tags == nil {
			h.Tags = []string{}
		}
		if h.Topics == nil {
			h.Topics = []string{}
		}
		hits = append(hits, h)
	}
	return hits
}
