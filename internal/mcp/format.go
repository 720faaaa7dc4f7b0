package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/pagemind/internal/llm"
	"github.com/Aman-CERP/pagemind/internal/service"
)

// FormatAnswer renders an answer with its cited pages as markdown.
func FormatAnswer(out AskOutput) string {
	var sb strings.Builder
	sb.WriteString(out.Answer)
	sb.WriteString("\n")

	writeURLs(&sb, "Sources", out.MatchedURLs)
	writeURLs(&sb, "Related", out.RelatedURLs)
	if out.Confidence > 0 {
		fmt.Fprintf(&sb, "\nConfidence: %.2f\n", out.Confidence)
	}
	return sb.String()
}

func writeURLs(sb *strings.Builder, heading string, urls []llm.URLReason) {
	if len(urls) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n### %s\n", heading)
	for _, u := range urls {
		if u.Reason != "" {
			fmt.Fprintf(sb, "- %s: %s\n", u.URL, u.Reason)
		} else {
			fmt.Fprintf(sb, "- %s\n", u.URL)
		}
	}
}

// FormatSearchResults renders ranked hits as markdown.
func FormatSearchResults(query string, hits []service.Hit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No saved pages found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Saved pages for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(hits))
	if len(hits) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, h := range hits {
		fmt.Fprintf(&sb, "### %d. %s (score: %.2f)\n", i+1, displayTitle(h), h.Score)
		fmt.Fprintf(&sb, "%s\n", h.URL)
		if h.Summary != "" {
			fmt.Fprintf(&sb, "\n%s\n", h.Summary)
		}
		if len(h.Topics) > 0 {
			fmt.Fprintf(&sb, "\n**Topics:** %s\n", strings.Join(h.Topics, ", "))
		}
		if len(h.Tags) > 0 {
			fmt.Fprintf(&sb, "**Tags:** %s\n", strings.Join(h.Tags, ", "))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func displayTitle(h service.Hit) string {
	switch {
	case h.PageTitle != "":
		return h.PageTitle
	case h.Title != "":
		return h.Title
	default:
		return h.URL
	}
}

// FormatStats renders the knowledge base state as markdown.
func FormatStats(out StatsOutput) string {
	var sb strings.Builder
	sb.WriteString("## Knowledge base\n\n")
	fmt.Fprintf(&sb, "**Status:** %s\n", out.Status)
	fmt.Fprintf(&sb, "**Records:** %d total, %d analyzed, %d pending, %d failed, %d restricted\n",
		out.Records.Total, out.Records.Done, out.Records.Pending, out.Records.Failed, out.Records.Restricted)
	if !out.Configured {
		fmt.Fprintf(&sb, "\nAzure OpenAI is not configured. Missing: %s\n", strings.Join(out.Missing, ", "))
	}
	return sb.String()
}
