package llm

import "fmt"

// SummarySystemPrompt instructs the chat deployment for page summaries.
const SummarySystemPrompt = "You summarize bookmarked web pages for a personal knowledge archive. " +
	"Return strict JSON only. " +
	"Use English. " +
	"Focus on technical concepts, frameworks, libraries, APIs, and practical usage when present. " +
	"Do not invent facts that are not supported by the provided content."

// AnswerSystemPrompt instructs the chat deployment for question answering.
const AnswerSystemPrompt = "You answer questions about a user's archived bookmarks. " +
	"Use only the provided records. " +
	"Return strict JSON only. " +
	"If evidence is weak, say so."

const summaryUserTemplate = `Summarize the following bookmarked page.

Input metadata:
- Bookmark title: %s
- URL: %s
- Page title: %s

Extracted content (possibly truncated):
%s

Return JSON with this exact shape:
{
  "summary_short": "3-5 sentences",
  "summary_detailed": "6-12 sentences with specific details, concepts, and practical takeaways",
  "why_relevant": "1 sentence describing why someone might have bookmarked this page",
  "tags": ["tag1", "tag2", "tag3"],
  "topics": ["topic1", "topic2"],
  "confidence": 0.0
}

Rules:
- Be concrete and specific.
- Mention key terms, frameworks, APIs, and concepts explicitly.
- Avoid generic wording.
`

const answerUserTemplate = `User question:
%s

Retrieved bookmark records (top matches):
%s

Return JSON with this exact shape:
{
  "answer": "direct answer in English",
  "matched_urls": [{"url":"https://example.com","reason":"why it matches"}],
  "related_urls": [{"url":"https://example.com","reason":"why it is related"}],
  "confidence": 0.0
}`

// BuildSummaryPrompt renders the user message for a summary request.
func BuildSummaryPrompt(in SummaryInput) string {
	return fmt.Sprintf(summaryUserTemplate, in.SourceTitle, in.URL, in.PageTitle, in.ContentText)
}

// BuildAnswerPrompt renders the user message for an answer request.
func BuildAnswerPrompt(question, recordsJSON string) string {
	return fmt.Sprintf(answerUserTemplate, question, recordsJSON)
}
