package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/pagemind/internal/config"
	apperrors "github.com/Aman-CERP/pagemind/internal/errors"
	"github.com/Aman-CERP/pagemind/internal/extract"
	"github.com/Aman-CERP/pagemind/internal/llm"
	"github.com/Aman-CERP/pagemind/internal/store"
)

const emptyTextMessage = "Extracted text is empty"

// recordRun carries one record through pending, processing and a terminal
// status. Every write supplies the full record.
type recordRun struct {
	o   *Orchestrator
	s   config.Settings
	rec *store.Record
}

// processRecord never returns without leaving the record in done, failed
// or restricted, unless the store itself rejects the write.
func (o *Orchestrator) processRecord(ctx context.Context, s config.Settings, r *store.Record) (out Outcome) {
	start := o.now()
	run := &recordRun{o: o, s: s, rec: r.Clone()}
	out = Outcome{RecordID: r.ID, URL: r.URL}

	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("record_panic",
				slog.String("record_id", r.ID),
				slog.Any("panic", p))
			out.Status, out.Error = run.finish(ctx, store.StatusFailed, fmt.Sprintf("panic: %v", p))
		}
		out.Duration = o.now().Sub(start)
	}()

	o.observer.RecordStarted(r)
	if err := run.markProcessing(ctx); err != nil {
		o.logger.Error("record_write_failed",
			slog.String("record_id", r.ID),
			slog.String("error", err.Error()))
		out.Status, out.Error = store.StatusFailed, TruncateError(apperrors.UserMessage(err))
		return out
	}

	out.Status, out.Error = run.analyze(ctx)
	return out
}

func (rr *recordRun) markProcessing(ctx context.Context) error {
	rr.rec.Status = store.StatusProcessing
	rr.rec.LastError = nil
	rr.rec.UpdatedAt = rr.o.now()
	return rr.o.store.PutRecord(ctx, rr.rec)
}

func (rr *recordRun) analyze(ctx context.Context) (store.Status, string) {
	o, r, s := rr.o, rr.rec, rr.s

	res, err := o.fetcher.FetchPage(ctx, r.URL, o.fetchTimeout)
	if err != nil {
		return rr.finish(ctx, ClassifyError(err), apperrors.UserMessage(err))
	}
	if !res.OK {
		return rr.finish(ctx, ClassifyFetch(res), FetchFailureMessage(res, r.URL))
	}

	baseURL := res.FinalURL
	if baseURL == "" {
		baseURL = r.URL
	}
	content := extract.Extract(res.HTML, baseURL)
	text := strings.TrimSpace(extract.Truncate(content.Text, s.EffectiveMaxChars()))
	if text == "" {
		return rr.finish(ctx, store.StatusFailed, emptyTextMessage)
	}

	summary, usage, err := o.summarizer.Summarize(ctx, s, llm.SummaryInput{
		SourceTitle: r.Title,
		URL:         r.URL,
		PageTitle:   content.PageTitle,
		ContentText: text,
	})
	if err != nil {
		return rr.finish(ctx, ClassifyError(err), apperrors.UserMessage(err))
	}

	vec, err := o.embedder.Embed(ctx, s, EmbeddingInput(r.Title, content.PageTitle, summary))
	if err != nil {
		return rr.finish(ctx, ClassifyError(err), apperrors.UserMessage(err))
	}

	links := content.Links
	if len(links) > o.linkLimit {
		links = links[:o.linkLimit]
	}
	status := res.HTTPStatus
	a := &store.Analysis{
		ID:              o.newID(),
		RecordID:        r.ID,
		PageTitle:       content.PageTitle,
		FinalURL:        baseURL,
		HTTPStatus:      &status,
		FetchStatus:     store.FetchOK,
		ContentHash:     ContentHash(text),
		SummaryShort:    summary.SummaryShort,
		SummaryDetailed: summary.SummaryDetailed,
		WhyRelevant:     summary.WhyRelevant,
		Tags:            summary.Tags,
		Topics:          summary.Topics,
		Links:           links,
		Embedding:       vec,
		ModelChat:       s.ChatDeployment,
		ModelEmbedding:  s.EmbeddingDeployment,
		PromptVersion:   llm.PromptVersionSummary,
		TokensIn:        usage.PromptTokens,
		TokensOut:       usage.CompletionTokens,
		AnalysisVersion: store.AnalysisVersion,
		CreatedAt:       o.now(),
	}
	// The analysis must be durable before the record reads as done.
	if err := o.store.PutAnalysis(ctx, a); err != nil {
		return rr.finish(ctx, store.StatusFailed, apperrors.UserMessage(err))
	}

	now := o.now()
	r.Status = store.StatusDone
	r.LastError = nil
	r.LastProcessedAt = &now
	r.UpdatedAt = now
	if err := o.store.PutRecord(ctx, r); err != nil {
		o.logger.Error("record_write_failed",
			slog.String("record_id", r.ID),
			slog.String("error", err.Error()))
		return store.StatusFailed, TruncateError(apperrors.UserMessage(err))
	}

	o.logger.Debug("record_done",
		slog.String("record_id", r.ID),
		slog.String("url", r.URL),
		slog.Int("text_chars", len([]rune(text))))
	return store.StatusDone, ""
}

// finish writes a failed or restricted terminal state.
func (rr *recordRun) finish(ctx context.Context, status store.Status, msg string) (store.Status, string) {
	msg = TruncateError(msg)
	now := rr.o.now()
	rr.rec.Status = status
	rr.rec.LastError = &msg
	rr.rec.LastProcessedAt = &now
	rr.rec.UpdatedAt = now

	if err := rr.o.store.PutRecord(ctx, rr.rec); err != nil {
		rr.o.logger.Error("record_write_failed",
			slog.String("record_id", rr.rec.ID),
			slog.String("error", err.Error()))
	}
	rr.o.logger.Info("record_not_analyzed",
		slog.String("record_id", rr.rec.ID),
		slog.String("url", rr.rec.URL),
		slog.String("status", string(status)),
		slog.String("error", msg))
	return status, msg
}

// EmbeddingInput joins the fields that describe a page for retrieval.
func EmbeddingInput(sourceTitle, pageTitle string, sum *llm.SummaryResult) string {
	return strings.Join([]string{
		sourceTitle,
		pageTitle,
		sum.SummaryShort,
		sum.WhyRelevant,
		strings.Join(sum.Tags, ", "),
		strings.Join(sum.Topics, ", "),
	}, "\n")
}
