// Package servicetest builds a Service over an in-memory store and fake
// page and model backends for surface tests.
package servicetest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/pagemind/internal/config"
	"github.com/Aman-CERP/pagemind/internal/fetch"
	"github.com/Aman-CERP/pagemind/internal/llm"
	"github.com/Aman-CERP/pagemind/internal/logging"
	"github.com/Aman-CERP/pagemind/internal/pipeline"
	"github.com/Aman-CERP/pagemind/internal/scanner"
	"github.com/Aman-CERP/pagemind/internal/search"
	"github.com/Aman-CERP/pagemind/internal/service"
	"github.com/Aman-CERP/pagemind/internal/store"
	"github.com/Aman-CERP/pagemind/internal/telemetry"
)

// Vocabulary gives the fake embedder one dimension per word, plus a bias
// dimension so every vector is non-zero.
var Vocabulary = []string{"golang", "sqlite", "redis", "kubernetes", "rust"}

// Fixture holds a Service and its collaborators.
type Fixture struct {
	Service  *service.Service
	Store    *store.SQLiteStore
	Settings *config.SettingsFile
	Metrics  *telemetry.Metrics
	Ring     *logging.Ring
	Model    *Model
	Dir      string
	Logger   *slog.Logger
}

// Option adjusts a fixture before the Service is built.
type Option func(*fixtureOptions)

type fixtureOptions struct {
	unconfigured bool
	sources      []config.WatchSource
}

// Unconfigured leaves the Azure settings empty.
func Unconfigured() Option {
	return func(o *fixtureOptions) { o.unconfigured = true }
}

// WithSources sets the configured scan sources.
func WithSources(src ...config.WatchSource) Option {
	return func(o *fixtureOptions) { o.sources = src }
}

// Ready returns complete settings pointing at no real endpoint.
func Ready() config.Settings {
	s := config.DefaultSettings()
	s.Endpoint = "https://example.openai.azure.com"
	s.APIKey = "secret-key"
	s.ChatDeployment = "chat"
	s.EmbeddingDeployment = "emb"
	return s
}

// New builds a fixture. Everything is closed on test cleanup.
func New(t *testing.T, opts ...Option) *Fixture {
	t.Helper()
	var o fixtureOptions
	for _, opt := range opts {
		opt(&o)
	}

	dir := t.TempDir()
	st, err := store.Open(store.DriverModernc, ":memory:")
	require.NoError(t, err)

	fallback := Ready()
	if o.unconfigured {
		fallback = config.DefaultSettings()
	}
	settings := config.NewSettingsFile(filepath.Join(dir, "settings.yaml"), fallback)

	ring := logging.NewRing(50)
	logger, cleanup, err := logging.Setup(logging.Config{Level: "debug", Ring: ring})
	require.NoError(t, err)

	metrics := telemetry.NewMetrics()
	model := &Model{}
	orch := pipeline.New(pipeline.Options{
		Store:      st,
		Settings:   settings,
		Fetcher:    Pages{},
		Summarizer: model,
		Embedder:   model,
		Observer:   metrics.RunObserver(),
		Logger:     logger,
	})
	asker := search.NewAsker(st, settings, model, model, search.WithAskLogger(logger))

	svc := service.New(service.Options{
		Store:        st,
		Settings:     settings,
		Orchestrator: orch,
		Asker:        asker,
		Scanner:      scanner.New(scanner.WithLogger(logger)),
		Sources:      o.sources,
		ExportDir:    filepath.Join(dir, "exports"),
		Metrics:      metrics,
		Ring:         ring,
		Logger:       logger,
	})

	t.Cleanup(func() {
		svc.Close()
		_ = st.Close()
		cleanup()
	})

	return &Fixture{
		Service:  svc,
		Store:    st,
		Settings: settings,
		Metrics:  metrics,
		Ring:     ring,
		Model:    model,
		Dir:      dir,
		Logger:   logger,
	}
}

// TabsFile writes a tab snapshot with one tab per URL and returns its
// watch source.
func (f *Fixture) TabsFile(t *testing.T, urls ...string) config.WatchSource {
	t.Helper()
	tabs := make([]scanner.TabEntry, 0, len(urls))
	window := 1
	for i, u := range urls {
		tabs = append(tabs, scanner.TabEntry{ID: i + 1, WindowID: &window, URL: u, Title: TitleFor(u)})
	}
	data, err := json.Marshal(tabs)
	require.NoError(t, err)

	path := filepath.Join(f.Dir, fmt.Sprintf("tabs-%d.json", time.Now().UnixNano()))
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return config.WatchSource{Kind: config.SourceTabs, Path: path}
}

// Seed scans urls and analyzes them.
func (f *Fixture) Seed(t *testing.T, urls ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.Service.Scan(ctx, f.TabsFile(t, urls...))
	require.NoError(t, err)
	_, err = f.Service.Analyze(ctx)
	require.NoError(t, err)
}

// TitleFor is the tab title the fixture gives u.
func TitleFor(u string) string {
	return "Tab " + strings.TrimPrefix(strings.TrimPrefix(u, "https://"), "http://")
}

// Pages serves a page whose text is the URL's path words.
type Pages struct{}

// FetchPage implements fetch.PageFetcher.
func (Pages) FetchPage(_ context.Context, rawURL string, _ time.Duration) (*fetch.Result, error) {
	words := strings.NewReplacer("https://", "", "http://", "", "/", " ", ".", " ", "-", " ").Replace(rawURL)
	html := fmt.Sprintf("<html><head><title>%s</title></head><body><p>%s</p></body></html>", words, words)
	return &fetch.Result{FinalURL: rawURL, HTTPStatus: 200, OK: true, HTML: html, FetchStatus: store.FetchOK}, nil
}

// Model is a deterministic summarizer, embedder and answerer.
type Model struct {
	mu     sync.Mutex
	asks   int
	AskErr error
}

// Summarize implements llm.Summarizer.
func (m *Model) Summarize(_ context.Context, _ config.Settings, in llm.SummaryInput) (*llm.SummaryResult, llm.Usage, error) {
	return &llm.SummaryResult{
		SummaryShort:    "About " + in.PageTitle,
		SummaryDetailed: in.ContentText,
		WhyRelevant:     "saved by the user",
		Tags:            strings.Fields(in.PageTitle),
		Topics:          []string{"testing"},
		Confidence:      0.8,
	}, llm.Usage{}, nil
}

// Embed implements llm.Embedder.
func (m *Model) Embed(_ context.Context, _ config.Settings, text string) ([]float32, error) {
	vec := make([]float32, len(Vocabulary)+1)
	lower := strings.ToLower(text)
	for i, w := range Vocabulary {
		vec[i] = float32(strings.Count(lower, w))
	}
	vec[len(Vocabulary)] = 0.1
	return vec, nil
}

// Answer implements llm.Answerer. It cites the first matched record.
func (m *Model) Answer(_ context.Context, _ config.Settings, question, recordsJSON string) (*llm.AnswerResult, llm.Usage, error) {
	m.mu.Lock()
	m.asks++
	m.mu.Unlock()
	if m.AskErr != nil {
		return nil, llm.Usage{}, m.AskErr
	}

	var recs []struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(recordsJSON), &recs); err != nil {
		return nil, llm.Usage{}, err
	}
	res := &llm.AnswerResult{
		Answer:      "Answer to " + question,
		MatchedURLs: []llm.URLReason{},
		RelatedURLs: []llm.URLReason{},
		Confidence:  0.7,
	}
	if len(recs) > 0 {
		res.MatchedURLs = append(res.MatchedURLs, llm.URLReason{URL: recs[0].URL, Reason: "best match"})
	}
	return res, llm.Usage{}, nil
}

// Asks returns how many answer calls were made.
func (m *Model) Asks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.asks
}

// discard is a logger for callers that want no output.
var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// Discard returns a logger that drops everything.
func Discard() *slog.Logger { return discard }
