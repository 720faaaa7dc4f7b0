package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Aman-CERP/pagemind/internal/config"
	apperrors "github.com/Aman-CERP/pagemind/internal/errors"
)

const (
	temperature     = 0.2
	maxResponseSize = 16 << 20
)

// Call names used in error messages.
const (
	callSummary    = "chat summary"
	callEmbeddings = "embeddings"
	callAnswer     = "answer"
)

// StatusError is a non-2xx response from Azure OpenAI.
type StatusError struct {
	Call       string
	StatusCode int
	// Wait is the Retry-After delay the service asked for, if any.
	Wait time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("azure %s failed: %d", e.Call, e.StatusCode)
}

// RetryAfter lets the retry policy honor throttling responses.
func (e *StatusError) RetryAfter() time.Duration { return e.Wait }

// transportError marks a request that never produced a response.
type transportError struct{ err error }

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// AzureClient calls Azure OpenAI through go-openai. Settings are passed
// per call so a client survives settings changes.
type AzureClient struct {
	http    *http.Client
	retry   apperrors.RetryConfig
	breaker *apperrors.CircuitBreaker
	logger  *slog.Logger
}

var _ Client = (*AzureClient)(nil)

// Option configures an AzureClient.
type Option func(*AzureClient)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *AzureClient) { a.http = c }
}

// WithRetryConfig overrides the retry policy for transient failures.
func WithRetryConfig(cfg apperrors.RetryConfig) Option {
	return func(a *AzureClient) { a.retry = cfg }
}

// WithCircuitBreaker overrides the breaker guarding all calls.
func WithCircuitBreaker(cb *apperrors.CircuitBreaker) Option {
	return func(a *AzureClient) { a.breaker = cb }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *AzureClient) { a.logger = l }
}

// NewAzureClient creates a client with retry and circuit breaking.
func NewAzureClient(opts ...Option) *AzureClient {
	a := &AzureClient{
		http:  &http.Client{Timeout: 120 * time.Second},
		retry: apperrors.DefaultRetryConfig(),
		breaker: apperrors.NewCircuitBreaker("azure-openai",
			apperrors.WithMaxFailures(5),
			apperrors.WithResetTimeout(30*time.Second),
			apperrors.WithTripPredicate(apperrors.IsRetryable)),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Summarize asks the chat deployment for a structured page summary.
func (a *AzureClient) Summarize(ctx context.Context, s config.Settings, in SummaryInput) (*SummaryResult, Usage, error) {
	content, usage, err := a.chat(ctx, s, callSummary, SummarySystemPrompt, BuildSummaryPrompt(in))
	if err != nil {
		return nil, usage, err
	}
	res, err := ParseSummary(content)
	return res, usage, err
}

// Answer asks the chat deployment to answer question from recordsJSON.
func (a *AzureClient) Answer(ctx context.Context, s config.Settings, question, recordsJSON string) (*AnswerResult, Usage, error) {
	content, usage, err := a.chat(ctx, s, callAnswer, AnswerSystemPrompt, BuildAnswerPrompt(question, recordsJSON))
	if err != nil {
		return nil, usage, err
	}
	res, err := ParseAnswer(content)
	return res, usage, err
}

// Embed returns the embedding vector for text.
func (a *AzureClient) Embed(ctx context.Context, s config.Settings, text string) ([]float32, error) {
	client := a.openaiClient(s, callEmbeddings)
	req := openai.EmbeddingRequest{
		Input: text,
		Model: openai.EmbeddingModel(s.EmbeddingDeployment),
	}

	resp, err := guarded(ctx, a, callEmbeddings, func() (openai.EmbeddingResponse, error) {
		return client.CreateEmbeddings(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeLLMInvalid, "azure embeddings response missing vector", nil)
	}
	return resp.Data[0].Embedding, nil
}

func (a *AzureClient) chat(ctx context.Context, s config.Settings, call, system, user string) (string, Usage, error) {
	client := a.openaiClient(s, call)
	req := openai.ChatCompletionRequest{
		Model: s.ChatDeployment,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature:    temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := guarded(ctx, a, call, func() (openai.ChatCompletionResponse, error) {
		return client.CreateChatCompletion(ctx, req)
	})
	if err != nil {
		return "", Usage{}, err
	}

	var usage Usage
	if u := resp.Usage; u.PromptTokens > 0 || u.CompletionTokens > 0 {
		prompt, completion := u.PromptTokens, u.CompletionTokens
		usage.PromptTokens, usage.CompletionTokens = &prompt, &completion
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", usage, apperrors.New(apperrors.ErrCodeLLMInvalid, fmt.Sprintf("azure %s missing content", call), nil)
	}
	return resp.Choices[0].Message.Content, usage, nil
}

// openaiClient targets the Azure endpoint in s. Deployment names are used
// verbatim as model names.
func (a *AzureClient) openaiClient(s config.Settings, call string) *openai.Client {
	cfg := openai.DefaultAzureConfig(s.APIKey, strings.TrimRight(s.Endpoint, "/"))
	cfg.APIVersion = s.APIVersion
	cfg.AzureModelMapperFunc = func(model string) string { return model }
	cfg.HTTPClient = &statusDoer{http: a.http, call: call}
	return openai.NewClientWithConfig(cfg)
}

// guarded runs fn with retry behind the circuit breaker and maps its
// failure into an application error.
func guarded[T any](ctx context.Context, a *AzureClient, call string, fn func() (T, error)) (T, error) {
	start := time.Now()
	attempts := 0
	res, err := apperrors.RetryWithResult(ctx, a.retry, func() (T, error) {
		attempts++
		return apperrors.CircuitExecute(a.breaker, func() (T, error) {
			v, err := fn()
			return v, classify(call, err)
		})
	})

	a.logger.Debug("azure_request",
		slog.String("call", call),
		slog.Int("attempts", attempts),
		slog.Duration("duration", time.Since(start)),
		slog.Bool("ok", err == nil))

	return res, err
}

// classify turns go-openai failures into coded errors. Status and
// transport failures arrive from statusDoer unchanged; anything else is a
// body go-openai could not decode.
func classify(call string, err error) error {
	if err == nil {
		return nil
	}
	var se *StatusError
	if errors.As(err, &se) {
		return statusError(se)
	}
	var te *transportError
	if errors.As(err, &te) {
		return apperrors.New(apperrors.ErrCodeLLMUnavailable, fmt.Sprintf("azure %s request failed: %v", call, te.err), te.err)
	}
	return apperrors.New(apperrors.ErrCodeLLMInvalid, fmt.Sprintf("azure %s returned malformed JSON", call), err)
}

func statusError(se *StatusError) error {
	code := se.StatusCode
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return apperrors.New(apperrors.ErrCodeLLMAuth, se.Error(), se).
			WithSuggestion("Check the Azure OpenAI API key and deployment access")
	case code == http.StatusTooManyRequests || code >= 500:
		return apperrors.New(apperrors.ErrCodeLLMUnavailable, se.Error(), se)
	default:
		return apperrors.New(apperrors.ErrCodeLLMRequest, se.Error(), se)
	}
}

// statusDoer is the go-openai HTTP client. It answers non-2xx responses
// with a StatusError, so the status code and Retry-After survive, and it
// bounds the size of successful bodies.
type statusDoer struct {
	http *http.Client
	call string
}

func (d *statusDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.http.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		_ = resp.Body.Close()
		return nil, &StatusError{
			Call:       d.call,
			StatusCode: resp.StatusCode,
			Wait:       parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, maxResponseSize), resp.Body}
	return resp, nil
}

// parseRetryAfter reads the delay-seconds form. HTTP dates are ignored.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
