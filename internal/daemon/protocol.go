package daemon

import (
	"encoding/json"

	"github.com/Aman-CERP/pagemind/internal/config"
	apperrors "github.com/Aman-CERP/pagemind/internal/errors"
)

// Method names a message. The names are shared by the socket and the
// HTTP message endpoint.
type Method string

const (
	MethodPing         Method = "PING"
	MethodGetStatus    Method = "GET_STATUS"
	MethodGetStats     Method = "GET_STATS"
	MethodStartScan    Method = "START_SCAN"
	MethodRunAnalysis  Method = "RUN_ANALYSIS"
	MethodGetJob       Method = "GET_JOB"
	MethodAskQuery     Method = "ASK_QUERY"
	MethodSearch       Method = "SEARCH"
	MethodGetSettings  Method = "GET_SETTINGS"
	MethodSaveSettings Method = "SAVE_SETTINGS"
	MethodExportJSONL  Method = "EXPORT_JSONL"
	MethodExportTXT    Method = "EXPORT_TXT"
	MethodGetLogs      Method = "GET_LOGS"
	MethodClearLogs    Method = "CLEAR_LOGS"
	MethodRequeue      Method = "REQUEUE"
	MethodQueryStats   Method = "GET_QUERY_STATS"
)

// Reply types, one per successful method.
const (
	TypePong          = "PONG"
	TypeStatus        = "STATUS"
	TypeStats         = "STATS"
	TypeScanStarted   = "SCAN_STARTED"
	TypeAnalysisDone  = "ANALYSIS_RESULT"
	TypeJob           = "JOB"
	TypeAnswer        = "ANSWER"
	TypeSearchResults = "SEARCH_RESULTS"
	TypeSettings      = "SETTINGS"
	TypeSettingsSaved = "SETTINGS_SAVED"
	TypeExportReady   = "EXPORT_READY"
	TypeLogs          = "LOGS"
	TypeLogsCleared   = "LOGS_CLEARED"
	TypeRequeued      = "REQUEUED"
	TypeQueryStats    = "QUERY_STATS"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Application error codes.
const (
	ErrCodeConfiguration = -32001
	ErrCodeQuery         = -32002
	ErrCodeUpstream      = -32003
	ErrCodeStorage       = -32004
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  Method          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      string          `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  *Reply `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      string `json:"id"`
}

// Reply is a tagged success payload.
type Reply struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Error is a failed message. Message is the user-facing text.
type Error struct {
	Code    int           `json:"code"`
	Message string        `json:"error"`
	Details *ErrorDetails `json:"details,omitempty"`
}

// ErrorDetails carries the application error fields.
type ErrorDetails struct {
	Code       string `json:"code"`
	Category   string `json:"category"`
	Suggestion string `json:"suggestion,omitempty"`
	Cause      string `json:"cause,omitempty"`
	Retryable  bool   `json:"retryable"`
}

// Error implements error so clients can return it directly.
func (e *Error) Error() string {
	if e.Details != nil && e.Details.Code != "" {
		return e.Details.Code + ": " + e.Message
	}
	return e.Message
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, reply Reply) Response {
	return Response{JSONRPC: "2.0", Result: &reply, ID: id}
}

// NewErrorResponse creates an error response without application details.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{JSONRPC: "2.0", Error: &Error{Code: code, Message: message}, ID: id}
}

// ErrorFor converts err into a wire error with its application details.
func ErrorFor(err error) *Error {
	ae := apperrors.ToAppError(err)
	details := &ErrorDetails{
		Code:       ae.Code,
		Category:   string(ae.Category),
		Suggestion: ae.Suggestion,
		Retryable:  ae.Retryable,
	}
	if ae.Cause != nil {
		details.Cause = ae.Cause.Error()
	}
	return &Error{Code: rpcCode(ae), Message: ae.Message, Details: details}
}

func rpcCode(ae *apperrors.AppError) int {
	switch ae.Code {
	case apperrors.ErrCodeUnknownMethod:
		return ErrCodeMethodNotFound
	case apperrors.ErrCodeInvalidInput, apperrors.ErrCodeQueryEmpty, apperrors.ErrCodeSourceInvalid:
		return ErrCodeInvalidParams
	}
	switch ae.Category {
	case apperrors.CategoryConfig:
		return ErrCodeConfiguration
	case apperrors.CategoryQuery:
		return ErrCodeQuery
	case apperrors.CategoryFetch, apperrors.CategoryLLM:
		return ErrCodeUpstream
	case apperrors.CategoryStorage:
		return ErrCodeStorage
	default:
		return ErrCodeInternalError
	}
}

// ScanParams selects what START_SCAN reads. An empty Kind scans every
// configured source. Analysis starts in the background unless NoAnalyze.
type ScanParams struct {
	Kind      string   `json:"kind,omitempty"`
	Path      string   `json:"path,omitempty"`
	Folders   []string `json:"folders,omitempty"`
	NoAnalyze bool     `json:"no_analyze,omitempty"`
}

// Source returns the explicit source, if any.
func (p ScanParams) Source() (config.WatchSource, bool) {
	if p.Kind == "" {
		return config.WatchSource{}, false
	}
	return config.WatchSource{Kind: p.Kind, Path: p.Path, Folders: p.Folders}, true
}

// ScanReply is the START_SCAN payload.
type ScanReply struct {
	Scans []ScanSummary `json:"scans"`
	JobID string        `json:"job_id,omitempty"`
}

// ScanSummary reports one scanned source.
type ScanSummary struct {
	Kind     string `json:"kind"`
	Path     string `json:"path,omitempty"`
	Found    int    `json:"found"`
	Inserted int    `json:"inserted"`
	Existing int    `json:"existing"`
}

// AnalysisParams tunes RUN_ANALYSIS.
type AnalysisParams struct {
	// Wait blocks until the run finishes instead of returning a job.
	Wait bool `json:"wait,omitempty"`
	// Rerun waits for an active run and starts a fresh one.
	Rerun bool `json:"rerun,omitempty"`
}

// JobParams names a background job.
type JobParams struct {
	JobID string `json:"job_id"`
}

// AskParams is the ASK_QUERY payload.
type AskParams struct {
	Question string `json:"question"`
}

// SearchParams is the SEARCH payload.
type SearchParams struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// ExportReply is the EXPORT_JSONL and EXPORT_TXT payload.
type ExportReply struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Rows     int    `json:"rows"`
}

// RequeueParams is the REQUEUE payload.
type RequeueParams struct {
	Restricted bool `json:"restricted,omitempty"`
}

// RequeueReply reports how many records went back to pending.
type RequeueReply struct {
	Requeued int `json:"requeued"`
}

// SettingsReply wraps settings with their completeness.
type SettingsReply struct {
	Settings config.Settings `json:"settings"`
	Missing  []string        `json:"missing"`
}
