// Package store persists captured records and their page analyses in SQLite.
// It is the only shared state between the scanner, the analysis pipeline and
// the retrieval engine.
package store

import (
	"context"
	"time"

	apperrors "github.com/Aman-CERP/pagemind/internal/errors"
)

// Status is the processing state of a record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
	StatusRestricted Status = "restricted"
)

// Valid reports whether s is a known processing status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusDone, StatusFailed, StatusRestricted:
		return true
	}
	return false
}

// FetchStatus describes how the page fetch for an analysis ended.
type FetchStatus string

const (
	FetchOK           FetchStatus = "ok"
	FetchTimeout      FetchStatus = "timeout"
	FetchNetworkError FetchStatus = "network_error"
	FetchHTTPError    FetchStatus = "http_error"
	FetchRestricted   FetchStatus = "restricted"
	FetchParseError   FetchStatus = "parse_error"
)

// Source identifies where a record was captured from.
type Source string

const (
	SourceTab      Source = "tab"
	SourceBookmark Source = "bookmark"
)

// AnalysisVersion is the schema version stamped on every analysis.
const AnalysisVersion = 1

// MaxLinks caps the extracted links stored per analysis.
const MaxLinks = 200

// Record is one captured URL.
type Record struct {
	ID              string     `json:"id"`
	Source          Source     `json:"source"`
	SourceID        string     `json:"sourceId"`
	SourceLabel     string     `json:"sourceLabel"`
	URL             string     `json:"url"`
	Title           string     `json:"title"`
	DateAdded       *time.Time `json:"dateAdded,omitempty"`
	Status          Status     `json:"status"`
	LastError       *string    `json:"lastError,omitempty"`
	LastProcessedAt *time.Time `json:"lastProcessedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Clone returns a copy of r that can be mutated independently.
func (r *Record) Clone() *Record {
	c := *r
	if r.DateAdded != nil {
		t := *r.DateAdded
		c.DateAdded = &t
	}
	if r.LastError != nil {
		e := *r.LastError
		c.LastError = &e
	}
	if r.LastProcessedAt != nil {
		t := *r.LastProcessedAt
		c.LastProcessedAt = &t
	}
	return &c
}

// Analysis is the result of one complete pass over a record.
type Analysis struct {
	ID              string      `json:"id"`
	RecordID        string      `json:"recordId"`
	PageTitle       string      `json:"pageTitle"`
	FinalURL        string      `json:"finalUrl"`
	HTTPStatus      *int        `json:"httpStatus,omitempty"`
	FetchStatus     FetchStatus `json:"fetchStatus"`
	ContentHash     string      `json:"contentHash"`
	SummaryShort    string      `json:"summaryShort"`
	SummaryDetailed string      `json:"summaryDetailed"`
	WhyRelevant     string      `json:"whyRelevant"`
	Tags            []string    `json:"tags"`
	Topics          []string    `json:"topics"`
	Links           []string    `json:"links"`
	Embedding       []float32   `json:"embedding"`
	ModelChat       string      `json:"modelChat"`
	ModelEmbedding  string      `json:"modelEmbedding"`
	PromptVersion   string      `json:"promptVersion"`
	TokensIn        *int        `json:"tokensIn,omitempty"`
	TokensOut       *int        `json:"tokensOut,omitempty"`
	AnalysisVersion int         `json:"analysisVersion"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// KnowledgeRow joins a record with its analysis. Analysis is nil when the
// record has not completed a pass.
type KnowledgeRow struct {
	Record   *Record
	Analysis *Analysis
}

// Stats counts records per status.
type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Done       int `json:"done"`
	Failed     int `json:"failed"`
	Restricted int `json:"restricted"`
	Analyses   int `json:"analyses"`
}

// RecordStore is the persistence contract used by the pipeline, scanner and
// retrieval engine.
type RecordStore interface {
	// ListPending returns records with status pending in creation order.
	ListPending(ctx context.Context) ([]*Record, error)

	// GetRecord returns the record with the given ID or ErrNotFound.
	GetRecord(ctx context.Context, id string) (*Record, error)

	// PutRecord upserts the full record by ID.
	PutRecord(ctx context.Context, r *Record) error

	// PutAnalysis upserts the analysis by RecordID.
	PutAnalysis(ctx context.Context, a *Analysis) error

	// ListDoneWithAnalyses returns done records that have an analysis.
	ListDoneWithAnalyses(ctx context.Context) ([]KnowledgeRow, error)

	// InsertNew inserts records whose URL is not stored yet.
	InsertNew(ctx context.Context, records []*Record) (int, error)

	// ListKnowledgeRows returns every record with its optional analysis.
	ListKnowledgeRows(ctx context.Context) ([]KnowledgeRow, error)

	// Stats counts records per status.
	Stats(ctx context.Context) (Stats, error)

	// Reset deletes every record and analysis.
	Reset(ctx context.Context) error

	// ResetStatus moves records in any of the given statuses back to pending.
	ResetStatus(ctx context.Context, from ...Status) (int, error)

	Close() error
}

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = apperrors.New(apperrors.ErrCodeStoreNotFound, "record not found", nil)
