package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // cgo driver, registered as "sqlite3"
	_ "modernc.org/sqlite"          // pure Go driver, registered as "sqlite"

	apperrors "github.com/Aman-CERP/pagemind/internal/errors"
)

// Driver names accepted by Open.
const (
	DriverModernc = "sqlite"
	DriverCGO     = "sqlite3"
)

// schemaVersion is bumped whenever the table layout changes.
const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS schema_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
	id                TEXT PRIMARY KEY,
	source            TEXT NOT NULL,
	source_id         TEXT NOT NULL DEFAULT '',
	source_label      TEXT NOT NULL DEFAULT '',
	url               TEXT NOT NULL UNIQUE,
	title             TEXT NOT NULL DEFAULT '',
	date_added        INTEGER,
	status            TEXT NOT NULL,
	last_error        TEXT,
	last_processed_at INTEGER,
	created_at        INTEGER NOT NULL,
	updated_at        INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);

CREATE TABLE IF NOT EXISTS analyses (
	record_id        TEXT PRIMARY KEY REFERENCES records(id) ON DELETE CASCADE,
	id               TEXT NOT NULL,
	page_title       TEXT NOT NULL DEFAULT '',
	final_url        TEXT NOT NULL DEFAULT '',
	http_status      INTEGER,
	fetch_status     TEXT NOT NULL,
	content_hash     TEXT NOT NULL DEFAULT '',
	summary_short    TEXT NOT NULL DEFAULT '',
	summary_detailed TEXT NOT NULL DEFAULT '',
	why_relevant     TEXT NOT NULL DEFAULT '',
	tags             TEXT NOT NULL DEFAULT '[]',
	topics           TEXT NOT NULL DEFAULT '[]',
	links            TEXT NOT NULL DEFAULT '[]',
	embedding        BLOB,
	model_chat       TEXT NOT NULL DEFAULT '',
	model_embedding  TEXT NOT NULL DEFAULT '',
	prompt_version   TEXT NOT NULL DEFAULT '',
	tokens_in        INTEGER,
	tokens_out       INTEGER,
	analysis_version INTEGER NOT NULL,
	created_at       INTEGER NOT NULL
);
`

const recordColumns = `r.id, r.source, r.source_id, r.source_label, r.url, r.title, r.date_added,
	r.status, r.last_error, r.last_processed_at, r.created_at, r.updated_at`

const analysisColumns = `a.record_id, a.id, a.page_title, a.final_url, a.http_status, a.fetch_status,
	a.content_hash, a.summary_short, a.summary_detailed, a.why_relevant, a.tags, a.topics, a.links,
	a.embedding, a.model_chat, a.model_embedding, a.prompt_version, a.tokens_in, a.tokens_out,
	a.analysis_version, a.created_at`

// SQLiteStore implements RecordStore on database/sql.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	driver string
}

var _ RecordStore = (*SQLiteStore)(nil)

// Open opens (or creates) the store at path using the named driver.
// An empty path or ":memory:" opens an in-memory database.
func Open(driver, path string) (*SQLiteStore, error) {
	if driver == "" {
		driver = DriverModernc
	}
	if driver != DriverModernc && driver != DriverCGO {
		return nil, apperrors.New(apperrors.ErrCodeStoreOpen, fmt.Sprintf("unknown sqlite driver %q", driver), nil).
			WithSuggestion("Use storage.driver \"sqlite\" or \"sqlite3\"")
	}

	dsn := path
	if path == "" || path == ":memory:" {
		dsn = ":memory:"
		path = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.New(apperrors.ErrCodeStoreOpen, fmt.Sprintf("failed to create directory %s", dir), err)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeStoreOpen, "failed to open database", err)
	}

	// One connection serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}
	if dsn != ":memory:" {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, apperrors.New(apperrors.ErrCodeStoreOpen, fmt.Sprintf("failed to apply %s", p), err)
		}
	}

	s := &SQLiteStore{db: db, path: path, driver: driver}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	slog.Debug("record_store_opened",
		slog.String("path", path),
		slog.String("driver", driver))

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return apperrors.New(apperrors.ErrCodeStoreOpen, "failed to create schema", err)
	}

	var current string
	err := s.db.QueryRow(`SELECT value FROM schema_meta WHERE key = 'schema_version'`).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.Exec(`INSERT INTO schema_meta (key, value) VALUES ('schema_version', ?)`,
			fmt.Sprint(schemaVersion))
		if err != nil {
			return apperrors.New(apperrors.ErrCodeStoreOpen, "failed to stamp schema version", err)
		}
	case err != nil:
		return apperrors.New(apperrors.ErrCodeStoreOpen, "failed to read schema version", err)
	case current != fmt.Sprint(schemaVersion):
		return apperrors.New(apperrors.ErrCodeStoreCorrupt,
			fmt.Sprintf("unsupported schema version %s (want %d)", current, schemaVersion), nil).
			WithSuggestion("Run 'pagemind reset' to rebuild the knowledge base")
	}
	return nil
}

// Path returns the database location.
func (s *SQLiteStore) Path() string { return s.path }

// Driver returns the database/sql driver name in use.
func (s *SQLiteStore) Driver() string { return s.driver }

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ListPending returns pending records in creation order.
func (s *SQLiteStore) ListPending(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records r WHERE r.status = ? ORDER BY r.rowid`, StatusPending)
	if err != nil {
		return nil, apperrors.StorageError("failed to list pending records", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.StorageError("failed to iterate pending records", err)
	}
	return out, nil
}

// GetRecord returns a record by ID.
func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records r WHERE r.id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// PutRecord upserts the full record by ID.
func (s *SQLiteStore) PutRecord(ctx context.Context, r *Record) error {
	if r == nil || r.ID == "" {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "record id is required", nil)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (id, source, source_id, source_label, url, title, date_added,
			status, last_error, last_processed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			source_id = excluded.source_id,
			source_label = excluded.source_label,
			url = excluded.url,
			title = excluded.title,
			date_added = excluded.date_added,
			status = excluded.status,
			last_error = excluded.last_error,
			last_processed_at = excluded.last_processed_at,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		recordArgs(r)...)
	if err != nil {
		return apperrors.StorageError("failed to save record", err).WithDetail("record_id", r.ID)
	}
	return nil
}

// InsertNew inserts records whose URL is not stored yet and returns how many
// were added. Existing URLs are left untouched.
func (s *SQLiteStore) InsertNew(ctx context.Context, records []*Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperrors.StorageError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (id, source, source_id, source_label, url, title, date_added,
			status, last_error, last_processed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO NOTHING`)
	if err != nil {
		return 0, apperrors.StorageError("failed to prepare insert", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range records {
		res, err := stmt.ExecContext(ctx, recordArgs(r)...)
		if err != nil {
			return 0, apperrors.StorageError("failed to insert record", err).WithDetail("url", r.URL)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, apperrors.StorageError("failed to count inserted rows", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, apperrors.StorageError("failed to commit inserts", err)
	}
	return inserted, nil
}

// PutAnalysis upserts an analysis by RecordID.
func (s *SQLiteStore) PutAnalysis(ctx context.Context, a *Analysis) error {
	if a == nil || a.RecordID == "" {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "analysis record id is required", nil)
	}

	tags, err := marshalList(a.Tags)
	if err != nil {
		return err
	}
	topics, err := marshalList(a.Topics)
	if err != nil {
		return err
	}
	links, err := marshalList(a.Links)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analyses (record_id, id, page_title, final_url, http_status, fetch_status,
			content_hash, summary_short, summary_detailed, why_relevant, tags, topics, links,
			embedding, model_chat, model_embedding, prompt_version, tokens_in, tokens_out,
			analysis_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(record_id) DO UPDATE SET
			id = excluded.id,
			page_title = excluded.page_title,
			final_url = excluded.final_url,
			http_status = excluded.http_status,
			fetch_status = excluded.fetch_status,
			content_hash = excluded.content_hash,
			summary_short = excluded.summary_short,
			summary_detailed = excluded.summary_detailed,
			why_relevant = excluded.why_relevant,
			tags = excluded.tags,
			topics = excluded.topics,
			links = excluded.links,
			embedding = excluded.embedding,
			model_chat = excluded.model_chat,
			model_embedding = excluded.model_embedding,
			prompt_version = excluded.prompt_version,
			tokens_in = excluded.tokens_in,
			tokens_out = excluded.tokens_out,
			analysis_version = excluded.analysis_version,
			created_at = excluded.created_at`,
		a.RecordID, a.ID, a.PageTitle, a.FinalURL, nullInt(a.HTTPStatus), string(a.FetchStatus),
		a.ContentHash, a.SummaryShort, a.SummaryDetailed, a.WhyRelevant, tags, topics, links,
		EncodeEmbedding(a.Embedding), a.ModelChat, a.ModelEmbedding, a.PromptVersion,
		nullInt(a.TokensIn), nullInt(a.TokensOut), a.AnalysisVersion, toMillis(a.CreatedAt))
	if err != nil {
		return apperrors.StorageError("failed to save analysis", err).WithDetail("record_id", a.RecordID)
	}
	return nil
}

// GetAnalysis returns the analysis for a record or ErrNotFound.
func (s *SQLiteStore) GetAnalysis(ctx context.Context, recordID string) (*Analysis, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+analysisColumns+` FROM analyses a WHERE a.record_id = ?`, recordID)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListDoneWithAnalyses returns done records joined with their analyses in
// record creation order.
func (s *SQLiteStore) ListDoneWithAnalyses(ctx context.Context) ([]KnowledgeRow, error) {
	return s.listJoined(ctx, `
		SELECT `+recordColumns+`, `+analysisColumns+`
		FROM records r JOIN analyses a ON a.record_id = r.id
		WHERE r.status = ?
		ORDER BY r.rowid`, StatusDone)
}

// ListKnowledgeRows returns every record with its optional analysis.
func (s *SQLiteStore) ListKnowledgeRows(ctx context.Context) ([]KnowledgeRow, error) {
	return s.listJoined(ctx, `
		SELECT `+recordColumns+`, `+analysisColumns+`
		FROM records r LEFT JOIN analyses a ON a.record_id = r.id
		ORDER BY r.rowid`)
}

func (s *SQLiteStore) listJoined(ctx context.Context, query string, args ...any) ([]KnowledgeRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.StorageError("failed to list knowledge rows", err)
	}
	defer rows.Close()

	var out []KnowledgeRow
	for rows.Next() {
		var rr recordRow
		var ar analysisRow
		dest := append(rr.dest(), ar.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, apperrors.StorageError("failed to scan knowledge row", err)
		}
		row := KnowledgeRow{Record: rr.record()}
		if ar.recordID.Valid {
			a, err := ar.analysis()
			if err != nil {
				return nil, err
			}
			row.Analysis = a
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.StorageError("failed to iterate knowledge rows", err)
	}
	return out, nil
}

// Stats counts records per status.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM records GROUP BY status`)
	if err != nil {
		return st, apperrors.StorageError("failed to count records", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return st, apperrors.StorageError("failed to scan status count", err)
		}
		st.Total += n
		switch Status(status) {
		case StatusPending:
			st.Pending = n
		case StatusProcessing:
			st.Processing = n
		case StatusDone:
			st.Done = n
		case StatusFailed:
			st.Failed = n
		case StatusRestricted:
			st.Restricted = n
		}
	}
	if err := rows.Err(); err != nil {
		return st, apperrors.StorageError("failed to iterate status counts", err)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analyses`).Scan(&st.Analyses); err != nil {
		return st, apperrors.StorageError("failed to count analyses", err)
	}
	return st, nil
}

// Reset deletes every record and analysis.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.StorageError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{`DELETE FROM analyses`, `DELETE FROM records`} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return apperrors.StorageError("failed to reset store", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.StorageError("failed to commit reset", err)
	}
	return nil
}

// ResetStatus moves records in any of the given statuses back to pending and
// clears their last error.
func (s *SQLiteStore) ResetStatus(ctx context.Context, from ...Status) (int, error) {
	if len(from) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(from)), ",")
	args := []any{StatusPending, toMillis(time.Now())}
	for _, st := range from {
		args = append(args, st)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET status = ?, last_error = NULL, updated_at = ? WHERE status IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return 0, apperrors.StorageError("failed to requeue records", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.StorageError("failed to count requeued records", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type recordRow struct {
	id, source, sourceID, sourceLabel, url, title, status string
	dateAdded, lastProcessedAt                            sql.NullInt64
	lastError                                             sql.NullString
	createdAt, updatedAt                                  int64
}

func (r *recordRow) dest() []any {
	return []any{&r.id, &r.source, &r.sourceID, &r.sourceLabel, &r.url, &r.title, &r.dateAdded,
		&r.status, &r.lastError, &r.lastProcessedAt, &r.createdAt, &r.updatedAt}
}

func (r *recordRow) record() *Record {
	rec := &Record{
		ID:              r.id,
		Source:          Source(r.source),
		SourceID:        r.sourceID,
		SourceLabel:     r.sourceLabel,
		URL:             r.url,
		Title:           r.title,
		DateAdded:       fromNullMillis(r.dateAdded),
		Status:          Status(r.status),
		LastProcessedAt: fromNullMillis(r.lastProcessedAt),
		CreatedAt:       fromMillis(r.createdAt),
		UpdatedAt:       fromMillis(r.updatedAt),
	}
	if r.lastError.Valid {
		e := r.lastError.String
		rec.LastError = &e
	}
	return rec
}

func scanRecord(s rowScanner) (*Record, error) {
	var rr recordRow
	if err := s.Scan(rr.dest()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, apperrors.StorageError("failed to scan record", err)
	}
	return rr.record(), nil
}

// analysisRow uses nullable columns throughout so it can scan LEFT JOIN results.
type analysisRow struct {
	recordID, id, pageTitle, finalURL, fetchStatus               sql.NullString
	contentHash, summaryShort, summaryDetailed, whyRelevant      sql.NullString
	tags, topics, links                                          sql.NullString
	modelChat, modelEmbedding, promptVersion                     sql.NullString
	httpStatus, tokensIn, tokensOut, analysisVersion, createdAt sql.NullInt64
	embedding                                                    []byte
}

func (a *analysisRow) dest() []any {
	return []any{&a.recordID, &a.id, &a.pageTitle, &a.finalURL, &a.httpStatus, &a.fetchStatus,
		&a.contentHash, &a.summaryShort, &a.summaryDetailed, &a.whyRelevant, &a.tags, &a.topics, &a.links,
		&a.embedding, &a.modelChat, &a.modelEmbedding, &a.promptVersion, &a.tokensIn, &a.tokensOut,
		&a.analysisVersion, &a.createdAt}
}

func (a *analysisRow) analysis() (*Analysis, error) {
	out := &Analysis{
		ID:              a.id.String,
		RecordID:        a.recordID.String,
		PageTitle:       a.pageTitle.String,
		FinalURL:        a.finalURL.String,
		HTTPStatus:      fromNullInt(a.httpStatus),
		FetchStatus:     FetchStatus(a.fetchStatus.String),
		ContentHash:     a.contentHash.String,
		SummaryShort:    a.summaryShort.String,
		SummaryDetailed: a.summaryDetailed.String,
		WhyRelevant:     a.whyRelevant.String,
		ModelChat:       a.modelChat.String,
		ModelEmbedding:  a.modelEmbedding.String,
		PromptVersion:   a.promptVersion.String,
		TokensIn:        fromNullInt(a.tokensIn),
		TokensOut:       fromNullInt(a.tokensOut),
		AnalysisVersion: int(a.analysisVersion.Int64),
		CreatedAt:       fromMillis(a.createdAt.Int64),
	}

	var err error
	if out.Tags, err = unmarshalList(a.tags.String); err != nil {
		return nil, err
	}
	if out.Topics, err = unmarshalList(a.topics.String); err != nil {
		return nil, err
	}
	if out.Links, err = unmarshalList(a.links.String); err != nil {
		return nil, err
	}
	if out.Embedding, err = DecodeEmbedding(a.embedding); err != nil {
		return nil, err
	}
	return out, nil
}

func scanAnalysis(s rowScanner) (*Analysis, error) {
	var ar analysisRow
	if err := s.Scan(ar.dest()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, apperrors.StorageError("failed to scan analysis", err)
	}
	return ar.analysis()
}

func recordArgs(r *Record) []any {
	var lastErr any
	if r.LastError != nil {
		lastErr = *r.LastError
	}
	return []any{r.ID, string(r.Source), r.SourceID, r.SourceLabel, r.URL, r.Title,
		nullMillis(r.DateAdded), string(r.Status), lastErr, nullMillis(r.LastProcessedAt),
		toMillis(r.CreatedAt), toMillis(r.UpdatedAt)}
}

func marshalList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", apperrors.StorageError("failed to encode list", err)
	}
	return string(b), nil
}

func unmarshalList(s string) ([]string, error) {
	if s == "" {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeStoreCorrupt, "stored list is not valid JSON", err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func fromNullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
