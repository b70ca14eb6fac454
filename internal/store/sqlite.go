package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite. Timestamps are
// stored as unix milliseconds.
type SQLiteStore struct {
	db       *sql.DB
	now      func() time.Time
	attempts int
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id             TEXT PRIMARY KEY,
	original_name  TEXT NOT NULL DEFAULT '',
	path           TEXT NOT NULL DEFAULT '',
	type           TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT '',
	amount         TEXT NOT NULL DEFAULT '',
	due_date       TEXT NOT NULL DEFAULT '',
	supplier       TEXT NOT NULL DEFAULT '',
	extracted_data TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL DEFAULT '',
	processed_at   INTEGER,
	updated_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS document_logs (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	action      TEXT NOT NULL,
	status      TEXT NOT NULL,
	details     TEXT,
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS ai_runs (
	id                 TEXT PRIMARY KEY,
	document_id        TEXT NOT NULL,
	provider           TEXT NOT NULL,
	model              TEXT NOT NULL DEFAULT '',
	fallback_reason    TEXT NOT NULL DEFAULT '',
	ocr_strategy       TEXT NOT NULL DEFAULT '',
	tokens_in          INTEGER NOT NULL DEFAULT 0,
	tokens_out         INTEGER NOT NULL DEFAULT 0,
	cost_usd           REAL NOT NULL DEFAULT 0,
	processing_time_ms INTEGER NOT NULL DEFAULT 0,
	confidence         INTEGER NOT NULL DEFAULT 0,
	success            INTEGER NOT NULL DEFAULT 0,
	error              TEXT NOT NULL DEFAULT '',
	created_at         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS inconsistencies (
	id            TEXT PRIMARY KEY,
	document_id   TEXT NOT NULL,
	field         TEXT NOT NULL,
	source_values TEXT NOT NULL,
	severity      TEXT NOT NULL,
	created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS extraction_metrics (
	id                 TEXT PRIMARY KEY,
	document_id        TEXT NOT NULL DEFAULT '',
	strategy_used      TEXT NOT NULL,
	success            INTEGER NOT NULL DEFAULT 0,
	processing_time_ms INTEGER NOT NULL DEFAULT 0,
	character_count    INTEGER NOT NULL DEFAULT 0,
	confidence         INTEGER NOT NULL DEFAULT 0,
	fallback_level     INTEGER NOT NULL DEFAULT 0,
	attempts           TEXT NOT NULL,
	created_at         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_document_logs_document ON document_logs(document_id);
CREATE INDEX IF NOT EXISTS idx_ai_runs_document ON ai_runs(document_id);
CREATE INDEX IF NOT EXISTS idx_ai_runs_created ON ai_runs(created_at);
CREATE INDEX IF NOT EXISTS idx_inconsistencies_document ON inconsistencies(document_id);
CREATE INDEX IF NOT EXISTS idx_extraction_metrics_created ON extraction_metrics(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) write(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return resilience.Do(ctx, resilience.StorePolicy(orDefault(s.attempts), op), fn)
}

func (s *SQLiteStore) AppendAIRun(ctx context.Context, rec model.AIRunRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	return s.write(ctx, "append_ai_run", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO ai_runs (id, document_id, provider, model, fallback_reason, ocr_strategy,
				tokens_in, tokens_out, cost_usd, processing_time_ms, confidence, success, error, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.DocumentID, rec.Provider, rec.Model, string(rec.FallbackReason), rec.OCRStrategy,
			rec.TokensIn, rec.TokensOut, rec.CostUSD, rec.ProcessingTimeMs, rec.Confidence, rec.Success, rec.Error,
			rec.CreatedAt.UnixMilli(),
		)
		return eris.Wrap(err, "sqlite: insert ai run")
	})
}

func (s *SQLiteStore) ListAIRuns(ctx context.Context, filter RunFilter) ([]model.AIRunRecord, error) {
	query := `SELECT id, document_id, provider, model, fallback_reason, ocr_strategy, tokens_in, tokens_out,
		cost_usd, processing_time_ms, confidence, success, error, created_at FROM ai_runs WHERE 1=1`
	var args []any

	if filter.DocumentID != "" {
		query += ` AND document_id = ?`
		args = append(args, filter.DocumentID)
	}
	if filter.Provider != "" {
		query += ` AND provider = ?`
		args = append(args, filter.Provider)
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UnixMilli())
	}
	query += ` ORDER BY created_at ASC, rowid ASC LIMIT ?`
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list ai runs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.AIRunRecord
	for rows.Next() {
		var r model.AIRunRecord
		var reason string
		var created int64
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.Provider, &r.Model, &reason, &r.OCRStrategy,
			&r.TokensIn, &r.TokensOut, &r.CostUSD, &r.ProcessingTimeMs, &r.Confidence, &r.Success, &r.Error, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ai run")
		}
		r.FallbackReason = model.FallbackReason(reason)
		r.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list ai runs iterate")
}

func (s *SQLiteStore) ReplaceInconsistencies(ctx context.Context, documentID string, set []model.Inconsistency) error {
	created := s.now().UnixMilli()
	return s.write(ctx, "replace_inconsistencies", func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return eris.Wrap(err, "sqlite: begin")
		}
		defer tx.Rollback() //nolint:errcheck

		if _, err := tx.ExecContext(ctx, `DELETE FROM inconsistencies WHERE document_id = ?`, documentID); err != nil {
			return eris.Wrapf(err, "sqlite: clear inconsistencies %s", documentID)
		}
		for _, inc := range set {
			values, err := json.Marshal(inc.SourceValues)
			if err != nil {
				return eris.Wrap(err, "sqlite: marshal source values")
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO inconsistencies (id, document_id, field, source_values, severity, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
				uuid.New().String(), documentID, inc.Field, string(values), string(inc.Severity), created,
			); err != nil {
				return eris.Wrap(err, "sqlite: insert inconsistency")
			}
		}
		return eris.Wrap(tx.Commit(), "sqlite: commit inconsistencies")
	})
}

func (s *SQLiteStore) ListInconsistencies(ctx context.Context, documentID string) ([]model.Inconsistency, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field, source_values, severity FROM inconsistencies WHERE document_id = ? ORDER BY rowid`,
		documentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list inconsistencies")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Inconsistency
	for rows.Next() {
		var inc model.Inconsistency
		var values, severity string
		if err := rows.Scan(&inc.Field, &values, &severity); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan inconsistency")
		}
		if err := json.Unmarshal([]byte(values), &inc.SourceValues); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal source values")
		}
		inc.Severity = model.Severity(severity)
		out = append(out, inc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list inconsistencies iterate")
}

func (s *SQLiteStore) RecordExtraction(ctx context.Context, m model.ExtractionMetrics) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	attempts, err := json.Marshal(m.Attempts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal attempts")
	}
	return s.write(ctx, "record_extraction", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO extraction_metrics (id, document_id, strategy_used, success, processing_time_ms,
				character_count, confidence, fallback_level, attempts, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.DocumentID, m.StrategyUsed, m.Success, m.ProcessingTimeMs,
			m.CharacterCount, m.Confidence, m.FallbackLevel, string(attempts), m.CreatedAt.UnixMilli(),
		)
		return eris.Wrap(err, "sqlite: insert extraction metrics")
	})
}

func (s *SQLiteStore) ListExtractionMetrics(ctx context.Context, since time.Time) ([]model.ExtractionMetrics, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, strategy_used, success, processing_time_ms, character_count, confidence,
			fallback_level, attempts, created_at
		 FROM extraction_metrics WHERE created_at >= ? ORDER BY created_at ASC, rowid ASC`,
		since.UnixMilli(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list extraction metrics")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ExtractionMetrics
	for rows.Next() {
		var m model.ExtractionMetrics
		var attempts string
		var created int64
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.StrategyUsed, &m.Success, &m.ProcessingTimeMs,
			&m.CharacterCount, &m.Confidence, &m.FallbackLevel, &attempts, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan extraction metrics")
		}
		if err := json.Unmarshal([]byte(attempts), &m.Attempts); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal attempts")
		}
		m.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list extraction metrics iterate")
}

// UpdateDocument upserts the document row. Empty fields of u keep the stored value.
func (s *SQLiteStore) UpdateDocument(ctx context.Context, id string, u model.DocumentUpdate) error {
	var processed sql.NullInt64
	if u.ProcessedAt != nil {
		processed = sql.NullInt64{Int64: u.ProcessedAt.UnixMilli(), Valid: true}
	}
	return s.write(ctx, "update_document", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO documents (id, original_name, path, type, status, amount, due_date, supplier,
				extracted_data, error, processed_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				original_name  = COALESCE(NULLIF(excluded.original_name, ''), documents.original_name),
				path           = COALESCE(NULLIF(excluded.path, ''), documents.path),
				type           = COALESCE(NULLIF(excluded.type, ''), documents.type),
				status         = COALESCE(NULLIF(excluded.status, ''), documents.status),
				amount         = COALESCE(NULLIF(excluded.amount, ''), documents.amount),
				due_date       = COALESCE(NULLIF(excluded.due_date, ''), documents.due_date),
				supplier       = COALESCE(NULLIF(excluded.supplier, ''), documents.supplier),
				extracted_data = COALESCE(NULLIF(excluded.extracted_data, ''), documents.extracted_data),
				error          = COALESCE(NULLIF(excluded.error, ''), documents.error),
				processed_at   = COALESCE(excluded.processed_at, documents.processed_at),
				updated_at     = excluded.updated_at`,
			id, u.OriginalName, u.Path, string(u.Type), string(u.Status), u.Amount, u.DueDate, u.Supplier,
			u.ExtractedData, u.Error, processed, s.now().UnixMilli(),
		)
		return eris.Wrapf(err, "sqlite: update document %s", id)
	})
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	var d model.Document
	var typ, status string
	var processed sql.NullInt64
	var updated int64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, original_name, path, type, status, amount, due_date, supplier, extracted_data, error,
			processed_at, updated_at FROM documents WHERE id = ?`,
		id,
	).Scan(&d.ID, &d.OriginalName, &d.Path, &typ, &status, &d.Amount, &d.DueDate, &d.Supplier,
		&d.ExtractedData, &d.Error, &processed, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: document %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get document %s", id)
	}
	d.Type = model.DocumentType(typ)
	d.Status = model.DocumentStatus(status)
	d.UpdatedAt = time.UnixMilli(updated).UTC()
	if processed.Valid {
		t := time.UnixMilli(processed.Int64).UTC()
		d.ProcessedAt = &t
	}
	return &d, nil
}

func (s *SQLiteStore) AppendLog(ctx context.Context, entry model.DocumentLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	details, err := marshalDetails(entry.Details)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal log details")
	}
	return s.write(ctx, "append_log", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO document_logs (id, document_id, action, status, details, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			entry.ID, entry.DocumentID, entry.Action, entry.Status, details, entry.CreatedAt.UnixMilli(),
		)
		return eris.Wrap(err, "sqlite: insert document log")
	})
}

func (s *SQLiteStore) ListLogs(ctx context.Context, documentID string) ([]model.DocumentLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, action, status, details, created_at FROM document_logs
		 WHERE document_id = ? ORDER BY created_at ASC, rowid ASC`,
		documentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list logs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.DocumentLog
	for rows.Next() {
		var l model.DocumentLog
		var details sql.NullString
		var created int64
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.Action, &l.Status, &details, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan log")
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &l.Details); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal log details")
			}
		}
		l.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list logs iterate")
}

func marshalDetails(details map[string]any) (*string, error) {
	if len(details) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func orDefault(attempts int) int {
	if attempts <= 0 {
		return defaultWriteAttempts
	}
	return attempts
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
