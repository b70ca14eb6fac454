package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/db"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool     db.Pool
	now      func() time.Time
	attempts int
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var inconsistencyColumns = []string{"id", "document_id", "field", "source_values", "severity", "created_at"}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresWithPool(pool), nil
}

func newPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

const postgresMigration = `
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
	processed_at   TIMESTAMPTZ,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS document_logs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	document_id TEXT NOT NULL,
	action      TEXT NOT NULL,
	status      TEXT NOT NULL,
	details     JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ai_runs (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	document_id        TEXT NOT NULL,
	provider           TEXT NOT NULL,
	model              TEXT NOT NULL DEFAULT '',
	fallback_reason    TEXT NOT NULL DEFAULT '',
	ocr_strategy       TEXT NOT NULL DEFAULT '',
	tokens_in          INTEGER NOT NULL DEFAULT 0,
	tokens_out         INTEGER NOT NULL DEFAULT 0,
	cost_usd           DOUBLE PRECISION NOT NULL DEFAULT 0,
	processing_time_ms BIGINT NOT NULL DEFAULT 0,
	confidence         INTEGER NOT NULL DEFAULT 0,
	success            BOOLEAN NOT NULL DEFAULT false,
	error              TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS inconsistencies (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	document_id   TEXT NOT NULL,
	field         TEXT NOT NULL,
	source_values JSONB NOT NULL,
	severity      TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS extraction_metrics (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	document_id        TEXT NOT NULL DEFAULT '',
	strategy_used      TEXT NOT NULL,
	success            BOOLEAN NOT NULL DEFAULT false,
	processing_time_ms BIGINT NOT NULL DEFAULT 0,
	character_count    INTEGER NOT NULL DEFAULT 0,
	confidence         INTEGER NOT NULL DEFAULT 0,
	fallback_level     INTEGER NOT NULL DEFAULT 0,
	attempts           JSONB NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_document_logs_document ON document_logs(document_id);
CREATE INDEX IF NOT EXISTS idx_ai_runs_document ON ai_runs(document_id);
CREATE INDEX IF NOT EXISTS idx_ai_runs_created ON ai_runs(created_at);
CREATE INDEX IF NOT EXISTS idx_inconsistencies_document ON inconsistencies(document_id);
CREATE INDEX IF NOT EXISTS idx_extraction_metrics_created ON extraction_metrics(created_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) write(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return resilience.Do(ctx, resilience.StorePolicy(orDefault(s.attempts), op), fn)
}

func (s *PostgresStore) AppendAIRun(ctx context.Context, rec model.AIRunRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	return s.write(ctx, "append_ai_run", func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO ai_runs (id, document_id, provider, model, fallback_reason, ocr_strategy,
				tokens_in, tokens_out, cost_usd, processing_time_ms, confidence, success, error, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			rec.ID, rec.DocumentID, rec.Provider, rec.Model, string(rec.FallbackReason), rec.OCRStrategy,
			rec.TokensIn, rec.TokensOut, rec.CostUSD, rec.ProcessingTimeMs, rec.Confidence, rec.Success, rec.Error,
			rec.CreatedAt,
		)
		return eris.Wrap(err, "postgres: insert ai run")
	})
}

func (s *PostgresStore) ListAIRuns(ctx context.Context, filter RunFilter) ([]model.AIRunRecord, error) {
	query := `SELECT id, document_id, provider, model, fallback_reason, ocr_strategy, tokens_in, tokens_out,
		cost_usd, processing_time_ms, confidence, success, error, created_at FROM ai_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.DocumentID != "" {
		query += fmt.Sprintf(` AND document_id = $%d`, argIdx)
		args = append(args, filter.DocumentID)
		argIdx++
	}
	if filter.Provider != "" {
		query += fmt.Sprintf(` AND provider = $%d`, argIdx)
		args = append(args, filter.Provider)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.Since)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at ASC LIMIT $%d`, argIdx)
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list ai runs")
	}
	defer rows.Close()

	var out []model.AIRunRecord
	for rows.Next() {
		var r model.AIRunRecord
		var reason string
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.Provider, &r.Model, &reason, &r.OCRStrategy,
			&r.TokensIn, &r.TokensOut, &r.CostUSD, &r.ProcessingTimeMs, &r.Confidence, &r.Success, &r.Error, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ai run")
		}
		r.FallbackReason = model.FallbackReason(reason)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list ai runs iterate")
}

// ReplaceInconsistencies swaps the document's set in one transaction,
// bulk-loading the new rows with COPY.
func (s *PostgresStore) ReplaceInconsistencies(ctx context.Context, documentID string, set []model.Inconsistency) error {
	created := s.now().UTC()
	rows := make([][]any, 0, len(set))
	for _, inc := range set {
		values, err := json.Marshal(inc.SourceValues)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal source values")
		}
		rows = append(rows, []any{uuid.New().String(), documentID, inc.Field, values, string(inc.Severity), created})
	}

	return s.write(ctx, "replace_inconsistencies", func(ctx context.Context) error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return eris.Wrap(err, "postgres: begin")
		}
		defer tx.Rollback(ctx) //nolint:errcheck

		if _, err := tx.Exec(ctx, `DELETE FROM inconsistencies WHERE document_id = $1`, documentID); err != nil {
			return eris.Wrapf(err, "postgres: clear inconsistencies %s", documentID)
		}
		if _, err := db.CopyFrom(ctx, tx, "inconsistencies", inconsistencyColumns, rows); err != nil {
			return err
		}
		return eris.Wrap(tx.Commit(ctx), "postgres: commit inconsistencies")
	})
}

func (s *PostgresStore) ListInconsistencies(ctx context.Context, documentID string) ([]model.Inconsistency, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT field, source_values, severity FROM inconsistencies WHERE document_id = $1 ORDER BY created_at, id`,
		documentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list inconsistencies")
	}
	defer rows.Close()

	var out []model.Inconsistency
	for rows.Next() {
		var inc model.Inconsistency
		var values []byte
		var severity string
		if err := rows.Scan(&inc.Field, &values, &severity); err != nil {
			return nil, eris.Wrap(err, "postgres: scan inconsistency")
		}
		if err := json.Unmarshal(values, &inc.SourceValues); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal source values")
		}
		inc.Severity = model.Severity(severity)
		out = append(out, inc)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list inconsistencies iterate")
}

func (s *PostgresStore) RecordExtraction(ctx context.Context, m model.ExtractionMetrics) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now().UTC()
	}
	attempts, err := json.Marshal(m.Attempts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal attempts")
	}
	return s.write(ctx, "record_extraction", func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO extraction_metrics (id, document_id, strategy_used, success, processing_time_ms,
				character_count, confidence, fallback_level, attempts, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			m.ID, m.DocumentID, m.StrategyUsed, m.Success, m.ProcessingTimeMs,
			m.CharacterCount, m.Confidence, m.FallbackLevel, attempts, m.CreatedAt,
		)
		return eris.Wrap(err, "postgres: insert extraction metrics")
	})
}

func (s *PostgresStore) ListExtractionMetrics(ctx context.Context, since time.Time) ([]model.ExtractionMetrics, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, strategy_used, success, processing_time_ms, character_count, confidence,
			fallback_level, attempts, created_at
		 FROM extraction_metrics WHERE created_at >= $1 ORDER BY created_at ASC`,
		since,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list extraction metrics")
	}
	defer rows.Close()

	var out []model.ExtractionMetrics
	for rows.Next() {
		var m model.ExtractionMetrics
		var attempts []byte
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.StrategyUsed, &m.Success, &m.ProcessingTimeMs,
			&m.CharacterCount, &m.Confidence, &m.FallbackLevel, &attempts, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan extraction metrics")
		}
		if err := json.Unmarshal(attempts, &m.Attempts); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal attempts")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list extraction metrics iterate")
}

// UpdateDocument upserts the document row. Empty fields of u keep the stored value.
func (s *PostgresStore) UpdateDocument(ctx context.Context, id string, u model.DocumentUpdate) error {
	return s.write(ctx, "update_document", func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO documents (id, original_name, path, type, status, amount, due_date, supplier,
				extracted_data, error, processed_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 ON CONFLICT (id) DO UPDATE SET
				original_name  = COALESCE(NULLIF(EXCLUDED.original_name, ''), documents.original_name),
				path           = COALESCE(NULLIF(EXCLUDED.path, ''), documents.path),
				type           = COALESCE(NULLIF(EXCLUDED.type, ''), documents.type),
				status         = COALESCE(NULLIF(EXCLUDED.status, ''), documents.status),
				amount         = COALESCE(NULLIF(EXCLUDED.amount, ''), documents.amount),
				due_date       = COALESCE(NULLIF(EXCLUDED.due_date, ''), documents.due_date),
				supplier       = COALESCE(NULLIF(EXCLUDED.supplier, ''), documents.supplier),
				extracted_data = COALESCE(NULLIF(EXCLUDED.extracted_data, ''), documents.extracted_data),
				error          = COALESCE(NULLIF(EXCLUDED.error, ''), documents.error),
				processed_at   = COALESCE(EXCLUDED.processed_at, documents.processed_at),
				updated_at     = EXCLUDED.updated_at`,
			id, u.OriginalName, u.Path, string(u.Type), string(u.Status), u.Amount, u.DueDate, u.Supplier,
			u.ExtractedData, u.Error, u.ProcessedAt, s.now().UTC(),
		)
		return eris.Wrapf(err, "postgres: update document %s", id)
	})
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	var d model.Document
	var typ, status string

	err := s.pool.QueryRow(ctx,
		`SELECT id, original_name, path, type, status, amount, due_date, supplier, extracted_data, error,
			processed_at, updated_at FROM documents WHERE id = $1`,
		id,
	).Scan(&d.ID, &d.OriginalName, &d.Path, &typ, &status, &d.Amount, &d.DueDate, &d.Supplier,
		&d.ExtractedData, &d.Error, &d.ProcessedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: document %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get document %s", id)
	}
	d.Type = model.DocumentType(typ)
	d.Status = model.DocumentStatus(status)
	return &d, nil
}

func (s *PostgresStore) AppendLog(ctx context.Context, entry model.DocumentLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	var details []byte
	if len(entry.Details) > 0 {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal log details")
		}
		details = b
	}
	return s.write(ctx, "append_log", func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO document_logs (id, document_id, action, status, details, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			entry.ID, entry.DocumentID, entry.Action, entry.Status, details, entry.CreatedAt,
		)
		return eris.Wrap(err, "postgres: insert document log")
	})
}

func (s *PostgresStore) ListLogs(ctx context.Context, documentID string) ([]model.DocumentLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, action, status, details, created_at FROM document_logs
		 WHERE document_id = $1 ORDER BY created_at ASC`,
		documentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list logs")
	}
	defer rows.Close()

	var out []model.DocumentLog
	for rows.Next() {
		var l model.DocumentLog
		var details []byte
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.Action, &l.Status, &details, &l.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan log")
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &l.Details); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal log details")
			}
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list logs iterate")
}
