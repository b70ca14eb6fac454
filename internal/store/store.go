// Package store persists the pipeline's audit trail: AI attempts, flagged
// inconsistencies, extraction metrics and document lifecycle state.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/config"
	"github.com/sells-group/reconcile-cli/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = eris.New("store: not found")

// RunFilter narrows ListAIRuns.
type RunFilter struct {
	DocumentID string    `json:"document_id,omitempty"`
	Provider   string    `json:"provider,omitempty"`
	Since      time.Time `json:"since,omitempty"`
	Limit      int       `json:"limit,omitempty"`
}

// RunRecorder is the append-only AI attempt log.
type RunRecorder interface {
	AppendAIRun(ctx context.Context, rec model.AIRunRecord) error
	ListAIRuns(ctx context.Context, filter RunFilter) ([]model.AIRunRecord, error)
}

// InconsistencyStore holds the current flagged set per document.
type InconsistencyStore interface {
	ReplaceInconsistencies(ctx context.Context, documentID string, set []model.Inconsistency) error
	ListInconsistencies(ctx context.Context, documentID string) ([]model.Inconsistency, error)
}

// MetricsSink stores per-document extraction metrics.
type MetricsSink interface {
	RecordExtraction(ctx context.Context, m model.ExtractionMetrics) error
	ListExtractionMetrics(ctx context.Context, since time.Time) ([]model.ExtractionMetrics, error)
}

// DocumentStore owns document lifecycle state and its audit log.
type DocumentStore interface {
	UpdateDocument(ctx context.Context, id string, u model.DocumentUpdate) error
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	AppendLog(ctx context.Context, entry model.DocumentLog) error
	ListLogs(ctx context.Context, documentID string) ([]model.DocumentLog, error)
}

// Store is the full persistence surface.
type Store interface {
	RunRecorder
	InconsistencyStore
	MetricsSink
	DocumentStore

	Migrate(ctx context.Context) error
	Close() error
}

// defaultWriteAttempts bounds retries of a single write.
const defaultWriteAttempts = 3

const defaultListLimit = 500

// Open builds the store selected by cfg.Driver and migrates it. writeAttempts
// bounds transient-error retries per write; zero keeps the default.
func Open(ctx context.Context, cfg config.StoreConfig, writeAttempts int) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		var st *SQLiteStore
		if st, err = NewSQLite(cfg.DatabaseURL); err == nil {
			st.attempts = writeAttempts
			s = st
		}
	case "postgres":
		var st *PostgresStore
		if st, err = NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns}); err == nil {
			st.attempts = writeAttempts
			s = st
		}
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
