package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchResult pairs a document with its outcome.
type BatchResult struct {
	Document Document `json:"document"`
	Outcome  *Outcome `json:"outcome,omitempty"`
	Err      error    `json:"-"`
}

// ProcessBatch processes documents independently with at most concurrency in
// flight. A failing document never cancels the others. Results keep input order.
func (c *Coordinator) ProcessBatch(ctx context.Context, docs []Document, concurrency int) []BatchResult {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]BatchResult, len(docs))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, doc := range docs {
		g.Go(func() error {
			out, err := c.Process(ctx, doc)
			results[i] = BatchResult{Document: doc, Outcome: out, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	zap.L().Info("pipeline: batch complete",
		zap.Int("documents", len(docs)),
		zap.Int("failed", failed),
		zap.Int("concurrency", concurrency),
	)
	return results
}
