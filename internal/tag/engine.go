package tag

import (
	"context"
	"errors"
	"fmt"
)

// Engine runs the ranking aggregations against a Store.
// It trusts its inputs; validation happens in Service.
type Engine struct {
	store Store
}

// NewEngine creates an Engine reading from store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// TopNames returns the TopNamesLimit categories with the highest pending
// payout, highest first.
func (e *Engine) TopNames(ctx context.Context) ([]string, error) {
	names, err := e.store.TopCategories(ctx, TopNamesLimit)
	if err != nil {
		return nil, storeError(ctx, err)
	}
	return names, nil
}

// Ranked returns up to limit tag summaries ordered by pending payout.
// A non-empty startTag continues the ranking from that tag, and the tag
// itself is the first row of the result.
func (e *Engine) Ranked(ctx context.Context, startTag string, limit int) ([]Summary, error) {
	rows, err := e.store.Aggregate(ctx, AggregateQuery{
		Limit:   limit,
		SeekTag: startTag,
	})
	if err != nil {
		return nil, storeError(ctx, err)
	}

	out := make([]Summary, 0, len(rows))
	for _, row := range rows {
		out = append(out, summarize(row))
	}
	return out, nil
}

// storeError wraps a store failure in ErrStoreUnavailable. Failures caused
// by the caller's own cancellation or deadline are reported as ctx errors.
func storeError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
