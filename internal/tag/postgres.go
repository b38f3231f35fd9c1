package tag

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/onnwee/trendtags/internal/tracing"
)

// postsTable is the denormalized post cache the ranking reads from.
const postsTable = "hive_posts_cache"

const topCategoriesSQL = `
	SELECT category
	  FROM hive_posts_cache
	 WHERE is_paidout = false
	 GROUP BY category
	 ORDER BY SUM(payout) DESC
	 LIMIT $1`

const aggregateBaseSQL = `
	SELECT category,
	       COUNT(*) AS total_posts,
	       SUM(CASE WHEN depth = 0 THEN 1 ELSE 0 END) AS top_posts,
	       SUM(payout) AS total_payouts
	  FROM hive_posts_cache
	 WHERE is_paidout = false
	 GROUP BY category`

// seekHavingSQL takes the placeholder index of the seek tag.
const seekHavingSQL = `
	HAVING SUM(payout) <= (
	       SELECT SUM(payout)
	         FROM hive_posts_cache
	        WHERE is_paidout = false
	          AND category = $%d)`

// PostgresStore implements Store on top of PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// TopCategories implements Store.
func (s *PostgresStore) TopCategories(ctx context.Context, limit int) (names []string, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, postsTable, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := s.db.QueryContext(ctx, topCategoriesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top categories: %w", err)
	}
	defer rows.Close()

	names = make([]string, 0, limit)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return names, nil
}

// Aggregate implements Store.
func (s *PostgresStore) Aggregate(ctx context.Context, q AggregateQuery) (out []Aggregate, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, postsTable, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query, args := buildAggregateSQL(q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tag aggregates: %w", err)
	}
	defer rows.Close()

	out = []Aggregate{}
	for rows.Next() {
		var a Aggregate
		if err := rows.Scan(&a.Category, &a.TotalPosts, &a.TopPosts, &a.TotalPayout); err != nil {
			return nil, fmt.Errorf("failed to scan tag aggregate: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tag aggregates: %w", err)
	}
	return out, nil
}

// buildAggregateSQL composes the base aggregation with the optional seek
// predicate and the limit. Every value is bound as a positional parameter.
func buildAggregateSQL(q AggregateQuery) (string, []any) {
	var b strings.Builder
	var args []any

	b.WriteString(aggregateBaseSQL)

	if q.SeekTag != "" {
		args = append(args, q.SeekTag)
		fmt.Fprintf(&b, seekHavingSQL, len(args))
	}

	b.WriteString("\n\t ORDER BY SUM(payout) DESC")

	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, "\n\t LIMIT $%d", len(args))
	}

	return b.String(), args
}
