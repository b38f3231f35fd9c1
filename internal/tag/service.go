package tag

import (
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/trendtags/internal/cache"
	"github.com/onnwee/trendtags/internal/tracing"
	"github.com/onnwee/trendtags/internal/validate"
)

// Cache operation names.
const (
	opTopTrendingTagNames = "top_trending_tag_names"
	opTrendingTags        = "trending_tags"
)

// Service exposes the ranking with input validation and result caching.
type Service struct {
	engine *Engine
	cache  *cache.Cache
}

// NewService creates a Service. A nil cache disables caching.
func NewService(engine *Engine, c *cache.Cache) *Service {
	return &Service{
		engine: engine,
		cache:  c,
	}
}

// TopTrendingTagNames returns up to 50 category names ordered by pending
// payout. Results are cached for the cache TTL; the returned slice is the
// caller's own copy.
func (s *Service) TopTrendingTagNames(ctx context.Context) (names []string, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "tag."+opTopTrendingTagNames)
	defer func() { endSpan(err) }()

	names, err = cache.GetOrCompute(ctx, s.cache, cache.NewKey(opTopTrendingTagNames), s.engine.TopNames)
	if err != nil {
		return nil, err
	}
	tracing.SetAttributes(ctx, attribute.Int("tag.result_count", len(names)))
	return slices.Clone(names), nil
}

// TrendingTags returns a page of ranked tag summaries.
//
// limit must be positive and is clamped to MaxTrendingLimit. startTag may
// be empty (start from the top) or a valid tag name, in which case the page
// starts with startTag itself. Results are cached per (startTag, limit)
// after validation, so equivalent requests share an entry. The returned
// slice is the caller's own copy.
func (s *Service) TrendingTags(ctx context.Context, startTag string, limit int) (tags []Summary, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "tag."+opTrendingTags,
		attribute.String("tag.start_tag", startTag),
		attribute.Int("tag.limit", limit),
	)
	defer func() { endSpan(err) }()

	limit, err = validate.Limit(limit, MaxTrendingLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	startTag, err = validate.Tag(startTag, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	key := cache.NewKey(opTrendingTags, startTag, limit)
	tags, err = cache.GetOrCompute(ctx, s.cache, key, func(ctx context.Context) ([]Summary, error) {
		return s.engine.Ranked(ctx, startTag, limit)
	})
	if err != nil {
		return nil, err
	}
	tracing.SetAttributes(ctx, attribute.Int("tag.result_count", len(tags)))
	return slices.Clone(tags), nil
}
