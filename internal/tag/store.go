package tag

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Store is the read side of the post corpus needed for tag ranking.
type Store interface {
	// TopCategories returns up to limit category names over unpaid posts,
	// ordered by summed payout descending.
	TopCategories(ctx context.Context, limit int) ([]string, error)

	// Aggregate runs the grouped aggregation described by q over unpaid
	// posts, ordered by summed payout descending.
	Aggregate(ctx context.Context, q AggregateQuery) ([]Aggregate, error)
}

// InMemoryStore is an in-memory implementation of Store.
// Thread-safe via RWMutex. Categories with equal payout keep the order in
// which the category was first added.
type InMemoryStore struct {
	mu    sync.RWMutex
	posts []Post
}

// NewInMemoryStore creates a new in-memory post store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Add appends posts to the corpus.
func (s *InMemoryStore) Add(posts ...Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, posts...)
}

// SetPaidOut flips the paid-out flag of every post with the given ID.
// Returns false if no such post exists.
func (s *InMemoryStore) SetPaidOut(id int64, paidOut bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for i := range s.posts {
		if s.posts[i].ID == id {
			s.posts[i].PaidOut = paidOut
			found = true
		}
	}
	return found
}

// TopCategories implements Store.
func (s *InMemoryStore) TopCategories(ctx context.Context, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	groups := s.rankedGroups()
	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}

	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.category
	}
	return names, nil
}

// Aggregate implements Store.
func (s *InMemoryStore) Aggregate(ctx context.Context, q AggregateQuery) ([]Aggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	groups := s.rankedGroups()

	if q.SeekTag != "" {
		var seek *group
		for i := range groups {
			if groups[i].category == q.SeekTag {
				seek = &groups[i]
				break
			}
		}
		// SUM over no rows is NULL and nothing compares <= NULL.
		if seek == nil {
			return []Aggregate{}, nil
		}

		ceiling := seek.payoutMillis
		filtered := groups[:0:0]
		for _, g := range groups {
			if g.payoutMillis <= ceiling {
				filtered = append(filtered, g)
			}
		}
		groups = filtered
	}

	if q.Limit > 0 && len(groups) > q.Limit {
		groups = groups[:q.Limit]
	}

	out := make([]Aggregate, len(groups))
	for i, g := range groups {
		out[i] = Aggregate{
			Category:    g.category,
			TotalPosts:  g.total,
			TopPosts:    g.top,
			TotalPayout: float64(g.payoutMillis) / 1000,
		}
	}
	return out, nil
}

// group accumulates one category. Payouts are summed in thousandths so
// that equal sums compare equal.
type group struct {
	category     string
	total        int64
	top          int64
	payoutMillis int64
}

// rankedGroups groups unpaid posts by category and sorts them by payout
// descending, keeping first-seen order among ties.
func (s *InMemoryStore) rankedGroups() []group {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index := make(map[string]int)
	var groups []group
	for _, p := range s.posts {
		if p.PaidOut {
			continue
		}
		i, ok := index[p.Category]
		if !ok {
			i = len(groups)
			index[p.Category] = i
			groups = append(groups, group{category: p.Category})
		}
		g := &groups[i]
		g.total++
		if p.Depth == 0 {
			g.top++
		}
		g.payoutMillis += int64(math.Round(p.Payout * 1000))
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].payoutMillis > groups[j].payoutMillis
	})
	return groups
}
