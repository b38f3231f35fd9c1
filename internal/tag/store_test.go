package tag

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// fixturePosts is the art/news corpus plus a category whose posts are all
// paid out.
func fixturePosts() []Post {
	return []Post{
		{ID: 1, Category: "art", Depth: 0, Payout: 6},
		{ID: 2, Category: "art", Depth: 1, Payout: 4},
		{ID: 3, Category: "news", Depth: 0, Payout: 20},
		{ID: 4, Category: "news", Depth: 0, Payout: 25},
		{ID: 5, Category: "news", Depth: 2, Payout: 5},
		{ID: 6, Category: "archive", Depth: 0, Payout: 900, PaidOut: true},
		{ID: 7, Category: "archive", Depth: 1, Payout: 100, PaidOut: true},
	}
}

func TestInMemoryStore_TopCategories(t *testing.T) {
	store := NewInMemoryStore()
	store.Add(fixturePosts()...)

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{name: "all", limit: 50, want: []string{"news", "art"}},
		{name: "limited", limit: 1, want: []string{"news"}},
		{name: "no limit", limit: 0, want: []string{"news", "art"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.TopCategories(context.Background(), tt.limit)
			if err != nil {
				t.Fatalf("TopCategories() returned error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("TopCategories() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInMemoryStore_Aggregate(t *testing.T) {
	store := NewInMemoryStore()
	store.Add(fixturePosts()...)
	store.Add(
		Post{ID: 8, Category: "music", Depth: 0, Payout: 10},
		Post{ID: 9, Category: "food", Depth: 0, Payout: 1.5},
	)

	news := Aggregate{Category: "news", TotalPosts: 3, TopPosts: 2, TotalPayout: 50}
	art := Aggregate{Category: "art", TotalPosts: 2, TopPosts: 1, TotalPayout: 10}
	music := Aggregate{Category: "music", TotalPosts: 1, TopPosts: 1, TotalPayout: 10}
	food := Aggregate{Category: "food", TotalPosts: 1, TopPosts: 1, TotalPayout: 1.5}

	tests := []struct {
		name  string
		query AggregateQuery
		want  []Aggregate
	}{
		{
			name:  "full ranking keeps first-seen order among ties",
			query: AggregateQuery{},
			want:  []Aggregate{news, art, music, food},
		},
		{
			name:  "limit",
			query: AggregateQuery{Limit: 2},
			want:  []Aggregate{news, art},
		},
		{
			name:  "seek includes the seek tag and its ties",
			query: AggregateQuery{SeekTag: "music"},
			want:  []Aggregate{art, music, food},
		},
		{
			name:  "seek with limit",
			query: AggregateQuery{SeekTag: "art", Limit: 1},
			want:  []Aggregate{art},
		},
		{
			name:  "seek on the last tag",
			query: AggregateQuery{SeekTag: "food"},
			want:  []Aggregate{food},
		},
		{
			name:  "unknown seek tag",
			query: AggregateQuery{SeekTag: "missing"},
			want:  []Aggregate{},
		},
		{
			name:  "fully paid seek tag",
			query: AggregateQuery{SeekTag: "archive"},
			want:  []Aggregate{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Aggregate(context.Background(), tt.query)
			if err != nil {
				t.Fatalf("Aggregate() returned error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Aggregate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestInMemoryStore_SetPaidOut(t *testing.T) {
	store := NewInMemoryStore()
	store.Add(fixturePosts()...)

	if !store.SetPaidOut(2, true) {
		t.Fatal("SetPaidOut() reported a known post as missing")
	}
	if store.SetPaidOut(999, true) {
		t.Error("SetPaidOut() reported an unknown post as found")
	}

	got, err := store.Aggregate(context.Background(), AggregateQuery{SeekTag: "art"})
	if err != nil {
		t.Fatalf("Aggregate() returned error: %v", err)
	}
	want := []Aggregate{{Category: "art", TotalPosts: 1, TopPosts: 1, TotalPayout: 6}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Aggregate() = %+v, want %+v", got, want)
	}
}

func TestInMemoryStore_Empty(t *testing.T) {
	store := NewInMemoryStore()

	names, err := store.TopCategories(context.Background(), 50)
	if err != nil {
		t.Fatalf("TopCategories() returned error: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected no names, got %v", names)
	}

	rows, err := store.Aggregate(context.Background(), AggregateQuery{Limit: 10})
	if err != nil {
		t.Fatalf("Aggregate() returned error: %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Errorf("expected empty non-nil result, got %#v", rows)
	}
}

func TestInMemoryStore_CancelledContext(t *testing.T) {
	store := NewInMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.TopCategories(ctx, 50); !errors.Is(err, context.Canceled) {
		t.Errorf("TopCategories() error = %v, want context.Canceled", err)
	}
	if _, err := store.Aggregate(ctx, AggregateQuery{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Aggregate() error = %v, want context.Canceled", err)
	}
}
