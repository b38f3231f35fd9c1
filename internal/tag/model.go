// Package tag ranks categories ("tags") by the pending payout of their
// unpaid posts and exposes the ranking as cached, validated operations.
//
// The Engine runs grouped aggregations against a Store and shapes the rows
// into Summary values. The Service wraps the Engine with input validation
// and the shared result cache.
package tag

import (
	"errors"
	"strconv"
)

// Errors returned by the tag operations. Both wrap the underlying cause,
// so errors.Is works for the sentinel and for the cause.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrStoreUnavailable = errors.New("post store unavailable")
)

const (
	// TopNamesLimit is the number of names returned by TopTrendingTagNames.
	TopNamesLimit = 50

	// MaxTrendingLimit is the largest page size accepted by TrendingTags.
	MaxTrendingLimit = 250

	// DefaultTrendingLimit is used when the caller does not supply a limit.
	DefaultTrendingLimit = 250

	// PayoutUnit is appended to every formatted payout.
	PayoutUnit = "SBD"
)

// Post is a single record of the post corpus as the ranking sees it.
type Post struct {
	ID       int64
	Category string
	Depth    int     // 0 for top-level posts, >0 for comments
	Payout   float64 // pending payout, non-negative
	PaidOut  bool
}

// Aggregate is one grouped row: the stats of a single category over its
// unpaid posts.
type Aggregate struct {
	Category    string
	TotalPosts  int64
	TopPosts    int64
	TotalPayout float64
}

// AggregateQuery describes a ranked aggregation. Stores compile it into
// their own query language; values are never spliced into query text.
type AggregateQuery struct {
	// Limit caps the number of returned groups. Zero means no limit.
	Limit int

	// SeekTag, when set, keeps only categories whose summed payout is
	// less than or equal to the summed payout of SeekTag. The seek tag
	// itself is therefore part of the result.
	SeekTag string
}

// Summary is the public shape of a ranked tag.
type Summary struct {
	Name         string `json:"name"`
	Comments     int64  `json:"comments"`
	TopPosts     int64  `json:"top_posts"`
	TotalPayouts string `json:"total_payouts"`
}

// FormatPayout renders an amount with exactly three decimals and the
// payout unit, e.g. "123.456 SBD".
func FormatPayout(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 3, 64) + " " + PayoutUnit
}

// summarize converts an aggregate row into its public form.
func summarize(a Aggregate) Summary {
	return Summary{
		Name:         a.Category,
		Comments:     a.TotalPosts - a.TopPosts,
		TopPosts:     a.TopPosts,
		TotalPayouts: FormatPayout(a.TotalPayout),
	}
}
