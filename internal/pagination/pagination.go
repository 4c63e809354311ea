// Package pagination implements the time-cursor paging shared by conversation
// and message scans. A cursor is a timestamp interpreted as an exclusive upper
// bound; a missing cursor means "start from now".
package pagination

import (
	"context"
	"time"

	"messenger/internal/domain"
)

// ScanFunc issues the single bounded storage read for one page: up to limit
// items with timestamps strictly below before, ordered most-recent-first.
type ScanFunc[T any] func(ctx context.Context, before time.Time, limit int) ([]T, error)

// Scan fetches one page. The next cursor exposed on the page is the minimum
// timestamp among the returned items, so chaining pages walks the sequence
// without gaps or repeats. A short (or empty) page marks the end of the
// sequence and is a successful result.
func Scan[T any](ctx context.Context, before *time.Time, limit int, scan ScanFunc[T], at func(T) time.Time) (domain.Page[T], error) {
	bound := time.Now().UTC()
	if before != nil {
		bound = before.UTC()
	}

	items, err := scan(ctx, bound, limit)
	if err != nil {
		return domain.Page[T]{}, err
	}

	page := domain.Page[T]{Items: items, Limit: limit, Count: len(items)}
	if len(items) > 0 {
		// Items arrive descending, but compute the minimum explicitly so a
		// misbehaving accessor cannot make the cursor skip items.
		min := at(items[0])
		for _, item := range items[1:] {
			if ts := at(item); ts.Before(min) {
				min = ts
			}
		}
		page.NextBefore = &min
	}
	return page, nil
}
