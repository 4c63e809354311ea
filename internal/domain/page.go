package domain

import "time"

// Page is one window of a descending time-ordered scan. An empty page is a
// normal, successful result. The end of the sequence is signaled by a page
// holding fewer than Limit items, never by an error.
type Page[T any] struct {
	Items []T
	Limit int
	Count int

	// NextBefore is the exclusive upper bound for the following page: the
	// minimum timestamp among Items. Nil when the page is empty.
	NextBefore *time.Time
}
