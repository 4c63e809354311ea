package pagination

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type item struct {
	id int
	ts time.Time
}

// sliceScan mimics a bounded descending storage read over a fixed sequence.
func sliceScan(items []item) ScanFunc[item] {
	return func(_ context.Context, before time.Time, limit int) ([]item, error) {
		var out []item
		for _, it := range items {
			if it.ts.Before(before) {
				out = append(out, it)
			}
			if len(out) == limit {
				break
			}
		}
		return out, nil
	}
}

// descending builds n items one second apart, newest first.
func descending(n int) []item {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	items := make([]item, n)
	for i := 0; i < n; i++ {
		items[i] = item{id: n - i, ts: base.Add(time.Duration(n-i) * time.Second)}
	}
	return items
}

func at(it item) time.Time { return it.ts }

func Test_Scan_FullPage_SetsNextCursor(t *testing.T) {
	req := require.New(t)
	items := descending(10)

	page, err := Scan(context.Background(), nil, 4, sliceScan(items), at)
	req.NoError(err)
	req.Equal(4, page.Count)
	req.Equal(4, page.Limit)
	req.NotNil(page.NextBefore)
	req.Equal(items[3].ts, *page.NextBefore)
}

func Test_Scan_ChainCoversSequenceExactlyOnce(t *testing.T) {
	req := require.New(t)
	const n, l = 23, 5
	items := descending(n)
	scan := sliceScan(items)

	seen := map[int]bool{}
	var before *time.Time
	var pages int
	for {
		page, err := Scan(context.Background(), before, l, scan, at)
		req.NoError(err)
		if page.Count == 0 {
			break
		}
		pages++
		for _, it := range page.Items {
			req.False(seen[it.id], "item repeated across pages")
			seen[it.id] = true
		}
		if page.Count < l {
			break
		}
		before = page.NextBefore
	}

	req.Equal((n+l-1)/l, pages)
	req.Len(seen, n)
}

func Test_Scan_EmptyResult_IsSuccess(t *testing.T) {
	req := require.New(t)

	page, err := Scan(context.Background(), nil, 5, sliceScan(nil), at)
	req.NoError(err)
	req.Zero(page.Count)
	req.Nil(page.NextBefore)
}

func Test_Scan_CursorIsExclusive(t *testing.T) {
	req := require.New(t)
	items := descending(3)
	cursor := items[0].ts

	page, err := Scan(context.Background(), &cursor, 10, sliceScan(items), at)
	req.NoError(err)
	req.Equal(2, page.Count)
	for _, it := range page.Items {
		req.True(it.ts.Before(cursor))
	}
}

func Test_Scan_CursorIsMinimum_EvenWhenOutOfOrder(t *testing.T) {
	req := require.New(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	shuffled := []item{
		{id: 2, ts: base.Add(2 * time.Second)},
		{id: 1, ts: base.Add(1 * time.Second)},
		{id: 3, ts: base.Add(3 * time.Second)},
	}
	scan := func(context.Context, time.Time, int) ([]item, error) { return shuffled, nil }

	page, err := Scan(context.Background(), nil, 3, scan, at)
	req.NoError(err)
	req.NotNil(page.NextBefore)
	req.Equal(base.Add(time.Second), *page.NextBefore)
}

func Test_Scan_PropagatesScanError(t *testing.T) {
	req := require.New(t)
	boom := errors.New("boom")
	scan := func(context.Context, time.Time, int) ([]item, error) { return nil, boom }

	_, err := Scan(context.Background(), nil, 3, scan, at)
	req.ErrorIs(err, boom)
}
