package service

import (
	"testing"

	"github.com/itchan-dev/itforum/backend/internal/store"
	"github.com/itchan-dev/itforum/shared/domain"
	internal_errors "github.com/itchan-dev/itforum/shared/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageCount(t *testing.T) {
	testCases := []struct {
		name      string
		postCount int
		pageSize  int
		expected  int
	}{
		{"empty thread", 0, 20, 1},
		{"opening post only", 1, 20, 1},
		{"one full page", 21, 20, 1},
		{"spills onto page two", 22, 20, 2},
		{"scenario thread", 25, 20, 2},
		{"page size below one", 5, 0, 4},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, PageCount(tc.postCount, tc.pageSize))
		})
	}

	t.Run("independent of sort order", func(t *testing.T) {
		for n := 0; n < 60; n++ {
			for _, size := range []int{1, 3, 20} {
				fwd, err := ComputeRange(domain.RangeRequest{PostCount: n, PageSize: size, Paginate: true})
				require.NoError(t, err)
				rev, err := ComputeRange(domain.RangeRequest{PostCount: n, PageSize: size, Paginate: true, Reversed: true})
				require.NoError(t, err)
				assert.Equal(t, fwd.PageCount, rev.PageCount)
				assert.Equal(t, max(1, (n-1+size-1)/size), fwd.PageCount)
			}
		}
	})
}

func TestComputeRange(t *testing.T) {
	t.Run("index 21 of 25 lands on page two and drops the opening post", func(t *testing.T) {
		r, err := ComputeRange(domain.RangeRequest{PostCount: 25, Index: 21, HasIndex: true, PageSize: 20, Paginate: true})
		require.NoError(t, err)
		assert.Equal(t, domain.PageRange{Page: 2, PageCount: 2, Start: 20, End: 39, DropFirst: true}, r)
	})

	t.Run("reversed index 1 resolves to the newest post", func(t *testing.T) {
		r, err := ComputeRange(domain.RangeRequest{PostCount: 25, Index: 1, HasIndex: true, PageSize: 20, Paginate: true, Reversed: true})
		require.NoError(t, err)
		assert.Equal(t, 1, r.Page)
		assert.Equal(t, 0, r.Start)
		assert.False(t, r.DropFirst)
	})

	t.Run("index past the end redirects to the last post", func(t *testing.T) {
		r, err := ComputeRange(domain.RangeRequest{PostCount: 25, Index: 999, HasIndex: true, PageSize: 20, Paginate: true})
		require.NoError(t, err)
		assert.True(t, r.Redirect)
		assert.Equal(t, 25, r.RedirectIndex)
		assert.Zero(t, r.End)
	})

	t.Run("index below one redirects to the first post", func(t *testing.T) {
		r, err := ComputeRange(domain.RangeRequest{PostCount: 25, Index: 0, HasIndex: true, PageSize: 20, Paginate: true})
		require.NoError(t, err)
		assert.True(t, r.Redirect)
		assert.Equal(t, 1, r.RedirectIndex)
	})

	t.Run("no index means the first page", func(t *testing.T) {
		r, err := ComputeRange(domain.RangeRequest{PostCount: 25, PageSize: 20, Paginate: true})
		require.NoError(t, err)
		assert.Equal(t, domain.PageRange{Page: 1, PageCount: 2, Start: 0, End: 19}, r)
	})

	t.Run("reversed deep index pages from the end", func(t *testing.T) {
		// offset = 25 - 3 = 22 -> page 2
		r, err := ComputeRange(domain.RangeRequest{PostCount: 25, Index: 3, HasIndex: true, PageSize: 20, Paginate: true, Reversed: true})
		require.NoError(t, err)
		assert.Equal(t, 2, r.Page)
		assert.Equal(t, 20, r.Start)
	})

	t.Run("explicit page wins over the index", func(t *testing.T) {
		r, err := ComputeRange(domain.RangeRequest{PostCount: 25, Index: 2, HasIndex: true, PageSize: 20, Paginate: true, Page: 2})
		require.NoError(t, err)
		assert.Equal(t, 2, r.Page)
		assert.Equal(t, 20, r.Start)
	})

	t.Run("explicit page out of range is not found", func(t *testing.T) {
		_, err := ComputeRange(domain.RangeRequest{PostCount: 25, PageSize: 20, Paginate: true, Page: 3})
		assert.ErrorIs(t, err, internal_errors.ErrNotFound)
		_, err = ComputeRange(domain.RangeRequest{PostCount: 25, PageSize: 20, Paginate: true, Page: -1})
		assert.ErrorIs(t, err, internal_errors.ErrNotFound)
	})

	t.Run("infinite scroll starts just before the index", func(t *testing.T) {
		r, err := ComputeRange(domain.RangeRequest{PostCount: 100, Index: 50, HasIndex: true, PageSize: 20})
		require.NoError(t, err)
		assert.Equal(t, domain.PageRange{Page: 1, PageCount: 5, Start: 29, End: 48}, r)
	})

	t.Run("infinite scroll without index starts at zero", func(t *testing.T) {
		r, err := ComputeRange(domain.RangeRequest{PostCount: 100, PageSize: 20})
		require.NoError(t, err)
		assert.Equal(t, 0, r.Start)
		assert.Equal(t, 19, r.End)
	})

	t.Run("infinite scroll reversed counts from the newest post", func(t *testing.T) {
		r, err := ComputeRange(domain.RangeRequest{PostCount: 100, Index: 50, HasIndex: true, PageSize: 20, Reversed: true})
		require.NoError(t, err)
		assert.Equal(t, 31, r.Start)

		r, err = ComputeRange(domain.RangeRequest{PostCount: 100, Index: 1, HasIndex: true, PageSize: 20, Reversed: true})
		require.NoError(t, err)
		assert.Equal(t, 0, r.Start, "index 1 is normalized to the newest post")
	})

	t.Run("page size below one is treated as one", func(t *testing.T) {
		r, err := ComputeRange(domain.RangeRequest{PostCount: 5, Index: 3, HasIndex: true, PageSize: 0, Paginate: true})
		require.NoError(t, err)
		assert.Equal(t, 3, r.Page)
		assert.Equal(t, 2, r.Start)
		assert.Equal(t, 2, r.End)
	})
}

func TestResolveSort(t *testing.T) {
	assert.Equal(t, SortOrder{Sort: domain.SortOldestToNewest, Key: store.ThreadPostsKey(7)}, ResolveSort(7, "", ""))
	assert.Equal(t, SortOrder{Sort: domain.SortNewestToOldest, Key: store.ThreadPostsKey(7), Reversed: true}, ResolveSort(7, "", domain.SortNewestToOldest))
	assert.Equal(t, SortOrder{Sort: domain.SortMostVotes, Key: store.ThreadVotesKey(7), Reversed: true}, ResolveSort(7, domain.SortMostVotes, domain.SortNewestToOldest))
	assert.Equal(t, domain.SortOldestToNewest, ResolveSort(7, "bogus", "").Sort)
}

func TestPagination(t *testing.T) {
	p := Pagination(2, 3)
	assert.Equal(t, 1, p.Prev)
	assert.Equal(t, 3, p.Next)
	require.Len(t, p.Pages, 3)
	assert.Equal(t, domain.PageLink{Page: 1, Rel: "prev"}, p.Pages[0])
	assert.Equal(t, domain.PageLink{Page: 2, Current: true}, p.Pages[1])
	assert.Equal(t, domain.PageLink{Page: 3, Rel: "next"}, p.Pages[2])

	single := Pagination(1, 1)
	assert.Zero(t, single.Prev)
	assert.Zero(t, single.Next)
	assert.Len(t, single.Pages, 1)
}
