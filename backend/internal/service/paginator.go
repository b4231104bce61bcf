package service

import (
	"github.com/itchan-dev/itforum/backend/internal/store"
	"github.com/itchan-dev/itforum/shared/domain"
	internal_errors "github.com/itchan-dev/itforum/shared/errors"
)

// PageCount is the number of pages of a thread. The opening post is shown on
// every page and does not count.
func PageCount(postCount, pageSize int) int {
	if pageSize < 1 {
		pageSize = 1
	}
	replies := postCount - 1
	if replies <= 0 {
		return 1
	}
	return (replies + pageSize - 1) / pageSize
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// orDefault mirrors "index || fallback": a zero index means "not given".
func orDefault(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

// ComputeRange maps a view request onto an inclusive slice of the reply index.
// An out-of-range index is not an error, it yields a redirect.
func ComputeRange(req domain.RangeRequest) (domain.PageRange, error) {
	size := req.PageSize
	if size < 1 {
		size = 1
	}
	n := req.PostCount
	pageCount := PageCount(n, size)

	if req.HasIndex && (req.Index < 1 || req.Index > n) {
		return domain.PageRange{
			PageCount:     pageCount,
			Redirect:      true,
			RedirectIndex: clamp(req.Index, 1, max(n, 1)),
		}, nil
	}

	index := 0
	if req.HasIndex {
		index = req.Index
	}
	// index 1 is the opening post, which reversed order shows first anyway
	if req.Reversed && index == 1 {
		index = 0
	}

	page := 1
	start := 0
	switch {
	case !req.Paginate:
		if req.Reversed {
			start = max(0, n-orDefault(index, n)-(size-1))
		} else {
			start = max(0, orDefault(index, 1)-(size+1))
		}
	case req.Page != 0:
		if req.Page < 1 || req.Page > pageCount {
			return domain.PageRange{}, internal_errors.NotFound("Page not found")
		}
		page = req.Page
		start = (page - 1) * size
	default:
		offset := max(0, index-1)
		if req.Reversed {
			offset = max(0, n-orDefault(index, n))
		}
		page = clamp(offset/size+1, 1, pageCount)
		start = (page - 1) * size
	}

	return domain.PageRange{
		Page:      page,
		PageCount: pageCount,
		Start:     start,
		End:       start + size - 1,
		DropFirst: page > 1,
	}, nil
}

// SortOrder names the index a thread view reads and its direction.
type SortOrder struct {
	Sort     domain.PostSort
	Key      string
	Reversed bool
}

// ResolveSort picks the index for a thread view. The query value wins over the
// user's setting; unknown values fall back to oldest first.
func ResolveSort(tid domain.ThreadId, query, userDefault domain.PostSort) SortOrder {
	sort := query
	if sort == "" {
		sort = userDefault
	}
	switch sort {
	case domain.SortNewestToOldest:
		return SortOrder{Sort: sort, Key: store.ThreadPostsKey(tid), Reversed: true}
	case domain.SortMostVotes:
		return SortOrder{Sort: sort, Key: store.ThreadVotesKey(tid), Reversed: true}
	default:
		return SortOrder{Sort: domain.SortOldestToNewest, Key: store.ThreadPostsKey(tid), Reversed: false}
	}
}

// Pagination builds the page links of a paginated view.
func Pagination(current, pageCount int) domain.Pagination {
	if pageCount < 1 {
		pageCount = 1
	}
	current = clamp(current, 1, pageCount)
	p := domain.Pagination{CurrentPage: current, PageCount: pageCount}
	if current > 1 {
		p.Prev = current - 1
	}
	if current < pageCount {
		p.Next = current + 1
	}
	for i := 1; i <= pageCount; i++ {
		link := domain.PageLink{Page: i, Current: i == current}
		switch i {
		case p.Prev:
			link.Rel = "prev"
		case p.Next:
			link.Rel = "next"
		}
		p.Pages = append(p.Pages, link)
	}
	return p
}
