package domain

// RangeRequest is the input of the paginator.
type RangeRequest struct {
	PostCount int
	// Index is the requested post index; only meaningful when HasIndex is set.
	Index    int
	HasIndex bool
	PageSize int
	Reversed bool
	Paginate bool
	// Page is the explicitly requested page, 0 when absent.
	Page int
}

// PageRange is the slice of the post index a view has to fetch.
// Start and End are inclusive offsets into the reply index.
type PageRange struct {
	Page      int
	PageCount int
	Start     int
	End       int
	// DropFirst tells the caller to remove the opening post from the fetched slice.
	DropFirst bool

	Redirect      bool
	RedirectIndex int
}

type PageLink struct {
	Page    int
	Rel     string // "prev", "next" or ""
	Current bool
}

type Pagination struct {
	CurrentPage int
	PageCount   int
	Pages       []PageLink
	Prev        int // 0 when on the first page
	Next        int // 0 when on the last page
}

// ThreadPageRequest is one thread view request.
type ThreadPageRequest struct {
	Tid ThreadId
	Uid UserId
	// Index is the requested post index; only meaningful when HasIndex is set.
	Index    int
	HasIndex bool
	// Sort overrides the user's post sort setting when not empty.
	Sort PostSort
	// Page is the explicitly requested page, 0 when absent.
	Page int
}
