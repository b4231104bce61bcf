package domain

import (
	"time"
)

// to iterate thru layers: service -> store
type ThreadCreationData struct {
	Uid   UserId      `validate:"gte=0"`
	Cid   CategoryId  `validate:"gte=0"`
	Title ThreadTitle `validate:"required"`
}

// NewThreadData creates a thread together with its opening post.
type NewThreadData struct {
	Uid     UserId      `validate:"gte=0"`
	Cid     CategoryId  `validate:"gte=0"`
	Title   ThreadTitle `validate:"required"`
	Content PostText
	Handle  string // display name for guests
}

type Thread struct {
	Id         ThreadId
	Uid        UserId
	Cid        CategoryId
	Title      ThreadTitle
	Slug       string
	MainPid    PostId
	TeaserPid  PostId // 0 until the first reply
	CreatedAt  time.Time
	LastPostAt time.Time
	PostCount  int
	ViewCount  int
	Locked     bool
	Deleted    bool
	Pinned     bool
}

// ThreadSummary is a thread enriched for list views.
type ThreadSummary struct {
	*Thread
	User      *UserProfile
	Teaser    *Teaser
	IsOwner   bool
	Unread    bool
	Unreplied bool
}

// UnreadThreads is one window of a user's unread list.
type UnreadThreads struct {
	Threads   []*ThreadSummary
	NextStart int
}

// ThreadPage is one rendered page (or scroll window) of a thread.
type ThreadPage struct {
	Thread      *Thread
	Posts       []*Post
	Range       PageRange
	Sort        PostSort
	Pagination  Pagination
	Redirect    bool
	RedirectTo  int // corrected post index when Redirect is set
	CurrentPage int
	PageCount   int
}
