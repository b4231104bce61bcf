package domain

type (
	UserId     = int64
	ThreadId   = int64
	PostId     = int64
	CategoryId = int64

	ThreadTitle = string
	PostText    = string
)

// GuestUid identifies anonymous visitors. Read state is never tracked for it.
const GuestUid UserId = 0

// Post sort orders accepted from the query string and user settings.
type PostSort = string

const (
	SortOldestToNewest PostSort = "oldest_to_newest"
	SortNewestToOldest PostSort = "newest_to_oldest"
	SortMostVotes      PostSort = "most_votes"
)
