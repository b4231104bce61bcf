package domain

import "time"

// ReplyData is the input of a reply submission.
type ReplyData struct {
	Tid     ThreadId
	Uid     UserId
	Content PostText
	ToPid   PostId // optional reply-to reference
	Handle  string
}

type Post struct {
	Id        PostId
	ThreadId  ThreadId
	Uid       UserId // 0 = guest
	Handle    string
	Content   PostText
	CreatedAt time.Time
	ToPid     PostId
	Votes     int

	// Index is the position inside the thread (0 = opening post). Filled by reads.
	Index int
	// Html is the sanitized rendering of Content. Filled by page views.
	Html string
	User *UserProfile
}

// Teaser is the summary of a thread's most recent reply.
type Teaser struct {
	Pid       PostId
	Tid       ThreadId
	Uid       UserId
	CreatedAt time.Time
	Summary   string
	User      *UserProfile
	// Index points at the last post, so list views can link to it.
	Index int
}

// VoteDirection is the per-user vote on a post.
type VoteDirection int

const (
	VoteNone VoteDirection = 0
	VoteUp   VoteDirection = 1
	VoteDown VoteDirection = -1
)
