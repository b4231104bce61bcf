package store

import "strconv"

// Keys of the persisted layout.
const (
	GlobalKey        = "global"
	ThreadsKey       = "threads:tid"
	RecentThreadsKey = "threads:recent"

	NextTidField     = "nextTid"
	NextPidField     = "nextPid"
	ThreadCountField = "threadCount"
	PostCountField   = "postCount"
)

func id(n int64) string {
	return strconv.FormatInt(n, 10)
}

func ThreadKey(tid int64) string {
	return "thread:" + id(tid)
}

func PostKey(pid int64) string {
	return "post:" + id(pid)
}

// ThreadPostsKey is the per-thread sequence index (reply pid -> created ms).
func ThreadPostsKey(tid int64) string {
	return "tid:" + id(tid) + ":posts"
}

// ThreadVotesKey is the per-thread rank index (reply pid -> votes).
func ThreadVotesKey(tid int64) string {
	return "tid:" + id(tid) + ":posts:votes"
}

// ReadCursorKey is the per-user read cursor (tid -> last read ms).
func ReadCursorKey(uid int64) string {
	return "uid:" + id(uid) + ":tids_read"
}

func UserThreadsKey(uid int64) string {
	return "uid:" + id(uid) + ":tids"
}

func CategoryThreadsKey(cid int64) string {
	return "cid:" + id(cid) + ":tids"
}

func CategoryReadKey(cid int64) string {
	return "cid:" + id(cid) + ":read_by_uid"
}

func IgnoredCategoriesKey(uid int64) string {
	return "uid:" + id(uid) + ":ignored:cids"
}

func PostVotersKey(pid int64) string {
	return "pid:" + id(pid) + ":voters"
}

func UserKey(uid int64) string {
	return "user:" + id(uid)
}

func UserSettingsKey(uid int64) string {
	return "user:" + id(uid) + ":settings"
}

// Member encodes an id as a set member.
func Member(n int64) string {
	return id(n)
}

// Members encodes ids as set members.
func Members(ids []int64) []string {
	out := make([]string, len(ids))
	for i, n := range ids {
		out[i] = id(n)
	}
	return out
}

// ParseMember decodes a set member produced by Member.
func ParseMember(m string) (int64, error) {
	return strconv.ParseInt(m, 10, 64)
}
