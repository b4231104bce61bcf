// Package store defines the storage contract the read-state engine runs on:
// flat key/field/value records plus score-ordered sets.
package store

import (
	"context"
	"math"
)

// ScoredMember is one entry of an ordered set.
type ScoredMember struct {
	Member string
	Score  float64
}

// Score is a nullable score, Valid is false for members absent from the set.
type Score struct {
	Value float64
	Valid bool
}

var (
	PosInf = math.Inf(1)
	NegInf = math.Inf(-1)
)

// IndexStore is implemented by every storage backend.
//
// Ordered sets sort by score, ties by member length and then bytewise, so
// numeric ids order numerically. Ranges are inclusive with start >= 0 and
// stop >= start or stop == -1 (to the end). Absent records and sets read as
// empty, never as errors; backend failures are returned as transient errors.
type IndexStore interface {
	// GetObjectField returns "" when the field is absent.
	GetObjectField(ctx context.Context, key, field string) (string, error)
	// GetObjectFields returns the requested fields that exist; nil fields means all.
	GetObjectFields(ctx context.Context, key string, fields []string) (map[string]string, error)
	// GetObjectsFields is GetObjectFields for many keys in one round trip.
	// The result has one (possibly empty) map per key, in key order.
	GetObjectsFields(ctx context.Context, keys []string, fields []string) ([]map[string]string, error)
	SetObjectField(ctx context.Context, key, field, value string) error
	SetObject(ctx context.Context, key string, values map[string]string) error
	// IncrObjectField atomically increments an integer field and returns the new value.
	IncrObjectField(ctx context.Context, key, field string) (int64, error)
	IncrObjectFieldBy(ctx context.Context, key, field string, by int64) (int64, error)

	// SortedSetAdd upserts the score of member.
	SortedSetAdd(ctx context.Context, key string, score float64, member string) error
	// SortedSetsAdd upserts member with the same score into several sets.
	SortedSetsAdd(ctx context.Context, keys []string, score float64, member string) error
	// SortedSetRaise upserts each entry only when its score is greater than the
	// stored one, so a score written through it never decreases.
	SortedSetRaise(ctx context.Context, key string, entries []ScoredMember) error
	// SortedSetIncrBy atomically adds by to the score of member and returns the new score.
	SortedSetIncrBy(ctx context.Context, key string, by float64, member string) (float64, error)
	SortedSetScores(ctx context.Context, key string, members []string) ([]Score, error)
	IsSortedSetMember(ctx context.Context, key, member string) (bool, error)
	GetSortedSetRange(ctx context.Context, key string, start, stop int) ([]string, error)
	GetSortedSetRevRange(ctx context.Context, key string, start, stop int) ([]string, error)
	// GetSortedSetRevRangeByScoreWithScores lists members with min <= score <= max,
	// highest first, then applies the [start, stop] window.
	GetSortedSetRevRangeByScoreWithScores(ctx context.Context, key string, start, stop int, max, min float64) ([]ScoredMember, error)

	// Delete removes the record and the ordered set stored under key.
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Less reports whether a sorts before b inside one ordered set.
func Less(a, b ScoredMember) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return MemberLess(a.Member, b.Member)
}

// MemberLess is the tie-break order of members with equal scores.
func MemberLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

// Window clamps the inclusive [start, stop] window to n elements and returns
// the half-open bounds, ok is false when the window is empty.
func Window(n, start, stop int) (lo, hi int, ok bool) {
	if start < 0 {
		start = 0
	}
	if stop < 0 || stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop + 1, true
}
