package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Field names of the thread record.
const (
	FieldTid       = "tid"
	FieldUid       = "uid"
	FieldCid       = "cid"
	FieldTitle     = "title"
	FieldSlug      = "slug"
	FieldMainPid   = "mainPid"
	FieldTeaserPid = "teaserPid"
	FieldTimestamp = "timestamp"
	FieldPostCount = "postcount"
	FieldViewCount = "viewcount"
	FieldLocked    = "locked"
	FieldDeleted   = "deleted"
	FieldPinned    = "pinned"
)

// FieldLastPostTime names Thread.LastPostAt in partial reads. It is not
// stored on the record; the value comes from the recent-threads index.
const FieldLastPostTime = "lastposttime"

// Field names of the post record.
const (
	FieldPid     = "pid"
	FieldContent = "content"
	FieldToPid   = "toPid"
	FieldHandle  = "handle"
	FieldVotes   = "votes"
)

// ThreadFields lists every field of the thread record.
var ThreadFields = []string{
	FieldTid, FieldUid, FieldCid, FieldTitle, FieldSlug, FieldMainPid, FieldTeaserPid,
	FieldTimestamp, FieldPostCount, FieldViewCount,
	FieldLocked, FieldDeleted, FieldPinned,
}

// PostFields lists every field of the post record.
var PostFields = []string{
	FieldPid, FieldTid, FieldUid, FieldHandle, FieldContent, FieldTimestamp, FieldToPid, FieldVotes,
}

// Millis converts t to the integer millisecond scores used by the indices.
func Millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromMillis is the inverse of Millis.
func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

type fieldReader struct {
	fields map[string]string
	err    error
}

func (r *fieldReader) int64(name string) int64 {
	v, ok := r.fields[name]
	if !ok || v == "" || r.err != nil {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		// scores written by float upserts may carry a fraction
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil {
			r.err = fmt.Errorf("field %s: %w", name, err)
			return 0
		}
		n = int64(f)
	}
	return n
}

func (r *fieldReader) flag(name string) bool {
	return r.int64(name) == 1
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func intField(n int64) string {
	return strconv.FormatInt(n, 10)
}

// ThreadFromFields validates and decodes a thread record.
// It returns nil, nil for an absent record.
func ThreadFromFields(fields map[string]string) (*Thread, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	r := &fieldReader{fields: fields}
	t := &Thread{
		Id:        r.int64(FieldTid),
		Uid:       r.int64(FieldUid),
		Cid:       r.int64(FieldCid),
		Title:     fields[FieldTitle],
		Slug:      fields[FieldSlug],
		MainPid:   r.int64(FieldMainPid),
		TeaserPid: r.int64(FieldTeaserPid),
		CreatedAt: FromMillis(r.int64(FieldTimestamp)),
		PostCount: int(r.int64(FieldPostCount)),
		ViewCount: int(r.int64(FieldViewCount)),
		Locked:    r.flag(FieldLocked),
		Deleted:   r.flag(FieldDeleted),
		Pinned:    r.flag(FieldPinned),
	}
	if r.err != nil {
		return nil, fmt.Errorf("malformed thread record: %w", r.err)
	}
	return t, nil
}

// ThreadToFields encodes a full thread record.
func ThreadToFields(t *Thread) map[string]string {
	return map[string]string{
		FieldTid:       intField(t.Id),
		FieldUid:       intField(t.Uid),
		FieldCid:       intField(t.Cid),
		FieldTitle:     t.Title,
		FieldSlug:      t.Slug,
		FieldMainPid:   intField(t.MainPid),
		FieldTeaserPid: intField(t.TeaserPid),
		FieldTimestamp: intField(Millis(t.CreatedAt)),
		FieldPostCount: strconv.Itoa(t.PostCount),
		FieldViewCount: strconv.Itoa(t.ViewCount),
		FieldLocked:    boolField(t.Locked),
		FieldDeleted:   boolField(t.Deleted),
		FieldPinned:    boolField(t.Pinned),
	}
}

// PostFromFields validates and decodes a post record.
// It returns nil, nil for an absent record.
func PostFromFields(fields map[string]string) (*Post, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	r := &fieldReader{fields: fields}
	p := &Post{
		Id:        r.int64(FieldPid),
		ThreadId:  r.int64(FieldTid),
		Uid:       r.int64(FieldUid),
		Handle:    fields[FieldHandle],
		Content:   fields[FieldContent],
		CreatedAt: FromMillis(r.int64(FieldTimestamp)),
		ToPid:     r.int64(FieldToPid),
		Votes:     int(r.int64(FieldVotes)),
	}
	if r.err != nil {
		return nil, fmt.Errorf("malformed post record: %w", r.err)
	}
	return p, nil
}

// PostToFields encodes a full post record.
func PostToFields(p *Post) map[string]string {
	return map[string]string{
		FieldPid:       intField(p.Id),
		FieldTid:       intField(p.ThreadId),
		FieldUid:       intField(p.Uid),
		FieldHandle:    p.Handle,
		FieldContent:   p.Content,
		FieldTimestamp: intField(Millis(p.CreatedAt)),
		FieldToPid:     intField(p.ToPid),
		FieldVotes:     strconv.Itoa(p.Votes),
	}
}

// ProfileFromFields decodes a user profile; absent users yield nil.
func ProfileFromFields(fields map[string]string) *UserProfile {
	if len(fields) == 0 {
		return nil
	}
	r := &fieldReader{fields: fields}
	return &UserProfile{
		Uid:      r.int64(FieldUid),
		Username: fields["username"],
		Userslug: fields["userslug"],
		Picture:  fields["picture"],
	}
}
