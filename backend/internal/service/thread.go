package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"github.com/itchan-dev/itforum/backend/internal/store"
	"github.com/itchan-dev/itforum/shared/config"
	"github.com/itchan-dev/itforum/shared/domain"
	internal_errors "github.com/itchan-dev/itforum/shared/errors"
	"github.com/itchan-dev/itforum/shared/logger"
)

// ThreadRegistry owns thread records and the thread-level indices.
type ThreadRegistry struct {
	store    store.IndexStore
	validate *validator.Validate
	cfg      config.Threads
	now      func() time.Time
}

func NewThreadRegistry(s store.IndexStore, cfg config.Threads) *ThreadRegistry {
	return &ThreadRegistry{
		store:    s,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		cfg:      cfg,
		now:      time.Now,
	}
}

func (r *ThreadRegistry) title(title string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(title))
	if n < r.cfg.MinTitleLength {
		return internal_errors.InvalidIdentifier(fmt.Sprintf("Title is too short (min %d)", r.cfg.MinTitleLength))
	}
	if n > r.cfg.MaxTitleLength {
		return internal_errors.InvalidIdentifier(fmt.Sprintf("Title is too long (max %d)", r.cfg.MaxTitleLength))
	}
	return nil
}

// Create registers a thread without posts and returns its id.
// Nothing is written when the input is rejected.
func (r *ThreadRegistry) Create(ctx context.Context, data domain.ThreadCreationData) (domain.ThreadId, error) {
	if err := r.validate.Struct(data); err != nil {
		return 0, internal_errors.InvalidIdentifier("Invalid thread: " + err.Error())
	}
	if err := r.title(data.Title); err != nil {
		return 0, err
	}
	titleSlug := slug.Make(data.Title)
	if titleSlug == "" {
		return 0, internal_errors.InvalidIdentifier("Title has no usable characters")
	}

	tid, err := r.store.IncrObjectField(ctx, store.GlobalKey, store.NextTidField)
	if err != nil {
		return 0, err
	}
	now := r.now()
	thread := &domain.Thread{
		Id:        tid,
		Uid:       data.Uid,
		Cid:       data.Cid,
		Title:     strings.TrimSpace(data.Title),
		Slug:      strconv.FormatInt(tid, 10) + "/" + titleSlug,
		CreatedAt: now,
	}
	if err := r.store.SetObject(ctx, store.ThreadKey(tid), domain.ThreadToFields(thread)); err != nil {
		return 0, err
	}
	keys := []string{store.ThreadsKey, store.CategoryThreadsKey(data.Cid), store.UserThreadsKey(data.Uid)}
	if err := r.store.SortedSetsAdd(ctx, keys, float64(domain.Millis(now)), store.Member(tid)); err != nil {
		return 0, err
	}
	if _, err := r.store.IncrObjectField(ctx, store.GlobalKey, store.ThreadCountField); err != nil {
		return 0, err
	}
	logger.Log.Info("created thread", "tid", tid, "cid", data.Cid, "uid", data.Uid)
	return tid, nil
}

func (r *ThreadRegistry) Exists(ctx context.Context, tid domain.ThreadId) (bool, error) {
	return r.store.IsSortedSetMember(ctx, store.ThreadsKey, store.Member(tid))
}

// GetFields loads one thread, an absent thread is ErrNotFound.
func (r *ThreadRegistry) GetFields(ctx context.Context, tid domain.ThreadId) (*domain.Thread, error) {
	fields, err := r.store.GetObjectFields(ctx, store.ThreadKey(tid), nil)
	if err != nil {
		return nil, err
	}
	thread, err := domain.ThreadFromFields(fields)
	if err != nil {
		return nil, fmt.Errorf("thread %d: %w", tid, err)
	}
	if thread == nil {
		return nil, internal_errors.NotFound("Thread not found")
	}
	if err := r.fillLastPostAt(ctx, []*domain.Thread{thread}); err != nil {
		return nil, err
	}
	return thread, nil
}

// fillLastPostAt sets LastPostAt from the RecencyIndex, the only place the
// time of the latest post is kept. Threads without a score keep their zero.
func (r *ThreadRegistry) fillLastPostAt(ctx context.Context, threads []*domain.Thread) error {
	members := make([]string, 0, len(threads))
	for _, thread := range threads {
		if thread != nil {
			members = append(members, store.Member(thread.Id))
		}
	}
	if len(members) == 0 {
		return nil
	}
	scores, err := r.store.SortedSetScores(ctx, store.RecentThreadsKey, members)
	if err != nil {
		return err
	}
	i := 0
	for _, thread := range threads {
		if thread == nil {
			continue
		}
		if scores[i].Valid {
			thread.LastPostAt = domain.FromMillis(int64(scores[i].Value))
		}
		i++
	}
	return nil
}

func wantsField(fields []string, field string) bool {
	if fields == nil {
		return true
	}
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}

// GetFieldsBatch loads threads in input order with nil for absent ones.
// fields limits the decoded fields, nil loads the whole record.
func (r *ThreadRegistry) GetFieldsBatch(ctx context.Context, tids []domain.ThreadId, fields []string) ([]*domain.Thread, error) {
	if len(tids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(tids))
	for i, tid := range tids {
		keys[i] = store.ThreadKey(tid)
	}
	records, err := r.store.GetObjectsFields(ctx, keys, fields)
	if err != nil {
		return nil, err
	}
	threads := make([]*domain.Thread, len(records))
	for i, rec := range records {
		thread, err := domain.ThreadFromFields(rec)
		if err != nil {
			logger.Log.Warn("skipping malformed thread record", "tid", tids[i], "error", err)
			continue
		}
		if thread != nil {
			// partial reads may not include the id field
			thread.Id = tids[i]
		}
		threads[i] = thread
	}
	if wantsField(fields, domain.FieldLastPostTime) {
		if err := r.fillLastPostAt(ctx, threads); err != nil {
			return nil, err
		}
	}
	return threads, nil
}

func (r *ThreadRegistry) GetField(ctx context.Context, tid domain.ThreadId, field string) (string, error) {
	return r.store.GetObjectField(ctx, store.ThreadKey(tid), field)
}

func (r *ThreadRegistry) SetField(ctx context.Context, tid domain.ThreadId, field, value string) error {
	return r.store.SetObjectField(ctx, store.ThreadKey(tid), field, value)
}

func (r *ThreadRegistry) IsLocked(ctx context.Context, tid domain.ThreadId) (bool, error) {
	v, err := r.GetField(ctx, tid, domain.FieldLocked)
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

func (r *ThreadRegistry) setFlag(ctx context.Context, tid domain.ThreadId, field string, on bool) error {
	ok, err := r.Exists(ctx, tid)
	if err != nil {
		return err
	}
	if !ok {
		return internal_errors.NotFound("Thread not found")
	}
	value := "0"
	if on {
		value = "1"
	}
	if err := r.SetField(ctx, tid, field, value); err != nil {
		return err
	}
	logger.Log.Info("thread flag changed", "tid", tid, "flag", field, "value", on)
	return nil
}

func (r *ThreadRegistry) SetLocked(ctx context.Context, tid domain.ThreadId, locked bool) error {
	return r.setFlag(ctx, tid, domain.FieldLocked, locked)
}

func (r *ThreadRegistry) SetPinned(ctx context.Context, tid domain.ThreadId, pinned bool) error {
	return r.setFlag(ctx, tid, domain.FieldPinned, pinned)
}

// SetDeleted soft-deletes a thread. Its indices stay in place.
func (r *ThreadRegistry) SetDeleted(ctx context.Context, tid domain.ThreadId, deleted bool) error {
	return r.setFlag(ctx, tid, domain.FieldDeleted, deleted)
}

func (r *ThreadRegistry) IncreaseViewCount(ctx context.Context, tid domain.ThreadId) error {
	_, err := r.store.IncrObjectField(ctx, store.ThreadKey(tid), domain.FieldViewCount)
	return err
}

// IncreasePostCount bumps the per-thread and global post counters and returns
// the new per-thread count.
func (r *ThreadRegistry) IncreasePostCount(ctx context.Context, tid domain.ThreadId) (int, error) {
	n, err := r.store.IncrObjectField(ctx, store.ThreadKey(tid), domain.FieldPostCount)
	if err != nil {
		return 0, err
	}
	if _, err := r.store.IncrObjectField(ctx, store.GlobalKey, store.PostCountField); err != nil {
		return 0, err
	}
	return int(n), nil
}

// UpdateTimestamp moves the thread's recency forward to at. An older at is a
// no-op, so concurrent replies cannot move recency back. LastPostAt is read
// from the same score, the record holds no copy of it.
func (r *ThreadRegistry) UpdateTimestamp(ctx context.Context, tid domain.ThreadId, at time.Time) error {
	entry := store.ScoredMember{Member: store.Member(tid), Score: float64(domain.Millis(at))}
	return r.store.SortedSetRaise(ctx, store.RecentThreadsKey, []store.ScoredMember{entry})
}
