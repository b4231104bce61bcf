package service

import (
	"context"
	"strconv"
	"time"

	"github.com/itchan-dev/itforum/backend/internal/store"
	"github.com/itchan-dev/itforum/shared/domain"
	"golang.org/x/sync/errgroup"
)

// ReadCursorManager records what each user has read.
type ReadCursorManager struct {
	store      store.IndexStore
	threads    *ThreadRegistry
	categories Categories
	unread     *UnreadTracker
	dispatcher Dispatcher
	now        func() time.Time
}

func NewReadCursorManager(s store.IndexStore, threads *ThreadRegistry, categories Categories, unread *UnreadTracker, dispatcher Dispatcher) *ReadCursorManager {
	return &ReadCursorManager{store: s, threads: threads, categories: categories, unread: unread, dispatcher: dispatcher, now: time.Now}
}

// scores reads recency and cursor scores for tids in parallel.
func (m *ReadCursorManager) scores(ctx context.Context, tids []domain.ThreadId, uid domain.UserId) (recency, cursor []store.Score, err error) {
	members := store.Members(tids)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		recency, err = m.store.SortedSetScores(gctx, store.RecentThreadsKey, members)
		return err
	})
	g.Go(func() (err error) {
		cursor, err = m.store.SortedSetScores(gctx, store.ReadCursorKey(uid), members)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return recency, cursor, nil
}

// MarkAsRead moves the user's cursor to now for every listed thread that has
// activity the user has not seen, then marks their categories read.
// Calling it again without new activity writes nothing.
func (m *ReadCursorManager) MarkAsRead(ctx context.Context, tids []domain.ThreadId, uid domain.UserId) error {
	if uid == domain.GuestUid {
		return nil
	}
	ids := make([]domain.ThreadId, 0, len(tids))
	for _, tid := range tids {
		if tid != 0 {
			ids = append(ids, tid)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	recency, cursor, err := m.scores(ctx, ids, uid)
	if err != nil {
		return err
	}
	stale := ids[:0]
	for i, tid := range ids {
		if !cursor[i].Valid || (recency[i].Valid && cursor[i].Value < recency[i].Value) {
			stale = append(stale, tid)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	now := float64(domain.Millis(m.now()))
	entries := make([]store.ScoredMember, len(stale))
	for i, tid := range stale {
		entries[i] = store.ScoredMember{Member: store.Member(tid), Score: now}
	}
	if err := m.store.SortedSetRaise(ctx, store.ReadCursorKey(uid), entries); err != nil {
		return err
	}

	threads, err := m.threads.GetFieldsBatch(ctx, stale, []string{domain.FieldTid, domain.FieldCid})
	if err != nil {
		return err
	}
	var cids []domain.CategoryId
	seen := make(map[domain.CategoryId]struct{})
	for _, thread := range threads {
		if thread == nil || thread.Cid == 0 {
			continue
		}
		if _, ok := seen[thread.Cid]; ok {
			continue
		}
		seen[thread.Cid] = struct{}{}
		cids = append(cids, thread.Cid)
	}
	if len(cids) == 0 {
		return nil
	}
	return m.categories.MarkAsRead(ctx, cids, uid)
}

// MarkAsReadAsync marks threads read off the request path and then pushes the
// new unread count. Errors end up in the dispatcher's log and metrics.
func (m *ReadCursorManager) MarkAsReadAsync(tids []domain.ThreadId, uid domain.UserId) {
	if uid == domain.GuestUid || len(tids) == 0 {
		return
	}
	ids := append([]domain.ThreadId(nil), tids...)
	m.dispatcher.Dispatch(strconv.FormatInt(uid, 10), "markAsRead", func(ctx context.Context) error {
		if err := m.MarkAsRead(ctx, ids, uid); err != nil {
			return err
		}
		return m.unread.PushUnreadCount(ctx, uid)
	})
}

// HasReadThreads reports per thread whether the user has seen its latest
// activity. Guests have read nothing.
func (m *ReadCursorManager) HasReadThreads(ctx context.Context, tids []domain.ThreadId, uid domain.UserId) ([]bool, error) {
	result := make([]bool, len(tids))
	if uid == domain.GuestUid || len(tids) == 0 {
		return result, nil
	}
	recency, cursor, err := m.scores(ctx, tids, uid)
	if err != nil {
		return nil, err
	}
	for i := range tids {
		result[i] = cursor[i].Valid && (!recency[i].Valid || cursor[i].Value >= recency[i].Value)
	}
	return result, nil
}

func (m *ReadCursorManager) HasReadThread(ctx context.Context, tid domain.ThreadId, uid domain.UserId) (bool, error) {
	read, err := m.HasReadThreads(ctx, []domain.ThreadId{tid}, uid)
	if err != nil {
		return false, err
	}
	return read[0], nil
}

// MarkAsUnreadForAll resets the category read state of the thread's category.
func (m *ReadCursorManager) MarkAsUnreadForAll(ctx context.Context, tid domain.ThreadId) error {
	cid, err := m.threads.GetField(ctx, tid, domain.FieldCid)
	if err != nil {
		return err
	}
	n, err := strconv.ParseInt(cid, 10, 64)
	if err != nil || n == 0 {
		return nil
	}
	return m.categories.MarkAsUnreadForAll(ctx, n)
}
