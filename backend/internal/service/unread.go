package service

import (
	"context"
	"time"

	"github.com/itchan-dev/itforum/backend/internal/store"
	"github.com/itchan-dev/itforum/shared/config"
	"github.com/itchan-dev/itforum/shared/domain"
	"github.com/itchan-dev/itforum/shared/logger"
	"golang.org/x/sync/errgroup"
)

// UnreadCountEvent is pushed to a user whenever their unread total may have changed.
const UnreadCountEvent = "event:unread.updateCount"

// UnreadTracker derives unread threads from the recency index and the user's
// read cursor. Nothing about unread state is stored on its own.
type UnreadTracker struct {
	store    store.IndexStore
	users    Users
	threads  *ThreadRegistry
	notifier Notifier
	cfg      config.Threads
	now      func() time.Time
}

func NewUnreadTracker(s store.IndexStore, users Users, threads *ThreadRegistry, notifier Notifier, cfg config.Threads) *UnreadTracker {
	return &UnreadTracker{store: s, users: users, threads: threads, notifier: notifier, cfg: cfg, now: time.Now}
}

// UnreadTids lists unread thread ids active within the horizon, most recent
// first, windowed to the inclusive [start, stop]. stop == -1 means to the end.
func (u *UnreadTracker) UnreadTids(ctx context.Context, uid domain.UserId, start, stop int) ([]domain.ThreadId, error) {
	if uid == domain.GuestUid {
		return []domain.ThreadId{}, nil
	}
	since := float64(domain.Millis(u.now().Add(-u.cfg.UnreadHorizon)))

	var (
		ignored []domain.CategoryId
		recent  []store.ScoredMember
		cursors []store.ScoredMember
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ignored, err = u.users.IgnoredCategories(gctx, uid)
		return err
	})
	g.Go(func() (err error) {
		recent, err = u.store.GetSortedSetRevRangeByScoreWithScores(gctx, store.RecentThreadsKey, 0, -1, store.PosInf, since)
		return err
	})
	g.Go(func() (err error) {
		cursors, err = u.store.GetSortedSetRevRangeByScoreWithScores(gctx, store.ReadCursorKey(uid), 0, -1, store.PosInf, since)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return []domain.ThreadId{}, nil
	}

	read := make(map[string]float64, len(cursors))
	for _, c := range cursors {
		read[c.Member] = c.Score
	}
	tids := make([]domain.ThreadId, 0, min(len(recent), u.cfg.UnreadCap))
	for _, r := range recent {
		if len(tids) == u.cfg.UnreadCap {
			break
		}
		if cursor, ok := read[r.Member]; ok && cursor >= r.Score {
			continue
		}
		tid, err := store.ParseMember(r.Member)
		if err != nil {
			logger.Log.Warn("skipping malformed recency member", "member", r.Member)
			continue
		}
		tids = append(tids, tid)
	}

	tids, err := u.filterCategories(ctx, tids, ignored)
	if err != nil {
		return nil, err
	}
	lo, hi, ok := store.Window(len(tids), start, stop)
	if !ok {
		return []domain.ThreadId{}, nil
	}
	return tids[lo:hi], nil
}

// filterCategories drops vanished and deleted threads and those in ignored
// categories. Threads without a category are kept.
func (u *UnreadTracker) filterCategories(ctx context.Context, tids []domain.ThreadId, ignored []domain.CategoryId) ([]domain.ThreadId, error) {
	if len(tids) == 0 {
		return tids, nil
	}
	skip := make(map[domain.CategoryId]struct{}, len(ignored))
	for _, cid := range ignored {
		skip[cid] = struct{}{}
	}
	threads, err := u.threads.GetFieldsBatch(ctx, tids, []string{domain.FieldTid, domain.FieldCid, domain.FieldDeleted})
	if err != nil {
		return nil, err
	}
	kept := tids[:0]
	for i, thread := range threads {
		if thread == nil || thread.Deleted {
			continue
		}
		if _, ok := skip[thread.Cid]; ok && thread.Cid != 0 {
			continue
		}
		kept = append(kept, tids[i])
	}
	return kept, nil
}

// TotalUnread is the badge count; it is bounded by the configured window.
func (u *UnreadTracker) TotalUnread(ctx context.Context, uid domain.UserId) (int, error) {
	tids, err := u.UnreadTids(ctx, uid, 0, u.cfg.TotalUnreadWindow)
	if err != nil {
		return 0, err
	}
	return len(tids), nil
}

// PushUnreadCount sends the current total to the user's sessions.
func (u *UnreadTracker) PushUnreadCount(ctx context.Context, uid domain.UserId) error {
	if uid == domain.GuestUid {
		return nil
	}
	count, err := u.TotalUnread(ctx, uid)
	if err != nil {
		return err
	}
	return u.notifier.Notify(ctx, uid, UnreadCountEvent, count)
}
