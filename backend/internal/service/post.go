package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/itchan-dev/itforum/backend/internal/store"
	"github.com/itchan-dev/itforum/shared/config"
	"github.com/itchan-dev/itforum/shared/domain"
	internal_errors "github.com/itchan-dev/itforum/shared/errors"
	"github.com/itchan-dev/itforum/shared/logger"
	"golang.org/x/sync/errgroup"
)

// PostWriter runs the thread and reply creation pipelines.
type PostWriter struct {
	store      store.IndexStore
	threads    *ThreadRegistry
	teasers    *Teasers
	readstate  *ReadCursorManager
	dispatcher Dispatcher
	cfg        config.Threads
	now        func() time.Time
}

func NewPostWriter(s store.IndexStore, threads *ThreadRegistry, teasers *Teasers, readstate *ReadCursorManager, dispatcher Dispatcher, cfg config.Threads) *PostWriter {
	return &PostWriter{store: s, threads: threads, teasers: teasers, readstate: readstate, dispatcher: dispatcher, cfg: cfg, now: time.Now}
}

func (w *PostWriter) checkContent(text domain.PostText) error {
	n := utf8.RuneCountInString(strings.TrimSpace(text))
	if n < w.cfg.MinPostLength {
		return internal_errors.InvalidIdentifier(fmt.Sprintf("Content is too short (min %d)", w.cfg.MinPostLength))
	}
	if n > w.cfg.MaxPostLength {
		return internal_errors.InvalidIdentifier(fmt.Sprintf("Content is too long (max %d)", w.cfg.MaxPostLength))
	}
	return nil
}

// Post creates a thread together with its opening post.
func (w *PostWriter) Post(ctx context.Context, data domain.NewThreadData) (*domain.Thread, *domain.Post, error) {
	if err := w.checkContent(data.Content); err != nil {
		return nil, nil, err
	}
	tid, err := w.threads.Create(ctx, domain.ThreadCreationData{Uid: data.Uid, Cid: data.Cid, Title: data.Title})
	if err != nil {
		return nil, nil, err
	}
	post, err := w.reply(ctx, domain.ReplyData{Tid: tid, Uid: data.Uid, Content: data.Content, Handle: data.Handle}, true)
	if err != nil {
		return nil, nil, err
	}
	thread, err := w.threads.GetFields(ctx, tid)
	if err != nil {
		return nil, nil, err
	}
	return thread, post, nil
}

// Reply appends a post to an existing, unlocked thread.
func (w *PostWriter) Reply(ctx context.Context, data domain.ReplyData) (*domain.Post, error) {
	return w.reply(ctx, data, false)
}

func (w *PostWriter) reply(ctx context.Context, data domain.ReplyData, main bool) (*domain.Post, error) {
	if data.Tid < 1 {
		return nil, internal_errors.InvalidIdentifier("Invalid thread id")
	}
	var exists, locked bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		exists, err = w.threads.Exists(gctx, data.Tid)
		return err
	})
	g.Go(func() (err error) {
		locked, err = w.threads.IsLocked(gctx, data.Tid)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if !exists {
		return nil, internal_errors.NotFound("Thread not found")
	}
	if locked {
		return nil, internal_errors.LockedResource("Thread is locked")
	}
	if err := w.checkContent(data.Content); err != nil {
		return nil, err
	}

	pid, err := w.store.IncrObjectField(ctx, store.GlobalKey, store.NextPidField)
	if err != nil {
		return nil, err
	}
	now := w.now()
	post := &domain.Post{
		Id:        pid,
		ThreadId:  data.Tid,
		Uid:       data.Uid,
		Handle:    data.Handle,
		Content:   data.Content,
		CreatedAt: now,
		ToPid:     data.ToPid,
	}
	if err := w.store.SetObject(ctx, store.PostKey(pid), domain.PostToFields(post)); err != nil {
		return nil, err
	}

	// the opening post lives on the thread record, not in the indices
	if main {
		if err := w.threads.SetField(ctx, data.Tid, domain.FieldMainPid, store.Member(pid)); err != nil {
			return nil, err
		}
	} else {
		member := store.Member(pid)
		if err := w.store.SortedSetAdd(ctx, store.ThreadPostsKey(data.Tid), float64(domain.Millis(now)), member); err != nil {
			return nil, err
		}
		if err := w.store.SortedSetAdd(ctx, store.ThreadVotesKey(data.Tid), 0, member); err != nil {
			return nil, err
		}
	}
	count, err := w.threads.IncreasePostCount(ctx, data.Tid)
	if err != nil {
		return nil, err
	}
	if err := w.threads.UpdateTimestamp(ctx, data.Tid, now); err != nil {
		return nil, err
	}
	post.Index = max(0, count-1)
	if main {
		post.Index = 0
	}

	w.afterReply(data.Tid, data.Uid)
	logger.Log.Info("created post", "pid", pid, "tid", data.Tid, "uid", data.Uid)
	return post, nil
}

// afterReply queues the side effects of a new post. They share the thread's
// routing key and therefore run in this order.
func (w *PostWriter) afterReply(tid domain.ThreadId, uid domain.UserId) {
	key := "thread:" + strconv.FormatInt(tid, 10)
	w.dispatcher.Dispatch(key, "updateTeaser", func(ctx context.Context) error {
		return w.teasers.UpdateTeaser(ctx, tid)
	})
	w.dispatcher.Dispatch(key, "markAsUnreadForAll", func(ctx context.Context) error {
		return w.readstate.MarkAsUnreadForAll(ctx, tid)
	})
	if uid == domain.GuestUid {
		return
	}
	w.dispatcher.Dispatch(key, "markAuthorRead", func(ctx context.Context) error {
		if err := w.readstate.MarkAsRead(ctx, []domain.ThreadId{tid}, uid); err != nil {
			return err
		}
		return w.readstate.unread.PushUnreadCount(ctx, uid)
	})
}

// Vote records the user's direction on a post and returns the post's new
// vote total. Replies are re-ranked in the thread's vote index.
func (w *PostWriter) Vote(ctx context.Context, pid domain.PostId, uid domain.UserId, direction domain.VoteDirection) (int, error) {
	if uid == domain.GuestUid {
		return 0, internal_errors.InvalidIdentifier("Guests cannot vote")
	}
	if direction < domain.VoteDown || direction > domain.VoteUp {
		return 0, internal_errors.InvalidIdentifier("Invalid vote direction")
	}
	fields, err := w.store.GetObjectFields(ctx, store.PostKey(pid), []string{domain.FieldPid, domain.FieldTid, domain.FieldVotes})
	if err != nil {
		return 0, err
	}
	post, err := domain.PostFromFields(fields)
	if err != nil {
		return 0, fmt.Errorf("post %d: %w", pid, err)
	}
	if post == nil {
		return 0, internal_errors.NotFound("Post not found")
	}

	voters := store.PostVotersKey(pid)
	prev, err := w.store.SortedSetScores(ctx, voters, []string{store.Member(uid)})
	if err != nil {
		return 0, err
	}
	previous := domain.VoteNone
	if len(prev) > 0 && prev[0].Valid {
		previous = domain.VoteDirection(prev[0].Value)
	}
	delta := int64(direction - previous)
	if delta == 0 {
		return post.Votes, nil
	}
	if err := w.store.SortedSetAdd(ctx, voters, float64(direction), store.Member(uid)); err != nil {
		return 0, err
	}

	mainPid, err := w.threads.GetField(ctx, post.ThreadId, domain.FieldMainPid)
	if err != nil {
		return 0, err
	}
	if mainPid != store.Member(pid) {
		if _, err := w.store.SortedSetIncrBy(ctx, store.ThreadVotesKey(post.ThreadId), float64(delta), store.Member(pid)); err != nil {
			return 0, err
		}
	}
	votes, err := w.store.IncrObjectFieldBy(ctx, store.PostKey(pid), domain.FieldVotes, delta)
	if err != nil {
		return 0, err
	}
	return int(votes), nil
}
