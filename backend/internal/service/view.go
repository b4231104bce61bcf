package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/itchan-dev/itforum/backend/internal/content"
	"github.com/itchan-dev/itforum/backend/internal/store"
	"github.com/itchan-dev/itforum/shared/domain"
	internal_errors "github.com/itchan-dev/itforum/shared/errors"
	"github.com/itchan-dev/itforum/shared/logger"
	"golang.org/x/sync/errgroup"
)

// ThreadView assembles thread pages and thread lists.
type ThreadView struct {
	store      store.IndexStore
	threads    *ThreadRegistry
	teasers    *Teasers
	readstate  *ReadCursorManager
	unread     *UnreadTracker
	users      Users
	renderer   *content.Renderer
	dispatcher Dispatcher
}

func NewThreadView(s store.IndexStore, threads *ThreadRegistry, teasers *Teasers, readstate *ReadCursorManager, unread *UnreadTracker, users Users, renderer *content.Renderer, dispatcher Dispatcher) *ThreadView {
	return &ThreadView{
		store:      s,
		threads:    threads,
		teasers:    teasers,
		readstate:  readstate,
		unread:     unread,
		users:      users,
		renderer:   renderer,
		dispatcher: dispatcher,
	}
}

// ThreadPage renders one page of a thread. An out-of-range post index returns
// a page with Redirect set and no posts.
func (v *ThreadView) ThreadPage(ctx context.Context, req domain.ThreadPageRequest) (*domain.ThreadPage, error) {
	if req.Tid < 1 {
		return nil, internal_errors.InvalidIdentifier("Invalid thread id")
	}
	var (
		settings domain.UserSettings
		thread   *domain.Thread
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		settings, err = v.users.Settings(gctx, req.Uid)
		return err
	})
	g.Go(func() (err error) {
		thread, err = v.threads.GetFields(gctx, req.Tid)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if thread.Deleted {
		return nil, internal_errors.NotFound("Thread not found")
	}

	order := ResolveSort(req.Tid, req.Sort, settings.PostSort)
	rng, err := ComputeRange(domain.RangeRequest{
		PostCount: thread.PostCount,
		Index:     req.Index,
		HasIndex:  req.HasIndex,
		PageSize:  settings.PostsPerPage,
		Reversed:  order.Reversed,
		Paginate:  settings.UsePagination,
		Page:      req.Page,
	})
	if err != nil {
		return nil, err
	}
	page := &domain.ThreadPage{
		Thread:      thread,
		Range:       rng,
		Sort:        order.Sort,
		CurrentPage: rng.Page,
		PageCount:   rng.PageCount,
	}
	if rng.Redirect {
		page.Redirect = true
		page.RedirectTo = rng.RedirectIndex
		return page, nil
	}

	var (
		mainPost *domain.Post
		replies  []*domain.Post
	)
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		if thread.MainPid == 0 {
			return nil
		}
		posts, err := v.postsByPids(gctx, []domain.PostId{thread.MainPid})
		if err != nil {
			return err
		}
		mainPost = posts[0]
		return nil
	})
	g.Go(func() (err error) {
		replies, err = v.replies(gctx, order, rng.Start, rng.End)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	posts := make([]*domain.Post, 0, len(replies)+1)
	if mainPost != nil {
		mainPost.Index = 0
		posts = append(posts, mainPost)
	}
	for i, post := range replies {
		if post == nil {
			continue
		}
		if order.Reversed {
			post.Index = thread.PostCount - 1 - (rng.Start + i)
		} else {
			post.Index = rng.Start + i + 1
		}
		posts = append(posts, post)
	}
	if rng.DropFirst && mainPost != nil {
		posts = posts[1:]
	}
	if err := v.decorate(ctx, posts); err != nil {
		return nil, err
	}
	page.Posts = posts
	if settings.UsePagination {
		page.Pagination = Pagination(rng.Page, rng.PageCount)
	}

	tid := req.Tid
	v.dispatcher.Dispatch("thread:"+strconv.FormatInt(tid, 10), "increaseViewCount", func(ctx context.Context) error {
		return v.threads.IncreaseViewCount(ctx, tid)
	})
	v.readstate.MarkAsReadAsync([]domain.ThreadId{tid}, req.Uid)
	return page, nil
}

func (v *ThreadView) replies(ctx context.Context, order SortOrder, start, end int) ([]*domain.Post, error) {
	var (
		members []string
		err     error
	)
	if order.Reversed {
		members, err = v.store.GetSortedSetRevRange(ctx, order.Key, start, end)
	} else {
		members, err = v.store.GetSortedSetRange(ctx, order.Key, start, end)
	}
	if err != nil || len(members) == 0 {
		return nil, err
	}
	pids := make([]domain.PostId, 0, len(members))
	for _, m := range members {
		pid, err := store.ParseMember(m)
		if err != nil {
			return nil, fmt.Errorf("post index %s: malformed member %q", order.Key, m)
		}
		pids = append(pids, pid)
	}
	return v.postsByPids(ctx, pids)
}

// postsByPids loads posts in input order with nil for absent ones.
func (v *ThreadView) postsByPids(ctx context.Context, pids []domain.PostId) ([]*domain.Post, error) {
	keys := make([]string, len(pids))
	for i, pid := range pids {
		keys[i] = store.PostKey(pid)
	}
	records, err := v.store.GetObjectsFields(ctx, keys, nil)
	if err != nil {
		return nil, err
	}
	posts := make([]*domain.Post, len(records))
	for i, rec := range records {
		post, err := domain.PostFromFields(rec)
		if err != nil {
			logger.Log.Warn("skipping malformed post record", "pid", pids[i], "error", err)
			continue
		}
		posts[i] = post
	}
	return posts, nil
}

// decorate attaches author profiles and rendered content.
func (v *ThreadView) decorate(ctx context.Context, posts []*domain.Post) error {
	var uids []domain.UserId
	seen := make(map[domain.UserId]struct{})
	for _, post := range posts {
		if post.Uid == domain.GuestUid {
			continue
		}
		if _, ok := seen[post.Uid]; !ok {
			seen[post.Uid] = struct{}{}
			uids = append(uids, post.Uid)
		}
	}
	users := make(map[domain.UserId]*domain.UserProfile, len(uids))
	if len(uids) > 0 {
		profiles, err := v.users.Profiles(ctx, uids)
		if err != nil {
			return err
		}
		for i, uid := range uids {
			if i < len(profiles) {
				users[uid] = profiles[i]
			}
		}
	}
	for _, post := range posts {
		post.User = users[post.Uid]
		if post.User == nil {
			post.User = domain.GuestProfile(post.Handle)
		}
		post.Html, _ = v.renderer.Render(post.Content)
	}
	return nil
}

// ThreadsByTids builds list entries for the given threads in input order.
// Threads that do not exist are left out.
func (v *ThreadView) ThreadsByTids(ctx context.Context, tids []domain.ThreadId, uid domain.UserId) ([]*domain.ThreadSummary, error) {
	if len(tids) == 0 {
		return []*domain.ThreadSummary{}, nil
	}
	threads, err := v.threads.GetFieldsBatch(ctx, tids, nil)
	if err != nil {
		return nil, err
	}

	var owners []domain.UserId
	seen := make(map[domain.UserId]struct{})
	for _, thread := range threads {
		if thread == nil || thread.Uid == domain.GuestUid {
			continue
		}
		if _, ok := seen[thread.Uid]; !ok {
			seen[thread.Uid] = struct{}{}
			owners = append(owners, thread.Uid)
		}
	}

	var (
		teasers  []*domain.Teaser
		profiles []*domain.UserProfile
		hasRead  []bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		teasers, err = v.teasers.ResolveTeasers(gctx, threads)
		return err
	})
	g.Go(func() (err error) {
		if len(owners) == 0 {
			return nil
		}
		profiles, err = v.users.Profiles(gctx, owners)
		return err
	})
	g.Go(func() (err error) {
		hasRead, err = v.readstate.HasReadThreads(gctx, tids, uid)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	users := make(map[domain.UserId]*domain.UserProfile, len(owners))
	for i, owner := range owners {
		if i < len(profiles) {
			users[owner] = profiles[i]
		}
	}
	summaries := make([]*domain.ThreadSummary, 0, len(threads))
	for i, thread := range threads {
		if thread == nil {
			continue
		}
		user := users[thread.Uid]
		if user == nil {
			user = domain.GuestProfile("")
		}
		summaries = append(summaries, &domain.ThreadSummary{
			Thread:    thread,
			User:      user,
			Teaser:    teasers[i],
			IsOwner:   uid != domain.GuestUid && thread.Uid == uid,
			Unread:    !hasRead[i],
			Unreplied: thread.PostCount <= 1,
		})
	}
	return summaries, nil
}

// UnreadThreads lists one window of the user's unread threads.
func (v *ThreadView) UnreadThreads(ctx context.Context, uid domain.UserId, start, stop int) (*domain.UnreadThreads, error) {
	result := &domain.UnreadThreads{Threads: []*domain.ThreadSummary{}}
	tids, err := v.unread.UnreadTids(ctx, uid, start, stop)
	if err != nil {
		return nil, err
	}
	if len(tids) == 0 {
		return result, nil
	}
	summaries, err := v.ThreadsByTids(ctx, tids, uid)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return result, nil
	}
	result.Threads = summaries
	result.NextStart = stop + 1
	if stop < 0 {
		// the window ran to the end
		result.NextStart = start + len(tids)
	}
	return result, nil
}
