package service

import (
	"context"
	"strconv"

	"github.com/itchan-dev/itforum/backend/internal/content"
	"github.com/itchan-dev/itforum/backend/internal/store"
	"github.com/itchan-dev/itforum/shared/domain"
	"github.com/itchan-dev/itforum/shared/logger"
)

var teaserPostFields = []string{domain.FieldPid, domain.FieldUid, domain.FieldTid, domain.FieldHandle, domain.FieldTimestamp, domain.FieldContent}

// Teasers resolves the last-reply summary shown next to a thread in lists.
type Teasers struct {
	store    store.IndexStore
	users    Users
	threads  *ThreadRegistry
	renderer *content.Renderer
	length   int
}

func NewTeasers(s store.IndexStore, users Users, threads *ThreadRegistry, renderer *content.Renderer, length int) *Teasers {
	return &Teasers{store: s, users: users, threads: threads, renderer: renderer, length: length}
}

// ResolveTeasers returns one teaser per thread, nil where a thread is nil or
// has no reply yet. Posts and authors are each read in one batch.
func (t *Teasers) ResolveTeasers(ctx context.Context, threads []*domain.Thread) ([]*domain.Teaser, error) {
	teasers := make([]*domain.Teaser, len(threads))
	var keys []string
	var positions []int
	for i, thread := range threads {
		if thread == nil || thread.TeaserPid == 0 {
			continue
		}
		keys = append(keys, store.PostKey(thread.TeaserPid))
		positions = append(positions, i)
	}
	if len(keys) == 0 {
		return teasers, nil
	}

	records, err := t.store.GetObjectsFields(ctx, keys, teaserPostFields)
	if err != nil {
		return nil, err
	}
	posts := make([]*domain.Post, len(records))
	var uids []domain.UserId
	seen := make(map[domain.UserId]struct{})
	for i, rec := range records {
		post, err := domain.PostFromFields(rec)
		if err != nil {
			logger.Log.Warn("skipping malformed teaser post", "key", keys[i], "error", err)
			continue
		}
		posts[i] = post
		if post == nil || post.Uid == domain.GuestUid {
			continue
		}
		if _, ok := seen[post.Uid]; !ok {
			seen[post.Uid] = struct{}{}
			uids = append(uids, post.Uid)
		}
	}

	users := make(map[domain.UserId]*domain.UserProfile, len(uids))
	if len(uids) > 0 {
		profiles, err := t.users.Profiles(ctx, uids)
		if err != nil {
			return nil, err
		}
		for i, uid := range uids {
			if i < len(profiles) {
				users[uid] = profiles[i]
			}
		}
	}

	for i, post := range posts {
		if post == nil {
			continue
		}
		thread := threads[positions[i]]
		user := users[post.Uid]
		if post.Uid == domain.GuestUid || user == nil {
			user = domain.GuestProfile(post.Handle)
		}
		teasers[positions[i]] = &domain.Teaser{
			Pid:       post.Id,
			Tid:       thread.Id,
			Uid:       post.Uid,
			CreatedAt: post.CreatedAt,
			Summary:   t.renderer.Summary(post.Content, t.length),
			User:      user,
			Index:     thread.PostCount,
		}
	}
	return teasers, nil
}

func (t *Teasers) TeasersByTids(ctx context.Context, tids []domain.ThreadId) ([]*domain.Teaser, error) {
	if len(tids) == 0 {
		return nil, nil
	}
	threads, err := t.threads.GetFieldsBatch(ctx, tids, []string{domain.FieldTid, domain.FieldPostCount, domain.FieldTeaserPid})
	if err != nil {
		return nil, err
	}
	return t.ResolveTeasers(ctx, threads)
}

// Teaser returns nil without error for a thread with no replies.
func (t *Teasers) Teaser(ctx context.Context, tid domain.ThreadId) (*domain.Teaser, error) {
	teasers, err := t.TeasersByTids(ctx, []domain.ThreadId{tid})
	if err != nil || len(teasers) == 0 {
		return nil, err
	}
	return teasers[0], nil
}

// UpdateTeaser points the thread at its newest reply, or at nothing.
func (t *Teasers) UpdateTeaser(ctx context.Context, tid domain.ThreadId) error {
	pids, err := t.store.GetSortedSetRevRange(ctx, store.ThreadPostsKey(tid), 0, 0)
	if err != nil {
		return err
	}
	value := "0"
	if len(pids) > 0 {
		if _, err := strconv.ParseInt(pids[0], 10, 64); err == nil {
			value = pids[0]
		}
	}
	return t.threads.SetField(ctx, tid, domain.FieldTeaserPid, value)
}
