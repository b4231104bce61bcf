package service

import (
	"testing"

	"github.com/itchan-dev/itforum/backend/internal/store"
	"github.com/itchan-dev/itforum/shared/domain"
	internal_errors "github.com/itchan-dev/itforum/shared/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// threadWithPosts creates a thread holding n posts including the opening one
// and returns the reply ids oldest first.
func threadWithPosts(e *testEnv, n int) (domain.ThreadId, []domain.PostId) {
	e.t.Helper()
	tid, _ := e.newThread(1, 1)
	replies := make([]domain.PostId, 0, n-1)
	for i := 1; i < n; i++ {
		replies = append(replies, e.reply(tid, 1))
	}
	return tid, replies
}

func TestThreadPage(t *testing.T) {
	e := newTestEnv(t)
	e.addUser(1, "alice")
	tid, replies := threadWithPosts(e, 25)
	view := e.forum.View

	t.Run("index 21 of 25 opens page two without the opening post", func(t *testing.T) {
		page, err := view.ThreadPage(e.ctx, domain.ThreadPageRequest{Tid: tid, Uid: reader, Index: 21, HasIndex: true})
		require.NoError(t, err)
		assert.False(t, page.Redirect)
		assert.Equal(t, 2, page.CurrentPage)
		assert.Equal(t, 2, page.PageCount)
		assert.Equal(t, domain.SortOldestToNewest, page.Sort)

		require.Len(t, page.Posts, 4)
		for i, post := range page.Posts {
			assert.Equal(t, 21+i, post.Index)
			assert.Equal(t, replies[20+i], post.Id)
			assert.Equal(t, "alice", post.User.Username)
			assert.Contains(t, post.Html, "<p>")
		}
		assert.Equal(t, 1, page.Pagination.Prev)
		assert.Zero(t, page.Pagination.Next)
	})

	t.Run("first page starts with the opening post", func(t *testing.T) {
		page, err := view.ThreadPage(e.ctx, domain.ThreadPageRequest{Tid: tid, Uid: reader})
		require.NoError(t, err)
		require.Len(t, page.Posts, 21)
		assert.Equal(t, page.Thread.MainPid, page.Posts[0].Id)
		assert.Equal(t, 0, page.Posts[0].Index)
		assert.Equal(t, replies[0], page.Posts[1].Id)
		assert.Equal(t, 1, page.Posts[1].Index)
		assert.Equal(t, 2, page.Pagination.Next)
	})

	t.Run("newest first with index 1 shows the newest reply", func(t *testing.T) {
		page, err := view.ThreadPage(e.ctx, domain.ThreadPageRequest{Tid: tid, Uid: reader, Index: 1, HasIndex: true, Sort: domain.SortNewestToOldest})
		require.NoError(t, err)
		assert.Equal(t, 1, page.CurrentPage)
		require.Len(t, page.Posts, 21)
		assert.Equal(t, 0, page.Posts[0].Index)
		assert.Equal(t, replies[23], page.Posts[1].Id)
		assert.Equal(t, 24, page.Posts[1].Index)
		assert.Equal(t, 5, page.Posts[20].Index)
	})

	t.Run("index past the end redirects", func(t *testing.T) {
		page, err := view.ThreadPage(e.ctx, domain.ThreadPageRequest{Tid: tid, Uid: reader, Index: 999, HasIndex: true})
		require.NoError(t, err)
		assert.True(t, page.Redirect)
		assert.Equal(t, 25, page.RedirectTo)
		assert.Empty(t, page.Posts)
	})

	t.Run("page out of range", func(t *testing.T) {
		_, err := view.ThreadPage(e.ctx, domain.ThreadPageRequest{Tid: tid, Uid: reader, Page: 3})
		assert.ErrorIs(t, err, internal_errors.ErrNotFound)
	})

	t.Run("most votes ranks replies by score", func(t *testing.T) {
		_, err := e.forum.Posts.Vote(e.ctx, replies[4], reader, domain.VoteUp)
		require.NoError(t, err)

		page, err := view.ThreadPage(e.ctx, domain.ThreadPageRequest{Tid: tid, Uid: reader, Sort: domain.SortMostVotes})
		require.NoError(t, err)
		assert.Equal(t, domain.SortMostVotes, page.Sort)
		require.Greater(t, len(page.Posts), 2)
		assert.Equal(t, replies[4], page.Posts[1].Id)
		assert.Equal(t, 1, page.Posts[1].Votes)
		// equal scores list the newest reply first
		assert.Equal(t, replies[23], page.Posts[2].Id)
	})

	t.Run("viewing counts and marks the thread read", func(t *testing.T) {
		before, err := e.forum.Threads.GetFields(e.ctx, tid)
		require.NoError(t, err)

		_, err = view.ThreadPage(e.ctx, domain.ThreadPageRequest{Tid: tid, Uid: reader})
		require.NoError(t, err)

		after, err := e.forum.Threads.GetFields(e.ctx, tid)
		require.NoError(t, err)
		assert.Equal(t, before.ViewCount+1, after.ViewCount)
		read, err := e.forum.ReadState.HasReadThread(e.ctx, tid, reader)
		require.NoError(t, err)
		assert.True(t, read)
	})

	t.Run("user settings choose infinite scroll", func(t *testing.T) {
		require.NoError(t, e.store.SetObject(e.ctx, store.UserSettingsKey(reader), map[string]string{
			"postsPerPage":  "5",
			"usePagination": "0",
		}))
		t.Cleanup(func() { _ = e.store.Delete(e.ctx, store.UserSettingsKey(reader)) })

		page, err := view.ThreadPage(e.ctx, domain.ThreadPageRequest{Tid: tid, Uid: reader})
		require.NoError(t, err)
		assert.Len(t, page.Posts, 6)
		assert.Empty(t, page.Pagination.Pages)

		page, err = view.ThreadPage(e.ctx, domain.ThreadPageRequest{Tid: tid, Uid: reader, Index: 12, HasIndex: true})
		require.NoError(t, err)
		require.Len(t, page.Posts, 6)
		assert.Equal(t, 7, page.Posts[1].Index)
		assert.Equal(t, 11, page.Posts[5].Index, "scroll window ends just before the index")
	})
}

func TestThreadPageErrors(t *testing.T) {
	e := newTestEnv(t)
	tid, _ := e.newThread(1, 1)

	_, err := e.forum.View.ThreadPage(e.ctx, domain.ThreadPageRequest{Tid: 0})
	assert.ErrorIs(t, err, internal_errors.ErrInvalidIdentifier)

	_, err = e.forum.View.ThreadPage(e.ctx, domain.ThreadPageRequest{Tid: tid + 1})
	assert.ErrorIs(t, err, internal_errors.ErrNotFound)

	require.NoError(t, e.forum.Threads.SetDeleted(e.ctx, tid, true))
	_, err = e.forum.View.ThreadPage(e.ctx, domain.ThreadPageRequest{Tid: tid})
	assert.ErrorIs(t, err, internal_errors.ErrNotFound)
}

func TestThreadsByTids(t *testing.T) {
	e := newTestEnv(t)
	e.addUser(1, "alice")
	e.addUser(reader, "reader")
	own, _ := e.newThread(reader, 1)
	busy, _ := e.newThread(1, 1)
	e.reply(busy, 1)

	summaries, err := e.forum.View.ThreadsByTids(e.ctx, []domain.ThreadId{own, 404, busy}, reader)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, own, summaries[0].Id)
	assert.True(t, summaries[0].IsOwner)
	assert.False(t, summaries[0].Unread)
	assert.True(t, summaries[0].Unreplied)
	assert.Nil(t, summaries[0].Teaser)
	assert.Equal(t, "reader", summaries[0].User.Username)

	assert.Equal(t, busy, summaries[1].Id)
	assert.False(t, summaries[1].IsOwner)
	assert.True(t, summaries[1].Unread)
	assert.False(t, summaries[1].Unreplied)
	require.NotNil(t, summaries[1].Teaser)
	assert.Equal(t, "alice", summaries[1].User.Username)

	guest, err := e.forum.View.ThreadsByTids(e.ctx, []domain.ThreadId{own}, domain.GuestUid)
	require.NoError(t, err)
	require.Len(t, guest, 1)
	assert.False(t, guest[0].IsOwner)
	assert.True(t, guest[0].Unread)
}

func TestUnreadThreads(t *testing.T) {
	e := newTestEnv(t)
	var tids []domain.ThreadId
	for i := 0; i < 3; i++ {
		tid, _ := e.newThread(1, 1)
		tids = append(tids, tid)
	}

	result, err := e.forum.View.UnreadThreads(e.ctx, reader, 0, 1)
	require.NoError(t, err)
	require.Len(t, result.Threads, 2)
	assert.Equal(t, tids[2], result.Threads[0].Id)
	assert.Equal(t, 2, result.NextStart)

	t.Run("open-ended window points past the end", func(t *testing.T) {
		result, err := e.forum.View.UnreadThreads(e.ctx, reader, 1, -1)
		require.NoError(t, err)
		require.Len(t, result.Threads, 2)
		assert.Equal(t, 3, result.NextStart)

		next, err := e.forum.View.UnreadThreads(e.ctx, reader, result.NextStart, -1)
		require.NoError(t, err)
		assert.Empty(t, next.Threads)
	})

	require.NoError(t, e.forum.ReadState.MarkAsRead(e.ctx, tids, reader))
	result, err = e.forum.View.UnreadThreads(e.ctx, reader, 0, 1)
	require.NoError(t, err)
	assert.Empty(t, result.Threads)
	assert.Zero(t, result.NextStart)
}
