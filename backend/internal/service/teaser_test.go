package service

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/itchan-dev/itforum/shared/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTeasers(t *testing.T) {
	users := &MockUsers{profilesFunc: func(uids []domain.UserId) ([]*domain.UserProfile, error) {
		out := make([]*domain.UserProfile, len(uids))
		for i, uid := range uids {
			out[i] = &domain.UserProfile{Uid: uid, Username: "user" + string(rune('0'+uid))}
		}
		return out, nil
	}}
	e := newTestEnv(t, func(d *Deps) { d.Users = users })

	replied, _ := e.newThread(1, 1)
	e.reply(replied, 2)
	last := e.reply(replied, 3)
	quiet, _ := e.newThread(1, 1)
	guest, _ := e.newThread(1, 1)
	e.clock.Advance(1)
	guestPost, err := e.forum.Posts.Reply(e.ctx, domain.ReplyData{Tid: guest, Uid: 0, Content: testContent, Handle: "drifter"})
	require.NoError(t, err)
	again, _ := e.newThread(1, 1)
	e.reply(again, 3)

	threads, err := e.forum.Threads.GetFieldsBatch(e.ctx, []domain.ThreadId{guest, quiet, 999, replied, again}, nil)
	require.NoError(t, err)
	users.profilesCalls = nil

	teasers, err := e.forum.Teasers.ResolveTeasers(e.ctx, threads)
	require.NoError(t, err)
	require.Len(t, teasers, 5)

	require.NotNil(t, teasers[0])
	assert.Equal(t, guestPost.Id, teasers[0].Pid)
	assert.Equal(t, "drifter", teasers[0].User.Username)
	assert.Equal(t, 2, teasers[0].Index)

	assert.Nil(t, teasers[1], "no reply yet")
	assert.Nil(t, teasers[2], "missing thread")

	require.NotNil(t, teasers[3])
	assert.Equal(t, last, teasers[3].Pid)
	assert.Equal(t, replied, teasers[3].Tid)
	assert.Equal(t, "user3", teasers[3].User.Username)
	assert.Equal(t, 3, teasers[3].Index)
	assert.Equal(t, testContent, teasers[3].Summary)

	require.NotNil(t, teasers[4])
	assert.Equal(t, again, teasers[4].Tid)

	require.Len(t, users.profilesCalls, 1, "authors are loaded in one batch")
	assert.Equal(t, []domain.UserId{3}, users.profilesCalls[0], "each author once")

	t.Run("empty input", func(t *testing.T) {
		teasers, err := e.forum.Teasers.ResolveTeasers(e.ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, teasers)
	})
}

func TestTeaserLookups(t *testing.T) {
	e := newTestEnv(t)
	e.addUser(2, "bob")
	tid, _ := e.newThread(1, 1)

	teaser, err := e.forum.Teasers.Teaser(e.ctx, tid)
	require.NoError(t, err)
	assert.Nil(t, teaser)

	pid := e.reply(tid, 2)
	teaser, err = e.forum.Teasers.Teaser(e.ctx, tid)
	require.NoError(t, err)
	require.NotNil(t, teaser)
	assert.Equal(t, pid, teaser.Pid)
	assert.Equal(t, "bob", teaser.User.Username)

	teasers, err := e.forum.Teasers.TeasersByTids(e.ctx, []domain.ThreadId{tid, tid + 50})
	require.NoError(t, err)
	require.Len(t, teasers, 2)
	assert.NotNil(t, teasers[0])
	assert.Nil(t, teasers[1])
}

func TestUpdateTeaser(t *testing.T) {
	e := newTestEnv(t)
	tid, _ := e.newThread(1, 1)
	e.reply(tid, 1)
	newest := e.reply(tid, 1)

	require.NoError(t, e.forum.Teasers.UpdateTeaser(e.ctx, tid))
	thread, err := e.forum.Threads.GetFields(e.ctx, tid)
	require.NoError(t, err)
	assert.Equal(t, newest, thread.TeaserPid)

	empty, _ := e.newThread(1, 1)
	require.NoError(t, e.forum.Teasers.UpdateTeaser(e.ctx, empty))
	thread, err = e.forum.Threads.GetFields(e.ctx, empty)
	require.NoError(t, err)
	assert.Zero(t, thread.TeaserPid)
}

func TestTeaserSummaryIsTruncated(t *testing.T) {
	e := newTestEnv(t)
	tid, _ := e.newThread(1, 1)
	_, err := e.forum.Posts.Reply(e.ctx, domain.ReplyData{Tid: tid, Uid: 1, Content: "**bold** " + strings.Repeat("word ", 200)})
	require.NoError(t, err)

	teaser, err := e.forum.Teasers.Teaser(e.ctx, tid)
	require.NoError(t, err)
	require.NotNil(t, teaser)
	assert.NotContains(t, teaser.Summary, "<")
	assert.NotContains(t, teaser.Summary, "**")
	assert.LessOrEqual(t, utf8.RuneCountInString(teaser.Summary), e.cfg.TeaserLength+3)
}
