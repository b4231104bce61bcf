package setup

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/itchan-dev/itforum/shared/config"
	"github.com/itchan-dev/itforum/shared/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, backend string) *config.Config {
	dir := t.TempDir()
	public := config.Default()
	public.Store.Backend = backend
	public.Store.CacheSize = 128
	public.Store.Sqlite.Path = filepath.Join(dir, "itforum.sqlite")
	public.Store.Pebble.Path = filepath.Join(dir, "pebble")
	return &config.Config{Public: public}
}

func TestSetupDependencies(t *testing.T) {
	for _, backend := range []string{"memory", "sqlite", "pebble"} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			deps, err := SetupDependencies(ctx, testConfig(t, backend), true)
			require.NoError(t, err)
			defer deps.Close()

			require.NoError(t, deps.Store.Ping(ctx))
			thread, _, err := deps.Forum.Posts.Post(ctx, domain.NewThreadData{Uid: 1, Cid: 1, Title: "Setup check", Content: "opening post content"})
			require.NoError(t, err)

			page, err := deps.Forum.View.ThreadPage(ctx, domain.ThreadPageRequest{Tid: thread.Id, Uid: 2})
			require.NoError(t, err)
			assert.Len(t, page.Posts, 1)

			tids, err := deps.Forum.Unread.UnreadTids(ctx, 2, 0, -1)
			require.NoError(t, err)
			assert.Empty(t, tids, "viewing the page marked it read")
		})
	}
}

func TestSetupWithActorDispatcher(t *testing.T) {
	ctx := context.Background()
	deps, err := SetupDependencies(ctx, testConfig(t, "memory"), false)
	require.NoError(t, err)

	thread, _, err := deps.Forum.Posts.Post(ctx, domain.NewThreadData{Uid: 1, Title: "Async check", Content: "opening post content"})
	require.NoError(t, err)
	deps.Forum.ReadState.MarkAsReadAsync([]domain.ThreadId{thread.Id}, 7)

	// Shutdown waits for queued tasks; the store is closed afterwards
	deps.Dispatcher.Shutdown()
	read, err := deps.Forum.ReadState.HasReadThread(ctx, thread.Id, 7)
	require.NoError(t, err)
	assert.True(t, read)
	deps.Close()
}

func TestOpenStoreUnknownBackend(t *testing.T) {
	_, err := OpenStore(context.Background(), testConfig(t, "cassandra"))
	assert.Error(t, err)
}
