package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, public, private string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "public.yaml"), []byte(public), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "private.yaml"), []byte(private), 0o600))
	return dir
}

func TestMustLoad(t *testing.T) {
	t.Run("absent keys fall back to defaults", func(t *testing.T) {
		dir := writeConfig(t, "log_level: debug\nthreads:\n  posts_per_page: 10\n  unread_horizon: 12h\n  unread_cap: 100\n  total_unread_window: 20\n  max_post_length: 100\n  max_title_length: 50\n  teaser_length: 80\n", "")

		cfg := MustLoad(dir)

		assert.Equal(t, "debug", cfg.Public.LogLevel)
		assert.Equal(t, "memory", cfg.Public.Store.Backend)
		assert.Equal(t, 10, cfg.Public.Threads.PostsPerPage)
		assert.Equal(t, 12*time.Hour, cfg.Public.Threads.UnreadHorizon)
		assert.Equal(t, 8, cfg.Public.Dispatcher.Workers)
	})

	t.Run("environment overrides private secrets", func(t *testing.T) {
		dir := writeConfig(t, "store:\n  backend: postgres\n", "pg:\n  host: db\n  port: 5432\n  user: u\n  password: from-file\n  dbname: itforum\n")
		t.Setenv("ITFORUM_PG_PASSWORD", "from-env")

		cfg := MustLoad(dir)

		assert.Equal(t, "from-env", cfg.Private.Pg.Password)
		assert.Contains(t, cfg.Private.Pg.DSN(), "password=from-env")
	})

	t.Run("panics on unknown backend", func(t *testing.T) {
		dir := writeConfig(t, "store:\n  backend: redis\n", "")
		assert.Panics(t, func() { MustLoad(dir) })
	})

	t.Run("panics when mongo backend has no uri", func(t *testing.T) {
		dir := writeConfig(t, "store:\n  backend: mongo\n", "")
		assert.Panics(t, func() { MustLoad(dir) })
	})

	t.Run("panics when files are missing", func(t *testing.T) {
		assert.Panics(t, func() { MustLoad(t.TempDir()) })
	})
}

func TestValidate(t *testing.T) {
	cfg := &Config{Public: Default()}
	require.NoError(t, cfg.Validate())

	cfg.Public.Threads.PostsPerPage = 0
	assert.Error(t, cfg.Validate())

	cfg = &Config{Public: Default()}
	cfg.Public.Threads.MaxPostLength = cfg.Public.Threads.MinPostLength
	assert.Error(t, cfg.Validate())
}
