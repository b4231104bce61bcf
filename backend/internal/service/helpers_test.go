package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/itchan-dev/itforum/backend/internal/store"
	"github.com/itchan-dev/itforum/backend/internal/store/memory"
	"github.com/itchan-dev/itforum/shared/config"
	"github.com/itchan-dev/itforum/shared/domain"
	"github.com/stretchr/testify/require"
)

const testContent = "hello there, this is a post"

// --- Mocks ---

// MockUsers mocks the Users interface. Unset funcs return empty results.
type MockUsers struct {
	profilesFunc func(uids []domain.UserId) ([]*domain.UserProfile, error)
	settingsFunc func(uid domain.UserId) (domain.UserSettings, error)
	ignoredFunc  func(uid domain.UserId) ([]domain.CategoryId, error)

	mu            sync.Mutex
	profilesCalls [][]domain.UserId
}

func (m *MockUsers) Profiles(ctx context.Context, uids []domain.UserId) ([]*domain.UserProfile, error) {
	m.mu.Lock()
	m.profilesCalls = append(m.profilesCalls, append([]domain.UserId(nil), uids...))
	m.mu.Unlock()
	if m.profilesFunc != nil {
		return m.profilesFunc(uids)
	}
	return make([]*domain.UserProfile, len(uids)), nil
}

func (m *MockUsers) Settings(ctx context.Context, uid domain.UserId) (domain.UserSettings, error) {
	if m.settingsFunc != nil {
		return m.settingsFunc(uid)
	}
	return domain.UserSettings{PostsPerPage: 20, UsePagination: true}, nil
}

func (m *MockUsers) IgnoredCategories(ctx context.Context, uid domain.UserId) ([]domain.CategoryId, error) {
	if m.ignoredFunc != nil {
		return m.ignoredFunc(uid)
	}
	return nil, nil
}

// MockCategories records the read-state cascade.
type MockCategories struct {
	markAsReadFunc         func(cids []domain.CategoryId, uid domain.UserId) error
	markAsUnreadForAllFunc func(cid domain.CategoryId) error

	mu           sync.Mutex
	readCalls    [][]domain.CategoryId
	unreadForAll []domain.CategoryId
}

func (m *MockCategories) MarkAsRead(ctx context.Context, cids []domain.CategoryId, uid domain.UserId) error {
	m.mu.Lock()
	m.readCalls = append(m.readCalls, append([]domain.CategoryId(nil), cids...))
	m.mu.Unlock()
	if m.markAsReadFunc != nil {
		return m.markAsReadFunc(cids, uid)
	}
	return nil
}

func (m *MockCategories) MarkAsUnreadForAll(ctx context.Context, cid domain.CategoryId) error {
	m.mu.Lock()
	m.unreadForAll = append(m.unreadForAll, cid)
	m.mu.Unlock()
	if m.markAsUnreadForAllFunc != nil {
		return m.markAsUnreadForAllFunc(cid)
	}
	return nil
}

func (m *MockCategories) ResetCallTracking() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readCalls = nil
	m.unreadForAll = nil
}

type notification struct {
	uid     domain.UserId
	event   string
	payload any
}

// MockNotifier records notifications.
type MockNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (m *MockNotifier) Notify(ctx context.Context, uid domain.UserId, event string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, notification{uid: uid, event: event, payload: payload})
	return nil
}

func (m *MockNotifier) last() (notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return notification{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// --- Helpers ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type testEnv struct {
	t          *testing.T
	ctx        context.Context
	store      *memory.Memory
	cfg        config.Threads
	clock      *fakeClock
	categories *MockCategories
	notifier   *MockNotifier
	forum      *Forum
}

func newTestEnv(t *testing.T, opts ...func(*Deps)) *testEnv {
	t.Helper()
	e := &testEnv{
		t:          t,
		ctx:        context.Background(),
		store:      memory.New(),
		cfg:        config.Default().Threads,
		clock:      newFakeClock(),
		categories: &MockCategories{},
		notifier:   &MockNotifier{},
	}
	deps := Deps{Categories: e.categories, Notifier: e.notifier, Dispatcher: InlineDispatcher{}}
	for _, opt := range opts {
		opt(&deps)
	}
	e.forum = New(e.store, e.cfg, deps)
	e.forum.SetClock(e.clock.Now)
	t.Cleanup(func() { _ = e.store.Close() })
	return e
}

// newThread creates a thread with its opening post one second after the
// previous write.
func (e *testEnv) newThread(uid domain.UserId, cid domain.CategoryId) (domain.ThreadId, domain.PostId) {
	e.t.Helper()
	e.clock.Advance(time.Second)
	thread, post, err := e.forum.Posts.Post(e.ctx, domain.NewThreadData{Uid: uid, Cid: cid, Title: "A thread title", Content: testContent})
	require.NoError(e.t, err)
	return thread.Id, post.Id
}

func (e *testEnv) reply(tid domain.ThreadId, uid domain.UserId) domain.PostId {
	e.t.Helper()
	e.clock.Advance(time.Second)
	post, err := e.forum.Posts.Reply(e.ctx, domain.ReplyData{Tid: tid, Uid: uid, Content: testContent})
	require.NoError(e.t, err)
	return post.Id
}

func (e *testEnv) cursor(uid domain.UserId, tid domain.ThreadId) store.Score {
	e.t.Helper()
	scores, err := e.store.SortedSetScores(e.ctx, store.ReadCursorKey(uid), []string{store.Member(tid)})
	require.NoError(e.t, err)
	return scores[0]
}

func (e *testEnv) recency(tid domain.ThreadId) store.Score {
	e.t.Helper()
	scores, err := e.store.SortedSetScores(e.ctx, store.RecentThreadsKey, []string{store.Member(tid)})
	require.NoError(e.t, err)
	return scores[0]
}

func (e *testEnv) addUser(uid domain.UserId, name string) {
	e.t.Helper()
	require.NoError(e.t, e.store.SetObject(e.ctx, store.UserKey(uid), map[string]string{
		domain.FieldUid: store.Member(uid),
		"username":      name,
		"userslug":      name,
	}))
}

func ms(t time.Time) float64 {
	return float64(domain.Millis(t))
}
