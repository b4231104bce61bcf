package service

import (
	"time"

	"github.com/itchan-dev/itforum/backend/internal/content"
	"github.com/itchan-dev/itforum/backend/internal/store"
	"github.com/itchan-dev/itforum/shared/config"
)

// Forum bundles the read-state engine's components over one store.
type Forum struct {
	Threads   *ThreadRegistry
	Teasers   *Teasers
	Unread    *UnreadTracker
	ReadState *ReadCursorManager
	Posts     *PostWriter
	View      *ThreadView
}

// Deps are the collaborators the engine does not own.
type Deps struct {
	Users      Users
	Categories Categories
	Notifier   Notifier
	Dispatcher Dispatcher
}

// New wires the engine. Nil collaborators fall back to the store-backed
// defaults, an inline dispatcher and the log notifier.
func New(s store.IndexStore, cfg config.Threads, deps Deps) *Forum {
	if deps.Users == nil {
		deps.Users = NewStoreUsers(s, cfg)
	}
	if deps.Categories == nil {
		deps.Categories = NewStoreCategories(s)
	}
	if deps.Notifier == nil {
		deps.Notifier = LogNotifier{}
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = InlineDispatcher{}
	}
	renderer := content.New()

	threads := NewThreadRegistry(s, cfg)
	teasers := NewTeasers(s, deps.Users, threads, renderer, cfg.TeaserLength)
	unread := NewUnreadTracker(s, deps.Users, threads, deps.Notifier, cfg)
	readstate := NewReadCursorManager(s, threads, deps.Categories, unread, deps.Dispatcher)
	return &Forum{
		Threads:   threads,
		Teasers:   teasers,
		Unread:    unread,
		ReadState: readstate,
		Posts:     NewPostWriter(s, threads, teasers, readstate, deps.Dispatcher, cfg),
		View:      NewThreadView(s, threads, teasers, readstate, unread, deps.Users, renderer, deps.Dispatcher),
	}
}

// SetClock replaces the time source of every component.
func (f *Forum) SetClock(now func() time.Time) {
	f.Threads.now = now
	f.Unread.now = now
	f.ReadState.now = now
	f.Posts.now = now
}
