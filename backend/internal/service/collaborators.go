package service

import (
	"context"
	"strconv"
	"time"

	"github.com/itchan-dev/itforum/backend/internal/store"
	"github.com/itchan-dev/itforum/shared/config"
	"github.com/itchan-dev/itforum/shared/domain"
	"github.com/itchan-dev/itforum/shared/logger"
)

// Users is the user subsystem as seen by the read-state engine.
type Users interface {
	// Profiles returns one entry per uid in input order, nil for unknown users.
	Profiles(ctx context.Context, uids []domain.UserId) ([]*domain.UserProfile, error)
	Settings(ctx context.Context, uid domain.UserId) (domain.UserSettings, error)
	IgnoredCategories(ctx context.Context, uid domain.UserId) ([]domain.CategoryId, error)
}

// Categories receives the category-level read state cascade.
type Categories interface {
	MarkAsRead(ctx context.Context, cids []domain.CategoryId, uid domain.UserId) error
	MarkAsUnreadForAll(ctx context.Context, cid domain.CategoryId) error
}

// Notifier delivers events to a user's live sessions.
type Notifier interface {
	Notify(ctx context.Context, uid domain.UserId, event string, payload any) error
}

// StoreUsers reads user records written by the user subsystem into the same store.
type StoreUsers struct {
	store    store.IndexStore
	defaults config.Threads
}

func NewStoreUsers(s store.IndexStore, defaults config.Threads) *StoreUsers {
	return &StoreUsers{store: s, defaults: defaults}
}

func (u *StoreUsers) Profiles(ctx context.Context, uids []domain.UserId) ([]*domain.UserProfile, error) {
	keys := make([]string, len(uids))
	for i, uid := range uids {
		keys[i] = store.UserKey(uid)
	}
	records, err := u.store.GetObjectsFields(ctx, keys, []string{domain.FieldUid, "username", "userslug", "picture"})
	if err != nil {
		return nil, err
	}
	profiles := make([]*domain.UserProfile, len(uids))
	for i, fields := range records {
		profiles[i] = domain.ProfileFromFields(fields)
	}
	return profiles, nil
}

func (u *StoreUsers) Settings(ctx context.Context, uid domain.UserId) (domain.UserSettings, error) {
	settings := domain.UserSettings{
		PostsPerPage:  u.defaults.PostsPerPage,
		UsePagination: u.defaults.UsePagination,
		PostSort:      u.defaults.PostSort,
	}
	if uid == domain.GuestUid {
		return settings, nil
	}
	fields, err := u.store.GetObjectFields(ctx, store.UserSettingsKey(uid), []string{"postsPerPage", "usePagination", "postSort"})
	if err != nil {
		return settings, err
	}
	if n, err := strconv.Atoi(fields["postsPerPage"]); err == nil && n > 0 {
		settings.PostsPerPage = n
	}
	if v, ok := fields["usePagination"]; ok {
		settings.UsePagination = v == "1" || v == "true"
	}
	if v := fields["postSort"]; v != "" {
		settings.PostSort = v
	}
	return settings, nil
}

func (u *StoreUsers) IgnoredCategories(ctx context.Context, uid domain.UserId) ([]domain.CategoryId, error) {
	members, err := u.store.GetSortedSetRange(ctx, store.IgnoredCategoriesKey(uid), 0, -1)
	if err != nil {
		return nil, err
	}
	cids := make([]domain.CategoryId, 0, len(members))
	for _, m := range members {
		if cid, err := store.ParseMember(m); err == nil {
			cids = append(cids, cid)
		}
	}
	return cids, nil
}

// StoreCategories keeps the per-category "read by" sets.
type StoreCategories struct {
	store store.IndexStore
	now   func() time.Time
}

func NewStoreCategories(s store.IndexStore) *StoreCategories {
	return &StoreCategories{store: s, now: time.Now}
}

func (c *StoreCategories) MarkAsRead(ctx context.Context, cids []domain.CategoryId, uid domain.UserId) error {
	now := float64(domain.Millis(c.now()))
	for _, cid := range cids {
		if err := c.store.SortedSetAdd(ctx, store.CategoryReadKey(cid), now, store.Member(uid)); err != nil {
			return err
		}
	}
	return nil
}

func (c *StoreCategories) MarkAsUnreadForAll(ctx context.Context, cid domain.CategoryId) error {
	return c.store.Delete(ctx, store.CategoryReadKey(cid))
}

// LogNotifier writes notifications to the log; the socket layer is external.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, uid domain.UserId, event string, payload any) error {
	logger.Log.Debug("notify", "uid", uid, "event", event, "payload", payload)
	return nil
}
