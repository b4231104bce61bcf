// Package pebblestore is an embedded IndexStore on top of cockroachdb/pebble.
package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/pebble"
	"github.com/itchan-dev/itforum/backend/internal/store"
	internal_errors "github.com/itchan-dev/itforum/shared/errors"
)

const stripes = 64

type Store struct {
	db *pebble.DB
	// read-modify-write on one store key holds its stripe
	locks [stripes]sync.Mutex
}

func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// DB exposes the handle for metrics collection.
func (s *Store) DB() *pebble.DB {
	return s.db
}

func (s *Store) lock(key string) func() {
	mu := &s.locks[xxhash.Sum64String(key)%stripes]
	mu.Lock()
	return mu.Unlock
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	_, closer, err := s.db.Get([]byte{0})
	if err == nil {
		closer.Close()
		return nil
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	return internal_errors.Transient("ping", err)
}

// get returns a copy of the value, ok is false when k is absent.
func (s *Store) get(k []byte) ([]byte, bool, error) {
	v, closer, err := s.db.Get(k)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), true, nil
}

func (s *Store) GetObjectField(ctx context.Context, key, field string) (string, error) {
	v, _, err := s.get(objectKey(key, field))
	if err != nil {
		return "", internal_errors.Transient("getObjectField", err)
	}
	return string(v), nil
}

func (s *Store) GetObjectFields(ctx context.Context, key string, fields []string) (map[string]string, error) {
	result := make(map[string]string)
	if fields != nil {
		for _, f := range fields {
			v, ok, err := s.get(objectKey(key, f))
			if err != nil {
				return nil, internal_errors.Transient("getObjectFields", err)
			}
			if ok {
				result[f] = string(v)
			}
		}
		return result, nil
	}

	p := prefix(objectTag, key)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: p, UpperBound: prefixEnd(p)})
	if err != nil {
		return nil, internal_errors.Transient("getObjectFields", err)
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		result[string(iter.Key()[len(p):])] = string(iter.Value())
	}
	if err := iter.Error(); err != nil {
		return nil, internal_errors.Transient("getObjectFields", err)
	}
	return result, nil
}

func (s *Store) GetObjectsFields(ctx context.Context, keys []string, fields []string) ([]map[string]string, error) {
	result := make([]map[string]string, len(keys))
	for i, key := range keys {
		m, err := s.GetObjectFields(ctx, key, fields)
		if err != nil {
			return nil, err
		}
		result[i] = m
	}
	return result, nil
}

func (s *Store) SetObjectField(ctx context.Context, key, field, value string) error {
	return s.SetObject(ctx, key, map[string]string{field: value})
}

func (s *Store) SetObject(ctx context.Context, key string, values map[string]string) error {
	b := s.db.NewBatch()
	defer b.Close()
	for f, v := range values {
		if err := b.Set(objectKey(key, f), []byte(v), nil); err != nil {
			return internal_errors.Transient("setObject", err)
		}
	}
	return internal_errors.Transient("setObject", b.Commit(pebble.Sync))
}

func (s *Store) IncrObjectField(ctx context.Context, key, field string) (int64, error) {
	return s.IncrObjectFieldBy(ctx, key, field, 1)
}

func (s *Store) IncrObjectFieldBy(ctx context.Context, key, field string, by int64) (int64, error) {
	defer s.lock(key)()

	k := objectKey(key, field)
	v, ok, err := s.get(k)
	if err != nil {
		return 0, internal_errors.Transient("incrObjectFieldBy", err)
	}
	var current int64
	if ok && len(v) > 0 {
		current, err = strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("field %s of %s is not an integer: %w", field, key, err)
		}
	}
	current += by
	if err := s.db.Set(k, []byte(strconv.FormatInt(current, 10)), pebble.Sync); err != nil {
		return 0, internal_errors.Transient("incrObjectFieldBy", err)
	}
	return current, nil
}

// upsert stages the member and index writes for one entry. The caller holds
// the key's stripe.
func (s *Store) upsert(b *pebble.Batch, key, member string, score float64) error {
	mk := memberKey(key, member)
	old, ok, err := s.get(mk)
	if err != nil {
		return err
	}
	if ok {
		oldScore := decodeScore(old)
		if oldScore == score {
			return nil
		}
		if err := b.Delete(scoreKey(key, member, oldScore), nil); err != nil {
			return err
		}
	}
	if err := b.Set(mk, encodeScore(score), nil); err != nil {
		return err
	}
	return b.Set(scoreKey(key, member, score), nil, nil)
}

func (s *Store) SortedSetAdd(ctx context.Context, key string, score float64, member string) error {
	defer s.lock(key)()

	b := s.db.NewBatch()
	defer b.Close()
	if err := s.upsert(b, key, member, score); err != nil {
		return internal_errors.Transient("sortedSetAdd", err)
	}
	return internal_errors.Transient("sortedSetAdd", b.Commit(pebble.Sync))
}

func (s *Store) SortedSetsAdd(ctx context.Context, keys []string, score float64, member string) error {
	for _, key := range keys {
		if err := s.SortedSetAdd(ctx, key, score, member); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SortedSetRaise(ctx context.Context, key string, entries []store.ScoredMember) error {
	if len(entries) == 0 {
		return nil
	}
	defer s.lock(key)()

	b := s.db.NewBatch()
	defer b.Close()
	// later entries for the same member see the staged score
	staged := make(map[string]float64, len(entries))
	for _, e := range entries {
		current, ok := staged[e.Member]
		if !ok {
			v, found, err := s.get(memberKey(key, e.Member))
			if err != nil {
				return internal_errors.Transient("sortedSetRaise", err)
			}
			if found {
				current, ok = decodeScore(v), true
			}
		}
		if ok && current >= e.Score {
			continue
		}
		if ok {
			if err := b.Delete(scoreKey(key, e.Member, current), nil); err != nil {
				return internal_errors.Transient("sortedSetRaise", err)
			}
		}
		if err := b.Set(memberKey(key, e.Member), encodeScore(e.Score), nil); err != nil {
			return internal_errors.Transient("sortedSetRaise", err)
		}
		if err := b.Set(scoreKey(key, e.Member, e.Score), nil, nil); err != nil {
			return internal_errors.Transient("sortedSetRaise", err)
		}
		staged[e.Member] = e.Score
	}
	return internal_errors.Transient("sortedSetRaise", b.Commit(pebble.Sync))
}

func (s *Store) SortedSetIncrBy(ctx context.Context, key string, by float64, member string) (float64, error) {
	defer s.lock(key)()

	v, ok, err := s.get(memberKey(key, member))
	if err != nil {
		return 0, internal_errors.Transient("sortedSetIncrBy", err)
	}
	score := by
	if ok {
		score += decodeScore(v)
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := s.upsert(b, key, member, score); err != nil {
		return 0, internal_errors.Transient("sortedSetIncrBy", err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, internal_errors.Transient("sortedSetIncrBy", err)
	}
	return score, nil
}

func (s *Store) SortedSetScores(ctx context.Context, key string, members []string) ([]store.Score, error) {
	result := make([]store.Score, len(members))
	for i, m := range members {
		v, ok, err := s.get(memberKey(key, m))
		if err != nil {
			return nil, internal_errors.Transient("sortedSetScores", err)
		}
		if ok {
			result[i] = store.Score{Value: decodeScore(v), Valid: true}
		}
	}
	return result, nil
}

func (s *Store) IsSortedSetMember(ctx context.Context, key, member string) (bool, error) {
	_, ok, err := s.get(memberKey(key, member))
	if err != nil {
		return false, internal_errors.Transient("isSortedSetMember", err)
	}
	return ok, nil
}

// scan walks the index entries of key between lower and upper in the given
// direction and keeps the [start, stop] window of what it sees.
func (s *Store) scan(key string, lower, upper []byte, reverse bool, start, stop int) ([]store.ScoredMember, error) {
	p := prefix(scoreTag, key)
	if lower == nil {
		lower = p
	}
	if upper == nil {
		upper = prefixEnd(p)
	}
	result := []store.ScoredMember{}
	if start < 0 {
		start = 0
	}
	if stop >= 0 && stop < start {
		return result, nil
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	first, step := iter.First, iter.Next
	if reverse {
		first, step = iter.Last, iter.Prev
	}
	i := 0
	for valid := first(); valid; valid = step() {
		if stop >= 0 && i > stop {
			break
		}
		if i >= start {
			member, score := decodeScoreKey(p, iter.Key())
			result = append(result, store.ScoredMember{Member: member, Score: score})
		}
		i++
	}
	return result, iter.Error()
}

func members(entries []store.ScoredMember) []string {
	result := make([]string, len(entries))
	for i, e := range entries {
		result[i] = e.Member
	}
	return result
}

func (s *Store) GetSortedSetRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	entries, err := s.scan(key, nil, nil, false, start, stop)
	if err != nil {
		return nil, internal_errors.Transient("getSortedSetRange", err)
	}
	return members(entries), nil
}

func (s *Store) GetSortedSetRevRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	entries, err := s.scan(key, nil, nil, true, start, stop)
	if err != nil {
		return nil, internal_errors.Transient("getSortedSetRevRange", err)
	}
	return members(entries), nil
}

func (s *Store) GetSortedSetRevRangeByScoreWithScores(ctx context.Context, key string, start, stop int, max, min float64) ([]store.ScoredMember, error) {
	if max < min {
		return []store.ScoredMember{}, nil
	}
	lower, upper := scoreBounds(prefix(scoreTag, key), max, min)
	entries, err := s.scan(key, lower, upper, true, start, stop)
	if err != nil {
		return nil, internal_errors.Transient("getSortedSetRevRangeByScoreWithScores", err)
	}
	return entries, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	defer s.lock(key)()

	b := s.db.NewBatch()
	defer b.Close()
	for _, tag := range []byte{objectTag, memberTag, scoreTag} {
		p := prefix(tag, key)
		if err := b.DeleteRange(p, prefixEnd(p), nil); err != nil {
			return internal_errors.Transient("delete", err)
		}
	}
	return internal_errors.Transient("delete", b.Commit(pebble.Sync))
}
