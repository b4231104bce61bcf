// Package memory is an in-process IndexStore for tests, the CLI and
// single-node deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/itchan-dev/itforum/backend/internal/store"
	internal_errors "github.com/itchan-dev/itforum/shared/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

type object struct {
	mu     sync.RWMutex
	fields map[string]string
}

type sortedSet struct {
	mu      sync.RWMutex
	scores  map[string]float64
	entries []store.ScoredMember // ascending by store.Less
}

type Memory struct {
	objects *xsync.MapOf[string, *object]
	sets    *xsync.MapOf[string, *sortedSet]
	closed  atomic.Bool
}

func New() *Memory {
	return &Memory{
		objects: xsync.NewMapOf[string, *object](),
		sets:    xsync.NewMapOf[string, *sortedSet](),
	}
}

var errClosed = fmt.Errorf("memory store is closed")

func (m *Memory) check(op string) error {
	if m.closed.Load() {
		return internal_errors.Transient(op, errClosed)
	}
	return nil
}

func (m *Memory) object(key string) *object {
	o, _ := m.objects.LoadOrCompute(key, func() *object {
		return &object{fields: make(map[string]string)}
	})
	return o
}

func (m *Memory) set(key string) *sortedSet {
	s, _ := m.sets.LoadOrCompute(key, func() *sortedSet {
		return &sortedSet{scores: make(map[string]float64)}
	})
	return s
}

func (m *Memory) GetObjectField(ctx context.Context, key, field string) (string, error) {
	if err := m.check("getObjectField"); err != nil {
		return "", err
	}
	o, ok := m.objects.Load(key)
	if !ok {
		return "", nil
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.fields[field], nil
}

func (m *Memory) GetObjectFields(ctx context.Context, key string, fields []string) (map[string]string, error) {
	if err := m.check("getObjectFields"); err != nil {
		return nil, err
	}
	return m.readObject(key, fields), nil
}

func (m *Memory) readObject(key string, fields []string) map[string]string {
	result := make(map[string]string)
	o, ok := m.objects.Load(key)
	if !ok {
		return result
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	if fields == nil {
		for f, v := range o.fields {
			result[f] = v
		}
		return result
	}
	for _, f := range fields {
		if v, ok := o.fields[f]; ok {
			result[f] = v
		}
	}
	return result
}

func (m *Memory) GetObjectsFields(ctx context.Context, keys []string, fields []string) ([]map[string]string, error) {
	if err := m.check("getObjectsFields"); err != nil {
		return nil, err
	}
	result := make([]map[string]string, len(keys))
	for i, key := range keys {
		result[i] = m.readObject(key, fields)
	}
	return result, nil
}

func (m *Memory) SetObjectField(ctx context.Context, key, field, value string) error {
	return m.SetObject(ctx, key, map[string]string{field: value})
}

func (m *Memory) SetObject(ctx context.Context, key string, values map[string]string) error {
	if err := m.check("setObject"); err != nil {
		return err
	}
	o := m.object(key)
	o.mu.Lock()
	defer o.mu.Unlock()
	for f, v := range values {
		o.fields[f] = v
	}
	return nil
}

func (m *Memory) IncrObjectField(ctx context.Context, key, field string) (int64, error) {
	return m.IncrObjectFieldBy(ctx, key, field, 1)
}

func (m *Memory) IncrObjectFieldBy(ctx context.Context, key, field string, by int64) (int64, error) {
	if err := m.check("incrObjectFieldBy"); err != nil {
		return 0, err
	}
	o := m.object(key)
	o.mu.Lock()
	defer o.mu.Unlock()
	var current int64
	if v, ok := o.fields[field]; ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("field %s of %s is not an integer: %w", field, key, err)
		}
		current = n
	}
	current += by
	o.fields[field] = strconv.FormatInt(current, 10)
	return current, nil
}

// position returns the index of the first entry not less than e.
func (s *sortedSet) position(e store.ScoredMember) int {
	return sort.Search(len(s.entries), func(i int) bool {
		return !store.Less(s.entries[i], e)
	})
}

// upsert must be called with s.mu held.
func (s *sortedSet) upsert(member string, score float64) {
	if old, ok := s.scores[member]; ok {
		if old == score {
			return
		}
		i := s.position(store.ScoredMember{Member: member, Score: old})
		s.entries = append(s.entries[:i], s.entries[i+1:]...)
	}
	e := store.ScoredMember{Member: member, Score: score}
	i := s.position(e)
	s.entries = append(s.entries, store.ScoredMember{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = e
	s.scores[member] = score
}

func (m *Memory) SortedSetAdd(ctx context.Context, key string, score float64, member string) error {
	if err := m.check("sortedSetAdd"); err != nil {
		return err
	}
	s := m.set(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsert(member, score)
	return nil
}

func (m *Memory) SortedSetsAdd(ctx context.Context, keys []string, score float64, member string) error {
	for _, key := range keys {
		if err := m.SortedSetAdd(ctx, key, score, member); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) SortedSetRaise(ctx context.Context, key string, entries []store.ScoredMember) error {
	if err := m.check("sortedSetRaise"); err != nil {
		return err
	}
	s := m.set(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if old, ok := s.scores[e.Member]; ok && old >= e.Score {
			continue
		}
		s.upsert(e.Member, e.Score)
	}
	return nil
}

func (m *Memory) SortedSetIncrBy(ctx context.Context, key string, by float64, member string) (float64, error) {
	if err := m.check("sortedSetIncrBy"); err != nil {
		return 0, err
	}
	s := m.set(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	score := s.scores[member] + by
	s.upsert(member, score)
	return score, nil
}

func (m *Memory) SortedSetScores(ctx context.Context, key string, members []string) ([]store.Score, error) {
	if err := m.check("sortedSetScores"); err != nil {
		return nil, err
	}
	result := make([]store.Score, len(members))
	s, ok := m.sets.Load(key)
	if !ok {
		return result, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, member := range members {
		if score, ok := s.scores[member]; ok {
			result[i] = store.Score{Value: score, Valid: true}
		}
	}
	return result, nil
}

func (m *Memory) IsSortedSetMember(ctx context.Context, key, member string) (bool, error) {
	if err := m.check("isSortedSetMember"); err != nil {
		return false, err
	}
	s, ok := m.sets.Load(key)
	if !ok {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, found := s.scores[member]
	return found, nil
}

func (m *Memory) rangeMembers(key string, start, stop int, reverse bool) []string {
	s, ok := m.sets.Load(key)
	if !ok {
		return []string{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	lo, hi, ok := store.Window(len(s.entries), start, stop)
	if !ok {
		return []string{}
	}
	result := make([]string, 0, hi-lo)
	for i := lo; i < hi; i++ {
		j := i
		if reverse {
			j = len(s.entries) - 1 - i
		}
		result = append(result, s.entries[j].Member)
	}
	return result
}

func (m *Memory) GetSortedSetRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	if err := m.check("getSortedSetRange"); err != nil {
		return nil, err
	}
	return m.rangeMembers(key, start, stop, false), nil
}

func (m *Memory) GetSortedSetRevRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	if err := m.check("getSortedSetRevRange"); err != nil {
		return nil, err
	}
	return m.rangeMembers(key, start, stop, true), nil
}

func (m *Memory) GetSortedSetRevRangeByScoreWithScores(ctx context.Context, key string, start, stop int, max, min float64) ([]store.ScoredMember, error) {
	if err := m.check("getSortedSetRevRangeByScoreWithScores"); err != nil {
		return nil, err
	}
	s, ok := m.sets.Load(key)
	if !ok {
		return []store.ScoredMember{}, nil
	}
	s.mu.RLock()
	matched := make([]store.ScoredMember, 0)
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.Score > max {
			continue
		}
		if e.Score < min {
			break
		}
		matched = append(matched, e)
	}
	s.mu.RUnlock()

	lo, hi, ok := store.Window(len(matched), start, stop)
	if !ok {
		return []store.ScoredMember{}, nil
	}
	return matched[lo:hi], nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := m.check("delete"); err != nil {
		return err
	}
	m.objects.Delete(key)
	m.sets.Delete(key)
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return m.check("ping")
}

func (m *Memory) Close() error {
	m.closed.Store(true)
	return nil
}
