// Package storetest is the behaviour every store.IndexStore backend must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/itchan-dev/itforum/backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. It is called once per subtest, keys used by
// the suite are prefixed with the subtest name so a shared database works too.
type Factory func(t *testing.T) store.IndexStore

func Run(t *testing.T, newStore Factory) {
	t.Run("Objects", func(t *testing.T) { testObjects(t, newStore(t)) })
	t.Run("Increment", func(t *testing.T) { testIncrement(t, newStore(t)) })
	t.Run("SortedSetAdd", func(t *testing.T) { testSortedSetAdd(t, newStore(t)) })
	t.Run("SortedSetRaise", func(t *testing.T) { testSortedSetRaise(t, newStore(t)) })
	t.Run("SortedSetIncrBy", func(t *testing.T) { testSortedSetIncrBy(t, newStore(t)) })
	t.Run("Ranges", func(t *testing.T) { testRanges(t, newStore(t)) })
	t.Run("RevRangeByScore", func(t *testing.T) { testRevRangeByScore(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("ConcurrentIncrement", func(t *testing.T) { testConcurrentIncrement(t, newStore(t)) })
}

func key(t *testing.T, name string) string {
	return fmt.Sprintf("%s:%s", t.Name(), name)
}

func testObjects(t *testing.T, s store.IndexStore) {
	ctx := context.Background()
	k := key(t, "thread:1")

	v, err := s.GetObjectField(ctx, k, "title")
	require.NoError(t, err)
	assert.Empty(t, v, "absent object reads as empty")

	require.NoError(t, s.SetObject(ctx, k, map[string]string{"title": "Hello", "cid": "2"}))
	require.NoError(t, s.SetObjectField(ctx, k, "locked", "1"))
	require.NoError(t, s.SetObjectField(ctx, k, "title", "Renamed"))

	v, err = s.GetObjectField(ctx, k, "title")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", v)

	fields, err := s.GetObjectFields(ctx, k, []string{"title", "locked", "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"title": "Renamed", "locked": "1"}, fields)

	all, err := s.GetObjectFields(ctx, k, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"title": "Renamed", "locked": "1", "cid": "2"}, all)

	many, err := s.GetObjectsFields(ctx, []string{k, key(t, "thread:404"), k}, []string{"cid"})
	require.NoError(t, err)
	require.Len(t, many, 3)
	assert.Equal(t, "2", many[0]["cid"])
	assert.Empty(t, many[1])
	assert.Equal(t, "2", many[2]["cid"])
}

func testIncrement(t *testing.T, s store.IndexStore) {
	ctx := context.Background()
	k := key(t, "global")

	n, err := s.IncrObjectField(ctx, k, "nextTid")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.IncrObjectField(ctx, k, "nextTid")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.IncrObjectFieldBy(ctx, k, "postcount", -3)
	require.NoError(t, err)
	assert.Equal(t, int64(-3), n)

	v, err := s.GetObjectField(ctx, k, "nextTid")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func testSortedSetAdd(t *testing.T, s store.IndexStore) {
	ctx := context.Background()
	k := key(t, "tids")

	require.NoError(t, s.SortedSetAdd(ctx, k, 100, "1"))
	require.NoError(t, s.SortedSetAdd(ctx, k, 200, "2"))
	// plain add may lower a score
	require.NoError(t, s.SortedSetAdd(ctx, k, 50, "2"))

	scores, err := s.SortedSetScores(ctx, k, []string{"1", "2", "3"})
	require.NoError(t, err)
	assert.Equal(t, []store.Score{{Value: 100, Valid: true}, {Value: 50, Valid: true}, {}}, scores)

	ok, err := s.IsSortedSetMember(ctx, k, "2")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.IsSortedSetMember(ctx, k, "3")
	require.NoError(t, err)
	assert.False(t, ok)

	a, b := key(t, "cid:1"), key(t, "cid:2")
	require.NoError(t, s.SortedSetsAdd(ctx, []string{a, b}, 7, "9"))
	for _, k := range []string{a, b} {
		scores, err := s.SortedSetScores(ctx, k, []string{"9"})
		require.NoError(t, err)
		assert.Equal(t, []store.Score{{Value: 7, Valid: true}}, scores)
	}

	empty, err := s.SortedSetScores(ctx, key(t, "missing"), []string{"1"})
	require.NoError(t, err)
	assert.Equal(t, []store.Score{{}}, empty)
}

func testSortedSetRaise(t *testing.T, s store.IndexStore) {
	ctx := context.Background()
	k := key(t, "uid:1:tids_read")

	require.NoError(t, s.SortedSetRaise(ctx, k, []store.ScoredMember{{Member: "1", Score: 1000}, {Member: "2", Score: 2000}}))
	require.NoError(t, s.SortedSetRaise(ctx, k, []store.ScoredMember{{Member: "1", Score: 500}, {Member: "2", Score: 3000}, {Member: "3", Score: 10}}))

	scores, err := s.SortedSetScores(ctx, k, []string{"1", "2", "3"})
	require.NoError(t, err)
	assert.Equal(t, []store.Score{{Value: 1000, Valid: true}, {Value: 3000, Valid: true}, {Value: 10, Valid: true}}, scores)

	require.NoError(t, s.SortedSetRaise(ctx, k, nil))
}

func testSortedSetIncrBy(t *testing.T, s store.IndexStore) {
	ctx := context.Background()
	k := key(t, "votes")

	v, err := s.SortedSetIncrBy(ctx, k, 1, "5")
	require.NoError(t, err)
	assert.Equal(t, float64(1), v)

	v, err = s.SortedSetIncrBy(ctx, k, -2, "5")
	require.NoError(t, err)
	assert.Equal(t, float64(-1), v)

	members, err := s.GetSortedSetRange(ctx, k, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"5"}, members)
}

func testRanges(t *testing.T, s store.IndexStore) {
	ctx := context.Background()
	k := key(t, "posts")

	// equal scores order by member length then bytes, so "10" follows "9"
	for _, m := range []store.ScoredMember{
		{Member: "10", Score: 5}, {Member: "9", Score: 5}, {Member: "2", Score: 1},
		{Member: "11", Score: 7}, {Member: "3", Score: 5},
	} {
		require.NoError(t, s.SortedSetAdd(ctx, k, m.Score, m.Member))
	}

	all, err := s.GetSortedSetRange(ctx, k, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3", "9", "10", "11"}, all)

	rev, err := s.GetSortedSetRevRange(ctx, k, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"11", "10", "9", "3", "2"}, rev)

	window, err := s.GetSortedSetRange(ctx, k, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "9"}, window)

	tail, err := s.GetSortedSetRevRange(ctx, k, 3, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2"}, tail)

	beyond, err := s.GetSortedSetRange(ctx, k, 10, 19)
	require.NoError(t, err)
	assert.Empty(t, beyond)

	missing, err := s.GetSortedSetRange(ctx, key(t, "missing"), 0, -1)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func testRevRangeByScore(t *testing.T, s store.IndexStore) {
	ctx := context.Background()
	k := key(t, "topics:recent")

	for i := 1; i <= 6; i++ {
		require.NoError(t, s.SortedSetAdd(ctx, k, float64(i*100), fmt.Sprint(i)))
	}
	require.NoError(t, s.SortedSetAdd(ctx, k, 300, "30"))

	got, err := s.GetSortedSetRevRangeByScoreWithScores(ctx, k, 0, -1, 500, 300)
	require.NoError(t, err)
	assert.Equal(t, []store.ScoredMember{
		{Member: "5", Score: 500}, {Member: "4", Score: 400}, {Member: "30", Score: 300}, {Member: "3", Score: 300},
	}, got)

	got, err = s.GetSortedSetRevRangeByScoreWithScores(ctx, k, 1, 2, store.PosInf, 200)
	require.NoError(t, err)
	assert.Equal(t, []store.ScoredMember{{Member: "5", Score: 500}, {Member: "4", Score: 400}}, got)

	got, err = s.GetSortedSetRevRangeByScoreWithScores(ctx, k, 0, 0, store.PosInf, store.NegInf)
	require.NoError(t, err)
	assert.Equal(t, []store.ScoredMember{{Member: "6", Score: 600}}, got)

	got, err = s.GetSortedSetRevRangeByScoreWithScores(ctx, k, 0, -1, 50, store.NegInf)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testDelete(t *testing.T, s store.IndexStore) {
	ctx := context.Background()
	k := key(t, "thing")

	require.NoError(t, s.SetObjectField(ctx, k, "a", "1"))
	require.NoError(t, s.SortedSetAdd(ctx, k, 1, "x"))
	require.NoError(t, s.Delete(ctx, k))

	fields, err := s.GetObjectFields(ctx, k, nil)
	require.NoError(t, err)
	assert.Empty(t, fields)
	members, err := s.GetSortedSetRange(ctx, k, 0, -1)
	require.NoError(t, err)
	assert.Empty(t, members)

	require.NoError(t, s.Delete(ctx, key(t, "never-existed")))
}

func testConcurrentIncrement(t *testing.T, s store.IndexStore) {
	ctx := context.Background()
	k := key(t, "global")
	const workers, perWorker = 8, 25

	var wg sync.WaitGroup
	seen := make(chan int64, workers*perWorker)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				n, err := s.IncrObjectField(ctx, k, "nextPid")
				if !assert.NoError(t, err) {
					return
				}
				seen <- n
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[int64]struct{})
	for n := range seen {
		unique[n] = struct{}{}
	}
	assert.Len(t, unique, workers*perWorker, "every increment returns a distinct id")
}
