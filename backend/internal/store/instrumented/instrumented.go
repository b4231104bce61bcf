// Package instrumented records per-operation Prometheus metrics around
// another IndexStore.
package instrumented

import (
	"context"
	"time"

	"github.com/itchan-dev/itforum/backend/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "itforum",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of store operations",
		},
		[]string{"backend", "op", "result"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "itforum",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Store operation duration in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"backend", "op"},
	)
)

type Store struct {
	inner   store.IndexStore
	backend string
}

func New(inner store.IndexStore, backend string) *Store {
	return &Store{inner: inner, backend: backend}
}

func (s *Store) observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	operationsTotal.WithLabelValues(s.backend, op, result).Inc()
	operationDuration.WithLabelValues(s.backend, op).Observe(time.Since(start).Seconds())
}

func (s *Store) GetObjectField(ctx context.Context, key, field string) (v string, err error) {
	defer func(start time.Time) { s.observe("getObjectField", start, err) }(time.Now())
	return s.inner.GetObjectField(ctx, key, field)
}

func (s *Store) GetObjectFields(ctx context.Context, key string, fields []string) (m map[string]string, err error) {
	defer func(start time.Time) { s.observe("getObjectFields", start, err) }(time.Now())
	return s.inner.GetObjectFields(ctx, key, fields)
}

func (s *Store) GetObjectsFields(ctx context.Context, keys []string, fields []string) (m []map[string]string, err error) {
	defer func(start time.Time) { s.observe("getObjectsFields", start, err) }(time.Now())
	return s.inner.GetObjectsFields(ctx, keys, fields)
}

func (s *Store) SetObjectField(ctx context.Context, key, field, value string) (err error) {
	defer func(start time.Time) { s.observe("setObjectField", start, err) }(time.Now())
	return s.inner.SetObjectField(ctx, key, field, value)
}

func (s *Store) SetObject(ctx context.Context, key string, values map[string]string) (err error) {
	defer func(start time.Time) { s.observe("setObject", start, err) }(time.Now())
	return s.inner.SetObject(ctx, key, values)
}

func (s *Store) IncrObjectField(ctx context.Context, key, field string) (n int64, err error) {
	defer func(start time.Time) { s.observe("incrObjectField", start, err) }(time.Now())
	return s.inner.IncrObjectField(ctx, key, field)
}

func (s *Store) IncrObjectFieldBy(ctx context.Context, key, field string, by int64) (n int64, err error) {
	defer func(start time.Time) { s.observe("incrObjectFieldBy", start, err) }(time.Now())
	return s.inner.IncrObjectFieldBy(ctx, key, field, by)
}

func (s *Store) SortedSetAdd(ctx context.Context, key string, score float64, member string) (err error) {
	defer func(start time.Time) { s.observe("sortedSetAdd", start, err) }(time.Now())
	return s.inner.SortedSetAdd(ctx, key, score, member)
}

func (s *Store) SortedSetsAdd(ctx context.Context, keys []string, score float64, member string) (err error) {
	defer func(start time.Time) { s.observe("sortedSetsAdd", start, err) }(time.Now())
	return s.inner.SortedSetsAdd(ctx, keys, score, member)
}

func (s *Store) SortedSetRaise(ctx context.Context, key string, entries []store.ScoredMember) (err error) {
	defer func(start time.Time) { s.observe("sortedSetRaise", start, err) }(time.Now())
	return s.inner.SortedSetRaise(ctx, key, entries)
}

func (s *Store) SortedSetIncrBy(ctx context.Context, key string, by float64, member string) (v float64, err error) {
	defer func(start time.Time) { s.observe("sortedSetIncrBy", start, err) }(time.Now())
	return s.inner.SortedSetIncrBy(ctx, key, by, member)
}

func (s *Store) SortedSetScores(ctx context.Context, key string, members []string) (scores []store.Score, err error) {
	defer func(start time.Time) { s.observe("sortedSetScores", start, err) }(time.Now())
	return s.inner.SortedSetScores(ctx, key, members)
}

func (s *Store) IsSortedSetMember(ctx context.Context, key, member string) (ok bool, err error) {
	defer func(start time.Time) { s.observe("isSortedSetMember", start, err) }(time.Now())
	return s.inner.IsSortedSetMember(ctx, key, member)
}

func (s *Store) GetSortedSetRange(ctx context.Context, key string, start, stop int) (members []string, err error) {
	defer func(t time.Time) { s.observe("getSortedSetRange", t, err) }(time.Now())
	return s.inner.GetSortedSetRange(ctx, key, start, stop)
}

func (s *Store) GetSortedSetRevRange(ctx context.Context, key string, start, stop int) (members []string, err error) {
	defer func(t time.Time) { s.observe("getSortedSetRevRange", t, err) }(time.Now())
	return s.inner.GetSortedSetRevRange(ctx, key, start, stop)
}

func (s *Store) GetSortedSetRevRangeByScoreWithScores(ctx context.Context, key string, start, stop int, max, min float64) (entries []store.ScoredMember, err error) {
	defer func(t time.Time) { s.observe("getSortedSetRevRangeByScoreWithScores", t, err) }(time.Now())
	return s.inner.GetSortedSetRevRangeByScoreWithScores(ctx, key, start, stop, max, min)
}

func (s *Store) Delete(ctx context.Context, key string) (err error) {
	defer func(start time.Time) { s.observe("delete", start, err) }(time.Now())
	return s.inner.Delete(ctx, key)
}

func (s *Store) Ping(ctx context.Context) (err error) {
	defer func(start time.Time) { s.observe("ping", start, err) }(time.Now())
	return s.inner.Ping(ctx)
}

func (s *Store) Close() error {
	return s.inner.Close()
}
