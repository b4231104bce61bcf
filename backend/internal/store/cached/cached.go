// Package cached puts an LRU of whole object records in front of another
// IndexStore. Ordered sets are never cached, they change on every post.
package cached

import (
	"context"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/itchan-dev/itforum/backend/internal/store"
)

type Cached struct {
	store.IndexStore
	records *lru.Cache[string, map[string]string]
	// bumped by every object write; a fill that raced a write is dropped
	epoch atomic.Uint64
	// orders the epoch check and Add of a fill against invalidate
	fillMu sync.Mutex
}

func New(inner store.IndexStore, size int) (*Cached, error) {
	records, err := lru.New[string, map[string]string](size)
	if err != nil {
		return nil, err
	}
	return &Cached{IndexStore: inner, records: records}, nil
}

func pick(record map[string]string, fields []string) map[string]string {
	result := make(map[string]string, len(record))
	if fields == nil {
		for f, v := range record {
			result[f] = v
		}
		return result
	}
	for _, f := range fields {
		if v, ok := record[f]; ok {
			result[f] = v
		}
	}
	return result
}

func (c *Cached) invalidate(key string) {
	c.fillMu.Lock()
	defer c.fillMu.Unlock()
	c.epoch.Add(1)
	c.records.Remove(key)
}

// fill caches records read from the inner store unless a write landed since
// epoch was taken.
func (c *Cached) fill(epoch uint64, keys []string, records []map[string]string) {
	c.fillMu.Lock()
	defer c.fillMu.Unlock()
	if c.epoch.Load() != epoch {
		return
	}
	for j, key := range keys {
		// absent records are not cached so a later create is seen at once
		if len(records[j]) > 0 {
			c.records.Add(key, records[j])
		}
	}
}

func (c *Cached) GetObjectField(ctx context.Context, key, field string) (string, error) {
	fields, err := c.GetObjectFields(ctx, key, []string{field})
	if err != nil {
		return "", err
	}
	return fields[field], nil
}

func (c *Cached) GetObjectFields(ctx context.Context, key string, fields []string) (map[string]string, error) {
	result, err := c.GetObjectsFields(ctx, []string{key}, fields)
	if err != nil {
		return nil, err
	}
	return result[0], nil
}

func (c *Cached) GetObjectsFields(ctx context.Context, keys []string, fields []string) ([]map[string]string, error) {
	result := make([]map[string]string, len(keys))
	var missing []string
	missingAt := make(map[string][]int)
	for i, key := range keys {
		if record, ok := c.records.Get(key); ok {
			result[i] = pick(record, fields)
			continue
		}
		if _, seen := missingAt[key]; !seen {
			missing = append(missing, key)
		}
		missingAt[key] = append(missingAt[key], i)
	}
	if len(missing) == 0 {
		return result, nil
	}

	epoch := c.epoch.Load()
	records, err := c.IndexStore.GetObjectsFields(ctx, missing, nil)
	if err != nil {
		return nil, err
	}
	c.fill(epoch, missing, records)
	for j, key := range missing {
		for _, i := range missingAt[key] {
			result[i] = pick(records[j], fields)
		}
	}
	return result, nil
}

func (c *Cached) SetObjectField(ctx context.Context, key, field, value string) error {
	defer c.invalidate(key)
	return c.IndexStore.SetObjectField(ctx, key, field, value)
}

func (c *Cached) SetObject(ctx context.Context, key string, values map[string]string) error {
	defer c.invalidate(key)
	return c.IndexStore.SetObject(ctx, key, values)
}

func (c *Cached) IncrObjectField(ctx context.Context, key, field string) (int64, error) {
	defer c.invalidate(key)
	return c.IndexStore.IncrObjectField(ctx, key, field)
}

func (c *Cached) IncrObjectFieldBy(ctx context.Context, key, field string, by int64) (int64, error) {
	defer c.invalidate(key)
	return c.IndexStore.IncrObjectFieldBy(ctx, key, field, by)
}

func (c *Cached) Delete(ctx context.Context, key string) error {
	defer c.invalidate(key)
	return c.IndexStore.Delete(ctx, key)
}

// Len is the number of cached records.
func (c *Cached) Len() int {
	return c.records.Len()
}
