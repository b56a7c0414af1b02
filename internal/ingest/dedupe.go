package ingest

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultDedupeSize = 10000

// DedupeCache drops identical raw lines seen twice within a TTL, such as a
// message that arrives through both the file tail and syslog.
type DedupeCache struct {
	mu    sync.Mutex
	items *lru.Cache[string, time.Time]
}

func NewDedupeCache(size int) *DedupeCache {
	if size <= 0 {
		size = defaultDedupeSize
	}
	items, _ := lru.New[string, time.Time](size)
	return &DedupeCache{items: items}
}

func (d *DedupeCache) Seen(key string, now time.Time, ttl time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ts, ok := d.items.Get(key); ok && now.Sub(ts) <= ttl {
		return true
	}
	d.items.Add(key, now)
	return false
}

func (d *DedupeCache) Len() int {
	return d.items.Len()
}
