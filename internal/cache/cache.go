package cache

// This code has been adapted from github.com/patrickmn/go-cache

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

type item[V any] struct {
	value      V
	expiration int64
	age        atomic.Int64 // last access, refreshed under the read lock
}

func (it *item[V]) expired(now int64) bool {
	return it.expiration > 0 && now > it.expiration
}

const (
	// NoExpiration keeps an item until it is evicted or deleted.
	NoExpiration time.Duration = -1
	// DefaultExpiration uses the expiration given to New.
	DefaultExpiration time.Duration = 0
)

// Cache is a size-bounded map with per-item expiration. When full, Set
// replaces an expired item or the least recently used one.
type Cache[V any] struct {
	*cache[V]
}

type cache[V any] struct {
	defaultExpiration time.Duration
	items             map[string]*item[V]
	mu                sync.RWMutex
	janitor           *janitor
	size              int
	hits, misses      atomic.Int64
}

// Set adds or replaces k.
func (c *cache[V]) Set(k string, v V, d time.Duration) {
	var e int64
	if d == DefaultExpiration {
		d = c.defaultExpiration
	}
	if d > 0 {
		e = time.Now().Add(d).UnixNano()
	}
	it := &item[V]{value: v, expiration: e}
	it.age.Store(time.Now().UnixNano())

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, found := c.items[k]; !found && len(c.items) >= c.size {
		delete(c.items, c.findLRU())
	}
	c.items[k] = it
}

// findLRU returns an expired key or the least recently used one. The caller
// holds the write lock.
func (c *cache[V]) findLRU() string {
	now := time.Now().UnixNano()
	victim := ""
	oldest := int64(-1)
	for k, it := range c.items {
		if it.expired(now) {
			return k
		}
		if idle := now - it.age.Load(); idle > oldest {
			victim = k
			oldest = idle
		}
	}
	return victim
}

// Get returns the value of k and refreshes its age.
func (c *cache[V]) Get(k string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, found := c.items[k]
	if !found || it.expired(time.Now().UnixNano()) {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	it.age.Store(time.Now().UnixNano())
	c.hits.Add(1)
	return it.value, true
}

func (c *cache[V]) Delete(k string) {
	c.mu.Lock()
	delete(c.items, k)
	c.mu.Unlock()
}

// DeleteExpired drops every expired item.
func (c *cache[V]) DeleteExpired() {
	now := time.Now().UnixNano()
	c.mu.Lock()
	for k, it := range c.items {
		if it.expired(now) {
			delete(c.items, k)
		}
	}
	c.mu.Unlock()
}

func (c *cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns the hit and miss counters.
func (c *cache[V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

type janitor struct {
	interval time.Duration
	stop     chan bool
}

type expirer interface {
	DeleteExpired()
}

func (j *janitor) run(c expirer) {
	ticker := time.NewTicker(j.interval)
	for {
		select {
		case <-ticker.C:
			c.DeleteExpired()
		case <-j.stop:
			ticker.Stop()
			return
		}
	}
}

func stopJanitor[V any](c *Cache[V]) {
	c.janitor.stop <- true
}

// New returns a cache of at most size items. Items expire after
// defaultExpiration unless Set says otherwise; a cleanup interval below one
// disables the background janitor.
func New[V any](defaultExpiration, cleanupInterval time.Duration, size int) *Cache[V] {
	if defaultExpiration == 0 {
		defaultExpiration = NoExpiration
	}
	if size < 1 {
		size = 1
	}
	c := &cache[V]{
		defaultExpiration: defaultExpiration,
		items:             make(map[string]*item[V]),
		size:              size,
	}
	C := &Cache[V]{c}
	if cleanupInterval > 0 {
		c.janitor = &janitor{interval: cleanupInterval, stop: make(chan bool)}
		go c.janitor.run(c)
		runtime.SetFinalizer(C, stopJanitor[V])
	}
	return C
}
