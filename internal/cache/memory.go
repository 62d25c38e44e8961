package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/habla/internal/audio"
)

// AudioCache is a bounded LRU of playable speech keyed by message audio
// key. Entries marked playing are never evicted.
type AudioCache struct {
	capacity int

	// LRU implementation
	items    map[string]*list.Element
	eviction *list.List

	backing Store
	logger  *log.Logger

	mu    sync.Mutex
	stats CacheStats
}

// audioEntry represents an entry in the memory cache
type audioEntry struct {
	key      string
	res      *audio.Resource
	size     int64
	lastUsed time.Time
	playing  bool
}

// Option configures an AudioCache.
type Option func(*AudioCache)

// WithBacking sets a second-level store consulted on misses and written
// through on puts.
func WithBacking(s Store) Option {
	return func(c *AudioCache) { c.backing = s }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *AudioCache) { c.logger = l }
}

// NewAudioCache creates a cache holding at most capacity entries.
func NewAudioCache(capacity int, opts ...Option) *AudioCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &AudioCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
		logger:   log.Default().WithPrefix("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stats.Capacity = int64(capacity)
	return c
}

// Get returns the resource for key and marks it most recently used. On a
// miss the backing store, if any, is consulted and the entry promoted.
// Disk reads happen outside the lock.
func (c *AudioCache) Get(key string) (*audio.Resource, bool) {
	c.mu.Lock()
	if res, ok := c.touchLocked(key); ok {
		c.stats.Hits++
		c.mu.Unlock()
		return res, true
	}
	c.stats.Misses++
	c.mu.Unlock()

	if c.backing == nil {
		return nil, false
	}
	data, mime, ok := c.backing.Get(key)
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another caller may have filled the key while we read the disk.
	if res, ok := c.touchLocked(key); ok {
		return res, true
	}
	res, cached := c.insertLocked(key, data, mime)
	if !cached {
		// Every slot is playing; the caller owns the handle.
		return res, false
	}
	c.stats.DiskHits++
	return res, true
}

// Put stores data under key and returns its handle. cached reports whether
// the cache owns the handle; when false the caller must release it. A key
// that is already present returns the existing handle.
func (c *AudioCache) Put(key string, data []byte, mime string) (res *audio.Resource, cached bool) {
	c.mu.Lock()
	if res, ok := c.touchLocked(key); ok {
		c.mu.Unlock()
		return res, true
	}
	res, cached = c.insertLocked(key, data, mime)
	c.mu.Unlock()

	// The resource never mutates data, so the write-through can read it
	// without the lock.
	if cached && c.backing != nil {
		if err := c.backing.Put(key, data, mime); err != nil {
			c.logger.Debug("disk cache write failed", "key", key, "err", err)
		}
	}
	return res, cached
}

// touchLocked returns the entry for key and marks it most recently used.
func (c *AudioCache) touchLocked(key string) (*audio.Resource, bool) {
	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.eviction.MoveToFront(elem)
	entry := elem.Value.(*audioEntry)
	entry.lastUsed = time.Now()
	return entry.res, true
}

// insertLocked adds a new entry, evicting as needed.
func (c *AudioCache) insertLocked(key string, data []byte, mime string) (*audio.Resource, bool) {
	for c.eviction.Len() >= c.capacity {
		if !c.evictOldestLocked() {
			c.stats.Throwaways++
			c.logger.Debug("all entries playing, serving uncached handle", "key", key)
			return audio.NewResource(data, mime), false
		}
	}

	res := audio.NewResource(data, mime)
	entry := &audioEntry{
		key:      key,
		res:      res,
		size:     int64(len(data)),
		lastUsed: time.Now(),
	}
	c.items[key] = c.eviction.PushFront(entry)
	c.stats.Size += entry.size
	return res, true
}

// MarkPlaying sets or clears eviction protection for key.
func (c *AudioCache) MarkPlaying(key string, playing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*audioEntry).playing = playing
	}
}

// Owns reports whether res is the handle cached under key.
func (c *AudioCache) Owns(key string, res *audio.Resource) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	return ok && elem.Value.(*audioEntry).res == res
}

// Clear releases every handle and empties the cache. Playing entries are
// released too; callers stop playback first.
func (c *AudioCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for elem := c.eviction.Front(); elem != nil; elem = elem.Next() {
		elem.Value.(*audioEntry).res.Release()
	}
	c.items = make(map[string]*list.Element)
	c.eviction.Init()
	c.stats.Size = 0
}

// ClearDisk empties the backing store, if any.
func (c *AudioCache) ClearDisk() error {
	if c.backing == nil {
		return nil
	}
	return c.backing.Clear()
}

// Len returns the number of cached entries.
func (c *AudioCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eviction.Len()
}

// Contains checks if a key exists in the cache without updating LRU.
func (c *AudioCache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// Resize changes the capacity, evicting non-playing entries as needed.
func (c *AudioCache) Resize(capacity int) {
	if capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.capacity = capacity
	c.stats.Capacity = int64(capacity)
	for c.eviction.Len() > c.capacity {
		if !c.evictOldestLocked() {
			break
		}
	}
}

// Stats returns cache statistics.
func (c *AudioCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.ItemCount = int64(c.eviction.Len())
	for elem := c.eviction.Front(); elem != nil; elem = elem.Next() {
		if elem.Value.(*audioEntry).playing {
			stats.Playing++
		}
	}
	if stats.Hits+stats.Misses > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.Hits+stats.Misses)
	}
	return stats
}

// evictOldestLocked removes the least recently used entry that is not
// playing. It reports false when every entry is playing.
func (c *AudioCache) evictOldestLocked() bool {
	for elem := c.eviction.Back(); elem != nil; elem = elem.Prev() {
		entry := elem.Value.(*audioEntry)
		if entry.playing {
			continue
		}
		c.eviction.Remove(elem)
		delete(c.items, entry.key)
		c.stats.Size -= entry.size
		c.stats.Evictions++
		c.stats.LastEvict = time.Now()
		entry.res.Release()
		return true
	}
	return false
}
