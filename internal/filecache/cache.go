// Package filecache keeps uploaded documents in memory for a short time so
// that a later request can merge them by id.
//
// The cache is bounded by entry count and by age. When it is full, the entry
// inserted first is dropped, no matter how often it was read. Entries expire a
// fixed time after insertion. Expired entries are removed when they are looked
// up and, if a sweep interval is configured, by a background goroutine.
package filecache

import (
	"container/list"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"example.com/pdfmerge/internal/compression"
)

const (
	DefaultCapacity = 10
	DefaultTTL      = 10 * time.Minute
)

var ErrNotFound = errors.New("filecache: not found")

// Info describes a live entry without exposing its bytes.
type Info struct {
	Key        string
	Size       int
	InsertedAt time.Time
	ExpiresAt  time.Time
	// Remaining is the time left before expiry, measured on the cache's
	// clock when Entries was called.
	Remaining time.Duration
}

type entry struct {
	key        string
	frame      []byte
	size       int
	insertedAt time.Time
}

type Cache struct {
	mu      sync.RWMutex
	entries map[string]*list.Element
	order   *list.List // front = oldest insertion

	capacity int
	ttl      time.Duration
	now      func() time.Time
	codec    *compression.Compressor
	logger   *slog.Logger

	sweepInterval time.Duration
	stop          chan struct{}
	stopOnce      sync.Once
	wg            conc.WaitGroup
}

// New builds a cache and starts its sweeper when one is configured.
func New(opts ...Option) (*Cache, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	codec, err := compression.NewCompressor(o.compressionLevel)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		entries:       make(map[string]*list.Element),
		order:         list.New(),
		capacity:      o.capacity,
		ttl:           o.ttl,
		now:           o.clock,
		codec:         codec,
		logger:        o.logger,
		sweepInterval: o.sweepInterval,
		stop:          make(chan struct{}),
	}

	if c.sweepInterval > 0 {
		c.wg.Go(c.sweepLoop)
	}
	return c, nil
}

// Put stores a private copy of data under a fresh key and returns the key.
func (c *Cache) Put(data []byte) string {
	key := uuid.New().String()
	frame := c.codec.Compress(data)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.removeExpiredLocked(now)
	for c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		c.removeLocked(oldest)
		c.logger.Debug("evicted cached file to make room", "key", oldest.Value.(*entry).key)
	}

	c.entries[key] = c.order.PushBack(&entry{
		key:        key,
		frame:      frame,
		size:       len(data),
		insertedAt: now,
	})
	return key
}

// Get returns a copy of the bytes stored under key. Unknown, evicted and
// expired keys all yield ErrNotFound.
func (c *Cache) Get(key string) ([]byte, error) {
	c.mu.RLock()
	el, ok := c.entries[key]
	var e *entry
	if ok {
		e = el.Value.(*entry)
	}
	now := c.now()
	c.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if c.expired(e, now) {
		c.mu.Lock()
		// The element may already be gone if a sweep or Put raced us.
		if cur, ok := c.entries[key]; ok && cur == el {
			c.removeLocked(el)
		}
		c.mu.Unlock()
		return nil, ErrNotFound
	}

	return c.codec.Decompress(e.frame)
}

// Entries lists live entries, oldest first.
func (c *Cache) Entries() []Info {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	out := make([]Info, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if c.expired(e, now) {
			continue
		}
		out = append(out, Info{
			Key:        e.key,
			Size:       e.size,
			InsertedAt: e.insertedAt,
			ExpiresAt:  e.insertedAt.Add(c.ttl),
			Remaining:  e.insertedAt.Add(c.ttl).Sub(now),
		})
	}
	return out
}

// Len counts stored entries, including expired ones not yet removed.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

// Capacity is the maximum number of entries.
func (c *Cache) Capacity() int { return c.capacity }

// Compressed reports whether entries are stored zstd-compressed.
func (c *Cache) Compressed() bool { return c.codec.Enabled() }

// TTL is the lifetime of an entry.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Sweep removes every expired entry and returns how many were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeExpiredLocked(c.now())
}

// Close stops the sweeper and releases the codec. The cache must not be used
// afterwards.
func (c *Cache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
	return c.codec.Close()
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug("swept expired cached files", "count", n)
			}
		}
	}
}

func (c *Cache) expired(e *entry, now time.Time) bool {
	return now.Sub(e.insertedAt) >= c.ttl
}

// removeExpiredLocked relies on insertion order being expiry order.
func (c *Cache) removeExpiredLocked(now time.Time) int {
	n := 0
	for el := c.order.Front(); el != nil; el = c.order.Front() {
		if !c.expired(el.Value.(*entry), now) {
			break
		}
		c.removeLocked(el)
		n++
	}
	return n
}

func (c *Cache) removeLocked(el *list.Element) {
	e := c.order.Remove(el).(*entry)
	delete(c.entries, e.key)
}
