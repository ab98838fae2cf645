package filecache

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	c, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPutGet(t *testing.T) {
	for _, level := range []int{0, 1} {
		t.Run(fmt.Sprintf("compression=%d", level), func(t *testing.T) {
			c := newTestCache(t, WithCompression(level))

			data := bytes.Repeat([]byte("%PDF-1.4 page content "), 50)
			key := c.Put(data)
			if key == "" {
				t.Fatal("empty key")
			}

			got, err := c.Get(key)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Error("Get returned different bytes")
			}
		})
	}
}

func TestPutGeneratesDistinctKeys(t *testing.T) {
	c := newTestCache(t, WithCapacity(100))
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		k := c.Put([]byte{byte(i)})
		if seen[k] {
			t.Fatalf("duplicate key %q", k)
		}
		seen[k] = true
	}
}

func TestStoredBytesAreImmutable(t *testing.T) {
	c := newTestCache(t)

	data := []byte("original")
	key := c.Put(data)
	data[0] = 'X'

	got, _ := c.Get(key)
	got[1] = 'Y'

	again, err := c.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != "original" {
		t.Errorf("stored bytes changed: %q", again)
	}
}

func TestCompressed(t *testing.T) {
	if newTestCache(t).Compressed() {
		t.Error("default cache reports compression")
	}
	if !newTestCache(t, WithCompression(2)).Compressed() {
		t.Error("level 2 cache reports no compression")
	}
}

func TestGetUnknownKey(t *testing.T) {
	c := newTestCache(t)
	if _, err := c.Get("no-such-key"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCapacityEvictsOldestInsertion(t *testing.T) {
	const capacity = 3
	c := newTestCache(t, WithCapacity(capacity))

	keys := make([]string, 0, capacity+1)
	for i := 0; i < capacity; i++ {
		keys = append(keys, c.Put([]byte{byte(i)}))
	}

	// Reading the oldest entry must not protect it: eviction follows
	// insertion order.
	if _, err := c.Get(keys[0]); err != nil {
		t.Fatal(err)
	}

	keys = append(keys, c.Put([]byte{byte(capacity)}))

	if _, err := c.Get(keys[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("oldest key still present, err = %v", err)
	}
	for _, k := range keys[1:] {
		if _, err := c.Get(k); err != nil {
			t.Errorf("Get(%s): %v", k, err)
		}
	}
	if c.Len() != capacity {
		t.Errorf("Len = %d, want %d", c.Len(), capacity)
	}
}

func TestDefaultCapacity(t *testing.T) {
	c := newTestCache(t)

	first := c.Put([]byte("first"))
	for i := 0; i < DefaultCapacity; i++ {
		c.Put([]byte{byte(i)})
	}
	if _, err := c.Get(first); !errors.Is(err, ErrNotFound) {
		t.Errorf("after %d inserts the first key is still present", DefaultCapacity+1)
	}
}

func TestExpiry(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, WithTTL(10*time.Minute), WithClock(clock.Now))

	key := c.Put([]byte("soon gone"))

	clock.Advance(9 * time.Minute)
	if _, err := c.Get(key); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}

	clock.Advance(2 * time.Minute)
	if _, err := c.Get(key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after expiry err = %v, want ErrNotFound", err)
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not removed on access, Len = %d", c.Len())
	}
}

func TestExpiryIgnoresAccess(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, WithTTL(time.Minute), WithClock(clock.Now))

	key := c.Put([]byte("x"))
	for i := 0; i < 5; i++ {
		clock.Advance(10 * time.Second)
		if _, err := c.Get(key); err != nil {
			t.Fatal(err)
		}
	}
	clock.Advance(15 * time.Second)
	if _, err := c.Get(key); !errors.Is(err, ErrNotFound) {
		t.Errorf("reads extended the lifetime, err = %v", err)
	}
}

func TestSweep(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, WithTTL(time.Minute), WithClock(clock.Now), WithCapacity(10))

	c.Put([]byte("a"))
	c.Put([]byte("b"))
	clock.Advance(30 * time.Second)
	young := c.Put([]byte("c"))
	clock.Advance(45 * time.Second)

	if n := c.Sweep(); n != 2 {
		t.Errorf("Sweep removed %d, want 2", n)
	}
	if _, err := c.Get(young); err != nil {
		t.Errorf("young entry swept: %v", err)
	}
}

func TestBackgroundSweep(t *testing.T) {
	c := newTestCache(t, WithTTL(20*time.Millisecond), WithSweepInterval(5*time.Millisecond))
	c.Put([]byte("a"))

	deadline := time.Now().Add(2 * time.Second)
	for c.Len() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not remove the expired entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEntries(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, WithTTL(time.Minute), WithClock(clock.Now))

	start := clock.Now()
	a := c.Put([]byte("aaaa"))
	clock.Advance(time.Second)
	b := c.Put([]byte("bb"))

	want := []Info{
		{Key: a, Size: 4, InsertedAt: start, ExpiresAt: start.Add(time.Minute), Remaining: 59 * time.Second},
		{Key: b, Size: 2, InsertedAt: start.Add(time.Second), ExpiresAt: start.Add(time.Second + time.Minute), Remaining: time.Minute},
	}
	if diff := cmp.Diff(want, c.Entries()); diff != "" {
		t.Errorf("Entries mismatch (-want +got):\n%s", diff)
	}

	clock.Advance(59 * time.Second)
	if got := c.Entries(); len(got) != 1 || got[0].Key != b {
		t.Errorf("Entries after first expiry = %+v", got)
	}
}

func TestConcurrentPutGet(t *testing.T) {
	c := newTestCache(t, WithCapacity(16), WithCompression(1))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				data := []byte(fmt.Sprintf("worker-%d-doc-%d", w, i))
				key := c.Put(data)
				got, err := c.Get(key)
				if errors.Is(err, ErrNotFound) {
					// Evicted by other writers in between; allowed.
					continue
				}
				if err != nil {
					t.Errorf("Get: %v", err)
					return
				}
				if !bytes.Equal(got, data) {
					t.Errorf("key %s bound to %q, want %q", key, got, data)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if c.Len() > 16 {
		t.Errorf("Len = %d exceeds capacity", c.Len())
	}
}
