package cachekit

import (
	"sync"
	"testing"
	"time"
)

func TestPutAndGet(t *testing.T) {
	c, err := New("t1")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()

	if err := c.Put(NewElement("a", []byte("b"))); err != nil {
		t.Fatal(err)
	}

	e, ok, err := c.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected key to be found")
	}
	if string(e.Value()) != "b" {
		t.Fatalf("expected %q, got %q", "b", e.Value())
	}
}

func TestExpirationByTTL(t *testing.T) {
	c, err := New("t2", WithTimeToLiveSeconds(1))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()

	e := NewElement("a", []byte("b"))
	e.creationTime -= 2000 // backdate past the 1s ttl
	if err := c.PutQuiet(e); err != nil {
		t.Fatal(err)
	}

	_, ok, err := c.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected key to be expired")
	}

	stats := c.Stats()
	if stats.MissCountExpired != 1 {
		t.Fatalf("expected 1 expired miss, got %d", stats.MissCountExpired)
	}
}

// TestExpirationByTTI covers invariant 7 of SPEC_FULL.md §8 and the
// "load-bearing" next_to_last_access_time idle-clock semantics of §4.3: a
// Get within the idle window refreshes the clock (via touch's rotation of
// last-access into next-to-last-access), but a Get after the window has
// elapsed since the last real access must observe an expired miss rather
// than silently extending the window forever.
func TestExpirationByTTI(t *testing.T) {
	c, err := New("t2b", WithTimeToIdleSeconds(1))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()

	e := NewElement("a", []byte("b"))
	e.creationTime -= 2000
	e.lastAccessTime -= 2000
	e.nextToLastAccessTime -= 2000
	if err := c.PutQuiet(e); err != nil {
		t.Fatal(err)
	}

	_, ok, err := c.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected key to be expired by idle time")
	}

	stats := c.Stats()
	if stats.MissCountExpired != 1 {
		t.Fatalf("expected 1 expired miss, got %d", stats.MissCountExpired)
	}
}

func TestNoExpirationWhenEternal(t *testing.T) {
	c, err := New("t3", WithEternal(true), WithTimeToLiveSeconds(1))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()

	e := NewElement("a", []byte("b"))
	e.creationTime -= 5000
	if err := c.PutQuiet(e); err != nil {
		t.Fatal(err)
	}

	_, ok, err := c.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected eternal key to persist regardless of ttl")
	}
}

func TestRemove(t *testing.T) {
	c, err := New("t4")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()

	if err := c.Put(NewElement("a", []byte("b"))); err != nil {
		t.Fatal(err)
	}
	removed, err := c.Remove("a")
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Fatal("expected remove to report true")
	}

	_, ok, err := c.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected key to be gone after remove")
	}
}

// TestConcurrentAccess stress-tests Put/Get from many goroutines at once.
// Run with -race to confirm MemoryStore's single mutex actually serializes
// access to its map and list.
func TestConcurrentAccess(t *testing.T) {
	c, err := New("t5", WithMaxElementsInMemory(1000))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = c.Put(NewElement("key", []byte("value")))
			_, _, _ = c.Get("key")
		}(i)
	}
	wg.Wait()
}

func TestStatsTracking(t *testing.T) {
	c, err := New("t6")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()

	if err := c.Put(NewElement("a", []byte("1"))); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Get("a"); err != nil { // hit
		t.Fatal(err)
	}
	if _, _, err := c.Get("b"); err != nil { // miss
		t.Fatal(err)
	}

	stats := c.Stats()
	if stats.HitCount != 1 {
		t.Fatalf("expected 1 hit, got %d", stats.HitCount)
	}
	if stats.MemoryStoreHitCount != 1 {
		t.Fatalf("expected 1 memory hit, got %d", stats.MemoryStoreHitCount)
	}
	if stats.MissCountNotFound != 1 {
		t.Fatalf("expected 1 not-found miss, got %d", stats.MissCountNotFound)
	}
}

// TestDiskOverflowAndPromotion exercises invariant 5 of SPEC_FULL.md §8: a
// value evicted from memory and later retrieved from disk is promoted back
// into the memory tier.
func TestDiskOverflowAndPromotion(t *testing.T) {
	dir := t.TempDir()
	c, err := New("t7", WithMaxElementsInMemory(1), WithOverflowToDisk(dir))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()

	if err := c.Put(NewElement("a", []byte("first"))); err != nil {
		t.Fatal(err)
	}
	// Capacity is 1: putting "b" evicts "a" into the disk tier's spool.
	if err := c.Put(NewElement("b", []byte("second"))); err != nil {
		t.Fatal(err)
	}

	e, ok, err := c.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected disk-tier hit for evicted key")
	}
	if string(e.Value()) != "first" {
		t.Fatalf("expected %q, got %q", "first", e.Value())
	}

	stats := c.Stats()
	if stats.DiskStoreHitCount != 1 {
		t.Fatalf("expected 1 disk hit, got %d", stats.DiskStoreHitCount)
	}
}

// TestDisposeIsIdempotent covers invariant 10: a second Dispose call must be
// a silent no-op, never a panic or an error surfaced to the caller.
func TestDisposeIsIdempotent(t *testing.T) {
	c, err := New("t8", WithOverflowToDisk(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Dispose(); err != nil {
		t.Fatalf("first dispose: %v", err)
	}
	if err := c.Dispose(); err != nil {
		t.Fatalf("second dispose should be a no-op, got: %v", err)
	}
}

func TestOperationsFailAfterDispose(t *testing.T) {
	c, err := New("t9")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Dispose(); err != nil {
		t.Fatal(err)
	}

	if err := c.Put(NewElement("a", []byte("b"))); err != ErrNotAlive {
		t.Fatalf("expected ErrNotAlive, got %v", err)
	}
	if _, _, err := c.Get("a"); err != ErrNotAlive {
		t.Fatalf("expected ErrNotAlive, got %v", err)
	}
}

func TestGetKeysDeduplicatesAcrossTiers(t *testing.T) {
	dir := t.TempDir()
	c, err := New("t10", WithMaxElementsInMemory(1), WithOverflowToDisk(dir))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()

	if err := c.Put(NewElement("a", []byte("1"))); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(NewElement("b", []byte("2"))); err != nil {
		t.Fatal(err)
	}
	// Let the disk store's spool worker catch up.
	time.Sleep(50 * time.Millisecond)

	keys, err := c.GetKeys()
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 unique keys, got %d: %v", len(keys), keys)
	}
}

// TestGetKeysWithExpiryCheckDoesNotConsumeSpooledKeys pins down a real
// data-loss bug: GetKeysWithExpiryCheck is documented as a read-only probe
// (SPEC_FULL.md §4.3), but a naive implementation built on DiskStore.GetQuiet
// would pop a not-yet-flushed spool entry out of the spool as a side effect
// of inspecting it, silently losing the write. A capacity-1 memory tier
// forces the second Put to overflow straight into the spool before this
// probe ever runs.
func TestGetKeysWithExpiryCheckDoesNotConsumeSpooledKeys(t *testing.T) {
	dir := t.TempDir()
	c, err := New("t11", WithMaxElementsInMemory(1), WithOverflowToDisk(dir))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()

	if err := c.Put(NewElement("a", []byte("first"))); err != nil {
		t.Fatal(err)
	}
	// Evicts "a" into the disk store's spool, ahead of any background flush.
	if err := c.Put(NewElement("b", []byte("second"))); err != nil {
		t.Fatal(err)
	}

	if _, err := c.GetKeysWithExpiryCheck(); err != nil {
		t.Fatal(err)
	}

	e, ok, err := c.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected spooled key to survive GetKeysWithExpiryCheck")
	}
	if string(e.Value()) != "first" {
		t.Fatalf("expected %q, got %q", "first", e.Value())
	}
}
