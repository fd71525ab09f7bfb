package cachekit

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// cacheState is the UNINITIALISED -> ALIVE -> DISPOSED state machine of
// SPEC_FULL.md §4.3. A Cache is only ever observed at ALIVE or DISPOSED by
// callers of New, which builds the stores synchronously.
type cacheState int32

const (
	stateUninitialised cacheState = iota
	stateAlive
	stateDisposed
)

// Cache is the composite, two-tier cache engine of SPEC_FULL.md §4.3: a
// bounded MemoryStore in front of an optional overflow DiskStore, with
// lookup promotion, a shared expiry predicate, and monotonic statistics.
//
// Cache generalizes the teacher's single-tier Cache (cache.go): the same
// lock-per-store discipline and LRU structure apply, but eviction from
// memory now has three outcomes (drop-expired, spool-to-disk, drop) instead
// of one, and a miss in memory falls through to disk before being reported.
type Cache struct {
	name   string
	policy ExpiryPolicy

	overflowToDisk bool
	diskPersistent bool

	memory *MemoryStore
	disk   *DiskStore

	logger *zap.Logger
	state  atomic.Int32

	stats cacheStats
}

// New builds a Cache named name from the given Options and brings it to the
// ALIVE state. If WithOverflowToDisk was supplied, the disk tier is opened
// (or restored) synchronously, per the persistence protocol in
// SPEC_FULL.md §4.1.
func New(name string, opts ...Option) (*Cache, error) {
	cfg := defaultCacheConfig(name)
	for _, opt := range opts {
		opt(cfg)
	}
	return newCacheFromConfig(cfg)
}

func newCacheFromConfig(cfg *cacheConfig) (*Cache, error) {
	policy := ExpiryPolicy{
		Eternal:    cfg.eternal,
		TTLSeconds: cfg.ttlSeconds,
		TTISeconds: cfg.ttiSeconds,
	}

	c := &Cache{
		name:           cfg.name,
		policy:         policy,
		overflowToDisk: cfg.overflowToDisk,
		diskPersistent: cfg.diskPersistent,
		logger:         cfg.logger,
	}
	c.state.Store(int32(stateAlive))
	c.memory = NewMemoryStore(cfg.maxElementsInMemory, c.handleMemoryEviction, cfg.logger)

	if cfg.overflowToDisk {
		ds, err := OpenDiskStore(cfg.name, cfg.diskCachePath, DiskStoreOptions{
			Persistent:            cfg.diskPersistent,
			Policy:                policy,
			ExpiryIntervalSeconds: cfg.diskExpirySec,
			Logger:                cfg.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("cachekit: opening disk store for cache %q: %w", cfg.name, err)
		}
		c.disk = ds
	}

	return c, nil
}

// Name returns the cache's name, also used as its disk file prefix.
func (c *Cache) Name() string { return c.name }

func (c *Cache) isAlive() bool {
	return cacheState(c.state.Load()) == stateAlive
}

// IsExpired reports whether e is expired under this cache's policy, per the
// predicate in SPEC_FULL.md §4.3.
func (c *Cache) IsExpired(e *Element) bool {
	return isExpired(c.policy, e, nowMillis())
}

// handleMemoryEviction is MemoryStore's onEvict hook: it implements the
// three-way decision of SPEC_FULL.md §4.2 for a candidate evicted from the
// memory tier.
func (c *Cache) handleMemoryEviction(candidate *Element) {
	if isExpired(c.policy, candidate, nowMillis()) {
		return
	}
	if c.overflowToDisk {
		if err := c.disk.Put(candidate); err != nil {
			c.logger.Error("failed to spool evicted element to disk",
				zap.String("cache", c.name), zap.String("key", candidate.Key()), zap.Error(err))
		}
		return
	}
	// No overflow configured: the candidate is simply dropped.
}

// Put stores e, treating it as a fresh insert: its access statistics are
// reset as if just created. A nil element is a caller error.
func (c *Cache) Put(e *Element) error {
	if !c.isAlive() {
		return ErrNotAlive
	}
	if e == nil {
		return ErrNilElement
	}
	e.resetStats()
	c.memory.Put(e)
	return nil
}

// PutQuiet behaves like Put but preserves e's existing access statistics
// instead of resetting them.
func (c *Cache) PutQuiet(e *Element) error {
	if !c.isAlive() {
		return ErrNotAlive
	}
	if e == nil {
		return ErrNilElement
	}
	c.memory.Put(e)
	return nil
}

// Get looks up key, falling through to the disk tier on a memory miss when
// overflow is enabled, and promotes a disk hit back into memory to refresh
// cross-tier recency. An expired element found on either tier is removed
// from both tiers synchronously and reported as a miss, never as an error.
func (c *Cache) Get(key string) (*Element, bool, error) {
	return c.get(key, false)
}

// GetQuiet behaves like Get but never updates an element's access
// bookkeeping; cache-level statistics still update.
func (c *Cache) GetQuiet(key string) (*Element, bool, error) {
	return c.get(key, true)
}

func (c *Cache) get(key string, quiet bool) (*Element, bool, error) {
	if !c.isAlive() {
		return nil, false, ErrNotAlive
	}

	var (
		e  *Element
		ok bool
	)
	if quiet {
		e, ok = c.memory.GetQuiet(key)
	} else {
		e, ok = c.memory.Get(key)
	}

	if ok {
		if c.IsExpired(e) {
			c.memory.Remove(key)
			if c.overflowToDisk {
				_, _ = c.disk.Remove(key)
			}
			c.stats.missExpired.Add(1)
			return nil, false, nil
		}
		c.stats.hitCount.Add(1)
		c.stats.memoryHitCount.Add(1)
		return e, true, nil
	}

	if !c.overflowToDisk {
		c.stats.missNotFound.Add(1)
		return nil, false, nil
	}

	var diskErr error
	if quiet {
		e, ok, diskErr = c.disk.GetQuiet(key)
	} else {
		e, ok, diskErr = c.disk.Get(key)
	}
	if diskErr != nil {
		return nil, false, fmt.Errorf("cachekit: disk lookup for %q: %w", key, diskErr)
	}
	if !ok {
		c.stats.missNotFound.Add(1)
		return nil, false, nil
	}

	if c.IsExpired(e) {
		_, _ = c.disk.Remove(key)
		c.stats.missExpired.Add(1)
		return nil, false, nil
	}

	// Promotion: re-insert into memory to refresh cross-tier recency
	// (invariant 5 of SPEC_FULL.md §8). This does not go through Put, so
	// the element's own access history (just updated above) is preserved.
	c.memory.Put(e)

	c.stats.hitCount.Add(1)
	c.stats.diskHitCount.Add(1)
	return e, true, nil
}

// Remove deletes key from both tiers, reporting whether either reported a
// removal.
func (c *Cache) Remove(key string) (bool, error) {
	if !c.isAlive() {
		return false, ErrNotAlive
	}

	removedMem := c.memory.Remove(key)
	removedDisk := false
	if c.overflowToDisk {
		removedDisk, _ = c.disk.Remove(key)
	}
	return removedMem || removedDisk, nil
}

// RemoveAll clears both tiers.
func (c *Cache) RemoveAll() error {
	if !c.isAlive() {
		return ErrNotAlive
	}
	c.memory.RemoveAll()
	if c.overflowToDisk {
		return c.disk.RemoveAll()
	}
	return nil
}

// GetKeys returns the deduplicated union of memory and disk keys
// (invariant 9 of SPEC_FULL.md §8).
func (c *Cache) GetKeys() ([]string, error) {
	if !c.isAlive() {
		return nil, ErrNotAlive
	}

	memKeys := c.memory.Keys()
	if !c.overflowToDisk {
		return memKeys, nil
	}
	diskKeys := c.disk.Keys()

	seen := make(map[string]struct{}, len(memKeys)+len(diskKeys))
	out := make([]string, 0, len(memKeys)+len(diskKeys))
	for _, k := range memKeys {
		if _, dup := seen[k]; !dup {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	for _, k := range diskKeys {
		if _, dup := seen[k]; !dup {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out, nil
}

// GetKeysNoDuplicateCheck concatenates memory and disk keys without
// deduplicating, trading correctness for speed per SPEC_FULL.md §4.3.
func (c *Cache) GetKeysNoDuplicateCheck() ([]string, error) {
	if !c.isAlive() {
		return nil, ErrNotAlive
	}
	memKeys := c.memory.Keys()
	if !c.overflowToDisk {
		return memKeys, nil
	}
	return append(memKeys, c.disk.KeysNoDuplicateCheck()...), nil
}

// GetKeysWithExpiryCheck returns GetKeys filtered by a quiet per-key expiry
// probe; the probe updates no statistics and, critically, does not consume a
// key sitting in the disk store's spool (a Put not yet flushed to the data
// file) — it uses DiskStore.PeekQuiet rather than GetQuiet/Get, both of which
// pop a spooled entry out of the spool as part of serving it.
func (c *Cache) GetKeysWithExpiryCheck() ([]string, error) {
	keys, err := c.GetKeys()
	if err != nil {
		return nil, err
	}

	now := nowMillis()
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		e, ok := c.memory.GetQuiet(k)
		if !ok && c.overflowToDisk {
			e, ok, _ = c.disk.PeekQuiet(k)
		}
		if ok && !isExpired(c.policy, e, now) {
			out = append(out, k)
		}
	}
	return out, nil
}

// Size returns len(GetKeys()): the unique key count, which may include
// expired-but-not-yet-reaped entries.
func (c *Cache) Size() (int, error) {
	keys, err := c.GetKeys()
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Dispose transitions the cache to DISPOSED: the memory store spools every
// element to disk first if the disk tier is persistent, then the disk store
// itself is disposed. Calling Dispose more than once is a no-op on every
// call after the first (invariant 10 of SPEC_FULL.md §8 and the
// double-dispose hazard resolved in DESIGN.md).
func (c *Cache) Dispose() error {
	if !c.state.CompareAndSwap(int32(stateAlive), int32(stateDisposed)) {
		return nil
	}

	var spoolFn func(*Element)
	if c.overflowToDisk && c.diskPersistent {
		spoolFn = func(e *Element) {
			if err := c.disk.Put(e); err != nil {
				c.logger.Error("failed to spool memory element on dispose",
					zap.String("cache", c.name), zap.String("key", e.Key()), zap.Error(err))
			}
		}
	}
	c.memory.Dispose(spoolFn)

	if c.overflowToDisk {
		return c.disk.Dispose()
	}
	return nil
}
