package cachekit

import (
	"container/list"
	"sync"

	"go.uber.org/zap"
)

// MemoryStore is the bounded, recency-ordered in-memory tier of §4.2. It
// generalizes the teacher's eviction.go/cache.go LRU (a map threaded through
// a container/list, moved to front on access) by replacing the teacher's
// unconditional "delete on eviction" with a caller-supplied hook that
// decides whether an evicted candidate is dropped, spooled to disk, or
// dropped because it was already expired.
type MemoryStore struct {
	mu         sync.Mutex
	data       map[string]*list.Element
	order      *list.List // each element's Value is a *Element
	maxEntries int
	onEvict    func(candidate *Element)
	logger     *zap.Logger
}

// NewMemoryStore constructs a MemoryStore bounded at maxEntries. A maxEntries
// of zero is permitted (SPEC_FULL.md §4.2): every Put is evicted immediately
// after insertion, which still runs onEvict, so a capacity-zero
// overflow-to-disk cache behaves as a pure write-through to the disk tier.
func NewMemoryStore(maxEntries int, onEvict func(*Element), logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxEntries == 0 {
		logger.Warn("memory store configured with zero capacity; every put evicts immediately")
	}
	return &MemoryStore{
		data:       make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		onEvict:    onEvict,
		logger:     logger,
	}
}

// Put inserts or updates key's element, moving it to the most-recently-used
// position. If inserting would exceed maxEntries, the least-recently-used
// entry is evicted first so the capacity bound holds immediately after Put
// returns (invariant 4 of SPEC_FULL.md §8).
func (ms *MemoryStore) Put(e *Element) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if le, ok := ms.data[e.Key()]; ok {
		le.Value = e
		ms.order.MoveToFront(le)
		return
	}

	if ms.maxEntries > 0 && ms.order.Len() >= ms.maxEntries {
		ms.evictOldestLocked()
	}

	le := ms.order.PushFront(e)
	ms.data[e.Key()] = le

	if ms.maxEntries == 0 {
		ms.evictOldestLocked()
	}
}

func (ms *MemoryStore) evictOldestLocked() {
	back := ms.order.Back()
	if back == nil {
		return
	}
	e := back.Value.(*Element)
	ms.order.Remove(back)
	delete(ms.data, e.Key())
	if ms.onEvict != nil {
		ms.onEvict(e)
	}
}

// Get promotes key to most-recently-used and updates its access
// bookkeeping.
func (ms *MemoryStore) Get(key string) (*Element, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	le, ok := ms.data[key]
	if !ok {
		return nil, false
	}
	e := le.Value.(*Element)
	e.touch()
	ms.order.MoveToFront(le)
	return e, true
}

// GetQuiet returns key's element without promoting it or touching its
// access bookkeeping.
func (ms *MemoryStore) GetQuiet(key string) (*Element, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	le, ok := ms.data[key]
	if !ok {
		return nil, false
	}
	return le.Value.(*Element), true
}

// Remove deletes key unconditionally, reporting whether it was present.
func (ms *MemoryStore) Remove(key string) bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	le, ok := ms.data[key]
	if !ok {
		return false
	}
	ms.order.Remove(le)
	delete(ms.data, key)
	return true
}

// RemoveAll clears the store without invoking onEvict.
func (ms *MemoryStore) RemoveAll() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.data = make(map[string]*list.Element)
	ms.order.Init()
}

// Keys returns every key, ordered least-recently-used first.
func (ms *MemoryStore) Keys() []string {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	out := make([]string, 0, len(ms.data))
	for le := ms.order.Back(); le != nil; le = le.Prev() {
		out = append(out, le.Value.(*Element).Key())
	}
	return out
}

// Size returns the current element count.
func (ms *MemoryStore) Size() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.data)
}

// Dispose clears the store. If spool is non-nil (a persistent cache), every
// element is handed to spool before the store is cleared, per SPEC_FULL.md
// §4.2's "every element is spooled to the DiskStore before clearing".
func (ms *MemoryStore) Dispose(spool func(*Element)) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if spool != nil {
		for le := ms.order.Front(); le != nil; le = le.Next() {
			spool(le.Value.(*Element))
		}
	}

	ms.data = make(map[string]*list.Element)
	ms.order.Init()
}
