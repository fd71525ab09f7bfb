package cachekit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// defaultDiskExpiryIntervalSeconds is applied when a config's
// DiskExpiryThreadIntervalSeconds is zero, per SPEC_FULL.md §6.
const defaultDiskExpiryIntervalSeconds = 120

// DiskStoreOptions configures a DiskStore at construction. It mirrors the
// subset of a cache's configuration the disk tier needs: whether it survives
// restarts, the expiry policy used both for the background reaper and for
// stamping DiskElement.ExpiryTime at spool-flush time, and the reaper's
// sleep interval.
type DiskStoreOptions struct {
	Persistent            bool
	Policy                ExpiryPolicy
	ExpiryIntervalSeconds int64
	Logger                *zap.Logger
}

// DiskStore is the single-file, block-allocated, index-backed persistent
// tier described in SPEC_FULL.md §4.1. Every public method acquires mu for
// its entire duration; the spool and expirer background workers acquire the
// same lock while they run.
type DiskStore struct {
	name       string
	dataPath   string
	indexPath  string
	persistent bool
	policy     ExpiryPolicy
	logger     *zap.Logger

	mu        sync.Mutex
	file      *os.File
	fileLen   int64
	totalSize int64
	idx       *index
	spool     map[string]*Element
	active    bool

	expiryInterval time.Duration
	spoolSignal    chan struct{}
	stopCh         chan struct{}
	wg             sync.WaitGroup
}

// OpenDiskStore implements the startup half of the persistence protocol
// (§4.1): a persistent store attempts to read its index file, falling back
// to an empty index (and deleting the data file) on any failure; either way
// the index file is recreated empty before any further writes, so a crash
// between data writes and a clean Dispose always resolves to "empty" on the
// next start.
func OpenDiskStore(name, dir string, opts DiskStoreOptions) (*DiskStore, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cachekit: creating disk store directory %q: %w", dir, err)
	}

	ds := &DiskStore{
		name:       name,
		dataPath:   filepath.Join(dir, name+".data"),
		indexPath:  filepath.Join(dir, name+".index"),
		persistent: opts.Persistent,
		policy:     opts.Policy,
		logger:     logger,
		spool:      make(map[string]*Element),
		stopCh:     make(chan struct{}),
		spoolSignal: make(chan struct{}, 1),
	}

	interval := opts.ExpiryIntervalSeconds
	if interval == 0 {
		interval = defaultDiskExpiryIntervalSeconds
	}
	ds.expiryInterval = time.Duration(interval) * time.Second

	if ds.persistent {
		idx, err := loadIndexFile(ds.indexPath)
		if err != nil {
			logger.Warn("disk store index unreadable, resetting to empty",
				zap.String("cache", name), zap.Error(err))
			idx = newIndex()
			if rmErr := os.Remove(ds.dataPath); rmErr != nil && !os.IsNotExist(rmErr) {
				logger.Warn("failed to delete stale data file after index reset",
					zap.String("cache", name), zap.Error(rmErr))
			}
		}
		ds.idx = idx

		if err := createEmptyIndexFile(ds.indexPath); err != nil {
			return nil, fmt.Errorf("cachekit: recreating empty index for %q: %w", name, err)
		}
	} else {
		ds.idx = newIndex()
		if err := os.Remove(ds.dataPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to delete stale data file for non-persistent store",
				zap.String("cache", name), zap.Error(err))
		}
	}

	for _, de := range ds.idx.elements {
		ds.totalSize += de.PayloadSize
	}

	f, err := os.OpenFile(ds.dataPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cachekit: opening data file %q: %w", ds.dataPath, err)
	}
	ds.file = f

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("cachekit: stating data file %q: %w", ds.dataPath, err)
	}
	ds.fileLen = info.Size()
	ds.active = true

	ds.startSpoolWorker()
	if !ds.policy.Eternal {
		ds.startExpirer()
	}

	return ds, nil
}

// Put enqueues e into the spool and wakes the spool worker. It satisfies the
// ordering guarantee in SPEC_FULL.md §5: a Get for the same key from the
// same goroutine immediately afterward observes e, because Get consults the
// spool before the on-disk index.
func (ds *DiskStore) Put(e *Element) error {
	ds.mu.Lock()
	if !ds.active {
		ds.mu.Unlock()
		return ErrNotAlive
	}
	ds.spool[e.Key()] = e
	ds.mu.Unlock()

	select {
	case ds.spoolSignal <- struct{}{}:
	default:
	}
	return nil
}

// Get reads an element, promoting the entry out of the spool if a pending
// write satisfies the read directly (§4.1's "spool coherence" guarantee),
// and updates access statistics unless quiet is true.
func (ds *DiskStore) Get(key string) (*Element, bool, error) {
	return ds.get(key, false)
}

// GetQuiet behaves like Get but never mutates the element's access
// bookkeeping; used by expiry probes and size queries. Like Get, a spooled
// hit is popped out of the spool, so callers that only want to inspect an
// element without consuming it (e.g. a key-listing expiry probe) must use
// PeekQuiet instead.
func (ds *DiskStore) GetQuiet(key string) (*Element, bool, error) {
	return ds.get(key, true)
}

// PeekQuiet looks up key without mutating anything: a spooled entry is left
// in the spool, an on-disk entry's access bookkeeping is untouched. This is
// the non-destructive probe used by key-listing expiry checks, which must
// not cause a pending write to vanish just because it was inspected.
func (ds *DiskStore) PeekQuiet(key string) (*Element, bool, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !ds.active {
		return nil, false, ErrNotAlive
	}

	if e, ok := ds.spool[key]; ok {
		return e, true, nil
	}

	de, ok := ds.idx.lookup(key)
	if !ok {
		return nil, false, nil
	}

	buf := make([]byte, de.PayloadSize)
	if _, err := ds.file.ReadAt(buf, de.Position); err != nil {
		ds.logger.Error("disk store read failed",
			zap.String("cache", ds.name), zap.String("key", key), zap.Error(err))
		return nil, false, fmt.Errorf("%w: reading %q: %v", ErrIO, key, err)
	}

	e := &Element{}
	if err := e.UnmarshalBinary(buf); err != nil {
		ds.logger.Warn("disk store element corrupt, treating as miss",
			zap.String("cache", ds.name), zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}

	return e, true, nil
}

func (ds *DiskStore) get(key string, quiet bool) (*Element, bool, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !ds.active {
		return nil, false, ErrNotAlive
	}

	if e, ok := ds.spool[key]; ok {
		delete(ds.spool, key)
		if !quiet {
			e.touch()
		}
		return e, true, nil
	}

	de, ok := ds.idx.lookup(key)
	if !ok {
		return nil, false, nil
	}

	buf := make([]byte, de.PayloadSize)
	if _, err := ds.file.ReadAt(buf, de.Position); err != nil {
		ds.logger.Error("disk store read failed",
			zap.String("cache", ds.name), zap.String("key", key), zap.Error(err))
		return nil, false, fmt.Errorf("%w: reading %q: %v", ErrIO, key, err)
	}

	e := &Element{}
	if err := e.UnmarshalBinary(buf); err != nil {
		ds.logger.Warn("disk store element corrupt, treating as miss",
			zap.String("cache", ds.name), zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}

	if !quiet {
		e.touch()
	}
	return e, true, nil
}

// Remove deletes key from the spool and/or the on-disk index, returning the
// vacated block (if any) to the free list.
func (ds *DiskStore) Remove(key string) (bool, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !ds.active {
		return false, ErrNotAlive
	}

	_, inSpool := ds.spool[key]
	delete(ds.spool, key)

	de, inIndex := ds.idx.remove(key)
	if inIndex {
		ds.totalSize -= de.PayloadSize
		ds.idx.addFree(de)
	}

	return inSpool || inIndex, nil
}

// RemoveAll clears the spool and the on-disk index, returning every block to
// the free list.
func (ds *DiskStore) RemoveAll() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !ds.active {
		return ErrNotAlive
	}

	ds.spool = make(map[string]*Element)
	for _, de := range ds.idx.elements {
		ds.totalSize -= de.PayloadSize
		ds.idx.addFree(de)
	}
	ds.idx.elements = make(map[string]*DiskElement)
	return nil
}

// Keys returns every key known to the disk store (spool union index,
// deduplicated).
func (ds *DiskStore) Keys() []string {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	seen := make(map[string]struct{}, len(ds.spool)+ds.idx.size())
	out := make([]string, 0, len(ds.spool)+ds.idx.size())
	for k := range ds.spool {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	for k := range ds.idx.elements {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

// KeysNoDuplicateCheck concatenates spool and index keys without
// deduplicating, trading correctness for speed per SPEC_FULL.md §4.3.
func (ds *DiskStore) KeysNoDuplicateCheck() []string {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	out := make([]string, 0, len(ds.spool)+ds.idx.size())
	for k := range ds.spool {
		out = append(out, k)
	}
	for k := range ds.idx.elements {
		out = append(out, k)
	}
	return out
}

// Sparseness reports the fraction of the data file that is no longer live
// payload: 1 - totalSize/fileLen. It exposes the fragmentation the
// allocator's free-list reuse cannot reclaim (SPEC_FULL.md §4.1 "known
// limitation").
func (ds *DiskStore) Sparseness() float64 {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.fileLen == 0 {
		return 0
	}
	return 1 - float64(ds.totalSize)/float64(ds.fileLen)
}

// Dispose shuts the store down per the persistence protocol: a persistent
// store flushes the spool once more and atomically rewrites its index; a
// non-persistent store deletes its data file. Both close the file handle
// and stop the background workers. Calling Dispose twice is a no-op on the
// second call.
func (ds *DiskStore) Dispose() error {
	ds.mu.Lock()
	if !ds.active {
		ds.mu.Unlock()
		return nil
	}
	ds.active = false
	ds.mu.Unlock()

	close(ds.stopCh)
	ds.wg.Wait()

	ds.mu.Lock()
	defer ds.mu.Unlock()

	ds.flushSpoolLocked()

	var firstErr error
	if ds.persistent {
		if err := writeIndexFileAtomic(ds.indexPath, ds.idx); err != nil {
			ds.logger.Error("failed to persist disk store index on dispose",
				zap.String("cache", ds.name), zap.Error(err))
			firstErr = fmt.Errorf("cachekit: writing index on dispose: %w", err)
		}
	}

	if err := ds.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("cachekit: closing data file on dispose: %w", err)
	}

	if !ds.persistent {
		if err := os.Remove(ds.dataPath); err != nil && !os.IsNotExist(err) {
			ds.logger.Warn("failed to delete data file for non-persistent store on dispose",
				zap.String("cache", ds.name), zap.Error(err))
		}
	}

	return firstErr
}
