package cachekit

import (
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"
)

// actionKind distinguishes the two mutations a NamedMap can queue, per
// SPEC_FULL.md §4.5.
type actionKind int

const (
	actionPut actionKind = iota
	actionRemove
)

type namedMapAction struct {
	kind  actionKind
	key   string
	value any
}

// actionQueue is a true unbounded FIFO: a mutex-guarded slice with a
// condition variable, so Put/Remove never block the calling goroutine
// waiting for the worker to catch up, mirroring the teacher's dedicated-
// worker idiom (janitor.go) without the bounded-channel backpressure a plain
// buffered channel would introduce.
type actionQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []namedMapAction
	closed bool
}

func newActionQueue() *actionQueue {
	q := &actionQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *actionQueue) push(a namedMapAction) {
	q.mu.Lock()
	q.items = append(q.items, a)
	q.cond.Signal()
	q.mu.Unlock()
}

// popBlocking waits for an action or for the queue to be closed with no
// items remaining, in which case ok is false.
func (q *actionQueue) popBlocking() (a namedMapAction, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return namedMapAction{}, false
	}
	a, q.items = q.items[0], q.items[1:]
	return a, true
}

func (q *actionQueue) closeQueue() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// NamedMapOption configures a NamedMap at construction time, following the
// same functional options shape as Option (options.go).
type NamedMapOption func(*namedMapConfig)

type namedMapConfig struct {
	maxValueBytes int64
	sizeFn        valueSizeFunc
	logger        *zap.Logger
}

// WithMaxValueBytes bounds the facade's softly-held value map by estimated
// byte count. Zero (the default) leaves it unbounded.
func WithMaxValueBytes(n int64) NamedMapOption {
	return func(c *namedMapConfig) { c.maxValueBytes = n }
}

// WithValueSizeFunc supplies the estimator used against WithMaxValueBytes.
// Without one, every value counts as a single unit.
func WithValueSizeFunc(fn func(value any) int64) NamedMapOption {
	return func(c *namedMapConfig) { c.sizeFn = fn }
}

// WithNamedMapLogger attaches a structured logger for the facade's
// background writer.
func WithNamedMapLogger(logger *zap.Logger) NamedMapOption {
	return func(c *namedMapConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NamedMap is the strict map-like facade of SPEC_FULL.md §4.5: it layers a
// softly-referenced value map and a strongly-held key set over a Cache,
// applying mutations asynchronously through a dedicated worker so Put/Remove
// never block on disk I/O.
type NamedMap struct {
	name  string
	cache *Cache

	values *valueCache

	keysMu sync.RWMutex
	keys   map[string]struct{}

	queue  *actionQueue
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewNamedMap validates name (SPEC_FULL.md §6: empty names and names longer
// than 200 characters are rejected with ErrInvalidName, non-alphanumeric
// runes are replaced with '_') and wraps cache in a NamedMap facade,
// starting its background writer immediately.
func NewNamedMap(name string, cache *Cache, opts ...NamedMapOption) (*NamedMap, error) {
	if name == "" || len(name) > 200 {
		return nil, ErrInvalidName
	}
	if cache == nil {
		return nil, ErrNilElement
	}

	cfg := &namedMapConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(cfg)
	}

	nm := &NamedMap{
		name:   ValidateCacheName(name),
		cache:  cache,
		values: newValueCache(cfg.maxValueBytes, cfg.sizeFn),
		keys:   make(map[string]struct{}),
		queue:  newActionQueue(),
		logger: cfg.logger,
	}

	nm.wg.Add(1)
	go nm.runWorker()
	return nm, nil
}

// Name returns the validated name this facade was constructed with.
func (nm *NamedMap) Name() string { return nm.name }

// Put records value under key immediately in the soft value map and the key
// set, then enqueues the write to be applied to the underlying Cache
// asynchronously.
func (nm *NamedMap) Put(key string, value any) {
	nm.values.put(key, value)

	nm.keysMu.Lock()
	nm.keys[key] = struct{}{}
	nm.keysMu.Unlock()

	nm.queue.push(namedMapAction{kind: actionPut, key: key, value: value})
}

// Get returns key's value, consulting the soft value map first and falling
// through to the underlying Cache (which may itself fall through to disk)
// on a soft-map miss.
func (nm *NamedMap) Get(key string) (any, bool, error) {
	if v, ok := nm.values.get(key); ok {
		return v, true, nil
	}

	e, ok, err := nm.cache.Get(key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	var v any
	if err := cbor.Unmarshal(e.Value(), &v); err != nil {
		return nil, false, fmt.Errorf("cachekit: decoding named map value for %q: %w", key, err)
	}
	nm.values.put(key, v)
	return v, true, nil
}

// HasKey reports whether key is a member of this map without consulting the
// disk tier, per SPEC_FULL.md §4.5.
func (nm *NamedMap) HasKey(key string) bool {
	nm.keysMu.RLock()
	defer nm.keysMu.RUnlock()
	_, ok := nm.keys[key]
	return ok
}

// Remove drops key from the soft value map and key set immediately, then
// enqueues the removal to be applied to the underlying Cache asynchronously.
func (nm *NamedMap) Remove(key string) {
	nm.values.remove(key)

	nm.keysMu.Lock()
	delete(nm.keys, key)
	nm.keysMu.Unlock()

	nm.queue.push(namedMapAction{kind: actionRemove, key: key})
}

func (nm *NamedMap) runWorker() {
	defer nm.wg.Done()
	for {
		a, ok := nm.queue.popBlocking()
		if !ok {
			return
		}
		switch a.kind {
		case actionPut:
			encoded, err := cbor.Marshal(a.value)
			if err != nil {
				nm.logger.Error("named map failed to encode queued put",
					zap.String("map", nm.name), zap.String("key", a.key), zap.Error(err))
				continue
			}
			if err := nm.cache.Put(NewElement(a.key, encoded)); err != nil {
				nm.logger.Error("named map failed to apply queued put",
					zap.String("map", nm.name), zap.String("key", a.key), zap.Error(err))
			}
		case actionRemove:
			if _, err := nm.cache.Remove(a.key); err != nil {
				nm.logger.Error("named map failed to apply queued remove",
					zap.String("map", nm.name), zap.String("key", a.key), zap.Error(err))
			}
		}
	}
}

// Shutdown signals the background writer, waits for the action queue to
// drain and the worker to exit, then clears the soft value map and key set.
// It does not dispose the underlying Cache; ownership of that lifecycle
// belongs to whoever constructed it (typically a Manager), avoiding the
// double-dispose hazard the source's RemoveMegaMap/RemoveCache pairing had
// (resolved more generally by Cache.Dispose's idempotency; see DESIGN.md).
func (nm *NamedMap) Shutdown() {
	nm.queue.closeQueue()
	nm.wg.Wait()
	nm.values.removeAll()

	nm.keysMu.Lock()
	nm.keys = make(map[string]struct{})
	nm.keysMu.Unlock()
}
