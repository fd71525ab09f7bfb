package cachekit

import (
	"os"
	"os/signal"
	"regexp"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

// Manager is the process-wide registry of named Caches described in
// SPEC_FULL.md §4.4: it owns the shared disk root path and orchestrates
// orderly shutdown of every cache it holds. Unlike the teacher's JVM-style
// class-level singleton, Manager is an explicit value; Instance provides the
// optional singleton for callers who want one.
type Manager struct {
	mu            sync.RWMutex
	caches        map[string]*Cache
	diskCachePath string
	logger        *zap.Logger

	stopSignals chan os.Signal
	state       sigState
}

type sigState struct {
	mu       sync.Mutex
	disposed bool
}

var nameValidationPattern = regexp.MustCompile(`[^a-zA-Z0-9]`)

// ValidateCacheName trims name to 200 characters and replaces every
// non-alphanumeric rune with '_', per the facade validation rule of
// SPEC_FULL.md §6. The result is what is actually used as the on-disk file
// prefix.
func ValidateCacheName(name string) string {
	if len(name) > 200 {
		name = name[:200]
	}
	return nameValidationPattern.ReplaceAllString(name, "_")
}

// NewManager constructs a standalone Manager, for callers who want to thread
// their own instance through dependency injection instead of using the
// package-level singleton.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		caches: make(map[string]*Cache),
		logger: logger,
	}
	m.installSignalHandler()
	return m
}

// installSignalHandler mirrors the teacher's janitor ticker+channel
// lifecycle idiom: a single dedicated goroutine waits on SIGINT/SIGTERM and
// calls Shutdown exactly once, so embedding processes get crash-tolerant
// disk stores without remembering to call Shutdown explicitly.
func (m *Manager) installSignalHandler() {
	m.stopSignals = make(chan os.Signal, 1)
	signal.Notify(m.stopSignals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if _, ok := <-m.stopSignals; ok {
			_ = m.Shutdown()
		}
	}()
}

// SetDiskStorePath sets the directory new caches' disk tiers are rooted
// under when AddCache is used. It does not affect caches already added.
func (m *Manager) SetDiskStorePath(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.diskCachePath = path
}

// AddCache builds and registers a new Cache named name using opts, plus the
// manager's configured disk root if WithOverflowToDisk did not already set
// one explicitly. Returns ErrAlreadyExists if name is taken.
func (m *Manager) AddCache(name string, opts ...Option) (*Cache, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.caches[name]; exists {
		return nil, ErrAlreadyExists
	}

	allOpts := opts
	if m.diskCachePath != "" {
		// The manager's shared disk root is a default: an explicit
		// WithOverflowToDisk in opts, applied after, wins.
		allOpts = append([]Option{WithOverflowToDisk(m.diskCachePath)}, opts...)
	}

	c, err := New(name, allOpts...)
	if err != nil {
		return nil, err
	}
	m.caches[name] = c
	return c, nil
}

// AddCacheWithConfig registers an already-constructed Cache, failing with
// ErrAlreadyExists if its name is taken.
func (m *Manager) AddCacheWithConfig(c *Cache) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.caches[c.Name()]; exists {
		return ErrAlreadyExists
	}
	m.caches[c.Name()] = c
	return nil
}

// GetCache returns the cache named name, if registered.
func (m *Manager) GetCache(name string) (*Cache, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.caches[name]
	return c, ok
}

// GetCacheErr behaves like GetCache but returns ErrNotFound instead of a
// bool, for callers (e.g. cmd/cachectl) that want a single error-handling
// path rather than a separate existence check.
func (m *Manager) GetCacheErr(name string) (*Cache, error) {
	c, ok := m.GetCache(name)
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// RemoveCache disposes and unregisters the cache named name. Removing an
// unknown name is a silent no-op, per SPEC_FULL.md §4.4.
func (m *Manager) RemoveCache(name string) error {
	m.mu.Lock()
	c, ok := m.caches[name]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.caches, name)
	m.mu.Unlock()

	return c.Dispose()
}

// Shutdown disposes every registered cache and stops the signal-handling
// goroutine. It is idempotent: a second call is a no-op. If this manager is
// the package-level singleton, Shutdown also clears that reference so a
// subsequent Instance() call constructs a fresh Manager (supporting test
// isolation, per SPEC_FULL.md §4.4).
func (m *Manager) Shutdown() error {
	m.state.mu.Lock()
	if m.state.disposed {
		m.state.mu.Unlock()
		return nil
	}
	m.state.disposed = true
	m.state.mu.Unlock()

	signal.Stop(m.stopSignals)
	close(m.stopSignals)

	m.mu.Lock()
	caches := m.caches
	m.caches = make(map[string]*Cache)
	m.mu.Unlock()

	var firstErr error
	for _, c := range caches {
		if err := c.Dispose(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	clearSingletonIfCurrent(m)
	return firstErr
}

var (
	singletonMu sync.Mutex
	singleton   *Manager
)

// Instance returns the process-wide Manager singleton, constructing it
// lazily on first call. This is deliberately not a sync.Once: Shutdown must
// be able to clear the package-level reference so a later Instance() call
// after shutdown builds a fresh Manager, matching the test-isolation hook
// the source's class-level singleton provided (see DESIGN.md).
func Instance() *Manager {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if singleton == nil {
		singleton = NewManager(nil)
	}
	return singleton
}

func clearSingletonIfCurrent(m *Manager) {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if singleton == m {
		singleton = nil
	}
}
