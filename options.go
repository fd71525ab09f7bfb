package cachekit

import "go.uber.org/zap"

/*
Option configures a Cache at construction time.

DESIGN PATTERN

This keeps the teacher's functional options pattern: New accepts a variadic
list of Option functions instead of a wide constructor signature, so adding
a new knob never breaks existing callers.

    cache, err := New("sessions",
        WithMaxElementsInMemory(10_000),
        WithOverflowToDisk("/var/lib/cachekit"),
        WithTimeToLiveSeconds(1800),
    )

Each Option mutates the cacheConfig being assembled before the stores are
built; New builds the Cache from it once every option has run.
*/
type Option func(*cacheConfig)

// cacheConfig is the resolved configuration record a Cache is
// built from. It corresponds to one entry of the Caches configuration
// record in SPEC_FULL.md §6.
type cacheConfig struct {
	name string

	maxElementsInMemory int
	eternal             bool
	ttlSeconds          int64
	ttiSeconds          int64

	overflowToDisk bool
	diskPersistent bool
	diskCachePath  string
	diskExpirySec  int64

	logger *zap.Logger
}

func defaultCacheConfig(name string) *cacheConfig {
	return &cacheConfig{
		name:                name,
		maxElementsInMemory: 10_000,
		logger:              zap.NewNop(),
	}
}

// WithMaxElementsInMemory bounds the memory tier. Zero is permitted and
// means every Put evicts immediately into the disk tier (or drops, if
// overflow is disabled).
func WithMaxElementsInMemory(n int) Option {
	return func(c *cacheConfig) { c.maxElementsInMemory = n }
}

// WithEternal marks every element as never expiring; TTL/TTI are ignored.
func WithEternal(eternal bool) Option {
	return func(c *cacheConfig) { c.eternal = eternal }
}

// WithTimeToLiveSeconds sets the time-to-live bound, in seconds since
// creation. Zero disables the TTL check.
func WithTimeToLiveSeconds(seconds int64) Option {
	return func(c *cacheConfig) { c.ttlSeconds = seconds }
}

// WithTimeToIdleSeconds sets the time-to-idle bound, in seconds since the
// next-to-last access. Zero disables the TTI check.
func WithTimeToIdleSeconds(seconds int64) Option {
	return func(c *cacheConfig) { c.ttiSeconds = seconds }
}

// WithOverflowToDisk enables the disk tier rooted at dir, backing this
// cache's "{name}.data"/"{name}.index" files. Without this option the cache
// is memory-only and evicted entries are simply dropped.
func WithOverflowToDisk(dir string) Option {
	return func(c *cacheConfig) {
		c.overflowToDisk = true
		c.diskCachePath = dir
	}
}

// WithDiskPersistent makes the disk tier survive Dispose/reopen instead of
// being deleted on clean shutdown. Has no effect unless overflow-to-disk is
// also enabled.
func WithDiskPersistent(persistent bool) Option {
	return func(c *cacheConfig) { c.diskPersistent = persistent }
}

// WithDiskExpiryIntervalSeconds sets the disk reaper's sleep interval.
// Zero resolves to the spec default of 120 seconds.
func WithDiskExpiryIntervalSeconds(seconds int64) Option {
	return func(c *cacheConfig) { c.diskExpirySec = seconds }
}

// WithLogger attaches a structured logger used for every background-worker
// and best-effort-recovery log line. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *cacheConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}
