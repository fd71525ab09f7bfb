package cachekit

import "errors"

// Sentinel errors returned by Cache, DiskStore, CacheManager, and NamedMap.
// Callers should compare with errors.Is, since all are wrapped with
// additional context at the call site.
var (
	// ErrNotAlive is returned by any user-facing operation on a Cache or
	// DiskStore that is not in its ALIVE state. Manager operations do not
	// check for a prior Shutdown and never return it.
	ErrNotAlive = errors.New("cachekit: not alive")

	// ErrAlreadyExists is returned when adding a cache or named map under a
	// name that is already registered.
	ErrAlreadyExists = errors.New("cachekit: already exists")

	// ErrInvalidName is returned by the NamedMap facade for names longer
	// than 200 characters or empty names.
	ErrInvalidName = errors.New("cachekit: invalid name")

	// ErrIO wraps a disk read/write/seek fault surfaced to a foreground
	// caller. Background workers do not return this; they log and continue.
	ErrIO = errors.New("cachekit: io failure")

	// ErrNilElement is returned by Cache.Put/PutQuiet when given a nil
	// element.
	ErrNilElement = errors.New("cachekit: nil element")

	// ErrConfigMissing is returned by config.Config.ResolveDefault when no
	// default cache configuration is present and one is required.
	ErrConfigMissing = errors.New("cachekit: no default cache configured")

	// ErrNotFound is returned by Manager.GetCacheErr, the error-returning
	// sibling of GetCache's (value, bool) pair.
	ErrNotFound = errors.New("cachekit: not found")
)
