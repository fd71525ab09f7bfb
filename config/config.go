// Package config loads the declarative configuration record a CacheManager
// is built from, mirroring the calvinalkan-agent-task pattern of a plain
// struct unmarshaled from a HuJSON (JSON-with-comments) document.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tempuscache/cachekit"
)

// CacheConfig is one entry of the Caches list: the per-cache settings of
// SPEC_FULL.md §6.
type CacheConfig struct {
	Name                            string `json:"name"`
	MaxElementsInMemory             int    `json:"max_elements_in_memory"`
	Eternal                         bool   `json:"eternal"`
	TimeToIdleSeconds               int64  `json:"time_to_idle_seconds"`
	TimeToLiveSeconds               int64  `json:"time_to_live_seconds"`
	OverflowToDisk                  bool   `json:"overflow_to_disk"`
	DiskPersistent                  bool   `json:"disk_persistent"`
	DiskExpiryThreadIntervalSeconds int64  `json:"disk_expiry_thread_interval_seconds"`
}

// Config is the top-level configuration record consumed by a CacheManager,
// per SPEC_FULL.md §6.
type Config struct {
	DiskCachePath string        `json:"disk_cache_path"`
	DefaultCache  CacheConfig   `json:"default_cache"`
	Caches        []CacheConfig `json:"caches"`
}

// ResolveDiskCachePath expands the ${user.home}, ${user.dir}, and
// ${system.tmpdir} tokens in DiskCachePath, falling back to os.TempDir()
// when the path is empty, per SPEC_FULL.md §6's environment-variable rules.
func (c Config) ResolveDiskCachePath() (string, error) {
	path := c.DiskCachePath
	if path == "" {
		return os.TempDir(), nil
	}

	if strings.Contains(path, "${user.home}") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("config: resolving ${user.home}: %w", err)
		}
		path = strings.ReplaceAll(path, "${user.home}", home)
	}
	if strings.Contains(path, "${user.dir}") {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("config: resolving ${user.dir}: %w", err)
		}
		path = strings.ReplaceAll(path, "${user.dir}", wd)
	}
	if strings.Contains(path, "${system.tmpdir}") {
		path = strings.ReplaceAll(path, "${system.tmpdir}", os.TempDir())
	}

	return filepath.Clean(path), nil
}

// ResolvedCacheConfig merges a named entry from Caches over DefaultCache,
// applying the disk expiry interval default of 120 seconds when unset. It
// returns false if name is not present in Caches.
func (c Config) ResolvedCacheConfig(name string) (CacheConfig, bool) {
	for _, entry := range c.Caches {
		if entry.Name != name {
			continue
		}
		merged := c.DefaultCache
		merged.Name = entry.Name
		if entry.MaxElementsInMemory != 0 {
			merged.MaxElementsInMemory = entry.MaxElementsInMemory
		}
		merged.Eternal = entry.Eternal || merged.Eternal
		if entry.TimeToIdleSeconds != 0 {
			merged.TimeToIdleSeconds = entry.TimeToIdleSeconds
		}
		if entry.TimeToLiveSeconds != 0 {
			merged.TimeToLiveSeconds = entry.TimeToLiveSeconds
		}
		merged.OverflowToDisk = entry.OverflowToDisk || merged.OverflowToDisk
		merged.DiskPersistent = entry.DiskPersistent || merged.DiskPersistent
		if entry.DiskExpiryThreadIntervalSeconds != 0 {
			merged.DiskExpiryThreadIntervalSeconds = entry.DiskExpiryThreadIntervalSeconds
		}
		if merged.DiskExpiryThreadIntervalSeconds == 0 {
			merged.DiskExpiryThreadIntervalSeconds = 120
		}
		return merged, true
	}
	return CacheConfig{}, false
}

// ResolveDefault returns DefaultCache with the same disk-expiry-interval
// default ResolvedCacheConfig applies, for callers that need a cache
// configuration for a name not present in Caches. It returns
// cachekit.ErrConfigMissing when no default_cache section was configured at
// all (SPEC_FULL.md §7), distinguishing "fall back to the default" from
// "there is no default to fall back to."
func (c Config) ResolveDefault() (CacheConfig, error) {
	if c.DefaultCache == (CacheConfig{}) {
		return CacheConfig{}, cachekit.ErrConfigMissing
	}
	merged := c.DefaultCache
	if merged.DiskExpiryThreadIntervalSeconds == 0 {
		merged.DiskExpiryThreadIntervalSeconds = 120
	}
	return merged, nil
}
