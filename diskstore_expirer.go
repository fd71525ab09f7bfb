package cachekit

import (
	"time"

	"go.uber.org/zap"
)

// startExpirer launches the background reaper for non-eternal caches,
// directly mirroring the teacher's janitor.go ticker+stop-channel shape: a
// time.Ticker wakes the worker at expiryInterval, and closing stopCh (shared
// with the spool worker via Dispose) ends it.
func (ds *DiskStore) startExpirer() {
	ticker := time.NewTicker(ds.expiryInterval)

	ds.wg.Add(1)
	go func() {
		defer ds.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ds.mu.Lock()
				ds.runExpiryPassLocked()
				ds.mu.Unlock()
			case <-ds.stopCh:
				return
			}
		}
	}()
}

// runExpiryPassLocked implements the two-phase reaper of §4.1: first it
// drops any spooled element that isExpired already condemns, then it walks
// the on-disk index and reclaims any block whose conservative ExpiryTime
// has passed. Caller must hold ds.mu.
func (ds *DiskStore) runExpiryPassLocked() {
	now := nowMillis()
	reaped := 0

	for key, e := range ds.spool {
		if isExpired(ds.policy, e, now) {
			delete(ds.spool, key)
			reaped++
		}
	}

	for key, de := range ds.idx.elements {
		if de.isExpiredAt(now) {
			delete(ds.idx.elements, key)
			ds.totalSize -= de.PayloadSize
			ds.idx.addFree(de)
			reaped++
		}
	}

	if reaped > 0 {
		ds.logger.Debug("disk store expiry pass reaped entries",
			zap.String("cache", ds.name), zap.Int("reaped", reaped))
	}
}
