package cachekit

// ExpiryPolicy is the TTL/TTI/eternal configuration shared verbatim between
// a Cache and its DiskStore, so the two never compute expiry differently.
// The Cache is the authority that decides whether a given Element is
// expired when returning it to a caller (isExpired); the DiskStore uses the
// same policy only to stamp a conservative DiskElement.ExpiryTime for its
// background reaper (resolveDiskExpiry) and to drop spooled elements the
// reaper finds already expired.
type ExpiryPolicy struct {
	Eternal    bool
	TTLSeconds int64
	TTISeconds int64
}

// isExpired implements SPEC_FULL.md §4.3's expiry predicate:
//
//   - a tombstone (nil value) is always expired;
//   - an eternal cache's elements never expire;
//   - otherwise an element expires once its lived age exceeds ttl, or its
//     idled age (measured from next-to-last access, not last access, so the
//     probing read cannot mask staleness) exceeds tti.
//
// ttl == 0 or tti == 0 disables the respective check.
func isExpired(p ExpiryPolicy, e *Element, nowMs int64) bool {
	if e.value == nil {
		return true
	}
	if p.Eternal {
		return false
	}

	ageLived := nowMs - e.creationTime
	idleSince := e.creationTime
	if e.nextToLastAccessTime > idleSince {
		idleSince = e.nextToLastAccessTime
	}
	ageIdled := nowMs - idleSince

	if p.TTLSeconds != 0 && ageLived > p.TTLSeconds*1000 {
		return true
	}
	if p.TTISeconds != 0 && ageIdled > p.TTISeconds*1000 {
		return true
	}
	return false
}

// resolveDiskExpiry computes the conservative DiskElement.ExpiryTime
// assigned at spool-flush time (SPEC_FULL.md §4.1). It is "conservative" in
// the sense that it never precedes the earliest moment isExpired would
// actually fire: a disabled term (ttl or tti == 0) is excluded from the
// max rather than contributing a zero-offset time, so that a cache
// configured with both ttl and tti disabled is correctly treated as never
// expiring by the background reaper, matching isExpired's own "0 disables
// the check" rule. This is a deliberate reading of the spec's literal "max
// of the two terms" formula (recorded in DESIGN.md): the alternative literal
// zero-arithmetic reading would let the background reaper delete disk
// blocks for elements isExpired considers eternal.
func resolveDiskExpiry(p ExpiryPolicy, e *Element) int64 {
	if p.Eternal {
		return eternalExpiry
	}

	haveComponent := false
	var expiry int64

	if p.TTLSeconds != 0 {
		c := e.creationTime + p.TTLSeconds*1000
		if !haveComponent || c > expiry {
			expiry = c
		}
		haveComponent = true
	}
	if p.TTISeconds != 0 {
		c := e.lastAccessTime + p.TTISeconds*1000
		if !haveComponent || c > expiry {
			expiry = c
		}
		haveComponent = true
	}

	if !haveComponent {
		return eternalExpiry
	}
	return expiry
}
