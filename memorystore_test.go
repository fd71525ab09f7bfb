package cachekit

import "testing"

func TestMemoryStoreCapacityBound(t *testing.T) {
	var evicted []string
	ms := NewMemoryStore(2, func(e *Element) { evicted = append(evicted, e.Key()) }, nil)

	ms.Put(NewElement("a", []byte("1")))
	ms.Put(NewElement("b", []byte("2")))
	ms.Put(NewElement("c", []byte("3")))

	if ms.Size() != 2 {
		t.Fatalf("expected size bound to 2, got %d", ms.Size())
	}
	if len(evicted) != 1 || evicted[0] != "a" {
		t.Fatalf("expected %q evicted first (least recently used), got %v", "a", evicted)
	}
}

func TestMemoryStoreLRUOrderingOnGet(t *testing.T) {
	var evicted []string
	ms := NewMemoryStore(2, func(e *Element) { evicted = append(evicted, e.Key()) }, nil)

	ms.Put(NewElement("a", []byte("1")))
	ms.Put(NewElement("b", []byte("2")))

	// Touching "a" should make "b" the next eviction victim instead.
	if _, ok := ms.Get("a"); !ok {
		t.Fatal("expected a to be present")
	}
	ms.Put(NewElement("c", []byte("3")))

	if len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("expected %q evicted after %q was touched, got %v", "b", "a", evicted)
	}
}

func TestMemoryStoreZeroCapacityEvictsImmediately(t *testing.T) {
	var evicted []string
	ms := NewMemoryStore(0, func(e *Element) { evicted = append(evicted, e.Key()) }, nil)

	ms.Put(NewElement("a", []byte("1")))

	if ms.Size() != 0 {
		t.Fatalf("expected zero-capacity store to stay empty, got size %d", ms.Size())
	}
	if len(evicted) != 1 || evicted[0] != "a" {
		t.Fatalf("expected immediate eviction of %q, got %v", "a", evicted)
	}
}

func TestMemoryStoreGetQuietDoesNotTouch(t *testing.T) {
	ms := NewMemoryStore(10, nil, nil)
	e := NewElement("a", []byte("1"))
	ms.Put(e)

	before := e.HitCount()
	if _, ok := ms.GetQuiet("a"); !ok {
		t.Fatal("expected a to be present")
	}
	if e.HitCount() != before {
		t.Fatalf("expected GetQuiet to leave hit count at %d, got %d", before, e.HitCount())
	}
}

func TestMemoryStoreKeysOrderedLRUFirst(t *testing.T) {
	ms := NewMemoryStore(10, nil, nil)
	ms.Put(NewElement("a", []byte("1")))
	ms.Put(NewElement("b", []byte("2")))
	ms.Put(NewElement("c", []byte("3")))

	keys := ms.Keys()
	want := []string{"a", "b", "c"}
	if len(keys) != len(want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}
	for i, k := range want {
		if keys[i] != k {
			t.Fatalf("expected %v, got %v", want, keys)
		}
	}
}

func TestMemoryStoreDisposeSpoolsEveryElement(t *testing.T) {
	ms := NewMemoryStore(10, nil, nil)
	ms.Put(NewElement("a", []byte("1")))
	ms.Put(NewElement("b", []byte("2")))

	var spooled []string
	ms.Dispose(func(e *Element) { spooled = append(spooled, e.Key()) })

	if len(spooled) != 2 {
		t.Fatalf("expected 2 elements spooled on dispose, got %d", len(spooled))
	}
	if ms.Size() != 0 {
		t.Fatalf("expected store cleared after dispose, got size %d", ms.Size())
	}
}
