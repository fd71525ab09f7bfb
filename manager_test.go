package cachekit

import (
	"errors"
	"testing"
)

func TestManagerAddGetRemoveCache(t *testing.T) {
	m := NewManager(nil)
	defer m.Shutdown()

	c, err := m.AddCache("m1")
	if err != nil {
		t.Fatal(err)
	}

	got, ok := m.GetCache("m1")
	if !ok || got != c {
		t.Fatal("expected GetCache to return the cache just added")
	}

	if err := m.RemoveCache("m1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.GetCache("m1"); ok {
		t.Fatal("expected cache to be gone after RemoveCache")
	}
}

func TestManagerAddCacheDuplicateNameFails(t *testing.T) {
	m := NewManager(nil)
	defer m.Shutdown()

	if _, err := m.AddCache("dup"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddCache("dup"); err != ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestManagerRemoveCacheMissingIsNoop(t *testing.T) {
	m := NewManager(nil)
	defer m.Shutdown()

	if err := m.RemoveCache("does-not-exist"); err != nil {
		t.Fatalf("expected silent no-op, got %v", err)
	}
}

func TestManagerShutdownIsIdempotent(t *testing.T) {
	m := NewManager(nil)

	if _, err := m.AddCache("m2"); err != nil {
		t.Fatal(err)
	}

	if err := m.Shutdown(); err != nil {
		t.Fatalf("first shutdown: %v", err)
	}
	if err := m.Shutdown(); err != nil {
		t.Fatalf("second shutdown should be a no-op, got: %v", err)
	}
}

func TestInstanceSingletonResetsAfterShutdown(t *testing.T) {
	first := Instance()
	if err := first.Shutdown(); err != nil {
		t.Fatal(err)
	}

	second := Instance()
	defer second.Shutdown()
	if first == second {
		t.Fatal("expected a fresh Manager after Shutdown clears the singleton")
	}
}

func TestManagerSetDiskStorePathAppliesToNewCaches(t *testing.T) {
	m := NewManager(nil)
	defer m.Shutdown()

	m.SetDiskStorePath(t.TempDir())

	c, err := m.AddCache("m3")
	if err != nil {
		t.Fatal(err)
	}
	if c.disk == nil {
		t.Fatal("expected the manager's shared disk root to enable the disk tier")
	}
}

func TestGetCacheErrReturnsErrNotFound(t *testing.T) {
	m := NewManager(nil)
	defer m.Shutdown()

	if _, err := m.GetCacheErr("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	c, err := m.AddCache("m4")
	if err != nil {
		t.Fatal(err)
	}
	got, err := m.GetCacheErr("m4")
	if err != nil {
		t.Fatal(err)
	}
	if got != c {
		t.Fatal("expected GetCacheErr to return the cache just added")
	}
}

func TestValidateCacheNameReplacesNonAlphanumeric(t *testing.T) {
	got := ValidateCacheName("my cache/name!")
	want := "my_cache_name_"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
